package catalog

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "animebot/backend/pkg/errors"
)

const datasetHeader = "anime_id,Name,Synopsis,Type,Episodes,Aired,Status,Duration,Rating,Score,Image URL,Genres,Source\n"

func readAll(t *testing.T, r *Reader) []Record {
	t.Helper()
	var records []Record
	for {
		rec, err := r.Next()
		if errors.Is(err, io.EOF) {
			return records
		}
		require.NoError(t, err)
		records = append(records, rec)
	}
}

func TestReader_DatasetHeader(t *testing.T) {
	src := datasetHeader +
		`1,Cowboy Bebop,"Bounty hunters, in space.",TV,26.0,Apr 3 1998 to Apr 24 1999,Finished Airing,24 min per ep,R - 17+,8.75,https://img/1.jpg,"Action, Award Winning, Sci-Fi",Original` + "\n" +
		`5,Cowboy Bebop: Tengoku no Tobira,Movie.,Movie,1,Sep 1 2001,Finished Airing,1 hr 55 min,R - 17+,8.38,https://img/5.jpg,"Action, Sci-Fi",Original` + "\n"

	r, err := NewReader("anime.csv", strings.NewReader(src), Options{})
	require.NoError(t, err)

	records := readAll(t, r)
	require.Len(t, records, 2)

	first := records[0]
	assert.Equal(t, int64(1), first.Index)
	require.NoError(t, first.Err)
	assert.Equal(t, int64(1), first.Row.ID)
	assert.Equal(t, "Cowboy Bebop", first.Row.Name)
	assert.Equal(t, "Bounty hunters, in space.", first.Row.Synopsis)
	assert.Equal(t, []string{"Action", "Award Winning", "Sci-Fi"}, first.Row.Genres)
	assert.Equal(t, "https://img/1.jpg", first.Row.ImageURL)
	assert.Equal(t, "Original", first.Row.Source)

	episodes, ok := first.Row.EpisodeCount()
	assert.True(t, ok)
	assert.Equal(t, int64(26), episodes)

	score, ok := records[1].Row.ScoreValue()
	assert.True(t, ok)
	assert.InDelta(t, 8.38, score, 1e-9)
	assert.Equal(t, int64(2), records[1].Index)
}

func TestReader_MissingColumns(t *testing.T) {
	_, err := NewReader("anime.csv", strings.NewReader("id,name\n1,x\n"), Options{})

	var srcErr *apperrors.SourceError
	require.ErrorAs(t, err, &srcErr)
	assert.True(t, srcErr.Fatal)
	assert.Contains(t, err.Error(), "synopsis")
}

func TestReader_MalformedRowDoesNotAbort(t *testing.T) {
	src := datasetHeader +
		"abc,Broken,,TV,1,,,,,,,Action,Manga\n" +
		"2,Short row\n" +
		"3,Fine,s,TV,12,a,Finished Airing,24 min,PG-13,7.1,u,Comedy,Manga\n"

	r, err := NewReader("anime.csv", strings.NewReader(src), Options{})
	require.NoError(t, err)

	records := readAll(t, r)
	require.Len(t, records, 3)

	var rowErr *apperrors.SourceError
	require.ErrorAs(t, records[0].Err, &rowErr)
	assert.False(t, rowErr.Fatal)
	assert.Equal(t, int64(1), rowErr.Row)
	assert.Error(t, records[1].Err)
	assert.NoError(t, records[2].Err)
	assert.Equal(t, int64(3), records[2].Row.ID)
	assert.Equal(t, 2, r.Malformed())
}

func TestReader_MalformedThreshold(t *testing.T) {
	src := datasetHeader + "x\ny\nz\n"

	r, err := NewReader("anime.csv", strings.NewReader(src), Options{MaxMalformedRows: 1})
	require.NoError(t, err)

	_, err = r.Next()
	require.NoError(t, err)

	_, err = r.Next()
	var srcErr *apperrors.SourceError
	require.ErrorAs(t, err, &srcErr)
	assert.True(t, srcErr.Fatal)
}

func TestReader_SkipThroughIgnoresMalformedRows(t *testing.T) {
	src := datasetHeader + "x\ny\nz\n" +
		"4,Fine,s,TV,12,a,Finished Airing,24 min,PG-13,7.1,u,Comedy,Manga\n" +
		"bad\n"

	r, err := NewReader("anime.csv", strings.NewReader(src), Options{MaxMalformedRows: 1})
	require.NoError(t, err)

	require.NoError(t, r.SkipThrough(3))
	assert.Equal(t, 0, r.Malformed())

	records := readAll(t, r)
	require.Len(t, records, 2)
	assert.Equal(t, int64(4), records[0].Index)
	assert.Equal(t, int64(4), records[0].Row.ID)
	assert.Equal(t, int64(5), records[1].Index)
	assert.Error(t, records[1].Err)
	assert.Equal(t, 1, r.Malformed())
}

func TestReader_SkipThroughPastEnd(t *testing.T) {
	r, err := NewReader("anime.csv", strings.NewReader(datasetHeader+"x\n"), Options{})
	require.NoError(t, err)

	require.NoError(t, r.SkipThrough(10))
	_, err = r.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestReader_GenreDelimiterAndDedup(t *testing.T) {
	src := "id,name,synopsis,type,episodes,aired,status,duration,rating,score,image_url,genres,source\n" +
		"7,X,s,TV,1,a,st,d,r,1,u, Drama | Drama || Romance ,Novel\n"

	r, err := NewReader("anime.csv", strings.NewReader(src), Options{GenreDelimiter: "|"})
	require.NoError(t, err)

	records := readAll(t, r)
	require.Len(t, records, 1)
	assert.Equal(t, []string{"Drama", "Romance"}, records[0].Row.Genres)
}

func TestOpen_MissingFile(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "nope.csv"), Options{})
	assert.True(t, apperrors.IsFatal(err))
}

func TestOpen_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "anime.csv")
	require.NoError(t, os.WriteFile(path, []byte(datasetHeader+"1,A,s,TV,1,a,st,d,r,1,u,Action,Manga\n"), 0o644))

	r, err := Open(path, Options{})
	require.NoError(t, err)
	defer r.Close()

	records := readAll(t, r)
	require.Len(t, records, 1)
	assert.Equal(t, "A", records[0].Row.Name)
}
