package catalog

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	apperrors "animebot/backend/pkg/errors"
)

// Column names after header normalization.
const (
	ColID       = "id"
	ColName     = "name"
	ColSynopsis = "synopsis"
	ColType     = "type"
	ColEpisodes = "episodes"
	ColAired    = "aired"
	ColStatus   = "status"
	ColDuration = "duration"
	ColRating   = "rating"
	ColScore    = "score"
	ColImageURL = "image_url"
	ColGenres   = "genres"
	ColSource   = "source"
)

var requiredColumns = []string{
	ColID, ColName, ColSynopsis, ColType, ColEpisodes, ColAired, ColStatus,
	ColDuration, ColRating, ColScore, ColImageURL, ColGenres, ColSource,
}

// headerAliases maps spellings used by the published anime dataset.
var headerAliases = map[string]string{
	"anime_id": ColID,
	"imageurl": ColImageURL,
	"image":    ColImageURL,
	"genre":    ColGenres,
}

// Options tunes how the source is parsed.
type Options struct {
	// GenreDelimiter separates entries of the genres column. Default ",".
	GenreDelimiter string
	// MaxMalformedRows aborts the stream once more rows than this fail to
	// parse. Zero never aborts. Rows discarded by SkipThrough are not parsed
	// and never count.
	MaxMalformedRows int
}

// Record is one data row of the source. Index is the 1-based data row
// number. Err is set, and Row is zero, when the row could not be parsed.
type Record struct {
	Index int64
	Row   Row
	Err   error
}

// Reader streams rows from a CSV source. It is not safe for concurrent use.
type Reader struct {
	path      string
	csv       *csv.Reader
	closer    io.Closer
	columns   map[string]int
	width     int
	opts      Options
	index     int64
	malformed int
}

// Open opens the CSV file at path and reads its header.
func Open(path string, opts Options) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, apperrors.NewSourceStreamError(path, "cannot open", err)
	}
	r, err := NewReader(path, f, opts)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	r.closer = f
	return r, nil
}

// NewReader reads CSV from src. name is only used in error messages.
func NewReader(name string, src io.Reader, opts Options) (*Reader, error) {
	if opts.GenreDelimiter == "" {
		opts.GenreDelimiter = ","
	}

	cr := csv.NewReader(src)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.ReuseRecord = false

	header, err := cr.Read()
	if err != nil {
		return nil, apperrors.NewSourceStreamError(name, "cannot read header", err)
	}

	columns := make(map[string]int, len(header))
	for i, h := range header {
		key := normalizeHeader(h)
		if alias, ok := headerAliases[key]; ok {
			key = alias
		}
		if _, dup := columns[key]; !dup {
			columns[key] = i
		}
	}

	var missing []string
	for _, col := range requiredColumns {
		if _, ok := columns[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, apperrors.NewSourceStreamError(name,
			fmt.Sprintf("missing columns: %s", strings.Join(missing, ", ")), nil)
	}

	return &Reader{
		path:    name,
		csv:     cr,
		columns: columns,
		width:   len(header),
		opts:    opts,
	}, nil
}

// Next returns the next data row. It returns io.EOF after the last row and a
// fatal *errors.SourceError when the stream cannot continue. Malformed rows
// are returned as records with Err set.
func (r *Reader) Next() (Record, error) {
	fields, err := r.csv.Read()
	if errors.Is(err, io.EOF) {
		return Record{}, io.EOF
	}

	r.index++
	var parseErr *csv.ParseError
	if err != nil && !errors.As(err, &parseErr) {
		return Record{}, apperrors.NewSourceStreamError(r.path, fmt.Sprintf("read failed at row %d", r.index), err)
	}

	var row Row
	if err == nil {
		row, err = r.parse(fields)
	}
	if err != nil {
		r.malformed++
		if r.opts.MaxMalformedRows > 0 && r.malformed > r.opts.MaxMalformedRows {
			return Record{}, apperrors.NewSourceStreamError(r.path,
				fmt.Sprintf("more than %d malformed rows", r.opts.MaxMalformedRows), err)
		}
		return Record{Index: r.index, Err: apperrors.NewSourceRowError(r.path, r.index, err)}, nil
	}

	return Record{Index: r.index, Row: row}, nil
}

// SkipThrough discards data rows up to and including index without parsing
// them. It is used to resume after a checkpoint; the next record returned by
// Next has Index index+1. Reaching EOF early is not an error.
func (r *Reader) SkipThrough(index int64) error {
	for r.index < index {
		_, err := r.csv.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		r.index++
		var parseErr *csv.ParseError
		if err != nil && !errors.As(err, &parseErr) {
			return apperrors.NewSourceStreamError(r.path, fmt.Sprintf("read failed at row %d", r.index), err)
		}
	}
	return nil
}

// Malformed returns how many rows failed to parse so far.
func (r *Reader) Malformed() int {
	return r.malformed
}

// Close releases the underlying file, if any.
func (r *Reader) Close() error {
	if r.closer == nil {
		return nil
	}
	return r.closer.Close()
}

func (r *Reader) parse(fields []string) (Row, error) {
	if len(fields) != r.width {
		return Row{}, fmt.Errorf("expected %d fields, got %d", r.width, len(fields))
	}
	get := func(col string) string {
		return strings.TrimSpace(fields[r.columns[col]])
	}

	rawID := get(ColID)
	id, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil {
		return Row{}, fmt.Errorf("invalid id %q: %w", rawID, err)
	}

	return Row{
		ID:       id,
		Name:     get(ColName),
		Synopsis: get(ColSynopsis),
		Type:     get(ColType),
		Episodes: get(ColEpisodes),
		Aired:    get(ColAired),
		Status:   get(ColStatus),
		Duration: get(ColDuration),
		Rating:   get(ColRating),
		Score:    get(ColScore),
		ImageURL: get(ColImageURL),
		Genres:   splitGenres(fields[r.columns[ColGenres]], r.opts.GenreDelimiter),
		Source:   get(ColSource),
	}, nil
}

func normalizeHeader(h string) string {
	h = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
	return strings.NewReplacer(" ", "_", "-", "_").Replace(h)
}
