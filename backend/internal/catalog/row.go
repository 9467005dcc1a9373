package catalog

import (
	"strconv"
	"strings"
)

// Row is one catalog item as read from the source. Values are kept as they
// appear in the source so that text synthesis stays byte-for-byte stable.
type Row struct {
	ID       int64    `json:"id"`
	Name     string   `json:"name"`
	Synopsis string   `json:"synopsis"`
	Type     string   `json:"type"`
	Episodes string   `json:"episodes"`
	Aired    string   `json:"aired"`
	Status   string   `json:"status"`
	Duration string   `json:"duration"`
	Rating   string   `json:"rating"`
	Score    string   `json:"score"`
	ImageURL string   `json:"image_url"`
	Genres   []string `json:"genres"`
	Source   string   `json:"source"`
}

// EpisodeCount returns the episode count when the source value is numeric.
func (r Row) EpisodeCount() (int64, bool) {
	v := strings.TrimSpace(r.Episodes)
	if v == "" {
		return 0, false
	}
	if n, err := strconv.ParseInt(v, 10, 64); err == nil {
		return n, true
	}
	// pandas exports integer columns with missing values as floats ("12.0")
	if f, err := strconv.ParseFloat(v, 64); err == nil && f == float64(int64(f)) {
		return int64(f), true
	}
	return 0, false
}

// ScoreValue returns the score when the source value is numeric.
func (r Row) ScoreValue() (float64, bool) {
	f, err := strconv.ParseFloat(strings.TrimSpace(r.Score), 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// splitGenres turns a delimiter-joined genre list into an ordered set:
// entries are trimmed, blanks dropped, and repeats keep their first position.
func splitGenres(raw, delimiter string) []string {
	if strings.TrimSpace(raw) == "" {
		return []string{}
	}
	parts := strings.Split(raw, delimiter)
	genres := make([]string, 0, len(parts))
	seen := make(map[string]bool, len(parts))
	for _, part := range parts {
		g := strings.TrimSpace(part)
		if g == "" || seen[g] {
			continue
		}
		seen[g] = true
		genres = append(genres, g)
	}
	return genres
}
