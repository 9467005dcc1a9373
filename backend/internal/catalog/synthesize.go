package catalog

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Synthesize renders the descriptive text that is embedded for a row.
// The output depends only on the row, so identical rows always produce
// identical text.
func Synthesize(r Row) string {
	attributes := []string{
		"anime name: " + r.Name + ",",
		"synopsis: " + r.Synopsis + ",",
		"type: " + r.Type + ",",
		"number of episodes: " + r.Episodes + ",",
		"aired: " + r.Aired + ",",
		"status: " + r.Status + ",",
		"source: " + r.Source + ",",
		"average show length: " + r.Duration + ",",
		"anime is rated: " + r.Rating + ",",
		"the anime has a score of: " + r.Score + ",",
		"the genres the anime belongs to: " + strings.Join(r.Genres, ", "),
	}
	return strings.Join(attributes, " ")
}

// TextKey is a stable digest of synthesized text, used to reuse embeddings.
func TextKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
