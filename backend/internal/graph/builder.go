package graph

import (
	"strings"

	"animebot/backend/internal/catalog"
)

// BuildRowOperations returns the upserts for one row, in order: the Anime
// vertex, then each genre with its IN_GENRE edge, then source, type and
// rating with their edges. Empty source, type or rating values are skipped.
func BuildRowOperations(row catalog.Row, embedding []float32) []Operation {
	anime := VertexRef{Label: LabelAnime, Key: row.ID}
	ops := make([]Operation, 0, OperationCount(row))

	ops = append(ops, UpsertVertex(LabelAnime, row.ID, animeProps(row, embedding)))

	for _, genre := range row.Genres {
		ops = appendLink(ops, anime, LabelGenre, genre, EdgeInGenre)
	}
	ops = appendLink(ops, anime, LabelSource, row.Source, EdgeSourcedFrom)
	ops = appendLink(ops, anime, LabelType, row.Type, EdgeHasType)
	ops = appendLink(ops, anime, LabelRating, row.Rating, EdgeRatedAs)

	return ops
}

// OperationCount is len(BuildRowOperations(row, ...)) without building them.
func OperationCount(row catalog.Row) int {
	n := 1
	for _, v := range append([]string{row.Source, row.Type, row.Rating}, row.Genres...) {
		if strings.TrimSpace(v) != "" {
			n += 2
		}
	}
	return n
}

func appendLink(ops []Operation, anime VertexRef, label Label, name string, edge EdgeType) []Operation {
	name = strings.TrimSpace(name)
	if name == "" {
		return ops
	}
	target := VertexRef{Label: label, Key: name}
	return append(ops,
		UpsertVertex(label, name, nil),
		UpsertEdge(edge, anime, target),
	)
}

func animeProps(row catalog.Row, embedding []float32) map[string]any {
	props := map[string]any{
		"name":      row.Name,
		"synopsis":  row.Synopsis,
		"type":      row.Type,
		"aired":     row.Aired,
		"status":    row.Status,
		"duration":  row.Duration,
		"rating":    row.Rating,
		"image_url": row.ImageURL,
		"source":    row.Source,
		"genres":    append([]string(nil), row.Genres...),
	}
	if n, ok := row.EpisodeCount(); ok {
		props["no_episodes"] = n
	}
	if s, ok := row.ScoreValue(); ok {
		props["score"] = s
	}
	if len(embedding) > 0 {
		vec := make([]float64, len(embedding))
		for i, v := range embedding {
			vec[i] = float64(v)
		}
		props["embedding"] = vec
	}
	return props
}
