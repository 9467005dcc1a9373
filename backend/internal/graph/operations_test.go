package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOperation_CypherVertex(t *testing.T) {
	op := UpsertVertex(LabelAnime, int64(5), map[string]any{"name": "Bebop"})
	query, params := op.Cypher()

	assert.Equal(t, "MERGE (n:Anime {anime_id: $key}) SET n += $props", query)
	assert.Equal(t, int64(5), params["key"])
	assert.Equal(t, map[string]any{"name": "Bebop"}, params["props"])
}

func TestOperation_CypherVertexWithoutProps(t *testing.T) {
	query, params := UpsertVertex(LabelGenre, "Action", nil).Cypher()

	assert.Equal(t, "MERGE (n:Genre {name: $key})", query)
	assert.NotContains(t, params, "props")
}

func TestOperation_CypherEdge(t *testing.T) {
	op := UpsertEdge(EdgeInGenre, VertexRef{Label: LabelAnime, Key: int64(5)}, VertexRef{Label: LabelGenre, Key: "Action"})
	query, params := op.Cypher()

	assert.Equal(t, "MERGE (a:Anime {anime_id: $from}) MERGE (b:Genre {name: $to}) MERGE (a)-[:IN_GENRE]->(b)", query)
	assert.Equal(t, map[string]any{"from": int64(5), "to": "Action"}, params)
}

func TestLabel_KeyProperty(t *testing.T) {
	assert.Equal(t, "anime_id", LabelAnime.KeyProperty())
	for _, l := range []Label{LabelGenre, LabelSource, LabelType, LabelRating} {
		assert.Equal(t, "name", l.KeyProperty())
	}
}
