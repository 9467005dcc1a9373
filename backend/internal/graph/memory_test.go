package graph

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_RejectsBatchAtomically(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	ops := []Operation{
		UpsertVertex(LabelGenre, "Action", nil),
		{Kind: OpUpsertEdge, Edge: EdgeInGenre},
	}

	require.Error(t, store.RunTransaction(ctx, ops))

	exists, err := store.VertexExists(ctx, LabelGenre, "Action")
	require.NoError(t, err)
	assert.False(t, exists, "no operation of a rejected batch may be applied")
	assert.Equal(t, 0, store.Commits())
}

func TestMemoryStore_PropsMerge(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	require.NoError(t, store.RunTransaction(ctx, []Operation{
		UpsertVertex(LabelAnime, int64(1), map[string]any{"name": "A", "score": 7.0}),
	}))
	require.NoError(t, store.RunTransaction(ctx, []Operation{
		UpsertVertex(LabelAnime, int64(1), map[string]any{"score": 8.0}),
	}))

	props, ok := store.Vertex(LabelAnime, int64(1))
	require.True(t, ok)
	assert.Equal(t, "A", props["name"])
	assert.Equal(t, 8.0, props["score"])

	counts, err := store.CountVertices(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts[LabelAnime])
}

func TestMemoryStore_EdgeDedup(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	anime := VertexRef{Label: LabelAnime, Key: int64(1)}
	genre := VertexRef{Label: LabelGenre, Key: "Action"}

	for i := 0; i < 3; i++ {
		require.NoError(t, store.RunTransaction(ctx, []Operation{UpsertEdge(EdgeInGenre, anime, genre)}))
	}

	assert.True(t, store.HasEdge(EdgeInGenre, anime, genre))
	edges, _ := store.CountEdges(ctx)
	assert.Equal(t, int64(1), edges[EdgeInGenre])
}

func TestMemoryStore_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	store := NewMemoryStore()
	assert.ErrorIs(t, store.RunTransaction(ctx, []Operation{UpsertVertex(LabelType, "TV", nil)}), context.Canceled)
}
