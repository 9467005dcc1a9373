package ingest

import (
	"context"

	"animebot/backend/internal/graph"
)

// ExistenceFilter answers whether an anime is already in the graph, so the
// pipeline can skip it before paying for an embedding.
type ExistenceFilter struct {
	store graph.Store
}

// NewExistenceFilter creates a filter over store.
func NewExistenceFilter(store graph.Store) *ExistenceFilter {
	return &ExistenceFilter{store: store}
}

// Exists reports whether an Anime vertex with animeID exists.
func (f *ExistenceFilter) Exists(ctx context.Context, animeID int64) (bool, error) {
	return f.store.VertexExists(ctx, graph.LabelAnime, animeID)
}
