package graph

import "context"

// Store is the graph store the pipeline writes to. Implementations must be
// safe for concurrent use: existence reads run on many workers while a
// single writer commits transactions.
type Store interface {
	// VertexExists reports whether a vertex with the natural key exists.
	VertexExists(ctx context.Context, label Label, key any) (bool, error)
	// RunTransaction applies all operations atomically: all or none.
	RunTransaction(ctx context.Context, ops []Operation) error
}

// Counter is implemented by stores that can summarize their contents.
type Counter interface {
	CountVertices(ctx context.Context) (map[Label]int64, error)
	CountEdges(ctx context.Context) (map[EdgeType]int64, error)
}
