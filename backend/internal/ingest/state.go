package ingest

// RowState is the lifecycle position of one source row.
//
//	Pending -> Skipped
//	Pending -> Embedding -> Committed
//	Pending -> Embedding -> Failed
//
// Skipped, Committed and Failed are final.
type RowState int

const (
	StatePending RowState = iota
	StateSkipped
	StateEmbedding
	StateCommitted
	StateFailed
)

func (s RowState) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateSkipped:
		return "skipped"
	case StateEmbedding:
		return "embedding"
	case StateCommitted:
		return "committed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Final reports whether the state can no longer change.
func (s RowState) Final() bool {
	return s == StateSkipped || s == StateCommitted || s == StateFailed
}
