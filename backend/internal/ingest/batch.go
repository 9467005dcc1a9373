package ingest

import "animebot/backend/internal/graph"

// batch accumulates whole rows of operations up to a size bound.
type batch struct {
	limit int
	ops   []graph.Operation
	rows  []rowResult
	ids   map[int64]struct{}
}

func newBatch(limit int) *batch {
	return &batch{
		limit: limit,
		ops:   make([]graph.Operation, 0, limit),
		ids:   make(map[int64]struct{}),
	}
}

// fits reports whether n more operations stay within the limit.
func (b *batch) fits(n int) bool {
	return len(b.ops)+n <= b.limit
}

// add appends the row's operations. It reports whether a row with the same
// anime id is already in the batch.
func (b *batch) add(res rowResult) bool {
	b.ops = append(b.ops, res.ops...)
	res.ops = nil
	b.rows = append(b.rows, res)
	_, dup := b.ids[res.row.ID]
	b.ids[res.row.ID] = struct{}{}
	return dup
}

func (b *batch) full() bool {
	return len(b.ops) >= b.limit
}

func (b *batch) empty() bool {
	return len(b.rows) == 0
}

// take returns the pending operations and rows, and resets the batch.
func (b *batch) take() ([]graph.Operation, []rowResult) {
	ops, rows := b.ops, b.rows
	b.ops = make([]graph.Operation, 0, b.limit)
	b.rows = nil
	b.ids = make(map[int64]struct{})
	return ops, rows
}
