package graph

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// MemoryStore is an in-process Store with the same upsert semantics as the
// Neo4j store. It backs dry runs and tests.
type MemoryStore struct {
	mu       sync.RWMutex
	vertices map[string]*memVertex
	edges    map[string]memEdge
	commits  int
}

type memVertex struct {
	ref   VertexRef
	props map[string]any
}

type memEdge struct {
	edge     EdgeType
	from, to VertexRef
}

var (
	_ Store   = (*MemoryStore)(nil)
	_ Counter = (*MemoryStore)(nil)
)

// NewMemoryStore creates an empty in-memory graph.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		vertices: make(map[string]*memVertex),
		edges:    make(map[string]memEdge),
	}
}

func vertexID(ref VertexRef) string {
	return fmt.Sprintf("%s|%v", ref.Label, ref.Key)
}

func edgeID(edge EdgeType, from, to VertexRef) string {
	return string(edge) + "|" + vertexID(from) + "|" + vertexID(to)
}

// VertexExists reports whether a vertex with the natural key exists.
func (m *MemoryStore) VertexExists(ctx context.Context, label Label, key any) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.vertices[vertexID(VertexRef{Label: label, Key: key})]
	return ok, nil
}

// RunTransaction validates every operation before applying any of them, so
// a rejected batch leaves the graph untouched.
func (m *MemoryStore) RunTransaction(ctx context.Context, ops []Operation) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	for _, op := range ops {
		if err := validate(op); err != nil {
			return err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, op := range ops {
		switch op.Kind {
		case OpUpsertVertex:
			m.upsertVertex(op.Vertex, op.Props)
		case OpUpsertEdge:
			m.upsertVertex(op.From, nil)
			m.upsertVertex(op.To, nil)
			m.edges[edgeID(op.Edge, op.From, op.To)] = memEdge{edge: op.Edge, from: op.From, to: op.To}
		}
	}
	m.commits++
	return nil
}

func (m *MemoryStore) upsertVertex(ref VertexRef, props map[string]any) {
	id := vertexID(ref)
	v, ok := m.vertices[id]
	if !ok {
		v = &memVertex{ref: ref, props: make(map[string]any)}
		m.vertices[id] = v
	}
	for k, val := range props {
		v.props[k] = val
	}
}

func validate(op Operation) error {
	switch op.Kind {
	case OpUpsertVertex:
		if op.Vertex.Label == "" || op.Vertex.Key == nil {
			return fmt.Errorf("invalid vertex upsert %s", op)
		}
	case OpUpsertEdge:
		if op.Edge == "" || op.From.Key == nil || op.To.Key == nil {
			return fmt.Errorf("invalid edge upsert %s", op)
		}
	default:
		return fmt.Errorf("unknown operation kind %d", op.Kind)
	}
	return nil
}

// Vertex returns a copy of the vertex's properties.
func (m *MemoryStore) Vertex(label Label, key any) (map[string]any, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.vertices[vertexID(VertexRef{Label: label, Key: key})]
	if !ok {
		return nil, false
	}
	props := make(map[string]any, len(v.props))
	for k, val := range v.props {
		props[k] = val
	}
	return props, true
}

// HasEdge reports whether the edge exists.
func (m *MemoryStore) HasEdge(edge EdgeType, from, to VertexRef) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.edges[edgeID(edge, from, to)]
	return ok
}

// Commits returns how many transactions were applied.
func (m *MemoryStore) Commits() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.commits
}

// CountVertices returns the number of vertices per label.
func (m *MemoryStore) CountVertices(ctx context.Context) (map[Label]int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	counts := make(map[Label]int64, len(Labels))
	for _, label := range Labels {
		counts[label] = 0
	}
	for _, v := range m.vertices {
		counts[v.ref.Label]++
	}
	return counts, nil
}

// CountEdges returns the number of edges per type.
func (m *MemoryStore) CountEdges(ctx context.Context) (map[EdgeType]int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	counts := make(map[EdgeType]int64, len(EdgeTypes))
	for _, edge := range EdgeTypes {
		counts[edge] = 0
	}
	for _, e := range m.edges {
		counts[e.edge]++
	}
	return counts, nil
}

// Snapshot renders the graph as sorted lines, one per vertex and edge, so
// two graphs can be compared for equality.
func (m *MemoryStore) Snapshot() string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	lines := make([]string, 0, len(m.vertices)+len(m.edges))
	for id, v := range m.vertices {
		keys := make([]string, 0, len(v.props))
		for k := range v.props {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		var b strings.Builder
		b.WriteString(id)
		for _, k := range keys {
			fmt.Fprintf(&b, " %s=%v", k, v.props[k])
		}
		lines = append(lines, b.String())
	}
	for id := range m.edges {
		lines = append(lines, id)
	}
	sort.Strings(lines)
	return strings.Join(lines, "\n")
}
