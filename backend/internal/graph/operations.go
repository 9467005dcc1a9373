package graph

import (
	"fmt"
	"strings"
)

// Label is a vertex label in the catalog graph.
type Label string

const (
	LabelAnime  Label = "Anime"
	LabelGenre  Label = "Genre"
	LabelSource Label = "Source"
	LabelType   Label = "Type"
	LabelRating Label = "Rating"
)

// Labels lists every vertex label the pipeline writes.
var Labels = []Label{LabelAnime, LabelGenre, LabelSource, LabelType, LabelRating}

// KeyProperty is the property holding the vertex's natural key.
func (l Label) KeyProperty() string {
	if l == LabelAnime {
		return "anime_id"
	}
	return "name"
}

// EdgeType is a relationship type. All edges start at an Anime vertex.
type EdgeType string

const (
	EdgeInGenre     EdgeType = "IN_GENRE"
	EdgeSourcedFrom EdgeType = "SOURCED_FROM"
	EdgeHasType     EdgeType = "HAS_TYPE"
	EdgeRatedAs     EdgeType = "RATED_AS"
)

// EdgeTypes lists every relationship type the pipeline writes.
var EdgeTypes = []EdgeType{EdgeInGenre, EdgeSourcedFrom, EdgeHasType, EdgeRatedAs}

// VertexRef identifies a vertex by label and natural key.
type VertexRef struct {
	Label Label
	Key   any
}

func (v VertexRef) String() string {
	return fmt.Sprintf("%s(%v)", v.Label, v.Key)
}

// OpKind distinguishes vertex and edge upserts.
type OpKind int

const (
	OpUpsertVertex OpKind = iota
	OpUpsertEdge
)

// Operation is a single idempotent upsert. Applying it twice leaves the
// graph as applying it once.
type Operation struct {
	Kind OpKind

	// Vertex upserts
	Vertex VertexRef
	Props  map[string]any

	// Edge upserts
	Edge EdgeType
	From VertexRef
	To   VertexRef
}

// UpsertVertex builds a vertex upsert. props are set on every application.
func UpsertVertex(label Label, key any, props map[string]any) Operation {
	return Operation{Kind: OpUpsertVertex, Vertex: VertexRef{Label: label, Key: key}, Props: props}
}

// UpsertEdge builds an edge upsert between two vertices.
func UpsertEdge(edge EdgeType, from, to VertexRef) Operation {
	return Operation{Kind: OpUpsertEdge, Edge: edge, From: from, To: to}
}

func (o Operation) String() string {
	if o.Kind == OpUpsertEdge {
		return fmt.Sprintf("%s-[:%s]->%s", o.From, o.Edge, o.To)
	}
	return o.Vertex.String()
}

// Cypher renders the operation as a parameterized Cypher statement.
// Labels and relationship types come from the constants above and are never
// user input, so interpolating them is safe.
func (o Operation) Cypher() (string, map[string]any) {
	switch o.Kind {
	case OpUpsertEdge:
		query := fmt.Sprintf(
			"MERGE (a:%s {%s: $from}) MERGE (b:%s {%s: $to}) MERGE (a)-[:%s]->(b)",
			o.From.Label, o.From.Label.KeyProperty(),
			o.To.Label, o.To.Label.KeyProperty(),
			o.Edge,
		)
		return query, map[string]any{"from": o.From.Key, "to": o.To.Key}
	default:
		var b strings.Builder
		fmt.Fprintf(&b, "MERGE (n:%s {%s: $key})", o.Vertex.Label, o.Vertex.Label.KeyProperty())
		params := map[string]any{"key": o.Vertex.Key}
		if len(o.Props) > 0 {
			b.WriteString(" SET n += $props")
			params["props"] = o.Props
		}
		return b.String(), params
	}
}
