package ingest

import "errors"

var (
	// ErrSourceRequired is returned when a row source is not provided.
	ErrSourceRequired = errors.New("row source required")

	// ErrStoreRequired is returned when a graph store is not provided.
	ErrStoreRequired = errors.New("graph store required")

	// ErrEmbedderRequired is returned when an embedder is not provided.
	ErrEmbedderRequired = errors.New("embedder required")

	// ErrWriterRequired is returned when a batch writer is not provided.
	ErrWriterRequired = errors.New("batch writer required")

	// ErrCheckpointRequired is returned when a checkpoint store is not provided.
	ErrCheckpointRequired = errors.New("checkpoint store required")
)
