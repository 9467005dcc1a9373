package errors

import (
	stderrors "errors"
	"fmt"
	"time"
)

// ErrorType represents the category of error
type ErrorType string

const (
	// ErrorTypeSource represents tabular source errors
	ErrorTypeSource ErrorType = "source"
	// ErrorTypeEmbedding represents embedding service errors
	ErrorTypeEmbedding ErrorType = "embedding"
	// ErrorTypeStore represents graph store errors
	ErrorTypeStore ErrorType = "store"
	// ErrorTypeCheckpoint represents checkpoint persistence errors
	ErrorTypeCheckpoint ErrorType = "checkpoint"
	// ErrorTypeConfig represents configuration errors
	ErrorTypeConfig ErrorType = "config"
)

// BaseError is the base error type with common fields
type BaseError struct {
	Type      ErrorType
	Message   string
	Timestamp time.Time
	Err       error // Wrapped error
}

// Error implements the error interface
func (e *BaseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Unwrap returns the wrapped error for error unwrapping
func (e *BaseError) Unwrap() error {
	return e.Err
}

// Kind returns the error category. Typed errors embedding *BaseError inherit it.
func (e *BaseError) Kind() ErrorType {
	return e.Type
}

// NewBaseError creates a new base error
func NewBaseError(errType ErrorType, message string, err error) *BaseError {
	return &BaseError{
		Type:      errType,
		Message:   message,
		Timestamp: time.Now(),
		Err:       err,
	}
}

// Source Errors

// SourceError is returned when the tabular source cannot be read. Row is the
// 1-based data row the error belongs to, or 0 for stream-level failures.
type SourceError struct {
	*BaseError
	Path  string
	Row   int64
	Fatal bool
}

// NewSourceStreamError reports a failure that makes the whole source unusable.
func NewSourceStreamError(path, reason string, err error) *SourceError {
	return &SourceError{
		BaseError: NewBaseError(ErrorTypeSource, fmt.Sprintf("source %s: %s", path, reason), err),
		Path:      path,
		Fatal:     true,
	}
}

// NewSourceRowError reports a single malformed row.
func NewSourceRowError(path string, row int64, err error) *SourceError {
	return &SourceError{
		BaseError: NewBaseError(ErrorTypeSource, fmt.Sprintf("malformed row %d in %s", row, path), err),
		Path:      path,
		Row:       row,
	}
}

// Embedding Errors

// EmbeddingError is returned when embedding a row fails after all attempts.
// It is row-scoped and never fatal.
type EmbeddingError struct {
	*BaseError
	Model     string
	Attempts  int
	Retryable bool
}

func NewEmbeddingError(model string, attempts int, retryable bool, err error) *EmbeddingError {
	return &EmbeddingError{
		BaseError: NewBaseError(ErrorTypeEmbedding, fmt.Sprintf("embedding failed after %d attempts", attempts), err),
		Model:     model,
		Attempts:  attempts,
		Retryable: retryable,
	}
}

// Store Errors

// StoreWriteError is returned when a batch could not be committed.
type StoreWriteError struct {
	*BaseError
	Operations int
	Attempts   int
}

func NewStoreWriteError(operations, attempts int, err error) *StoreWriteError {
	return &StoreWriteError{
		BaseError:  NewBaseError(ErrorTypeStore, fmt.Sprintf("batch of %d operations failed after %d attempts", operations, attempts), err),
		Operations: operations,
		Attempts:   attempts,
	}
}

// ErrStoreConnectionFailed is returned when the graph store is unreachable
type ErrStoreConnectionFailed struct {
	*BaseError
	URI string
}

func NewStoreConnectionFailed(uri string, err error) *ErrStoreConnectionFailed {
	return &ErrStoreConnectionFailed{
		BaseError: NewBaseError(ErrorTypeStore, fmt.Sprintf("failed to connect to Neo4j: %s", uri), err),
		URI:       uri,
	}
}

// Checkpoint Errors

// CheckpointWriteError is returned when progress could not be persisted.
type CheckpointWriteError struct {
	*BaseError
	Path  string
	Index int64
}

func NewCheckpointWriteError(path string, index int64, err error) *CheckpointWriteError {
	return &CheckpointWriteError{
		BaseError: NewBaseError(ErrorTypeCheckpoint, fmt.Sprintf("failed to save checkpoint %d to %s", index, path), err),
		Path:      path,
		Index:     index,
	}
}

// Config Errors

// ErrConfigMissingRequired is returned when a required config value is missing
type ErrConfigMissingRequired struct {
	*BaseError
	Field string
}

func NewConfigMissingRequired(field string) *ErrConfigMissingRequired {
	return &ErrConfigMissingRequired{
		BaseError: NewBaseError(ErrorTypeConfig, fmt.Sprintf("missing required config: %s", field), nil),
		Field:     field,
	}
}

// ErrConfigValidationFailed is returned when configuration validation fails
type ErrConfigValidationFailed struct {
	*BaseError
	Field  string
	Reason string
}

func NewConfigValidationFailed(field, reason string) *ErrConfigValidationFailed {
	return &ErrConfigValidationFailed{
		BaseError: NewBaseError(ErrorTypeConfig, fmt.Sprintf("config validation failed: %s - %s", field, reason), nil),
		Field:     field,
		Reason:    reason,
	}
}

// Helper functions

// IsErrorType checks if an error, or any error it wraps, is of a specific type
func IsErrorType(err error, errType ErrorType) bool {
	var kinded interface{ Kind() ErrorType }
	if stderrors.As(err, &kinded) {
		return kinded.Kind() == errType
	}
	return false
}

// IsFatal reports whether err must stop the run. Row-scoped source and
// embedding errors are recoverable; everything touching the checkpoint's
// trustworthiness is not.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	var srcErr *SourceError
	if stderrors.As(err, &srcErr) {
		return srcErr.Fatal
	}
	var embErr *EmbeddingError
	if stderrors.As(err, &embErr) {
		return false
	}
	return true
}
