package domain

import (
	"errors"
	"fmt"
)

// Error kinds named in the external error taxonomy. Components construct
// the matching wrapper below rather than returning these sentinels bare, so
// callers can both errors.Is against the kind and read the wrapped cause.
var (
	ErrVectorDB   = errors.New("vector store error")
	ErrEmbedding  = errors.New("embedding error")
	ErrLLM        = errors.New("llm error")
	ErrCache      = errors.New("cache error")
	ErrKafka      = errors.New("event bus error")
	ErrDLQ        = errors.New("dead-letter sink error")
	ErrDatabase   = errors.New("database error")
	ErrNotFound   = errors.New("not found")
	ErrValidation = errors.New("validation error")
)

// kindError wraps a taxonomy sentinel with a human-readable cause. All
// seven error kinds share this shape; the helpers below construct one per
// kind.
type kindError struct {
	kind    error
	message string
	wrapped error
}

func (e *kindError) Error() string {
	if e.wrapped != nil {
		return fmt.Sprintf("%s: %s: %v", e.kind, e.message, e.wrapped)
	}
	return fmt.Sprintf("%s: %s", e.kind, e.message)
}

func (e *kindError) Unwrap() []error {
	if e.wrapped != nil {
		return []error{e.kind, e.wrapped}
	}
	return []error{e.kind}
}

func newKindError(kind error, message string, wrapped error) error {
	return &kindError{kind: kind, message: message, wrapped: wrapped}
}

// NewVectorDBError wraps a vector store failure.
func NewVectorDBError(message string, wrapped error) error { return newKindError(ErrVectorDB, message, wrapped) }

// NewEmbeddingError wraps an embedding provider failure.
func NewEmbeddingError(message string, wrapped error) error { return newKindError(ErrEmbedding, message, wrapped) }

// NewLLMError wraps an LLM provider failure.
func NewLLMError(message string, wrapped error) error { return newKindError(ErrLLM, message, wrapped) }

// NewCacheError wraps a cache backend failure.
func NewCacheError(message string, wrapped error) error { return newKindError(ErrCache, message, wrapped) }

// NewKafkaError wraps an event bus failure.
func NewKafkaError(message string, wrapped error) error { return newKindError(ErrKafka, message, wrapped) }

// NewDLQError wraps a dead-letter sink failure.
func NewDLQError(message string, wrapped error) error { return newKindError(ErrDLQ, message, wrapped) }

// NewDatabaseError wraps a relational store failure.
func NewDatabaseError(message string, wrapped error) error { return newKindError(ErrDatabase, message, wrapped) }

// ValidationError reports a single field that failed input validation.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// NewValidationError creates a ValidationError for the given field.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}
