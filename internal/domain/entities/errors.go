package entities

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures of the RAG core.
type ErrorKind int

const (
	// KindStorage: ledger or history file cannot be read or written.
	KindStorage ErrorKind = iota + 1
	// KindIngestion: embedding or index write failed mid-batch.
	KindIngestion
	// KindRetrieval: vector index query failed.
	KindRetrieval
	// KindCompletion: chat completion failed or returned garbage.
	KindCompletion
	// KindDeserialization: a persisted history record is unreadable.
	KindDeserialization
)

func (k ErrorKind) String() string {
	switch k {
	case KindStorage:
		return "storage"
	case KindIngestion:
		return "ingestion"
	case KindRetrieval:
		return "retrieval"
	case KindCompletion:
		return "completion"
	case KindDeserialization:
		return "deserialization"
	default:
		return "unknown"
	}
}

// Error is the typed error returned across the core.
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

// NewError wraps err with a kind and the operation that failed.
func NewError(kind ErrorKind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s error: %s", e.Kind, e.Op)
	}
	return fmt.Sprintf("%s error: %s: %v", e.Kind, e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// IsKind reports whether any error in err's chain is an *Error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == kind
}
