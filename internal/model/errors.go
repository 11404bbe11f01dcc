// Package model defines the signed record types that flow through every
// component of a SynapseNet node: grains, links, credits, and peer records,
// plus the canonical encoding used to hash and sign them.
package model

import (
	"errors"
	"fmt"
)

// Kind classifies an error the way the engine's components distinguish
// failures from one another (see the error-kind table in §7).
type Kind int

const (
	KindInvalidInput Kind = iota
	KindEmbedding
	KindSignature
	KindStorage
	KindRateLimited
	KindNetwork
	KindDeadline
	KindConfig
)

func (k Kind) String() string {
	switch k {
	case KindInvalidInput:
		return "invalid_input"
	case KindEmbedding:
		return "embedding"
	case KindSignature:
		return "signature"
	case KindStorage:
		return "storage"
	case KindRateLimited:
		return "rate_limited"
	case KindNetwork:
		return "network"
	case KindDeadline:
		return "deadline"
	case KindConfig:
		return "config"
	default:
		return "unknown"
	}
}

// Error wraps a Kind with context, mirroring the teacher's ValidationError
// idiom but generalized across all error kinds the engine distinguishes.
type Error struct {
	Kind    Kind
	Field   string
	Wrapped error
}

func (e *Error) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Field, e.Wrapped)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Wrapped)
}

func (e *Error) Unwrap() error { return e.Wrapped }

// New creates an Error of the given kind.
func New(kind Kind, field string, wrapped error) *Error {
	return &Error{Kind: kind, Field: field, Wrapped: wrapped}
}

// Is reports whether err carries the given Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// Sentinel errors referenced directly by components and tests.
var (
	ErrEmptyText           = errors.New("model: empty text")
	ErrDimensionMismatch   = errors.New("model: vector dimension mismatch")
	ErrNonFiniteVector     = errors.New("model: vector contains non-finite values")
	ErrZeroVector          = errors.New("model: vector has zero norm")
	ErrBadSignature        = errors.New("model: signature verification failed")
	ErrUnknownGrain        = errors.New("model: grain not found")
	ErrEndpointMissing     = errors.New("model: link endpoint not found locally")
	ErrWeightOutOfRange    = errors.New("model: link weight must be in [0,1]")
	ErrNegativeCredit      = errors.New("model: credit amount must be positive")
	ErrMigrationGap        = errors.New("model: migration version gap")
)
