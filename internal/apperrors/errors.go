// Package apperrors defines the runtime-wide error taxonomy used across the
// node, graph, executor, engine, memory, and blueprint packages.
package apperrors

import (
	"errors"
	"fmt"
)

// Kind classifies an error into one of the categories the engine's failure
// policy and the external interfaces reason about.
type Kind string

const (
	KindValidation           Kind = "Validation"
	KindNotFound             Kind = "NotFound"
	KindPreconditionRequired Kind = "PreconditionRequired"
	KindConflict             Kind = "Conflict"
	KindTimeout              Kind = "Timeout"
	KindTokenBudget          Kind = "TokenBudget"
	KindDepthExceeded        Kind = "DepthExceeded"
	KindCancelled            Kind = "Cancelled"
	KindUpstream             Kind = "Upstream"
	KindInternal             Kind = "Internal"
	KindDimensionMismatch    Kind = "DimensionMismatch"
)

// Error wraps an underlying cause with a Kind, the operation that failed, and
// the node (if any) it failed on.
type Error struct {
	Kind   Kind
	Op     string
	NodeID string
	Err    error
}

func (e *Error) Error() string {
	if e.NodeID != "" {
		return fmt.Sprintf("%s: node %s: %s: %v", e.Op, e.NodeID, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error with the same Kind, so callers can
// do errors.Is(err, apperrors.ErrConflict) style checks via the sentinels
// below, or compare kinds directly with KindOf.
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return e.Kind == other.Kind
	}
	return false
}

// New constructs an *Error for the given kind/op/cause.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// NewNode constructs an *Error for the given kind/op/node/cause.
func NewNode(kind Kind, op, nodeID string, err error) *Error {
	return &Error{Kind: kind, Op: op, NodeID: nodeID, Err: err}
}

// KindOf extracts the Kind of err if it (or something it wraps) is an
// *Error, otherwise returns KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsRetriable reports whether an error's kind is one the executor dispatch
// pipeline should retry, per spec.md §4.3's retry classification: transient
// IO, rate-limit, 5xx, and timeout are retriable; validation, depth/token
// ceilings, and cancellation are not.
func IsRetriable(err error) bool {
	switch KindOf(err) {
	case KindTimeout, KindUpstream:
		return true
	case KindValidation, KindTokenBudget, KindDepthExceeded, KindCancelled,
		KindNotFound, KindPreconditionRequired, KindConflict:
		return false
	default:
		return false
	}
}

// Sentinel values for errors.Is comparisons against a bare Kind without a
// wrapped cause, mirroring the teacher's pkg/models/errors.go sentinel style.
var (
	ErrValidation           = &Error{Kind: KindValidation, Err: errors.New("validation error")}
	ErrNotFound             = &Error{Kind: KindNotFound, Err: errors.New("not found")}
	ErrPreconditionRequired = &Error{Kind: KindPreconditionRequired, Err: errors.New("precondition required")}
	ErrConflict             = &Error{Kind: KindConflict, Err: errors.New("conflict")}
	ErrTimeout              = &Error{Kind: KindTimeout, Err: errors.New("timeout")}
	ErrTokenBudget          = &Error{Kind: KindTokenBudget, Err: errors.New("token budget exceeded")}
	ErrDepthExceeded        = &Error{Kind: KindDepthExceeded, Err: errors.New("depth ceiling exceeded")}
	ErrCancelled            = &Error{Kind: KindCancelled, Err: errors.New("cancelled")}
	ErrUpstream             = &Error{Kind: KindUpstream, Err: errors.New("upstream executor failure")}
	ErrInternal             = &Error{Kind: KindInternal, Err: errors.New("internal error")}
	ErrDimensionMismatch    = &Error{Kind: KindDimensionMismatch, Err: errors.New("embedding dimension mismatch")}
)
