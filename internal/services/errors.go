// Package services implements the request lifecycle of the marketplace:
// posting requests, bidding, accepting, completing, reviewing and chatting,
// plus the profile and identity operations the HTTP layer needs.
//
// This file defines the error taxonomy. Every operation returns either nil,
// a *LifecycleError, or an error that wraps one, so handlers can map
// failures to transport codes with errors.Is against the Err* sentinels.
package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/tbourn/go-marketplace-backend/internal/repo"
)

// Kind classifies a lifecycle failure.
type Kind string

const (
	KindValidation           Kind = "validation"
	KindPrecondition         Kind = "precondition_failed"
	KindConcurrentAcceptance Kind = "concurrent_acceptance"
	KindPartialWrite         Kind = "partial_write"
	KindTransport            Kind = "transport"
	KindNotFound             Kind = "not_found"
	KindForbidden            Kind = "forbidden"
	KindConflict             Kind = "conflict"
	KindUnauthorized         Kind = "unauthorized"
)

// Kind sentinels. errors.Is(err, ErrX) holds for any *LifecycleError of the
// matching kind.
var (
	// ErrValidation indicates malformed or out-of-range input.
	ErrValidation = errors.New("validation failed")

	// ErrPrecondition indicates the entity is not in a state that allows the
	// operation (wrong status, wrong owner, already reviewed).
	ErrPrecondition = errors.New("precondition failed")

	// ErrConcurrentAcceptance is returned to the loser of two simultaneous
	// acceptances on the same request.
	ErrConcurrentAcceptance = errors.New("another offer was accepted concurrently")

	// ErrPartialWrite means the primary write succeeded but a follow-up step
	// did not, even after retries.
	ErrPartialWrite = errors.New("partial write")

	// ErrTransport indicates the store or media backend was unreachable.
	ErrTransport = errors.New("transport error")

	ErrNotFound     = errors.New("not found")
	ErrForbidden    = errors.New("forbidden")
	ErrConflict     = errors.New("conflict")
	ErrUnauthorized = errors.New("unauthorized")
)

var sentinels = map[Kind]error{
	KindValidation:           ErrValidation,
	KindPrecondition:         ErrPrecondition,
	KindConcurrentAcceptance: ErrConcurrentAcceptance,
	KindPartialWrite:         ErrPartialWrite,
	KindTransport:            ErrTransport,
	KindNotFound:             ErrNotFound,
	KindForbidden:            ErrForbidden,
	KindConflict:             ErrConflict,
	KindUnauthorized:         ErrUnauthorized,
}

// LifecycleError is the typed error returned by service operations.
type LifecycleError struct {
	Kind Kind
	Op   string // operation name, e.g. "AcceptOffer"
	Msg  string // client-safe description
	Err  error  // underlying cause, may be nil
}

func (e *LifecycleError) Error() string {
	s := e.Op + ": " + e.Msg
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *LifecycleError) Unwrap() error { return e.Err }

// Is matches the sentinel of e.Kind.
func (e *LifecycleError) Is(target error) bool {
	return sentinels[e.Kind] == target
}

// KindOf returns the kind of the first LifecycleError in err's chain, or ""
// when there is none.
func KindOf(err error) Kind {
	var le *LifecycleError
	if errors.As(err, &le) {
		return le.Kind
	}
	return ""
}

// MessageOf returns the client-safe message of err, falling back to the
// sentinel text of its kind.
func MessageOf(err error) string {
	var le *LifecycleError
	if errors.As(err, &le) {
		if le.Msg != "" {
			return le.Msg
		}
		if s, ok := sentinels[le.Kind]; ok {
			return s.Error()
		}
	}
	return "internal error"
}

func newErr(kind Kind, op, msg string, cause error) *LifecycleError {
	return &LifecycleError{Kind: kind, Op: op, Msg: msg, Err: cause}
}

func invalid(op, format string, args ...any) *LifecycleError {
	return newErr(KindValidation, op, fmt.Sprintf(format, args...), nil)
}

func precondition(op, format string, args ...any) *LifecycleError {
	return newErr(KindPrecondition, op, fmt.Sprintf(format, args...), nil)
}

func notFound(op, what string) *LifecycleError {
	return newErr(KindNotFound, op, what+" not found", nil)
}

func forbidden(op, msg string) *LifecycleError {
	return newErr(KindForbidden, op, msg, nil)
}

// storeErr classifies an error returned by the persistence layer. Errors
// that are already typed pass through; missing rows become NotFound; every
// other failure is a TransportError.
func storeErr(op, what string, err error) error {
	if err == nil {
		return nil
	}
	var le *LifecycleError
	if errors.As(err, &le) {
		return err
	}
	if repo.IsNotFound(err) {
		return newErr(KindNotFound, op, what+" not found", err)
	}
	if repo.IsDuplicate(err) {
		return newErr(KindConflict, op, what+" already exists", err)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return newErr(KindTransport, op, "operation canceled", err)
	}
	return newErr(KindTransport, op, "store unavailable", err)
}
