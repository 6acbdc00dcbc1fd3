package firestore

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type errorKind int

const (
	kindUnknown errorKind = iota
	kindNotFound
	kindConflict
	kindUnavailable
)

// Error carries repository semantics for a Firestore failure so callers can
// classify without importing grpc codes.
type Error struct {
	op   string
	kind errorKind
	err  error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.op != "" {
		return fmt.Sprintf("%s: %v", e.op, e.err)
	}
	return e.err.Error()
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.err
}

// IsNotFound reports whether err represents a missing document.
func IsNotFound(err error) bool {
	var fe *Error
	return errors.As(err, &fe) && fe.kind == kindNotFound
}

// IsConflict reports whether err represents a lost concurrent update.
func IsConflict(err error) bool {
	var fe *Error
	return errors.As(err, &fe) && fe.kind == kindConflict
}

// IsUnavailable reports whether err represents a transient backend outage.
func IsUnavailable(err error) bool {
	var fe *Error
	return errors.As(err, &fe) && fe.kind == kindUnavailable
}

// WrapError classifies a Firestore error by its grpc status code. Context
// cancellations pass through untouched so callers can match on them.
func WrapError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var fe *Error
	if errors.As(err, &fe) {
		return err
	}

	wrapped := &Error{op: op, err: err}
	switch status.Code(err) {
	case codes.Canceled:
		return context.Canceled
	case codes.DeadlineExceeded:
		return context.DeadlineExceeded
	case codes.NotFound:
		wrapped.kind = kindNotFound
	case codes.AlreadyExists, codes.FailedPrecondition, codes.Aborted, codes.OutOfRange:
		wrapped.kind = kindConflict
	case codes.Unavailable, codes.ResourceExhausted, codes.Internal:
		wrapped.kind = kindUnavailable
	}
	return wrapped
}
