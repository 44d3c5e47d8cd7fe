// Package errs holds the error kinds shared by the dispatch services.
// Every failure a caller is expected to branch on wraps one of the sentinels
// below, so errors.Is keeps working through errors.Wrap chains.
package errs

import (
	"errors"
	"fmt"
)

var (
	// ErrNotApplied marks a guarded transition whose condition did not match (0 rows affected).
	ErrNotApplied = errors.New("not applied")
	ErrNotFound   = errors.New("not found")
	ErrInvalid    = errors.New("invalid argument")
	ErrForbidden  = errors.New("forbidden")
	// ErrUpstream marks a failure of an external provider that could not be degraded around.
	ErrUpstream = errors.New("upstream unavailable")
)

type Error struct {
	Kind   error
	Detail string
}

func (e *Error) Error() string {
	if e.Detail == "" {
		return e.Kind.Error()
	}
	return fmt.Sprintf("%s: %s", e.Kind.Error(), e.Detail)
}

func (e *Error) Unwrap() error {
	return e.Kind
}

func NotApplied(format string, args ...any) error {
	return &Error{Kind: ErrNotApplied, Detail: fmt.Sprintf(format, args...)}
}

func NotFound(entity string, id any) error {
	return &Error{Kind: ErrNotFound, Detail: fmt.Sprintf("%s %v", entity, id)}
}

func Invalid(format string, args ...any) error {
	return &Error{Kind: ErrInvalid, Detail: fmt.Sprintf(format, args...)}
}

func Forbidden(format string, args ...any) error {
	return &Error{Kind: ErrForbidden, Detail: fmt.Sprintf(format, args...)}
}

func Upstream(format string, args ...any) error {
	return &Error{Kind: ErrUpstream, Detail: fmt.Sprintf(format, args...)}
}

// KindOf returns the sentinel err wraps, or nil for unclassified errors.
func KindOf(err error) error {
	for _, k := range []error{ErrNotApplied, ErrNotFound, ErrInvalid, ErrForbidden, ErrUpstream} {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}
