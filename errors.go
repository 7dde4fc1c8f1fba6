package ssi

import (
	"fmt"

	"github.com/pkg/errors"
)

// ParsingError is a genuinely fatal parse failure: it is not swallowed by
// ordered choice.
type ParsingError struct {
	Message string
	Span    Span
}

func (e ParsingError) Error() string { return fmt.Sprintf("%s @ %s", e.Message, e.Span) }

// backtrackingError describes an alternative that didn't match. The PEG
// combinators report a non-match through their bool result and never
// construct it.
type backtrackingError struct {
	Message string
	Span    Span
}

func (e backtrackingError) Error() string { return fmt.Sprintf("%s @ %s", e.Message, e.Span) }

func isThrown(err error) bool {
	_, ok := err.(ParsingError)
	return ok
}

// InvariantError marks a broken-invariant fatal condition: memory-tree
// sibling order violated, address mismatch, and
// similar conditions that should be impossible if the engine is correct.
// Wrapped with github.com/pkg/errors so the caller's log line carries a
// stack trace pointing at the offending call.
type InvariantError struct {
	cause error
}

func NewInvariantError(format string, args ...any) error {
	return InvariantError{cause: errors.Errorf(format, args...)}
}

func (e InvariantError) Error() string { return "invariant violated: " + e.cause.Error() }
func (e InvariantError) Unwrap() error { return e.cause }

// UnimplementedError marks a statement/expression label the interpreter has
// no case for.
type UnimplementedError struct {
	cause error
}

func NewUnimplementedError(format string, args ...any) error {
	return UnimplementedError{cause: errors.Errorf(format, args...)}
}

func (e UnimplementedError) Error() string { return "unimplemented: " + e.cause.Error() }
func (e UnimplementedError) Unwrap() error { return e.cause }
