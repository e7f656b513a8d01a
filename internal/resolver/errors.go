package resolver

import (
	"errors"
	"fmt"

	"github.com/listfresh/listfresh/internal/atproto"
)

// Code is the caller-facing classification of a failed resolution.
type Code string

const (
	CodeMalformedLocator Code = "MALFORMED_LOCATOR"
	CodeWrongCollection  Code = "WRONG_COLLECTION"
	CodeListNotFound     Code = "LIST_NOT_FOUND"
	CodeFetchFailed      Code = "FETCH_FAILED"
)

// Message returns the fixed human-readable detail for a code. Upstream error
// text is never part of it.
func (c Code) Message() string {
	switch c {
	case CodeMalformedLocator:
		return "Invalid URI format"
	case CodeWrongCollection:
		return "Invalid collection in URI"
	case CodeListNotFound:
		return "List not found"
	default:
		return "Failed to fetch list information"
	}
}

// Error is a classified resolution failure. Err keeps the underlying cause for
// server-side logging.
type Error struct {
	Code Code
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Code)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Code, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// ErrNoLatestItem marks a non-empty list page that carried neither an item nor
// a cursor.
var ErrNoLatestItem = errors.New("list reports items but returned neither item nor cursor")

// CodeOf classifies any error produced by parsing or resolution. Unknown
// errors classify as FETCH_FAILED.
func CodeOf(err error) Code {
	var rerr *Error
	switch {
	case err == nil:
		return ""
	case errors.As(err, &rerr):
		return rerr.Code
	case errors.Is(err, atproto.ErrWrongCollection):
		return CodeWrongCollection
	case errors.Is(err, atproto.ErrMalformedLocator):
		return CodeMalformedLocator
	default:
		return CodeFetchFailed
	}
}

// notFounder is implemented by upstream errors that can tell a missing
// resource apart from other failures.
type notFounder interface {
	NotFound() bool
}

func isNotFound(err error) bool {
	var nf notFounder
	return errors.As(err, &nf) && nf.NotFound()
}

func newError(code Code, op string, err error) *Error {
	return &Error{Code: code, Op: op, Err: err}
}
