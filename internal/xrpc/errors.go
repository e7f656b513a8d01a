package xrpc

import (
	"fmt"
	"net/http"
	"strings"
)

// Error is a non-200 XRPC response. Name and Message come from the lexicon
// error body {"error": ..., "message": ...} when the server sent one.
type Error struct {
	Method     string
	StatusCode int
	Name       string
	Message    string
}

func (e *Error) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "xrpc %s: %d", e.Method, e.StatusCode)
	if e.Name != "" {
		b.WriteString(" " + e.Name)
	}
	if e.Message != "" {
		b.WriteString(": " + e.Message)
	}
	return b.String()
}

// NotFound reports whether the server said the addressed resource does not
// exist. The AppView answers a missing list with 400 InvalidRequest
// "List not found", so the message is checked too, but only on 4xx.
func (e *Error) NotFound() bool {
	switch e.Name {
	case "NotFound", "RecordNotFound":
		return true
	}
	if e.StatusCode == http.StatusNotFound {
		return true
	}
	if e.StatusCode < 400 || e.StatusCode >= 500 {
		return false
	}
	return strings.Contains(strings.ToLower(e.Message), "not found")
}
