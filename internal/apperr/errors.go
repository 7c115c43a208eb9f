// Package apperr defines the error taxonomy shared by the console layers.
// Handlers translate these values into HTTP responses; the workflow and
// session layers only ever return them, never render them.
package apperr

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrUnauthorized is returned by the gateway when the remote API answered
// 401.  The session has already been cleared by the time a caller sees it;
// the global error handler redirects to the login entry point.
var ErrUnauthorized = errors.New("unauthorized")

// ErrNotOffered is returned when an action is attempted that the current
// view state does not offer, such as deactivating an inactive tenant.
var ErrNotOffered = errors.New("action not offered")

// ErrNoPendingConfirmation is returned when a confirm call arrives without a
// preceding request for that destructive action.
var ErrNoPendingConfirmation = errors.New("no pending confirmation")

// ValidationError carries every field error found in one pass, keyed by
// form field name.  It never reaches the network.
type ValidationError struct {
	Fields map[string]string
}

// NewValidationError returns an empty ValidationError ready for Add.
func NewValidationError() *ValidationError {
	return &ValidationError{Fields: map[string]string{}}
}

// Add records msg for field, keeping the first message per field.
func (e *ValidationError) Add(field, msg string) {
	if _, ok := e.Fields[field]; !ok {
		e.Fields[field] = msg
	}
}

// Has reports whether field has an error.
func (e *ValidationError) Has(field string) bool {
	_, ok := e.Fields[field]
	return ok
}

// OrNil returns nil when no field error was recorded.
func (e *ValidationError) OrNil() error {
	if e == nil || len(e.Fields) == 0 {
		return nil
	}
	return e
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// AuthenticationError is returned by login when the credentials are rejected
// or the remote service did not hand back a usable token.
type AuthenticationError struct {
	Message string
	Err     error
}

func (e *AuthenticationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("authentication failed: %s: %v", e.Message, e.Err)
	}
	return "authentication failed: " + e.Message
}

func (e *AuthenticationError) Unwrap() error { return e.Err }

// FetchError wraps a failed read.  The list view keeps showing its last good
// page next to it.
type FetchError struct {
	Op  string
	Err error
}

func (e *FetchError) Error() string { return fmt.Sprintf("fetch %s: %v", e.Op, e.Err) }
func (e *FetchError) Unwrap() error { return e.Err }

// MutationError wraps a failed create, update, delete or deactivate.  No
// local state is changed when one is returned.
type MutationError struct {
	Op  string
	Err error
}

func (e *MutationError) Error() string { return fmt.Sprintf("%s tenant: %v", e.Op, e.Err) }
func (e *MutationError) Unwrap() error { return e.Err }

// IsUnauthorized reports whether err is, or wraps, ErrUnauthorized.
func IsUnauthorized(err error) bool { return errors.Is(err, ErrUnauthorized) }
