package runtime

import (
	"errors"
	"fmt"
	"strings"
)

// ToolErrorKind classifies tool invocation failures. All of them are
// recovered locally: the engine surfaces them to the backend as failed tool
// results instead of aborting the session.
type ToolErrorKind string

const (
	ToolErrInvalidParameters  ToolErrorKind = "invalid_parameters"
	ToolErrResourceNotFound   ToolErrorKind = "resource_not_found"
	ToolErrExecution          ToolErrorKind = "execution_error"
	ToolErrNoChangeProduced   ToolErrorKind = "no_change_produced"
	ToolErrConcurrentConflict ToolErrorKind = "conflicting_concurrent_write"
)

type ToolError struct {
	Kind    ToolErrorKind
	Message string
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func toolErrorf(kind ToolErrorKind, format string, args ...any) *ToolError {
	return &ToolError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// AsToolError unwraps err into a *ToolError, coercing unknown errors into
// the execution_error kind so every tool failure has a classified shape.
func AsToolError(err error) *ToolError {
	if err == nil {
		return nil
	}
	var te *ToolError
	if errors.As(err, &te) {
		return te
	}
	return &ToolError{Kind: ToolErrExecution, Message: err.Error()}
}

// CredentialsExhaustedError reports that every active credential of a
// provider failed transiently within one retry batch. Session-fatal.
type CredentialsExhaustedError struct {
	Provider string
	Attempts int
	Err      error // last underlying failure
}

func (e *CredentialsExhaustedError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("provider %q: no active credentials", e.Provider)
	}
	return fmt.Sprintf("provider %q: all %d credential(s) exhausted: %v", e.Provider, e.Attempts, e.Err)
}

func (e *CredentialsExhaustedError) Unwrap() error { return e.Err }

// transientMarkers are the keyword signals that classify a backend failure
// as rate-limit/overload-class. Matching is a pure lowercase substring scan
// over the error text.
var transientMarkers = []string{
	"rate limit",
	"rate_limit",
	"429",
	"503",
	"overload",
	"quota",
	"too many requests",
	"timeout",
	"deadline exceeded",
	"temporarily unavailable",
}

// IsTransientBackendError reports whether err looks like a transient
// backend failure worth rotating credentials over.
func IsTransientBackendError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range transientMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
