// Package fault defines the error taxonomy shared by the assistant engine.
//
// Every error that crosses a component boundary is classified into one of a
// small set of kinds so that callers can decide, without string matching,
// whether a failure is recoverable inside the conversation (returned to the
// model as a structured tool result) or fatal for the turn (surfaced on the
// transport layer).
package fault

import (
	"errors"
	"fmt"
)

// Kind classifies an error for propagation decisions.
type Kind string

const (
	// Validation marks malformed or missing tool arguments.
	Validation Kind = "validation"

	// NotFound marks an entity, draft, or session that is absent or out of
	// the caller's scope. Out-of-scope rows are deliberately reported as
	// not-found rather than forbidden so their existence never leaks.
	NotFound Kind = "not_found"

	// State marks an action attempted in the wrong phase, such as resolving
	// a selection with no pending candidate set.
	State Kind = "state"

	// Upstream marks a completion-service failure.
	Upstream Kind = "upstream"

	// Persistence marks a store failure (unreachable, write rejected).
	Persistence Kind = "persistence"

	// Internal marks a programming error, such as a store call with an
	// incomplete scope. Never shown to end users.
	Internal Kind = "internal"
)

// UpstreamReason refines Upstream faults for transport-level mapping.
type UpstreamReason string

const (
	ReasonRateLimited     UpstreamReason = "rate_limited"
	ReasonPaymentRequired UpstreamReason = "payment_required"
	ReasonUnavailable     UpstreamReason = "upstream_failure"
)

// Error is the typed error carrying a Kind and a user-presentable message.
type Error struct {
	Kind    Kind
	Reason  UpstreamReason // set only for Kind == Upstream
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// New creates a classified error with a formatted message.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap classifies an underlying error, keeping it on the unwrap chain.
func Wrap(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// UpstreamError creates an Upstream fault with a transport-mappable reason.
func UpstreamError(reason UpstreamReason, err error, format string, args ...any) *Error {
	return &Error{Kind: Upstream, Reason: reason, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf reports the Kind of err, or Internal when err carries no
// classification. A nil error has no kind and returns "".
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return Internal
}

// IsKind reports whether err is classified as kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// MessageOf returns the user-presentable message of err. Unclassified errors
// yield a generic message so internals never reach the conversation.
func MessageOf(err error) string {
	if err == nil {
		return ""
	}
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Message
	}
	return "an internal error occurred"
}
