// Package scope defines the authorization tuple that bounds every read and
// write performed on behalf of an inbound assistant message.
package scope

import (
	"context"

	"github.com/depotkit/concierge/pkg/fault"
)

// Scope is the immutable (tenant, account, optional sub-account, user)
// authorization tuple for one request. Every persistent read or write is
// filtered by at least TenantID and AccountID together; a store call with
// either missing is a programming error, not a recoverable condition.
type Scope struct {
	TenantID     string
	AccountID    string
	SubAccountID string // optional narrowing
	UserID       string
}

// Validate checks that the scope is complete enough to authorize store
// access. SubAccountID may be empty.
func (s Scope) Validate() error {
	if s.TenantID == "" || s.AccountID == "" {
		return fault.New(fault.Internal, "incomplete scope: tenant and account are required")
	}
	if s.UserID == "" {
		return fault.New(fault.Internal, "incomplete scope: user is required")
	}
	return nil
}

type contextKey struct{}

// NewContext returns a context carrying the scope.
func NewContext(ctx context.Context, s Scope) context.Context {
	return context.WithValue(ctx, contextKey{}, s)
}

// FromContext extracts the scope placed by NewContext.
func FromContext(ctx context.Context) (Scope, bool) {
	s, ok := ctx.Value(contextKey{}).(Scope)
	return s, ok
}
