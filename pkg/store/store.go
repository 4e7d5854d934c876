package store

import (
	"context"
	"time"

	"github.com/depotkit/concierge/pkg/scope"
)

// Store is the persistence surface the rest of the assistant depends on.
// Implementations must scope every operation: a caller can never observe or
// mutate rows outside its tenant and account.
type Store interface {
	// ListItems returns the items visible in the given scope, most
	// recently received first.
	ListItems(ctx context.Context, sc scope.Scope) ([]Item, error)

	// GetItem returns the item with the given ID if it exists inside the
	// scope, or nil if it does not.
	GetItem(ctx context.Context, sc scope.Scope, id string) (*Item, error)

	// GetItems returns the subset of the given IDs that exist inside the
	// scope. Missing IDs are simply absent from the result.
	GetItems(ctx context.Context, sc scope.Scope, ids []string) ([]Item, error)

	// ListSubAccounts returns the sub-accounts of the scope's account.
	ListSubAccounts(ctx context.Context, sc scope.Scope) ([]SubAccount, error)

	// GetSubAccount returns a sub-account by ID inside the scope, or nil.
	GetSubAccount(ctx context.Context, sc scope.Scope, id string) (*SubAccount, error)

	// CreateDraft persists a new draft.
	CreateDraft(ctx context.Context, sc scope.Scope, d *Draft) error

	// GetDraft returns the draft by ID inside the scope, or nil.
	GetDraft(ctx context.Context, sc scope.Scope, id string) (*Draft, error)

	// ApplySubmission atomically confirms a draft, creates the shipment
	// with its lines and flips the item statuses. If any part fails the
	// whole submission rolls back.
	ApplySubmission(ctx context.Context, sc scope.Scope, sub Submission) error

	// DeleteAbandonedDrafts removes unconfirmed drafts older than the
	// given age and reports how many were removed.
	DeleteAbandonedDrafts(ctx context.Context, olderThan time.Duration) (int64, error)

	Close() error
}
