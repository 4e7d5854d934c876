// Package store is the relational access layer for the business entities the
// assistant operates on. Every query is filtered by tenant and account (and
// the soft-delete flag); the package never exposes a read or write that can
// cross a tenant boundary.
package store

import (
	"time"
)

// Item statuses. Only active items are eligible for new action drafts;
// submission flips them according to the draft kind.
const (
	ItemStatusActive    = "active"
	ItemStatusAllocated = "allocated"
	ItemStatusReleased  = "released"
	ItemStatusDisposed  = "disposed"
)

// Item is a stored inventory item.
type Item struct {
	ID           string
	TenantID     string
	AccountID    string
	SubAccountID string
	Code         string
	Description  string
	Status       string
	ReceivedAt   *time.Time
	IsDeleted    bool
}

// SubAccount is a named sub-division of an account.
type SubAccount struct {
	ID        string
	TenantID  string
	AccountID string
	Code      string
	Name      string
	IsDeleted bool
}

// Draft kinds, one per mutating action family.
const (
	DraftKindWillCall     = "will_call"
	DraftKindRepairQuote  = "repair_quote"
	DraftKindReallocation = "reallocation"
	DraftKindDisposal     = "disposal"
)

// Draft statuses.
const (
	DraftStatusDraft     = "draft"
	DraftStatusConfirmed = "confirmed"
)

// DraftPayload is the typed parameter bag persisted with a draft.
type DraftPayload struct {
	ItemIDs            []string `json:"item_ids"`
	TargetSubAccountID string   `json:"target_subaccount_id,omitempty"`
	PickupDate         string   `json:"pickup_date,omitempty"`
	DamageDescription  string   `json:"damage_description,omitempty"`
	Reason             string   `json:"reason,omitempty"`
	Notes              string   `json:"notes,omitempty"`
}

// Draft is a persisted, unconfirmed representation of a proposed mutating
// action. It never executes on its own: an abandoned draft is swept, not
// submitted.
type Draft struct {
	ID        string
	TenantID  string
	AccountID string
	Kind      string
	CreatedBy string
	Payload   DraftPayload
	Status    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Shipment is the outbound order a confirmed draft produces.
type Shipment struct {
	ID        string
	TenantID  string
	AccountID string
	Kind      string
	Status    string
	CreatedAt time.Time
}

// ShipmentLine ties a shipment to one item.
type ShipmentLine struct {
	ID         string
	ShipmentID string
	ItemID     string
}

// Submission is everything ApplySubmission writes in one transaction:
// the shipment with its lines, the item status flip, and the draft
// confirmation. Either all of it lands or none of it does.
type Submission struct {
	DraftID  string
	Shipment Shipment
	ItemIDs  []string
	// EligibleStatuses lists the item statuses the submission accepts.
	// An item found in any other status fails the whole transaction;
	// draft-time validation does not survive concurrent changes, so the
	// check is repeated here inside the transaction.
	EligibleStatuses []string
	NewItemStatus    string
	// NewSubAccountID, when set, moves the items to that sub-account as
	// part of the same transaction. Used by reallocations.
	NewSubAccountID string
}
