// Package draft implements the two-phase commit around mutating actions.
// Phase one validates the request completely and persists a draft without
// touching any item; phase two, entered only on explicit user confirmation,
// applies the whole mutation in one transaction. A request that fails
// validation leaves no trace, and a draft that is never confirmed mutates
// nothing.
package draft

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/depotkit/concierge/pkg/fault"
	"github.com/depotkit/concierge/pkg/scope"
	"github.com/depotkit/concierge/pkg/store"
)

// eligibleStatuses lists, per draft kind, the item statuses the action
// accepts. Repair quotes also cover items already allocated to a repair.
// Checked both at draft creation and again inside the submission
// transaction, because item state may change between the two phases.
var eligibleStatuses = map[string][]string{
	store.DraftKindWillCall:     {store.ItemStatusActive},
	store.DraftKindReallocation: {store.ItemStatusActive},
	store.DraftKindDisposal:     {store.ItemStatusActive},
	store.DraftKindRepairQuote:  {store.ItemStatusActive, store.ItemStatusAllocated},
}

// submitStatus is the item status each kind flips to on submission.
var submitStatus = map[string]string{
	store.DraftKindWillCall:     store.ItemStatusReleased,
	store.DraftKindRepairQuote:  store.ItemStatusAllocated,
	store.DraftKindReallocation: store.ItemStatusActive,
	store.DraftKindDisposal:     store.ItemStatusDisposed,
}

var kindLabels = map[string]string{
	store.DraftKindWillCall:     "will-call pickup",
	store.DraftKindRepairQuote:  "repair quote",
	store.DraftKindReallocation: "reallocation",
	store.DraftKindDisposal:     "disposal",
}

// Manager creates and submits drafts.
type Manager struct {
	store store.Store
	now   func() time.Time
	newID func() string
}

func NewManager(st store.Store) *Manager {
	return &Manager{
		store: st,
		now:   func() time.Time { return time.Now().UTC() },
		newID: uuid.NewString,
	}
}

// Create validates the requested action end to end and persists it as a
// draft. Item lookups, eligibility and parameter checks all happen here:
// by the time a draft exists it is guaranteed submittable, barring
// concurrent changes caught again at submit time.
func (m *Manager) Create(ctx context.Context, sc scope.Scope, kind string, payload store.DraftPayload) (*store.Draft, error) {
	if _, ok := eligibleStatuses[kind]; !ok {
		return nil, fault.New(fault.Validation, "unknown draft kind: %s", kind)
	}
	if len(payload.ItemIDs) == 0 {
		return nil, fault.New(fault.Validation, "a %s needs at least one item", kindLabels[kind])
	}
	if err := m.validateParams(ctx, sc, kind, payload); err != nil {
		return nil, err
	}

	items, err := m.store.GetItems(ctx, sc, payload.ItemIDs)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]store.Item, len(items))
	for _, it := range items {
		byID[it.ID] = it
	}
	for _, id := range payload.ItemIDs {
		it, ok := byID[id]
		if !ok {
			return nil, fault.New(fault.NotFound, "item not found: %s", id)
		}
		if !slices.Contains(eligibleStatuses[kind], it.Status) {
			return nil, fault.New(fault.State,
				"item %s is %s and cannot be included in a %s", it.Code, it.Status, kindLabels[kind])
		}
	}

	now := m.now()
	d := &store.Draft{
		ID:        m.newID(),
		TenantID:  sc.TenantID,
		AccountID: sc.AccountID,
		Kind:      kind,
		CreatedBy: sc.UserID,
		Payload:   payload,
		Status:    store.DraftStatusDraft,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := m.store.CreateDraft(ctx, sc, d); err != nil {
		return nil, err
	}
	return d, nil
}

func (m *Manager) validateParams(ctx context.Context, sc scope.Scope, kind string, payload store.DraftPayload) error {
	switch kind {
	case store.DraftKindWillCall:
		if payload.PickupDate == "" {
			return fault.New(fault.Validation, "a will-call pickup needs a pickup date")
		}
		if _, err := time.Parse("2006-01-02", payload.PickupDate); err != nil {
			return fault.New(fault.Validation, "pickup date must be YYYY-MM-DD, got %q", payload.PickupDate)
		}
	case store.DraftKindRepairQuote:
		if strings.TrimSpace(payload.DamageDescription) == "" {
			return fault.New(fault.Validation, "a repair quote needs a damage description")
		}
	case store.DraftKindReallocation:
		if payload.TargetSubAccountID == "" {
			return fault.New(fault.Validation, "a reallocation needs a target sub-account")
		}
		sa, err := m.store.GetSubAccount(ctx, sc, payload.TargetSubAccountID)
		if err != nil {
			return err
		}
		if sa == nil {
			return fault.New(fault.NotFound, "sub-account not found: %s", payload.TargetSubAccountID)
		}
	case store.DraftKindDisposal:
		if strings.TrimSpace(payload.Reason) == "" {
			return fault.New(fault.Validation, "a disposal needs a reason")
		}
	}
	return nil
}

// Summary renders a one-line human description of the draft, shown to the
// user before they confirm.
func Summary(d *store.Draft) string {
	n := len(d.Payload.ItemIDs)
	noun := "items"
	if n == 1 {
		noun = "item"
	}
	s := fmt.Sprintf("%s for %d %s", kindLabels[d.Kind], n, noun)
	switch d.Kind {
	case store.DraftKindWillCall:
		s += " on " + d.Payload.PickupDate
	case store.DraftKindReallocation:
		s += " to sub-account " + d.Payload.TargetSubAccountID
	}
	return s
}

// shipmentID derives the shipment identifier from the draft, so at most
// one shipment can ever exist per draft.
func shipmentID(draftID string) string { return "shp-" + draftID }

// Submit confirms the draft and applies its mutation atomically. Each
// draft submits at most once: a second call fails with a state fault and
// performs no further mutation. Item eligibility is re-checked inside
// the submission transaction, so an item that changed state after the
// draft was created fails the whole submission.
func (m *Manager) Submit(ctx context.Context, sc scope.Scope, draftID string) (*store.Shipment, error) {
	d, err := m.store.GetDraft(ctx, sc, draftID)
	if err != nil {
		return nil, err
	}
	if d == nil {
		return nil, fault.New(fault.NotFound, "draft not found: %s", draftID)
	}
	if d.Status != store.DraftStatusDraft {
		return nil, fault.New(fault.State, "draft %s is already confirmed", d.ID)
	}

	sh := store.Shipment{
		ID:        shipmentID(d.ID),
		TenantID:  sc.TenantID,
		AccountID: sc.AccountID,
		Kind:      d.Kind,
		Status:    "pending",
		CreatedAt: m.now(),
	}
	sub := store.Submission{
		DraftID:          d.ID,
		Shipment:         sh,
		ItemIDs:          d.Payload.ItemIDs,
		EligibleStatuses: eligibleStatuses[d.Kind],
		NewItemStatus:    submitStatus[d.Kind],
	}
	if d.Kind == store.DraftKindReallocation {
		sub.NewSubAccountID = d.Payload.TargetSubAccountID
	}
	if err := m.store.ApplySubmission(ctx, sc, sub); err != nil {
		return nil, err
	}
	return &sh, nil
}
