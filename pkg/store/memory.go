package store

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/depotkit/concierge/pkg/fault"
	"github.com/depotkit/concierge/pkg/scope"
)

// MemoryStore is a Store kept entirely in process memory. It backs unit
// tests and local development without a database file.
type MemoryStore struct {
	mu          sync.RWMutex
	items       map[string]Item
	subAccounts map[string]SubAccount
	drafts      map[string]Draft
	shipments   map[string]Shipment
	lines       []ShipmentLine
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		items:       make(map[string]Item),
		subAccounts: make(map[string]SubAccount),
		drafts:      make(map[string]Draft),
		shipments:   make(map[string]Shipment),
	}
}

// PutItem seeds or replaces an item.
func (m *MemoryStore) PutItem(it Item) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[it.ID] = it
}

// PutSubAccount seeds or replaces a sub-account.
func (m *MemoryStore) PutSubAccount(sa SubAccount) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subAccounts[sa.ID] = sa
}

// Shipments returns all stored shipments, for assertions.
func (m *MemoryStore) Shipments() []Shipment {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Shipment, 0, len(m.shipments))
	for _, sh := range m.shipments {
		out = append(out, sh)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Lines returns all stored shipment lines, for assertions.
func (m *MemoryStore) Lines() []ShipmentLine {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]ShipmentLine(nil), m.lines...)
}

func itemInScope(it Item, sc scope.Scope) bool {
	if it.IsDeleted {
		return false
	}
	if it.TenantID != sc.TenantID || it.AccountID != sc.AccountID {
		return false
	}
	if sc.SubAccountID != "" && it.SubAccountID != sc.SubAccountID {
		return false
	}
	return true
}

func (m *MemoryStore) ListItems(_ context.Context, sc scope.Scope) ([]Item, error) {
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Item
	for _, it := range m.items {
		if itemInScope(it, sc) {
			out = append(out, it)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		ti, tj := out[i].ReceivedAt, out[j].ReceivedAt
		if ti != nil && tj != nil && !ti.Equal(*tj) {
			return ti.After(*tj)
		}
		if (ti == nil) != (tj == nil) {
			return ti != nil
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *MemoryStore) GetItem(ctx context.Context, sc scope.Scope, id string) (*Item, error) {
	items, err := m.GetItems(ctx, sc, []string{id})
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, nil
	}
	return &items[0], nil
}

func (m *MemoryStore) GetItems(_ context.Context, sc scope.Scope, ids []string) ([]Item, error) {
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Item
	for _, id := range ids {
		it, ok := m.items[id]
		if ok && itemInScope(it, sc) {
			out = append(out, it)
		}
	}
	return out, nil
}

func (m *MemoryStore) ListSubAccounts(_ context.Context, sc scope.Scope) ([]SubAccount, error) {
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []SubAccount
	for _, sa := range m.subAccounts {
		if sa.TenantID == sc.TenantID && sa.AccountID == sc.AccountID && !sa.IsDeleted {
			out = append(out, sa)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (m *MemoryStore) GetSubAccount(_ context.Context, sc scope.Scope, id string) (*SubAccount, error) {
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	sa, ok := m.subAccounts[id]
	if !ok || sa.TenantID != sc.TenantID || sa.AccountID != sc.AccountID || sa.IsDeleted {
		return nil, nil
	}
	return &sa, nil
}

func (m *MemoryStore) CreateDraft(_ context.Context, sc scope.Scope, d *Draft) error {
	if err := sc.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.drafts[d.ID] = *d
	return nil
}

func (m *MemoryStore) GetDraft(_ context.Context, sc scope.Scope, id string) (*Draft, error) {
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.drafts[id]
	if !ok || d.TenantID != sc.TenantID || d.AccountID != sc.AccountID {
		return nil, nil
	}
	return &d, nil
}

func (m *MemoryStore) ApplySubmission(_ context.Context, sc scope.Scope, sub Submission) error {
	if err := sc.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := m.drafts[sub.DraftID]
	if !ok || d.TenantID != sc.TenantID || d.AccountID != sc.AccountID || d.Status != DraftStatusDraft {
		return fault.New(fault.State, "draft is no longer open for submission")
	}
	for _, itemID := range sub.ItemIDs {
		it, ok := m.items[itemID]
		if !ok || it.TenantID != sc.TenantID || it.AccountID != sc.AccountID || it.IsDeleted {
			return fault.New(fault.NotFound, "item not found: %s", itemID)
		}
		if !slices.Contains(sub.EligibleStatuses, it.Status) {
			return fault.New(fault.State,
				"item %s is %s and is no longer eligible for this action", it.Code, it.Status)
		}
	}

	d.Status = DraftStatusConfirmed
	d.UpdatedAt = time.Now().UTC()
	m.drafts[sub.DraftID] = d
	m.shipments[sub.Shipment.ID] = sub.Shipment
	for _, itemID := range sub.ItemIDs {
		it := m.items[itemID]
		it.Status = sub.NewItemStatus
		if sub.NewSubAccountID != "" {
			it.SubAccountID = sub.NewSubAccountID
		}
		m.items[itemID] = it
		m.lines = append(m.lines, ShipmentLine{
			ID:         sub.Shipment.ID + ":" + itemID,
			ShipmentID: sub.Shipment.ID,
			ItemID:     itemID,
		})
	}
	return nil
}

func (m *MemoryStore) DeleteAbandonedDrafts(_ context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, d := range m.drafts {
		if d.Status == DraftStatusDraft && d.UpdatedAt.Before(cutoff) {
			delete(m.drafts, id)
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) Close() error { return nil }
