package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/depotkit/concierge/pkg/fault"
	"github.com/depotkit/concierge/pkg/scope"
)

func testScope() scope.Scope {
	return scope.Scope{TenantID: "t1", AccountID: "a1", UserID: "u1"}
}

func seedStore(t *testing.T) *MemoryStore {
	t.Helper()
	m := NewMemoryStore()
	m.PutSubAccount(SubAccount{ID: "sub-1", TenantID: "t1", AccountID: "a1", Code: "EAST", Name: "East warehouse"})
	m.PutSubAccount(SubAccount{ID: "sub-2", TenantID: "t1", AccountID: "a1", Code: "WEST", Name: "West warehouse"})
	now := time.Now().UTC()
	m.PutItem(Item{ID: "itm-1001", TenantID: "t1", AccountID: "a1", SubAccountID: "sub-1",
		Code: "CHAIR-1001", Description: "Desk chair", Status: ItemStatusActive, ReceivedAt: &now})
	m.PutItem(Item{ID: "itm-1002", TenantID: "t1", AccountID: "a1", SubAccountID: "sub-2",
		Code: "DESK-1002", Description: "Standing desk", Status: ItemStatusActive, ReceivedAt: &now})
	m.PutItem(Item{ID: "itm-9001", TenantID: "t2", AccountID: "a9", SubAccountID: "sub-9",
		Code: "CHAIR-9001", Description: "Other tenant chair", Status: ItemStatusActive, ReceivedAt: &now})
	return m
}

func TestSoftDeletedRowsAreInvisible(t *testing.T) {
	m := seedStore(t)
	ctx := context.Background()
	m.PutItem(Item{ID: "itm-1003", TenantID: "t1", AccountID: "a1", SubAccountID: "sub-1",
		Code: "SOFA-1003", Status: ItemStatusActive, IsDeleted: true})
	m.PutSubAccount(SubAccount{ID: "sub-3", TenantID: "t1", AccountID: "a1",
		Code: "GONE", Name: "Closed warehouse", IsDeleted: true})

	items, err := m.ListItems(ctx, testScope())
	require.NoError(t, err)
	for _, it := range items {
		assert.NotEqual(t, "itm-1003", it.ID)
	}

	it, err := m.GetItem(ctx, testScope(), "itm-1003")
	require.NoError(t, err)
	assert.Nil(t, it)

	sa, err := m.GetSubAccount(ctx, testScope(), "sub-3")
	require.NoError(t, err)
	assert.Nil(t, sa)
}

func TestMemoryStoreScopeFiltering(t *testing.T) {
	m := seedStore(t)
	ctx := context.Background()

	items, err := m.ListItems(ctx, testScope())
	require.NoError(t, err)
	require.Len(t, items, 2)
	for _, it := range items {
		assert.Equal(t, "t1", it.TenantID)
	}

	// Narrowing to a sub-account hides the rest of the account.
	sc := testScope()
	sc.SubAccountID = "sub-1"
	items, err = m.ListItems(ctx, sc)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "itm-1001", items[0].ID)

	// Foreign IDs are silently absent, never leaked.
	got, err := m.GetItems(ctx, testScope(), []string{"itm-1001", "itm-9001"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "itm-1001", got[0].ID)

	it, err := m.GetItem(ctx, testScope(), "itm-9001")
	require.NoError(t, err)
	assert.Nil(t, it)
}

func TestMemoryStoreScopeValidation(t *testing.T) {
	m := seedStore(t)
	_, err := m.ListItems(context.Background(), scope.Scope{TenantID: "t1"})
	require.Error(t, err)
}

func TestApplySubmission(t *testing.T) {
	m := seedStore(t)
	ctx := context.Background()
	sc := testScope()
	now := time.Now().UTC()

	d := &Draft{ID: "dft-1", TenantID: "t1", AccountID: "a1", Kind: DraftKindWillCall,
		CreatedBy: "u1", Payload: DraftPayload{ItemIDs: []string{"itm-1001"}},
		Status: DraftStatusDraft, CreatedAt: now, UpdatedAt: now}
	require.NoError(t, m.CreateDraft(ctx, sc, d))

	sub := Submission{
		DraftID:          "dft-1",
		Shipment:         Shipment{ID: "shp-1", TenantID: "t1", AccountID: "a1", Kind: DraftKindWillCall, Status: "pending", CreatedAt: now},
		ItemIDs:          []string{"itm-1001"},
		EligibleStatuses: []string{ItemStatusActive},
		NewItemStatus:    ItemStatusReleased,
	}
	require.NoError(t, m.ApplySubmission(ctx, sc, sub))

	it, err := m.GetItem(ctx, sc, "itm-1001")
	require.NoError(t, err)
	assert.Equal(t, ItemStatusReleased, it.Status)

	got, err := m.GetDraft(ctx, sc, "dft-1")
	require.NoError(t, err)
	assert.Equal(t, DraftStatusConfirmed, got.Status)

	require.Len(t, m.Shipments(), 1)
	require.Len(t, m.Lines(), 1)

	// Submitting the same draft again fails as a state error.
	err = m.ApplySubmission(ctx, sc, sub)
	require.Error(t, err)
	assert.Equal(t, fault.State, fault.KindOf(err))
}

func TestApplySubmissionMissingItemMutatesNothing(t *testing.T) {
	m := seedStore(t)
	ctx := context.Background()
	sc := testScope()
	now := time.Now().UTC()

	d := &Draft{ID: "dft-2", TenantID: "t1", AccountID: "a1", Kind: DraftKindDisposal,
		CreatedBy: "u1", Payload: DraftPayload{ItemIDs: []string{"itm-1001", "itm-9001"}},
		Status: DraftStatusDraft, CreatedAt: now, UpdatedAt: now}
	require.NoError(t, m.CreateDraft(ctx, sc, d))

	sub := Submission{
		DraftID:          "dft-2",
		Shipment:         Shipment{ID: "shp-2", TenantID: "t1", AccountID: "a1", Kind: DraftKindDisposal, Status: "pending", CreatedAt: now},
		ItemIDs:          []string{"itm-1001", "itm-9001"},
		EligibleStatuses: []string{ItemStatusActive},
		NewItemStatus:    ItemStatusDisposed,
	}
	err := m.ApplySubmission(ctx, sc, sub)
	require.Error(t, err)
	assert.Equal(t, fault.NotFound, fault.KindOf(err))

	// Nothing was written.
	it, err := m.GetItem(ctx, sc, "itm-1001")
	require.NoError(t, err)
	assert.Equal(t, ItemStatusActive, it.Status)
	got, err := m.GetDraft(ctx, sc, "dft-2")
	require.NoError(t, err)
	assert.Equal(t, DraftStatusDraft, got.Status)
	assert.Empty(t, m.Shipments())
}

// An item outside the submission's accepted statuses fails the whole
// transaction without partial writes.
func TestApplySubmissionIneligibleItemMutatesNothing(t *testing.T) {
	m := seedStore(t)
	ctx := context.Background()
	sc := testScope()
	now := time.Now().UTC()
	m.PutItem(Item{ID: "itm-1001", TenantID: "t1", AccountID: "a1", SubAccountID: "sub-1",
		Code: "CHAIR-1001", Status: ItemStatusDisposed, ReceivedAt: &now})

	d := &Draft{ID: "dft-3", TenantID: "t1", AccountID: "a1", Kind: DraftKindWillCall,
		CreatedBy: "u1", Payload: DraftPayload{ItemIDs: []string{"itm-1001"}},
		Status: DraftStatusDraft, CreatedAt: now, UpdatedAt: now}
	require.NoError(t, m.CreateDraft(ctx, sc, d))

	err := m.ApplySubmission(ctx, sc, Submission{
		DraftID:          "dft-3",
		Shipment:         Shipment{ID: "shp-3", TenantID: "t1", AccountID: "a1", Kind: DraftKindWillCall, Status: "pending", CreatedAt: now},
		ItemIDs:          []string{"itm-1001"},
		EligibleStatuses: []string{ItemStatusActive},
		NewItemStatus:    ItemStatusReleased,
	})
	require.Error(t, err)
	assert.Equal(t, fault.State, fault.KindOf(err))

	it, err := m.GetItem(ctx, sc, "itm-1001")
	require.NoError(t, err)
	assert.Equal(t, ItemStatusDisposed, it.Status)
	got, err := m.GetDraft(ctx, sc, "dft-3")
	require.NoError(t, err)
	assert.Equal(t, DraftStatusDraft, got.Status)
	assert.Empty(t, m.Shipments())
}

func TestDeleteAbandonedDrafts(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()
	sc := testScope()
	old := time.Now().UTC().Add(-2 * time.Hour)
	require.NoError(t, m.CreateDraft(ctx, sc, &Draft{ID: "dft-old", TenantID: "t1", AccountID: "a1",
		Kind: DraftKindWillCall, CreatedBy: "u1", Status: DraftStatusDraft, CreatedAt: old, UpdatedAt: old}))
	fresh := time.Now().UTC()
	require.NoError(t, m.CreateDraft(ctx, sc, &Draft{ID: "dft-new", TenantID: "t1", AccountID: "a1",
		Kind: DraftKindWillCall, CreatedBy: "u1", Status: DraftStatusDraft, CreatedAt: fresh, UpdatedAt: fresh}))

	n, err := m.DeleteAbandonedDrafts(ctx, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	d, err := m.GetDraft(ctx, sc, "dft-new")
	require.NoError(t, err)
	assert.NotNil(t, d)
}

func TestRebind(t *testing.T) {
	q := "SELECT * FROM items WHERE tenant_id = ? AND id IN (?, ?)"
	assert.Equal(t, q, Rebind("sqlite", q))
	assert.Equal(t, q, Rebind("mysql", q))
	assert.Equal(t,
		"SELECT * FROM items WHERE tenant_id = $1 AND id IN ($2, $3)",
		Rebind("postgres", q))
}
