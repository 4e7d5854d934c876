package toolkit

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/depotkit/concierge/pkg/disambig"
	"github.com/depotkit/concierge/pkg/draft"
	"github.com/depotkit/concierge/pkg/fault"
	"github.com/depotkit/concierge/pkg/llm"
	"github.com/depotkit/concierge/pkg/scope"
	"github.com/depotkit/concierge/pkg/session"
	"github.com/depotkit/concierge/pkg/store"
	"github.com/depotkit/concierge/pkg/tool"
)

func testScope() scope.Scope {
	return scope.Scope{TenantID: "t1", AccountID: "a1", UserID: "u1"}
}

func newFixture(t *testing.T) (*tool.Registry, *store.MemoryStore) {
	t.Helper()
	mem := store.NewMemoryStore()
	mem.PutSubAccount(store.SubAccount{ID: "sub-1", TenantID: "t1", AccountID: "a1", Code: "EAST", Name: "East warehouse"})
	mem.PutSubAccount(store.SubAccount{ID: "sub-2", TenantID: "t1", AccountID: "a1", Code: "WEST", Name: "West warehouse"})
	now := time.Now().UTC()
	older := now.Add(-time.Hour)
	mem.PutItem(store.Item{ID: "itm-1", TenantID: "t1", AccountID: "a1", SubAccountID: "sub-1",
		Code: "CHAIR-1001", Description: "Desk chair", Status: store.ItemStatusActive, ReceivedAt: &now})
	mem.PutItem(store.Item{ID: "itm-2", TenantID: "t1", AccountID: "a1", SubAccountID: "sub-1",
		Code: "CHAIR-2001", Description: "Lounge chair", Status: store.ItemStatusActive, ReceivedAt: &older})

	k := New(mem, draft.NewManager(mem), disambig.NewManager(10))
	reg := tool.NewRegistry()
	require.NoError(t, k.Register(reg))
	return reg, mem
}

func dispatch(t *testing.T, reg *tool.Registry, inv tool.Invocation, name string, args any) (*tool.Outcome, error) {
	t.Helper()
	encoded, err := json.Marshal(args)
	require.NoError(t, err)
	return reg.Dispatch(context.Background(), inv, llm.ToolCall{
		ID:       "call-1",
		Function: llm.FunctionCall{Name: name, Arguments: string(encoded)},
	})
}

func TestRegisterAdvertisesAllTools(t *testing.T) {
	reg, _ := newFixture(t)
	defs := reg.Definitions()
	names := make([]string, len(defs))
	for i, d := range defs {
		names[i] = d.Name
	}
	assert.Equal(t, []string{
		"search_items", "search_subaccounts", "resolve_selection", "item_status",
		"request_will_call", "request_repair_quote", "request_reallocation",
		"request_disposal", "submit_draft",
	}, names)
}

func TestSearchItemsSingleMatch(t *testing.T) {
	reg, _ := newFixture(t)
	out, err := dispatch(t, reg, tool.Invocation{Scope: testScope()},
		"search_items", map[string]any{"query": "CHAIR-1001"})
	require.NoError(t, err)
	assert.Equal(t, "found", out.Result["status"])
	item := out.Result["item"].(map[string]any)
	assert.Equal(t, "itm-1", item["id"])
	assert.Nil(t, out.Patch)
}

func TestSearchItemsAmbiguousOpensChoice(t *testing.T) {
	reg, _ := newFixture(t)
	out, err := dispatch(t, reg, tool.Invocation{Scope: testScope()},
		"search_items", map[string]any{"query": "chair"})
	require.NoError(t, err)
	assert.Equal(t, "ambiguous", out.Result["status"])
	require.NotNil(t, out.Patch)
	require.NotNil(t, out.Patch.SetDisambiguation)

	cands := out.Patch.SetDisambiguation.Candidates
	require.Len(t, cands, 2)
	// Newest first, as listed by the store.
	assert.Equal(t, "itm-1", cands[0].ID)
	assert.Equal(t, 1, cands[0].Ordinal)
}

func TestSearchItemsNoMatch(t *testing.T) {
	reg, _ := newFixture(t)
	out, err := dispatch(t, reg, tool.Invocation{Scope: testScope()},
		"search_items", map[string]any{"query": "forklift"})
	require.NoError(t, err)
	assert.Equal(t, "no_match", out.Result["status"])
}

func TestResolveSelectionRoundTrip(t *testing.T) {
	reg, _ := newFixture(t)
	sc := testScope()

	out, err := dispatch(t, reg, tool.Invocation{Scope: sc},
		"search_items", map[string]any{"query": "chair"})
	require.NoError(t, err)

	sess := &session.Session{State: session.State{Disambiguation: out.Patch.SetDisambiguation}}
	out, err = dispatch(t, reg, tool.Invocation{Scope: sc, Session: sess},
		"resolve_selection", map[string]any{"selections": []int{2}})
	require.NoError(t, err)
	assert.Equal(t, "resolved", out.Result["status"])
	selected := out.Result["selected"].([]map[string]any)
	require.Len(t, selected, 1)
	assert.Equal(t, "itm-2", selected[0]["id"])
	assert.True(t, out.Patch.ClearDisambiguation)
}

func TestResolveSelectionWithoutPending(t *testing.T) {
	reg, _ := newFixture(t)
	_, err := dispatch(t, reg, tool.Invocation{Scope: testScope(), Session: &session.Session{}},
		"resolve_selection", map[string]any{"select_all": true})
	require.Error(t, err)
	assert.Equal(t, fault.State, fault.KindOf(err))
}

func TestItemStatusReportsMissingIDs(t *testing.T) {
	reg, _ := newFixture(t)
	out, err := dispatch(t, reg, tool.Invocation{Scope: testScope()},
		"item_status", map[string]any{"item_ids": []string{"itm-1", "itm-404"}})
	require.NoError(t, err)
	items := out.Result["items"].([]map[string]any)
	require.Len(t, items, 1)
	assert.Equal(t, []string{"itm-404"}, out.Result["not_found"])
}

// "When did my sofa arrive?" needs the receipt date in the tool result.
func TestItemStatusReportsReceiptDate(t *testing.T) {
	reg, mem := newFixture(t)
	received := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	mem.PutItem(store.Item{ID: "itm-3", TenantID: "t1", AccountID: "a1", SubAccountID: "sub-1",
		Code: "SOFA-3001", Description: "Jones sofa", Status: store.ItemStatusActive, ReceivedAt: &received})
	mem.PutItem(store.Item{ID: "itm-4", TenantID: "t1", AccountID: "a1", SubAccountID: "sub-1",
		Code: "SOFA-4001", Description: "Sofa in transit", Status: store.ItemStatusActive})

	out, err := dispatch(t, reg, tool.Invocation{Scope: testScope()},
		"item_status", map[string]any{"item_ids": []string{"itm-3", "itm-4"}})
	require.NoError(t, err)
	items := out.Result["items"].([]map[string]any)
	require.Len(t, items, 2)
	byID := map[string]map[string]any{}
	for _, it := range items {
		byID[it["id"].(string)] = it
	}
	assert.Equal(t, "2026-03-14", byID["itm-3"]["received_at"])
	// Not yet received, so no date is reported at all.
	assert.NotContains(t, byID["itm-4"], "received_at")
}

func TestRequestWillCallCreatesDraft(t *testing.T) {
	reg, mem := newFixture(t)
	sc := testScope()
	out, err := dispatch(t, reg, tool.Invocation{Scope: sc}, "request_will_call", map[string]any{
		"item_ids":    []string{"itm-1"},
		"pickup_date": "2026-09-01",
	})
	require.NoError(t, err)
	assert.Equal(t, "draft_created", out.Result["status"])
	require.NotNil(t, out.Patch.SetPendingDraft)

	// The draft exists but nothing has moved yet.
	it, err := mem.GetItem(context.Background(), sc, "itm-1")
	require.NoError(t, err)
	assert.Equal(t, store.ItemStatusActive, it.Status)
	assert.Empty(t, mem.Shipments())
}

func TestSubmitDraftUsesPendingDraft(t *testing.T) {
	reg, mem := newFixture(t)
	sc := testScope()

	out, err := dispatch(t, reg, tool.Invocation{Scope: sc}, "request_disposal", map[string]any{
		"item_ids": []string{"itm-1"},
		"reason":   "water damage",
	})
	require.NoError(t, err)

	sess := &session.Session{State: session.State{PendingDraft: out.Patch.SetPendingDraft}}
	out, err = dispatch(t, reg, tool.Invocation{Scope: sc, Session: sess},
		"submit_draft", map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, "submitted", out.Result["status"])
	assert.True(t, out.Patch.ClearPendingDraft)

	it, err := mem.GetItem(context.Background(), sc, "itm-1")
	require.NoError(t, err)
	assert.Equal(t, store.ItemStatusDisposed, it.Status)
}

func TestSubmitDraftWithoutPending(t *testing.T) {
	reg, _ := newFixture(t)
	_, err := dispatch(t, reg, tool.Invocation{Scope: testScope(), Session: &session.Session{}},
		"submit_draft", map[string]any{})
	require.Error(t, err)
	assert.Equal(t, fault.State, fault.KindOf(err))
}
