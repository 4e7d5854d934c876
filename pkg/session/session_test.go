package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/depotkit/concierge/pkg/fault"
)

func TestGetOrCreateReusesLiveSession(t *testing.T) {
	m := NewMemoryStore(30*time.Minute, 10)
	ctx := context.Background()

	first, err := m.GetOrCreate(ctx, "t1", "a1", "u1")
	require.NoError(t, err)
	second, err := m.GetOrCreate(ctx, "t1", "a1", "u1")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	// A different user in the same account gets its own session.
	other, err := m.GetOrCreate(ctx, "t1", "a1", "u2")
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, other.ID)
}

func TestExpiredSessionIsReplaced(t *testing.T) {
	m := NewMemoryStore(30*time.Minute, 10)
	ctx := context.Background()

	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return clock }

	first, err := m.GetOrCreate(ctx, "t1", "a1", "u1")
	require.NoError(t, err)

	clock = clock.Add(31 * time.Minute)
	second, err := m.GetOrCreate(ctx, "t1", "a1", "u1")
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)
	assert.Empty(t, second.State.History)

	// Patching the expired session reports it gone.
	_, err = m.Patch(ctx, first.ID, Patch{})
	require.Error(t, err)
	assert.Equal(t, fault.NotFound, fault.KindOf(err))
}

func TestPatchSlidesExpiry(t *testing.T) {
	m := NewMemoryStore(30*time.Minute, 10)
	ctx := context.Background()

	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return clock }

	s, err := m.GetOrCreate(ctx, "t1", "a1", "u1")
	require.NoError(t, err)

	clock = clock.Add(20 * time.Minute)
	s, err = m.Patch(ctx, s.ID, Patch{AppendTurns: []Turn{{Role: "user", Content: "hi"}}})
	require.NoError(t, err)
	assert.Equal(t, clock.Add(30*time.Minute), s.ExpiresAt)

	// Still live 25 minutes after the patch even though the original
	// expiry has passed.
	clock = clock.Add(25 * time.Minute)
	again, err := m.GetOrCreate(ctx, "t1", "a1", "u1")
	require.NoError(t, err)
	assert.Equal(t, s.ID, again.ID)
}

func TestPatchStateTransitions(t *testing.T) {
	m := NewMemoryStore(30*time.Minute, 4)
	ctx := context.Background()

	s, err := m.GetOrCreate(ctx, "t1", "a1", "u1")
	require.NoError(t, err)

	dis := &Disambiguation{
		Query: "chair",
		Candidates: []Candidate{
			{Ordinal: 1, ID: "itm-1", Kind: CandidateKindItem, Code: "CHAIR-1"},
			{Ordinal: 2, ID: "itm-2", Kind: CandidateKindItem, Code: "CHAIR-2"},
		},
		CreatedAt: time.Now().UTC(),
	}
	s, err = m.Patch(ctx, s.ID, Patch{SetDisambiguation: dis})
	require.NoError(t, err)
	require.NotNil(t, s.State.Disambiguation)
	assert.Len(t, s.State.Disambiguation.Candidates, 2)

	s, err = m.Patch(ctx, s.ID, Patch{
		ClearDisambiguation: true,
		SetPendingDraft:     &DraftRef{DraftID: "dft-1", Kind: "will_call", Summary: "Will-call for 1 item"},
	})
	require.NoError(t, err)
	assert.Nil(t, s.State.Disambiguation)
	require.NotNil(t, s.State.PendingDraft)
	assert.Equal(t, "dft-1", s.State.PendingDraft.DraftID)

	s, err = m.Patch(ctx, s.ID, Patch{ClearPendingDraft: true})
	require.NoError(t, err)
	assert.Nil(t, s.State.PendingDraft)
}

func TestHistoryWindowTrims(t *testing.T) {
	m := NewMemoryStore(30*time.Minute, 4)
	ctx := context.Background()

	s, err := m.GetOrCreate(ctx, "t1", "a1", "u1")
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		s, err = m.Patch(ctx, s.ID, Patch{AppendTurns: []Turn{
			{Role: "user", Content: "q"},
			{Role: "assistant", Content: "a"},
		}})
		require.NoError(t, err)
	}
	require.Len(t, s.State.History, 4)
	assert.Equal(t, "user", s.State.History[2].Role)
	assert.Equal(t, "assistant", s.State.History[3].Role)
}

func TestDeleteExpired(t *testing.T) {
	m := NewMemoryStore(30*time.Minute, 10)
	ctx := context.Background()

	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return clock }

	_, err := m.GetOrCreate(ctx, "t1", "a1", "u1")
	require.NoError(t, err)
	_, err = m.GetOrCreate(ctx, "t1", "a1", "u2")
	require.NoError(t, err)

	clock = clock.Add(31 * time.Minute)
	n, err := m.DeleteExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}
