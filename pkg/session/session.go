// Package session holds the per-user conversational state the assistant
// needs between turns: the recent history, a pending disambiguation if one
// is open, and the pending draft awaiting confirmation.
//
// A session is keyed by its scope. Each user has at most one live session
// per tenant and account; an expired session is invisible to readers and
// replaced on the next get-or-create.
package session

import (
	"context"
	"time"
)

// Candidate kinds.
const (
	CandidateKindItem       = "item"
	CandidateKindSubAccount = "subaccount"
)

// Candidate is one entry of a pending disambiguation, in presentation
// order. Ordinal is 1-based and is what the user answers with.
type Candidate struct {
	Ordinal     int    `json:"ordinal"`
	ID          string `json:"id"`
	Kind        string `json:"kind"`
	Code        string `json:"code"`
	Description string `json:"description,omitempty"`
	Status      string `json:"status,omitempty"`
}

// Disambiguation is an open multiple-choice question. Query is the
// reference that was ambiguous; Candidates keep the order they were
// shown in, so "all of them" resolves deterministically.
type Disambiguation struct {
	Query      string      `json:"query"`
	Candidates []Candidate `json:"candidates"`
	CreatedAt  time.Time   `json:"created_at"`
}

// DraftRef points at the draft currently awaiting user confirmation.
type DraftRef struct {
	DraftID string `json:"draft_id"`
	Kind    string `json:"kind"`
	Summary string `json:"summary"`
}

// Turn is one stored conversation message.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// State is the JSON-persisted body of a session.
type State struct {
	History        []Turn          `json:"history,omitempty"`
	Disambiguation *Disambiguation `json:"disambiguation,omitempty"`
	PendingDraft   *DraftRef       `json:"pending_draft,omitempty"`
}

// Session is the stored aggregate.
type Session struct {
	ID        string
	TenantID  string
	AccountID string
	UserID    string
	State     State
	CreatedAt time.Time
	UpdatedAt time.Time
	ExpiresAt time.Time
}

// Expired reports whether the session is past its TTL at the given time.
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.After(now)
}

// Patch is a partial update. Zero fields leave the session untouched;
// every patch slides the expiry forward by the store's TTL.
type Patch struct {
	AppendTurns         []Turn
	SetDisambiguation   *Disambiguation
	ClearDisambiguation bool
	SetPendingDraft     *DraftRef
	ClearPendingDraft   bool
}

// Apply mutates the session in place. Stores call this under their own
// locking; the engine calls it directly for ephemeral sessions that have
// no backing store.
func (p Patch) Apply(s *Session, historyWindow int) {
	s.State.History = append(s.State.History, p.AppendTurns...)
	if historyWindow > 0 && len(s.State.History) > historyWindow {
		s.State.History = s.State.History[len(s.State.History)-historyWindow:]
	}
	if p.ClearDisambiguation {
		s.State.Disambiguation = nil
	}
	if p.SetDisambiguation != nil {
		s.State.Disambiguation = p.SetDisambiguation
	}
	if p.ClearPendingDraft {
		s.State.PendingDraft = nil
	}
	if p.SetPendingDraft != nil {
		s.State.PendingDraft = p.SetPendingDraft
	}
}

// Store persists sessions. GetOrCreate returns the live session for the
// scope's user or creates a fresh one; Patch mutates it and slides the
// TTL. Implementations are last-write-wins under concurrent patches.
type Store interface {
	GetOrCreate(ctx context.Context, tenantID, accountID, userID string) (*Session, error)
	Patch(ctx context.Context, id string, p Patch) (*Session, error)
	DeleteExpired(ctx context.Context) (int64, error)
}
