package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/depotkit/concierge/pkg/fault"
)

// MemoryStore keeps sessions in process memory. It backs tests and the
// engine's degraded mode when the database is unreachable.
type MemoryStore struct {
	mu            sync.Mutex
	sessions      map[string]*Session
	byUser        map[string]string
	ttl           time.Duration
	historyWindow int
	now           func() time.Time
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore(ttl time.Duration, historyWindow int) *MemoryStore {
	return &MemoryStore{
		sessions:      make(map[string]*Session),
		byUser:        make(map[string]string),
		ttl:           ttl,
		historyWindow: historyWindow,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

func userKey(tenantID, accountID, userID string) string {
	return tenantID + "/" + accountID + "/" + userID
}

func (m *MemoryStore) GetOrCreate(_ context.Context, tenantID, accountID, userID string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	key := userKey(tenantID, accountID, userID)
	if id, ok := m.byUser[key]; ok {
		if s := m.sessions[id]; s != nil && !s.Expired(now) {
			cp := *s
			return &cp, nil
		}
		delete(m.sessions, id)
		delete(m.byUser, key)
	}
	s := &Session{
		ID:        uuid.NewString(),
		TenantID:  tenantID,
		AccountID: accountID,
		UserID:    userID,
		CreatedAt: now,
		UpdatedAt: now,
		ExpiresAt: now.Add(m.ttl),
	}
	m.sessions[s.ID] = s
	m.byUser[key] = s.ID
	cp := *s
	return &cp, nil
}

func (m *MemoryStore) Patch(_ context.Context, id string, p Patch) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	s, ok := m.sessions[id]
	if !ok || s.Expired(now) {
		return nil, fault.New(fault.NotFound, "session not found: %s", id)
	}
	p.Apply(s, m.historyWindow)
	s.UpdatedAt = now
	s.ExpiresAt = now.Add(m.ttl)
	cp := *s
	return &cp, nil
}

func (m *MemoryStore) DeleteExpired(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	var n int64
	for id, s := range m.sessions {
		if s.Expired(now) {
			delete(m.sessions, id)
			delete(m.byUser, userKey(s.TenantID, s.AccountID, s.UserID))
			n++
		}
	}
	return n, nil
}
