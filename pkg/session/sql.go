package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/depotkit/concierge/pkg/fault"
	"github.com/depotkit/concierge/pkg/store"
)

// SQLStore persists sessions in the shared database. The state column is a
// JSON document so disambiguations and draft references evolve without
// schema migrations.
type SQLStore struct {
	db            *sql.DB
	dialect       string
	ttl           time.Duration
	historyWindow int
	now           func() time.Time
}

var _ Store = (*SQLStore)(nil)

func NewSQLStore(db *sql.DB, dialect string, ttl time.Duration, historyWindow int) *SQLStore {
	return &SQLStore{
		db:            db,
		dialect:       dialect,
		ttl:           ttl,
		historyWindow: historyWindow,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

func (s *SQLStore) GetOrCreate(ctx context.Context, tenantID, accountID, userID string) (*Session, error) {
	now := s.now()
	query := store.Rebind(s.dialect,
		`SELECT id, tenant_id, account_id, user_id, state, created_at, updated_at, expires_at
		 FROM sessions WHERE tenant_id = ? AND account_id = ? AND user_id = ? AND expires_at > ?
		 ORDER BY updated_at DESC LIMIT 1`)
	row := s.db.QueryRowContext(ctx, query, tenantID, accountID, userID, now)
	sess, err := scanSession(row)
	if err == nil {
		return sess, nil
	}
	if err != sql.ErrNoRows {
		return nil, fault.Wrap(fault.Persistence, err, "failed to load session")
	}

	sess = &Session{
		ID:        uuid.NewString(),
		TenantID:  tenantID,
		AccountID: accountID,
		UserID:    userID,
		CreatedAt: now,
		UpdatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}
	state, err := json.Marshal(sess.State)
	if err != nil {
		return nil, fault.Wrap(fault.Persistence, err, "failed to encode session state")
	}
	insert := store.Rebind(s.dialect,
		`INSERT INTO sessions (id, tenant_id, account_id, user_id, state, created_at, updated_at, expires_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err = s.db.ExecContext(ctx, insert,
		sess.ID, sess.TenantID, sess.AccountID, sess.UserID,
		string(state), sess.CreatedAt, sess.UpdatedAt, sess.ExpiresAt)
	if err != nil {
		return nil, fault.Wrap(fault.Persistence, err, "failed to create session")
	}
	return sess, nil
}

func (s *SQLStore) Patch(ctx context.Context, id string, p Patch) (*Session, error) {
	now := s.now()
	query := store.Rebind(s.dialect,
		`SELECT id, tenant_id, account_id, user_id, state, created_at, updated_at, expires_at
		 FROM sessions WHERE id = ? AND expires_at > ?`)
	sess, err := scanSession(s.db.QueryRowContext(ctx, query, id, now))
	if err == sql.ErrNoRows {
		return nil, fault.New(fault.NotFound, "session not found: %s", id)
	}
	if err != nil {
		return nil, fault.Wrap(fault.Persistence, err, "failed to load session")
	}

	p.Apply(sess, s.historyWindow)
	sess.UpdatedAt = now
	sess.ExpiresAt = now.Add(s.ttl)
	state, err := json.Marshal(sess.State)
	if err != nil {
		return nil, fault.Wrap(fault.Persistence, err, "failed to encode session state")
	}
	update := store.Rebind(s.dialect,
		`UPDATE sessions SET state = ?, updated_at = ?, expires_at = ? WHERE id = ?`)
	if _, err := s.db.ExecContext(ctx, update, string(state), sess.UpdatedAt, sess.ExpiresAt, id); err != nil {
		return nil, fault.Wrap(fault.Persistence, err, "failed to update session")
	}
	return sess, nil
}

func (s *SQLStore) DeleteExpired(ctx context.Context) (int64, error) {
	query := store.Rebind(s.dialect, `DELETE FROM sessions WHERE expires_at <= ?`)
	res, err := s.db.ExecContext(ctx, query, s.now())
	if err != nil {
		return 0, fault.Wrap(fault.Persistence, err, "failed to delete expired sessions")
	}
	n, _ := res.RowsAffected()
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*Session, error) {
	var sess Session
	var state string
	err := row.Scan(&sess.ID, &sess.TenantID, &sess.AccountID, &sess.UserID,
		&state, &sess.CreatedAt, &sess.UpdatedAt, &sess.ExpiresAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(state), &sess.State); err != nil {
		return nil, fault.Wrap(fault.Persistence, err, "failed to decode session state")
	}
	return &sess, nil
}
