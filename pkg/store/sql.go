package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/depotkit/concierge/pkg/config"
	"github.com/depotkit/concierge/pkg/fault"
	"github.com/depotkit/concierge/pkg/scope"
)

const inventorySchema = `
CREATE TABLE IF NOT EXISTS subaccounts (
	id          VARCHAR(64) PRIMARY KEY,
	tenant_id   VARCHAR(64) NOT NULL,
	account_id  VARCHAR(64) NOT NULL,
	code        VARCHAR(64) NOT NULL,
	name        VARCHAR(255) NOT NULL,
	is_deleted  BOOLEAN NOT NULL DEFAULT FALSE
);
CREATE TABLE IF NOT EXISTS items (
	id             VARCHAR(64) PRIMARY KEY,
	tenant_id      VARCHAR(64) NOT NULL,
	account_id     VARCHAR(64) NOT NULL,
	sub_account_id VARCHAR(64) NOT NULL,
	code           VARCHAR(64) NOT NULL,
	description    TEXT,
	status         VARCHAR(32) NOT NULL,
	received_at    TIMESTAMP NULL,
	is_deleted     BOOLEAN NOT NULL DEFAULT FALSE
);
CREATE TABLE IF NOT EXISTS drafts (
	id         VARCHAR(64) PRIMARY KEY,
	tenant_id  VARCHAR(64) NOT NULL,
	account_id VARCHAR(64) NOT NULL,
	kind       VARCHAR(32) NOT NULL,
	created_by VARCHAR(64) NOT NULL,
	payload    TEXT NOT NULL,
	status     VARCHAR(32) NOT NULL,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS shipments (
	id         VARCHAR(64) PRIMARY KEY,
	tenant_id  VARCHAR(64) NOT NULL,
	account_id VARCHAR(64) NOT NULL,
	kind       VARCHAR(32) NOT NULL,
	status     VARCHAR(32) NOT NULL,
	created_at TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS shipment_lines (
	id          VARCHAR(64) PRIMARY KEY,
	shipment_id VARCHAR(64) NOT NULL,
	item_id     VARCHAR(64) NOT NULL
);
CREATE TABLE IF NOT EXISTS sessions (
	id         VARCHAR(64) PRIMARY KEY,
	tenant_id  VARCHAR(64) NOT NULL,
	account_id VARCHAR(64) NOT NULL,
	user_id    VARCHAR(64) NOT NULL,
	state      TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL,
	expires_at TIMESTAMP NOT NULL
);
`

// Rebind rewrites "?" placeholders into the dialect's native form.
// MySQL and SQLite take the query as-is; Postgres wants $1..$N.
func Rebind(dialect, query string) string {
	if dialect != config.DatabaseDriverPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// SQLStore implements Store over database/sql. The same implementation
// serves SQLite, MySQL and Postgres; only placeholder syntax differs.
type SQLStore struct {
	db      *sql.DB
	dialect string
}

var _ Store = (*SQLStore)(nil)

// Open connects to the configured database, verifies connectivity and
// ensures the schema exists.
func Open(ctx context.Context, cfg config.DatabaseConfig) (*SQLStore, error) {
	driver := cfg.Driver
	if driver == config.DatabaseDriverSQLite {
		driver = "sqlite3"
	}
	db, err := sql.Open(driver, cfg.DSN)
	if err != nil {
		return nil, fault.Wrap(fault.Persistence, err, "failed to open database")
	}
	db.SetMaxOpenConns(cfg.MaxConns)
	db.SetMaxIdleConns(cfg.MaxIdle)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fault.Wrap(fault.Persistence, err, "failed to ping database")
	}
	s := &SQLStore{db: db, dialect: cfg.Driver}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLStore) initSchema(ctx context.Context) error {
	for _, stmt := range strings.Split(inventorySchema, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fault.Wrap(fault.Persistence, err, "failed to initialize schema")
		}
	}
	return nil
}

// DB exposes the underlying handle for sibling stores that share the
// connection pool, such as the session store.
func (s *SQLStore) DB() *sql.DB { return s.db }

// Dialect reports the configured driver name.
func (s *SQLStore) Dialect() string { return s.dialect }

func (s *SQLStore) Close() error { return s.db.Close() }

func (s *SQLStore) ListItems(ctx context.Context, sc scope.Scope) ([]Item, error) {
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	query := `SELECT id, tenant_id, account_id, sub_account_id, code, description, status, received_at
		FROM items WHERE tenant_id = ? AND account_id = ? AND is_deleted = FALSE`
	args := []any{sc.TenantID, sc.AccountID}
	if sc.SubAccountID != "" {
		query += ` AND sub_account_id = ?`
		args = append(args, sc.SubAccountID)
	}
	query += ` ORDER BY received_at DESC, id`
	rows, err := s.db.QueryContext(ctx, Rebind(s.dialect, query), args...)
	if err != nil {
		return nil, fault.Wrap(fault.Persistence, err, "failed to list items")
	}
	defer rows.Close()
	return scanItems(rows)
}

func (s *SQLStore) GetItem(ctx context.Context, sc scope.Scope, id string) (*Item, error) {
	items, err := s.GetItems(ctx, sc, []string{id})
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, nil
	}
	return &items[0], nil
}

func (s *SQLStore) GetItems(ctx context.Context, sc scope.Scope, ids []string) ([]Item, error) {
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(ids)), ", ")
	query := fmt.Sprintf(`SELECT id, tenant_id, account_id, sub_account_id, code, description, status, received_at
		FROM items WHERE tenant_id = ? AND account_id = ? AND is_deleted = FALSE AND id IN (%s)`, placeholders)
	args := []any{sc.TenantID, sc.AccountID}
	for _, id := range ids {
		args = append(args, id)
	}
	if sc.SubAccountID != "" {
		query += ` AND sub_account_id = ?`
		args = append(args, sc.SubAccountID)
	}
	rows, err := s.db.QueryContext(ctx, Rebind(s.dialect, query), args...)
	if err != nil {
		return nil, fault.Wrap(fault.Persistence, err, "failed to load items")
	}
	defer rows.Close()
	return scanItems(rows)
}

func scanItems(rows *sql.Rows) ([]Item, error) {
	var items []Item
	for rows.Next() {
		var it Item
		var receivedAt sql.NullTime
		if err := rows.Scan(&it.ID, &it.TenantID, &it.AccountID, &it.SubAccountID,
			&it.Code, &it.Description, &it.Status, &receivedAt); err != nil {
			return nil, fault.Wrap(fault.Persistence, err, "failed to scan item row")
		}
		if receivedAt.Valid {
			t := receivedAt.Time
			it.ReceivedAt = &t
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fault.Wrap(fault.Persistence, err, "failed to read item rows")
	}
	return items, nil
}

func (s *SQLStore) ListSubAccounts(ctx context.Context, sc scope.Scope) ([]SubAccount, error) {
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	query := Rebind(s.dialect, `SELECT id, tenant_id, account_id, code, name
		FROM subaccounts WHERE tenant_id = ? AND account_id = ? AND is_deleted = FALSE ORDER BY code`)
	rows, err := s.db.QueryContext(ctx, query, sc.TenantID, sc.AccountID)
	if err != nil {
		return nil, fault.Wrap(fault.Persistence, err, "failed to list sub-accounts")
	}
	defer rows.Close()
	var subs []SubAccount
	for rows.Next() {
		var sa SubAccount
		if err := rows.Scan(&sa.ID, &sa.TenantID, &sa.AccountID, &sa.Code, &sa.Name); err != nil {
			return nil, fault.Wrap(fault.Persistence, err, "failed to scan sub-account row")
		}
		subs = append(subs, sa)
	}
	if err := rows.Err(); err != nil {
		return nil, fault.Wrap(fault.Persistence, err, "failed to read sub-account rows")
	}
	return subs, nil
}

func (s *SQLStore) GetSubAccount(ctx context.Context, sc scope.Scope, id string) (*SubAccount, error) {
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	query := Rebind(s.dialect, `SELECT id, tenant_id, account_id, code, name
		FROM subaccounts WHERE tenant_id = ? AND account_id = ? AND id = ? AND is_deleted = FALSE`)
	var sa SubAccount
	err := s.db.QueryRowContext(ctx, query, sc.TenantID, sc.AccountID, id).
		Scan(&sa.ID, &sa.TenantID, &sa.AccountID, &sa.Code, &sa.Name)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fault.Wrap(fault.Persistence, err, "failed to load sub-account")
	}
	return &sa, nil
}

func (s *SQLStore) CreateDraft(ctx context.Context, sc scope.Scope, d *Draft) error {
	if err := sc.Validate(); err != nil {
		return err
	}
	payload, err := json.Marshal(d.Payload)
	if err != nil {
		return fault.Wrap(fault.Persistence, err, "failed to encode draft payload")
	}
	query := Rebind(s.dialect, `INSERT INTO drafts
		(id, tenant_id, account_id, kind, created_by, payload, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err = s.db.ExecContext(ctx, query,
		d.ID, d.TenantID, d.AccountID, d.Kind, d.CreatedBy,
		string(payload), d.Status, d.CreatedAt, d.UpdatedAt)
	if err != nil {
		return fault.Wrap(fault.Persistence, err, "failed to create draft")
	}
	return nil
}

func (s *SQLStore) GetDraft(ctx context.Context, sc scope.Scope, id string) (*Draft, error) {
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	query := Rebind(s.dialect, `SELECT id, tenant_id, account_id, kind, created_by, payload, status, created_at, updated_at
		FROM drafts WHERE tenant_id = ? AND account_id = ? AND id = ?`)
	var d Draft
	var payload string
	err := s.db.QueryRowContext(ctx, query, sc.TenantID, sc.AccountID, id).
		Scan(&d.ID, &d.TenantID, &d.AccountID, &d.Kind, &d.CreatedBy,
			&payload, &d.Status, &d.CreatedAt, &d.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fault.Wrap(fault.Persistence, err, "failed to load draft")
	}
	if err := json.Unmarshal([]byte(payload), &d.Payload); err != nil {
		return nil, fault.Wrap(fault.Persistence, err, "failed to decode draft payload")
	}
	return &d, nil
}

func (s *SQLStore) ApplySubmission(ctx context.Context, sc scope.Scope, sub Submission) error {
	if err := sc.Validate(); err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fault.Wrap(fault.Persistence, err, "failed to begin submission")
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	res, err := tx.ExecContext(ctx, Rebind(s.dialect,
		`UPDATE drafts SET status = ?, updated_at = ?
		 WHERE tenant_id = ? AND account_id = ? AND id = ? AND status = ?`),
		DraftStatusConfirmed, now, sc.TenantID, sc.AccountID, sub.DraftID, DraftStatusDraft)
	if err != nil {
		return fault.Wrap(fault.Persistence, err, "failed to confirm draft")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fault.New(fault.State, "draft is no longer open for submission")
	}

	sh := sub.Shipment
	_, err = tx.ExecContext(ctx, Rebind(s.dialect,
		`INSERT INTO shipments (id, tenant_id, account_id, kind, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`),
		sh.ID, sh.TenantID, sh.AccountID, sh.Kind, sh.Status, sh.CreatedAt)
	if err != nil {
		return fault.Wrap(fault.Persistence, err, "failed to create shipment")
	}

	for _, itemID := range sub.ItemIDs {
		var code, status string
		err := tx.QueryRowContext(ctx, Rebind(s.dialect,
			`SELECT code, status FROM items
			 WHERE tenant_id = ? AND account_id = ? AND id = ? AND is_deleted = FALSE`),
			sc.TenantID, sc.AccountID, itemID).Scan(&code, &status)
		if err == sql.ErrNoRows {
			return fault.New(fault.NotFound, "item not found: %s", itemID)
		}
		if err != nil {
			return fault.Wrap(fault.Persistence, err, "failed to load item for submission")
		}
		if !slices.Contains(sub.EligibleStatuses, status) {
			return fault.New(fault.State,
				"item %s is %s and is no longer eligible for this action", code, status)
		}

		_, err = tx.ExecContext(ctx, Rebind(s.dialect,
			`INSERT INTO shipment_lines (id, shipment_id, item_id) VALUES (?, ?, ?)`),
			sh.ID+":"+itemID, sh.ID, itemID)
		if err != nil {
			return fault.Wrap(fault.Persistence, err, "failed to create shipment line")
		}
		update := `UPDATE items SET status = ?`
		updateArgs := []any{sub.NewItemStatus}
		if sub.NewSubAccountID != "" {
			update += `, sub_account_id = ?`
			updateArgs = append(updateArgs, sub.NewSubAccountID)
		}
		update += ` WHERE tenant_id = ? AND account_id = ? AND id = ? AND status = ? AND is_deleted = FALSE`
		updateArgs = append(updateArgs, sc.TenantID, sc.AccountID, itemID, status)
		res, err := tx.ExecContext(ctx, Rebind(s.dialect, update), updateArgs...)
		if err != nil {
			return fault.Wrap(fault.Persistence, err, "failed to update item status")
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fault.New(fault.State, "item %s changed while the submission was in flight", code)
		}
	}

	if err := tx.Commit(); err != nil {
		return fault.Wrap(fault.Persistence, err, "failed to commit submission")
	}
	return nil
}

func (s *SQLStore) DeleteAbandonedDrafts(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	res, err := s.db.ExecContext(ctx, Rebind(s.dialect,
		`DELETE FROM drafts WHERE status = ? AND updated_at < ?`),
		DraftStatusDraft, cutoff)
	if err != nil {
		return 0, fault.Wrap(fault.Persistence, err, "failed to delete abandoned drafts")
	}
	n, _ := res.RowsAffected()
	return n, nil
}
