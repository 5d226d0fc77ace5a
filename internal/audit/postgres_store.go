package audit

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tripwell/tripwell/internal/platform/db"
)

const auditSchema = `
CREATE TABLE IF NOT EXISTS audit_logs (
	seq        BIGSERIAL PRIMARY KEY,
	id         TEXT NOT NULL UNIQUE,
	user_id    TEXT NOT NULL,
	action     TEXT NOT NULL,
	resource   TEXT NOT NULL,
	details    JSONB NOT NULL DEFAULT '{}'::jsonb,
	ip_address TEXT NOT NULL,
	user_agent TEXT NOT NULL,
	session_id TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS audit_logs_created_at_idx ON audit_logs (created_at);
CREATE INDEX IF NOT EXISTS audit_logs_user_id_idx ON audit_logs (user_id, created_at DESC);
`

const auditColumns = "id, user_id, action, resource, details, ip_address, user_agent, session_id, created_at"

// PostgresStore persists the log in the audit_logs table and trims it to
// capacity on every append.
type PostgresStore struct {
	pool     *pgxpool.Pool
	capacity int
}

// NewPostgresStore constructs a PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool, capacity int) *PostgresStore {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &PostgresStore{pool: pool, capacity: capacity}
}

// EnsureSchema creates the audit table and indexes when missing.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, auditSchema); err != nil {
		return fmt.Errorf("audit: ensure schema: %w", err)
	}
	return nil
}

// appendLockKey serializes appends so each trim sees every committed row.
const appendLockKey int64 = 0x7472697077656c6c

// Append implements Store.
func (s *PostgresStore) Append(ctx context.Context, e Entry) (Entry, error) {
	err := db.WithTx(ctx, s.pool, db.ReadCommitted, func(tx pgx.Tx) error {
		return tx.SendBatch(ctx, s.appendBatch(e)).Close()
	})
	if err != nil {
		return Entry{}, fmt.Errorf("audit: postgres append: %w", err)
	}
	return e, nil
}

// appendBatch takes the transaction-scoped append lock, inserts e and trims
// the table to capacity.
func (s *PostgresStore) appendBatch(e Entry) *pgx.Batch {
	batch := &pgx.Batch{}
	batch.Queue(`SELECT pg_advisory_xact_lock($1)`, appendLockKey)
	batch.Queue(`INSERT INTO audit_logs (`+auditColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		e.ID, e.UserID, string(e.Action), e.Resource, e.Details,
		e.IPAddress, e.UserAgent, e.SessionID, e.CreatedAt)
	batch.Queue(`DELETE FROM audit_logs WHERE seq <= (
		SELECT seq FROM audit_logs ORDER BY seq DESC OFFSET $1 LIMIT 1)`, s.capacity)
	return batch
}

// Query implements Store.
func (s *PostgresStore) Query(ctx context.Context, f Filters) ([]Entry, error) {
	sql, args := buildQuery(f)
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("audit: postgres query: %w", err)
	}
	return collectEntries(rows)
}

// Snapshot implements Store.
func (s *PostgresStore) Snapshot(ctx context.Context) ([]Entry, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+auditColumns+` FROM audit_logs ORDER BY seq ASC`)
	if err != nil {
		return nil, fmt.Errorf("audit: postgres snapshot: %w", err)
	}
	return collectEntries(rows)
}

// Purge implements Store.
func (s *PostgresStore) Purge(ctx context.Context, before time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM audit_logs WHERE created_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("audit: postgres purge: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func buildQuery(f Filters) (string, []any) {
	var (
		clauses []string
		args    []any
	)
	add := func(expr string, value any) {
		args = append(args, value)
		clauses = append(clauses, expr+" $"+strconv.Itoa(len(args)))
	}
	if f.UserID != "" {
		add("user_id =", f.UserID)
	}
	if f.Action != "" {
		add("action =", string(f.Action))
	}
	if f.Resource != "" {
		add("resource =", f.Resource)
	}
	if f.IPAddress != "" {
		add("ip_address =", f.IPAddress)
	}
	if !f.From.IsZero() {
		add("created_at >=", f.From)
	}
	if !f.To.IsZero() {
		add("created_at <=", f.To)
	}

	var sb strings.Builder
	sb.WriteString("SELECT " + auditColumns + " FROM audit_logs")
	if len(clauses) > 0 {
		sb.WriteString(" WHERE " + strings.Join(clauses, " AND "))
	}
	sb.WriteString(" ORDER BY created_at DESC, seq DESC")
	if f.Limit > 0 {
		args = append(args, f.Limit)
		sb.WriteString(" LIMIT $" + strconv.Itoa(len(args)))
	}
	return sb.String(), args
}

func collectEntries(rows pgx.Rows) ([]Entry, error) {
	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Entry, error) {
		var (
			e      Entry
			action string
		)
		err := row.Scan(&e.ID, &e.UserID, &action, &e.Resource, &e.Details,
			&e.IPAddress, &e.UserAgent, &e.SessionID, &e.CreatedAt)
		e.Action = Action(action)
		return e, err
	})
	if err != nil {
		return nil, fmt.Errorf("audit: scan entries: %w", err)
	}
	return entries, nil
}
