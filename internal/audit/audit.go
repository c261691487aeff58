// Package audit persists the recovery/override audit trail in SQLite,
// separate from ordinary transition history. Admin overrides bypass the rule
// table, so they are the most heavily audited path in the system.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"git.home.luguber.info/inful/agentcoord/internal/errors"
	"git.home.luguber.info/inful/agentcoord/internal/lifecycle"
)

// Kind labels what produced an audit entry.
type Kind string

const (
	KindAdminOverride Kind = "admin_override"
	KindForcedUnlock  Kind = "forced_unlock"
)

// Entry is one immutable audit record.
type Entry struct {
	ID        string          `json:"id"`
	ProjectID string          `json:"project_id"`
	Timestamp time.Time       `json:"timestamp"`
	Kind      Kind            `json:"kind"`
	FromState lifecycle.State `json:"from_state"`
	ToState   lifecycle.State `json:"to_state"`
	Actor     string          `json:"actor"`
	Reason    string          `json:"reason"`
}

// Trail is a SQLite-backed audit store.
// Use ":memory:" for an in-memory database, or a file path for persistence.
type Trail struct {
	db *sql.DB
	mu sync.RWMutex
}

// Open creates or opens an audit trail database.
func Open(dbPath string) (*Trail, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, errors.AuditAppendError(fmt.Errorf("open audit database: %w", err))
	}
	t := &Trail{db: db}
	if err := t.initialize(); err != nil {
		_ = db.Close()
		return nil, errors.AuditAppendError(fmt.Errorf("initialize audit schema: %w", err))
	}
	return t, nil
}

func (t *Trail) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS audit_entries (
		id TEXT PRIMARY KEY,
		project_id TEXT NOT NULL,
		timestamp INTEGER NOT NULL,
		kind TEXT NOT NULL,
		from_state TEXT NOT NULL,
		to_state TEXT NOT NULL,
		actor TEXT NOT NULL,
		reason TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_audit_project ON audit_entries(project_id);
	CREATE INDEX IF NOT EXISTS idx_audit_timestamp ON audit_entries(timestamp);
	`
	_, err := t.db.Exec(schema)
	return err
}

// Append adds an entry. A missing reason is rejected here as a last line of
// defense; callers validate earlier with a friendlier error.
func (t *Trail) Append(ctx context.Context, e Entry) (*Entry, error) {
	if e.Reason == "" {
		return nil, errors.ValidationFailed("reason", "audit entries require a reason")
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	_, err := t.db.ExecContext(ctx,
		"INSERT INTO audit_entries (id, project_id, timestamp, kind, from_state, to_state, actor, reason) VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
		e.ID, e.ProjectID, e.Timestamp.UnixNano(), string(e.Kind), string(e.FromState), string(e.ToState), e.Actor, e.Reason,
	)
	if err != nil {
		return nil, errors.AuditAppendError(fmt.Errorf("insert audit entry: %w", err))
	}
	return &e, nil
}

// ByProject returns all entries for a project in append order.
func (t *Trail) ByProject(ctx context.Context, projectID string) ([]Entry, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	rows, err := t.db.QueryContext(ctx,
		"SELECT id, project_id, timestamp, kind, from_state, to_state, actor, reason FROM audit_entries WHERE project_id = ? ORDER BY timestamp, id",
		projectID,
	)
	if err != nil {
		return nil, errors.AuditAppendError(fmt.Errorf("query audit entries: %w", err))
	}
	defer rows.Close()

	return scanEntries(rows)
}

func scanEntries(rows *sql.Rows) ([]Entry, error) {
	var out []Entry
	for rows.Next() {
		var e Entry
		var ts int64
		var kind, from, to string
		if err := rows.Scan(&e.ID, &e.ProjectID, &ts, &kind, &from, &to, &e.Actor, &e.Reason); err != nil {
			return nil, errors.AuditAppendError(fmt.Errorf("scan audit entry: %w", err))
		}
		e.Timestamp = time.Unix(0, ts)
		e.Kind = Kind(kind)
		e.FromState = lifecycle.State(from)
		e.ToState = lifecycle.State(to)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.AuditAppendError(fmt.Errorf("iterate audit rows: %w", err))
	}
	return out, nil
}

// Close releases the underlying database.
func (t *Trail) Close() error {
	return t.db.Close()
}
