package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/tursodatabase/go-libsql"

	"github.com/valetiq/valet/pkg/schema"
)

// LibSQLStore implements the Store interface using libSQL (embedded SQLite fork).
type LibSQLStore struct {
	db *sql.DB
}

// NewLibSQLStore opens a libSQL database at the given path and returns a Store.
// The path should be a file URI, e.g. "file:/path/to/db.db".
func NewLibSQLStore(dbPath string) (*LibSQLStore, error) {
	db, err := sql.Open("libsql", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open libsql: %w", err)
	}
	db.SetMaxOpenConns(1)

	// Apply connection-level PRAGMAs. Some PRAGMAs return rows so we use QueryRow.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA temp_store=MEMORY",
	}
	for _, p := range pragmas {
		var result string
		_ = db.QueryRow(p).Scan(&result)
	}

	return &LibSQLStore{db: db}, nil
}

// Close closes the database.
func (s *LibSQLStore) Close() error { return s.db.Close() }

// Migrate runs all pending database migrations.
func (s *LibSQLStore) Migrate(ctx context.Context) error {
	return runMigrations(ctx, s.db)
}

func (s *LibSQLStore) SavePlan(ctx context.Context, rec *PlanRecord) error {
	planJSON, err := json.Marshal(rec.Plan)
	if err != nil {
		return schema.NewError(schema.ErrCodeStore, "marshal plan").WithCause(err)
	}

	now := time.Now().UTC()
	created := rec.CreatedAt
	if created.IsZero() {
		created = now
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO plans (session_id, identity, channel, timezone, state, plan, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(session_id) DO UPDATE SET
		   state=excluded.state, plan=excluded.plan, updated_at=excluded.updated_at`,
		rec.SessionID, rec.Identity, rec.Channel, rec.Timezone,
		string(rec.State), string(planJSON), created, now,
	)
	if err != nil {
		return schema.NewError(schema.ErrCodeStore, "save plan").WithCause(err)
	}
	return nil
}

func (s *LibSQLStore) GetPlan(ctx context.Context, sessionID string) (*PlanRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT session_id, identity, channel, timezone, state, plan, created_at, updated_at
		 FROM plans WHERE session_id = ?`, sessionID)

	rec, err := scanPlan(row)
	if err == sql.ErrNoRows {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "plan for session %q not found", sessionID)
	}
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeStore, "get plan").WithCause(err)
	}
	return rec, nil
}

func (s *LibSQLStore) ListPlansByIdentity(ctx context.Context, identity string, limit int) ([]*PlanRecord, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT session_id, identity, channel, timezone, state, plan, created_at, updated_at
		 FROM plans WHERE identity = ? ORDER BY updated_at DESC LIMIT ?`, identity, limit)
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeStore, "list plans").WithCause(err)
	}
	defer rows.Close()

	var recs []*PlanRecord
	for rows.Next() {
		rec, err := scanPlan(rows)
		if err != nil {
			return nil, schema.NewError(schema.ErrCodeStore, "scan plan").WithCause(err)
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

func (s *LibSQLStore) DeletePlan(ctx context.Context, sessionID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM plans WHERE session_id = ?`, sessionID)
	if err != nil {
		return schema.NewError(schema.ErrCodeStore, "delete plan").WithCause(err)
	}
	return nil
}

func (s *LibSQLStore) AppendEvent(ctx context.Context, event *Event) error {
	ts := event.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	var payload sql.NullString
	if len(event.Payload) > 0 {
		payload = sql.NullString{String: string(event.Payload), Valid: true}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO events (session_id, step_id, event_type, payload, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		event.SessionID, event.StepID, event.Type, payload, ts,
	)
	if err != nil {
		return schema.NewError(schema.ErrCodeStore, "append event").WithCause(err)
	}
	return nil
}

func (s *LibSQLStore) GetEvents(ctx context.Context, sessionID string, since int64) ([]*Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, step_id, event_type, payload, created_at
		 FROM events WHERE session_id = ? AND id > ? ORDER BY id ASC`, sessionID, since)
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeStore, "get events").WithCause(err)
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		e := &Event{}
		var stepID, payload sql.NullString
		if err := rows.Scan(&e.ID, &e.SessionID, &stepID, &e.Type, &payload, &e.Timestamp); err != nil {
			return nil, schema.NewError(schema.ErrCodeStore, "scan event").WithCause(err)
		}
		e.StepID = stepID.String
		if payload.Valid {
			e.Payload = json.RawMessage(payload.String)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// --- Credentials ---

func (s *LibSQLStore) StoreCredential(ctx context.Context, key string, value []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO credentials (key, value, created_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT(key) DO UPDATE SET value=excluded.value, rotated_at=CURRENT_TIMESTAMP`,
		key, value,
	)
	if err != nil {
		return schema.NewError(schema.ErrCodeStore, "store credential").WithCause(err)
	}
	return nil
}

func (s *LibSQLStore) GetCredential(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM credentials WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "credential %q not found", key)
	}
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeStore, "get credential").WithCause(err)
	}
	return value, nil
}

func (s *LibSQLStore) DeleteCredential(ctx context.Context, key string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM credentials WHERE key = ?`, key)
	if err != nil {
		return schema.NewError(schema.ErrCodeStore, "delete credential").WithCause(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return schema.NewErrorf(schema.ErrCodeNotFound, "credential %q not found", key)
	}
	return nil
}

func (s *LibSQLStore) ListCredentials(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key FROM credentials ORDER BY key`)
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeStore, "list credentials").WithCause(err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, schema.NewError(schema.ErrCodeStore, "scan credential key").WithCause(err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanPlan(row rowScanner) (*PlanRecord, error) {
	rec := &PlanRecord{}
	var channel, timezone sql.NullString
	var state, planJSON string
	if err := row.Scan(&rec.SessionID, &rec.Identity, &channel, &timezone,
		&state, &planJSON, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return nil, err
	}
	rec.Channel = channel.String
	rec.Timezone = timezone.String
	rec.State = schema.PlanState(state)
	if err := json.Unmarshal([]byte(planJSON), &rec.Plan); err != nil {
		return nil, fmt.Errorf("unmarshal plan: %w", err)
	}
	return rec, nil
}

var _ Store = (*LibSQLStore)(nil)
