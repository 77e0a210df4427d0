// Package sqlite provides a SQLite-backed workflow storage implementation.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"github.com/tailored-agentic-units/workflow/storage"
	"github.com/tailored-agentic-units/workflow/storage/sqlite/migrations"
	"github.com/tailored-agentic-units/workflow/storage/sqlitemigrate"
)

// Store persists workflow definitions and subject markings in SQLite.
type Store struct {
	sqlDB *sql.DB
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens a SQLite workflow store and applies embedded migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := sqlitemigrate.Apply(context.Background(), sqlDB, migrations.FS, ""); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// CreateWorkflow inserts one workflow with its places and transitions.
func (s *Store) CreateWorkflow(ctx context.Context, record storage.WorkflowRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	name := strings.TrimSpace(record.Name)
	if name == "" {
		return fmt.Errorf("workflow name is required")
	}
	if strings.TrimSpace(record.StartPlace) == "" {
		return fmt.Errorf("start place is required")
	}

	createdAt := record.CreatedAt.UTC()
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	updatedAt := record.UpdatedAt.UTC()
	if updatedAt.IsZero() {
		updatedAt = createdAt
	}

	supports, err := encodeList(record.Supports)
	if err != nil {
		return err
	}
	lastPlaces, err := encodeList(record.LastPlaces)
	if err != nil {
		return err
	}
	extra, err := encodeExtra(record.Extra)
	if err != nil {
		return err
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create workflow: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO workflows (
		   name, supports, start_place, final_place, last_places, extra, created_at, updated_at
		 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		name, supports, record.StartPlace, record.FinalPlace, lastPlaces, extra,
		toMillis(createdAt), toMillis(updatedAt),
	); err != nil {
		if isUniqueViolation(err) {
			return storage.ErrAlreadyExists
		}
		return fmt.Errorf("insert workflow: %w", err)
	}

	for i, p := range record.Places {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO workflow_places (workflow_name, position, name, label) VALUES (?, ?, ?, ?)`,
			name, i, p.Name, p.Label,
		); err != nil {
			return fmt.Errorf("insert place %q: %w", p.Name, err)
		}
	}

	for i, t := range record.Transitions {
		from, err := encodeList(t.From)
		if err != nil {
			return err
		}
		to, err := encodeList(t.To)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO workflow_transitions (
			   workflow_name, position, name, label, from_places, to_places, permission, handle_by_system
			 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			name, i, t.Name, t.Label, from, to, t.Permission, t.HandleBySystem,
		); err != nil {
			return fmt.Errorf("insert transition %q: %w", t.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create workflow: %w", err)
	}
	return nil
}

// GetWorkflow returns one workflow with its places and transitions.
func (s *Store) GetWorkflow(ctx context.Context, name string) (storage.WorkflowRecord, error) {
	if err := ctx.Err(); err != nil {
		return storage.WorkflowRecord{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.WorkflowRecord{}, fmt.Errorf("storage is not configured")
	}

	row := s.sqlDB.QueryRowContext(ctx, selectWorkflows+` WHERE name = ?`, strings.TrimSpace(name))
	record, err := scanWorkflow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.WorkflowRecord{}, storage.ErrNotFound
	}
	if err != nil {
		return storage.WorkflowRecord{}, err
	}
	if err := s.loadRelations(ctx, &record); err != nil {
		return storage.WorkflowRecord{}, err
	}
	return record, nil
}

// ListWorkflows returns every workflow with its places and transitions in
// creation order.
func (s *Store) ListWorkflows(ctx context.Context) ([]storage.WorkflowRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}

	rows, err := s.sqlDB.QueryContext(ctx, selectWorkflows+` ORDER BY created_at, name`)
	if err != nil {
		return nil, fmt.Errorf("list workflows: %w", err)
	}
	defer rows.Close()

	var records []storage.WorkflowRecord
	for rows.Next() {
		record, err := scanWorkflow(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate workflows: %w", err)
	}

	for i := range records {
		if err := s.loadRelations(ctx, &records[i]); err != nil {
			return nil, err
		}
	}
	return records, nil
}

// DeleteWorkflow removes a workflow and its places and transitions.
func (s *Store) DeleteWorkflow(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}

	name = strings.TrimSpace(name)
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete workflow: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, table := range []string{"workflow_transitions", "workflow_places"} {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE workflow_name = ?`, name); err != nil {
			return fmt.Errorf("delete %s: %w", table, err)
		}
	}

	result, err := tx.ExecContext(ctx, `DELETE FROM workflows WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("delete workflow: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete workflow rows affected: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete workflow: %w", err)
	}
	return nil
}

const selectWorkflows = `SELECT name, supports, start_place, final_place, last_places, extra, created_at, updated_at FROM workflows`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWorkflow(row rowScanner) (storage.WorkflowRecord, error) {
	var (
		record                     storage.WorkflowRecord
		supports, lastPlaces, extra string
		createdAt, updatedAt       int64
	)
	if err := row.Scan(
		&record.Name, &supports, &record.StartPlace, &record.FinalPlace,
		&lastPlaces, &extra, &createdAt, &updatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.WorkflowRecord{}, err
		}
		return storage.WorkflowRecord{}, fmt.Errorf("scan workflow: %w", err)
	}

	var err error
	if record.Supports, err = decodeList(supports); err != nil {
		return storage.WorkflowRecord{}, err
	}
	if record.LastPlaces, err = decodeList(lastPlaces); err != nil {
		return storage.WorkflowRecord{}, err
	}
	if record.Extra, err = decodeExtra(extra); err != nil {
		return storage.WorkflowRecord{}, err
	}
	record.CreatedAt = fromMillis(createdAt)
	record.UpdatedAt = fromMillis(updatedAt)
	return record, nil
}

func (s *Store) loadRelations(ctx context.Context, record *storage.WorkflowRecord) error {
	places, err := s.sqlDB.QueryContext(ctx,
		`SELECT name, label FROM workflow_places WHERE workflow_name = ? ORDER BY position`, record.Name)
	if err != nil {
		return fmt.Errorf("list places: %w", err)
	}
	defer places.Close()

	for places.Next() {
		var p storage.PlaceRecord
		if err := places.Scan(&p.Name, &p.Label); err != nil {
			return fmt.Errorf("scan place: %w", err)
		}
		record.Places = append(record.Places, p)
	}
	if err := places.Err(); err != nil {
		return fmt.Errorf("iterate places: %w", err)
	}

	transitions, err := s.sqlDB.QueryContext(ctx,
		`SELECT name, label, from_places, to_places, permission, handle_by_system
		   FROM workflow_transitions WHERE workflow_name = ? ORDER BY position`, record.Name)
	if err != nil {
		return fmt.Errorf("list transitions: %w", err)
	}
	defer transitions.Close()

	for transitions.Next() {
		var (
			t        storage.TransitionRecord
			from, to string
		)
		if err := transitions.Scan(&t.Name, &t.Label, &from, &to, &t.Permission, &t.HandleBySystem); err != nil {
			return fmt.Errorf("scan transition: %w", err)
		}
		if t.From, err = decodeList(from); err != nil {
			return err
		}
		if t.To, err = decodeList(to); err != nil {
			return err
		}
		record.Transitions = append(record.Transitions, t)
	}
	if err := transitions.Err(); err != nil {
		return fmt.Errorf("iterate transitions: %w", err)
	}
	return nil
}

func encodeList(values []string) (string, error) {
	if values == nil {
		values = []string{}
	}
	data, err := json.Marshal(values)
	if err != nil {
		return "", fmt.Errorf("encode list: %w", err)
	}
	return string(data), nil
}

func decodeList(raw string) ([]string, error) {
	var values []string
	if err := json.Unmarshal([]byte(raw), &values); err != nil {
		return nil, fmt.Errorf("decode list: %w", err)
	}
	if len(values) == 0 {
		return nil, nil
	}
	return values, nil
}

func encodeExtra(values map[string]any) (string, error) {
	if values == nil {
		values = map[string]any{}
	}
	data, err := json.Marshal(values)
	if err != nil {
		return "", fmt.Errorf("encode extra fields: %w", err)
	}
	return string(data), nil
}

func decodeExtra(raw string) (map[string]any, error) {
	var values map[string]any
	if err := json.Unmarshal([]byte(raw), &values); err != nil {
		return nil, fmt.Errorf("decode extra fields: %w", err)
	}
	if len(values) == 0 {
		return nil, nil
	}
	return values, nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}

var _ storage.WorkflowStore = (*Store)(nil)
