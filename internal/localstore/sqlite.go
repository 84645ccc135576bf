package localstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/juggajay/siteproof-v2-sub005/internal/localstore/migrations"
	"github.com/juggajay/siteproof-v2-sub005/internal/model"
	"github.com/juggajay/siteproof-v2-sub005/internal/offline"

	_ "modernc.org/sqlite" // Pure Go SQLite driver - no CGO required
)

// SQLiteStore is the durable device store. Timestamps are stored as UTC unix
// nanoseconds so ordering by last_accessed is exact.
type SQLiteStore struct {
	db   *sql.DB
	path string
	mu   sync.RWMutex
}

var _ offline.Store = (*SQLiteStore)(nil)

// OpenSQLite opens (creating if needed) the store at path and migrates it.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite: %w", err)
	}

	// SQLite only supports 1 writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := migrations.Up(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate %s: %w", path, err)
	}

	return &SQLiteStore{db: db, path: path}, nil
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string { return s.path }

const inspectionColumns = `id, template_id, project_id, lot_id, name, status, responses,
	completion_percentage, notes, created_at, updated_at, completed_at, offline_id, sync_status, base_updated_at`

func (s *SQLiteStore) PutInspection(ctx context.Context, rec *model.Inspection) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	responses, err := encodeResponses(rec.Responses)
	if err != nil {
		return fmt.Errorf("failed to encode responses for %s: %w", rec.ID, err)
	}

	query := `
		INSERT INTO inspections (` + inspectionColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			template_id = excluded.template_id,
			project_id = excluded.project_id,
			lot_id = excluded.lot_id,
			name = excluded.name,
			status = excluded.status,
			responses = excluded.responses,
			completion_percentage = excluded.completion_percentage,
			notes = excluded.notes,
			created_at = excluded.created_at,
			updated_at = excluded.updated_at,
			completed_at = excluded.completed_at,
			offline_id = excluded.offline_id,
			sync_status = excluded.sync_status,
			base_updated_at = excluded.base_updated_at`

	_, err = s.db.ExecContext(ctx, query,
		rec.ID, rec.TemplateID, rec.ProjectID, rec.LotID, rec.Name, string(rec.Status), responses,
		rec.CompletionPercentage, rec.Notes, toNanos(rec.CreatedAt), toNanos(rec.UpdatedAt),
		nullNanos(rec.CompletedAt), rec.OfflineID, string(rec.SyncStatus), nullNanos(rec.BaseUpdatedAt))
	if err != nil {
		return fmt.Errorf("failed to upsert inspection %s: %w", rec.ID, err)
	}
	return nil
}

func (s *SQLiteStore) GetInspection(ctx context.Context, id string) (*model.Inspection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `SELECT `+inspectionColumns+` FROM inspections WHERE id = ?`, id)
	rec, err := scanInspection(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get inspection %s: %w", id, err)
	}
	return rec, nil
}

func (s *SQLiteStore) ListInspectionsBySyncStatus(ctx context.Context, status model.SyncStatus) ([]*model.Inspection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT `+inspectionColumns+` FROM inspections WHERE sync_status = ?`, string(status))
	if err != nil {
		return nil, fmt.Errorf("failed to list %s inspections: %w", status, err)
	}
	defer rows.Close()

	var out []*model.Inspection
	for rows.Next() {
		rec, err := scanInspection(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan inspection: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) CountInspectionsBySyncStatus(ctx context.Context, status model.SyncStatus) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM inspections WHERE sync_status = ?`, string(status)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count %s inspections: %w", status, err)
	}
	return n, nil
}

func (s *SQLiteStore) MarkInspection(ctx context.Context, id string, status model.SyncStatus, base *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `UPDATE inspections SET sync_status = ?, base_updated_at = ? WHERE id = ?`,
		string(status), nullNanos(base), id)
	if err != nil {
		return fmt.Errorf("failed to set sync status for %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("inspection %s: %w", id, ErrNotFound)
	}
	return nil
}

const templateColumns = `id, name, structure, version, updated_at, last_accessed`

func (s *SQLiteStore) PutTemplate(ctx context.Context, tpl *model.Template) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	structure := string(tpl.Structure)
	if structure == "" {
		structure = "{}"
	}

	query := `
		INSERT INTO templates (` + templateColumns + `)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			structure = excluded.structure,
			version = excluded.version,
			updated_at = excluded.updated_at,
			last_accessed = excluded.last_accessed`

	_, err := s.db.ExecContext(ctx, query,
		tpl.ID, tpl.Name, structure, tpl.Version, toNanos(tpl.UpdatedAt), toNanos(tpl.LastAccessed))
	if err != nil {
		return fmt.Errorf("failed to upsert template %s: %w", tpl.ID, err)
	}
	return nil
}

func (s *SQLiteStore) GetTemplate(ctx context.Context, id string) (*model.Template, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tpl, err := scanTemplate(s.db.QueryRowContext(ctx, `SELECT `+templateColumns+` FROM templates WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get template %s: %w", id, err)
	}
	return tpl, nil
}

func (s *SQLiteStore) ListTemplates(ctx context.Context) ([]*model.Template, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT `+templateColumns+` FROM templates ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list templates: %w", err)
	}
	defer rows.Close()

	var out []*model.Template
	for rows.Next() {
		tpl, err := scanTemplate(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan template: %w", err)
		}
		out = append(out, tpl)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) TouchTemplate(ctx context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `UPDATE templates SET last_accessed = ? WHERE id = ?`, toNanos(at), id)
	if err != nil {
		return fmt.Errorf("failed to touch template %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("template %s: %w", id, ErrNotFound)
	}
	return nil
}

func (s *SQLiteStore) EvictTemplates(ctx context.Context, keep int) ([]string, error) {
	if keep < 0 {
		return nil, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var total int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM templates`).Scan(&total); err != nil {
		return nil, fmt.Errorf("failed to count templates: %w", err)
	}
	if total <= keep {
		return nil, nil
	}

	rows, err := tx.QueryContext(ctx,
		`SELECT id FROM templates ORDER BY last_accessed ASC, id ASC LIMIT ?`, total-keep)
	if err != nil {
		return nil, fmt.Errorf("failed to select templates to evict: %w", err)
	}
	var evicted []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan template id: %w", err)
		}
		evicted = append(evicted, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, id := range evicted {
		if _, err := tx.ExecContext(ctx, `DELETE FROM templates WHERE id = ?`, id); err != nil {
			return nil, fmt.Errorf("failed to evict template %s: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return evicted, nil
}

func (s *SQLiteStore) PutAssignment(ctx context.Context, a *model.Assignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO assignments (id, template_id, project_id, lot_id, assigned_to, due_date, status, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			template_id = excluded.template_id,
			project_id = excluded.project_id,
			lot_id = excluded.lot_id,
			assigned_to = excluded.assigned_to,
			due_date = excluded.due_date,
			status = excluded.status,
			updated_at = excluded.updated_at`

	_, err := s.db.ExecContext(ctx, query,
		a.ID, a.TemplateID, a.ProjectID, a.LotID, a.AssignedTo, nullNanos(a.DueDate), a.Status, toNanos(a.UpdatedAt))
	if err != nil {
		return fmt.Errorf("failed to upsert assignment %s: %w", a.ID, err)
	}
	return nil
}

func (s *SQLiteStore) ListAssignments(ctx context.Context) ([]*model.Assignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, template_id, project_id, lot_id, assigned_to, due_date, status, updated_at
		FROM assignments ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list assignments: %w", err)
	}
	defer rows.Close()

	var out []*model.Assignment
	for rows.Next() {
		var (
			a       model.Assignment
			due     sql.NullInt64
			updated int64
		)
		if err := rows.Scan(&a.ID, &a.TemplateID, &a.ProjectID, &a.LotID, &a.AssignedTo, &due, &a.Status, &updated); err != nil {
			return nil, fmt.Errorf("failed to scan assignment: %w", err)
		}
		a.DueDate = fromNullNanos(due)
		a.UpdatedAt = fromNanos(updated)
		out = append(out, &a)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) GetMetadata(ctx context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM sync_metadata WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get metadata %s: %w", key, err)
	}
	return value, true, nil
}

func (s *SQLiteStore) SetMetadata(ctx context.Context, key, value string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sync_metadata (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, toNanos(at))
	if err != nil {
		return fmt.Errorf("failed to set metadata %s: %w", key, err)
	}
	return nil
}

func (s *SQLiteStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"inspections", "templates", "assignments", "sync_metadata"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanInspection(row scanner) (*model.Inspection, error) {
	var (
		rec        model.Inspection
		status     string
		syncStatus string
		responses  string
		created    int64
		updated    int64
		completed  sql.NullInt64
		base       sql.NullInt64
	)
	err := row.Scan(&rec.ID, &rec.TemplateID, &rec.ProjectID, &rec.LotID, &rec.Name, &status, &responses,
		&rec.CompletionPercentage, &rec.Notes, &created, &updated, &completed, &rec.OfflineID, &syncStatus, &base)
	if err != nil {
		return nil, err
	}
	rec.Status = model.InspectionStatus(status)
	rec.SyncStatus = model.SyncStatus(syncStatus)
	rec.CreatedAt = fromNanos(created)
	rec.UpdatedAt = fromNanos(updated)
	rec.CompletedAt = fromNullNanos(completed)
	rec.BaseUpdatedAt = fromNullNanos(base)
	if rec.Responses, err = decodeResponses(responses); err != nil {
		return nil, fmt.Errorf("inspection %s: %w", rec.ID, err)
	}
	return &rec, nil
}

func scanTemplate(row scanner) (*model.Template, error) {
	var (
		tpl       model.Template
		structure string
		updated   int64
		accessed  int64
	)
	if err := row.Scan(&tpl.ID, &tpl.Name, &structure, &tpl.Version, &updated, &accessed); err != nil {
		return nil, err
	}
	tpl.Structure = json.RawMessage(structure)
	tpl.UpdatedAt = fromNanos(updated)
	tpl.LastAccessed = fromNanos(accessed)
	return &tpl, nil
}

func encodeResponses(r map[string]interface{}) (string, error) {
	if len(r) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(r)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeResponses(s string) (map[string]interface{}, error) {
	if s == "" || s == "{}" {
		return nil, nil
	}
	var r map[string]interface{}
	if err := json.Unmarshal([]byte(s), &r); err != nil {
		return nil, fmt.Errorf("failed to decode responses: %w", err)
	}
	return r, nil
}

func toNanos(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromNanos(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}

func nullNanos(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixNano(), Valid: true}
}

func fromNullNanos(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := time.Unix(0, n.Int64).UTC()
	return &t
}
