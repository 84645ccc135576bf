package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/juggajay/siteproof-v2-sub005/internal/model"

	_ "modernc.org/sqlite" // Pure Go SQLite driver - no CGO required
)

// SQLiteInspectionRepository implements InspectionRepository using SQLite.
// Writes are serialised by mu; the pool holds a single connection.
type SQLiteInspectionRepository struct {
	db *sql.DB
	mu sync.RWMutex
}

// NewSQLiteInspectionRepository creates a new SQLite inspection repository.
// dbPath is the path to the SQLite database file (e.g., "./data/inspections.db")
func NewSQLiteInspectionRepository(dbPath string) (*SQLiteInspectionRepository, error) {
	db, err := openSQLite(dbPath)
	if err != nil {
		return nil, err
	}

	if err := createSQLiteInspectionTables(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	log.Printf("[SQLiteInspectionRepository] Initialized with database: %s", dbPath)
	return &SQLiteInspectionRepository{db: db}, nil
}

func openSQLite(dbPath string) (*sql.DB, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)", dbPath)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite: %w", err)
	}

	// SQLite connection pool settings
	db.SetMaxOpenConns(1) // SQLite only supports 1 writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0) // Keep connection alive
	return db, nil
}

func createSQLiteInspectionTables(db *sql.DB) error {
	query := `
	CREATE TABLE IF NOT EXISTS inspections (
		id TEXT PRIMARY KEY,
		template_id TEXT NOT NULL,
		project_id TEXT NOT NULL,
		lot_id TEXT NOT NULL DEFAULT '',
		name TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		responses TEXT NOT NULL DEFAULT '{}',
		completion_percentage INTEGER NOT NULL DEFAULT 0,
		notes TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		completed_at INTEGER,
		offline_id TEXT NOT NULL DEFAULT ''
	);
	CREATE INDEX IF NOT EXISTS idx_inspections_project_updated ON inspections(project_id, updated_at);

	CREATE TABLE IF NOT EXISTS itp_templates (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL DEFAULT '',
		structure TEXT NOT NULL DEFAULT '{}',
		version INTEGER NOT NULL DEFAULT 1,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS itp_assignments (
		id TEXT PRIMARY KEY,
		template_id TEXT NOT NULL,
		project_id TEXT NOT NULL,
		lot_id TEXT NOT NULL DEFAULT '',
		assigned_to TEXT NOT NULL DEFAULT '',
		due_date INTEGER,
		status TEXT NOT NULL DEFAULT 'assigned',
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_assignments_project ON itp_assignments(project_id);
	`
	_, err := db.Exec(query)
	return err
}

const serverInspectionColumns = `id, template_id, project_id, lot_id, name, status, responses,
	completion_percentage, notes, created_at, updated_at, completed_at, offline_id`

// GetInspection retrieves an inspection by ID.
func (r *SQLiteInspectionRepository) GetInspection(ctx context.Context, id string) (*model.Inspection, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	query := `SELECT ` + serverInspectionColumns + ` FROM inspections WHERE id = ?`
	rec, err := scanSQLiteInspection(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get inspection: %w", err)
	}
	return rec, nil
}

// UpsertInspection inserts or replaces an inspection.
func (r *SQLiteInspectionRepository) UpsertInspection(ctx context.Context, rec *model.Inspection) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	responses, err := encodeJSON(rec.Responses)
	if err != nil {
		return fmt.Errorf("failed to encode responses: %w", err)
	}

	query := `
		INSERT INTO inspections (` + serverInspectionColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			template_id = excluded.template_id,
			project_id = excluded.project_id,
			lot_id = excluded.lot_id,
			name = excluded.name,
			status = excluded.status,
			responses = excluded.responses,
			completion_percentage = excluded.completion_percentage,
			notes = excluded.notes,
			updated_at = excluded.updated_at,
			completed_at = excluded.completed_at,
			offline_id = excluded.offline_id`

	_, err = r.db.ExecContext(ctx, query,
		rec.ID, rec.TemplateID, rec.ProjectID, rec.LotID, rec.Name, string(rec.Status), responses,
		rec.CompletionPercentage, rec.Notes, toNanos(rec.CreatedAt), toNanos(rec.UpdatedAt),
		nullNanos(rec.CompletedAt), rec.OfflineID)
	if err != nil {
		return fmt.Errorf("failed to upsert inspection %s: %w", rec.ID, err)
	}
	return nil
}

// ListInspections returns inspections for projects updated after since.
func (r *SQLiteInspectionRepository) ListInspections(ctx context.Context, projectIDs []string, since *time.Time) ([]*model.Inspection, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var (
		where []string
		args  []interface{}
	)
	if len(projectIDs) > 0 {
		clause, inArgs := inClause("project_id", projectIDs, 1, questionMark)
		where = append(where, clause)
		args = append(args, inArgs...)
	}
	if since != nil {
		where = append(where, "updated_at > ?")
		args = append(args, toNanos(*since))
	}

	query := `SELECT ` + serverInspectionColumns + ` FROM inspections`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY updated_at, id"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list inspections: %w", err)
	}
	defer rows.Close()

	var out []*model.Inspection
	for rows.Next() {
		rec, err := scanSQLiteInspection(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan inspection: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// UpsertTemplate inserts or replaces a template.
func (r *SQLiteInspectionRepository) UpsertTemplate(ctx context.Context, tpl *model.Template) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	structure := string(tpl.Structure)
	if structure == "" {
		structure = "{}"
	}

	query := `
		INSERT INTO itp_templates (id, name, structure, version, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			structure = excluded.structure,
			version = excluded.version,
			updated_at = excluded.updated_at`

	if _, err := r.db.ExecContext(ctx, query, tpl.ID, tpl.Name, structure, tpl.Version, toNanos(tpl.UpdatedAt)); err != nil {
		return fmt.Errorf("failed to upsert template %s: %w", tpl.ID, err)
	}
	return nil
}

// GetTemplate retrieves a template by ID.
func (r *SQLiteInspectionRepository) GetTemplate(ctx context.Context, id string) (*model.Template, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	query := `SELECT id, name, structure, version, updated_at FROM itp_templates WHERE id = ?`
	tpl, err := scanSQLiteTemplate(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get template: %w", err)
	}
	return tpl, nil
}

// ListTemplates returns every template.
func (r *SQLiteInspectionRepository) ListTemplates(ctx context.Context) ([]*model.Template, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rows, err := r.db.QueryContext(ctx, `SELECT id, name, structure, version, updated_at FROM itp_templates ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list templates: %w", err)
	}
	defer rows.Close()

	var out []*model.Template
	for rows.Next() {
		tpl, err := scanSQLiteTemplate(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan template: %w", err)
		}
		out = append(out, tpl)
	}
	return out, rows.Err()
}

// UpsertAssignment inserts or replaces an assignment.
func (r *SQLiteInspectionRepository) UpsertAssignment(ctx context.Context, a *model.Assignment) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	query := `
		INSERT INTO itp_assignments (id, template_id, project_id, lot_id, assigned_to, due_date, status, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			template_id = excluded.template_id,
			project_id = excluded.project_id,
			lot_id = excluded.lot_id,
			assigned_to = excluded.assigned_to,
			due_date = excluded.due_date,
			status = excluded.status,
			updated_at = excluded.updated_at`

	_, err := r.db.ExecContext(ctx, query,
		a.ID, a.TemplateID, a.ProjectID, a.LotID, a.AssignedTo, nullNanos(a.DueDate), a.Status, toNanos(a.UpdatedAt))
	if err != nil {
		return fmt.Errorf("failed to upsert assignment %s: %w", a.ID, err)
	}
	return nil
}

// ListAssignments returns assignments matching the filters.
func (r *SQLiteInspectionRepository) ListAssignments(ctx context.Context, projectIDs []string, assignedTo string, since *time.Time) ([]*model.Assignment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var (
		where []string
		args  []interface{}
	)
	if len(projectIDs) > 0 {
		clause, inArgs := inClause("project_id", projectIDs, 1, questionMark)
		where = append(where, clause)
		args = append(args, inArgs...)
	}
	if assignedTo != "" {
		where = append(where, "assigned_to = ?")
		args = append(args, assignedTo)
	}
	if since != nil {
		where = append(where, "updated_at > ?")
		args = append(args, toNanos(*since))
	}

	query := `SELECT id, template_id, project_id, lot_id, assigned_to, due_date, status, updated_at FROM itp_assignments`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY id"

	rows, err := r.db.QueryContext(ctx, query, args...)
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

// GetStats returns statistics about the inspection database.
func (r *SQLiteInspectionRepository) GetStats(ctx context.Context) (map[string]interface{}, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := make(map[string]interface{})

	for key, table := range map[string]string{
		"total_inspections": "inspections",
		"total_templates":   "itp_templates",
		"total_assignments": "itp_assignments",
	} {
		var count int64
		if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&count); err != nil {
			return nil, err
		}
		stats[key] = count
	}

	var lastUpdate sql.NullInt64
	if err := r.db.QueryRowContext(ctx, "SELECT MAX(updated_at) FROM inspections").Scan(&lastUpdate); err == nil && lastUpdate.Valid {
		stats["last_update"] = fromNanos(lastUpdate.Int64)
	}

	// Database file size (approximate from page count)
	var pageCount, pageSize int64
	r.db.QueryRowContext(ctx, "PRAGMA page_count").Scan(&pageCount)
	r.db.QueryRowContext(ctx, "PRAGMA page_size").Scan(&pageSize)
	stats["db_size_bytes"] = pageCount * pageSize

	return stats, nil
}

// Ping checks the connection.
func (r *SQLiteInspectionRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLiteInspectionRepository) Close() error {
	return r.db.Close()
}

func scanSQLiteInspection(row rowScanner) (*model.Inspection, error) {
	var (
		rec       model.Inspection
		status    string
		responses string
		created   int64
		updated   int64
		completed sql.NullInt64
	)
	err := row.Scan(&rec.ID, &rec.TemplateID, &rec.ProjectID, &rec.LotID, &rec.Name, &status, &responses,
		&rec.CompletionPercentage, &rec.Notes, &created, &updated, &completed, &rec.OfflineID)
	if err != nil {
		return nil, err
	}
	rec.Status = model.InspectionStatus(status)
	rec.CreatedAt = fromNanos(created)
	rec.UpdatedAt = fromNanos(updated)
	rec.CompletedAt = fromNullNanos(completed)
	if rec.Responses, err = decodeJSON(responses); err != nil {
		return nil, fmt.Errorf("inspection %s: failed to decode responses: %w", rec.ID, err)
	}
	return &rec, nil
}

func scanSQLiteTemplate(row rowScanner) (*model.Template, error) {
	var (
		tpl       model.Template
		structure string
		updated   int64
	)
	if err := row.Scan(&tpl.ID, &tpl.Name, &structure, &tpl.Version, &updated); err != nil {
		return nil, err
	}
	tpl.Structure = json.RawMessage(structure)
	tpl.UpdatedAt = fromNanos(updated)
	return &tpl, nil
}

// Ensure SQLiteInspectionRepository implements InspectionRepository
var _ InspectionRepository = (*SQLiteInspectionRepository)(nil)
