package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/juggajay/siteproof-v2-sub005/internal/model"
)

// SQLiteNCRRepository implements NCRRepository using SQLite.
type SQLiteNCRRepository struct {
	db *sql.DB
	mu sync.RWMutex
}

// NewSQLiteNCRRepository creates a new SQLite NCR repository.
func NewSQLiteNCRRepository(dbPath string) (*SQLiteNCRRepository, error) {
	db, err := openSQLite(dbPath)
	if err != nil {
		return nil, err
	}

	if err := createSQLiteNCRTables(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	log.Printf("[SQLiteNCRRepository] Initialized with database: %s", dbPath)
	return &SQLiteNCRRepository{db: db}, nil
}

func createSQLiteNCRTables(db *sql.DB) error {
	query := `
	CREATE TABLE IF NOT EXISTS ncrs (
		id TEXT PRIMARY KEY,
		project_id TEXT NOT NULL,
		ncr_number TEXT NOT NULL,
		title TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		severity TEXT NOT NULL DEFAULT 'minor',
		status TEXT NOT NULL,
		raised_by TEXT NOT NULL,
		assigned_to TEXT NOT NULL DEFAULT '',
		root_cause TEXT NOT NULL DEFAULT '',
		corrective_action TEXT NOT NULL DEFAULT '',
		preventive_action TEXT NOT NULL DEFAULT '',
		verification_notes TEXT NOT NULL DEFAULT '',
		dispute_reason TEXT NOT NULL DEFAULT '',
		dispute_category TEXT NOT NULL DEFAULT '',
		reopened_reason TEXT NOT NULL DEFAULT '',
		reopened_count INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		acknowledged_at INTEGER,
		resolved_at INTEGER,
		closed_at INTEGER,
		disputed_at INTEGER,
		reopened_at INTEGER
	);
	CREATE INDEX IF NOT EXISTS idx_ncrs_project ON ncrs(project_id);

	CREATE TABLE IF NOT EXISTS ncr_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		ncr_id TEXT NOT NULL REFERENCES ncrs(id),
		from_status TEXT NOT NULL,
		to_status TEXT NOT NULL,
		changed_by TEXT NOT NULL,
		role TEXT NOT NULL,
		comment TEXT NOT NULL DEFAULT '',
		changed_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_ncr_history_ncr ON ncr_history(ncr_id);
	`
	_, err := db.Exec(query)
	return err
}

const ncrColumns = `id, project_id, ncr_number, title, description, severity, status, raised_by, assigned_to,
	root_cause, corrective_action, preventive_action, verification_notes, dispute_reason, dispute_category,
	reopened_reason, reopened_count, created_at, updated_at, acknowledged_at, resolved_at, closed_at,
	disputed_at, reopened_at`

// CreateNCR inserts a new NCR.
func (r *SQLiteNCRRepository) CreateNCR(ctx context.Context, n *model.NCR) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	query := `INSERT INTO ncrs (` + ncrColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query,
		n.ID, n.ProjectID, n.NCRNumber, n.Title, n.Description, n.Severity, string(n.Status), n.RaisedBy, n.AssignedTo,
		n.RootCause, n.CorrectiveAction, n.PreventiveAction, n.VerificationNotes, n.DisputeReason, n.DisputeCategory,
		n.ReopenedReason, n.ReopenedCount, toNanos(n.CreatedAt), toNanos(n.UpdatedAt),
		nullNanos(n.AcknowledgedAt), nullNanos(n.ResolvedAt), nullNanos(n.ClosedAt),
		nullNanos(n.DisputedAt), nullNanos(n.ReopenedAt))
	if err != nil {
		return fmt.Errorf("failed to create ncr: %w", err)
	}
	return nil
}

// GetNCR retrieves an NCR by ID.
func (r *SQLiteNCRRepository) GetNCR(ctx context.Context, id string) (*model.NCR, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n, err := scanSQLiteNCR(r.db.QueryRowContext(ctx, `SELECT `+ncrColumns+` FROM ncrs WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get ncr: %w", err)
	}
	return n, nil
}

// CountNCRs returns how many NCRs a project has.
func (r *SQLiteNCRRepository) CountNCRs(ctx context.Context, projectID string) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var count int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM ncrs WHERE project_id = ?`, projectID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count ncrs: %w", err)
	}
	return count, nil
}

// ApplyTransition writes n and appends h atomically.
func (r *SQLiteNCRRepository) ApplyTransition(ctx context.Context, n *model.NCR, h *model.NCRHistory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		UPDATE ncrs SET
			status = ?, assigned_to = ?,
			root_cause = ?, corrective_action = ?, preventive_action = ?, verification_notes = ?,
			dispute_reason = ?, dispute_category = ?, reopened_reason = ?, reopened_count = ?,
			updated_at = ?, acknowledged_at = ?, resolved_at = ?, closed_at = ?, disputed_at = ?, reopened_at = ?
		WHERE id = ? AND status = ?`

	res, err := tx.ExecContext(ctx, query,
		string(n.Status), n.AssignedTo,
		n.RootCause, n.CorrectiveAction, n.PreventiveAction, n.VerificationNotes,
		n.DisputeReason, n.DisputeCategory, n.ReopenedReason, n.ReopenedCount,
		toNanos(n.UpdatedAt), nullNanos(n.AcknowledgedAt), nullNanos(n.ResolvedAt), nullNanos(n.ClosedAt),
		nullNanos(n.DisputedAt), nullNanos(n.ReopenedAt),
		n.ID, string(h.FromStatus))
	if err != nil {
		return fmt.Errorf("failed to update ncr: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrStatusChanged
	}

	hres, err := tx.ExecContext(ctx, `
		INSERT INTO ncr_history (ncr_id, from_status, to_status, changed_by, role, comment, changed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		h.NCRID, string(h.FromStatus), string(h.ToStatus), h.ChangedBy, string(h.Role), h.Comment, toNanos(h.ChangedAt))
	if err != nil {
		return fmt.Errorf("failed to append ncr history: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	if id, err := hres.LastInsertId(); err == nil {
		h.ID = id
	}
	return nil
}

// ListHistory returns the transitions of an NCR, oldest first.
func (r *SQLiteNCRRepository) ListHistory(ctx context.Context, ncrID string) ([]*model.NCRHistory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, ncr_id, from_status, to_status, changed_by, role, comment, changed_at
		FROM ncr_history WHERE ncr_id = ? ORDER BY id`, ncrID)
	if err != nil {
		return nil, fmt.Errorf("failed to list ncr history: %w", err)
	}
	defer rows.Close()

	var out []*model.NCRHistory
	for rows.Next() {
		var (
			h         model.NCRHistory
			from, to  string
			role      string
			changedAt int64
		)
		if err := rows.Scan(&h.ID, &h.NCRID, &from, &to, &h.ChangedBy, &role, &h.Comment, &changedAt); err != nil {
			return nil, fmt.Errorf("failed to scan ncr history: %w", err)
		}
		h.FromStatus = model.NCRStatus(from)
		h.ToStatus = model.NCRStatus(to)
		h.Role = model.Role(role)
		h.ChangedAt = fromNanos(changedAt)
		out = append(out, &h)
	}
	return out, rows.Err()
}

// GetStats returns statistics about the NCR database.
func (r *SQLiteNCRRepository) GetStats(ctx context.Context) (map[string]interface{}, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return ncrStats(ctx, r.db)
}

// Ping checks the connection.
func (r *SQLiteNCRRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLiteNCRRepository) Close() error {
	return r.db.Close()
}

// ncrStats counts NCRs per status. The query is portable across backends.
func ncrStats(ctx context.Context, db *sql.DB) (map[string]interface{}, error) {
	rows, err := db.QueryContext(ctx, `SELECT status, COUNT(*) FROM ncrs GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byStatus := make(map[string]int64)
	var total int64
	for rows.Next() {
		var (
			status string
			count  int64
		)
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		byStatus[status] = count
		total += count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return map[string]interface{}{
		"total_ncrs": total,
		"by_status":  byStatus,
	}, nil
}

func scanSQLiteNCR(row rowScanner) (*model.NCR, error) {
	var (
		n                                     model.NCR
		status                                string
		created, updated                      int64
		acked, resolved, closed, disp, reopen sql.NullInt64
	)
	err := row.Scan(&n.ID, &n.ProjectID, &n.NCRNumber, &n.Title, &n.Description, &n.Severity, &status, &n.RaisedBy, &n.AssignedTo,
		&n.RootCause, &n.CorrectiveAction, &n.PreventiveAction, &n.VerificationNotes, &n.DisputeReason, &n.DisputeCategory,
		&n.ReopenedReason, &n.ReopenedCount, &created, &updated, &acked, &resolved, &closed, &disp, &reopen)
	if err != nil {
		return nil, err
	}
	n.Status = model.NCRStatus(status)
	n.CreatedAt = fromNanos(created)
	n.UpdatedAt = fromNanos(updated)
	n.AcknowledgedAt = fromNullNanos(acked)
	n.ResolvedAt = fromNullNanos(resolved)
	n.ClosedAt = fromNullNanos(closed)
	n.DisputedAt = fromNullNanos(disp)
	n.ReopenedAt = fromNullNanos(reopen)
	return &n, nil
}

// Ensure SQLiteNCRRepository implements NCRRepository
var _ NCRRepository = (*SQLiteNCRRepository)(nil)
