package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/juggajay/siteproof-v2-sub005/internal/model"

	_ "github.com/go-sql-driver/mysql" // MySQL driver
)

// MySQLNCRRepository implements NCRRepository using MySQL.
type MySQLNCRRepository struct {
	db *sql.DB
}

// OpenMySQL opens and pings a MySQL pool. dsn must set parseTime=true.
func OpenMySQL(dsn string) (*sql.DB, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open MySQL: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping MySQL: %w", err)
	}
	return db, nil
}

// NewMySQLNCRRepository creates a new MySQL NCR repository and ensures its tables exist.
func NewMySQLNCRRepository(db *sql.DB) (*MySQLNCRRepository, error) {
	if err := createMySQLNCRTables(db); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	log.Printf("[MySQLNCRRepository] Initialized")
	return &MySQLNCRRepository{db: db}, nil
}

func createMySQLNCRTables(db *sql.DB) error {
	// The driver runs one statement per Exec unless multiStatements is set.
	statements := []string{`
		CREATE TABLE IF NOT EXISTS ncrs (
			id VARCHAR(64) PRIMARY KEY,
			project_id VARCHAR(64) NOT NULL,
			ncr_number VARCHAR(32) NOT NULL,
			title VARCHAR(255) NOT NULL,
			description TEXT NOT NULL,
			severity VARCHAR(32) NOT NULL DEFAULT 'minor',
			status VARCHAR(32) NOT NULL,
			raised_by VARCHAR(64) NOT NULL,
			assigned_to VARCHAR(64) NOT NULL DEFAULT '',
			root_cause TEXT NOT NULL,
			corrective_action TEXT NOT NULL,
			preventive_action TEXT NOT NULL,
			verification_notes TEXT NOT NULL,
			dispute_reason TEXT NOT NULL,
			dispute_category VARCHAR(64) NOT NULL DEFAULT '',
			reopened_reason TEXT NOT NULL,
			reopened_count INT NOT NULL DEFAULT 0,
			created_at DATETIME(6) NOT NULL,
			updated_at DATETIME(6) NOT NULL,
			acknowledged_at DATETIME(6) NULL,
			resolved_at DATETIME(6) NULL,
			closed_at DATETIME(6) NULL,
			disputed_at DATETIME(6) NULL,
			reopened_at DATETIME(6) NULL,
			INDEX idx_ncrs_project (project_id)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`, `
		CREATE TABLE IF NOT EXISTS ncr_history (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			ncr_id VARCHAR(64) NOT NULL,
			from_status VARCHAR(32) NOT NULL,
			to_status VARCHAR(32) NOT NULL,
			changed_by VARCHAR(64) NOT NULL,
			role VARCHAR(32) NOT NULL,
			comment TEXT NOT NULL,
			changed_at DATETIME(6) NOT NULL,
			INDEX idx_ncr_history_ncr (ncr_id)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	}
	for _, stmt := range statements {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// CreateNCR inserts a new NCR.
func (r *MySQLNCRRepository) CreateNCR(ctx context.Context, n *model.NCR) error {
	query := `INSERT INTO ncrs (` + ncrColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query,
		n.ID, n.ProjectID, n.NCRNumber, n.Title, n.Description, n.Severity, string(n.Status), n.RaisedBy, n.AssignedTo,
		n.RootCause, n.CorrectiveAction, n.PreventiveAction, n.VerificationNotes, n.DisputeReason, n.DisputeCategory,
		n.ReopenedReason, n.ReopenedCount, n.CreatedAt.UTC(), n.UpdatedAt.UTC(),
		nullTime(n.AcknowledgedAt), nullTime(n.ResolvedAt), nullTime(n.ClosedAt),
		nullTime(n.DisputedAt), nullTime(n.ReopenedAt))
	if err != nil {
		return fmt.Errorf("failed to create ncr: %w", err)
	}
	return nil
}

// GetNCR retrieves an NCR by ID.
func (r *MySQLNCRRepository) GetNCR(ctx context.Context, id string) (*model.NCR, error) {
	n, err := scanMySQLNCR(r.db.QueryRowContext(ctx, `SELECT `+ncrColumns+` FROM ncrs WHERE id = ? LIMIT 1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get ncr: %w", err)
	}
	return n, nil
}

// CountNCRs returns how many NCRs a project has.
func (r *MySQLNCRRepository) CountNCRs(ctx context.Context, projectID string) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM ncrs WHERE project_id = ?`, projectID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count ncrs: %w", err)
	}
	return count, nil
}

// ApplyTransition writes n and appends h atomically. The row is locked with
// SELECT ... FOR UPDATE so two transitions cannot interleave.
func (r *MySQLNCRRepository) ApplyTransition(ctx context.Context, n *model.NCR, h *model.NCRHistory) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var current string
	err = tx.QueryRowContext(ctx, `SELECT status FROM ncrs WHERE id = ? FOR UPDATE`, n.ID).Scan(&current)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrStatusChanged
		}
		return fmt.Errorf("failed to lock ncr: %w", err)
	}
	if model.NCRStatus(current) != h.FromStatus {
		return ErrStatusChanged
	}

	query := `
		UPDATE ncrs SET
			status = ?, assigned_to = ?,
			root_cause = ?, corrective_action = ?, preventive_action = ?, verification_notes = ?,
			dispute_reason = ?, dispute_category = ?, reopened_reason = ?, reopened_count = ?,
			updated_at = ?, acknowledged_at = ?, resolved_at = ?, closed_at = ?, disputed_at = ?, reopened_at = ?
		WHERE id = ?`

	_, err = tx.ExecContext(ctx, query,
		string(n.Status), n.AssignedTo,
		n.RootCause, n.CorrectiveAction, n.PreventiveAction, n.VerificationNotes,
		n.DisputeReason, n.DisputeCategory, n.ReopenedReason, n.ReopenedCount,
		n.UpdatedAt.UTC(), nullTime(n.AcknowledgedAt), nullTime(n.ResolvedAt), nullTime(n.ClosedAt),
		nullTime(n.DisputedAt), nullTime(n.ReopenedAt),
		n.ID)
	if err != nil {
		return fmt.Errorf("failed to update ncr: %w", err)
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO ncr_history (ncr_id, from_status, to_status, changed_by, role, comment, changed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		h.NCRID, string(h.FromStatus), string(h.ToStatus), h.ChangedBy, string(h.Role), h.Comment, h.ChangedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to append ncr history: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	if id, err := res.LastInsertId(); err == nil {
		h.ID = id
	}
	return nil
}

// ListHistory returns the transitions of an NCR, oldest first.
func (r *MySQLNCRRepository) ListHistory(ctx context.Context, ncrID string) ([]*model.NCRHistory, error) {
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
			h        model.NCRHistory
			from, to string
			role     string
		)
		if err := rows.Scan(&h.ID, &h.NCRID, &from, &to, &h.ChangedBy, &role, &h.Comment, &h.ChangedAt); err != nil {
			return nil, fmt.Errorf("failed to scan ncr history: %w", err)
		}
		h.FromStatus = model.NCRStatus(from)
		h.ToStatus = model.NCRStatus(to)
		h.Role = model.Role(role)
		h.ChangedAt = h.ChangedAt.UTC()
		out = append(out, &h)
	}
	return out, rows.Err()
}

// GetStats returns statistics about the NCR database.
func (r *MySQLNCRRepository) GetStats(ctx context.Context) (map[string]interface{}, error) {
	stats, err := ncrStats(ctx, r.db)
	if err != nil {
		return nil, err
	}
	dbStats := r.db.Stats()
	stats["connections"] = map[string]interface{}{
		"open":     dbStats.OpenConnections,
		"in_use":   dbStats.InUse,
		"idle":     dbStats.Idle,
		"max_open": dbStats.MaxOpenConnections,
	}
	return stats, nil
}

// Ping checks the connection.
func (r *MySQLNCRRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection pool.
func (r *MySQLNCRRepository) Close() error {
	return r.db.Close()
}

func scanMySQLNCR(row rowScanner) (*model.NCR, error) {
	var (
		n                                     model.NCR
		status                                string
		acked, resolved, closed, disp, reopen sql.NullTime
	)
	err := row.Scan(&n.ID, &n.ProjectID, &n.NCRNumber, &n.Title, &n.Description, &n.Severity, &status, &n.RaisedBy, &n.AssignedTo,
		&n.RootCause, &n.CorrectiveAction, &n.PreventiveAction, &n.VerificationNotes, &n.DisputeReason, &n.DisputeCategory,
		&n.ReopenedReason, &n.ReopenedCount, &n.CreatedAt, &n.UpdatedAt, &acked, &resolved, &closed, &disp, &reopen)
	if err != nil {
		return nil, err
	}
	n.Status = model.NCRStatus(status)
	n.CreatedAt = n.CreatedAt.UTC()
	n.UpdatedAt = n.UpdatedAt.UTC()
	n.AcknowledgedAt = fromNullTime(acked)
	n.ResolvedAt = fromNullTime(resolved)
	n.ClosedAt = fromNullTime(closed)
	n.DisputedAt = fromNullTime(disp)
	n.ReopenedAt = fromNullTime(reopen)
	return &n, nil
}

// Ensure MySQLNCRRepository implements NCRRepository
var _ NCRRepository = (*MySQLNCRRepository)(nil)
