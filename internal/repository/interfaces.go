package repository

import (
	"context"
	"errors"
	"time"

	"github.com/juggajay/siteproof-v2-sub005/internal/model"
)

// ErrStatusChanged is returned when an NCR update finds the row no longer in the
// status the caller validated against.
var ErrStatusChanged = errors.New("ncr status changed concurrently")

// InspectionRepository defines server-side inspection, template and assignment access.
// Getters return (nil, nil) for a missing row.
type InspectionRepository interface {
	// GetInspection retrieves an inspection by ID.
	GetInspection(ctx context.Context, id string) (*model.Inspection, error)

	// UpsertInspection inserts or replaces an inspection.
	UpsertInspection(ctx context.Context, rec *model.Inspection) error

	// ListInspections returns inspections in projectIDs (all projects when empty)
	// updated strictly after since (all when nil).
	ListInspections(ctx context.Context, projectIDs []string, since *time.Time) ([]*model.Inspection, error)

	// UpsertTemplate inserts or replaces a template.
	UpsertTemplate(ctx context.Context, tpl *model.Template) error

	// GetTemplate retrieves a template by ID.
	GetTemplate(ctx context.Context, id string) (*model.Template, error)

	// ListTemplates returns every template.
	ListTemplates(ctx context.Context) ([]*model.Template, error)

	// UpsertAssignment inserts or replaces an assignment.
	UpsertAssignment(ctx context.Context, a *model.Assignment) error

	// ListAssignments returns assignments in projectIDs (all when empty) for
	// assignedTo (everyone when empty) updated after since (all when nil).
	ListAssignments(ctx context.Context, projectIDs []string, assignedTo string, since *time.Time) ([]*model.Assignment, error)

	// GetStats returns statistics about the inspection database.
	GetStats(ctx context.Context) (map[string]interface{}, error)

	// Ping checks the connection.
	Ping(ctx context.Context) error

	// Close closes the repository connection.
	Close() error
}

// NCRRepository defines non-conformance report data access methods.
type NCRRepository interface {
	// CreateNCR inserts a new NCR.
	CreateNCR(ctx context.Context, n *model.NCR) error

	// GetNCR retrieves an NCR by ID.
	GetNCR(ctx context.Context, id string) (*model.NCR, error)

	// CountNCRs returns how many NCRs a project has, used for numbering.
	CountNCRs(ctx context.Context, projectID string) (int, error)

	// ApplyTransition writes n and appends h in one transaction, provided the stored
	// status still equals h.FromStatus. Otherwise it returns ErrStatusChanged.
	ApplyTransition(ctx context.Context, n *model.NCR, h *model.NCRHistory) error

	// ListHistory returns the transitions of an NCR, oldest first.
	ListHistory(ctx context.Context, ncrID string) ([]*model.NCRHistory, error)

	// GetStats returns statistics about the NCR database.
	GetStats(ctx context.Context) (map[string]interface{}, error)

	// Ping checks the connection.
	Ping(ctx context.Context) error

	// Close closes the repository connection.
	Close() error
}
