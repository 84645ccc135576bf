package offline

import (
	"context"
	"time"

	"github.com/juggajay/siteproof-v2-sub005/internal/model"
)

// Store is the device-local durable storage the Engine works against.
// Getters return (nil, nil) for a missing row.
type Store interface {
	PutInspection(ctx context.Context, rec *model.Inspection) error
	GetInspection(ctx context.Context, id string) (*model.Inspection, error)
	ListInspectionsBySyncStatus(ctx context.Context, status model.SyncStatus) ([]*model.Inspection, error)
	CountInspectionsBySyncStatus(ctx context.Context, status model.SyncStatus) (int, error)
	// MarkInspection sets the sync status and server base timestamp of a stored
	// record without touching its body.
	MarkInspection(ctx context.Context, id string, status model.SyncStatus, base *time.Time) error

	PutTemplate(ctx context.Context, tpl *model.Template) error
	GetTemplate(ctx context.Context, id string) (*model.Template, error)
	ListTemplates(ctx context.Context) ([]*model.Template, error)
	TouchTemplate(ctx context.Context, id string, at time.Time) error
	// EvictTemplates deletes the least recently accessed templates until at most
	// keep remain, returning the evicted ids.
	EvictTemplates(ctx context.Context, keep int) ([]string, error)

	PutAssignment(ctx context.Context, a *model.Assignment) error
	ListAssignments(ctx context.Context) ([]*model.Assignment, error)

	GetMetadata(ctx context.Context, key string) (string, bool, error)
	SetMetadata(ctx context.Context, key, value string, at time.Time) error

	// Clear removes every row from every table.
	Clear(ctx context.Context) error
	Close() error
}
