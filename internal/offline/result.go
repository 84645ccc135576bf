package offline

import "time"

// SyncResult summarises one PerformSync or BulkDownload call.
// Success is false only when the round did not happen; Err then says why and no
// local state was changed. ApplyErrors lists per-item failures after a successful
// round.
type SyncResult struct {
	Success bool  `json:"success"`
	Err     error `json:"-"`

	Created   []string `json:"created,omitempty"`
	Updated   []string `json:"updated,omitempty"`
	Conflicts []string `json:"conflicts,omitempty"`
	// Rejected records stay pending locally.
	Rejected  []string `json:"rejected,omitempty"`

	ServerInspections int      `json:"server_inspections"`
	ServerTemplates   int      `json:"server_templates"`
	Assignments       int      `json:"assignments,omitempty"`
	EvictedTemplates  []string `json:"evicted_templates,omitempty"`

	LastSyncTimestamp time.Time `json:"last_sync_timestamp,omitempty"`
	ApplyErrors       []error   `json:"-"`
}

func (r *SyncResult) addApplyError(err error) {
	r.ApplyErrors = append(r.ApplyErrors, err)
}

// SyncStatus is the local view of sync state.
type SyncStatus struct {
	Online        bool       `json:"online"`
	Syncing       bool       `json:"syncing"`
	LastSync      *time.Time `json:"last_sync,omitempty"`
	PendingCount  int        `json:"pending_count"`
	ConflictCount int        `json:"conflict_count"`
}

// DownloadScope selects what BulkDownload fetches. Incremental restricts the
// snapshot to rows changed since the last successful sync.
type DownloadScope struct {
	ProjectIDs         []string
	IncludeTemplates   bool
	IncludeAssignments bool
	IncludeResponses   bool
	Incremental        bool
}
