package model

import "time"

// TemplateMeta is what a device reports about each cached template so the server can
// decide whether to push a newer copy.
type TemplateMeta struct {
	ID           string    `json:"id"`
	Version      int       `json:"version"`
	UpdatedAt    time.Time `json:"updated_at"`
	LastAccessed time.Time `json:"last_accessed"`
}

// SyncRequest is the single batched payload of a reconciliation round.
// Inspections carry complete record bodies, never diffs.
type SyncRequest struct {
	LastSyncTimestamp *time.Time     `json:"lastSyncTimestamp"`
	Inspections       []*Inspection  `json:"inspections"`
	Templates         []TemplateMeta `json:"templates"`
}

// InspectionConflict pairs the submitted copy with the server's current copy.
type InspectionConflict struct {
	Client *Inspection `json:"client"`
	Server *Inspection `json:"server"`
}

// InspectionRejection is a submitted inspection the server refused to store.
type InspectionRejection struct {
	ID     string `json:"id"`
	Reason string `json:"reason"`
}

// InspectionOutcome classifies every submitted inspection into exactly one bucket.
type InspectionOutcome struct {
	Created   []string              `json:"created"`
	Updated   []string              `json:"updated"`
	Conflicts []InspectionConflict  `json:"conflicts"`
	Rejected  []InspectionRejection `json:"rejected"`
}

// ServerUpdates carries server-side changes since the device's last sync that the
// device did not submit itself.
type ServerUpdates struct {
	Inspections []*Inspection `json:"inspections"`
	Templates   []*Template   `json:"templates"`
}

// SyncResponse is the server's answer to a SyncRequest.
type SyncResponse struct {
	Inspections       InspectionOutcome `json:"inspections"`
	ServerUpdates     ServerUpdates     `json:"serverUpdates"`
	LastSyncTimestamp time.Time         `json:"lastSyncTimestamp"`
}

// BulkDownloadRequest scopes an offline provisioning snapshot.
type BulkDownloadRequest struct {
	ProjectIDs         []string   `json:"project_ids"`
	IncludeTemplates   bool       `json:"include_templates"`
	IncludeAssignments bool       `json:"include_assignments"`
	IncludeResponses   bool       `json:"include_responses"`
	LastSync           *time.Time `json:"last_sync"`
}

// DownloadMetadata describes a bulk download snapshot.
type DownloadMetadata struct {
	DownloadedAt time.Time      `json:"downloaded_at"`
	ProjectIDs   []string       `json:"project_ids"`
	Counts       map[string]int `json:"counts"`
}

// BulkDownloadResponse is a full or incremental snapshot for the requested scope.
type BulkDownloadResponse struct {
	Inspections []*Inspection    `json:"inspections"`
	Templates   []*Template      `json:"templates"`
	Assignments []*Assignment    `json:"assignments"`
	Metadata    DownloadMetadata `json:"metadata"`
}

// ResolutionStrategy is how a conflicted inspection should be settled.
type ResolutionStrategy string

const (
	ResolveUseClient ResolutionStrategy = "use_client"
	ResolveUseServer ResolutionStrategy = "use_server"
	ResolveMerge     ResolutionStrategy = "merge"
)

// Valid reports whether s is a known strategy.
func (s ResolutionStrategy) Valid() bool {
	switch s {
	case ResolveUseClient, ResolveUseServer, ResolveMerge:
		return true
	}
	return false
}

// ResolveRequest settles one conflicted inspection.
type ResolveRequest struct {
	InspectionID string                 `json:"inspection_id"`
	Strategy     ResolutionStrategy     `json:"strategy"`
	Client       *Inspection            `json:"client,omitempty"`
	MergedFields map[string]interface{} `json:"merged_fields,omitempty"`
}

// ResolveResponse returns the server record after resolution.
type ResolveResponse struct {
	Strategy   ResolutionStrategy `json:"strategy"`
	Inspection *Inspection        `json:"inspection"`
}
