package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// InspectionStatus is the lifecycle status of an inspection.
type InspectionStatus string

const (
	InspectionDraft      InspectionStatus = "draft"
	InspectionInProgress InspectionStatus = "in_progress"
	InspectionCompleted  InspectionStatus = "completed"
	InspectionApproved   InspectionStatus = "approved"
)

// Valid reports whether s is a known lifecycle status.
func (s InspectionStatus) Valid() bool {
	switch s {
	case InspectionDraft, InspectionInProgress, InspectionCompleted, InspectionApproved:
		return true
	}
	return false
}

// SyncStatus tracks whether a local record has been acknowledged by the server.
// It is local state only; the server never trusts a submitted value.
type SyncStatus string

const (
	SyncPending  SyncStatus = "pending"
	SyncSynced   SyncStatus = "synced"
	SyncConflict SyncStatus = "conflict"
)

// Inspection is an ITP inspection record, either the server's copy or a device's
// possibly-unsynced copy.
type Inspection struct {
	ID                   string                 `json:"id"`
	TemplateID           string                 `json:"template_id"`
	ProjectID            string                 `json:"project_id"`
	LotID                string                 `json:"lot_id,omitempty"`
	Name                 string                 `json:"name"`
	Status               InspectionStatus       `json:"status"`
	Responses            map[string]interface{} `json:"responses,omitempty"`
	CompletionPercentage int                    `json:"completion_percentage"`
	Notes                string                 `json:"notes,omitempty"`
	CreatedAt            time.Time              `json:"created_at"`
	UpdatedAt            time.Time              `json:"updated_at"`
	CompletedAt          *time.Time             `json:"completed_at,omitempty"`
	OfflineID            string                 `json:"offline_id,omitempty"`
	SyncStatus           SyncStatus             `json:"sync_status,omitempty"`
	// BaseUpdatedAt is the server updated_at of the copy this edit started from.
	// Nil for a record the server has never acknowledged.
	BaseUpdatedAt        *time.Time             `json:"base_updated_at,omitempty"`
}

// Validate checks the fields a record needs before it can be stored or submitted.
func (i *Inspection) Validate() error {
	if i.ID == "" {
		return fmt.Errorf("inspection id is required")
	}
	if i.TemplateID == "" {
		return fmt.Errorf("inspection %s: template_id is required", i.ID)
	}
	if i.ProjectID == "" {
		return fmt.Errorf("inspection %s: project_id is required", i.ID)
	}
	if !i.Status.Valid() {
		return fmt.Errorf("inspection %s: unknown status %q", i.ID, i.Status)
	}
	if i.CompletionPercentage < 0 || i.CompletionPercentage > 100 {
		return fmt.Errorf("inspection %s: completion_percentage %d out of range 0-100", i.ID, i.CompletionPercentage)
	}
	return nil
}

// Clone returns a copy whose responses map can be mutated independently.
func (i *Inspection) Clone() *Inspection {
	if i == nil {
		return nil
	}
	c := *i
	if i.Responses != nil {
		c.Responses = make(map[string]interface{}, len(i.Responses))
		for k, v := range i.Responses {
			c.Responses[k] = v
		}
	}
	if i.CompletedAt != nil {
		t := *i.CompletedAt
		c.CompletedAt = &t
	}
	if i.BaseUpdatedAt != nil {
		t := *i.BaseUpdatedAt
		c.BaseUpdatedAt = &t
	}
	return &c
}

// inspectionContent is the part of an inspection a user edits. Timestamps and
// sync bookkeeping are excluded so two copies can be compared for real divergence.
type inspectionContent struct {
	TemplateID           string                 `json:"template_id"`
	ProjectID            string                 `json:"project_id"`
	LotID                string                 `json:"lot_id"`
	Name                 string                 `json:"name"`
	Status               InspectionStatus       `json:"status"`
	Responses            map[string]interface{} `json:"responses"`
	CompletionPercentage int                    `json:"completion_percentage"`
	Notes                string                 `json:"notes"`
}

// SameContent reports whether two inspections carry the same user-edited content.
func (i *Inspection) SameContent(other *Inspection) bool {
	if i == nil || other == nil {
		return i == other
	}
	a, errA := json.Marshal(i.content())
	b, errB := json.Marshal(other.content())
	if errA != nil || errB != nil {
		return false
	}
	return string(a) == string(b)
}

func (i *Inspection) content() inspectionContent {
	responses := i.Responses
	if len(responses) == 0 {
		responses = nil
	}
	return inspectionContent{
		TemplateID:           i.TemplateID,
		ProjectID:            i.ProjectID,
		LotID:                i.LotID,
		Name:                 i.Name,
		Status:               i.Status,
		Responses:            responses,
		CompletionPercentage: i.CompletionPercentage,
		Notes:                i.Notes,
	}
}

// Template is a cached ITP template. Structure is the checklist definition and is
// treated as opaque JSON.
type Template struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Structure    json.RawMessage `json:"structure,omitempty"`
	Version      int             `json:"version"`
	UpdatedAt    time.Time       `json:"updated_at"`
	LastAccessed time.Time       `json:"last_accessed"`
}

// Meta returns the lightweight description a device sends during sync.
func (t *Template) Meta() TemplateMeta {
	return TemplateMeta{
		ID:           t.ID,
		Version:      t.Version,
		UpdatedAt:    t.UpdatedAt,
		LastAccessed: t.LastAccessed,
	}
}

// Assignment hands an ITP template to a user for a project or lot.
type Assignment struct {
	ID         string     `json:"id"`
	TemplateID string     `json:"template_id"`
	ProjectID  string     `json:"project_id"`
	LotID      string     `json:"lot_id,omitempty"`
	AssignedTo string     `json:"assigned_to"`
	DueDate    *time.Time `json:"due_date,omitempty"`
	Status     string     `json:"status"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// LastSyncKey is the metadata key under which the server-issued sync low-water mark is stored.
const LastSyncKey = "last_sync_timestamp"

// SyncMetadata is a single key-value row of device sync bookkeeping.
type SyncMetadata struct {
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}
