package testutil

import (
	"encoding/json"
	"time"

	"github.com/juggajay/siteproof-v2-sub005/internal/model"
)

// NewInspection returns a valid draft inspection with the given id.
// Timestamps come from FixedClock so tests can compare them.
func NewInspection(id string) *model.Inspection {
	at := FixedClock().Now()
	return &model.Inspection{
		ID:         id,
		TemplateID: "tpl-1",
		ProjectID:  "proj-1",
		Name:       "Footing pour " + id,
		Status:     model.InspectionDraft,
		Responses: map[string]interface{}{
			"q1": "pass",
		},
		CompletionPercentage: 10,
		CreatedAt:            at,
		UpdatedAt:            at,
		SyncStatus:           model.SyncPending,
	}
}

// NewTemplate returns a template with a minimal checklist structure.
func NewTemplate(id string, version int, updatedAt time.Time) *model.Template {
	return &model.Template{
		ID:        id,
		Name:      "ITP " + id,
		Structure: json.RawMessage(`{"sections":[{"id":"s1","items":[{"id":"q1","type":"pass_fail"}]}]}`),
		Version:   version,
		UpdatedAt: updatedAt,
	}
}

// NewNCR returns an open NCR raised by raiser and assigned to assignee.
func NewNCR(id, raiser, assignee string) *model.NCR {
	at := FixedClock().Now()
	return &model.NCR{
		ID:          id,
		ProjectID:   "proj-1",
		NCRNumber:   "NCR-0001",
		Title:       "Honeycombing on slab edge",
		Description: "Visible voids along the north edge",
		Severity:    "major",
		Status:      model.NCROpen,
		RaisedBy:    raiser,
		AssignedTo:  assignee,
		CreatedAt:   at,
		UpdatedAt:   at,
	}
}
