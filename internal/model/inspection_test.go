package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validInspection() *Inspection {
	return &Inspection{
		ID:         "insp-1",
		TemplateID: "tpl-1",
		ProjectID:  "proj-1",
		Name:       "Footing pour",
		Status:     InspectionInProgress,
		Responses:  map[string]interface{}{"q1": "pass"},
	}
}

func TestInspection_Validate(t *testing.T) {
	require.NoError(t, validInspection().Validate())

	tests := []struct {
		name   string
		mutate func(*Inspection)
	}{
		{"missing id", func(i *Inspection) { i.ID = "" }},
		{"missing template", func(i *Inspection) { i.TemplateID = "" }},
		{"missing project", func(i *Inspection) { i.ProjectID = "" }},
		{"unknown status", func(i *Inspection) { i.Status = "archived" }},
		{"completion above 100", func(i *Inspection) { i.CompletionPercentage = 101 }},
		{"completion below 0", func(i *Inspection) { i.CompletionPercentage = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			insp := validInspection()
			tt.mutate(insp)
			assert.Error(t, insp.Validate())
		})
	}
}

func TestInspection_SameContentIgnoresBookkeeping(t *testing.T) {
	a := validInspection()
	b := a.Clone()
	b.UpdatedAt = time.Now()
	b.SyncStatus = SyncConflict
	b.OfflineID = "offline_x"

	assert.True(t, a.SameContent(b))

	b.Responses["q1"] = "fail"
	assert.False(t, a.SameContent(b))
}

func TestInspection_SameContentEmptyResponses(t *testing.T) {
	a := validInspection()
	a.Responses = nil
	b := a.Clone()
	b.Responses = map[string]interface{}{}

	assert.True(t, a.SameContent(b))
}

func TestInspection_CloneIsIndependent(t *testing.T) {
	now := time.Now()
	a := validInspection()
	a.CompletedAt = &now

	c := a.Clone()
	c.Responses["q2"] = "n/a"
	*c.CompletedAt = now.Add(time.Hour)

	assert.NotContains(t, a.Responses, "q2")
	assert.Equal(t, now, *a.CompletedAt)
}

func TestNCR_SetField(t *testing.T) {
	var n NCR
	assert.True(t, n.SetField(FieldRootCause, "formwork blowout"))
	assert.Equal(t, "formwork blowout", n.RootCause)
	assert.False(t, n.SetField("status", "closed"))
}
