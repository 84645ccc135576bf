package agent

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/juggajay/siteproof-v2-sub005/internal/model"
	"github.com/juggajay/siteproof-v2-sub005/internal/offline"
)

// Output formats accepted by --format.
const (
	FormatText = "text"
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// ParseFormat validates a --format value.
func ParseFormat(s string) (string, error) {
	switch strings.ToLower(s) {
	case FormatText, "":
		return FormatText, nil
	case FormatJSON:
		return FormatJSON, nil
	case FormatYAML, "yml":
		return FormatYAML, nil
	}
	return "", fmt.Errorf("unknown format %q (want text, json or yaml)", s)
}

// Render writes v in format. Text output is produced by text.
func Render(w io.Writer, format string, v interface{}, text func(io.Writer) error) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		return text(w)
	}
}

// ResultView is the printable form of a sync or download result.
type ResultView struct {
	Success           bool     `json:"success" yaml:"success"`
	Error             string   `json:"error,omitempty" yaml:"error,omitempty"`
	Created           []string `json:"created,omitempty" yaml:"created,omitempty"`
	Updated           []string `json:"updated,omitempty" yaml:"updated,omitempty"`
	Conflicts         []string `json:"conflicts,omitempty" yaml:"conflicts,omitempty"`
	Rejected          []string `json:"rejected,omitempty" yaml:"rejected,omitempty"`
	ServerInspections int      `json:"server_inspections" yaml:"server_inspections"`
	ServerTemplates   int      `json:"server_templates" yaml:"server_templates"`
	Assignments       int      `json:"assignments" yaml:"assignments"`
	EvictedTemplates  []string `json:"evicted_templates,omitempty" yaml:"evicted_templates,omitempty"`
	LastSync          string   `json:"last_sync,omitempty" yaml:"last_sync,omitempty"`
	ApplyErrors       []string `json:"apply_errors,omitempty" yaml:"apply_errors,omitempty"`
}

// NewResultView flattens res, turning errors into strings.
func NewResultView(res *offline.SyncResult) ResultView {
	v := ResultView{
		Success:           res.Success,
		Created:           res.Created,
		Updated:           res.Updated,
		Conflicts:         res.Conflicts,
		Rejected:          res.Rejected,
		ServerInspections: res.ServerInspections,
		ServerTemplates:   res.ServerTemplates,
		Assignments:       res.Assignments,
		EvictedTemplates:  res.EvictedTemplates,
	}
	if res.Err != nil {
		v.Error = res.Err.Error()
	}
	if !res.LastSyncTimestamp.IsZero() {
		v.LastSync = res.LastSyncTimestamp.UTC().Format(time.RFC3339)
	}
	for _, err := range res.ApplyErrors {
		v.ApplyErrors = append(v.ApplyErrors, err.Error())
	}
	return v
}

// Text prints the result for humans.
func (v ResultView) Text(w io.Writer) error {
	if !v.Success {
		_, err := fmt.Fprintf(w, "Sync did not run: %s\n", v.Error)
		return err
	}
	fmt.Fprintf(w, "Created:   %d\n", len(v.Created))
	fmt.Fprintf(w, "Updated:   %d\n", len(v.Updated))
	fmt.Fprintf(w, "Conflicts: %d\n", len(v.Conflicts))
	for _, id := range v.Conflicts {
		fmt.Fprintf(w, "  ! %s\n", id)
	}
	if len(v.Rejected) > 0 {
		fmt.Fprintf(w, "Rejected (still pending): %s\n", strings.Join(v.Rejected, ", "))
	}
	fmt.Fprintf(w, "From server: %d inspection(s), %d template(s), %d assignment(s)\n",
		v.ServerInspections, v.ServerTemplates, v.Assignments)
	if len(v.EvictedTemplates) > 0 {
		fmt.Fprintf(w, "Evicted templates: %s\n", strings.Join(v.EvictedTemplates, ", "))
	}
	for _, e := range v.ApplyErrors {
		fmt.Fprintf(w, "warning: %s\n", e)
	}
	if v.LastSync != "" {
		fmt.Fprintf(w, "Last sync: %s\n", v.LastSync)
	}
	return nil
}

// StatusView is the printable form of the local sync status.
type StatusView struct {
	Online        bool   `json:"online" yaml:"online"`
	Syncing       bool   `json:"syncing" yaml:"syncing"`
	LastSync      string `json:"last_sync,omitempty" yaml:"last_sync,omitempty"`
	PendingCount  int    `json:"pending_count" yaml:"pending_count"`
	ConflictCount int    `json:"conflict_count" yaml:"conflict_count"`
}

// NewStatusView converts s.
func NewStatusView(s *offline.SyncStatus) StatusView {
	v := StatusView{
		Online:        s.Online,
		Syncing:       s.Syncing,
		PendingCount:  s.PendingCount,
		ConflictCount: s.ConflictCount,
	}
	if s.LastSync != nil {
		v.LastSync = s.LastSync.UTC().Format(time.RFC3339)
	}
	return v
}

// Text prints the status for humans.
func (v StatusView) Text(w io.Writer) error {
	state := "offline"
	if v.Online {
		state = "online"
	}
	last := v.LastSync
	if last == "" {
		last = "never"
	}
	_, err := fmt.Fprintf(w, "Server:    %s\nLast sync: %s\nPending:   %d\nConflicts: %d\n",
		state, last, v.PendingCount, v.ConflictCount)
	return err
}

// InspectionRow is the printable summary of one local inspection.
type InspectionRow struct {
	ID         string `json:"id" yaml:"id"`
	Name       string `json:"name" yaml:"name"`
	Status     string `json:"status" yaml:"status"`
	Completion int    `json:"completion_percentage" yaml:"completion_percentage"`
	SyncStatus string `json:"sync_status" yaml:"sync_status"`
	UpdatedAt  string `json:"updated_at" yaml:"updated_at"`
}

// NewInspectionRows summarises recs.
func NewInspectionRows(recs []*model.Inspection) []InspectionRow {
	rows := make([]InspectionRow, 0, len(recs))
	for _, r := range recs {
		rows = append(rows, InspectionRow{
			ID:         r.ID,
			Name:       r.Name,
			Status:     string(r.Status),
			Completion: r.CompletionPercentage,
			SyncStatus: string(r.SyncStatus),
			UpdatedAt:  r.UpdatedAt.UTC().Format(time.RFC3339),
		})
	}
	return rows
}

// InspectionTable prints rows one per line.
func InspectionTable(rows []InspectionRow) func(io.Writer) error {
	return func(w io.Writer) error {
		if len(rows) == 0 {
			_, err := fmt.Fprintln(w, "No inspections.")
			return err
		}
		for _, r := range rows {
			fmt.Fprintf(w, "%-40s  %-8s  %-11s  %3d%%  %s  %s\n",
				r.ID, r.SyncStatus, r.Status, r.Completion, r.UpdatedAt, r.Name)
		}
		return nil
	}
}
