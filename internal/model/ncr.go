package model

import "time"

// NCRStatus is a non-conformance report lifecycle state.
type NCRStatus string

const (
	NCROpen         NCRStatus = "open"
	NCRAcknowledged NCRStatus = "acknowledged"
	NCRInProgress   NCRStatus = "in_progress"
	NCRResolved     NCRStatus = "resolved"
	NCRClosed       NCRStatus = "closed"
	NCRDisputed     NCRStatus = "disputed"
)

// OrgRole is a user's role within the organization.
type OrgRole string

const (
	OrgOwner  OrgRole = "owner"
	OrgAdmin  OrgRole = "admin"
	OrgMember OrgRole = "member"
	OrgViewer OrgRole = "viewer"
)

// Role is the effective permission role of a user for one NCR.
type Role string

const (
	RoleOwner        Role = "owner"
	RoleAdmin        Role = "admin"
	RoleRaiser       Role = "raiser"
	RoleAssignedUser Role = "assigned_user"
	RoleMember       Role = "member"
	RoleViewer       Role = "viewer"
)

// NCR field names that transitions may require.
const (
	FieldRootCause         = "root_cause"
	FieldCorrectiveAction  = "corrective_action"
	FieldPreventiveAction  = "preventive_action"
	FieldVerificationNotes = "verification_notes"
	FieldDisputeReason     = "dispute_reason"
	FieldDisputeCategory   = "dispute_category"
	FieldReopenedReason    = "reopened_reason"
)

// NCR is a non-conformance report.
type NCR struct {
	ID                string     `json:"id"`
	ProjectID         string     `json:"project_id"`
	NCRNumber         string     `json:"ncr_number"`
	Title             string     `json:"title"`
	Description       string     `json:"description,omitempty"`
	Severity          string     `json:"severity"`
	Status            NCRStatus  `json:"status"`
	RaisedBy          string     `json:"raised_by"`
	AssignedTo        string     `json:"assigned_to,omitempty"`
	RootCause         string     `json:"root_cause,omitempty"`
	CorrectiveAction  string     `json:"corrective_action,omitempty"`
	PreventiveAction  string     `json:"preventive_action,omitempty"`
	VerificationNotes string     `json:"verification_notes,omitempty"`
	DisputeReason     string     `json:"dispute_reason,omitempty"`
	DisputeCategory   string     `json:"dispute_category,omitempty"`
	ReopenedReason    string     `json:"reopened_reason,omitempty"`
	ReopenedCount     int        `json:"reopened_count"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
	AcknowledgedAt    *time.Time `json:"acknowledged_at,omitempty"`
	ResolvedAt        *time.Time `json:"resolved_at,omitempty"`
	ClosedAt          *time.Time `json:"closed_at,omitempty"`
	DisputedAt        *time.Time `json:"disputed_at,omitempty"`
	ReopenedAt        *time.Time `json:"reopened_at,omitempty"`
}

// SetField writes one of the transition text fields by name. Unknown names are ignored
// and reported as false.
func (n *NCR) SetField(name, value string) bool {
	switch name {
	case FieldRootCause:
		n.RootCause = value
	case FieldCorrectiveAction:
		n.CorrectiveAction = value
	case FieldPreventiveAction:
		n.PreventiveAction = value
	case FieldVerificationNotes:
		n.VerificationNotes = value
	case FieldDisputeReason:
		n.DisputeReason = value
	case FieldDisputeCategory:
		n.DisputeCategory = value
	case FieldReopenedReason:
		n.ReopenedReason = value
	default:
		return false
	}
	return true
}

// NCRHistory is one applied status transition.
type NCRHistory struct {
	ID         int64     `json:"id"`
	NCRID      string    `json:"ncr_id"`
	FromStatus NCRStatus `json:"from_status"`
	ToStatus   NCRStatus `json:"to_status"`
	ChangedBy  string    `json:"changed_by"`
	Role       Role      `json:"role"`
	Comment    string    `json:"comment,omitempty"`
	ChangedAt  time.Time `json:"changed_at"`
}
