package ncr

import (
	"fmt"
	"strings"

	"github.com/juggajay/siteproof-v2-sub005/internal/model"
)

// Transition is one row of the table: any status in From may move to To when the
// actor holds one of Roles and supplies every RequiredFields entry.
type Transition struct {
	From           []model.NCRStatus
	To             model.NCRStatus
	RequiredFields []string
	Roles          []model.Role
}

// Row order matters: lookup takes the first row matching (from, to).
var transitions = []Transition{
	{
		From:  []model.NCRStatus{model.NCROpen},
		To:    model.NCRAcknowledged,
		Roles: []model.Role{model.RoleAssignedUser, model.RoleAdmin, model.RoleOwner},
	},
	{
		From:  []model.NCRStatus{model.NCRAcknowledged},
		To:    model.NCRInProgress,
		Roles: []model.Role{model.RoleAssignedUser, model.RoleAdmin, model.RoleOwner},
	},
	{
		From:           []model.NCRStatus{model.NCRInProgress},
		To:             model.NCRResolved,
		RequiredFields: []string{model.FieldRootCause, model.FieldCorrectiveAction, model.FieldPreventiveAction},
		Roles:          []model.Role{model.RoleAssignedUser, model.RoleAdmin, model.RoleOwner},
	},
	{
		From:           []model.NCRStatus{model.NCRResolved},
		To:             model.NCRClosed,
		RequiredFields: []string{model.FieldVerificationNotes},
		Roles:          []model.Role{model.RoleRaiser, model.RoleAdmin, model.RoleOwner},
	},
	{
		From:           []model.NCRStatus{model.NCROpen, model.NCRAcknowledged, model.NCRInProgress, model.NCRResolved},
		To:             model.NCRDisputed,
		RequiredFields: []string{model.FieldDisputeReason, model.FieldDisputeCategory},
		Roles:          []model.Role{model.RoleAssignedUser, model.RoleAdmin, model.RoleOwner},
	},
	{
		From:           []model.NCRStatus{model.NCRClosed, model.NCRDisputed},
		To:             model.NCROpen,
		RequiredFields: []string{model.FieldReopenedReason},
		Roles:          []model.Role{model.RoleRaiser, model.RoleAdmin, model.RoleOwner},
	},
	{
		From:  []model.NCRStatus{model.NCRDisputed},
		To:    model.NCROpen,
		Roles: []model.Role{model.RoleAdmin, model.RoleOwner},
	},
	{
		From:  []model.NCRStatus{model.NCRDisputed},
		To:    model.NCRAcknowledged,
		Roles: []model.Role{model.RoleAdmin, model.RoleOwner},
	},
	{
		From:  []model.NCRStatus{model.NCRDisputed},
		To:    model.NCRInProgress,
		Roles: []model.Role{model.RoleAdmin, model.RoleOwner},
	},
}

// Transitions returns a copy of the transition table.
func Transitions() []Transition {
	out := make([]Transition, len(transitions))
	for i, t := range transitions {
		out[i] = Transition{
			From:           append([]model.NCRStatus(nil), t.From...),
			To:             t.To,
			RequiredFields: append([]string(nil), t.RequiredFields...),
			Roles:          append([]model.Role(nil), t.Roles...),
		}
	}
	return out
}

// lookup returns the first row that moves current to proposed.
func lookup(current, proposed model.NCRStatus) (Transition, bool) {
	for _, t := range transitions {
		if t.To == proposed && containsStatus(t.From, current) {
			return t, true
		}
	}
	return Transition{}, false
}

// ValidateTransition checks, in order, that the move exists, that role may make it, and
// that every required field is present and non-blank in fields.
func ValidateTransition(current, proposed model.NCRStatus, role model.Role, fields map[string]string) Result {
	t, ok := lookup(current, proposed)
	if !ok {
		return Result{
			Code:    CodeInvalidTransition,
			Message: fmt.Sprintf("invalid transition from %s to %s", current, proposed),
		}
	}

	if !containsRole(t.Roles, role) {
		return Result{
			Code: CodeInsufficientRole,
			Message: fmt.Sprintf("role %s cannot move an NCR from %s to %s; requires one of: %s",
				role, current, proposed, joinRoles(t.Roles)),
			RequiredRoles: append([]model.Role(nil), t.Roles...),
		}
	}

	var missing []string
	for _, f := range t.RequiredFields {
		if strings.TrimSpace(fields[f]) == "" {
			missing = append(missing, f)
		}
	}
	if len(missing) > 0 {
		return Result{
			Code:          CodeMissingFields,
			Message:       "missing required fields: " + strings.Join(missing, ", "),
			MissingFields: missing,
		}
	}

	return Result{Valid: true}
}

// AllowedTransitions lists, in table order and without duplicates, every status role
// may move an NCR to from current.
func AllowedTransitions(current model.NCRStatus, role model.Role) []model.NCRStatus {
	allowed := []model.NCRStatus{}
	for _, t := range transitions {
		if !containsStatus(t.From, current) || containsStatus(allowed, t.To) {
			continue
		}
		// The first matching row decides, so a later row for the same target
		// cannot widen permissions.
		first, _ := lookup(current, t.To)
		if containsRole(first.Roles, role) {
			allowed = append(allowed, t.To)
		}
	}
	return allowed
}

// DeriveRole resolves the role userID acts with on n. Organization owners and admins
// always keep their org role; otherwise raising beats being assigned.
func DeriveRole(n *model.NCR, userID string, orgRole model.OrgRole) model.Role {
	switch orgRole {
	case model.OrgOwner:
		return model.RoleOwner
	case model.OrgAdmin:
		return model.RoleAdmin
	}
	if n != nil && userID != "" {
		if n.RaisedBy == userID {
			return model.RoleRaiser
		}
		if n.AssignedTo == userID {
			return model.RoleAssignedUser
		}
	}
	if orgRole == model.OrgMember {
		return model.RoleMember
	}
	return model.RoleViewer
}

// ParseStatus validates a status string from an untrusted source.
func ParseStatus(s string) (model.NCRStatus, error) {
	st := model.NCRStatus(strings.TrimSpace(strings.ToLower(s)))
	switch st {
	case model.NCROpen, model.NCRAcknowledged, model.NCRInProgress,
		model.NCRResolved, model.NCRClosed, model.NCRDisputed:
		return st, nil
	}
	return "", fmt.Errorf("unknown NCR status %q", s)
}

// ParseOrgRole validates an organization role string from an untrusted source.
func ParseOrgRole(s string) (model.OrgRole, error) {
	r := model.OrgRole(strings.TrimSpace(strings.ToLower(s)))
	switch r {
	case model.OrgOwner, model.OrgAdmin, model.OrgMember, model.OrgViewer:
		return r, nil
	}
	return "", fmt.Errorf("unknown organization role %q", s)
}

func containsStatus(list []model.NCRStatus, s model.NCRStatus) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func containsRole(list []model.Role, r model.Role) bool {
	for _, v := range list {
		if v == r {
			return true
		}
	}
	return false
}

func joinRoles(roles []model.Role) string {
	parts := make([]string, len(roles))
	for i, r := range roles {
		parts[i] = string(r)
	}
	return strings.Join(parts, ", ")
}
