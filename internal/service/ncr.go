package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/juggajay/siteproof-v2-sub005/internal/model"
	"github.com/juggajay/siteproof-v2-sub005/internal/ncr"
	"github.com/juggajay/siteproof-v2-sub005/internal/repository"
	"github.com/juggajay/siteproof-v2-sub005/pkg/apierror"
	"github.com/juggajay/siteproof-v2-sub005/pkg/uid"
)

// Severities an NCR may carry.
var ncrSeverities = map[string]bool{"minor": true, "major": true, "critical": true}

// CreateNCRInput is the caller-supplied part of a new NCR.
type CreateNCRInput struct {
	ProjectID   string `json:"project_id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Severity    string `json:"severity"`
	AssignedTo  string `json:"assigned_to"`
}

// TransitionInput requests a status change.
type TransitionInput struct {
	Status  string            `json:"status"`
	Fields  map[string]string `json:"fields"`
	Comment string            `json:"comment"`
}

// TransitionOptions lists where the caller may move an NCR next.
type TransitionOptions struct {
	Status  model.NCRStatus   `json:"status"`
	Role    model.Role        `json:"role"`
	Allowed []model.NCRStatus `json:"allowed"`
}

// NCRService runs the NCR workflow on top of the state machine.
type NCRService struct {
	repo  repository.NCRRepository
	now   func() time.Time
	newID func() string
}

// NewNCRService creates an NCR service. now may be nil.
func NewNCRService(repo repository.NCRRepository, now func() time.Time) *NCRService {
	if now == nil {
		now = time.Now
	}
	return &NCRService{repo: repo, now: now, newID: uid.New}
}

// Create raises a new NCR in status open with actor as the raiser.
func (s *NCRService) Create(ctx context.Context, actor model.Actor, in CreateNCRInput) (*model.NCR, error) {
	if actor.OrgRole == model.OrgViewer {
		return nil, apierror.Forbidden("viewers cannot raise NCRs")
	}

	var details []apierror.FieldError
	if strings.TrimSpace(in.ProjectID) == "" {
		details = append(details, apierror.FieldError{Field: "project_id", Message: "is required"})
	}
	if strings.TrimSpace(in.Title) == "" {
		details = append(details, apierror.FieldError{Field: "title", Message: "is required"})
	}
	if in.Severity == "" {
		in.Severity = "minor"
	}
	if !ncrSeverities[in.Severity] {
		details = append(details, apierror.FieldError{Field: "severity", Message: "must be minor, major or critical"})
	}
	if len(details) > 0 {
		return nil, apierror.ValidationError("invalid NCR", details...)
	}

	count, err := s.repo.CountNCRs(ctx, in.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("counting NCRs: %w", err)
	}

	now := s.now().UTC()
	n := &model.NCR{
		ID:          s.newID(),
		ProjectID:   in.ProjectID,
		NCRNumber:   fmt.Sprintf("NCR-%04d", count+1),
		Title:       strings.TrimSpace(in.Title),
		Description: in.Description,
		Severity:    in.Severity,
		Status:      model.NCROpen,
		RaisedBy:    actor.UserID,
		AssignedTo:  in.AssignedTo,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.CreateNCR(ctx, n); err != nil {
		return nil, fmt.Errorf("creating NCR: %w", err)
	}

	log.Printf("[NCRService] Created %s (%s) in project=%s by user=%s", n.NCRNumber, n.ID, n.ProjectID, actor.UserID)
	return n, nil
}

// Get returns an NCR or a 404 error.
func (s *NCRService) Get(ctx context.Context, id string) (*model.NCR, error) {
	n, err := s.repo.GetNCR(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("loading NCR %s: %w", id, err)
	}
	if n == nil {
		return nil, apierror.NotFound("NCR not found")
	}
	return n, nil
}

// Allowed reports the caller's role on an NCR and the statuses it may move to.
func (s *NCRService) Allowed(ctx context.Context, actor model.Actor, id string) (*TransitionOptions, error) {
	n, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	role := ncr.DeriveRole(n, actor.UserID, actor.OrgRole)
	return &TransitionOptions{
		Status:  n.Status,
		Role:    role,
		Allowed: ncr.AllowedTransitions(n.Status, role),
	}, nil
}

// Transition validates and applies a status change. A rejected transition comes
// back as a *ncr.TransitionError.
func (s *NCRService) Transition(ctx context.Context, actor model.Actor, id string, in TransitionInput) (*model.NCR, error) {
	to, err := ncr.ParseStatus(in.Status)
	if err != nil {
		return nil, apierror.BadRequest(err.Error())
	}

	n, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	role := ncr.DeriveRole(n, actor.UserID, actor.OrgRole)
	if err := ncr.ValidateTransition(n.Status, to, role, in.Fields).Err(); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	updated := *n
	for name, value := range in.Fields {
		updated.SetField(name, value)
	}
	updated.Status = to
	updated.UpdatedAt = now
	stampLifecycle(&updated, to, now)

	h := &model.NCRHistory{
		NCRID:      n.ID,
		FromStatus: n.Status,
		ToStatus:   to,
		ChangedBy:  actor.UserID,
		Role:       role,
		Comment:    in.Comment,
		ChangedAt:  now,
	}
	if err := s.repo.ApplyTransition(ctx, &updated, h); err != nil {
		if errors.Is(err, repository.ErrStatusChanged) {
			return nil, apierror.Conflict("NCR status changed since it was read; reload and retry")
		}
		return nil, fmt.Errorf("applying transition on %s: %w", id, err)
	}

	log.Printf("[NCRService] %s %s -> %s by user=%s role=%s", n.NCRNumber, n.Status, to, actor.UserID, role)
	return &updated, nil
}

// History returns the transitions applied to an NCR, oldest first.
func (s *NCRService) History(ctx context.Context, id string) ([]*model.NCRHistory, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	history, err := s.repo.ListHistory(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("listing history for %s: %w", id, err)
	}
	if history == nil {
		history = []*model.NCRHistory{}
	}
	return history, nil
}

// stampLifecycle records when n entered status to. Moving back to open counts as
// a reopen.
func stampLifecycle(n *model.NCR, to model.NCRStatus, now time.Time) {
	at := now
	switch to {
	case model.NCRAcknowledged:
		n.AcknowledgedAt = &at
	case model.NCRResolved:
		n.ResolvedAt = &at
	case model.NCRClosed:
		n.ClosedAt = &at
	case model.NCRDisputed:
		n.DisputedAt = &at
	case model.NCROpen:
		n.ReopenedAt = &at
		n.ReopenedCount++
	}
}
