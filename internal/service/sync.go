package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/juggajay/siteproof-v2-sub005/internal/cache"
	"github.com/juggajay/siteproof-v2-sub005/internal/model"
	"github.com/juggajay/siteproof-v2-sub005/internal/repository"
	"github.com/juggajay/siteproof-v2-sub005/pkg/apierror"
	"github.com/juggajay/siteproof-v2-sub005/pkg/uid"
)

const (
	// DefaultIdempotencyTTL is how long a sync response is replayable.
	DefaultIdempotencyTTL = 10 * time.Minute

	// DefaultMaxBatch caps the inspections accepted in one sync request.
	DefaultMaxBatch = 500

	// syncLockTTL bounds how long an abandoned in-flight marker blocks a retry.
	syncLockTTL = 2 * time.Minute
)

// SyncServiceConfig tunes a SyncService. Zero values take the defaults.
type SyncServiceConfig struct {
	IdempotencyTTL time.Duration
	MaxBatch       int
	Now            func() time.Time
}

// SyncService reconciles device submissions against the server inspection store.
type SyncService struct {
	repo           repository.InspectionRepository
	cache          cache.Cache
	idempotencyTTL time.Duration
	maxBatch       int
	now            func() time.Time
}

// NewSyncService creates a sync service. The cache holds replayable responses.
func NewSyncService(repo repository.InspectionRepository, c cache.Cache, cfg SyncServiceConfig) *SyncService {
	if cfg.IdempotencyTTL <= 0 {
		cfg.IdempotencyTTL = DefaultIdempotencyTTL
	}
	if cfg.MaxBatch <= 0 {
		cfg.MaxBatch = DefaultMaxBatch
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &SyncService{
		repo:           repo,
		cache:          c,
		idempotencyTTL: cfg.IdempotencyTTL,
		maxBatch:       cfg.MaxBatch,
		now:            cfg.Now,
	}
}

// SyncOutcome is a sync response plus whether it was replayed from the cache.
type SyncOutcome struct {
	Response *model.SyncResponse
	Replayed bool
}

// Sync processes one raw sync request body for actor. An identical body from the
// same user within the idempotency window replays the first response.
func (s *SyncService) Sync(ctx context.Context, actor model.Actor, body []byte) (*SyncOutcome, error) {
	var req model.SyncRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, apierror.BadRequest("invalid sync request JSON")
	}
	if len(req.Inspections) > s.maxBatch {
		return nil, apierror.BadRequest(fmt.Sprintf(
			"batch of %d inspections exceeds the limit of %d", len(req.Inspections), s.maxBatch))
	}
	if details := validateBatch(req.Inspections); len(details) > 0 {
		return nil, apierror.ValidationError("invalid inspections in sync batch", details...)
	}

	key := idempotencyKey(actor.UserID, body)
	if resp, ok := s.replay(ctx, key); ok {
		log.Printf("[SyncService] Replayed sync for user=%s", actor.UserID)
		return &SyncOutcome{Response: resp, Replayed: true}, nil
	}

	lockKey := key + ":lock"
	token := []byte(uid.New())
	acquired, err := s.cache.SetNX(ctx, lockKey, token, syncLockTTL)
	if err != nil {
		log.Printf("[SyncService] Idempotency lock unavailable, processing without it: %v", err)
	} else if !acquired {
		return nil, apierror.Conflict("an identical sync request is already being processed")
	} else {
		defer func() {
			if _, err := s.cache.CompareAndDelete(context.WithoutCancel(ctx), lockKey, token); err != nil {
				log.Printf("[SyncService] Failed to release sync lock: %v", err)
			}
		}()
	}

	resp, err := s.reconcile(ctx, actor, &req)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(resp); err == nil {
		if err := s.cache.Set(ctx, key, data, s.idempotencyTTL); err != nil {
			log.Printf("[SyncService] Failed to cache sync response: %v", err)
		}
	}

	log.Printf("[SyncService] user=%s created=%d updated=%d conflicts=%d rejected=%d server_inspections=%d server_templates=%d",
		actor.UserID, len(resp.Inspections.Created), len(resp.Inspections.Updated),
		len(resp.Inspections.Conflicts), len(resp.Inspections.Rejected),
		len(resp.ServerUpdates.Inspections), len(resp.ServerUpdates.Templates))

	return &SyncOutcome{Response: resp}, nil
}

func (s *SyncService) replay(ctx context.Context, key string) (*model.SyncResponse, bool) {
	data, err := s.cache.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			log.Printf("[SyncService] Idempotency lookup failed: %v", err)
		}
		return nil, false
	}
	var resp model.SyncResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		log.Printf("[SyncService] Discarding unreadable cached response: %v", err)
		return nil, false
	}
	return &resp, true
}

// reconcile classifies each submitted inspection and gathers server-side changes.
func (s *SyncService) reconcile(ctx context.Context, actor model.Actor, req *model.SyncRequest) (*model.SyncResponse, error) {
	now := s.now().UTC()
	resp := &model.SyncResponse{
		Inspections: model.InspectionOutcome{
			Created:   []string{},
			Updated:   []string{},
			Conflicts: []model.InspectionConflict{},
			Rejected:  []model.InspectionRejection{},
		},
		ServerUpdates: model.ServerUpdates{
			Inspections: []*model.Inspection{},
			Templates:   []*model.Template{},
		},
		LastSyncTimestamp: now,
	}

	scope, err := s.projectScope(ctx, actor)
	if err != nil {
		return nil, err
	}

	submitted := make(map[string]bool, len(req.Inspections))
	for _, rec := range req.Inspections {
		submitted[rec.ID] = true

		existing, err := s.repo.GetInspection(ctx, rec.ID)
		if err != nil {
			return nil, fmt.Errorf("loading inspection %s: %w", rec.ID, err)
		}
		if reason := scope.denyWrite(rec, existing); reason != "" {
			resp.Inspections.Rejected = append(resp.Inspections.Rejected, model.InspectionRejection{
				ID:     rec.ID,
				Reason: reason,
			})
			continue
		}

		switch {
		case existing == nil:
			stored := serverCopy(rec, now)
			if stored.CreatedAt.IsZero() {
				stored.CreatedAt = now
			}
			if err := s.repo.UpsertInspection(ctx, stored); err != nil {
				return nil, fmt.Errorf("creating inspection %s: %w", rec.ID, err)
			}
			resp.Inspections.Created = append(resp.Inspections.Created, rec.ID)

		case conflicts(existing, rec, req.LastSyncTimestamp):
			resp.Inspections.Conflicts = append(resp.Inspections.Conflicts, model.InspectionConflict{
				Client: rec,
				Server: existing,
			})

		default:
			stored := serverCopy(rec, now)
			stored.CreatedAt = existing.CreatedAt
			if err := s.repo.UpsertInspection(ctx, stored); err != nil {
				return nil, fmt.Errorf("updating inspection %s: %w", rec.ID, err)
			}
			resp.Inspections.Updated = append(resp.Inspections.Updated, rec.ID)
		}
	}

	if projects, visible := scope.narrow(nil); visible {
		changed, err := s.repo.ListInspections(ctx, projects, req.LastSyncTimestamp)
		if err != nil {
			return nil, fmt.Errorf("listing server inspections: %w", err)
		}
		for _, rec := range changed {
			if !submitted[rec.ID] {
				resp.ServerUpdates.Inspections = append(resp.ServerUpdates.Inspections, rec)
			}
		}
	}

	templates, err := s.changedTemplates(ctx, req)
	if err != nil {
		return nil, err
	}
	resp.ServerUpdates.Templates = templates

	return resp, nil
}

func (s *SyncService) changedTemplates(ctx context.Context, req *model.SyncRequest) ([]*model.Template, error) {
	all, err := s.repo.ListTemplates(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing templates: %w", err)
	}

	known := make(map[string]int, len(req.Templates))
	for _, m := range req.Templates {
		known[m.ID] = m.Version
	}

	out := []*model.Template{}
	for _, tpl := range all {
		version, ok := known[tpl.ID]
		switch {
		case req.LastSyncTimestamp == nil && !ok:
		case req.LastSyncTimestamp != nil && tpl.UpdatedAt.After(*req.LastSyncTimestamp):
		case ok && tpl.Version > version:
		default:
			continue
		}
		out = append(out, tpl)
	}
	return out, nil
}

// BulkDownload returns a snapshot of the requested scope for offline provisioning.
func (s *SyncService) BulkDownload(ctx context.Context, actor model.Actor, req *model.BulkDownloadRequest) (*model.BulkDownloadResponse, error) {
	now := s.now().UTC()
	resp := &model.BulkDownloadResponse{
		Inspections: []*model.Inspection{},
		Templates:   []*model.Template{},
		Assignments: []*model.Assignment{},
		Metadata: model.DownloadMetadata{
			DownloadedAt: now,
			ProjectIDs:   req.ProjectIDs,
		},
	}
	if resp.Metadata.ProjectIDs == nil {
		resp.Metadata.ProjectIDs = []string{}
	}

	scope, err := s.projectScope(ctx, actor)
	if err != nil {
		return nil, err
	}

	if projects, visible := scope.narrow(req.ProjectIDs); visible {
		recs, err := s.repo.ListInspections(ctx, projects, req.LastSync)
		if err != nil {
			return nil, fmt.Errorf("listing inspections: %w", err)
		}
		for _, rec := range recs {
			if !req.IncludeResponses {
				rec.Responses = nil
			}
			resp.Inspections = append(resp.Inspections, rec)
		}

		if req.IncludeAssignments {
			assignee := actor.UserID
			if actor.SeesAllProjects() {
				assignee = ""
			}
			assignments, err := s.repo.ListAssignments(ctx, projects, assignee, req.LastSync)
			if err != nil {
				return nil, fmt.Errorf("listing assignments: %w", err)
			}
			resp.Assignments = append(resp.Assignments, assignments...)
		}
	}

	if req.IncludeTemplates {
		all, err := s.repo.ListTemplates(ctx)
		if err != nil {
			return nil, fmt.Errorf("listing templates: %w", err)
		}
		for _, tpl := range all {
			if req.LastSync == nil || tpl.UpdatedAt.After(*req.LastSync) {
				resp.Templates = append(resp.Templates, tpl)
			}
		}
	}

	resp.Metadata.Counts = map[string]int{
		"inspections": len(resp.Inspections),
		"templates":   len(resp.Templates),
		"assignments": len(resp.Assignments),
	}
	return resp, nil
}

// projectScope is the set of projects an actor may read and write. Owners and
// admins see every project; everyone else sees the projects they hold
// assignments in.
type projectScope struct {
	all      bool
	projects map[string]bool
}

func (s *SyncService) projectScope(ctx context.Context, actor model.Actor) (projectScope, error) {
	if actor.SeesAllProjects() {
		return projectScope{all: true}, nil
	}
	assignments, err := s.repo.ListAssignments(ctx, nil, actor.UserID, nil)
	if err != nil {
		return projectScope{}, fmt.Errorf("listing assignments for %s: %w", actor.UserID, err)
	}
	scope := projectScope{projects: make(map[string]bool, len(assignments))}
	for _, a := range assignments {
		scope.projects[a.ProjectID] = true
	}
	return scope, nil
}

func (p projectScope) allows(projectID string) bool {
	return p.all || p.projects[projectID]
}

// denyWrite returns why rec may not be stored, or "" when it may. Both the
// submitted project and the project of any existing row must be in scope.
func (p projectScope) denyWrite(rec, existing *model.Inspection) string {
	if !p.allows(rec.ProjectID) {
		return fmt.Sprintf("project %s is not assigned to you", rec.ProjectID)
	}
	if existing != nil && !p.allows(existing.ProjectID) {
		return "inspection belongs to a project not assigned to you"
	}
	return ""
}

// narrow limits requested to the scope; an empty request means every project
// in scope. A nil list with visible=true means all projects. When visible is
// false nothing is in scope and nothing should be queried.
func (p projectScope) narrow(requested []string) (projects []string, visible bool) {
	if p.all {
		return requested, true
	}
	var out []string
	if len(requested) > 0 {
		for _, id := range requested {
			if p.projects[id] {
				out = append(out, id)
			}
		}
	} else {
		for id := range p.projects {
			out = append(out, id)
		}
		sort.Strings(out)
	}
	out = dedupe(out)
	return out, len(out) > 0
}

// ResolveConflict settles a conflicted inspection with the chosen strategy and
// returns the resulting server record.
func (s *SyncService) ResolveConflict(ctx context.Context, actor model.Actor, req *model.ResolveRequest) (*model.ResolveResponse, error) {
	if req.InspectionID == "" {
		return nil, apierror.BadRequest("inspection_id is required")
	}
	if !req.Strategy.Valid() {
		return nil, apierror.BadRequest(fmt.Sprintf("unknown strategy %q", req.Strategy))
	}

	existing, err := s.repo.GetInspection(ctx, req.InspectionID)
	if err != nil {
		return nil, fmt.Errorf("loading inspection %s: %w", req.InspectionID, err)
	}
	scope, err := s.projectScope(ctx, actor)
	if err != nil {
		return nil, err
	}
	if existing == nil || !scope.allows(existing.ProjectID) {
		return nil, apierror.NotFound("inspection not found")
	}

	now := s.now().UTC()
	var result *model.Inspection

	switch req.Strategy {
	case model.ResolveUseServer:
		result = existing

	case model.ResolveUseClient:
		if req.Client == nil {
			return nil, apierror.BadRequest("client is required for use_client")
		}
		if req.Client.ID != "" && req.Client.ID != req.InspectionID {
			return nil, apierror.BadRequest("client.id does not match inspection_id")
		}
		if !scope.allows(req.Client.ProjectID) {
			return nil, apierror.Forbidden(fmt.Sprintf("project %s is not assigned to you", req.Client.ProjectID))
		}
		result = serverCopy(req.Client, now)
		result.ID = req.InspectionID
		result.CreatedAt = existing.CreatedAt

	case model.ResolveMerge:
		if len(req.MergedFields) == 0 {
			return nil, apierror.BadRequest("merged_fields is required for merge")
		}
		result = existing.Clone()
		if details := applyMergedFields(result, req.MergedFields); len(details) > 0 {
			return nil, apierror.ValidationError("invalid merged_fields", details...)
		}
		result.UpdatedAt = now
	}

	if result != existing {
		if err := result.Validate(); err != nil {
			return nil, apierror.BadRequest(err.Error())
		}
		if err := s.repo.UpsertInspection(ctx, result); err != nil {
			return nil, fmt.Errorf("storing resolved inspection %s: %w", result.ID, err)
		}
	}

	log.Printf("[SyncService] Resolved inspection=%s strategy=%s user=%s", req.InspectionID, req.Strategy, actor.UserID)
	return &model.ResolveResponse{Strategy: req.Strategy, Inspection: result}, nil
}

// applyMergedFields writes the mergeable fields onto rec. Responses merge key by key.
func applyMergedFields(rec *model.Inspection, fields map[string]interface{}) []apierror.FieldError {
	var details []apierror.FieldError
	bad := func(field, msg string) {
		details = append(details, apierror.FieldError{Field: field, Message: msg})
	}

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		v := fields[k]
		switch k {
		case "name", "notes", "lot_id", "status":
			str, ok := v.(string)
			if !ok {
				bad(k, "must be a string")
				continue
			}
			switch k {
			case "name":
				rec.Name = str
			case "notes":
				rec.Notes = str
			case "lot_id":
				rec.LotID = str
			case "status":
				rec.Status = model.InspectionStatus(str)
			}
		case "completion_percentage":
			n, ok := v.(float64)
			if !ok || n != float64(int(n)) {
				bad(k, "must be an integer")
				continue
			}
			rec.CompletionPercentage = int(n)
		case "responses":
			m, ok := v.(map[string]interface{})
			if !ok {
				bad(k, "must be an object")
				continue
			}
			if rec.Responses == nil {
				rec.Responses = make(map[string]interface{}, len(m))
			}
			for rk, rv := range m {
				rec.Responses[rk] = rv
			}
		default:
			bad(k, "field cannot be merged")
		}
	}
	return details
}

// serverCopy is the stored form of a submitted record: device-only sync state is
// dropped and updated_at is the server's clock.
func serverCopy(rec *model.Inspection, now time.Time) *model.Inspection {
	c := rec.Clone()
	c.SyncStatus = ""
	c.BaseUpdatedAt = nil
	c.UpdatedAt = now
	return c
}

// conflicts reports whether the server row holds different content and moved
// after the server state the submitted edit was based on. A record without its
// own base falls back to the batch's last sync; a client that never synced has
// seen nothing.
func conflicts(existing, rec *model.Inspection, lastSync *time.Time) bool {
	if existing.SameContent(rec) {
		return false
	}
	base := rec.BaseUpdatedAt
	if base == nil {
		base = lastSync
	}
	return base == nil || existing.UpdatedAt.After(*base)
}

func validateBatch(recs []*model.Inspection) []apierror.FieldError {
	var details []apierror.FieldError
	seen := make(map[string]bool, len(recs))
	for i, rec := range recs {
		field := fmt.Sprintf("inspections[%d]", i)
		if rec == nil {
			details = append(details, apierror.FieldError{Field: field, Message: "must not be null"})
			continue
		}
		if err := rec.Validate(); err != nil {
			details = append(details, apierror.FieldError{Field: field, Message: err.Error()})
			continue
		}
		if seen[rec.ID] {
			details = append(details, apierror.FieldError{Field: field, Message: "duplicate id " + rec.ID})
		}
		seen[rec.ID] = true
	}
	return details
}

// idempotencyKey hashes the raw body so byte-identical retries collide.
func idempotencyKey(userID string, body []byte) string {
	sum := sha256.Sum256(body)
	return "sync:" + userID + ":" + hex.EncodeToString(sum[:])
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := in[:0]
	for _, v := range in {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}
