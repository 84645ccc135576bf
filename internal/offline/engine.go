package offline

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/juggajay/siteproof-v2-sub005/internal/model"
	"github.com/juggajay/siteproof-v2-sub005/pkg/uid"
)

// DefaultTemplateCacheSize bounds the number of templates kept on a device.
const DefaultTemplateCacheSize = 200

// Engine reconciles a device-local Store with the server.
type Engine struct {
	store  Store
	remote Remote
	conn   Connectivity

	clock             Clock
	ids               IDGenerator
	log               Logger
	templateCacheSize int

	busy atomic.Bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock sets the clock used for local timestamps.
func WithClock(c Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// WithIDGenerator sets the generator for device-minted ids.
func WithIDGenerator(g IDGenerator) Option {
	return func(e *Engine) { e.ids = g }
}

// WithLogger sets the logger.
func WithLogger(l Logger) Option {
	return func(e *Engine) { e.log = l }
}

// WithTemplateCacheSize bounds the local template cache. Zero disables eviction.
func WithTemplateCacheSize(n int) Option {
	return func(e *Engine) { e.templateCacheSize = n }
}

// New creates an Engine. A nil Connectivity is treated as always online.
func New(store Store, remote Remote, conn Connectivity, opts ...Option) *Engine {
	if conn == nil {
		conn = AlwaysOnline{}
	}
	e := &Engine{
		store:             store,
		remote:            remote,
		conn:              conn,
		clock:             RealClock{},
		ids:               OfflineIDGenerator{},
		log:               NopLogger{},
		templateCacheSize: DefaultTemplateCacheSize,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// SaveLocally upserts rec into the local store as pending. Records without an id
// are given a device-minted offline id. rec is updated in place with the values
// that were stored, so a caller keeps them even if the write fails.
func (e *Engine) SaveLocally(ctx context.Context, rec *model.Inspection) error {
	if rec == nil {
		return fmt.Errorf("save inspection: nil record")
	}

	now := e.clock.Now()
	if rec.ID == "" {
		rec.OfflineID = e.ids.New()
		rec.ID = rec.OfflineID
	} else if rec.OfflineID == "" && uid.IsOffline(rec.ID) {
		rec.OfflineID = rec.ID
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now
	rec.SyncStatus = model.SyncPending

	if err := rec.Validate(); err != nil {
		return fmt.Errorf("save inspection: %w", err)
	}
	if rec.BaseUpdatedAt == nil {
		stored, err := e.store.GetInspection(ctx, rec.ID)
		if err != nil {
			return storageErr("save inspection", err)
		}
		if stored != nil {
			rec.BaseUpdatedAt = stored.Clone().BaseUpdatedAt
		}
	}

	if err := e.store.PutInspection(ctx, rec.Clone()); err != nil {
		e.log.Error("local save failed", "inspection_id", rec.ID, "error", err)
		return storageErr("save inspection", err)
	}
	e.log.Debug("inspection saved locally", "inspection_id", rec.ID)
	return nil
}

// GetLocally returns the local copy of an inspection. A missing record is reported
// with found=false, not an error.
func (e *Engine) GetLocally(ctx context.Context, id string) (*model.Inspection, bool, error) {
	rec, err := e.store.GetInspection(ctx, id)
	if err != nil {
		return nil, false, storageErr("get inspection", err)
	}
	if rec == nil {
		return nil, false, nil
	}
	return rec, true, nil
}

// ListPending returns every record awaiting server acknowledgement, in no order.
func (e *Engine) ListPending(ctx context.Context) ([]*model.Inspection, error) {
	recs, err := e.store.ListInspectionsBySyncStatus(ctx, model.SyncPending)
	if err != nil {
		return nil, storageErr("list pending", err)
	}
	return recs, nil
}

// ListConflicts returns every record the server reported a competing update for.
func (e *Engine) ListConflicts(ctx context.Context) ([]*model.Inspection, error) {
	recs, err := e.store.ListInspectionsBySyncStatus(ctx, model.SyncConflict)
	if err != nil {
		return nil, storageErr("list conflicts", err)
	}
	return recs, nil
}

// GetTemplate returns a cached template and marks it as recently used.
func (e *Engine) GetTemplate(ctx context.Context, id string) (*model.Template, bool, error) {
	tpl, err := e.store.GetTemplate(ctx, id)
	if err != nil {
		return nil, false, storageErr("get template", err)
	}
	if tpl == nil {
		return nil, false, nil
	}
	now := e.clock.Now()
	if err := e.store.TouchTemplate(ctx, id, now); err != nil {
		return nil, false, storageErr("touch template", err)
	}
	tpl.LastAccessed = now
	return tpl, true, nil
}

// ListAssignments returns the cached assignments.
func (e *Engine) ListAssignments(ctx context.Context) ([]*model.Assignment, error) {
	as, err := e.store.ListAssignments(ctx)
	if err != nil {
		return nil, storageErr("list assignments", err)
	}
	return as, nil
}

// GetSyncStatus reports local sync state without touching the network.
func (e *Engine) GetSyncStatus(ctx context.Context) (*SyncStatus, error) {
	last, err := e.lastSync(ctx)
	if err != nil {
		return nil, err
	}
	pending, err := e.store.CountInspectionsBySyncStatus(ctx, model.SyncPending)
	if err != nil {
		return nil, storageErr("count pending", err)
	}
	conflicts, err := e.store.CountInspectionsBySyncStatus(ctx, model.SyncConflict)
	if err != nil {
		return nil, storageErr("count conflicts", err)
	}
	return &SyncStatus{
		Online:        e.conn.Online(),
		Syncing:       e.busy.Load(),
		LastSync:      last,
		PendingCount:  pending,
		ConflictCount: conflicts,
	}, nil
}

// ClearAll wipes every local table. Calling it on an empty store is a no-op.
func (e *Engine) ClearAll(ctx context.Context) error {
	if err := e.store.Clear(ctx); err != nil {
		return storageErr("clear", err)
	}
	e.log.Info("local store cleared")
	return nil
}

// PerformSync runs one reconciliation round: every pending record goes to the
// server in a single request and each is marked from the server's classification.
// Server-side changes are merged in afterwards. Nothing local changes unless the
// request succeeds; after that, each item is applied independently.
func (e *Engine) PerformSync(ctx context.Context) *SyncResult {
	if !e.conn.Online() {
		return &SyncResult{Err: ErrOffline}
	}
	if !e.busy.CompareAndSwap(false, true) {
		return &SyncResult{Err: ErrSyncInProgress}
	}
	defer e.busy.Store(false)

	last, err := e.lastSync(ctx)
	if err != nil {
		return &SyncResult{Err: err}
	}
	pending, err := e.store.ListInspectionsBySyncStatus(ctx, model.SyncPending)
	if err != nil {
		return &SyncResult{Err: storageErr("list pending", err)}
	}
	templates, err := e.store.ListTemplates(ctx)
	if err != nil {
		return &SyncResult{Err: storageErr("list templates", err)}
	}

	req := &model.SyncRequest{
		LastSyncTimestamp: last,
		Inspections:       pending,
		Templates:         make([]model.TemplateMeta, 0, len(templates)),
	}
	if req.Inspections == nil {
		req.Inspections = []*model.Inspection{}
	}
	for _, t := range templates {
		req.Templates = append(req.Templates, t.Meta())
	}

	e.log.Info("sync started", "pending", len(pending), "templates", len(templates))
	resp, err := e.remote.Sync(ctx, req)
	if err != nil {
		e.log.Warn("sync request failed", "error", err)
		return &SyncResult{Err: remoteErr(err)}
	}

	submitted := make(map[string]*model.Inspection, len(pending))
	for _, rec := range pending {
		submitted[rec.ID] = rec
	}

	res := &SyncResult{Success: true, LastSyncTimestamp: resp.LastSyncTimestamp}

	// Accepted rows carry the server's processing time as updated_at.
	accepted := resp.LastSyncTimestamp
	for _, id := range resp.Inspections.Created {
		if e.acknowledge(ctx, res, submitted, id, model.SyncSynced, &accepted) {
			res.Created = append(res.Created, id)
		}
	}
	for _, id := range resp.Inspections.Updated {
		if e.acknowledge(ctx, res, submitted, id, model.SyncSynced, &accepted) {
			res.Updated = append(res.Updated, id)
		}
	}
	for _, c := range resp.Inspections.Conflicts {
		if c.Client == nil {
			continue
		}
		base := conflictBase(submitted[c.Client.ID], last)
		if e.acknowledge(ctx, res, submitted, c.Client.ID, model.SyncConflict, base) {
			res.Conflicts = append(res.Conflicts, c.Client.ID)
		}
	}
	for _, r := range resp.Inspections.Rejected {
		e.log.Warn("server rejected inspection; left pending", "inspection_id", r.ID, "reason", r.Reason)
		res.Rejected = append(res.Rejected, r.ID)
	}

	for _, rec := range resp.ServerUpdates.Inspections {
		if _, ok := submitted[rec.ID]; ok {
			continue
		}
		local, err := e.store.GetInspection(ctx, rec.ID)
		if err != nil {
			res.addApplyError(storageErr("get inspection "+rec.ID, err))
			continue
		}
		if local != nil && local.SyncStatus == model.SyncPending {
			e.log.Debug("server update skipped for locally pending record", "inspection_id", rec.ID)
			continue
		}
		if err := e.putSynced(ctx, rec); err != nil {
			res.addApplyError(storageErr("store server inspection "+rec.ID, err))
			continue
		}
		res.ServerInspections++
	}

	res.ServerTemplates = e.mergeTemplates(ctx, res, resp.ServerUpdates.Templates)
	res.EvictedTemplates = e.evictTemplates(ctx, res)

	if err := e.setLastSync(ctx, resp.LastSyncTimestamp); err != nil {
		res.addApplyError(err)
	}

	for _, applyErr := range res.ApplyErrors {
		e.log.Warn("sync apply error", "error", applyErr)
	}
	e.log.Info("sync finished",
		"created", len(res.Created),
		"updated", len(res.Updated),
		"conflicts", len(res.Conflicts),
		"server_inspections", res.ServerInspections,
		"server_templates", res.ServerTemplates,
	)
	return res
}

// BulkDownload fetches a snapshot for scope and overwrites local copies as synced.
// The snapshot's downloaded_at becomes the new last sync timestamp.
func (e *Engine) BulkDownload(ctx context.Context, scope DownloadScope) *SyncResult {
	if !e.conn.Online() {
		return &SyncResult{Err: ErrOffline}
	}
	if !e.busy.CompareAndSwap(false, true) {
		return &SyncResult{Err: ErrSyncInProgress}
	}
	defer e.busy.Store(false)

	req := &model.BulkDownloadRequest{
		ProjectIDs:         scope.ProjectIDs,
		IncludeTemplates:   scope.IncludeTemplates,
		IncludeAssignments: scope.IncludeAssignments,
		IncludeResponses:   scope.IncludeResponses,
	}
	if scope.Incremental {
		last, err := e.lastSync(ctx)
		if err != nil {
			return &SyncResult{Err: err}
		}
		req.LastSync = last
	}

	e.log.Info("bulk download started", "projects", len(scope.ProjectIDs), "incremental", req.LastSync != nil)
	resp, err := e.remote.BulkDownload(ctx, req)
	if err != nil {
		e.log.Warn("bulk download failed", "error", err)
		return &SyncResult{Err: remoteErr(err)}
	}

	res := &SyncResult{Success: true, LastSyncTimestamp: resp.Metadata.DownloadedAt}

	for _, rec := range resp.Inspections {
		if !scope.IncludeResponses {
			// The snapshot omits answers; keep whatever the device already holds.
			local, err := e.store.GetInspection(ctx, rec.ID)
			if err != nil {
				res.addApplyError(storageErr("get inspection "+rec.ID, err))
				continue
			}
			if local != nil && rec.Responses == nil {
				rec.Responses = local.Responses
			}
		}
		if err := e.putSynced(ctx, rec); err != nil {
			res.addApplyError(storageErr("store inspection "+rec.ID, err))
			continue
		}
		res.ServerInspections++
	}

	res.ServerTemplates = e.mergeTemplates(ctx, res, resp.Templates)

	for _, a := range resp.Assignments {
		if err := e.store.PutAssignment(ctx, a); err != nil {
			res.addApplyError(storageErr("store assignment "+a.ID, err))
			continue
		}
		res.Assignments++
	}

	res.EvictedTemplates = e.evictTemplates(ctx, res)

	if err := e.setLastSync(ctx, resp.Metadata.DownloadedAt); err != nil {
		res.addApplyError(err)
	}

	for _, applyErr := range res.ApplyErrors {
		e.log.Warn("download apply error", "error", applyErr)
	}
	e.log.Info("bulk download finished",
		"inspections", res.ServerInspections,
		"templates", res.ServerTemplates,
		"assignments", res.Assignments,
	)
	return res
}

// acknowledge moves a submitted record to status. A record edited again while the
// request was in flight stays pending so the newer edit goes out next round.
func (e *Engine) acknowledge(ctx context.Context, res *SyncResult, submitted map[string]*model.Inspection, id string, status model.SyncStatus, base *time.Time) bool {
	sent, ok := submitted[id]
	if !ok {
		e.log.Warn("server classified an inspection that was not submitted", "inspection_id", id)
		return false
	}
	local, err := e.store.GetInspection(ctx, id)
	if err != nil {
		res.addApplyError(storageErr("get inspection "+id, err))
		return false
	}
	if local == nil {
		e.log.Warn("submitted inspection no longer stored locally", "inspection_id", id)
		return false
	}
	if local.UpdatedAt.After(sent.UpdatedAt) {
		e.log.Debug("inspection edited during sync; left pending", "inspection_id", id)
		return false
	}
	if err := e.store.MarkInspection(ctx, id, status, base); err != nil {
		res.addApplyError(storageErr("mark "+string(status)+" "+id, err))
		return false
	}
	return true
}

func (e *Engine) putSynced(ctx context.Context, rec *model.Inspection) error {
	return e.store.PutInspection(ctx, serverBased(rec))
}

// serverBased is the local form of a server copy: synced, and based on the
// server's own updated_at.
func serverBased(rec *model.Inspection) *model.Inspection {
	c := rec.Clone()
	c.SyncStatus = model.SyncSynced
	c.BaseUpdatedAt = nil
	if !c.UpdatedAt.IsZero() {
		base := c.UpdatedAt
		c.BaseUpdatedAt = &base
	}
	return c
}

// conflictBase keeps a conflicted edit pinned to the server state it was made
// against, so editing it again before resolving still conflicts. A record with
// no known base is pinned to the previous sync, or to the epoch when the device
// had never synced.
func conflictBase(sent *model.Inspection, lastSync *time.Time) *time.Time {
	var base time.Time
	switch {
	case sent != nil && sent.BaseUpdatedAt != nil:
		base = *sent.BaseUpdatedAt
	case lastSync != nil:
		base = *lastSync
	default:
		base = time.Unix(0, 0).UTC()
	}
	return &base
}

// mergeTemplates stores server templates, keeping the local last_accessed value
// because access is tracked on the device only.
func (e *Engine) mergeTemplates(ctx context.Context, res *SyncResult, templates []*model.Template) int {
	n := 0
	for _, tpl := range templates {
		local, err := e.store.GetTemplate(ctx, tpl.ID)
		if err != nil {
			res.addApplyError(storageErr("get template "+tpl.ID, err))
			continue
		}
		c := *tpl
		if local != nil {
			c.LastAccessed = local.LastAccessed
		} else {
			c.LastAccessed = e.clock.Now()
		}
		if err := e.store.PutTemplate(ctx, &c); err != nil {
			res.addApplyError(storageErr("store template "+tpl.ID, err))
			continue
		}
		n++
	}
	return n
}

func (e *Engine) evictTemplates(ctx context.Context, res *SyncResult) []string {
	if e.templateCacheSize <= 0 {
		return nil
	}
	evicted, err := e.store.EvictTemplates(ctx, e.templateCacheSize)
	if err != nil {
		res.addApplyError(storageErr("evict templates", err))
		return nil
	}
	if len(evicted) > 0 {
		e.log.Info("templates evicted", "count", len(evicted), "capacity", e.templateCacheSize)
	}
	return evicted
}

func (e *Engine) lastSync(ctx context.Context) (*time.Time, error) {
	v, ok, err := e.store.GetMetadata(ctx, model.LastSyncKey)
	if err != nil {
		return nil, storageErr("read last sync", err)
	}
	if !ok || v == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return nil, storageErr("read last sync", fmt.Errorf("parsing %q: %w", v, err))
	}
	return &t, nil
}

func (e *Engine) setLastSync(ctx context.Context, t time.Time) error {
	if t.IsZero() {
		return nil
	}
	if err := e.store.SetMetadata(ctx, model.LastSyncKey, t.UTC().Format(time.RFC3339Nano), e.clock.Now()); err != nil {
		return storageErr("write last sync", err)
	}
	return nil
}
