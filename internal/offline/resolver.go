package offline

import (
	"context"
	"fmt"

	"github.com/juggajay/siteproof-v2-sub005/internal/model"
)

// Resolver settles conflicted records with the server. It is separate from the
// Engine, which only detects conflicts.
type Resolver struct {
	store  Store
	remote Remote
	conn   Connectivity
	log    Logger
}

// NewResolver creates a Resolver. A nil Connectivity is treated as always online.
func NewResolver(store Store, remote Remote, conn Connectivity, logger Logger) *Resolver {
	if conn == nil {
		conn = AlwaysOnline{}
	}
	if logger == nil {
		logger = NopLogger{}
	}
	return &Resolver{store: store, remote: remote, conn: conn, log: logger}
}

// Resolve sends the decision for a locally conflicted inspection and stores the
// server's resulting record as synced. merged is only used with ResolveMerge.
func (r *Resolver) Resolve(ctx context.Context, id string, strategy model.ResolutionStrategy, merged map[string]interface{}) (*model.Inspection, error) {
	if !strategy.Valid() {
		return nil, fmt.Errorf("unknown resolution strategy %q", strategy)
	}
	if strategy == model.ResolveMerge && len(merged) == 0 {
		return nil, fmt.Errorf("merge strategy requires merged fields")
	}
	if !r.conn.Online() {
		return nil, ErrOffline
	}

	local, err := r.store.GetInspection(ctx, id)
	if err != nil {
		return nil, storageErr("get inspection", err)
	}
	if local == nil {
		return nil, fmt.Errorf("inspection %s not found locally", id)
	}
	if local.SyncStatus != model.SyncConflict {
		return nil, fmt.Errorf("inspection %s is %s: %w", id, local.SyncStatus, ErrNotConflicted)
	}

	req := &model.ResolveRequest{
		InspectionID: id,
		Strategy:     strategy,
		Client:       local,
	}
	if strategy == model.ResolveMerge {
		req.MergedFields = merged
	}

	resp, err := r.remote.Resolve(ctx, req)
	if err != nil {
		return nil, remoteErr(err)
	}
	if resp.Inspection == nil {
		return nil, &RemoteError{Message: "resolve response carried no inspection"}
	}

	rec := serverBased(resp.Inspection)
	if err := r.store.PutInspection(ctx, rec); err != nil {
		return nil, storageErr("store resolved inspection", err)
	}
	r.log.Info("conflict resolved", "inspection_id", id, "strategy", string(strategy))
	return rec, nil
}
