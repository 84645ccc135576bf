package offline_test

import (
	"context"
	"sync"

	"github.com/juggajay/siteproof-v2-sub005/internal/model"
)

// fakeRemote records requests and answers from configurable funcs.
type fakeRemote struct {
	mu sync.Mutex

	syncFn     func(*model.SyncRequest) (*model.SyncResponse, error)
	downloadFn func(*model.BulkDownloadRequest) (*model.BulkDownloadResponse, error)
	resolveFn  func(*model.ResolveRequest) (*model.ResolveResponse, error)

	syncCalls     []*model.SyncRequest
	downloadCalls []*model.BulkDownloadRequest
	resolveCalls  []*model.ResolveRequest
}

func (f *fakeRemote) Sync(_ context.Context, req *model.SyncRequest) (*model.SyncResponse, error) {
	f.mu.Lock()
	f.syncCalls = append(f.syncCalls, req)
	fn := f.syncFn
	f.mu.Unlock()
	if fn == nil {
		return &model.SyncResponse{}, nil
	}
	return fn(req)
}

func (f *fakeRemote) BulkDownload(_ context.Context, req *model.BulkDownloadRequest) (*model.BulkDownloadResponse, error) {
	f.mu.Lock()
	f.downloadCalls = append(f.downloadCalls, req)
	fn := f.downloadFn
	f.mu.Unlock()
	if fn == nil {
		return &model.BulkDownloadResponse{}, nil
	}
	return fn(req)
}

func (f *fakeRemote) Resolve(_ context.Context, req *model.ResolveRequest) (*model.ResolveResponse, error) {
	f.mu.Lock()
	f.resolveCalls = append(f.resolveCalls, req)
	fn := f.resolveFn
	f.mu.Unlock()
	if fn == nil {
		return &model.ResolveResponse{Strategy: req.Strategy, Inspection: req.Client}, nil
	}
	return fn(req)
}

func (f *fakeRemote) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.syncCalls) + len(f.downloadCalls) + len(f.resolveCalls)
}

// acceptAll classifies every submitted record as created.
func acceptAll(req *model.SyncRequest) (*model.SyncResponse, error) {
	resp := &model.SyncResponse{LastSyncTimestamp: serverNow}
	for _, rec := range req.Inspections {
		resp.Inspections.Created = append(resp.Inspections.Created, rec.ID)
	}
	return resp, nil
}
