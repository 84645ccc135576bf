package offline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/juggajay/siteproof-v2-sub005/internal/model"
	"github.com/juggajay/siteproof-v2-sub005/pkg/apierror"
	"github.com/juggajay/siteproof-v2-sub005/pkg/response"
)

// Remote is the server side of the sync protocol.
type Remote interface {
	Sync(ctx context.Context, req *model.SyncRequest) (*model.SyncResponse, error)
	BulkDownload(ctx context.Context, req *model.BulkDownloadRequest) (*model.BulkDownloadResponse, error)
	Resolve(ctx context.Context, req *model.ResolveRequest) (*model.ResolveResponse, error)
}

// Endpoint paths served by cmd/api.
const (
	SyncPath     = "/api/v1/sync"
	DownloadPath = "/api/v1/sync/download"
	ResolvePath  = "/api/v1/sync/resolve"
	HealthPath   = "/api/v1/health"
)

// HTTPRemoteConfig configures an HTTPRemote.
type HTTPRemoteConfig struct {
	BaseURL string
	APIKey  string
	UserID  string
	OrgRole string
	Timeout time.Duration
}

// HTTPRemote talks to the sync endpoints over HTTP using the JSON envelope.
type HTTPRemote struct {
	baseURL string
	apiKey  string
	userID  string
	orgRole string
	client  *http.Client
}

var _ Remote = (*HTTPRemote)(nil)

// NewHTTPRemote creates an HTTPRemote. A zero timeout defaults to 30s.
func NewHTTPRemote(cfg HTTPRemoteConfig) *HTTPRemote {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPRemote{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		userID:  cfg.UserID,
		orgRole: cfg.OrgRole,
		client:  &http.Client{Timeout: timeout},
	}
}

func (r *HTTPRemote) Sync(ctx context.Context, req *model.SyncRequest) (*model.SyncResponse, error) {
	var out model.SyncResponse
	if err := r.post(ctx, SyncPath, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *HTTPRemote) BulkDownload(ctx context.Context, req *model.BulkDownloadRequest) (*model.BulkDownloadResponse, error) {
	var out model.BulkDownloadResponse
	if err := r.post(ctx, DownloadPath, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *HTTPRemote) Resolve(ctx context.Context, req *model.ResolveRequest) (*model.ResolveResponse, error) {
	var out model.ResolveResponse
	if err := r.post(ctx, ResolvePath, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Ping checks that the server answers its health endpoint.
func (r *HTTPRemote) Ping(ctx context.Context) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+HealthPath, nil)
	if err != nil {
		return &RemoteError{Err: err}
	}
	resp, err := r.client.Do(httpReq)
	if err != nil {
		return &RemoteError{Err: err}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return &RemoteError{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
	}
	return nil
}

func (r *HTTPRemote) post(ctx context.Context, path string, in, out interface{}) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encoding request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return &RemoteError{Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	if r.apiKey != "" {
		httpReq.Header.Set("X-API-Key", r.apiKey)
	}
	if r.userID != "" {
		httpReq.Header.Set("X-User-ID", r.userID)
	}
	if r.orgRole != "" {
		httpReq.Header.Set("X-Org-Role", r.orgRole)
	}

	resp, err := r.client.Do(httpReq)
	if err != nil {
		return &RemoteError{Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return &RemoteError{StatusCode: resp.StatusCode, Err: err}
	}

	if err := response.Decode(data, resp.StatusCode, out); err != nil {
		var apiErr *apierror.Error
		if errors.As(err, &apiErr) {
			return &RemoteError{StatusCode: apiErr.StatusCode, Message: apiErr.Message, Err: apiErr}
		}
		return &RemoteError{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode), Err: err}
	}
	return nil
}
