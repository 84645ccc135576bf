package handler_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/juggajay/siteproof-v2-sub005/internal/cache"
	"github.com/juggajay/siteproof-v2-sub005/internal/handler"
	"github.com/juggajay/siteproof-v2-sub005/internal/middleware"
	"github.com/juggajay/siteproof-v2-sub005/internal/model"
	"github.com/juggajay/siteproof-v2-sub005/internal/repository"
	"github.com/juggajay/siteproof-v2-sub005/internal/router"
	"github.com/juggajay/siteproof-v2-sub005/internal/service"
	"github.com/juggajay/siteproof-v2-sub005/internal/testutil"
)

const testAPIKey = "test-key"

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string                 `json:"code"`
		Message string                 `json:"message"`
		Meta    map[string]interface{} `json:"meta"`
	} `json:"error"`
}

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	dir := t.TempDir()

	inspections, err := repository.NewSQLiteInspectionRepository(filepath.Join(dir, "inspections.db"))
	require.NoError(t, err)
	t.Cleanup(func() { inspections.Close() })

	ncrs, err := repository.NewSQLiteNCRRepository(filepath.Join(dir, "ncrs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { ncrs.Close() })

	c := cache.NewMemoryCache()
	t.Cleanup(func() { c.Close() })

	clock := testutil.FixedClock()
	syncSvc := service.NewSyncService(inspections, c, service.SyncServiceConfig{Now: clock.Now})
	ncrSvc := service.NewNCRService(ncrs, clock.Now)

	h := handler.New("siteproof-api", "test")
	h.AddCheck("inspection_db", inspections)
	h.AddCheck("ncr_db", ncrs)

	r := router.New(router.Config{
		Handler:        h,
		SyncHandler:    handler.NewSyncHandler(syncSvc),
		NCRHandler:     handler.NewNCRHandler(ncrSvc),
		AdminHandler:   handler.NewAdminHandler(inspections, ncrs, c),
		AuthMiddleware: middleware.NewAuthMiddleware(middleware.AuthConfig{APIKeys: []string{testAPIKey}}),
		MaxBodyBytes:   64 * 1024,
	})

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func call(t *testing.T, srv *httptest.Server, method, path, user, role string, body interface{}) (*http.Response, envelope) {
	t.Helper()

	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case []byte:
		reader = bytes.NewReader(b)
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, srv.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(middleware.HeaderAPIKey, testAPIKey)
	if user != "" {
		req.Header.Set(middleware.HeaderUserID, user)
	}
	if role != "" {
		req.Header.Set(middleware.HeaderOrgRole, role)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var env envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	return resp, env
}

func TestHealthEndpointsArePublic(t *testing.T) {
	srv := newServer(t)

	for _, path := range []string{"/api/v1/health", "/api/v1/ready", "/api/status"} {
		resp, err := http.Get(srv.URL + path)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
	}
}

func TestSyncEndpoint(t *testing.T) {
	srv := newServer(t)

	req := model.SyncRequest{Inspections: []*model.Inspection{testutil.NewInspection("h-1")}}
	body, err := json.Marshal(req)
	require.NoError(t, err)

	resp, env := call(t, srv, http.MethodPost, "/api/v1/sync", "admin-1", "admin", body)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, resp.Header.Get(handler.HeaderIdempotentReplay))

	var out model.SyncResponse
	require.NoError(t, json.Unmarshal(env.Data, &out))
	assert.Equal(t, []string{"h-1"}, out.Inspections.Created)

	resp, env = call(t, srv, http.MethodPost, "/api/v1/sync", "admin-1", "admin", body)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "true", resp.Header.Get(handler.HeaderIdempotentReplay))
	require.NoError(t, json.Unmarshal(env.Data, &out))
	assert.Equal(t, []string{"h-1"}, out.Inspections.Created)
}

func TestSyncEndpoint_Errors(t *testing.T) {
	srv := newServer(t)

	resp, env := call(t, srv, http.MethodPost, "/api/v1/sync", "", "", []byte(`{}`))
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.False(t, env.Success)

	resp, _ = call(t, srv, http.MethodPost, "/api/v1/sync", "u-1", "", []byte(`{nope`))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	huge := bytes.Repeat([]byte("x"), 128*1024)
	resp, env = call(t, srv, http.MethodPost, "/api/v1/sync", "u-1", "", huge)
	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
	assert.Equal(t, "PAYLOAD_TOO_LARGE", env.Error.Code)
}

func TestDownloadAndResolveEndpoints(t *testing.T) {
	srv := newServer(t)

	body, err := json.Marshal(model.SyncRequest{Inspections: []*model.Inspection{testutil.NewInspection("h-1")}})
	require.NoError(t, err)
	resp, _ := call(t, srv, http.MethodPost, "/api/v1/sync", "admin-1", "admin", body)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, env := call(t, srv, http.MethodPost, "/api/v1/sync/download", "admin-1", "admin",
		model.BulkDownloadRequest{ProjectIDs: []string{"proj-1"}})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var dl model.BulkDownloadResponse
	require.NoError(t, json.Unmarshal(env.Data, &dl))
	require.Len(t, dl.Inspections, 1)
	assert.Nil(t, dl.Inspections[0].Responses)

	resp, env = call(t, srv, http.MethodPost, "/api/v1/sync/resolve", "admin-1", "admin", model.ResolveRequest{
		InspectionID: "h-1",
		Strategy:     model.ResolveMerge,
		MergedFields: map[string]interface{}{"notes": "agreed"},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var resolved model.ResolveResponse
	require.NoError(t, json.Unmarshal(env.Data, &resolved))
	assert.Equal(t, "agreed", resolved.Inspection.Notes)

	resp, _ = call(t, srv, http.MethodPost, "/api/v1/sync/resolve", "admin-1", "admin", model.ResolveRequest{
		InspectionID: "ghost", Strategy: model.ResolveUseServer,
	})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestNCREndpoints(t *testing.T) {
	srv := newServer(t)

	resp, env := call(t, srv, http.MethodPost, "/api/v1/ncrs", "raiser-1", "member", service.CreateNCRInput{
		ProjectID: "proj-1", Title: "Cold joint", Severity: "major", AssignedTo: "fixer-1",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var n model.NCR
	require.NoError(t, json.Unmarshal(env.Data, &n))
	assert.Equal(t, model.NCROpen, n.Status)
	assert.Equal(t, "raiser-1", n.RaisedBy)
	base := "/api/v1/ncrs/" + n.ID

	resp, env = call(t, srv, http.MethodGet, base+"/transitions", "fixer-1", "member", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var opts service.TransitionOptions
	require.NoError(t, json.Unmarshal(env.Data, &opts))
	assert.Equal(t, model.RoleAssignedUser, opts.Role)
	assert.Contains(t, opts.Allowed, model.NCRAcknowledged)

	// Raiser may not acknowledge.
	resp, env = call(t, srv, http.MethodPost, base+"/transition", "raiser-1", "member",
		service.TransitionInput{Status: "acknowledged"})
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "INSUFFICIENT_ROLE", env.Error.Code)
	assert.ElementsMatch(t, []interface{}{"assigned_user", "admin", "owner"}, env.Error.Meta["required_roles"])

	// No edge from open to closed.
	resp, env = call(t, srv, http.MethodPost, base+"/transition", "fixer-1", "member",
		service.TransitionInput{Status: "closed"})
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, "INVALID_TRANSITION", env.Error.Code)

	// Dispute without its fields.
	resp, env = call(t, srv, http.MethodPost, base+"/transition", "fixer-1", "member",
		service.TransitionInput{Status: "disputed"})
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, "MISSING_FIELDS", env.Error.Code)
	assert.ElementsMatch(t, []interface{}{"dispute_reason", "dispute_category"}, env.Error.Meta["missing_fields"])

	resp, env = call(t, srv, http.MethodPost, base+"/transition", "fixer-1", "member",
		service.TransitionInput{Status: "acknowledged", Comment: "looking"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(env.Data, &n))
	assert.Equal(t, model.NCRAcknowledged, n.Status)
	assert.NotNil(t, n.AcknowledgedAt)

	resp, env = call(t, srv, http.MethodGet, base+"/history", "viewer-1", "viewer", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var history []model.NCRHistory
	require.NoError(t, json.Unmarshal(env.Data, &history))
	require.Len(t, history, 1)
	assert.Equal(t, "looking", history[0].Comment)

	resp, _ = call(t, srv, http.MethodGet, "/api/v1/ncrs/missing", "viewer-1", "viewer", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAdminStatsRequiresAdmin(t *testing.T) {
	srv := newServer(t)

	resp, _ := call(t, srv, http.MethodGet, "/api/v1/admin/stats", "u-1", "member", nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, env := call(t, srv, http.MethodGet, "/api/v1/admin/stats", "boss", "owner", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var stats map[string]interface{}
	require.NoError(t, json.Unmarshal(env.Data, &stats))
	assert.Contains(t, stats, "inspection_db")
	assert.Contains(t, stats, "ncr_db")
	assert.Equal(t, "memory", stats["cache"].(map[string]interface{})["backend"])
}
