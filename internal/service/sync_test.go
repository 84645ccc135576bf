package service

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/juggajay/siteproof-v2-sub005/internal/cache"
	"github.com/juggajay/siteproof-v2-sub005/internal/model"
	"github.com/juggajay/siteproof-v2-sub005/internal/repository"
	"github.com/juggajay/siteproof-v2-sub005/internal/testutil"
	"github.com/juggajay/siteproof-v2-sub005/pkg/apierror"
)

var (
	admin  = model.Actor{UserID: "admin-1", OrgRole: model.OrgAdmin}
	member = model.Actor{UserID: "worker-1", OrgRole: model.OrgMember}
)

type syncHarness struct {
	svc   *SyncService
	repo  *repository.SQLiteInspectionRepository
	cache *cache.MemoryCache
	clock *testutil.StubClock
}

func newSyncHarness(t *testing.T) *syncHarness {
	t.Helper()
	repo, err := repository.NewSQLiteInspectionRepository(filepath.Join(t.TempDir(), "inspections.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	clock := testutil.FixedClock()
	clock.Set(time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC))
	c := cache.NewMemoryCache(cache.WithNow(clock.Now))
	t.Cleanup(func() { c.Close() })

	svc := NewSyncService(repo, c, SyncServiceConfig{MaxBatch: 3, Now: clock.Now})
	return &syncHarness{svc: svc, repo: repo, cache: c, clock: clock}
}

func (h *syncHarness) seed(t *testing.T, rec *model.Inspection) {
	t.Helper()
	require.NoError(t, h.repo.UpsertInspection(context.Background(), rec))
}

func syncBody(t *testing.T, req model.SyncRequest) []byte {
	t.Helper()
	body, err := json.Marshal(req)
	require.NoError(t, err)
	return body
}

func requireAPIError(t *testing.T, err error, status int) *apierror.Error {
	t.Helper()
	var apiErr *apierror.Error
	require.True(t, errors.As(err, &apiErr), "expected *apierror.Error, got %v", err)
	assert.Equal(t, status, apiErr.StatusCode)
	return apiErr
}

func TestSync_ClassifiesSubmissions(t *testing.T) {
	h := newSyncHarness(t)
	ctx := context.Background()
	t0 := testutil.FixedClock().Now()
	lastSync := t0

	// Changed on the server after the client's last sync, and divergent.
	contested := testutil.NewInspection("contested")
	contested.Notes = "server edit"
	contested.UpdatedAt = t0.Add(time.Hour)
	h.seed(t, contested)

	// Untouched on the server since the client's last sync.
	stale := testutil.NewInspection("stale")
	stale.UpdatedAt = t0.Add(-time.Hour)
	h.seed(t, stale)

	clientContested := testutil.NewInspection("contested")
	clientContested.Notes = "client edit"
	clientStale := testutil.NewInspection("stale")
	clientStale.Notes = "client edit"
	fresh := testutil.NewInspection("fresh")

	out, err := h.svc.Sync(ctx, admin, syncBody(t, model.SyncRequest{
		LastSyncTimestamp: &lastSync,
		Inspections:       []*model.Inspection{clientContested, clientStale, fresh},
	}))
	require.NoError(t, err)
	resp := out.Response

	assert.False(t, out.Replayed)
	assert.Equal(t, []string{"fresh"}, resp.Inspections.Created)
	assert.Equal(t, []string{"stale"}, resp.Inspections.Updated)
	require.Len(t, resp.Inspections.Conflicts, 1)
	assert.Equal(t, "client edit", resp.Inspections.Conflicts[0].Client.Notes)
	assert.Equal(t, "server edit", resp.Inspections.Conflicts[0].Server.Notes)
	assert.True(t, resp.LastSyncTimestamp.Equal(h.clock.Now()))

	got, err := h.repo.GetInspection(ctx, "contested")
	require.NoError(t, err)
	assert.Equal(t, "server edit", got.Notes, "conflicted row must be untouched")

	got, err = h.repo.GetInspection(ctx, "stale")
	require.NoError(t, err)
	assert.Equal(t, "client edit", got.Notes)
	assert.True(t, got.UpdatedAt.Equal(h.clock.Now()))
	assert.True(t, got.CreatedAt.Equal(stale.CreatedAt))

	got, err = h.repo.GetInspection(ctx, "fresh")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Empty(t, got.SyncStatus)
}

func TestSync_IdenticalContentIsNotAConflict(t *testing.T) {
	h := newSyncHarness(t)
	server := testutil.NewInspection("same")
	server.UpdatedAt = server.UpdatedAt.Add(time.Hour)
	h.seed(t, server)

	out, err := h.svc.Sync(context.Background(), admin, syncBody(t, model.SyncRequest{
		Inspections: []*model.Inspection{testutil.NewInspection("same")},
	}))
	require.NoError(t, err)
	assert.Equal(t, []string{"same"}, out.Response.Inspections.Updated)
	assert.Empty(t, out.Response.Inspections.Conflicts)
}

func TestSync_NeverSyncedClientConflictsOnDivergence(t *testing.T) {
	h := newSyncHarness(t)
	h.seed(t, testutil.NewInspection("x"))

	client := testutil.NewInspection("x")
	client.CompletionPercentage = 80

	out, err := h.svc.Sync(context.Background(), admin, syncBody(t, model.SyncRequest{
		Inspections: []*model.Inspection{client},
	}))
	require.NoError(t, err)
	assert.Len(t, out.Response.Inspections.Conflicts, 1)
}

func TestSync_ServerUpdatesExcludeSubmitted(t *testing.T) {
	h := newSyncHarness(t)
	t0 := testutil.FixedClock().Now()

	other := testutil.NewInspection("other")
	other.UpdatedAt = t0.Add(time.Hour)
	h.seed(t, other)

	old := testutil.NewInspection("old")
	old.UpdatedAt = t0.Add(-time.Hour)
	h.seed(t, old)

	out, err := h.svc.Sync(context.Background(), admin, syncBody(t, model.SyncRequest{
		LastSyncTimestamp: &t0,
		Inspections:       []*model.Inspection{testutil.NewInspection("mine")},
	}))
	require.NoError(t, err)

	ids := make([]string, 0)
	for _, rec := range out.Response.ServerUpdates.Inspections {
		ids = append(ids, rec.ID)
	}
	assert.Equal(t, []string{"other"}, ids)
}

func TestSync_ReEditedConflictStillConflicts(t *testing.T) {
	h := newSyncHarness(t)
	ctx := context.Background()
	t0 := testutil.FixedClock().Now()

	server := testutil.NewInspection("x")
	server.Notes = "server edit"
	server.UpdatedAt = t0.Add(time.Minute)
	h.seed(t, server)

	first := testutil.NewInspection("x")
	first.Notes = "device edit 1"
	first.BaseUpdatedAt = &t0
	out, err := h.svc.Sync(ctx, admin, syncBody(t, model.SyncRequest{
		LastSyncTimestamp: &t0,
		Inspections:       []*model.Inspection{first},
	}))
	require.NoError(t, err)
	require.Len(t, out.Response.Inspections.Conflicts, 1)

	// The device keeps editing without resolving; its last sync has moved on but
	// the edit is still based on the pre-conflict server state.
	h.clock.Advance(time.Minute)
	lastSync := out.Response.LastSyncTimestamp
	second := testutil.NewInspection("x")
	second.Notes = "device edit 2"
	second.BaseUpdatedAt = &t0
	out, err = h.svc.Sync(ctx, admin, syncBody(t, model.SyncRequest{
		LastSyncTimestamp: &lastSync,
		Inspections:       []*model.Inspection{second},
	}))
	require.NoError(t, err)
	assert.Empty(t, out.Response.Inspections.Updated)
	require.Len(t, out.Response.Inspections.Conflicts, 1)
	assert.Equal(t, "server edit", out.Response.Inspections.Conflicts[0].Server.Notes)

	got, err := h.repo.GetInspection(ctx, "x")
	require.NoError(t, err)
	assert.Equal(t, "server edit", got.Notes)
}

func TestSync_EditBasedOnCurrentServerCopyUpdates(t *testing.T) {
	h := newSyncHarness(t)
	ctx := context.Background()
	t0 := testutil.FixedClock().Now()

	server := testutil.NewInspection("x")
	server.Notes = "server edit"
	server.UpdatedAt = t0.Add(time.Minute)
	h.seed(t, server)

	// The batch's last sync predates the server edit, but this record was
	// rebased onto it (e.g. after use_server), so it is a plain update.
	base := server.UpdatedAt
	edit := testutil.NewInspection("x")
	edit.Notes = "device edit"
	edit.BaseUpdatedAt = &base
	out, err := h.svc.Sync(ctx, admin, syncBody(t, model.SyncRequest{
		LastSyncTimestamp: &t0,
		Inspections:       []*model.Inspection{edit},
	}))
	require.NoError(t, err)
	assert.Equal(t, []string{"x"}, out.Response.Inspections.Updated)
	assert.Empty(t, out.Response.Inspections.Conflicts)

	got, err := h.repo.GetInspection(ctx, "x")
	require.NoError(t, err)
	assert.Equal(t, "device edit", got.Notes)
	assert.Nil(t, got.BaseUpdatedAt)
}

func TestSync_MemberWritesAndSeesOnlyAssignedProjects(t *testing.T) {
	h := newSyncHarness(t)
	ctx := context.Background()

	require.NoError(t, h.repo.UpsertAssignment(ctx, &model.Assignment{
		ID: "a-1", TemplateID: "tpl-1", ProjectID: "proj-2", AssignedTo: member.UserID,
		Status: "active", UpdatedAt: testutil.FixedClock().Now(),
	}))

	for _, p := range []string{"proj-1", "proj-2", "proj-secret"} {
		rec := testutil.NewInspection("in-" + p)
		rec.ProjectID = p
		h.seed(t, rec)
	}

	foreign := testutil.NewInspection("bait")
	foreign.ProjectID = "proj-secret"
	mine := testutil.NewInspection("mine")
	mine.ProjectID = "proj-2"
	// An existing row in a foreign project cannot be pulled into an assigned one.
	moved := testutil.NewInspection("in-proj-1")
	moved.ProjectID = "proj-2"

	out, err := h.svc.Sync(ctx, member, syncBody(t, model.SyncRequest{
		Inspections: []*model.Inspection{foreign, mine, moved},
	}))
	require.NoError(t, err)
	resp := out.Response

	assert.Equal(t, []string{"mine"}, resp.Inspections.Created)
	assert.Empty(t, resp.Inspections.Updated)
	assert.Empty(t, resp.Inspections.Conflicts)
	require.Len(t, resp.Inspections.Rejected, 2)
	assert.Equal(t, "bait", resp.Inspections.Rejected[0].ID)
	assert.Contains(t, resp.Inspections.Rejected[0].Reason, "proj-secret")
	assert.Equal(t, "in-proj-1", resp.Inspections.Rejected[1].ID)

	bait, err := h.repo.GetInspection(ctx, "bait")
	require.NoError(t, err)
	assert.Nil(t, bait)
	untouched, err := h.repo.GetInspection(ctx, "in-proj-1")
	require.NoError(t, err)
	assert.Equal(t, "proj-1", untouched.ProjectID)

	ids := make([]string, 0)
	for _, rec := range resp.ServerUpdates.Inspections {
		ids = append(ids, rec.ID)
	}
	assert.Equal(t, []string{"in-proj-2"}, ids)
}

func TestSync_MemberWithoutAssignmentsGetsNothing(t *testing.T) {
	h := newSyncHarness(t)
	h.seed(t, testutil.NewInspection("existing"))

	out, err := h.svc.Sync(context.Background(), member, syncBody(t, model.SyncRequest{
		Inspections: []*model.Inspection{testutil.NewInspection("new")},
	}))
	require.NoError(t, err)
	assert.Empty(t, out.Response.Inspections.Created)
	require.Len(t, out.Response.Inspections.Rejected, 1)
	assert.Empty(t, out.Response.ServerUpdates.Inspections)
}

func TestSync_TemplateUpdates(t *testing.T) {
	h := newSyncHarness(t)
	ctx := context.Background()
	t0 := testutil.FixedClock().Now()

	require.NoError(t, h.repo.UpsertTemplate(ctx, testutil.NewTemplate("tpl-current", 1, t0.Add(-time.Hour))))
	require.NoError(t, h.repo.UpsertTemplate(ctx, testutil.NewTemplate("tpl-bumped", 3, t0.Add(-time.Hour))))
	require.NoError(t, h.repo.UpsertTemplate(ctx, testutil.NewTemplate("tpl-edited", 1, t0.Add(time.Hour))))
	require.NoError(t, h.repo.UpsertTemplate(ctx, testutil.NewTemplate("tpl-unknown", 1, t0.Add(-time.Hour))))

	known := []model.TemplateMeta{
		{ID: "tpl-current", Version: 1},
		{ID: "tpl-bumped", Version: 2},
		{ID: "tpl-edited", Version: 1},
	}

	templateIDs := func(resp *model.SyncResponse) []string {
		ids := make([]string, 0)
		for _, tpl := range resp.ServerUpdates.Templates {
			ids = append(ids, tpl.ID)
		}
		return ids
	}

	out, err := h.svc.Sync(ctx, admin, syncBody(t, model.SyncRequest{LastSyncTimestamp: &t0, Templates: known}))
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"tpl-bumped", "tpl-edited"}, templateIDs(out.Response))

	out, err = h.svc.Sync(ctx, admin, syncBody(t, model.SyncRequest{Templates: known}))
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"tpl-bumped", "tpl-unknown"}, templateIDs(out.Response))
}

func TestSync_ReplaysIdenticalRequest(t *testing.T) {
	h := newSyncHarness(t)
	ctx := context.Background()
	body := syncBody(t, model.SyncRequest{Inspections: []*model.Inspection{testutil.NewInspection("r-1")}})

	first, err := h.svc.Sync(ctx, admin, body)
	require.NoError(t, err)
	assert.False(t, first.Replayed)

	h.clock.Advance(time.Minute)
	second, err := h.svc.Sync(ctx, admin, body)
	require.NoError(t, err)
	assert.True(t, second.Replayed)
	assert.Equal(t, first.Response.Inspections.Created, second.Response.Inspections.Created)
	assert.True(t, first.Response.LastSyncTimestamp.Equal(second.Response.LastSyncTimestamp))

	got, err := h.repo.GetInspection(ctx, "r-1")
	require.NoError(t, err)
	assert.True(t, got.UpdatedAt.Equal(first.Response.LastSyncTimestamp), "replay must not re-apply")

	// Another user with the same body is processed independently.
	third, err := h.svc.Sync(ctx, model.Actor{UserID: "admin-2", OrgRole: model.OrgAdmin}, body)
	require.NoError(t, err)
	assert.False(t, third.Replayed)
	assert.Equal(t, []string{"r-1"}, third.Response.Inspections.Updated)
}

func TestSync_ReplayExpires(t *testing.T) {
	h := newSyncHarness(t)
	ctx := context.Background()
	body := syncBody(t, model.SyncRequest{Inspections: []*model.Inspection{testutil.NewInspection("r-1")}})

	_, err := h.svc.Sync(ctx, admin, body)
	require.NoError(t, err)

	h.clock.Advance(DefaultIdempotencyTTL + time.Second)
	out, err := h.svc.Sync(ctx, admin, body)
	require.NoError(t, err)
	assert.False(t, out.Replayed)
}

func TestSync_InFlightDuplicateIsRejected(t *testing.T) {
	h := newSyncHarness(t)
	ctx := context.Background()
	body := syncBody(t, model.SyncRequest{Inspections: []*model.Inspection{testutil.NewInspection("r-1")}})

	ok, err := h.cache.SetNX(ctx, idempotencyKey(admin.UserID, body)+":lock", []byte("other"), time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = h.svc.Sync(ctx, admin, body)
	requireAPIError(t, err, http.StatusConflict)

	rec, err := h.repo.GetInspection(ctx, "r-1")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestSync_ReleasesLockAfterProcessing(t *testing.T) {
	h := newSyncHarness(t)
	ctx := context.Background()
	body := syncBody(t, model.SyncRequest{})

	_, err := h.svc.Sync(ctx, admin, body)
	require.NoError(t, err)

	exists, err := h.cache.Exists(ctx, idempotencyKey(admin.UserID, body)+":lock")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestSync_RejectsBadRequests(t *testing.T) {
	h := newSyncHarness(t)
	ctx := context.Background()

	_, err := h.svc.Sync(ctx, admin, []byte("{not json"))
	requireAPIError(t, err, http.StatusBadRequest)

	batch := []*model.Inspection{
		testutil.NewInspection("a"), testutil.NewInspection("b"),
		testutil.NewInspection("c"), testutil.NewInspection("d"),
	}
	_, err = h.svc.Sync(ctx, admin, syncBody(t, model.SyncRequest{Inspections: batch}))
	requireAPIError(t, err, http.StatusBadRequest)

	invalid := testutil.NewInspection("bad")
	invalid.CompletionPercentage = 140
	dup := testutil.NewInspection("a")
	_, err = h.svc.Sync(ctx, admin, syncBody(t, model.SyncRequest{
		Inspections: []*model.Inspection{testutil.NewInspection("a"), invalid, dup},
	}))
	apiErr := requireAPIError(t, err, http.StatusBadRequest)
	require.Len(t, apiErr.Details, 2)
	assert.Equal(t, "inspections[1]", apiErr.Details[0].Field)
	assert.Equal(t, "inspections[2]", apiErr.Details[1].Field)
}

func TestBulkDownload_ScopesAndStripsResponses(t *testing.T) {
	h := newSyncHarness(t)
	ctx := context.Background()
	t0 := testutil.FixedClock().Now()

	oldRec := testutil.NewInspection("old")
	oldRec.UpdatedAt = t0.Add(-time.Hour)
	h.seed(t, oldRec)
	newRec := testutil.NewInspection("new")
	newRec.UpdatedAt = t0.Add(time.Hour)
	h.seed(t, newRec)
	elsewhere := testutil.NewInspection("elsewhere")
	elsewhere.ProjectID = "proj-9"
	h.seed(t, elsewhere)

	require.NoError(t, h.repo.UpsertTemplate(ctx, testutil.NewTemplate("tpl-1", 1, t0)))
	require.NoError(t, h.repo.UpsertAssignment(ctx, &model.Assignment{
		ID: "a-1", TemplateID: "tpl-1", ProjectID: "proj-1", AssignedTo: "someone",
		Status: "active", UpdatedAt: t0,
	}))

	resp, err := h.svc.BulkDownload(ctx, admin, &model.BulkDownloadRequest{
		ProjectIDs:         []string{"proj-1"},
		IncludeTemplates:   true,
		IncludeAssignments: true,
	})
	require.NoError(t, err)
	require.Len(t, resp.Inspections, 2)
	for _, rec := range resp.Inspections {
		assert.Nil(t, rec.Responses)
		assert.Equal(t, "proj-1", rec.ProjectID)
	}
	assert.Len(t, resp.Templates, 1)
	assert.Len(t, resp.Assignments, 1)
	assert.Equal(t, map[string]int{"inspections": 2, "templates": 1, "assignments": 1}, resp.Metadata.Counts)
	assert.True(t, resp.Metadata.DownloadedAt.Equal(h.clock.Now()))

	resp, err = h.svc.BulkDownload(ctx, admin, &model.BulkDownloadRequest{
		ProjectIDs:       []string{"proj-1"},
		IncludeResponses: true,
		LastSync:         &t0,
	})
	require.NoError(t, err)
	require.Len(t, resp.Inspections, 1)
	assert.Equal(t, "new", resp.Inspections[0].ID)
	assert.Equal(t, "pass", resp.Inspections[0].Responses["q1"])
	assert.Empty(t, resp.Templates)
	assert.Empty(t, resp.Assignments)
}

func TestBulkDownload_MemberWithoutAssignmentsSeesNothing(t *testing.T) {
	h := newSyncHarness(t)
	h.seed(t, testutil.NewInspection("x"))

	resp, err := h.svc.BulkDownload(context.Background(), member, &model.BulkDownloadRequest{IncludeAssignments: true})
	require.NoError(t, err)
	assert.Empty(t, resp.Inspections)
	assert.Empty(t, resp.Assignments)
	assert.Equal(t, 0, resp.Metadata.Counts["inspections"])
}

func TestResolveConflict_Strategies(t *testing.T) {
	ctx := context.Background()

	t.Run("use_client", func(t *testing.T) {
		h := newSyncHarness(t)
		h.seed(t, testutil.NewInspection("c-1"))
		client := testutil.NewInspection("c-1")
		client.Notes = "client wins"

		resp, err := h.svc.ResolveConflict(ctx, admin, &model.ResolveRequest{
			InspectionID: "c-1", Strategy: model.ResolveUseClient, Client: client,
		})
		require.NoError(t, err)
		assert.Equal(t, "client wins", resp.Inspection.Notes)
		assert.True(t, resp.Inspection.UpdatedAt.Equal(h.clock.Now()))

		got, err := h.repo.GetInspection(ctx, "c-1")
		require.NoError(t, err)
		assert.Equal(t, "client wins", got.Notes)
	})

	t.Run("use_server", func(t *testing.T) {
		h := newSyncHarness(t)
		server := testutil.NewInspection("c-1")
		server.Notes = "server wins"
		h.seed(t, server)

		resp, err := h.svc.ResolveConflict(ctx, admin, &model.ResolveRequest{
			InspectionID: "c-1", Strategy: model.ResolveUseServer,
		})
		require.NoError(t, err)
		assert.Equal(t, "server wins", resp.Inspection.Notes)
		assert.True(t, resp.Inspection.UpdatedAt.Equal(server.UpdatedAt))
	})

	t.Run("merge", func(t *testing.T) {
		h := newSyncHarness(t)
		server := testutil.NewInspection("c-1")
		server.Responses["q2"] = "fail"
		h.seed(t, server)

		resp, err := h.svc.ResolveConflict(ctx, admin, &model.ResolveRequest{
			InspectionID: "c-1",
			Strategy:     model.ResolveMerge,
			MergedFields: map[string]interface{}{
				"notes":                 "merged",
				"completion_percentage": float64(55),
				"status":                "in_progress",
				"responses":             map[string]interface{}{"q2": "pass", "q3": "n/a"},
			},
		})
		require.NoError(t, err)
		rec := resp.Inspection
		assert.Equal(t, "merged", rec.Notes)
		assert.Equal(t, 55, rec.CompletionPercentage)
		assert.Equal(t, model.InspectionInProgress, rec.Status)
		assert.Equal(t, map[string]interface{}{"q1": "pass", "q2": "pass", "q3": "n/a"}, rec.Responses)
	})

	t.Run("merge rejects unknown and invalid fields", func(t *testing.T) {
		h := newSyncHarness(t)
		h.seed(t, testutil.NewInspection("c-1"))

		_, err := h.svc.ResolveConflict(ctx, admin, &model.ResolveRequest{
			InspectionID: "c-1",
			Strategy:     model.ResolveMerge,
			MergedFields: map[string]interface{}{"project_id": "proj-2", "name": 5},
		})
		apiErr := requireAPIError(t, err, http.StatusBadRequest)
		assert.Len(t, apiErr.Details, 2)

		_, err = h.svc.ResolveConflict(ctx, admin, &model.ResolveRequest{
			InspectionID: "c-1",
			Strategy:     model.ResolveMerge,
			MergedFields: map[string]interface{}{"status": "exploded"},
		})
		requireAPIError(t, err, http.StatusBadRequest)
	})
}

func TestResolveConflict_Errors(t *testing.T) {
	h := newSyncHarness(t)
	ctx := context.Background()
	h.seed(t, testutil.NewInspection("c-1"))

	_, err := h.svc.ResolveConflict(ctx, admin, &model.ResolveRequest{InspectionID: "missing", Strategy: model.ResolveUseServer})
	requireAPIError(t, err, http.StatusNotFound)

	_, err = h.svc.ResolveConflict(ctx, admin, &model.ResolveRequest{InspectionID: "c-1", Strategy: "coin_flip"})
	requireAPIError(t, err, http.StatusBadRequest)

	_, err = h.svc.ResolveConflict(ctx, admin, &model.ResolveRequest{InspectionID: "c-1", Strategy: model.ResolveUseClient})
	requireAPIError(t, err, http.StatusBadRequest)

	_, err = h.svc.ResolveConflict(ctx, admin, &model.ResolveRequest{
		InspectionID: "c-1", Strategy: model.ResolveUseClient, Client: testutil.NewInspection("c-2"),
	})
	requireAPIError(t, err, http.StatusBadRequest)
}

func TestResolveConflict_RespectsProjectScope(t *testing.T) {
	h := newSyncHarness(t)
	ctx := context.Background()

	require.NoError(t, h.repo.UpsertAssignment(ctx, &model.Assignment{
		ID: "a-1", TemplateID: "tpl-1", ProjectID: "proj-2", AssignedTo: member.UserID,
		Status: "active", UpdatedAt: testutil.FixedClock().Now(),
	}))
	secret := testutil.NewInspection("secret")
	secret.ProjectID = "proj-secret"
	secret.Notes = "office only"
	h.seed(t, secret)
	own := testutil.NewInspection("own")
	own.ProjectID = "proj-2"
	h.seed(t, own)

	overwrite := secret.Clone()
	overwrite.Notes = "overwritten"
	_, err := h.svc.ResolveConflict(ctx, member, &model.ResolveRequest{
		InspectionID: "secret", Strategy: model.ResolveUseClient, Client: overwrite,
	})
	requireAPIError(t, err, http.StatusNotFound)

	got, err := h.repo.GetInspection(ctx, "secret")
	require.NoError(t, err)
	assert.Equal(t, "office only", got.Notes)

	moved := own.Clone()
	moved.ProjectID = "proj-secret"
	_, err = h.svc.ResolveConflict(ctx, member, &model.ResolveRequest{
		InspectionID: "own", Strategy: model.ResolveUseClient, Client: moved,
	})
	requireAPIError(t, err, http.StatusForbidden)

	resp, err := h.svc.ResolveConflict(ctx, member, &model.ResolveRequest{
		InspectionID: "own", Strategy: model.ResolveUseServer,
	})
	require.NoError(t, err)
	assert.Equal(t, "own", resp.Inspection.ID)
}
