package localstore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/juggajay/siteproof-v2-sub005/internal/config"
	"github.com/juggajay/siteproof-v2-sub005/internal/model"
	"github.com/juggajay/siteproof-v2-sub005/internal/offline"
	"github.com/juggajay/siteproof-v2-sub005/internal/testutil"
)

// storeFactories runs every contract test against each implementation.
func storeFactories(t *testing.T) map[string]func() offline.Store {
	return map[string]func() offline.Store{
		"memory": func() offline.Store { return NewMemoryStore() },
		"sqlite": func() offline.Store {
			s, err := OpenSQLite(filepath.Join(t.TempDir(), "device.db"))
			require.NoError(t, err)
			t.Cleanup(func() { s.Close() })
			return s
		},
	}
}

func TestStore_InspectionRoundTrip(t *testing.T) {
	for name, newStore := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := newStore()

			rec := testutil.NewInspection("insp-1")
			rec.LotID = "lot-7"
			rec.Notes = "east wall"
			completed := testutil.FixedClock().Advance(time.Hour)
			rec.CompletedAt = &completed
			require.NoError(t, s.PutInspection(ctx, rec))

			got, err := s.GetInspection(ctx, "insp-1")
			require.NoError(t, err)
			require.NotNil(t, got)
			assert.True(t, rec.SameContent(got))
			assert.True(t, rec.CreatedAt.Equal(got.CreatedAt))
			assert.True(t, rec.UpdatedAt.Equal(got.UpdatedAt))
			require.NotNil(t, got.CompletedAt)
			assert.True(t, completed.Equal(*got.CompletedAt))
			assert.Equal(t, model.SyncPending, got.SyncStatus)
		})
	}
}

func TestStore_GetMissingReturnsNil(t *testing.T) {
	for name, newStore := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := newStore()

			rec, err := s.GetInspection(ctx, "nope")
			require.NoError(t, err)
			assert.Nil(t, rec)

			tpl, err := s.GetTemplate(ctx, "nope")
			require.NoError(t, err)
			assert.Nil(t, tpl)

			_, ok, err := s.GetMetadata(ctx, model.LastSyncKey)
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestStore_SyncStatusQueries(t *testing.T) {
	for name, newStore := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := newStore()

			for _, id := range []string{"a", "b", "c"} {
				require.NoError(t, s.PutInspection(ctx, testutil.NewInspection(id)))
			}
			base := testutil.FixedClock().Now().Add(time.Minute)
			require.NoError(t, s.MarkInspection(ctx, "b", model.SyncSynced, &base))
			require.NoError(t, s.MarkInspection(ctx, "c", model.SyncConflict, nil))

			pending, err := s.ListInspectionsBySyncStatus(ctx, model.SyncPending)
			require.NoError(t, err)
			require.Len(t, pending, 1)
			assert.Equal(t, "a", pending[0].ID)

			n, err := s.CountInspectionsBySyncStatus(ctx, model.SyncConflict)
			require.NoError(t, err)
			assert.Equal(t, 1, n)

			b, err := s.GetInspection(ctx, "b")
			require.NoError(t, err)
			require.NotNil(t, b.BaseUpdatedAt)
			assert.True(t, base.Equal(*b.BaseUpdatedAt))
			assert.Equal(t, "Footing pour b", b.Name)

			err = s.MarkInspection(ctx, "missing", model.SyncSynced, nil)
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestStore_EvictTemplatesLeastRecentlyAccessed(t *testing.T) {
	for name, newStore := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := newStore()
			clock := testutil.FixedClock()

			for _, id := range []string{"t1", "t2", "t3", "t4"} {
				tpl := testutil.NewTemplate(id, 1, clock.Now())
				tpl.LastAccessed = clock.Advance(time.Minute)
				require.NoError(t, s.PutTemplate(ctx, tpl))
			}
			// t1 becomes the most recently used.
			require.NoError(t, s.TouchTemplate(ctx, "t1", clock.Advance(time.Minute)))

			evicted, err := s.EvictTemplates(ctx, 2)
			require.NoError(t, err)
			assert.ElementsMatch(t, []string{"t2", "t3"}, evicted)

			remaining, err := s.ListTemplates(ctx)
			require.NoError(t, err)
			ids := make([]string, 0, len(remaining))
			for _, tpl := range remaining {
				ids = append(ids, tpl.ID)
			}
			assert.ElementsMatch(t, []string{"t1", "t4"}, ids)

			evicted, err = s.EvictTemplates(ctx, 10)
			require.NoError(t, err)
			assert.Empty(t, evicted)
		})
	}
}

func TestStore_TemplateStructurePreserved(t *testing.T) {
	for name, newStore := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := newStore()
			tpl := testutil.NewTemplate("t1", 3, testutil.FixedClock().Now())
			require.NoError(t, s.PutTemplate(ctx, tpl))

			got, err := s.GetTemplate(ctx, "t1")
			require.NoError(t, err)
			require.NotNil(t, got)
			assert.JSONEq(t, string(tpl.Structure), string(got.Structure))
			assert.Equal(t, 3, got.Version)
		})
	}
}

func TestStore_AssignmentsAndMetadata(t *testing.T) {
	for name, newStore := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := newStore()
			now := testutil.FixedClock().Now()

			due := now.Add(48 * time.Hour)
			require.NoError(t, s.PutAssignment(ctx, &model.Assignment{
				ID: "as-2", TemplateID: "t1", ProjectID: "proj-1", AssignedTo: "u1", Status: "assigned", UpdatedAt: now,
			}))
			require.NoError(t, s.PutAssignment(ctx, &model.Assignment{
				ID: "as-1", TemplateID: "t1", ProjectID: "proj-1", AssignedTo: "u1", DueDate: &due, Status: "assigned", UpdatedAt: now,
			}))

			as, err := s.ListAssignments(ctx)
			require.NoError(t, err)
			require.Len(t, as, 2)
			assert.Equal(t, "as-1", as[0].ID)
			require.NotNil(t, as[0].DueDate)
			assert.True(t, due.Equal(*as[0].DueDate))
			assert.Nil(t, as[1].DueDate)

			require.NoError(t, s.SetMetadata(ctx, model.LastSyncKey, "2024-01-15T10:30:00Z", now))
			require.NoError(t, s.SetMetadata(ctx, model.LastSyncKey, "2024-01-16T10:30:00Z", now))
			v, ok, err := s.GetMetadata(ctx, model.LastSyncKey)
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, "2024-01-16T10:30:00Z", v)
		})
	}
}

func TestStore_ClearIsIdempotent(t *testing.T) {
	for name, newStore := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := newStore()
			now := testutil.FixedClock().Now()

			require.NoError(t, s.PutInspection(ctx, testutil.NewInspection("a")))
			require.NoError(t, s.PutTemplate(ctx, testutil.NewTemplate("t1", 1, now)))
			require.NoError(t, s.SetMetadata(ctx, model.LastSyncKey, "x", now))

			require.NoError(t, s.Clear(ctx))
			require.NoError(t, s.Clear(ctx))

			n, err := s.CountInspectionsBySyncStatus(ctx, model.SyncPending)
			require.NoError(t, err)
			assert.Zero(t, n)
			tpls, err := s.ListTemplates(ctx)
			require.NoError(t, err)
			assert.Empty(t, tpls)
			_, ok, err := s.GetMetadata(ctx, model.LastSyncKey)
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestSQLiteStore_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "device.db")

	s, err := OpenSQLite(path)
	require.NoError(t, err)
	require.NoError(t, s.PutInspection(ctx, testutil.NewInspection("persisted")))
	require.NoError(t, s.Close())

	s, err = OpenSQLite(path)
	require.NoError(t, err)
	defer s.Close()

	rec, err := s.GetInspection(ctx, "persisted")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, model.SyncPending, rec.SyncStatus)
}

func TestNew_SelectsBackend(t *testing.T) {
	s, err := New(config.LocalStoreConfig{Type: "memory"})
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, s)

	s, err = New(config.LocalStoreConfig{Type: "sqlite", DataDir: t.TempDir()})
	require.NoError(t, err)
	defer s.Close()
	assert.IsType(t, &SQLiteStore{}, s)

	_, err = New(config.LocalStoreConfig{Type: "sqlite"})
	assert.Error(t, err)

	_, err = New(config.LocalStoreConfig{Type: "badger"})
	assert.Error(t, err)
}
