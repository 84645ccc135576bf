package repository

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/juggajay/siteproof-v2-sub005/internal/model"
	"github.com/juggajay/siteproof-v2-sub005/internal/testutil"
)

func newNCRRepo(t *testing.T) *SQLiteNCRRepository {
	t.Helper()
	repo, err := NewSQLiteNCRRepository(filepath.Join(t.TempDir(), "ncrs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestSQLiteNCRRepository_CreateGetCount(t *testing.T) {
	repo := newNCRRepo(t)
	ctx := context.Background()

	n := testutil.NewNCR("ncr-1", "raiser", "fixer")
	require.NoError(t, repo.CreateNCR(ctx, n))

	got, err := repo.GetNCR(ctx, "ncr-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, model.NCROpen, got.Status)
	assert.Equal(t, "fixer", got.AssignedTo)
	assert.True(t, n.CreatedAt.Equal(got.CreatedAt))
	assert.Nil(t, got.AcknowledgedAt)

	count, err := repo.CountNCRs(ctx, "proj-1")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	missing, err := repo.GetNCR(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestSQLiteNCRRepository_ApplyTransition(t *testing.T) {
	repo := newNCRRepo(t)
	ctx := context.Background()
	n := testutil.NewNCR("ncr-1", "raiser", "fixer")
	require.NoError(t, repo.CreateNCR(ctx, n))

	at := testutil.FixedClock().Advance(time.Hour)
	n.Status = model.NCRAcknowledged
	n.AcknowledgedAt = &at
	n.UpdatedAt = at
	h := &model.NCRHistory{
		NCRID: "ncr-1", FromStatus: model.NCROpen, ToStatus: model.NCRAcknowledged,
		ChangedBy: "fixer", Role: model.RoleAssignedUser, Comment: "on it", ChangedAt: at,
	}
	require.NoError(t, repo.ApplyTransition(ctx, n, h))
	assert.NotZero(t, h.ID)

	got, err := repo.GetNCR(ctx, "ncr-1")
	require.NoError(t, err)
	assert.Equal(t, model.NCRAcknowledged, got.Status)
	require.NotNil(t, got.AcknowledgedAt)
	assert.True(t, at.Equal(*got.AcknowledgedAt))

	history, err := repo.ListHistory(ctx, "ncr-1")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, model.NCROpen, history[0].FromStatus)
	assert.Equal(t, model.RoleAssignedUser, history[0].Role)
	assert.Equal(t, "on it", history[0].Comment)
}

func TestSQLiteNCRRepository_ApplyTransitionRejectsStaleStatus(t *testing.T) {
	repo := newNCRRepo(t)
	ctx := context.Background()
	n := testutil.NewNCR("ncr-1", "raiser", "fixer")
	require.NoError(t, repo.CreateNCR(ctx, n))

	n.Status = model.NCRResolved
	err := repo.ApplyTransition(ctx, n, &model.NCRHistory{
		NCRID: "ncr-1", FromStatus: model.NCRInProgress, ToStatus: model.NCRResolved,
		ChangedBy: "fixer", Role: model.RoleAssignedUser, ChangedAt: n.UpdatedAt,
	})

	assert.ErrorIs(t, err, ErrStatusChanged)
	history, err := repo.ListHistory(ctx, "ncr-1")
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestSQLiteNCRRepository_Stats(t *testing.T) {
	repo := newNCRRepo(t)
	ctx := context.Background()
	require.NoError(t, repo.CreateNCR(ctx, testutil.NewNCR("ncr-1", "r", "a")))
	require.NoError(t, repo.CreateNCR(ctx, testutil.NewNCR("ncr-2", "r", "a")))

	stats, err := repo.GetStats(ctx)

	require.NoError(t, err)
	assert.Equal(t, int64(2), stats["total_ncrs"])
	assert.Equal(t, map[string]int64{"open": 2}, stats["by_status"])
}
