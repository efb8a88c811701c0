package data

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opswatch/alert-engine/internal/core"
	"github.com/opswatch/alert-engine/internal/domain/model"
	apperrors "github.com/opswatch/alert-engine/internal/errors"
	"github.com/opswatch/alert-engine/internal/testutil"
)

// dedupWindow mirrors the trailing suppression window used by the dedup
// engine; the repository itself only sees the resolved bounds.
const dedupWindow = 5 * time.Minute

func newTestAlertRepo(t *testing.T) (*AlertRepo, *FixedTimeProvider) {
	t.Helper()

	db := testutil.SetupTestDB(t)
	t.Cleanup(func() {
		testutil.CleanupTestDB(t, db)
		if err := db.Close(); err != nil {
			t.Logf("test db close failed: %v", err)
		}
	})

	clock := NewFixedTimeProvider(time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC))
	repo := NewAlertRepo(db)
	repo.timeProvider = clock
	return repo, clock
}

func createTestAlert(t *testing.T, repo *AlertRepo, dedupeKey string, mutate func(*model.CreateAlertRequest)) *model.Alert {
	t.Helper()

	siteID := int64(7)
	req := &model.CreateAlertRequest{
		Category: model.AlertCategoryEnvironmental,
		Severity: model.AlertSeverityHigh,
		Title:    "Water quality breach",
		Message:  "pH 9.8 exceeds max 9.0",
		SiteID:   &siteID,
	}
	if mutate != nil {
		mutate(req)
	}

	alert, err := repo.Create(context.Background(), req, dedupeKey)
	require.NoError(t, err)
	require.NotNil(t, alert)
	return alert
}

func TestAlertRepo_CreateAndGetByID(t *testing.T) {
	testutil.SkipIfNoTestDB(t)
	repo, clock := newTestAlertRepo(t)

	t.Run("successful creation", func(t *testing.T) {
		alert := createTestAlert(t, repo, "key-create", nil)

		assert.NotEmpty(t, alert.ID)
		assert.Equal(t, model.AlertStatusNew, alert.Status)
		assert.Equal(t, "key-create", alert.DedupeKey)
		assert.Equal(t, model.AlertSeverityHigh.PriorityOrder(), alert.PriorityOrder)
		assert.False(t, alert.IsDismissed)
		assert.True(t, alert.GeneratedAt.Equal(clock.Now()))
		assert.Nil(t, alert.ReadAt)
		assert.Nil(t, alert.ResolvedAt)
	})

	t.Run("successful retrieval", func(t *testing.T) {
		created := createTestAlert(t, repo, "key-get", nil)

		got, err := repo.GetByID(context.Background(), created.ID)
		require.NoError(t, err)
		assert.Equal(t, created.ID, got.ID)
		assert.Equal(t, created.Title, got.Title)
		assert.Equal(t, created.DedupeKey, got.DedupeKey)
		assert.True(t, created.GeneratedAt.Equal(got.GeneratedAt))
	})

	t.Run("alert not found", func(t *testing.T) {
		_, err := repo.GetByID(context.Background(), uuid.NewString())
		require.Error(t, err)
		assert.True(t, apperrors.IsNotFound(err))
	})

	t.Run("malformed id is not found, not a query error", func(t *testing.T) {
		_, err := repo.GetByID(context.Background(), "not-a-uuid")
		require.Error(t, err)
		assert.True(t, apperrors.IsNotFound(err))
	})
}

func TestAlertRepo_MarkRead(t *testing.T) {
	testutil.SkipIfNoTestDB(t)
	repo, _ := newTestAlertRepo(t)

	t.Run("new alert becomes read", func(t *testing.T) {
		alert := createTestAlert(t, repo, "key-read", nil)

		read, err := repo.MarkRead(context.Background(), alert.ID)
		require.NoError(t, err)
		assert.Equal(t, model.AlertStatusRead, read.Status)
		require.NotNil(t, read.ReadAt)
	})

	t.Run("re-reading keeps the first read_at", func(t *testing.T) {
		alert := createTestAlert(t, repo, "key-reread", nil)

		first, err := repo.MarkRead(context.Background(), alert.ID)
		require.NoError(t, err)

		again, err := repo.MarkRead(context.Background(), alert.ID)
		require.NoError(t, err)
		assert.Equal(t, model.AlertStatusRead, again.Status)
		require.NotNil(t, again.ReadAt)
		assert.True(t, first.ReadAt.Equal(*again.ReadAt))
	})

	t.Run("alert not found", func(t *testing.T) {
		_, err := repo.MarkRead(context.Background(), uuid.NewString())
		require.Error(t, err)
		assert.True(t, apperrors.IsNotFound(err))
	})
}

// Terminal statuses admit no further transitions; the guarded UPDATE plus the
// follow-up SELECT must report invalid_transition, never not_found.
func TestAlertRepo_TerminalStatusRejectsTransitions(t *testing.T) {
	testutil.SkipIfNoTestDB(t)
	repo, clock := newTestAlertRepo(t)

	alert := createTestAlert(t, repo, "key-terminal", nil)

	resolved, err := repo.Resolve(context.Background(), core.ResolveAlertParams{
		ID:              alert.ID,
		ResolvedBy:      "user-1",
		ResolutionNotes: "sensor recalibrated",
	})
	require.NoError(t, err)
	assert.Equal(t, model.AlertStatusResolved, resolved.Status)
	require.NotNil(t, resolved.ResolvedBy)
	assert.Equal(t, "user-1", *resolved.ResolvedBy)
	require.NotNil(t, resolved.ResolutionNotes)
	assert.Equal(t, "sensor recalibrated", *resolved.ResolutionNotes)

	t.Run("resolve again", func(t *testing.T) {
		_, err := repo.Resolve(context.Background(), core.ResolveAlertParams{
			ID: alert.ID, ResolvedBy: "user-2",
		})
		require.Error(t, err)
		assert.True(t, apperrors.IsInvalidTransition(err))
		assert.Contains(t, err.Error(), "RESOLVED")
	})

	t.Run("mark read", func(t *testing.T) {
		_, err := repo.MarkRead(context.Background(), alert.ID)
		require.Error(t, err)
		assert.True(t, apperrors.IsInvalidTransition(err))
	})

	t.Run("snooze", func(t *testing.T) {
		_, err := repo.Snooze(context.Background(), core.SnoozeAlertParams{
			ID: alert.ID, SnoozedUntil: clock.Now().Add(time.Hour),
		})
		require.Error(t, err)
		assert.True(t, apperrors.IsInvalidTransition(err))
	})

	t.Run("dismiss", func(t *testing.T) {
		_, err := repo.Dismiss(context.Background(), core.DismissAlertParams{
			ID: alert.ID, DismissedBy: "user-1",
		})
		require.Error(t, err)
		assert.True(t, apperrors.IsInvalidTransition(err))
	})
}

func TestAlertRepo_ArchiveDuplicates(t *testing.T) {
	testutil.SkipIfNoTestDB(t)
	repo, clock := newTestAlertRepo(t)
	base := clock.Now()

	// a stale duplicate outside the trailing window stays live
	clock.SetTime(base.Add(-10 * time.Minute))
	stale := createTestAlert(t, repo, "key-dup", nil)

	clock.SetTime(base)
	older := createTestAlert(t, repo, "key-dup", nil)
	clock.AddTime(30 * time.Second)
	middle := createTestAlert(t, repo, "key-dup", nil)
	clock.AddTime(30 * time.Second)
	newest := createTestAlert(t, repo, "key-dup", nil)

	// an unrelated group is untouched
	other := createTestAlert(t, repo, "key-other", nil)

	params := core.ArchiveDuplicatesParams{
		DedupeKey:   "key-dup",
		KeepID:      newest.ID,
		GeneratedAt: newest.GeneratedAt,
		WindowStart: newest.GeneratedAt.Add(-dedupWindow),
	}

	archived, err := repo.ArchiveDuplicates(context.Background(), params)
	require.NoError(t, err)
	require.Len(t, archived, 2)

	archivedIDs := map[string]bool{}
	for _, a := range archived {
		assert.Equal(t, model.AlertStatusArchived, a.Status)
		archivedIDs[a.ID] = true
	}
	assert.True(t, archivedIDs[older.ID])
	assert.True(t, archivedIDs[middle.ID])

	for id, want := range map[string]model.AlertStatus{
		newest.ID: model.AlertStatusNew,
		stale.ID:  model.AlertStatusNew,
		other.ID:  model.AlertStatusNew,
	} {
		got, getErr := repo.GetByID(context.Background(), id)
		require.NoError(t, getErr)
		assert.Equal(t, want, got.Status)
	}

	// repeating the pass is a no-op
	archived, err = repo.ArchiveDuplicates(context.Background(), params)
	require.NoError(t, err)
	assert.Empty(t, archived)
}

// Two duplicates generated in the same instant resolve by id: the higher id
// survives no matter which one suppression runs for.
func TestAlertRepo_ArchiveDuplicates_EqualTimestampTieBreak(t *testing.T) {
	testutil.SkipIfNoTestDB(t)
	repo, clock := newTestAlertRepo(t)

	a := createTestAlert(t, repo, "key-tie", nil)
	b := createTestAlert(t, repo, "key-tie", nil)
	require.True(t, a.GeneratedAt.Equal(b.GeneratedAt))

	keep, drop := a, b
	if keep.ID < drop.ID {
		keep, drop = drop, keep
	}

	archived, err := repo.ArchiveDuplicates(context.Background(), core.ArchiveDuplicatesParams{
		DedupeKey:   "key-tie",
		KeepID:      keep.ID,
		GeneratedAt: keep.GeneratedAt,
		WindowStart: clock.Now().Add(-dedupWindow),
	})
	require.NoError(t, err)
	require.Len(t, archived, 1)
	assert.Equal(t, drop.ID, archived[0].ID)

	kept, err := repo.GetByID(context.Background(), keep.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AlertStatusNew, kept.Status)
}

// When suppression runs for an alert that a newer live duplicate has already
// outranked, the alert itself is the one that goes away.
func TestAlertRepo_ArchiveIfSuperseded(t *testing.T) {
	testutil.SkipIfNoTestDB(t)
	repo, clock := newTestAlertRepo(t)

	older := createTestAlert(t, repo, "key-super", nil)
	clock.AddTime(30 * time.Second)
	newer := createTestAlert(t, repo, "key-super", nil)

	params := core.ArchiveDuplicatesParams{
		DedupeKey:   "key-super",
		KeepID:      older.ID,
		GeneratedAt: older.GeneratedAt,
		WindowStart: older.GeneratedAt.Add(-dedupWindow),
	}

	superseded, err := repo.ArchiveIfSuperseded(context.Background(), params)
	require.NoError(t, err)
	assert.True(t, superseded)

	got, err := repo.GetByID(context.Background(), older.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AlertStatusArchived, got.Status)

	survivor, err := repo.GetByID(context.Background(), newer.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AlertStatusNew, survivor.Status)

	// no longer NEW, so a second pass does nothing
	superseded, err = repo.ArchiveIfSuperseded(context.Background(), params)
	require.NoError(t, err)
	assert.False(t, superseded)
}

func TestAlertRepo_ArchiveExpired(t *testing.T) {
	testutil.SkipIfNoTestDB(t)
	repo, clock := newTestAlertRepo(t)
	past := clock.Now().Add(-time.Minute)

	expiredNew := createTestAlert(t, repo, "key-exp-new", func(req *model.CreateAlertRequest) {
		req.ExpiresAt = &past
	})
	expiredRead := createTestAlert(t, repo, "key-exp-read", func(req *model.CreateAlertRequest) {
		req.ExpiresAt = &past
	})
	_, err := repo.MarkRead(context.Background(), expiredRead.ID)
	require.NoError(t, err)

	// snoozed past both deadlines: expiry wins over waking
	expiredSnoozed := createTestAlert(t, repo, "key-exp-snooze", func(req *model.CreateAlertRequest) {
		req.ExpiresAt = &past
	})
	_, err = repo.Snooze(context.Background(), core.SnoozeAlertParams{
		ID: expiredSnoozed.ID, SnoozedUntil: clock.Now().Add(-time.Second),
	})
	require.NoError(t, err)

	archived, err := repo.ArchiveExpired(context.Background(), clock.Now())
	require.NoError(t, err)
	require.Len(t, archived, 2)

	archivedIDs := map[string]bool{}
	for _, a := range archived {
		assert.Equal(t, model.AlertStatusArchived, a.Status)
		archivedIDs[a.ID] = true
	}
	assert.True(t, archivedIDs[expiredNew.ID])
	assert.True(t, archivedIDs[expiredSnoozed.ID])

	// the alert someone engaged with is left alone
	got, err := repo.GetByID(context.Background(), expiredRead.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AlertStatusRead, got.Status)

	// the archived snooze is not revived afterwards
	woken, err := repo.WakeSnoozed(context.Background(), clock.Now())
	require.NoError(t, err)
	assert.Empty(t, woken)
}

func TestAlertRepo_WakeSnoozed(t *testing.T) {
	testutil.SkipIfNoTestDB(t)
	repo, clock := newTestAlertRepo(t)

	alert := createTestAlert(t, repo, "key-wake", nil)
	_, err := repo.Snooze(context.Background(), core.SnoozeAlertParams{
		ID: alert.ID, SnoozedUntil: clock.Now().Add(time.Minute),
	})
	require.NoError(t, err)

	// still snoozed before the minute elapses
	woken, err := repo.WakeSnoozed(context.Background(), clock.Now())
	require.NoError(t, err)
	assert.Empty(t, woken)

	woken, err = repo.WakeSnoozed(context.Background(), clock.Now().Add(2*time.Minute))
	require.NoError(t, err)
	require.Len(t, woken, 1)
	assert.Equal(t, alert.ID, woken[0].ID)
	assert.Equal(t, model.AlertStatusNew, woken[0].Status)
	assert.Nil(t, woken[0].SnoozedUntil)
}
