package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opswatch/alert-engine/internal/core"
	"github.com/opswatch/alert-engine/internal/domain/model"
	apperrors "github.com/opswatch/alert-engine/internal/errors"
)

func newTestIngress(t *testing.T, repo *mockAlertRepo, publisher *mockPublisher) *IngressService {
	t.Helper()
	return MustNewIngressService(IngressServiceOptions{
		Repo:      repo,
		Dedup:     MustNewDedupEngine(DedupEngineOptions{Repo: repo}),
		Publisher: publisher,
	})
}

// quietDedup wires the suppression calls to find nothing.
func quietDedup(repo *mockAlertRepo) {
	repo.archiveDuplicatesFunc = func(ctx context.Context, params core.ArchiveDuplicatesParams) ([]*model.Alert, error) {
		return nil, nil
	}
	repo.archiveIfSupersededFunc = func(ctx context.Context, params core.ArchiveDuplicatesParams) (bool, error) {
		return false, nil
	}
}

func TestNewIngressService_RequiresDeps(t *testing.T) {
	_, err := NewIngressService(IngressServiceOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "AlertRepository is required")

	_, err = NewIngressService(IngressServiceOptions{Repo: &mockAlertRepo{}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DedupEngine is required")
}

func TestIngressService_Raise(t *testing.T) {
	ctx := context.Background()
	siteID := int64(7)

	t.Run("persists and dispatches a valid alert", func(t *testing.T) {
		var storedKey string
		repo := &mockAlertRepo{
			createFunc: func(ctx context.Context, req *model.CreateAlertRequest, dedupeKey string) (*model.Alert, error) {
				storedKey = dedupeKey
				return &model.Alert{
					ID:          "alert-1",
					Category:    req.Category,
					Severity:    req.Severity,
					Status:      model.AlertStatusNew,
					Title:       req.Title,
					Message:     req.Message,
					SiteID:      req.SiteID,
					DedupeKey:   dedupeKey,
					GeneratedAt: time.Now(),
				}, nil
			},
		}
		quietDedup(repo)

		var wg sync.WaitGroup
		wg.Add(1)
		publisher := &mockPublisher{wg: &wg}
		svc := newTestIngress(t, repo, publisher)

		alert, err := svc.Raise(ctx, RaiseParams{
			Category: model.AlertCategoryEnvironmental,
			Severity: model.AlertSeverityCritical,
			Title:    "Water quality",
			Message:  "pH 9.8 exceeds max 9.0",
			SiteID:   &siteID,
		})

		require.NoError(t, err)
		assert.Equal(t, model.AlertStatusNew, alert.Status)
		assert.Equal(t,
			ComputeDedupeKey(model.AlertCategoryEnvironmental, &siteID, "pH 9.8 exceeds max 9.0"),
			storedKey)
		assert.Equal(t, storedKey, alert.DedupeKey)

		wg.Wait()
		require.Len(t, publisher.createdAlerts(), 1)
		assert.Equal(t, "alert-1", publisher.createdAlerts()[0].ID)
	})

	t.Run("rejects invalid input before touching the store", func(t *testing.T) {
		created := false
		repo := &mockAlertRepo{
			createFunc: func(ctx context.Context, req *model.CreateAlertRequest, dedupeKey string) (*model.Alert, error) {
				created = true
				return nil, nil
			},
		}
		svc := newTestIngress(t, repo, &mockPublisher{})

		_, err := svc.Raise(ctx, RaiseParams{
			Category: "BOGUS",
			Severity: model.AlertSeverityHigh,
			Title:    "t",
			Message:  "m",
		})

		require.Error(t, err)
		assert.True(t, apperrors.IsValidation(err))
		assert.False(t, created)
	})

	t.Run("storage failure surfaces to the producer", func(t *testing.T) {
		repo := &mockAlertRepo{
			createFunc: func(ctx context.Context, req *model.CreateAlertRequest, dedupeKey string) (*model.Alert, error) {
				return nil, apperrors.Storage("database unreachable")
			},
		}
		svc := newTestIngress(t, repo, &mockPublisher{})

		_, err := svc.Raise(ctx, RaiseParams{
			Category: model.AlertCategorySystem,
			Severity: model.AlertSeverityHigh,
			Title:    "t",
			Message:  "m",
		})

		require.Error(t, err)
		assert.True(t, apperrors.IsStorage(err))
	})

	t.Run("suppression failure does not fail the raise", func(t *testing.T) {
		repo := &mockAlertRepo{
			createFunc: func(ctx context.Context, req *model.CreateAlertRequest, dedupeKey string) (*model.Alert, error) {
				return &model.Alert{ID: "alert-1", Status: model.AlertStatusNew, DedupeKey: dedupeKey}, nil
			},
			archiveDuplicatesFunc: func(ctx context.Context, params core.ArchiveDuplicatesParams) ([]*model.Alert, error) {
				return nil, apperrors.Storage("dedup query failed")
			},
		}

		var wg sync.WaitGroup
		wg.Add(1)
		publisher := &mockPublisher{wg: &wg}
		svc := newTestIngress(t, repo, publisher)

		alert, err := svc.Raise(ctx, RaiseParams{
			Category: model.AlertCategorySystem,
			Severity: model.AlertSeverityHigh,
			Title:    "t",
			Message:  "m",
		})

		require.NoError(t, err)
		assert.Equal(t, model.AlertStatusNew, alert.Status)
		wg.Wait()
	})

	t.Run("superseded alert is returned archived and never dispatched", func(t *testing.T) {
		repo := &mockAlertRepo{
			createFunc: func(ctx context.Context, req *model.CreateAlertRequest, dedupeKey string) (*model.Alert, error) {
				return &model.Alert{ID: "alert-old", Status: model.AlertStatusNew, DedupeKey: dedupeKey}, nil
			},
			archiveDuplicatesFunc: func(ctx context.Context, params core.ArchiveDuplicatesParams) ([]*model.Alert, error) {
				return nil, nil
			},
			archiveIfSupersededFunc: func(ctx context.Context, params core.ArchiveDuplicatesParams) (bool, error) {
				return true, nil
			},
		}
		publisher := &mockPublisher{}
		svc := newTestIngress(t, repo, publisher)

		alert, err := svc.Raise(ctx, RaiseParams{
			Category: model.AlertCategorySystem,
			Severity: model.AlertSeverityHigh,
			Title:    "t",
			Message:  "m",
		})

		require.NoError(t, err)
		assert.Equal(t, model.AlertStatusArchived, alert.Status)
		assert.Empty(t, publisher.createdAlerts())
	})
}

// Raising the same inputs twice within the window keeps exactly one alert
// live: the second raise archives the first.
func TestIngressService_Raise_DuplicateWithinWindow(t *testing.T) {
	ctx := context.Background()
	siteID := int64(7)
	base := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

	store := make(map[string]*model.Alert)
	var mu sync.Mutex
	seq := 0
	repo := &mockAlertRepo{}
	repo.createFunc = func(ctx context.Context, req *model.CreateAlertRequest, dedupeKey string) (*model.Alert, error) {
		mu.Lock()
		defer mu.Unlock()
		seq++
		a := &model.Alert{
			ID:          fmt.Sprintf("alert-%d", seq),
			Category:    req.Category,
			Severity:    req.Severity,
			Status:      model.AlertStatusNew,
			Title:       req.Title,
			Message:     req.Message,
			SiteID:      req.SiteID,
			DedupeKey:   dedupeKey,
			GeneratedAt: base.Add(time.Duration(seq-1) * 30 * time.Second),
		}
		store[a.ID] = a
		return a, nil
	}
	repo.archiveDuplicatesFunc = func(ctx context.Context, params core.ArchiveDuplicatesParams) ([]*model.Alert, error) {
		mu.Lock()
		defer mu.Unlock()
		var archived []*model.Alert
		for _, a := range store {
			if a.ID == params.KeepID || a.DedupeKey != params.DedupeKey {
				continue
			}
			if a.Status != model.AlertStatusNew || a.IsDismissed {
				continue
			}
			if a.GeneratedAt.Before(params.WindowStart) || a.GeneratedAt.After(params.GeneratedAt) {
				continue
			}
			a.Status = model.AlertStatusArchived
			archived = append(archived, a)
		}
		return archived, nil
	}
	repo.archiveIfSupersededFunc = func(ctx context.Context, params core.ArchiveDuplicatesParams) (bool, error) {
		return false, nil
	}

	publisher := &mockPublisher{}
	svc := MustNewIngressService(IngressServiceOptions{
		Repo:  repo,
		Dedup: MustNewDedupEngine(DedupEngineOptions{Repo: repo, Publisher: publisher}),
	})

	params := RaiseParams{
		Category: model.AlertCategoryEnvironmental,
		Severity: model.AlertSeverityCritical,
		Title:    "Water quality breach",
		Message:  "pH 9.8 exceeds max 9.0",
		SiteID:   &siteID,
	}

	first, err := svc.Raise(ctx, params)
	require.NoError(t, err)
	assert.Equal(t, model.AlertStatusNew, first.Status)
	assert.NotEmpty(t, first.DedupeKey)

	second, err := svc.Raise(ctx, params)
	require.NoError(t, err)
	assert.Equal(t, first.DedupeKey, second.DedupeKey)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, model.AlertStatusArchived, store[first.ID].Status)
	assert.Equal(t, model.AlertStatusNew, store[second.ID].Status)

	// the archived first alert is announced so open sessions drop it
	changed := publisher.stateChangedAlerts()
	require.Len(t, changed, 1)
	assert.Equal(t, first.ID, changed[0].ID)
	assert.Equal(t, model.AlertStatusArchived, changed[0].Status)
}
