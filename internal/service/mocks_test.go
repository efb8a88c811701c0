package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/opswatch/alert-engine/internal/core"
	"github.com/opswatch/alert-engine/internal/domain/model"
)

// mockAlertRepo is a mock implementation of core.AlertRepository for testing.
type mockAlertRepo struct {
	createFunc              func(ctx context.Context, req *model.CreateAlertRequest, dedupeKey string) (*model.Alert, error)
	getByIDFunc             func(ctx context.Context, id string) (*model.Alert, error)
	listActiveFunc          func(ctx context.Context, opts *model.AlertListOptions) ([]*model.Alert, error)
	listVisibleNewFunc      func(ctx context.Context, params core.ListVisibleNewParams) ([]*model.Alert, error)
	markReadFunc            func(ctx context.Context, id string) (*model.Alert, error)
	dismissFunc             func(ctx context.Context, params core.DismissAlertParams) (*model.Alert, error)
	snoozeFunc              func(ctx context.Context, params core.SnoozeAlertParams) (*model.Alert, error)
	resolveFunc             func(ctx context.Context, params core.ResolveAlertParams) (*model.Alert, error)
	markChannelsSentFunc    func(ctx context.Context, params core.MarkChannelsSentParams) error
	archiveDuplicatesFunc   func(ctx context.Context, params core.ArchiveDuplicatesParams) ([]*model.Alert, error)
	archiveIfSupersededFunc func(ctx context.Context, params core.ArchiveDuplicatesParams) (bool, error)
	archiveExpiredFunc      func(ctx context.Context, now time.Time) ([]*model.Alert, error)
	wakeSnoozedFunc         func(ctx context.Context, now time.Time) ([]*model.Alert, error)
}

func (m *mockAlertRepo) Create(
	ctx context.Context,
	req *model.CreateAlertRequest,
	dedupeKey string,
) (*model.Alert, error) {
	if m.createFunc != nil {
		return m.createFunc(ctx, req, dedupeKey)
	}
	return nil, errors.New("not implemented")
}

func (m *mockAlertRepo) GetByID(ctx context.Context, id string) (*model.Alert, error) {
	if m.getByIDFunc != nil {
		return m.getByIDFunc(ctx, id)
	}
	return nil, errors.New("not implemented")
}

func (m *mockAlertRepo) ListActive(
	ctx context.Context,
	opts *model.AlertListOptions,
) ([]*model.Alert, error) {
	if m.listActiveFunc != nil {
		return m.listActiveFunc(ctx, opts)
	}
	return nil, errors.New("not implemented")
}

func (m *mockAlertRepo) ListVisibleNew(
	ctx context.Context,
	params core.ListVisibleNewParams,
) ([]*model.Alert, error) {
	if m.listVisibleNewFunc != nil {
		return m.listVisibleNewFunc(ctx, params)
	}
	return nil, errors.New("not implemented")
}

func (m *mockAlertRepo) MarkRead(ctx context.Context, id string) (*model.Alert, error) {
	if m.markReadFunc != nil {
		return m.markReadFunc(ctx, id)
	}
	return nil, errors.New("not implemented")
}

func (m *mockAlertRepo) Dismiss(
	ctx context.Context,
	params core.DismissAlertParams,
) (*model.Alert, error) {
	if m.dismissFunc != nil {
		return m.dismissFunc(ctx, params)
	}
	return nil, errors.New("not implemented")
}

func (m *mockAlertRepo) Snooze(
	ctx context.Context,
	params core.SnoozeAlertParams,
) (*model.Alert, error) {
	if m.snoozeFunc != nil {
		return m.snoozeFunc(ctx, params)
	}
	return nil, errors.New("not implemented")
}

func (m *mockAlertRepo) Resolve(
	ctx context.Context,
	params core.ResolveAlertParams,
) (*model.Alert, error) {
	if m.resolveFunc != nil {
		return m.resolveFunc(ctx, params)
	}
	return nil, errors.New("not implemented")
}

func (m *mockAlertRepo) MarkChannelsSent(
	ctx context.Context,
	params core.MarkChannelsSentParams,
) error {
	if m.markChannelsSentFunc != nil {
		return m.markChannelsSentFunc(ctx, params)
	}
	return errors.New("not implemented")
}

func (m *mockAlertRepo) ArchiveDuplicates(
	ctx context.Context,
	params core.ArchiveDuplicatesParams,
) ([]*model.Alert, error) {
	if m.archiveDuplicatesFunc != nil {
		return m.archiveDuplicatesFunc(ctx, params)
	}
	return nil, errors.New("not implemented")
}

func (m *mockAlertRepo) ArchiveIfSuperseded(
	ctx context.Context,
	params core.ArchiveDuplicatesParams,
) (bool, error) {
	if m.archiveIfSupersededFunc != nil {
		return m.archiveIfSupersededFunc(ctx, params)
	}
	return false, errors.New("not implemented")
}

func (m *mockAlertRepo) ArchiveExpired(ctx context.Context, now time.Time) ([]*model.Alert, error) {
	if m.archiveExpiredFunc != nil {
		return m.archiveExpiredFunc(ctx, now)
	}
	return nil, errors.New("not implemented")
}

func (m *mockAlertRepo) WakeSnoozed(ctx context.Context, now time.Time) ([]*model.Alert, error) {
	if m.wakeSnoozedFunc != nil {
		return m.wakeSnoozedFunc(ctx, now)
	}
	return nil, errors.New("not implemented")
}

// mockPrefsRepo is a mock implementation of core.PreferencesRepository.
type mockPrefsRepo struct {
	getByUserIDFunc func(ctx context.Context, userID string) (*model.UserNotificationPreferences, error)
	upsertFunc      func(ctx context.Context, prefs *model.UserNotificationPreferences) (*model.UserNotificationPreferences, error)
}

func (m *mockPrefsRepo) GetByUserID(
	ctx context.Context,
	userID string,
) (*model.UserNotificationPreferences, error) {
	if m.getByUserIDFunc != nil {
		return m.getByUserIDFunc(ctx, userID)
	}
	return model.DefaultPreferences(userID), nil
}

func (m *mockPrefsRepo) Upsert(
	ctx context.Context,
	prefs *model.UserNotificationPreferences,
) (*model.UserNotificationPreferences, error) {
	if m.upsertFunc != nil {
		return m.upsertFunc(ctx, prefs)
	}
	return prefs, nil
}

// mockPublisher records published events; a WaitGroup signals async dispatch.
type mockPublisher struct {
	createdFunc      func(ctx context.Context, alert *model.Alert) error
	stateChangedFunc func(ctx context.Context, alert *model.Alert) error

	mu           sync.Mutex
	created      []*model.Alert
	stateChanged []*model.Alert
	wg           *sync.WaitGroup
}

func (m *mockPublisher) AlertCreated(ctx context.Context, alert *model.Alert) error {
	m.mu.Lock()
	m.created = append(m.created, alert)
	m.mu.Unlock()

	if m.wg != nil {
		defer m.wg.Done()
	}
	if m.createdFunc != nil {
		return m.createdFunc(ctx, alert)
	}
	return nil
}

func (m *mockPublisher) AlertStateChanged(ctx context.Context, alert *model.Alert) error {
	m.mu.Lock()
	m.stateChanged = append(m.stateChanged, alert)
	m.mu.Unlock()

	if m.stateChangedFunc != nil {
		return m.stateChangedFunc(ctx, alert)
	}
	return nil
}

func (m *mockPublisher) createdAlerts() []*model.Alert {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*model.Alert(nil), m.created...)
}

func (m *mockPublisher) stateChangedAlerts() []*model.Alert {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*model.Alert(nil), m.stateChanged...)
}
