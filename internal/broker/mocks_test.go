package broker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/opswatch/alert-engine/internal/core"
	"github.com/opswatch/alert-engine/internal/domain/model"
)

// mockAlertRepo is a mock implementation of core.AlertRepository for testing.
type mockAlertRepo struct {
	listActiveFunc       func(ctx context.Context, opts *model.AlertListOptions) ([]*model.Alert, error)
	listVisibleNewFunc   func(ctx context.Context, params core.ListVisibleNewParams) ([]*model.Alert, error)
	markReadFunc         func(ctx context.Context, id string) (*model.Alert, error)
	dismissFunc          func(ctx context.Context, params core.DismissAlertParams) (*model.Alert, error)
	snoozeFunc           func(ctx context.Context, params core.SnoozeAlertParams) (*model.Alert, error)
	markChannelsSentFunc func(ctx context.Context, params core.MarkChannelsSentParams) error
}

func (m *mockAlertRepo) Create(
	ctx context.Context,
	req *model.CreateAlertRequest,
	dedupeKey string,
) (*model.Alert, error) {
	return nil, errors.New("not implemented")
}

func (m *mockAlertRepo) GetByID(ctx context.Context, id string) (*model.Alert, error) {
	return nil, errors.New("not implemented")
}

func (m *mockAlertRepo) ListActive(
	ctx context.Context,
	opts *model.AlertListOptions,
) ([]*model.Alert, error) {
	if m.listActiveFunc != nil {
		return m.listActiveFunc(ctx, opts)
	}
	return nil, nil
}

func (m *mockAlertRepo) ListVisibleNew(
	ctx context.Context,
	params core.ListVisibleNewParams,
) ([]*model.Alert, error) {
	if m.listVisibleNewFunc != nil {
		return m.listVisibleNewFunc(ctx, params)
	}
	return nil, nil
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
	return nil, errors.New("not implemented")
}

func (m *mockAlertRepo) MarkChannelsSent(
	ctx context.Context,
	params core.MarkChannelsSentParams,
) error {
	if m.markChannelsSentFunc != nil {
		return m.markChannelsSentFunc(ctx, params)
	}
	return nil
}

func (m *mockAlertRepo) ArchiveDuplicates(
	ctx context.Context,
	params core.ArchiveDuplicatesParams,
) ([]*model.Alert, error) {
	return nil, errors.New("not implemented")
}

func (m *mockAlertRepo) ArchiveIfSuperseded(
	ctx context.Context,
	params core.ArchiveDuplicatesParams,
) (bool, error) {
	return false, errors.New("not implemented")
}

func (m *mockAlertRepo) ArchiveExpired(ctx context.Context, now time.Time) ([]*model.Alert, error) {
	return nil, errors.New("not implemented")
}

func (m *mockAlertRepo) WakeSnoozed(ctx context.Context, now time.Time) ([]*model.Alert, error) {
	return nil, errors.New("not implemented")
}

// mockRuleRepo is a mock implementation of core.AlertRuleRepository.
type mockRuleRepo struct {
	listActiveForFunc func(ctx context.Context, category model.AlertCategory, severity model.AlertSeverity) ([]*model.AlertRule, error)
}

func (m *mockRuleRepo) Create(
	ctx context.Context,
	req *model.CreateAlertRuleRequest,
) (*model.AlertRule, error) {
	return nil, errors.New("not implemented")
}

func (m *mockRuleRepo) ListActiveFor(
	ctx context.Context,
	category model.AlertCategory,
	severity model.AlertSeverity,
) ([]*model.AlertRule, error) {
	if m.listActiveForFunc != nil {
		return m.listActiveForFunc(ctx, category, severity)
	}
	return nil, nil
}

// mockPrefsRepo is a mock implementation of core.PreferencesRepository.
// The zero value hands back the documented defaults for every user.
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

// mockRateCounters is an in-memory core.RateCounterRepository.
type mockRateCounters struct {
	mu         sync.Mutex
	delivered  int64
	suppressed int64
	failIncr   bool
}

func (m *mockRateCounters) IncrDelivered(
	ctx context.Context,
	userID string,
	now time.Time,
) (int64, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failIncr {
		return 0, 0, errors.New("counter backend down")
	}
	m.delivered++
	return m.delivered, m.delivered, nil
}

func (m *mockRateCounters) IncrSuppressed(
	ctx context.Context,
	userID string,
	now time.Time,
) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.suppressed++
	return m.suppressed, nil
}

func (m *mockRateCounters) suppressedCount() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.suppressed
}

// fakeConn captures everything the broker writes to a session.
type fakeConn struct {
	mu     sync.Mutex
	closed bool
	ch     chan []byte
}

func newFakeConn() *fakeConn {
	return &fakeConn{ch: make(chan []byte, 64)}
}

func (c *fakeConn) WriteMessage(payload []byte) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return errors.New("connection closed")
	}
	c.ch <- payload
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

// nextMessage waits for the next write and decodes the outbound envelope.
func (c *fakeConn) nextMessage(t *testing.T) map[string]any {
	t.Helper()
	select {
	case payload := <-c.ch:
		var msg map[string]any
		if err := json.Unmarshal(payload, &msg); err != nil {
			t.Fatalf("undecodable outbound message: %v", err)
		}
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for outbound message")
		return nil
	}
}

// expectNoMessage asserts the session stays quiet for a short grace period.
func (c *fakeConn) expectNoMessage(t *testing.T) {
	t.Helper()
	select {
	case payload := <-c.ch:
		t.Fatalf("unexpected outbound message: %s", payload)
	case <-time.After(150 * time.Millisecond):
	}
}
