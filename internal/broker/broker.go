package broker

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sort"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/opswatch/alert-engine/internal/core"
	"github.com/opswatch/alert-engine/internal/data"
	"github.com/opswatch/alert-engine/internal/domain/auth"
	"github.com/opswatch/alert-engine/internal/domain/model"
	apperrors "github.com/opswatch/alert-engine/internal/errors"
	"github.com/opswatch/alert-engine/internal/pubsub"
	"github.com/opswatch/alert-engine/internal/service"
)

const (
	defaultSessionQueueSize = 64
	defaultSnapshotLimit    = 50
)

// BrokerOptions groups dependencies for Broker.
type BrokerOptions struct {
	Bus          pubsub.Bus                 // Required: topic fan-out backend
	Alerts       core.AlertRepository       // Required: snapshots and filter queries
	Lifecycle    *service.LifecycleService  // Required: inbound lifecycle commands
	Preferences  *service.PreferenceService // Required: per-user delivery filtering
	Rules        core.AlertRuleRepository   // Optional: targeted routing
	RateCounters core.RateCounterRepository // Optional: advisory delivery caps
	TimeProvider data.TimeProvider          // Optional: defaults to real time
	Logger       *slog.Logger               // Optional: structured logger

	SessionQueueSize int // Optional: per-session send queue depth
	SnapshotLimit    int // Optional: initial snapshot size
}

// Broker connects real-time notification sessions to the alert stream.
//
// Outbound, it publishes created and state-changed events onto pub/sub
// topics and delivers them to sessions after site visibility, preference,
// and rate-cap checks. Inbound, it services the session command protocol.
// A slow or dead session is dropped; delivery failures never propagate to
// the code that raised the alert.
type Broker struct {
	bus          pubsub.Bus
	alerts       core.AlertRepository
	lifecycle    *service.LifecycleService
	preferences  *service.PreferenceService
	rules        core.AlertRuleRepository
	limiter      *rateLimiter
	timeProvider data.TimeProvider
	logger       *slog.Logger

	queueSize     int
	snapshotLimit int

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewBroker constructs a new Broker.
func NewBroker(opts BrokerOptions) (*Broker, error) {
	if opts.Bus == nil {
		return nil, errors.New("pubsub Bus is required")
	}
	if opts.Alerts == nil {
		return nil, errors.New("AlertRepository is required")
	}
	if opts.Lifecycle == nil {
		return nil, errors.New("LifecycleService is required")
	}
	if opts.Preferences == nil {
		return nil, errors.New("PreferenceService is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "broker")

	timeProvider := opts.TimeProvider
	if timeProvider == nil {
		timeProvider = &data.RealTimeProvider{}
	}
	queueSize := opts.SessionQueueSize
	if queueSize <= 0 {
		queueSize = defaultSessionQueueSize
	}
	snapshotLimit := opts.SnapshotLimit
	if snapshotLimit <= 0 {
		snapshotLimit = defaultSnapshotLimit
	}

	return &Broker{
		bus:           opts.Bus,
		alerts:        opts.Alerts,
		lifecycle:     opts.Lifecycle,
		preferences:   opts.Preferences,
		rules:         opts.Rules,
		limiter:       &rateLimiter{counters: opts.RateCounters, logger: logger},
		timeProvider:  timeProvider,
		logger:        logger,
		queueSize:     queueSize,
		snapshotLimit: snapshotLimit,
		sessions:      make(map[string]*Session),
	}, nil
}

// MustNewBroker constructs a new Broker and panics on error.
func MustNewBroker(opts BrokerOptions) *Broker {
	b, err := NewBroker(opts)
	if err != nil {
		panic(err) //nolint:forbidigo // Must constructor fails fast during startup
	}
	return b
}

// Connect registers a new session for the identity, subscribes it to its
// user, role, and broadcast topics, and sends the initial alert snapshot.
func (b *Broker) Connect(ctx context.Context, identity auth.Identity, conn Conn) (*Session, error) {
	if !identity.Valid() {
		return nil, apperrors.Validation("identity with user id and role is required")
	}

	s := newSession(identity, conn, b.queueSize)

	topics := []string{
		UserTopic(identity.UserID),
		RoleTopic(identity.Role),
		TopicBroadcast,
	}
	for _, topic := range topics {
		ch, unsub := b.bus.Subscribe(topic, b.queueSize)
		s.unsubs = append(s.unsubs, unsub)
		go b.pump(s, topic, ch)
	}
	go b.writeLoop(s)

	b.mu.Lock()
	b.sessions[s.ID] = s
	b.mu.Unlock()

	if err := b.sendSnapshot(ctx, s, nil); err != nil {
		b.logger.WarnContext(ctx, "failed to send initial snapshot",
			"session_id", s.ID, "user_id", identity.UserID, "err", err)
	}

	b.logger.InfoContext(ctx, "session connected",
		"session_id", s.ID, "user_id", identity.UserID, "role", identity.Role)
	return s, nil
}

// Disconnect tears a session down. Idempotent; a session dropped for a
// delivery failure and later disconnected by its handler is fine.
func (b *Broker) Disconnect(s *Session) {
	if s == nil {
		return
	}

	b.mu.Lock()
	_, present := b.sessions[s.ID]
	delete(b.sessions, s.ID)
	b.mu.Unlock()

	s.close()

	if present {
		b.logger.Info("session disconnected",
			"session_id", s.ID, "user_id", s.Identity.UserID)
	}
}

// Close disconnects every session. The bus is owned by the caller.
func (b *Broker) Close() {
	b.mu.Lock()
	open := make([]*Session, 0, len(b.sessions))
	for _, s := range b.sessions {
		open = append(open, s)
	}
	b.sessions = make(map[string]*Session)
	b.mu.Unlock()

	for _, s := range open {
		s.close()
	}
}

// SessionCount returns the number of connected sessions on this node.
func (b *Broker) SessionCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.sessions)
}

// AlertCreated routes a freshly raised alert: resolves rule targets, latches
// side-channel flags for critical alerts, and publishes one event to the
// broadcast topic plus every targeted user and role topic.
func (b *Broker) AlertCreated(ctx context.Context, alert *model.Alert) error {
	if alert == nil {
		return errors.New("alert is required")
	}

	targets := b.resolveTargets(ctx, alert)
	b.latchChannelFlags(ctx, alert, targets)

	evt := &Event{
		EventID: uuid.NewString(),
		Type:    EventAlertCreated,
		Alert:   alert,
		Targets: targets,
	}
	payload, err := encodeEvent(evt)
	if err != nil {
		return err
	}

	topics := []string{TopicBroadcast}
	for _, userID := range targets.UserIDs {
		topics = append(topics, UserTopic(userID))
	}
	for _, role := range targets.Roles {
		topics = append(topics, RoleTopic(role))
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, topic := range topics {
		g.Go(func() error {
			return b.bus.Publish(gctx, topic, payload)
		})
	}
	if err := g.Wait(); err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeDelivery, "publish created alert")
	}
	return nil
}

// AlertStateChanged publishes a lifecycle transition to the broadcast topic.
// The event carries the same resolved rule targets as the created event did,
// so a session that heard about the alert through targeting also hears its
// later transitions instead of going stale.
func (b *Broker) AlertStateChanged(ctx context.Context, alert *model.Alert) error {
	if alert == nil {
		return errors.New("alert is required")
	}

	evt := &Event{
		EventID: uuid.NewString(),
		Type:    EventAlertStateChanged,
		Alert:   alert,
		Targets: b.resolveTargets(ctx, alert),
	}
	payload, err := encodeEvent(evt)
	if err != nil {
		return err
	}
	if err := b.bus.Publish(ctx, TopicBroadcast, payload); err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeDelivery, "publish state change")
	}
	return nil
}

// HandleCommand services one inbound command from a session. Failures are
// acked to the issuing session only and never close it.
func (b *Broker) HandleCommand(ctx context.Context, s *Session, raw []byte) {
	var cmd Command
	if err := json.Unmarshal(raw, &cmd); err != nil {
		b.sendControl(s, encodeError(apperrors.Validation("malformed command payload")))
		return
	}

	reply := b.executeCommand(ctx, s, &cmd)
	b.sendControl(s, reply)
}

func (b *Broker) executeCommand(ctx context.Context, s *Session, cmd *Command) []byte {
	userID := s.Identity.UserID

	switch cmd.Action {
	case ActionDismiss:
		if cmd.AlertID == "" {
			return encodeError(apperrors.ValidationField("alert_id", "alert_id is required"))
		}
		alert, err := b.lifecycle.Dismiss(ctx, cmd.AlertID, userID)
		if err != nil {
			return encodeError(err)
		}
		return encodeSuccess(cmd.Action, alert, nil)

	case ActionSnooze:
		if cmd.AlertID == "" {
			return encodeError(apperrors.ValidationField("alert_id", "alert_id is required"))
		}
		alert, err := b.lifecycle.Snooze(ctx, cmd.AlertID, userID, cmd.Minutes)
		if err != nil {
			return encodeError(err)
		}
		return encodeSuccess(cmd.Action, alert, nil)

	case ActionRead:
		if cmd.AlertID == "" {
			return encodeError(apperrors.ValidationField("alert_id", "alert_id is required"))
		}
		alert, err := b.lifecycle.MarkRead(ctx, cmd.AlertID)
		if err != nil {
			return encodeError(err)
		}
		return encodeSuccess(cmd.Action, alert, nil)

	case ActionMarkAllRead:
		count, err := b.lifecycle.MarkAllRead(ctx, s.Identity)
		if err != nil {
			return encodeError(err)
		}
		return encodeSuccess(cmd.Action, nil, &count)

	case ActionFilter:
		alerts, err := b.alerts.ListActive(ctx, cmd.Filter)
		if err != nil {
			return encodeError(err)
		}
		return encodeAlertsList(alerts)

	case ActionGetPreferences:
		prefs, err := b.preferences.GetPreferences(ctx, userID)
		if err != nil {
			return encodeError(err)
		}
		return encodePreferences(prefs)

	case ActionUpdatePreferences:
		if cmd.Preferences == nil {
			return encodeError(apperrors.ValidationField("preferences", "preferences patch is required"))
		}
		prefs, err := b.preferences.UpdatePreferences(ctx, userID, cmd.Preferences)
		if err != nil {
			return encodeError(err)
		}
		return encodePreferences(prefs)

	default:
		return encodeError(apperrors.Validationf("unknown action %q", cmd.Action))
	}
}

// sendSnapshot sends the current active-alert list, filtered by the
// session's preferences, as an alerts_list message.
func (b *Broker) sendSnapshot(ctx context.Context, s *Session, opts *model.AlertListOptions) error {
	if opts == nil {
		opts = &model.AlertListOptions{}
	}
	if opts.Limit <= 0 || opts.Limit > b.snapshotLimit {
		opts.Limit = b.snapshotLimit
	}

	alerts, err := b.alerts.ListActive(ctx, opts)
	if err != nil {
		return err
	}

	prefs, err := b.preferences.GetPreferences(ctx, s.Identity.UserID)
	if err != nil {
		return err
	}

	visible := make([]*model.Alert, 0, len(alerts))
	for _, alert := range alerts {
		if !s.Identity.CanSeeSite(alert.SiteID) {
			continue
		}
		if !service.PreferencesAllow(prefs, alert) {
			continue
		}
		visible = append(visible, alert)
	}

	b.sendControl(s, encodeAlertsList(visible))
	return nil
}

// resolveTargets collects the users and roles explicitly routed to the
// alert by active rules. Routing failures degrade to broadcast-only.
func (b *Broker) resolveTargets(ctx context.Context, alert *model.Alert) EventTargets {
	if b.rules == nil {
		return EventTargets{}
	}

	rules, err := b.rules.ListActiveFor(ctx, alert.Category, alert.Severity)
	if err != nil {
		b.logger.WarnContext(ctx, "failed to load routing rules",
			"alert_id", alert.ID, "err", err)
		return EventTargets{}
	}

	userSet := make(map[string]struct{})
	roleSet := make(map[string]struct{})
	for _, rule := range rules {
		if !rule.AppliesToSite(alert.SiteID) {
			continue
		}
		for _, id := range rule.NotifyUserIDs {
			userSet[id] = struct{}{}
		}
		for _, role := range rule.NotifyRoles {
			roleSet[role] = struct{}{}
		}
	}

	return EventTargets{
		UserIDs: sortedKeys(userSet),
		Roles:   sortedKeys(roleSet),
	}
}

// latchChannelFlags marks the alert for email/SMS side channels when it is
// critical and a targeted user opted in, and for push when any targeted
// user accepts push. Flags only; gateways live outside this system.
func (b *Broker) latchChannelFlags(ctx context.Context, alert *model.Alert, targets EventTargets) {
	if len(targets.UserIDs) == 0 {
		return
	}

	var email, sms, push bool
	critical := alert.Severity == model.AlertSeverityCritical
	for _, userID := range targets.UserIDs {
		prefs, err := b.preferences.GetPreferences(ctx, userID)
		if err != nil {
			b.logger.WarnContext(ctx, "failed to load preferences for channel flags",
				"alert_id", alert.ID, "user_id", userID, "err", err)
			continue
		}
		email = email || (critical && prefs.EmailOnCritical)
		sms = sms || (critical && prefs.SMSOnCritical)
		push = push || prefs.PushNotifications
	}

	if !email && !sms && !push {
		return
	}
	if err := b.alerts.MarkChannelsSent(ctx, core.MarkChannelsSentParams{
		ID:        alert.ID,
		EmailSent: email,
		SMSSent:   sms,
		PushSent:  push,
	}); err != nil {
		b.logger.WarnContext(ctx, "failed to latch channel flags",
			"alert_id", alert.ID, "err", err)
		return
	}
	alert.EmailSent = alert.EmailSent || email
	alert.SMSSent = alert.SMSSent || sms
	alert.PushSent = alert.PushSent || push
}

// pump forwards one topic's payloads onto the session queue. A full queue
// is a delivery failure and drops the session.
func (b *Broker) pump(s *Session, topic string, ch <-chan []byte) {
	for {
		select {
		case <-s.done:
			return
		case payload, ok := <-ch:
			if !ok {
				return
			}
			evt, err := decodeEvent(payload)
			if err != nil {
				b.logger.Warn("dropping undecodable event", "topic", topic, "err", err)
				continue
			}
			if !s.enqueue(queuedMessage{evt: evt}) {
				b.dropSession(s, apperrors.Deliveryf("session queue full on topic %s", topic))
				return
			}
		}
	}
}

// writeLoop is the single writer for a session. It applies delivery checks
// to topic events and pushes everything else straight to the wire.
func (b *Broker) writeLoop(s *Session) {
	ctx := context.Background()
	for {
		select {
		case <-s.done:
			return
		case msg := <-s.send:
			payload := msg.raw
			if msg.evt != nil {
				if !b.shouldDeliver(ctx, s, msg.evt) {
					continue
				}
				encoded, err := json.Marshal(struct {
					Type  string       `json:"type"`
					Alert *model.Alert `json:"alert"`
				}{Type: msg.evt.Type, Alert: msg.evt.Alert})
				if err != nil {
					b.logger.Warn("failed to encode outbound event",
						"session_id", s.ID, "err", err)
					continue
				}
				payload = encoded
			}
			if err := s.conn.WriteMessage(payload); err != nil {
				b.dropSession(s, apperrors.Wrap(err, apperrors.ErrCodeDelivery, "write to session"))
				return
			}
		}
	}
}

// shouldDeliver decides whether one topic event reaches this session:
// at most one delivery per event id, site visibility unless explicitly
// targeted, and for created alerts the preference filter plus rate caps.
func (b *Broker) shouldDeliver(ctx context.Context, s *Session, evt *Event) bool {
	if evt.Alert == nil || s.recent.observe(evt.EventID) {
		return false
	}

	targeted := evt.Targets.matchesUser(s.Identity.UserID) ||
		evt.Targets.matchesRole(s.Identity.Role)
	if !targeted && !s.Identity.CanSeeSite(evt.Alert.SiteID) {
		return false
	}

	if evt.Type != EventAlertCreated {
		return true
	}

	prefs, err := b.preferences.GetPreferences(ctx, s.Identity.UserID)
	if err != nil {
		b.logger.WarnContext(ctx, "failed to load preferences, delivering unfiltered",
			"user_id", s.Identity.UserID, "err", err)
		return true
	}
	if !service.PreferencesAllow(prefs, evt.Alert) {
		return false
	}

	return b.limiter.allow(ctx, s.Identity.UserID,
		prefs.MaxAlertsPerHour, prefs.MaxAlertsPerDay, b.timeProvider.Now())
}

// dropSession removes a session after a delivery failure.
func (b *Broker) dropSession(s *Session, cause error) {
	b.mu.Lock()
	_, present := b.sessions[s.ID]
	delete(b.sessions, s.ID)
	b.mu.Unlock()

	s.close()

	if present {
		b.logger.Warn("session dropped",
			"session_id", s.ID, "user_id", s.Identity.UserID, "err", cause)
	}
}

// sendControl queues a control payload for the session writer.
func (b *Broker) sendControl(s *Session, payload []byte) {
	if !s.enqueue(queuedMessage{raw: payload}) {
		b.dropSession(s, apperrors.Delivery("session queue full"))
	}
}

func sortedKeys(set map[string]struct{}) []string {
	if len(set) == 0 {
		return nil
	}
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
