package service

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/opswatch/alert-engine/internal/core"
	"github.com/opswatch/alert-engine/internal/data"
	"github.com/opswatch/alert-engine/internal/domain/model"
)

// ExpirySchedulerOptions groups dependencies for ExpiryScheduler.
type ExpirySchedulerOptions struct {
	Repo         core.AlertRepository // Required: alert repository
	Interval     time.Duration        // Optional: defaults to one minute
	Publisher    AlertEventPublisher  // Optional: state-change fan-out
	TimeProvider data.TimeProvider    // Optional: defaults to real time
	Logger       *slog.Logger         // Optional: structured logger
}

// ExpiryScheduler sweeps time-driven transitions on a fixed interval:
// archiving alerts past their expiry and waking alerts whose snooze lapsed.
// The archive sweep runs first, so an alert that is both snooze-expired and
// hard-expired in the same tick ends up ARCHIVED, never revived.
//
// Both sweeps are guarded updates; running several scheduler instances
// against the same database double-processes nothing.
type ExpiryScheduler struct {
	repo         core.AlertRepository
	interval     time.Duration
	publisher    AlertEventPublisher
	timeProvider data.TimeProvider
	logger       *slog.Logger
}

// NewExpiryScheduler constructs a new ExpiryScheduler.
func NewExpiryScheduler(opts ExpirySchedulerOptions) (*ExpiryScheduler, error) {
	if opts.Repo == nil {
		return nil, errors.New("AlertRepository is required")
	}
	interval := opts.Interval
	if interval <= 0 {
		interval = time.Minute
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeProvider := opts.TimeProvider
	if timeProvider == nil {
		timeProvider = &data.RealTimeProvider{}
	}
	return &ExpiryScheduler{
		repo:         opts.Repo,
		interval:     interval,
		publisher:    opts.Publisher,
		timeProvider: timeProvider,
		logger:       logger.With("component", "expiry_scheduler"),
	}, nil
}

// MustNewExpiryScheduler constructs a new ExpiryScheduler and panics on error.
func MustNewExpiryScheduler(opts ExpirySchedulerOptions) *ExpiryScheduler {
	s, err := NewExpiryScheduler(opts)
	if err != nil {
		panic(err) //nolint:forbidigo // Must constructor fails fast during startup
	}
	return s
}

// Run starts the sweep loop and runs until the context is cancelled.
// Sweep errors are logged and retried on the next tick, never fatal.
// Returns nil on graceful shutdown (context.Canceled), error otherwise.
func (s *ExpiryScheduler) Run(ctx context.Context) error {
	s.logger.InfoContext(ctx, "starting expiry scheduler", "interval", s.interval)

	// Jitter startup to prevent thundering herd if multiple instances start together
	s.waitWithJitter(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	if err := s.sweep(ctx); err != nil {
		s.logSweepError(ctx, err)
	}

	for {
		select {
		case <-ctx.Done():
			s.logger.InfoContext(ctx, "expiry scheduler stopping", "reason", ctx.Err())
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()

		case <-ticker.C:
			if err := s.sweep(ctx); err != nil {
				s.logSweepError(ctx, err)
			}
		}
	}
}

// waitWithJitter adds a random delay up to 10% of the interval.
func (s *ExpiryScheduler) waitWithJitter(ctx context.Context) {
	maxJitter := int64(s.interval / 10)
	if maxJitter <= 0 {
		return
	}

	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		// if crypto/rand fails, skip jitter rather than failing startup
		s.logger.WarnContext(ctx, "failed to generate jitter, skipping", "error", err)
		return
	}

	jitterNanos := binary.BigEndian.Uint64(buf[:]) % uint64(maxJitter)
	jitter := time.Duration(int64(jitterNanos)) // #nosec G115 - bounded by maxJitter which is int64

	select {
	case <-time.After(jitter):
	case <-ctx.Done():
	}
}

// sweep runs one archive-then-wake pass at the provider's current time.
func (s *ExpiryScheduler) sweep(ctx context.Context) error {
	now := s.timeProvider.Now()
	var errs []error

	archived, err := s.repo.ArchiveExpired(ctx, now)
	if err != nil {
		errs = append(errs, fmt.Errorf("archive expired: %w", err))
	}
	for _, alert := range archived {
		s.publishStateChanged(ctx, alert)
	}

	woken, err := s.repo.WakeSnoozed(ctx, now)
	if err != nil {
		errs = append(errs, fmt.Errorf("wake snoozed: %w", err))
	}
	for _, alert := range woken {
		s.publishStateChanged(ctx, alert)
	}

	if len(archived) > 0 || len(woken) > 0 {
		s.logger.InfoContext(ctx, "expiry sweep complete",
			"archived", len(archived),
			"woken", len(woken))
	}

	return errors.Join(errs...)
}

func (s *ExpiryScheduler) publishStateChanged(ctx context.Context, alert *model.Alert) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.AlertStateChanged(ctx, alert); err != nil {
		s.logger.WarnContext(ctx, "failed to publish state change",
			"alert_id", alert.ID, "err", err)
	}
}

func (s *ExpiryScheduler) logSweepError(ctx context.Context, err error) {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		s.logger.DebugContext(ctx, "sweep cancelled by context", "error", err)
		return
	}
	s.logger.ErrorContext(ctx, "expiry sweep failed", "error", err)
}
