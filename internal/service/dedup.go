// Package service holds the business logic for alert generation,
// deduplication, lifecycle transitions, preference filtering, and expiry.
package service

import (
	"context"
	"crypto/md5" //nolint:gosec // fingerprint only, not a security boundary
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/opswatch/alert-engine/internal/core"
	"github.com/opswatch/alert-engine/internal/domain/model"
)

// DedupWindow is the trailing window inside which alerts with the same
// dedupe key collapse into one.
const DedupWindow = 5 * time.Minute

// dedupeMessagePrefix is how much of the message participates in the key.
const dedupeMessagePrefix = 100

// ComputeDedupeKey fingerprints an alert's identity-defining fields. The
// serialization sorts keys, so the key is stable regardless of field order,
// and only the first 100 characters of the message participate.
func ComputeDedupeKey(category model.AlertCategory, siteID *int64, message string) string {
	runes := []rune(message)
	if len(runes) > dedupeMessagePrefix {
		message = string(runes[:dedupeMessagePrefix])
	}

	// map marshaling sorts keys, giving a canonical serialization
	payload, err := json.Marshal(map[string]any{
		"category": category,
		"site_id":  siteID,
		"message":  message,
	})
	if err != nil {
		// only unmarshalable types can fail here; these fields never do
		payload = []byte(string(category) + message)
	}

	sum := md5.Sum(payload) //nolint:gosec // fingerprint only
	return hex.EncodeToString(sum[:])
}

// DedupEngineOptions groups dependencies for DedupEngine.
type DedupEngineOptions struct {
	Repo      core.AlertRepository // Required: alert repository
	Publisher AlertEventPublisher  // Optional: state-change fan-out for archived duplicates
	Logger    *slog.Logger         // Optional: structured logger
}

// DedupEngine collapses duplicate alerts after creation. Suppression is a
// conditional archive, so concurrent passes over the same group are safe and
// repeating a pass is a no-op. Each archived duplicate is announced as a
// state change, so a session that already received it drops it from view.
type DedupEngine struct {
	repo      core.AlertRepository
	publisher AlertEventPublisher
	logger    *slog.Logger
}

// NewDedupEngine constructs a new DedupEngine.
func NewDedupEngine(opts DedupEngineOptions) (*DedupEngine, error) {
	if opts.Repo == nil {
		return nil, errors.New("AlertRepository is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &DedupEngine{
		repo:      opts.Repo,
		publisher: opts.Publisher,
		logger:    logger.With("component", "dedup"),
	}, nil
}

// MustNewDedupEngine constructs a new DedupEngine and panics on error.
func MustNewDedupEngine(opts DedupEngineOptions) *DedupEngine {
	e, err := NewDedupEngine(opts)
	if err != nil {
		panic(err) //nolint:forbidigo // Must constructor fails fast during startup
	}
	return e
}

// SuppressResult reports what a suppression pass did.
type SuppressResult struct {
	// Archived is how many older duplicates were archived.
	Archived int64
	// Superseded is true when the alert itself was archived because a newer
	// live duplicate already existed in the window.
	Superseded bool
}

// Suppress archives every live NEW duplicate of the alert generated inside
// the trailing window, keeping only the newest (ties broken toward the
// higher id). The alert itself is archived instead when something newer is
// already live.
func (e *DedupEngine) Suppress(ctx context.Context, alert *model.Alert) (SuppressResult, error) {
	if alert == nil {
		return SuppressResult{}, errors.New("alert is required")
	}

	params := core.ArchiveDuplicatesParams{
		DedupeKey:   alert.DedupeKey,
		KeepID:      alert.ID,
		GeneratedAt: alert.GeneratedAt,
		WindowStart: alert.GeneratedAt.Add(-DedupWindow),
	}

	duplicates, err := e.repo.ArchiveDuplicates(ctx, params)
	if err != nil {
		return SuppressResult{}, err
	}
	for _, dup := range duplicates {
		e.publishStateChanged(ctx, dup)
	}
	archived := int64(len(duplicates))

	superseded, err := e.repo.ArchiveIfSuperseded(ctx, params)
	if err != nil {
		return SuppressResult{Archived: archived}, err
	}

	if archived > 0 || superseded {
		e.logger.InfoContext(ctx, "suppressed duplicate alerts",
			"dedupe_key", alert.DedupeKey,
			"alert_id", alert.ID,
			"archived", archived,
			"superseded", superseded)
	}

	return SuppressResult{Archived: archived, Superseded: superseded}, nil
}

// SetPublisher installs the event publisher after construction; the broker
// is wired later in startup. Call this before serving traffic.
func (e *DedupEngine) SetPublisher(p AlertEventPublisher) {
	e.publisher = p
}

func (e *DedupEngine) publishStateChanged(ctx context.Context, alert *model.Alert) {
	if e.publisher == nil {
		return
	}
	if err := e.publisher.AlertStateChanged(ctx, alert); err != nil {
		e.logger.WarnContext(ctx, "failed to publish state change for archived duplicate",
			"alert_id", alert.ID, "err", err)
	}
}
