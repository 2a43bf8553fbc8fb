// Package analytics sends optional usage events to PostHog. Without an API
// key every call is a no-op.
package analytics

import (
	"log/slog"

	"github.com/posthog/posthog-go"

	"github.com/Zachdehooge/forest-loss-dashboard/internal/config"
)

type enqueuer interface {
	Enqueue(posthog.Message) error
	Close() error
}

// Tracker records dashboard usage events.
type Tracker struct {
	client enqueuer
	logger *slog.Logger
}

// New returns a Tracker. A missing key or a client that fails to start
// yields a disabled tracker rather than an error.
func New(cfg config.AnalyticsConfig, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	t := &Tracker{logger: logger}
	if cfg.PostHogKey == "" {
		return t
	}

	client, err := posthog.NewWithConfig(cfg.PostHogKey, posthog.Config{Endpoint: cfg.PostHogHost})
	if err != nil {
		logger.Warn("failed to initialize PostHog, analytics disabled", "error", err)
		return t
	}
	t.client = client
	logger.Info("analytics enabled", "host", cfg.PostHogHost)
	return t
}

// Enabled reports whether events are sent anywhere.
func (t *Tracker) Enabled() bool {
	return t != nil && t.client != nil
}

// Track queues event for the anonymous session distinctID.
func (t *Tracker) Track(distinctID, event string, props map[string]any) {
	if !t.Enabled() {
		return
	}
	err := t.client.Enqueue(posthog.Capture{
		DistinctId: distinctID,
		Event:      event,
		Properties: props,
	})
	if err != nil {
		t.logger.Debug("analytics event dropped", "event", event, "error", err)
	}
}

// Close flushes queued events.
func (t *Tracker) Close() {
	if !t.Enabled() {
		return
	}
	if err := t.client.Close(); err != nil {
		t.logger.Warn("failed to flush analytics", "error", err)
	}
}
