package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/atlasintel/atlas-engine/internal/cache"
	"github.com/atlasintel/atlas-engine/internal/metrics"
	"github.com/atlasintel/atlas-engine/internal/models"
	"github.com/atlasintel/atlas-engine/internal/utils"
)

// State describes whether the background scan loop is running.
type State string

const (
	StateIdle       State = "idle"
	StateMonitoring State = "monitoring"
)

const (
	defaultInterval  = 5 * time.Minute
	defaultMaxEvents = 50
	defaultMaxAlerts = 20

	cacheKeyEvents = "atlas:crisis:events"
	cacheKeyAlerts = "atlas:crisis:alerts"
)

// Config carries the scan loop settings and the rolling-window caps.
type Config struct {
	Interval    time.Duration
	MinSeverity models.Severity
	Regions     []string
	Categories  []string
	MaxEvents   int
	MaxAlerts   int
}

// ScanSource produces crisis-scan results. Satisfied by *source.Resolver.
type ScanSource interface {
	Resolve(ctx context.Context, req models.AnalyticalRequest) (models.ResolvedResult, error)
}

// Archive receives the post-scan event window for best-effort persistence.
// Satisfied by *store.Store.
type Archive interface {
	SaveCrisisEvents(ctx context.Context, events []models.CrisisEvent)
}

// Monitor runs the periodic crisis scan loop and maintains the bounded
// in-memory windows of active events and alerts.
type Monitor struct {
	cfg      Config
	resolver ScanSource
	rules    []AlertRule
	enricher TrendEnricher
	notifier Notifier
	archive  Archive
	cache    cache.Provider
	clock    clock.Clock
	logger   *slog.Logger

	mu       sync.Mutex
	state    State
	events   []models.CrisisEvent
	alerts   []models.Alert
	notified map[string]struct{}
	stopCh   chan struct{}

	scanning atomic.Bool
}

// NewMonitor wires a monitor. Nil collaborators degrade to safe defaults:
// default rules, the category enricher, log-only notifications and a no-op
// cache.
func NewMonitor(logger *slog.Logger, cfg Config, resolver ScanSource, rules []AlertRule,
	enricher TrendEnricher, notifier Notifier, archive Archive, cacheProvider cache.Provider, clk clock.Clock) *Monitor {

	logger = utils.ComponentLogger(logger, "monitor")
	if cfg.Interval <= 0 {
		cfg.Interval = defaultInterval
	}
	if cfg.MaxEvents <= 0 {
		cfg.MaxEvents = defaultMaxEvents
	}
	if cfg.MaxAlerts <= 0 {
		cfg.MaxAlerts = defaultMaxAlerts
	}
	if len(rules) == 0 {
		rules = DefaultAlertRules()
	}
	if enricher == nil {
		enricher = NewCategoryTrends()
	}
	if notifier == nil {
		notifier = LogNotifier{Logger: logger}
	}
	if cacheProvider == nil {
		cacheProvider = cache.NoopProvider{}
	}
	if clk == nil {
		clk = clock.New()
	}
	return &Monitor{
		cfg:      cfg,
		resolver: resolver,
		rules:    rules,
		enricher: enricher,
		notifier: notifier,
		archive:  archive,
		cache:    cacheProvider,
		clock:    clk,
		logger:   logger,
		state:    StateIdle,
		notified: make(map[string]struct{}),
	}
}

// State reports whether the loop is running.
func (m *Monitor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Start launches the scan loop: one scan immediately, then one per interval.
// Returns an error if the monitor is already running.
func (m *Monitor) Start() error {
	m.mu.Lock()
	if m.state == StateMonitoring {
		m.mu.Unlock()
		return errors.New("monitor already running")
	}
	m.state = StateMonitoring
	stopCh := make(chan struct{})
	m.stopCh = stopCh
	m.mu.Unlock()

	m.logger.Info("crisis monitoring started", slog.Duration("interval", m.cfg.Interval))
	go m.run(stopCh)
	return nil
}

// Stop halts the scan loop. Accumulated events and alerts are retained.
func (m *Monitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateMonitoring {
		return
	}
	m.state = StateIdle
	close(m.stopCh)
	m.stopCh = nil
	m.logger.Info("crisis monitoring stopped")
}

func (m *Monitor) run(stopCh chan struct{}) {
	m.scanOnce()

	ticker := m.clock.Ticker(m.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			select {
			case <-stopCh:
				return
			default:
			}
			m.scanOnce()
		}
	}
}

// scanOnce runs one tick. If the previous scan is still in flight the tick is
// skipped rather than queued.
func (m *Monitor) scanOnce() {
	if !m.scanning.CompareAndSwap(false, true) {
		m.logger.Warn("scan tick skipped: previous scan still in flight")
		return
	}
	defer m.scanning.Store(false)

	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.Interval)
	defer cancel()
	if err := m.Scan(ctx); err != nil {
		m.mu.Lock()
		events, alerts := len(m.events), len(m.alerts)
		m.mu.Unlock()
		metrics.ObserveScan(metrics.OutcomeError, events, alerts)
		m.logger.Warn("crisis scan failed", slog.Any("error", err))
	}
}

// Scan performs a single crisis sweep and folds the results into the rolling
// windows. Safe to call on demand while the loop runs.
func (m *Monitor) Scan(ctx context.Context) error {
	req := models.AnalyticalRequest{
		Kind: models.KindCrisisScan,
		Parameters: map[string]any{
			"regions":    m.cfg.Regions,
			"categories": m.cfg.Categories,
		},
		IssuedAt: m.clock.Now(),
	}
	res, err := m.resolver.Resolve(ctx, req)
	if err != nil {
		return fmt.Errorf("crisis scan: %w", err)
	}
	payload, ok := res.Payload.(models.CrisisScanPayload)
	if !ok {
		return fmt.Errorf("crisis scan: unexpected payload %T", res.Payload)
	}

	fresh, notifications, eventsSnap, alertsSnap := m.ingest(payload.Events)

	for _, n := range notifications {
		if err := m.notifier.Notify(ctx, n); err != nil {
			m.logger.Warn("alert notification failed",
				slog.String("tag", n.Tag), slog.Any("error", err))
		}
	}
	if m.archive != nil && len(fresh) > 0 {
		m.archive.SaveCrisisEvents(ctx, fresh)
	}
	m.cacheWindows(ctx, eventsSnap, alertsSnap)

	metrics.ObserveScan(metrics.OutcomeSuccess, len(eventsSnap), len(alertsSnap))
	m.logger.Info("crisis scan complete",
		slog.String("source", string(res.Provenance)),
		slog.Int("new_events", len(fresh)),
		slog.Int("active_events", len(eventsSnap)),
		slog.Int("active_alerts", len(alertsSnap)))
	return nil
}

// ingest filters, enriches and dedupes the scanned candidates, derives alerts
// for the survivors, and trims both windows. Returns the accepted events, the
// notifications still owed, and snapshots of both windows.
func (m *Monitor) ingest(candidates []models.CrisisEvent) (fresh []models.CrisisEvent, notifications []Notification, eventsSnap []models.CrisisEvent, alertsSnap []models.Alert) {
	now := m.clock.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	seen := make(map[string]struct{}, len(m.events))
	for _, e := range m.events {
		seen[e.NormalizedTitle()] = struct{}{}
	}

	for _, c := range candidates {
		if !m.admit(c) {
			continue
		}
		key := c.NormalizedTitle()
		if key == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}

		if c.ID == "" {
			c.ID = slugify(c.Title)
		}
		if c.FirstSeenAt.IsZero() {
			c.FirstSeenAt = now
		}
		if len(c.Trends) == 0 {
			c.Trends = m.enricher.Trends(c.Category)
		}
		fresh = append(fresh, c)
	}

	// Newest first; cap the window by dropping the oldest entries.
	m.events = append(fresh, m.events...)
	if len(m.events) > m.cfg.MaxEvents {
		m.events = m.events[:m.cfg.MaxEvents]
	}

	for _, e := range fresh {
		if !m.matchesAnyRule(e) {
			continue
		}
		alert := models.Alert{
			ID:                    e.ID,
			EventID:               e.ID,
			Title:                 e.Title,
			Region:                e.Region,
			Severity:              e.Severity,
			EscalationProbability: e.EscalationProbability,
			RaisedAt:              now,
		}
		if m.hasAlert(alert.ID) {
			continue
		}
		m.alerts = append([]models.Alert{alert}, m.alerts...)
		if _, done := m.notified[alert.ID]; !done {
			m.notified[alert.ID] = struct{}{}
			notifications = append(notifications, Notification{
				Title: fmt.Sprintf("Crisis alert: %s", alert.Title),
				Body:  fmt.Sprintf("%s severity in %s, escalation probability %.0f%%", alert.Severity, alert.Region, alert.EscalationProbability),
				Tag:   alert.ID,
			})
		}
	}
	if len(m.alerts) > m.cfg.MaxAlerts {
		m.alerts = m.alerts[:m.cfg.MaxAlerts]
	}

	eventsSnap = append([]models.CrisisEvent(nil), m.events...)
	alertsSnap = append([]models.Alert(nil), m.alerts...)
	return fresh, notifications, eventsSnap, alertsSnap
}

func (m *Monitor) admit(e models.CrisisEvent) bool {
	if m.cfg.MinSeverity != "" && !e.Severity.AtLeast(m.cfg.MinSeverity) {
		return false
	}
	if len(m.cfg.Regions) > 0 && !containsFold(m.cfg.Regions, e.Region) {
		return false
	}
	if len(m.cfg.Categories) > 0 && !containsFold(m.cfg.Categories, e.Category) {
		return false
	}
	return true
}

func (m *Monitor) matchesAnyRule(e models.CrisisEvent) bool {
	for _, r := range m.rules {
		if r.Matches(e) {
			return true
		}
	}
	return false
}

func (m *Monitor) hasAlert(id string) bool {
	for _, a := range m.alerts {
		if a.ID == id {
			return true
		}
	}
	return false
}

// Acknowledge removes the alert with the given id from the active window.
// The underlying event stays in the event window. Returns false when no such
// alert is active.
func (m *Monitor) Acknowledge(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, a := range m.alerts {
		if a.ID == id {
			m.alerts = append(m.alerts[:i], m.alerts[i+1:]...)
			return true
		}
	}
	return false
}

// Events returns a copy of the active event window, newest first.
func (m *Monitor) Events() []models.CrisisEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.CrisisEvent(nil), m.events...)
}

// Alerts returns a copy of the unacknowledged alert window, newest first.
func (m *Monitor) Alerts() []models.Alert {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.Alert(nil), m.alerts...)
}

func (m *Monitor) cacheWindows(ctx context.Context, events []models.CrisisEvent, alerts []models.Alert) {
	if data, err := json.Marshal(events); err == nil {
		if err := m.cache.Set(ctx, cacheKeyEvents, data, 0); err != nil {
			m.logger.Debug("event window cache write failed", slog.Any("error", err))
		}
	}
	if data, err := json.Marshal(alerts); err == nil {
		if err := m.cache.Set(ctx, cacheKeyAlerts, data, 0); err != nil {
			m.logger.Debug("alert window cache write failed", slog.Any("error", err))
		}
	}
}

// slugify derives a stable event id from the title for feeds that omit ids.
func slugify(title string) string {
	var b strings.Builder
	lastDash := true
	for _, r := range strings.ToLower(strings.TrimSpace(title)) {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	return strings.TrimRight(b.String(), "-")
}
