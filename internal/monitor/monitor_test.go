package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/atlasintel/atlas-engine/internal/models"
)

type scanStub struct {
	mu      sync.Mutex
	batches [][]models.CrisisEvent
	calls   int
	err     error
	called  chan struct{}
}

func (s *scanStub) Resolve(_ context.Context, _ models.AnalyticalRequest) (models.ResolvedResult, error) {
	s.mu.Lock()
	idx := s.calls
	s.calls++
	s.mu.Unlock()
	if s.called != nil {
		s.called <- struct{}{}
	}
	if s.err != nil {
		return models.ResolvedResult{}, s.err
	}
	var events []models.CrisisEvent
	if idx < len(s.batches) {
		events = s.batches[idx]
	} else if len(s.batches) > 0 {
		events = s.batches[len(s.batches)-1]
	}
	return models.ResolvedResult{
		Payload:    models.CrisisScanPayload{Events: events},
		Provenance: models.SourceLocalFallback,
		ResolvedAt: time.Now(),
	}, nil
}

func (s *scanStub) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type notifyStub struct {
	mu   sync.Mutex
	sent []Notification
}

func (n *notifyStub) Notify(_ context.Context, note Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, note)
	return nil
}

func (n *notifyStub) notifications() []Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Notification(nil), n.sent...)
}

func newTestMonitor(resolver ScanSource, notifier Notifier, cfg Config) *Monitor {
	return NewMonitor(nil, cfg, resolver, nil, nil, notifier, nil, nil, clock.NewMock())
}

func event(title, region string, severity models.Severity, escalation float64) models.CrisisEvent {
	return models.CrisisEvent{
		Title:                 title,
		Region:                region,
		Severity:              severity,
		Category:              "political",
		EscalationProbability: escalation,
		Confidence:            70,
	}
}

func TestScanFoldsEventsAndDerivesAlerts(t *testing.T) {
	resolver := &scanStub{batches: [][]models.CrisisEvent{{
		event("Border escalation", "Eastern Europe", models.SeverityCritical, 65),
		event("Trade dispute", "East Asia", models.SeverityMedium, 40),
	}}}
	notifier := &notifyStub{}
	m := newTestMonitor(resolver, notifier, Config{})

	if err := m.Scan(context.Background()); err != nil {
		t.Fatalf("Scan: %v", err)
	}

	events := m.Events()
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	for _, e := range events {
		if e.ID == "" {
			t.Errorf("event %q has no id", e.Title)
		}
		if len(e.Trends) == 0 {
			t.Errorf("event %q has no trend series", e.Title)
		}
		if e.FirstSeenAt.IsZero() {
			t.Errorf("event %q has no first-seen timestamp", e.Title)
		}
	}

	alerts := m.Alerts()
	if len(alerts) != 1 {
		t.Fatalf("expected 1 alert, got %d", len(alerts))
	}
	if alerts[0].ID != alerts[0].EventID {
		t.Errorf("alert id %q diverged from event id %q", alerts[0].ID, alerts[0].EventID)
	}
	if alerts[0].Severity != models.SeverityCritical {
		t.Errorf("expected the critical event to alert, got %q", alerts[0].Title)
	}

	sent := notifier.notifications()
	if len(sent) != 1 {
		t.Fatalf("expected 1 notification, got %d", len(sent))
	}
	if sent[0].Tag != alerts[0].ID {
		t.Errorf("notification tag %q does not match alert id %q", sent[0].Tag, alerts[0].ID)
	}
}

func TestScanDedupesByNormalizedTitle(t *testing.T) {
	resolver := &scanStub{batches: [][]models.CrisisEvent{
		{event("Border Escalation", "Eastern Europe", models.SeverityHigh, 60)},
		{event("  border escalation  ", "Eastern Europe", models.SeverityHigh, 60)},
	}}
	m := newTestMonitor(resolver, &notifyStub{}, Config{})

	for i := 0; i < 2; i++ {
		if err := m.Scan(context.Background()); err != nil {
			t.Fatalf("Scan %d: %v", i, err)
		}
	}
	if got := len(m.Events()); got != 1 {
		t.Fatalf("expected duplicate titles to collapse to 1 event, got %d", got)
	}
}

func TestEventWindowTrimsOldest(t *testing.T) {
	var batch []models.CrisisEvent
	for i := 0; i < 5; i++ {
		batch = append(batch, event(fmt.Sprintf("incident %d", i), "Global", models.SeverityLow, 10))
	}
	resolver := &scanStub{batches: [][]models.CrisisEvent{batch}}
	m := newTestMonitor(resolver, &notifyStub{}, Config{MaxEvents: 3})

	if err := m.Scan(context.Background()); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	events := m.Events()
	if len(events) != 3 {
		t.Fatalf("expected window capped at 3, got %d", len(events))
	}
}

func TestAcknowledgeRemovesAlertOnly(t *testing.T) {
	resolver := &scanStub{batches: [][]models.CrisisEvent{{
		event("Supply chain rupture", "Global", models.SeverityCritical, 90),
	}}}
	m := newTestMonitor(resolver, &notifyStub{}, Config{})

	if err := m.Scan(context.Background()); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	alerts := m.Alerts()
	if len(alerts) != 1 {
		t.Fatalf("expected 1 alert, got %d", len(alerts))
	}

	if !m.Acknowledge(alerts[0].ID) {
		t.Fatal("Acknowledge returned false for an active alert")
	}
	if len(m.Alerts()) != 0 {
		t.Error("alert still active after acknowledgement")
	}
	if len(m.Events()) != 1 {
		t.Error("acknowledging an alert should not touch the event window")
	}
	if m.Acknowledge(alerts[0].ID) {
		t.Error("Acknowledge returned true for an already-removed alert")
	}
}

func TestRepeatedScanDoesNotRenotify(t *testing.T) {
	resolver := &scanStub{batches: [][]models.CrisisEvent{{
		event("Naval blockade", "South China Sea", models.SeverityCritical, 88),
	}}}
	notifier := &notifyStub{}
	m := newTestMonitor(resolver, notifier, Config{})

	for i := 0; i < 3; i++ {
		if err := m.Scan(context.Background()); err != nil {
			t.Fatalf("Scan %d: %v", i, err)
		}
	}
	if got := len(notifier.notifications()); got != 1 {
		t.Fatalf("expected a single notification for the same alert, got %d", got)
	}
}

func TestScanFailureLeavesWindowsIntact(t *testing.T) {
	resolver := &scanStub{batches: [][]models.CrisisEvent{{
		event("Energy shock", "Middle East", models.SeverityHigh, 70),
	}}}
	m := newTestMonitor(resolver, &notifyStub{}, Config{})
	if err := m.Scan(context.Background()); err != nil {
		t.Fatalf("Scan: %v", err)
	}

	resolver.err = errors.New("all sources down")
	if err := m.Scan(context.Background()); err == nil {
		t.Fatal("expected an error from a failed scan")
	}
	if len(m.Events()) != 1 {
		t.Error("failed scan should not disturb the event window")
	}
}

func TestMinSeverityFilter(t *testing.T) {
	resolver := &scanStub{batches: [][]models.CrisisEvent{{
		event("Minor protest", "Western Europe", models.SeverityLow, 20),
		event("Armed clash", "Sahel", models.SeverityHigh, 75),
	}}}
	m := newTestMonitor(resolver, &notifyStub{}, Config{MinSeverity: models.SeverityMedium})

	if err := m.Scan(context.Background()); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	events := m.Events()
	if len(events) != 1 || events[0].Title != "Armed clash" {
		t.Fatalf("expected only the high-severity event, got %+v", events)
	}
}

func TestScanSkippedWhileInFlight(t *testing.T) {
	resolver := &scanStub{}
	m := newTestMonitor(resolver, &notifyStub{}, Config{})

	m.scanning.Store(true)
	m.scanOnce()
	if got := resolver.callCount(); got != 0 {
		t.Fatalf("expected tick to be skipped while a scan is in flight, got %d resolves", got)
	}
}

func TestStartStopLoop(t *testing.T) {
	clk := clock.NewMock()
	resolver := &scanStub{called: make(chan struct{}, 8)}
	m := NewMonitor(nil, Config{Interval: 5 * time.Minute}, resolver, nil, nil, &notifyStub{}, nil, nil, clk)

	if err := m.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := m.Start(); err == nil {
		t.Error("second Start should fail while running")
	}
	if got := m.State(); got != StateMonitoring {
		t.Fatalf("expected state %q, got %q", StateMonitoring, got)
	}

	waitScan := func() {
		t.Helper()
		select {
		case <-resolver.called:
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for a scan")
		}
	}

	waitScan() // immediate scan on start
	time.Sleep(50 * time.Millisecond)
	clk.Add(5 * time.Minute)
	waitScan()

	m.Stop()
	if got := m.State(); got != StateIdle {
		t.Fatalf("expected state %q after stop, got %q", StateIdle, got)
	}
	clk.Add(10 * time.Minute)
	select {
	case <-resolver.called:
		t.Fatal("scan fired after Stop")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestSlugify(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Border Escalation", "border-escalation"},
		{"  Trade/War: Phase 2  ", "trade-war-phase-2"},
		{"---", ""},
	}
	for _, tc := range tests {
		if got := slugify(tc.in); got != tc.want {
			t.Errorf("slugify(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
