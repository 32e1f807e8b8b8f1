package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/atlasintel/atlas-engine/internal/backtest"
	"github.com/atlasintel/atlas-engine/internal/models"
	"github.com/atlasintel/atlas-engine/internal/monitor"
	"github.com/atlasintel/atlas-engine/internal/patterns"
	"github.com/atlasintel/atlas-engine/internal/source"
	"github.com/atlasintel/atlas-engine/internal/utils"
)

// ErrNotConfigured signals that a facade dependency was not wired.
var ErrNotConfigured = errors.New("component not configured")

// ProgressStore defines the persistence operations the facade needs for
// tutorial progress and cached risk assessments.
type ProgressStore interface {
	UpsertLearningProgress(ctx context.Context, p models.LearningProgress)
	LoadLearningProgress(ctx context.Context, userID string) ([]models.LearningProgress, error)
	LoadRiskAssessments(ctx context.Context, region string) ([]models.RiskAssessment, error)
}

// AnalysisService is the orchestration facade: request resolution, crisis
// monitoring control, backtesting and hotspot mining behind one surface.
type AnalysisService struct {
	logger    *slog.Logger
	resolver  *source.Resolver
	monitor   *monitor.Monitor
	backtest  *backtest.Engine
	miner     *patterns.Miner
	progress  ProgressStore
	latencies *utils.LatencyTracker
}

// NewAnalysisService constructs the facade. Any collaborator may be nil; the
// corresponding operations then fail with ErrNotConfigured.
func NewAnalysisService(logger *slog.Logger, resolver *source.Resolver, mon *monitor.Monitor,
	engine *backtest.Engine, miner *patterns.Miner, progress ProgressStore) *AnalysisService {

	return &AnalysisService{
		logger:    utils.ComponentLogger(logger, "service"),
		resolver:  resolver,
		monitor:   mon,
		backtest:  engine,
		miner:     miner,
		progress:  progress,
		latencies: utils.NewLatencyTracker(1024),
	}
}

// Resolve runs one analytical request through the source chain.
func (s *AnalysisService) Resolve(ctx context.Context, req models.AnalyticalRequest) (models.ResolvedResult, error) {
	if s.resolver == nil {
		return models.ResolvedResult{}, fmt.Errorf("resolver: %w", ErrNotConfigured)
	}
	if req.IssuedAt.IsZero() {
		req.IssuedAt = time.Now().UTC()
	}

	start := time.Now()
	result, err := s.resolver.Resolve(ctx, req)
	if err != nil {
		return models.ResolvedResult{}, err
	}
	s.latencies.Observe(time.Since(start))
	if count := s.latencies.Count(); count >= 20 && count%20 == 0 {
		s.logger.Info("resolution latency",
			slog.Duration("p95", s.latencies.Percentile(95)),
			slog.Int("samples", count))
	}
	return result, nil
}

// RunBacktest scores a prediction history against realized outcomes.
func (s *AnalysisService) RunBacktest(ctx context.Context, req models.BacktestRequest) (models.BacktestReport, error) {
	if s.backtest == nil {
		return models.BacktestReport{}, fmt.Errorf("backtest engine: %w", ErrNotConfigured)
	}
	return s.backtest.Run(ctx, req)
}

// StartMonitoring launches the periodic crisis scan loop.
func (s *AnalysisService) StartMonitoring() error {
	if s.monitor == nil {
		return fmt.Errorf("monitor: %w", ErrNotConfigured)
	}
	return s.monitor.Start()
}

// StopMonitoring halts the scan loop, retaining accumulated windows.
func (s *AnalysisService) StopMonitoring() error {
	if s.monitor == nil {
		return fmt.Errorf("monitor: %w", ErrNotConfigured)
	}
	s.monitor.Stop()
	return nil
}

// MonitorState reports whether the scan loop is running.
func (s *AnalysisService) MonitorState() monitor.State {
	if s.monitor == nil {
		return monitor.StateIdle
	}
	return s.monitor.State()
}

// ActiveEvents returns the current crisis event window, newest first.
func (s *AnalysisService) ActiveEvents() []models.CrisisEvent {
	if s.monitor == nil {
		return nil
	}
	return s.monitor.Events()
}

// ActiveAlerts returns the unacknowledged alert window, newest first.
func (s *AnalysisService) ActiveAlerts() []models.Alert {
	if s.monitor == nil {
		return nil
	}
	return s.monitor.Alerts()
}

// AcknowledgeAlert dismisses one active alert by id.
func (s *AnalysisService) AcknowledgeAlert(id string) (bool, error) {
	if s.monitor == nil {
		return false, fmt.Errorf("monitor: %w", ErrNotConfigured)
	}
	return s.monitor.Acknowledge(id), nil
}

// MineHotspots aggregates the active event window into region hotspots.
func (s *AnalysisService) MineHotspots(ctx context.Context) ([]models.RegionHotspot, error) {
	if s.miner == nil {
		return nil, fmt.Errorf("pattern miner: %w", ErrNotConfigured)
	}
	return s.miner.Mine(ctx, s.ActiveEvents()), nil
}

// SaveProgress records tutorial progress for a user; later saves for the same
// module update the earlier row.
func (s *AnalysisService) SaveProgress(ctx context.Context, p models.LearningProgress) error {
	if s.progress == nil {
		return fmt.Errorf("progress store: %w", ErrNotConfigured)
	}
	if p.UserID == "" || p.ModuleID == "" {
		return errors.New("progress requires a user id and module id")
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = time.Now().UTC()
	}
	s.progress.UpsertLearningProgress(ctx, p)
	return nil
}

// Progress lists a user's recorded tutorial progress.
func (s *AnalysisService) Progress(ctx context.Context, userID string) ([]models.LearningProgress, error) {
	if s.progress == nil {
		return nil, fmt.Errorf("progress store: %w", ErrNotConfigured)
	}
	return s.progress.LoadLearningProgress(ctx, userID)
}

// CachedRiskAssessments returns unexpired persisted assessments for a region.
func (s *AnalysisService) CachedRiskAssessments(ctx context.Context, region string) ([]models.RiskAssessment, error) {
	if s.progress == nil {
		return nil, fmt.Errorf("store: %w", ErrNotConfigured)
	}
	return s.progress.LoadRiskAssessments(ctx, region)
}
