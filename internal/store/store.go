// Package store is the durable half of the persistence adapter: best-effort
// write-through of analytical results to sqlite. Write failures are absorbed
// and logged so feature paths never fail on telemetry.
package store

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/atlasintel/atlas-engine/internal/metrics"
	"github.com/atlasintel/atlas-engine/internal/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS risk_assessments (
	id              TEXT PRIMARY KEY,
	region          TEXT NOT NULL,
	risk_score      REAL NOT NULL,
	confidence_low  REAL NOT NULL DEFAULT 0,
	confidence_high REAL NOT NULL DEFAULT 0,
	drivers         TEXT NOT NULL DEFAULT '[]',
	scenarios       TEXT NOT NULL DEFAULT '[]',
	created_at      TIMESTAMP NOT NULL,
	expires_at      TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS crisis_events (
	id                     TEXT PRIMARY KEY,
	title                  TEXT NOT NULL,
	region                 TEXT NOT NULL,
	severity               TEXT NOT NULL,
	category               TEXT NOT NULL,
	escalation_probability REAL NOT NULL,
	confidence             REAL NOT NULL,
	first_seen_at          TIMESTAMP NOT NULL,
	trends                 TEXT NOT NULL DEFAULT '[]'
);
CREATE TABLE IF NOT EXISTS scenario_simulations (
	id              TEXT PRIMARY KEY,
	scenario        TEXT NOT NULL,
	iterations      INTEGER NOT NULL,
	expected_payoff REAL NOT NULL,
	outcomes        TEXT NOT NULL DEFAULT '[]',
	created_at      TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS learning_progress (
	user_id    TEXT NOT NULL,
	module_id  TEXT NOT NULL,
	progress   REAL NOT NULL,
	score      REAL NOT NULL,
	updated_at TIMESTAMP NOT NULL,
	PRIMARY KEY (user_id, module_id)
);
CREATE TABLE IF NOT EXISTS resolution_history (
	id          TEXT PRIMARY KEY,
	kind        TEXT NOT NULL,
	provenance  TEXT NOT NULL,
	attempts    INTEGER NOT NULL,
	resolved_at TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS predictions (
	id         TEXT PRIMARY KEY,
	model_id   TEXT NOT NULL,
	ts         TIMESTAMP NOT NULL,
	predicted  TEXT NOT NULL,
	confidence REAL NOT NULL
);
CREATE TABLE IF NOT EXISTS outcomes (
	id     TEXT PRIMARY KEY,
	ts     TIMESTAMP NOT NULL,
	actual TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS region_hotspots (
	region         TEXT PRIMARY KEY,
	event_count    INTEGER NOT NULL,
	prevalence     REAL NOT NULL,
	top_categories TEXT NOT NULL DEFAULT '[]',
	max_severity   TEXT NOT NULL,
	last_seen      TIMESTAMP NOT NULL
);
`

// Store wraps the sqlite database behind best-effort save and plain load methods.
type Store struct {
	db     *sqlx.DB
	logger *slog.Logger

	// RiskTTL bounds how long persisted risk assessments stay readable.
	// Zero means the one-hour default.
	RiskTTL time.Duration
}

// Open connects to the sqlite database at path and bootstraps the schema.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := sqlx.Connect("sqlite3", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db, logger: logger}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) absorb(op string, err error) {
	if err == nil {
		return
	}
	s.logger.Warn("persistence write failed", slog.String("op", op), slog.Any("error", err))
	metrics.ObservePersistenceFailure()
}

// RecordResolution appends one entry to the resolution history and persists
// payload rows for the kinds that have a durable home. Best effort.
func (s *Store) RecordResolution(ctx context.Context, req models.AnalyticalRequest, res models.ResolvedResult) {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO resolution_history (id, kind, provenance, attempts, resolved_at) VALUES (?, ?, ?, ?, ?)`,
		uuid.NewString(), string(req.Kind), string(res.Provenance), len(res.Attempts), res.ResolvedAt.UTC())
	s.absorb("resolution_history", err)

	switch payload := res.Payload.(type) {
	case models.RiskAssessmentPayload:
		s.SaveRiskAssessments(ctx, payload.Assessments, s.riskTTL())
	case models.SimulationPayload:
		s.SaveSimulation(ctx, payload)
	case models.CrisisScanPayload:
		s.SaveCrisisEvents(ctx, payload.Events)
	}
}

func (s *Store) riskTTL() time.Duration {
	if s.RiskTTL > 0 {
		return s.RiskTTL
	}
	return time.Hour
}

// SaveRiskAssessments stores assessments with an explicit expiry. Best effort.
func (s *Store) SaveRiskAssessments(ctx context.Context, assessments []models.RiskAssessment, ttl time.Duration) {
	now := time.Now().UTC()
	for _, a := range assessments {
		low, high := 0.0, 0.0
		if len(a.ConfidenceInterval) == 2 {
			low, high = a.ConfidenceInterval[0], a.ConfidenceInterval[1]
		}
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO risk_assessments (id, region, risk_score, confidence_low, confidence_high, drivers, scenarios, created_at, expires_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			uuid.NewString(), a.Region, a.RiskScore, low, high,
			mustJSON(a.PrimaryDrivers), mustJSON(a.Scenarios), now, now.Add(ttl))
		s.absorb("risk_assessments", err)
	}
}

// LoadRiskAssessments returns non-expired assessments, optionally filtered by region.
func (s *Store) LoadRiskAssessments(ctx context.Context, region string) ([]models.RiskAssessment, error) {
	type row struct {
		Region         string    `db:"region"`
		RiskScore      float64   `db:"risk_score"`
		ConfidenceLow  float64   `db:"confidence_low"`
		ConfidenceHigh float64   `db:"confidence_high"`
		Drivers        string    `db:"drivers"`
		Scenarios      string    `db:"scenarios"`
		ExpiresAt      time.Time `db:"expires_at"`
	}
	query := `SELECT region, risk_score, confidence_low, confidence_high, drivers, scenarios, expires_at
		FROM risk_assessments WHERE expires_at > ?`
	args := []any{time.Now().UTC()}
	if region != "" {
		query += ` AND region = ?`
		args = append(args, region)
	}
	query += ` ORDER BY created_at DESC`

	var rows []row
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}
	out := make([]models.RiskAssessment, 0, len(rows))
	for _, r := range rows {
		out = append(out, models.RiskAssessment{
			Region:             r.Region,
			RiskScore:          r.RiskScore,
			ConfidenceInterval: []float64{r.ConfidenceLow, r.ConfidenceHigh},
			PrimaryDrivers:     fromJSONList(r.Drivers),
			Scenarios:          fromJSONList(r.Scenarios),
		})
	}
	return out, nil
}

// SaveCrisisEvents upserts the retained crisis events by id. Best effort.
func (s *Store) SaveCrisisEvents(ctx context.Context, events []models.CrisisEvent) {
	for _, e := range events {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO crisis_events (id, title, region, severity, category, escalation_probability, confidence, first_seen_at, trends)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT(id) DO UPDATE SET
				severity = excluded.severity,
				escalation_probability = excluded.escalation_probability,
				confidence = excluded.confidence,
				trends = excluded.trends`,
			e.ID, e.Title, e.Region, string(e.Severity), e.Category,
			e.EscalationProbability, e.Confidence, e.FirstSeenAt.UTC(), mustJSON(e.Trends))
		s.absorb("crisis_events", err)
	}
}

// SaveSimulation stores one scenario simulation run. Best effort.
func (s *Store) SaveSimulation(ctx context.Context, sim models.SimulationPayload) {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO scenario_simulations (id, scenario, iterations, expected_payoff, outcomes, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		uuid.NewString(), sim.Scenario, sim.Iterations, sim.ExpectedPayoff,
		mustJSON(sim.Outcomes), time.Now().UTC())
	s.absorb("scenario_simulations", err)
}

// UpsertLearningProgress writes progress keyed by (user, module); a second
// write for the same key updates the existing row. Best effort.
func (s *Store) UpsertLearningProgress(ctx context.Context, p models.LearningProgress) {
	updated := p.UpdatedAt
	if updated.IsZero() {
		updated = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO learning_progress (user_id, module_id, progress, score, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(user_id, module_id) DO UPDATE SET
			progress = excluded.progress,
			score = excluded.score,
			updated_at = excluded.updated_at`,
		p.UserID, p.ModuleID, p.Progress, p.Score, updated.UTC())
	s.absorb("learning_progress", err)
}

// LoadLearningProgress returns all module progress rows for one user.
func (s *Store) LoadLearningProgress(ctx context.Context, userID string) ([]models.LearningProgress, error) {
	type row struct {
		UserID    string    `db:"user_id"`
		ModuleID  string    `db:"module_id"`
		Progress  float64   `db:"progress"`
		Score     float64   `db:"score"`
		UpdatedAt time.Time `db:"updated_at"`
	}
	var rows []row
	err := s.db.SelectContext(ctx, &rows,
		`SELECT user_id, module_id, progress, score, updated_at FROM learning_progress WHERE user_id = ?`, userID)
	if err != nil {
		return nil, err
	}
	out := make([]models.LearningProgress, 0, len(rows))
	for _, r := range rows {
		out = append(out, models.LearningProgress{
			UserID: r.UserID, ModuleID: r.ModuleID,
			Progress: r.Progress, Score: r.Score, UpdatedAt: r.UpdatedAt,
		})
	}
	return out, nil
}

// SavePredictions stores committed model predictions. Best effort.
func (s *Store) SavePredictions(ctx context.Context, preds []models.PredictionRecord) {
	for _, p := range preds {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO predictions (id, model_id, ts, predicted, confidence) VALUES (?, ?, ?, ?, ?)`,
			uuid.NewString(), p.ModelID, p.Timestamp.UTC(), mustJSON(p.Predicted), p.Confidence)
		s.absorb("predictions", err)
	}
}

// LoadPredictions returns all stored predictions for a model, oldest first.
func (s *Store) LoadPredictions(ctx context.Context, modelID string) ([]models.PredictionRecord, error) {
	type row struct {
		ModelID    string    `db:"model_id"`
		TS         time.Time `db:"ts"`
		Predicted  string    `db:"predicted"`
		Confidence float64   `db:"confidence"`
	}
	var rows []row
	err := s.db.SelectContext(ctx, &rows,
		`SELECT model_id, ts, predicted, confidence FROM predictions WHERE model_id = ? ORDER BY ts ASC`, modelID)
	if err != nil {
		return nil, err
	}
	out := make([]models.PredictionRecord, 0, len(rows))
	for _, r := range rows {
		var predicted any
		if err := json.Unmarshal([]byte(r.Predicted), &predicted); err != nil {
			predicted = r.Predicted
		}
		out = append(out, models.PredictionRecord{
			ModelID: r.ModelID, Timestamp: r.TS,
			Predicted: predicted, Confidence: r.Confidence,
		})
	}
	return out, nil
}

// SaveOutcomes stores realized ground-truth outcomes. Best effort.
func (s *Store) SaveOutcomes(ctx context.Context, outs []models.ActualOutcome) {
	for _, o := range outs {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO outcomes (id, ts, actual) VALUES (?, ?, ?)`,
			uuid.NewString(), o.Timestamp.UTC(), mustJSON(o.Actual))
		s.absorb("outcomes", err)
	}
}

// LoadOutcomes returns all stored outcomes, oldest first.
func (s *Store) LoadOutcomes(ctx context.Context) ([]models.ActualOutcome, error) {
	type row struct {
		TS     time.Time `db:"ts"`
		Actual string    `db:"actual"`
	}
	var rows []row
	if err := s.db.SelectContext(ctx, &rows, `SELECT ts, actual FROM outcomes ORDER BY ts ASC`); err != nil {
		return nil, err
	}
	out := make([]models.ActualOutcome, 0, len(rows))
	for _, r := range rows {
		var actual any
		if err := json.Unmarshal([]byte(r.Actual), &actual); err != nil {
			actual = r.Actual
		}
		out = append(out, models.ActualOutcome{Timestamp: r.TS, Actual: actual})
	}
	return out, nil
}

// SaveHotspots replaces the mined per-region hotspot rows. Best effort.
func (s *Store) SaveHotspots(ctx context.Context, hotspots []models.RegionHotspot) {
	for _, h := range hotspots {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO region_hotspots (region, event_count, prevalence, top_categories, max_severity, last_seen)
			 VALUES (?, ?, ?, ?, ?, ?)
			 ON CONFLICT(region) DO UPDATE SET
				event_count = excluded.event_count,
				prevalence = excluded.prevalence,
				top_categories = excluded.top_categories,
				max_severity = excluded.max_severity,
				last_seen = excluded.last_seen`,
			h.Region, h.EventCount, h.Prevalence, mustJSON(h.TopCategories),
			string(h.MaxSeverity), h.LastSeen.UTC())
		s.absorb("region_hotspots", err)
	}
}

func mustJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return "null"
	}
	return string(data)
}

func fromJSONList(raw string) []string {
	var out []string
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		if raw = strings.TrimSpace(raw); raw != "" && raw != "null" {
			return []string{raw}
		}
		return nil
	}
	return out
}
