package store

import (
	"context"
	"testing"
	"time"

	"github.com/atlasintel/atlas-engine/internal/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:", nil)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestRiskAssessmentExpiryFilter(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	fresh := models.RiskAssessment{Region: "baltics", RiskScore: 62, ConfidenceInterval: []float64{55, 70}}
	stale := models.RiskAssessment{Region: "sahel", RiskScore: 48}

	s.SaveRiskAssessments(ctx, []models.RiskAssessment{fresh}, time.Hour)
	s.SaveRiskAssessments(ctx, []models.RiskAssessment{stale}, -time.Minute)

	got, err := s.LoadRiskAssessments(ctx, "")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(got) != 1 || got[0].Region != "baltics" {
		t.Fatalf("expected only the fresh assessment, got %+v", got)
	}
	if got[0].ConfidenceInterval[0] != 55 || got[0].ConfidenceInterval[1] != 70 {
		t.Fatalf("confidence interval not preserved: %+v", got[0].ConfidenceInterval)
	}
}

func TestLearningProgressUpsert(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	s.UpsertLearningProgress(ctx, models.LearningProgress{UserID: "u1", ModuleID: "nash-eq", Progress: 0.4, Score: 60})
	s.UpsertLearningProgress(ctx, models.LearningProgress{UserID: "u1", ModuleID: "nash-eq", Progress: 0.9, Score: 85})

	rows, err := s.LoadLearningProgress(ctx, "u1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected a single upserted row, got %d", len(rows))
	}
	if rows[0].Progress != 0.9 || rows[0].Score != 85 {
		t.Fatalf("second write did not update the row: %+v", rows[0])
	}
}

func TestPredictionRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	ts := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	s.SavePredictions(ctx, []models.PredictionRecord{
		{ModelID: "m1", Timestamp: ts, Predicted: "escalation", Confidence: 0.8},
		{ModelID: "m1", Timestamp: ts.Add(time.Hour), Predicted: 42.5, Confidence: 0.6},
	})

	preds, err := s.LoadPredictions(ctx, "m1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(preds) != 2 {
		t.Fatalf("expected 2 predictions, got %d", len(preds))
	}
	if preds[0].Predicted != "escalation" {
		t.Fatalf("categorical prediction mangled: %v", preds[0].Predicted)
	}
	if v, ok := preds[1].Predicted.(float64); !ok || v != 42.5 {
		t.Fatalf("numeric prediction mangled: %v", preds[1].Predicted)
	}
}

func TestCrisisEventUpsertById(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	ev := models.CrisisEvent{
		ID: "strait-blockade", Title: "Strait blockade", Region: "East Asia",
		Severity: models.SeverityHigh, Category: "military",
		EscalationProbability: 70, Confidence: 0.7, FirstSeenAt: time.Now(),
	}
	s.SaveCrisisEvents(ctx, []models.CrisisEvent{ev})
	ev.Severity = models.SeverityCritical
	ev.EscalationProbability = 90
	s.SaveCrisisEvents(ctx, []models.CrisisEvent{ev})

	var count int
	if err := s.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM crisis_events`); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected upsert to keep one row, got %d", count)
	}
	var severity string
	if err := s.db.GetContext(ctx, &severity, `SELECT severity FROM crisis_events WHERE id = ?`, ev.ID); err != nil {
		t.Fatalf("severity: %v", err)
	}
	if severity != string(models.SeverityCritical) {
		t.Fatalf("severity not updated: %s", severity)
	}
}

func TestRecordResolutionPersistsPayloadRows(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	req := models.AnalyticalRequest{Kind: models.KindRiskAssessment, IssuedAt: time.Now()}
	res := models.ResolvedResult{
		Payload: models.RiskAssessmentPayload{Assessments: []models.RiskAssessment{
			{Region: "caucasus", RiskScore: 58},
		}},
		Provenance: models.SourceLocalFallback,
		Attempts:   []models.SourceAttempt{{Source: models.SourceLocalFallback, Outcome: models.AttemptSuccess}},
		ResolvedAt: time.Now(),
	}
	s.RecordResolution(ctx, req, res)

	var history int
	if err := s.db.GetContext(ctx, &history, `SELECT COUNT(*) FROM resolution_history`); err != nil {
		t.Fatalf("history count: %v", err)
	}
	if history != 1 {
		t.Fatalf("expected 1 history row, got %d", history)
	}

	assessments, err := s.LoadRiskAssessments(ctx, "caucasus")
	if err != nil {
		t.Fatalf("load assessments: %v", err)
	}
	if len(assessments) != 1 {
		t.Fatalf("resolved risk payload was not persisted: %+v", assessments)
	}
}
