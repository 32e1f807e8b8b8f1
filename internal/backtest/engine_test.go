package backtest

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/atlasintel/atlas-engine/internal/models"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func pred(offset time.Duration, outcome any, confidence float64) models.PredictionRecord {
	return models.PredictionRecord{
		ModelID:    "model-a",
		Timestamp:  t0.Add(offset),
		Predicted:  outcome,
		Confidence: confidence,
	}
}

func actual(offset time.Duration, outcome any) models.ActualOutcome {
	return models.ActualOutcome{Timestamp: t0.Add(offset), Actual: outcome}
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestMatchOutcomesWindow(t *testing.T) {
	preds := []models.PredictionRecord{
		pred(0, 1.0, 0.9),
		pred(48*time.Hour, 1.0, 0.9),
	}
	actuals := []models.ActualOutcome{
		actual(23*time.Hour, 1.0),            // 23h from the first prediction
		actual(48*time.Hour+25*time.Hour, 1), // 25h from the second
	}

	matches := matchOutcomes(preds, actuals)
	if len(matches) != 2 {
		t.Fatalf("expected both predictions retained, got %d", len(matches))
	}
	if matches[0].Actual == nil {
		t.Error("a 23h gap should match")
	}
	if matches[1].Actual != nil {
		t.Error("a 25h gap must not match")
	}
}

func TestMatchOutcomesPicksNearest(t *testing.T) {
	preds := []models.PredictionRecord{pred(0, 5.0, 0.9)}
	actuals := []models.ActualOutcome{
		actual(-10*time.Hour, 1.0),
		actual(2*time.Hour, 4.0),
		actual(20*time.Hour, 9.0),
	}

	matches := matchOutcomes(preds, actuals)
	if matches[0].Actual == nil {
		t.Fatal("expected a match")
	}
	if got, _ := toFloat(matches[0].Actual.Actual); got != 4.0 {
		t.Fatalf("expected the 2h-away outcome, got %v", got)
	}
	if !almostEqual(matches[0].Deviation, 1.0) {
		t.Errorf("Deviation = %v, want 1.0", matches[0].Deviation)
	}
}

func TestDeviation(t *testing.T) {
	tests := []struct {
		name      string
		predicted any
		actual    any
		want      float64
	}{
		{"numeric gap", 0.8, 0.6, 0.2},
		{"int and float mix", 3, 1.5, 1.5},
		{"identical strings", "escalation", "escalation", 0},
		{"string case folded", " Escalation ", "escalation", 0},
		{"different strings", "A", "B", 1},
		{"incomparable types", true, "yes", 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := deviation(tc.predicted, tc.actual); !almostEqual(got, tc.want) {
				t.Errorf("deviation(%v, %v) = %v, want %v", tc.predicted, tc.actual, got, tc.want)
			}
		})
	}
}

func TestCategoricalAccuracyHalfRight(t *testing.T) {
	preds := []models.PredictionRecord{
		pred(0, "A", 0.8),
		pred(100*time.Second, "B", 0.8),
	}
	actuals := []models.ActualOutcome{
		actual(1*time.Second, "A"),
		actual(101*time.Second, "C"),
	}

	matches := matchOutcomes(preds, actuals)
	if !almostEqual(matches[0].Deviation, 0) || !almostEqual(matches[1].Deviation, 1) {
		t.Fatalf("deviations = [%v, %v], want [0, 1]", matches[0].Deviation, matches[1].Deviation)
	}

	m := computeMetrics(matches)
	if !almostEqual(m.Accuracy, 0.5) {
		t.Errorf("Accuracy = %v, want 0.5", m.Accuracy)
	}
	if m.Precision != m.Accuracy || m.Recall != m.Accuracy || m.F1 != m.Accuracy {
		t.Error("precision, recall and f1 must mirror accuracy")
	}
}

func TestComputeMetricsNumeric(t *testing.T) {
	matches := matchOutcomes(
		[]models.PredictionRecord{
			pred(0, 0.8, 0.9),
			pred(24*time.Hour, 0.4, 0.7),
		},
		[]models.ActualOutcome{
			actual(0, 0.6),
			actual(24*time.Hour, 0.5),
		},
	)

	m := computeMetrics(matches)
	if m.PredictionCount != 2 || m.MatchedCount != 2 {
		t.Fatalf("counts = (%d, %d), want (2, 2)", m.PredictionCount, m.MatchedCount)
	}
	if !almostEqual(m.MAE, 0.15) {
		t.Errorf("MAE = %v, want 0.15", m.MAE)
	}
	wantRMSE := math.Sqrt((0.2*0.2 + 0.1*0.1) / 2)
	if !almostEqual(m.RMSE, wantRMSE) {
		t.Errorf("RMSE = %v, want %v", m.RMSE, wantRMSE)
	}
	if !almostEqual(m.AverageConfidence, 0.8) {
		t.Errorf("AverageConfidence = %v, want 0.8", m.AverageConfidence)
	}
	if !almostEqual(m.TimeSpanDays, 1) {
		t.Errorf("TimeSpanDays = %v, want 1", m.TimeSpanDays)
	}
}

func TestRSquaredZeroVarianceGuard(t *testing.T) {
	matches := matchOutcomes(
		[]models.PredictionRecord{pred(0, 0.7, 0.9), pred(time.Hour, 0.4, 0.9)},
		[]models.ActualOutcome{actual(0, 0.5), actual(time.Hour, 0.5)},
	)
	m := computeMetrics(matches)
	if m.R2 != 0 {
		t.Fatalf("R2 = %v, want 0 for constant ground truth", m.R2)
	}
}

func TestTemporalTrendLabels(t *testing.T) {
	tests := []struct {
		mean float64
		want string
	}{
		{0.05, models.TrendImproving},
		{0.2, models.TrendStable},
		{0.4, models.TrendDeclining},
	}
	for _, tc := range tests {
		if got := TrendForMean(tc.mean); got != tc.want {
			t.Errorf("TrendForMean(%v) = %q, want %q", tc.mean, got, tc.want)
		}
	}
}

func TestSignificance(t *testing.T) {
	res := significance(0.9, []float64{0.5, 0.6, 0.7})

	if res.DegreesOfFreedom != 2 {
		t.Errorf("DegreesOfFreedom = %d, want 2", res.DegreesOfFreedom)
	}
	stderr := 0.1 / math.Sqrt(3)
	wantT := (0.9 - 0.6) / stderr
	if math.Abs(res.TStatistic-wantT) > 1e-6 {
		t.Errorf("TStatistic = %v, want %v", res.TStatistic, wantT)
	}
	if res.PValue != 0.01 || !res.IsSignificant {
		t.Errorf("expected significant at p=0.01, got p=%v significant=%v", res.PValue, res.IsSignificant)
	}
	if math.Abs(res.ConfidenceInterval[0]-(0.9-1.96*stderr)) > 1e-6 {
		t.Errorf("CI lower = %v", res.ConfidenceInterval[0])
	}
}

func TestSignificanceDegenerateDistributions(t *testing.T) {
	single := significance(0.9, []float64{0.5})
	if single.IsSignificant || single.PValue != 1 {
		t.Error("one benchmark score cannot be significant")
	}
	flat := significance(0.9, []float64{0.5, 0.5, 0.5})
	if flat.IsSignificant {
		t.Error("zero-variance scores cannot be significant")
	}
}

type benchmarkStub struct {
	scores map[string][]models.BenchmarkScore
	err    error
}

func (b *benchmarkStub) Scores(_ context.Context, task string) ([]models.BenchmarkScore, error) {
	if b.err != nil {
		return nil, b.err
	}
	return b.scores[task], nil
}

type summarizerStub struct {
	text string
	err  error
}

func (s *summarizerStub) GenerateText(context.Context, string) (string, error) {
	return s.text, s.err
}

func TestRunAssemblesReport(t *testing.T) {
	engine := NewEngine(nil, &benchmarkStub{scores: map[string][]models.BenchmarkScore{
		"forecasting": {
			{Name: "baseline", Score: 0.6},
			{Name: "leader", Score: 0.8},
			{Name: "median", Score: 0.7},
		},
	}}, &summarizerStub{text: "Solid run."}, nil)

	report, err := engine.Run(context.Background(), models.BacktestRequest{
		ModelID: "model-a",
		Predictions: []models.PredictionRecord{
			pred(0, "A", 0.9),
			pred(time.Hour, "B", 0.9),
		},
		Actuals: []models.ActualOutcome{
			actual(time.Minute, "A"),
			actual(time.Hour+time.Minute, "B"),
		},
		BenchmarkTasks: []string{"forecasting"},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if report.ID == "" || report.ModelID != "model-a" {
		t.Errorf("report identity incomplete: %+v", report)
	}
	if !almostEqual(report.Metrics.Accuracy, 1.0) {
		t.Errorf("Accuracy = %v, want 1.0", report.Metrics.Accuracy)
	}
	if len(report.Benchmarks) != 1 {
		t.Fatalf("expected 1 benchmark comparison, got %d", len(report.Benchmarks))
	}
	cmp := report.Benchmarks[0]
	if cmp.BestBenchmark != 0.8 {
		t.Errorf("BestBenchmark = %v, want 0.8", cmp.BestBenchmark)
	}
	if !almostEqual(cmp.PerformanceRatio, 1.0/0.8) {
		t.Errorf("PerformanceRatio = %v, want %v", cmp.PerformanceRatio, 1.0/0.8)
	}
	if report.Summary != "Solid run." {
		t.Errorf("Summary = %q", report.Summary)
	}
	if len(report.Recommendations) == 0 {
		t.Error("expected at least one recommendation")
	}
}

func TestRunToleratesBenchmarkAndSummaryFailures(t *testing.T) {
	engine := NewEngine(nil,
		&benchmarkStub{err: errors.New("leaderboard down")},
		&summarizerStub{err: errors.New("generation failed")},
		nil)

	report, err := engine.Run(context.Background(), models.BacktestRequest{
		ModelID:        "model-a",
		Predictions:    []models.PredictionRecord{pred(0, 1.0, 0.9)},
		Actuals:        []models.ActualOutcome{actual(0, 1.0)},
		BenchmarkTasks: []string{"forecasting"},
	})
	if err != nil {
		t.Fatalf("Run should absorb benchmark and summary failures: %v", err)
	}
	if len(report.Benchmarks) != 0 {
		t.Error("failed benchmark fetch should drop the comparison")
	}
	if report.Summary != "" {
		t.Error("failed summary should leave Summary empty")
	}
}

func TestRunRequiresPredictions(t *testing.T) {
	engine := NewEngine(nil, nil, nil, nil)
	if _, err := engine.Run(context.Background(), models.BacktestRequest{ModelID: "m"}); err == nil {
		t.Fatal("expected an error for an empty prediction set")
	}
}

func TestRecommendNoMatches(t *testing.T) {
	recs := recommend(models.PerformanceMetrics{PredictionCount: 3}, models.TemporalAnalysis{Trend: models.TrendStable}, nil)
	if len(recs) != 1 {
		t.Fatalf("expected a single no-match recommendation, got %v", recs)
	}
}
