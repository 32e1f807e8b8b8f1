package backtest

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/atlasintel/atlas-engine/internal/models"
	"github.com/atlasintel/atlas-engine/internal/utils"
)

// matchWindow is the maximum prediction-to-outcome distance considered a match.
const matchWindow = 24 * time.Hour

// BenchmarkSource supplies published reference scores for a benchmark task.
type BenchmarkSource interface {
	Scores(ctx context.Context, task string) ([]models.BenchmarkScore, error)
}

// Summarizer produces a narrative summary of a finished run. Optional; a
// failed summary never fails the run.
type Summarizer interface {
	GenerateText(ctx context.Context, prompt string) (string, error)
}

// Archive receives the run inputs for best-effort persistence.
type Archive interface {
	SavePredictions(ctx context.Context, preds []models.PredictionRecord)
	SaveOutcomes(ctx context.Context, outs []models.ActualOutcome)
}

// Engine scores historical predictions against realized outcomes and compares
// the result to published benchmarks.
type Engine struct {
	benchmarks BenchmarkSource
	summarizer Summarizer
	archive    Archive
	logger     *slog.Logger
}

// NewEngine wires a backtesting engine. benchmarks, summarizer and archive may
// each be nil; the corresponding report sections are skipped.
func NewEngine(logger *slog.Logger, benchmarks BenchmarkSource, summarizer Summarizer, archive Archive) *Engine {
	return &Engine{
		benchmarks: benchmarks,
		summarizer: summarizer,
		archive:    archive,
		logger:     utils.ComponentLogger(logger, "backtest"),
	}
}

// Run executes one backtest and assembles the full report.
func (e *Engine) Run(ctx context.Context, req models.BacktestRequest) (models.BacktestReport, error) {
	if len(req.Predictions) == 0 {
		return models.BacktestReport{}, fmt.Errorf("backtest %q: no predictions supplied", req.ModelID)
	}

	matches := matchOutcomes(req.Predictions, req.Actuals)
	metrics := computeMetrics(matches)
	temporal := analyzeTemporal(matches)

	report := models.BacktestReport{
		ID:          uuid.NewString(),
		ModelID:     req.ModelID,
		Matches:     matches,
		Metrics:     metrics,
		Temporal:    temporal,
		GeneratedAt: time.Now().UTC(),
	}

	for _, task := range req.BenchmarkTasks {
		cmp, err := e.compareBenchmark(ctx, task, metrics.Accuracy)
		if err != nil {
			e.logger.Warn("benchmark comparison skipped",
				slog.String("task", task), slog.Any("error", err))
			continue
		}
		report.Benchmarks = append(report.Benchmarks, cmp)
	}

	report.Recommendations = recommend(metrics, temporal, report.Benchmarks)
	report.Summary = e.summarize(ctx, report)

	if e.archive != nil {
		e.archive.SavePredictions(ctx, req.Predictions)
		e.archive.SaveOutcomes(ctx, req.Actuals)
	}

	e.logger.Info("backtest complete",
		slog.String("model_id", req.ModelID),
		slog.Int("predictions", metrics.PredictionCount),
		slog.Int("matched", metrics.MatchedCount),
		slog.Float64("accuracy", metrics.Accuracy))
	return report, nil
}

// matchOutcomes pairs every prediction with the nearest actual outcome within
// the match window. Predictions without a qualifying outcome are retained with
// a nil Actual so the report shows the full input set.
func matchOutcomes(preds []models.PredictionRecord, actuals []models.ActualOutcome) []models.MatchedResult {
	matches := make([]models.MatchedResult, 0, len(preds))
	for _, p := range preds {
		var best *models.ActualOutcome
		bestGap := matchWindow + 1
		for i := range actuals {
			gap := p.Timestamp.Sub(actuals[i].Timestamp)
			if gap < 0 {
				gap = -gap
			}
			if gap <= matchWindow && gap < bestGap {
				best = &actuals[i]
				bestGap = gap
			}
		}
		m := models.MatchedResult{Prediction: p}
		if best != nil {
			outcome := *best
			m.Actual = &outcome
			m.Deviation = deviation(p.Predicted, outcome.Actual)
		}
		matches = append(matches, m)
	}
	return matches
}

// deviation scores the distance between a prediction and its outcome: absolute
// difference for numeric values, exact-match for strings, zero otherwise.
func deviation(predicted, actual any) float64 {
	pNum, pOK := toFloat(predicted)
	aNum, aOK := toFloat(actual)
	if pOK && aOK {
		return math.Abs(pNum - aNum)
	}
	pStr, pOK := predicted.(string)
	aStr, aOK := actual.(string)
	if pOK && aOK {
		if strings.EqualFold(strings.TrimSpace(pStr), strings.TrimSpace(aStr)) {
			return 0
		}
		return 1
	}
	return 0
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

func computeMetrics(matches []models.MatchedResult) models.PerformanceMetrics {
	m := models.PerformanceMetrics{PredictionCount: len(matches)}
	if len(matches) == 0 {
		return m
	}

	var (
		deviations []float64
		confidence float64
		residuals  float64
		actualVals []float64
		minTS      time.Time
		maxTS      time.Time
	)
	for _, match := range matches {
		confidence += match.Prediction.Confidence
		ts := match.Prediction.Timestamp
		if minTS.IsZero() || ts.Before(minTS) {
			minTS = ts
		}
		if ts.After(maxTS) {
			maxTS = ts
		}
		if match.Actual == nil {
			continue
		}
		deviations = append(deviations, match.Deviation)
		if aNum, ok := toFloat(match.Actual.Actual); ok {
			if _, pOK := toFloat(match.Prediction.Predicted); pOK {
				actualVals = append(actualVals, aNum)
				residuals += match.Deviation * match.Deviation
			}
		}
	}

	m.MatchedCount = len(deviations)
	m.AverageConfidence = confidence / float64(len(matches))
	if !minTS.IsZero() {
		m.TimeSpanDays = maxTS.Sub(minTS).Hours() / 24
	}
	if m.MatchedCount == 0 {
		return m
	}

	var exact int
	var sqSum float64
	for _, d := range deviations {
		if d == 0 {
			exact++
		}
		sqSum += d * d
	}
	m.Accuracy = float64(exact) / float64(m.MatchedCount)
	// Single-class scoring: downstream consumers read these three as accuracy.
	m.Precision = m.Accuracy
	m.Recall = m.Accuracy
	m.F1 = m.Accuracy
	m.MAE = mean(deviations)
	m.RMSE = math.Sqrt(sqSum / float64(m.MatchedCount))
	m.R2 = rSquared(actualVals, residuals)
	return m
}

// rSquared computes the coefficient of determination from the residual sum of
// squares. Zero-variance ground truth yields 0 rather than a division blowup.
func rSquared(actuals []float64, residualSS float64) float64 {
	if len(actuals) == 0 {
		return 0
	}
	m := mean(actuals)
	var totalSS float64
	for _, a := range actuals {
		d := a - m
		totalSS += d * d
	}
	if totalSS == 0 {
		return 0
	}
	return 1 - residualSS/totalSS
}

// analyzeTemporal examines deviation drift across the matched window.
func analyzeTemporal(matches []models.MatchedResult) models.TemporalAnalysis {
	ordered := make([]models.MatchedResult, 0, len(matches))
	for _, m := range matches {
		if m.Actual != nil {
			ordered = append(ordered, m)
		}
	}
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].Prediction.Timestamp.Before(ordered[j].Prediction.Timestamp)
	})

	deviations := make([]float64, len(ordered))
	for i, m := range ordered {
		deviations[i] = m.Deviation
	}

	ta := models.TemporalAnalysis{
		MeanDeviation: mean(deviations),
		Volatility:    populationStdDev(deviations),
	}
	if len(deviations) == 0 {
		ta.Trend = models.TrendStable
		return ta
	}
	ta.Trend = TrendForMean(ta.MeanDeviation)
	return ta
}

// TrendForMean maps a mean deviation onto the trend label scale.
func TrendForMean(meanDeviation float64) string {
	switch {
	case meanDeviation < 0.1:
		return models.TrendImproving
	case meanDeviation > 0.3:
		return models.TrendDeclining
	default:
		return models.TrendStable
	}
}

// compareBenchmark fetches the published scores for one task and positions our
// accuracy against them.
func (e *Engine) compareBenchmark(ctx context.Context, task string, ourScore float64) (models.BenchmarkComparison, error) {
	if e.benchmarks == nil {
		return models.BenchmarkComparison{}, fmt.Errorf("no benchmark source configured")
	}
	scores, err := e.benchmarks.Scores(ctx, task)
	if err != nil {
		return models.BenchmarkComparison{}, err
	}
	if len(scores) == 0 {
		return models.BenchmarkComparison{}, fmt.Errorf("task %q has no published scores", task)
	}

	values := make([]float64, len(scores))
	best := scores[0].Score
	for i, s := range scores {
		values[i] = s.Score
		if s.Score > best {
			best = s.Score
		}
	}

	cmp := models.BenchmarkComparison{
		Task:          task,
		OurScore:      ourScore,
		BestBenchmark: best,
		Scores:        scores,
	}
	if best != 0 {
		cmp.PerformanceRatio = ourScore / best
	}
	cmp.Significance = significance(ourScore, values)
	return cmp, nil
}

// significance runs a one-sample t-test of our score against the benchmark
// score distribution.
func significance(ourScore float64, scores []float64) models.SignificanceResult {
	res := models.SignificanceResult{
		DegreesOfFreedom:   len(scores) - 1,
		PValue:             1,
		ConfidenceInterval: [2]float64{ourScore, ourScore},
	}
	if len(scores) < 2 {
		return res
	}
	std := sampleStdDev(scores)
	if std == 0 {
		return res
	}

	stderr := std / math.Sqrt(float64(len(scores)))
	res.TStatistic = (ourScore - mean(scores)) / stderr
	res.PValue = pValueForT(res.TStatistic)
	res.IsSignificant = res.PValue < 0.05
	res.ConfidenceInterval = [2]float64{ourScore - 1.96*stderr, ourScore + 1.96*stderr}
	return res
}

// recommend derives actionable guidance from the scored run.
func recommend(m models.PerformanceMetrics, ta models.TemporalAnalysis, benchmarks []models.BenchmarkComparison) []string {
	var recs []string

	if m.MatchedCount == 0 {
		recs = append(recs, "No predictions matched a realized outcome within 24h; verify outcome feed coverage before drawing conclusions.")
		return recs
	}
	if ratio := float64(m.MatchedCount) / float64(m.PredictionCount); ratio < 0.5 {
		recs = append(recs, fmt.Sprintf("Only %.0f%% of predictions found a matching outcome; widen outcome collection or align prediction timestamps.", ratio*100))
	}
	if m.Accuracy < 0.6 {
		recs = append(recs, "Accuracy is below 60%; retrain the model or revisit its feature inputs.")
	}
	if m.AverageConfidence > 0.8 && m.Accuracy < 0.7 {
		recs = append(recs, "The model is overconfident relative to its accuracy; recalibrate confidence estimates.")
	}
	if ta.Trend == models.TrendDeclining {
		recs = append(recs, "Prediction error is drifting upward over time; check for regime change in the underlying signals.")
	}
	if ta.Volatility > 0.25 {
		recs = append(recs, "Prediction error is highly volatile; consider ensembling or smoothing model outputs.")
	}
	for _, b := range benchmarks {
		if b.PerformanceRatio > 0 && b.PerformanceRatio < 0.9 {
			recs = append(recs, fmt.Sprintf("Performance trails the %s benchmark leader by more than 10%%; study the top entries for methodology gaps.", b.Task))
		}
	}
	if len(recs) == 0 {
		recs = append(recs, "Performance is within expected bounds; continue monitoring on the current cadence.")
	}
	return recs
}

// summarize asks the generative upstream for a narrative. Failures degrade to
// an empty summary.
func (e *Engine) summarize(ctx context.Context, report models.BacktestReport) string {
	if e.summarizer == nil {
		return ""
	}
	prompt := fmt.Sprintf(
		"Summarize this model backtest in two sentences for an analyst. Model %s: accuracy %.2f, MAE %.2f, RMSE %.2f, R2 %.2f over %d matched predictions spanning %.1f days. Error trend: %s.",
		report.ModelID, report.Metrics.Accuracy, report.Metrics.MAE, report.Metrics.RMSE,
		report.Metrics.R2, report.Metrics.MatchedCount, report.Metrics.TimeSpanDays, report.Temporal.Trend)

	summary, err := e.summarizer.GenerateText(ctx, prompt)
	if err != nil {
		e.logger.Warn("backtest summary unavailable", slog.Any("error", err))
		return ""
	}
	return strings.TrimSpace(summary)
}
