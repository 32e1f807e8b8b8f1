package models

import "time"

// PredictionRecord is a model prediction committed before ground truth is known.
type PredictionRecord struct {
	ModelID    string    `json:"modelId"`
	Timestamp  time.Time `json:"timestamp"`
	Predicted  any       `json:"predictedOutcome"`
	Confidence float64   `json:"confidence"`
}

// ActualOutcome is the realized ground truth produced externally.
type ActualOutcome struct {
	Timestamp time.Time `json:"timestamp"`
	Actual    any       `json:"actualOutcome"`
}

// MatchedResult pairs a prediction with the nearest actual outcome within the
// matching window. Actual is nil for unmatched predictions, in which case
// Deviation is undefined and the row is excluded from metric math.
type MatchedResult struct {
	Prediction PredictionRecord `json:"prediction"`
	Actual     *ActualOutcome   `json:"actual,omitempty"`
	Deviation  float64          `json:"deviation"`
}

// PerformanceMetrics aggregates accuracy metrics over matched results.
// Precision, recall and f1 intentionally mirror accuracy: single-class scoring
// is the shipped default and callers relying on it must not be broken.
type PerformanceMetrics struct {
	Accuracy          float64 `json:"accuracy"`
	Precision         float64 `json:"precision"`
	Recall            float64 `json:"recall"`
	F1                float64 `json:"f1"`
	MAE               float64 `json:"mae"`
	RMSE              float64 `json:"rmse"`
	R2                float64 `json:"r2"`
	PredictionCount   int     `json:"predictionCount"`
	MatchedCount      int     `json:"matchedCount"`
	TimeSpanDays      float64 `json:"timeSpanDays"`
	AverageConfidence float64 `json:"averageConfidence"`
}

// BenchmarkScore is an externally published reference score. Never mutated locally.
type BenchmarkScore struct {
	Name      string  `json:"name"`
	Score     float64 `json:"score"`
	SourceURL string  `json:"sourceUrl"`
}

// SignificanceResult summarises a two-sample comparison of our score against a
// benchmark score distribution.
type SignificanceResult struct {
	TStatistic         float64    `json:"tStatistic"`
	DegreesOfFreedom   int        `json:"degreesOfFreedom"`
	PValue             float64    `json:"pValue"`
	IsSignificant      bool       `json:"isSignificant"`
	ConfidenceInterval [2]float64 `json:"confidenceInterval"`
}

// BenchmarkComparison relates model performance to one benchmark task.
type BenchmarkComparison struct {
	Task             string             `json:"task"`
	OurScore         float64            `json:"ourScore"`
	BestBenchmark    float64            `json:"bestBenchmark"`
	PerformanceRatio float64            `json:"performanceRatio"`
	Significance     SignificanceResult `json:"significance"`
	Scores           []BenchmarkScore   `json:"scores"`
}

// TemporalAnalysis reports deviation drift over the matched window.
type TemporalAnalysis struct {
	Trend         string  `json:"trend"`
	MeanDeviation float64 `json:"meanDeviation"`
	Volatility    float64 `json:"volatility"`
}

// Trend direction labels produced by the temporal analysis.
const (
	TrendImproving = "improving"
	TrendStable    = "stable"
	TrendDeclining = "declining"
)

// BacktestRequest bundles the inputs of one backtesting run.
type BacktestRequest struct {
	ModelID        string             `json:"modelId"`
	Predictions    []PredictionRecord `json:"predictions"`
	Actuals        []ActualOutcome    `json:"actuals"`
	BenchmarkTasks []string           `json:"benchmarkTasks"`
}

// BacktestReport is the structured output of the backtesting engine.
type BacktestReport struct {
	ID              string                `json:"id"`
	ModelID         string                `json:"modelId"`
	Matches         []MatchedResult       `json:"matches"`
	Metrics         PerformanceMetrics    `json:"metrics"`
	Benchmarks      []BenchmarkComparison `json:"benchmarks"`
	Temporal        TemporalAnalysis      `json:"temporal"`
	Summary         string                `json:"summary,omitempty"`
	Recommendations []string              `json:"recommendations"`
	GeneratedAt     time.Time             `json:"generatedAt"`
}
