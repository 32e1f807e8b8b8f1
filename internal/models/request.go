package models

import "time"

// RequestKind enumerates the analytical features served by the resolver.
type RequestKind string

const (
	KindTutorial       RequestKind = "tutorial"
	KindRiskAssessment RequestKind = "risk_assessment"
	KindSimulation     RequestKind = "simulation"
	KindCrisisScan     RequestKind = "crisis_scan"
	KindEconomicImpact RequestKind = "economic_impact"
)

// SourceKind identifies one candidate origin of analytical data.
type SourceKind string

const (
	SourceRemoteFunction SourceKind = "remote_function"
	SourceDirectAPI      SourceKind = "direct_api"
	SourceLocalFallback  SourceKind = "local_fallback"
)

// AttemptOutcome labels the result of a single source attempt.
type AttemptOutcome string

const (
	AttemptSuccess AttemptOutcome = "success"
	AttemptError   AttemptOutcome = "error"
)

// AnalyticalRequest identifies one feature invocation. Created once per user
// action or monitor tick and never mutated afterwards.
type AnalyticalRequest struct {
	Kind       RequestKind    `json:"kind"`
	Parameters map[string]any `json:"parameters"`
	IssuedAt   time.Time      `json:"issuedAt"`
}

// Param returns a string parameter, or the provided default when absent.
func (r AnalyticalRequest) Param(key, def string) string {
	if v, ok := r.Parameters[key]; ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	return def
}

// SourceAttempt records one try against one source during resolution.
type SourceAttempt struct {
	Source      SourceKind     `json:"source"`
	Outcome     AttemptOutcome `json:"outcome"`
	Latency     time.Duration  `json:"latencyMs"`
	ErrorReason string         `json:"errorReason,omitempty"`
}

// ResolvedResult is the output of the source resolver: the first successful
// payload together with the provenance of the source that produced it.
type ResolvedResult struct {
	Payload    Payload         `json:"payload"`
	Provenance SourceKind      `json:"provenance"`
	Attempts   []SourceAttempt `json:"attempts,omitempty"`
	ResolvedAt time.Time       `json:"resolvedAt"`
}
