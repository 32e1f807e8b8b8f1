package models

import "fmt"

// UpstreamError wraps the failure of a single source attempt. Other sources may
// still satisfy the request, so it never reaches feature callers directly.
type UpstreamError struct {
	Source SourceKind
	Err    error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream %s unavailable: %v", e.Source, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// MalformedPayloadError reports a generative response that did not parse into
// the expected schema. Treated as a source failure by the resolver.
type MalformedPayloadError struct {
	Source SourceKind
	Kind   RequestKind
	Err    error
}

func (e *MalformedPayloadError) Error() string {
	return fmt.Sprintf("malformed %s payload from %s: %v", e.Kind, e.Source, e.Err)
}

func (e *MalformedPayloadError) Unwrap() error { return e.Err }

// AnalysisUnavailableError is the only resolution failure surfaced to callers:
// every configured source was attempted and none produced a usable payload.
type AnalysisUnavailableError struct {
	Kind     RequestKind
	Attempts []SourceAttempt
	Err      error
}

func (e *AnalysisUnavailableError) Error() string {
	return fmt.Sprintf("analysis unavailable for %s: all %d sources failed", e.Kind, len(e.Attempts))
}

func (e *AnalysisUnavailableError) Unwrap() error { return e.Err }
