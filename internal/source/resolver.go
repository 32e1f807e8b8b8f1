package source

import (
	"context"
	"log/slog"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/atlasintel/atlas-engine/internal/metrics"
	"github.com/atlasintel/atlas-engine/internal/models"
)

// Recorder receives best-effort telemetry about completed resolutions.
type Recorder interface {
	RecordResolution(ctx context.Context, req models.AnalyticalRequest, res models.ResolvedResult)
}

// Resolver tries an ordered list of sources and returns the first success.
// Attempts are strictly sequential; a source is tried at most once per
// request. When every source fails the caller receives a single
// AnalysisUnavailableError instead of raw sub-errors.
type Resolver struct {
	sources  []Source
	recorder Recorder
	logger   *slog.Logger
}

// NewResolver constructs a resolver over the given priority-ordered sources.
// recorder may be nil when resolution history is not wanted.
func NewResolver(logger *slog.Logger, recorder Recorder, sources ...Source) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{sources: sources, recorder: recorder, logger: logger}
}

// Resolve runs the source chain for one analytical request.
func (r *Resolver) Resolve(ctx context.Context, req models.AnalyticalRequest) (models.ResolvedResult, error) {
	start := time.Now()
	attempts := make([]models.SourceAttempt, 0, len(r.sources))
	var failures *multierror.Error

	for _, src := range r.sources {
		if err := ctx.Err(); err != nil {
			return models.ResolvedResult{}, err
		}

		attemptStart := time.Now()
		payload, err := src.Attempt(ctx, req)
		latency := time.Since(attemptStart)

		if err != nil {
			attempts = append(attempts, models.SourceAttempt{
				Source:      src.Kind(),
				Outcome:     models.AttemptError,
				Latency:     latency,
				ErrorReason: err.Error(),
			})
			failures = multierror.Append(failures, &models.UpstreamError{Source: src.Kind(), Err: err})
			metrics.ObserveSourceFailure(string(src.Kind()))
			r.logger.Debug("source attempt failed",
				slog.String("kind", string(req.Kind)),
				slog.String("source", string(src.Kind())),
				slog.Any("error", err))
			continue
		}

		attempts = append(attempts, models.SourceAttempt{
			Source:  src.Kind(),
			Outcome: models.AttemptSuccess,
			Latency: latency,
		})
		result := models.ResolvedResult{
			Payload:    payload,
			Provenance: src.Kind(),
			Attempts:   attempts,
			ResolvedAt: time.Now().UTC(),
		}
		metrics.ObserveResolution(string(req.Kind), string(src.Kind()), time.Since(start), metrics.OutcomeSuccess)

		if r.recorder != nil {
			// Fire and forget: history must never delay or fail the result.
			go func(res models.ResolvedResult) {
				recCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				r.recorder.RecordResolution(recCtx, req, res)
			}(result)
		}
		return result, nil
	}

	metrics.ObserveResolution(string(req.Kind), "none", time.Since(start), metrics.OutcomeError)
	return models.ResolvedResult{}, &models.AnalysisUnavailableError{
		Kind:     req.Kind,
		Attempts: attempts,
		Err:      failures.ErrorOrNil(),
	}
}
