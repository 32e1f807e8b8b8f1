// Package source implements the resilient acquisition pipeline: an ordered
// chain of data sources tried one after another until a usable payload is
// produced, with the winning source recorded as provenance.
package source

import (
	"context"

	"github.com/atlasintel/atlas-engine/internal/models"
)

// Source is one candidate origin of analytical data. Attempt either returns a
// valid, schema-checked payload or an error; the resolver never retries the
// same source twice within one resolution.
type Source interface {
	Kind() models.SourceKind
	Attempt(ctx context.Context, req models.AnalyticalRequest) (models.Payload, error)
}
