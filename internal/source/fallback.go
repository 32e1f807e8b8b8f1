package source

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"math"
	"math/rand"
	"sort"
	"strings"

	"github.com/atlasintel/atlas-engine/internal/models"
)

var fallbackRegions = []string{"Eastern Europe", "South China Sea", "Middle East", "Sahel", "South Asia"}

var fallbackCategories = []string{"military", "economic", "diplomatic", "cyber", "humanitarian"}

// FallbackSource synthesizes a deterministic payload locally when every
// network tier is unavailable or disabled. The same request always produces
// the same payload, so degraded features stay stable between retries.
type FallbackSource struct{}

// NewFallbackSource returns the last-resort source.
func NewFallbackSource() *FallbackSource { return &FallbackSource{} }

// Kind identifies this source as the local synthesis tier.
func (s *FallbackSource) Kind() models.SourceKind { return models.SourceLocalFallback }

// Attempt synthesizes the payload for the request kind. It never touches the
// network and only fails for unknown kinds.
func (s *FallbackSource) Attempt(_ context.Context, req models.AnalyticalRequest) (models.Payload, error) {
	rng := rand.New(rand.NewSource(requestSeed(req)))

	switch req.Kind {
	case models.KindTutorial:
		concept := req.Param("concept", "Nash equilibrium")
		return models.TutorialPayload{
			Concept:             concept,
			Explanation:         fmt.Sprintf("%s describes a state in which no actor can improve its position by unilaterally changing strategy.", concept),
			GeopoliticalExample: fmt.Sprintf("Two rival powers locked in a trade standoff illustrate %s: neither side defects because retaliation erases any gain.", strings.ToLower(concept)),
			InteractiveElement:  "Adjust each actor's payoff matrix and observe where the equilibrium settles.",
			AssessmentQuestion:  fmt.Sprintf("Which condition must hold for a %s to exist?", strings.ToLower(concept)),
		}, nil

	case models.KindRiskAssessment:
		region := req.Param("region", "")
		regions := fallbackRegions
		if region != "" {
			regions = []string{region}
		}
		assessments := make([]models.RiskAssessment, 0, len(regions))
		for _, r := range regions {
			score := 30 + rng.Float64()*50
			assessments = append(assessments, models.RiskAssessment{
				Region:             r,
				RiskScore:          round1(score),
				ConfidenceInterval: []float64{round1(score - 8), round1(score + 8)},
				PrimaryDrivers:     pickN(rng, []string{"territorial disputes", "sanctions pressure", "energy dependence", "electoral instability", "alliance drift"}, 3),
				Scenarios:          pickN(rng, []string{"status quo holds", "gradual escalation", "negotiated settlement", "frozen conflict"}, 3),
			})
		}
		return models.RiskAssessmentPayload{Assessments: assessments}, nil

	case models.KindSimulation:
		scenario := req.Param("scenario", "regional standoff")
		outcomes := []models.SimulationOutcome{
			{Name: "de-escalation", Description: "Back-channel talks reduce tension over several months."},
			{Name: "stalemate", Description: "Positions harden but neither side escalates."},
			{Name: "escalation", Description: "An incident triggers a retaliatory spiral."},
		}
		remaining := 1.0
		for i := range outcomes {
			if i == len(outcomes)-1 {
				outcomes[i].Probability = round2(remaining)
				break
			}
			p := round2(remaining * (0.3 + rng.Float64()*0.4))
			outcomes[i].Probability = p
			remaining -= p
		}
		return models.SimulationPayload{
			Scenario:       scenario,
			Iterations:     1000,
			Outcomes:       outcomes,
			ExpectedPayoff: round2(rng.Float64()*2 - 1),
		}, nil

	case models.KindCrisisScan:
		events := make([]models.CrisisEvent, 0, 3)
		for i := 0; i < 3; i++ {
			region := fallbackRegions[rng.Intn(len(fallbackRegions))]
			category := fallbackCategories[rng.Intn(len(fallbackCategories))]
			events = append(events, models.CrisisEvent{
				Title:                 fmt.Sprintf("%s tension flashpoint in %s", capitalize(category), region),
				Region:                region,
				Severity:              []models.Severity{models.SeverityLow, models.SeverityMedium, models.SeverityHigh}[rng.Intn(3)],
				Category:              category,
				EscalationProbability: float64(20 + rng.Intn(60)),
				Confidence:            round2(0.4 + rng.Float64()*0.3),
				FirstSeenAt:           req.IssuedAt,
			})
		}
		return models.CrisisScanPayload{Events: events}, nil

	case models.KindEconomicImpact:
		region := req.Param("region", "Eastern Europe")
		sectors := []models.SectorImpact{
			{Sector: "energy", ImpactPercent: round1(-(2 + rng.Float64()*6))},
			{Sector: "agriculture", ImpactPercent: round1(-(1 + rng.Float64()*4))},
			{Sector: "manufacturing", ImpactPercent: round1(-(1 + rng.Float64()*3))},
		}
		return models.EconomicImpactPayload{
			Region:             region,
			GDPImpactPercent:   round1(-(0.5 + rng.Float64()*2.5)),
			TradeDisruptionUSD: float64(int64(rng.Float64()*40+5)) * 1e9,
			Sectors:            sectors,
			Horizon:            "12m",
		}, nil

	default:
		return nil, fmt.Errorf("no fallback synthesis for kind %q", req.Kind)
	}
}

// requestSeed derives a stable seed from the request kind and parameters so
// repeated fallback calls for the same request agree.
func requestSeed(req models.AnalyticalRequest) int64 {
	h := fnv.New64a()
	h.Write([]byte(req.Kind))
	keys := make([]string, 0, len(req.Parameters))
	for k := range req.Parameters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		h.Write([]byte(k))
		if v, err := json.Marshal(req.Parameters[k]); err == nil {
			h.Write(v)
		}
	}
	return int64(h.Sum64())
}

func pickN(rng *rand.Rand, options []string, n int) []string {
	if n > len(options) {
		n = len(options)
	}
	idx := rng.Perm(len(options))[:n]
	sort.Ints(idx)
	out := make([]string, 0, n)
	for _, i := range idx {
		out = append(out, options[i])
	}
	return out
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func round1(v float64) float64 { return math.Round(v*10) / 10 }

func round2(v float64) float64 { return math.Round(v*100) / 100 }
