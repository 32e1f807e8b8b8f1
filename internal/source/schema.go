package source

import (
	"encoding/json"
	"fmt"

	"github.com/atlasintel/atlas-engine/internal/models"
)

// DecodePayload parses raw JSON into the typed payload for the request kind
// and validates the fields the features depend on. Callers treat any error as
// a source failure for the attempt that produced the bytes.
func DecodePayload(kind models.RequestKind, data []byte) (models.Payload, error) {
	switch kind {
	case models.KindTutorial:
		var p models.TutorialPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}
		if p.Concept == "" || p.Explanation == "" {
			return nil, fmt.Errorf("tutorial payload missing concept or explanation")
		}
		return p, nil

	case models.KindRiskAssessment:
		var p models.RiskAssessmentPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}
		if len(p.Assessments) == 0 {
			return nil, fmt.Errorf("risk payload carries no assessments")
		}
		for i, a := range p.Assessments {
			if a.Region == "" {
				return nil, fmt.Errorf("assessment %d missing region", i)
			}
			if a.RiskScore < 0 || a.RiskScore > 100 {
				return nil, fmt.Errorf("assessment %d risk score out of range: %v", i, a.RiskScore)
			}
		}
		return p, nil

	case models.KindSimulation:
		var p models.SimulationPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}
		if p.Scenario == "" || len(p.Outcomes) == 0 {
			return nil, fmt.Errorf("simulation payload missing scenario or outcomes")
		}
		return p, nil

	case models.KindCrisisScan:
		var p models.CrisisScanPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}
		for i, e := range p.Events {
			if e.Title == "" {
				return nil, fmt.Errorf("event %d missing title", i)
			}
			if e.EscalationProbability < 0 || e.EscalationProbability > 100 {
				return nil, fmt.Errorf("event %d escalation probability out of range: %v", i, e.EscalationProbability)
			}
		}
		return p, nil

	case models.KindEconomicImpact:
		var p models.EconomicImpactPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}
		if p.Region == "" {
			return nil, fmt.Errorf("economic impact payload missing region")
		}
		return p, nil

	default:
		return nil, fmt.Errorf("unknown request kind %q", kind)
	}
}
