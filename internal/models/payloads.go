package models

// Payload is a kind-specific analytical result carried by a ResolvedResult.
type Payload interface {
	PayloadKind() RequestKind
}

// TutorialPayload is an interactive game-theory tutorial unit.
type TutorialPayload struct {
	Concept             string `json:"concept"`
	Explanation         string `json:"explanation"`
	GeopoliticalExample string `json:"geopoliticalExample"`
	InteractiveElement  string `json:"interactiveElement"`
	AssessmentQuestion  string `json:"assessmentQuestion"`
}

func (TutorialPayload) PayloadKind() RequestKind { return KindTutorial }

// RiskAssessmentPayload carries per-region risk scores.
type RiskAssessmentPayload struct {
	Assessments []RiskAssessment `json:"assessments"`
}

func (RiskAssessmentPayload) PayloadKind() RequestKind { return KindRiskAssessment }

// RiskAssessment scores a single region.
type RiskAssessment struct {
	Region             string    `json:"region"`
	RiskScore          float64   `json:"riskScore"`
	ConfidenceInterval []float64 `json:"confidenceInterval"`
	PrimaryDrivers     []string  `json:"primaryDrivers"`
	Scenarios          []string  `json:"scenarios"`
}

// SimulationPayload summarises a scenario simulation run.
type SimulationPayload struct {
	Scenario       string              `json:"scenario"`
	Iterations     int                 `json:"iterations"`
	Outcomes       []SimulationOutcome `json:"outcomes"`
	ExpectedPayoff float64             `json:"expectedPayoff"`
}

func (SimulationPayload) PayloadKind() RequestKind { return KindSimulation }

// SimulationOutcome is one branch of a simulated scenario.
type SimulationOutcome struct {
	Name        string  `json:"name"`
	Probability float64 `json:"probability"`
	Description string  `json:"description"`
}

// CrisisScanPayload carries candidate crisis events from a monitoring scan.
type CrisisScanPayload struct {
	Events []CrisisEvent `json:"events"`
}

func (CrisisScanPayload) PayloadKind() RequestKind { return KindCrisisScan }

// EconomicImpactPayload estimates the economic footprint of a disruption.
type EconomicImpactPayload struct {
	Region             string         `json:"region"`
	GDPImpactPercent   float64        `json:"gdpImpactPercent"`
	TradeDisruptionUSD float64        `json:"tradeDisruptionUsd"`
	Sectors            []SectorImpact `json:"sectors"`
	Horizon            string         `json:"horizon"`
}

func (EconomicImpactPayload) PayloadKind() RequestKind { return KindEconomicImpact }

// SectorImpact is the estimated impact on one economic sector.
type SectorImpact struct {
	Sector        string  `json:"sector"`
	ImpactPercent float64 `json:"impactPercent"`
}
