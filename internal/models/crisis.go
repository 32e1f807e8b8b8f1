package models

import (
	"strings"
	"time"
)

// Severity captures crisis impact levels, ordered low < medium < high < critical.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

var severityRank = map[Severity]int{
	SeverityLow:      1,
	SeverityMedium:   2,
	SeverityHigh:     3,
	SeverityCritical: 4,
}

// Rank returns the total-order position of the severity; unknown values rank 0.
func (s Severity) Rank() int {
	return severityRank[s]
}

// AtLeast reports whether s is equal to or more severe than min.
func (s Severity) AtLeast(min Severity) bool {
	return s.Rank() >= min.Rank()
}

// ParseSeverity normalises a severity string, defaulting to low for unknown input.
func ParseSeverity(raw string) Severity {
	s := Severity(strings.ToLower(strings.TrimSpace(raw)))
	if _, ok := severityRank[s]; ok {
		return s
	}
	return SeverityLow
}

// TrendPoint is one sample in a crisis event trend series.
type TrendPoint struct {
	Label string  `json:"label"`
	Value float64 `json:"value"`
}

// CrisisEvent is a live geopolitical crisis candidate. Identity within the
// retained window is the normalized (lower-cased, trimmed) title.
type CrisisEvent struct {
	ID                    string       `json:"id"`
	Title                 string       `json:"title"`
	Region                string       `json:"region"`
	Severity              Severity     `json:"severity"`
	Category              string       `json:"category"`
	EscalationProbability float64      `json:"escalationProbability"`
	Confidence            float64      `json:"confidence"`
	FirstSeenAt           time.Time    `json:"firstSeenAt"`
	Trends                []TrendPoint `json:"trends,omitempty"`
}

// NormalizedTitle returns the deduplication key for the event.
func (e CrisisEvent) NormalizedTitle() string {
	return strings.ToLower(strings.TrimSpace(e.Title))
}

// Alert is derived from a crisis event that crossed the alerting threshold.
// The alert id doubles as the notification tag and equals the event id.
type Alert struct {
	ID                    string    `json:"id"`
	EventID               string    `json:"eventId"`
	Title                 string    `json:"title"`
	Region                string    `json:"region"`
	Severity              Severity  `json:"severity"`
	EscalationProbability float64   `json:"escalationProbability"`
	RaisedAt              time.Time `json:"raisedAt"`
	Acknowledged          bool      `json:"acknowledged"`
}

// RegionHotspot aggregates retained crisis events into a per-region pattern.
type RegionHotspot struct {
	Region        string    `json:"region"`
	EventCount    int       `json:"eventCount"`
	Prevalence    float64   `json:"prevalence"`
	TopCategories []string  `json:"topCategories"`
	MaxSeverity   Severity  `json:"maxSeverity"`
	LastSeen      time.Time `json:"lastSeen"`
}

// LearningProgress tracks a user's advancement through a tutorial module.
// Unique per (user, module); later writes update the same row.
type LearningProgress struct {
	UserID    string    `json:"userId"`
	ModuleID  string    `json:"moduleId"`
	Progress  float64   `json:"progress"`
	Score     float64   `json:"score"`
	UpdatedAt time.Time `json:"updatedAt"`
}
