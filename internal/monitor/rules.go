package monitor

import (
	"errors"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/atlasintel/atlas-engine/internal/models"
)

// AlertRule describes one condition under which a new crisis event becomes an
// alert. Conditions inside a rule are conjunctive; the rule set fires when any
// rule matches.
type AlertRule struct {
	ID            string          `yaml:"id"`
	Severity      models.Severity `yaml:"severity"`
	MinEscalation float64         `yaml:"minEscalation"`
	Categories    []string        `yaml:"categories"`
}

// Matches reports whether the event satisfies every configured condition.
// A rule with no conditions never fires.
func (r AlertRule) Matches(e models.CrisisEvent) bool {
	if r.Severity == "" && r.MinEscalation <= 0 && len(r.Categories) == 0 {
		return false
	}
	if len(r.Categories) > 0 && !containsFold(r.Categories, e.Category) {
		return false
	}
	if r.Severity != "" && e.Severity != r.Severity {
		return false
	}
	if r.MinEscalation > 0 && e.EscalationProbability <= r.MinEscalation {
		return false
	}
	return true
}

// DefaultAlertRules reproduces the built-in alerting threshold: critical
// severity, or escalation probability above 80.
func DefaultAlertRules() []AlertRule {
	return []AlertRule{
		{ID: "critical-severity", Severity: models.SeverityCritical},
		{ID: "high-escalation", MinEscalation: 80},
	}
}

type ruleFile struct {
	Rules []AlertRule `yaml:"rules"`
}

// LoadAlertRules reads the YAML rule pack at path. A missing file or empty
// pack falls back to the defaults.
func LoadAlertRules(path string, logger *slog.Logger) ([]AlertRule, error) {
	if path == "" {
		return DefaultAlertRules(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return DefaultAlertRules(), nil
		}
		return nil, err
	}
	var cfg ruleFile
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	if len(cfg.Rules) == 0 {
		return DefaultAlertRules(), nil
	}
	if logger != nil {
		logger.Debug("loaded alert rules", slog.Int("count", len(cfg.Rules)), slog.String("path", path))
	}
	return cfg.Rules, nil
}

func containsFold(haystack []string, needle string) bool {
	for _, h := range haystack {
		if strings.EqualFold(h, needle) {
			return true
		}
	}
	return false
}
