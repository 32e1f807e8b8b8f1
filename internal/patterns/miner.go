package patterns

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/atlasintel/atlas-engine/internal/models"
	"github.com/atlasintel/atlas-engine/internal/utils"
)

// Archive abstracts persistence for mined hotspots.
type Archive interface {
	SaveHotspots(ctx context.Context, hotspots []models.RegionHotspot)
}

// Miner aggregates crisis events into per-region hotspots: frequency,
// dominant categories and peak severity over the supplied window.
type Miner struct {
	archive Archive
	logger  *slog.Logger
}

// NewMiner constructs a Miner; archive may be nil for dry runs.
func NewMiner(logger *slog.Logger, archive Archive) *Miner {
	return &Miner{archive: archive, logger: utils.ComponentLogger(logger, "patterns")}
}

// Mine analyses the event window and returns hotspots ordered by prevalence.
func (m *Miner) Mine(ctx context.Context, events []models.CrisisEvent) []models.RegionHotspot {
	if len(events) == 0 {
		return nil
	}

	regionStats := make(map[string]*regionAggregate)
	for _, e := range events {
		agg := ensureAggregate(regionStats, e.Region)
		agg.count++
		if e.Category != "" {
			agg.categoryCounts[e.Category]++
		}
		if e.Severity.Rank() > agg.maxSeverity.Rank() {
			agg.maxSeverity = e.Severity
		}
		if e.FirstSeenAt.After(agg.lastSeen) {
			agg.lastSeen = e.FirstSeenAt
		}
	}

	hotspots := make([]models.RegionHotspot, 0, len(regionStats))
	for region, agg := range regionStats {
		hotspots = append(hotspots, models.RegionHotspot{
			Region:        region,
			EventCount:    agg.count,
			Prevalence:    float64(agg.count) / float64(len(events)),
			TopCategories: agg.topCategories(3),
			MaxSeverity:   agg.maxSeverity,
			LastSeen:      agg.lastSeen,
		})
	}

	sort.Slice(hotspots, func(i, j int) bool {
		if hotspots[i].Prevalence != hotspots[j].Prevalence {
			return hotspots[i].Prevalence > hotspots[j].Prevalence
		}
		return hotspots[i].Region < hotspots[j].Region
	})

	if m.archive != nil && len(hotspots) > 0 {
		m.archive.SaveHotspots(ctx, hotspots)
	}
	m.logger.Debug("mined region hotspots",
		slog.Int("events", len(events)), slog.Int("hotspots", len(hotspots)))

	return hotspots
}

type regionAggregate struct {
	count          int
	maxSeverity    models.Severity
	lastSeen       time.Time
	categoryCounts map[string]int
}

func ensureAggregate(m map[string]*regionAggregate, region string) *regionAggregate {
	if region == "" {
		region = "unknown"
	}
	agg, ok := m[region]
	if !ok {
		agg = &regionAggregate{categoryCounts: make(map[string]int)}
		m[region] = agg
	}
	return agg
}

func (agg *regionAggregate) topCategories(limit int) []string {
	categories := make([]string, 0, len(agg.categoryCounts))
	for c := range agg.categoryCounts {
		categories = append(categories, c)
	}
	sort.Slice(categories, func(i, j int) bool {
		if agg.categoryCounts[categories[i]] != agg.categoryCounts[categories[j]] {
			return agg.categoryCounts[categories[i]] > agg.categoryCounts[categories[j]]
		}
		return categories[i] < categories[j]
	})
	if len(categories) > limit {
		categories = categories[:limit]
	}
	return categories
}
