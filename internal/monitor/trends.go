package monitor

import (
	"fmt"
	"hash/fnv"
	"math"
	"math/rand"

	"github.com/atlasintel/atlas-engine/internal/models"
)

// TrendEnricher supplies a trend series for events that arrive without one.
// The shipped implementation synthesizes data from the event category alone;
// a real-signal enricher can be plugged in without touching the monitor.
type TrendEnricher interface {
	Trends(category string) []models.TrendPoint
}

// CategoryTrends deterministically derives a short weekly trend series from
// the category name. Not observed from real signals.
type CategoryTrends struct {
	points int
}

// NewCategoryTrends returns the default enricher producing six weekly points.
func NewCategoryTrends() *CategoryTrends {
	return &CategoryTrends{points: 6}
}

// Trends synthesizes the series for one category. The same category always
// yields the same series.
func (c *CategoryTrends) Trends(category string) []models.TrendPoint {
	h := fnv.New64a()
	h.Write([]byte(category))
	rng := rand.New(rand.NewSource(int64(h.Sum64())))

	base := 30 + rng.Float64()*40
	drift := rng.Float64()*4 - 2
	series := make([]models.TrendPoint, 0, c.points)
	for i := 0; i < c.points; i++ {
		value := base + drift*float64(i) + rng.Float64()*6 - 3
		series = append(series, models.TrendPoint{
			Label: fmt.Sprintf("w%d", i+1),
			Value: math.Round(clampFloat(value, 0, 100)*10) / 10,
		})
	}
	return series
}

func clampFloat(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
