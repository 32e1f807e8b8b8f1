package backtest

import "math"

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// populationStdDev is used for volatility over an observed window.
func populationStdDev(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	m := mean(values)
	var sum float64
	for _, v := range values {
		d := v - m
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(values)))
}

// sampleStdDev is used when the scores are a sample of a wider distribution,
// as in benchmark significance testing.
func sampleStdDev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	m := mean(values)
	var sum float64
	for _, v := range values {
		d := v - m
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(values)-1))
}

// pValueForT maps a t-statistic onto the coarse two-tailed significance levels
// used by the report. Exact tail integration is deliberately out of scope.
func pValueForT(t float64) float64 {
	abs := math.Abs(t)
	switch {
	case abs > 2.576:
		return 0.01
	case abs > 1.96:
		return 0.05
	default:
		return 0.5
	}
}
