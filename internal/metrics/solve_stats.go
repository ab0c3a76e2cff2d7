package metrics

import (
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"
)

type SolveStats struct {
	Count int
	Mean  time.Duration
	P95   time.Duration
	Max   time.Duration
}

// SummarizeSolveTimes computes summary statistics of per-iteration
// solve durations.
func SummarizeSolveTimes(times []time.Duration) SolveStats {
	if len(times) == 0 {
		return SolveStats{}
	}
	xs := make([]float64, len(times))
	for i, d := range times {
		xs[i] = float64(d)
	}
	sort.Float64s(xs)
	return SolveStats{
		Count: len(xs),
		Mean:  time.Duration(stat.Mean(xs, nil)),
		P95:   time.Duration(stat.Quantile(0.95, stat.Empirical, xs, nil)),
		Max:   time.Duration(xs[len(xs)-1]),
	}
}
