package guardrail

import (
	"math"
	"sort"
)

// Percentiles are computed by linear interpolation on the ascending-sorted
// score list.
type Percentiles struct {
	P25 float64 `json:"p25"`
	P50 float64 `json:"p50"`
	P75 float64 `json:"p75"`
	P90 float64 `json:"p90"`
}

// Stats summarizes the final fused-or-reranked score distribution.
type Stats struct {
	Mean        float64     `json:"mean"`
	Max         float64     `json:"max"`
	Min         float64     `json:"min"`
	StdDev      float64     `json:"stdDev"`
	Count       int         `json:"count"`
	Percentiles Percentiles `json:"percentiles"`
}

// ComputeStats derives the score statistics. A single score yields
// StdDev = 0; an empty list yields the zero value.
func ComputeStats(scores []float64) Stats {
	n := len(scores)
	if n == 0 {
		return Stats{}
	}
	sorted := append([]float64(nil), scores...)
	sort.Float64s(sorted)

	var sum float64
	for _, s := range sorted {
		sum += s
	}
	mean := sum / float64(n)

	var variance float64
	for _, s := range sorted {
		d := s - mean
		variance += d * d
	}
	variance /= float64(n)

	return Stats{
		Mean:   mean,
		Max:    sorted[n-1],
		Min:    sorted[0],
		StdDev: math.Sqrt(variance),
		Count:  n,
		Percentiles: Percentiles{
			P25: percentile(sorted, 0.25),
			P50: percentile(sorted, 0.50),
			P75: percentile(sorted, 0.75),
			P90: percentile(sorted, 0.90),
		},
	}
}

// percentile interpolates linearly between the two nearest ranks.
// Input must be sorted ascending and non-empty.
func percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 1 {
		return sorted[0]
	}
	pos := p * float64(n-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo] + frac*(sorted[hi]-sorted[lo])
}
