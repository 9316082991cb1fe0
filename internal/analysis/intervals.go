package analysis

import (
	"sort"

	"gonum.org/v1/gonum/stat"
)

// IntervalStats is the aggregated {count, mean, stddev_pop, min, max,
// median} summary over a window's positive consecutive deltas (spec
// §4.3).
type IntervalStats struct {
	Count     int
	Mean      float64
	StdDevPop float64
	Min       int64
	Max       int64
	Median    float64
}

// PositiveDeltas returns the positive consecutive deltas of a
// chronologically-ordered series of hw timestamps (spec §4.3, §8 scenario
// 2: zero deltas are filtered, not returned as zero-valued intervals).
func PositiveDeltas(hwTimestampsNS []int64) []int64 {
	out := make([]int64, 0, len(hwTimestampsNS))
	for i := 1; i < len(hwTimestampsNS); i++ {
		d := hwTimestampsNS[i] - hwTimestampsNS[i-1]
		if d > 0 {
			out = append(out, d)
		}
	}
	return out
}

// Stats computes IntervalStats in a single pass plus a median sort, the
// way a store would compute it in one round trip rather than shipping
// rows for client-side reduction (spec §4.3).
func Stats(intervalsNS []int64) IntervalStats {
	if len(intervalsNS) == 0 {
		return IntervalStats{}
	}
	floats := make([]float64, len(intervalsNS))
	min, max := intervalsNS[0], intervalsNS[0]
	for i, v := range intervalsNS {
		floats[i] = float64(v)
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	mean, sd := stat.PopMeanStdDev(floats, nil)

	sorted := append([]int64(nil), intervalsNS...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	var median float64
	n := len(sorted)
	if n%2 == 1 {
		median = float64(sorted[n/2])
	} else {
		median = float64(sorted[n/2-1]+sorted[n/2]) / 2
	}

	return IntervalStats{
		Count:     len(intervalsNS),
		Mean:      mean,
		StdDevPop: sd,
		Min:       min,
		Max:       max,
		Median:    median,
	}
}

// ToFloat64 converts a slice of nanosecond interval deltas to float64 for
// the entropy functions, which operate on generic numeric samples.
func ToFloat64(intervalsNS []int64) []float64 {
	out := make([]float64, len(intervalsNS))
	for i, v := range intervalsNS {
		out[i] = float64(v)
	}
	return out
}
