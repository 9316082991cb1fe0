package analysis

import (
	"math"
	"sort"

	"entropysvc/internal/entropyerr"
)

// minHistogramIntervals is the floor spec §4.5 sets on the histogram
// endpoint: fewer intervals than this and bucket statistics aren't
// meaningful.
const minHistogramIntervals = 100

// Bucket is one bucket of a Histogram response.
type Bucket struct {
	Start     float64
	End       float64
	Center    float64
	Count     int
	Frequency float64
}

// Histogram buckets intervalsNS at bucketNS and returns buckets sorted by
// Start, per spec §4.5. Requires at least 100 intervals.
func Histogram(intervalsNS []float64, bucketNS float64) ([]Bucket, error) {
	if bucketNS <= 0 {
		return nil, entropyerr.Invalid("bucket size must be > 0, got %f", bucketNS)
	}
	if len(intervalsNS) < minHistogramIntervals {
		return nil, entropyerr.Insufficient(minHistogramIntervals, len(intervalsNS), "histogram requires at least %d intervals", minHistogramIntervals)
	}
	counts := histogramBuckets(intervalsNS, bucketNS)
	idxs := make([]int64, 0, len(counts))
	for idx := range counts {
		idxs = append(idxs, idx)
	}
	sort.Slice(idxs, func(i, j int) bool { return idxs[i] < idxs[j] })

	total := len(intervalsNS)
	out := make([]Bucket, 0, len(idxs))
	for _, idx := range idxs {
		start := float64(idx) * bucketNS
		end := start + bucketNS
		out = append(out, Bucket{
			Start:     start,
			End:       end,
			Center:    (start + end) / 2,
			Count:     counts[idx],
			Frequency: float64(counts[idx]) / float64(total),
		})
	}
	return out, nil
}

// ShannonUpperBound returns log2(#buckets), the upper bound Shannon
// entropy must satisfy for the given histogram (spec §8 round-trip
// property).
func ShannonUpperBound(buckets []Bucket) float64 {
	if len(buckets) == 0 {
		return 0
	}
	return math.Log2(float64(len(buckets)))
}
