// Package analysis implements C6: entropy metrics, interval statistics,
// histograms, and composite data-quality reports over inter-event
// intervals (spec §4.5). The algorithms are specified directly by
// spec.md; mean/stddev reduction uses gonum.org/v1/gonum/stat, already in
// the teacher's own require block, rather than hand-rolled accumulation.
package analysis

import (
	"math"

	"entropysvc/internal/entropyerr"

	"gonum.org/v1/gonum/stat"
)

// maxEntropySamples is the downsampling target for Sample/Approximate
// entropy (spec §4.5): inputs above this are uniformly strided down to
// exactly this many elements before the O(n^2) template search runs.
const maxEntropySamples = 2000

// downsample uniformly strides intervalsNS down to exactly maxEntropySamples
// elements when it's larger; Shannon and Renyi never downsample.
func downsample(intervalsNS []float64) []float64 {
	n := len(intervalsNS)
	if n <= maxEntropySamples {
		return intervalsNS
	}
	out := make([]float64, maxEntropySamples)
	stride := float64(n) / float64(maxEntropySamples)
	for i := range out {
		idx := int(float64(i) * stride)
		if idx >= n {
			idx = n - 1
		}
		out[i] = intervalsNS[idx]
	}
	return out
}

// histogramBuckets buckets x into floor(x/bucketNS) and returns the
// count of each non-empty bucket, keyed by bucket index.
func histogramBuckets(intervalsNS []float64, bucketNS float64) map[int64]int {
	counts := map[int64]int{}
	for _, x := range intervalsNS {
		b := int64(math.Floor(x / bucketNS))
		counts[b]++
	}
	return counts
}

func probabilities(counts map[int64]int, total int) []float64 {
	ps := make([]float64, 0, len(counts))
	for _, c := range counts {
		ps = append(ps, float64(c)/float64(total))
	}
	return ps
}

// Shannon computes H = -sum(p_i * log2(p_i)) over the histogram of
// intervalsNS bucketed at bucketNS.
func Shannon(intervalsNS []float64, bucketNS float64) (float64, error) {
	if bucketNS <= 0 {
		return 0, entropyerr.Invalid("bucket size must be > 0, got %f", bucketNS)
	}
	if len(intervalsNS) == 0 {
		return 0, entropyerr.Insufficient(1, 0, "Shannon entropy requires at least one interval")
	}
	counts := histogramBuckets(intervalsNS, bucketNS)
	ps := probabilities(counts, len(intervalsNS))
	var h float64
	for _, p := range ps {
		if p > 0 {
			h -= p * math.Log2(p)
		}
	}
	return h, nil
}

// Renyi computes H_alpha = (1/(1-alpha)) * log2(sum(p_i^alpha)) over the
// same histogram as Shannon. For alpha within epsilonForShannon of 1, it
// falls back to Shannon entropy (the alpha -> 1 limit).
func Renyi(intervalsNS []float64, bucketNS, alpha float64) (float64, error) {
	if bucketNS <= 0 {
		return 0, entropyerr.Invalid("bucket size must be > 0, got %f", bucketNS)
	}
	if alpha <= 0 {
		return 0, entropyerr.Invalid("alpha must be > 0, got %f", alpha)
	}
	if len(intervalsNS) == 0 {
		return 0, entropyerr.Insufficient(1, 0, "Renyi entropy requires at least one interval")
	}
	const epsilonForShannon = 1e-9
	if math.Abs(alpha-1) < epsilonForShannon {
		return Shannon(intervalsNS, bucketNS)
	}
	counts := histogramBuckets(intervalsNS, bucketNS)
	ps := probabilities(counts, len(intervalsNS))
	var sum float64
	for _, p := range ps {
		if p > 0 {
			sum += math.Pow(p, alpha)
		}
	}
	if sum <= 0 {
		return 0, entropyerr.Invariant("Renyi sum of p^alpha is non-positive")
	}
	return (1 / (1 - alpha)) * math.Log2(sum), nil
}

// tolerance is the r parameter shared by Sample and Approximate entropy:
// 0.2 * sample (n-1) stddev of the (possibly downsampled) input.
func tolerance(x []float64) float64 {
	_, sd := stat.MeanStdDev(x, nil)
	return 0.2 * sd
}

func withinTolerance(a, b []float64, r float64) bool {
	for i := range a {
		if math.Abs(a[i]-b[i]) > r {
			return false
		}
	}
	return true
}

// templateMatches counts, for template length m, pairs of m-length
// templates starting at distinct indices that are within r of each other
// (Chebyshev/max-norm, per the standard SampEn/ApEn definitions).
func templateMatches(x []float64, m int, r float64) (matches int, templates int) {
	n := len(x)
	count := n - m + 1
	if count < 1 {
		return 0, 0
	}
	for i := 0; i < count; i++ {
		for j := 0; j < count; j++ {
			if i == j {
				continue
			}
			if withinTolerance(x[i:i+m], x[j:j+m], r) {
				matches++
			}
		}
	}
	return matches, count
}

// SampleEntropy computes SampEn with m=2, r=0.2*stddev, per spec §4.5.
// Returns +Inf (undefined) when either template count is zero, mirroring
// the standard definition's singularity — callers map +Inf to
// "undefined" for presentation.
func SampleEntropy(intervalsNS []float64) (float64, error) {
	const m = 2
	if len(intervalsNS) < m+2 {
		return 0, entropyerr.Insufficient(m+2, len(intervalsNS), "sample entropy requires at least m+2 intervals")
	}
	x := downsample(intervalsNS)
	r := tolerance(x)

	aMatches, _ := templateMatches(x, m+1, r)
	bMatches, _ := templateMatches(x, m, r)
	if aMatches == 0 || bMatches == 0 {
		return math.Inf(1), nil
	}
	return -math.Log(float64(aMatches) / float64(bMatches)), nil
}

// phi is the ApEn correlation-sum helper: the average log proportion of
// m-length templates within r of each other, self-matches included.
func phi(x []float64, m int, r float64) float64 {
	n := len(x)
	count := n - m + 1
	if count < 1 {
		return 0
	}
	var sum float64
	for i := 0; i < count; i++ {
		matches := 0
		for j := 0; j < count; j++ {
			if withinTolerance(x[i:i+m], x[j:j+m], r) {
				matches++
			}
		}
		sum += math.Log(float64(matches) / float64(count))
	}
	return sum / float64(count)
}

// ApproximateEntropy computes ApEn = phi(m) - phi(m+1) with m=2,
// r=0.2*stddev, per spec §4.5.
func ApproximateEntropy(intervalsNS []float64) (float64, error) {
	const m = 2
	if len(intervalsNS) < m+2 {
		return 0, entropyerr.Insufficient(m+2, len(intervalsNS), "approximate entropy requires at least m+2 intervals")
	}
	x := downsample(intervalsNS)
	r := tolerance(x)
	return phi(x, m, r) - phi(x, m+1, r), nil
}
