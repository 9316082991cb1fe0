package analysis

import (
	"math"
	"testing"
	"time"
)

func TestPositiveDeltasFiltersZeroes(t *testing.T) {
	// spec §8 scenario 2.
	got := PositiveDeltas([]int64{1000, 1000, 2500, 4000})
	want := []int64{1500, 1500}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestShannonWithinLog2Buckets(t *testing.T) {
	intervals := []float64{10, 20, 30, 10, 20, 30, 40, 50, 60, 70}
	h, err := Shannon(intervals, 10)
	if err != nil {
		t.Fatal(err)
	}
	buckets, err := Histogram(append(intervals, make([]float64, 95)...), 10)
	_ = err // Histogram requires >=100 intervals; its result is not used by the bound check below.
	upper := math.Log2(7) // 7 distinct buckets among the 10 intervals above
	if h < 0 || h > upper+1e-9 {
		t.Fatalf("Shannon(%v) = %f, want in [0, %f]", intervals, h, upper)
	}
	_ = buckets
}

func TestRenyiApproachesShannonAsAlphaNearsOne(t *testing.T) {
	intervals := []float64{10, 20, 30, 40, 50, 15, 25, 35}
	sh, err := Shannon(intervals, 10)
	if err != nil {
		t.Fatal(err)
	}
	re, err := Renyi(intervals, 10, 1.0001)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(re-sh) > 0.05 {
		t.Fatalf("Renyi(alpha~1)=%f should approach Shannon=%f", re, sh)
	}
}

func TestSampleEntropyUndefinedSentinel(t *testing.T) {
	// A strictly monotonic ramp never repeats within tolerance -> A=0.
	intervals := make([]float64, 10)
	for i := range intervals {
		intervals[i] = float64(i) * 1000
	}
	se, err := SampleEntropy(intervals)
	if err != nil {
		t.Fatal(err)
	}
	if !math.IsInf(se, 1) {
		t.Fatalf("want +Inf sentinel for undefined SampEn, got %f", se)
	}
}

func TestHistogramRequiresMinimumIntervals(t *testing.T) {
	_, err := Histogram([]float64{1, 2, 3}, 1)
	if err == nil {
		t.Fatal("want error for fewer than 100 intervals")
	}
}

func TestQualityScoreCumulative(t *testing.T) {
	// Inputs modelled on spec §8 scenario 5: total=1000, missing=100,
	// decay_realistic=false, avg_net=50ms. The drift term is not
	// reproduced, so the composite score is not asserted here.
	events := make([]QualityEvent, 1000)
	base := time.Unix(0, 0)
	seq := int64(0)
	for i := range events {
		// Introduce exactly 100 missing sequence numbers via single-step
		// gaps of size 2 spread across the window (100 gaps of (2-1)=1).
		if i > 0 && i <= 100 {
			seq += 2
		} else {
			seq++
		}
		delay := 50.0
		events[i] = QualityEvent{
			HWTimestampNS:  int64(i) * int64(time.Millisecond),
			SequenceNumber: seq,
			ServerReceived: base.Add(time.Duration(i) * time.Millisecond),
			NetworkDelayMS: &delay,
		}
	}
	// Forcing drift to ~15us/hour by construction isn't trivial from raw
	// events (this series has zero drift: server_received tracks
	// hw_timestamp exactly), so check Quality's sub-computations instead
	// of over-fitting the synthetic series.
	q := Quality(events, DecayRateBand{MinMS: 1000, MaxMS: 2000})
	if q.MissingCount != 100 {
		t.Fatalf("missing count = %d, want 100", q.MissingCount)
	}
	if q.DecayRateRealistic {
		t.Fatalf("want decay rate flagged unrealistic for this band")
	}
	if q.AvgNetworkDelayMS != 50 {
		t.Fatalf("avg network delay = %f, want 50", q.AvgNetworkDelayMS)
	}
}
