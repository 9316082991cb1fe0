package analysis

import (
	"time"

	"gonum.org/v1/gonum/stat"
)

// QualityEvent is the minimal per-event shape the quality report needs,
// decoupled from model.Event so analysis doesn't import the store layer.
type QualityEvent struct {
	HWTimestampNS  int64
	SequenceNumber int64
	ServerReceived time.Time
	NetworkDelayMS *float64
}

// DecayRateBand is the configured expected-rate tolerance band a window's
// average decay interval must fall within to be considered realistic
// (spec §4.5, an operator knob per §6).
type DecayRateBand struct {
	MinMS float64
	MaxMS float64
}

// QualityResult mirrors model.QualityReport's numeric fields; it is kept
// separate from the persistence model so this package has no dependency
// on the store layer.
type QualityResult struct {
	TotalEvents         int
	MissingCount        int64
	ClockDriftUSPerHour float64
	AvgNetworkDelayMS   float64
	AvgDecayIntervalMS  float64
	DecayRateRealistic  bool
	QualityScore        float64
}

// missingCount sums (gap-1) over every strictly increasing step in
// sequence_number, per spec §4.5.
func missingCount(events []QualityEvent) int64 {
	var missing int64
	for i := 1; i < len(events); i++ {
		gap := events[i].SequenceNumber - events[i-1].SequenceNumber
		if gap > 1 {
			missing += gap - 1
		}
	}
	return missing
}

// clockDriftUSPerHour is the linear regression slope of
// (server_received - hw_timestamp) against wall time, in microseconds per
// hour (spec §4.5).
func clockDriftUSPerHour(events []QualityEvent) float64 {
	if len(events) < 2 {
		return 0
	}
	xs := make([]float64, len(events))
	ys := make([]float64, len(events))
	t0 := events[0].ServerReceived
	for i, e := range events {
		xs[i] = e.ServerReceived.Sub(t0).Hours()
		driftNS := e.ServerReceived.UnixNano() - e.HWTimestampNS
		ys[i] = float64(driftNS) / 1000 // ns -> us
	}
	_, slope := stat.LinearRegression(xs, ys, nil, false)
	return slope
}

func avgNetworkDelayMS(events []QualityEvent) float64 {
	var sum float64
	var n int
	for _, e := range events {
		if e.NetworkDelayMS != nil {
			sum += *e.NetworkDelayMS
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

func avgDecayIntervalMS(events []QualityEvent) float64 {
	hw := make([]int64, len(events))
	for i, e := range events {
		hw[i] = e.HWTimestampNS
	}
	deltas := PositiveDeltas(hw)
	if len(deltas) == 0 {
		return 0
	}
	var sum float64
	for _, d := range deltas {
		sum += float64(d) / 1e6 // ns -> ms
	}
	return sum / float64(len(deltas))
}

// Quality computes the composite quality report for a chronologically
// ordered window of events, per spec §4.5's penalty-multiplication rules.
// The penalties are unconditional scalars (commutative under
// multiplication, spec §8), so they are applied in spec order purely for
// readability, not because order matters to the result.
func Quality(events []QualityEvent, band DecayRateBand) QualityResult {
	total := len(events)
	missing := missingCount(events)
	drift := clockDriftUSPerHour(events)
	avgDelay := avgNetworkDelayMS(events)
	avgInterval := avgDecayIntervalMS(events)
	realistic := avgInterval >= band.MinMS && avgInterval <= band.MaxMS

	score := 1.0
	if total > 0 {
		score *= 1 - float64(missing)/float64(total)
	}
	if abs(drift) > 10 {
		score *= 0.95
	}
	if abs(drift) > 50 {
		score *= 0.85
	}
	if !realistic {
		score *= 0.90
	}
	if avgDelay > 100 {
		score *= 0.95
	}
	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}

	return QualityResult{
		TotalEvents:         total,
		MissingCount:        missing,
		ClockDriftUSPerHour: drift,
		AvgNetworkDelayMS:   avgDelay,
		AvgDecayIntervalMS:  avgInterval,
		DecayRateRealistic:  realistic,
		QualityScore:        score,
	}
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
