package model

import "time"

// Window is an inclusive-exclusive time range, as used throughout the
// event/result stores ([start, end)).
type Window struct {
	Start time.Time
	End   time.Time
}

// TestResult is one SP 800-22 test's outcome for one chunk (spec §3).
// ChunkCompliant denormalizes the chunk-level nist_compliant verdict the
// validator returned alongside this individual test outcome (spec §9
// "uniformity flag": a job-level AND of ChunkCompliant across chunks for
// new runs).
type TestResult struct {
	RunID          string
	TestName       string
	Passed         bool
	PValue         *float64
	BitsTested     int64
	Window         Window
	ExecutedAt     time.Time
	ChunkIndex     int
	ChunkCount     int
	BatchID        string
	DetailsJSON    string
	ChunkCompliant bool
}

// AssessmentResult is one SP 800-90B aggregate outcome for one chunk.
type AssessmentResult struct {
	RunID       string
	MinEntropy  float64
	Passed      bool
	BitsTested  int64
	Window      Window
	ExecutedAt  time.Time
	ChunkIndex  int
	ChunkCount  int
	DetailsJSON string
}

// EstimatorType distinguishes the two SP 800-90B estimator families.
type EstimatorType string

const (
	IID    EstimatorType = "IID"
	NonIID EstimatorType = "NON_IID"
)

// EstimatorResult is one SP 800-90B estimator's detail row, unique per
// (AssessmentRunID, TestType, EstimatorName).
type EstimatorResult struct {
	AssessmentRunID string
	TestType        EstimatorType
	EstimatorName   string
	EntropyEstimate *float64 // nil means non-entropy estimator
	Passed          bool
	DetailsJSON     string
	Description     string
}

// QualityReport is the derived, non-persistent data-quality summary for a
// time window (spec §3, §4.5).
type QualityReport struct {
	TotalEvents         int
	Gaps                []int64
	MissingCount        int64
	ClockDriftUSPerHour float64
	AvgNetworkDelayMS   float64
	DecayRateRealistic  bool
	QualityScore        float64
	Recommendations     []string
}

// Classification buckets QualityScore per spec §4.5 thresholds.
type Classification string

const (
	Excellent Classification = "EXCELLENT"
	Good      Classification = "GOOD"
	Warning   Classification = "WARNING"
	Critical  Classification = "CRITICAL"
)

// Classify maps a composite quality score to its classification bucket.
func Classify(score float64) Classification {
	switch {
	case score >= 0.95:
		return Excellent
	case score >= 0.85:
		return Good
	case score >= 0.70:
		return Warning
	default:
		return Critical
	}
}
