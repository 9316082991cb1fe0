// Package model holds the plain value records persisted by the event and
// result stores (spec §3). No query helpers live on these types — that
// split follows appengine/weetbix/internal/testverdicts/span.go, where a
// row is a struct and queries are free functions taking an explicit
// context.Context.
package model

import (
	"time"

	"entropysvc/internal/entropyerr"
)

// Event is a single detected decay, as landed by the ingestion server.
type Event struct {
	ID             int64
	BatchID        string
	HWTimestampNS  int64
	SequenceNumber int64
	RPiTimestampUS *int64
	TDCTimestampPS *int64
	Channel        *int32
	Whitened       []byte
	ServerReceived time.Time
	NetworkDelayMS *float64
	SourceAddress  string
	QualityScore   *float64
}

// Valid checks the per-event invariants from spec §3, given the server's
// wall clock at insert time.
func (e *Event) Valid(now time.Time) error {
	if e.HWTimestampNS <= 0 {
		return entropyerr.Invalid("hw_timestamp_ns must be > 0, got %d", e.HWTimestampNS)
	}
	if e.SequenceNumber < 0 {
		return entropyerr.Invalid("sequence_number must be >= 0, got %d", e.SequenceNumber)
	}
	lo := now.Add(-24 * time.Hour).UnixNano()
	hi := now.Add(60 * time.Second).UnixNano()
	if e.HWTimestampNS < lo || e.HWTimestampNS > hi {
		return entropyerr.Invalid("hw_timestamp_ns %d outside [now-24h, now+60s]", e.HWTimestampNS)
	}
	if e.QualityScore != nil && (*e.QualityScore < 0 || *e.QualityScore > 1) {
		return entropyerr.Invalid("quality_score %f outside [0,1]", *e.QualityScore)
	}
	return nil
}
