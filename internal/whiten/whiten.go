// Package whiten implements C3's whitening: deriving hw_timestamp_ns and
// the whitened byte slice for an incoming gateway event (spec §4.2);
// ingest.MapBatch builds the canonical model.Event from them. There is no
// teacher equivalent for this exact transform — it is domain math
// specified directly by spec.md, built with encoding/binary the way the
// rest of the pack handles fixed-width wire integers.
package whiten

import "encoding/binary"

// Fold XOR-folds the 8 big-endian bytes of a against the 8 big-endian
// bytes of b, yielding 8 bytes. It is used for per-event whitening
// (tdc_timestamp_ps against rpi_timestamp_us); the orchestrator's
// interval-XOR bitstream fallback does its own XOR and does not call it.
func Fold(a, b int64) []byte {
	var ab, bb [8]byte
	binary.BigEndian.PutUint64(ab[:], uint64(a))
	binary.BigEndian.PutUint64(bb[:], uint64(b))
	out := make([]byte, 8)
	for i := range out {
		out[i] = ab[i] ^ bb[i]
	}
	return out
}

// Event is the minimal shape whiten.Derive needs from an incoming gateway
// event; callers map their wire type into this before calling Derive.
type Event struct {
	TDCTimestampPS *int64
	RPiTimestampUS *int64
}

// Derive computes hw_timestamp_ns and the whitened byte slice for one
// event. If either timestamp is absent, whitening is skipped (nil
// whitened slice) and hwTimestampNS is zero — the caller is expected to
// already have an explicit hw_timestamp_ns in that case (spec §4.2: "If
// either timestamp is absent, whitening is skipped").
func Derive(e Event) (hwTimestampNS int64, whitened []byte) {
	if e.TDCTimestampPS == nil || e.RPiTimestampUS == nil {
		return 0, nil
	}
	hwTimestampNS = *e.TDCTimestampPS / 1000
	whitened = Fold(*e.TDCTimestampPS, *e.RPiTimestampUS)
	return hwTimestampNS, whitened
}
