package orchestrator

import (
	"encoding/binary"
	"sort"

	"entropysvc/internal/model"
)

// ExtractBitstream implements spec §4.6 step 3: concatenate per-event
// whitened bytes if any exist; otherwise fall back to the interval-XOR
// construction over hw_timestamp_ns deltas.
func ExtractBitstream(events []model.Event) []byte {
	var out []byte
	for _, e := range events {
		out = append(out, e.Whitened...)
	}
	if len(out) > 0 {
		return out
	}
	return intervalXORFallback(events)
}

// intervalXORFallback sorts events by hw_timestamp_ns, computes positive
// deltas, serializes each as a big-endian uint64, and XORs the first
// half of the delta list against the second half.
func intervalXORFallback(events []model.Event) []byte {
	sorted := make([]model.Event, len(events))
	copy(sorted, events)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].HWTimestampNS < sorted[j].HWTimestampNS })

	var deltas []int64
	for i := 1; i < len(sorted); i++ {
		if d := sorted[i].HWTimestampNS - sorted[i-1].HWTimestampNS; d > 0 {
			deltas = append(deltas, d)
		}
	}
	if len(deltas) == 0 {
		return nil
	}

	serialized := make([][]byte, len(deltas))
	for i, d := range deltas {
		b := make([]byte, 8)
		binary.BigEndian.PutUint64(b, uint64(d))
		serialized[i] = b
	}

	half := len(serialized) / 2
	first := serialized[:half]
	second := serialized[half : 2*half]

	out := make([]byte, 8*half)
	for i := range first {
		for j := 0; j < 8; j++ {
			out[i*8+j] = first[i][j] ^ second[i][j]
		}
	}
	return out
}

// BitCount returns the number of bits represented by n bytes.
func BitCount(bytesLen int) int64 {
	return int64(bytesLen) * 8
}
