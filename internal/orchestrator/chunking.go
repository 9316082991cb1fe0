package orchestrator

import (
	"entropysvc/internal/entropyerr"
)

// Config holds the operator knobs governing chunking and bit minimums
// (spec §6 "Operator knobs"; §4.6 "Chunking rules").
type Config struct {
	MinBits22   int // default 1,000,000
	MaxBytes22  int // default 1,250,000
	MaxBytes90B int // default 1,000,000
}

// DefaultConfig mirrors the spec's stated defaults.
func DefaultConfig() Config {
	return Config{MinBits22: 1_000_000, MaxBytes22: 1_250_000, MaxBytes90B: 1_000_000}
}

// Validate rejects a configuration where no chunk could ever satisfy
// MinBits22 (spec §4.6: "If max_bytes_22*8 < min_bits_22, configuration
// is rejected at job start").
func (c Config) Validate() error {
	if c.MaxBytes22*8 < c.MinBits22 {
		return entropyerr.Invariant("max_bytes_22*8 (%d) < min_bits_22 (%d)", c.MaxBytes22*8, c.MinBits22)
	}
	if c.MaxBytes90B <= 0 {
		return entropyerr.Invariant("max_bytes_90b must be positive, got %d", c.MaxBytes90B)
	}
	return nil
}

// minBytes22 is the minimum size a split chunk may have, ⌈min_bits_22/8⌉.
func (c Config) minBytes22() int {
	return (c.MinBits22 + 7) / 8
}

// ChunkSuite22 splits bits into SP 800-22 chunks per spec §4.6: a single
// chunk if it fits within MaxBytes22; otherwise MaxBytes22-sized chunks
// from the start, with the final chunk rebalanced to be at least
// minBytes22 when doing so is required. Config.Validate() must have
// already been called to guarantee such a split is always possible.
func ChunkSuite22(bits []byte, c Config) [][]byte {
	if len(bits) <= c.MaxBytes22 {
		return [][]byte{bits}
	}

	var chunks [][]byte
	remaining := bits
	for len(remaining) > c.MaxBytes22 {
		// If splitting off a full MaxBytes22 chunk would leave less than
		// the minimum behind for the final chunk, shrink this split so
		// the remainder meets the floor.
		take := c.MaxBytes22
		if len(remaining)-take < c.minBytes22() && len(remaining)-take > 0 {
			take = len(remaining) - c.minBytes22()
		}
		chunks = append(chunks, remaining[:take])
		remaining = remaining[take:]
	}
	chunks = append(chunks, remaining)
	return chunks
}

// ChunkAssess90B truncates the input to MaxBytes90B (spec §4.6: "the
// assessor operates on a single chunk").
func ChunkAssess90B(data []byte, c Config) []byte {
	if len(data) <= c.MaxBytes90B {
		return data
	}
	return data[:c.MaxBytes90B]
}
