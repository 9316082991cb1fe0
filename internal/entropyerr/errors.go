// Package entropyerr classifies the error kinds the core must distinguish
// (spec §7) as tags over go.chromium.org/luci/common/errors, the way the
// teacher annotates and reasons about errors in
// chromeperf/pinpoint/server/conversion/conversion.go.
package entropyerr

import (
	"fmt"

	"go.chromium.org/luci/common/errors"
)

// Kind tags classify why an operation failed, independent of the wire
// transport that eventually maps them to status codes.
var (
	InvalidInput         = errors.BoolTag{Key: errors.NewTagKey("invalid input")}
	InsufficientData     = errors.BoolTag{Key: errors.NewTagKey("insufficient data")}
	NotFound             = errors.BoolTag{Key: errors.NewTagKey("not found")}
	TemporaryUnavailable = errors.BoolTag{Key: errors.NewTagKey("temporary unavailable")}
	AuthUnavailable      = errors.BoolTag{Key: errors.NewTagKey("auth unavailable")}
	InternalInvariant    = errors.BoolTag{Key: errors.NewTagKey("internal invariant violated")}
)

// Invalid builds an InvalidInput error, e.g. malformed timestamps, inverted
// windows, non-positive parameters, unknown test types.
func Invalid(format string, args ...interface{}) error {
	return errors.Reason(format, args...).Tag(InvalidInput).Err()
}

// Insufficient builds an InsufficientData error, carrying needed/have per
// spec §7.
func Insufficient(needed, have int, format string, args ...interface{}) error {
	msg := fmt.Sprintf(format, args...)
	return errors.Reason("%s (need %d, have %d)", msg, needed, have).Tag(InsufficientData).Err()
}

// NeededHave is a (needed, have) pair as carried by an InsufficientData
// error's message. Insufficient does not attach it to the error, and no
// function here extracts it from one.
type NeededHave struct {
	Needed, Have int
}

// Missing builds a NotFound error for an unknown job id or run id.
func Missing(format string, args ...interface{}) error {
	return errors.Reason(format, args...).Tag(NotFound).Err()
}

// Unavailable builds a TemporaryUnavailable error for an unreachable
// remote validator or token endpoint.
func Unavailable(format string, args ...interface{}) error {
	return errors.Reason(format, args...).Tag(TemporaryUnavailable).Err()
}

// NoAuth builds an AuthUnavailable error: no caller token was propagated
// and a service token could not be obtained.
func NoAuth(format string, args ...interface{}) error {
	return errors.Reason(format, args...).Tag(AuthUnavailable).Err()
}

// Invariant builds an InternalInvariant error for a constructed state that
// violates an invariant (e.g. max_bytes_22*8 < min_bits_22).
func Invariant(format string, args ...interface{}) error {
	return errors.Reason(format, args...).Tag(InternalInvariant).Err()
}

// Is reports whether err is tagged with kind.
func Is(err error, kind errors.BoolTag) bool {
	return kind.In(err)
}
