// Package feeder is C8: a periodic task that writes whitened event
// bytes to the host entropy device (spec §4.7). Grounded on the
// retry.ExponentialBackoff/retry.Limited usage in
// crosskylabadmin/app/frontend/tracker.go for the bounded-retry write,
// and on eventstore.Store for the [now-15s, now] window read.
package feeder

import (
	"context"
	"io"
	"sync/atomic"
	"time"

	"go.chromium.org/luci/common/errors"
	"go.chromium.org/luci/common/logging"
	"go.chromium.org/luci/common/retry"

	"entropysvc/internal/eventstore"
)

// lookback and maxWriteBytes are spec §4.7's stated window and cap.
const (
	lookback      = 15 * time.Second
	maxWriteBytes = 512
)

// DefaultPeriod is C8's tick cadence (spec §4.7: "periodically, default
// every few seconds").
const DefaultPeriod = 5 * time.Second

// feederRetry implements spec §4.7 step 4: "retry up to 3 times with
// exponential backoff (base 100ms, x2)".
var feederRetry = retry.ExponentialBackoff{
	Limited: retry.Limited{
		Delay:   100 * time.Millisecond,
		Retries: 3,
	},
}

func feederRetryFactory() retry.Factory {
	return func() retry.Iterator {
		r := feederRetry
		return &r
	}
}

// concatCapped concatenates byte slices in order, stopping as soon as
// cap bytes have been gathered and truncating the final slice so the
// result is never longer than cap (spec §4.7 step 2: "cap at 512
// bytes, never pad with deterministic filler").
func concatCapped(slices [][]byte, cap int) []byte {
	var buf []byte
	for _, s := range slices {
		if len(buf) >= cap {
			break
		}
		buf = append(buf, s...)
	}
	if len(buf) > cap {
		buf = buf[:cap]
	}
	return buf
}

// Feeder is C8.
type Feeder struct {
	events *eventstore.Store
	device io.Writer

	operational       int32 // 0 or 1, accessed atomically
	totalBytesWritten int64
}

// New builds a Feeder writing to device (the host entropy device's
// write handle; construction of the actual os.File is the caller's
// concern, per spec §4.7 "direct write call, no credit ioctl").
func New(events *eventstore.Store, device io.Writer) *Feeder {
	return &Feeder{events: events, device: device, operational: 1}
}

// Tick runs one feeder cycle (spec §4.7 steps 1-4).
func (f *Feeder) Tick(ctx context.Context) error {
	now := time.Now()
	intervals, err := f.events.Window(ctx, now.Add(-lookback), now)
	if err != nil {
		return errors.Annotate(err, "loading feeder window").Err()
	}

	whitened := make([][]byte, len(intervals))
	for i, e := range intervals {
		whitened[i] = e.Whitened
	}
	buf := concatCapped(whitened, maxWriteBytes)
	if len(buf) == 0 {
		// Nothing available this tick; spec §4.7 step 2: "if zero, skip
		// the tick."
		return nil
	}

	return retryWrite(ctx, f, buf)
}

// retryWrite performs the bounded-retry device write (spec §4.7 step
// 4), factored out of Tick so it is exercisable without a live
// eventstore.Store.
func retryWrite(ctx context.Context, f *Feeder, buf []byte) error {
	err := retry.Retry(ctx, feederRetryFactory(), func() error {
		n, werr := f.device.Write(buf)
		if werr != nil {
			return werr
		}
		atomic.AddInt64(&f.totalBytesWritten, int64(n))
		return nil
	}, retry.LogCallback(ctx, "entropy device write"))

	if err != nil {
		atomic.StoreInt32(&f.operational, 0)
		logging.Errorf(ctx, "feeder: write failed after retries: %v", err)
		return errors.Annotate(err, "writing %d bytes to entropy device", len(buf)).Err()
	}

	atomic.StoreInt32(&f.operational, 1)
	return nil
}

// Operational reports whether the most recent write attempt succeeded
// (spec §4.7 step 5).
func (f *Feeder) Operational() bool {
	return atomic.LoadInt32(&f.operational) == 1
}

// TotalBytesWritten is a cumulative counter across the process lifetime
// (spec §4.7 step 5).
func (f *Feeder) TotalBytesWritten() int64 {
	return atomic.LoadInt64(&f.totalBytesWritten)
}

// Run loops Tick on period until ctx is cancelled (spec §4.7:
// "periodically, default every few seconds").
func (f *Feeder) Run(ctx context.Context, period time.Duration) {
	t := time.NewTicker(period)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := f.Tick(ctx); err != nil {
				logging.Warningf(ctx, "feeder: tick error: %v", err)
			}
		}
	}
}
