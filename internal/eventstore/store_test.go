package eventstore

import (
	"testing"
	"time"

	"entropysvc/internal/model"

	. "github.com/smartystreets/goconvey/convey"
)

func TestEventRowRoundTrip(t *testing.T) {
	Convey(`toRow and toModel round-trip an Event`, t, func() {
		received := time.Date(2026, 1, 2, 3, 0, 0, 0, time.UTC)

		Convey(`with every optional field populated`, func() {
			rpi := int64(7)
			tdc := int64(5_000_000)
			ch := int32(2)
			delay := 12.5
			quality := 0.91

			e := model.Event{
				ID:             1,
				BatchID:        "batch-1",
				HWTimestampNS:  5000,
				SequenceNumber: 3,
				RPiTimestampUS: &rpi,
				TDCTimestampPS: &tdc,
				Channel:        &ch,
				Whitened:       []byte{1, 2, 3, 4, 5, 6, 7, 8},
				ServerReceived: received,
				NetworkDelayMS: &delay,
				SourceAddress:  "10.0.0.1",
				QualityScore:   &quality,
			}

			got := toRow(e).toModel()
			So(got, ShouldResemble, e)
		})

		Convey(`with every optional field absent`, func() {
			e := model.Event{
				ID:             2,
				HWTimestampNS:  9000,
				SequenceNumber: 0,
				ServerReceived: received,
			}

			got := toRow(e).toModel()
			So(got, ShouldResemble, e)
		})
	})
}

func TestWindowBoundsRejectsInvertedWindow(t *testing.T) {
	Convey(`windowBounds`, t, func() {
		start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

		Convey(`rejects end before start`, func() {
			So(windowBounds(start, start.Add(-time.Minute)), ShouldNotBeNil)
		})
		Convey(`rejects equal start and end`, func() {
			So(windowBounds(start, start), ShouldNotBeNil)
		})
		Convey(`accepts end after start`, func() {
			So(windowBounds(start, start.Add(time.Minute)), ShouldBeNil)
		})
	})
}
