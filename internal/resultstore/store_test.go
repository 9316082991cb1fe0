package resultstore

import (
	"testing"
	"time"

	"entropysvc/internal/model"

	. "github.com/smartystreets/goconvey/convey"
)

func TestJobRowRoundTrip(t *testing.T) {
	Convey(`jobToRow and toModel round-trip a ValidationJob`, t, func() {
		started := time.Date(2026, 1, 2, 3, 0, 0, 0, time.UTC)
		completed := started.Add(5 * time.Minute)

		Convey(`with optional timestamps and error populated`, func() {
			job := model.ValidationJob{
				JobID:           "job-1",
				Type:            model.Suite22,
				Status:          model.JobFailed,
				ProgressPercent: 42.5,
				CurrentChunk:    1,
				TotalChunks:     3,
				WindowStart:     started.Add(-time.Hour),
				WindowEnd:       started,
				CreatedAt:       started.Add(-2 * time.Hour),
				StartedAt:       &started,
				CompletedAt:     &completed,
				Error:           "failed during processing",
				CreatedBy:       "alice",
				RunID:           "run-1",
			}

			got := jobToRow(job).toModel()
			So(got, ShouldResemble, job)
		})

		Convey(`with optional timestamps and error absent`, func() {
			job := model.ValidationJob{
				JobID:       "job-2",
				Type:        model.Assess90B,
				Status:      model.JobQueued,
				WindowStart: started.Add(-time.Hour),
				WindowEnd:   started,
				CreatedAt:   started.Add(-2 * time.Hour),
				CreatedBy:   "bob",
				RunID:       "run-2",
			}

			got := jobToRow(job).toModel()
			So(got, ShouldResemble, job)
			So(got.StartedAt, ShouldBeNil)
			So(got.CompletedAt, ShouldBeNil)
		})
	})
}
