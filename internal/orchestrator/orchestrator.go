// Package orchestrator is C7: the asynchronous validation job
// lifecycle, chunking, remote validator fan-out, and startup recovery
// (spec §4.6). The bounded worker pool is grounded on the
// errgroup+semaphore producer/consumer idiom in
// appengine/weetbix/internal/services/resultcollector/collect_test_results.go,
// generalized from a ResultDB batch-fetch fan-out to a per-job chunk
// validator fan-out.
package orchestrator

import (
	"time"

	"github.com/google/uuid"
)

// ActiveJobsLimiter rejects job submission once an actor has too many
// non-terminal jobs (spec §4.6 "Pre-flight").
type ActiveJobsLimiter struct {
	MaxActivePerActor int
}

// DefaultMaxActivePerActor is the per-actor active-job limit. New always
// applies this value; no constructor parameter or flag overrides it.
const DefaultMaxActivePerActor = 5

// newRunID mints a job/run identifier, sharing run_id across every
// chunk of a single job (spec §4.6 "Result persistence").
func newRunID() string {
	return uuid.NewString()
}

// newJobID mints a distinct job identifier; kept separate from run_id
// even though both are currently UUIDs, since spec §3 treats job_id and
// run_id as logically distinct fields on ValidationJob.
func newJobID() string {
	return uuid.NewString()
}

// now is indirected for deterministic tests.
var now = time.Now
