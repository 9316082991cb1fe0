package orchestrator

import (
	"context"

	"entropysvc/internal/entropyerr"
	"entropysvc/internal/model"
)

// GetStatus returns the persisted job row verbatim (spec §4.6 "Progress
// reads").
func (o *Orchestrator) GetStatus(ctx context.Context, jobID string) (model.ValidationJob, error) {
	return o.results.GetJob(ctx, jobID)
}

// Result is the computed aggregate GetResult returns for a completed
// job (spec §4.6), distinct shapes per job type.
type Result struct {
	Job         model.ValidationJob
	TestResults []model.TestResult
	Assessment  *model.AssessmentResult
	Estimators  []model.EstimatorResult
}

// GetResult requires the job to be COMPLETED (spec §4.6) and returns a
// computed aggregate from chunk rows.
func (o *Orchestrator) GetResult(ctx context.Context, jobID string) (Result, error) {
	job, err := o.results.GetJob(ctx, jobID)
	if err != nil {
		return Result{}, err
	}
	if job.Status != model.JobCompleted {
		return Result{}, entropyerr.Invalid("job %s is %s, not COMPLETED", jobID, job.Status)
	}

	switch job.Type {
	case model.Suite22:
		rows, err := o.results.TestResultsForRun(ctx, job.RunID)
		if err != nil {
			return Result{}, err
		}
		return Result{Job: job, TestResults: rows}, nil
	case model.Assess90B:
		agg, ests, err := o.results.AssessmentForRun(ctx, job.RunID)
		if err != nil {
			return Result{}, err
		}
		return Result{Job: job, Assessment: &agg, Estimators: ests}, nil
	default:
		return Result{}, entropyerr.Invariant("job %s has unknown type %q", jobID, job.Type)
	}
}
