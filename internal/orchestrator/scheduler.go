package orchestrator

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"go.chromium.org/luci/common/logging"

	"entropysvc/internal/model"
)

// Scheduler runs the hourly suite and weekly 90B jobs on cron
// expressions independent of operator input (spec §4.6 "Scheduled
// runs"), sharing the same worker pool as SubmitJob.
type Scheduler struct {
	orch  *Orchestrator
	cron  *cron.Cron
	actor string
}

// defaultHourlyCron and defaultWeeklyCron are the stated cadences (spec
// §4.6): "Hourly suite run... Weekly 90B run... at a configurable
// cron."
const (
	defaultHourlyCron = "0 * * * *"
	defaultWeeklyCron = "0 3 * * 0"
)

// scheduledActor marks jobs submitted by the scheduler rather than an
// operator, so they still flow through the same active-jobs accounting.
const scheduledActor = "system:scheduler"

// NewScheduler builds a Scheduler; hourlyCron/weeklyCron override the
// defaults when non-empty (operator knobs, spec §6).
func NewScheduler(orch *Orchestrator, hourlyCron, weeklyCron string) (*Scheduler, error) {
	if hourlyCron == "" {
		hourlyCron = defaultHourlyCron
	}
	if weeklyCron == "" {
		weeklyCron = defaultWeeklyCron
	}

	s := &Scheduler{orch: orch, cron: cron.New(), actor: scheduledActor}

	if _, err := s.cron.AddFunc(hourlyCron, s.runHourlySuite); err != nil {
		return nil, err
	}
	if _, err := s.cron.AddFunc(weeklyCron, s.runWeekly90B); err != nil {
		return nil, err
	}
	return s, nil
}

// Start begins the cron loop; it does not block.
func (s *Scheduler) Start() { s.cron.Start() }

// Stop halts the cron loop and waits for any running entry to complete.
func (s *Scheduler) Stop() { <-s.cron.Stop().Done() }

func (s *Scheduler) runHourlySuite() {
	ctx := context.Background()
	end := now()
	window := model.Window{Start: end.Add(-1 * time.Hour), End: end}
	if _, err := s.orch.SubmitJob(ctx, model.Suite22, window, s.actor, ""); err != nil {
		logging.Warningf(ctx, "scheduler: hourly suite22 submission failed: %v", err)
	}
}

func (s *Scheduler) runWeekly90B() {
	ctx := context.Background()
	end := now()
	window := model.Window{Start: end.Add(-7 * 24 * time.Hour), End: end}
	if _, err := s.orch.SubmitJob(ctx, model.Assess90B, window, s.actor, ""); err != nil {
		logging.Warningf(ctx, "scheduler: weekly assess90b submission failed: %v", err)
	}
}
