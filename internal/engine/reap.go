package engine

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ReapStaleJobs fails every running job that started more than maxRuntime
// ago. Each stale job goes through the ordinary failure path in its own
// transaction, so group settling, artifacts, and counters behave exactly as
// if the executor had reported the failure itself. Returns how many jobs
// were reaped. A non-positive maxRuntime disables the sweep.
func (e *Engine) ReapStaleJobs(ctx context.Context, maxRuntime time.Duration) (int, error) {
	if maxRuntime <= 0 {
		return 0, nil
	}
	cutoff := e.now().Add(-maxRuntime)
	stale, err := e.store.ListRunningJobsOlderThan(ctx, nil, cutoff)
	if err != nil {
		return 0, err
	}

	reaped := 0
	for _, j := range stale {
		msg := fmt.Sprintf("reaped: job exceeded max runtime of %s", maxRuntime)
		if _, err := e.FailJob(ctx, j.ID, &msg); err != nil {
			// a job that finished between the scan and the sweep is fine
			if errors.Is(err, ErrInvalidTransition) {
				continue
			}
			return reaped, err
		}
		e.log.Warn("stale job reaped",
			"job_id", j.ID,
			"group_id", j.GroupID,
			"started_at", j.StartedAt)
		reaped++
	}
	return reaped, nil
}
