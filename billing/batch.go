package billing

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// Job is the input snapshot for one charge.
type Job struct {
	Charge   ChargeDefinition
	Anchor   *TimePoint
	Payments []PaymentRecord
}

// Result pairs a job's charge with its status. Err carries configuration
// errors unmodified; one misconfigured charge does not hide the others.
type Result struct {
	Charge ChargeDefinition
	Status ChargePaymentStatus
	Err    error
}

// ReconcileAll reconciles every job in parallel. Each goroutine reads only its
// own job and writes only its own slot of the result slice, so results keep
// job order. The returned error is non-nil only if ctx is done.
func (e *Engine) ReconcileAll(ctx context.Context, jobs []Job, now TimePoint) ([]Result, error) {
	results := make([]Result, len(jobs))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i := range jobs {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			job := jobs[i]
			status, err := e.Reconcile(job.Charge, job.Anchor, job.Payments, now)
			results[i] = Result{Charge: job.Charge, Status: status, Err: err}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
