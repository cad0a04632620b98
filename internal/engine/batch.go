package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// DefaultParallelism caps how many lifecycles RunAll drives at once.
const DefaultParallelism = 10

// Job is one lifecycle in a batch.
type Job struct {
	Spec   ResourceSpec
	Policy Policy
}

// JobResult is the outcome of the job at Index.
type JobResult struct {
	Index  int
	Result *Result
	Err    error
}

// ExpandCount returns n jobs for the same spec. With more than one copy the
// generated names get a "-<index>" suffix so copies named in the same second
// do not collide.
func ExpandCount(spec ResourceSpec, policy Policy, n int) []Job {
	if n <= 1 {
		return []Job{{Spec: spec, Policy: policy}}
	}

	base := policy.withDefaults().Namer
	jobs := make([]Job, n)
	for i := range jobs {
		p := policy
		index := i
		p.Namer = func() string { return fmt.Sprintf("%s-%d", base(), index) }
		jobs[i] = Job{Spec: spec, Policy: p}
	}
	return jobs
}

// RunAll runs every job as its own lifecycle, at most parallelism at a time.
// A failed job does not stop the others. Results are in job order; the
// returned error joins the errors of all failed jobs.
func (c *Controller) RunAll(ctx context.Context, jobs []Job, parallelism int) ([]JobResult, error) {
	if parallelism <= 0 {
		parallelism = DefaultParallelism
	}

	results := make([]JobResult, len(jobs))
	sem := make(chan struct{}, parallelism)
	var wg sync.WaitGroup

	for i, job := range jobs {
		wg.Add(1)
		go func(i int, job Job) {
			defer wg.Done()
			results[i].Index = i

			// Acquire semaphore slot
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				results[i].Err = fmt.Errorf("cancelled before start: %w", ctx.Err())
				return
			}
			defer func() { <-sem }()

			if err := ctx.Err(); err != nil {
				results[i].Err = fmt.Errorf("cancelled before start: %w", err)
				return
			}
			results[i].Result, results[i].Err = c.Run(ctx, job.Spec, job.Policy)
		}(i, job)
	}

	wg.Wait()

	var errs []error
	for _, r := range results {
		if r.Err != nil {
			errs = append(errs, fmt.Errorf("lifecycle %d: %w", r.Index, r.Err))
		}
	}
	if len(errs) > 0 {
		return results, fmt.Errorf("%d of %d lifecycle(s) failed: %w", len(errs), len(jobs), errors.Join(errs...))
	}
	return results, nil
}
