package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kitade/kita-jobs/internal/domain"
)

// JobRegistry holds every import job of the process, keyed by id.
type JobRegistry struct {
	mu          sync.RWMutex
	jobs        map[string]*job
	order       []string
	maxFinished int
	now         func() time.Time

	// running counts job goroutines that have not returned yet.
	running sync.WaitGroup
}

// NewJobRegistry creates a registry. When maxFinished is positive, the oldest
// finished jobs are evicted beyond that count; running jobs are always kept.
func NewJobRegistry(maxFinished int) *JobRegistry {
	return &JobRegistry{
		jobs:        make(map[string]*job),
		maxFinished: maxFinished,
		now:         time.Now,
	}
}

func (r *JobRegistry) create(kind domain.JobKind, source string, dryRun bool) *job {
	j := newJob(uuid.NewString(), kind, source, dryRun, r.now)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs[j.id] = j
	r.order = append(r.order, j.id)
	return j
}

func (r *JobRegistry) get(id string) (*job, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	j, ok := r.jobs[id]
	return j, ok
}

// Status returns a snapshot of the job.
func (r *JobRegistry) Status(id string) (domain.ImportJob, error) {
	j, ok := r.get(id)
	if !ok {
		return domain.ImportJob{}, ErrJobNotFound
	}
	return j.snapshot(), nil
}

// Wait blocks until every job goroutine has returned, including its run
// bookkeeping, or until ctx is done.
func (r *JobRegistry) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.running.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// List returns summaries of all known jobs, newest first.
func (r *JobRegistry) List() []domain.JobSummary {
	r.mu.RLock()
	jobs := make([]*job, 0, len(r.order))
	for i := len(r.order) - 1; i >= 0; i-- {
		jobs = append(jobs, r.jobs[r.order[i]])
	}
	r.mu.RUnlock()

	out := make([]domain.JobSummary, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, j.summary())
	}
	return out
}

// evictFinished drops the oldest finished jobs above the retention limit.
func (r *JobRegistry) evictFinished() {
	if r.maxFinished <= 0 {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	finished := 0
	for _, id := range r.order {
		if r.jobs[id].isTerminal() {
			finished++
		}
	}
	excess := finished - r.maxFinished
	if excess <= 0 {
		return
	}

	kept := r.order[:0]
	for _, id := range r.order {
		if excess > 0 && r.jobs[id].isTerminal() {
			delete(r.jobs, id)
			excess--
			continue
		}
		kept = append(kept, id)
	}
	r.order = kept
}
