package adminclient

import (
	"context"
	"fmt"
	"time"

	"github.com/kitade/kita-jobs/internal/domain"
	"github.com/kitade/kita-jobs/internal/logger"
)

// DefaultPollInterval is how often job status is requested.
const DefaultPollInterval = 3 * time.Second

// StatusGetter is the part of Client the Poller needs.
type StatusGetter interface {
	Status(ctx context.Context, jobID string) (*domain.ImportJob, error)
}

// Poller polls a job until it reaches a terminal state.
type Poller struct {
	client   StatusGetter
	interval time.Duration
	// MaxErrors is the number of consecutive failed polls tolerated before
	// Run gives up. A 404 always ends polling.
	MaxErrors int
}

// NewPoller creates a Poller. A non-positive interval uses DefaultPollInterval.
func NewPoller(client StatusGetter, interval time.Duration) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Poller{client: client, interval: interval, MaxErrors: 3}
}

// Run polls jobID immediately and then every interval, calling onUpdate with
// each snapshot. It returns the terminal snapshot, or ctx.Err() as soon as
// ctx is cancelled; no poll is issued after cancellation.
func (p *Poller) Run(ctx context.Context, jobID string, onUpdate func(domain.ImportJob)) (*domain.ImportJob, error) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	failures := 0
	for {
		snap, err := p.client.Status(ctx, jobID)
		switch {
		case ctx.Err() != nil:
			return nil, ctx.Err()
		case err != nil:
			failures++
			if IsNotFound(err) || failures > p.MaxErrors {
				return nil, fmt.Errorf("poll job %s: %w", jobID, err)
			}
			logger.CtxWarn(ctx, "Status poll for job %s failed (%d/%d): %v", jobID, failures, p.MaxErrors, err)
		default:
			failures = 0
			if onUpdate != nil {
				onUpdate(*snap)
			}
			if snap.Status.IsTerminal() {
				return snap, nil
			}
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
