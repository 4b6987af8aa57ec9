package adminclient

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/kitade/kita-jobs/internal/domain"
)

// ErrJobInFlight is returned when a session is asked to start a second job
// before the first one finished.
var ErrJobInFlight = errors.New("an import is already in flight")

// Update is delivered to the caller after every poll.
type Update struct {
	Job       domain.ImportJob
	Processed []string
}

// Outcome is the end state of a session run. Kitas or Posts are only set for
// completed dry runs.
type Outcome struct {
	Job       domain.ImportJob
	Processed []string
	Kitas     []domain.Kita
	Posts     []domain.KnowledgePost
}

// Session drives one import at a time: start, poll until terminal and fetch
// the dry-run preview.
type Session struct {
	client *Client
	poller *Poller

	mu       sync.Mutex
	inFlight bool
}

// NewSession creates a session polling every interval.
func NewSession(client *Client, interval time.Duration) *Session {
	return &Session{client: client, poller: NewPoller(client, interval)}
}

// RunImport starts a Kita import and blocks until it finishes or ctx ends.
func (s *Session) RunImport(ctx context.Context, req StartImportRequest, onUpdate func(Update)) (*Outcome, error) {
	return s.run(ctx, req.DryRun, func(ctx context.Context) (string, error) {
		return s.client.StartImport(ctx, req)
	}, onUpdate)
}

// RunKnowledgeImport starts a paged knowledge import and blocks until it
// finishes or ctx ends.
func (s *Session) RunKnowledgeImport(ctx context.Context, req KnowledgeImportRequest, onUpdate func(Update)) (*Outcome, error) {
	return s.run(ctx, req.DryRun, func(ctx context.Context) (string, error) {
		return s.client.StartKnowledgeImport(ctx, req)
	}, onUpdate)
}

// RunSpecificKnowledge imports the given post ids and blocks until done.
func (s *Session) RunSpecificKnowledge(ctx context.Context, postIDs []int, dryRun bool, onUpdate func(Update)) (*Outcome, error) {
	return s.run(ctx, dryRun, func(ctx context.Context) (string, error) {
		accepted, err := s.client.ImportSpecificKnowledge(ctx, postIDs, dryRun)
		if err != nil {
			return "", err
		}
		return accepted.JobID, nil
	}, onUpdate)
}

func (s *Session) acquire() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inFlight {
		return false
	}
	s.inFlight = true
	return true
}

func (s *Session) release() {
	s.mu.Lock()
	s.inFlight = false
	s.mu.Unlock()
}

func (s *Session) run(ctx context.Context, dryRun bool, start func(context.Context) (string, error), onUpdate func(Update)) (*Outcome, error) {
	if !s.acquire() {
		return nil, ErrJobInFlight
	}
	defer s.release()

	jobID, err := start(ctx)
	if err != nil {
		return nil, err
	}

	var names ProcessedNames
	final, err := s.poller.Run(ctx, jobID, func(job domain.ImportJob) {
		names.Merge(job.Logs)
		if onUpdate != nil {
			onUpdate(Update{Job: job, Processed: names.Names()})
		}
	})
	if err != nil {
		return nil, err
	}

	out := &Outcome{Job: *final, Processed: names.Names()}
	if !dryRun || final.Status != domain.JobStatusCompleted {
		return out, nil
	}

	if final.Kind == domain.JobKindKnowledge {
		out.Posts, err = s.client.KnowledgeResults(ctx, jobID)
	} else {
		out.Kitas, err = s.client.Results(ctx, jobID)
	}
	if err != nil {
		return out, err
	}
	return out, nil
}
