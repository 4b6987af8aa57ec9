package service

import (
	"fmt"
	"sync"
	"time"

	"github.com/kitade/kita-jobs/internal/domain"
)

// extractedMessage formats the log line the admin UI scans for names.
func extractedMessage(name, detail string) string {
	return fmt.Sprintf("-> Extracted: %s (%s)", name, detail)
}

// job is the mutable state of one import run. Only the goroutine running the
// job writes to it; readers take snapshots under mu.
type job struct {
	mu sync.Mutex

	id         string
	kind       domain.JobKind
	source     string
	dryRun     bool
	status     domain.JobStatus
	progress   int
	logs       []domain.LogEntry
	errMsg     string
	stats      domain.JobStats
	createdAt  time.Time
	finishedAt *time.Time

	kitas []domain.Kita
	posts []domain.KnowledgePost

	now func() time.Time
}

func newJob(id string, kind domain.JobKind, source string, dryRun bool, now func() time.Time) *job {
	return &job{
		id:        id,
		kind:      kind,
		source:    source,
		dryRun:    dryRun,
		status:    domain.JobStatusRunning,
		logs:      []domain.LogEntry{},
		createdAt: now(),
		now:       now,
	}
}

// appendLog adds an entry unless the job already reached a terminal state.
func (j *job) appendLog(level domain.LogLevel, message string, extracted *domain.Extracted) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.status.IsTerminal() {
		return
	}
	j.logs = append(j.logs, domain.LogEntry{
		Timestamp: j.now(),
		Level:     level,
		Message:   message,
		Extracted: extracted,
	})
}

// setProgress raises progress to p. Lower values are ignored.
func (j *job) setProgress(p int) {
	if p > 100 {
		p = 100
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.status.IsTerminal() || p <= j.progress {
		return
	}
	j.progress = p
}

func (j *job) updateStats(fn func(*domain.JobStats)) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if !j.status.IsTerminal() {
		fn(&j.stats)
	}
}

func (j *job) bufferKita(k domain.Kita) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if !j.status.IsTerminal() {
		j.kitas = append(j.kitas, k)
	}
}

func (j *job) bufferPost(p domain.KnowledgePost) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if !j.status.IsTerminal() {
		j.posts = append(j.posts, p)
	}
}

// complete moves a running job to completed with progress 100.
func (j *job) complete() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.status.IsTerminal() {
		return false
	}
	now := j.now()
	j.status = domain.JobStatusCompleted
	j.progress = 100
	j.finishedAt = &now
	return true
}

// fail moves a running job to failed, recording err as the final log entry.
func (j *job) fail(err error) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.status.IsTerminal() {
		return false
	}
	now := j.now()
	j.errMsg = err.Error()
	j.logs = append(j.logs, domain.LogEntry{
		Timestamp: now,
		Level:     domain.LogLevelError,
		Message:   "Import failed: " + j.errMsg,
	})
	j.status = domain.JobStatusFailed
	j.finishedAt = &now
	return true
}

func (j *job) isTerminal() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.status.IsTerminal()
}

// snapshot returns a deep copy that is safe to hand to other goroutines.
func (j *job) snapshot() domain.ImportJob {
	j.mu.Lock()
	defer j.mu.Unlock()

	logs := make([]domain.LogEntry, len(j.logs))
	copy(logs, j.logs)
	for i := range logs {
		if logs[i].Extracted != nil {
			e := *logs[i].Extracted
			logs[i].Extracted = &e
		}
	}

	return domain.ImportJob{
		ID:         j.id,
		Kind:       j.kind,
		Status:     j.status,
		Progress:   j.progress,
		Logs:       logs,
		Error:      j.errMsg,
		DryRun:     j.dryRun,
		Stats:      j.stats,
		CreatedAt:  j.createdAt,
		FinishedAt: copyTime(j.finishedAt),
	}
}

func (j *job) summary() domain.JobSummary {
	j.mu.Lock()
	defer j.mu.Unlock()
	return domain.JobSummary{
		ID:         j.id,
		Kind:       j.kind,
		Status:     j.status,
		Progress:   j.progress,
		Error:      j.errMsg,
		DryRun:     j.dryRun,
		Stats:      j.stats,
		CreatedAt:  j.createdAt,
		FinishedAt: copyTime(j.finishedAt),
	}
}

// previewable reports why results cannot be shown, or nil if they can.
func (j *job) previewable() error {
	if !j.dryRun {
		return fmt.Errorf("%w: job %s is a live run", ErrResultsUnavailable, j.id)
	}
	if j.status != domain.JobStatusCompleted {
		return fmt.Errorf("%w: job %s is %s", ErrResultsUnavailable, j.id, j.status)
	}
	return nil
}

func (j *job) kitaResults() ([]domain.Kita, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.kind != domain.JobKindKitas {
		return nil, fmt.Errorf("%w: job %s imports %s", ErrResultsUnavailable, j.id, j.kind)
	}
	if err := j.previewable(); err != nil {
		return nil, err
	}
	out := make([]domain.Kita, len(j.kitas))
	for i, k := range j.kitas {
		out[i] = k
		if k.Extra != nil {
			out[i].Extra = make(domain.StringMap, len(k.Extra))
			for key, v := range k.Extra {
				out[i].Extra[key] = v
			}
		}
	}
	return out, nil
}

func (j *job) postResults() ([]domain.KnowledgePost, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.kind != domain.JobKindKnowledge {
		return nil, fmt.Errorf("%w: job %s imports %s", ErrResultsUnavailable, j.id, j.kind)
	}
	if err := j.previewable(); err != nil {
		return nil, err
	}
	out := make([]domain.KnowledgePost, len(j.posts))
	copy(out, j.posts)
	return out, nil
}

func (j *job) toRun() *domain.ImportRun {
	j.mu.Lock()
	defer j.mu.Unlock()
	run := &domain.ImportRun{
		ID:        j.id,
		Kind:      j.kind,
		Source:    j.source,
		Status:    j.status,
		DryRun:    j.dryRun,
		Processed: j.stats.Processed,
		Extracted: j.stats.Extracted,
		Failed:    j.stats.Failed,
		Persisted: j.stats.Persisted,
		ErrorLog:  j.errMsg,
		StartedAt: j.createdAt,
	}
	if j.finishedAt != nil {
		run.FinishedAt = *j.finishedAt
	}
	return run
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
