package service

import (
	"context"
	"fmt"
	"time"

	"github.com/kitade/kita-jobs/internal/domain"
	"github.com/kitade/kita-jobs/internal/logger"
)

// RunRecorder persists the summary of a finished job.
type RunRecorder interface {
	RecordRun(ctx context.Context, run *domain.ImportRun) error
}

// runner starts job goroutines and owns their terminal bookkeeping.
type runner struct {
	registry *JobRegistry
	runs     RunRecorder
	baseCtx  context.Context
	logger   *logger.Logger
}

func newRunner(baseCtx context.Context, registry *JobRegistry, runs RunRecorder, log *logger.Logger) *runner {
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	if log == nil {
		log = logger.GetDefault()
	}
	return &runner{registry: registry, runs: runs, baseCtx: baseCtx, logger: log}
}

// launch registers a job and runs fn on its own goroutine. A returned error
// or a panic fails the job; otherwise it completes.
func (r *runner) launch(kind domain.JobKind, sourceID string, dryRun bool, fn func(ctx context.Context, j *job) error) *job {
	j := r.registry.create(kind, sourceID, dryRun)

	ctx := r.logger.WithContext(r.baseCtx)
	ctx = logger.SetJobID(ctx, j.id)
	ctx = logger.WithFields(ctx, logger.Fields{
		logger.FieldJobKind: string(kind),
		logger.FieldSource:  sourceID,
		logger.FieldDryRun:  dryRun,
	})
	ctx = logger.SetComponent(ctx, "import")

	r.registry.running.Add(1)
	go r.run(ctx, j, fn)
	return j
}

func (r *runner) run(ctx context.Context, j *job, fn func(ctx context.Context, j *job) error) {
	start := time.Now()
	defer r.registry.running.Done()
	defer func() {
		if p := recover(); p != nil {
			logger.CtxError(ctx, "Import job panicked: %v", p)
			j.fail(fmt.Errorf("internal error: %v", p))
		}
		r.finish(ctx, j, start)
	}()

	logger.CtxInfo(ctx, "Import job started")
	if err := fn(ctx, j); err != nil {
		logger.FromContext(ctx).WithError(err).Error("Import job failed")
		j.fail(err)
		return
	}
	j.complete()
}

func (r *runner) finish(ctx context.Context, j *job, start time.Time) {
	snap := j.summary()
	logger.With(logger.Fields{
		logger.FieldStatus:   string(snap.Status),
		logger.FieldProgress: snap.Progress,
	}).WithCount(snap.Stats.Processed).
		WithDuration(time.Since(start).Milliseconds()).
		Info(ctx, "Import job finished")

	if r.runs != nil {
		recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if err := r.runs.RecordRun(recordCtx, j.toRun()); err != nil {
			logger.FromContext(ctx).WithError(err).Warn("Failed to record import run")
		}
	}

	r.registry.evictFinished()
}

// logf appends a job log entry and mirrors it to the structured log.
func (r *runner) logf(ctx context.Context, j *job, level domain.LogLevel, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	j.appendLog(level, msg, nil)
	mirror(ctx, level, msg)
}

// logExtracted appends the "-> Extracted" entry for one record.
func (r *runner) logExtracted(ctx context.Context, j *job, name, detail string) {
	msg := extractedMessage(name, detail)
	j.appendLog(domain.LogLevelInfo, msg, &domain.Extracted{Name: name, Detail: detail})
	logger.CtxDebug(ctx, "%s", msg)
}

func mirror(ctx context.Context, level domain.LogLevel, msg string) {
	switch level {
	case domain.LogLevelError:
		logger.CtxError(ctx, "%s", msg)
	case domain.LogLevelWarn:
		logger.CtxWarn(ctx, "%s", msg)
	default:
		logger.CtxInfo(ctx, "%s", msg)
	}
}

// progressOf returns done/total as a rounded percentage.
func progressOf(done, total int) int {
	if total <= 0 {
		return 0
	}
	return (done*100 + total/2) / total
}
