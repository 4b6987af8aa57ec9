package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/kitade/kita-jobs/internal/domain"
	"github.com/kitade/kita-jobs/internal/logger"
	"github.com/kitade/kita-jobs/internal/source"
)

// KitaStore persists extracted facilities.
type KitaStore interface {
	UpsertKita(ctx context.Context, kita *domain.Kita) error
}

// ImportService runs Kita directory imports.
type ImportService struct {
	*runner
	source source.KitaSource
	store  KitaStore
}

// ImportConfig wires an ImportService.
type ImportConfig struct {
	// BaseContext bounds every job; cancel it on shutdown.
	BaseContext context.Context
	Registry    *JobRegistry
	Source      source.KitaSource
	// Store may be nil, in which case only dry runs are accepted.
	Store  KitaStore
	Runs   RunRecorder
	Logger *logger.Logger
}

// NewImportService creates a new import service
func NewImportService(cfg ImportConfig) *ImportService {
	return &ImportService{
		runner: newRunner(cfg.BaseContext, cfg.Registry, cfg.Runs, cfg.Logger),
		source: cfg.Source,
		store:  cfg.Store,
	}
}

// ListBezirke returns the districts of a Bundesland page. Source errors are
// returned unwrapped so callers can inspect *source.FetchError.
func (s *ImportService) ListBezirke(ctx context.Context, stateURL string) ([]domain.Bezirk, error) {
	if strings.TrimSpace(stateURL) == "" {
		return nil, validationError("bundesland url is required")
	}
	return s.source.ListBezirke(ctx, stateURL)
}

// StartImport validates the request, registers a job and crawls the given
// districts in the background. It returns as soon as the job exists.
func (s *ImportService) StartImport(ctx context.Context, bezirke []domain.Bezirk, limitPerBezirk int, dryRun bool) (string, error) {
	if len(bezirke) == 0 {
		return "", validationError("at least one bezirk is required")
	}
	if limitPerBezirk <= 0 {
		return "", validationError("kita limit per bezirk must be positive, got %d", limitPerBezirk)
	}
	for i, b := range bezirke {
		if strings.TrimSpace(b.URL) == "" {
			return "", validationError("bezirk %d (%q) has no url", i, b.Name)
		}
	}
	if !dryRun && s.store == nil {
		return "", validationError("live import requires a database")
	}

	selected := make([]domain.Bezirk, len(bezirke))
	copy(selected, bezirke)

	j := s.launch(domain.JobKindKitas, s.source.GetSourceID(), dryRun, func(ctx context.Context, j *job) error {
		return s.importKitas(ctx, j, selected, limitPerBezirk)
	})

	logger.FromContext(ctx).WithFields(logger.Fields{
		logger.FieldJobID:  j.id,
		logger.FieldCount:  len(selected),
		logger.FieldDryRun: dryRun,
	}).Info("Kita import accepted")

	return j.id, nil
}

// Status returns a snapshot of the job.
func (s *ImportService) Status(jobID string) (domain.ImportJob, error) {
	return s.registry.Status(jobID)
}

// Results returns the facilities buffered by a completed dry run.
func (s *ImportService) Results(jobID string) ([]domain.Kita, error) {
	j, ok := s.registry.get(jobID)
	if !ok {
		return nil, ErrJobNotFound
	}
	return j.kitaResults()
}

// importKitas walks the districts in order. A district whose listing cannot
// be fetched fails the job; single facilities are skipped on error.
func (s *ImportService) importKitas(ctx context.Context, j *job, bezirke []domain.Bezirk, limit int) error {
	// planned[i] is limit until district i is listed, then its actual count.
	planned := make([]int, len(bezirke))
	for i := range planned {
		planned[i] = limit
	}
	processed := 0
	total := func() int {
		sum := 0
		for _, n := range planned {
			sum += n
		}
		return sum
	}

	s.logf(ctx, j, domain.LogLevelInfo, "Starting import of %d Bezirke (limit %d per Bezirk, dry run: %t)", len(bezirke), limit, j.dryRun)

	for i, b := range bezirke {
		bctx := logger.WithField(ctx, logger.FieldBezirk, b.Name)
		s.logf(bctx, j, domain.LogLevelInfo, "Processing Bezirk %s", b.Name)

		refs, err := s.source.ListKitas(bctx, b, limit)
		var partial *source.PartialListError
		switch {
		case errors.As(err, &partial):
			s.logf(bctx, j, domain.LogLevelWarn, "Listing of %s is incomplete, continuing with %d Kitas: %v", b.Name, len(refs), partial.Err)
		case err != nil:
			return fmt.Errorf("list kitas of bezirk %s: %w", b.Name, err)
		}
		if len(refs) > limit {
			refs = refs[:limit]
		}
		planned[i] = len(refs)
		s.logf(bctx, j, domain.LogLevelInfo, "Found %d Kitas in %s", len(refs), b.Name)

		for _, ref := range refs {
			if err := ctx.Err(); err != nil {
				return fmt.Errorf("import interrupted: %w", err)
			}
			s.importKita(bctx, j, ref)
			processed++
			j.setProgress(progressOf(processed, total()))
		}
		j.setProgress(progressOf(processed, total()))
	}

	stats := j.summary().Stats
	s.logf(ctx, j, domain.LogLevelInfo, "Import finished: %d extracted, %d failed, %d saved", stats.Extracted, stats.Failed, stats.Persisted)
	return nil
}

// importKita extracts one facility and buffers or stores it. Failures are
// logged on the job and never returned.
func (s *ImportService) importKita(ctx context.Context, j *job, ref domain.KitaRef) {
	ctx = logger.WithField(ctx, logger.FieldURL, ref.URL)

	kita, err := s.source.ExtractKita(ctx, ref)
	if err == nil {
		err = kita.Validate()
	}
	if err != nil {
		j.updateStats(func(st *domain.JobStats) { st.Processed++; st.Failed++ })
		s.logf(ctx, j, domain.LogLevelError, "Failed to extract %s: %v", refLabel(ref), err)
		return
	}

	j.updateStats(func(st *domain.JobStats) { st.Processed++; st.Extracted++ })
	s.logExtracted(ctx, j, kita.Name, kita.Summary())

	if j.dryRun {
		j.bufferKita(*kita)
		return
	}

	if err := s.store.UpsertKita(ctx, kita); err != nil {
		j.updateStats(func(st *domain.JobStats) { st.Failed++ })
		s.logf(ctx, j, domain.LogLevelError, "Failed to save %s: %v", kita.Name, err)
		return
	}
	j.updateStats(func(st *domain.JobStats) { st.Persisted++ })
}

func refLabel(ref domain.KitaRef) string {
	if ref.Name != "" {
		return fmt.Sprintf("%s (%s)", ref.Name, ref.URL)
	}
	return ref.URL
}
