package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/kitade/kita-jobs/internal/domain"
	"github.com/kitade/kita-jobs/internal/logger"
	"github.com/kitade/kita-jobs/internal/source"
)

const (
	maxKnowledgeLimit     = 100
	defaultPreviewLimit   = 10
	defaultSearchLimit    = 20
	statusURLPrefix       = "/api/import/status/"
	specificAcceptMessage = "Import of %d knowledge posts started"
)

// KnowledgeStore persists knowledge posts.
type KnowledgeStore interface {
	UpsertPost(ctx context.Context, post *domain.KnowledgePost) error
}

// KnowledgeImportRequest selects the WordPress pages to import.
type KnowledgeImportRequest struct {
	Limit             int  `json:"limit"`
	Page              int  `json:"page"`
	TotalPagesToFetch int  `json:"totalPagesToFetch"`
	DryRun            bool `json:"dryRun"`
}

// AcceptedJob is the response to an asynchronous import request.
type AcceptedJob struct {
	JobID     string `json:"jobId"`
	Message   string `json:"message"`
	StatusURL string `json:"statusUrl"`
}

// KnowledgeService imports knowledge articles from WordPress.
type KnowledgeService struct {
	*runner
	source source.KnowledgeSource
	store  KnowledgeStore
}

// KnowledgeConfig wires a KnowledgeService.
type KnowledgeConfig struct {
	BaseContext context.Context
	Registry    *JobRegistry
	Source      source.KnowledgeSource
	// Store may be nil, in which case only dry runs are accepted.
	Store  KnowledgeStore
	Runs   RunRecorder
	Logger *logger.Logger
}

// NewKnowledgeService creates a new knowledge service
func NewKnowledgeService(cfg KnowledgeConfig) *KnowledgeService {
	return &KnowledgeService{
		runner: newRunner(cfg.BaseContext, cfg.Registry, cfg.Runs, cfg.Logger),
		source: cfg.Source,
		store:  cfg.Store,
	}
}

// StartKnowledgeImport imports TotalPagesToFetch pages of Limit posts,
// beginning at Page. Paging stops early after the last page.
func (s *KnowledgeService) StartKnowledgeImport(ctx context.Context, req KnowledgeImportRequest) (string, error) {
	if req.Limit < 1 || req.Limit > maxKnowledgeLimit {
		return "", validationError("limit must be between 1 and %d, got %d", maxKnowledgeLimit, req.Limit)
	}
	if req.Page < 1 {
		return "", validationError("page must be at least 1, got %d", req.Page)
	}
	if req.TotalPagesToFetch < 1 {
		return "", validationError("totalPagesToFetch must be at least 1, got %d", req.TotalPagesToFetch)
	}
	if !req.DryRun && s.store == nil {
		return "", validationError("live import requires a database")
	}

	j := s.launch(domain.JobKindKnowledge, s.source.GetSourceID(), req.DryRun, func(ctx context.Context, j *job) error {
		return s.importPages(ctx, j, req)
	})

	logger.FromContext(ctx).WithFields(logger.Fields{
		logger.FieldJobID:  j.id,
		logger.FieldDryRun: req.DryRun,
	}).Infof("Knowledge import accepted: page %d, %d pages of %d", req.Page, req.TotalPagesToFetch, req.Limit)

	return j.id, nil
}

// ImportSpecificKnowledge imports the given WordPress post ids. Duplicate ids
// are imported once.
func (s *KnowledgeService) ImportSpecificKnowledge(ctx context.Context, postIDs []int, dryRun bool) (*AcceptedJob, error) {
	if len(postIDs) == 0 {
		return nil, validationError("at least one post id is required")
	}
	ids := make([]int, 0, len(postIDs))
	seen := make(map[int]bool, len(postIDs))
	for _, id := range postIDs {
		if id <= 0 {
			return nil, validationError("invalid post id %d", id)
		}
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	if !dryRun && s.store == nil {
		return nil, validationError("live import requires a database")
	}

	j := s.launch(domain.JobKindKnowledge, s.source.GetSourceID(), dryRun, func(ctx context.Context, j *job) error {
		return s.importIDs(ctx, j, ids)
	})

	logger.FromContext(ctx).WithFields(logger.Fields{
		logger.FieldJobID: j.id,
		logger.FieldCount: len(ids),
	}).Info("Specific knowledge import accepted")

	return &AcceptedJob{
		JobID:     j.id,
		Message:   fmt.Sprintf(specificAcceptMessage, len(ids)),
		StatusURL: statusURLPrefix + j.id,
	}, nil
}

// PreviewKnowledge returns the newest posts without starting a job.
func (s *KnowledgeService) PreviewKnowledge(ctx context.Context, limit int) ([]domain.KnowledgePost, error) {
	if limit == 0 {
		limit = defaultPreviewLimit
	}
	if limit < 1 || limit > maxKnowledgeLimit {
		return nil, validationError("limit must be between 1 and %d, got %d", maxKnowledgeLimit, limit)
	}
	posts, _, err := s.source.FetchPosts(ctx, 1, limit)
	return posts, err
}

// SearchKnowledge runs a WordPress full text search.
func (s *KnowledgeService) SearchKnowledge(ctx context.Context, term string) ([]domain.KnowledgePostSummary, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return nil, validationError("search term is required")
	}
	return s.source.SearchPosts(ctx, term, defaultSearchLimit)
}

// Status returns a snapshot of the job.
func (s *KnowledgeService) Status(jobID string) (domain.ImportJob, error) {
	return s.registry.Status(jobID)
}

// Results returns the posts buffered by a completed dry run.
func (s *KnowledgeService) Results(jobID string) ([]domain.KnowledgePost, error) {
	j, ok := s.registry.get(jobID)
	if !ok {
		return nil, ErrJobNotFound
	}
	return j.postResults()
}

func (s *KnowledgeService) importPages(ctx context.Context, j *job, req KnowledgeImportRequest) error {
	last := req.Page + req.TotalPagesToFetch - 1
	s.logf(ctx, j, domain.LogLevelInfo, "Starting knowledge import of pages %d-%d (%d posts per page, dry run: %t)", req.Page, last, req.Limit, j.dryRun)

	for page := req.Page; page <= last; page++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("import interrupted: %w", err)
		}

		posts, totalPages, err := s.source.FetchPosts(ctx, page, req.Limit)
		if err != nil {
			if page == req.Page {
				return fmt.Errorf("fetch page %d: %w", page, err)
			}
			s.logf(ctx, j, domain.LogLevelError, "Failed to fetch page %d, stopping: %v", page, err)
			break
		}
		if totalPages < last {
			last = totalPages
		}
		s.logf(ctx, j, domain.LogLevelInfo, "Fetched page %d with %d posts", page, len(posts))

		for i := range posts {
			s.importPost(ctx, j, &posts[i])
		}
		j.setProgress(progressOf(page-req.Page+1, last-req.Page+1))

		if len(posts) == 0 {
			break
		}
	}

	stats := j.summary().Stats
	s.logf(ctx, j, domain.LogLevelInfo, "Knowledge import finished: %d extracted, %d failed, %d saved", stats.Extracted, stats.Failed, stats.Persisted)
	return nil
}

func (s *KnowledgeService) importIDs(ctx context.Context, j *job, ids []int) error {
	s.logf(ctx, j, domain.LogLevelInfo, "Starting import of %d knowledge posts (dry run: %t)", len(ids), j.dryRun)

	for i, id := range ids {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("import interrupted: %w", err)
		}

		post, err := s.source.FetchPost(ctx, id)
		switch {
		case source.IsNotFound(err):
			j.updateStats(func(st *domain.JobStats) { st.Processed++; st.Failed++ })
			s.logf(ctx, j, domain.LogLevelWarn, "Post %d not found, skipping", id)
		case err != nil:
			j.updateStats(func(st *domain.JobStats) { st.Processed++; st.Failed++ })
			s.logf(ctx, j, domain.LogLevelError, "Failed to fetch post %d: %v", id, err)
		default:
			s.importPost(ctx, j, post)
		}
		j.setProgress(progressOf(i+1, len(ids)))
	}

	stats := j.summary().Stats
	s.logf(ctx, j, domain.LogLevelInfo, "Knowledge import finished: %d extracted, %d failed, %d saved", stats.Extracted, stats.Failed, stats.Persisted)
	return nil
}

// importPost buffers or stores one post. Failures are logged on the job.
func (s *KnowledgeService) importPost(ctx context.Context, j *job, post *domain.KnowledgePost) {
	if err := post.Validate(); err != nil {
		j.updateStats(func(st *domain.JobStats) { st.Processed++; st.Failed++ })
		s.logf(ctx, j, domain.LogLevelWarn, "Skipping post %d: %v", post.WPID, err)
		return
	}

	j.updateStats(func(st *domain.JobStats) { st.Processed++; st.Extracted++ })
	s.logExtracted(ctx, j, post.Title, post.Slug)

	if j.dryRun {
		j.bufferPost(*post)
		return
	}

	if err := s.store.UpsertPost(ctx, post); err != nil {
		j.updateStats(func(st *domain.JobStats) { st.Failed++ })
		s.logf(ctx, j, domain.LogLevelError, "Failed to save post %q: %v", post.Slug, err)
		return
	}
	j.updateStats(func(st *domain.JobStats) { st.Persisted++ })
}
