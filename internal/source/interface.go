package source

import (
	"context"

	"github.com/kitade/kita-jobs/internal/domain"
)

// KitaSource crawls a facility directory: Bundesland -> Bezirk -> Kita.
// Implementations hold no job state; the caller decides limits and order.
type KitaSource interface {
	// GetSourceID returns the identifier recorded on import runs.
	GetSourceID() string

	// ListBezirke returns the districts linked from a Bundesland page.
	// Parameters:
	//   - ctx: context for cancellation and deadlines.
	//   - stateURL: absolute URL of the Bundesland page.
	// Returns:
	//   - []domain.Bezirk: districts in page order.
	//   - error: *FetchError or *ParseError.
	ListBezirke(ctx context.Context, stateURL string) ([]domain.Bezirk, error)

	// ListKitas returns up to limit facility references of a district,
	// following listing pagination as needed. When a page after the first
	// fails, the references found so far are returned with a
	// *PartialListError.
	ListKitas(ctx context.Context, bezirk domain.Bezirk, limit int) ([]domain.KitaRef, error)

	// ExtractKita fetches and parses one facility detail page.
	ExtractKita(ctx context.Context, ref domain.KitaRef) (*domain.Kita, error)
}

// KnowledgeSource reads knowledge articles from a WordPress site.
type KnowledgeSource interface {
	GetSourceID() string

	// FetchPosts returns one page of posts, newest first, and the number of
	// pages the site reports.
	FetchPosts(ctx context.Context, page, perPage int) ([]domain.KnowledgePost, int, error)

	// FetchPost returns a single post by WordPress id.
	FetchPost(ctx context.Context, id int) (*domain.KnowledgePost, error)

	// SearchPosts runs a full text search and returns lightweight hits.
	SearchPosts(ctx context.Context, term string, limit int) ([]domain.KnowledgePostSummary, error)
}
