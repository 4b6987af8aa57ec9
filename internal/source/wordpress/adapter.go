package wordpress

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/kitade/kita-jobs/internal/domain"
	"github.com/kitade/kita-jobs/internal/source"
)

const (
	SourceID = "wordpress"

	postsPath = "/wp-json/wp/v2/posts"

	// MaxPerPage is the largest page size the WordPress REST API accepts.
	MaxPerPage = 100
)

// WordPress emits local timestamps without a zone.
const wpTimeLayout = "2006-01-02T15:04:05"

// Adapter implements source.KnowledgeSource against the WordPress REST API.
type Adapter struct {
	fetcher *source.Fetcher
	baseURL string
}

// NewAdapter creates a WordPress adapter for the site at baseURL.
func NewAdapter(fetcher *source.Fetcher, baseURL string) *Adapter {
	return &Adapter{
		fetcher: fetcher,
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

// GetSourceID returns the unique identifier for this source
func (a *Adapter) GetSourceID() string {
	return SourceID
}

type rendered struct {
	Rendered string `json:"rendered"`
}

type term struct {
	ID       int    `json:"id"`
	Name     string `json:"name"`
	Taxonomy string `json:"taxonomy"`
}

type wpPost struct {
	ID       int      `json:"id"`
	Date     string   `json:"date"`
	Slug     string   `json:"slug"`
	Link     string   `json:"link"`
	Title    rendered `json:"title"`
	Excerpt  rendered `json:"excerpt"`
	Content  rendered `json:"content"`
	Embedded struct {
		Terms [][]term `json:"wp:term"`
	} `json:"_embedded"`
}

// FetchPosts returns one page of posts and the total page count reported in
// the X-WP-TotalPages header.
func (a *Adapter) FetchPosts(ctx context.Context, page, perPage int) ([]domain.KnowledgePost, int, error) {
	if perPage <= 0 || perPage > MaxPerPage {
		return nil, 0, fmt.Errorf("per page must be between 1 and %d, got %d", MaxPerPage, perPage)
	}
	if page < 1 {
		return nil, 0, fmt.Errorf("page must be at least 1, got %d", page)
	}

	url := a.baseURL + postsPath
	resp, err := a.fetcher.Get(ctx, url, map[string]string{
		"page":     strconv.Itoa(page),
		"per_page": strconv.Itoa(perPage),
		"_embed":   "1",
	})
	if err != nil {
		return nil, 0, err
	}

	var raw []wpPost
	if err := json.Unmarshal(resp.Body(), &raw); err != nil {
		return nil, 0, &source.ParseError{URL: url, Reason: err.Error()}
	}

	totalPages, _ := strconv.Atoi(resp.Header().Get("X-WP-TotalPages"))
	if totalPages < page {
		totalPages = page
	}

	posts := make([]domain.KnowledgePost, 0, len(raw))
	for _, p := range raw {
		posts = append(posts, toPost(p))
	}
	return posts, totalPages, nil
}

// FetchPost returns a single post by WordPress id.
func (a *Adapter) FetchPost(ctx context.Context, id int) (*domain.KnowledgePost, error) {
	url := fmt.Sprintf("%s%s/%d", a.baseURL, postsPath, id)
	resp, err := a.fetcher.Get(ctx, url, map[string]string{"_embed": "1"})
	if err != nil {
		return nil, err
	}

	var raw wpPost
	if err := json.Unmarshal(resp.Body(), &raw); err != nil {
		return nil, &source.ParseError{URL: url, Reason: err.Error()}
	}
	post := toPost(raw)
	return &post, nil
}

// SearchPosts runs a WordPress search and returns lightweight hits.
func (a *Adapter) SearchPosts(ctx context.Context, query string, limit int) ([]domain.KnowledgePostSummary, error) {
	if limit <= 0 || limit > MaxPerPage {
		limit = MaxPerPage
	}

	url := a.baseURL + postsPath
	resp, err := a.fetcher.Get(ctx, url, map[string]string{
		"search":   query,
		"per_page": strconv.Itoa(limit),
		"_fields":  "id,date,slug,link,title",
	})
	if err != nil {
		return nil, err
	}

	var raw []wpPost
	if err := json.Unmarshal(resp.Body(), &raw); err != nil {
		return nil, &source.ParseError{URL: url, Reason: err.Error()}
	}

	hits := make([]domain.KnowledgePostSummary, 0, len(raw))
	for _, p := range raw {
		hits = append(hits, domain.KnowledgePostSummary{
			WPID:        p.ID,
			Title:       plainText(p.Title.Rendered),
			Slug:        p.Slug,
			Link:        p.Link,
			PublishedAt: parseDate(p.Date),
		})
	}
	return hits, nil
}

func toPost(p wpPost) domain.KnowledgePost {
	return domain.KnowledgePost{
		WPID:        p.ID,
		Slug:        p.Slug,
		Title:       plainText(p.Title.Rendered),
		Excerpt:     plainText(p.Excerpt.Rendered),
		Content:     strings.TrimSpace(p.Content.Rendered),
		Category:    category(p),
		Link:        p.Link,
		PublishedAt: parseDate(p.Date),
	}
}

func category(p wpPost) string {
	for _, group := range p.Embedded.Terms {
		for _, t := range group {
			if t.Taxonomy == "category" && t.Name != "" {
				return plainText(t.Name)
			}
		}
	}
	return ""
}

// plainText strips markup and decodes entities from a rendered field.
func plainText(html string) string {
	if !strings.ContainsAny(html, "<&") {
		return strings.TrimSpace(html)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return strings.TrimSpace(html)
	}
	return strings.Join(strings.Fields(doc.Text()), " ")
}

func parseDate(s string) time.Time {
	if t, err := time.Parse(wpTimeLayout, s); err == nil {
		return t
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	return time.Time{}
}
