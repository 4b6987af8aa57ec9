package kitadir

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/kitade/kita-jobs/internal/domain"
	"github.com/kitade/kita-jobs/internal/logger"
	"github.com/kitade/kita-jobs/internal/source"
)

const SourceID = "kitadir"

// Selectors locate links and content on directory pages.
type Selectors struct {
	BezirkLinks string
	KitaLinks   string
	NextPage    string
	DetailName  string
	DetailRoot  string
}

// PageArchiver stores raw detail pages. Archive failures never fail a crawl.
type PageArchiver interface {
	Archive(ctx context.Context, pageURL string, body []byte) (string, error)
}

// Adapter implements source.KitaSource for an HTML Kita directory.
type Adapter struct {
	fetcher   *source.Fetcher
	selectors Selectors
	maxPages  int
	archive   PageArchiver
	now       func() time.Time
}

// NewAdapter creates a directory adapter. archive may be nil.
func NewAdapter(fetcher *source.Fetcher, selectors Selectors, maxPages int, archive PageArchiver) *Adapter {
	if maxPages <= 0 {
		maxPages = 50
	}
	return &Adapter{
		fetcher:   fetcher,
		selectors: selectors,
		maxPages:  maxPages,
		archive:   archive,
		now:       time.Now,
	}
}

// GetSourceID returns the unique identifier for this source
func (a *Adapter) GetSourceID() string {
	return SourceID
}

// ListBezirke returns the districts linked from a Bundesland page.
func (a *Adapter) ListBezirke(ctx context.Context, stateURL string) ([]domain.Bezirk, error) {
	doc, _, err := a.fetchDocument(ctx, stateURL)
	if err != nil {
		return nil, err
	}

	links := collectLinks(doc, a.selectors.BezirkLinks, stateURL)
	if len(links) == 0 {
		return nil, &source.ParseError{URL: stateURL, Reason: "no district links found"}
	}

	bezirke := make([]domain.Bezirk, 0, len(links))
	for _, l := range links {
		bezirke = append(bezirke, domain.Bezirk{Name: l.text, URL: l.href})
	}
	return bezirke, nil
}

// ListKitas returns up to limit facility references of a district. Listing
// pages are followed through the next-page link until the limit is reached,
// the link disappears or a page repeats.
func (a *Adapter) ListKitas(ctx context.Context, bezirk domain.Bezirk, limit int) ([]domain.KitaRef, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("list kitas: limit must be positive, got %d", limit)
	}

	var refs []domain.KitaRef
	seen := make(map[string]bool)
	visited := make(map[string]bool)
	pageURL := bezirk.URL

	for page := 0; page < a.maxPages && pageURL != "" && !visited[pageURL]; page++ {
		visited[pageURL] = true

		doc, _, err := a.fetchDocument(ctx, pageURL)
		if err != nil {
			if page == 0 {
				return nil, err
			}
			logger.CtxWarn(ctx, "Stopping pagination of %s at %s: %v", bezirk.Name, pageURL, err)
			return refs, &source.PartialListError{URL: pageURL, Err: err}
		}

		for _, l := range collectLinks(doc, a.selectors.KitaLinks, pageURL) {
			if seen[l.href] {
				continue
			}
			seen[l.href] = true
			refs = append(refs, domain.KitaRef{Name: l.text, URL: l.href, Bezirk: bezirk.Name})
			if len(refs) >= limit {
				return refs, nil
			}
		}

		pageURL = ""
		if href, ok := doc.Find(a.selectors.NextPage).First().Attr("href"); ok {
			pageURL = resolveURL(doc.Url, href)
		}
	}

	return refs, nil
}

// ExtractKita fetches a detail page and parses it into a Kita.
func (a *Adapter) ExtractKita(ctx context.Context, ref domain.KitaRef) (*domain.Kita, error) {
	doc, body, err := a.fetchDocument(ctx, ref.URL)
	if err != nil {
		return nil, err
	}

	if a.archive != nil {
		if _, err := a.archive.Archive(ctx, ref.URL, body); err != nil {
			logger.CtxWarn(ctx, "Failed to archive %s: %v", ref.URL, err)
		}
	}

	kita, err := parseDetail(doc, ref, a.selectors)
	if err != nil {
		return nil, err
	}
	kita.ScrapedAt = a.now()
	return kita, nil
}

func (a *Adapter) fetchDocument(ctx context.Context, pageURL string) (*goquery.Document, []byte, error) {
	resp, err := a.fetcher.Get(ctx, pageURL, nil)
	if err != nil {
		return nil, nil, err
	}
	body := resp.Body()

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, nil, &source.ParseError{URL: pageURL, Reason: err.Error()}
	}
	doc.Url, _ = url.Parse(pageURL)
	return doc, body, nil
}

type link struct {
	text string
	href string
}

// collectLinks returns the unique absolute links matched by selector in
// document order. Anchors without text or href are skipped.
func collectLinks(doc *goquery.Document, selector, base string) []link {
	var links []link
	seen := make(map[string]bool)
	baseURL, _ := url.Parse(base)

	doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
		href, ok := s.Attr("href")
		text := cleanText(s.Text())
		if !ok || text == "" {
			return
		}
		abs := resolveURL(baseURL, href)
		if abs == "" || seen[abs] {
			return
		}
		seen[abs] = true
		links = append(links, link{text: text, href: abs})
	})
	return links
}

func resolveURL(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(href, "javascript:") {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if base != nil {
		ref = base.ResolveReference(ref)
	}
	ref.Fragment = ""
	return ref.String()
}

func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
