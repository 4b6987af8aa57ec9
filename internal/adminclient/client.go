package adminclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/kitade/kita-jobs/internal/domain"
)

// APIError is a non-2xx response from the import API.
type APIError struct {
	StatusCode int
	Message    string
	// UpstreamStatus and UpstreamBody are set when the server reports a
	// failed fetch of the external directory.
	UpstreamStatus int
	UpstreamBody   string
}

func (e *APIError) Error() string {
	if e.UpstreamStatus != 0 {
		return fmt.Sprintf("import api: %d: %s (upstream status %d)", e.StatusCode, e.Message, e.UpstreamStatus)
	}
	return fmt.Sprintf("import api: %d: %s", e.StatusCode, e.Message)
}

// IsNotFound reports whether err is a 404 from the import API.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

type errorBody struct {
	Error      string `json:"error"`
	StatusCode int    `json:"statusCode"`
	Body       string `json:"body"`
}

// StartImportRequest mirrors the body of POST /api/import/start.
type StartImportRequest struct {
	DryRun             bool            `json:"dryRun"`
	Bezirke            []domain.Bezirk `json:"bezirke"`
	KitaLimitPerBezirk int             `json:"kitaLimitPerBezirk"`
}

// KnowledgeImportRequest mirrors the body of POST /api/import/knowledge.
type KnowledgeImportRequest struct {
	Limit             int  `json:"limit"`
	Page              int  `json:"page"`
	TotalPagesToFetch int  `json:"totalPagesToFetch"`
	DryRun            bool `json:"dryRun"`
}

// AcceptedJob is the 202 response of a specific knowledge import.
type AcceptedJob struct {
	JobID     string `json:"jobId"`
	Message   string `json:"message"`
	StatusURL string `json:"statusUrl"`
}

type jobResponse struct {
	JobID string `json:"jobId"`
}

// Client talks to the import API of a running server.
type Client struct {
	http *resty.Client
}

// NewClient creates a client for the server at baseURL.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	c := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")
	return &Client{http: c}
}

func (c *Client) do(ctx context.Context, method, path string, body, result interface{}) error {
	var apiErr errorBody
	req := c.http.R().
		SetContext(ctx).
		SetError(&apiErr)
	if result != nil {
		req.SetResult(result)
	}
	if body != nil {
		req.SetBody(body)
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	if resp.IsError() {
		msg := apiErr.Error
		if msg == "" {
			msg = strings.TrimSpace(resp.String())
		}
		return &APIError{
			StatusCode:     resp.StatusCode(),
			Message:        msg,
			UpstreamStatus: apiErr.StatusCode,
			UpstreamBody:   apiErr.Body,
		}
	}
	return nil
}

// ListBezirke returns the districts of a Bundesland page.
func (c *Client) ListBezirke(ctx context.Context, stateURL string) ([]domain.Bezirk, error) {
	var out []domain.Bezirk
	path := "/api/import/bezirke?bundeslandUrl=" + url.QueryEscape(stateURL)
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// StartImport starts a Kita import and returns its job id.
func (c *Client) StartImport(ctx context.Context, req StartImportRequest) (string, error) {
	var out jobResponse
	if err := c.do(ctx, http.MethodPost, "/api/import/start", req, &out); err != nil {
		return "", err
	}
	return out.JobID, nil
}

// Status fetches the current snapshot of a job.
func (c *Client) Status(ctx context.Context, jobID string) (*domain.ImportJob, error) {
	var out domain.ImportJob
	if err := c.do(ctx, http.MethodGet, "/api/import/status/"+url.PathEscape(jobID), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Results fetches the facilities buffered by a completed dry run.
func (c *Client) Results(ctx context.Context, jobID string) ([]domain.Kita, error) {
	var out []domain.Kita
	if err := c.do(ctx, http.MethodGet, "/api/import/results/"+url.PathEscape(jobID), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// KnowledgeResults fetches the posts buffered by a completed dry run.
func (c *Client) KnowledgeResults(ctx context.Context, jobID string) ([]domain.KnowledgePost, error) {
	var out []domain.KnowledgePost
	if err := c.do(ctx, http.MethodGet, "/api/import/results/"+url.PathEscape(jobID), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// StartKnowledgeImport starts a paged WordPress import.
func (c *Client) StartKnowledgeImport(ctx context.Context, req KnowledgeImportRequest) (string, error) {
	var out jobResponse
	if err := c.do(ctx, http.MethodPost, "/api/import/knowledge", req, &out); err != nil {
		return "", err
	}
	return out.JobID, nil
}

// ImportSpecificKnowledge starts an import of the given post ids.
func (c *Client) ImportSpecificKnowledge(ctx context.Context, postIDs []int, dryRun bool) (*AcceptedJob, error) {
	var out AcceptedJob
	body := map[string]interface{}{"postIds": postIDs, "dryRun": dryRun}
	if err := c.do(ctx, http.MethodPost, "/api/import/knowledge/specific", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SearchKnowledge searches the WordPress blog through the server.
func (c *Client) SearchKnowledge(ctx context.Context, term string) ([]domain.KnowledgePostSummary, error) {
	var out []domain.KnowledgePostSummary
	path := "/api/import/knowledge/search?term=" + url.QueryEscape(term)
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}
