package source

import (
	"context"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"
)

// FetcherConfig configures the outbound HTTP client shared by adapters.
type FetcherConfig struct {
	UserAgent         string
	Timeout           time.Duration
	RequestsPerSecond float64
	Burst             int
	RetryCount        int
	RetryWait         time.Duration
}

// Fetcher is a polite, rate-limited HTTP client. One Fetcher may be shared
// by several concurrent jobs; the limiter then applies to all of them.
type Fetcher struct {
	client  *resty.Client
	limiter *rate.Limiter
}

// NewFetcher creates a Fetcher. Zero values fall back to conservative defaults.
func NewFetcher(cfg FetcherConfig) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 2
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	if cfg.RetryWait <= 0 {
		cfg.RetryWait = 500 * time.Millisecond
	}

	f := &Fetcher{
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
	}

	client := resty.New()
	client.SetTimeout(cfg.Timeout)
	if cfg.UserAgent != "" {
		client.SetHeader("User-Agent", cfg.UserAgent)
	}
	client.SetRetryCount(cfg.RetryCount)
	client.SetRetryWaitTime(cfg.RetryWait)
	client.SetRetryMaxWaitTime(cfg.RetryWait * 8)
	client.AddRetryCondition(func(r *resty.Response, err error) bool {
		if err != nil {
			return true
		}
		return r.StatusCode() == http.StatusTooManyRequests || r.StatusCode() >= 500
	})
	// every attempt, retries included, takes a token
	client.OnBeforeRequest(func(_ *resty.Client, r *resty.Request) error {
		return f.limiter.Wait(r.Context())
	})

	f.client = client
	return f
}

// Get fetches url with the given query parameters. Transport failures and
// non-2xx responses are returned as *FetchError.
func (f *Fetcher) Get(ctx context.Context, url string, query map[string]string) (*resty.Response, error) {
	resp, err := f.client.R().
		SetContext(ctx).
		SetQueryParams(query).
		Get(url)
	if err != nil {
		return nil, &FetchError{URL: url, Err: err}
	}
	if resp.IsError() || resp.StatusCode() >= 300 {
		return nil, &FetchError{
			URL:        url,
			StatusCode: resp.StatusCode(),
			Body:       truncateBody(resp.Body()),
		}
	}
	return resp, nil
}
