package fetcher

import (
	"context"
	"io"
	"math"
	"math/rand/v2"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// HTTPOptions configures the HTTP fetcher. RateLimiters maps host names
// to their fixed limiters; hosts without an entry get a generous default.
type HTTPOptions struct {
	UserAgent    string
	Timeout      time.Duration
	MaxRetries   int
	RateLimiters map[string]*rate.Limiter
}

// AdaptiveLimiter is a rate.Limiter that tunes itself to the provider:
// each success grows the rate by 20% up to twice the initial value, each
// 429 halves it down to a quarter of the initial value.
type AdaptiveLimiter struct {
	mu          sync.Mutex
	limiter     *rate.Limiter
	initialRate rate.Limit
	maxRate     rate.Limit
	minRate     rate.Limit
	currentRate rate.Limit
}

func NewAdaptiveLimiter(initialRate rate.Limit, burst int) *AdaptiveLimiter {
	return &AdaptiveLimiter{
		limiter:     rate.NewLimiter(initialRate, burst),
		initialRate: initialRate,
		maxRate:     initialRate * 2,
		minRate:     initialRate / 4,
		currentRate: initialRate,
	}
}

// Wait blocks until the limiter allows an event.
func (a *AdaptiveLimiter) Wait(ctx context.Context) error {
	return a.limiter.Wait(ctx)
}

// OnSuccess grows the rate by 20%, capped at twice the initial rate.
func (a *AdaptiveLimiter) OnSuccess() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.setRate(min(a.currentRate*1.2, a.maxRate))
}

// OnRateLimit halves the rate after a 429, floored at initial/4.
func (a *AdaptiveLimiter) OnRateLimit() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.setRate(max(a.currentRate/2, a.minRate))
	zap.L().Warn("provider rate limited us, slowing down",
		zap.Float64("requests_per_second", float64(a.currentRate)))
}

// setRate needs a.mu held.
func (a *AdaptiveLimiter) setRate(r rate.Limit) {
	a.currentRate = r
	a.limiter.SetLimit(r)
}

// Limit returns the current rate limit.
func (a *AdaptiveLimiter) Limit() rate.Limit {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.currentRate
}

// HTTPFetcher is the production Fetcher: net/http with retry, backoff
// and per-host rate limiting.
type HTTPFetcher struct {
	client           *http.Client
	opts             HTTPOptions
	limiters         map[string]*rate.Limiter
	adaptiveLimiters map[string]*AdaptiveLimiter
}

// DefaultRateLimiters returns the default per-host rate limiters. The
// Overpass API is shared public infrastructure and gets the tightest
// budget.
func DefaultRateLimiters() map[string]*rate.Limiter {
	return map[string]*rate.Limiter{
		"overpass-api.de":          rate.NewLimiter(1, 1),
		"api.openchargemap.io":     rate.NewLimiter(2, 2),
		"www.bundesnetzagentur.de": rate.NewLimiter(2, 2),
	}
}

// NewHTTPFetcher builds a fetcher; zero option fields get production
// defaults.
func NewHTTPFetcher(opts HTTPOptions) *HTTPFetcher {
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.MaxRetries == 0 {
		opts.MaxRetries = 3
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "charging-cli/1.0"
	}
	limiters := make(map[string]*rate.Limiter, len(opts.RateLimiters))
	for host, lim := range opts.RateLimiters {
		limiters[host] = lim
	}
	return &HTTPFetcher{
		client: &http.Client{
			Timeout: opts.Timeout,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				MaxConnsPerHost:     20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		opts:             opts,
		limiters:         limiters,
		adaptiveLimiters: DefaultAdaptiveLimiters(),
	}
}

// DefaultAdaptiveLimiters seeds an adaptive limiter per provider host,
// starting from the same budgets as DefaultRateLimiters.
func DefaultAdaptiveLimiters() map[string]*AdaptiveLimiter {
	return map[string]*AdaptiveLimiter{
		"overpass-api.de":          NewAdaptiveLimiter(1, 1),
		"api.openchargemap.io":     NewAdaptiveLimiter(2, 2),
		"www.bundesnetzagentur.de": NewAdaptiveLimiter(2, 2),
	}
}

func (f *HTTPFetcher) adaptiveLimiterFor(rawURL string) *AdaptiveLimiter {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil
	}
	return f.adaptiveLimiters[u.Host]
}

func (f *HTTPFetcher) limiterFor(rawURL string) *rate.Limiter {
	if u, err := url.Parse(rawURL); err == nil {
		if lim, ok := f.limiters[u.Host]; ok {
			return lim
		}
	}
	return rate.NewLimiter(20, 20)
}

// waitTurn blocks on the host's adaptive limiter when one exists,
// otherwise on the fixed per-host limiter.
func (f *HTTPFetcher) waitTurn(ctx context.Context, adaptive *AdaptiveLimiter, rawURL string) error {
	if adaptive != nil {
		return adaptive.Wait(ctx)
	}
	return f.limiterFor(rawURL).Wait(ctx)
}

// doWithRetry runs the request with exponential backoff. 429 and 5xx
// responses count as retryable; a 429 additionally shrinks the host's
// adaptive rate, a success grows it.
func (f *HTTPFetcher) doWithRetry(ctx context.Context, req *http.Request) (*http.Response, error) {
	rawURL := req.URL.String()
	adaptive := f.adaptiveLimiterFor(rawURL)

	var lastErr error
	for attempt := range f.opts.MaxRetries {
		if err := f.waitTurn(ctx, adaptive, rawURL); err != nil {
			return nil, eris.Wrap(err, "rate limiter wait")
		}

		resp, err := f.client.Do(req.Clone(ctx))
		switch {
		case err != nil:
			lastErr = err
			zap.L().Warn("http request failed, retrying",
				zap.String("url", rawURL), zap.Int("attempt", attempt+1), zap.Error(err))
		case resp.StatusCode == http.StatusTooManyRequests:
			_ = resp.Body.Close()
			lastErr = eris.Errorf("http 429 from %s", rawURL)
			if adaptive != nil {
				adaptive.OnRateLimit()
			}
			zap.L().Warn("rate limited, backing off",
				zap.String("url", rawURL), zap.Int("attempt", attempt+1))
		case resp.StatusCode >= 500:
			_ = resp.Body.Close()
			lastErr = eris.Errorf("http %d from %s", resp.StatusCode, rawURL)
			zap.L().Warn("server error, retrying",
				zap.String("url", rawURL), zap.Int("status", resp.StatusCode), zap.Int("attempt", attempt+1))
		default:
			if adaptive != nil {
				adaptive.OnSuccess()
			}
			return resp, nil
		}
		f.backoff(ctx, attempt)
	}

	return nil, eris.Wrap(lastErr, "all retries exhausted")
}

// backoff sleeps 2^attempt seconds, capped at 30s, plus up to 50% jitter.
func (f *HTTPFetcher) backoff(ctx context.Context, attempt int) {
	d := time.Duration(float64(time.Second) * math.Pow(2, float64(attempt)))
	if d > 30*time.Second {
		d = 30 * time.Second
	}
	d += time.Duration(rand.Int64N(int64(d) / 2))

	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// Download fetches the URL and returns the response body.
func (f *HTTPFetcher) Download(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "create request")
	}
	req.Header.Set("User-Agent", f.opts.UserAgent)

	resp, err := f.doWithRetry(ctx, req)
	if err != nil {
		return nil, eris.Wrap(err, "download")
	}

	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		return nil, eris.Errorf("download: unexpected status %d from %s", resp.StatusCode, rawURL)
	}

	return resp.Body, nil
}

// DownloadIfChanged fetches the URL with an If-None-Match precondition.
// A 304 means the cached content named by etag is still current: the body
// comes back nil and changed false. Any other success returns the fresh
// body together with its new ETag. The request goes through the same
// retry and rate-limiting path as Download.
func (f *HTTPFetcher) DownloadIfChanged(ctx context.Context, rawURL string, etag string) (io.ReadCloser, string, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", false, eris.Wrap(err, "create request")
	}
	req.Header.Set("User-Agent", f.opts.UserAgent)
	if etag != "" {
		req.Header.Set("If-None-Match", etag)
	}

	resp, err := f.doWithRetry(ctx, req)
	if err != nil {
		return nil, "", false, eris.Wrap(err, "download if changed")
	}

	switch resp.StatusCode {
	case http.StatusNotModified:
		_ = resp.Body.Close()
		return nil, etag, false, nil
	case http.StatusOK:
		return resp.Body, resp.Header.Get("ETag"), true, nil
	default:
		_ = resp.Body.Close()
		return nil, "", false, eris.Errorf("download if changed: unexpected status %d from %s", resp.StatusCode, rawURL)
	}
}
