package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/net/html/charset"
	"golang.org/x/time/rate"

	"github.com/haukened/rr-spam/internal/spam/common/log"
	"github.com/haukened/rr-spam/internal/spam/common/utils"
	"github.com/haukened/rr-spam/internal/spam/domain"
)

const (
	defaultTimeout      = 10 * time.Second
	defaultMaxBodyBytes = 2 << 20
	defaultUserAgent    = "rr-spamd/0.1"
	defaultRate         = 5
	defaultBurst        = 5
	limiterCacheSize    = 4096

	acceptHeader = "text/html,application/xhtml+xml,text/plain;q=0.9,*/*;q=0.5"
)

var errUnsupportedScheme = errors.New("unsupported scheme")

// HTTPFetcher fetches links over HTTP for the classifier.
// It never follows redirects itself: a 3xx response is reported with its
// Location so every hop is checked and paid for by the caller. Requests are
// rate limited per registrable domain.
type HTTPFetcher struct {
	client    *http.Client
	userAgent string
	maxBody   int64
	rate      rate.Limit
	burst     int
	logger    log.Logger

	mu       sync.Mutex
	limiters *lru.Cache[string, *rate.Limiter]
}

// Options configures an HTTPFetcher. Zero values take defaults.
type Options struct {
	Timeout      time.Duration
	MaxBodyBytes int64
	UserAgent    string
	// Rate is the steady request rate per registrable domain; Burst its bucket size.
	Rate   float64
	Burst  int
	Logger log.Logger
	// Transport is injectable for tests.
	Transport http.RoundTripper
}

// New builds an HTTPFetcher.
func New(opts Options) (*HTTPFetcher, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = defaultMaxBodyBytes
	}
	if opts.UserAgent == "" {
		opts.UserAgent = defaultUserAgent
	}
	if opts.Rate <= 0 {
		opts.Rate = defaultRate
	}
	if opts.Burst <= 0 {
		opts.Burst = defaultBurst
	}
	if opts.Logger == nil {
		opts.Logger = log.NewNoopLogger()
	}

	limiters, err := lru.New[string, *rate.Limiter](limiterCacheSize)
	if err != nil {
		return nil, err
	}

	client := &http.Client{
		Timeout:   opts.Timeout,
		Transport: opts.Transport,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	return &HTTPFetcher{
		client:    client,
		userAgent: opts.UserAgent,
		maxBody:   opts.MaxBodyBytes,
		rate:      rate.Limit(opts.Rate),
		burst:     opts.Burst,
		logger:    opts.Logger,
		limiters:  limiters,
	}, nil
}

// Fetch performs a single GET of rawURL and returns the decoded body. When the
// response is a redirect, FinalURL is its Location resolved against rawURL.
// Any HTTP status is a result; only transport-level failures are errors,
// and those wrap domain.ErrFetch.
func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string) (domain.FetchResult, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return domain.FetchResult{}, fmt.Errorf("%w: %v", domain.ErrFetch, err)
	}
	if !isHTTP(u) {
		return domain.FetchResult{}, fmt.Errorf("%w: %w: %q", domain.ErrFetch, errUnsupportedScheme, u.Scheme)
	}

	if err := f.limiterFor(u.Hostname()).Wait(ctx); err != nil {
		return domain.FetchResult{}, fmt.Errorf("%w: rate limit wait: %v", domain.ErrFetch, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return domain.FetchResult{}, fmt.Errorf("%w: %v", domain.ErrFetch, err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", acceptHeader)

	resp, err := f.client.Do(req)
	if err != nil {
		return domain.FetchResult{}, fmt.Errorf("%w: %v", domain.ErrFetch, err)
	}
	defer resp.Body.Close()

	body, err := f.readBody(resp)
	if err != nil {
		return domain.FetchResult{}, fmt.Errorf("%w: read body: %v", domain.ErrFetch, err)
	}

	final, redirected := redirectTarget(resp)
	if !redirected {
		final = rawURL
	}
	res := domain.FetchResult{
		URL:        rawURL,
		FinalURL:   final,
		Redirected: redirected,
		StatusCode: resp.StatusCode,
		Body:       body,
	}
	f.logger.Debug(map[string]any{
		"url":        rawURL,
		"final_url":  final,
		"status":     resp.StatusCode,
		"body_bytes": len(body),
	}, "fetched")
	return res, nil
}

// readBody reads at most maxBody bytes of a textual response and decodes it to UTF-8.
// Non-text media types yield an empty body.
func (f *HTTPFetcher) readBody(resp *http.Response) (string, error) {
	contentType := resp.Header.Get("Content-Type")
	if !isTextual(contentType) {
		return "", nil
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBody))
	if err != nil {
		return "", err
	}

	r, err := charset.NewReader(bytes.NewReader(raw), contentType)
	if err != nil {
		// unknown charset label: keep the bytes as they are
		return string(raw), nil
	}
	decoded, err := io.ReadAll(r)
	if err != nil {
		return string(raw), nil
	}
	return string(decoded), nil
}

// limiterFor returns the shared limiter of host's registrable domain.
func (f *HTTPFetcher) limiterFor(host string) *rate.Limiter {
	key := utils.GetApexDomain(host)

	f.mu.Lock()
	defer f.mu.Unlock()
	if l, ok := f.limiters.Get(key); ok {
		return l
	}
	l := rate.NewLimiter(f.rate, f.burst)
	f.limiters.Add(key, l)
	return l
}

// redirectTarget returns the resolved Location of a 3xx response.
// 304 and a missing or unparsable Location are not redirects.
func redirectTarget(resp *http.Response) (string, bool) {
	if resp.StatusCode < 300 || resp.StatusCode > 399 || resp.StatusCode == http.StatusNotModified {
		return "", false
	}
	loc, err := resp.Location()
	if err != nil {
		return "", false
	}
	return loc.String(), true
}

func isHTTP(u *url.URL) bool {
	return u.Scheme == "http" || u.Scheme == "https"
}

func isTextual(contentType string) bool {
	if contentType == "" {
		return true
	}
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return true
	}
	return strings.HasPrefix(mt, "text/") ||
		strings.Contains(mt, "html") ||
		strings.Contains(mt, "xml") ||
		strings.Contains(mt, "json")
}
