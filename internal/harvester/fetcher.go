package harvester

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html/charset"
	"golang.org/x/time/rate"

	corerrors "github.com/scholarmatch/pipeline/internal/core/errors"
)

const (
	headerUserAgent      = "User-Agent"
	headerAccept         = "Accept"
	headerAcceptLanguage = "Accept-Language"
	headerContentType    = "Content-Type"

	acceptHTML         = "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8"
	acceptLanguageEN   = "en-US,en;q=0.9"
	contentTypeForm    = "application/x-www-form-urlencoded; charset=UTF-8"
	contentTypeJSONKey = "application/json"
)

var errHTTPStatus = errors.New("unexpected HTTP status")

// SessionConfig tunes the shared HTTP session. A zero RequestDelay disables
// pacing; a zero Timeout falls back to the default.
type SessionConfig struct {
	UserAgent    string
	RequestDelay time.Duration
	Timeout      time.Duration
}

// Session is the HTTP client shared by every harvesting strategy. It keeps
// cookies across requests so CMS form tokens stay valid, sends browser-like
// headers, and spaces requests by the configured delay. One Session serves
// one directory crawl at a time.
type Session struct {
	client    *http.Client
	limiter   *rate.Limiter
	userAgent string
}

// NewSession creates a Session.
func NewSession(cfg SessionConfig) *Session {
	jar, _ := cookiejar.New(nil)

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultFetchTimeout
	}

	limit := rate.Inf
	if cfg.RequestDelay > 0 {
		limit = rate.Every(cfg.RequestDelay)
	}

	return &Session{
		client: &http.Client{
			Jar:     jar,
			Timeout: timeout,
		},
		limiter:   rate.NewLimiter(limit, 1),
		userAgent: cfg.UserAgent,
	}
}

// Get fetches a URL and returns the decoded response body.
func (s *Session) Get(ctx context.Context, rawURL string) (string, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("limiter wait: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}

	s.applyHeaders(req)

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return "", fmt.Errorf("%w: %s", corerrors.ErrRateLimited, rawURL)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: %d for %s", errHTTPStatus, resp.StatusCode, rawURL)
	}

	body, err := decodeBody(resp)
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}

	return body, nil
}

// PostForm sends a URL-encoded POST and returns the body and the response
// content type. Extra headers are applied after the session defaults and may
// override them. The content type is returned even on a status error, since
// the AJAX protocol branches on it.
func (s *Session) PostForm(ctx context.Context, rawURL string, form url.Values, extra http.Header) (string, string, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return "", "", fmt.Errorf("limiter wait: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", "", fmt.Errorf("create request: %w", err)
	}

	s.applyHeaders(req)
	req.Header.Set(headerContentType, contentTypeForm)

	for key, values := range extra {
		req.Header.Del(key)

		for _, v := range values {
			req.Header.Add(key, v)
		}
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("post %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	contentType := resp.Header.Get(headerContentType)

	if resp.StatusCode != http.StatusOK {
		return "", contentType, fmt.Errorf("%w: %d for %s", errHTTPStatus, resp.StatusCode, rawURL)
	}

	body, err := decodeBody(resp)
	if err != nil {
		return "", contentType, fmt.Errorf("read body: %w", err)
	}

	return body, contentType, nil
}

func (s *Session) applyHeaders(req *http.Request) {
	req.Header.Set(headerUserAgent, s.userAgent)
	req.Header.Set(headerAccept, acceptHTML)
	req.Header.Set(headerAcceptLanguage, acceptLanguageEN)
}

// decodeBody reads the response through a charset-aware reader, capped at
// maxResponseBytes. Older directory pages still declare legacy encodings.
func decodeBody(resp *http.Response) (string, error) {
	reader, err := charset.NewReader(io.LimitReader(resp.Body, maxResponseBytes), resp.Header.Get(headerContentType))
	if err != nil {
		return "", fmt.Errorf("charset reader: %w", err)
	}

	data, err := io.ReadAll(reader)
	if err != nil {
		return "", err
	}

	return string(data), nil
}

// isJSONContentType reports whether a response declared a JSON body.
func isJSONContentType(contentType string) bool {
	return strings.Contains(strings.ToLower(contentType), contentTypeJSONKey)
}
