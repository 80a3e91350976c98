// Package scholar queries a bibliographic search API for an author's
// publication record. The public API is tolerant by design: universities
// cannot control how their faculty appear in the index, so every lookup
// failure degrades to trying the next query strategy rather than aborting.
package scholar

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/rs/zerolog"

	corerrors "github.com/scholarmatch/pipeline/internal/core/errors"
	"github.com/scholarmatch/pipeline/internal/observability"
)

const (
	defaultBaseURL = "https://api.semanticscholar.org/graph/v1"

	requestTimeout   = 10 * time.Second
	maxResponseBytes = 4 << 20

	attemptsPerQuery = 2
	candidateLimit   = 3
	maxPapers        = 30

	// Backoff applied between attempts of one query strategy.
	rateLimitedDefaultDelay = 10 * time.Second
	rateLimitedAttemptStep  = 5 * time.Second
	transientRetryDelay     = 2 * time.Second

	searchFields = "authorId,name,papers.paperId,papers.title,papers.abstract,papers.year,papers.citationCount,papers.url"

	headerAPIKey     = "x-api-key"
	headerRetryAfter = "Retry-After"

	logKeyQuery = "query"
)

// Paper is one publication. A zero Year means the index did not know the
// publication year.
type Paper struct {
	ExternalID string
	Title      string
	Abstract   string
	Year       int
	Citations  int
	URL        string
}

// PapersSource finds papers for an author by name and affiliation.
type PapersSource interface {
	PapersFor(ctx context.Context, name, affiliation string) ([]Paper, error)
}

// Config configures the Client. An empty BaseURL selects the public
// endpoint; an empty APIKey uses the anonymous quota.
type Config struct {
	BaseURL string
	APIKey  string
}

// Client implements PapersSource against the author-search endpoint. The
// sleep hook exists so tests can assert backoff without waiting it out.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	sleep      func(ctx context.Context, d time.Duration) error
	logger     *zerolog.Logger
}

var _ PapersSource = (*Client)(nil)

func New(cfg Config, logger *zerolog.Logger) *Client {
	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	return &Client{
		baseURL:    baseURL,
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: requestTimeout},
		sleep:      sleepContext,
		logger:     logger,
	}
}

// PapersFor returns up to 30 papers for the named author. When an
// affiliation is known, "{name} {affiliation}" runs first and the bare name
// is the fallback; the narrower query disambiguates common names. A search
// that answered but matched nothing returns an empty list and nil error.
func (c *Client) PapersFor(ctx context.Context, name, affiliation string) ([]Paper, error) {
	cleaned := cleanAuthorName(name)

	queries := []string{cleaned}
	if affiliation != "" {
		queries = []string{cleaned + " " + affiliation, cleaned}
	}

	var lastErr error

	for _, query := range queries {
		papers, err := c.tryQuery(ctx, query)
		if err != nil {
			lastErr = err
			continue
		}

		if len(papers) > 0 {
			return papers, nil
		}
	}

	if lastErr != nil {
		return nil, lastErr
	}

	return []Paper{}, nil
}

// tryQuery runs the attempt budget for one query strategy. Rate-limit
// responses sleep out the advertised window plus an attempt-scaled penalty
// even on the last attempt, so a caller retrying immediately does not hammer
// a throttled API.
func (c *Client) tryQuery(ctx context.Context, query string) ([]Paper, error) {
	var lastErr error

	for attempt := 1; attempt <= attemptsPerQuery; attempt++ {
		papers, retryAfter, err := c.searchOnce(ctx, query)
		if err == nil {
			return papers, nil
		}

		lastErr = err

		if ctx.Err() != nil {
			break
		}

		delay := transientRetryDelay
		if corerrors.Is(err, corerrors.ErrRateLimited) {
			delay = retryAfter + time.Duration(attempt-1)*rateLimitedAttemptStep
		}

		c.logger.Debug().Err(err).Str(logKeyQuery, query).Dur("delay", delay).Msg("Author search attempt failed")

		if sleepErr := c.sleep(ctx, delay); sleepErr != nil {
			break
		}
	}

	return nil, lastErr
}

// searchOnce performs a single author-search request. retryAfter is only
// meaningful alongside ErrRateLimited.
func (c *Client) searchOnce(ctx context.Context, query string) (papers []Paper, retryAfter time.Duration, err error) {
	params := url.Values{
		"query":  {query},
		"limit":  {strconv.Itoa(candidateLimit)},
		"fields": {searchFields},
	}

	endpoint := fmt.Sprintf("%s/author/search?%s", c.baseURL, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("create request: %w", err)
	}

	if c.apiKey != "" {
		req.Header.Set(headerAPIKey, c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		observability.ScholarRequests.WithLabelValues(observability.StatusError).Inc()
		return nil, 0, fmt.Errorf("author search: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		observability.ScholarRequests.WithLabelValues(observability.StatusRateLimited).Inc()
		return nil, retryAfterDelay(resp.Header.Get(headerRetryAfter), time.Now()), fmt.Errorf("%w: author search", corerrors.ErrRateLimited)
	}

	if resp.StatusCode != http.StatusOK {
		observability.ScholarRequests.WithLabelValues(observability.StatusError).Inc()
		return nil, 0, fmt.Errorf("%w: author search status %d", corerrors.ErrUnexpectedShape, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		observability.ScholarRequests.WithLabelValues(observability.StatusError).Inc()
		return nil, 0, fmt.Errorf("read body: %w", err)
	}

	authors, err := parseAuthors(body)
	if err != nil {
		observability.ScholarRequests.WithLabelValues(observability.StatusError).Inc()
		return nil, 0, err
	}

	observability.ScholarRequests.WithLabelValues(observability.StatusOK).Inc()

	return papersFromAuthors(authors), 0, nil
}

type searchAuthor struct {
	AuthorID string        `json:"authorId"`
	Name     string        `json:"name"`
	Papers   []searchPaper `json:"papers"`
}

type searchPaper struct {
	PaperID       string `json:"paperId"`
	Title         string `json:"title"`
	Abstract      string `json:"abstract"`
	Year          int    `json:"year"`
	CitationCount int    `json:"citationCount"`
	URL           string `json:"url"`
}

// parseAuthors accepts the shapes the endpoint returns in the wild: an
// object with a data array, a bare array of authors, or an empty body.
func parseAuthors(body []byte) ([]searchAuthor, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, nil
	}

	switch trimmed[0] {
	case '{':
		var envelope struct {
			Data []searchAuthor `json:"data"`
		}

		if err := json.Unmarshal(trimmed, &envelope); err != nil {
			return nil, fmt.Errorf("%w: %v", corerrors.ErrParseFailure, err)
		}

		return envelope.Data, nil
	case '[':
		var authors []searchAuthor
		if err := json.Unmarshal(trimmed, &authors); err != nil {
			return nil, fmt.Errorf("%w: %v", corerrors.ErrParseFailure, err)
		}

		return authors, nil
	default:
		return nil, fmt.Errorf("%w: author search body starts with %q", corerrors.ErrUnexpectedShape, trimmed[0])
	}
}

// papersFromAuthors picks the first candidate that actually has papers. The
// search ranks by name match, so an earlier empty candidate is usually a
// namesake without an indexed record.
func papersFromAuthors(authors []searchAuthor) []Paper {
	for _, author := range authors {
		if len(author.Papers) == 0 {
			continue
		}

		papers := make([]Paper, 0, len(author.Papers))

		for _, p := range author.Papers {
			papers = append(papers, Paper{
				ExternalID: p.PaperID,
				Title:      p.Title,
				Abstract:   p.Abstract,
				Year:       p.Year,
				Citations:  p.CitationCount,
				URL:        p.URL,
			})
		}

		if len(papers) > maxPapers {
			papers = papers[:maxPapers]
		}

		return papers
	}

	return nil
}

// retryAfterDelay parses a Retry-After header, which may be delta-seconds or
// an HTTP date. Missing or unparseable values fall back to the default; a
// date already in the past means retry immediately.
func retryAfterDelay(header string, now time.Time) time.Duration {
	header = strings.TrimSpace(header)
	if header == "" {
		return rateLimitedDefaultDelay
	}

	if seconds, err := strconv.Atoi(header); err == nil {
		if seconds < 0 {
			return rateLimitedDefaultDelay
		}

		return time.Duration(seconds) * time.Second
	}

	if at, err := dateparse.ParseAny(header); err == nil {
		if delay := at.Sub(now); delay > 0 {
			return delay
		}

		return 0
	}

	return rateLimitedDefaultDelay
}

// cleanAuthorName drops credential suffixes after the first comma
// ("Jane Smith, PhD" becomes "Jane Smith").
func cleanAuthorName(name string) string {
	if i := strings.Index(name, ","); i >= 0 {
		name = name[:i]
	}

	return strings.TrimSpace(name)
}

// sleepContext blocks for d or until ctx is cancelled.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
