package newsapi

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"FinNewsAgent/internal/config"
	"FinNewsAgent/internal/domain"
	"FinNewsAgent/internal/infrastructure/parser"
	"FinNewsAgent/internal/infrastructure/transport"
	"FinNewsAgent/internal/ports"
)

// Error codes returned in the body of a failed NewsAPI call.
const (
	codeRateLimited     = "rateLimited"
	codeUnexpectedError = "unexpectedError"
	codeMaxResults      = "maximumResultsReached"
)

var errResultsExhausted = errors.New("newsapi results exhausted")

// Client retrieves articles from the NewsAPI /v2/everything endpoint.
type Client struct {
	endpoint string
	apiKey   string
	language string
	pageSize int
	maxPages int
	timeout  time.Duration
	identity domain.IdentityStrategy
	http     *http.Client
	limiter  *rate.Limiter
	logger   zerolog.Logger
}

var _ ports.NewsSource = (*Client)(nil)

// NewClient builds a client from configuration. Requests share one limiter.
func NewClient(cfg config.NewsConfig, logger zerolog.Logger) *Client {
	return &Client{
		endpoint: cfg.Endpoint,
		apiKey:   cfg.APIKey,
		language: cfg.Language,
		pageSize: cfg.PageSize,
		maxPages: max(cfg.MaxPages, 1),
		timeout:  cfg.Timeout,
		identity: domain.IdentityStrategy(cfg.Identity),
		http:     &http.Client{},
		limiter:  rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1),
		logger:   logger,
	}
}

// Fetch lazily pages through articles mentioning symbol published after since.
// A failed page ends the sequence with a classified error.
func (c *Client) Fetch(ctx context.Context, symbol domain.Symbol, since time.Time) iter.Seq2[domain.RawArticle, error] {
	return func(yield func(domain.RawArticle, error) bool) {
		received := 0
		for page := 1; page <= c.maxPages; page++ {
			result, err := c.fetchPage(ctx, symbol, since, page)
			if errors.Is(err, errResultsExhausted) {
				return
			}
			if err != nil {
				yield(domain.RawArticle{}, err)
				return
			}

			c.logger.Debug().
				Str("symbol", symbol.String()).
				Int("page", page).
				Int("articles", len(result.Articles)).
				Int("total", result.TotalResults).
				Msg("newsapi page fetched")

			for _, item := range result.Articles {
				if !yield(parser.ToRawArticle(item, symbol, c.identity), nil) {
					return
				}
			}

			received += len(result.Articles)
			if len(result.Articles) < c.pageSize || received >= result.TotalResults {
				return
			}
		}
	}
}

func (c *Client) fetchPage(ctx context.Context, symbol domain.Symbol, since time.Time, page int) (parser.Page, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return parser.Page{}, transport.ClassifyTransport(ctx, domain.StageFetching, fmt.Errorf("rate limiter: %w", err))
	}

	reqCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	pageURL, err := c.buildPageURL(symbol, since, page)
	if err != nil {
		return parser.Page{}, domain.Fatal(domain.StageFetching, err)
	}

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, pageURL, nil)
	if err != nil {
		return parser.Page{}, domain.Fatal(domain.StageFetching, fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("X-Api-Key", c.apiKey)
	req.Header.Set("User-Agent", "FinNewsAgent/1.0")

	resp, err := c.http.Do(req)
	if err != nil {
		return parser.Page{}, transport.ClassifyTransport(ctx, domain.StageFetching, fmt.Errorf("request page %d: %w", page, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return parser.Page{}, c.classifyFailure(resp, page)
	}

	result, err := parser.DecodePage(resp.Body)
	if err != nil {
		return parser.Page{}, domain.Fatal(domain.StageFetching, err)
	}
	if result.IsError() {
		return parser.Page{}, classifyCode(result.Code, result.Message, 0)
	}

	return result, nil
}

// classifyFailure inspects the error body, which carries a machine-readable code.
func (c *Client) classifyFailure(resp *http.Response, page int) error {
	if result, err := parser.DecodePage(resp.Body); err == nil && result.IsError() {
		if result.Code == codeMaxResults && page > 1 {
			return errResultsExhausted
		}
		retryAfter := transport.RetryAfter(resp.Header)
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError {
			return domain.TransientAfter(domain.StageFetching,
				fmt.Errorf("newsapi %s: %s (%s)", resp.Status, result.Message, result.Code), retryAfter)
		}
		return classifyCode(result.Code, fmt.Sprintf("%s: %s", resp.Status, result.Message), retryAfter)
	}
	return transport.ClassifyStatus(domain.StageFetching, resp)
}

func classifyCode(code, message string, retryAfter time.Duration) error {
	err := fmt.Errorf("newsapi error %s: %s", code, message)
	switch code {
	case codeRateLimited, codeUnexpectedError:
		return domain.TransientAfter(domain.StageFetching, err, retryAfter)
	default:
		return domain.Fatal(domain.StageFetching, err)
	}
}

func (c *Client) buildPageURL(symbol domain.Symbol, since time.Time, page int) (string, error) {
	parsed, err := url.Parse(c.endpoint)
	if err != nil {
		return "", fmt.Errorf("invalid newsapi endpoint %s: %w", c.endpoint, err)
	}

	query := parsed.Query()
	query.Set("q", symbol.String())
	query.Set("from", since.UTC().Format("2006-01-02T15:04:05"))
	query.Set("sortBy", "publishedAt")
	if c.language != "" {
		query.Set("language", c.language)
	}
	query.Set("pageSize", strconv.Itoa(c.pageSize))
	query.Set("page", strconv.Itoa(page))
	parsed.RawQuery = query.Encode()
	return parsed.String(), nil
}
