package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"FinNewsAgent/internal/config"
	"FinNewsAgent/internal/domain"
	"FinNewsAgent/internal/infrastructure/transport"
	"FinNewsAgent/internal/ports"
)

// InferenceAnalyzer talks to a self-hosted scoring service that accepts the
// article as JSON and answers with the analysis object directly.
type InferenceAnalyzer struct {
	endpoint string
	apiKey   string
	model    string
	http     *http.Client
	logger   zerolog.Logger
}

var _ ports.Analyzer = (*InferenceAnalyzer)(nil)

// NewInferenceAnalyzer creates a reusable HTTP client.
func NewInferenceAnalyzer(_ context.Context, cfg config.AIConfig, logger zerolog.Logger) (ports.Analyzer, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("http analyzer requires ai.endpoint")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &InferenceAnalyzer{
		endpoint: cfg.Endpoint,
		apiKey:   cfg.APIKey,
		model:    cfg.Model,
		http:     &http.Client{Timeout: timeout},
		logger:   logger,
	}, nil
}

type inferenceRequest struct {
	Model       string    `json:"model,omitempty"`
	Symbol      string    `json:"symbol"`
	Title       string    `json:"title"`
	Body        string    `json:"body"`
	Source      string    `json:"source,omitempty"`
	PublishedAt time.Time `json:"published_at"`
	Prompt      string    `json:"prompt"`
}

// Analyze posts the article and returns the response body verbatim. The
// service may report its model through the X-Model-Version header.
func (c *InferenceAnalyzer) Analyze(ctx context.Context, article domain.RawArticle) (domain.Analysis, error) {
	body, err := json.Marshal(inferenceRequest{
		Model:       c.model,
		Symbol:      article.Symbol.String(),
		Title:       article.Title,
		Body:        article.Body,
		Source:      article.SourceName,
		PublishedAt: article.PublishedAt,
		Prompt:      UserPrompt(article),
	})
	if err != nil {
		return domain.Analysis{}, domain.Fatal(domain.StageEnriching, fmt.Errorf("marshal payload: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return domain.Analysis{}, domain.Fatal(domain.StageEnriching, fmt.Errorf("new request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return domain.Analysis{}, transport.ClassifyTransport(ctx, domain.StageEnriching, fmt.Errorf("do request: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return domain.Analysis{}, transport.ClassifyStatus(domain.StageEnriching, resp)
	}

	var raw json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return domain.Analysis{}, domain.ParseFailure(domain.StageEnriching, fmt.Errorf("decode response: %w", err))
	}

	version := resp.Header.Get("X-Model-Version")
	if version == "" {
		version = c.model
	}
	return domain.Analysis{Payload: raw, ModelVersion: version}, nil
}
