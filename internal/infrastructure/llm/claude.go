package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rs/zerolog"

	"FinNewsAgent/internal/config"
	"FinNewsAgent/internal/domain"
	"FinNewsAgent/internal/infrastructure/transport"
	"FinNewsAgent/internal/ports"
)

// ClaudeAnalyzer implements ports.Analyzer on the Anthropic Messages API.
type ClaudeAnalyzer struct {
	client       anthropic.Client
	model        string
	systemPrompt string
	temperature  float32
	maxTokens    int64
	logger       zerolog.Logger
}

var _ ports.Analyzer = (*ClaudeAnalyzer)(nil)

// NewClaudeAnalyzer matches the Factory signature. SDK retries are disabled;
// the enrichment stage owns retry policy.
func NewClaudeAnalyzer(_ context.Context, cfg config.AIConfig, logger zerolog.Logger) (ports.Analyzer, error) {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithBaseURL(cfg.Endpoint))
	}

	logger.Debug().
		Str("model", cfg.Model).
		Float32("temperature", cfg.Temperature).
		Int("max_tokens", cfg.MaxTokens).
		Msg("claude analyzer initialized")

	return &ClaudeAnalyzer{
		client:       anthropic.NewClient(opts...),
		model:        cfg.Model,
		systemPrompt: SystemPrompt(cfg.SystemPrompt),
		temperature:  cfg.Temperature,
		maxTokens:    int64(cfg.MaxTokens),
		logger:       logger,
	}, nil
}

// Analyze sends one article and concatenates the text blocks of the reply.
func (c *ClaudeAnalyzer) Analyze(ctx context.Context, article domain.RawArticle) (domain.Analysis, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: c.maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(UserPrompt(article))),
		},
		System: []anthropic.TextBlockParam{
			{Text: c.systemPrompt},
		},
	}
	if c.temperature > 0 {
		params.Temperature = anthropic.Float(float64(c.temperature))
	}

	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return domain.Analysis{}, classifyClaudeError(ctx, err)
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return domain.Analysis{}, domain.ParseFailure(domain.StageEnriching, errors.New("claude returned no text"))
	}

	version := string(resp.Model)
	if version == "" {
		version = c.model
	}
	return domain.Analysis{Payload: []byte(text.String()), ModelVersion: version}, nil
}

func classifyClaudeError(ctx context.Context, err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		var retryAfter time.Duration
		if apiErr.Response != nil {
			retryAfter = transport.RetryAfter(apiErr.Response.Header)
		}
		return classifyCode(apiErr.StatusCode, fmt.Errorf("claude: %w", err), retryAfter)
	}
	return classifyCallError(ctx, fmt.Errorf("claude: %w", err))
}
