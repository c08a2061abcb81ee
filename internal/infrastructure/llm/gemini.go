package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/genai"

	"FinNewsAgent/internal/config"
	"FinNewsAgent/internal/domain"
	"FinNewsAgent/internal/ports"
)

// GeminiAnalyzer asks a Gemini model for a schema-constrained JSON analysis.
type GeminiAnalyzer struct {
	client       *genai.Client
	model        string
	systemPrompt string
	temperature  float32
	maxTokens    int32
	logger       zerolog.Logger
}

var _ ports.Analyzer = (*GeminiAnalyzer)(nil)

// NewGeminiAnalyzer matches the Factory signature.
func NewGeminiAnalyzer(ctx context.Context, cfg config.AIConfig, logger zerolog.Logger) (ports.Analyzer, error) {
	clientCfg := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.Endpoint != "" {
		clientCfg.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.Endpoint}
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("init genai client: %w", err)
	}

	logger.Debug().
		Str("model", cfg.Model).
		Float32("temperature", cfg.Temperature).
		Int("max_tokens", cfg.MaxTokens).
		Msg("gemini analyzer initialized")

	return &GeminiAnalyzer{
		client:       client,
		model:        cfg.Model,
		systemPrompt: SystemPrompt(cfg.SystemPrompt),
		temperature:  cfg.Temperature,
		maxTokens:    int32(cfg.MaxTokens),
		logger:       logger,
	}, nil
}

// Analyze sends one article and returns the raw JSON answer.
func (g *GeminiAnalyzer) Analyze(ctx context.Context, article domain.RawArticle) (domain.Analysis, error) {
	genCfg := &genai.GenerateContentConfig{
		Temperature:       genai.Ptr(g.temperature),
		MaxOutputTokens:   g.maxTokens,
		ResponseMIMEType:  "application/json",
		ResponseSchema:    analysisSchema(),
		SystemInstruction: genai.NewContentFromText(g.systemPrompt, genai.RoleUser),
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(UserPrompt(article)), genCfg)
	if err != nil {
		return domain.Analysis{}, classifyGeminiError(ctx, err)
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return domain.Analysis{}, domain.ParseFailure(domain.StageEnriching, errors.New("gemini returned no text"))
	}

	version := resp.ModelVersion
	if version == "" {
		version = g.model
	}
	return domain.Analysis{Payload: []byte(text), ModelVersion: version}, nil
}

func analysisSchema() *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"sentiment": {
				Type: genai.TypeString,
				Enum: []string{"Positive", "Negative", "Neutral"},
			},
			"topics": {
				Type:  genai.TypeArray,
				Items: &genai.Schema{Type: genai.TypeString},
			},
			"impact_score": {
				Type:    genai.TypeNumber,
				Minimum: genai.Ptr(0.0),
				Maximum: genai.Ptr(100.0),
			},
			"summary": {Type: genai.TypeString},
		},
		Required:         []string{"sentiment", "topics", "impact_score", "summary"},
		PropertyOrdering: []string{"sentiment", "topics", "impact_score", "summary"},
	}
}

func classifyGeminiError(ctx context.Context, err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return classifyCode(apiErr.Code, fmt.Errorf("gemini: %w", err), geminiRetryDelay(apiErr))
	}
	return classifyCallError(ctx, fmt.Errorf("gemini: %w", err))
}

// geminiRetryDelay reads google.rpc.RetryInfo from the error details.
func geminiRetryDelay(apiErr genai.APIError) time.Duration {
	for _, detail := range apiErr.Details {
		kind, _ := detail["@type"].(string)
		if !strings.HasSuffix(kind, "RetryInfo") {
			continue
		}
		raw, _ := detail["retryDelay"].(string)
		if d, err := time.ParseDuration(raw); err == nil {
			return d
		}
	}
	return 0
}
