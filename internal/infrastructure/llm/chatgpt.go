package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"FinNewsAgent/internal/config"
	"FinNewsAgent/internal/domain"
	"FinNewsAgent/internal/infrastructure/transport"
	"FinNewsAgent/internal/ports"
)

const defaultChatGPTEndpoint = "https://api.openai.com/v1/chat/completions"

// ChatGPTAnalyzer implements ports.Analyzer backed by OpenAI-compatible APIs.
type ChatGPTAnalyzer struct {
	endpoint     string
	model        string
	apiKey       string
	systemPrompt string
	temperature  float32
	maxTokens    int
	httpClient   *http.Client
	logger       zerolog.Logger
}

var _ ports.Analyzer = (*ChatGPTAnalyzer)(nil)

// NewChatGPTAnalyzer builds an analyzer from configuration.
func NewChatGPTAnalyzer(_ context.Context, cfg config.AIConfig, logger zerolog.Logger) (ports.Analyzer, error) {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = defaultChatGPTEndpoint
	}
	if cfg.APIKey == "" || cfg.Model == "" {
		return nil, errors.New("chatgpt analyzer misconfigured")
	}
	return &ChatGPTAnalyzer{
		endpoint:     endpoint,
		model:        cfg.Model,
		apiKey:       cfg.APIKey,
		systemPrompt: SystemPrompt(cfg.SystemPrompt),
		temperature:  cfg.Temperature,
		maxTokens:    cfg.MaxTokens,
		httpClient:   &http.Client{Timeout: cfg.Timeout},
		logger:       logger,
	}, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string            `json:"model"`
	Messages       []chatMessage     `json:"messages"`
	Temperature    float32           `json:"temperature"`
	MaxTokens      int               `json:"max_tokens,omitempty"`
	ResponseFormat map[string]string `json:"response_format"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Analyze posts the article as a user message and returns the first choice.
func (c *ChatGPTAnalyzer) Analyze(ctx context.Context, article domain.RawArticle) (domain.Analysis, error) {
	body, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: c.systemPrompt},
			{Role: "user", Content: UserPrompt(article)},
		},
		Temperature:    c.temperature,
		MaxTokens:      c.maxTokens,
		ResponseFormat: map[string]string{"type": "json_object"},
	})
	if err != nil {
		return domain.Analysis{}, domain.Fatal(domain.StageEnriching, fmt.Errorf("marshal chatgpt payload: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return domain.Analysis{}, domain.Fatal(domain.StageEnriching, fmt.Errorf("new request: %w", err))
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.Analysis{}, transport.ClassifyTransport(ctx, domain.StageEnriching, fmt.Errorf("chatgpt request: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return domain.Analysis{}, transport.ClassifyStatus(domain.StageEnriching, resp)
	}

	var decoded chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return domain.Analysis{}, domain.ParseFailure(domain.StageEnriching, fmt.Errorf("decode chatgpt response: %w", err))
	}
	if len(decoded.Choices) == 0 || strings.TrimSpace(decoded.Choices[0].Message.Content) == "" {
		return domain.Analysis{}, domain.ParseFailure(domain.StageEnriching, errors.New("chatgpt returned no choices"))
	}

	version := decoded.Model
	if version == "" {
		version = c.model
	}
	return domain.Analysis{
		Payload:      []byte(decoded.Choices[0].Message.Content),
		ModelVersion: version,
	}, nil
}
