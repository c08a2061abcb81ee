package llm

import (
	"fmt"
	"strings"

	"FinNewsAgent/internal/domain"
)

// bodyLimit caps article text sent to a model.
const bodyLimit = 6000

const defaultSystemPrompt = `You are a financial news analyst. You read one news article about a listed company ` +
	`and answer with a single JSON object and nothing else.`

const instructionTemplate = `Analyze the following news article about %s.

Return a JSON object with exactly these keys:
  "sentiment": one of "Positive", "Negative" or "Neutral", the tone of the article for %s investors
  "topics": an array of 1 to 5 short topic labels (for example "earnings", "merger", "product launch")
  "impact_score": a number from 0 to 100 estimating how strongly the news could move the price of %s
  "summary": one or two sentences summarizing the article

Title: %s
Source: %s
Published: %s

Article:
%s`

// SystemPrompt returns the configured system prompt or the built-in one.
func SystemPrompt(configured string) string {
	configured = strings.TrimSpace(configured)
	if configured == "" {
		return defaultSystemPrompt
	}
	return configured
}

// UserPrompt renders the analysis instruction for one article.
func UserPrompt(article domain.RawArticle) string {
	symbol := article.Symbol.String()
	published := "unknown"
	if !article.PublishedAt.IsZero() {
		published = article.PublishedAt.UTC().Format("2006-01-02 15:04 MST")
	}
	source := article.SourceName
	if source == "" {
		source = "unknown"
	}
	return fmt.Sprintf(instructionTemplate,
		symbol, symbol, symbol,
		article.Title, source, published,
		truncate(article.Body, bodyLimit))
}

func truncate(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit]) + "…"
}
