package domain

import "strings"

// Sentiment is the normalized tone of an article.
type Sentiment string

const (
	SentimentPositive Sentiment = "Positive"
	SentimentNegative Sentiment = "Negative"
	SentimentNeutral  Sentiment = "Neutral"
)

// ParseSentiment maps free-form model output onto one of the three known values.
// The boolean is false when the input was not recognized; the returned value is
// then Neutral.
func ParseSentiment(raw string) (Sentiment, bool) {
	cleaned := strings.ToLower(strings.Trim(strings.TrimSpace(raw), " .!\"'`*"))
	switch cleaned {
	case "positive":
		return SentimentPositive, true
	case "negative":
		return SentimentNegative, true
	case "neutral":
		return SentimentNeutral, true
	default:
		return SentimentNeutral, false
	}
}

// Score projects the sentiment onto [-1, 1] for baseline arithmetic.
func (s Sentiment) Score() float64 {
	switch s {
	case SentimentPositive:
		return 1
	case SentimentNegative:
		return -1
	default:
		return 0
	}
}

// IsNeutral reports whether the sentiment carries no direction.
func (s Sentiment) IsNeutral() bool {
	return s != SentimentPositive && s != SentimentNegative
}
