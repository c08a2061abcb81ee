package usecase

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"FinNewsAgent/internal/domain"
)

const (
	minImpact = 0
	maxImpact = 100
)

var (
	fencePattern = regexp.MustCompile("(?s)^\\s*```[a-zA-Z]*\\s*\\n?(.*?)\\n?\\s*```\\s*$")
	validate     = validator.New()
)

// ParsedAnalysis is a normalized model answer.
type ParsedAnalysis struct {
	Sentiment   domain.Sentiment
	Topics      []string
	ImpactScore float64
	Summary     string
	// Warnings lists normalizations applied to the answer.
	Warnings []string
}

type analysisPayload struct {
	Sentiment   *string     `json:"sentiment" validate:"required"`
	Topics      []string    `json:"topics" validate:"required"`
	ImpactScore *flexNumber `json:"impact_score" validate:"required"`
	Summary     *string     `json:"summary" validate:"required"`
}

// flexNumber accepts 85, 85.5 and "85". Non-finite values are rejected.
type flexNumber float64

func (n *flexNumber) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		data = []byte(strings.TrimSuffix(strings.TrimSpace(s), "%"))
	}
	v, err := strconv.ParseFloat(string(data), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return fmt.Errorf("impact_score %q is not a number", string(data))
	}
	*n = flexNumber(v)
	return nil
}

// ParseEnrichment decodes a model answer. Missing fields and malformed JSON
// are parse failures; an unknown sentiment becomes Neutral with a warning.
func ParseEnrichment(payload []byte) (ParsedAnalysis, error) {
	body := extractJSON(payload)
	if len(body) == 0 {
		return ParsedAnalysis{}, domain.ParseFailure(domain.StageEnriching, errors.New("empty analysis"))
	}

	var p analysisPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return ParsedAnalysis{}, domain.ParseFailure(domain.StageEnriching, fmt.Errorf("decode analysis: %w", err))
	}
	if err := validate.Struct(p); err != nil {
		return ParsedAnalysis{}, domain.ParseFailure(domain.StageEnriching, fmt.Errorf("incomplete analysis: %w", err))
	}

	var out ParsedAnalysis

	sentiment, known := domain.ParseSentiment(*p.Sentiment)
	if !known {
		out.Warnings = append(out.Warnings, fmt.Sprintf("unrecognized sentiment %q, using Neutral", *p.Sentiment))
	}
	out.Sentiment = sentiment

	score := float64(*p.ImpactScore)
	if score < minImpact || score > maxImpact {
		clamped := min(max(score, minImpact), maxImpact)
		out.Warnings = append(out.Warnings, fmt.Sprintf("impact score %g clamped to %g", score, clamped))
		score = clamped
	}
	out.ImpactScore = score

	out.Topics = normalizeTopics(p.Topics)
	out.Summary = strings.TrimSpace(*p.Summary)
	return out, nil
}

func extractJSON(payload []byte) []byte {
	text := strings.TrimSpace(string(payload))
	if m := fencePattern.FindStringSubmatch(text); m != nil {
		text = strings.TrimSpace(m[1])
	}
	if strings.HasPrefix(text, "{") {
		return []byte(text)
	}
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return []byte(text)
	}
	return []byte(text[start : end+1])
}

func normalizeTopics(raw []string) []string {
	seen := make(map[string]struct{}, len(raw))
	topics := make([]string, 0, len(raw))
	for _, t := range raw {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		key := strings.ToLower(t)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		topics = append(topics, t)
	}
	slices.SortFunc(topics, func(a, b string) int {
		return strings.Compare(strings.ToLower(a), strings.ToLower(b))
	})
	return topics
}
