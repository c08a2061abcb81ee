package domain

import (
	"strings"
	"time"
)

// Symbol identifies a tracked instrument (ticker).
type Symbol string

// NormalizeSymbol trims and upper-cases a raw watchlist entry.
func NormalizeSymbol(raw string) Symbol {
	return Symbol(strings.ToUpper(strings.TrimSpace(raw)))
}

func (s Symbol) String() string {
	return string(s)
}

// RawArticle is a news item as produced by the fetch stage.
type RawArticle struct {
	Identity    string    `json:"identity"`
	Symbol      Symbol    `json:"symbol"`
	Title       string    `json:"title"`
	Body        string    `json:"body"`
	PublishedAt time.Time `json:"published_at"`
	SourceURL   string    `json:"source_url"`
	SourceName  string    `json:"source_name,omitempty"`
}

// HasContent reports whether the article carries enough text to analyze.
func (a RawArticle) HasContent() bool {
	return strings.TrimSpace(a.Title) != "" && strings.TrimSpace(a.Body) != ""
}

// Analysis is the unparsed answer of the AI collaborator.
type Analysis struct {
	Payload      []byte
	ModelVersion string
}

// EnrichedRecord is an article together with its AI-derived analysis.
type EnrichedRecord struct {
	RawArticle
	Sentiment    Sentiment `json:"sentiment"`
	Topics       []string  `json:"topics"`
	ImpactScore  float64   `json:"impact_score"`
	Summary      string    `json:"summary"`
	AnalyzedAt   time.Time `json:"analyzed_at"`
	ModelVersion string    `json:"model_version"`
}

// DedupRecord marks an identity as durably processed.
type DedupRecord struct {
	Identity  string    `json:"identity"`
	Symbol    Symbol    `json:"symbol"`
	FirstSeen time.Time `json:"first_seen"`
}
