package parser

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"FinNewsAgent/internal/domain"
)

// Page mirrors one /v2/everything response.
type Page struct {
	Status       string `json:"status"`
	Code         string `json:"code"`
	Message      string `json:"message"`
	TotalResults int    `json:"totalResults"`
	Articles     []Item `json:"articles"`
}

// Item is a single article as NewsAPI encodes it.
type Item struct {
	Source struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"source"`
	Author      string `json:"author"`
	Title       string `json:"title"`
	Description string `json:"description"`
	URL         string `json:"url"`
	PublishedAt string `json:"publishedAt"`
	Content     string `json:"content"`
}

// DecodePage reads a NewsAPI response body.
func DecodePage(r io.Reader) (Page, error) {
	var page Page
	if err := json.NewDecoder(r).Decode(&page); err != nil {
		return Page{}, fmt.Errorf("decode newsapi page: %w", err)
	}
	return page, nil
}

// IsError reports whether the page carries status "error".
func (p Page) IsError() bool {
	return strings.EqualFold(p.Status, "error")
}

// ToRawArticle converts an item into the fetch-stage representation and
// derives its identity.
func ToRawArticle(item Item, symbol domain.Symbol, strategy domain.IdentityStrategy) domain.RawArticle {
	article := domain.RawArticle{
		Symbol:      symbol,
		Title:       CleanText(item.Title),
		Body:        Body(item.Description, item.Content),
		PublishedAt: parsePublished(item.PublishedAt),
		SourceURL:   strings.TrimSpace(item.URL),
		SourceName:  strings.TrimSpace(item.Source.Name),
	}
	if article.Title == "[Removed]" {
		article.Title = ""
	}
	article.Identity = domain.DeriveIdentity(strategy, article)
	return article
}

func parsePublished(raw string) time.Time {
	raw = strings.TrimSpace(raw)
	for _, layout := range []string{time.RFC3339, time.RFC3339Nano, "2006-01-02T15:04:05"} {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts.UTC()
		}
	}
	return time.Time{}
}
