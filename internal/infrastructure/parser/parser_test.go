package parser

import (
	"strings"
	"testing"
	"time"

	"FinNewsAgent/internal/domain"
)

func TestCleanText(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"":                                       "",
		"  plain   text \n here ":                "plain text here",
		"<p>Apple <b>beats</b> estimates</p>":    "Apple beats estimates",
		"<ul><li>one</li><li>two</li></ul>":      "onetwo",
		"AT&amp;T cuts guidance":                 "AT&T cuts guidance",
		"<script>var x=1</script>Shares rallied": "Shares rallied",
	}
	for in, want := range cases {
		if got := CleanText(in); got != want {
			t.Fatalf("CleanText(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestStripTruncation(t *testing.T) {
	t.Parallel()

	in := "Apple shares rose after the company reported… [+2315 chars]"
	if got := StripTruncation(in); got != "Apple shares rose after the company reported" {
		t.Fatalf("unexpected result: %q", got)
	}
	if got := StripTruncation("no marker"); got != "no marker" {
		t.Fatalf("unexpected result: %q", got)
	}
}

func TestBody(t *testing.T) {
	t.Parallel()

	if got := Body("", "Full content [+10 chars]"); got != "Full content" {
		t.Fatalf("content only: %q", got)
	}
	if got := Body("Short desc", ""); got != "Short desc" {
		t.Fatalf("description only: %q", got)
	}
	if got := Body("Short desc", "Short desc and more [+10 chars]"); got != "Short desc and more" {
		t.Fatalf("content extends description: %q", got)
	}
	if got := Body("Desc", "Other"); got != "Desc\n\nOther" {
		t.Fatalf("distinct texts: %q", got)
	}
}

func TestDecodePageAndConvert(t *testing.T) {
	t.Parallel()

	body := `{
	  "status": "ok",
	  "totalResults": 1,
	  "articles": [{
	    "source": {"id": null, "name": "Reuters"},
	    "title": "Apple <em>beats</em> estimates",
	    "description": "Strong iPhone sales.",
	    "url": "HTTPS://Example.com/apple/#top",
	    "publishedAt": "2025-05-01T12:30:00Z",
	    "content": "Strong iPhone sales. More detail… [+900 chars]"
	  }]
	}`

	page, err := DecodePage(strings.NewReader(body))
	if err != nil {
		t.Fatalf("DecodePage: %v", err)
	}
	if page.IsError() || len(page.Articles) != 1 {
		t.Fatalf("unexpected page: %+v", page)
	}

	article := ToRawArticle(page.Articles[0], "AAPL", domain.IdentityURL)
	if article.Title != "Apple beats estimates" {
		t.Fatalf("title: %q", article.Title)
	}
	if article.Body != "Strong iPhone sales. More detail…" && article.Body != "Strong iPhone sales. More detail" {
		t.Fatalf("body: %q", article.Body)
	}
	if article.Identity != "https://example.com/apple" {
		t.Fatalf("identity: %q", article.Identity)
	}
	if !article.PublishedAt.Equal(time.Date(2025, 5, 1, 12, 30, 0, 0, time.UTC)) {
		t.Fatalf("published: %v", article.PublishedAt)
	}
	if article.SourceName != "Reuters" || article.Symbol != "AAPL" {
		t.Fatalf("source/symbol: %+v", article)
	}
}

func TestDecodePageErrors(t *testing.T) {
	t.Parallel()

	if _, err := DecodePage(strings.NewReader("{not json")); err == nil {
		t.Fatal("expected decode error")
	}

	page, err := DecodePage(strings.NewReader(`{"status":"error","code":"apiKeyInvalid","message":"bad key"}`))
	if err != nil {
		t.Fatalf("DecodePage: %v", err)
	}
	if !page.IsError() || page.Code != "apiKeyInvalid" {
		t.Fatalf("unexpected page: %+v", page)
	}
}

func TestRemovedTitleIsBlank(t *testing.T) {
	t.Parallel()

	article := ToRawArticle(Item{Title: "[Removed]", URL: "https://x.test/a"}, "AAPL", domain.IdentityURL)
	if article.HasContent() {
		t.Fatal("removed item must not count as content")
	}
}
