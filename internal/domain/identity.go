package domain

import (
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
)

// IdentityStrategy selects how article identities are derived.
type IdentityStrategy string

const (
	IdentityURL  IdentityStrategy = "url"
	IdentityHash IdentityStrategy = "hash"
)

// DeriveIdentity computes the dedup key for an article. The url strategy falls
// back to hashing when the article has no usable URL.
func DeriveIdentity(strategy IdentityStrategy, a RawArticle) string {
	if strategy != IdentityHash {
		if id := normalizeURL(a.SourceURL); id != "" {
			return id
		}
	}
	return hashIdentity(a)
}

func normalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return ""
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	u.RawFragment = ""
	u.Path = strings.TrimSuffix(u.Path, "/")
	u.RawPath = ""
	return u.String()
}

func hashIdentity(a RawArticle) string {
	var b strings.Builder
	b.WriteString(strings.ToLower(strings.TrimSpace(a.SourceName)))
	b.WriteByte('|')
	b.WriteString(a.PublishedAt.UTC().Format(time.RFC3339))
	b.WriteByte('|')
	b.WriteString(strings.TrimSpace(a.Title))
	return "h:" + strconv.FormatUint(xxhash.Sum64String(b.String()), 16)
}
