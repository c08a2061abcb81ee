package newsapi

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FinNewsAgent/internal/config"
	"FinNewsAgent/internal/domain"
)

func newTestClient(endpoint string, pageSize, maxPages int) *Client {
	return NewClient(config.NewsConfig{
		Endpoint:          endpoint,
		APIKey:            "test-key",
		Language:          "en",
		PageSize:          pageSize,
		MaxPages:          maxPages,
		Timeout:           2 * time.Second,
		RequestsPerSecond: 1000,
		Identity:          "url",
	}, zerolog.Nop())
}

func article(n int) string {
	return fmt.Sprintf(`{"source":{"name":"Wire"},"title":"Story %d","description":"Body %d","url":"https://news.test/%d","publishedAt":"2025-05-01T10:00:00Z"}`, n, n, n)
}

func TestFetchPagesLazily(t *testing.T) {
	t.Parallel()

	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		assert.Equal(t, "test-key", r.Header.Get("X-Api-Key"))
		assert.Equal(t, "AAPL", r.URL.Query().Get("q"))
		assert.Equal(t, "publishedAt", r.URL.Query().Get("sortBy"))
		assert.Equal(t, "2025-05-01T00:00:00", r.URL.Query().Get("from"))

		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		first, second := (page-1)*2+1, (page-1)*2+2
		fmt.Fprintf(w, `{"status":"ok","totalResults":6,"articles":[%s,%s]}`, article(first), article(second))
	}))
	defer srv.Close()

	client := newTestClient(srv.URL, 2, 3)
	since := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)

	var got []domain.RawArticle
	for a, err := range client.Fetch(context.Background(), "AAPL", since) {
		require.NoError(t, err)
		got = append(got, a)
		if len(got) == 3 {
			break
		}
	}

	require.Len(t, got, 3)
	assert.Equal(t, "https://news.test/1", got[0].Identity)
	assert.Equal(t, domain.Symbol("AAPL"), got[2].Symbol)
	assert.Equal(t, "Wire", got[1].SourceName)
	assert.Equal(t, int32(2), requests.Load(), "third page must not be requested")
}

func TestFetchStopsOnShortPage(t *testing.T) {
	t.Parallel()

	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		requests.Add(1)
		fmt.Fprintf(w, `{"status":"ok","totalResults":100,"articles":[%s]}`, article(1))
	}))
	defer srv.Close()

	count := 0
	for _, err := range newTestClient(srv.URL, 20, 5).Fetch(context.Background(), "AAPL", time.Now()) {
		require.NoError(t, err)
		count++
	}
	assert.Equal(t, 1, count)
	assert.Equal(t, int32(1), requests.Load())
}

func TestFetchClassifiesFailures(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		status int
		body   string
		kind   domain.ErrorKind
	}{
		{"rate limited", http.StatusTooManyRequests, `{"status":"error","code":"rateLimited","message":"slow down"}`, domain.KindTransient},
		{"server error", http.StatusInternalServerError, `oops`, domain.KindTransient},
		{"bad key", http.StatusUnauthorized, `{"status":"error","code":"apiKeyInvalid","message":"bad key"}`, domain.KindFatal},
		{"bad request", http.StatusBadRequest, `{"status":"error","code":"parametersMissing","message":"q"}`, domain.KindFatal},
		{"malformed body", http.StatusOK, `{"status":`, domain.KindFatal},
		{"error status in 200", http.StatusOK, `{"status":"error","code":"apiKeyMissing","message":"missing"}`, domain.KindFatal},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			var errs []error
			for _, err := range newTestClient(srv.URL, 20, 1).Fetch(context.Background(), "AAPL", time.Now()) {
				errs = append(errs, err)
			}
			require.Len(t, errs, 1)
			assert.Equal(t, tc.kind, domain.KindOf(errs[0]))
			assert.Equal(t, domain.StageFetching, domain.StageOf(errs[0]))
		})
	}
}

func TestFetchEndsQuietlyWhenResultsExhausted(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("page") == "2" {
			w.WriteHeader(http.StatusUpgradeRequired)
			_, _ = w.Write([]byte(`{"status":"error","code":"maximumResultsReached","message":"limit"}`))
			return
		}
		fmt.Fprintf(w, `{"status":"ok","totalResults":200,"articles":[%s]}`, article(1))
	}))
	defer srv.Close()

	count := 0
	for _, err := range newTestClient(srv.URL, 1, 3).Fetch(context.Background(), "AAPL", time.Now()) {
		require.NoError(t, err)
		count++
	}
	assert.Equal(t, 1, count)
}

func TestFetchTimeoutIsTransient(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	client := newTestClient(srv.URL, 20, 1)
	client.timeout = 50 * time.Millisecond

	for _, err := range client.Fetch(context.Background(), "AAPL", time.Now()) {
		require.Error(t, err)
		assert.Equal(t, domain.KindTransient, domain.KindOf(err))
	}
}
