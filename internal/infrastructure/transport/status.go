package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"FinNewsAgent/internal/domain"
)

const errorBodyLimit = 1024

// ClassifyStatus converts a non-2xx HTTP response into a classified error:
// 408, 429 and 5xx are transient, every other status is fatal.
func ClassifyStatus(stage domain.Stage, resp *http.Response) error {
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyLimit))
	err := fmt.Errorf("unexpected status %s: %s", resp.Status, strings.TrimSpace(string(snippet)))

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return domain.TransientAfter(stage, err, RetryAfter(resp.Header))
	case resp.StatusCode == http.StatusRequestTimeout, resp.StatusCode >= http.StatusInternalServerError:
		return domain.TransientAfter(stage, err, RetryAfter(resp.Header))
	default:
		return domain.Fatal(stage, err)
	}
}

// ClassifyTransport wraps errors returned by http.Client.Do. Every transport
// failure is worth another attempt; cancellation of ctx is passed through.
func ClassifyTransport(ctx context.Context, stage domain.Stage, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(ctxErr, context.Canceled) {
		return ctxErr
	}
	return domain.Transient(stage, err)
}

// RetryAfter parses the Retry-After header in either of its two forms.
func RetryAfter(header http.Header) time.Duration {
	value := strings.TrimSpace(header.Get("Retry-After"))
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}
