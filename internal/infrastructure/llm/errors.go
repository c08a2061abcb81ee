package llm

import (
	"context"
	"errors"
	"net/http"
	"time"

	"FinNewsAgent/internal/domain"
)

// classifyCode maps a provider HTTP status onto the error taxonomy.
func classifyCode(code int, err error, retryAfter time.Duration) error {
	switch {
	case code == http.StatusTooManyRequests,
		code == http.StatusRequestTimeout,
		code == 529, // provider overloaded
		code >= http.StatusInternalServerError:
		return domain.TransientAfter(domain.StageEnriching, err, retryAfter)
	default:
		return domain.Fatal(domain.StageEnriching, err)
	}
}

// classifyCallError handles failures that carry no status code.
func classifyCallError(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.Canceled) {
		return ctx.Err()
	}
	return domain.Transient(domain.StageEnriching, err)
}
