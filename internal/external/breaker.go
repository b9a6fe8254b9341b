package external

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sony/gobreaker/v2"

	"notekeeper/internal/types"
)

// BreakerEmailProvider decorates an EmailProvider with a circuit breaker so
// that a struggling email service fails fast instead of tying up dispatcher
// workers. Permanent rejections (email_blocked) do not count against the
// breaker: the provider is healthy, the address is not.
type BreakerEmailProvider struct {
	inner   EmailProvider
	breaker *gobreaker.CircuitBreaker[string]
	logger  *slog.Logger
}

// NewBreakerEmailProvider wraps the given provider. The breaker opens after
// five consecutive transport failures and probes again after 30 seconds.
func NewBreakerEmailProvider(inner EmailProvider, logger *slog.Logger) *BreakerEmailProvider {
	if logger == nil {
		logger = slog.Default()
	}

	cb := gobreaker.NewCircuitBreaker[string](gobreaker.Settings{
		Name:        "email-provider",
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			// A blocked address is a per-recipient outcome, not a provider
			// outage; it must not open the circuit.
			var appErr *types.AppError
			return errors.As(err, &appErr) && appErr.Code == types.ErrCodeEmailBlocked
		},
	})

	return &BreakerEmailProvider{inner: inner, breaker: cb, logger: logger}
}

// Send implements EmailProvider. When the circuit is open the call fails
// immediately with an upstream_unavailable error, which the dispatcher
// treats as retryable.
func (p *BreakerEmailProvider) Send(ctx context.Context, input types.SendInput) (string, error) {
	msgID, err := p.breaker.Execute(func() (string, error) {
		return p.inner.Send(ctx, input)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			p.logger.Warn("email circuit open, failing fast")
			return "", types.NewAppError(
				types.ErrCodeUpstreamUnavailable,
				"email provider circuit open",
				err,
			)
		}
		return "", err
	}
	return msgID, nil
}

// Compile-time assertion that BreakerEmailProvider satisfies EmailProvider.
var _ EmailProvider = (*BreakerEmailProvider)(nil)
