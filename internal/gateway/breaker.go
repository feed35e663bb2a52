package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"apna-payments/internal/config"
	internalErrors "apna-payments/internal/errors"

	"github.com/sony/gobreaker"
)

// Breaker fails fast while the wrapped gateway keeps failing. It never
// retries a call.
type Breaker struct {
	next PaymentGatewayInterface
	cb   *gobreaker.CircuitBreaker
}

func NewBreaker(name string, next PaymentGatewayInterface) *Breaker {
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     config.GatewayBreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= config.GatewayBreakerFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("gateway circuit breaker changed state", "breaker", name, "from", from.String(), "to", to.String())
		},
	}

	return &Breaker{
		next: next,
		cb:   gobreaker.NewCircuitBreaker(settings),
	}
}

func (b *Breaker) CreatePaymentRequest(ctx context.Context, params PaymentRequestParams) (*PaymentRequest, error) {
	result, err := b.cb.Execute(func() (interface{}, error) {
		return b.next.CreatePaymentRequest(ctx, params)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %v", internalErrors.ErrGatewayUnavailable, err)
		}
		return nil, err
	}
	return result.(*PaymentRequest), nil
}

func (b *Breaker) State() gobreaker.State {
	return b.cb.State()
}
