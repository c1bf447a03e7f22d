package embedding

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

/*
ResilientConfig configures NewResilient.
*/
type ResilientConfig struct {
	Name string
	// MaxRetries is the number of extra attempts after the first failure.
	MaxRetries      uint64
	InitialInterval time.Duration
	MaxInterval     time.Duration
	// RequestsPerSecond of zero disables rate limiting.
	RequestsPerSecond float64
	// BreakerFailures consecutive failures open the breaker. Zero disables it.
	BreakerFailures uint32
	BreakerCooldown time.Duration
	Logger          logrus.FieldLogger
}

/*
Resilient retries, rate limits and circuit-breaks calls to another Provider.
*/
type Resilient struct {
	inner   Provider
	cfg     ResilientConfig
	breaker *gobreaker.CircuitBreaker
	limiter *rate.Limiter
}

/*
NewResilient wraps inner.
*/
func NewResilient(inner Provider, cfg ResilientConfig) *Resilient {
	if cfg.Name == "" {
		cfg.Name = "embedding"
	}
	if cfg.InitialInterval <= 0 {
		cfg.InitialInterval = 200 * time.Millisecond
	}
	if cfg.MaxInterval <= 0 {
		cfg.MaxInterval = 2 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}

	r := &Resilient{inner: inner, cfg: cfg}
	if cfg.RequestsPerSecond > 0 {
		r.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	if cfg.BreakerFailures > 0 {
		logger := cfg.Logger
		r.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    cfg.Name,
			Timeout: cfg.BreakerCooldown,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= cfg.BreakerFailures
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				logger.WithFields(logrus.Fields{
					"breaker": name,
					"from":    from.String(),
					"to":      to.String(),
				}).Warn("embedding circuit breaker state changed")
			},
		})
	}
	return r
}

/*
Embed calls the wrapped provider. Every failure is a ProviderError.
*/
func (r *Resilient) Embed(ctx context.Context, text string) ([]float64, error) {
	var vec []float64
	operation := func() error {
		if r.limiter != nil {
			if err := r.limiter.Wait(ctx); err != nil {
				return backoff.Permanent(err)
			}
		}
		v, err := r.call(ctx, text)
		if err != nil {
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) || ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			return err
		}
		vec = v
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.cfg.InitialInterval
	b.MaxInterval = r.cfg.MaxInterval
	b.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(b, r.cfg.MaxRetries), ctx)

	if err := backoff.Retry(operation, policy); err != nil {
		return nil, NewProviderError(r.cfg.Name, err)
	}
	return vec, nil
}

func (r *Resilient) call(ctx context.Context, text string) ([]float64, error) {
	if r.breaker == nil {
		return r.inner.Embed(ctx, text)
	}
	out, err := r.breaker.Execute(func() (interface{}, error) {
		return r.inner.Embed(ctx, text)
	})
	if err != nil {
		return nil, err
	}
	return out.([]float64), nil
}

/*
State reports the breaker state, or closed when no breaker is configured.
*/
func (r *Resilient) State() gobreaker.State {
	if r.breaker == nil {
		return gobreaker.StateClosed
	}
	return r.breaker.State()
}
