package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/felixgeelhaar/fortify/bulkhead"
	"github.com/felixgeelhaar/fortify/circuitbreaker"
	"github.com/felixgeelhaar/fortify/ratelimit"
	"github.com/felixgeelhaar/fortify/retry"
)

// ErrRateLimited is returned when the local rate limiter rejects a call
var ErrRateLimited = errors.New("rate limit exceeded")

// GuardConfig sizes the protection layers around a provider. A zero value
// for a knob leaves that layer out.
type GuardConfig struct {
	RatePerSecond int           // token refill; burst is three times this
	MaxConcurrent int           // in-flight calls; as many again may queue
	Attempts      int           // total tries for transient failures
	Backoff       time.Duration // first retry delay, doubled each try
	TripAfter     int           // consecutive failures that open the breaker
	CoolDown      time.Duration // how long the breaker stays open

	Logger *slog.Logger
}

// DefaultGuardConfig is what the daemon puts in front of tutor providers
func DefaultGuardConfig() GuardConfig {
	return GuardConfig{
		RatePerSecond: 2,
		MaxConcurrent: 5,
		Attempts:      3,
		Backoff:       2 * time.Second,
		TripAfter:     3,
		CoolDown:      time.Minute,
	}
}

type call func(ctx context.Context) (*Response, error)

// GuardedProvider runs every Generate through a rate limiter, then the
// circuit breaker, retry and bulkhead layers, outermost first.
type GuardedProvider struct {
	inner   Provider
	limiter ratelimit.RateLimiter
	layers  []func(call) call
}

// Guard wraps p with the layers cfg enables
func Guard(p Provider, cfg GuardConfig) *GuardedProvider {
	g := &GuardedProvider{inner: p}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	// layers are applied in order, so the first one sits closest to the provider
	if cfg.MaxConcurrent > 0 {
		bh := bulkhead.New[*Response](bulkhead.Config{
			MaxConcurrent: cfg.MaxConcurrent,
			MaxQueue:      cfg.MaxConcurrent,
			QueueTimeout:  30 * time.Second,
		})
		g.layers = append(g.layers, func(next call) call {
			return func(ctx context.Context) (*Response, error) {
				return bh.Execute(ctx, next)
			}
		})
	}

	if cfg.Attempts > 1 {
		backoff := cfg.Backoff
		if backoff <= 0 {
			backoff = time.Second
		}
		r := retry.New[*Response](retry.Config{
			MaxAttempts:   cfg.Attempts,
			InitialDelay:  backoff,
			MaxDelay:      30 * time.Second,
			Multiplier:    2.0,
			BackoffPolicy: retry.BackoffExponential,
			Jitter:        true,
			IsRetryable:   isTransient,
		})
		g.layers = append(g.layers, func(next call) call {
			return func(ctx context.Context) (*Response, error) {
				return r.Do(ctx, next)
			}
		})
	}

	if cfg.TripAfter > 0 {
		coolDown := cfg.CoolDown
		if coolDown <= 0 {
			coolDown = time.Minute
		}
		cb := circuitbreaker.New[*Response](circuitbreaker.Config{
			MaxRequests: 1,
			Interval:    10 * time.Second,
			Timeout:     coolDown,
			ReadyToTrip: func(counts circuitbreaker.Counts) bool {
				return int(counts.ConsecutiveFailures) >= cfg.TripAfter
			},
			OnStateChange: func(from, to circuitbreaker.State) {
				logger.Warn("tutor provider breaker changed state",
					"provider", p.Name(), "from", from.String(), "to", to.String())
			},
		})
		g.layers = append(g.layers, func(next call) call {
			return func(ctx context.Context) (*Response, error) {
				return cb.Execute(ctx, next)
			}
		})
	}

	if cfg.RatePerSecond > 0 {
		g.limiter = ratelimit.New(&ratelimit.Config{
			Rate:     cfg.RatePerSecond,
			Burst:    cfg.RatePerSecond * 3,
			Interval: time.Second,
		})
	}

	return g
}

// Name returns the wrapped provider's name
func (g *GuardedProvider) Name() string {
	return g.inner.Name()
}

// Generate sends req through the enabled layers
func (g *GuardedProvider) Generate(ctx context.Context, req *Request) (*Response, error) {
	if g.limiter != nil && !g.limiter.Allow(ctx, g.inner.Name()) {
		return nil, fmt.Errorf("%s: %w", g.inner.Name(), ErrRateLimited)
	}

	next := call(func(ctx context.Context) (*Response, error) {
		return g.inner.Generate(ctx, req)
	})
	for _, layer := range g.layers {
		next = layer(next)
	}
	return next(ctx)
}

// Close stops the rate limiter
func (g *GuardedProvider) Close() error {
	if g.limiter != nil {
		return g.limiter.Close()
	}
	return nil
}

// isTransient reports whether a retry could succeed: throttling, gateway
// and overload replies, or a network timeout
func isTransient(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case http.StatusRequestTimeout,
			http.StatusTooManyRequests,
			http.StatusInternalServerError,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout,
			529: // Anthropic "overloaded"
			return true
		}
		return false
	}

	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
