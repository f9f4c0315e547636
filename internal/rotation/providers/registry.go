package providers

import (
	"context"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	dserrors "github.com/CourageToGroww/secret-keeper/internal/errors"
)

// Registry is the tag-indexed map of available providers (spec §4.5:
// "Providers are registered in a tag-indexed map at startup; unknown tags
// produce a fail-fast configuration error").
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
	breakers  map[string]*gobreaker.CircuitBreaker
	limiters  map[string]*rate.Limiter
}

// NewRegistry builds a registry pre-populated with the four spec
// providers. Each gets its own circuit breaker (so a provider whose
// upstream is down trips independently of the others) and its own rate
// limiter (one rotation attempt per second, burst 1 — rotations are rare
// and expensive, never bursty).
func NewRegistry() *Registry {
	r := &Registry{
		providers: make(map[string]Provider),
		breakers:  make(map[string]*gobreaker.CircuitBreaker),
		limiters:  make(map[string]*rate.Limiter),
	}
	for _, p := range []Provider{
		NewCustomProvider(),
		NewOpenAIProvider(),
		NewAWSProvider(),
		NewGitHubProvider(),
	} {
		r.Register(p)
	}
	return r
}

// Register adds (or replaces) a provider under its own tag.
func (r *Registry) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.providers[p.Tag()] = p
	r.breakers[p.Tag()] = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        p.Tag(),
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
	})
	r.limiters[p.Tag()] = rate.NewLimiter(rate.Limit(1), 1)
}

// Get returns the provider registered under tag, or ErrUnknownProvider.
func (r *Registry) Get(tag string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.providers[tag]
	if !ok {
		return nil, dserrors.ErrUnknownProvider
	}
	return p, nil
}

// Rotate dispatches to the named provider's Rotate, behind that
// provider's rate limiter and circuit breaker.
func (r *Registry) Rotate(ctx context.Context, tag string, config Config, currentValue string, resolve SecretResolver) (string, error) {
	p, err := r.Get(tag)
	if err != nil {
		return "", err
	}

	r.mu.RLock()
	limiter := r.limiters[tag]
	breaker := r.breakers[tag]
	r.mu.RUnlock()

	if err := limiter.Wait(ctx); err != nil {
		return "", wrapf(tag, err, "rate limit wait")
	}

	result, err := breaker.Execute(func() (any, error) {
		return p.Rotate(ctx, config, currentValue, resolve)
	})
	if err != nil {
		return "", err
	}
	return result.(string), nil
}

// Tags returns every registered provider tag.
func (r *Registry) Tags() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tags := make([]string, 0, len(r.providers))
	for tag := range r.providers {
		tags = append(tags, tag)
	}
	return tags
}
