package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/cenk/backoff"
	circuit "github.com/rubyist/circuitbreaker"

	"github.com/envforge/resolve/internal/core"
)

// BreakerClient wraps a Client with per-host circuit breakers, so a
// registry mirror melting down stops costing each resolution a full
// retry budget.
type BreakerClient struct {
	client   *Client
	breakers map[string]*circuit.Breaker
	mu       sync.RWMutex
}

// NewBreakerClient creates a circuit breaker wrapper for a client.
func NewBreakerClient(c *Client) *BreakerClient {
	return &BreakerClient{
		client:   c,
		breakers: make(map[string]*circuit.Breaker),
	}
}

// getBreaker returns or creates a circuit breaker for the given host.
func (bc *BreakerClient) getBreaker(host string) *circuit.Breaker {
	bc.mu.RLock()
	breaker, exists := bc.breakers[host]
	bc.mu.RUnlock()

	if exists {
		return breaker
	}

	bc.mu.Lock()
	defer bc.mu.Unlock()

	// Double-check after acquiring write lock
	if breaker, exists := bc.breakers[host]; exists {
		return breaker
	}

	// Trips after 5 consecutive failures
	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = 30 * time.Second
	expBackoff.MaxInterval = 5 * time.Minute
	expBackoff.Multiplier = 2.0
	expBackoff.Reset()

	opts := &circuit.Options{
		BackOff:    expBackoff,
		ShouldTrip: circuit.ThresholdTripFunc(5),
	}
	breaker = circuit.NewBreakerWithOptions(opts)

	bc.breakers[host] = breaker
	return breaker
}

// GetJSON wraps the underlying client's GetJSON with circuit breaker
// logic keyed by the request host.
func (bc *BreakerClient) GetJSON(ctx context.Context, fetchURL string, out any) error {
	host := extractHost(fetchURL)
	breaker := bc.getBreaker(host)

	if !breaker.Ready() {
		return fmt.Errorf("circuit breaker open for %s: %w", host, core.ErrUnavailable)
	}

	// A not-found is a domain answer, not an outage; it must not count
	// toward tripping the breaker.
	var domainErr error
	err := breaker.Call(func() error {
		err := bc.client.GetJSON(ctx, fetchURL, out)
		if errors.Is(err, core.ErrNotFound) {
			domainErr = err
			return nil
		}
		return err
	}, 0)
	if err != nil {
		return err
	}
	return domainErr
}

// BreakerState returns the current state of the circuit breakers, for
// health reporting.
func (bc *BreakerClient) BreakerState() map[string]string {
	bc.mu.RLock()
	defer bc.mu.RUnlock()

	states := make(map[string]string)
	for host, breaker := range bc.breakers {
		if breaker.Tripped() {
			states[host] = "open"
		} else {
			states[host] = "closed"
		}
	}
	return states
}

// extractHost extracts the host from a URL for circuit breaker grouping.
func extractHost(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		if len(rawURL) > 50 {
			return rawURL[:50]
		}
		return rawURL
	}
	return parsed.Host
}
