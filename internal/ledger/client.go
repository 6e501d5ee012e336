package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"solana-wallet/internal/domain"
	"solana-wallet/internal/observability"
	"solana-wallet/internal/solana"
)

// DefaultAttemptTimeout bounds a single endpoint attempt.
const DefaultAttemptTimeout = 10 * time.Second

// Dialer opens a connection to one endpoint.
type Dialer func(ep domain.Endpoint) solana.RPCClient

// HTTPDialer connects with the JSON-RPC HTTP client, applying the
// endpoint's request throttle.
func HTTPDialer(opts ...solana.ClientOption) Dialer {
	return func(ep domain.Endpoint) solana.RPCClient {
		all := append([]solana.ClientOption{solana.WithRateLimit(ep.RequestsPerSecond, ep.Burst)}, opts...)
		return solana.NewHTTPClient(ep.URL, all...)
	}
}

// Options configures Client.
type Options struct {
	AttemptTimeout time.Duration
	Dial           Dialer
	Logger         *zap.Logger
	Metrics        *observability.Metrics
}

// Client is the resilient ledger client. Connections are opened lazily and
// reused per endpoint.
type Client struct {
	pool    *EndpointPool
	timeout time.Duration
	dial    Dialer
	logger  *zap.Logger
	metrics *observability.Metrics

	mu    sync.Mutex
	conns map[string]solana.RPCClient
}

// NewClient creates a resilient client over pool.
func NewClient(pool *EndpointPool, opts Options) *Client {
	if opts.AttemptTimeout <= 0 {
		opts.AttemptTimeout = DefaultAttemptTimeout
	}
	if opts.Dial == nil {
		opts.Dial = HTTPDialer()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Client{
		pool:    pool,
		timeout: opts.AttemptTimeout,
		dial:    opts.Dial,
		logger:  opts.Logger,
		metrics: opts.Metrics,
		conns:   make(map[string]solana.RPCClient),
	}
}

// Pool returns the endpoint pool.
func (c *Client) Pool() *EndpointPool {
	return c.pool
}

// AttemptTimeout returns the per-attempt timeout.
func (c *Client) AttemptTimeout() time.Duration {
	return c.timeout
}

func (c *Client) conn(ep domain.Endpoint) solana.RPCClient {
	key := string(ep.Network) + "|" + ep.URL
	c.mu.Lock()
	defer c.mu.Unlock()
	if rpc, ok := c.conns[key]; ok {
		return rpc
	}
	rpc := c.dial(ep)
	c.conns[key] = rpc
	return rpc
}

// Operation is a ledger call against one live endpoint connection.
type Operation[T any] func(ctx context.Context, rpc solana.RPCClient) (T, error)

type attemptResult[T any] struct {
	value T
	err   error
}

// Execute runs fn against the network's endpoints in order and returns the
// first success. Each endpoint is tried at most once, bounded by the attempt
// timeout. When all fail the result is an *ExhaustedError carrying the last
// observed error. Cancelling ctx stops iteration immediately.
func Execute[T any](ctx context.Context, c *Client, network domain.Network, op string, fn Operation[T]) (T, error) {
	var zero T
	endpoints := c.pool.EndpointsInOrder(network)

	var lastErr error
	attempts := 0
	for _, ep := range endpoints {
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		attempts++

		start := time.Now()
		value, err := attempt(ctx, c, ep, fn)
		elapsed := time.Since(start)

		if err == nil {
			c.metrics.RecordAttempt(string(network), ep.URL, op, "success", elapsed.Seconds())
			if attempts > 1 {
				c.logger.Info("ledger operation succeeded on fallback",
					zap.String("op", op),
					zap.String("network", string(network)),
					zap.String("endpoint", ep.URL),
					zap.Int("attempt", attempts))
			}
			return value, nil
		}

		// the caller gave up; do not report it as an endpoint failure
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}

		kind := Classify(err)
		c.metrics.RecordAttempt(string(network), ep.URL, op, kind.String(), elapsed.Seconds())
		fields := []zap.Field{
			zap.String("op", op),
			zap.String("network", string(network)),
			zap.String("endpoint", ep.URL),
			zap.String("kind", kind.String()),
			zap.Duration("elapsed", elapsed),
			zap.Error(err),
		}
		if kind.EndpointLevel() {
			c.logger.Debug("endpoint failed, trying next", fields...)
		} else {
			c.logger.Warn("ledger operation failed on endpoint, trying next", fields...)
		}
		lastErr = err
	}

	c.metrics.RecordExhausted(string(network), op)
	return zero, &ExhaustedError{Op: op, Network: network, Attempts: attempts, Last: lastErr}
}

// attempt races fn against the attempt timeout. The attempt context is
// cancelled on return so an abandoned call releases its connection.
func attempt[T any](ctx context.Context, c *Client, ep domain.Endpoint, fn Operation[T]) (T, error) {
	var zero T
	actx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	done := make(chan attemptResult[T], 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- attemptResult[T]{err: fmt.Errorf("%s: panic: %v", ep.URL, r)}
			}
		}()
		v, err := fn(actx, c.conn(ep))
		done <- attemptResult[T]{value: v, err: err}
	}()

	select {
	case res := <-done:
		return res.value, res.err
	case <-actx.Done():
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		return zero, fmt.Errorf("%s: %w after %s", ep.URL, ErrAttemptTimeout, c.timeout)
	}
}

// Do is Execute for operations without a result value.
func Do(ctx context.Context, c *Client, network domain.Network, op string, fn func(ctx context.Context, rpc solana.RPCClient) error) error {
	_, err := Execute(ctx, c, network, op, func(ctx context.Context, rpc solana.RPCClient) (struct{}, error) {
		return struct{}{}, fn(ctx, rpc)
	})
	return err
}
