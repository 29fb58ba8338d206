package store

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Options configures a connection Pool.
type Options struct {
	// URL is the Redis connection string (e.g., "redis://localhost:6379").
	URL string

	// TLS configuration for secure connections.
	TLS *tls.Config

	// ConnectTimeout is the maximum time to wait for connection establishment.
	ConnectTimeout time.Duration

	// ReadTimeout is the maximum time to wait for read operations.
	ReadTimeout time.Duration

	// WriteTimeout is the maximum time to wait for write operations.
	WriteTimeout time.Duration

	// DialAttempts is the number of connection attempts before giving up.
	// Attempts are spaced with exponential backoff starting at DialBackoff.
	DialAttempts int

	// DialBackoff is the initial delay between connection attempts.
	DialBackoff time.Duration

	// Logger records connection lifecycle events. Defaults to slog.Default().
	Logger *slog.Logger
}

func (o *Options) withDefaults() Options {
	opts := *o
	if opts.URL == "" {
		opts.URL = "redis://localhost:6379"
	}
	if opts.ConnectTimeout == 0 {
		opts.ConnectTimeout = 5 * time.Second
	}
	if opts.ReadTimeout == 0 {
		opts.ReadTimeout = 30 * time.Second
	}
	if opts.WriteTimeout == 0 {
		opts.WriteTimeout = 5 * time.Second
	}
	if opts.DialAttempts <= 0 {
		opts.DialAttempts = 3
	}
	if opts.DialBackoff <= 0 {
		opts.DialBackoff = 250 * time.Millisecond
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return opts
}

// Pool holds one Redis client per target URL, lazily created. It replaces
// the usual module-level client registry: components receive the pool as a
// constructor argument, so there is no hidden global state.
type Pool struct {
	opts Options

	mu      sync.Mutex
	clients map[string]*redis.Client
}

// NewPool creates a pool and eagerly dials the primary URL so that
// misconfiguration surfaces at startup rather than on first use.
func NewPool(opts Options) (*Pool, error) {
	p := &Pool{
		opts:    opts.withDefaults(),
		clients: make(map[string]*redis.Client),
	}

	if _, err := p.Get(p.opts.URL); err != nil {
		return nil, err
	}
	return p, nil
}

// Get returns the client for the given URL, dialing it on first use.
// An empty URL resolves to the pool's primary URL.
func (p *Pool) Get(url string) (*redis.Client, error) {
	if url == "" {
		url = p.opts.URL
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if c, ok := p.clients[url]; ok {
		return c, nil
	}

	c, err := p.dial(url)
	if err != nil {
		return nil, err
	}
	p.clients[url] = c
	return c, nil
}

// Client returns the client for the pool's primary URL.
func (p *Pool) Client() *redis.Client {
	c, _ := p.Get(p.opts.URL)
	return c
}

// dial parses the URL, connects, and verifies the connection with a PING.
// Failed attempts are retried with exponential backoff up to DialAttempts.
func (p *Pool) dial(url string) (*redis.Client, error) {
	redisOpts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	redisOpts.TLSConfig = p.opts.TLS
	redisOpts.DialTimeout = p.opts.ConnectTimeout
	redisOpts.ReadTimeout = p.opts.ReadTimeout
	redisOpts.WriteTimeout = p.opts.WriteTimeout

	backoff := p.opts.DialBackoff
	var lastErr error
	for attempt := 1; attempt <= p.opts.DialAttempts; attempt++ {
		client := redis.NewClient(redisOpts)

		ctx, cancel := context.WithTimeout(context.Background(), p.opts.ConnectTimeout)
		err := client.Ping(ctx).Err()
		cancel()

		if err == nil {
			return client, nil
		}

		_ = client.Close()
		lastErr = err
		p.opts.Logger.Warn("redis connection failed",
			"url", url,
			"attempt", attempt,
			"error", err)

		if attempt < p.opts.DialAttempts {
			time.Sleep(backoff)
			backoff *= 2
		}
	}

	return nil, fmt.Errorf("%w: %s: %v", ErrUnavailable, url, lastErr)
}

// Ping verifies the primary connection is alive.
func (p *Pool) Ping(ctx context.Context) error {
	c, err := p.Get("")
	if err != nil {
		return err
	}
	if err := c.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Close closes every client held by the pool.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var firstErr error
	for url, c := range p.clients {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(p.clients, url)
	}
	return firstErr
}
