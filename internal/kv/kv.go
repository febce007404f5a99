// Package kv maintains the daemon's optional redis presence record.
//
// When a redis URL is configured, the daemon writes a heartbeat key with a
// short TTL on a ticker so operators can see which hosts are serving. The
// check and list paths never touch redis; this connection exists only for
// presence and the status operation.
package kv

import (
	"context"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/semaphore"
)

const (
	defaultNamespace = "weft"

	// DefaultHeartbeatTTL is how long a heartbeat key outlives its last
	// refresh. The interval is a third of it so two missed beats still
	// leave the key alive.
	DefaultHeartbeatTTL = 30 * time.Second

	// DefaultAcquireTimeout bounds how long Status waits for the
	// connection guard before reporting unavailable.
	DefaultAcquireTimeout = time.Second
)

// Option configures a Heartbeat.
type Option func(*Heartbeat)

// WithNamespace sets the key namespace prefix for redis keys.
func WithNamespace(ns string) Option {
	return func(h *Heartbeat) {
		if ns != "" {
			h.namespace = ns
		}
	}
}

// WithTTL sets the heartbeat key TTL.
func WithTTL(ttl time.Duration) Option {
	return func(h *Heartbeat) {
		if ttl > 0 {
			h.ttl = ttl
		}
	}
}

// Heartbeat owns one redis connection and refreshes a per-host presence key.
// The connection is single-flight through a timed guard, same discipline as
// the storage connection.
type Heartbeat struct {
	client    *redis.Client
	guard     *semaphore.Weighted
	namespace string
	host      string
	ttl       time.Duration
	closed    atomic.Bool
	started   atomic.Bool
	stop      chan struct{}
	done      chan struct{}
}

// Connect dials redis and verifies connectivity. redisURL should be a valid
// redis URL (e.g. "redis://localhost:6379/0").
func Connect(redisURL string, opts ...Option) (*Heartbeat, error) {
	redisOpts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}

	h := &Heartbeat{
		client:    redis.NewClient(redisOpts),
		guard:     semaphore.NewWeighted(1),
		namespace: defaultNamespace,
		host:      host,
		ttl:       DefaultHeartbeatTTL,
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.client.Ping(ctx).Err(); err != nil {
		h.client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return h, nil
}

// Key returns the presence key this heartbeat maintains.
func (h *Heartbeat) Key() string {
	return h.namespace + ":daemon:" + h.host
}

// Beat writes the presence key once with the configured TTL.
func (h *Heartbeat) Beat(ctx context.Context) error {
	if h.closed.Load() {
		return fmt.Errorf("heartbeat is closed")
	}
	acquireCtx, cancel := context.WithTimeout(ctx, DefaultAcquireTimeout)
	defer cancel()
	if err := h.guard.Acquire(acquireCtx, 1); err != nil {
		return fmt.Errorf("acquiring redis guard: %w", err)
	}
	defer h.guard.Release(1)

	value := time.Now().UTC().Format(time.RFC3339)
	if err := h.client.Set(ctx, h.Key(), value, h.ttl).Err(); err != nil {
		return fmt.Errorf("writing heartbeat: %w", err)
	}
	return nil
}

// Start launches the refresh loop. It beats immediately, then every ttl/3
// until Close. Refresh failures are logged and retried on the next tick.
func (h *Heartbeat) Start(ctx context.Context) {
	if h.started.Swap(true) {
		return
	}
	go func() {
		defer close(h.done)
		interval := h.ttl / 3
		if interval <= 0 {
			interval = time.Second
		}
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		if err := h.Beat(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "weft: redis heartbeat: %v\n", err)
		}
		for {
			select {
			case <-h.stop:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := h.Beat(ctx); err != nil {
					fmt.Fprintf(os.Stderr, "weft: redis heartbeat: %v\n", err)
				}
			}
		}
	}()
}

// Status reports redis availability for the daemon status operation.
func (h *Heartbeat) Status(ctx context.Context) string {
	if h.closed.Load() {
		return "closed"
	}
	acquireCtx, cancel := context.WithTimeout(ctx, DefaultAcquireTimeout)
	defer cancel()
	if err := h.guard.Acquire(acquireCtx, 1); err != nil {
		return "unavailable: guard timeout"
	}
	defer h.guard.Release(1)

	if err := h.client.Ping(ctx).Err(); err != nil {
		return fmt.Sprintf("unavailable: %v", err)
	}
	return "ok"
}

// Close stops the refresh loop, deletes the presence key, and releases the
// connection. Safe to call once.
func (h *Heartbeat) Close() error {
	if h.closed.Swap(true) {
		return nil
	}
	close(h.stop)
	if h.started.Load() {
		select {
		case <-h.done:
		case <-time.After(2 * time.Second):
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	h.client.Del(ctx, h.Key())
	return h.client.Close()
}
