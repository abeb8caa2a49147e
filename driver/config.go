package driver

import (
	"time"

	"github.com/basinlabs/mongocore/connection"
	"github.com/basinlabs/mongocore/supervisor"
)

// Config collects every tunable named in the external interface. Build one
// with NewConfig and zero or more Option values.
type Config struct {
	MaxConnectionsPerEndpoint int
	MaxFrameBytes             int32
	ConnectTimeout            time.Duration
	RequestTimeout            time.Duration
	ShutdownTimeout           time.Duration
	ReconnectBase             time.Duration
	ReconnectCap              time.Duration
	ReconnectJitter           float64
	CursorBatchSize           int32
}

// Option mutates a Config under construction. An Option that fails
// validation returns an error, which NewConfig propagates to its caller.
type Option func(*Config) error

// NewConfig applies opts over the documented defaults and returns the
// result, or the first validation error encountered.
func NewConfig(opts ...Option) (Config, error) {
	cfg := Config{
		MaxConnectionsPerEndpoint: 10,
		MaxFrameBytes:             48 * 1024 * 1024,
		ConnectTimeout:            5 * time.Second,
		RequestTimeout:            30 * time.Second,
		ShutdownTimeout:           5 * time.Second,
		ReconnectBase:             100 * time.Millisecond,
		ReconnectCap:              30 * time.Second,
		ReconnectJitter:           0.2,
		CursorBatchSize:           0,
	}
	for _, opt := range opts {
		if err := opt(&cfg); err != nil {
			return Config{}, err
		}
	}
	return cfg, nil
}

// WithMaxConnectionsPerEndpoint overrides max_connections_per_endpoint.
func WithMaxConnectionsPerEndpoint(fn func(int) int) Option {
	return func(c *Config) error {
		c.MaxConnectionsPerEndpoint = fn(c.MaxConnectionsPerEndpoint)
		return nil
	}
}

// WithMaxFrameBytes overrides max_frame_bytes.
func WithMaxFrameBytes(fn func(int32) int32) Option {
	return func(c *Config) error {
		c.MaxFrameBytes = fn(c.MaxFrameBytes)
		return nil
	}
}

// WithConnectTimeout overrides connect_timeout_ms.
func WithConnectTimeout(fn func(time.Duration) time.Duration) Option {
	return func(c *Config) error {
		c.ConnectTimeout = fn(c.ConnectTimeout)
		return nil
	}
}

// WithRequestTimeout overrides request_timeout_ms.
func WithRequestTimeout(fn func(time.Duration) time.Duration) Option {
	return func(c *Config) error {
		c.RequestTimeout = fn(c.RequestTimeout)
		return nil
	}
}

// WithShutdownTimeout overrides shutdown_timeout_ms.
func WithShutdownTimeout(fn func(time.Duration) time.Duration) Option {
	return func(c *Config) error {
		c.ShutdownTimeout = fn(c.ShutdownTimeout)
		return nil
	}
}

// WithReconnectBackoff overrides reconnect_base_ms, reconnect_cap_ms and
// reconnect_jitter together.
func WithReconnectBackoff(base, maxDelay time.Duration, jitter float64) Option {
	return func(c *Config) error {
		c.ReconnectBase = base
		c.ReconnectCap = maxDelay
		c.ReconnectJitter = jitter
		return nil
	}
}

// WithCursorBatchSize overrides cursor_batch_size.
func WithCursorBatchSize(fn func(int32) int32) Option {
	return func(c *Config) error {
		c.CursorBatchSize = fn(c.CursorBatchSize)
		return nil
	}
}

func (c Config) connectionConfig() connection.Config {
	return connection.Config{
		MaxFrameBytes:        c.MaxFrameBytes,
		SubmissionQueueDepth: 64,
		DrainGrace:           c.ShutdownTimeout,
	}
}

func (c Config) supervisorConfig() supervisor.Config {
	return supervisor.Config{
		MaxConnections:         c.MaxConnectionsPerEndpoint,
		MaxConsecutiveFailures: 5,
		ConnectTimeout:         c.ConnectTimeout,
		ShutdownTimeout:        c.ShutdownTimeout,
		ReconnectBase:          c.ReconnectBase,
		ReconnectCap:           c.ReconnectCap,
		ReconnectJitter:        c.ReconnectJitter,
		Connection:             c.connectionConfig(),
	}
}
