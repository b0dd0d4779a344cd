// Package redis implements db.KVStore on Redis or Valkey via rueidis.
package redis

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/redis/rueidis"

	"github.com/kailas-cloud/lexdex/internal/db"
)

var (
	_ db.KVStore = (*Store)(nil)
	_ db.Pinger  = (*Store)(nil)
)

// Config holds connection parameters for a Redis store. Zero timeouts use
// the defaults below.
type Config struct {
	Addrs        []string
	Username     string
	Password     string
	DB           int
	DialTimeout  time.Duration
	WriteTimeout time.Duration
}

const (
	defaultDialTimeout  = 3 * time.Second
	defaultWriteTimeout = 2 * time.Second
)

// Store implements db.KVStore via rueidis.
type Store struct {
	client rueidis.Client
}

// NewStore creates a Redis store via rueidis.
func NewStore(cfg Config) (*Store, error) {
	if len(cfg.Addrs) == 0 {
		return nil, fmt.Errorf("addrs is required")
	}

	client, err := rueidis.NewClient(clientOption(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}

	return &Store{client: client}, nil
}

// clientOption maps Config onto rueidis. Client-side caching stays off: the
// embedding cache keeps its own L1 in front of the store.
func clientOption(cfg Config) rueidis.ClientOption {
	dial := cfg.DialTimeout
	if dial <= 0 {
		dial = defaultDialTimeout
	}
	write := cfg.WriteTimeout
	if write <= 0 {
		write = defaultWriteTimeout
	}
	return rueidis.ClientOption{
		InitAddress:      cfg.Addrs,
		Username:         cfg.Username,
		Password:         cfg.Password,
		SelectDB:         cfg.DB,
		ClientName:       "lexdex-embcache",
		DisableCache:     true,
		Dialer:           net.Dialer{Timeout: dial},
		ConnWriteTimeout: write,
	}
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	cmd := s.b().Ping().Build()
	if err := s.do(ctx, cmd).Error(); err != nil {
		return &db.Error{Op: db.OpPing, Err: err}
	}
	return nil
}

// Close shuts down the client.
func (s *Store) Close() {
	s.client.Close()
}

// WaitForReady retries Ping with backoff until the store answers or timeout
// expires.
func (s *Store) WaitForReady(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err := retry.Do(
		func() error { return s.Ping(ctx) },
		retry.Context(ctx),
		retry.Attempts(0),
		retry.Delay(50*time.Millisecond),
		retry.MaxDelay(time.Second),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return fmt.Errorf("timeout waiting for redis: %w", err)
	}
	return nil
}

func (s *Store) do(ctx context.Context, cmd rueidis.Completed) rueidis.RedisResult {
	return s.client.Do(ctx, cmd)
}

func (s *Store) b() rueidis.Builder {
	return s.client.B()
}
