package alerting

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// CooldownStore tracks when rules last fired. The in-rule LastTriggered
// field is the local source of truth; a store lets suppression hold across
// engine instances. Store errors degrade to local-only suppression.
type CooldownStore interface {
	// LastTriggered returns the last firing time for a rule, if known.
	LastTriggered(ctx context.Context, ruleID string) (time.Time, bool, error)
	// MarkTriggered records a firing. ttl bounds how long the record must
	// be retained; zero means the store may keep it indefinitely.
	MarkTriggered(ctx context.Context, ruleID string, at time.Time, ttl time.Duration) error
}

// MemoryCooldownStore is the default in-process cooldown store.
type MemoryCooldownStore struct {
	mu    sync.RWMutex
	fired map[string]time.Time
}

// NewMemoryCooldownStore creates an empty in-memory cooldown store.
func NewMemoryCooldownStore() *MemoryCooldownStore {
	return &MemoryCooldownStore{fired: make(map[string]time.Time)}
}

// LastTriggered returns the recorded firing time for a rule.
func (s *MemoryCooldownStore) LastTriggered(ctx context.Context, ruleID string) (time.Time, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.fired[ruleID]
	return t, ok, nil
}

// MarkTriggered records a firing time for a rule.
func (s *MemoryCooldownStore) MarkTriggered(ctx context.Context, ruleID string, at time.Time, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fired[ruleID] = at
	return nil
}

// RedisConfig holds Redis cooldown store settings.
type RedisConfig struct {
	Addr         string        `yaml:"addr"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	KeyPrefix    string        `yaml:"key_prefix"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	TLSEnabled   bool          `yaml:"tls_enabled"`
}

// DefaultRedisConfig returns default Redis cooldown store settings.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:         "localhost:6379",
		KeyPrefix:    "sentinel:cooldown:",
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
}

// RedisCooldownStore shares rule cooldown state across engine instances.
type RedisCooldownStore struct {
	client *redis.Client
	prefix string
}

// NewRedisCooldownStore creates a Redis-backed cooldown store and verifies
// connectivity.
func NewRedisCooldownStore(cfg RedisConfig) (*RedisCooldownStore, error) {
	opts := &redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	if cfg.TLSEnabled {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisCooldownStore{client: client, prefix: cfg.KeyPrefix}, nil
}

// LastTriggered returns the shared firing time for a rule.
func (s *RedisCooldownStore) LastTriggered(ctx context.Context, ruleID string) (time.Time, bool, error) {
	val, err := s.client.Get(ctx, s.prefix+ruleID).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, err
	}

	t, err := time.Parse(time.RFC3339Nano, val)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("malformed cooldown record for %s: %w", ruleID, err)
	}
	return t, true, nil
}

// MarkTriggered records a firing with a TTL covering the cooldown window.
func (s *RedisCooldownStore) MarkTriggered(ctx context.Context, ruleID string, at time.Time, ttl time.Duration) error {
	return s.client.Set(ctx, s.prefix+ruleID, at.Format(time.RFC3339Nano), ttl).Err()
}

// Close releases the Redis connection.
func (s *RedisCooldownStore) Close() error {
	return s.client.Close()
}
