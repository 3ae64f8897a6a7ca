// Package cache provides Redis-based caching with graceful degradation.
// The bot core treats the cache as optional: when Redis is unavailable,
// operations return errors and callers fall back (order id generation falls
// back to random ids, state snapshots fall back to the database).
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"dex-dip-bot/config"
)

// Key patterns.
const (
	keyDailySequence = "bot:%s:sequence:%s" // instance id, date
	keyStateSnapshot = "bot:%s:state"       // instance id
	keyLastPrice     = "pair:%s:last_price"
)

// Default TTLs.
const (
	SequenceTTL = 48 * time.Hour // outlives any timezone edge around midnight
	SnapshotTTL = 24 * time.Hour
	PriceTTL    = 5 * time.Minute
)

// Service wraps a Redis client with a small circuit breaker. After
// maxFailures consecutive errors the service reports unhealthy and callers
// skip it until a successful ping flips it back.
type Service struct {
	client *redis.Client
	logger zerolog.Logger

	mu           sync.RWMutex
	healthy      bool
	failureCount int

	maxFailures int
}

// New connects to Redis. A failed initial connection returns the service in
// degraded mode rather than an error, so the bots can run cache-less.
func New(cfg config.RedisConfig, logger zerolog.Logger) (*Service, error) {
	if !cfg.Enabled {
		return nil, fmt.Errorf("redis is not enabled in configuration")
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: 2,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	s := &Service{
		client:      client,
		logger:      logger.With().Str("component", "Cache").Logger(),
		maxFailures: 3,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		s.logger.Warn().Err(err).Msg("initial redis connection failed, starting degraded")
		return s, nil
	}

	s.healthy = true
	s.logger.Info().Str("address", cfg.Address).Msg("redis connected")
	return s, nil
}

// IsHealthy reports whether Redis is currently usable.
func (s *Service) IsHealthy() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.healthy
}

func (s *Service) recordFailure() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failureCount++
	if s.failureCount >= s.maxFailures && s.healthy {
		s.logger.Warn().Int("failures", s.failureCount).Msg("redis marked unhealthy")
		s.healthy = false
	}
}

func (s *Service) recordSuccess() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failureCount = 0
	if !s.healthy {
		s.logger.Info().Msg("redis recovered")
	}
	s.healthy = true
}

// IncrementDailySequence atomically increments and returns the per-instance
// daily order sequence. The key expires after SequenceTTL.
func (s *Service) IncrementDailySequence(ctx context.Context, instanceID, dateKey string) (int64, error) {
	key := fmt.Sprintf(keyDailySequence, instanceID, dateKey)

	seq, err := s.client.Incr(ctx, key).Result()
	if err != nil {
		s.recordFailure()
		return 0, fmt.Errorf("failed to increment sequence %s: %w", key, err)
	}
	s.recordSuccess()

	// Set TTL only on first increment.
	if seq == 1 {
		if err := s.client.Expire(ctx, key, SequenceTTL).Err(); err != nil {
			s.logger.Warn().Err(err).Str("key", key).Msg("failed to set sequence ttl")
		}
	}
	return seq, nil
}

// SetStateSnapshot caches a bot's serialized cycle state for fast restarts;
// the database remains the source of truth.
func (s *Service) SetStateSnapshot(ctx context.Context, instanceID string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	key := fmt.Sprintf(keyStateSnapshot, instanceID)
	if err := s.client.Set(ctx, key, data, SnapshotTTL).Err(); err != nil {
		s.recordFailure()
		return fmt.Errorf("failed to cache snapshot %s: %w", key, err)
	}
	s.recordSuccess()
	return nil
}

// GetStateSnapshot loads a cached bot state snapshot into v. Returns
// redis.Nil via the wrapped error when no snapshot exists.
func (s *Service) GetStateSnapshot(ctx context.Context, instanceID string, v interface{}) error {
	key := fmt.Sprintf(keyStateSnapshot, instanceID)

	data, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			s.recordFailure()
		}
		return fmt.Errorf("failed to read snapshot %s: %w", key, err)
	}
	s.recordSuccess()

	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to unmarshal snapshot %s: %w", key, err)
	}
	return nil
}

// SetLastPrice caches the most recent pair price from the stream.
func (s *Service) SetLastPrice(ctx context.Context, pair string, price float64) error {
	key := fmt.Sprintf(keyLastPrice, pair)
	if err := s.client.Set(ctx, key, price, PriceTTL).Err(); err != nil {
		s.recordFailure()
		return fmt.Errorf("failed to cache price %s: %w", key, err)
	}
	s.recordSuccess()
	return nil
}

// GetLastPrice reads the cached pair price.
func (s *Service) GetLastPrice(ctx context.Context, pair string) (float64, error) {
	key := fmt.Sprintf(keyLastPrice, pair)
	price, err := s.client.Get(ctx, key).Float64()
	if err != nil {
		if err != redis.Nil {
			s.recordFailure()
		}
		return 0, fmt.Errorf("failed to read price %s: %w", key, err)
	}
	s.recordSuccess()
	return price, nil
}

// Close releases the Redis connection.
func (s *Service) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}
