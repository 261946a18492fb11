package counters

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/plumehq/plume/internal/cache"
)

// cachePrefix namespaces counter entries away from the post/score/vote
// caches sharing the same backend.
const cachePrefix = "count:"

// incrementAttempts bounds retries of the server-side atomic increment.
const incrementAttempts = 3

// Delta is one scheduled counter adjustment.
type Delta struct {
	Key    Key
	Amount int64
}

// Service is the count cache. Values never expire; a missing key is seeded
// from SQL with a create-if-absent write so a concurrent increment that
// seeded first is never overwritten.
type Service struct {
	cache  cache.Cache
	source Source
}

// NewService creates the count cache over the given backend and canonical
// source.
func NewService(cacheService cache.Cache, source Source) *Service {
	return &Service{cache: cacheService, source: source}
}

// Count returns the counter value, seeding it on miss.
func (s *Service) Count(ctx context.Context, key Key) (int64, error) {
	if err := s.ensureSeeded(ctx, key); err != nil {
		return 0, err
	}

	raw, err := s.cache.Get(ctx, s.cacheKey(key))
	if err != nil {
		return 0, fmt.Errorf("failed to read counter %q: %w", key, err)
	}
	value, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("corrupt counter %q: %w", key, err)
	}
	return value, nil
}

// Apply seeds the key when absent, then applies the delta with a
// server-side atomic increment, retrying transient failures. Decrements
// may transiently drive the value below zero; the next forced seed
// corrects the skew.
func (s *Service) Apply(ctx context.Context, delta Delta) error {
	if err := s.ensureSeeded(ctx, delta.Key); err != nil {
		return err
	}

	var lastErr error
	for attempt := 0; attempt < incrementAttempts; attempt++ {
		if _, err := s.cache.Increment(ctx, s.cacheKey(delta.Key), delta.Amount); err != nil {
			lastErr = err
			continue
		}
		return nil
	}
	return fmt.Errorf("failed to increment counter %q after %d attempts: %w",
		delta.Key, incrementAttempts, lastErr)
}

// Reseed forces the counter back to the canonical SQL count.
func (s *Service) Reseed(ctx context.Context, key Key) (int64, error) {
	count, err := s.source.Count(ctx, key)
	if err != nil {
		return 0, err
	}
	value := []byte(strconv.FormatInt(count, 10))
	if err := s.cache.Set(ctx, s.cacheKey(key), value, 0); err != nil {
		return 0, fmt.Errorf("failed to reseed counter %q: %w", key, err)
	}
	return count, nil
}

// ensureSeeded runs the canonical count and writes it create-if-absent.
// Losing the SetNX race means a concurrent writer seeded first; their value
// plus any increments they applied wins.
func (s *Service) ensureSeeded(ctx context.Context, key Key) error {
	exists, err := s.cache.Exists(ctx, s.cacheKey(key))
	if err != nil && !errors.Is(err, cache.ErrKeyNotFound) {
		return fmt.Errorf("failed to probe counter %q: %w", key, err)
	}
	if exists {
		return nil
	}

	count, err := s.source.Count(ctx, key)
	if err != nil {
		return err
	}

	value := []byte(strconv.FormatInt(count, 10))
	if _, err := s.cache.SetNX(ctx, s.cacheKey(key), value, 0); err != nil {
		return fmt.Errorf("failed to seed counter %q: %w", key, err)
	}
	return nil
}

func (s *Service) cacheKey(key Key) string {
	return cachePrefix + string(key)
}
