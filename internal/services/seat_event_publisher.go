package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/smarttransit/seat-inventory/internal/models"
)

// NewRedisClient creates a Redis client from a redis:// URL and checks it responds
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

// RedisSeatEvents publishes seat events on per-schedule channels and keeps the
// advisory availability cache. A published event invalidates the cached snapshot.
type RedisSeatEvents struct {
	client   redis.UniversalClient
	prefix   string
	cacheTTL time.Duration
}

// NewRedisSeatEvents creates a new RedisSeatEvents
func NewRedisSeatEvents(client redis.UniversalClient, prefix string, cacheTTL time.Duration) *RedisSeatEvents {
	if prefix == "" {
		prefix = "seats:"
	}
	return &RedisSeatEvents{
		client:   client,
		prefix:   prefix,
		cacheTTL: cacheTTL,
	}
}

// Channel returns the pub/sub channel for a schedule, e.g. seats:SCH-1
func (p *RedisSeatEvents) Channel(scheduleID string) string {
	return p.prefix + scheduleID
}

func (p *RedisSeatEvents) cacheKey(scheduleID string) string {
	return p.prefix + "availability:" + scheduleID
}

// PublishSeatEvent drops the cached snapshot and publishes the event
func (p *RedisSeatEvents) PublishSeatEvent(ctx context.Context, event models.SeatAvailabilityEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode seat event: %w", err)
	}

	pipe := p.client.TxPipeline()
	pipe.Del(ctx, p.cacheKey(event.ScheduleID))
	pipe.Publish(ctx, p.Channel(event.ScheduleID), payload)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to publish seat event: %w", err)
	}
	return nil
}

// GetAvailability returns the cached snapshot, if present
func (p *RedisSeatEvents) GetAvailability(ctx context.Context, scheduleID string) (*models.Availability, bool, error) {
	raw, err := p.client.Get(ctx, p.cacheKey(scheduleID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, err
	}

	var availability models.Availability
	if err := json.Unmarshal(raw, &availability); err != nil {
		return nil, false, fmt.Errorf("corrupt availability cache entry: %w", err)
	}
	return &availability, true, nil
}

// SetAvailability stores a snapshot for cacheTTL; a zero TTL disables caching
func (p *RedisSeatEvents) SetAvailability(ctx context.Context, availability *models.Availability) error {
	if p.cacheTTL <= 0 {
		return nil
	}

	payload, err := json.Marshal(availability)
	if err != nil {
		return fmt.Errorf("failed to encode availability: %w", err)
	}
	return p.client.Set(ctx, p.cacheKey(availability.ScheduleID), payload, p.cacheTTL).Err()
}
