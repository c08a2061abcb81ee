package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"FinNewsAgent/internal/domain"
	"FinNewsAgent/internal/ports"
)

// RedisSeenStore keeps identities in a single hash: field = identity,
// value = JSON {symbol, first_seen}.
type RedisSeenStore struct {
	client *redis.Client
	key    string
}

var _ ports.SeenStore = (*RedisSeenStore)(nil)

type redisSeenValue struct {
	Symbol    string    `json:"symbol"`
	FirstSeen time.Time `json:"first_seen"`
}

// OpenRedisSeenStore parses url (redis://...) and verifies connectivity.
func OpenRedisSeenStore(ctx context.Context, url, key string) (*RedisSeenStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return NewRedisSeenStore(client, key), nil
}

// NewRedisSeenStore wraps an existing client.
func NewRedisSeenStore(client *redis.Client, key string) *RedisSeenStore {
	if key == "" {
		key = "finnews:seen"
	}
	return &RedisSeenStore{client: client, key: key}
}

// LoadSeen reads the whole hash.
func (r *RedisSeenStore) LoadSeen(ctx context.Context) ([]domain.DedupRecord, error) {
	values, err := r.client.HGetAll(ctx, r.key).Result()
	if err != nil {
		return nil, fmt.Errorf("hgetall %s: %w", r.key, err)
	}
	out := make([]domain.DedupRecord, 0, len(values))
	for identity, raw := range values {
		var v redisSeenValue
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			continue
		}
		out = append(out, domain.DedupRecord{
			Identity:  identity,
			Symbol:    domain.Symbol(v.Symbol),
			FirstSeen: v.FirstSeen,
		})
	}
	return out, nil
}

// MarkSeen sets the field only when absent.
func (r *RedisSeenStore) MarkSeen(ctx context.Context, rec domain.DedupRecord) error {
	raw, err := json.Marshal(redisSeenValue{Symbol: rec.Symbol.String(), FirstSeen: rec.FirstSeen.UTC()})
	if err != nil {
		return fmt.Errorf("encode seen: %w", err)
	}
	if err := r.client.HSetNX(ctx, r.key, rec.Identity, raw).Err(); err != nil {
		return fmt.Errorf("hsetnx %s: %w", rec.Identity, err)
	}
	return nil
}

// PruneSeen removes fields first seen before the cutoff.
func (r *RedisSeenStore) PruneSeen(ctx context.Context, before time.Time) (int, error) {
	records, err := r.LoadSeen(ctx)
	if err != nil {
		return 0, err
	}
	var stale []string
	for _, rec := range records {
		if rec.FirstSeen.Before(before) {
			stale = append(stale, rec.Identity)
		}
	}
	if len(stale) == 0 {
		return 0, nil
	}
	n, err := r.client.HDel(ctx, r.key, stale...).Result()
	if err != nil {
		return 0, fmt.Errorf("hdel: %w", err)
	}
	return int(n), nil
}

// Close closes the client.
func (r *RedisSeenStore) Close() error {
	return r.client.Close()
}
