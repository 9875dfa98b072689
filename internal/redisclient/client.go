package redisclient

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"pcstore-service/internal/catalog"

	"github.com/go-redis/redis/v8"
)

//go:embed scripts/next_sequence.lua
var nextSequenceScript string

//go:embed scripts/advance_sequence.lua
var advanceSequenceScript string

const (
	catalogKey = "catalog:snapshot"

	// Sequences are keyed per day; two days covers clock skew around midnight.
	sequenceTTL = 48 * time.Hour
)

type Client struct {
	rdb            *redis.Client
	sequenceScript *redis.Script
	advanceScript  *redis.Script
}

// NewClient creates a new Redis client with Lua scripts loaded
func NewClient(addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return NewClientFromRedis(rdb), nil
}

// NewClientFromRedis wraps an existing connection
func NewClientFromRedis(rdb *redis.Client) *Client {
	return &Client{
		rdb:            rdb,
		sequenceScript: redis.NewScript(nextSequenceScript),
		advanceScript:  redis.NewScript(advanceSequenceScript),
	}
}

// GetClient returns the underlying Redis client
func (c *Client) GetClient() *redis.Client {
	return c.rdb
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping checks the connection
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Next atomically increments the sequence stored under key and returns the
// new value. The key expires two days after its first use.
func (c *Client) Next(ctx context.Context, key string) (int64, error) {
	result, err := c.sequenceScript.Run(ctx, c.rdb,
		[]string{"protocol:" + key}, int(sequenceTTL.Seconds())).Result()
	if err != nil {
		return 0, fmt.Errorf("sequence script failed: %w", err)
	}

	n, ok := result.(int64)
	if !ok {
		return 0, fmt.Errorf("unexpected script result type %T", result)
	}
	return n, nil
}

// AdvanceTo raises the sequence under key to at least n, so the next call
// to Next returns a value above n.
func (c *Client) AdvanceTo(ctx context.Context, key string, n int64) error {
	err := c.advanceScript.Run(ctx, c.rdb,
		[]string{"protocol:" + key}, n, int(sequenceTTL.Seconds())).Err()
	if err != nil {
		return fmt.Errorf("advance script failed: %w", err)
	}
	return nil
}

// SetJSON stores value as JSON under key
func (c *Client) SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, key, data, ttl).Err()
}

// GetJSON decodes the JSON stored under key into dest. found is false when
// the key does not exist.
func (c *Client) GetJSON(ctx context.Context, key string, dest interface{}) (bool, error) {
	data, err := c.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return false, fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return true, nil
}

// GetCatalog reads the cached catalog snapshot
func (c *Client) GetCatalog(ctx context.Context, dest *catalog.Data) (bool, error) {
	return c.GetJSON(ctx, catalogKey, dest)
}

// SetCatalog caches a catalog snapshot
func (c *Client) SetCatalog(ctx context.Context, data *catalog.Data, ttl time.Duration) error {
	return c.SetJSON(ctx, catalogKey, data, ttl)
}

// DeleteCatalog drops the cached catalog snapshot
func (c *Client) DeleteCatalog(ctx context.Context) error {
	return c.rdb.Del(ctx, catalogKey).Err()
}
