package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"marstek-ble-bridge/pkg/logger"
)

// Client is the subset of the redis client used here
type Client interface {
	Ping(ctx context.Context) *redis.StatusCmd
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
	LPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	LTrim(ctx context.Context, key string, start, stop int64) *redis.StatusCmd
	LRange(ctx context.Context, key string, start, stop int64) *redis.StringSliceCmd
	Close() error
}

// Options configures a RedisHistory
type Options struct {
	Addr     string
	Password string
	DB       int
	DeviceID string
	Channel  string
	Length   int
}

// Entry is one stored state document
type Entry struct {
	Device    string         `json:"device"`
	Timestamp time.Time      `json:"timestamp"`
	State     map[string]any `json:"state"`
}

// RedisHistory publishes state documents on a channel and keeps the most
// recent ones in a capped list
type RedisHistory struct {
	client  Client
	device  string
	channel string
	listKey string
	length  int64
}

// NewRedisHistory connects to redis and verifies the connection
func NewRedisHistory(ctx context.Context, opts Options) (*RedisHistory, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("error connecting to redis at %s: %w", opts.Addr, err)
	}
	logger.LogInfo("✅ Redis connected at %s (channel %s)", opts.Addr, opts.Channel)
	return NewRedisHistoryWithClient(client, opts), nil
}

// NewRedisHistoryWithClient wraps an existing client
func NewRedisHistoryWithClient(client Client, opts Options) *RedisHistory {
	length := opts.Length
	if length <= 0 {
		length = 1000
	}
	return &RedisHistory{
		client:  client,
		device:  opts.DeviceID,
		channel: opts.Channel,
		listKey: fmt.Sprintf("marstek:%s:history", opts.DeviceID),
		length:  int64(length),
	}
}

// ListKey returns the key of the history list
func (h *RedisHistory) ListKey() string {
	return h.listKey
}

// Store publishes doc and appends it to the history list
func (h *RedisHistory) Store(ctx context.Context, ts time.Time, doc map[string]any) error {
	data, err := json.Marshal(Entry{Device: h.device, Timestamp: ts.UTC(), State: doc})
	if err != nil {
		return fmt.Errorf("error serializing state: %w", err)
	}

	if err := h.client.Publish(ctx, h.channel, data).Err(); err != nil {
		return fmt.Errorf("error publishing to %s: %w", h.channel, err)
	}

	// The list is a best-effort backlog
	if err := h.client.LPush(ctx, h.listKey, data).Err(); err != nil {
		logger.LogWarn("⚠️ Error saving state to %s: %v", h.listKey, err)
		return nil
	}
	if err := h.client.LTrim(ctx, h.listKey, 0, h.length-1).Err(); err != nil {
		logger.LogWarn("⚠️ Error trimming %s: %v", h.listKey, err)
	}
	return nil
}

// Recent returns up to n stored entries, newest first
func (h *RedisHistory) Recent(ctx context.Context, n int) ([]Entry, error) {
	if n <= 0 {
		return nil, nil
	}
	raw, err := h.client.LRange(ctx, h.listKey, 0, int64(n-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("error reading %s: %w", h.listKey, err)
	}
	out := make([]Entry, 0, len(raw))
	for _, item := range raw {
		var e Entry
		if err := json.Unmarshal([]byte(item), &e); err != nil {
			logger.LogDebug("Skipping malformed history entry: %v", err)
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

// Close closes the redis connection
func (h *RedisHistory) Close() error {
	return h.client.Close()
}
