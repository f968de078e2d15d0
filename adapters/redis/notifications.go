package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"learnsync/core"
	"learnsync/engine"

	"github.com/redis/go-redis/v9"
)

// Config holds Redis connection configuration
type Config struct {
	Addr         string
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultConfig returns sensible defaults for Redis configuration
func DefaultConfig() Config {
	return Config{
		Addr:         "localhost:6379",
		Password:     "",
		DB:           0,
		PoolSize:     10,
		MinIdleConns: 2,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
}

// NotificationStore implements engine.NotificationStore on Redis.
// Data structure:
// - notification:{id} -> JSON blob of the notification
// - user:{user_id}:pending -> sorted set of notification ids, scored by created-at
type NotificationStore struct {
	client *redis.Client
}

// New creates a Redis-backed notification store with the provided configuration
func New(config Config) (*NotificationStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         config.Addr,
		Password:     config.Password,
		DB:           config.DB,
		PoolSize:     config.PoolSize,
		MinIdleConns: config.MinIdleConns,
		DialTimeout:  config.DialTimeout,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &NotificationStore{client: client}, nil
}

// NewWithClient creates a NotificationStore using an existing Redis client (useful for testing)
func NewWithClient(client *redis.Client) *NotificationStore {
	return &NotificationStore{client: client}
}

// Close closes the Redis connection
func (s *NotificationStore) Close() error {
	return s.client.Close()
}

func notificationKey(id string) string {
	return fmt.Sprintf("notification:%s", id)
}

func pendingKey(userID core.UserID) string {
	return fmt.Sprintf("user:%s:pending", userID)
}

// Lua script for atomic create: store the blob and index it in the user's
// pending set in one step, so a crash never leaves a dangling index entry.
var createScript = redis.NewScript(`
	redis.call('SET', KEYS[1], ARGV[1])
	redis.call('ZADD', KEYS[2], ARGV[2], ARGV[3])
	return 1
`)

// CreateNotification persists a notification and indexes it as pending.
func (s *NotificationStore) CreateNotification(ctx context.Context, n core.Notification) error {
	if n.ID == "" {
		return errors.New("notification requires an id")
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	data, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to encode notification: %w", err)
	}

	keys := []string{notificationKey(n.ID), pendingKey(n.UserID)}
	score := float64(n.CreatedAt.UnixNano())
	if err := createScript.Run(ctx, s.client, keys, data, score, n.ID).Err(); err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}
	return nil
}

// PendingNotifications returns the user's unread notifications, oldest first.
// Index entries whose blob has expired or gone missing are skipped.
func (s *NotificationStore) PendingNotifications(ctx context.Context, userID core.UserID) ([]core.Notification, error) {
	ids, err := s.client.ZRange(ctx, pendingKey(userID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read pending index: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = notificationKey(id)
	}
	blobs, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read notifications: %w", err)
	}

	out := make([]core.Notification, 0, len(blobs))
	for _, blob := range blobs {
		raw, ok := blob.(string)
		if !ok {
			continue
		}
		var n core.Notification
		if err := json.Unmarshal([]byte(raw), &n); err != nil {
			continue
		}
		if n.IsRead {
			continue
		}
		out = append(out, n)
	}
	return out, nil
}

// Lua script for atomic read-acknowledgement: rewrite the blob and drop the
// pending index entry together.
var markReadScript = redis.NewScript(`
	if redis.call('EXISTS', KEYS[1]) == 1 then
		redis.call('SET', KEYS[1], ARGV[1])
	end
	redis.call('ZREM', KEYS[2], ARGV[2])
	return 1
`)

// MarkRead flags a notification as read and removes it from the pending index.
// Unknown ids are a no-op so repeated acknowledgements stay idempotent.
func (s *NotificationStore) MarkRead(ctx context.Context, userID core.UserID, id string) error {
	raw, err := s.client.Get(ctx, notificationKey(id)).Bytes()
	if err == redis.Nil {
		return s.client.ZRem(ctx, pendingKey(userID), id).Err()
	}
	if err != nil {
		return fmt.Errorf("failed to read notification: %w", err)
	}

	var n core.Notification
	if err := json.Unmarshal(raw, &n); err != nil {
		return fmt.Errorf("failed to decode notification: %w", err)
	}
	n.IsRead = true
	data, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to encode notification: %w", err)
	}

	keys := []string{notificationKey(id), pendingKey(userID)}
	if err := markReadScript.Run(ctx, s.client, keys, data, id).Err(); err != nil {
		return fmt.Errorf("failed to mark notification read: %w", err)
	}
	return nil
}

var _ engine.NotificationStore = (*NotificationStore)(nil)
