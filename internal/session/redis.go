package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/tanatos09/perfectbody/internal/models"

	"github.com/go-redis/redis/v8"
)

// RedisStore implements Store on Redis. Every key is namespaced by session
// id and bounded by the session TTL so abandoned visitors age out on their
// own.
type RedisStore struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisStore connects to Redis and returns a session store.
func NewRedisStore(addr, password string, db int, ttl time.Duration) (*RedisStore, error) {
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

	return &RedisStore{rdb: rdb, ttl: ttl}, nil
}

// Close closes the Redis connection
func (s *RedisStore) Close() error {
	return s.rdb.Close()
}

func cartKey(sessionID string) string     { return fmt.Sprintf("session:%s:cart", sessionID) }
func stagedKey(sessionID string) string   { return fmt.Sprintf("session:%s:cart_order", sessionID) }
func activityKey(sessionID string) string { return fmt.Sprintf("session:%s:cart_last_activity", sessionID) }
func guestKey(sessionID string) string    { return fmt.Sprintf("session:%s:guest_email", sessionID) }
func messagesKey(sessionID string) string { return fmt.Sprintf("session:%s:messages", sessionID) }

func (s *RedisStore) LoadCart(ctx context.Context, sessionID string) (*models.Cart, error) {
	raw, err := s.rdb.Get(ctx, cartKey(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return models.NewCart(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load cart: %w", err)
	}

	var cart models.Cart
	if err := json.Unmarshal(raw, &cart); err != nil {
		return nil, fmt.Errorf("failed to decode cart: %w", err)
	}
	if cart.Entries == nil {
		cart.Entries = make(map[int64]models.CartEntry)
	}
	return &cart, nil
}

func (s *RedisStore) SaveCart(ctx context.Context, sessionID string, cart *models.Cart) error {
	raw, err := json.Marshal(cart)
	if err != nil {
		return fmt.Errorf("failed to encode cart: %w", err)
	}
	return s.rdb.Set(ctx, cartKey(sessionID), raw, s.ttl).Err()
}

func (s *RedisStore) ClearCart(ctx context.Context, sessionID string) error {
	return s.rdb.Del(ctx, cartKey(sessionID), activityKey(sessionID)).Err()
}

func (s *RedisStore) LoadStagedOrder(ctx context.Context, sessionID string) (*models.StagedOrder, error) {
	raw, err := s.rdb.Get(ctx, stagedKey(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load staged order: %w", err)
	}

	var staged models.StagedOrder
	if err := json.Unmarshal(raw, &staged); err != nil {
		return nil, fmt.Errorf("failed to decode staged order: %w", err)
	}
	return &staged, nil
}

func (s *RedisStore) SaveStagedOrder(ctx context.Context, sessionID string, staged *models.StagedOrder) error {
	raw, err := json.Marshal(staged)
	if err != nil {
		return fmt.Errorf("failed to encode staged order: %w", err)
	}
	return s.rdb.Set(ctx, stagedKey(sessionID), raw, s.ttl).Err()
}

func (s *RedisStore) ClearStagedOrder(ctx context.Context, sessionID string) error {
	return s.rdb.Del(ctx, stagedKey(sessionID)).Err()
}

func (s *RedisStore) LastActivity(ctx context.Context, sessionID string) (time.Time, error) {
	raw, err := s.rdb.Get(ctx, activityKey(sessionID)).Result()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}

	stamp, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse activity stamp: %w", err)
	}
	return stamp, nil
}

func (s *RedisStore) TouchActivity(ctx context.Context, sessionID string, now time.Time) error {
	return s.rdb.Set(ctx, activityKey(sessionID), now.Format(time.RFC3339Nano), s.ttl).Err()
}

func (s *RedisStore) GuestEmail(ctx context.Context, sessionID string) (string, error) {
	raw, err := s.rdb.Get(ctx, guestKey(sessionID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return raw, err
}

func (s *RedisStore) SetGuestEmail(ctx context.Context, sessionID, email string) error {
	return s.rdb.Set(ctx, guestKey(sessionID), email, s.ttl).Err()
}

func (s *RedisStore) PushMessage(ctx context.Context, sessionID string, msg models.Message) error {
	raw, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}

	pipe := s.rdb.Pipeline()
	pipe.RPush(ctx, messagesKey(sessionID), raw)
	pipe.Expire(ctx, messagesKey(sessionID), s.ttl)
	_, err = pipe.Exec(ctx)
	return err
}

func (s *RedisStore) PopMessages(ctx context.Context, sessionID string) ([]models.Message, error) {
	pipe := s.rdb.TxPipeline()
	listCmd := pipe.LRange(ctx, messagesKey(sessionID), 0, -1)
	pipe.Del(ctx, messagesKey(sessionID))
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, err
	}

	raws, err := listCmd.Result()
	if err != nil {
		return nil, err
	}

	messages := make([]models.Message, 0, len(raws))
	for _, raw := range raws {
		var msg models.Message
		if err := json.Unmarshal([]byte(raw), &msg); err != nil {
			continue
		}
		messages = append(messages, msg)
	}
	return messages, nil
}
