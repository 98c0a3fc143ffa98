// Package draftcache provides the client-scoped persistence tiers for
// in-progress article edits: the Local Draft for a (user, article) pair and
// the per-user slot holding the article id locked for the current session.
package draftcache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrNoDraft means no draft exists for the (user, article) pair.
	ErrNoDraft = errors.New("no local draft")
	// ErrCorruptDraft means a draft exists but cannot be decoded. Callers
	// treat it as a cache miss and fall through to the canonical store.
	ErrCorruptDraft = errors.New("corrupt local draft")
)

// Drafts outlive browser restarts; the TTL only bounds truly abandoned
// sessions.
const draftTTL = 14 * 24 * time.Hour

// RedisStore implements draft and slot storage on Redis.
type RedisStore struct {
	client      *redis.Client
	draftPrefix string
	slotPrefix  string
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewRedisStoreWithClient(client), nil
}

// NewRedisStoreWithClient creates a store from an existing Redis client.
func NewRedisStoreWithClient(client *redis.Client) *RedisStore {
	return &RedisStore{
		client:      client,
		draftPrefix: "draft:",
		slotPrefix:  "slot:",
	}
}

func (s *RedisStore) draftKey(userID, articleID string) string {
	return s.draftPrefix + userID + ":" + articleID
}

func (s *RedisStore) slotKey(userID string) string {
	return s.slotPrefix + userID
}

// SaveDraft serializes payload into the draft slot for (user, article).
func (s *RedisStore) SaveDraft(ctx context.Context, userID, articleID string, payload any) error {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal draft: %w", err)
	}
	if err := s.client.Set(ctx, s.draftKey(userID, articleID), jsonData, draftTTL).Err(); err != nil {
		return fmt.Errorf("save draft: %w", err)
	}
	return nil
}

// LoadDraft decodes the draft for (user, article) into target. Returns
// ErrNoDraft when absent and ErrCorruptDraft when present but undecodable.
func (s *RedisStore) LoadDraft(ctx context.Context, userID, articleID string, target any) error {
	jsonData, err := s.client.Get(ctx, s.draftKey(userID, articleID)).Result()
	if err == redis.Nil {
		return ErrNoDraft
	}
	if err != nil {
		return fmt.Errorf("load draft: %w", err)
	}
	if err := json.Unmarshal([]byte(jsonData), target); err != nil {
		return fmt.Errorf("%w: %v", ErrCorruptDraft, err)
	}
	return nil
}

// DeleteDraft removes the draft for (user, article). Deleting a missing
// draft is not an error.
func (s *RedisStore) DeleteDraft(ctx context.Context, userID, articleID string) error {
	if err := s.client.Del(ctx, s.draftKey(userID, articleID)).Err(); err != nil {
		return fmt.Errorf("delete draft: %w", err)
	}
	return nil
}

// HasDraft reports whether a draft exists for (user, article).
func (s *RedisStore) HasDraft(ctx context.Context, userID, articleID string) (bool, error) {
	count, err := s.client.Exists(ctx, s.draftKey(userID, articleID)).Result()
	if err != nil {
		return false, fmt.Errorf("check draft: %w", err)
	}
	return count > 0, nil
}

// GetArticleSlot returns the article id locked for the user's current
// session, or "" when the slot is empty.
func (s *RedisStore) GetArticleSlot(ctx context.Context, userID string) (string, error) {
	value, err := s.client.Get(ctx, s.slotKey(userID)).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get article slot: %w", err)
	}
	return value, nil
}

// SetArticleSlot locks an article id into the user's slot.
func (s *RedisStore) SetArticleSlot(ctx context.Context, userID, articleID string) error {
	if err := s.client.Set(ctx, s.slotKey(userID), articleID, draftTTL).Err(); err != nil {
		return fmt.Errorf("set article slot: %w", err)
	}
	return nil
}

// ClearArticleSlot releases the user's slot.
func (s *RedisStore) ClearArticleSlot(ctx context.Context, userID string) error {
	if err := s.client.Del(ctx, s.slotKey(userID)).Err(); err != nil {
		return fmt.Errorf("clear article slot: %w", err)
	}
	return nil
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping checks if Redis is reachable.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
