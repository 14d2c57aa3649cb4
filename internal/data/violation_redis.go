package data

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/wardenlabs/feishu-warden/internal/biz/domain"
	"github.com/wardenlabs/feishu-warden/internal/biz/repo"
)

const violationKeyPrefix = "warden:violation:"

// redisViolationRepo implements the violation ledger on redis
type redisViolationRepo struct {
	client *redis.Client
}

// NewRedisViolationRepo connects to redis and returns a violation repository
func NewRedisViolationRepo(redisURL string) (repo.ViolationRepo, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}

	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &redisViolationRepo{client: client}, nil
}

func violationKey(userID, conversationID string) string {
	return violationKeyPrefix + domain.RecordKey(userID, conversationID)
}

// Get gets a violation record, nil when absent
func (r *redisViolationRepo) Get(ctx context.Context, userID, conversationID string) (*domain.ViolationRecord, error) {
	val, err := r.client.Get(ctx, violationKey(userID, conversationID)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get violation: %w", err)
	}

	var rec domain.ViolationRecord
	if err := json.Unmarshal([]byte(val), &rec); err != nil {
		return nil, fmt.Errorf("failed to decode violation: %w", err)
	}
	return &rec, nil
}

// Save saves a violation record
func (r *redisViolationRepo) Save(ctx context.Context, rec *domain.ViolationRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode violation: %w", err)
	}
	if err := r.client.Set(ctx, violationKey(rec.UserID, rec.ConversationID), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to save violation: %w", err)
	}
	return nil
}

// Delete deletes a violation record
func (r *redisViolationRepo) Delete(ctx context.Context, userID, conversationID string) (bool, error) {
	n, err := r.client.Del(ctx, violationKey(userID, conversationID)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to delete violation: %w", err)
	}
	return n > 0, nil
}

// ListByConversation lists violation records for one conversation
func (r *redisViolationRepo) ListByConversation(ctx context.Context, conversationID string) ([]*domain.ViolationRecord, error) {
	all, err := r.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	var records []*domain.ViolationRecord
	for _, rec := range all {
		if rec.ConversationID == conversationID {
			records = append(records, rec)
		}
	}
	return records, nil
}

// ListAll lists all violation records
func (r *redisViolationRepo) ListAll(ctx context.Context) ([]*domain.ViolationRecord, error) {
	keys, err := r.scanKeys(ctx)
	if err != nil {
		return nil, err
	}

	var records []*domain.ViolationRecord
	for _, key := range keys {
		val, err := r.client.Get(ctx, key).Result()
		if err == redis.Nil {
			// Deleted between scan and read
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to get violation: %w", err)
		}
		var rec domain.ViolationRecord
		if err := json.Unmarshal([]byte(val), &rec); err != nil {
			return nil, fmt.Errorf("failed to decode violation: %w", err)
		}
		records = append(records, &rec)
	}
	return records, nil
}

// DeleteAll deletes all violation records
func (r *redisViolationRepo) DeleteAll(ctx context.Context) (int64, error) {
	keys, err := r.scanKeys(ctx)
	if err != nil {
		return 0, err
	}
	if len(keys) == 0 {
		return 0, nil
	}

	n, err := r.client.Del(ctx, keys...).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to clear violations: %w", err)
	}
	return n, nil
}

func (r *redisViolationRepo) scanKeys(ctx context.Context) ([]string, error) {
	var keys []string
	iter := r.client.Scan(ctx, 0, violationKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan violations: %w", err)
	}
	return keys, nil
}

// Close closes the redis connection
func (r *redisViolationRepo) Close() error {
	return r.client.Close()
}
