// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/taibuivan/yomira-auth/internal/platform/constants"
)

// # Login Attempt Repository

// RedisLoginAttemptRepository implements [LoginAttemptRepository] using Redis.
//
// Keys are the email blind index under [constants.RedisPrefixLoginAttempts],
// so no plaintext email ever reaches the cache.
type RedisLoginAttemptRepository struct {
	client redis.UniversalClient
}

// NewLoginAttemptRepository creates a new Redis-backed LoginAttemptRepository.
func NewLoginAttemptRepository(client redis.UniversalClient) *RedisLoginAttemptRepository {
	return &RedisLoginAttemptRepository{client: client}
}

func loginAttemptKey(emailKey string) string {
	return constants.RedisPrefixLoginAttempts + emailKey
}

/*
Count returns the failures in the current window.

Parameters:
  - context: context.Context
  - emailKey: string

Returns:
  - int: 0 when no window is open
  - error: Connectivity errors
*/
func (repository *RedisLoginAttemptRepository) Count(context context.Context, emailKey string) (int, error) {

	value, err := repository.client.Get(context, loginAttemptKey(emailKey)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("redis_login_attempt_count_failed: %w", err)
	}

	count, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("redis_login_attempt_count_failed: %w", err)
	}

	return count, nil
}

/*
Increment records one failure.

Description: The window starts at the first failure; later failures do not
extend it, so a locked-out email unlocks one window after its first failure.

Parameters:
  - context: context.Context
  - emailKey: string
  - window: time.Duration

Returns:
  - int: Failures in the window including this one
  - error: Execution errors
*/
func (repository *RedisLoginAttemptRepository) Increment(context context.Context, emailKey string, window time.Duration) (int, error) {
	key := loginAttemptKey(emailKey)

	// INCR and EXPIRE NX commit together so no counter outlives its window
	var incr *redis.IntCmd
	_, err := repository.client.TxPipelined(context, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(context, key)
		pipe.ExpireNX(context, key, window)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("redis_login_attempt_increment_failed: %w", err)
	}

	return int(incr.Val()), nil
}

// Reset deletes the counter.
func (repository *RedisLoginAttemptRepository) Reset(context context.Context, emailKey string) error {
	if err := repository.client.Del(context, loginAttemptKey(emailKey)).Err(); err != nil {
		return fmt.Errorf("redis_login_attempt_reset_failed: %w", err)
	}
	return nil
}
