// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package redis connects the lockout counters to Redis.

Only counters that must expire on their own live here (failed logins per email
blind index). Accounts and refresh-token records stay in PostgreSQL, so losing
Redis weakens the lockout but never loses identity state.
*/
package redis

import (
	stdctx "context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/taibuivan/yomira-auth/internal/platform/constants"
)

const (
	dialTimeout = 3 * time.Second
	ioTimeout   = 2 * time.Second
	pingTimeout = 2 * time.Second

	// Counter traffic is one INCR/EXPIRE pair per failed login.
	poolSize     = 8
	minIdleConns = 1
)

// NewClient parses redisURL, applies the timeouts above and pings once.
//
// Pool and timeout values already present in the URL query win over the defaults.
func NewClient(context stdctx.Context, redisURL string, logger *slog.Logger) (*redis.Client, error) {
	options, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("redis: invalid URL: %w", err)
	}

	options.ClientName = constants.AppName
	if options.PoolSize == 0 {
		options.PoolSize = poolSize
	}
	if options.MinIdleConns == 0 {
		options.MinIdleConns = minIdleConns
	}
	if options.DialTimeout == 0 {
		options.DialTimeout = dialTimeout
	}
	if options.ReadTimeout == 0 {
		options.ReadTimeout = ioTimeout
	}
	if options.WriteTimeout == 0 {
		options.WriteTimeout = ioTimeout
	}

	client := redis.NewClient(options)
	if err := Ping(context, client); err != nil {
		_ = client.Close()
		return nil, err
	}

	logger.Info("redis_connected",
		slog.String("addr", options.Addr),
		slog.Int("db", options.DB),
		slog.Int("pool_size", options.PoolSize),
	)
	return client, nil
}

// Ping checks the client within pingTimeout. It backs /ready.
func Ping(context stdctx.Context, client redis.UniversalClient) error {
	pingCtx, cancel := stdctx.WithTimeout(context, pingTimeout)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		return fmt.Errorf("redis: ping failed: %w", err)
	}
	return nil
}
