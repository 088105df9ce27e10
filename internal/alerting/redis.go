// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package alerting

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ManuGH/tunerpool/internal/domain/tuner/model"
)

// RedisConfig configures the Redis pub/sub sink.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Channel  string
}

// RedisNotifier publishes fault traps on a Redis channel and keeps the last
// trap per device in the hash <channel>:last.
type RedisNotifier struct {
	client  *redis.Client
	channel string
}

// NewRedisClient creates a client and verifies the connection.
func NewRedisClient(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}
	return client, nil
}

func NewRedisNotifier(client *redis.Client, channel string) *RedisNotifier {
	if channel == "" {
		channel = "tunerd:faults"
	}
	return &RedisNotifier{client: client, channel: channel}
}

func (*RedisNotifier) Name() string { return "redis" }

func (n *RedisNotifier) NotifyFault(ctx context.Context, ev model.FaultEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal fault: %w", err)
	}
	pipe := n.client.TxPipeline()
	pipe.Publish(ctx, n.channel, payload)
	pipe.HSet(ctx, n.channel+":last", ev.DeviceID, payload)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}
