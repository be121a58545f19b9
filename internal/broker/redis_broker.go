// Copyright (c) 2026 City Access Media

package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/cityaccess/vod-orchestrator/internal/log"
)

const (
	priorityListKey = "vod:broker:priority"
	defaultListKey  = "vod:broker:default"
	resultKeyPrefix = "vod:broker:result:"
	resultTTL       = 24 * time.Hour
	resultPollEvery = 200 * time.Millisecond
)

// RedisBroker is a Redis list-backed Broker (RPUSH/BLPOP) for multi-worker
// process deployments. Task results are written to a short-lived key and
// polled by Handle.Wait, so a submitter in one process can observe a
// result produced by a worker in another.
type RedisBroker struct {
	client *redis.Client
	logger zerolog.Logger
}

// NewRedisBroker wraps an existing Redis client. The client is expected to
// already be verified reachable (see store.NewRedisStore's dial pattern).
func NewRedisBroker(client *redis.Client) *RedisBroker {
	return &RedisBroker{client: client, logger: log.WithComponent("broker")}
}

func (b *RedisBroker) listKey(queue string) string {
	if queue == QueuePriority {
		return priorityListKey
	}
	return defaultListKey
}

// Submit RPUSHes env's serialized form onto its target queue's list.
func (b *RedisBroker) Submit(ctx context.Context, env *Envelope) (*Handle, error) {
	payload, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("broker: encode envelope: %w", err)
	}
	if err := b.client.RPush(ctx, b.listKey(env.Queue), payload).Err(); err != nil {
		return nil, fmt.Errorf("broker: rpush failed: %w", err)
	}
	return &Handle{id: env.ID, wait: b.wait}, nil
}

// Reserve BLPOPs the priority list first; if nothing arrives within a short
// window it falls back to blocking on both lists together, priority still
// checked first on wake.
func (b *RedisBroker) Reserve(ctx context.Context) (*Envelope, error) {
	res, err := b.client.BLPop(ctx, 200*time.Millisecond, priorityListKey).Result()
	if err == nil {
		return decodeEnvelope(res[1])
	}
	if err != redis.Nil && ctx.Err() != nil {
		return nil, ctx.Err()
	}

	res, err = b.client.BLPop(ctx, 0, priorityListKey, defaultListKey).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, fmt.Errorf("broker: blpop returned no result")
		}
		return nil, err
	}
	return decodeEnvelope(res[1])
}

func decodeEnvelope(raw string) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return nil, fmt.Errorf("broker: decode envelope: %w", err)
	}
	return &env, nil
}

// Complete writes result under a TTL-bounded key any Handle.Wait caller
// polls for.
func (b *RedisBroker) Complete(ctx context.Context, id string, result Result) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("broker: encode result: %w", err)
	}
	if err := b.client.Set(ctx, resultKeyPrefix+id, payload, resultTTL).Err(); err != nil {
		return fmt.Errorf("broker: write result: %w", err)
	}
	return nil
}

func (b *RedisBroker) wait(ctx context.Context, id string) (Result, error) {
	key := resultKeyPrefix + id
	ticker := time.NewTicker(resultPollEvery)
	defer ticker.Stop()

	for {
		val, err := b.client.Get(ctx, key).Result()
		if err == nil {
			var result Result
			if jsonErr := json.Unmarshal([]byte(val), &result); jsonErr != nil {
				return Result{}, fmt.Errorf("broker: decode result: %w", jsonErr)
			}
			return result, nil
		}
		if err != redis.Nil {
			return Result{}, fmt.Errorf("broker: poll result: %w", err)
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return Result{}, ctx.Err()
		}
	}
}

// Close closes the underlying Redis client.
func (b *RedisBroker) Close() error {
	return b.client.Close()
}

var _ Broker = (*RedisBroker)(nil)
