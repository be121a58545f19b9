// Copyright (c) 2026 City Access Media

// Package store implements the shared key-value store described by the core:
// a dedup ledger (set-membership with TTL) and a download cache (get/setex),
// backed either by an in-memory map for single-process deployments or by
// Redis for multi-worker deployments. Both backings implement the same
// KVStore contract so callers are storage-agnostic.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrUnavailable is returned by a KVStore when the backing store cannot be
// reached. Per the graceful-degradation policy, callers must treat this as
// "proceed without caching," never as a fatal error.
var ErrUnavailable = errors.New("store: backing store unavailable")

// KVStore is the shared-store interface required by the core: a key-value
// store with TTL and set-membership.
type KVStore interface {
	// Get returns the value at key, or ok=false if absent or expired.
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	// SetEX stores value at key with the given TTL.
	SetEX(ctx context.Context, key, value string, ttl time.Duration) error
	// SAdd adds member to the set at key.
	SAdd(ctx context.Context, key, member string) error
	// SIsMember reports whether member is present in the set at key.
	SIsMember(ctx context.Context, key, member string) (bool, error)
	// HIncrBy increments field in the hash at key by delta and returns the new value.
	HIncrBy(ctx context.Context, key, field string, delta int64) (int64, error)
	// HGetAll returns every field/value pair in the hash at key.
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	// Expire sets a TTL on key, refreshing any previously set expiry.
	Expire(ctx context.Context, key string, ttl time.Duration) error
	// Ping reports whether the backing store is reachable.
	Ping(ctx context.Context) error
}
