// Copyright (c) 2026 City Access Media

package store

import (
	"context"
	"strconv"
)

const cityEnqueuedHashKey = "vod:counters:city_enqueued_total"

// CityCounters aggregates per-city enqueue totals across every worker
// process sharing this store, using the hash-increment operations the
// shared-store contract exposes for exactly this purpose.
type CityCounters struct {
	kv KVStore
}

// NewCityCounters wraps kv for cross-process per-city counting.
func NewCityCounters(kv KVStore) *CityCounters {
	return &CityCounters{kv: kv}
}

// IncEnqueued increments the shared per-city enqueue counter and returns its
// new value.
func (c *CityCounters) IncEnqueued(ctx context.Context, cityID string) (int64, error) {
	return c.kv.HIncrBy(ctx, cityEnqueuedHashKey, cityID, 1)
}

// Snapshot returns the current per-city enqueue totals as parsed integers.
func (c *CityCounters) Snapshot(ctx context.Context) (map[string]int64, error) {
	raw, err := c.kv.HGetAll(ctx, cityEnqueuedHashKey)
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(raw))
	for k, v := range raw {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			continue
		}
		out[k] = n
	}
	return out, nil
}
