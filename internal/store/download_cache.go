// Copyright (c) 2026 City Access Media

package store

import (
	"context"
	"time"

	"github.com/cityaccess/vod-orchestrator/internal/log"
)

const downloadCacheKeyPrefix = "vod:downloadcache:"

// DownloadCache remembers a short string value per remote URL for the
// cache's TTL; the downloader stores its preflight verdict there ("ok", or
// the rejection reason) so a rejected URL fails again without another HEAD.
// Backing-store errors degrade to cache misses.
type DownloadCache struct {
	kv  KVStore
	ttl time.Duration
}

// NewDownloadCache wraps kv with a fixed TTL for cached entries.
func NewDownloadCache(kv KVStore, ttl time.Duration) *DownloadCache {
	return &DownloadCache{kv: kv, ttl: ttl}
}

// Lookup returns the value previously cached for url, if still valid.
func (d *DownloadCache) Lookup(ctx context.Context, url string) (string, bool) {
	path, ok, err := d.kv.Get(ctx, downloadCacheKeyPrefix+url)
	if err != nil {
		log.WithComponent("store").Warn().Err(err).Msg("download cache lookup failed, treating as miss")
		return "", false
	}
	return path, ok
}

// Remember records localPath as the value cached for url.
func (d *DownloadCache) Remember(ctx context.Context, url, localPath string) {
	if err := d.kv.SetEX(ctx, downloadCacheKeyPrefix+url, localPath, d.ttl); err != nil {
		log.WithComponent("store").Warn().Err(err).Msg("download cache write failed")
	}
}
