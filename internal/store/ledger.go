// Copyright (c) 2026 City Access Media

package store

import (
	"context"
	"time"

	"github.com/cityaccess/vod-orchestrator/internal/log"
)

const dedupSetKey = "vod:dedup:seen"

// Ledger is the Dedup Ledger (C4): a (path, expires-at) membership set. A
// present path means "believed already queued or recently processed; skip."
// Per the shared-resource policy, an unreachable backing store degrades to
// a silent no-op rather than a fatal error — callers proceed, accepting the
// risk of duplicate work.
type Ledger struct {
	kv  KVStore
	ttl time.Duration
}

// NewLedger wraps kv with the dedup TTL policy (AUTOPRIORITIZE_SEEN_TTL_HOURS).
func NewLedger(kv KVStore, ttlHours int) *Ledger {
	return &Ledger{kv: kv, ttl: time.Duration(ttlHours) * time.Hour}
}

// MarkSeen records path as seen, refreshing the ledger's sliding TTL window.
// Errors are logged and swallowed: a failed mark never blocks the pipeline.
func (l *Ledger) MarkSeen(ctx context.Context, path string) {
	if err := l.kv.SAdd(ctx, dedupSetKey, path); err != nil {
		log.WithComponent("store").Warn().Err(err).Msg("dedup ledger mark-seen failed, continuing without dedup")
		return
	}
	if err := l.kv.Expire(ctx, dedupSetKey, l.ttl); err != nil {
		log.WithComponent("store").Warn().Err(err).Msg("dedup ledger expire refresh failed")
	}
}

// IsSeen reports whether path is believed already queued or processed. A
// backing-store error is treated as "not seen" so the caller proceeds.
func (l *Ledger) IsSeen(ctx context.Context, path string) bool {
	seen, err := l.kv.SIsMember(ctx, dedupSetKey, path)
	if err != nil {
		log.WithComponent("store").Warn().Err(err).Msg("dedup ledger lookup failed, assuming unseen")
		return false
	}
	return seen
}
