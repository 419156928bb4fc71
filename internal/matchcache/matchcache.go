// Package matchcache implements a fingerprinted, generation-counted cache
// of resolved stream→event matches, letting a refresh cycle update only
// dynamic fields (score, status, odds) for streams that already matched,
// without re-running the fuzzy matcher.
package matchcache

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"

	"github.com/Pharaoh-Labs/teamarr/internal/domain"
)

// maxMissStreak is the number of consecutive refresh cycles a cached entry
// may go without being seen again before it is evicted.
const maxMissStreak = 3

// Fingerprint derives the cache key for a stream within a group: a
// truncated SHA-256 over "group_id:stream_id:stream_name".
func Fingerprint(groupID, streamID, streamName string) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s:%s:%s", groupID, streamID, streamName)))
	return hex.EncodeToString(sum[:])[:16]
}

// Cache is backed by Postgres via database/sql + lib/pq.
type Cache struct {
	db *sql.DB
}

// New wraps an open *sql.DB. Callers own the connection's lifecycle.
func New(db *sql.DB) *Cache {
	return &Cache{db: db}
}

// Get looks up a cache entry by fingerprint. Returns (nil, nil) on miss.
func (c *Cache) Get(ctx context.Context, fingerprint string) (*domain.StreamMatchCacheEntry, error) {
	var e domain.StreamMatchCacheEntry
	var eventJSON []byte
	err := c.db.QueryRowContext(ctx, `
		SELECT fingerprint, group_id, stream_id, stream_name, event_id, league,
		       cached_event, last_seen_generation, miss_streak, created_at, updated_at
		FROM stream_match_cache
		WHERE fingerprint = $1`, fingerprint).Scan(
		&e.Fingerprint, &e.GroupID, &e.StreamID, &e.StreamName, &e.EventID, &e.League,
		&eventJSON, &e.LastSeenGeneration, &e.MissStreak, &e.CreatedAt, &e.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get cache entry: %w", err)
	}
	if err := json.Unmarshal(eventJSON, &e.CachedEvent); err != nil {
		return nil, fmt.Errorf("decode cached event: %w", err)
	}
	return &e, nil
}

// Put inserts or fully replaces a cache entry — used the first time a
// stream resolves to an event, or whenever the matched event itself changes
// (not merely its dynamic fields; use Touch for that).
func (c *Cache) Put(ctx context.Context, e domain.StreamMatchCacheEntry) error {
	eventJSON, err := json.Marshal(e.CachedEvent)
	if err != nil {
		return fmt.Errorf("encode cached event: %w", err)
	}
	_, err = c.db.ExecContext(ctx, `
		INSERT INTO stream_match_cache
			(fingerprint, group_id, stream_id, stream_name, event_id, league,
			 cached_event, last_seen_generation, miss_streak, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,0,now(),now())
		ON CONFLICT (fingerprint) DO UPDATE SET
			event_id              = EXCLUDED.event_id,
			league                = EXCLUDED.league,
			cached_event          = EXCLUDED.cached_event,
			last_seen_generation  = EXCLUDED.last_seen_generation,
			miss_streak           = 0,
			updated_at            = now()`,
		e.Fingerprint, e.GroupID, e.StreamID, e.StreamName, e.EventID, e.League,
		eventJSON, e.LastSeenGeneration,
	)
	if err != nil {
		return fmt.Errorf("put cache entry: %w", err)
	}
	return nil
}

// Touch applies a dynamic-field refresh to a cache hit and resets its miss
// streak, stamping it with the current generation so a later purge pass
// knows it was seen this cycle.
func (c *Cache) Touch(ctx context.Context, fingerprint string, dynamic domain.DynamicFields, generation int64) error {
	entry, err := c.Get(ctx, fingerprint)
	if err != nil {
		return err
	}
	if entry == nil {
		return fmt.Errorf("touch cache entry: fingerprint %s not found", fingerprint)
	}
	merged := entry.CachedEvent.ApplyDynamic(dynamic)
	eventJSON, err := json.Marshal(merged)
	if err != nil {
		return fmt.Errorf("encode cached event: %w", err)
	}
	_, err = c.db.ExecContext(ctx, `
		UPDATE stream_match_cache
		SET cached_event = $1, last_seen_generation = $2, miss_streak = 0, updated_at = now()
		WHERE fingerprint = $3`,
		eventJSON, generation, fingerprint,
	)
	if err != nil {
		return fmt.Errorf("touch cache entry: %w", err)
	}
	return nil
}

// MarkMiss increments the miss streak for a fingerprint not seen this
// generation's stream list, evicting it once the streak reaches
// maxMissStreak. Returns true if the entry was evicted.
func (c *Cache) MarkMiss(ctx context.Context, fingerprint string) (evicted bool, err error) {
	var streak int
	err = c.db.QueryRowContext(ctx, `
		UPDATE stream_match_cache
		SET miss_streak = miss_streak + 1
		WHERE fingerprint = $1
		RETURNING miss_streak`, fingerprint).Scan(&streak)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("mark miss: %w", err)
	}
	if streak >= maxMissStreak {
		if _, err := c.db.ExecContext(ctx, `DELETE FROM stream_match_cache WHERE fingerprint = $1`, fingerprint); err != nil {
			return false, fmt.Errorf("evict cache entry: %w", err)
		}
		return true, nil
	}
	return false, nil
}

// PurgeStale deletes entries not seen within the last N generations,
// regardless of miss streak — a backstop for entries whose group stopped
// refreshing entirely. Defaults to N=5. An entry exactly N generations
// behind is still within the window and survives; only entries strictly
// older are purged.
func (c *Cache) PurgeStale(ctx context.Context, currentGeneration int64, n int) (int, error) {
	if n <= 0 {
		n = 5
	}
	res, err := c.db.ExecContext(ctx, `
		DELETE FROM stream_match_cache
		WHERE last_seen_generation < $1`,
		currentGeneration-int64(n),
	)
	if err != nil {
		return 0, fmt.Errorf("purge stale cache entries: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected > 0 {
		log.Printf("[matchcache] purged %d stale entries older than generation %d", affected, currentGeneration-int64(n))
	}
	return int(affected), nil
}

// ClearGroup deletes every cache entry belonging to a group.
func (c *Cache) ClearGroup(ctx context.Context, groupID string) error {
	_, err := c.db.ExecContext(ctx, `DELETE FROM stream_match_cache WHERE group_id = $1`, groupID)
	if err != nil {
		return fmt.Errorf("clear group cache: %w", err)
	}
	return nil
}
