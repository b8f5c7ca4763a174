package execution

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/redis/go-redis/v9"

	"floorcore/store"
)

// Guard deduplicates candidate events before they reach the state machine.
// The fingerprint covers the identity of the action, not the exact timestamp:
// a coarse time bucket absorbs exact retries while two distinct counts from
// different operators in the same instant stay distinct (operator id is part
// of the key). Fingerprints live in Redis when available so retries survive a
// restart; otherwise an in-process TTL map serves.
type Guard struct {
	bucket time.Duration
	ttl    time.Duration
	redis  *redis.Client // nil when running without cache

	mu   sync.Mutex
	seen map[uint64]seenEntry
}

type seenEntry struct {
	at time.Time
	id string
}

func NewGuard(bucket, ttl time.Duration, redisClient *redis.Client) *Guard {
	if bucket <= 0 {
		bucket = time.Second
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Guard{
		bucket: bucket,
		ttl:    ttl,
		redis:  redisClient,
		seen:   make(map[uint64]seenEntry),
	}
}

// Fingerprint derives the dedup key for an event.
func (g *Guard) Fingerprint(ev *store.ExecutionEvent) uint64 {
	h := xxhash.New()
	fmt.Fprintf(h, "%s|%d|%d|%d|%d|%s|%d|%s|%s|%d|%s|%d",
		ev.EventType, ev.OrderID, ev.StepID, ev.LotID, ev.WorkcenterID,
		ev.OperatorID, ev.CountDelta, ev.QualityCode, ev.Disposition, ev.Qty,
		ev.ScanRaw, ev.TS.Truncate(g.bucket).Unix())
	return h.Sum64()
}

// Check reports whether the event is new. On a duplicate it returns false
// plus the id of the originally accepted event, so the submitter gets the
// same success response as the first delivery.
func (g *Guard) Check(ctx context.Context, ev *store.ExecutionEvent) (bool, string) {
	fp := g.Fingerprint(ev)

	if g.redis != nil {
		key := fmt.Sprintf("floorcore:dedup:%x", fp)
		ok, err := g.redis.SetNX(ctx, key, ev.ID, g.ttl).Result()
		if err == nil {
			if ok {
				return true, ""
			}
			original, _ := g.redis.Get(ctx, key).Result()
			return false, original
		}
		log.Printf("guard: redis dedup unavailable (%v), using local table", err)
	}

	now := time.Now()
	g.mu.Lock()
	defer g.mu.Unlock()
	if entry, dup := g.seen[fp]; dup && now.Sub(entry.at) < g.ttl {
		return false, entry.id
	}
	g.seen[fp] = seenEntry{at: now, id: ev.ID}
	if len(g.seen)%4096 == 0 {
		g.prune(now)
	}
	return true, ""
}

func (g *Guard) prune(now time.Time) {
	for fp, entry := range g.seen {
		if now.Sub(entry.at) >= g.ttl {
			delete(g.seen, fp)
		}
	}
}
