// Package cache implements the two-tier response cache: a shared primary
// store (Redis semantics) with transparent degradation to an in-process
// fallback when the primary is unreachable. Cache failures never fail
// the caller's request; they are only observable through logging.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/angelassilviane/EVAONLINE/internal/climate"
)

// TTLs by freshness class. Historical observations do not change, so
// they keep the long default; forecasts update every model run; the
// recent past may still be revised by upstream consolidation.
const (
	TTLHistorical = 24 * time.Hour
	TTLRecent     = 6 * time.Hour
	TTLForecast   = time.Hour

	// Ranges ending within this many days of today count as recent.
	recentWindowDays = 7
)

// Store is the get/set/expire contract both tiers satisfy.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, payload []byte, ttl time.Duration) error
}

// Entry is the serialized cache payload. ExpiresAt is checked lazily on
// Get so a stale primary entry degrades to a miss instead of serving
// outdated data.
type Entry struct {
	Key        string                `json:"key"`
	Records    []climate.DailyRecord `json:"records"`
	InsertedAt time.Time             `json:"inserted_at"`
	TTLSeconds int64                 `json:"ttl_seconds"`
	ExpiresAt  time.Time             `json:"expires_at"`
}

// Layer is the two-tier cache. Writes go through to the primary and fall
// back to the local store on primary failure.
type Layer struct {
	primary  Store
	fallback Store
	now      func() time.Time
}

// NewLayer builds a layer. primary may be nil (fallback-only operation,
// e.g. no Redis configured).
func NewLayer(primary, fallback Store) *Layer {
	return &Layer{primary: primary, fallback: fallback, now: time.Now}
}

// Key derives the cache key from the query parameters. Variables and
// preferred sources are sorted so equivalent queries share an entry.
func Key(req climate.QueryRequest) string {
	vars := make([]string, 0, len(req.Variables))
	for _, v := range req.Variables {
		vars = append(vars, string(v))
	}
	sort.Strings(vars)
	srcs := append([]string(nil), req.PreferredSources...)
	sort.Strings(srcs)

	raw := fmt.Sprintf("%s|%s|%s|%s|%s",
		req.Location.Key(),
		req.Range.Start.Format("2006-01-02"),
		req.Range.End.Format("2006-01-02"),
		strings.Join(vars, ","),
		strings.Join(srcs, ","),
	)
	sum := sha256.Sum256([]byte(raw))
	return "climate:query:" + hex.EncodeToString(sum[:])
}

// TTLFor classifies the queried range by freshness and returns the
// matching TTL: forecast ranges change with every model run, recent-past
// ranges may be revised, settled history is near-permanent.
func TTLFor(dr climate.DateRange, now time.Time) time.Duration {
	today := climate.DateOf(now)
	switch {
	case dr.End.After(today):
		return TTLForecast
	case !dr.End.Before(today.AddDate(0, 0, -recentWindowDays)):
		return TTLRecent
	default:
		return TTLHistorical
	}
}

// Get returns the cached records for req, or a miss. Tier order:
// primary, then fallback. An expired entry is a miss.
func (l *Layer) Get(ctx context.Context, req climate.QueryRequest) ([]climate.DailyRecord, bool) {
	key := Key(req)
	if l.primary != nil {
		if records, ok := l.lookup(ctx, l.primary, key); ok {
			return records, true
		}
	}
	if l.fallback != nil {
		if records, ok := l.lookup(ctx, l.fallback, key); ok {
			return records, true
		}
	}
	return nil, false
}

func (l *Layer) lookup(ctx context.Context, store Store, key string) ([]climate.DailyRecord, bool) {
	payload, ok, err := store.Get(ctx, key)
	if err != nil {
		log.Printf("cache: get %s failed: %v", key, err)
		return nil, false
	}
	if !ok {
		return nil, false
	}
	var entry Entry
	if err := json.Unmarshal(payload, &entry); err != nil {
		log.Printf("cache: corrupt entry %s: %v", key, err)
		return nil, false
	}
	if l.now().After(entry.ExpiresAt) {
		return nil, false
	}
	return entry.Records, true
}

// Put stores records for req with the freshness-class TTL, write-through:
// primary first, local fallback when the primary fails. Errors are
// logged, never returned; a cache outage must not fail the request.
func (l *Layer) Put(ctx context.Context, req climate.QueryRequest, records []climate.DailyRecord) {
	ttl := TTLFor(req.Range, l.now())
	key := Key(req)
	now := l.now()

	payload, err := json.Marshal(Entry{
		Key:        key,
		Records:    records,
		InsertedAt: now,
		TTLSeconds: int64(ttl.Seconds()),
		ExpiresAt:  now.Add(ttl),
	})
	if err != nil {
		log.Printf("cache: marshal %s failed: %v", key, err)
		return
	}

	if l.primary != nil {
		if err := l.primary.Set(ctx, key, payload, ttl); err == nil {
			return
		} else {
			log.Printf("cache: primary set %s failed, degrading to fallback: %v", key, err)
		}
	}
	if l.fallback != nil {
		if err := l.fallback.Set(ctx, key, payload, ttl); err != nil {
			log.Printf("cache: fallback set %s failed: %v", key, err)
		}
	}
}

// SetClock overrides the time source, for tests.
func (l *Layer) SetClock(now func() time.Time) { l.now = now }
