package climate

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/angelassilviane/EVAONLINE/internal/climate/eto"
)

// Cache is the response cache seen by the orchestrator. Implemented by
// the two-tier cache layer; nil disables caching.
type Cache interface {
	Get(ctx context.Context, req QueryRequest) ([]DailyRecord, bool)
	Put(ctx context.Context, req QueryRequest, records []DailyRecord)
}

const (
	defaultMaxAttempts = 3
	baseRetryDelay     = 500 * time.Millisecond
)

// Orchestrator dispatches one query to every eligible source
// concurrently, retries transient failures per source, and merges the
// surviving records into a single result. Records from different
// sources are kept side by side, tagged by SourceID; values are never
// blended across sources.
type Orchestrator struct {
	sources     []Source
	cache       Cache
	maxAttempts int
	retryDelay  time.Duration
	now         func() time.Time
}

// NewOrchestrator builds an orchestrator over the given sources. cache
// may be nil.
func NewOrchestrator(sources []Source, cache Cache) *Orchestrator {
	return &Orchestrator{
		sources:     sources,
		cache:       cache,
		maxAttempts: defaultMaxAttempts,
		retryDelay:  baseRetryDelay,
		now:         time.Now,
	}
}

// Query runs one aggregation query end to end: cache lookup, concurrent
// dispatch with per-source retry, merge, ETo fill-in, cache store.
//
// Per-source failures never fail the query; they are reported in
// Result.SourceErrors next to whatever records the other sources
// produced. The only aborting failure is ErrNoSourceAvailable, when not
// a single source delivered.
func (o *Orchestrator) Query(ctx context.Context, req QueryRequest) (*Result, error) {
	if !req.Location.Valid() {
		return nil, fmt.Errorf("%w: invalid coordinates %s", ErrUnsupportedRange, req.Location.Key())
	}
	if !req.Range.Valid() {
		return nil, fmt.Errorf("%w: invalid date range", ErrUnsupportedRange)
	}

	requestID := uuid.NewString()

	if o.cache != nil {
		if records, ok := o.cache.Get(ctx, req); ok {
			return &Result{
				RequestID: requestID,
				Records:   records,
				Sources:   sourceIDs(records),
				CacheHit:  true,
			}, nil
		}
	}

	dispatches := o.eligibleSources(req)
	if len(dispatches) == 0 {
		return nil, fmt.Errorf("%w: %s, %s..%s", ErrNoSourceAvailable,
			req.Location.Key(),
			req.Range.Start.Format("2006-01-02"),
			req.Range.End.Format("2006-01-02"))
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		records []DailyRecord
		fails   []SourceError
	)
	for _, d := range dispatches {
		d := d
		wg.Add(1)
		go func() {
			defer wg.Done()

			recs, err := o.fetchWithRetry(ctx, d, req)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				log.Printf("source %s failed for %s: %v", d.src.Name(), req.Location.Key(), err)
				fails = append(fails, SourceError{Source: d.src.Name(), Err: err})
				return
			}
			records = append(records, recs...)
		}()
	}
	wg.Wait()

	if len(records) == 0 {
		err := fmt.Errorf("%w: all %d eligible sources failed", ErrNoSourceAvailable, len(dispatches))
		for _, f := range fails {
			log.Printf("request %s: %v", requestID, f)
		}
		return nil, err
	}

	sort.Slice(records, func(i, j int) bool {
		if !records[i].Date.Equal(records[j].Date) {
			return records[i].Date.Before(records[j].Date)
		}
		return records[i].SourceID < records[j].SourceID
	})

	if wantsVariable(req.Variables, VarETo) {
		o.fillETo(records)
	}

	result := &Result{
		RequestID:    requestID,
		Records:      records,
		Sources:      sourceIDs(records),
		SourceErrors: fails,
		Partial:      len(fails) > 0,
	}

	// Only complete results are cached: caching a partial one would pin
	// the gap for the whole TTL even after the failing source recovers.
	if o.cache != nil && !result.Partial {
		o.cache.Put(ctx, req, records)
	}
	return result, nil
}

// dispatch pairs a source with the slice of the query range it can
// serve.
type dispatch struct {
	src Source
	dr  DateRange
}

// eligibleSources filters the configured sources by the preference list
// and coverage, and clips the query range to each source's supported
// window. A range spanning history and forecast is served piecewise:
// the archive sources take the past days, the forecast sources the
// future ones. Sources with no overlap are skipped; that is expected
// for most queries and not an error.
func (o *Orchestrator) eligibleSources(req QueryRequest) []dispatch {
	preferred := make(map[string]bool, len(req.PreferredSources))
	for _, id := range req.PreferredSources {
		preferred[id] = true
	}

	now := o.now()
	var dispatches []dispatch
	for _, src := range o.sources {
		if len(preferred) > 0 && !preferred[src.Name()] {
			continue
		}
		d := src.Descriptor()
		if d.Coverage != nil && !d.Coverage.Contains(req.Location) {
			continue
		}
		dr, ok := req.Range.Intersect(d.WindowAt(now))
		if !ok {
			continue
		}
		dispatches = append(dispatches, dispatch{src: src, dr: dr})
	}
	return dispatches
}

// fetchWithRetry runs one source with a bounded retry budget. Only
// transient failures are retried; the wait honors the source-provided
// retry-after delay when it exceeds the exponential step.
func (o *Orchestrator) fetchWithRetry(ctx context.Context, d dispatch, req QueryRequest) ([]DailyRecord, error) {
	var lastErr error
	delay := o.retryDelay

	for attempt := 1; attempt <= o.maxAttempts; attempt++ {
		records, err := d.src.Fetch(ctx, req.Location, d.dr, req.Variables)
		if err == nil {
			return records, nil
		}
		lastErr = err

		if Aborted(err) || !Retryable(err) {
			return nil, err
		}
		if attempt == o.maxAttempts {
			break
		}

		wait := delay
		if ra := RetryAfterOf(err); ra > wait {
			wait = ra
		}
		log.Printf("source %s attempt %d/%d failed, retrying in %s: %v",
			d.src.Name(), attempt, o.maxAttempts, wait, err)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
		delay *= 2
	}
	return nil, lastErr
}

// fillETo computes reference evapotranspiration for records that carry
// the needed inputs but no source-provided value. Elevation is unknown
// at this layer and defaults to sea level.
func (o *Orchestrator) fillETo(records []DailyRecord) {
	for i := range records {
		r := &records[i]
		if r.ETo != nil {
			continue
		}
		if r.TempMax == nil || r.TempMin == nil || r.RHMean == nil ||
			r.WindMean == nil || r.RadiationSum == nil {
			continue
		}
		mean := (*r.TempMax + *r.TempMin) / 2
		if r.TempMean != nil {
			mean = *r.TempMean
		}
		v, err := eto.Daily(eto.Input{
			Date:      r.Date,
			Latitude:  r.Latitude,
			TempMax:   *r.TempMax,
			TempMin:   *r.TempMin,
			TempMean:  mean,
			RHMean:    *r.RHMean,
			Wind2m:    *r.WindMean,
			Radiation: *r.RadiationSum,
		})
		if err != nil {
			log.Printf("eto for %s/%s failed: %v", r.SourceID, r.Date.Format("2006-01-02"), err)
			continue
		}
		r.ETo = &v
	}
}

func sourceIDs(records []DailyRecord) []string {
	seen := make(map[string]bool)
	var ids []string
	for _, r := range records {
		if !seen[r.SourceID] {
			seen[r.SourceID] = true
			ids = append(ids, r.SourceID)
		}
	}
	sort.Strings(ids)
	return ids
}

func wantsVariable(vars []Variable, v Variable) bool {
	if len(vars) == 0 {
		return false
	}
	for _, x := range vars {
		if x == v {
			return true
		}
	}
	return false
}
