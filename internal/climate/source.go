package climate

import (
	"context"
	"fmt"
	"time"
)

// Resolution is the native temporal resolution of a source.
type Resolution string

const (
	ResolutionHourly Resolution = "hourly"
	ResolutionDaily  Resolution = "daily"
)

// BBox is a geographic bounding box in decimal degrees.
type BBox struct {
	LatMin, LatMax float64
	LonMin, LonMax float64
}

// Contains reports whether loc falls inside the box.
func (b BBox) Contains(loc Location) bool {
	return loc.Lat >= b.LatMin && loc.Lat <= b.LatMax &&
		loc.Lon >= b.LonMin && loc.Lon <= b.LonMax
}

// USABBox bounds the continental USA, the coverage of both NWS endpoints.
var USABBox = BBox{LatMin: 24.0, LatMax: 49.0, LonMin: -125.0, LonMax: -66.0}

// NordicBBox bounds the MET Nordic 1 km dataset (Norway, Denmark,
// Sweden, Finland, Baltics). Inside it MET Norway precipitation is
// radar- and crowdsource-corrected; outside it the 9 km ECMWF tier has
// no usable precipitation.
var NordicBBox = BBox{LatMin: 54.0, LatMax: 71.5, LonMin: 4.0, LonMax: 31.0}

// SourceDescriptor is the immutable description of one external API.
// One instance per source, built at startup.
type SourceDescriptor struct {
	ID      string
	BaseURL string

	// Coverage limits the geographic domain; nil means global.
	Coverage   *BBox
	Resolution Resolution

	// EarliestDate is the absolute start of the archive for historical
	// sources. When zero, StartOffsetDays (relative to today) applies.
	EarliestDate    time.Time
	StartOffsetDays int
	// EndOffsetDays bounds the supported range relative to today
	// (negative for archives that lag, positive for forecasts).
	EndOffsetDays int

	RequiresUserAgent bool
	RequiresAPIKey    bool

	// Fair-use ceiling enforced by the local rate limiter.
	RequestsPerSecond int
	// FixedRetryAfter, when set, is the policy backoff reported on
	// denial (the NWS "retry after 5s" rule); otherwise denial backoff
	// grows exponentially.
	FixedRetryAfter time.Duration
}

// WindowAt returns the supported date range as of now.
func (d SourceDescriptor) WindowAt(now time.Time) DateRange {
	today := DateOf(now)
	start := today.AddDate(0, 0, d.StartOffsetDays)
	if !d.EarliestDate.IsZero() {
		start = d.EarliestDate
	}
	return DateRange{Start: start, End: today.AddDate(0, 0, d.EndOffsetDays)}
}

// Eligible validates loc and dr against coverage and the supported
// window, returning ErrUnsupportedRange before any network call is made.
func (d SourceDescriptor) Eligible(loc Location, dr DateRange, now time.Time) error {
	if d.Coverage != nil && !d.Coverage.Contains(loc) {
		return fmt.Errorf("%w: %s does not cover %s", ErrUnsupportedRange, d.ID, loc.Key())
	}
	w := d.WindowAt(now)
	if dr.Start.Before(w.Start) || dr.End.After(w.End) {
		return fmt.Errorf("%w: %s supports %s..%s",
			ErrUnsupportedRange, d.ID,
			w.Start.Format("2006-01-02"), w.End.Format("2006-01-02"))
	}
	return nil
}

// Source abstracts one external weather API. Implementations validate
// eligibility, shape the request under the source's constraints, and
// parse the response into canonical daily records. They never retry
// internally; retry and backoff belong to the orchestrator.
type Source interface {
	Name() string
	Descriptor() SourceDescriptor
	Fetch(ctx context.Context, loc Location, dr DateRange, vars []Variable) ([]DailyRecord, error)
}
