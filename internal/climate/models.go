package climate

import (
	"fmt"
	"time"
)

// Variable identifies one canonical daily weather variable.
type Variable string

const (
	VarTempMean     Variable = "temperature_mean"
	VarTempMax      Variable = "temperature_max"
	VarTempMin      Variable = "temperature_min"
	VarHumidityMean Variable = "relative_humidity_mean"
	VarWindMean     Variable = "wind_speed_mean"
	VarPrecipSum    Variable = "precipitation_sum"
	VarRadiationSum Variable = "shortwave_radiation_sum"
	VarETo          Variable = "eto"
)

// DefaultVariables is the variable set requested when a query names none.
var DefaultVariables = []Variable{
	VarTempMean, VarTempMax, VarTempMin,
	VarHumidityMean, VarWindMean, VarPrecipSum,
}

// Location is a geographic point in decimal degrees.
type Location struct {
	Lat float64 `json:"latitude"`
	Lon float64 `json:"longitude"`
}

// Key returns a canonical string key for this location. Coordinates are
// rounded to 4 decimals; forecast model grids are coarser than that and
// higher precision only fragments caches.
func (l Location) Key() string {
	return fmt.Sprintf("%.4f:%.4f", l.Lat, l.Lon)
}

// Valid reports whether the coordinates are on the globe.
func (l Location) Valid() bool {
	return l.Lat >= -90 && l.Lat <= 90 && l.Lon >= -180 && l.Lon <= 180
}

// DateRange is an inclusive range of calendar days. Start and End are
// midnight UTC.
type DateRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Days returns the number of calendar days covered, inclusive.
func (r DateRange) Days() int {
	return int(r.End.Sub(r.Start).Hours()/24) + 1
}

// Contains reports whether day falls inside the range.
func (r DateRange) Contains(day time.Time) bool {
	return !day.Before(r.Start) && !day.After(r.End)
}

// Valid reports whether Start <= End and both are set.
func (r DateRange) Valid() bool {
	return !r.Start.IsZero() && !r.End.IsZero() && !r.End.Before(r.Start)
}

// Intersect returns the overlap of two ranges, or false when they are
// disjoint.
func (r DateRange) Intersect(other DateRange) (DateRange, bool) {
	start, end := r.Start, r.End
	if other.Start.After(start) {
		start = other.Start
	}
	if other.End.Before(end) {
		end = other.End
	}
	if end.Before(start) {
		return DateRange{}, false
	}
	return DateRange{Start: start, End: end}, true
}

// DateOf truncates t to its UTC calendar day.
func DateOf(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// DailyRecord is the canonical daily weather observation produced by all
// adapters. Missing variables are nil, never zero. Records are value
// objects: constructed once by an adapter and never mutated afterwards.
type DailyRecord struct {
	Date      time.Time `json:"date"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	SourceID  string    `json:"source_id"`

	TempMean *float64 `json:"temperature_mean"`
	TempMax  *float64 `json:"temperature_max"`
	TempMin  *float64 `json:"temperature_min"`
	// Mean relative humidity in percent.
	RHMean *float64 `json:"relative_humidity_mean"`
	// Mean wind speed in m/s at the FAO-56 reference height of 2 m.
	WindMean *float64 `json:"wind_speed_mean"`
	// Accumulated precipitation in mm.
	PrecipSum *float64 `json:"precipitation_sum"`
	// Accumulated shortwave radiation in MJ/m², when the source reports it.
	RadiationSum *float64 `json:"shortwave_radiation_sum,omitempty"`
	// FAO-56 Penman-Monteith reference evapotranspiration in mm, when
	// reported by the source or computed from the other variables.
	ETo *float64 `json:"eto,omitempty"`
}

// QueryRequest describes one aggregation query.
type QueryRequest struct {
	Location  Location
	Range     DateRange
	Variables []Variable
	// PreferredSources restricts dispatch to the named source IDs.
	// Empty means every eligible source.
	PreferredSources []string
}

// SourceError records one adapter failure inside a partial result.
type SourceError struct {
	Source string `json:"source"`
	Err    error  `json:"-"`
}

func (e SourceError) Error() string {
	return e.Source + ": " + e.Err.Error()
}

func (e SourceError) Unwrap() error { return e.Err }

// Result is the merged outcome of one query. Records from different
// sources for the same date are kept distinct, tagged by SourceID; the
// core never blends values across sources.
type Result struct {
	RequestID string        `json:"request_id"`
	Records   []DailyRecord `json:"records"`
	// Sources that contributed records.
	Sources []string `json:"sources"`
	// SourceErrors lists per-source failures. Non-empty together with
	// Records means a partial success; the caller decides whether
	// partial data is acceptable.
	SourceErrors []SourceError `json:"errors,omitempty"`
	Partial      bool          `json:"partial"`
	CacheHit     bool          `json:"cache_hit"`
}

// Float returns a pointer to v. Used when building records from parsed
// payloads where present values become pointers.
func Float(v float64) *float64 { return &v }
