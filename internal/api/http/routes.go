package httpapi

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/kelvins/geocoder"

	"github.com/angelassilviane/EVAONLINE/internal/climate"
)

var validate = validator.New()

// Querier runs one aggregation query. Implemented by the orchestrator.
type Querier interface {
	Query(ctx context.Context, req climate.QueryRequest) (*climate.Result, error)
}

// geocode resolves a city/country pair to coordinates. Overridable in
// tests; the default uses the Google geocoding API.
var geocode = func(city, country string) (climate.Location, error) {
	loc, err := geocoder.Geocoding(geocoder.Address{City: city, Country: country})
	if err != nil {
		return climate.Location{}, err
	}
	return climate.Location{Lat: loc.Latitude, Lon: loc.Longitude}, nil
}

// RegisterRoutes wires the HTTP handlers into the Fiber app.
func RegisterRoutes(app *fiber.App, querier Querier, sources []climate.Source, queryTimeout time.Duration) {
	v1 := app.Group("/api/v1")

	v1.Get("/climate/daily", func(c *fiber.Ctx) error {
		var req dailyQuery
		if err := req.bind(c); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if err := validate.Struct(req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		var ctx context.Context = c.Context()
		if queryTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, queryTimeout)
			defer cancel()
		}

		result, err := querier.Query(ctx, climate.QueryRequest{
			Location:         req.Location,
			Range:            climate.DateRange{Start: req.Start, End: req.End},
			Variables:        req.Variables,
			PreferredSources: req.Sources,
		})
		if err != nil {
			switch {
			case errors.Is(err, climate.ErrUnsupportedRange):
				return fiber.NewError(fiber.StatusBadRequest, err.Error())
			case errors.Is(err, climate.ErrNoSourceAvailable):
				return fiber.NewError(fiber.StatusBadGateway, err.Error())
			case climate.Aborted(err):
				return fiber.NewError(fiber.StatusGatewayTimeout, "query timed out")
			default:
				return fiber.NewError(fiber.StatusInternalServerError, "failed to aggregate climate data")
			}
		}
		return c.JSON(result)
	})

	v1.Get("/climate/sources", func(c *fiber.Ctx) error {
		now := time.Now()
		infos := make([]sourceInfo, 0, len(sources))
		for _, src := range sources {
			d := src.Descriptor()
			w := d.WindowAt(now)
			info := sourceInfo{
				ID:                d.ID,
				Resolution:        string(d.Resolution),
				WindowStart:       w.Start.Format("2006-01-02"),
				WindowEnd:         w.End.Format("2006-01-02"),
				RequestsPerSecond: d.RequestsPerSecond,
			}
			if d.Coverage != nil {
				info.Coverage = &coverageInfo{
					LatMin: d.Coverage.LatMin, LatMax: d.Coverage.LatMax,
					LonMin: d.Coverage.LonMin, LonMax: d.Coverage.LonMax,
				}
			}
			infos = append(infos, info)
		}
		return c.JSON(fiber.Map{"sources": infos})
	})
}

type sourceInfo struct {
	ID                string        `json:"id"`
	Resolution        string        `json:"resolution"`
	WindowStart       string        `json:"window_start"`
	WindowEnd         string        `json:"window_end"`
	RequestsPerSecond int           `json:"requests_per_second"`
	Coverage          *coverageInfo `json:"coverage,omitempty"`
}

type coverageInfo struct {
	LatMin float64 `json:"lat_min"`
	LatMax float64 `json:"lat_max"`
	LonMin float64 `json:"lon_min"`
	LonMax float64 `json:"lon_max"`
}

// dailyQuery holds the bound and resolved query parameters for the
// daily endpoint.
type dailyQuery struct {
	Location  climate.Location
	Start     time.Time `validate:"required"`
	End       time.Time `validate:"required,gtefield=Start"`
	Variables []climate.Variable
	Sources   []string
}

var knownVariables = map[climate.Variable]bool{
	climate.VarTempMean:     true,
	climate.VarTempMax:      true,
	climate.VarTempMin:      true,
	climate.VarHumidityMean: true,
	climate.VarWindMean:     true,
	climate.VarPrecipSum:    true,
	climate.VarRadiationSum: true,
	climate.VarETo:          true,
}

func (q *dailyQuery) bind(c *fiber.Ctx) error {
	loc, err := bindLocation(c)
	if err != nil {
		return err
	}
	q.Location = loc

	startStr, endStr := c.Query("start"), c.Query("end")
	if startStr == "" || endStr == "" {
		return errors.New("start and end query parameters are required")
	}
	q.Start, err = parseDate(startStr)
	if err != nil {
		return err
	}
	q.End, err = parseDate(endStr)
	if err != nil {
		return err
	}

	for _, raw := range splitList(c.Query("variables")) {
		v := climate.Variable(raw)
		if !knownVariables[v] {
			return fmt.Errorf("unknown variable %q", raw)
		}
		q.Variables = append(q.Variables, v)
	}
	q.Sources = splitList(c.Query("sources"))
	return nil
}

// bindLocation reads coordinates, or geocodes a city/country pair when
// no coordinates are given.
func bindLocation(c *fiber.Ctx) (climate.Location, error) {
	latStr, lonStr := c.Query("lat"), c.Query("lon")
	if latStr != "" || lonStr != "" {
		if latStr == "" || lonStr == "" {
			return climate.Location{}, errors.New("lat and lon must be given together")
		}
		lat, err := strconv.ParseFloat(latStr, 64)
		if err != nil {
			return climate.Location{}, fmt.Errorf("invalid lat %q", latStr)
		}
		lon, err := strconv.ParseFloat(lonStr, 64)
		if err != nil {
			return climate.Location{}, fmt.Errorf("invalid lon %q", lonStr)
		}
		loc := climate.Location{Lat: lat, Lon: lon}
		if !loc.Valid() {
			return climate.Location{}, fmt.Errorf("coordinates out of range: %s", loc.Key())
		}
		return loc, nil
	}

	city, country := c.Query("city"), c.Query("country")
	if city == "" || country == "" {
		return climate.Location{}, errors.New("either lat/lon or city/country is required")
	}
	loc, err := geocode(city, country)
	if err != nil {
		return climate.Location{}, fmt.Errorf("geocoding %s, %s failed: %w", city, country, err)
	}
	return loc, nil
}

// parseDate accepts a calendar date or a full RFC3339 timestamp,
// truncated to its UTC day.
func parseDate(s string) (time.Time, error) {
	if d, err := time.ParseInLocation("2006-01-02", s, time.UTC); err == nil {
		return d, nil
	}
	if ts, err := time.Parse(time.RFC3339, s); err == nil {
		return climate.DateOf(ts), nil
	}
	return time.Time{}, fmt.Errorf("invalid date %q; use YYYY-MM-DD or RFC3339", s)
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
