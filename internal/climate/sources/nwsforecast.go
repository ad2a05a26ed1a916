package sources

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/angelassilviane/EVAONLINE/internal/climate"
	"github.com/angelassilviane/EVAONLINE/internal/climate/convert"
)

// minForecastHours is the smallest number of hourly periods a day must
// have to be aggregated. A day sliced below ~83% coverage (a query made
// late in the day) would bias the mean toward the remaining hours, so
// it is discarded instead.
const minForecastHours = 20

// NWSForecastSource serves api.weather.gov hourly forecasts for the
// continental USA, today through today+5. Two calls per fetch: the
// points endpoint resolves the grid, then the gridpoint hourly forecast
// is aggregated to daily. Temperatures arrive in °F and wind speeds as
// "N mph" strings; both are converted here.
type NWSForecastSource struct {
	desc        climate.SourceDescriptor
	httpCfg     ClientConfig
	circuit     *gobreaker.CircuitBreaker
	minFraction float64
	now         func() time.Time
}

func NewNWSForecastSource(cfg ClientConfig, minFraction float64) *NWSForecastSource {
	usa := climate.USABBox
	return &NWSForecastSource{
		desc: climate.SourceDescriptor{
			ID:                "nws_forecast",
			BaseURL:           "https://api.weather.gov",
			Coverage:          &usa,
			Resolution:        climate.ResolutionHourly,
			StartOffsetDays:   0,
			EndOffsetDays:     5,
			RequiresUserAgent: true,
			RequestsPerSecond: 5,
			FixedRetryAfter:   5 * time.Second,
		},
		httpCfg:     cfg,
		circuit:     newBreaker("nws_forecast"),
		minFraction: minFraction,
		now:         time.Now,
	}
}

func (s *NWSForecastSource) Name() string { return s.desc.ID }
func (s *NWSForecastSource) Descriptor() climate.SourceDescriptor { return s.desc }

type nwsHourlyPeriod struct {
	StartTime        time.Time `json:"startTime"`
	Temperature      float64   `json:"temperature"`
	TemperatureUnit  string    `json:"temperatureUnit"`
	WindSpeed        string    `json:"windSpeed"`
	RelativeHumidity struct {
		Value *float64 `json:"value"`
	} `json:"relativeHumidity"`
}

func (s *NWSForecastSource) Fetch(ctx context.Context, loc climate.Location, dr climate.DateRange, vars []climate.Variable) ([]climate.DailyRecord, error) {
	now := s.now()
	if err := s.desc.Eligible(loc, dr, now); err != nil {
		return nil, err
	}

	hourlyURL, err := s.resolveHourlyURL(ctx, loc)
	if err != nil {
		return nil, err
	}

	resp, err := doRequest(ctx, s.httpCfg, s.circuit, s.desc, func() (*http.Request, error) {
		return http.NewRequest(http.MethodGet, hourlyURL, nil)
	})
	if err != nil {
		return nil, err
	}

	var payload struct {
		Properties struct {
			Periods []nwsHourlyPeriod `json:"periods"`
		} `json:"properties"`
	}
	if err := decodeJSON(resp, &payload); err != nil {
		return nil, err
	}
	if len(payload.Properties.Periods) == 0 {
		return nil, fmt.Errorf("%w: no hourly periods", climate.ErrParse)
	}

	type bucket struct {
		temps    []float64
		humidity []float64
		wind     []float64
	}
	buckets := make(map[time.Time]*bucket)

	for _, p := range payload.Properties.Periods {
		// The hourly product keeps already-elapsed periods of the
		// current day; they describe the past, not the forecast, and
		// would skew the day's mean.
		if p.StartTime.Before(now) {
			continue
		}
		day := climate.DateOf(p.StartTime)
		if !dr.Contains(day) {
			continue
		}
		b := buckets[day]
		if b == nil {
			b = &bucket{}
			buckets[day] = b
		}

		temp := p.Temperature
		if strings.EqualFold(p.TemperatureUnit, "F") {
			temp = convert.FahrenheitToCelsius(temp)
		}
		b.temps = append(b.temps, temp)

		if p.RelativeHumidity.Value != nil {
			b.humidity = append(b.humidity, *p.RelativeHumidity.Value)
		}
		if w, ok := parseWindSpeed(p.WindSpeed); ok {
			b.wind = append(b.wind, w)
		}
	}

	var records []climate.DailyRecord
	for day, b := range buckets {
		if len(b.temps) < minForecastHours {
			continue
		}
		rec := climate.DailyRecord{
			Date:      day,
			Latitude:  loc.Lat,
			Longitude: loc.Lon,
			SourceID:  s.desc.ID,
		}
		if wants(vars, climate.VarTempMean) {
			rec.TempMean = convert.MeanIfComplete(b.temps, 24, s.minFraction)
		}
		if wants(vars, climate.VarTempMax) {
			rec.TempMax = convert.Max(b.temps)
		}
		if wants(vars, climate.VarTempMin) {
			rec.TempMin = convert.Min(b.temps)
		}
		if wants(vars, climate.VarHumidityMean) {
			rec.RHMean = convert.MeanIfComplete(b.humidity, 24, s.minFraction)
		}
		if wants(vars, climate.VarWindMean) {
			if w := convert.MeanIfComplete(b.wind, 24, s.minFraction); w != nil {
				rec.WindMean = climate.Float(convert.Wind10mTo2m(*w))
			}
		}
		// The hourly product carries no quantitative precipitation;
		// PrecipSum stays nil rather than zero.
		if !emptyRecord(rec) {
			records = append(records, rec)
		}
	}

	if len(records) == 0 {
		return nil, fmt.Errorf("%w: %s has no complete days in range", climate.ErrInsufficientData, s.desc.ID)
	}
	sortRecords(records)
	return records, nil
}

// resolveHourlyURL resolves the forecast grid for a point. The points
// response carries absolute URLs for the gridpoint products.
func (s *NWSForecastSource) resolveHourlyURL(ctx context.Context, loc climate.Location) (string, error) {
	resp, err := doRequest(ctx, s.httpCfg, s.circuit, s.desc, func() (*http.Request, error) {
		u := fmt.Sprintf("%s/points/%.4f,%.4f", s.desc.BaseURL, loc.Lat, loc.Lon)
		return http.NewRequest(http.MethodGet, u, nil)
	})
	if err != nil {
		return "", err
	}

	var payload struct {
		Properties struct {
			ForecastHourly string `json:"forecastHourly"`
		} `json:"properties"`
	}
	if err := decodeJSON(resp, &payload); err != nil {
		return "", err
	}
	if payload.Properties.ForecastHourly == "" {
		return "", fmt.Errorf("%w: points response has no hourly forecast URL", climate.ErrParse)
	}
	return payload.Properties.ForecastHourly, nil
}

// parseWindSpeed reads NWS wind strings such as "5 mph" or
// "10 to 15 mph" into m/s, averaging range bounds.
func parseWindSpeed(s string) (float64, bool) {
	if s == "" {
		return 0, false
	}
	var nums []float64
	for _, f := range strings.Fields(s) {
		if v, err := strconv.ParseFloat(f, 64); err == nil {
			nums = append(nums, v)
		}
	}
	if len(nums) == 0 {
		return 0, false
	}
	var sum float64
	for _, v := range nums {
		sum += v
	}
	avg := sum / float64(len(nums))

	switch {
	case hasAny(s, "km/h", "kph"):
		return convert.KmhToMetersPerSecond(avg), true
	default: // mph is the NWS default
		return convert.MphToMetersPerSecond(avg), true
	}
}

func sortRecords(records []climate.DailyRecord) {
	for i := 1; i < len(records); i++ {
		for j := i; j > 0 && records[j].Date.Before(records[j-1].Date); j-- {
			records[j], records[j-1] = records[j-1], records[j]
		}
	}
}
