package sources

import (
	"context"
	"net/http"
	"time"

	"github.com/sony/gobreaker"

	"github.com/angelassilviane/EVAONLINE/internal/climate"
)

// OpenMeteoForecastSource serves the recent past plus a short forecast:
// today−25 through today+5.
type OpenMeteoForecastSource struct {
	desc    climate.SourceDescriptor
	apiKey  string
	httpCfg ClientConfig
	circuit *gobreaker.CircuitBreaker
	now     func() time.Time
}

func NewOpenMeteoForecastSource(cfg ClientConfig, apiKey string) *OpenMeteoForecastSource {
	return &OpenMeteoForecastSource{
		desc: climate.SourceDescriptor{
			ID:                "openmeteo_forecast",
			BaseURL:           "https://api.open-meteo.com/v1/forecast",
			Resolution:        climate.ResolutionDaily,
			StartOffsetDays:   -25,
			EndOffsetDays:     5,
			RequestsPerSecond: 10,
		},
		apiKey:  apiKey,
		httpCfg: cfg,
		circuit: newBreaker("openmeteo_forecast"),
		now:     time.Now,
	}
}

func (s *OpenMeteoForecastSource) Name() string { return s.desc.ID }
func (s *OpenMeteoForecastSource) Descriptor() climate.SourceDescriptor { return s.desc }

func (s *OpenMeteoForecastSource) Fetch(ctx context.Context, loc climate.Location, dr climate.DateRange, vars []climate.Variable) ([]climate.DailyRecord, error) {
	if err := s.desc.Eligible(loc, dr, s.now()); err != nil {
		return nil, err
	}

	buildRequest := func() (*http.Request, error) {
		return buildOpenMeteoRequest(s.desc.BaseURL, loc, dr, s.apiKey)
	}

	resp, err := doRequest(ctx, s.httpCfg, s.circuit, s.desc, buildRequest)
	if err != nil {
		return nil, err
	}

	var payload openMeteoDailyPayload
	if err := decodeJSON(resp, &payload); err != nil {
		return nil, err
	}
	return parseOpenMeteoDaily(payload, s.desc.ID, loc, vars)
}
