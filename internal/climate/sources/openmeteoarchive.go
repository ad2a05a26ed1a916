package sources

import (
	"context"
	"net/http"
	"time"

	"github.com/sony/gobreaker"

	"github.com/angelassilviane/EVAONLINE/internal/climate"
)

// OpenMeteoArchiveSource serves settled historical reanalysis data,
// 1990-01-01 through today−2 (the consolidation lag).
type OpenMeteoArchiveSource struct {
	desc    climate.SourceDescriptor
	apiKey  string
	httpCfg ClientConfig
	circuit *gobreaker.CircuitBreaker
	now     func() time.Time
}

func NewOpenMeteoArchiveSource(cfg ClientConfig, apiKey string) *OpenMeteoArchiveSource {
	return &OpenMeteoArchiveSource{
		desc: climate.SourceDescriptor{
			ID:                "openmeteo_archive",
			BaseURL:           "https://archive-api.open-meteo.com/v1/archive",
			Resolution:        climate.ResolutionDaily,
			EarliestDate:      time.Date(1990, 1, 1, 0, 0, 0, 0, time.UTC),
			EndOffsetDays:     -2,
			RequiresAPIKey:    false,
			RequestsPerSecond: 10,
		},
		apiKey:  apiKey,
		httpCfg: cfg,
		circuit: newBreaker("openmeteo_archive"),
		now:     time.Now,
	}
}

func (s *OpenMeteoArchiveSource) Name() string { return s.desc.ID }
func (s *OpenMeteoArchiveSource) Descriptor() climate.SourceDescriptor { return s.desc }

func (s *OpenMeteoArchiveSource) Fetch(ctx context.Context, loc climate.Location, dr climate.DateRange, vars []climate.Variable) ([]climate.DailyRecord, error) {
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
