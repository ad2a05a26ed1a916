package sources

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/sony/gobreaker"

	"github.com/angelassilviane/EVAONLINE/internal/climate"
	"github.com/angelassilviane/EVAONLINE/internal/climate/convert"
)

// precipTraceThresholdIn: station gauges report sub-0.4-inch hourly
// accumulations unreliably (MADIS trace noise), so such values count as
// a legitimate zero, never as missing.
const precipTraceThresholdIn = 0.4

// NWSStationsSource serves real-time station observations for the
// continental USA: yesterday through now, hourly observations
// aggregated to daily. Values arrive in SI-ish units (°C, km/h, mm).
type NWSStationsSource struct {
	desc        climate.SourceDescriptor
	httpCfg     ClientConfig
	circuit     *gobreaker.CircuitBreaker
	minFraction float64
	now         func() time.Time
}

func NewNWSStationsSource(cfg ClientConfig, minFraction float64) *NWSStationsSource {
	usa := climate.USABBox
	return &NWSStationsSource{
		desc: climate.SourceDescriptor{
			ID:                "nws_stations",
			BaseURL:           "https://api.weather.gov",
			Coverage:          &usa,
			Resolution:        climate.ResolutionHourly,
			StartOffsetDays:   -1,
			EndOffsetDays:     0,
			RequiresUserAgent: true,
			RequestsPerSecond: 5,
			FixedRetryAfter:   5 * time.Second,
		},
		httpCfg:     cfg,
		circuit:     newBreaker("nws_stations"),
		minFraction: minFraction,
		now:         time.Now,
	}
}

func (s *NWSStationsSource) Name() string { return s.desc.ID }
func (s *NWSStationsSource) Descriptor() climate.SourceDescriptor { return s.desc }

type nwsObservation struct {
	Timestamp   time.Time `json:"timestamp"`
	Temperature struct {
		Value *float64 `json:"value"` // °C
	} `json:"temperature"`
	RelativeHumidity struct {
		Value *float64 `json:"value"` // %
	} `json:"relativeHumidity"`
	WindSpeed struct {
		Value *float64 `json:"value"` // km/h
	} `json:"windSpeed"`
	PrecipitationLastHour struct {
		Value *float64 `json:"value"` // mm
	} `json:"precipitationLastHour"`
}

func (s *NWSStationsSource) Fetch(ctx context.Context, loc climate.Location, dr climate.DateRange, vars []climate.Variable) ([]climate.DailyRecord, error) {
	if err := s.desc.Eligible(loc, dr, s.now()); err != nil {
		return nil, err
	}

	stationURL, err := s.resolveStation(ctx, loc)
	if err != nil {
		return nil, err
	}

	resp, err := doRequest(ctx, s.httpCfg, s.circuit, s.desc, func() (*http.Request, error) {
		values := url.Values{}
		values.Set("start", dr.Start.Format(time.RFC3339))
		values.Set("end", dr.End.AddDate(0, 0, 1).Format(time.RFC3339))
		return http.NewRequest(http.MethodGet, stationURL+"/observations?"+values.Encode(), nil)
	})
	if err != nil {
		return nil, err
	}

	var payload struct {
		Features []struct {
			Properties nwsObservation `json:"properties"`
		} `json:"features"`
	}
	if err := decodeJSON(resp, &payload); err != nil {
		return nil, err
	}
	if len(payload.Features) == 0 {
		return nil, fmt.Errorf("%w: station returned no observations", climate.ErrInsufficientData)
	}

	type bucket struct {
		temps    []float64
		humidity []float64
		wind     []float64
		precip   []float64
		count    int
	}
	buckets := make(map[time.Time]*bucket)

	for _, f := range payload.Features {
		obs := f.Properties
		day := climate.DateOf(obs.Timestamp)
		if !dr.Contains(day) {
			continue
		}
		b := buckets[day]
		if b == nil {
			b = &bucket{}
			buckets[day] = b
		}
		b.count++

		// Null temperatures outside the station's reporting window are
		// missing, never zero: only present values are sampled.
		if obs.Temperature.Value != nil {
			b.temps = append(b.temps, *obs.Temperature.Value)
		}
		if obs.RelativeHumidity.Value != nil {
			b.humidity = append(b.humidity, *obs.RelativeHumidity.Value)
		}
		if obs.WindSpeed.Value != nil {
			b.wind = append(b.wind, convert.KmhToMetersPerSecond(*obs.WindSpeed.Value))
		}
		if obs.PrecipitationLastHour.Value != nil {
			mm := *obs.PrecipitationLastHour.Value
			if convert.MillimetersToInches(mm) < precipTraceThresholdIn {
				mm = 0
			}
			b.precip = append(b.precip, mm)
		}
	}

	var records []climate.DailyRecord
	for day, b := range buckets {
		rec := climate.DailyRecord{
			Date:      day,
			Latitude:  loc.Lat,
			Longitude: loc.Lon,
			SourceID:  s.desc.ID,
		}
		if wants(vars, climate.VarTempMean) {
			rec.TempMean = convert.MeanIfComplete(b.temps, b.count, s.minFraction)
		}
		if wants(vars, climate.VarTempMax) {
			rec.TempMax = convert.Max(b.temps)
		}
		if wants(vars, climate.VarTempMin) {
			rec.TempMin = convert.Min(b.temps)
		}
		if wants(vars, climate.VarHumidityMean) {
			rec.RHMean = convert.MeanIfComplete(b.humidity, b.count, s.minFraction)
		}
		if wants(vars, climate.VarWindMean) {
			if w := convert.MeanIfComplete(b.wind, b.count, s.minFraction); w != nil {
				rec.WindMean = climate.Float(convert.Wind10mTo2m(*w))
			}
		}
		if wants(vars, climate.VarPrecipSum) {
			rec.PrecipSum = convert.Sum(b.precip)
		}
		if !emptyRecord(rec) {
			records = append(records, rec)
		}
	}

	if len(records) == 0 {
		return nil, fmt.Errorf("%w: %s has no aggregatable days in range", climate.ErrInsufficientData, s.desc.ID)
	}
	sortRecords(records)
	return records, nil
}

// resolveStation picks the nearest observation station for a point,
// following the points endpoint to the station list.
func (s *NWSStationsSource) resolveStation(ctx context.Context, loc climate.Location) (string, error) {
	resp, err := doRequest(ctx, s.httpCfg, s.circuit, s.desc, func() (*http.Request, error) {
		u := fmt.Sprintf("%s/points/%.4f,%.4f", s.desc.BaseURL, loc.Lat, loc.Lon)
		return http.NewRequest(http.MethodGet, u, nil)
	})
	if err != nil {
		return "", err
	}

	var points struct {
		Properties struct {
			ObservationStations string `json:"observationStations"`
		} `json:"properties"`
	}
	if err := decodeJSON(resp, &points); err != nil {
		return "", err
	}
	if points.Properties.ObservationStations == "" {
		return "", fmt.Errorf("%w: points response has no station list URL", climate.ErrParse)
	}

	resp, err = doRequest(ctx, s.httpCfg, s.circuit, s.desc, func() (*http.Request, error) {
		return http.NewRequest(http.MethodGet, points.Properties.ObservationStations, nil)
	})
	if err != nil {
		return "", err
	}

	var stations struct {
		Features []struct {
			ID string `json:"id"`
		} `json:"features"`
	}
	if err := decodeJSON(resp, &stations); err != nil {
		return "", err
	}
	if len(stations.Features) == 0 || stations.Features[0].ID == "" {
		return "", fmt.Errorf("%w: no observation stations for point", climate.ErrParse)
	}
	// Stations are ordered by distance; the first is the closest.
	return stations.Features[0].ID, nil
}
