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

// METNorwaySource serves the Locationforecast 2.0 compact endpoint:
// global coverage, forecast only (today through today+5), hourly data
// aggregated to daily here since the API has no daily product.
//
// Precipitation is only emitted inside the Nordic bbox, where the 1 km
// MET Nordic dataset applies radar and crowdsourced bias correction;
// the global 9 km ECMWF tier's precipitation is left to Open-Meteo.
type METNorwaySource struct {
	desc        climate.SourceDescriptor
	httpCfg     ClientConfig
	circuit     *gobreaker.CircuitBreaker
	minFraction float64
	now         func() time.Time
}

func NewMETNorwaySource(cfg ClientConfig, minFraction float64) *METNorwaySource {
	return &METNorwaySource{
		desc: climate.SourceDescriptor{
			ID:                "met_norway",
			BaseURL:           "https://api.met.no/weatherapi/locationforecast/2.0/compact",
			Resolution:        climate.ResolutionHourly,
			StartOffsetDays:   0,
			EndOffsetDays:     5,
			RequiresUserAgent: true,
			RequestsPerSecond: 20,
		},
		httpCfg:     cfg,
		circuit:     newBreaker("met_norway"),
		minFraction: minFraction,
		now:         time.Now,
	}
}

func (s *METNorwaySource) Name() string { return s.desc.ID }
func (s *METNorwaySource) Descriptor() climate.SourceDescriptor { return s.desc }

// metPayload mirrors the Locationforecast compact timeseries. Instant
// details are hourly snapshots; next_1_hours/next_6_hours carry
// accumulations and extrema for the coming window.
type metPayload struct {
	Properties struct {
		Timeseries []struct {
			Time time.Time `json:"time"`
			Data struct {
				Instant struct {
					Details map[string]float64 `json:"details"`
				} `json:"instant"`
				Next1Hours *struct {
					Details struct {
						PrecipitationAmount *float64 `json:"precipitation_amount"`
					} `json:"details"`
				} `json:"next_1_hours"`
				Next6Hours *struct {
					Details struct {
						PrecipitationAmount *float64 `json:"precipitation_amount"`
						AirTemperatureMax   *float64 `json:"air_temperature_max"`
						AirTemperatureMin   *float64 `json:"air_temperature_min"`
					} `json:"details"`
				} `json:"next_6_hours"`
			} `json:"data"`
		} `json:"timeseries"`
	} `json:"properties"`
}

type metDayBucket struct {
	temps     []convert.Sample
	humidity  []convert.Sample
	wind      []convert.Sample
	precip1h  []float64
	precip6h  []float64
	tempMax6h []float64
	tempMin6h []float64
	entries   int
}

func (s *METNorwaySource) Fetch(ctx context.Context, loc climate.Location, dr climate.DateRange, vars []climate.Variable) ([]climate.DailyRecord, error) {
	if err := s.desc.Eligible(loc, dr, s.now()); err != nil {
		return nil, err
	}

	buildRequest := func() (*http.Request, error) {
		values := url.Values{}
		// Never more than 4 decimals; the model grid is ~1 km and finer
		// coordinates only defeat the API's response cache.
		values.Set("lat", fmt.Sprintf("%.4f", loc.Lat))
		values.Set("lon", fmt.Sprintf("%.4f", loc.Lon))
		return http.NewRequest(http.MethodGet, s.desc.BaseURL+"?"+values.Encode(), nil)
	}

	resp, err := doRequest(ctx, s.httpCfg, s.circuit, s.desc, buildRequest)
	if err != nil {
		return nil, err
	}

	var payload metPayload
	if err := decodeJSON(resp, &payload); err != nil {
		return nil, err
	}
	if len(payload.Properties.Timeseries) == 0 {
		return nil, fmt.Errorf("%w: empty timeseries", climate.ErrParse)
	}

	buckets := make(map[time.Time]*metDayBucket)
	for _, entry := range payload.Properties.Timeseries {
		day := climate.DateOf(entry.Time)
		if !dr.Contains(day) {
			continue
		}
		b := buckets[day]
		if b == nil {
			b = &metDayBucket{}
			buckets[day] = b
		}
		b.entries++

		details := entry.Data.Instant.Details
		if v, ok := details["air_temperature"]; ok {
			b.temps = append(b.temps, convert.Sample{Time: entry.Time, Value: v})
		}
		if v, ok := details["relative_humidity"]; ok {
			b.humidity = append(b.humidity, convert.Sample{Time: entry.Time, Value: v})
		}
		if v, ok := details["wind_speed"]; ok {
			b.wind = append(b.wind, convert.Sample{Time: entry.Time, Value: v})
		}

		if n1 := entry.Data.Next1Hours; n1 != nil && n1.Details.PrecipitationAmount != nil {
			b.precip1h = append(b.precip1h, *n1.Details.PrecipitationAmount)
		}
		if n6 := entry.Data.Next6Hours; n6 != nil {
			if n6.Details.PrecipitationAmount != nil {
				b.precip6h = append(b.precip6h, *n6.Details.PrecipitationAmount)
			}
			if n6.Details.AirTemperatureMax != nil {
				b.tempMax6h = append(b.tempMax6h, *n6.Details.AirTemperatureMax)
			}
			if n6.Details.AirTemperatureMin != nil {
				b.tempMin6h = append(b.tempMin6h, *n6.Details.AirTemperatureMin)
			}
		}
	}

	inNordic := climate.NordicBBox.Contains(loc)

	var records []climate.DailyRecord
	for _, day := range sortedDays(buckets) {
		b := buckets[day]
		rec := climate.DailyRecord{
			Date:      day,
			Latitude:  loc.Lat,
			Longitude: loc.Lon,
			SourceID:  s.desc.ID,
		}

		// The series is hourly near now and 6-hourly further out; use
		// the entry count as the expected sample count per variable.
		if wants(vars, climate.VarTempMean) {
			rec.TempMean = convert.MeanIfComplete(values(b.temps), b.entries, s.minFraction)
		}
		if wants(vars, climate.VarHumidityMean) {
			rec.RHMean = convert.MeanIfComplete(values(b.humidity), b.entries, s.minFraction)
		}
		if wants(vars, climate.VarWindMean) {
			// Reported at 10 m, converted to the 2 m reference height.
			if w := convert.MeanIfComplete(values(b.wind), b.entries, s.minFraction); w != nil {
				rec.WindMean = climate.Float(convert.Wind10mTo2m(*w))
			}
		}

		// Daily extremes from the reported 6-hour extrema when present,
		// instant samples otherwise.
		if wants(vars, climate.VarTempMax) {
			if v := convert.Max(b.tempMax6h); v != nil {
				rec.TempMax = v
			} else {
				rec.TempMax = convert.Max(values(b.temps))
			}
		}
		if wants(vars, climate.VarTempMin) {
			if v := convert.Min(b.tempMin6h); v != nil {
				rec.TempMin = v
			} else {
				rec.TempMin = convert.Min(values(b.temps))
			}
		}

		if wants(vars, climate.VarPrecipSum) && inNordic {
			// Hourly accumulation preferred; 6-hour windows otherwise.
			if len(b.precip1h) > 0 {
				rec.PrecipSum = convert.Sum(b.precip1h)
			} else if len(b.precip6h) > 0 {
				rec.PrecipSum = convert.Sum(b.precip6h)
			}
		}

		if emptyRecord(rec) {
			continue
		}
		records = append(records, rec)
	}

	if len(records) == 0 {
		return nil, fmt.Errorf("%w: %s has no aggregatable days in range", climate.ErrInsufficientData, s.desc.ID)
	}
	return records, nil
}

func values(samples []convert.Sample) []float64 {
	out := make([]float64, len(samples))
	for i, s := range samples {
		out[i] = s.Value
	}
	return out
}

func sortedDays[T any](m map[time.Time]*T) []time.Time {
	days := make([]time.Time, 0, len(m))
	for d := range m {
		days = append(days, d)
	}
	for i := 1; i < len(days); i++ {
		for j := i; j > 0 && days[j].Before(days[j-1]); j-- {
			days[j], days[j-1] = days[j-1], days[j]
		}
	}
	return days
}

// emptyRecord reports whether every variable slot is nil.
func emptyRecord(r climate.DailyRecord) bool {
	return r.TempMean == nil && r.TempMax == nil && r.TempMin == nil &&
		r.RHMean == nil && r.WindMean == nil && r.PrecipSum == nil &&
		r.RadiationSum == nil && r.ETo == nil
}
