package sources

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/angelassilviane/EVAONLINE/internal/climate"
)

// maxPointParameters is the NASA POWER cap on parameters per
// single-point query (region queries allow only one, which this core
// does not issue).
const maxPointParameters = 20

// nasaMissing marks absent values in NASA POWER payloads.
const nasaMissing = -999.0

// nasaParamFor maps canonical variables to NASA POWER parameter codes.
// WS2M is already at the 2 m reference height.
var nasaParamFor = map[climate.Variable]string{
	climate.VarTempMean:     "T2M",
	climate.VarTempMax:      "T2M_MAX",
	climate.VarTempMin:      "T2M_MIN",
	climate.VarHumidityMean: "RH2M",
	climate.VarWindMean:     "WS2M",
	climate.VarPrecipSum:    "PRECTOTCORR",
	climate.VarRadiationSum: "ALLSKY_SFC_SW_DWN",
}

// NASAPowerSource serves the NASA POWER daily point archive, global
// coverage from 1990-01-01 with no future data. The documented fair-use
// guidance is under 1 request per second.
type NASAPowerSource struct {
	desc    climate.SourceDescriptor
	httpCfg ClientConfig
	circuit *gobreaker.CircuitBreaker
	now     func() time.Time
}

func NewNASAPowerSource(cfg ClientConfig) *NASAPowerSource {
	return &NASAPowerSource{
		desc: climate.SourceDescriptor{
			ID:                "nasa_power",
			BaseURL:           "https://power.larc.nasa.gov/api/temporal/daily/point",
			Resolution:        climate.ResolutionDaily,
			EarliestDate:      time.Date(1990, 1, 1, 0, 0, 0, 0, time.UTC),
			EndOffsetDays:     0,
			RequestsPerSecond: 1,
		},
		httpCfg: cfg,
		circuit: newBreaker("nasa_power"),
		now:     time.Now,
	}
}

func (s *NASAPowerSource) Name() string { return s.desc.ID }
func (s *NASAPowerSource) Descriptor() climate.SourceDescriptor { return s.desc }

func (s *NASAPowerSource) Fetch(ctx context.Context, loc climate.Location, dr climate.DateRange, vars []climate.Variable) ([]climate.DailyRecord, error) {
	if err := s.desc.Eligible(loc, dr, s.now()); err != nil {
		return nil, err
	}

	params := s.parameterList(vars)
	if len(params) == 0 {
		return nil, fmt.Errorf("%w: no NASA POWER parameter for requested variables", climate.ErrUnsupportedRange)
	}
	if len(params) > maxPointParameters {
		params = params[:maxPointParameters]
	}

	buildRequest := func() (*http.Request, error) {
		values := url.Values{}
		values.Set("parameters", strings.Join(params, ","))
		values.Set("community", "AG")
		values.Set("latitude", fmt.Sprintf("%.4f", loc.Lat))
		values.Set("longitude", fmt.Sprintf("%.4f", loc.Lon))
		values.Set("start", dr.Start.Format("20060102"))
		values.Set("end", dr.End.Format("20060102"))
		values.Set("format", "JSON")
		return http.NewRequest(http.MethodGet, s.desc.BaseURL+"?"+values.Encode(), nil)
	}

	resp, err := doRequest(ctx, s.httpCfg, s.circuit, s.desc, buildRequest)
	if err != nil {
		return nil, err
	}

	var payload struct {
		Properties struct {
			Parameter map[string]map[string]float64 `json:"parameter"`
		} `json:"properties"`
	}
	if err := decodeJSON(resp, &payload); err != nil {
		return nil, err
	}
	if len(payload.Properties.Parameter) == 0 {
		return nil, fmt.Errorf("%w: empty parameter block", climate.ErrParse)
	}

	return s.parse(payload.Properties.Parameter, loc, dr, vars)
}

// parameterList resolves the requested variables to NASA codes,
// preserving a stable order.
func (s *NASAPowerSource) parameterList(vars []climate.Variable) []string {
	requested := vars
	if len(requested) == 0 {
		requested = climate.DefaultVariables
	}
	params := make([]string, 0, len(requested))
	seen := make(map[string]bool)
	for _, v := range requested {
		if code, ok := nasaParamFor[v]; ok && !seen[code] {
			params = append(params, code)
			seen[code] = true
		}
	}
	return params
}

func (s *NASAPowerSource) parse(parameter map[string]map[string]float64, loc climate.Location, dr climate.DateRange, vars []climate.Variable) ([]climate.DailyRecord, error) {
	// NASA keys values by YYYYMMDD; -999 means missing, never zero.
	value := func(code, day string) *float64 {
		series, ok := parameter[code]
		if !ok {
			return nil
		}
		v, ok := series[day]
		if !ok || v == nasaMissing {
			return nil
		}
		return &v
	}

	var records []climate.DailyRecord
	for day := dr.Start; !day.After(dr.End); day = day.AddDate(0, 0, 1) {
		key := day.Format("20060102")
		rec := climate.DailyRecord{
			Date:      day,
			Latitude:  loc.Lat,
			Longitude: loc.Lon,
			SourceID:  s.desc.ID,
		}
		if wants(vars, climate.VarTempMean) {
			rec.TempMean = value("T2M", key)
		}
		if wants(vars, climate.VarTempMax) {
			rec.TempMax = value("T2M_MAX", key)
		}
		if wants(vars, climate.VarTempMin) {
			rec.TempMin = value("T2M_MIN", key)
		}
		if wants(vars, climate.VarHumidityMean) {
			rec.RHMean = value("RH2M", key)
		}
		if wants(vars, climate.VarWindMean) {
			rec.WindMean = value("WS2M", key)
		}
		if wants(vars, climate.VarPrecipSum) {
			rec.PrecipSum = value("PRECTOTCORR", key)
		}
		if wants(vars, climate.VarRadiationSum) {
			rec.RadiationSum = value("ALLSKY_SFC_SW_DWN", key)
		}
		records = append(records, rec)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: no days in payload", climate.ErrParse)
	}
	return records, nil
}
