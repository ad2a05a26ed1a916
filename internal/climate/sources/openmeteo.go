package sources

import (
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/angelassilviane/EVAONLINE/internal/climate"
	"github.com/angelassilviane/EVAONLINE/internal/climate/convert"
)

// openMeteoDailyPayload is the daily block shared by the Open-Meteo
// Archive and Forecast endpoints. Nulls in the JSON arrays stay nil.
type openMeteoDailyPayload struct {
	Daily struct {
		Time         []string   `json:"time"`
		TempMax      []*float64 `json:"temperature_2m_max"`
		TempMin      []*float64 `json:"temperature_2m_min"`
		TempMean     []*float64 `json:"temperature_2m_mean"`
		RHMean       []*float64 `json:"relative_humidity_2m_mean"`
		WindMean10m  []*float64 `json:"wind_speed_10m_mean"`
		PrecipSum    []*float64 `json:"precipitation_sum"`
		RadiationSum []*float64 `json:"shortwave_radiation_sum"`
		ETo          []*float64 `json:"et0_fao_evapotranspiration"`
	} `json:"daily"`
}

// openMeteoDailyParams is the daily variable list requested from both
// Open-Meteo endpoints.
const openMeteoDailyParams = "temperature_2m_max,temperature_2m_min," +
	"temperature_2m_mean,relative_humidity_2m_mean,wind_speed_10m_mean," +
	"precipitation_sum,shortwave_radiation_sum,et0_fao_evapotranspiration"

// buildOpenMeteoRequest shapes a request against an Open-Meteo daily
// endpoint. An API key is optional (commercial tier).
func buildOpenMeteoRequest(baseURL string, loc climate.Location, dr climate.DateRange, apiKey string) (*http.Request, error) {
	values := url.Values{}
	values.Set("latitude", fmt.Sprintf("%.4f", loc.Lat))
	values.Set("longitude", fmt.Sprintf("%.4f", loc.Lon))
	values.Set("start_date", dr.Start.Format("2006-01-02"))
	values.Set("end_date", dr.End.Format("2006-01-02"))
	values.Set("daily", openMeteoDailyParams)
	values.Set("timezone", "UTC")
	values.Set("wind_speed_unit", "ms")
	if apiKey != "" {
		values.Set("apikey", apiKey)
	}
	return http.NewRequest(http.MethodGet, baseURL+"?"+values.Encode(), nil)
}

// parseOpenMeteoDaily turns the column-oriented payload into canonical
// records. Wind is reported at 10 m and converted to the 2 m reference
// height.
func parseOpenMeteoDaily(payload openMeteoDailyPayload, sourceID string, loc climate.Location, vars []climate.Variable) ([]climate.DailyRecord, error) {
	days := payload.Daily.Time
	if len(days) == 0 {
		return nil, fmt.Errorf("%w: empty daily block", climate.ErrParse)
	}

	pick := func(col []*float64, i int) *float64 {
		if i >= len(col) || col[i] == nil {
			return nil
		}
		v := *col[i]
		return &v
	}

	records := make([]climate.DailyRecord, 0, len(days))
	for i, ds := range days {
		date, err := time.ParseInLocation("2006-01-02", ds, time.UTC)
		if err != nil {
			return nil, fmt.Errorf("%w: bad date %q", climate.ErrParse, ds)
		}

		rec := climate.DailyRecord{
			Date:      date,
			Latitude:  loc.Lat,
			Longitude: loc.Lon,
			SourceID:  sourceID,
		}
		if wants(vars, climate.VarTempMax) {
			rec.TempMax = pick(payload.Daily.TempMax, i)
		}
		if wants(vars, climate.VarTempMin) {
			rec.TempMin = pick(payload.Daily.TempMin, i)
		}
		if wants(vars, climate.VarTempMean) {
			rec.TempMean = pick(payload.Daily.TempMean, i)
		}
		if wants(vars, climate.VarHumidityMean) {
			rec.RHMean = pick(payload.Daily.RHMean, i)
		}
		if wants(vars, climate.VarWindMean) {
			if w := pick(payload.Daily.WindMean10m, i); w != nil {
				rec.WindMean = climate.Float(convert.Wind10mTo2m(*w))
			}
		}
		if wants(vars, climate.VarPrecipSum) {
			rec.PrecipSum = pick(payload.Daily.PrecipSum, i)
		}
		if wants(vars, climate.VarRadiationSum) {
			rec.RadiationSum = pick(payload.Daily.RadiationSum, i)
		}
		if wants(vars, climate.VarETo) {
			rec.ETo = pick(payload.Daily.ETo, i)
		}
		records = append(records, rec)
	}
	return records, nil
}
