package sources

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/angelassilviane/EVAONLINE/internal/climate"
)

func nwsObservationsBody(yesterday time.Time) string {
	obs := func(hour int, temp, wind, precip string) string {
		ts := yesterday.Add(time.Duration(hour) * time.Hour).Format(time.RFC3339)
		return fmt.Sprintf(`{"properties": {
			"timestamp": %q,
			"temperature": {"value": %s},
			"relativeHumidity": {"value": 70},
			"windSpeed": {"value": %s},
			"precipitationLastHour": {"value": %s}
		}}`, ts, temp, wind, precip)
	}
	features := []string{
		// 7.62 mm is 0.3 inch: below the trace threshold, a legitimate zero.
		obs(6, "10", "36", "7.62"),
		obs(12, "20", "36", "7.62"),
		// Overnight gap: the station stopped reporting temperature.
		obs(18, "null", "null", "null"),
	}
	return `{"features": [` + strings.Join(features, ",") + `]}`
}

func TestNWSStationsAggregatesObservations(t *testing.T) {
	yesterday := climate.DateOf(time.Now()).AddDate(0, 0, -1)

	var baseURL string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasPrefix(r.URL.Path, "/points/"):
			fmt.Fprintf(w, `{"properties": {"observationStations": %q}}`, baseURL+"/gridpoints/TOP/31,80/stations")
		case strings.HasSuffix(r.URL.Path, "/stations"):
			fmt.Fprintf(w, `{"features": [{"id": %q}, {"id": %q}]}`,
				baseURL+"/stations/KTOP", baseURL+"/stations/KFOE")
		case strings.HasSuffix(r.URL.Path, "/observations"):
			if r.URL.Query().Get("start") == "" || r.URL.Query().Get("end") == "" {
				t.Error("observations request must bound the window")
			}
			w.Write([]byte(nwsObservationsBody(yesterday)))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()
	baseURL = srv.URL

	src := NewNWSStationsSource(testClient(srv), 0.5)
	src.desc.BaseURL = srv.URL

	dr := climate.DateRange{Start: yesterday, End: yesterday}
	records, err := src.Fetch(context.Background(), topeka, dr, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}

	rec := records[0]
	if rec.TempMean == nil || *rec.TempMean != 15 {
		t.Fatalf("unexpected temperature mean: %v", rec.TempMean)
	}
	if rec.TempMax == nil || *rec.TempMax != 20 {
		t.Fatalf("unexpected temperature max: %v", rec.TempMax)
	}
	if rec.TempMin == nil || *rec.TempMin != 10 {
		t.Fatalf("null observations must not drag the minimum to zero: %v", rec.TempMin)
	}
	if rec.WindMean == nil || math.Abs(*rec.WindMean-10*0.748) > 1e-9 {
		t.Fatalf("wind must be km/h to m/s to 2 m height: %v", rec.WindMean)
	}
	// Two trace-level samples: the sum must be an explicit zero, never nil.
	if rec.PrecipSum == nil {
		t.Fatal("trace precipitation must aggregate to zero, not to missing")
	}
	if *rec.PrecipSum != 0 {
		t.Fatalf("sub-threshold samples must contribute zero: %v", *rec.PrecipSum)
	}
}

func TestNWSStationsKeepsMeasurablePrecipitation(t *testing.T) {
	yesterday := climate.DateOf(time.Now()).AddDate(0, 0, -1)

	var baseURL string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasPrefix(r.URL.Path, "/points/"):
			fmt.Fprintf(w, `{"properties": {"observationStations": %q}}`, baseURL+"/stations")
		case r.URL.Path == "/stations":
			fmt.Fprintf(w, `{"features": [{"id": %q}]}`, baseURL+"/stations/KTOP")
		default:
			// 12.7 mm is half an inch, well above the trace threshold.
			ts := yesterday.Add(9 * time.Hour).Format(time.RFC3339)
			fmt.Fprintf(w, `{"features": [{"properties": {
				"timestamp": %q,
				"temperature": {"value": 18},
				"relativeHumidity": {"value": 65},
				"windSpeed": {"value": 18},
				"precipitationLastHour": {"value": 12.7}
			}}]}`, ts)
		}
	}))
	defer srv.Close()
	baseURL = srv.URL

	src := NewNWSStationsSource(testClient(srv), 0.5)
	src.desc.BaseURL = srv.URL

	dr := climate.DateRange{Start: yesterday, End: yesterday}
	records, err := src.Fetch(context.Background(), topeka, dr, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if records[0].PrecipSum == nil || *records[0].PrecipSum != 12.7 {
		t.Fatalf("measurable precipitation must survive: %v", records[0].PrecipSum)
	}
}

func TestNWSStationsRejectsOlderRanges(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("out-of-window request must not reach the server")
	}))
	defer srv.Close()

	src := NewNWSStationsSource(testClient(srv), 0.5)
	src.desc.BaseURL = srv.URL

	today := climate.DateOf(time.Now())
	dr := climate.DateRange{Start: today.AddDate(0, 0, -7), End: today}
	if _, err := src.Fetch(context.Background(), topeka, dr, nil); err == nil {
		t.Fatal("expected a window rejection for week-old observations")
	}
}
