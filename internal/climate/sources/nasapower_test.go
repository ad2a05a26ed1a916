package sources

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/angelassilviane/EVAONLINE/internal/climate"
)

const nasaPowerBody = `{
	"properties": {
		"parameter": {
			"T2M": {"19900101": 25.0, "19900102": -999.0},
			"PRECTOTCORR": {"19900101": 1.5, "19900102": 2.0}
		}
	}
}`

func TestNASAPowerFetchTreatsMissingMarkerAsNil(t *testing.T) {
	var gotQuery url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		w.Write([]byte(nasaPowerBody))
	}))
	defer srv.Close()

	src := NewNASAPowerSource(testClient(srv))
	src.desc.BaseURL = srv.URL

	loc := climate.Location{Lat: -15.78, Lon: -47.93}
	dr := climate.DateRange{Start: utcDay("1990-01-01"), End: utcDay("1990-01-02")}
	vars := []climate.Variable{climate.VarTempMean, climate.VarPrecipSum}

	records, err := src.Fetch(context.Background(), loc, dr, vars)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}

	if gotQuery.Get("community") != "AG" {
		t.Fatalf("expected community=AG, got %q", gotQuery.Get("community"))
	}
	if gotQuery.Get("start") != "19900101" || gotQuery.Get("end") != "19900102" {
		t.Fatalf("unexpected date params: %v", gotQuery)
	}
	if gotQuery.Get("parameters") != "T2M,PRECTOTCORR" {
		t.Fatalf("unexpected parameter list: %q", gotQuery.Get("parameters"))
	}

	if records[0].TempMean == nil || *records[0].TempMean != 25.0 {
		t.Fatalf("unexpected first-day temperature: %v", records[0].TempMean)
	}
	if records[1].TempMean != nil {
		t.Fatal("-999 must decode to nil, never to a value")
	}
	if records[1].PrecipSum == nil || *records[1].PrecipSum != 2.0 {
		t.Fatalf("unexpected second-day precipitation: %v", records[1].PrecipSum)
	}
}

func TestNASAPowerParameterList(t *testing.T) {
	src := NewNASAPowerSource(ClientConfig{})

	params := src.parameterList([]climate.Variable{
		climate.VarTempMean, climate.VarTempMean, climate.VarETo, climate.VarWindMean,
	})
	if len(params) != 2 || params[0] != "T2M" || params[1] != "WS2M" {
		t.Fatalf("expected deduplicated [T2M WS2M], got %v", params)
	}

	// Empty request falls back to the default variable set.
	if got := src.parameterList(nil); len(got) != len(climate.DefaultVariables) {
		t.Fatalf("expected %d default parameters, got %v", len(climate.DefaultVariables), got)
	}
}

func TestNASAPowerRejectsUnmappableVariables(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("request must not reach the server")
	}))
	defer srv.Close()

	src := NewNASAPowerSource(testClient(srv))
	src.desc.BaseURL = srv.URL

	dr := climate.DateRange{Start: utcDay("1990-01-01"), End: utcDay("1990-01-02")}
	_, err := src.Fetch(context.Background(), climate.Location{}, dr, []climate.Variable{climate.VarETo})
	if !errors.Is(err, climate.ErrUnsupportedRange) {
		t.Fatalf("expected ErrUnsupportedRange, got %v", err)
	}
}

func TestNASAPowerRejectsPre1990(t *testing.T) {
	src := NewNASAPowerSource(ClientConfig{Client: http.DefaultClient})
	dr := climate.DateRange{Start: utcDay("1989-12-31"), End: utcDay("1990-01-02")}
	_, err := src.Fetch(context.Background(), climate.Location{}, dr, nil)
	if !errors.Is(err, climate.ErrUnsupportedRange) {
		t.Fatalf("expected ErrUnsupportedRange, got %v", err)
	}
}
