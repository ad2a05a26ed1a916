package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/angelassilviane/EVAONLINE/internal/climate"
)

type stubQuerier struct {
	got    climate.QueryRequest
	result *climate.Result
	err    error
}

func (s *stubQuerier) Query(ctx context.Context, req climate.QueryRequest) (*climate.Result, error) {
	s.got = req
	return s.result, s.err
}

func newTestApp(q Querier, sources []climate.Source) *fiber.App {
	app := fiber.New()
	RegisterRoutes(app, q, sources, 5*time.Second)
	return app
}

func TestDailyRequiresParameters(t *testing.T) {
	app := newTestApp(&stubQuerier{}, nil)

	for _, target := range []string{
		"/api/v1/climate/daily",
		"/api/v1/climate/daily?lat=10&lon=20",
		"/api/v1/climate/daily?lat=10&start=2020-06-01&end=2020-06-02",
		"/api/v1/climate/daily?lat=10&lon=20&start=2020-06-01&end=not-a-date",
		"/api/v1/climate/daily?lat=10&lon=20&start=2020-06-02&end=2020-06-01",
		"/api/v1/climate/daily?lat=10&lon=20&start=2020-06-01&end=2020-06-02&variables=bogus",
	} {
		req := httptest.NewRequest(http.MethodGet, target, nil)
		resp, err := app.Test(req)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("%s: expected status %d, got %d", target, http.StatusBadRequest, resp.StatusCode)
		}
	}
}

func TestDailyDispatchesQuery(t *testing.T) {
	stub := &stubQuerier{result: &climate.Result{
		RequestID: "test",
		Records: []climate.DailyRecord{{
			Date:     time.Date(2020, 6, 1, 0, 0, 0, 0, time.UTC),
			SourceID: "nasa_power",
			TempMean: climate.Float(21.5),
		}},
		Sources: []string{"nasa_power"},
	}}
	app := newTestApp(stub, nil)

	target := "/api/v1/climate/daily?lat=-22.9&lon=-43.2&start=2020-06-01&end=2020-06-02" +
		"&variables=temperature_mean,precipitation_sum&sources=nasa_power"
	resp, err := app.Test(httptest.NewRequest(http.MethodGet, target, nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.StatusCode)
	}

	if stub.got.Location.Lat != -22.9 || stub.got.Location.Lon != -43.2 {
		t.Fatalf("unexpected location: %+v", stub.got.Location)
	}
	if !stub.got.Range.Start.Equal(time.Date(2020, 6, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected range start: %v", stub.got.Range.Start)
	}
	if len(stub.got.Variables) != 2 || stub.got.Variables[0] != climate.VarTempMean {
		t.Fatalf("unexpected variables: %v", stub.got.Variables)
	}
	if len(stub.got.PreferredSources) != 1 || stub.got.PreferredSources[0] != "nasa_power" {
		t.Fatalf("unexpected sources: %v", stub.got.PreferredSources)
	}

	var body climate.Result
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("invalid response body: %v", err)
	}
	if len(body.Records) != 1 || body.Records[0].SourceID != "nasa_power" {
		t.Fatalf("unexpected body: %+v", body)
	}
}

func TestDailyMapsNoSourceToBadGateway(t *testing.T) {
	stub := &stubQuerier{err: climate.ErrNoSourceAvailable}
	app := newTestApp(stub, nil)

	target := "/api/v1/climate/daily?lat=10&lon=20&start=2020-06-01&end=2020-06-02"
	resp, err := app.Test(httptest.NewRequest(http.MethodGet, target, nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusBadGateway {
		t.Fatalf("expected status 502, got %d", resp.StatusCode)
	}
}

func TestDailyGeocodesCityCountry(t *testing.T) {
	orig := geocode
	defer func() { geocode = orig }()
	geocode = func(city, country string) (climate.Location, error) {
		if city != "Oslo" || country != "NO" {
			return climate.Location{}, errors.New("unexpected geocode input")
		}
		return climate.Location{Lat: 59.91, Lon: 10.75}, nil
	}

	stub := &stubQuerier{result: &climate.Result{RequestID: "test"}}
	app := newTestApp(stub, nil)

	target := "/api/v1/climate/daily?city=Oslo&country=NO&start=2020-06-01&end=2020-06-02"
	resp, err := app.Test(httptest.NewRequest(http.MethodGet, target, nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.StatusCode)
	}
	if stub.got.Location.Lat != 59.91 {
		t.Fatalf("geocoded location not dispatched: %+v", stub.got.Location)
	}
}

type descriptorOnlySource struct{ desc climate.SourceDescriptor }

func (s descriptorOnlySource) Name() string                         { return s.desc.ID }
func (s descriptorOnlySource) Descriptor() climate.SourceDescriptor { return s.desc }
func (s descriptorOnlySource) Fetch(context.Context, climate.Location, climate.DateRange, []climate.Variable) ([]climate.DailyRecord, error) {
	return nil, nil
}

func TestSourcesListing(t *testing.T) {
	usa := climate.USABBox
	app := newTestApp(&stubQuerier{}, []climate.Source{
		descriptorOnlySource{desc: climate.SourceDescriptor{
			ID: "nws_forecast", Resolution: climate.ResolutionHourly,
			Coverage: &usa, EndOffsetDays: 5, RequestsPerSecond: 5,
		}},
		descriptorOnlySource{desc: climate.SourceDescriptor{
			ID: "nasa_power", Resolution: climate.ResolutionDaily,
			EarliestDate: time.Date(1990, 1, 1, 0, 0, 0, 0, time.UTC), RequestsPerSecond: 1,
		}},
	})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/climate/sources", nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.StatusCode)
	}

	var body struct {
		Sources []sourceInfo `json:"sources"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("invalid response body: %v", err)
	}
	if len(body.Sources) != 2 {
		t.Fatalf("expected 2 sources, got %d", len(body.Sources))
	}
	if body.Sources[0].Coverage == nil || body.Sources[1].Coverage != nil {
		t.Fatalf("coverage must be present only for bounded sources: %+v", body.Sources)
	}
	if body.Sources[1].WindowStart != "1990-01-01" {
		t.Fatalf("unexpected window start: %s", body.Sources[1].WindowStart)
	}
}
