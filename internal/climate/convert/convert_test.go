package convert

import (
	"math"
	"testing"
	"time"
)

const epsilon = 1e-9

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < epsilon
}

func TestTemperatureConversion(t *testing.T) {
	cases := []struct {
		f, c float64
	}{
		{32, 0},
		{212, 100},
		{-40, -40},
		{68, 20},
	}
	for _, tc := range cases {
		if got := FahrenheitToCelsius(tc.f); !almostEqual(got, tc.c) {
			t.Errorf("FahrenheitToCelsius(%v) = %v, want %v", tc.f, got, tc.c)
		}
	}
}

func TestWindConversion(t *testing.T) {
	if got := MphToMetersPerSecond(10); !almostEqual(got, 4.4704) {
		t.Errorf("MphToMetersPerSecond(10) = %v, want 4.4704", got)
	}
	if got := KmhToMetersPerSecond(36); !almostEqual(got, 10) {
		t.Errorf("KmhToMetersPerSecond(36) = %v, want 10", got)
	}
	if got := Wind10mTo2m(1); !almostEqual(got, 0.748) {
		t.Errorf("Wind10mTo2m(1) = %v, want 0.748", got)
	}
}

func TestPrecipitationConversion(t *testing.T) {
	if got := InchesToMillimeters(1); !almostEqual(got, 25.4) {
		t.Errorf("InchesToMillimeters(1) = %v, want 25.4", got)
	}
	if got := MillimetersToInches(25.4); !almostEqual(got, 1) {
		t.Errorf("MillimetersToInches(25.4) = %v, want 1", got)
	}
}

// Aggregating 24 identical hourly temperatures must yield mean, max and
// min all equal to that value.
func TestIdenticalHourlySamples(t *testing.T) {
	base := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)
	samples := make([]Sample, 0, 24)
	for h := 0; h < 24; h++ {
		samples = append(samples, Sample{Time: base.Add(time.Duration(h) * time.Hour), Value: 17.5})
	}

	partition := PartitionDaily(samples)
	if len(partition) != 1 {
		t.Fatalf("expected 1 day, got %d", len(partition))
	}
	values := partition[base]
	if len(values) != 24 {
		t.Fatalf("expected 24 samples for %s, got %d", base, len(values))
	}

	if m := Mean(values); m == nil || !almostEqual(*m, 17.5) {
		t.Errorf("mean = %v, want 17.5", m)
	}
	if m := Max(values); m == nil || !almostEqual(*m, 17.5) {
		t.Errorf("max = %v, want 17.5", m)
	}
	if m := Min(values); m == nil || !almostEqual(*m, 17.5) {
		t.Errorf("min = %v, want 17.5", m)
	}
}

func TestPartitionDailyUsesUTCDayBoundary(t *testing.T) {
	loc := time.FixedZone("UTC+5", 5*3600)
	// 02:00 local on March 11 is 21:00 UTC on March 10.
	s := Sample{Time: time.Date(2024, 3, 11, 2, 0, 0, 0, loc), Value: 1}
	partition := PartitionDaily([]Sample{s})

	want := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)
	if _, ok := partition[want]; !ok {
		t.Fatalf("sample not partitioned into UTC day %s: %v", want, partition)
	}
}

func TestReducersOnEmptyInput(t *testing.T) {
	if Mean(nil) != nil || Sum(nil) != nil || Max(nil) != nil || Min(nil) != nil {
		t.Error("reducers must return nil for empty input, never zero")
	}
}

func TestMeanIfComplete(t *testing.T) {
	one := []float64{12.0}
	if got := MeanIfComplete(one, 24, 0.5); got != nil {
		t.Errorf("1 of 24 samples must be insufficient, got %v", *got)
	}
	twelve := make([]float64, 12)
	for i := range twelve {
		twelve[i] = 3
	}
	if got := MeanIfComplete(twelve, 24, 0.5); got == nil || !almostEqual(*got, 3) {
		t.Errorf("12 of 24 samples at 0.5 fraction should aggregate, got %v", got)
	}
}

func TestSumAndExtrema(t *testing.T) {
	values := []float64{1.5, -2, 4, 0}
	if s := Sum(values); s == nil || !almostEqual(*s, 3.5) {
		t.Errorf("sum = %v, want 3.5", s)
	}
	if m := Max(values); m == nil || !almostEqual(*m, 4) {
		t.Errorf("max = %v, want 4", m)
	}
	if m := Min(values); m == nil || !almostEqual(*m, -2) {
		t.Errorf("min = %v, want -2", m)
	}
}
