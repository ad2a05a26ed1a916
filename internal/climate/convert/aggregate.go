package convert

import (
	"sort"
	"time"
)

// Sample is one timestamped reading from an hourly source.
type Sample struct {
	Time  time.Time
	Value float64
}

// DefaultMinFraction is the minimum share of expected samples a day must
// have before a mean is trusted. Averaging 1 of 24 hourly readings into
// a "daily mean" is worse than reporting the value as missing.
const DefaultMinFraction = 0.5

// PartitionDaily groups samples by UTC calendar day. The day boundary is
// fixed at UTC for every source: five of the six upstream APIs deliver
// UTC timestamps, and a single convention keeps precipitation sums and
// temperature extrema comparable across sources.
func PartitionDaily(samples []Sample) map[time.Time][]float64 {
	out := make(map[time.Time][]float64)
	for _, s := range samples {
		t := s.Time.UTC()
		day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
		out[day] = append(out[day], s.Value)
	}
	return out
}

// Days returns the day keys of a partition in ascending order.
func Days(partition map[time.Time][]float64) []time.Time {
	keys := make([]time.Time, 0, len(partition))
	for k := range partition {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Before(keys[j]) })
	return keys
}

// Complete reports whether n samples satisfy the minimum fraction of the
// expected count for one day.
func Complete(n, expected int, minFraction float64) bool {
	if expected <= 0 {
		return n > 0
	}
	if minFraction <= 0 {
		minFraction = DefaultMinFraction
	}
	return float64(n) >= minFraction*float64(expected)
}

// Mean returns the arithmetic mean, or nil for an empty slice.
func Mean(values []float64) *float64 {
	if len(values) == 0 {
		return nil
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	m := sum / float64(len(values))
	return &m
}

// Sum returns the cumulative sum, or nil for an empty slice.
func Sum(values []float64) *float64 {
	if len(values) == 0 {
		return nil
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return &sum
}

// Max returns the maximum, or nil for an empty slice.
func Max(values []float64) *float64 {
	if len(values) == 0 {
		return nil
	}
	m := values[0]
	for _, v := range values[1:] {
		if v > m {
			m = v
		}
	}
	return &m
}

// Min returns the minimum, or nil for an empty slice.
func Min(values []float64) *float64 {
	if len(values) == 0 {
		return nil
	}
	m := values[0]
	for _, v := range values[1:] {
		if v < m {
			m = v
		}
	}
	return &m
}

// MeanIfComplete is Mean guarded by the minimum-sample check.
func MeanIfComplete(values []float64, expected int, minFraction float64) *float64 {
	if !Complete(len(values), expected, minFraction) {
		return nil
	}
	return Mean(values)
}
