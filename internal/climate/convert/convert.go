// Package convert holds the pure unit conversions and daily aggregation
// reducers shared by the source adapters.
package convert

// FahrenheitToCelsius converts a temperature reported in °F.
func FahrenheitToCelsius(f float64) float64 {
	return (f - 32) * 5 / 9
}

// MphToMetersPerSecond converts a wind speed reported in miles per hour.
func MphToMetersPerSecond(v float64) float64 {
	return v * 0.44704
}

// KmhToMetersPerSecond converts a wind speed reported in km/h.
func KmhToMetersPerSecond(v float64) float64 {
	return v / 3.6
}

// InchesToMillimeters converts a precipitation depth reported in inches.
func InchesToMillimeters(v float64) float64 {
	return v * 25.4
}

// MillimetersToInches converts a precipitation depth reported in mm.
func MillimetersToInches(v float64) float64 {
	return v / 25.4
}

// Wind10mTo2m converts a wind speed measured at the 10 m meteorological
// height to the 2 m FAO-56 reference height (FAO-56 Eq. 47 with z=10m).
func Wind10mTo2m(v float64) float64 {
	return v * 0.748
}
