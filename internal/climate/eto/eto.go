// Package eto computes daily reference evapotranspiration with the
// FAO-56 Penman-Monteith equation (Allen et al. 1998, Eq. 6). Pure
// functions, no I/O.
package eto

import (
	"errors"
	"math"
	"time"
)

// ErrIncompleteInput is returned when a required variable is missing.
var ErrIncompleteInput = errors.New("eto: incomplete input")

// Input holds the daily variables the equation needs. Wind2m is the
// mean wind speed at the 2 m reference height; Radiation is daily
// shortwave radiation in MJ/m². Elevation defaults to sea level when
// the source does not report it.
type Input struct {
	Date      time.Time
	Latitude  float64 // decimal degrees
	Elevation float64 // meters
	TempMax   float64 // °C
	TempMin   float64 // °C
	TempMean  float64 // °C
	RHMean    float64 // %
	Wind2m    float64 // m/s
	Radiation float64 // MJ/m²/day
}

const (
	albedo          = 0.23     // reference grass surface
	stefanBoltzmann = 4.903e-9 // MJ K⁻⁴ m⁻² day⁻¹
	solarConstant   = 0.0820   // MJ m⁻² min⁻¹
)

// Daily returns ETo in mm/day, never negative.
func Daily(in Input) (float64, error) {
	if in.Date.IsZero() {
		return 0, ErrIncompleteInput
	}
	if in.Latitude < -90 || in.Latitude > 90 {
		return 0, errors.New("eto: latitude out of range")
	}

	// Vapor pressure terms (kPa).
	es := (saturationVaporPressure(in.TempMax) + saturationVaporPressure(in.TempMin)) / 2
	ea := es * in.RHMean / 100
	vpd := es - ea
	if vpd < 0 {
		vpd = 0
	}

	// Slope of the saturation curve and psychrometric constant.
	slope := 4098 * saturationVaporPressure(in.TempMean) /
		math.Pow(in.TempMean+237.3, 2)
	pressure := 101.3 * math.Pow((293-0.0065*in.Elevation)/293, 5.26)
	gamma := 0.000665 * pressure

	// Net radiation: shortwave in minus longwave out.
	ra := extraterrestrialRadiation(in.Latitude, in.Date.YearDay())
	rso := (0.75 + 2e-5*in.Elevation) * ra
	rns := (1 - albedo) * in.Radiation

	rnl := 0.0
	if rso > 0 {
		relShortwave := in.Radiation / rso
		if relShortwave > 1 {
			relShortwave = 1
		}
		tmaxK := in.TempMax + 273.16
		tminK := in.TempMin + 273.16
		rnl = stefanBoltzmann *
			(math.Pow(tmaxK, 4)+math.Pow(tminK, 4))/2 *
			(0.34 - 0.14*math.Sqrt(ea)) *
			(1.35*relShortwave - 0.35)
	}
	rn := rns - rnl

	// Soil heat flux is ~0 for daily steps.
	const g = 0.0

	num := 0.408*slope*(rn-g) + gamma*(900/(in.TempMean+273))*in.Wind2m*vpd
	den := slope + gamma*(1+0.34*in.Wind2m)
	eto := num / den
	if eto < 0 {
		eto = 0
	}
	return eto, nil
}

// saturationVaporPressure is FAO-56 Eq. 11 (kPa) for temperature in °C.
func saturationVaporPressure(t float64) float64 {
	return 0.6108 * math.Exp(17.27*t/(t+237.3))
}

// extraterrestrialRadiation is FAO-56 Eq. 21 (MJ/m²/day) for a latitude
// and day of year.
func extraterrestrialRadiation(latitude float64, yearDay int) float64 {
	j := float64(yearDay)
	phi := latitude * math.Pi / 180
	dr := 1 + 0.033*math.Cos(2*math.Pi*j/365)
	decl := 0.409 * math.Sin(2*math.Pi*j/365-1.39)

	x := -math.Tan(phi) * math.Tan(decl)
	// Polar day/night: clamp the sunset hour angle argument.
	if x < -1 {
		x = -1
	}
	if x > 1 {
		x = 1
	}
	ws := math.Acos(x)

	ra := (24 * 60 / math.Pi) * solarConstant * dr *
		(ws*math.Sin(phi)*math.Sin(decl) + math.Cos(phi)*math.Cos(decl)*math.Sin(ws))
	if ra < 0 {
		return 0
	}
	return ra
}
