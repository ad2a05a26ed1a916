package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/angelassilviane/EVAONLINE/internal/climate"
)

type AppConfig struct {
	// ContactEmail goes into the User-Agent header; MET Norway and NWS
	// reject anonymous clients.
	ContactEmail string
	UserAgent    string

	// OpenMeteoAPIKey unlocks the commercial tier. Optional.
	OpenMeteoAPIKey string

	// GoogleAPIKey enables city/country geocoding in the HTTP API.
	// Optional; without it queries must carry coordinates.
	GoogleAPIKey string

	// HTTPTimeout bounds each outbound request to a weather API.
	HTTPTimeout time.Duration
	// QueryTimeout bounds one whole aggregation query.
	QueryTimeout time.Duration

	// MinSampleFraction is the hourly coverage below which a daily
	// aggregate is discarded.
	MinSampleFraction float64

	// RedisAddr empty means fallback-only caching.
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// In-process cache retention.
	CacheMaxEntries int

	// WarmInterval controls how often the scheduler refreshes the warm
	// locations; zero disables warming.
	WarmInterval  time.Duration
	WarmLocations []climate.Location

	Port string
}

// Load reads configuration from environment with sensible defaults.
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		log.Printf("INFO: No .env file found or error loading it: %v", err)
	}
	cfg := &AppConfig{}

	cfg.ContactEmail = getenvDefault("CONTACT_EMAIL", "contact@evaonline.local")
	cfg.UserAgent = fmt.Sprintf("EVAonline/1.0 (%s)", cfg.ContactEmail)

	cfg.OpenMeteoAPIKey = os.Getenv("OPENMETEO_API_KEY")
	cfg.GoogleAPIKey = os.Getenv("GOOGLE_API_KEY")

	timeout, err := time.ParseDuration(getenvDefault("HTTP_TIMEOUT", "10s"))
	if err != nil {
		return nil, fmt.Errorf("invalid HTTP_TIMEOUT: %w", err)
	}
	cfg.HTTPTimeout = timeout

	queryTimeout, err := time.ParseDuration(getenvDefault("QUERY_TIMEOUT", "30s"))
	if err != nil {
		return nil, fmt.Errorf("invalid QUERY_TIMEOUT: %w", err)
	}
	cfg.QueryTimeout = queryTimeout

	fraction, err := strconv.ParseFloat(getenvDefault("MIN_SAMPLE_FRACTION", "0.5"), 64)
	if err != nil || fraction <= 0 || fraction > 1 {
		return nil, fmt.Errorf("invalid MIN_SAMPLE_FRACTION: %q", getenvDefault("MIN_SAMPLE_FRACTION", "0.5"))
	}
	cfg.MinSampleFraction = fraction

	cfg.RedisAddr = os.Getenv("REDIS_ADDR")
	cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")
	cfg.RedisDB = getenvInt("REDIS_DB", 0)

	cfg.CacheMaxEntries = getenvInt("CACHE_MAX_ENTRIES", 1024)

	warmInterval, err := time.ParseDuration(getenvDefault("WARM_INTERVAL", "30m"))
	if err != nil {
		return nil, fmt.Errorf("invalid WARM_INTERVAL: %w", err)
	}
	cfg.WarmInterval = warmInterval

	locs, err := parseLocations(os.Getenv("WARM_LOCATIONS"))
	if err != nil {
		return nil, err
	}
	cfg.WarmLocations = locs

	cfg.Port = getenvDefault("PORT", "8080")

	return cfg, nil
}

// parseLocations reads "lat,lon;lat,lon" pairs.
func parseLocations(raw string) ([]climate.Location, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	var locs []climate.Location
	for _, pair := range strings.Split(raw, ";") {
		parts := strings.Split(strings.TrimSpace(pair), ",")
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid WARM_LOCATIONS entry %q", pair)
		}
		lat, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid latitude in %q: %w", pair, err)
		}
		lon, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid longitude in %q: %w", pair, err)
		}
		loc := climate.Location{Lat: lat, Lon: lon}
		if !loc.Valid() {
			return nil, fmt.Errorf("coordinates out of range in %q", pair)
		}
		locs = append(locs, loc)
	}
	return locs, nil
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return def
}
