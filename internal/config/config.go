package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// DefaultGeocoderURL is the public ArcGIS World geocoding endpoint.
const DefaultGeocoderURL = "https://geocode.arcgis.com/arcgis/rest/services/World/GeocodeServer/findAddressCandidates"

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Location is the timezone that defines "today" for coupon windows.
	Location *time.Location

	DistrictsPath string

	// ArcGIS geocoding configuration.
	GeocoderURL      string
	GeocoderToken    string
	GeocoderTimeout  time.Duration
	GeocodeCacheSize int

	// Optional shared geocode cache.
	RedisURL        string
	GeocodeRedisTTL time.Duration

	// Coupon dataset sources, tried in this order: remote spreadsheet,
	// remote CSV, local spreadsheet, local CSV.
	CouponsRemoteXLSXURL  string
	CouponsRemoteCSVURL   string
	CouponsLocalXLSXPath  string
	CouponsLocalCSVPath   string
	CouponFetchTimeout    time.Duration
	CouponCacheTTL        time.Duration
	CouponRefreshSchedule string

	UploadAPIKey   string
	UploadMaxBytes int64

	// Optional decision event stream.
	KafkaBrokers        []string
	KafkaDecisionsTopic string
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	loc, err := time.LoadLocation(sharedcfg.EnvOrDefault("TIMEZONE", "America/Los_Angeles"))
	if err != nil {
		return nil, fmt.Errorf("invalid TIMEZONE: %w", err)
	}

	geocoderTimeout, err := parseDuration("GEOCODER_TIMEOUT", "15s")
	if err != nil {
		return nil, err
	}
	redisTTL, err := parseDuration("GEOCODE_REDIS_TTL", "24h")
	if err != nil {
		return nil, err
	}
	fetchTimeout, err := parseDuration("COUPON_FETCH_TIMEOUT", "10s")
	if err != nil {
		return nil, err
	}
	cacheTTL, err := parseDuration("COUPON_CACHE_TTL", "300s")
	if err != nil {
		return nil, err
	}

	cacheSize, err := parsePositiveInt("GEOCODE_CACHE_SIZE", 1000)
	if err != nil {
		return nil, err
	}
	maxBytes, err := parsePositiveInt("UPLOAD_MAX_BYTES", 10<<20)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,
		Location:        loc,

		DistrictsPath: sharedcfg.EnvOrDefault("DISTRICTS_PATH", "data/CDTFA_TaxDistricts.geojson"),

		GeocoderURL:      sharedcfg.EnvOrDefault("GEOCODER_URL", DefaultGeocoderURL),
		GeocoderToken:    os.Getenv("GEOCODER_TOKEN"),
		GeocoderTimeout:  geocoderTimeout,
		GeocodeCacheSize: cacheSize,

		RedisURL:        os.Getenv("REDIS_URL"),
		GeocodeRedisTTL: redisTTL,

		CouponsRemoteXLSXURL:  os.Getenv("COUPONS_REMOTE_XLSX_URL"),
		CouponsRemoteCSVURL:   os.Getenv("COUPONS_REMOTE_CSV_URL"),
		CouponsLocalXLSXPath:  sharedcfg.EnvOrDefault("COUPONS_LOCAL_XLSX_PATH", "data/coupons.xlsx"),
		CouponsLocalCSVPath:   sharedcfg.EnvOrDefault("COUPONS_LOCAL_CSV_PATH", "data/coupons.csv"),
		CouponFetchTimeout:    fetchTimeout,
		CouponCacheTTL:        cacheTTL,
		CouponRefreshSchedule: os.Getenv("COUPON_REFRESH_SCHEDULE"),

		UploadAPIKey:   os.Getenv("UPLOAD_API_KEY"),
		UploadMaxBytes: int64(maxBytes),

		KafkaBrokers:        sharedcfg.ParseBrokers(os.Getenv("KAFKA_BROKERS")),
		KafkaDecisionsTopic: sharedcfg.EnvOrDefault("KAFKA_DECISIONS_TOPIC", "jurisdiction-decisions"),
	}

	return cfg, nil
}

// PublishDecisions reports whether decision events should go to Kafka.
func (c *Config) PublishDecisions() bool {
	return len(c.KafkaBrokers) > 0
}

func parseDuration(key, fallback string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, fallback))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

func parsePositiveInt(key string, fallback int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return n, nil
}
