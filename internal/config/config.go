// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes application settings
// such as server timeouts, logging, database paths, rate limiting, payment
// gateway credentials, and the booking policy (capacity, pricing, hold TTL).
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

// CORSConfig defines Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME (e.g. "go-booking-backend")
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// StripeConfig holds payment gateway credentials.
type StripeConfig struct {
	SecretKey     string // STRIPE_SECRET_KEY
	WebhookSecret string // STRIPE_WEBHOOK_SECRET
}

// BookingConfig holds the booking policy: service times, capacity, pricing,
// and the hold/expiry windows that drive the concurrency engine.
type BookingConfig struct {
	Timezone         string        // IANA zone used to compute "today"
	ServiceTimes     []string      // bookable seating times, HH:MM
	ClosedWeekdays   []int         // weekdays with no service, Sunday = 0
	CapacityTotal    int           // default seats per slot
	MinGuests        int           // smallest bookable party
	MaxGuests        int           // largest bookable party
	Currency         string        // ISO currency code, lowercase
	PricePerPerson   int64         // minor units per guest
	DepositBps       int           // deposit share of total in basis points
	LimitedThreshold int           // remaining <= threshold renders "limited"
	RangeMaxDays     int           // availability range query cap
	HoldTTL          time.Duration // payment hold window per reservation
	SweepInterval    time.Duration // expiry sweeper cadence
	SweepBatchSize   int           // lapsed holds reclaimed per sweep
	LateConfirmGrace time.Duration // paid events later than this past hold expiry go to manual review
	ReferencePrefix  string        // reference code prefix, e.g. "AK-"
	FrontendOrigin   string        // origin used to build gateway redirect URLs
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string        // just the number
	ReadTimeout       time.Duration // e.g. 15s
	ReadHeaderTimeout time.Duration // e.g. 10s
	WriteTimeout      time.Duration // e.g. 20s
	IdleTimeout       time.Duration // e.g. 60s
	MaxHeaderBytes    int           // bytes
	GinMode           string        // debug|release|test

	// Logging
	LogLevel    string // debug|info|warn|error|fatal|panic
	LogPretty   bool   // pretty console logs in dev
	APIBasePath string // base path for API routes

	// App
	DBPath string // SQLite path

	// Rate limiting
	RateRPS   float64 // tokens per second (>= 0)
	RateBurst int     // bucket size (>= 1)

	// Web protection
	CORS CORSConfig

	// Idempotency
	IdempotencyTTL time.Duration // how long a given Idempotency-Key is valid

	// Domain
	Booking BookingConfig
	Stripe  StripeConfig

	// Observability
	OTEL OTELConfig
}

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration from environment variables,
// applies defaults, normalizes values, and validates the result.
func Load() (Config, error) {
	cfg := Config{
		// Server
		Port:              getenv("PORT", "8080"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 20*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		// Logging
		LogLevel:    strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty:   getbool("LOG_PRETTY", false),
		APIBasePath: normalizeBasePath(getenv("API_BASE_PATH", "/api/v1")),

		// App
		DBPath: getenv("DB_PATH", "app.db"),

		// Rate limiting
		RateRPS:   getfloat("RATE_RPS", 5.0),
		RateBurst: getint("RATE_BURST", 10),

		// Web protection
		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),
		},

		// Idempotency
		IdempotencyTTL: getdur("IDEMPOTENCY_TTL", 24*time.Hour),

		// Domain
		Booking: BookingConfig{
			Timezone:         getenv("TIMEZONE", "UTC"),
			ServiceTimes:     splitCSV(getenv("SERVICE_TIMES", "18:30,19:00,20:00,21:30")),
			ClosedWeekdays:   splitCSVInts(getenv("CLOSED_WEEKDAYS", "0")),
			CapacityTotal:    getint("CAPACITY_TOTAL", 8),
			MinGuests:        getint("MIN_GUESTS", 1),
			MaxGuests:        getint("MAX_GUESTS", 8),
			Currency:         strings.ToLower(getenv("CURRENCY", "usd")),
			PricePerPerson:   int64(getint("PRICE_PER_PERSON_AMOUNT", 18000)),
			DepositBps:       getint("DEPOSIT_BPS", 5000),
			LimitedThreshold: getint("LIMITED_THRESHOLD", 2),
			RangeMaxDays:     getint("AVAILABILITY_RANGE_MAX_DAYS", 93),
			HoldTTL:          getdur("HOLD_TTL", 15*time.Minute),
			SweepInterval:    getdur("SWEEP_INTERVAL", 30*time.Second),
			SweepBatchSize:   getint("SWEEP_BATCH_SIZE", 200),
			LateConfirmGrace: getdur("LATE_CONFIRM_GRACE", 24*time.Hour),
			ReferencePrefix:  getenv("REFERENCE_PREFIX", "AK-"),
			FrontendOrigin:   strings.TrimRight(getenv("FRONTEND_ORIGIN", "http://localhost:3000"), "/"),
		},
		Stripe: StripeConfig{
			SecretKey:     getenv("STRIPE_SECRET_KEY", ""),
			WebhookSecret: getenv("STRIPE_WEBHOOK_SECRET", ""),
		},

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "go-booking-backend"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	// --- normalization ---
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}

	// --- validation ---
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return cfg, errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if strings.TrimSpace(cfg.Port) == "" {
		return cfg, errors.New("PORT must not be empty")
	}
	if cfg.ReadTimeout <= 0 || cfg.ReadHeaderTimeout <= 0 || cfg.WriteTimeout <= 0 || cfg.IdleTimeout <= 0 {
		return cfg, errors.New("timeouts must be positive durations")
	}
	if cfg.MaxHeaderBytes <= 0 {
		return cfg, errors.New("MAX_HEADER_BYTES must be > 0")
	}
	if strings.TrimSpace(cfg.DBPath) == "" {
		return cfg, errors.New("DB_PATH must not be empty")
	}
	if cfg.RateRPS < 0 {
		return cfg, errors.New("RATE_RPS must be >= 0")
	}
	if cfg.RateBurst < 1 {
		return cfg, errors.New("RATE_BURST must be >= 1")
	}
	if cfg.IdempotencyTTL <= 0 {
		return cfg, errors.New("IDEMPOTENCY_TTL must be > 0")
	}
	if err := validateBooking(cfg.Booking); err != nil {
		return cfg, err
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return cfg, errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}

	return cfg, nil
}

// validateBooking checks the booking policy for internally consistent values.
func validateBooking(b BookingConfig) error {
	if len(b.ServiceTimes) == 0 {
		return errors.New("SERVICE_TIMES must list at least one time")
	}
	for _, wd := range b.ClosedWeekdays {
		if wd < 0 || wd > 6 {
			return errors.New("CLOSED_WEEKDAYS entries must be in [0,6]")
		}
	}
	if b.CapacityTotal < 0 {
		return errors.New("CAPACITY_TOTAL must be >= 0")
	}
	if b.MinGuests < 1 || b.MaxGuests < b.MinGuests {
		return errors.New("MIN_GUESTS must be >= 1 and MAX_GUESTS >= MIN_GUESTS")
	}
	if strings.TrimSpace(b.Currency) == "" {
		return errors.New("CURRENCY must not be empty")
	}
	if b.PricePerPerson < 0 {
		return errors.New("PRICE_PER_PERSON_AMOUNT must be >= 0")
	}
	if b.DepositBps < 0 || b.DepositBps > 10000 {
		return errors.New("DEPOSIT_BPS must be in [0,10000]")
	}
	if b.LimitedThreshold < 0 {
		return errors.New("LIMITED_THRESHOLD must be >= 0")
	}
	if b.RangeMaxDays < 1 || b.RangeMaxDays > 366 {
		return errors.New("AVAILABILITY_RANGE_MAX_DAYS must be in [1,366]")
	}
	if b.HoldTTL <= 0 {
		return errors.New("HOLD_TTL must be > 0")
	}
	if b.SweepInterval <= 0 {
		return errors.New("SWEEP_INTERVAL must be > 0")
	}
	if b.SweepBatchSize < 1 {
		return errors.New("SWEEP_BATCH_SIZE must be >= 1")
	}
	if b.LateConfirmGrace < 0 {
		return errors.New("LATE_CONFIRM_GRACE must be >= 0")
	}
	return nil
}

// ---- helpers (no external deps) ----

func getenv(k, def string) string {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		return v
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getint(k string, def int) int {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return def
}

func getdur(k string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

func splitCSVInts(s string) []int {
	var out []int
	for _, p := range splitCSV(s) {
		if n, err := strconv.Atoi(p); err == nil {
			out = append(out, n)
		}
	}
	return out
}

// normalizeBasePath ensures leading '/' and strips trailing '/' (except root).
func normalizeBasePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 && strings.HasSuffix(p, "/") {
		p = strings.TrimRight(p, "/")
	}
	return p
}
