package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Store drivers understood by the credential repository factory.
const (
	StoreDriverPostgres = "postgres"
	StoreDriverMongo    = "mongo"
	StoreDriverBolt     = "bolt"
	StoreDriverMemory   = "memory"
)

const defaultPesapalBaseURL = "https://pay.pesapal.com/v3/api"

// Config contains runtime configuration values.
type Config struct {
	Environment string
	ServiceName string
	HTTPPort    string
	RoutePrefix string

	PesapalBaseURL        string
	PesapalConsumerKey    string
	PesapalConsumerSecret string
	CallbackURL           string
	Currency              string
	CountryCode           string
	OrderDescription      string
	GatewayTimeout        time.Duration

	TokenLease          time.Duration
	TokenLifetime       time.Duration
	TokenRefreshTimeout time.Duration
	StoreTimeout        time.Duration

	StoreDriver   string
	DatabaseURL   string
	MongoURI      string
	MongoDatabase string
	BoltPath      string

	RateLimitRPM         int
	TelemetryEndpoint    string
	TelemetryInsecure    bool
	CORSAllowedOrigins   []string
	CORSAllowedMethods   []string
	CORSAllowedHeaders   []string
	CORSAllowCredentials bool
}

// Load reads configuration from environment variables with sane defaults.
func Load() (Config, error) {
	cfg := Config{
		Environment: getEnv("APP_ENV", "development"),
		ServiceName: getEnv("SERVICE_NAME", "smallbiznis-checkout"),
		HTTPPort:    getEnv("HTTP_PORT", getEnv("PORT", "8000")),
		RoutePrefix: strings.TrimRight(getEnv("ROUTE_PREFIX", "/api/pesapal"), "/"),

		PesapalBaseURL:        strings.TrimRight(getEnv("PESAPAL_BASE_URL", defaultPesapalBaseURL), "/"),
		PesapalConsumerKey:    os.Getenv("PESAPAL_CONSUMER_KEY"),
		PesapalConsumerSecret: os.Getenv("PESAPAL_CONSUMER_SECRET"),
		CallbackURL:           os.Getenv("PESAPAL_CALLBACK_URL"),
		Currency:              strings.ToUpper(getEnv("PESAPAL_CURRENCY", "KES")),
		CountryCode:           strings.ToUpper(getEnv("PESAPAL_COUNTRY_CODE", "KE")),
		OrderDescription:      getEnv("ORDER_DESCRIPTION", "Order Payment"),
		GatewayTimeout:        getDuration("GATEWAY_TIMEOUT", 15*time.Second),

		TokenLease:          getDuration("TOKEN_LEASE", 55*time.Minute),
		TokenLifetime:       getDuration("TOKEN_LIFETIME", time.Hour),
		TokenRefreshTimeout: getDuration("TOKEN_REFRESH_TIMEOUT", 30*time.Second),
		StoreTimeout:        getDuration("STORE_TIMEOUT", 5*time.Second),

		StoreDriver:   strings.ToLower(getEnv("STORE_DRIVER", StoreDriverPostgres)),
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		MongoURI:      os.Getenv("MONGO_URI"),
		MongoDatabase: getEnv("MONGO_DATABASE", "checkout"),
		BoltPath:      getEnv("BOLT_PATH", "checkout.db"),

		RateLimitRPM:         getInt("RATE_LIMIT_RPM", 600),
		TelemetryEndpoint:    os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		TelemetryInsecure:    getBool("OTEL_EXPORTER_OTLP_INSECURE", true),
		CORSAllowedOrigins:   getList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:5173"}),
		CORSAllowedMethods:   getList("CORS_ALLOWED_METHODS", []string{"GET", "HEAD", "PUT", "PATCH", "POST", "DELETE"}),
		CORSAllowedHeaders:   getList("CORS_ALLOWED_HEADERS", []string{"Authorization", "Content-Type"}),
		CORSAllowCredentials: getBool("CORS_ALLOW_CREDENTIALS", true),
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the settings that cannot be defaulted.
func (c Config) Validate() error {
	if c.PesapalConsumerKey == "" || c.PesapalConsumerSecret == "" {
		return fmt.Errorf("PESAPAL_CONSUMER_KEY and PESAPAL_CONSUMER_SECRET are required")
	}
	if c.CallbackURL == "" {
		return fmt.Errorf("PESAPAL_CALLBACK_URL is required")
	}
	if c.TokenLease <= 0 {
		return fmt.Errorf("TOKEN_LEASE must be positive")
	}
	if c.TokenLease >= c.TokenLifetime {
		return fmt.Errorf("TOKEN_LEASE (%s) must be shorter than TOKEN_LIFETIME (%s)", c.TokenLease, c.TokenLifetime)
	}

	switch c.StoreDriver {
	case StoreDriverPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for store driver %q", c.StoreDriver)
		}
	case StoreDriverMongo:
		if c.MongoURI == "" {
			return fmt.Errorf("MONGO_URI is required for store driver %q", c.StoreDriver)
		}
	case StoreDriverBolt:
		if c.BoltPath == "" {
			return fmt.Errorf("BOLT_PATH is required for store driver %q", c.StoreDriver)
		}
	case StoreDriverMemory:
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}

	return nil
}

func getEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return def
}

func getDuration(key string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok {
		d, err := time.ParseDuration(v)
		if err == nil {
			return d
		}
	}
	return def
}

func getInt(key string, def int) int {
	if v, ok := os.LookupEnv(key); ok {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return def
}

func getBool(key string, def bool) bool {
	if v, ok := os.LookupEnv(key); ok {
		switch strings.ToLower(v) {
		case "1", "true", "t", "yes", "y", "on":
			return true
		case "0", "false", "f", "no", "n", "off":
			return false
		}
	}
	return def
}

func getList(key string, def []string) []string {
	if v, ok := os.LookupEnv(key); ok {
		parts := strings.Split(v, ",")
		var cleaned []string
		for _, p := range parts {
			trimmed := strings.TrimSpace(p)
			if trimmed != "" {
				cleaned = append(cleaned, trimmed)
			}
		}
		if len(cleaned) > 0 {
			return cleaned
		}
	}
	return def
}
