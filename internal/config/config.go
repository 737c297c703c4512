// Package config loads service configuration from the environment.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the AgroShakti backend.
type Config struct {
	Host          string
	Port          int
	Database      DatabaseConfig
	CORSOrigins   []string
	Log           LogConfig
	Telemetry     TelemetryConfig
	Advisory      AdvisoryConfig
	ProvidersFile string
	APITokens     string
	Translate     TranslateConfig
}

type DatabaseConfig struct {
	Driver string // sqlite or postgres
	DSN    string
}

type LogConfig struct {
	Level  string
	Pretty bool
}

type TelemetryConfig struct {
	Enabled      bool
	OTLPEndpoint string
	Insecure     bool
	ServiceName  string
	SampleRatio  float64 // share of root traces kept, 0..1
}

type AdvisoryConfig struct {
	CureMode         string
	FallbackDeadline time.Duration // zero disables the whole-chain budget
}

type TranslateConfig struct {
	URL    string
	APIKey string
}

// Load reads configuration from environment variables with defaults.
func Load() *Config {
	return LoadFrom(os.Getenv)
}

// LoadFrom is Load with an injectable environment lookup.
func LoadFrom(getenv func(string) string) *Config {
	e := env{getenv: getenv}
	return &Config{
		Host: e.str("HOST", "127.0.0.1"),
		Port: e.integer("PORT", 5000),
		Database: DatabaseConfig{
			Driver: strings.ToLower(e.str("AGRO_DB_DRIVER", "sqlite")),
			DSN:    e.str("AGRO_DB_DSN", ""),
		},
		CORSOrigins: e.list("CORS_ORIGIN", "http://localhost:3000"),
		Log: LogConfig{
			Level:  e.str("AGRO_LOG_LEVEL", "info"),
			Pretty: e.boolean("AGRO_LOG_PRETTY", false),
		},
		Telemetry: TelemetryConfig{
			Enabled:      e.boolean("OTEL_ENABLED", false),
			OTLPEndpoint: e.str("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:     e.boolean("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName:  e.str("OTEL_SERVICE_NAME", "agroshakti-backend"),
			SampleRatio:  e.fraction("OTEL_TRACES_SAMPLER_ARG", 1),
		},
		Advisory: AdvisoryConfig{
			CureMode:         e.str("AGRO_CURE_MODE", "chat"),
			FallbackDeadline: e.duration("AGRO_FALLBACK_DEADLINE", 0),
		},
		ProvidersFile: e.str("AGRO_PROVIDERS_FILE", ""),
		APITokens:     e.str("AGRO_API_TOKENS", ""),
		Translate: TranslateConfig{
			URL:    e.str("TRANSLATE_URL", "https://libretranslate.de/translate"),
			APIKey: e.str("TRANSLATE_API_KEY", ""),
		},
	}
}

// Addr is the listen address.
func (c *Config) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}

type env struct {
	getenv func(string) string
}

func (e env) str(key, fallback string) string {
	if v := strings.TrimSpace(e.getenv(key)); v != "" {
		return v
	}
	return fallback
}

func (e env) integer(key string, fallback int) int {
	if v := strings.TrimSpace(e.getenv(key)); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func (e env) boolean(key string, fallback bool) bool {
	if v := strings.TrimSpace(e.getenv(key)); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

// duration accepts Go durations ("45s") or bare milliseconds ("45000").
func (e env) duration(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(e.getenv(key))
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil && d >= 0 {
		return d
	}
	if ms, err := strconv.Atoi(v); err == nil && ms >= 0 {
		return time.Duration(ms) * time.Millisecond
	}
	return fallback
}

// fraction reads a value in [0, 1]; anything else keeps the fallback.
func (e env) fraction(key string, fallback float64) float64 {
	if v := strings.TrimSpace(e.getenv(key)); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f >= 0 && f <= 1 {
			return f
		}
	}
	return fallback
}

func (e env) list(key, fallback string) []string {
	var out []string
	for _, item := range strings.Split(e.str(key, fallback), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
