package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Environment string
	APIKey      string
	BaseURL     string

	Locale     string
	Timezone   string
	Platform   string
	AppVersion string

	// FlushDelay is the coalescing delay between an event enqueue and its
	// delivery attempt.
	FlushDelay time.Duration
	// EventsPerSecond caps delivery throughput; zero disables pacing.
	EventsPerSecond float64
	// RedirectDelay is the pause between a confirmed payment and the
	// success navigation.
	RedirectDelay time.Duration
	// BaseSuccessURL is the computed redirect target's prefix; the deep
	// link is appended to it.
	BaseSuccessURL string

	StripeSecretKey string
	RedisURL        string
}

func Load() (*Config, error) {
	cfg := &Config{
		Environment:     getEnv("PWK_ENV", "development"),
		APIKey:          os.Getenv("PWK_API_KEY"),
		BaseURL:         os.Getenv("PWK_BASE_URL"),
		Locale:          getEnv("PWK_LOCALE", "en"),
		Timezone:        getEnv("PWK_TIMEZONE", "UTC"),
		Platform:        getEnv("PWK_PLATFORM", "web"),
		AppVersion:      getEnv("PWK_APP_VERSION", "0.0.0"),
		FlushDelay:      getDuration("PWK_FLUSH_DELAY", 500*time.Millisecond),
		EventsPerSecond: getFloat("PWK_EVENTS_PER_SECOND", 10),
		RedirectDelay:   getDuration("PWK_REDIRECT_DELAY", 3*time.Second),
		BaseSuccessURL:  getEnv("PWK_BASE_SUCCESS_URL", ""),
		StripeSecretKey: os.Getenv("STRIPE_API_KEY"),
		RedisURL:        os.Getenv("REDIS_URL"),
	}

	if cfg.APIKey == "" || cfg.BaseURL == "" {
		return nil, fmt.Errorf("missing required environment variables PWK_API_KEY / PWK_BASE_URL")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return fallback
}

func getFloat(key string, fallback float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return fallback
}
