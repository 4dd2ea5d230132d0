package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
type Config struct {
	Port     string
	Env      string
	LogLevel string
	LogFile  string // empty means stdout only
	RedisURL string // optional shared rate-limit backend

	// Chat store
	MaxMessages   int
	HeartbeatTTL  time.Duration
	SweepInterval time.Duration

	// Rate limiting, off while RateLimitRPS is 0
	RateLimitRPS       float64
	RateLimitBurst     int
	RateLimitWhitelist []string // IPs or CIDRs exempt from rate limiting
}

// Load reads configuration from environment variables.
// In development, it loads from .env file if present.
func Load() *Config {
	// Load .env file if it exists (for development)
	_ = godotenv.Load()

	cfg := &Config{
		Port:           getEnv("PORT", "3001"),
		Env:            getEnv("ENV", "development"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		LogFile:        os.Getenv("LOG_FILE"),
		RedisURL:       os.Getenv("REDIS_URL"),
		MaxMessages:    getInt("MAX_MESSAGES", 1000),
		HeartbeatTTL:   getDuration("HEARTBEAT_TTL", 10*time.Second),
		SweepInterval:  getDuration("SWEEP_INTERVAL", 5*time.Second),
		RateLimitRPS:   getFloat("RATE_LIMIT_RPS", 0),
		RateLimitBurst: getInt("RATE_LIMIT_BURST", 40),
	}

	// Parse whitelist (comma-separated IPs or CIDRs)
	if whitelist := os.Getenv("RATE_LIMIT_WHITELIST"); whitelist != "" {
		for _, entry := range strings.Split(whitelist, ",") {
			entry = strings.TrimSpace(entry)
			if entry != "" {
				cfg.RateLimitWhitelist = append(cfg.RateLimitWhitelist, entry)
			}
		}
	}

	return cfg
}

// RateLimitEnabled reports whether requests are rate limited.
func (c *Config) RateLimitEnabled() bool {
	return c.RateLimitRPS > 0
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	if n, err := strconv.Atoi(os.Getenv(key)); err == nil && n > 0 {
		return n
	}
	return defaultValue
}

func getFloat(key string, defaultValue float64) float64 {
	if f, err := strconv.ParseFloat(os.Getenv(key), 64); err == nil && f >= 0 {
		return f
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if d, err := time.ParseDuration(os.Getenv(key)); err == nil && d > 0 {
		return d
	}
	return defaultValue
}
