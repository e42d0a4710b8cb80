package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/dgnsrekt/crosshair_agent/internal/crosshair"
)

// Config holds all configuration for the crosshair agent.
type Config struct {
	// CDP connection settings
	CDPAddress string
	CDPPort    int

	// Tab matching
	TabURLFilter string

	// Evaluation behavior
	EvalTimeoutMS int

	// Label placement overrides, in pixels
	DateOffsetY   int
	PriceOffsetX  int
	PriceOffsetY  int
	VolumeOffsetX int
	VolumeOffsetY int

	// Browser launch settings
	LaunchBrowser bool
	StartURL      string
	ProfileDir    string
	Headless      bool

	// Logging
	LogLevel string
	LogFile  string
}

// Load reads configuration from environment variables and optional .env file.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	}

	def := crosshair.DefaultOffsets()
	cfg := &Config{
		CDPAddress:    getEnvOrDefault("CHROMIUM_CDP_ADDRESS", "127.0.0.1"),
		CDPPort:       getEnvIntOrDefault("CHROMIUM_CDP_PORT", 9220),
		TabURLFilter:  getEnvOrDefault("CROSSHAIR_TAB_URL_FILTER", "chart"),
		EvalTimeoutMS: getEnvIntOrDefault("CROSSHAIR_EVAL_TIMEOUT_MS", 5000),
		DateOffsetY:   getEnvIntOrDefault("CROSSHAIR_DATE_OFFSET_Y", int(def.DateY)),
		PriceOffsetX:  getEnvIntOrDefault("CROSSHAIR_PRICE_OFFSET_X", int(def.PriceX)),
		PriceOffsetY:  getEnvIntOrDefault("CROSSHAIR_PRICE_OFFSET_Y", int(def.PriceY)),
		VolumeOffsetX: getEnvIntOrDefault("CROSSHAIR_VOLUME_OFFSET_X", int(def.VolumeX)),
		VolumeOffsetY: getEnvIntOrDefault("CROSSHAIR_VOLUME_OFFSET_Y", int(def.VolumeY)),
		LaunchBrowser: getEnvBoolOrDefault("CROSSHAIR_LAUNCH_BROWSER", false),
		StartURL:      getEnvOrDefault("CROSSHAIR_START_URL", ""),
		ProfileDir:    getEnvOrDefault("CROSSHAIR_PROFILE_DIR", "./browser_profile"),
		Headless:      getEnvBoolOrDefault("CROSSHAIR_HEADLESS", false),
		LogLevel:      getEnvOrDefault("CROSSHAIR_LOG_LEVEL", "info"),
		LogFile:       getEnvOrDefault("CROSSHAIR_LOG_FILE", "logs/crosshair_agent.log"),
	}

	if cfg.EvalTimeoutMS < 1000 {
		slog.Warn("eval timeout below 1000ms, clamping", "requested_ms", cfg.EvalTimeoutMS)
		cfg.EvalTimeoutMS = 1000
	}

	return cfg, nil
}

// CDPURL returns the CDP HTTP endpoint the bridge and watcher connect to.
func (c *Config) CDPURL() string {
	return fmt.Sprintf("http://%s:%d", c.CDPAddress, c.CDPPort)
}

// EvalTimeout returns the per-evaluation deadline as a duration.
func (c *Config) EvalTimeout() time.Duration {
	return time.Duration(c.EvalTimeoutMS) * time.Millisecond
}

// Offsets returns the label placement offsets for the crosshair controller.
func (c *Config) Offsets() crosshair.Offsets {
	return crosshair.Offsets{
		DateY:   float64(c.DateOffsetY),
		PriceX:  float64(c.PriceOffsetX),
		PriceY:  float64(c.PriceOffsetY),
		VolumeX: float64(c.VolumeOffsetX),
		VolumeY: float64(c.VolumeOffsetY),
	}
}

// SlogLevel maps the configured log level string to a slog level.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvIntOrDefault(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvBoolOrDefault(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}
