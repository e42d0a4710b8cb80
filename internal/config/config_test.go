package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/dgnsrekt/crosshair_agent/internal/crosshair"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() = %v; want nil", err)
	}
	if cfg.CDPAddress != "127.0.0.1" || cfg.CDPPort != 9220 {
		t.Fatalf("CDP endpoint = %s:%d; want 127.0.0.1:9220", cfg.CDPAddress, cfg.CDPPort)
	}
	if cfg.TabURLFilter != "chart" {
		t.Fatalf("TabURLFilter = %q; want %q", cfg.TabURLFilter, "chart")
	}
	if got := cfg.CDPURL(); got != "http://127.0.0.1:9220" {
		t.Fatalf("CDPURL() = %q; want %q", got, "http://127.0.0.1:9220")
	}
	if got := cfg.EvalTimeout(); got != 5*time.Second {
		t.Fatalf("EvalTimeout() = %v; want %v", got, 5*time.Second)
	}
	if got := cfg.Offsets(); got != crosshair.DefaultOffsets() {
		t.Fatalf("Offsets() = %+v; want defaults %+v", got, crosshair.DefaultOffsets())
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("CHROMIUM_CDP_PORT", "9333")
	t.Setenv("CROSSHAIR_TAB_URL_FILTER", "charts.example.com")
	t.Setenv("CROSSHAIR_PRICE_OFFSET_X", "12")
	t.Setenv("CROSSHAIR_LOG_LEVEL", "debug")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() = %v; want nil", err)
	}
	if cfg.CDPPort != 9333 {
		t.Fatalf("CDPPort = %d; want 9333", cfg.CDPPort)
	}
	if cfg.TabURLFilter != "charts.example.com" {
		t.Fatalf("TabURLFilter = %q; want override", cfg.TabURLFilter)
	}
	if got := cfg.Offsets().PriceX; got != 12 {
		t.Fatalf("Offsets().PriceX = %v; want 12", got)
	}
	if got := cfg.SlogLevel(); got != slog.LevelDebug {
		t.Fatalf("SlogLevel() = %v; want debug", got)
	}
}

func TestLoadClampsEvalTimeout(t *testing.T) {
	t.Setenv("CROSSHAIR_EVAL_TIMEOUT_MS", "50")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() = %v; want nil", err)
	}
	if cfg.EvalTimeoutMS != 1000 {
		t.Fatalf("EvalTimeoutMS = %d; want clamp to 1000", cfg.EvalTimeoutMS)
	}
}

func TestGetEnvHelpers(t *testing.T) {
	t.Setenv("CROSSHAIR_TEST_INT", "not-a-number")
	if got := getEnvIntOrDefault("CROSSHAIR_TEST_INT", 7); got != 7 {
		t.Fatalf("getEnvIntOrDefault(bad int) = %d; want default 7", got)
	}
	t.Setenv("CROSSHAIR_TEST_BOOL", "yes-please")
	if got := getEnvBoolOrDefault("CROSSHAIR_TEST_BOOL", true); got != true {
		t.Fatalf("getEnvBoolOrDefault(bad bool) = %v; want default true", got)
	}
}
