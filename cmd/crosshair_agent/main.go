package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/dgnsrekt/crosshair_agent/internal/browser"
	"github.com/dgnsrekt/crosshair_agent/internal/config"
	"github.com/dgnsrekt/crosshair_agent/internal/hostbridge"
	"github.com/dgnsrekt/crosshair_agent/internal/hostwatch"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	if err := setupLogger(cfg); err != nil {
		if _, writeErr := io.WriteString(os.Stderr, "logger setup failed: "+err.Error()+"\n"); writeErr != nil {
			slog.Debug("logger setup stderr write failed", "error", writeErr)
		}
		os.Exit(1)
	}

	slog.Info("crosshair_agent config loaded",
		"cdp_url", cfg.CDPURL(),
		"tab_url_filter", cfg.TabURLFilter,
		"eval_timeout_ms", cfg.EvalTimeoutMS,
		"launch_browser", cfg.LaunchBrowser,
		"log_level", cfg.LogLevel,
		"log_file", cfg.LogFile,
	)

	ctx := context.Background()

	var launcher *browser.Launcher
	if cfg.LaunchBrowser {
		launcher = browser.NewLauncher(browser.Options{
			CDPAddress: cfg.CDPAddress,
			CDPPort:    cfg.CDPPort,
			StartURL:   cfg.StartURL,
			ProfileDir: cfg.ProfileDir,
			Headless:   cfg.Headless,
		})
		if err := launcher.Launch(ctx); err != nil {
			slog.Error("failed to launch browser", "error", err)
			os.Exit(1)
		}
		defer launcher.Stop()
	}

	bridge := hostbridge.NewClient(cfg.CDPURL(), cfg.TabURLFilter, cfg.EvalTimeout())
	if err := bridge.Connect(ctx); err != nil {
		slog.Error("failed to connect scripting bridge", "cdp_url", cfg.CDPURL(), "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := bridge.Close(); err != nil {
			slog.Debug("bridge close failed", "error", err)
		}
	}()

	charts, err := bridge.ListCharts(ctx)
	if err != nil {
		slog.Error("failed to list charts", "error", err)
		os.Exit(1)
	}
	if len(charts) == 0 {
		slog.Error("no chart tabs found", "tab_url_filter", cfg.TabURLFilter)
		os.Exit(1)
	}

	offsets := cfg.Offsets()
	opts := hostbridge.AttachOptions{Offsets: &offsets}
	attached := 0
	for _, chart := range charts {
		attachCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		info, err := bridge.Attach(attachCtx, chart.ChartID, opts)
		cancel()
		if err != nil {
			slog.Error("failed to attach crosshair", "chart_id", chart.ChartID, "error", err)
			continue
		}
		slog.Info("crosshair ready",
			"chart_id", info.ChartID,
			"series_length", info.SeriesLength,
			"ratio", info.Ratio,
			"dual_axis", info.DualAxis,
		)
		attached++
	}
	if attached == 0 {
		slog.Error("no charts attached")
		os.Exit(1)
	}

	// Page reloads tear the overlay out of the DOM; the watcher tells us when
	// to rebuild it with fresh axis extents.
	watcher := hostwatch.NewWatcher(cfg.CDPURL(), cfg.TabURLFilter, func(chartID string) {
		reattachCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if _, err := bridge.Reattach(reattachCtx, chartID); err != nil {
			slog.Error("reattach after reload failed", "chart_id", chartID, "error", err)
			return
		}
		slog.Info("crosshair reattached after reload", "chart_id", chartID)
	})
	if err := watcher.Start(ctx); err != nil {
		slog.Error("failed to start host watcher", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := watcher.Close(); err != nil {
			slog.Debug("watcher close failed", "error", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for _, chartID := range bridge.AttachedCharts() {
		if err := bridge.Detach(shutdownCtx, chartID); err != nil {
			slog.Debug("detach failed during shutdown", "chart_id", chartID, "error", err)
		}
	}
}

func setupLogger(cfg *config.Config) error {
	if err := os.MkdirAll("logs", 0o755); err != nil {
		return err
	}

	logWriter := &lumberjack.Logger{
		Filename:   cfg.LogFile,
		MaxSize:    25,
		MaxBackups: 10,
		MaxAge:     14,
		Compress:   true,
	}

	h := slog.NewTextHandler(io.MultiWriter(os.Stdout, logWriter), &slog.HandlerOptions{Level: cfg.SlogLevel()})
	slog.SetDefault(slog.New(h))
	return nil
}
