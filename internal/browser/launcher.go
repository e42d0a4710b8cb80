// Package browser launches a local Chromium with its debugging port open so
// the crosshair agent has an endpoint to script against. When the port is
// already serving CDP the launcher steps aside and the agent attaches to the
// existing browser instead.
package browser

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/exec"
	"runtime"
	"syscall"
	"time"
)

const cdpReadyTimeout = 15 * time.Second

// Options configures the launched browser.
type Options struct {
	CDPAddress string
	CDPPort    int
	StartURL   string // chart host page to open, may be empty
	ProfileDir string
	WindowSize string
	Headless   bool
}

// Launcher owns the lifetime of one spawned browser process.
type Launcher struct {
	opts    Options
	cmd     *exec.Cmd
	spawned bool
}

func NewLauncher(opts Options) *Launcher {
	if opts.WindowSize == "" {
		opts.WindowSize = "1920,1080"
	}
	return &Launcher{opts: opts}
}

// Launch starts Chromium unless something already listens on the CDP port,
// then blocks until the debugging endpoint answers.
func (l *Launcher) Launch(ctx context.Context) error {
	if portInUse(l.opts.CDPAddress, l.opts.CDPPort) {
		slog.Info("browser already running, attaching to it",
			"address", l.opts.CDPAddress, "port", l.opts.CDPPort)
		return nil
	}

	binary, err := findBrowser()
	if err != nil {
		return err
	}
	slog.Info("launching browser", "path", binary)

	if err := os.MkdirAll(l.opts.ProfileDir, 0o755); err != nil {
		return fmt.Errorf("create profile dir: %w", err)
	}

	args := []string{
		fmt.Sprintf("--remote-debugging-port=%d", l.opts.CDPPort),
		fmt.Sprintf("--remote-debugging-address=%s", l.opts.CDPAddress),
		fmt.Sprintf("--user-data-dir=%s", l.opts.ProfileDir),
		fmt.Sprintf("--window-size=%s", l.opts.WindowSize),
		"--no-first-run",
		"--disable-dev-shm-usage",
		"--disable-breakpad",
		"--disable-crash-reporter",
	}
	if l.opts.Headless {
		args = append(args, "--headless=new")
	}
	if l.opts.StartURL != "" {
		args = append(args, l.opts.StartURL)
	}

	l.cmd = exec.Command(binary, args...)
	l.cmd.Stdout = os.Stdout
	l.cmd.Stderr = os.Stderr
	if err := l.cmd.Start(); err != nil {
		return fmt.Errorf("start browser: %w", err)
	}
	l.spawned = true
	slog.Info("browser process started", "pid", l.cmd.Process.Pid)

	if err := l.waitForCDP(ctx); err != nil {
		l.Stop()
		return fmt.Errorf("waiting for CDP: %w", err)
	}
	slog.Info("CDP endpoint ready", "address", l.opts.CDPAddress, "port", l.opts.CDPPort)
	return nil
}

// Spawned reports whether this launcher started its own browser process, as
// opposed to finding one already listening.
func (l *Launcher) Spawned() bool {
	return l.spawned
}

// Stop terminates a spawned browser with SIGTERM, escalating to SIGKILL.
func (l *Launcher) Stop() {
	if l.cmd == nil || l.cmd.Process == nil {
		return
	}
	slog.Info("stopping browser", "pid", l.cmd.Process.Pid)
	_ = l.cmd.Process.Signal(syscall.SIGTERM)

	done := make(chan struct{})
	go func() {
		_ = l.cmd.Wait()
		close(done)
	}()

	select {
	case <-done:
		slog.Info("browser stopped")
	case <-time.After(5 * time.Second):
		slog.Warn("browser did not exit, sending SIGKILL")
		_ = l.cmd.Process.Kill()
		<-done
	}
	l.spawned = false
}

// waitForCDP polls /json/version until the endpoint responds.
func (l *Launcher) waitForCDP(ctx context.Context) error {
	url := fmt.Sprintf("http://%s:%d/json/version", l.opts.CDPAddress, l.opts.CDPPort)
	deadline := time.After(cdpReadyTimeout)
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()

	client := &http.Client{Timeout: time.Second}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline:
			return fmt.Errorf("CDP did not become ready within %s at %s", cdpReadyTimeout, url)
		case <-ticker.C:
			resp, err := client.Get(url)
			if err != nil {
				continue
			}
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}
	}
}

// portInUse checks whether a TCP port is already listening.
func portInUse(address string, port int) bool {
	conn, err := net.DialTimeout("tcp", fmt.Sprintf("%s:%d", address, port), time.Second)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

func findBrowser() (string, error) {
	candidates := []string{"chromium-browser", "chromium", "google-chrome"}
	for _, name := range candidates {
		if path, err := exec.LookPath(name); err == nil {
			return path, nil
		}
	}
	if runtime.GOOS == "darwin" {
		macPath := "/Applications/Google Chrome.app/Contents/MacOS/Google Chrome"
		if _, err := os.Stat(macPath); err == nil {
			return macPath, nil
		}
	}
	return "", fmt.Errorf("no supported browser found (tried chromium-browser, chromium, google-chrome)")
}
