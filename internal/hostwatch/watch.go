// Package hostwatch keeps passive CDP sessions on chart host tabs and
// reports page reloads so the scripting bridge can rebuild its crosshair
// attachments. It deliberately rides a separate chromedp connection: the
// bridge's own socket stays free for evaluation traffic.
package hostwatch

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"

	"github.com/dgnsrekt/crosshair_agent/internal/hostbridge"
)

const rescanInterval = 5 * time.Second

// Watcher attaches to every chart host tab matching the URL filter and
// invokes the reload callback whenever one of them finishes loading again.
type Watcher struct {
	cdpURL    string
	urlFilter string
	onReload  func(chartID string)

	allocCtx    context.Context
	allocCancel context.CancelFunc

	tabsMu sync.Mutex
	tabs   map[target.ID]*watchedTab

	done      chan struct{}
	closeOnce sync.Once
}

type watchedTab struct {
	id      target.ID
	chartID string
	url     string
	cancel  context.CancelFunc

	// loaded flips after the first load event; the initial page load at
	// attach time is not a reload.
	loaded bool
}

// NewWatcher builds a watcher for the given CDP endpoint. onReload runs on an
// internal goroutine, once per completed page load after the first.
func NewWatcher(cdpURL, urlFilter string, onReload func(chartID string)) *Watcher {
	return &Watcher{
		cdpURL:    cdpURL,
		urlFilter: urlFilter,
		onReload:  onReload,
		tabs:      make(map[target.ID]*watchedTab),
		done:      make(chan struct{}),
	}
}

// Start connects to the browser, attaches to matching tabs, and begins
// rescanning for tabs that open or close later. ctx bounds the watcher's
// whole browser connection: cancelling it tears down every tab session.
func (w *Watcher) Start(ctx context.Context) error {
	slog.Info("hostwatch connecting", "url", w.cdpURL)

	w.allocCtx, w.allocCancel = chromedp.NewRemoteAllocator(ctx, w.cdpURL)

	tempCtx, tempCancel := chromedp.NewContext(w.allocCtx)
	defer tempCancel()
	if err := chromedp.Run(tempCtx); err != nil {
		w.allocCancel()
		return fmt.Errorf("hostwatch failed to connect to browser: %w", err)
	}

	if err := w.rescan(tempCtx); err != nil {
		w.allocCancel()
		return err
	}

	go w.rescanLoop()
	return nil
}

func (w *Watcher) rescanLoop() {
	ticker := time.NewTicker(rescanInterval)
	defer ticker.Stop()
	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
		}

		tempCtx, tempCancel := chromedp.NewContext(w.allocCtx)
		if err := w.rescan(tempCtx); err != nil {
			slog.Debug("hostwatch rescan failed", "error", err)
		}
		tempCancel()
	}
}

// rescan attaches to new matching tabs and drops watchers whose targets are
// gone.
func (w *Watcher) rescan(ctx context.Context) error {
	targets, err := chromedp.Targets(ctx)
	if err != nil {
		return fmt.Errorf("hostwatch failed to enumerate targets: %w", err)
	}

	seen := make(map[target.ID]bool, len(targets))
	for _, t := range targets {
		if t.Type != "page" || !w.matchesTabURL(t.URL) {
			continue
		}
		seen[t.TargetID] = true

		w.tabsMu.Lock()
		_, ok := w.tabs[t.TargetID]
		w.tabsMu.Unlock()
		if ok {
			continue
		}
		if err := w.attachToTab(t.TargetID, t.URL); err != nil {
			slog.Error("hostwatch failed to attach", "target_id", t.TargetID, "url", t.URL, "error", err)
		}
	}

	w.tabsMu.Lock()
	for id, tab := range w.tabs {
		if seen[id] {
			continue
		}
		slog.Info("hostwatch tab gone", "target_id", id, "chart_id", tab.chartID)
		tab.cancel()
		delete(w.tabs, id)
	}
	w.tabsMu.Unlock()
	return nil
}

func (w *Watcher) attachToTab(targetID target.ID, url string) error {
	tabCtx, tabCancel := chromedp.NewContext(w.allocCtx, chromedp.WithTargetID(targetID))

	tab := &watchedTab{
		id:      targetID,
		chartID: hostbridge.ChartIDForTarget(url, string(targetID)),
		url:     url,
		cancel:  tabCancel,
	}
	w.tabsMu.Lock()
	w.tabs[targetID] = tab
	w.tabsMu.Unlock()

	if err := chromedp.Run(tabCtx, page.Enable()); err != nil {
		tabCancel()
		w.tabsMu.Lock()
		delete(w.tabs, targetID)
		w.tabsMu.Unlock()
		return fmt.Errorf("hostwatch failed to enable page domain: %w", err)
	}

	chromedp.ListenTarget(tabCtx, func(ev interface{}) { w.handleEvent(tab, ev) })
	slog.Info("hostwatch watching tab", "target_id", targetID, "chart_id", tab.chartID, "url", truncateURL(url))
	return nil
}

// handleEvent runs on chromedp's event dispatch goroutine. Navigation updates
// the chart ID; a finished load after the first one means the host page was
// rebuilt and the overlay with it.
func (w *Watcher) handleEvent(tab *watchedTab, ev interface{}) {
	switch e := ev.(type) {
	case *page.EventFrameNavigated:
		if e.Frame.ParentID != "" {
			return
		}
		w.tabsMu.Lock()
		tab.url = e.Frame.URL
		tab.chartID = hostbridge.ChartIDForTarget(e.Frame.URL, string(tab.id))
		w.tabsMu.Unlock()
		slog.Info("hostwatch tab navigated", "target_id", tab.id, "chart_id", tab.chartID, "url", truncateURL(e.Frame.URL))
	case *page.EventLoadEventFired:
		w.tabsMu.Lock()
		first := !tab.loaded
		tab.loaded = true
		chartID := tab.chartID
		w.tabsMu.Unlock()
		if first {
			return
		}
		slog.Info("hostwatch tab reloaded", "target_id", tab.id, "chart_id", chartID)
		if w.onReload != nil {
			go w.onReload(chartID)
		}
	}
}

// Close stops the rescan loop and drops all tab sessions.
func (w *Watcher) Close() error {
	w.closeOnce.Do(func() {
		close(w.done)

		w.tabsMu.Lock()
		for id, tab := range w.tabs {
			tab.cancel()
			delete(w.tabs, id)
		}
		w.tabsMu.Unlock()

		if w.allocCancel != nil {
			w.allocCancel()
		}
		slog.Info("hostwatch closed")
	})
	return nil
}

// TabCount returns how many tabs are currently being watched.
func (w *Watcher) TabCount() int {
	w.tabsMu.Lock()
	defer w.tabsMu.Unlock()
	return len(w.tabs)
}

func (w *Watcher) matchesTabURL(url string) bool {
	if w.urlFilter == "" {
		return true
	}
	return strings.Contains(strings.ToLower(url), strings.ToLower(w.urlFilter))
}

func truncateURL(url string) string {
	if len(url) > 120 {
		return url[:120] + "..."
	}
	return url
}
