package hostbridge

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/target"
	"github.com/dgnsrekt/crosshair_agent/internal/series"
)

var chartURLPattern = regexp.MustCompile(`/charts?/([^/?#]+)/?`)

// transientHints are substrings in error causes that indicate a transient
// failure worth retrying (e.g. broken connection, closed session).
var transientHints = []string{
	"context canceled",
	"target closed",
	"session closed",
	"websocket",
	"connection reset",
	"broken pipe",
	"eof",
	"connection refused",
	"connection closed",
}

// tabSession pairs a discovered chart tab with its (lazily attached) CDP
// session.
type tabSession struct {
	info      ChartInfo
	mu        sync.Mutex
	sessionID string
}

// Client manages the scripting bridge to chart host pages: tab discovery,
// per-chart sessions, JS evaluation, and the crosshair attachments riding on
// top of them.
type Client struct {
	cdpURL      string
	tabFilter   string
	evalTimeout time.Duration

	mu            sync.Mutex
	cdp           *cdpSocket
	tabs          map[target.ID]*tabSession
	chartToTarget map[string]target.ID
	unregister    []func()

	chartLocksMu sync.Mutex
	chartLocks   map[string]*sync.Mutex

	attachMu    sync.Mutex
	attachments map[string]*attachment
}

// evalEnvelope is the JSON shape every injected snippet returns.
type evalEnvelope struct {
	OK           bool            `json:"ok"`
	Data         json.RawMessage `json:"data,omitempty"`
	ErrorCode    string          `json:"error_code,omitempty"`
	ErrorMessage string          `json:"error_message,omitempty"`
}

func NewClient(cdpURL, tabFilter string, evalTimeout time.Duration) *Client {
	return &Client{
		cdpURL:        cdpURL,
		tabFilter:     strings.ToLower(strings.TrimSpace(tabFilter)),
		evalTimeout:   evalTimeout,
		tabs:          make(map[target.ID]*tabSession),
		chartToTarget: make(map[string]target.ID),
		chartLocks:    make(map[string]*sync.Mutex),
		attachments:   make(map[string]*attachment),
	}
}

func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connectLocked(ctx)
}

func (c *Client) connectLocked(ctx context.Context) error {
	if c.cdpURL == "" {
		return newError(CodeCDPUnavailable, "missing CDP URL", nil)
	}

	slog.Info("hostbridge connect start", "cdp_url", c.cdpURL)
	c.cleanupLocked()

	sock := newCDPSocket(c.cdpURL)
	if err := sock.connect(ctx); err != nil {
		return newError(CodeCDPUnavailable, "connect to CDP failed", err)
	}
	c.cdp = sock

	c.unregister = append(c.unregister,
		sock.on("Runtime.bindingCalled", c.onBindingCalled),
		sock.on("Target.detachedFromTarget", c.onSessionDetached),
	)

	if err := c.rebuildChartsLocked(ctx); err != nil {
		slog.Error("hostbridge initial tab sync failed", "error", err)
		c.cleanupLocked()
		return newError(CodeCDPUnavailable, "connect to CDP failed", err)
	}

	slog.Info("hostbridge connect ok", "cdp_url", c.cdpURL, "tabs", len(c.tabs))
	return nil
}

func (c *Client) Close() error {
	c.stopAllAttachments()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cleanupLocked()
	return nil
}

func (c *Client) cleanupLocked() {
	for _, off := range c.unregister {
		off()
	}
	c.unregister = nil

	// Detach from active sessions without closing their targets.
	if c.cdp != nil {
		for _, tab := range c.tabs {
			if tab == nil {
				continue
			}
			tab.mu.Lock()
			if tab.sessionID != "" {
				ctx, cancel := context.WithTimeout(context.Background(), time.Second)
				_ = c.cdp.detachFromTarget(ctx, tab.sessionID)
				cancel()
				tab.sessionID = ""
			}
			tab.mu.Unlock()
		}
		c.cdp.close()
		c.cdp = nil
	}
	c.tabs = make(map[target.ID]*tabSession)
	c.chartToTarget = make(map[string]target.ID)
}

// ListCharts re-discovers chart host tabs and returns them sorted by chart ID.
func (c *Client) ListCharts(ctx context.Context) ([]ChartInfo, error) {
	if err := c.syncCharts(ctx); err != nil {
		slog.Warn("hostbridge list charts failed", "error", err)
		return nil, err
	}

	c.mu.Lock()
	charts := make([]ChartInfo, 0, len(c.tabs))
	for _, tab := range c.tabs {
		if tab != nil {
			charts = append(charts, tab.info)
		}
	}
	c.mu.Unlock()

	sort.Slice(charts, func(i, j int) bool { return charts[i].ChartID < charts[j].ChartID })
	slog.Debug("hostbridge list charts", "count", len(charts))
	return charts, nil
}

// ProbeHost reads the chart host's geometry and axis extents.
func (c *Client) ProbeHost(ctx context.Context, chartID string) (HostInfo, error) {
	var out HostInfo
	if err := c.evalOnChart(ctx, chartID, jsProbeHost(), &out); err != nil {
		return HostInfo{}, err
	}
	return out, nil
}

// wireCandle is the serialized shape a candle takes crossing the bridge.
type wireCandle struct {
	Date   string  `json:"date"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume int64   `json:"volume"`
}

// LoadSeries pulls the host page's sample series across the bridge as plain
// data.
func (c *Client) LoadSeries(ctx context.Context, chartID string) (series.Series, error) {
	var out struct {
		Candles []wireCandle `json:"candles"`
	}
	if err := c.evalOnChart(ctx, chartID, jsLoadSeries(), &out); err != nil {
		return nil, err
	}

	s := make(series.Series, 0, len(out.Candles))
	for _, wc := range out.Candles {
		date, err := parseWireDate(wc.Date)
		if err != nil {
			return nil, newError(CodeNonSerializable, "series crossed the bridge with an unparseable date", err)
		}
		s = append(s, series.Candle{
			Date:   date,
			Open:   wc.Open,
			High:   wc.High,
			Low:    wc.Low,
			Close:  wc.Close,
			Volume: wc.Volume,
		})
	}
	return s, nil
}

func parseWireDate(v string) (time.Time, error) {
	v = strings.TrimSpace(v)
	if t, err := time.Parse("2006-01-02", v); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, v)
}

// evalOnChart runs a snippet against the chart's page, recovering once from
// transient failures (dead socket, stale session, reloaded tab).
func (c *Client) evalOnChart(ctx context.Context, chartID, js string, out any) error {
	chartID = strings.TrimSpace(chartID)
	if chartID == "" {
		return newError(CodeChartNotFound, "chart id is required", nil)
	}

	lock := c.lockFor(chartID)
	lock.Lock()
	defer lock.Unlock()

	slog.Debug("hostbridge eval on chart", "chart_id", chartID)
	err := c.evalAttempt(ctx, chartID, js, out)
	if err == nil || !c.shouldRetry(err) {
		return err
	}

	slog.Warn("hostbridge eval retry after transient failure", "chart_id", chartID, "error", err)
	if hasCode(err, CodeCDPUnavailable) {
		if recErr := c.reconnect(ctx); recErr != nil {
			slog.Error("hostbridge reconnect failed during retry", "chart_id", chartID, "error", recErr)
			return recErr
		}
	} else if syncErr := c.syncCharts(ctx); syncErr != nil {
		slog.Warn("hostbridge tab refresh failed during retry", "chart_id", chartID, "error", syncErr)
	}

	return c.evalAttempt(ctx, chartID, js, out)
}

func (c *Client) evalAttempt(ctx context.Context, chartID, js string, out any) error {
	tab, info, err := c.chartSession(ctx, chartID)
	if err != nil {
		slog.Warn("hostbridge chart resolve failed", "chart_id", chartID, "error", err)
		return err
	}
	return c.runSnippet(ctx, tab, info.TargetID, js, out)
}

func (c *Client) runSnippet(ctx context.Context, tab *tabSession, targetID, js string, out any) error {
	c.mu.Lock()
	sock := c.cdp
	c.mu.Unlock()
	if sock == nil {
		return newError(CodeCDPUnavailable, "CDP client not connected", nil)
	}

	sessionID, err := c.ensureSession(ctx, sock, tab, targetID)
	if err != nil {
		return err
	}

	evalCtx, cancel := context.WithTimeout(ctx, c.evalTimeout)
	defer cancel()

	raw, err := sock.evaluate(evalCtx, sessionID, js)
	if err != nil {
		slog.Warn("hostbridge eval failed", "target_id", targetID, "error", err)
		// Reset the session so a fresh attach happens on retry.
		tab.mu.Lock()
		tab.sessionID = ""
		tab.mu.Unlock()

		if errors.Is(err, context.DeadlineExceeded) || errors.Is(evalCtx.Err(), context.DeadlineExceeded) {
			return newError(CodeEvalTimeout, "evaluation timed out", err)
		}
		return newError(CodeEvalFailure, "evaluation failed", err)
	}

	var env evalEnvelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return newError(CodeEvalFailure, "invalid evaluation envelope", err)
	}
	if !env.OK {
		code := env.ErrorCode
		if code == "" {
			code = CodeEvalFailure
		}
		return newError(code, env.ErrorMessage, nil)
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return newError(CodeEvalFailure, "invalid evaluation data", err)
	}
	return nil
}

// ensureSession returns a CDP session for the tab, attaching if needed.
func (c *Client) ensureSession(ctx context.Context, sock *cdpSocket, tab *tabSession, targetID string) (string, error) {
	tab.mu.Lock()
	defer tab.mu.Unlock()

	if tab.sessionID != "" {
		return tab.sessionID, nil
	}

	sid, err := sock.attachToTarget(ctx, targetID)
	if err != nil {
		return "", newError(CodeCDPUnavailable, "attach to target failed", err)
	}
	tab.sessionID = sid
	slog.Debug("hostbridge session attached", "target_id", targetID, "session_id", sid)
	return sid, nil
}

// chartSession resolves a chart ID to its tab, re-syncing the tab index once
// on a miss.
func (c *Client) chartSession(ctx context.Context, chartID string) (*tabSession, ChartInfo, error) {
	if tab, info, ok := c.cachedChart(chartID); ok {
		return tab, info, nil
	}

	if err := c.syncCharts(ctx); err != nil {
		return nil, ChartInfo{}, err
	}

	if tab, info, ok := c.cachedChart(chartID); ok {
		return tab, info, nil
	}
	return nil, ChartInfo{}, newError(CodeChartNotFound, "chart not found: "+chartID, nil)
}

func (c *Client) cachedChart(chartID string) (*tabSession, ChartInfo, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	targetID, ok := c.chartToTarget[chartID]
	if !ok {
		return nil, ChartInfo{}, false
	}
	tab := c.tabs[targetID]
	if tab == nil {
		return nil, ChartInfo{}, false
	}
	return tab, tab.info, true
}

func (c *Client) syncCharts(ctx context.Context) error {
	if err := c.ensureSocket(ctx); err != nil {
		return err
	}

	c.mu.Lock()
	err := c.rebuildChartsLocked(ctx)
	c.mu.Unlock()
	if err != nil {
		return newError(CodeCDPUnavailable, "failed to list targets", err)
	}
	return nil
}

func (c *Client) reconnect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connectLocked(ctx)
}

// rebuildChartsLocked re-derives the chart index from the browser's open page
// targets, keeping live sessions for tabs that survive.
func (c *Client) rebuildChartsLocked(ctx context.Context) error {
	if c.cdp == nil {
		return newError(CodeCDPUnavailable, "CDP client not connected", nil)
	}

	targets, err := c.cdp.listTargets(ctx)
	if err != nil {
		return err
	}

	found := make(map[target.ID]ChartInfo)
	for _, t := range targets {
		if t.Type != "page" {
			continue
		}
		if c.tabFilter != "" && !strings.Contains(strings.ToLower(t.URL), c.tabFilter) {
			continue
		}
		found[t.TargetID] = ChartInfo{
			ChartID:  ChartIDForTarget(t.URL, string(t.TargetID)),
			TargetID: string(t.TargetID),
			URL:      t.URL,
			Title:    t.Title,
		}
	}

	for id := range c.tabs {
		if _, ok := found[id]; !ok {
			delete(c.tabs, id)
		}
	}
	for id, info := range found {
		if tab := c.tabs[id]; tab != nil {
			tab.info = info
		} else {
			c.tabs[id] = &tabSession{info: info}
		}
	}

	c.chartToTarget = make(map[string]target.ID, len(c.tabs))
	for id, tab := range c.tabs {
		if tab != nil {
			c.chartToTarget[tab.info.ChartID] = id
		}
	}

	// Drop per-chart locks for charts that disappeared.
	c.chartLocksMu.Lock()
	for id := range c.chartLocks {
		if _, ok := c.chartToTarget[id]; !ok {
			delete(c.chartLocks, id)
		}
	}
	c.chartLocksMu.Unlock()

	slog.Debug("hostbridge tab sync", "targets", len(targets), "charts", len(c.chartToTarget))
	return nil
}

func (c *Client) ensureSocket(ctx context.Context) error {
	c.mu.Lock()
	connected := c.cdp != nil
	c.mu.Unlock()
	if connected {
		return nil
	}
	return c.reconnect(ctx)
}

func (c *Client) lockFor(chartID string) *sync.Mutex {
	c.chartLocksMu.Lock()
	defer c.chartLocksMu.Unlock()
	m, ok := c.chartLocks[chartID]
	if !ok {
		m = &sync.Mutex{}
		c.chartLocks[chartID] = m
	}
	return m
}

func (c *Client) shouldRetry(err error) bool {
	var coded *CodedError
	if !errors.As(err, &coded) {
		return false
	}

	switch coded.Code {
	case CodeCDPUnavailable:
		return true
	case CodeChartNotFound:
		return false
	case CodeEvalFailure:
		if coded.Cause == nil {
			return false
		}
		cause := strings.ToLower(coded.Cause.Error())
		for _, hint := range transientHints {
			if strings.Contains(cause, hint) {
				return true
			}
		}
	}
	return false
}

func hasCode(err error, code string) bool {
	var coded *CodedError
	return errors.As(err, &coded) && coded.Code == code
}

// ChartIDForTarget derives a stable chart ID from a tab URL; host pages
// without a /chart/<id> path segment fall back to the browser target ID.
// Exported so the tab watcher maps navigation events to the same IDs.
func ChartIDForTarget(url, targetID string) string {
	if m := chartURLPattern.FindStringSubmatch(url); len(m) >= 2 {
		return m[1]
	}
	return targetID
}
