package hostbridge

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/dgnsrekt/crosshair_agent/internal/crosshair"
	"github.com/dgnsrekt/crosshair_agent/internal/series"
)

// AttachOptions tunes one crosshair attachment.
type AttachOptions struct {
	// Series overrides the host page's series. When nil the series is
	// loaded from the host across the bridge.
	Series series.Series
	// Offsets overrides the default label pixel offsets when non-nil.
	Offsets *crosshair.Offsets
}

// attachment is one live crosshair overlay: the per-chart controller plus the
// apply pipeline pushing label state back into the page.
type attachment struct {
	chartID   string
	sessionID string
	opts      AttachOptions
	ctrl      *crosshair.Controller
	info      AttachInfo

	// applyCh carries label state to the apply loop, coalesced to the
	// latest snapshot: if events arrive faster than the page renders, the
	// last-applied state wins.
	applyCh chan crosshair.LabelSet
	done    chan struct{}
}

// Attach probes the chart host, pulls (or accepts) the sample series, builds
// the crosshair controller with a ratio fixed from the full data extent, and
// installs the overlay plus pointer bindings in the page. Attaching twice to
// the same chart replaces the previous overlay.
func (c *Client) Attach(ctx context.Context, chartID string, opts AttachOptions) (AttachInfo, error) {
	host, err := c.ProbeHost(ctx, chartID)
	if err != nil {
		return AttachInfo{}, err
	}

	s := opts.Series
	if s == nil {
		s, err = c.LoadSeries(ctx, chartID)
		if err != nil {
			return AttachInfo{}, err
		}
	}

	primaryMax := host.PrimaryMax
	if primaryMax <= 0 {
		primaryMax = s.PrimaryMax()
	}
	secondaryMax := host.SecondaryMax
	if secondaryMax <= 0 {
		secondaryMax = s.SecondaryMax()
	}
	dualAxis := host.DualAxis || host.SecondaryMax > 0 || s.SecondaryMax() > 0
	if !dualAxis {
		// Single-axis charts never read the secondary value; the mapping
		// only needs to be well-formed.
		secondaryMax = primaryMax
	}

	mapping, err := crosshair.NewAxisMapping(primaryMax, secondaryMax)
	if err != nil {
		return AttachInfo{}, newError(CodeValidation, "axis extents unusable", err)
	}

	ctrl, err := crosshair.NewController(s, mapping, crosshair.Config{
		SingleAxis: !dualAxis,
		Offsets:    opts.Offsets,
	})
	if err != nil {
		return AttachInfo{}, newError(CodeNonSerializable, "series rejected", err)
	}

	session, info, err := c.chartSession(ctx, chartID)
	if err != nil {
		return AttachInfo{}, err
	}

	c.mu.Lock()
	cdp := c.cdp
	c.mu.Unlock()
	if cdp == nil {
		return AttachInfo{}, newError(CodeCDPUnavailable, "CDP client not connected", nil)
	}

	sessionID, err := c.ensureSession(ctx, cdp, session, info.TargetID)
	if err != nil {
		return AttachInfo{}, err
	}
	if err := cdp.enableRuntime(ctx, sessionID); err != nil {
		return AttachInfo{}, newError(CodeCDPUnavailable, "enable runtime domain failed", err)
	}
	if err := cdp.addBinding(ctx, sessionID, crosshairBinding); err != nil {
		return AttachInfo{}, newError(CodeCDPUnavailable, "install binding failed", err)
	}

	if err := c.evalOnChart(ctx, chartID, jsInstallOverlay(crosshairBinding, dualAxis), nil); err != nil {
		return AttachInfo{}, err
	}

	att := &attachment{
		chartID:   chartID,
		sessionID: sessionID,
		opts:      opts,
		ctrl:      ctrl,
		info: AttachInfo{
			ChartID:      chartID,
			SeriesLength: len(s),
			Ratio:        mapping.Ratio(),
			DualAxis:     dualAxis,
		},
		applyCh: make(chan crosshair.LabelSet, 1),
		done:    make(chan struct{}),
	}

	c.attachMu.Lock()
	if prev, ok := c.attachments[chartID]; ok {
		close(prev.done)
	}
	c.attachments[chartID] = att
	c.attachMu.Unlock()

	go c.applyLoop(att)

	slog.Info("crosshair attached",
		"chart_id", chartID,
		"series_length", att.info.SeriesLength,
		"ratio", att.info.Ratio,
		"dual_axis", att.info.DualAxis,
	)
	return att.info, nil
}

// Detach tears down the overlay and stops the apply loop. Detaching a chart
// that is not attached is a no-op on the Go side; overlay removal in the page
// is idempotent.
func (c *Client) Detach(ctx context.Context, chartID string) error {
	c.attachMu.Lock()
	att, ok := c.attachments[chartID]
	if ok {
		delete(c.attachments, chartID)
	}
	c.attachMu.Unlock()
	if ok {
		close(att.done)
	}

	if err := c.evalOnChart(ctx, chartID, jsRemoveOverlay(), nil); err != nil {
		return err
	}

	if ok {
		c.mu.Lock()
		cdp := c.cdp
		c.mu.Unlock()
		if cdp != nil && att.sessionID != "" {
			if err := cdp.removeBinding(ctx, att.sessionID, crosshairBinding); err != nil {
				slog.Debug("remove binding failed", "chart_id", chartID, "error", err)
			}
		}
	}

	slog.Info("crosshair detached", "chart_id", chartID)
	return nil
}

// Reattach rebuilds an existing attachment from scratch, re-reading the
// series and axis extents. This is the path a host page reload takes, and the
// only way a zoomed/panned chart picks up a new secondary-axis ratio.
func (c *Client) Reattach(ctx context.Context, chartID string) (AttachInfo, error) {
	c.attachMu.Lock()
	att, ok := c.attachments[chartID]
	c.attachMu.Unlock()
	if !ok {
		return AttachInfo{}, newError(CodeChartNotFound, "chart not attached: "+chartID, nil)
	}
	return c.Attach(ctx, chartID, att.opts)
}

// AttachedCharts returns the chart IDs with a live attachment.
func (c *Client) AttachedCharts() []string {
	c.attachMu.Lock()
	defer c.attachMu.Unlock()
	out := make([]string, 0, len(c.attachments))
	for id := range c.attachments {
		out = append(out, id)
	}
	return out
}

// LabelState returns the current label snapshot for an attached chart.
func (c *Client) LabelState(chartID string) (crosshair.LabelSet, bool) {
	c.attachMu.Lock()
	att, ok := c.attachments[chartID]
	c.attachMu.Unlock()
	if !ok {
		return crosshair.LabelSet{}, false
	}
	return att.ctrl.Labels(), true
}

// pointerPayload is the serialized event the overlay forwards through the
// binding.
type pointerPayload struct {
	Type       string  `json:"type"`
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	ScreenX    float64 `json:"screen_x"`
	ScreenY    float64 `json:"screen_y"`
	HostWidth  float64 `json:"host_width"`
	HostHeight float64 `json:"host_height"`
}

// onBindingCalled runs on the CDP socket's read-loop goroutine. It must not send
// CDP commands itself: it maps the event through the controller and hands the
// resulting label state to the apply loop.
func (c *Client) onBindingCalled(sessionID string, params json.RawMessage) {
	var ev struct {
		Name    string `json:"name"`
		Payload string `json:"payload"`
	}
	if json.Unmarshal(params, &ev) != nil || ev.Name != crosshairBinding {
		return
	}

	att := c.attachmentForSession(sessionID)
	if att == nil {
		slog.Debug("hostbridge binding event for unknown session", "session_id", sessionID)
		return
	}

	var p pointerPayload
	if err := json.Unmarshal([]byte(ev.Payload), &p); err != nil {
		slog.Debug("hostbridge bad pointer payload", "chart_id", att.chartID, "error", err)
		return
	}

	var state crosshair.LabelSet
	switch p.Type {
	case "move":
		state = att.ctrl.HandleMove(crosshair.PointerEvent{
			X:          p.X,
			Y:          p.Y,
			ScreenX:    p.ScreenX,
			ScreenY:    p.ScreenY,
			HostWidth:  p.HostWidth,
			HostHeight: p.HostHeight,
		})
	case "leave":
		state = att.ctrl.HandleLeave()
	default:
		slog.Debug("hostbridge unknown pointer event type", "chart_id", att.chartID, "type", p.Type)
		return
	}

	// Coalesce: drop a stale queued snapshot rather than block the read
	// loop.
	for {
		select {
		case att.applyCh <- state:
			return
		default:
			select {
			case <-att.applyCh:
			default:
			}
		}
	}
}

func (c *Client) attachmentForSession(sessionID string) *attachment {
	c.attachMu.Lock()
	defer c.attachMu.Unlock()
	for _, att := range c.attachments {
		if att.sessionID == sessionID {
			return att
		}
	}
	return nil
}

// onSessionDetached clears the cached session so the next eval re-attaches.
func (c *Client) onSessionDetached(_ string, params json.RawMessage) {
	var ev struct {
		SessionID string `json:"sessionId"`
	}
	if json.Unmarshal(params, &ev) != nil || ev.SessionID == "" {
		return
	}

	c.mu.Lock()
	for _, session := range c.tabs {
		if session == nil {
			continue
		}
		session.mu.Lock()
		if session.sessionID == ev.SessionID {
			session.sessionID = ""
		}
		session.mu.Unlock()
	}
	c.mu.Unlock()
}

// applyLoop pushes label state into the page, one snapshot at a time, until
// the attachment is torn down.
func (c *Client) applyLoop(att *attachment) {
	for {
		select {
		case <-att.done:
			return
		case state := <-att.applyCh:
			ctx, cancel := context.WithTimeout(context.Background(), c.evalTimeout)
			err := c.evalOnChart(ctx, att.chartID, jsApplyLabels(state), nil)
			cancel()
			if err != nil {
				slog.Debug("hostbridge label apply failed", "chart_id", att.chartID, "error", err)
			}
		}
	}
}

func (c *Client) stopAllAttachments() {
	c.attachMu.Lock()
	defer c.attachMu.Unlock()
	for id, att := range c.attachments {
		close(att.done)
		delete(c.attachments, id)
	}
}
