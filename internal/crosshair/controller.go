// Package crosshair maps pointer events on a candlestick chart to positioned,
// formatted overlay readouts: a date label pinned to the bottom edge, a price
// label on the left axis, and a back-calculated volume label on the right
// axis of dual-axis charts.
package crosshair

import (
	"fmt"
	"sync"

	"github.com/dgnsrekt/crosshair_agent/internal/series"
)

// State is the controller's lifecycle state.
type State int

const (
	// StateIdle means all labels are hidden: initial state, re-entered on
	// pointer-leave.
	StateIdle State = iota
	// StateTracking means the value labels are visible, entered on every
	// pointer-move.
	StateTracking
)

func (s State) String() string {
	if s == StateTracking {
		return "tracking"
	}
	return "idle"
}

// Config tunes a controller. The zero value means a dual-axis chart with
// default pixel offsets. A non-nil Offsets is taken as given, so all-zero
// offsets are a valid configuration.
type Config struct {
	SingleAxis bool
	Offsets    *Offsets
}

// Controller owns one chart's crosshair lifecycle. Each chart gets its own
// controller with its own label set and precomputed ratio; concurrent charts
// on a page are fully independent.
//
// Handlers are synchronous and process every event independently: no timers,
// no debouncing. The mutex only guards against snapshot reads racing the
// host's event dispatch; within a chart the last-applied state wins.
type Controller struct {
	data    series.Series
	mapping AxisMapping
	pos     Positioner

	mu     sync.Mutex
	labels LabelSet
	state  State
}

// NewController validates the series against the serializable-boundary rule
// and builds the controller with all labels hidden. Validation failure is
// fatal at setup; it never becomes a runtime handler condition.
func NewController(s series.Series, m AxisMapping, cfg Config) (*Controller, error) {
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("series rejected at handler boundary: %w", err)
	}
	off := DefaultOffsets()
	if cfg.Offsets != nil {
		off = *cfg.Offsets
	}
	return &Controller{
		data:    s,
		mapping: m,
		pos:     NewPositioner(!cfg.SingleAxis),
		labels:  NewLabelSet(off),
		state:   StateIdle,
	}, nil
}

// HandleMove processes one pointer-move event and returns the resulting
// label state. An out-of-range date lookup still enters Tracking; only the
// date label stays hidden.
func (c *Controller) HandleMove(ev PointerEvent) LabelSet {
	res := Resolve(ev, c.data, c.mapping)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.pos.Apply(res, ev, &c.labels)
	c.state = StateTracking
	return c.labels
}

// HandleLeave hides every label unconditionally and returns the resulting
// state.
func (c *Controller) HandleLeave() LabelSet {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pos.Hide(&c.labels)
	c.state = StateIdle
	return c.labels
}

// Labels returns a snapshot of the current label state.
func (c *Controller) Labels() LabelSet {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.labels
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Mapping returns the fixed axis mapping the controller was built with.
func (c *Controller) Mapping() AxisMapping { return c.mapping }
