package crosshair

import (
	"math"
	"strings"
	"testing"
)

func newTestController(t *testing.T, cfg Config) *Controller {
	t.Helper()
	c, err := NewController(fiveDaySeries(), fixtureMapping(t), cfg)
	if err != nil {
		t.Fatalf("NewController() = %v; want nil", err)
	}
	return c
}

func TestNewControllerRejectsNonSerializableSeries(t *testing.T) {
	s := fiveDaySeries()
	s[2].Close = math.NaN()
	_, err := NewController(s, fixtureMapping(t), Config{})
	if err == nil {
		t.Fatalf("NewController() = nil; want serializability error")
	}
	if !strings.Contains(err.Error(), "handler boundary") {
		t.Fatalf("NewController() = %q; want handler boundary error", err)
	}
}

func TestMoveEventScenario(t *testing.T) {
	c := newTestController(t, Config{})

	if c.State() != StateIdle {
		t.Fatalf("initial state = %v; want idle", c.State())
	}

	set := c.HandleMove(PointerEvent{X: 2, Y: 2500, HostWidth: 800, HostHeight: 400})
	if c.State() != StateTracking {
		t.Fatalf("state after move = %v; want tracking", c.State())
	}

	if !set.Date.Visible || set.Date.Text != "2020-08-05" {
		t.Fatalf("date label = (visible %v, text %q); want (true, \"2020-08-05\")", set.Date.Visible, set.Date.Text)
	}
	if set.Date.AnchorX != 2 || set.Date.AnchorY != 0 {
		t.Fatalf("date anchor = (%v, %v); want (2, 0)", set.Date.AnchorX, set.Date.AnchorY)
	}
	if set.Date.XUnits != UnitData || set.Date.YUnits != UnitScreen {
		t.Fatalf("date units = (%s, %s); want (data, screen)", set.Date.XUnits, set.Date.YUnits)
	}

	if !set.Price.Visible || set.Price.Text != "2,500" {
		t.Fatalf("price label = (visible %v, text %q); want (true, \"2,500\")", set.Price.Visible, set.Price.Text)
	}
	if set.Price.AnchorX != 0 || set.Price.AnchorY != 2500 {
		t.Fatalf("price anchor = (%v, %v); want (0, 2500)", set.Price.AnchorX, set.Price.AnchorY)
	}
	if set.Price.XUnits != UnitScreen || set.Price.YUnits != UnitData {
		t.Fatalf("price units = (%s, %s); want (screen, data)", set.Price.XUnits, set.Price.YUnits)
	}

	if !set.Volume.Visible || set.Volume.Text != "1,666,667" {
		t.Fatalf("volume label = (visible %v, text %q); want (true, \"1,666,667\")", set.Volume.Visible, set.Volume.Text)
	}
	if set.Volume.AnchorX != 800 || set.Volume.AnchorY != 2500 {
		t.Fatalf("volume anchor = (%v, %v); want (800, 2500)", set.Volume.AnchorX, set.Volume.AnchorY)
	}
}

func TestMoveOutOfRangeHidesOnlyDateLabel(t *testing.T) {
	c := newTestController(t, Config{})

	c.HandleMove(PointerEvent{X: 2, Y: 2500, HostWidth: 800})
	set := c.HandleMove(PointerEvent{X: 10, Y: 2500, HostWidth: 800})

	if c.State() != StateTracking {
		t.Fatalf("state = %v; want tracking despite out-of-range lookup", c.State())
	}
	if set.Date.Visible {
		t.Fatalf("date label visible = true; want false for out-of-range index")
	}
	if !set.Price.Visible || set.Price.Text != "2,500" {
		t.Fatalf("price label = (visible %v, text %q); want unchanged (true, \"2,500\")", set.Price.Visible, set.Price.Text)
	}
	if !set.Volume.Visible || set.Volume.Text != "1,666,667" {
		t.Fatalf("volume label = (visible %v, text %q); want unchanged (true, \"1,666,667\")", set.Volume.Visible, set.Volume.Text)
	}
}

func TestMoveIsIdempotent(t *testing.T) {
	c := newTestController(t, Config{})
	ev := PointerEvent{X: 3, Y: 1234.4, ScreenX: 120, ScreenY: 80, HostWidth: 640, HostHeight: 480}

	first := c.HandleMove(ev)
	second := c.HandleMove(ev)
	if first != second {
		t.Fatalf("repeated move diverged:\nfirst:  %+v\nsecond: %+v", first, second)
	}
}

func TestLeaveHidesAllLabels(t *testing.T) {
	c := newTestController(t, Config{})

	// Leave from Idle.
	set := c.HandleLeave()
	if set.Date.Visible || set.Price.Visible || set.Volume.Visible {
		t.Fatalf("leave from idle left labels visible: %+v", set)
	}

	// Leave from Tracking.
	c.HandleMove(PointerEvent{X: 1, Y: 2000, HostWidth: 800})
	set = c.HandleLeave()
	if set.Date.Visible || set.Price.Visible || set.Volume.Visible {
		t.Fatalf("leave from tracking left labels visible: %+v", set)
	}
	if c.State() != StateIdle {
		t.Fatalf("state after leave = %v; want idle", c.State())
	}
}

func TestSingleAxisChartNeverShowsVolume(t *testing.T) {
	c := newTestController(t, Config{SingleAxis: true})

	set := c.HandleMove(PointerEvent{X: 2, Y: 2500, HostWidth: 800})
	if set.Volume.Visible {
		t.Fatalf("volume label visible on single-axis chart")
	}
	if !set.Price.Visible || !set.Date.Visible {
		t.Fatalf("price/date labels = (%v, %v); want both visible", set.Price.Visible, set.Date.Visible)
	}
}

func TestCustomOffsetsCarryIntoLabels(t *testing.T) {
	off := Offsets{DateY: -30, PriceX: 12, VolumeX: -12}
	c := newTestController(t, Config{Offsets: &off})

	set := c.Labels()
	if set.Date.OffsetY != -30 {
		t.Fatalf("date offset y = %v; want -30", set.Date.OffsetY)
	}
	if set.Price.OffsetX != 12 {
		t.Fatalf("price offset x = %v; want 12", set.Price.OffsetX)
	}
	if set.Volume.OffsetX != -12 {
		t.Fatalf("volume offset x = %v; want -12", set.Volume.OffsetX)
	}
}

func TestAllZeroOffsetsAreHonored(t *testing.T) {
	c := newTestController(t, Config{Offsets: &Offsets{}})

	set := c.Labels()
	if set.Date.OffsetY != 0 || set.Price.OffsetX != 0 || set.Volume.OffsetX != 0 {
		t.Fatalf("zero offsets replaced by defaults: date y %v, price x %v, volume x %v",
			set.Date.OffsetY, set.Price.OffsetX, set.Volume.OffsetX)
	}

	// Nil still means defaults.
	c = newTestController(t, Config{})
	if got := c.Labels().Date.OffsetY; got != DefaultOffsets().DateY {
		t.Fatalf("nil offsets date y = %v; want default %v", got, DefaultOffsets().DateY)
	}
}

func TestFormatReadout(t *testing.T) {
	cases := []struct {
		in   float64
		want string
	}{
		{2500, "2,500"},
		{1666666.67, "1,666,667"},
		{999, "999"},
		{0, "0"},
		{1234567.2, "1,234,567"},
	}
	for _, tc := range cases {
		if got := formatReadout(tc.in); got != tc.want {
			t.Fatalf("formatReadout(%v) = %q; want %q", tc.in, got, tc.want)
		}
	}
}
