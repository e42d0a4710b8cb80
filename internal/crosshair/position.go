package crosshair

// Positioner mutates a label set from a resolved pointer event.
//
// Anchor conventions, per role:
//   - date: x in data units at the cursor's index, y pinned to the bottom
//     edge (screen y = 0) plus its fixed offset; shown only when the date
//     lookup succeeded.
//   - price: x pinned to the left edge (screen x = 0), y in data units at
//     the cursor's primary value; shown whenever the cursor is inside the
//     chart.
//   - volume: x pinned to the right edge (screen x = host width), y shares
//     the price label's data-unit position since both track the same
//     vertical cursor line; dual-axis charts only.
type Positioner struct {
	dualAxis bool
}

// NewPositioner returns a positioner. dualAxis=false suppresses the volume
// label entirely.
func NewPositioner(dualAxis bool) Positioner {
	return Positioner{dualAxis: dualAxis}
}

// Apply writes the tracking state for one move event into the label set.
func (p Positioner) Apply(res Resolution, ev PointerEvent, set *LabelSet) {
	set.Date.Visible = res.DateFound
	if res.DateFound {
		set.Date.AnchorX = ev.X
		set.Date.AnchorY = 0
		set.Date.Text = formatDate(res)
	}

	set.Price.Visible = true
	set.Price.AnchorX = 0
	set.Price.AnchorY = ev.Y
	set.Price.Text = formatReadout(res.Price)

	if !p.dualAxis {
		set.Volume.Visible = false
		return
	}
	set.Volume.Visible = true
	set.Volume.AnchorX = ev.HostWidth
	set.Volume.AnchorY = ev.Y
	set.Volume.Text = formatReadout(float64(res.Secondary))
}

// Hide clears visibility on every label; anchors and text are left as-is
// since hidden labels are never rendered.
func (p Positioner) Hide(set *LabelSet) {
	set.Date.Visible = false
	set.Price.Visible = false
	set.Volume.Visible = false
}
