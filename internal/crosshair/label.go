package crosshair

// Unit declares how a label anchor coordinate is interpreted. Mixing data and
// screen units on the same label is the point: axis-adjacent anchors use
// screen units so the label survives horizontal pan/zoom of the plotted range.
type Unit string

const (
	// UnitData anchors in logical axis units (sample index, price).
	UnitData Unit = "data"
	// UnitScreen anchors in rendered pixels. X is measured from the left
	// edge of the drawing area, Y from the bottom edge.
	UnitScreen Unit = "screen"
)

// Role identifies which readout a label carries.
type Role string

const (
	RoleDate   Role = "date"
	RolePrice  Role = "price"
	RoleVolume Role = "volume"
)

// Label is the mutable state of one overlay readout. Instances are created
// once per chart, mutated on every move/leave event, and destroyed with the
// chart; they hold no external resources.
type Label struct {
	Role    Role    `json:"role"`
	Visible bool    `json:"visible"`
	AnchorX float64 `json:"anchor_x"`
	AnchorY float64 `json:"anchor_y"`
	XUnits  Unit    `json:"x_units"`
	YUnits  Unit    `json:"y_units"`
	OffsetX float64 `json:"offset_x"`
	OffsetY float64 `json:"offset_y"`
	Text    string  `json:"text"`
}

// LabelSet holds the per-chart overlay labels. Volume participates only on
// dual-axis charts; on single-axis charts it stays hidden and is never
// rendered.
type LabelSet struct {
	Date   Label `json:"date"`
	Price  Label `json:"price"`
	Volume Label `json:"volume"`
}

// Offsets are the fixed pixel offsets that pin each label near its chart
// edge. X offsets push right (positive) or left (negative) of the anchor;
// Y offsets push down relative to the resolved pixel position.
type Offsets struct {
	DateX   float64 `json:"date_x"`
	DateY   float64 `json:"date_y"`
	PriceX  float64 `json:"price_x"`
	PriceY  float64 `json:"price_y"`
	VolumeX float64 `json:"volume_x"`
	VolumeY float64 `json:"volume_y"`
}

// DefaultOffsets pin the date readout just above the bottom edge and the
// value readouts just inside the left and right edges.
func DefaultOffsets() Offsets {
	return Offsets{
		DateX:   0,
		DateY:   -18,
		PriceX:  6,
		PriceY:  -8,
		VolumeX: -6,
		VolumeY: -8,
	}
}

// NewLabelSet builds the initial hidden label set with the anchor-unit
// declarations wired in. Units never change after construction; only
// visibility, anchors, and text mutate per event.
func NewLabelSet(off Offsets) LabelSet {
	return LabelSet{
		Date: Label{
			Role:    RoleDate,
			XUnits:  UnitData,
			YUnits:  UnitScreen,
			OffsetX: off.DateX,
			OffsetY: off.DateY,
		},
		Price: Label{
			Role:    RolePrice,
			XUnits:  UnitScreen,
			YUnits:  UnitData,
			OffsetX: off.PriceX,
			OffsetY: off.PriceY,
		},
		Volume: Label{
			Role:    RoleVolume,
			XUnits:  UnitScreen,
			YUnits:  UnitData,
			OffsetX: off.VolumeX,
			OffsetY: off.VolumeY,
		},
	}
}
