package crosshair

import (
	"math"
	"time"

	"github.com/dgnsrekt/crosshair_agent/internal/series"
)

// PointerEvent is the immutable snapshot the host produces per pointer move.
// X is a fractional data index, Y is already in primary-axis units; the
// screen coordinates and host geometry are injected rather than read back
// through a host handle.
type PointerEvent struct {
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	ScreenX    float64 `json:"screen_x"`
	ScreenY    float64 `json:"screen_y"`
	HostWidth  float64 `json:"host_width"`
	HostHeight float64 `json:"host_height"`
}

// Resolution is the outcome of mapping a pointer event onto the series and
// axis mapping. DateFound=false means the rounded index fell outside the
// series and the cursor is over empty chart area. That is a value, not an
// error: the price and secondary readouts do not depend on the lookup and
// stay valid.
type Resolution struct {
	Index     int
	Date      time.Time
	DateFound bool
	Price     float64
	Secondary int64
}

// Resolve rounds the event's fractional index to the nearest candle, looks up
// its date, and back-calculates the secondary-axis value.
func Resolve(ev PointerEvent, s series.Series, m AxisMapping) Resolution {
	index := int(math.Round(ev.X))
	date, found := s.DateAt(index)
	return Resolution{
		Index:     index,
		Date:      date,
		DateFound: found,
		Price:     ev.Y,
		Secondary: m.SecondaryValue(ev.Y),
	}
}
