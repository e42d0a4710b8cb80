package crosshair

import (
	"fmt"
	"math"

	"github.com/dgnsrekt/crosshair_agent/internal/series"
)

// AxisMapping relates the primary (price) axis to the secondary (volume)
// axis. Both ranges share the same pixel-height span, so a cursor's
// primary-axis value back-calculates the secondary value through a single
// precomputed ratio.
//
// The ratio is fixed when the mapping is built from the full visible extent
// and is NOT recomputed on zoom or pan. Re-attaching the crosshair is the
// supported way to pick up new extents.
type AxisMapping struct {
	primaryMax   float64
	secondaryMax float64
	ratio        float64
}

// NewAxisMapping builds a mapping from two axis maxima. Both must be strictly
// positive, which also makes the ratio arithmetic total (no division by zero
// downstream).
func NewAxisMapping(primaryMax, secondaryMax float64) (AxisMapping, error) {
	if math.IsNaN(primaryMax) || math.IsInf(primaryMax, 0) || primaryMax <= 0 {
		return AxisMapping{}, fmt.Errorf("primary axis max must be positive, got %v", primaryMax)
	}
	if math.IsNaN(secondaryMax) || math.IsInf(secondaryMax, 0) || secondaryMax <= 0 {
		return AxisMapping{}, fmt.Errorf("secondary axis max must be positive, got %v", secondaryMax)
	}
	return AxisMapping{
		primaryMax:   primaryMax,
		secondaryMax: secondaryMax,
		ratio:        secondaryMax / primaryMax,
	}, nil
}

// MappingFromSeries builds the mapping from a series' full data extent.
func MappingFromSeries(s series.Series) (AxisMapping, error) {
	return NewAxisMapping(s.PrimaryMax(), s.SecondaryMax())
}

// Ratio returns secondaryMax / primaryMax.
func (m AxisMapping) Ratio() float64 { return m.ratio }

// PrimaryMax returns the primary-axis maximum the mapping was built from.
func (m AxisMapping) PrimaryMax() float64 { return m.primaryMax }

// SecondaryMax returns the secondary-axis maximum the mapping was built from.
func (m AxisMapping) SecondaryMax() float64 { return m.secondaryMax }

// SecondaryValue back-calculates the secondary-axis value for a primary-axis
// cursor position. The host exposes no accessor for a secondary value at a
// screen point, so this derivation is the designed path.
func (m AxisMapping) SecondaryValue(y float64) int64 {
	return int64(math.Round(y * m.ratio))
}
