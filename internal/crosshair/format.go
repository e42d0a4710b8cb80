package crosshair

import (
	"math"

	"github.com/leekchan/accounting"
)

// formatReadout renders a value rounded to an integer with thousands
// separators, e.g. 2500 -> "2,500".
func formatReadout(v float64) string {
	return accounting.FormatNumberInt(int(math.Round(v)), 0, ",", ".")
}

// formatDate renders a date truncated to day precision.
func formatDate(r Resolution) string {
	return r.Date.Format("2006-01-02")
}
