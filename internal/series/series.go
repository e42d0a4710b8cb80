// Package series defines the trading-record snapshot handed across the host
// scripting bridge. Everything here must stay plain data: only serializable
// values may cross into an event handler, so the types carry no live
// references and marshal cleanly to JSON.
package series

import (
	"fmt"
	"math"
	"time"
)

// Candle is one trading record. The chart compresses out non-trading days, so
// a candle's position in its Series, not its date, is the chart's native
// x-coordinate.
type Candle struct {
	Date   time.Time `json:"date"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume int64     `json:"volume"`
}

// Series is an ordered sequence of candles indexed by integer position.
// It is read-only for the lifetime of an attached chart: the index-to-date
// mapping is computed once and never invalidated on resize or pan.
type Series []Candle

// Validate checks the series against the host-bridge precondition: the data
// must survive JSON serialization and describe a plottable extent. A failure
// here is a setup-time integration error, not a runtime condition.
func (s Series) Validate() error {
	if len(s) == 0 {
		return fmt.Errorf("series is empty")
	}
	var prev time.Time
	for i, c := range s {
		if c.Date.IsZero() {
			return fmt.Errorf("candle %d: zero date", i)
		}
		if i > 0 && !c.Date.After(prev) {
			return fmt.Errorf("candle %d: date %s not after previous %s", i, c.Date.Format("2006-01-02"), prev.Format("2006-01-02"))
		}
		prev = c.Date
		for name, v := range map[string]float64{"open": c.Open, "high": c.High, "low": c.Low, "close": c.Close} {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("candle %d: non-serializable %s value", i, name)
			}
		}
		if c.Volume < 0 {
			return fmt.Errorf("candle %d: negative volume", i)
		}
	}
	return nil
}

// DateAt returns the date at the given integer position. The second return is
// false when the index falls outside the series; callers treat that as the
// cursor sitting over empty chart area, never as an error.
func (s Series) DateAt(index int) (time.Time, bool) {
	if index < 0 || index >= len(s) {
		return time.Time{}, false
	}
	return s[index].Date, true
}

// PrimaryMax returns the largest high price over the full extent.
func (s Series) PrimaryMax() float64 {
	var max float64
	for _, c := range s {
		if c.High > max {
			max = c.High
		}
	}
	return max
}

// SecondaryMax returns the largest volume over the full extent.
func (s Series) SecondaryMax() float64 {
	var max int64
	for _, c := range s {
		if c.Volume > max {
			max = c.Volume
		}
	}
	return float64(max)
}
