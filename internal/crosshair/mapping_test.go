package crosshair

import (
	"math"
	"testing"

	"github.com/dgnsrekt/crosshair_agent/internal/series"
)

func TestNewAxisMapping(t *testing.T) {
	m, err := NewAxisMapping(3000, 2000000)
	if err != nil {
		t.Fatalf("NewAxisMapping() = %v; want nil", err)
	}
	want := 2000000.0 / 3000.0
	if m.Ratio() != want {
		t.Fatalf("Ratio() = %v; want %v", m.Ratio(), want)
	}
	if m.PrimaryMax() != 3000 || m.SecondaryMax() != 2000000 {
		t.Fatalf("maxima = (%v, %v); want (3000, 2000000)", m.PrimaryMax(), m.SecondaryMax())
	}
}

func TestNewAxisMappingRejectsBadExtents(t *testing.T) {
	cases := []struct {
		name               string
		primary, secondary float64
	}{
		{"zero primary", 0, 100},
		{"zero secondary", 100, 0},
		{"negative primary", -1, 100},
		{"nan primary", math.NaN(), 100},
		{"inf secondary", 100, math.Inf(1)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := NewAxisMapping(tc.primary, tc.secondary); err == nil {
				t.Fatalf("NewAxisMapping(%v, %v) = nil; want error", tc.primary, tc.secondary)
			}
		})
	}
}

func TestSecondaryValueRatioComposition(t *testing.T) {
	m, err := NewAxisMapping(3000, 2000000)
	if err != nil {
		t.Fatalf("NewAxisMapping() = %v; want nil", err)
	}

	// The precomputed ratio must agree with computing from the raw maxima
	// for any y.
	for _, y := range []float64{0, 1, 2500, 2999.99, 3000, 4500} {
		got := m.SecondaryValue(y)
		want := int64(math.Round(y * (2000000.0 / 3000.0)))
		if got != want {
			t.Fatalf("SecondaryValue(%v) = %d; want %d", y, got, want)
		}
	}

	if got := m.SecondaryValue(2500); got != 1666667 {
		t.Fatalf("SecondaryValue(2500) = %d; want 1666667", got)
	}
}

func TestMappingFromSeries(t *testing.T) {
	s := series.Series{
		{Date: day("2020-08-03"), High: 2600, Volume: 1200000},
		{Date: day("2020-08-04"), High: 3000, Volume: 2000000},
	}
	m, err := MappingFromSeries(s)
	if err != nil {
		t.Fatalf("MappingFromSeries() = %v; want nil", err)
	}
	if m.PrimaryMax() != 3000 || m.SecondaryMax() != 2000000 {
		t.Fatalf("maxima = (%v, %v); want (3000, 2000000)", m.PrimaryMax(), m.SecondaryMax())
	}

	if _, err := MappingFromSeries(series.Series{}); err == nil {
		t.Fatalf("MappingFromSeries(empty) = nil; want error")
	}
}
