package series

import (
	"encoding/json"
	"math"
	"strings"
	"testing"
	"time"
)

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func validSeries() Series {
	return Series{
		{Date: day("2020-08-03"), Open: 2400, High: 2600, Low: 2350, Close: 2550, Volume: 1200000},
		{Date: day("2020-08-04"), Open: 2550, High: 2700, Low: 2500, Close: 2650, Volume: 1500000},
		{Date: day("2020-08-05"), Open: 2650, High: 3000, Low: 2600, Close: 2900, Volume: 2000000},
	}
}

func TestValidate(t *testing.T) {
	if err := validSeries().Validate(); err != nil {
		t.Fatalf("Validate() = %v; want nil", err)
	}

	cases := []struct {
		name    string
		mutate  func(Series) Series
		wantSub string
	}{
		{"empty", func(Series) Series { return Series{} }, "empty"},
		{"zero date", func(s Series) Series { s[1].Date = time.Time{}; return s }, "zero date"},
		{"unordered dates", func(s Series) Series { s[2].Date = s[0].Date; return s }, "not after"},
		{"nan close", func(s Series) Series { s[0].Close = math.NaN(); return s }, "non-serializable"},
		{"inf high", func(s Series) Series { s[1].High = math.Inf(1); return s }, "non-serializable"},
		{"negative volume", func(s Series) Series { s[2].Volume = -1; return s }, "negative volume"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.mutate(validSeries()).Validate()
			if err == nil {
				t.Fatalf("Validate() = nil; want error containing %q", tc.wantSub)
			}
			if !strings.Contains(err.Error(), tc.wantSub) {
				t.Fatalf("Validate() = %q; want substring %q", err, tc.wantSub)
			}
		})
	}
}

func TestValidSeriesIsJSONSerializable(t *testing.T) {
	s := validSeries()
	if err := s.Validate(); err != nil {
		t.Fatalf("Validate() = %v; want nil", err)
	}
	data, err := json.Marshal(s)
	if err != nil {
		t.Fatalf("json.Marshal() = %v; want nil", err)
	}
	var back Series
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("json.Unmarshal() = %v; want nil", err)
	}
	if len(back) != len(s) {
		t.Fatalf("round-trip length = %d; want %d", len(back), len(s))
	}
}

func TestDateAt(t *testing.T) {
	s := validSeries()

	for i := range s {
		d, ok := s.DateAt(i)
		if !ok {
			t.Fatalf("DateAt(%d) ok = false; want true", i)
		}
		if !d.Equal(s[i].Date) {
			t.Fatalf("DateAt(%d) = %v; want %v", i, d, s[i].Date)
		}
	}

	for _, i := range []int{-1, len(s), len(s) + 5} {
		if _, ok := s.DateAt(i); ok {
			t.Fatalf("DateAt(%d) ok = true; want false", i)
		}
	}
}

func TestExtents(t *testing.T) {
	s := validSeries()
	if got := s.PrimaryMax(); got != 3000 {
		t.Fatalf("PrimaryMax() = %v; want 3000", got)
	}
	if got := s.SecondaryMax(); got != 2000000 {
		t.Fatalf("SecondaryMax() = %v; want 2000000", got)
	}
	if got := (Series{}).PrimaryMax(); got != 0 {
		t.Fatalf("empty PrimaryMax() = %v; want 0", got)
	}
}
