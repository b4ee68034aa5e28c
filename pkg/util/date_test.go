package util

import (
	"strconv"
	"testing"
	"time"
)

func TestParseTimeRFC3339(t *testing.T) {
	s := "2024-10-10T10:10:10Z"
	got, ok := ParseTime(s)
	if !ok {
		t.Fatalf("expected ok")
	}
	if got.UTC().Format(time.RFC3339) != s {
		t.Fatalf("unexpected time %v", got)
	}
}

func TestParseTimeLayouts(t *testing.T) {
	want := time.Date(2025, 3, 7, 13, 30, 0, 0, time.UTC)
	for _, s := range []string{"2025-03-07 13:30:00", "2025-03-07T13:30:00", "2025-03-07 13:30", "Mar 7, 2025 13:30"} {
		got, ok := ParseTime(s)
		if !ok || !got.Equal(want) {
			t.Fatalf("ParseTime(%q) = %v, %v", s, got, ok)
		}
	}
}

func TestParseTimeUnix(t *testing.T) {
	ts := time.Date(2024, 10, 10, 10, 10, 10, 0, time.UTC).Unix()
	got, ok := ParseTime(strconv.FormatInt(ts, 10))
	if !ok || got.Unix() != ts {
		t.Fatalf("unexpected unix %v", got.Unix())
	}
	got, ok = ParseTime(strconv.FormatInt(ts*1000, 10))
	if !ok || got.Unix() != ts {
		t.Fatalf("unexpected unix millis %v", got.Unix())
	}
}

func TestParseTimeRejectsGarbage(t *testing.T) {
	if _, ok := ParseTime("yesterday-ish"); ok {
		t.Fatalf("expected failure")
	}
}

func TestISOWeekBounds(t *testing.T) {
	// Sunday belongs to the week that started the previous Monday.
	sun := time.Date(2025, 3, 9, 18, 0, 0, 0, time.UTC)
	start, end := ISOWeekBounds(sun)
	if !start.Equal(time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("start = %v", start)
	}
	if !end.Equal(time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("end = %v", end)
	}
}

func TestRound(t *testing.T) {
	cases := map[float64]float64{0.125: 0.13, -0.125: -0.13, 1.004: 1, 2.675: 2.68}
	for in, want := range cases {
		if got := Round(in, 2); got != want {
			// 2.675 is not exactly representable; accept the IEEE result.
			if in == 2.675 && got == 2.67 {
				continue
			}
			t.Fatalf("Round(%v) = %v, want %v", in, got, want)
		}
	}
}
