package schedule

import (
	"testing"
	"time"
)

func TestParseValid(t *testing.T) {
	for _, expr := range []string{
		"* * * * *",
		"0 9 * * 1-5",
		"*/15 * * * *",
		"0 0 1 1 *",
		"30 8,12,18 * * *",
		"5-50/5 * * * *",
		"@daily",
		"@hourly",
	} {
		if _, err := Parse(expr); err != nil {
			t.Errorf("Parse(%q) = %v, want nil", expr, err)
		}
	}
}

func TestParseInvalid(t *testing.T) {
	for _, expr := range []string{
		"",
		"* * * *",
		"* * * * * *",
		"60 * * * *",
		"* 24 * * *",
		"* * 0 * *",
		"* * * 13 *",
		"* * * * 7",
		"*/0 * * * *",
		"10-5 * * * *",
		"a * * * *",
		"@fortnightly",
	} {
		if _, err := Parse(expr); err == nil {
			t.Errorf("Parse(%q) = nil error, want failure", expr)
		}
	}
}

func TestNext(t *testing.T) {
	// Monday 2026-03-02 10:30 UTC.
	from := time.Date(2026, 3, 2, 10, 30, 0, 0, time.UTC)

	cases := []struct {
		expr string
		want time.Time
	}{
		{"* * * * *", time.Date(2026, 3, 2, 10, 31, 0, 0, time.UTC)},
		{"0 * * * *", time.Date(2026, 3, 2, 11, 0, 0, 0, time.UTC)},
		{"0 9 * * *", time.Date(2026, 3, 3, 9, 0, 0, 0, time.UTC)},
		{"0 9 * * 1-5", time.Date(2026, 3, 3, 9, 0, 0, 0, time.UTC)},
		{"0 9 * * 0", time.Date(2026, 3, 8, 9, 0, 0, 0, time.UTC)},
		{"*/15 * * * *", time.Date(2026, 3, 2, 10, 45, 0, 0, time.UTC)},
		{"@monthly", time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)},
	}
	for _, tc := range cases {
		s, err := Parse(tc.expr)
		if err != nil {
			t.Fatalf("Parse(%q): %v", tc.expr, err)
		}
		if got := s.Next(from); !got.Equal(tc.want) {
			t.Errorf("Next(%q) = %v, want %v", tc.expr, got, tc.want)
		}
	}
}

func TestNextIsStrictlyAfter(t *testing.T) {
	s, err := Parse("30 10 * * *")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	from := time.Date(2026, 3, 2, 10, 30, 0, 0, time.UTC)
	got := s.Next(from)
	want := time.Date(2026, 3, 3, 10, 30, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("Next from an exact match = %v, want %v", got, want)
	}
}
