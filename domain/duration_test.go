package domain

import (
	"testing"
	"time"
)

func TestParseDurationLiteral(t *testing.T) {
	cases := []struct {
		literal    string
		allowWeeks bool
		want       time.Duration
		wantErr    bool
	}{
		{"30m", false, 30 * time.Minute, false},
		{"2h", false, 2 * time.Hour, false},
		{"1d", false, 24 * time.Hour, false},
		{"1w", false, 0, true},
		{"1w", true, 7 * 24 * time.Hour, false},
		{"abc", true, 0, true},
		{"-1h", true, 0, true},
		{"", true, 0, true},
	}
	for _, c := range cases {
		got, err := ParseDurationLiteral(c.literal, c.allowWeeks)
		if c.wantErr {
			if err == nil {
				t.Errorf("%q (weeks=%v): expected error", c.literal, c.allowWeeks)
			}
			continue
		}
		if err != nil {
			t.Errorf("%q: unexpected error: %v", c.literal, err)
			continue
		}
		if got != c.want {
			t.Errorf("%q: got %v, want %v", c.literal, got, c.want)
		}
	}
}
