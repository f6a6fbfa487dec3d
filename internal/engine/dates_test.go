package engine

import (
	"testing"
	"time"
)

func TestDaysBetween(t *testing.T) {
	tests := []struct {
		name string
		a, b time.Time
		want int
	}{
		{
			name: "same day different hours",
			a:    time.Date(2024, 3, 15, 23, 0, 0, 0, time.UTC),
			b:    time.Date(2024, 3, 15, 1, 0, 0, 0, time.UTC),
			want: 0,
		},
		{
			name: "one day apart",
			a:    time.Date(2024, 3, 15, 1, 0, 0, 0, time.UTC),
			b:    time.Date(2024, 3, 14, 23, 0, 0, 0, time.UTC),
			want: 1,
		},
		{
			name: "negative when b later",
			a:    time.Date(2024, 3, 14, 0, 0, 0, 0, time.UTC),
			b:    time.Date(2024, 3, 16, 0, 0, 0, 0, time.UTC),
			want: -2,
		},
		{
			name: "across month boundary",
			a:    time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC),
			b:    time.Date(2024, 2, 28, 0, 0, 0, 0, time.UTC),
			want: 3, // 2024 is a leap year
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DaysBetween(tt.a, tt.b); got != tt.want {
				t.Errorf("DaysBetween() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestParseDurationHint(t *testing.T) {
	tests := []struct {
		hint string
		want int
	}{
		{"7天", 7},
		{"14天", 14},
		{"2周", 14},
		{"1个月", 30},
		{"10 days", 10},
		{"3 weeks", 21},
		{"2 months", 60},
		{"21", 21},
		{"", 7},
		{"看情况", 7},
		{"0天", 7},
	}

	for _, tt := range tests {
		t.Run(tt.hint, func(t *testing.T) {
			if got := ParseDurationHint(tt.hint); got != tt.want {
				t.Errorf("ParseDurationHint(%q) = %d, want %d", tt.hint, got, tt.want)
			}
		})
	}
}
