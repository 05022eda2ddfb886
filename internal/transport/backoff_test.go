package transport

import (
	"testing"
	"time"
)

func TestDefaultBackoffSchedule(t *testing.T) {
	b := DefaultBackoff()

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 1000 * time.Millisecond},
		{1, 1500 * time.Millisecond},
		{2, 2250 * time.Millisecond},
		{3, 3375 * time.Millisecond},
		{4, 5 * time.Second}, // 5062ms, capped
		{5, 5 * time.Second},
		{10, 5 * time.Second},
	}
	for _, tt := range tests {
		if got := b.Delay(tt.attempt); got != tt.want {
			t.Errorf("Delay(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestBackoffNonDecreasing(t *testing.T) {
	b := DefaultBackoff()
	prev := time.Duration(0)
	for attempt := 0; attempt < 20; attempt++ {
		d := b.Delay(attempt)
		if d < prev {
			t.Fatalf("Delay(%d) = %v < previous %v", attempt, d, prev)
		}
		if d > b.Max {
			t.Fatalf("Delay(%d) = %v exceeds cap %v", attempt, d, b.Max)
		}
		prev = d
	}
}

func TestBackoffNegativeAttempt(t *testing.T) {
	b := DefaultBackoff()
	if got := b.Delay(-1); got != b.Base {
		t.Errorf("Delay(-1) = %v, want %v", got, b.Base)
	}
}
