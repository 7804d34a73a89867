package timeutil

import (
	"testing"
	"time"
)

func TestRealClock(t *testing.T) {
	clock := RealClock{}
	before := time.Now()
	now := clock.Now()
	if now.Before(before) {
		t.Errorf("RealClock.Now() = %v, before %v", now, before)
	}
	if clock.Since(before) < 0 {
		t.Error("RealClock.Since returned a negative duration")
	}
}

func TestMockClock(t *testing.T) {
	start := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	clock := NewMockClock(start)

	if !clock.Now().Equal(start) {
		t.Errorf("Now() = %v, want %v", clock.Now(), start)
	}
	clock.Advance(90 * time.Second)
	if got := clock.Since(start); got != 90*time.Second {
		t.Errorf("Since() = %v, want 90s", got)
	}
	later := start.Add(time.Hour)
	clock.Set(later)
	if !clock.Now().Equal(later) {
		t.Errorf("Now() after Set = %v, want %v", clock.Now(), later)
	}
}

func TestStopwatch(t *testing.T) {
	clock := NewMockClock(time.Unix(0, 0))
	sw := NewStopwatch(clock)

	clock.Advance(2 * time.Second)
	if d := sw.Lap("histogram"); d != 2*time.Second {
		t.Errorf("first lap = %v, want 2s", d)
	}
	clock.Advance(500 * time.Millisecond)
	sw.Lap("fit")

	laps := sw.Laps()
	if len(laps) != 2 || laps[0].Name != "histogram" || laps[1].Duration != 500*time.Millisecond {
		t.Errorf("unexpected laps: %+v", laps)
	}
	if sw.Elapsed() != 2500*time.Millisecond {
		t.Errorf("Elapsed() = %v, want 2.5s", sw.Elapsed())
	}

	laps[0].Name = "changed"
	if sw.Laps()[0].Name != "histogram" {
		t.Error("Laps must return a copy")
	}
}
