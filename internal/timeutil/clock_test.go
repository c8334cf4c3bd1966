package timeutil

import (
	"testing"
	"time"
)

func TestRealClock_Now(t *testing.T) {
	clock := RealClock{}
	before := time.Now()
	now := clock.Now()
	after := time.Now()

	if now.Before(before) || now.After(after) {
		t.Errorf("Now() = %v, expected between %v and %v", now, before, after)
	}
}

func TestRealClock_Since(t *testing.T) {
	clock := RealClock{}
	past := time.Now().Add(-time.Second)
	d := clock.Since(past)

	if d < time.Second {
		t.Errorf("Since() returned %v, expected >= 1s", d)
	}
}

func TestRealClock_NewTimer(t *testing.T) {
	clock := RealClock{}
	timer := clock.NewTimer(10 * time.Millisecond)
	defer timer.Stop()

	select {
	case <-timer.C():
	case <-time.After(time.Second):
		t.Error("timer did not fire")
	}
}

func TestMockClock_Advance(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := NewMockClock(start)
	clock.Advance(time.Hour)
	expected := start.Add(time.Hour)

	if !clock.Now().Equal(expected) {
		t.Errorf("got %v, want %v", clock.Now(), expected)
	}
}

func TestMockClock_SinceUntil(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	clock := NewMockClock(now)

	if d := clock.Since(now.Add(-5 * time.Minute)); d != 5*time.Minute {
		t.Errorf("Since: got %v, want 5m", d)
	}
	if d := clock.Until(now.Add(10 * time.Minute)); d != 10*time.Minute {
		t.Errorf("Until: got %v, want 10m", d)
	}
}

func TestMockClock_Timer(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := NewMockClock(start)
	timer := clock.NewTimer(5 * time.Minute)

	select {
	case <-timer.C():
		t.Error("timer fired too early")
	default:
	}

	clock.Advance(5 * time.Minute)

	select {
	case <-timer.C():
	default:
		t.Error("timer did not fire at its deadline")
	}

	if timer.Stop() {
		t.Error("Stop should return false for a fired timer")
	}
}

func TestMockClock_Timer_Stop(t *testing.T) {
	clock := NewMockClock(time.Now())
	timer := clock.NewTimer(time.Minute)

	if !timer.Stop() {
		t.Error("Stop should return true for active timer")
	}

	clock.Advance(2 * time.Minute)

	select {
	case <-timer.C():
		t.Error("stopped timer should not fire")
	default:
	}
}

func TestMockTimer_ResetMovesDeadline(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := NewMockClock(start)
	timer := clock.NewTimer(time.Minute)

	clock.Advance(50 * time.Second)
	timer.Reset(30 * time.Second)

	// The original deadline (60s) has passed but the reset one (80s) has not.
	clock.Advance(20 * time.Second)
	select {
	case <-timer.C():
		t.Fatal("timer fired at its old deadline after Reset")
	default:
	}

	clock.Advance(10 * time.Second)
	select {
	case <-timer.C():
	default:
		t.Error("timer did not fire at its reset deadline")
	}
}
