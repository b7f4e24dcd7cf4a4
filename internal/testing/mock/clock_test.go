package mock

import (
	"testing"
	"time"
)

func TestRealClock_Now(t *testing.T) {
	before := time.Now()
	got := RealClock{}.Now()
	after := time.Now()

	if got.Before(before) || got.After(after) {
		t.Errorf("RealClock.Now() returned time outside expected range")
	}
}

func TestMockClock_AdvanceAndSet(t *testing.T) {
	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	clock := NewMockClock(start)

	if !clock.Now().Equal(start) {
		t.Errorf("Expected time %v, got %v", start, clock.Now())
	}

	clock.Advance(90 * time.Minute)
	if want := start.Add(90 * time.Minute); !clock.Now().Equal(want) {
		t.Errorf("Expected time %v after advance, got %v", want, clock.Now())
	}

	later := time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC)
	clock.Set(later)
	if !clock.Now().Equal(later) {
		t.Errorf("Expected time %v after Set, got %v", later, clock.Now())
	}
}

func TestMockClock_ZeroTime(t *testing.T) {
	before := time.Now()
	clock := NewMockClock(time.Time{})
	after := time.Now()

	if got := clock.Now(); got.Before(before) || got.After(after) {
		t.Errorf("MockClock with zero time should initialize to current time")
	}
}

func TestMockClock_SigningDate(t *testing.T) {
	// Links issued just before midnight are signed on the next calendar day.
	clock := NewMockClock(time.Date(2026, 3, 2, 23, 59, 0, 0, time.UTC))
	issued := clock.Now()

	clock.Advance(2 * time.Minute)
	if signed := clock.Now(); signed.Format(DateLayout) == issued.Format(DateLayout) {
		t.Errorf("Expected signing date to roll over, both were %s", signed.Format(DateLayout))
	}
}
