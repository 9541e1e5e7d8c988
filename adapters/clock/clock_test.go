package clock_test

import (
	"testing"
	"time"

	"github.com/artpar/quotagate/adapters/clock"
)

func TestReal_NowIsUTC(t *testing.T) {
	before := time.Now()
	got := clock.Real{}.Now()
	after := time.Now()

	if got.Location() != time.UTC {
		t.Errorf("Now() location = %v, want UTC", got.Location())
	}
	if got.Before(before.Add(-time.Second)) || got.After(after.Add(time.Second)) {
		t.Errorf("Now() = %v, outside [%v, %v]", got, before, after)
	}
}

func TestFake_Stable(t *testing.T) {
	fixed := time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)
	c := clock.NewFake(fixed)

	if !c.Now().Equal(fixed) || !c.Now().Equal(fixed) {
		t.Error("fake clock without step should not move")
	}
}

func TestFake_SetAndAdvance(t *testing.T) {
	c := clock.NewFake(time.Time{})
	target := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	c.Set(target)
	c.Advance(90 * time.Minute)

	if want := target.Add(90 * time.Minute); !c.Now().Equal(want) {
		t.Errorf("Now() = %v, want %v", c.Now(), want)
	}
}

func TestFake_WithStep(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := clock.NewFake(start).WithStep(time.Second)

	first := c.Now()
	second := c.Now()

	if !first.Equal(start) {
		t.Errorf("first = %v, want %v", first, start)
	}
	if second.Sub(first) != time.Second {
		t.Errorf("step = %v, want 1s", second.Sub(first))
	}
}
