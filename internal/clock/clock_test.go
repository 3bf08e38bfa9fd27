package clock

import "testing"

func TestCacheSetGetRoundTrip(t *testing.T) {
	c := New(0)
	c.Set(2, 42)
	if got := c.Get(2); got != 42 {
		t.Errorf("expected 42, got %d", got)
	}
}

func TestVirtualTimeAppliesICountShift(t *testing.T) {
	c := New(4)
	if got := c.VirtualTime(10); got != 10<<4 {
		t.Errorf("expected %d, got %d", 10<<4, got)
	}
}

func TestVirtualTimeZeroICountIsIdentity(t *testing.T) {
	c := New(0)
	if got := c.VirtualTime(1000); got != 1000 {
		t.Errorf("expected 1000, got %d", got)
	}
}

func TestAdjustBiasShiftsVirtualTime(t *testing.T) {
	c := New(0)
	c.AdjustBias(5)
	if got := c.VirtualTime(10); got != 15 {
		t.Errorf("expected 15, got %d", got)
	}
	c.AdjustBias(-20)
	if got := c.VirtualTime(10); got != -5 {
		t.Errorf("expected -5, got %d", got)
	}
}

func TestICountReportsConfiguredShift(t *testing.T) {
	c := New(8)
	if c.ICount() != 8 {
		t.Errorf("expected 8, got %d", c.ICount())
	}
}
