// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package ctfir

import "testing"

func TestClockClassRejectsZeroFrequency(t *testing.T) {
	cc, err := NewClockClass("c")
	if err != nil {
		t.Fatalf("NewClockClass: %v", err)
	}
	if err := cc.SetFrequency(0); err == nil {
		t.Fatal("expected error setting a zero clock frequency")
	}
}

func TestClockClassRejectsInvalidName(t *testing.T) {
	if _, err := NewClockClass("1bad"); err == nil {
		t.Fatal("expected error for a clock class name that isn't a valid identifier")
	}
}

func TestClockTimeNSConversion(t *testing.T) {
	cc, err := NewClockClass("c")
	if err != nil {
		t.Fatalf("NewClockClass: %v", err)
	}
	if err := cc.SetFrequency(1_000_000_000); err != nil {
		t.Fatalf("SetFrequency: %v", err)
	}
	clk, err := NewClock(cc)
	if err != nil {
		t.Fatalf("NewClock: %v", err)
	}
	if err := clk.SetTime(1_500_000_000); err != nil {
		t.Fatalf("SetTime: %v", err)
	}
	ns, err := clk.TimeNS()
	if err != nil {
		t.Fatalf("TimeNS: %v", err)
	}
	if ns != 1_500_000_000 {
		t.Errorf("TimeNS() = %d, want 1500000000 (1 GHz clock, 1.5e9 cycles)", ns)
	}
}

func TestClockTimeNSWithOffset(t *testing.T) {
	cc, err := NewClockClass("c")
	if err != nil {
		t.Fatalf("NewClockClass: %v", err)
	}
	if err := cc.SetFrequency(1_000); err != nil {
		t.Fatalf("SetFrequency: %v", err)
	}
	if err := cc.SetOffset(10, 500); err != nil {
		t.Fatalf("SetOffset: %v", err)
	}
	clk, err := NewClock(cc)
	if err != nil {
		t.Fatalf("NewClock: %v", err)
	}
	if err := clk.SetTime(500); err != nil {
		t.Fatalf("SetTime: %v", err)
	}
	ns, err := clk.TimeNS()
	if err != nil {
		t.Fatalf("TimeNS: %v", err)
	}
	want := int64(10*1_000_000_000 + (500+500)*1_000_000_000/1_000)
	if ns != want {
		t.Errorf("TimeNS() = %d, want %d", ns, want)
	}
}

func TestClockSetTimeRejectedAfterClassFrozen(t *testing.T) {
	cc, err := NewClockClass("c")
	if err != nil {
		t.Fatalf("NewClockClass: %v", err)
	}
	clk, err := NewClock(cc)
	if err != nil {
		t.Fatalf("NewClock: %v", err)
	}
	cc.Freeze()
	if err := clk.SetTime(1); err == nil {
		t.Fatal("expected error setting time once the clock class is frozen")
	}
}
