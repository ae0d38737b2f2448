// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package ctfir

import (
	"fmt"
	"math/big"

	"github.com/google/uuid"
)

// ClockClass describes a monotonic cycle counter and its conversion to
// wall-clock time (spec §3.5).
type ClockClass struct {
	Name          string
	Description   string
	Frequency     uint64 // Hz
	Precision     uint64
	OffsetSeconds int64
	OffsetCycles  int64
	IsAbsolute    bool
	UUID          uuid.UUID
	hasUUID       bool
	frozen        bool
}

// NewClockClass creates a mutable clock class at 1 GHz with zero offsets,
// generating a fresh UUID the way a real trace writer stamps every clock
// class it creates (SPEC_FULL.md §2, google/uuid wiring).
func NewClockClass(name string) (*ClockClass, error) {
	if !IsValidIdentifier(name) {
		return nil, fmt.Errorf("NewClockClass(%s): %w", name, ErrInvalidArgument)
	}
	return &ClockClass{
		Name:      name,
		Frequency: 1_000_000_000,
		UUID:      uuid.New(),
		hasUUID:   true,
	}, nil
}

func (cc *ClockClass) checkMutable() error {
	if cc.frozen {
		return fmt.Errorf("clockclass(%s): %w", cc.Name, ErrFrozenObject)
	}
	return nil
}

// SetDescription sets the clock class's human-readable description.
func (cc *ClockClass) SetDescription(desc string) error {
	if err := cc.checkMutable(); err != nil {
		return err
	}
	cc.Description = desc
	return nil
}

// SetFrequency sets the clock class's frequency in Hz; must be nonzero.
func (cc *ClockClass) SetFrequency(hz uint64) error {
	if hz == 0 {
		return fmt.Errorf("clockclass.SetFrequency: %w", ErrInvalidArgument)
	}
	if err := cc.checkMutable(); err != nil {
		return err
	}
	cc.Frequency = hz
	return nil
}

// SetPrecision sets the clock class's precision, in cycles.
func (cc *ClockClass) SetPrecision(p uint64) error {
	if err := cc.checkMutable(); err != nil {
		return err
	}
	cc.Precision = p
	return nil
}

// SetOffset sets the clock class's offset, in seconds plus cycles.
func (cc *ClockClass) SetOffset(seconds, cycles int64) error {
	if err := cc.checkMutable(); err != nil {
		return err
	}
	cc.OffsetSeconds = seconds
	cc.OffsetCycles = cycles
	return nil
}

// SetIsAbsolute marks the clock class as measuring absolute (wall) time
// rather than a relative/arbitrary origin.
func (cc *ClockClass) SetIsAbsolute(abs bool) error {
	if err := cc.checkMutable(); err != nil {
		return err
	}
	cc.IsAbsolute = abs
	return nil
}

// SetUUID overrides the clock class's UUID.
func (cc *ClockClass) SetUUID(id uuid.UUID) error {
	if err := cc.checkMutable(); err != nil {
		return err
	}
	cc.UUID = id
	cc.hasUUID = true
	return nil
}

// Freeze freezes the clock class; idempotent.
func (cc *ClockClass) Freeze() { cc.frozen = true }

// IsFrozen reports whether the clock class has been frozen.
func (cc *ClockClass) IsFrozen() bool { return cc.frozen }

// Clock is an instance of a ClockClass with a mutable cycle counter
// (spec §3.5, §4.5).
type Clock struct {
	Class        *ClockClass
	currentValue uint64
}

// NewClock creates a clock bound to class, starting at cycle 0.
func NewClock(class *ClockClass) (*Clock, error) {
	if class == nil {
		return nil, fmt.Errorf("NewClock: %w", ErrInvalidArgument)
	}
	return &Clock{Class: class}, nil
}

// SetTime sets the clock's current cycle value. Fails once the clock
// class is frozen (which happens when the owning stream class is
// frozen).
func (c *Clock) SetTime(cycles uint64) error {
	if c.Class.IsFrozen() {
		return fmt.Errorf("clock.SetTime: %w", ErrFrozenObject)
	}
	c.currentValue = cycles
	return nil
}

// GetTime returns the clock's current cycle value; non-mutating.
func (c *Clock) GetTime() uint64 { return c.currentValue }

// TimeNS computes the wall-clock nanosecond reading of the clock using
// the formula of spec §3.5:
//
//	ns = offset_s*1e9 + (offset_cycles + current_value) * 1e9 / frequency
//
// The intermediate product is widened through math/big so that it can
// never overflow internally; ErrTimeOverflow is returned if the clock
// class's frequency is zero or if the final result does not fit in an
// int64.
func (c *Clock) TimeNS() (int64, error) {
	freq := c.Class.Frequency
	if freq == 0 {
		return 0, fmt.Errorf("clock.TimeNS: zero frequency: %w", ErrTimeOverflow)
	}

	cyclesTotal := new(big.Int).Add(big.NewInt(c.Class.OffsetCycles), new(big.Int).SetUint64(c.currentValue))
	cyclesNS := new(big.Int).Mul(cyclesTotal, big.NewInt(1_000_000_000))
	cyclesNS.Quo(cyclesNS, new(big.Int).SetUint64(freq))

	offsetNS := new(big.Int).Mul(big.NewInt(c.Class.OffsetSeconds), big.NewInt(1_000_000_000))
	total := new(big.Int).Add(offsetNS, cyclesNS)

	if !total.IsInt64() {
		return 0, fmt.Errorf("clock.TimeNS: %w", ErrTimeOverflow)
	}
	return total.Int64(), nil
}
