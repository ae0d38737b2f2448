// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package ctfir

import "fmt"

// Event is one instance of an EventClass: its header (owned by the
// stream class), its stream-event context, its own context, and its
// payload (spec §4.4, §4.6 "Event append").
type Event struct {
	Class         *EventClass
	Header        *Field // from the stream class's EventHeaderClass, optional
	StreamContext *Field // from the stream class's EventContextClass, optional
	Context       *Field // from the event class's ContextClass, optional
	Payload       *Field // from the event class's PayloadClass

	attached bool
	frozen   bool
}

// NewEvent allocates an event for ec, which must already be attached to
// a stream class. Header and stream-event-context fields are allocated
// from the owning stream class; Context and Payload from ec itself.
func NewEvent(ec *EventClass) (*Event, error) {
	sc, ok := ec.StreamClass()
	if !ok {
		return nil, fmt.Errorf("NewEvent: event class not attached to a stream class: %w", ErrInvalidArgument)
	}
	e := &Event{Class: ec}
	if sc.EventHeaderClass != nil {
		h, err := Create(sc.EventHeaderClass)
		if err != nil {
			return nil, err
		}
		e.Header = h
	}
	if sc.EventContextClass != nil {
		c, err := Create(sc.EventContextClass)
		if err != nil {
			return nil, err
		}
		e.StreamContext = c
	}
	if ec.ContextClass != nil {
		c, err := Create(ec.ContextClass)
		if err != nil {
			return nil, err
		}
		e.Context = c
	}
	p, err := Create(ec.PayloadClass)
	if err != nil {
		return nil, err
	}
	e.Payload = p
	return e, nil
}

// Validate checks that every leaf under the event's header, contexts
// and payload has its payload set (spec §8 universal invariant).
func (e *Event) Validate() error {
	for _, f := range []*Field{e.Header, e.StreamContext, e.Context, e.Payload} {
		if f == nil {
			continue
		}
		if err := f.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Freeze recursively freezes every field the event owns; idempotent.
func (e *Event) Freeze() {
	if e.frozen {
		return
	}
	e.frozen = true
	for _, f := range []*Field{e.Header, e.StreamContext, e.Context, e.Payload} {
		if f != nil {
			f.Freeze()
		}
	}
}

// IsFrozen reports whether the event has been frozen.
func (e *Event) IsFrozen() bool { return e.frozen }

// walkClockFields recursively visits every Integer field under f whose
// field class is mapped to clock, invoking visit(rawValue, bits) for
// each, in declared (struct/array/sequence/variant-selected) order.
func walkClockFields(f *Field, clock *ClockClass, visit func(raw uint64, bits uint32)) {
	if f == nil || clock == nil {
		return
	}
	switch f.Class.Kind {
	case KindInteger:
		if f.Class.MappedClock == clock && f.PayloadSet() {
			var raw uint64
			if f.Class.Signed {
				v, _ := f.Int()
				raw = uint64(v) & maskBits(f.Class.Bits)
			} else {
				raw, _ = f.UInt()
			}
			visit(raw, f.Class.Bits)
		}
	case KindEnum:
		if f.container != nil {
			walkClockFields(f.container, clock, visit)
		}
	case KindStruct:
		for _, c := range f.children {
			walkClockFields(c, clock, visit)
		}
	case KindArray:
		for _, c := range f.elements {
			walkClockFields(c, clock, visit)
		}
	case KindSequence:
		for _, c := range f.seqElements {
			walkClockFields(c, clock, visit)
		}
	case KindVariant:
		walkClockFields(f.selected, clock, visit)
	case KindOption:
		if f.present {
			walkClockFields(f.content, clock, visit)
		}
	}
}

// advanceWrapAware folds a newly observed N-bit clock reading into a
// running maximum using wrap-aware arithmetic (spec §4.7 "Flush",
// tested in §8 "Wrap-aware timestamp update"): if the new value is less
// than the running maximum's low N bits, the running maximum's high
// bits are bumped by one N-bit unit.
func advanceWrapAware(runningMax uint64, newValue uint64, bits uint32) uint64 {
	if bits >= 64 {
		return newValue
	}
	mask := (uint64(1) << bits) - 1
	maskedCurrent := runningMax & mask
	highBits := runningMax &^ mask
	result := highBits | newValue
	if newValue < maskedCurrent {
		result += uint64(1) << bits
	}
	return result
}
