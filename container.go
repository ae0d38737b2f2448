// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package ctfir

import (
	"fmt"

	"github.com/google/uuid"
)

// EventClass describes one kind of event a stream class may carry
// (spec §3.6).
type EventClass struct {
	attrs        *AttributeSet
	PayloadClass *FieldClass
	ContextClass *FieldClass // optional

	streamClass *StreamClass // weak back-reference, set on attach
	frozen      bool
	valid       bool
}

// NewEventClass creates a mutable event class with the given id and
// name, and an empty payload struct field class.
func NewEventClass(id int64, name string) (*EventClass, error) {
	if id < 0 {
		return nil, fmt.Errorf("NewEventClass: negative id %d: %w", id, ErrInvalidArgument)
	}
	if !IsValidIdentifier(name) {
		return nil, fmt.Errorf("NewEventClass(%s): %w", name, ErrInvalidArgument)
	}
	attrs := NewAttributeSet()
	if err := attrs.Set("id", NewInt(id)); err != nil {
		return nil, err
	}
	if err := attrs.Set("name", NewString(name)); err != nil {
		return nil, err
	}
	return &EventClass{attrs: attrs, PayloadClass: NewStructFieldClass()}, nil
}

func (ec *EventClass) checkMutable() error {
	if ec.frozen {
		return fmt.Errorf("eventclass: %w", ErrFrozenObject)
	}
	return nil
}

// ID returns the event class's id attribute.
func (ec *EventClass) ID() int64 {
	v, _ := ec.attrs.GetByName("id")
	id, _ := v.AsInt()
	return id
}

// Name returns the event class's name attribute.
func (ec *EventClass) Name() string {
	v, _ := ec.attrs.GetByName("name")
	name, _ := v.AsString()
	return name
}

// Attributes returns the event class's attribute set (id, name,
// loglevel, model.emf.uri, stream_id and any user-set attribute).
func (ec *EventClass) Attributes() *AttributeSet { return ec.attrs }

// SetLogLevel sets the event class's "loglevel" attribute.
func (ec *EventClass) SetLogLevel(level int64) error {
	if err := ec.checkMutable(); err != nil {
		return err
	}
	return ec.attrs.Set("loglevel", NewInt(level))
}

// SetEMFURI sets the event class's "model.emf.uri" attribute.
func (ec *EventClass) SetEMFURI(uri string) error {
	if err := ec.checkMutable(); err != nil {
		return err
	}
	return ec.attrs.Set("model.emf.uri", NewString(uri))
}

// SetContextClass sets the event class's optional context struct field
// class.
func (ec *EventClass) SetContextClass(fc *FieldClass) error {
	if fc != nil && fc.Kind != KindStruct {
		return fmt.Errorf("eventclass.SetContextClass: %w", ErrWrongKind)
	}
	if err := ec.checkMutable(); err != nil {
		return err
	}
	ec.ContextClass = fc
	return nil
}

// StreamClass returns the event class's owning stream class, if
// attached.
func (ec *EventClass) StreamClass() (*StreamClass, bool) {
	return ec.streamClass, ec.streamClass != nil
}

// resolveTypes resolves every sequence-length and variant-tag path
// expression under the event class's payload and context against the
// scope chain rooted at trace's packet header (spec §4.6 step 2).
func (ec *EventClass) resolveTypes(sc *StreamClass, trace *Trace) error {
	chain := NewScopeChain(trace.PacketHeaderClass, sc.PacketContextClass, sc.EventHeaderClass, sc.EventContextClass, ec.ContextClass, ec.PayloadClass)
	if ec.ContextClass != nil {
		if err := ec.ContextClass.ValidateRecursive(chain, ScopeEventContext, nil); err != nil {
			return err
		}
	}
	if err := ec.PayloadClass.ValidateRecursive(chain, ScopeEventPayload, nil); err != nil {
		return err
	}
	return nil
}

// Freeze recursively freezes the event class and its field classes.
func (ec *EventClass) Freeze() {
	if ec.frozen {
		return
	}
	ec.frozen = true
	ec.attrs.Freeze()
	if ec.ContextClass != nil {
		ec.ContextClass.Freeze()
	}
	ec.PayloadClass.Freeze()
}

// IsFrozen reports whether the event class has been frozen.
func (ec *EventClass) IsFrozen() bool { return ec.frozen }

// StreamClass groups event classes sharing a packet layout (spec §3.6).
type StreamClass struct {
	id   *uint64
	name string

	EventHeaderClass   *FieldClass // optional
	EventContextClass  *FieldClass // optional, stream-event-context
	PacketContextClass *FieldClass // optional

	eventClasses   []*EventClass
	eventClassByID map[int64]*EventClass

	clock *Clock // optional bound clock

	trace *Trace // weak back-reference, set on attach
	frozen bool
	valid  bool
}

// NewStreamClass creates a mutable, initially empty stream class.
func NewStreamClass() *StreamClass {
	return &StreamClass{eventClassByID: map[int64]*EventClass{}}
}

func (sc *StreamClass) checkMutable() error {
	if sc.frozen {
		return fmt.Errorf("streamclass: %w", ErrFrozenObject)
	}
	return nil
}

// SetName sets the stream class's optional name.
func (sc *StreamClass) SetName(name string) error {
	if err := sc.checkMutable(); err != nil {
		return err
	}
	sc.name = name
	return nil
}

// Name returns the stream class's name, if set.
func (sc *StreamClass) Name() string { return sc.name }

// SetID sets the stream class's optional numeric id.
func (sc *StreamClass) SetID(id uint64) error {
	if err := sc.checkMutable(); err != nil {
		return err
	}
	sc.id = &id
	return nil
}

// ID returns the stream class's numeric id, if set.
func (sc *StreamClass) ID() (uint64, bool) {
	if sc.id == nil {
		return 0, false
	}
	return *sc.id, true
}

// SetEventHeaderClass sets the stream class's event-header field class.
func (sc *StreamClass) SetEventHeaderClass(fc *FieldClass) error {
	if fc != nil && fc.Kind != KindStruct {
		return fmt.Errorf("streamclass.SetEventHeaderClass: %w", ErrWrongKind)
	}
	if err := sc.checkMutable(); err != nil {
		return err
	}
	sc.EventHeaderClass = fc
	return nil
}

// SetEventContextClass sets the stream class's stream-event-context
// field class.
func (sc *StreamClass) SetEventContextClass(fc *FieldClass) error {
	if fc != nil && fc.Kind != KindStruct {
		return fmt.Errorf("streamclass.SetEventContextClass: %w", ErrWrongKind)
	}
	if err := sc.checkMutable(); err != nil {
		return err
	}
	sc.EventContextClass = fc
	return nil
}

// SetPacketContextClass sets the stream class's packet-context field
// class.
func (sc *StreamClass) SetPacketContextClass(fc *FieldClass) error {
	if fc != nil && fc.Kind != KindStruct {
		return fmt.Errorf("streamclass.SetPacketContextClass: %w", ErrWrongKind)
	}
	if err := sc.checkMutable(); err != nil {
		return err
	}
	sc.PacketContextClass = fc
	return nil
}

// SetClock binds a clock to the stream class.
func (sc *StreamClass) SetClock(c *Clock) error {
	if err := sc.checkMutable(); err != nil {
		return err
	}
	sc.clock = c
	return nil
}

// Clock returns the stream class's bound clock, if any.
func (sc *StreamClass) Clock() (*Clock, bool) { return sc.clock, sc.clock != nil }

// AddEventClass attaches ec to the stream class. ec's id must not
// already be in use within this stream class. The event class's
// "stream_id" attribute is set implicitly from the stream class's id;
// if the caller had already set it to a different value, that is
// treated as ErrInvalidArgument rather than silently overwritten (spec
// §9, Open Question (a)).
func (sc *StreamClass) AddEventClass(ec *EventClass) error {
	if err := sc.checkMutable(); err != nil {
		return err
	}
	id := ec.ID()
	if _, exists := sc.eventClassByID[id]; exists {
		return fmt.Errorf("streamclass.AddEventClass: id %d: %w", id, ErrDuplicateIdentifier)
	}
	if scID, ok := sc.ID(); ok {
		if existing, ok := ec.attrs.GetByName("stream_id"); ok {
			v, err := existing.AsUInt()
			if err != nil || v != scID {
				return fmt.Errorf("streamclass.AddEventClass: stream_id mismatch: %w", ErrInvalidArgument)
			}
		} else if err := ec.attrs.Set("stream_id", NewUInt(scID)); err != nil {
			return err
		}
	}
	ec.streamClass = sc
	sc.eventClassByID[id] = ec
	sc.eventClasses = append(sc.eventClasses, ec)
	return nil
}

// EventClasses returns the stream class's event classes, in attach
// order.
func (sc *StreamClass) EventClasses() []*EventClass { return sc.eventClasses }

// EventClassByID looks up an attached event class by id.
func (sc *StreamClass) EventClassByID(id int64) (*EventClass, bool) {
	ec, ok := sc.eventClassByID[id]
	return ec, ok
}

// Trace returns the stream class's owning trace, if attached.
func (sc *StreamClass) Trace() (*Trace, bool) { return sc.trace, sc.trace != nil }

// ValidateTypes resolves and validates every field class tree reachable
// from the stream class and its event classes against trace's scope
// chain (spec §4.6 "StreamClass.validate_types"). It is a no-op once the
// stream class is already marked valid.
func (sc *StreamClass) ValidateTypes(trace *Trace) error {
	if sc.valid {
		return nil
	}
	for _, ec := range sc.eventClasses {
		if err := ec.resolveTypes(sc, trace); err != nil {
			return err
		}
	}

	chain := NewScopeChain(trace.PacketHeaderClass, sc.PacketContextClass, sc.EventHeaderClass, sc.EventContextClass, nil, nil)
	if sc.PacketContextClass != nil {
		if err := sc.PacketContextClass.ValidateRecursive(chain, ScopeStreamPacketContext, nil); err != nil {
			return err
		}
	}
	if sc.EventHeaderClass != nil {
		if err := sc.EventHeaderClass.ValidateRecursive(chain, ScopeStreamEventHeader, nil); err != nil {
			return err
		}
	}
	if sc.EventContextClass != nil {
		if err := sc.EventContextClass.ValidateRecursive(chain, ScopeStreamEventContext, nil); err != nil {
			return err
		}
	}

	if sc.frozen {
		sc.valid = true
		for _, ec := range sc.eventClasses {
			if ec.frozen {
				ec.valid = true
			}
		}
	}
	return nil
}

// Freeze recursively freezes every contained event class and field
// class (spec §3.6, §4.6).
func (sc *StreamClass) Freeze() {
	if sc.frozen {
		return
	}
	sc.frozen = true
	for _, ec := range sc.eventClasses {
		ec.Freeze()
	}
	if sc.EventHeaderClass != nil {
		sc.EventHeaderClass.Freeze()
	}
	if sc.EventContextClass != nil {
		sc.EventContextClass.Freeze()
	}
	if sc.PacketContextClass != nil {
		sc.PacketContextClass.Freeze()
	}
	if sc.clock != nil {
		sc.clock.Class.Freeze()
	}
}

// IsFrozen reports whether the stream class has been frozen.
func (sc *StreamClass) IsFrozen() bool { return sc.frozen }

// Trace is the top-level container owning stream classes, clock
// classes, and the packet-header field class (spec §3.6).
type Trace struct {
	streamClasses []*StreamClass
	clockClasses  []*ClockClass

	PacketHeaderClass *FieldClass
	Environment       *AttributeSet
	UUID              uuid.UUID

	nativeByteOrder ByteOrder
	streamIDsByClass map[uint64]map[uint64]bool

	frozen bool
}

// NewTrace creates a mutable trace with a freshly generated UUID, a
// standard packet-header field class (magic/uuid/stream_id), and the
// host's byte order resolved for later propagation (SPEC_FULL.md §2,
// google/uuid wiring; design note "Native byte order").
func NewTrace() (*Trace, error) {
	header := NewStructFieldClass()
	magic, err := NewIntegerFieldClass(32, false)
	if err != nil {
		return nil, err
	}
	if err := magic.SetBase(BaseHex); err != nil {
		return nil, err
	}
	if err := header.AddField("magic", magic); err != nil {
		return nil, err
	}
	uuidField, err := NewStaticArrayFieldClass(mustUint8FieldClass(), 16)
	if err != nil {
		return nil, err
	}
	if err := header.AddField("uuid", uuidField); err != nil {
		return nil, err
	}
	streamID, err := NewIntegerFieldClass(32, false)
	if err != nil {
		return nil, err
	}
	if err := header.AddField("stream_id", streamID); err != nil {
		return nil, err
	}

	return &Trace{
		streamClasses:     nil,
		clockClasses:      nil,
		PacketHeaderClass: header,
		Environment:       NewAttributeSet(),
		UUID:              uuid.New(),
		nativeByteOrder:   hostByteOrder,
		streamIDsByClass:  map[uint64]map[uint64]bool{},
	}, nil
}

func mustUint8FieldClass() *FieldClass {
	fc, err := NewIntegerFieldClass(8, false)
	if err != nil {
		panic(err)
	}
	return fc
}

// PacketHeaderMagic is the CTF magic number every packet header should
// carry (spec §6): 0xC1FC1FC1.
const PacketHeaderMagic = 0xC1FC1FC1

func (t *Trace) checkMutable() error {
	if t.frozen {
		return fmt.Errorf("trace: %w", ErrFrozenObject)
	}
	return nil
}

// SetUUID overrides the trace's UUID.
func (t *Trace) SetUUID(id uuid.UUID) error {
	if err := t.checkMutable(); err != nil {
		return err
	}
	t.UUID = id
	return nil
}

// SetPacketHeaderClass overrides the trace's packet-header field class.
func (t *Trace) SetPacketHeaderClass(fc *FieldClass) error {
	if fc != nil && fc.Kind != KindStruct {
		return fmt.Errorf("trace.SetPacketHeaderClass: %w", ErrWrongKind)
	}
	if err := t.checkMutable(); err != nil {
		return err
	}
	t.PacketHeaderClass = fc
	return nil
}

// AddClockClass attaches a clock class to the trace.
func (t *Trace) AddClockClass(cc *ClockClass) error {
	if err := t.checkMutable(); err != nil {
		return err
	}
	t.clockClasses = append(t.clockClasses, cc)
	return nil
}

// ClockClasses returns the trace's attached clock classes.
func (t *Trace) ClockClasses() []*ClockClass { return t.clockClasses }

// AddStreamClass attaches sc to the trace.
func (t *Trace) AddStreamClass(sc *StreamClass) error {
	if err := t.checkMutable(); err != nil {
		return err
	}
	sc.trace = t
	t.streamClasses = append(t.streamClasses, sc)
	return nil
}

// StreamClasses returns the trace's attached stream classes, in attach
// order.
func (t *Trace) StreamClasses() []*StreamClass { return t.streamClasses }

// NativeByteOrder returns the trace's resolved native byte order.
func (t *Trace) NativeByteOrder() ByteOrder { return t.nativeByteOrder }

// registerStream claims (streamClassID, streamID) as unique within the
// trace, so that per-stream IDs remain unique within a (trace,
// stream_class) pair (spec §3.6). Streams are tracked weakly: the trace
// only remembers the claimed ids, not the Stream objects themselves.
func (t *Trace) registerStream(streamClassID, streamID uint64) error {
	ids, ok := t.streamIDsByClass[streamClassID]
	if !ok {
		ids = map[uint64]bool{}
		t.streamIDsByClass[streamClassID] = ids
	}
	if ids[streamID] {
		return fmt.Errorf("trace.registerStream: stream id %d: %w", streamID, ErrDuplicateIdentifier)
	}
	ids[streamID] = true
	return nil
}

// Freeze freezes every clock class, every stream class (recursively
// freezing its event classes and field classes), the packet-header
// field class, and the environment attribute set (spec §4.6 "Freeze
// cascade"). Byte orders left Native are first resolved to the trace's
// native byte order throughout every owned field class tree. Freezing a
// trace does not prevent appending events to existing streams; only
// mutation of classes is forbidden afterward. Idempotent.
func (t *Trace) Freeze() {
	if t.frozen {
		return
	}

	propagateByteOrder(t.PacketHeaderClass, t.nativeByteOrder)
	for _, sc := range t.streamClasses {
		propagateByteOrder(sc.EventHeaderClass, t.nativeByteOrder)
		propagateByteOrder(sc.EventContextClass, t.nativeByteOrder)
		propagateByteOrder(sc.PacketContextClass, t.nativeByteOrder)
		for _, ec := range sc.eventClasses {
			propagateByteOrder(ec.ContextClass, t.nativeByteOrder)
			propagateByteOrder(ec.PayloadClass, t.nativeByteOrder)
		}
	}

	t.frozen = true
	for _, cc := range t.clockClasses {
		cc.Freeze()
	}
	for _, sc := range t.streamClasses {
		sc.Freeze()
	}
	if t.PacketHeaderClass != nil {
		t.PacketHeaderClass.Freeze()
	}
	t.Environment.Freeze()
}

// IsFrozen reports whether the trace has been frozen.
func (t *Trace) IsFrozen() bool { return t.frozen }
