// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package ctfir

import "testing"

func newTestStreamClass(t *testing.T, withPacketContext bool) (*Trace, *StreamClass, *EventClass) {
	t.Helper()
	trace, err := NewTrace()
	if err != nil {
		t.Fatalf("NewTrace: %v", err)
	}
	sc := NewStreamClass()
	if withPacketContext {
		ctx := NewStructFieldClass()
		for _, name := range []string{"packet_size", "content_size", "events_discarded"} {
			fc, _ := NewIntegerFieldClass(64, false)
			if err := ctx.AddField(name, fc); err != nil {
				t.Fatalf("AddField(%s): %v", name, err)
			}
		}
		if err := sc.SetPacketContextClass(ctx); err != nil {
			t.Fatalf("SetPacketContextClass: %v", err)
		}
	}
	if err := trace.AddStreamClass(sc); err != nil {
		t.Fatalf("AddStreamClass: %v", err)
	}
	ec, err := NewEventClass(0, "ev")
	if err != nil {
		t.Fatalf("NewEventClass: %v", err)
	}
	valClass, _ := NewIntegerFieldClass(32, false)
	if err := ec.PayloadClass.AddField("value", valClass); err != nil {
		t.Fatalf("AddField: %v", err)
	}
	if err := sc.AddEventClass(ec); err != nil {
		t.Fatalf("AddEventClass: %v", err)
	}
	return trace, sc, ec
}

// newContentSizeOnlyStreamClass builds a stream class whose packet
// context has content_size but no packet_size, so each flushed packet
// is only rounded up to a byte, not a page (spec §4.7 scenario 5).
func newContentSizeOnlyStreamClass(t *testing.T) (*Trace, *StreamClass, *EventClass) {
	t.Helper()
	trace, err := NewTrace()
	if err != nil {
		t.Fatalf("NewTrace: %v", err)
	}
	sc := NewStreamClass()
	ctx := NewStructFieldClass()
	contentSizeClass, _ := NewIntegerFieldClass(64, false)
	if err := ctx.AddField("content_size", contentSizeClass); err != nil {
		t.Fatalf("AddField: %v", err)
	}
	if err := sc.SetPacketContextClass(ctx); err != nil {
		t.Fatalf("SetPacketContextClass: %v", err)
	}
	if err := trace.AddStreamClass(sc); err != nil {
		t.Fatalf("AddStreamClass: %v", err)
	}
	ec, err := NewEventClass(0, "ev")
	if err != nil {
		t.Fatalf("NewEventClass: %v", err)
	}
	valClass, _ := NewIntegerFieldClass(8, false)
	if err := ec.PayloadClass.AddField("value", valClass); err != nil {
		t.Fatalf("AddField: %v", err)
	}
	if err := sc.AddEventClass(ec); err != nil {
		t.Fatalf("AddEventClass: %v", err)
	}
	return trace, sc, ec
}

func TestStreamSecondPacketAfterNonPageAlignedFirstPacket(t *testing.T) {
	_, sc, ec := newContentSizeOnlyStreamClass(t)
	stream, err := NewStream(sc, 0, &Options{OutputDir: t.TempDir()})
	if err != nil {
		t.Fatalf("NewStream: %v", err)
	}
	defer stream.Close()

	for i := 0; i < 2; i++ {
		if err := stream.NewPacket(); err != nil {
			t.Fatalf("NewPacket #%d: %v", i, err)
		}
		ev, err := NewEvent(ec)
		if err != nil {
			t.Fatalf("NewEvent #%d: %v", i, err)
		}
		value, _ := ev.Payload.StructFieldByName("value")
		if err := value.SetUInt(uint64(i)); err != nil {
			t.Fatalf("SetUInt #%d: %v", i, err)
		}
		if err := stream.AppendEvent(ev); err != nil {
			t.Fatalf("AppendEvent #%d: %v", i, err)
		}
		if err := stream.Flush(); err != nil {
			t.Fatalf("Flush #%d: %v (second packet's mmap offset must still land on a page boundary)", i, err)
		}
		if i == 0 && stream.StreamSizeBytes()%uint64(pageSize) == 0 {
			t.Fatal("test setup invalid: expected a non-page-aligned stream size after the first packet")
		}
	}
}

func TestStreamMinimalTraceFlush(t *testing.T) {
	_, sc, ec := newTestStreamClass(t, true)
	stream, err := NewStream(sc, 0, &Options{OutputDir: t.TempDir()})
	if err != nil {
		t.Fatalf("NewStream: %v", err)
	}
	defer stream.Close()

	if err := stream.NewPacket(); err != nil {
		t.Fatalf("NewPacket: %v", err)
	}
	ev, err := NewEvent(ec)
	if err != nil {
		t.Fatalf("NewEvent: %v", err)
	}
	value, err := ev.Payload.StructFieldByName("value")
	if err != nil {
		t.Fatalf("StructFieldByName: %v", err)
	}
	if err := value.SetUInt(42); err != nil {
		t.Fatalf("SetUInt: %v", err)
	}
	if err := stream.AppendEvent(ev); err != nil {
		t.Fatalf("AppendEvent: %v", err)
	}
	if err := stream.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if stream.StreamSizeBytes() == 0 {
		t.Error("StreamSizeBytes() should be nonzero after a flush")
	}
}

func TestStreamAppendEventRejectsForeignEventClass(t *testing.T) {
	_, sc1, _ := newTestStreamClass(t, false)
	_, _, ec2 := newTestStreamClass(t, false)

	stream, err := NewStream(sc1, 0, &Options{OutputDir: t.TempDir()})
	if err != nil {
		t.Fatalf("NewStream: %v", err)
	}
	defer stream.Close()
	if err := stream.NewPacket(); err != nil {
		t.Fatalf("NewPacket: %v", err)
	}
	ev, err := NewEvent(ec2)
	if err != nil {
		t.Fatalf("NewEvent: %v", err)
	}
	if err := stream.AppendEvent(ev); err == nil {
		t.Fatal("expected error appending an event whose class belongs to a different stream class")
	}
}

func TestStreamDiscardedEventsMustNotDecrease(t *testing.T) {
	_, sc, ec := newTestStreamClass(t, true)
	stream, err := NewStream(sc, 0, &Options{OutputDir: t.TempDir()})
	if err != nil {
		t.Fatalf("NewStream: %v", err)
	}
	defer stream.Close()

	if err := stream.NewPacket(); err != nil {
		t.Fatalf("NewPacket: %v", err)
	}
	ev, err := NewEvent(ec)
	if err != nil {
		t.Fatalf("NewEvent: %v", err)
	}
	value, _ := ev.Payload.StructFieldByName("value")
	_ = value.SetUInt(1)
	if err := stream.AppendEvent(ev); err != nil {
		t.Fatalf("AppendEvent: %v", err)
	}

	discarded, err := stream.PacketContext().StructFieldByName("events_discarded")
	if err != nil {
		t.Fatalf("StructFieldByName: %v", err)
	}
	if err := discarded.SetUInt(5); err != nil {
		t.Fatalf("SetUInt: %v", err)
	}
	if err := stream.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if stream.DiscardedEventsCount() != 5 {
		t.Fatalf("DiscardedEventsCount() = %d, want 5", stream.DiscardedEventsCount())
	}

	if err := stream.NewPacket(); err != nil {
		t.Fatalf("NewPacket: %v", err)
	}
	ev2, _ := NewEvent(ec)
	v2, _ := ev2.Payload.StructFieldByName("value")
	_ = v2.SetUInt(2)
	if err := stream.AppendEvent(ev2); err != nil {
		t.Fatalf("AppendEvent: %v", err)
	}
	discarded2, err := stream.PacketContext().StructFieldByName("events_discarded")
	if err != nil {
		t.Fatalf("StructFieldByName: %v", err)
	}
	if err := discarded2.SetUInt(2); err != nil {
		t.Fatalf("SetUInt: %v", err)
	}
	if err := stream.Flush(); err == nil {
		t.Fatal("expected error: events_discarded set below the stream's running counter")
	}
}

func TestStreamDiscardEventsAutoPopulatesNextFlush(t *testing.T) {
	_, sc, ec := newTestStreamClass(t, true)
	stream, err := NewStream(sc, 0, &Options{OutputDir: t.TempDir()})
	if err != nil {
		t.Fatalf("NewStream: %v", err)
	}
	defer stream.Close()

	if err := stream.DiscardEvents(3); err != nil {
		t.Fatalf("DiscardEvents: %v", err)
	}
	if err := stream.NewPacket(); err != nil {
		t.Fatalf("NewPacket: %v", err)
	}
	ev, _ := NewEvent(ec)
	value, _ := ev.Payload.StructFieldByName("value")
	_ = value.SetUInt(1)
	if err := stream.AppendEvent(ev); err != nil {
		t.Fatalf("AppendEvent: %v", err)
	}
	if err := stream.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if stream.DiscardedEventsCount() != 3 {
		t.Fatalf("DiscardedEventsCount() = %d, want 3", stream.DiscardedEventsCount())
	}
}

func TestStreamPacketGrowsToNextPageMultiple(t *testing.T) {
	_, sc, ec := newTestStreamClass(t, true)
	stream, err := NewStream(sc, 0, &Options{OutputDir: t.TempDir()})
	if err != nil {
		t.Fatalf("NewStream: %v", err)
	}
	defer stream.Close()
	if err := stream.NewPacket(); err != nil {
		t.Fatalf("NewPacket: %v", err)
	}
	ev, _ := NewEvent(ec)
	value, _ := ev.Payload.StructFieldByName("value")
	_ = value.SetUInt(1)
	if err := stream.AppendEvent(ev); err != nil {
		t.Fatalf("AppendEvent: %v", err)
	}
	if err := stream.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if stream.StreamSizeBytes()%uint64(pageSize) != 0 {
		t.Errorf("StreamSizeBytes() = %d, want a multiple of the page size %d", stream.StreamSizeBytes(), pageSize)
	}
}
