// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package ctfir

import (
	"strings"
	"testing"
)

func TestWriteMetadataRendersTopLevelBlocks(t *testing.T) {
	trace, err := NewTrace()
	if err != nil {
		t.Fatalf("NewTrace: %v", err)
	}
	if err := trace.Environment.Set("hostname", NewString("dev")); err != nil {
		t.Fatalf("Set: %v", err)
	}

	cc, err := NewClockClass("monotonic")
	if err != nil {
		t.Fatalf("NewClockClass: %v", err)
	}
	if err := cc.SetFrequency(1_000_000_000); err != nil {
		t.Fatalf("SetFrequency: %v", err)
	}
	if err := trace.AddClockClass(cc); err != nil {
		t.Fatalf("AddClockClass: %v", err)
	}

	sc := NewStreamClass()
	ec, err := NewEventClass(0, "my_event")
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
	if err := trace.AddStreamClass(sc); err != nil {
		t.Fatalf("AddStreamClass: %v", err)
	}

	out, err := WriteMetadata(trace)
	if err != nil {
		t.Fatalf("WriteMetadata: %v", err)
	}
	for _, want := range []string{"trace {", "env {", "clock {", "stream {", "event {", `name = "my_event"`, "hostname"} {
		if !strings.Contains(out, want) {
			t.Errorf("rendered metadata missing %q\n---\n%s", want, out)
		}
	}
}

func TestStdIntNameRecognizesCanonicalShapes(t *testing.T) {
	fc, _ := NewIntegerFieldClass(32, false)
	if got := stdIntName(fc); got != "uint32_t" {
		t.Errorf("stdIntName(plain uint32) = %q, want uint32_t", got)
	}
	signed, _ := NewIntegerFieldClass(16, true)
	if got := stdIntName(signed); got != "int16_t" {
		t.Errorf("stdIntName(plain int16) = %q, want int16_t", got)
	}
}

func TestStdIntNameRejectsNonCanonicalShapes(t *testing.T) {
	fc, _ := NewIntegerFieldClass(24, false)
	if got := stdIntName(fc); got != "" {
		t.Errorf("stdIntName(24-bit) = %q, want empty (non-standard width)", got)
	}
	hexFC, _ := NewIntegerFieldClass(32, false)
	if err := hexFC.SetBase(BaseHex); err != nil {
		t.Fatalf("SetBase: %v", err)
	}
	if got := stdIntName(hexFC); got != "" {
		t.Errorf("stdIntName(hex-base uint32) = %q, want empty", got)
	}
	mappedFC, _ := NewIntegerFieldClass(64, false)
	cc, _ := NewClockClass("c")
	_ = mappedFC.SetMappedClock(cc)
	if got := stdIntName(mappedFC); got != "" {
		t.Errorf("stdIntName(clock-mapped uint64) = %q, want empty (must render the verbose form with map=)", got)
	}
}

func TestRenderFieldClassFallsBackToVerboseIntegerForm(t *testing.T) {
	var sb strings.Builder
	fc, _ := NewIntegerFieldClass(24, false)
	if err := renderFieldClass(&sb, fc, ""); err != nil {
		t.Fatalf("renderFieldClass: %v", err)
	}
	got := sb.String()
	if !strings.HasPrefix(got, "integer {") || !strings.Contains(got, "size = 24") {
		t.Errorf("renderFieldClass(24-bit) = %q, want a verbose integer {...} expression", got)
	}
}

func TestRenderMemberAppendsArrayAndSequenceLengthSuffix(t *testing.T) {
	elem, _ := NewIntegerFieldClass(8, false)
	arr, err := NewStaticArrayFieldClass(elem, 4)
	if err != nil {
		t.Fatalf("NewStaticArrayFieldClass: %v", err)
	}
	var sb strings.Builder
	if err := renderMember(&sb, "buf", arr, ""); err != nil {
		t.Fatalf("renderMember: %v", err)
	}
	if !strings.HasSuffix(sb.String(), "buf[4];") {
		t.Errorf("renderMember(array) = %q, want a trailing buf[4];", sb.String())
	}

	lenPath, _ := NewPathExpr("len")
	seq, err := NewSequenceFieldClass(elem, lenPath)
	if err != nil {
		t.Fatalf("NewSequenceFieldClass: %v", err)
	}
	var sb2 strings.Builder
	if err := renderMember(&sb2, "data", seq, ""); err != nil {
		t.Fatalf("renderMember: %v", err)
	}
	if !strings.HasSuffix(sb2.String(), "data[len];") {
		t.Errorf("renderMember(sequence) = %q, want a trailing data[len];", sb2.String())
	}
}

func TestRenderFieldClassStructIncludesAlignment(t *testing.T) {
	fc := NewStructFieldClass()
	member, _ := NewIntegerFieldClass(8, false)
	_ = fc.AddField("a", member)
	if err := fc.SetAlignment(32); err != nil {
		t.Fatalf("SetAlignment: %v", err)
	}
	var sb strings.Builder
	if err := renderFieldClass(&sb, fc, ""); err != nil {
		t.Fatalf("renderFieldClass: %v", err)
	}
	if !strings.Contains(sb.String(), "align(32)") {
		t.Errorf("rendered struct = %q, want align(32)", sb.String())
	}
}
