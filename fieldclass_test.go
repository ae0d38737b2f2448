// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package ctfir

import "testing"

func TestNewIntegerFieldClassRejectsOutOfRangeBits(t *testing.T) {
	if _, err := NewIntegerFieldClass(0, false); err == nil {
		t.Error("expected error for 0-bit integer")
	}
	if _, err := NewIntegerFieldClass(65, false); err == nil {
		t.Error("expected error for 65-bit integer")
	}
	if _, err := NewIntegerFieldClass(64, false); err != nil {
		t.Errorf("64-bit integer should be accepted: %v", err)
	}
}

func TestNewFloatFieldClassRequiresStandardWidth(t *testing.T) {
	if _, err := NewFloatFieldClass(8, 23); err != nil {
		t.Errorf("8/23 (total 32) should be accepted: %v", err)
	}
	if _, err := NewFloatFieldClass(11, 52); err != nil {
		t.Errorf("11/52 (total 64) should be accepted: %v", err)
	}
	if _, err := NewFloatFieldClass(5, 10); err == nil {
		t.Error("expected error for a non-32/64 total float width")
	}
}

func TestAddFieldRejectsDuplicateAndFrozen(t *testing.T) {
	fc := NewStructFieldClass()
	member, _ := NewIntegerFieldClass(8, false)
	if err := fc.AddField("a", member); err != nil {
		t.Fatalf("AddField: %v", err)
	}
	if err := fc.AddField("a", member); err == nil {
		t.Fatal("expected ErrDuplicateIdentifier for a repeated member name")
	}
	fc.Freeze()
	other, _ := NewIntegerFieldClass(8, false)
	if err := fc.AddField("b", other); err == nil {
		t.Fatal("expected error adding a field to a frozen struct")
	}
}

func TestSetAlignmentRequiresPowerOfTwo(t *testing.T) {
	fc, _ := NewIntegerFieldClass(32, false)
	if err := fc.SetAlignment(3); err == nil {
		t.Fatal("expected error for non-power-of-two alignment")
	}
	if err := fc.SetAlignment(16); err != nil {
		t.Errorf("SetAlignment(16): %v", err)
	}
}

func TestEnumLookupRespectsSignedness(t *testing.T) {
	container, _ := NewIntegerFieldClass(8, true)
	enum, err := NewEnumFieldClass(container)
	if err != nil {
		t.Fatalf("NewEnumFieldClass: %v", err)
	}
	if err := enum.AddMapping("neg", uint64(int64(-10)), uint64(int64(-1))); err != nil {
		t.Fatalf("AddMapping: %v", err)
	}
	labels := enum.Lookup(uint64(int64(-5)))
	if len(labels) != 1 || labels[0] != "neg" {
		t.Errorf("Lookup(-5) = %v, want [neg]", labels)
	}
}

func TestFreezeIsRecursive(t *testing.T) {
	inner, _ := NewIntegerFieldClass(8, false)
	outer := NewStructFieldClass()
	_ = outer.AddField("x", inner)
	outer.Freeze()
	if !inner.IsFrozen() {
		t.Error("freezing a struct field class should freeze its members")
	}
}

func TestEqualRecursive(t *testing.T) {
	a, _ := NewIntegerFieldClass(32, false)
	b, _ := NewIntegerFieldClass(32, false)
	if !a.EqualRecursive(b) {
		t.Error("two freshly built 32-bit unsigned integer classes should be equal")
	}
	c, _ := NewIntegerFieldClass(16, false)
	if a.EqualRecursive(c) {
		t.Error("differing bit widths should not be equal")
	}
}

func TestValidateRecursiveSequenceRequiresPrecedingUnsignedLength(t *testing.T) {
	lenClass, _ := NewIntegerFieldClass(32, false)
	eventContext := NewStructFieldClass()
	_ = eventContext.AddField("len", lenClass)

	elemClass, _ := NewIntegerFieldClass(8, false)
	lenPath, _ := NewPathExpr("len")
	seqClass, err := NewSequenceFieldClass(elemClass, lenPath)
	if err != nil {
		t.Fatalf("NewSequenceFieldClass: %v", err)
	}
	payload := NewStructFieldClass()
	_ = payload.AddField("data", seqClass)

	chain := NewScopeChain(nil, nil, nil, nil, eventContext, payload)
	if err := payload.ValidateRecursive(chain, ScopeEventPayload, nil); err != nil {
		t.Fatalf("ValidateRecursive: %v", err)
	}
}

func TestValidateRecursiveRejectsSignedSequenceLength(t *testing.T) {
	lenClass, _ := NewIntegerFieldClass(32, true)
	eventContext := NewStructFieldClass()
	_ = eventContext.AddField("len", lenClass)

	elemClass, _ := NewIntegerFieldClass(8, false)
	lenPath, _ := NewPathExpr("len")
	seqClass, _ := NewSequenceFieldClass(elemClass, lenPath)
	payload := NewStructFieldClass()
	_ = payload.AddField("data", seqClass)

	chain := NewScopeChain(nil, nil, nil, nil, eventContext, payload)
	if err := payload.ValidateRecursive(chain, ScopeEventPayload, nil); err == nil {
		t.Fatal("expected error: sequence length target must be unsigned")
	}
}
