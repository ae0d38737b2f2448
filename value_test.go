// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package ctfir

import "testing"

func TestValueScalarSetGet(t *testing.T) {
	tests := []struct {
		name string
		v    *Value
		set  func(*Value) error
		get  func(*Value) (interface{}, error)
		want interface{}
	}{
		{
			name: "bool",
			v:    NewBool(false),
			set:  func(v *Value) error { return v.SetBool(true) },
			get:  func(v *Value) (interface{}, error) { return v.AsBool() },
			want: true,
		},
		{
			name: "int",
			v:    NewInt(0),
			set:  func(v *Value) error { return v.SetInt(-7) },
			get:  func(v *Value) (interface{}, error) { return v.AsInt() },
			want: int64(-7),
		},
		{
			name: "uint",
			v:    NewUInt(0),
			set:  func(v *Value) error { return v.SetUInt(42) },
			get:  func(v *Value) (interface{}, error) { return v.AsUInt() },
			want: uint64(42),
		},
		{
			name: "string",
			v:    NewString(""),
			set:  func(v *Value) error { return v.SetString("hello") },
			get:  func(v *Value) (interface{}, error) { return v.AsString() },
			want: "hello",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.set(tt.v); err != nil {
				t.Fatalf("set: %v", err)
			}
			got, err := tt.get(tt.v)
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestValueWrongKind(t *testing.T) {
	v := NewInt(1)
	if err := v.SetString("x"); err == nil {
		t.Fatal("expected error setting a string payload on an int value")
	}
	if _, err := v.AsBool(); err == nil {
		t.Fatal("expected error reading bool payload from an int value")
	}
}

func TestValueFrozenRejectsMutation(t *testing.T) {
	v := NewInt(1)
	v.Freeze()
	if err := v.SetInt(2); err == nil {
		t.Fatal("expected error mutating a frozen value")
	}
}

func TestValueArrayAppendAndFreeze(t *testing.T) {
	arr := NewArray()
	if err := arr.Append(NewInt(1)); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := arr.Append(NewInt(2)); err != nil {
		t.Fatalf("append: %v", err)
	}
	n, err := arr.Len()
	if err != nil || n != 2 {
		t.Fatalf("Len() = %d, %v, want 2, nil", n, err)
	}
	arr.Freeze()
	e, err := arr.ElementAt(0)
	if err != nil {
		t.Fatalf("ElementAt: %v", err)
	}
	if !e.IsFrozen() {
		t.Error("freezing an array should freeze its elements")
	}
	if err := arr.Append(NewInt(3)); err == nil {
		t.Fatal("expected error appending to a frozen array")
	}
}

func TestValueMapSetGetPreservesOrder(t *testing.T) {
	m := NewMap()
	if err := m.MapSet("a", NewInt(1)); err != nil {
		t.Fatalf("MapSet: %v", err)
	}
	if err := m.MapSet("b", NewInt(2)); err != nil {
		t.Fatalf("MapSet: %v", err)
	}
	if err := m.MapSet("a", NewInt(3)); err != nil {
		t.Fatalf("MapSet replace: %v", err)
	}
	n, _ := m.Len()
	if n != 2 {
		t.Fatalf("Len() = %d, want 2 (replace must not append)", n)
	}
	name, val, err := m.MapEntryAt(0)
	if err != nil || name != "a" {
		t.Fatalf("MapEntryAt(0) = %q, %v, want \"a\"", name, err)
	}
	got, _ := val.AsInt()
	if got != 3 {
		t.Errorf("a = %d, want 3 (replaced value)", got)
	}
}

func TestValueEqualAndDeepCopy(t *testing.T) {
	m := NewMap()
	_ = m.MapSet("x", NewInt(1))
	cp := m.DeepCopy()
	if !m.Equal(cp) {
		t.Fatal("deep copy must be equal to the original")
	}
	v, _ := cp.MapGet("x")
	_ = v.SetInt(2)
	if m.Equal(cp) {
		t.Fatal("mutating the copy must not affect the original")
	}
}

func TestNullSingleton(t *testing.T) {
	if Null() != Null() {
		t.Fatal("Null() must return the same singleton instance")
	}
	if !Null().IsFrozen() {
		t.Fatal("Null() must always report frozen")
	}
}
