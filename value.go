// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package ctfir

import "fmt"

// ValueKind identifies the concrete type held by a Value.
type ValueKind int

// Value kinds.
const (
	ValueKindNull ValueKind = iota
	ValueKindBool
	ValueKindInt
	ValueKindUInt
	ValueKindReal
	ValueKindString
	ValueKindArray
	ValueKindMap
)

func (k ValueKind) String() string {
	switch k {
	case ValueKindNull:
		return "null"
	case ValueKindBool:
		return "bool"
	case ValueKindInt:
		return "int"
	case ValueKindUInt:
		return "uint"
	case ValueKindReal:
		return "real"
	case ValueKindString:
		return "string"
	case ValueKindArray:
		return "array"
	case ValueKindMap:
		return "map"
	default:
		return "unknown"
	}
}

// nullValue is the process-wide singleton instance every Null() call
// returns. It is always frozen; Value.Freeze on it is a no-op.
var nullValue = &Value{kind: ValueKindNull, frozen: true}

// Value is a tagged union mirroring the JSON-like value tree used for
// trace environments and event/stream-class attributes (spec §3.1).
type Value struct {
	kind    ValueKind
	b       bool
	i       int64
	u       uint64
	f       float64
	s       string
	arr     []*Value
	entries []mapEntry
	frozen  bool
}

type mapEntry struct {
	name  string
	value *Value
}

// Null returns the singleton Null value.
func Null() *Value { return nullValue }

// NewBool constructs a mutable Bool value.
func NewBool(b bool) *Value { return &Value{kind: ValueKindBool, b: b} }

// NewInt constructs a mutable signed-integer value.
func NewInt(i int64) *Value { return &Value{kind: ValueKindInt, i: i} }

// NewUInt constructs a mutable unsigned-integer value.
func NewUInt(u uint64) *Value { return &Value{kind: ValueKindUInt, u: u} }

// NewReal constructs a mutable floating-point value.
func NewReal(f float64) *Value { return &Value{kind: ValueKindReal, f: f} }

// NewString constructs a mutable string value.
func NewString(s string) *Value { return &Value{kind: ValueKindString, s: s} }

// NewArray constructs a mutable, initially empty array value.
func NewArray() *Value { return &Value{kind: ValueKindArray} }

// NewMap constructs a mutable, initially empty map value (an ordered list
// of name/value pairs; lookup is O(n) but preserves insertion order).
func NewMap() *Value { return &Value{kind: ValueKindMap} }

// Kind returns the value's kind.
func (v *Value) Kind() ValueKind { return v.kind }

// IsFrozen reports whether the value has been frozen.
func (v *Value) IsFrozen() bool { return v.frozen }

func (v *Value) checkMutable() error {
	if v.frozen {
		return fmt.Errorf("value: %w", ErrFrozenObject)
	}
	return nil
}

// SetBool sets the payload of a Bool value.
func (v *Value) SetBool(b bool) error {
	if v.kind != ValueKindBool {
		return fmt.Errorf("value.SetBool: expected bool, got %s: %w", v.kind, ErrWrongKind)
	}
	if err := v.checkMutable(); err != nil {
		return err
	}
	v.b = b
	return nil
}

// SetInt sets the payload of an Int value.
func (v *Value) SetInt(i int64) error {
	if v.kind != ValueKindInt {
		return fmt.Errorf("value.SetInt: expected int, got %s: %w", v.kind, ErrWrongKind)
	}
	if err := v.checkMutable(); err != nil {
		return err
	}
	v.i = i
	return nil
}

// SetUInt sets the payload of a UInt value.
func (v *Value) SetUInt(u uint64) error {
	if v.kind != ValueKindUInt {
		return fmt.Errorf("value.SetUInt: expected uint, got %s: %w", v.kind, ErrWrongKind)
	}
	if err := v.checkMutable(); err != nil {
		return err
	}
	v.u = u
	return nil
}

// SetReal sets the payload of a Real value.
func (v *Value) SetReal(f float64) error {
	if v.kind != ValueKindReal {
		return fmt.Errorf("value.SetReal: expected real, got %s: %w", v.kind, ErrWrongKind)
	}
	if err := v.checkMutable(); err != nil {
		return err
	}
	v.f = f
	return nil
}

// SetString sets the payload of a String value.
func (v *Value) SetString(s string) error {
	if v.kind != ValueKindString {
		return fmt.Errorf("value.SetString: expected string, got %s: %w", v.kind, ErrWrongKind)
	}
	if err := v.checkMutable(); err != nil {
		return err
	}
	v.s = s
	return nil
}

// AsBool returns the Bool payload.
func (v *Value) AsBool() (bool, error) {
	if v.kind != ValueKindBool {
		return false, fmt.Errorf("value.AsBool: %w", ErrWrongKind)
	}
	return v.b, nil
}

// AsInt returns the Int payload.
func (v *Value) AsInt() (int64, error) {
	if v.kind != ValueKindInt {
		return 0, fmt.Errorf("value.AsInt: %w", ErrWrongKind)
	}
	return v.i, nil
}

// AsUInt returns the UInt payload.
func (v *Value) AsUInt() (uint64, error) {
	if v.kind != ValueKindUInt {
		return 0, fmt.Errorf("value.AsUInt: %w", ErrWrongKind)
	}
	return v.u, nil
}

// AsReal returns the Real payload.
func (v *Value) AsReal() (float64, error) {
	if v.kind != ValueKindReal {
		return 0, fmt.Errorf("value.AsReal: %w", ErrWrongKind)
	}
	return v.f, nil
}

// AsString returns the String payload.
func (v *Value) AsString() (string, error) {
	if v.kind != ValueKindString {
		return "", fmt.Errorf("value.AsString: %w", ErrWrongKind)
	}
	return v.s, nil
}

// Append appends an element to an Array value.
func (v *Value) Append(elem *Value) error {
	if v.kind != ValueKindArray {
		return fmt.Errorf("value.Append: %w", ErrWrongKind)
	}
	if err := v.checkMutable(); err != nil {
		return err
	}
	v.arr = append(v.arr, elem)
	return nil
}

// Len returns the number of elements of an Array, or entries of a Map.
func (v *Value) Len() (int, error) {
	switch v.kind {
	case ValueKindArray:
		return len(v.arr), nil
	case ValueKindMap:
		return len(v.entries), nil
	default:
		return 0, fmt.Errorf("value.Len: %w", ErrWrongKind)
	}
}

// ElementAt returns the array element at index i.
func (v *Value) ElementAt(i int) (*Value, error) {
	if v.kind != ValueKindArray {
		return nil, fmt.Errorf("value.ElementAt: %w", ErrWrongKind)
	}
	if i < 0 || i >= len(v.arr) {
		return nil, fmt.Errorf("value.ElementAt: index %d: %w", i, ErrInvalidArgument)
	}
	return v.arr[i], nil
}

// MapSet appends a (name, value) pair if name is absent, or replaces the
// value associated with name otherwise. Order of first insertion is
// preserved.
func (v *Value) MapSet(name string, val *Value) error {
	if v.kind != ValueKindMap {
		return fmt.Errorf("value.MapSet: %w", ErrWrongKind)
	}
	if err := v.checkMutable(); err != nil {
		return err
	}
	for i := range v.entries {
		if v.entries[i].name == name {
			v.entries[i].value = val
			return nil
		}
	}
	v.entries = append(v.entries, mapEntry{name: name, value: val})
	return nil
}

// MapGet looks up a value by name in a Map; ok is false if absent.
func (v *Value) MapGet(name string) (val *Value, ok bool) {
	if v.kind != ValueKindMap {
		return nil, false
	}
	for _, e := range v.entries {
		if e.name == name {
			return e.value, true
		}
	}
	return nil, false
}

// MapEntryAt returns the name/value pair at index i of a Map, in
// insertion order.
func (v *Value) MapEntryAt(i int) (name string, val *Value, err error) {
	if v.kind != ValueKindMap {
		return "", nil, fmt.Errorf("value.MapEntryAt: %w", ErrWrongKind)
	}
	if i < 0 || i >= len(v.entries) {
		return "", nil, fmt.Errorf("value.MapEntryAt: index %d: %w", i, ErrInvalidArgument)
	}
	return v.entries[i].name, v.entries[i].value, nil
}

// Freeze recursively freezes the value and, for Array/Map, every child.
func (v *Value) Freeze() {
	if v.frozen {
		return
	}
	v.frozen = true
	switch v.kind {
	case ValueKindArray:
		for _, e := range v.arr {
			e.Freeze()
		}
	case ValueKindMap:
		for _, e := range v.entries {
			e.value.Freeze()
		}
	}
}

// DeepCopy returns a new, mutable, independent copy of v preserving
// ordering of arrays and maps. Copying a Null value returns the shared,
// frozen Null singleton.
func (v *Value) DeepCopy() *Value {
	if v.kind == ValueKindNull {
		return nullValue
	}
	cp := &Value{kind: v.kind, b: v.b, i: v.i, u: v.u, f: v.f, s: v.s}
	if v.kind == ValueKindArray {
		cp.arr = make([]*Value, len(v.arr))
		for i, e := range v.arr {
			cp.arr[i] = e.DeepCopy()
		}
	}
	if v.kind == ValueKindMap {
		cp.entries = make([]mapEntry, len(v.entries))
		for i, e := range v.entries {
			cp.entries[i] = mapEntry{name: e.name, value: e.value.DeepCopy()}
		}
	}
	return cp
}

// Equal reports deep structural equality between two values.
func (v *Value) Equal(other *Value) bool {
	if v == nil || other == nil {
		return v == other
	}
	if v.kind != other.kind {
		return false
	}
	switch v.kind {
	case ValueKindNull:
		return true
	case ValueKindBool:
		return v.b == other.b
	case ValueKindInt:
		return v.i == other.i
	case ValueKindUInt:
		return v.u == other.u
	case ValueKindReal:
		return v.f == other.f
	case ValueKindString:
		return v.s == other.s
	case ValueKindArray:
		if len(v.arr) != len(other.arr) {
			return false
		}
		for i := range v.arr {
			if !v.arr[i].Equal(other.arr[i]) {
				return false
			}
		}
		return true
	case ValueKindMap:
		if len(v.entries) != len(other.entries) {
			return false
		}
		for i := range v.entries {
			if v.entries[i].name != other.entries[i].name {
				return false
			}
			if !v.entries[i].value.Equal(other.entries[i].value) {
				return false
			}
		}
		return true
	default:
		return false
	}
}
