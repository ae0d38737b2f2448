// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package ctfir

import (
	"bytes"
	"fmt"
)

// Field is a concrete value instance mirroring a FieldClass (spec §3.4,
// §4.4). A field owns its children exclusively; it holds a strong
// reference to its class.
type Field struct {
	Class      *FieldClass
	payloadSet bool
	frozen     bool

	// Integer / BitArray
	ival int64
	uval uint64

	// Float
	fval float64

	// Enum
	container *Field

	// String
	buf []byte

	// Struct
	children []*Field

	// Array (static)
	elements []*Field

	// Sequence
	lengthField  *Field
	seqElements  []*Field

	// Variant
	tagField      *Field
	selectedIndex int
	selected      *Field

	// Option
	present bool
	content *Field
}

// Create allocates a field for class. Composite children are allocated
// lazily on first access.
func Create(class *FieldClass) (*Field, error) {
	if class == nil {
		return nil, fmt.Errorf("field.Create: %w", ErrInvalidArgument)
	}
	f := &Field{Class: class, selectedIndex: -1}
	if class.Kind == KindStruct {
		f.children = make([]*Field, len(class.structFields))
	}
	if class.Kind == KindArray {
		f.elements = make([]*Field, class.Length)
	}
	return f, nil
}

func (f *Field) checkMutable() error {
	if f.frozen {
		return fmt.Errorf("field: %w", ErrFrozenObject)
	}
	return nil
}

func integerRange(bits uint32, signed bool) (min int64, max int64, umax uint64) {
	if signed {
		if bits == 64 {
			return -(1 << 63), (1 << 63) - 1, 0
		}
		return -(1 << (bits - 1)), (1 << (bits - 1)) - 1, 0
	}
	if bits == 64 {
		return 0, 0, ^uint64(0)
	}
	return 0, 0, (uint64(1) << bits) - 1
}

// SetInt sets the payload of a signed Integer field, range-checked
// against the field class's bit width.
func (f *Field) SetInt(v int64) error {
	if f.Class.Kind != KindInteger || !f.Class.Signed {
		return fmt.Errorf("field.SetInt: %w", ErrWrongKind)
	}
	if err := f.checkMutable(); err != nil {
		return err
	}
	min, max, _ := integerRange(f.Class.Bits, true)
	if v < min || v > max {
		return fmt.Errorf("field.SetInt(%d): outside [%d,%d]: %w", v, min, max, ErrValueOutOfRange)
	}
	f.ival = v
	f.payloadSet = true
	return nil
}

// SetUInt sets the payload of an unsigned Integer (or BitArray) field,
// range-checked against the field class's bit width.
func (f *Field) SetUInt(v uint64) error {
	if f.Class.Kind == KindInteger {
		if f.Class.Signed {
			return fmt.Errorf("field.SetUInt: %w", ErrWrongKind)
		}
		if err := f.checkMutable(); err != nil {
			return err
		}
		_, _, umax := integerRange(f.Class.Bits, false)
		if v > umax {
			return fmt.Errorf("field.SetUInt(%d): outside [0,%d]: %w", v, umax, ErrValueOutOfRange)
		}
		f.uval = v
		f.payloadSet = true
		return nil
	}
	if f.Class.Kind == KindBitArray {
		if err := f.checkMutable(); err != nil {
			return err
		}
		_, _, umax := integerRange(uint32(f.Class.Width), false)
		if v > umax {
			return fmt.Errorf("field.SetUInt(%d): outside [0,%d]: %w", v, umax, ErrValueOutOfRange)
		}
		f.uval = v
		f.payloadSet = true
		return nil
	}
	return fmt.Errorf("field.SetUInt: %w", ErrWrongKind)
}

// Int returns the payload of a signed Integer field.
func (f *Field) Int() (int64, error) {
	if f.Class.Kind != KindInteger || !f.Class.Signed {
		return 0, fmt.Errorf("field.Int: %w", ErrWrongKind)
	}
	return f.ival, nil
}

// UInt returns the payload of an unsigned Integer or BitArray field.
func (f *Field) UInt() (uint64, error) {
	if f.Class.Kind != KindInteger && f.Class.Kind != KindBitArray {
		return 0, fmt.Errorf("field.UInt: %w", ErrWrongKind)
	}
	if f.Class.Kind == KindInteger && f.Class.Signed {
		return 0, fmt.Errorf("field.UInt: %w", ErrWrongKind)
	}
	return f.uval, nil
}

// SetFloat sets the payload of a Float field.
func (f *Field) SetFloat(v float64) error {
	if f.Class.Kind != KindFloat {
		return fmt.Errorf("field.SetFloat: %w", ErrWrongKind)
	}
	if err := f.checkMutable(); err != nil {
		return err
	}
	f.fval = v
	f.payloadSet = true
	return nil
}

// Float returns the payload of a Float field.
func (f *Field) Float() (float64, error) {
	if f.Class.Kind != KindFloat {
		return 0, fmt.Errorf("field.Float: %w", ErrWrongKind)
	}
	return f.fval, nil
}

// EnumContainer returns (lazily allocating) the Integer container field
// of an Enum field.
func (f *Field) EnumContainer() (*Field, error) {
	if f.Class.Kind != KindEnum {
		return nil, fmt.Errorf("field.EnumContainer: %w", ErrWrongKind)
	}
	if f.container == nil {
		if f.frozen {
			return nil, fmt.Errorf("field.EnumContainer: %w", ErrFrozenObject)
		}
		c, err := Create(f.Class.Container)
		if err != nil {
			return nil, err
		}
		f.container = c
	}
	return f.container, nil
}

// SetString sets the payload of a String field. The byte sequence must
// not contain an embedded NUL (the declared encoding is metadata only;
// no further validation is performed here per design note "Unicode").
func (f *Field) SetString(s string) error {
	if f.Class.Kind != KindString {
		return fmt.Errorf("field.SetString: %w", ErrWrongKind)
	}
	if err := f.checkMutable(); err != nil {
		return err
	}
	if bytes.IndexByte([]byte(s), 0) >= 0 {
		return fmt.Errorf("field.SetString: embedded NUL: %w", ErrInvalidArgument)
	}
	f.buf = append(f.buf[:0], s...)
	f.payloadSet = true
	return nil
}

// String returns the payload of a String field.
func (f *Field) String() (string, error) {
	if f.Class.Kind != KindString {
		return "", fmt.Errorf("field.String: %w", ErrWrongKind)
	}
	return string(f.buf), nil
}

// StructFieldAt returns (lazily allocating, unless frozen) the i-th
// member field of a Struct field.
func (f *Field) StructFieldAt(i int) (*Field, error) {
	if f.Class.Kind != KindStruct {
		return nil, fmt.Errorf("field.StructFieldAt: %w", ErrWrongKind)
	}
	if i < 0 || i >= len(f.children) {
		return nil, fmt.Errorf("field.StructFieldAt(%d): %w", i, ErrInvalidArgument)
	}
	if f.children[i] == nil {
		if f.frozen {
			return nil, fmt.Errorf("field.StructFieldAt(%d): %w", i, ErrInvalidArgument)
		}
		child, err := Create(f.Class.structFields[i].Class)
		if err != nil {
			return nil, err
		}
		f.children[i] = child
	}
	return f.children[i], nil
}

// StructFieldByName returns the named member field of a Struct field.
func (f *Field) StructFieldByName(name string) (*Field, error) {
	idx, ok := f.Class.FieldIndexByName(name)
	if !ok {
		return nil, fmt.Errorf("field.StructFieldByName(%s): %w", name, ErrInvalidArgument)
	}
	return f.StructFieldAt(idx)
}

// ArrayElementAt returns (lazily allocating, unless frozen) the i-th
// element field of a static Array field.
func (f *Field) ArrayElementAt(i int) (*Field, error) {
	if f.Class.Kind != KindArray {
		return nil, fmt.Errorf("field.ArrayElementAt: %w", ErrWrongKind)
	}
	if i < 0 || i >= len(f.elements) {
		return nil, fmt.Errorf("field.ArrayElementAt(%d): %w", i, ErrInvalidArgument)
	}
	if f.elements[i] == nil {
		if f.frozen {
			return nil, fmt.Errorf("field.ArrayElementAt(%d): %w", i, ErrInvalidArgument)
		}
		child, err := Create(f.Class.Element)
		if err != nil {
			return nil, err
		}
		f.elements[i] = child
	}
	return f.elements[i], nil
}

// SetLengthFromField replaces a Sequence field's elements with a fresh,
// unset set of size lenField's current value, and keeps lenField as the
// length reference for later serialization. Pre-existing element fields
// are dropped (spec §3.4).
func (f *Field) SetLengthFromField(lenField *Field) error {
	if f.Class.Kind != KindSequence {
		return fmt.Errorf("field.SetLengthFromField: %w", ErrWrongKind)
	}
	if lenField.Class.Kind != KindInteger || lenField.Class.Signed {
		return fmt.Errorf("field.SetLengthFromField: %w", ErrWrongPathTargetKind)
	}
	if err := f.checkMutable(); err != nil {
		return err
	}
	n, err := lenField.UInt()
	if err != nil {
		return err
	}
	f.lengthField = lenField
	f.seqElements = make([]*Field, n)
	return nil
}

// SequenceLength returns the length of a Sequence field, as set by
// SetLengthFromField.
func (f *Field) SequenceLength() (uint64, error) {
	if f.Class.Kind != KindSequence {
		return 0, fmt.Errorf("field.SequenceLength: %w", ErrWrongKind)
	}
	if f.lengthField == nil {
		return 0, fmt.Errorf("field.SequenceLength: %w", ErrInvalidArgument)
	}
	return uint64(len(f.seqElements)), nil
}

// SequenceElementAt returns (lazily allocating, unless frozen) the i-th
// element field of a Sequence field.
func (f *Field) SequenceElementAt(i int) (*Field, error) {
	if f.Class.Kind != KindSequence {
		return nil, fmt.Errorf("field.SequenceElementAt: %w", ErrWrongKind)
	}
	if i < 0 || i >= len(f.seqElements) {
		return nil, fmt.Errorf("field.SequenceElementAt(%d): %w", i, ErrInvalidArgument)
	}
	if f.seqElements[i] == nil {
		if f.frozen {
			return nil, fmt.Errorf("field.SequenceElementAt(%d): %w", i, ErrInvalidArgument)
		}
		child, err := Create(f.Class.Element)
		if err != nil {
			return nil, err
		}
		f.seqElements[i] = child
	}
	return f.seqElements[i], nil
}

// Select allocates (if necessary) and returns the option field at index
// i of a Variant field. Reselecting the same index after a set returns
// the previously allocated value; reselecting a different index drops
// the prior selection (spec §3.4, §4.4).
func (f *Field) Select(i int) (*Field, error) {
	if f.Class.Kind != KindVariant {
		return nil, fmt.Errorf("field.Select: %w", ErrWrongKind)
	}
	if i < 0 || i >= len(f.Class.options) {
		return nil, fmt.Errorf("field.Select(%d): %w", i, ErrInvalidArgument)
	}
	if err := f.checkMutable(); err != nil {
		return nil, err
	}
	if f.selectedIndex == i && f.selected != nil {
		return f.selected, nil
	}
	child, err := Create(f.Class.options[i].Class)
	if err != nil {
		return nil, err
	}
	f.selectedIndex = i
	f.selected = child
	return child, nil
}

// Selected returns the currently selected option field of a Variant
// field, if any.
func (f *Field) Selected() (*Field, bool) {
	return f.selected, f.selected != nil
}

// SetFromTagField reads the enum container value of tag, looks up the
// matching option by its mapped label, selects it, and stores tag as
// the field's tag reference for later serialization.
func (f *Field) SetFromTagField(tag *Field) error {
	if f.Class.Kind != KindVariant {
		return fmt.Errorf("field.SetFromTagField: %w", ErrWrongKind)
	}
	if tag.Class.Kind != KindEnum {
		return fmt.Errorf("field.SetFromTagField: %w", ErrWrongPathTargetKind)
	}
	container, err := tag.EnumContainer()
	if err != nil {
		return err
	}
	var raw uint64
	if tag.Class.Container.Signed {
		v, err := container.Int()
		if err != nil {
			return err
		}
		raw = uint64(v)
	} else {
		v, err := container.UInt()
		if err != nil {
			return err
		}
		raw = v
	}
	labels := tag.Class.Lookup(raw)
	if len(labels) == 0 {
		return fmt.Errorf("field.SetFromTagField: no matching label for %d: %w", raw, ErrUnresolvablePath)
	}
	idx, ok := f.Class.OptionIndexByName(labels[0])
	if !ok {
		return fmt.Errorf("field.SetFromTagField: no option %q: %w", labels[0], ErrUnresolvablePath)
	}
	if _, err := f.Select(idx); err != nil {
		return err
	}
	f.tagField = tag
	return nil
}

// SetOptionPresent marks the presence of an Option field's content
// (SPEC_FULL.md §3).
func (f *Field) SetOptionPresent(present bool) error {
	if f.Class.Kind != KindOption {
		return fmt.Errorf("field.SetOptionPresent: %w", ErrWrongKind)
	}
	if err := f.checkMutable(); err != nil {
		return err
	}
	f.present = present
	f.payloadSet = true
	return nil
}

// OptionContent returns (lazily allocating, unless frozen) the content
// field of an Option field.
func (f *Field) OptionContent() (*Field, error) {
	if f.Class.Kind != KindOption {
		return nil, fmt.Errorf("field.OptionContent: %w", ErrWrongKind)
	}
	if f.content == nil {
		if f.frozen {
			return nil, fmt.Errorf("field.OptionContent: %w", ErrFrozenObject)
		}
		c, err := Create(f.Class.Content)
		if err != nil {
			return nil, err
		}
		f.content = c
	}
	return f.content, nil
}

// IsPresent reports an Option field's presence, as set by
// SetOptionPresent.
func (f *Field) IsPresent() bool { return f.present }

// Freeze recursively freezes the field and every allocated child.
func (f *Field) Freeze() {
	if f.frozen {
		return
	}
	f.frozen = true
	switch f.Class.Kind {
	case KindEnum:
		if f.container != nil {
			f.container.Freeze()
		}
	case KindStruct:
		for _, c := range f.children {
			if c != nil {
				c.Freeze()
			}
		}
	case KindArray:
		for _, c := range f.elements {
			if c != nil {
				c.Freeze()
			}
		}
	case KindSequence:
		for _, c := range f.seqElements {
			if c != nil {
				c.Freeze()
			}
		}
	case KindVariant:
		if f.selected != nil {
			f.selected.Freeze()
		}
	case KindOption:
		if f.content != nil {
			f.content.Freeze()
		}
	}
}

// IsFrozen reports whether the field has been frozen.
func (f *Field) IsFrozen() bool { return f.frozen }

// PayloadSet reports whether this field's payload has been written. For
// Struct, Array and Sequence fields it reports whether every child is
// allocated and set (spec §3.4); a child that has not been allocated
// yet counts as unset.
func (f *Field) PayloadSet() bool {
	switch f.Class.Kind {
	case KindStruct:
		for _, c := range f.children {
			if c == nil || !c.PayloadSet() {
				return false
			}
		}
		return true
	case KindArray:
		for _, c := range f.elements {
			if c == nil || !c.PayloadSet() {
				return false
			}
		}
		return true
	case KindSequence:
		if f.lengthField == nil {
			return false
		}
		for _, c := range f.seqElements {
			if c == nil || !c.PayloadSet() {
				return false
			}
		}
		return true
	case KindVariant:
		return f.selected != nil && f.selected.PayloadSet()
	case KindEnum:
		return f.container != nil && f.container.PayloadSet()
	case KindOption:
		if !f.payloadSet {
			return false
		}
		if !f.present {
			return true
		}
		return f.content != nil && f.content.PayloadSet()
	default:
		return f.payloadSet
	}
}

// Reset clears payload_set and, for String fields, truncates the buffer
// without deallocating it (spec §3.4).
func (f *Field) Reset() {
	f.payloadSet = false
	switch f.Class.Kind {
	case KindString:
		f.buf = f.buf[:0]
	case KindStruct:
		for _, c := range f.children {
			if c != nil {
				c.Reset()
			}
		}
	case KindArray:
		for _, c := range f.elements {
			if c != nil {
				c.Reset()
			}
		}
	case KindSequence:
		f.lengthField = nil
		f.seqElements = nil
	case KindVariant:
		f.selectedIndex = -1
		f.selected = nil
		f.tagField = nil
	case KindEnum:
		if f.container != nil {
			f.container.Reset()
		}
	case KindOption:
		f.present = false
		if f.content != nil {
			f.content.Reset()
		}
	}
}

// Validate returns nil iff every leaf under f has payload_set == true,
// every variant has a selection, and every sequence has a length (spec
// §4.4).
func (f *Field) Validate() error {
	switch f.Class.Kind {
	case KindStruct:
		for i, c := range f.children {
			if c == nil {
				return fmt.Errorf("field.Validate: struct member %q unset: %w", f.Class.structFields[i].Name, ErrInvalidMetadata)
			}
			if err := c.Validate(); err != nil {
				return err
			}
		}
		return nil
	case KindArray:
		for i, c := range f.elements {
			if c == nil {
				return fmt.Errorf("field.Validate: array element %d unset: %w", i, ErrInvalidMetadata)
			}
			if err := c.Validate(); err != nil {
				return err
			}
		}
		return nil
	case KindSequence:
		if f.lengthField == nil {
			return fmt.Errorf("field.Validate: sequence has no length: %w", ErrInvalidMetadata)
		}
		for i, c := range f.seqElements {
			if c == nil {
				return fmt.Errorf("field.Validate: sequence element %d unset: %w", i, ErrInvalidMetadata)
			}
			if err := c.Validate(); err != nil {
				return err
			}
		}
		return nil
	case KindVariant:
		if f.selected == nil {
			return fmt.Errorf("field.Validate: variant has no selection: %w", ErrInvalidMetadata)
		}
		return f.selected.Validate()
	case KindEnum:
		if f.container == nil || !f.container.PayloadSet() {
			return fmt.Errorf("field.Validate: enum container unset: %w", ErrInvalidMetadata)
		}
		return nil
	case KindOption:
		if !f.payloadSet {
			return fmt.Errorf("field.Validate: option presence unset: %w", ErrInvalidMetadata)
		}
		if !f.present {
			return nil
		}
		if f.content == nil {
			return fmt.Errorf("field.Validate: option content unset: %w", ErrInvalidMetadata)
		}
		return f.content.Validate()
	default:
		if !f.payloadSet {
			return fmt.Errorf("field.Validate: %s unset: %w", f.Class.Kind, ErrInvalidMetadata)
		}
		return nil
	}
}
