// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package ctfir

import "fmt"

// Kind discriminates the variant carried by a FieldClass (spec §3.3).
// All per-kind code lives behind a switch on Kind in each operation
// (create/validate/reset/serialize/copy/freeze) rather than behind
// per-kind dynamic dispatch, per design note 9.
type Kind int

// Field class kinds.
const (
	KindInteger Kind = iota
	KindFloat
	KindEnum
	KindString
	KindStruct
	KindArray    // static array
	KindSequence // dynamic array
	KindVariant
	KindBitArray // later revision, see SPEC_FULL.md §3
	KindOption   // later revision, see SPEC_FULL.md §3
)

func (k Kind) String() string {
	switch k {
	case KindInteger:
		return "integer"
	case KindFloat:
		return "float"
	case KindEnum:
		return "enum"
	case KindString:
		return "string"
	case KindStruct:
		return "struct"
	case KindArray:
		return "array"
	case KindSequence:
		return "sequence"
	case KindVariant:
		return "variant"
	case KindBitArray:
		return "bit_array"
	case KindOption:
		return "option"
	default:
		return "unknown"
	}
}

// ByteOrder is the byte order of an integer/float field class. Native is
// resolved to LE or BE at trace construction time (design note "Native
// byte order") and propagated to every descendant before the trace is
// frozen.
type ByteOrder int

// Byte orders.
const (
	ByteOrderNative ByteOrder = iota
	ByteOrderLE
	ByteOrderBE
)

// IntBase is the preferred textual base for an integer field class.
type IntBase int

// Integer bases.
const (
	BaseDec IntBase = iota
	BaseBin
	BaseOct
	BaseHex
)

// IntEncoding is the declared encoding of an integer or string field
// class.
type IntEncoding int

// Encodings.
const (
	EncodingNone IntEncoding = iota
	EncodingAscii
	EncodingUtf8
)

// EnumMapping associates a label with an inclusive [Lo, Hi] range,
// stored as raw bit patterns interpreted as signed or unsigned according
// to the owning enum's container. Mapping ranges are kept in insertion
// order; overlapping ranges are allowed (spec §3.3).
type EnumMapping struct {
	Label string
	Lo    uint64
	Hi    uint64
}

// StructField is one (name, class) member of a Struct field class.
type StructField struct {
	Name  string
	Class *FieldClass
}

// VariantOption is one (name, class) option of a Variant field class.
type VariantOption struct {
	Name  string
	Class *FieldClass
}

// BitArrayFlag names one bit position of a BitArray field class.
type BitArrayFlag struct {
	Label string
	Bit   uint8
}

// FieldClass is a recursive CTF type declaration (spec §3.3). It is a
// single struct carrying every kind's fields rather than an interface
// hierarchy, matching the teacher's dynamic-dispatch-by-switch style.
type FieldClass struct {
	Kind      Kind
	Alignment uint32
	ByteOrder ByteOrder
	frozen    bool
	userAttr  *Value

	// Integer
	Bits         uint32
	Signed       bool
	Base         IntBase
	Encoding     IntEncoding
	MappedClock *ClockClass // not owned: the clock class belongs to the trace

	// Float
	ExpBits  uint8
	MantBits uint8

	// Enum (Container must be an Integer field class)
	Container *FieldClass
	Mappings  []EnumMapping

	// String uses Encoding above.

	// Struct
	structFields []StructField
	structIndex  map[string]int

	// Array (static) / Sequence element type
	Element    *FieldClass
	Length     uint64     // Array
	LengthPath *PathExpr  // Sequence
	resolvedLen *ResolvedPath

	// Variant
	TagPath      *PathExpr
	options      []VariantOption
	optionIndex  map[string]int
	resolvedTag  *ResolvedPath

	// BitArray
	Width uint8
	Flags []BitArrayFlag

	// Option (later revision)
	Content      *FieldClass
	SelectorPath *PathExpr
	resolvedSel  *ResolvedPath
}

func defaultAlignment(bits uint32) uint32 {
	if bits%8 != 0 {
		return 1
	}
	return 8
}

func isPowerOfTwo(n uint32) bool {
	return n != 0 && (n&(n-1)) == 0
}

// NewIntegerFieldClass creates a mutable Integer field class of the
// given bit width (1..=64) and signedness, with the default alignment
// (spec §3.3).
func NewIntegerFieldClass(bits uint32, signed bool) (*FieldClass, error) {
	if bits < 1 || bits > 64 {
		return nil, fmt.Errorf("NewIntegerFieldClass: bits=%d: %w", bits, ErrInvalidArgument)
	}
	return &FieldClass{
		Kind:      KindInteger,
		Bits:      bits,
		Signed:    signed,
		Base:      BaseDec,
		Encoding:  EncodingNone,
		Alignment: defaultAlignment(bits),
		ByteOrder: ByteOrderNative,
	}, nil
}

// NewFloatFieldClass creates a mutable Float field class. The total bit
// width (1 + expBits + mantBits) must be 32 or 64.
func NewFloatFieldClass(expBits, mantBits uint8) (*FieldClass, error) {
	total := 1 + int(expBits) + int(mantBits)
	if total != 32 && total != 64 {
		return nil, fmt.Errorf("NewFloatFieldClass: total width %d: %w", total, ErrInvalidArgument)
	}
	return &FieldClass{
		Kind:      KindFloat,
		ExpBits:   expBits,
		MantBits:  mantBits,
		Alignment: 8,
		ByteOrder: ByteOrderNative,
	}, nil
}

// NewEnumFieldClass creates a mutable Enum field class over the given
// Integer container field class.
func NewEnumFieldClass(container *FieldClass) (*FieldClass, error) {
	if container == nil || container.Kind != KindInteger {
		return nil, fmt.Errorf("NewEnumFieldClass: container must be integer: %w", ErrWrongKind)
	}
	return &FieldClass{
		Kind:      KindEnum,
		Container: container,
		Alignment: container.Alignment,
	}, nil
}

// NewStringFieldClass creates a mutable String field class.
func NewStringFieldClass(encoding IntEncoding) *FieldClass {
	return &FieldClass{Kind: KindString, Encoding: encoding, Alignment: 8}
}

// NewStructFieldClass creates a mutable, initially empty Struct field
// class.
func NewStructFieldClass() *FieldClass {
	return &FieldClass{Kind: KindStruct, Alignment: 8, structIndex: map[string]int{}}
}

// NewStaticArrayFieldClass creates a mutable Array field class of fixed
// length.
func NewStaticArrayFieldClass(element *FieldClass, length uint64) (*FieldClass, error) {
	if element == nil {
		return nil, fmt.Errorf("NewStaticArrayFieldClass: nil element: %w", ErrInvalidArgument)
	}
	return &FieldClass{Kind: KindArray, Element: element, Length: length, Alignment: element.Alignment}, nil
}

// NewSequenceFieldClass creates a mutable Sequence field class whose
// length is resolved, at validation time, via lengthPath.
func NewSequenceFieldClass(element *FieldClass, lengthPath *PathExpr) (*FieldClass, error) {
	if element == nil || lengthPath == nil {
		return nil, fmt.Errorf("NewSequenceFieldClass: nil argument: %w", ErrInvalidArgument)
	}
	return &FieldClass{Kind: KindSequence, Element: element, LengthPath: lengthPath, Alignment: element.Alignment}, nil
}

// NewVariantFieldClass creates a mutable, initially empty Variant field
// class whose tag is resolved, at validation time, via tagPath.
func NewVariantFieldClass(tagPath *PathExpr) (*FieldClass, error) {
	if tagPath == nil {
		return nil, fmt.Errorf("NewVariantFieldClass: nil tag path: %w", ErrInvalidArgument)
	}
	return &FieldClass{Kind: KindVariant, TagPath: tagPath, Alignment: 8, optionIndex: map[string]int{}}, nil
}

// NewBitArrayFieldClass creates a mutable BitArray field class of the
// given bit width (1..=64).
func NewBitArrayFieldClass(width uint8) (*FieldClass, error) {
	if width < 1 || width > 64 {
		return nil, fmt.Errorf("NewBitArrayFieldClass: width=%d: %w", width, ErrInvalidArgument)
	}
	return &FieldClass{Kind: KindBitArray, Width: width, Alignment: defaultAlignment(uint32(width)), ByteOrder: ByteOrderNative}, nil
}

// NewOptionFieldClass creates a mutable Option field class with the given
// content class and selector path. The selector path is resolved during
// validation, but the selector field's value is not read: whether an
// Option field's content is present is set on the field itself.
func NewOptionFieldClass(content *FieldClass, selectorPath *PathExpr) (*FieldClass, error) {
	if content == nil || selectorPath == nil {
		return nil, fmt.Errorf("NewOptionFieldClass: nil argument: %w", ErrInvalidArgument)
	}
	return &FieldClass{Kind: KindOption, Content: content, SelectorPath: selectorPath, Alignment: content.Alignment}, nil
}

// IsFrozen reports whether the field class (or an ancestor) has been
// frozen.
func (fc *FieldClass) IsFrozen() bool { return fc.frozen }

func (fc *FieldClass) checkMutable() error {
	if fc.frozen {
		return fmt.Errorf("fieldclass: %w", ErrFrozenObject)
	}
	return nil
}

// SetAlignment overrides the field class's alignment, which must be a
// power of two.
func (fc *FieldClass) SetAlignment(bits uint32) error {
	if err := fc.checkMutable(); err != nil {
		return err
	}
	if !isPowerOfTwo(bits) {
		return fmt.Errorf("fieldclass.SetAlignment(%d): %w", bits, ErrInvalidArgument)
	}
	fc.Alignment = bits
	return nil
}

// SetByteOrder overrides the field class's byte order. Only meaningful
// for Integer, Float and BitArray classes.
func (fc *FieldClass) SetByteOrder(bo ByteOrder) error {
	if fc.Kind != KindInteger && fc.Kind != KindFloat && fc.Kind != KindBitArray {
		return fmt.Errorf("fieldclass.SetByteOrder: %w", ErrWrongKind)
	}
	if err := fc.checkMutable(); err != nil {
		return err
	}
	fc.ByteOrder = bo
	return nil
}

// SetBase overrides an Integer field class's preferred base.
func (fc *FieldClass) SetBase(base IntBase) error {
	if fc.Kind != KindInteger {
		return fmt.Errorf("fieldclass.SetBase: %w", ErrWrongKind)
	}
	if err := fc.checkMutable(); err != nil {
		return err
	}
	fc.Base = base
	return nil
}

// SetEncoding overrides an Integer or String field class's encoding.
func (fc *FieldClass) SetEncoding(enc IntEncoding) error {
	if fc.Kind != KindInteger && fc.Kind != KindString {
		return fmt.Errorf("fieldclass.SetEncoding: %w", ErrWrongKind)
	}
	if err := fc.checkMutable(); err != nil {
		return err
	}
	fc.Encoding = enc
	return nil
}

// SetMappedClock binds an Integer field class to a clock class (spec
// §3.5). Neither this call nor ValidateRecursive checks that the clock
// class is attached to the owning trace.
func (fc *FieldClass) SetMappedClock(cc *ClockClass) error {
	if fc.Kind != KindInteger {
		return fmt.Errorf("fieldclass.SetMappedClock: %w", ErrWrongKind)
	}
	if err := fc.checkMutable(); err != nil {
		return err
	}
	fc.MappedClock = cc
	return nil
}

// SetUserAttribute attaches a free-form Value to the field class (see
// SPEC_FULL.md §3, per-field-class user attributes).
func (fc *FieldClass) SetUserAttribute(v *Value) error {
	if err := fc.checkMutable(); err != nil {
		return err
	}
	fc.userAttr = v
	return nil
}

// UserAttribute returns the field class's attached attribute, if any.
func (fc *FieldClass) UserAttribute() (*Value, bool) {
	return fc.userAttr, fc.userAttr != nil
}

// AddMapping adds a (label, [lo, hi]) range to an Enum field class.
func (fc *FieldClass) AddMapping(label string, lo, hi uint64) error {
	if fc.Kind != KindEnum {
		return fmt.Errorf("fieldclass.AddMapping: %w", ErrWrongKind)
	}
	if err := fc.checkMutable(); err != nil {
		return err
	}
	if !IsValidIdentifier(label) {
		return fmt.Errorf("fieldclass.AddMapping(%s): %w", label, ErrInvalidArgument)
	}
	fc.Mappings = append(fc.Mappings, EnumMapping{Label: label, Lo: lo, Hi: hi})
	return nil
}

// Lookup returns every label whose mapped range contains value,
// interpreting value according to the enum's container signedness.
func (fc *FieldClass) Lookup(value uint64) []string {
	if fc.Kind != KindEnum {
		return nil
	}
	var labels []string
	for _, m := range fc.Mappings {
		if fc.Container.Signed {
			v := int64(value)
			lo, hi := int64(m.Lo), int64(m.Hi)
			if v >= lo && v <= hi {
				labels = append(labels, m.Label)
			}
		} else {
			if value >= m.Lo && value <= m.Hi {
				labels = append(labels, m.Label)
			}
		}
	}
	return labels
}

// AddField appends a named member to a Struct field class.
func (fc *FieldClass) AddField(name string, member *FieldClass) error {
	if fc.Kind != KindStruct {
		return fmt.Errorf("fieldclass.AddField: %w", ErrWrongKind)
	}
	if err := fc.checkMutable(); err != nil {
		return err
	}
	if !IsValidIdentifier(name) {
		return fmt.Errorf("fieldclass.AddField(%s): %w", name, ErrInvalidArgument)
	}
	if _, exists := fc.structIndex[name]; exists {
		return fmt.Errorf("fieldclass.AddField(%s): %w", name, ErrDuplicateIdentifier)
	}
	fc.structIndex[name] = len(fc.structFields)
	fc.structFields = append(fc.structFields, StructField{Name: name, Class: member})
	return nil
}

// FieldCount returns the number of members of a Struct field class, or
// the number of options of a Variant field class.
func (fc *FieldClass) FieldCount() int {
	switch fc.Kind {
	case KindStruct:
		return len(fc.structFields)
	case KindVariant:
		return len(fc.options)
	default:
		return 0
	}
}

// FieldAt returns the i-th member of a Struct field class.
func (fc *FieldClass) FieldAt(i int) (StructField, error) {
	if fc.Kind != KindStruct {
		return StructField{}, fmt.Errorf("fieldclass.FieldAt: %w", ErrWrongKind)
	}
	if i < 0 || i >= len(fc.structFields) {
		return StructField{}, fmt.Errorf("fieldclass.FieldAt(%d): %w", i, ErrInvalidArgument)
	}
	return fc.structFields[i], nil
}

// FieldIndexByName returns the index of the named struct member.
func (fc *FieldClass) FieldIndexByName(name string) (int, bool) {
	if fc.Kind != KindStruct {
		return 0, false
	}
	idx, ok := fc.structIndex[name]
	return idx, ok
}

// AddOption appends a named option to a Variant field class.
func (fc *FieldClass) AddOption(name string, class *FieldClass) error {
	if fc.Kind != KindVariant {
		return fmt.Errorf("fieldclass.AddOption: %w", ErrWrongKind)
	}
	if err := fc.checkMutable(); err != nil {
		return err
	}
	if !IsValidIdentifier(name) {
		return fmt.Errorf("fieldclass.AddOption(%s): %w", name, ErrInvalidArgument)
	}
	if _, exists := fc.optionIndex[name]; exists {
		return fmt.Errorf("fieldclass.AddOption(%s): %w", name, ErrDuplicateIdentifier)
	}
	fc.optionIndex[name] = len(fc.options)
	fc.options = append(fc.options, VariantOption{Name: name, Class: class})
	return nil
}

// OptionAt returns the i-th option of a Variant field class.
func (fc *FieldClass) OptionAt(i int) (VariantOption, error) {
	if fc.Kind != KindVariant {
		return VariantOption{}, fmt.Errorf("fieldclass.OptionAt: %w", ErrWrongKind)
	}
	if i < 0 || i >= len(fc.options) {
		return VariantOption{}, fmt.Errorf("fieldclass.OptionAt(%d): %w", i, ErrInvalidArgument)
	}
	return fc.options[i], nil
}

// OptionIndexByName returns the index of the named variant option.
func (fc *FieldClass) OptionIndexByName(name string) (int, bool) {
	if fc.Kind != KindVariant {
		return 0, false
	}
	idx, ok := fc.optionIndex[name]
	return idx, ok
}

// AddFlag names one bit position of a BitArray field class.
func (fc *FieldClass) AddFlag(label string, bit uint8) error {
	if fc.Kind != KindBitArray {
		return fmt.Errorf("fieldclass.AddFlag: %w", ErrWrongKind)
	}
	if err := fc.checkMutable(); err != nil {
		return err
	}
	if bit >= fc.Width {
		return fmt.Errorf("fieldclass.AddFlag(%s): bit %d >= width %d: %w", label, bit, fc.Width, ErrInvalidArgument)
	}
	fc.Flags = append(fc.Flags, BitArrayFlag{Label: label, Bit: bit})
	return nil
}

// Freeze recursively freezes the field class and every descendant.
func (fc *FieldClass) Freeze() {
	if fc.frozen {
		return
	}
	fc.frozen = true
	switch fc.Kind {
	case KindEnum:
		fc.Container.Freeze()
	case KindStruct:
		for _, f := range fc.structFields {
			f.Class.Freeze()
		}
	case KindArray, KindSequence:
		fc.Element.Freeze()
	case KindVariant:
		for _, o := range fc.options {
			o.Class.Freeze()
		}
	case KindOption:
		fc.Content.Freeze()
	}
}

// EqualRecursive reports whether fc and other are structurally equal:
// same kind, same kind-specific attributes, same alignment and byte
// order, and recursively equal children in order (spec §4.2).
func (fc *FieldClass) EqualRecursive(other *FieldClass) bool {
	if fc == nil || other == nil {
		return fc == other
	}
	if fc.Kind != other.Kind || fc.Alignment != other.Alignment || fc.ByteOrder != other.ByteOrder {
		return false
	}
	switch fc.Kind {
	case KindInteger:
		return fc.Bits == other.Bits && fc.Signed == other.Signed &&
			fc.Base == other.Base && fc.Encoding == other.Encoding &&
			fc.MappedClock == other.MappedClock
	case KindFloat:
		return fc.ExpBits == other.ExpBits && fc.MantBits == other.MantBits
	case KindEnum:
		if len(fc.Mappings) != len(other.Mappings) {
			return false
		}
		for i := range fc.Mappings {
			if fc.Mappings[i] != other.Mappings[i] {
				return false
			}
		}
		return fc.Container.EqualRecursive(other.Container)
	case KindString:
		return fc.Encoding == other.Encoding
	case KindStruct:
		if len(fc.structFields) != len(other.structFields) {
			return false
		}
		for i := range fc.structFields {
			if fc.structFields[i].Name != other.structFields[i].Name {
				return false
			}
			if !fc.structFields[i].Class.EqualRecursive(other.structFields[i].Class) {
				return false
			}
		}
		return true
	case KindArray:
		return fc.Length == other.Length && fc.Element.EqualRecursive(other.Element)
	case KindSequence:
		return fc.Element.EqualRecursive(other.Element)
	case KindVariant:
		if len(fc.options) != len(other.options) {
			return false
		}
		for i := range fc.options {
			if fc.options[i].Name != other.options[i].Name {
				return false
			}
			if !fc.options[i].Class.EqualRecursive(other.options[i].Class) {
				return false
			}
		}
		return true
	case KindBitArray:
		if len(fc.Flags) != len(other.Flags) {
			return false
		}
		for i := range fc.Flags {
			if fc.Flags[i] != other.Flags[i] {
				return false
			}
		}
		return fc.Width == other.Width
	case KindOption:
		return fc.Content.EqualRecursive(other.Content)
	default:
		return false
	}
}

func pathLess(a, b []int) bool {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return len(a) < len(b)
}

// precedes reports whether a field resolved at (scope, indices) appears
// lexically before the field at (fromScope, fromIndices) in the layout
// order of the scope chain (outer scopes always precede inner ones).
func precedes(scope Scope, indices []int, fromScope Scope, fromIndices []int) bool {
	if scope != fromScope {
		return scope < fromScope
	}
	return pathLess(indices, fromIndices)
}

// ValidateRecursive checks the invariants of spec §3.3 and resolves
// every sequence-length and variant-tag path expression against chain,
// searching outward from scope from (spec §4.2). indices is this field
// class's own position within its
// scope root, used to enforce the "lexically preceding" invariant on
// sequence/variant references.
func (fc *FieldClass) ValidateRecursive(chain *ScopeChain, from Scope, indices []int) error {
	switch fc.Kind {
	case KindInteger:
		if fc.Bits < 1 || fc.Bits > 64 {
			return fmt.Errorf("fieldclass.ValidateRecursive: integer bits=%d: %w", fc.Bits, ErrInvalidMetadata)
		}
		if !isPowerOfTwo(fc.Alignment) {
			return fmt.Errorf("fieldclass.ValidateRecursive: alignment=%d: %w", fc.Alignment, ErrInvalidMetadata)
		}
		return nil

	case KindFloat:
		total := 1 + int(fc.ExpBits) + int(fc.MantBits)
		if total != 32 && total != 64 {
			return fmt.Errorf("fieldclass.ValidateRecursive: float width=%d: %w", total, ErrInvalidMetadata)
		}
		return nil

	case KindEnum:
		return fc.Container.ValidateRecursive(chain, from, indices)

	case KindString:
		return nil

	case KindStruct:
		if !isPowerOfTwo(fc.Alignment) {
			return fmt.Errorf("fieldclass.ValidateRecursive: alignment=%d: %w", fc.Alignment, ErrInvalidMetadata)
		}
		for i, f := range fc.structFields {
			childIndices := append(append([]int{}, indices...), i)
			if err := f.Class.ValidateRecursive(chain, from, childIndices); err != nil {
				return err
			}
		}
		return nil

	case KindArray:
		return fc.Element.ValidateRecursive(chain, from, indices)

	case KindSequence:
		resolved, err := fc.LengthPath.Resolve(chain, from)
		if err != nil {
			return err
		}
		if resolved.Target.Kind != KindInteger || resolved.Target.Signed {
			return fmt.Errorf("fieldclass.ValidateRecursive: sequence length target: %w", ErrWrongPathTargetKind)
		}
		if !precedes(resolved.Scope, resolved.Indices, from, indices) {
			return fmt.Errorf("fieldclass.ValidateRecursive: sequence length does not precede sequence: %w", ErrUnresolvablePath)
		}
		fc.resolvedLen = resolved
		return fc.Element.ValidateRecursive(chain, from, indices)

	case KindVariant:
		resolved, err := fc.TagPath.Resolve(chain, from)
		if err != nil {
			return err
		}
		if resolved.Target.Kind != KindEnum {
			return fmt.Errorf("fieldclass.ValidateRecursive: variant tag target: %w", ErrWrongPathTargetKind)
		}
		if !precedes(resolved.Scope, resolved.Indices, from, indices) {
			return fmt.Errorf("fieldclass.ValidateRecursive: variant tag does not precede variant: %w", ErrUnresolvablePath)
		}
		labelCount := map[string]int{}
		for _, m := range resolved.Target.Mappings {
			labelCount[m.Label]++
		}
		for _, o := range fc.options {
			if labelCount[o.Name] != 1 {
				return fmt.Errorf("fieldclass.ValidateRecursive: variant option %q not covered exactly once: %w", o.Name, ErrInvalidMetadata)
			}
		}
		fc.resolvedTag = resolved
		for i, o := range fc.options {
			childIndices := append(append([]int{}, indices...), i)
			if err := o.Class.ValidateRecursive(chain, from, childIndices); err != nil {
				return err
			}
		}
		return nil

	case KindBitArray:
		if fc.Width < 1 || fc.Width > 64 {
			return fmt.Errorf("fieldclass.ValidateRecursive: bitarray width=%d: %w", fc.Width, ErrInvalidMetadata)
		}
		return nil

	case KindOption:
		resolved, err := fc.SelectorPath.Resolve(chain, from)
		if err != nil {
			return err
		}
		if resolved.Target.Kind != KindInteger || resolved.Target.Signed {
			return fmt.Errorf("fieldclass.ValidateRecursive: option selector target: %w", ErrWrongPathTargetKind)
		}
		fc.resolvedSel = resolved
		return fc.Content.ValidateRecursive(chain, from, indices)

	default:
		return fmt.Errorf("fieldclass.ValidateRecursive: unknown kind %v: %w", fc.Kind, ErrInvalidMetadata)
	}
}
