// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package ctfir

import (
	"fmt"
	"strings"
)

// WriteMetadata renders trace's full textual CTF metadata document
// (spec §4.8) into a growable strings.Builder and returns it.
func WriteMetadata(trace *Trace) (string, error) {
	var sb strings.Builder

	sb.WriteString("trace {\n")
	sb.WriteString("\tmajor = 1;\n")
	sb.WriteString("\tminor = 8;\n")
	sb.WriteString(fmt.Sprintf("\tbyte_order = %s;\n", byteOrderWord(trace.nativeByteOrder)))
	sb.WriteString(fmt.Sprintf("\tuuid = %q;\n", trace.UUID.String()))
	if trace.PacketHeaderClass != nil {
		sb.WriteString("\tpacket.header := ")
		if err := renderFieldClass(&sb, trace.PacketHeaderClass, "\t"); err != nil {
			return "", err
		}
		sb.WriteString(";\n")
	}
	sb.WriteString("};\n\n")

	sb.WriteString("env {\n")
	for i := 0; i < trace.Environment.Count(); i++ {
		name, val, err := trace.Environment.GetByIndex(i)
		if err != nil {
			return "", err
		}
		rendered, err := renderEnvValue(val)
		if err != nil {
			return "", err
		}
		sb.WriteString(fmt.Sprintf("\t%s = %s;\n", name, rendered))
	}
	sb.WriteString("};\n\n")

	for _, cc := range trace.ClockClasses() {
		sb.WriteString("clock {\n")
		sb.WriteString(fmt.Sprintf("\tname = %s;\n", cc.Name))
		if cc.Description != "" {
			sb.WriteString(fmt.Sprintf("\tdescription = %q;\n", cc.Description))
		}
		sb.WriteString(fmt.Sprintf("\tuuid = %q;\n", cc.UUID.String()))
		sb.WriteString(fmt.Sprintf("\tfreq = %d;\n", cc.Frequency))
		sb.WriteString(fmt.Sprintf("\tprecision = %d;\n", cc.Precision))
		sb.WriteString(fmt.Sprintf("\toffset_s = %d;\n", cc.OffsetSeconds))
		sb.WriteString(fmt.Sprintf("\toffset = %d;\n", cc.OffsetCycles))
		sb.WriteString(fmt.Sprintf("\tabsolute = %s;\n", boolWord(cc.IsAbsolute)))
		sb.WriteString("};\n\n")
	}

	for _, sc := range trace.StreamClasses() {
		id, _ := sc.ID()
		sb.WriteString("stream {\n")
		sb.WriteString(fmt.Sprintf("\tid = %d;\n", id))
		if sc.EventHeaderClass != nil {
			sb.WriteString("\tevent.header := ")
			if err := renderFieldClass(&sb, sc.EventHeaderClass, "\t"); err != nil {
				return "", err
			}
			sb.WriteString(";\n")
		}
		if sc.PacketContextClass != nil {
			sb.WriteString("\tpacket.context := ")
			if err := renderFieldClass(&sb, sc.PacketContextClass, "\t"); err != nil {
				return "", err
			}
			sb.WriteString(";\n")
		}
		if sc.EventContextClass != nil {
			sb.WriteString("\tevent.context := ")
			if err := renderFieldClass(&sb, sc.EventContextClass, "\t"); err != nil {
				return "", err
			}
			sb.WriteString(";\n")
		}
		sb.WriteString("};\n\n")

		for _, ec := range sc.EventClasses() {
			sb.WriteString("event {\n")
			sb.WriteString(fmt.Sprintf("\tname = %q;\n", ec.Name()))
			sb.WriteString(fmt.Sprintf("\tid = %d;\n", ec.ID()))
			if v, ok := ec.Attributes().GetByName("stream_id"); ok {
				sv, _ := v.AsUInt()
				sb.WriteString(fmt.Sprintf("\tstream_id = %d;\n", sv))
			}
			if v, ok := ec.Attributes().GetByName("loglevel"); ok {
				lv, _ := v.AsInt()
				sb.WriteString(fmt.Sprintf("\tloglevel = %d;\n", lv))
			}
			if v, ok := ec.Attributes().GetByName("model.emf.uri"); ok {
				uv, _ := v.AsString()
				sb.WriteString(fmt.Sprintf("\tmodel.emf.uri = %q;\n", uv))
			}
			if ec.ContextClass != nil {
				sb.WriteString("\tcontext := ")
				if err := renderFieldClass(&sb, ec.ContextClass, "\t"); err != nil {
					return "", err
				}
				sb.WriteString(";\n")
			}
			sb.WriteString("\tfields := ")
			if err := renderFieldClass(&sb, ec.PayloadClass, "\t"); err != nil {
				return "", err
			}
			sb.WriteString(";\n")
			sb.WriteString("};\n\n")
		}
	}

	return sb.String(), nil
}

func byteOrderWord(bo ByteOrder) string {
	switch resolveByteOrder(bo) {
	case ByteOrderBE:
		return "be"
	default:
		return "le"
	}
}

func boolWord(b bool) string {
	if b {
		return "TRUE"
	}
	return "FALSE"
}

func renderEnvValue(v *Value) (string, error) {
	switch v.Kind() {
	case ValueKindString:
		s, _ := v.AsString()
		return fmt.Sprintf("%q", s), nil
	case ValueKindInt:
		i, _ := v.AsInt()
		return fmt.Sprintf("%d", i), nil
	case ValueKindUInt:
		u, _ := v.AsUInt()
		return fmt.Sprintf("%d", u), nil
	case ValueKindReal:
		f, _ := v.AsReal()
		return fmt.Sprintf("%g", f), nil
	case ValueKindBool:
		b, _ := v.AsBool()
		return boolWord(b), nil
	default:
		return "", fmt.Errorf("metadata.renderEnvValue: unsupported kind %s: %w", v.Kind(), ErrInvalidMetadata)
	}
}

// stdIntName returns the stdint.h-style name for a field class whose
// shape matches a plain byte-aligned, decimal-base, unencoded,
// unmapped integer of width 8/16/32/64, or "" otherwise.
func stdIntName(fc *FieldClass) string {
	if fc.Kind != KindInteger {
		return ""
	}
	if fc.Alignment != 8 || fc.Base != BaseDec || fc.Encoding != EncodingNone || fc.MappedClock != nil {
		return ""
	}
	switch fc.Bits {
	case 8, 16, 32, 64:
	default:
		return ""
	}
	if fc.Signed {
		return fmt.Sprintf("int%d_t", fc.Bits)
	}
	return fmt.Sprintf("uint%d_t", fc.Bits)
}

func baseWord(b IntBase) string {
	switch b {
	case BaseBin:
		return "2"
	case BaseOct:
		return "8"
	case BaseHex:
		return "16"
	default:
		return "10"
	}
}

func encodingWord(e IntEncoding) string {
	switch e {
	case EncodingAscii:
		return "ASCII"
	case EncodingUtf8:
		return "UTF8"
	default:
		return "none"
	}
}

// renderFieldClass writes fc's TSDL type expression (without a trailing
// member name) to sb (spec §4.8).
func renderFieldClass(sb *strings.Builder, fc *FieldClass, indent string) error {
	if name := stdIntName(fc); name != "" {
		sb.WriteString(name)
		return nil
	}
	switch fc.Kind {
	case KindInteger:
		sb.WriteString(fmt.Sprintf("integer { size = %d; align = %d; signed = %s; encoding = %s; base = %s; byte_order = %s",
			fc.Bits, fc.Alignment, boolWord(fc.Signed), encodingWord(fc.Encoding), baseWord(fc.Base), byteOrderWord(fc.ByteOrder)))
		if fc.MappedClock != nil {
			sb.WriteString(fmt.Sprintf("; map = clock.%s.value", fc.MappedClock.Name))
		}
		sb.WriteString(" }")
		return nil

	case KindFloat:
		sb.WriteString(fmt.Sprintf("floating_point { exp_dig = %d; mant_dig = %d; align = %d; byte_order = %s }",
			fc.ExpBits, fc.MantBits, fc.Alignment, byteOrderWord(fc.ByteOrder)))
		return nil

	case KindEnum:
		sb.WriteString("enum : ")
		if err := renderFieldClass(sb, fc.Container, indent); err != nil {
			return err
		}
		sb.WriteString(" { ")
		for i, m := range fc.Mappings {
			if i > 0 {
				sb.WriteString(", ")
			}
			if m.Lo == m.Hi {
				sb.WriteString(fmt.Sprintf("%s = %d", m.Label, m.Lo))
			} else {
				sb.WriteString(fmt.Sprintf("%s = %d ... %d", m.Label, m.Lo, m.Hi))
			}
		}
		sb.WriteString(" }")
		return nil

	case KindString:
		sb.WriteString(fmt.Sprintf("string { encoding = %s }", encodingWord(fc.Encoding)))
		return nil

	case KindStruct:
		return renderStructBody(sb, fc, indent)

	case KindArray:
		return renderFieldClass(sb, fc.Element, indent)

	case KindSequence:
		return renderFieldClass(sb, fc.Element, indent)

	case KindVariant:
		sb.WriteString(fmt.Sprintf("variant <%s> {\n", fc.TagPath.text()))
		childIndent := indent + "\t"
		for _, o := range fc.options {
			sb.WriteString(childIndent)
			if err := renderMember(sb, o.Name, o.Class, childIndent); err != nil {
				return err
			}
			sb.WriteString("\n")
		}
		sb.WriteString(indent + "}")
		return nil

	case KindBitArray:
		sb.WriteString(fmt.Sprintf("/* bit_array extension */ integer { size = %d; align = %d; signed = false; encoding = none; base = 2; byte_order = %s }",
			fc.Width, fc.Alignment, byteOrderWord(fc.ByteOrder)))
		return nil

	case KindOption:
		sb.WriteString(fmt.Sprintf("/* option extension, selector <%s> */ variant <%s> { void none; ", fc.SelectorPath.text(), fc.SelectorPath.text()))
		if err := renderMember(sb, "some", fc.Content, indent); err != nil {
			return err
		}
		sb.WriteString(" }")
		return nil

	default:
		return fmt.Errorf("metadata.renderFieldClass: unknown kind %v: %w", fc.Kind, ErrInvalidMetadata)
	}
}

func renderStructBody(sb *strings.Builder, fc *FieldClass, indent string) error {
	sb.WriteString("struct {\n")
	childIndent := indent + "\t"
	for _, m := range fc.structFields {
		sb.WriteString(childIndent)
		if err := renderMember(sb, m.Name, m.Class, childIndent); err != nil {
			return err
		}
		sb.WriteString("\n")
	}
	sb.WriteString(indent + fmt.Sprintf("} align(%d)", fc.Alignment))
	return nil
}

// renderMember writes "<type> name[len];" (with the array/sequence
// length suffix appended where applicable) to sb.
func renderMember(sb *strings.Builder, name string, fc *FieldClass, indent string) error {
	switch fc.Kind {
	case KindArray:
		if err := renderFieldClass(sb, fc.Element, indent); err != nil {
			return err
		}
		sb.WriteString(fmt.Sprintf(" %s[%d];", name, fc.Length))
		return nil
	case KindSequence:
		if err := renderFieldClass(sb, fc.Element, indent); err != nil {
			return err
		}
		sb.WriteString(fmt.Sprintf(" %s[%s];", name, fc.LengthPath.text()))
		return nil
	default:
		if err := renderFieldClass(sb, fc, indent); err != nil {
			return err
		}
		sb.WriteString(fmt.Sprintf(" %s;", name))
		return nil
	}
}
