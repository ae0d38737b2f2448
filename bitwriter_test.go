// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package ctfir

import "testing"

func fixedWriter(buf []byte) *BitWriter {
	return NewBitWriter(func() []byte { return buf }, func(minBits uint64) error { return ErrIO })
}

func TestWriteBitsRawLittleEndianMatchesByteLayout(t *testing.T) {
	buf := make([]byte, 4)
	w := fixedWriter(buf)
	if err := w.writeBitsRaw(0x04030201, 32, ByteOrderLE); err != nil {
		t.Fatalf("writeBitsRaw: %v", err)
	}
	want := []byte{0x01, 0x02, 0x03, 0x04}
	for i := range want {
		if buf[i] != want[i] {
			t.Errorf("buf[%d] = 0x%02x, want 0x%02x", i, buf[i], want[i])
		}
	}
}

func TestWriteBitsRawBigEndianMatchesByteLayout(t *testing.T) {
	buf := make([]byte, 4)
	w := fixedWriter(buf)
	if err := w.writeBitsRaw(0x04030201, 32, ByteOrderBE); err != nil {
		t.Fatalf("writeBitsRaw: %v", err)
	}
	want := []byte{0x04, 0x03, 0x02, 0x01}
	for i := range want {
		if buf[i] != want[i] {
			t.Errorf("buf[%d] = 0x%02x, want 0x%02x", i, buf[i], want[i])
		}
	}
}

func TestWriteBitsRawRoundTripSubByte(t *testing.T) {
	buf := make([]byte, 2)
	w := fixedWriter(buf)
	if err := w.writeBitsRaw(0x5, 3, ByteOrderLE); err != nil {
		t.Fatalf("writeBitsRaw: %v", err)
	}
	if err := w.writeBitsRaw(0x2, 2, ByteOrderLE); err != nil {
		t.Fatalf("writeBitsRaw: %v", err)
	}
	got0 := readBitsRaw(buf, 0, 3, ByteOrderLE)
	got1 := readBitsRaw(buf, 3, 2, ByteOrderLE)
	if got0 != 0x5 || got1 != 0x2 {
		t.Errorf("got %x, %x, want 5, 2", got0, got1)
	}
}

func TestAlignUp(t *testing.T) {
	tests := []struct {
		start uint64
		bits  uint32
		want  uint64
	}{
		{0, 8, 0},
		{1, 8, 8},
		{8, 8, 8},
		{3, 32, 32},
		{5, 1, 5},
		{5, 0, 5},
	}
	for _, tt := range tests {
		w := fixedWriter(make([]byte, 8))
		w.Seek(tt.start)
		w.AlignUp(tt.bits)
		if w.Pos() != tt.want {
			t.Errorf("AlignUp(%d) from %d = %d, want %d", tt.bits, tt.start, w.Pos(), tt.want)
		}
	}
}

func TestEnsureGrowsWhenTooSmall(t *testing.T) {
	buf := make([]byte, 1)
	grown := false
	w := NewBitWriter(func() []byte {
		if grown {
			return make([]byte, 8)
		}
		return buf
	}, func(minBits uint64) error {
		grown = true
		return nil
	})
	if err := w.writeBitsRaw(0xff, 32, ByteOrderLE); err != nil {
		t.Fatalf("writeBitsRaw should grow instead of failing: %v", err)
	}
}

func TestEncodeFieldIntegerRoundTrip(t *testing.T) {
	fc, err := NewIntegerFieldClass(16, true)
	if err != nil {
		t.Fatalf("NewIntegerFieldClass: %v", err)
	}
	f, err := Create(fc)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := f.SetInt(-1); err != nil {
		t.Fatalf("SetInt: %v", err)
	}
	buf := make([]byte, 4)
	w := fixedWriter(buf)
	if err := w.EncodeField(f); err != nil {
		t.Fatalf("EncodeField: %v", err)
	}
	got := readBitsRaw(buf, 0, 16, ByteOrderLE)
	if got != 0xFFFF {
		t.Errorf("got 0x%x, want 0xFFFF (two's complement of -1)", got)
	}
}

func TestEncodeFieldStringNulTerminates(t *testing.T) {
	fc := NewStringFieldClass(EncodingUtf8)
	f, err := Create(fc)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := f.SetString("hi"); err != nil {
		t.Fatalf("SetString: %v", err)
	}
	buf := make([]byte, 4)
	w := fixedWriter(buf)
	if err := w.EncodeField(f); err != nil {
		t.Fatalf("EncodeField: %v", err)
	}
	if buf[0] != 'h' || buf[1] != 'i' || buf[2] != 0 {
		t.Errorf("buf = %v, want [h, i, 0]", buf[:3])
	}
}

func TestEncodeFieldVariantEncodesOnlySelectedOption(t *testing.T) {
	tagPath, err := NewPathExpr("tag")
	if err != nil {
		t.Fatalf("NewPathExpr: %v", err)
	}
	a, _ := NewIntegerFieldClass(8, false)
	b, _ := NewIntegerFieldClass(32, false)
	vfc, err := NewVariantFieldClass(tagPath)
	if err != nil {
		t.Fatalf("NewVariantFieldClass: %v", err)
	}
	if err := vfc.AddOption("a", a); err != nil {
		t.Fatalf("AddOption: %v", err)
	}
	if err := vfc.AddOption("b", b); err != nil {
		t.Fatalf("AddOption: %v", err)
	}
	f, err := Create(vfc)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	selected, err := f.Select(1)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if err := selected.SetUInt(7); err != nil {
		t.Fatalf("SetUInt: %v", err)
	}
	buf := make([]byte, 8)
	w := fixedWriter(buf)
	if err := w.EncodeField(f); err != nil {
		t.Fatalf("EncodeField: %v", err)
	}
	if w.Pos() != 32 {
		t.Errorf("Pos() = %d, want 32 (only the selected 32-bit option is encoded)", w.Pos())
	}
}

func TestMaskBits(t *testing.T) {
	if maskBits(64) != ^uint64(0) {
		t.Error("maskBits(64) should be all ones")
	}
	if maskBits(8) != 0xFF {
		t.Errorf("maskBits(8) = 0x%x, want 0xFF", maskBits(8))
	}
}
