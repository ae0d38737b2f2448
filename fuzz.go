// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package ctfir

// Fuzz exercises integer field class construction and value
// round-tripping through the bit writer, driven by data, and parses one
// fixed path expression; it does not resolve paths against a scope chain
// (go-fuzz harness convention, adapted from the teacher's PE
// byte-parsing fuzz target).
func Fuzz(data []byte) int {
	if len(data) < 10 {
		return 0
	}

	bits := uint32(1 + int(data[0])%64)
	signed := data[1]%2 == 0
	var raw uint64
	for i := 0; i < 8; i++ {
		raw = raw<<8 | uint64(data[2+i])
	}
	raw &= maskBits(bits)

	fc, err := NewIntegerFieldClass(bits, signed)
	if err != nil {
		return 0
	}
	if data[1]%4 < 2 {
		if err := fc.SetByteOrder(ByteOrderBE); err != nil {
			return 0
		}
	}

	f, err := Create(fc)
	if err != nil {
		return 0
	}
	if signed {
		min, max, _ := integerRange(bits, true)
		v := int64(raw)
		if bits < 64 && raw&(1<<(bits-1)) != 0 {
			v -= int64(1) << bits
		}
		if v < min || v > max {
			return 0
		}
		if err := f.SetInt(v); err != nil {
			return 0
		}
	} else {
		if err := f.SetUInt(raw); err != nil {
			return 0
		}
	}
	fc.Freeze()
	f.Freeze()

	buf := make([]byte, 16)
	w := NewBitWriter(func() []byte { return buf }, func(minBits uint64) error {
		if minBits > uint64(len(buf))*8 {
			return ErrIO
		}
		return nil
	})
	if err := w.EncodeField(f); err != nil {
		panic("fuzz: EncodeField failed on a frozen, validly-set field: " + err.Error())
	}

	got := readBitsRaw(buf, 0, uint8(bits), resolveByteOrder(fc.ByteOrder))
	var want uint64
	if signed {
		v, _ := f.Int()
		want = uint64(v) & maskBits(bits)
	} else {
		want, _ = f.UInt()
	}
	if got != want {
		panic("fuzz: bit writer round-trip mismatch")
	}

	if _, err := NewPathExpr("a.b.c"); err != nil {
		panic("fuzz: NewPathExpr rejected a well-formed path: " + err.Error())
	}

	return 1
}
