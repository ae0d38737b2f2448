// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package ctfir

import "unsafe"

// hostByteOrder resolves ByteOrderNative to ByteOrderLE or ByteOrderBE
// based on the host's actual byte order (design note "Native byte
// order"). It is computed once and reused for every trace.
var hostByteOrder = func() ByteOrder {
	var x uint16 = 1
	b := (*[2]byte)(unsafe.Pointer(&x))
	if b[0] == 1 {
		return ByteOrderLE
	}
	return ByteOrderBE
}()

// resolveByteOrder returns order unless it is ByteOrderNative, in which
// case it returns the host's resolved byte order.
func resolveByteOrder(order ByteOrder) ByteOrder {
	if order == ByteOrderNative {
		return hostByteOrder
	}
	return order
}

// propagateByteOrder recursively resolves every Native byte order in the
// field class tree rooted at fc to the trace's native byte order. It
// must run before the tree is frozen (design note "Native byte order").
func propagateByteOrder(fc *FieldClass, order ByteOrder) {
	if fc == nil {
		return
	}
	switch fc.Kind {
	case KindInteger, KindFloat, KindBitArray:
		if fc.ByteOrder == ByteOrderNative {
			fc.ByteOrder = order
		}
	case KindEnum:
		propagateByteOrder(fc.Container, order)
	case KindStruct:
		for _, f := range fc.structFields {
			propagateByteOrder(f.Class, order)
		}
	case KindArray, KindSequence:
		propagateByteOrder(fc.Element, order)
	case KindVariant:
		for _, o := range fc.options {
			propagateByteOrder(o.Class, order)
		}
	case KindOption:
		propagateByteOrder(fc.Content, order)
	}
}
