// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package ctfir

import "errors"

// Error kinds returned by the CTF IR writer core. Every mutating or
// validating operation returns one of these (optionally wrapped with
// fmt.Errorf("...: %w", ErrXxx) to carry offsets, names or other detail)
// rather than panicking.
var (
	// ErrInvalidArgument is returned for a null/empty argument where one is
	// forbidden, a rejected identifier, or an out-of-bounds index.
	ErrInvalidArgument = errors.New("ctfir: invalid argument")

	// ErrWrongKind is returned when a value-tree operation or field-class
	// builder is applied to the wrong kind (e.g. int setter on a string).
	ErrWrongKind = errors.New("ctfir: wrong kind")

	// ErrFrozenObject is returned when mutation is attempted after freeze.
	ErrFrozenObject = errors.New("ctfir: object is frozen")

	// ErrValueOutOfRange is returned when an integer value falls outside the
	// range implied by its field class's bit width and signedness.
	ErrValueOutOfRange = errors.New("ctfir: value out of range")

	// ErrUnresolvablePath is returned when a sequence-length or variant-tag
	// path expression does not resolve to a field in any enclosing scope.
	ErrUnresolvablePath = errors.New("ctfir: unresolvable path")

	// ErrWrongPathTargetKind is returned when a path resolves but the
	// target is not of the kind required by the referencing field class.
	ErrWrongPathTargetKind = errors.New("ctfir: wrong path target kind")

	// ErrDuplicateIdentifier is returned for a duplicate event-class id
	// within a stream class, or a duplicate stream id within a trace.
	ErrDuplicateIdentifier = errors.New("ctfir: duplicate identifier")

	// ErrInvalidMetadata is returned for a validation failure only
	// reachable after freeze; it indicates a programming error by the
	// caller of this package.
	ErrInvalidMetadata = errors.New("ctfir: invalid metadata")

	// ErrMisalignedPacket is returned when flush detects that the declared
	// packet size and the actual content size are inconsistent.
	ErrMisalignedPacket = errors.New("ctfir: misaligned packet")

	// ErrIO wraps errno-based failures from mmap, munmap, fallocate, open,
	// write and ftruncate.
	ErrIO = errors.New("ctfir: i/o error")

	// ErrTimeOverflow is returned when a clock's ns-from-epoch conversion
	// overflows a signed 64-bit integer.
	ErrTimeOverflow = errors.New("ctfir: time overflow")
)
