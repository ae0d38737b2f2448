// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package ctfir

import (
	"fmt"
	"math"
	"os"
	"path/filepath"

	mmap "github.com/edsrzf/mmap-go"
	"github.com/go-kratos/kratos/v2/log"
	"golang.org/x/sys/unix"
)

// streamState is the per-stream packet lifecycle state (spec §4.7).
type streamState int

const (
	streamInit streamState = iota
	streamOpen
	streamFlushed
)

// negInfinityNS is the sentinel "last_ts_end_ns" value before any
// packet has been flushed (spec §4.7 StreamPos.last_ts_end_ns).
const negInfinityNS = math.MinInt64

// StreamPos is the mutable write-cursor state of a Stream's current
// (or most recently mapped) packet (spec §4.7).
type StreamPos struct {
	file *os.File
	// region is the mapping backing the current packet. Its first byte
	// is at file offset mmapBaseBytes, which mmap.MapRegion requires to
	// be page-aligned; packetStartBytes (the packet's true, possibly
	// non-page-aligned file offset) therefore generally falls somewhere
	// inside region rather than at its very start.
	region mmap.MMap

	mmapBaseBytes    uint64
	packetStartBytes uint64

	offsetBits     uint64
	packetSizeBits uint64
}

// Stream serializes one CTF stream to its own file (spec §3.6, §4.7).
// One Stream maps to one on-disk file opened O_RDWR|O_CREATE|O_TRUNC.
type Stream struct {
	Class *StreamClass
	ID    uint64

	pos   StreamPos
	state streamState

	packetHeader  *Field
	packetContext *Field
	events        []*Event

	discardedEventsCount uint64
	flushedPacketCount   uint64
	streamSizeBytes      uint64
	lastTsEndNS          int64

	log *log.Helper
}

var pageSize = os.Getpagesize()

// packetLenIncrement is the number of bits a packet's logical capacity
// grows by on each grow_mmap() call (spec §4.7): one host page.
func packetLenIncrement() uint64 { return uint64(pageSize) * 8 }

// NewStream opens (creating/truncating) the backing file for a new
// stream of sc, named per spec §6 "Output file layout", and registers
// its id with the owning trace so that (stream class id, stream id)
// pairs stay unique.
func NewStream(sc *StreamClass, id uint64, opts *Options) (*Stream, error) {
	trace, ok := sc.Trace()
	if !ok {
		return nil, fmt.Errorf("NewStream: stream class not attached to a trace: %w", ErrInvalidArgument)
	}
	scID, _ := sc.ID()
	if err := trace.registerStream(scID, id); err != nil {
		return nil, err
	}

	name := sc.Name()
	if name == "" {
		name = "stream"
	}
	dir := "."
	if opts != nil && opts.OutputDir != "" {
		dir = opts.OutputDir
	}
	path := filepath.Join(dir, fmt.Sprintf("%s-%d-%d", name, scID, id))

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("NewStream(%s): %w", path, ErrIO)
	}

	return &Stream{
		Class:       sc,
		ID:          id,
		pos:         StreamPos{file: f},
		state:       streamInit,
		lastTsEndNS: negInfinityNS,
		log:         newHelper(opts),
	}, nil
}

// growRegion extends the stream's backing file and remaps it so that at
// least minBits are available from the start of the current packet
// (spec §4.7 "Bit writer" grow_mmap()). mmap.MapRegion requires a
// page-aligned file offset, but a packet's true start offset
// (packetStartBytes) generally isn't one once an earlier packet in this
// stream ended on a non-page boundary (a packet context without
// packet_size rounds the packet to a byte, not a page). So the region is
// always mapped from the page boundary at or below packetStartBytes,
// and regionBytes() hands the writer the sub-slice starting at the
// packet's true offset within that mapping.
func (s *Stream) growRegion(minBits uint64) error {
	if s.pos.region != nil {
		if err := s.pos.region.Unmap(); err != nil {
			return fmt.Errorf("stream.growRegion: munmap: %w", ErrIO)
		}
		s.pos.region = nil
	}
	for s.pos.packetSizeBits < minBits {
		s.pos.packetSizeBits += packetLenIncrement()
	}

	s.pos.mmapBaseBytes = (s.pos.packetStartBytes / uint64(pageSize)) * uint64(pageSize)
	intraBytes := s.pos.packetStartBytes - s.pos.mmapBaseBytes
	lenBytes := int64(intraBytes + s.pos.packetSizeBits/8)

	for {
		err := unix.Fallocate(int(s.pos.file.Fd()), 0, int64(s.pos.mmapBaseBytes), lenBytes)
		if err == nil {
			break
		}
		if err == unix.EINTR {
			if s.log != nil {
				s.log.Warnf("stream.growRegion: fallocate interrupted at offset %d len %d, retrying", s.pos.mmapBaseBytes, lenBytes)
			}
			continue
		}
		if s.log != nil {
			s.log.Errorf("stream.growRegion: fallocate at offset %d len %d: %v", s.pos.mmapBaseBytes, lenBytes, err)
		}
		return fmt.Errorf("stream.growRegion: fallocate: %w", ErrIO)
	}

	region, err := mmap.MapRegion(s.pos.file, int(lenBytes), mmap.RDWR, 0, int64(s.pos.mmapBaseBytes))
	if err != nil {
		if s.log != nil {
			s.log.Errorf("stream.growRegion: mmap at page-aligned offset %d (packet start %d) failed: %v", s.pos.mmapBaseBytes, s.pos.packetStartBytes, err)
		}
		return fmt.Errorf("stream.growRegion: mmap: %w", ErrIO)
	}
	s.pos.region = region
	return nil
}

// regionBytes returns the current packet's buffer: the mapped region,
// sliced past any leading bytes needed to keep the mmap offset page
// aligned (see growRegion).
func (s *Stream) regionBytes() []byte {
	if s.pos.region == nil {
		return nil
	}
	intraBytes := s.pos.packetStartBytes - s.pos.mmapBaseBytes
	return s.pos.region[intraBytes:]
}

func (s *Stream) writer() *BitWriter {
	return NewBitWriter(s.regionBytes, s.growRegion)
}

// NewPacket opens a fresh packet, transitioning Init/Flushed -> Open
// (spec §4.7 "Packet open"). On the very first call, it validates and
// freezes the stream class (and every event class it carries).
func (s *Stream) NewPacket() error {
	if s.state == streamOpen {
		return fmt.Errorf("stream.NewPacket: packet already open: %w", ErrInvalidArgument)
	}
	trace, _ := s.Class.Trace()
	if !s.Class.IsFrozen() {
		if err := s.Class.ValidateTypes(trace); err != nil {
			return err
		}
		s.Class.Freeze()
		if err := s.Class.ValidateTypes(trace); err != nil {
			return err
		}
	}

	if s.pos.packetSizeBits == 0 {
		s.pos.packetStartBytes = s.streamSizeBytes
		if err := s.growRegion(packetLenIncrement()); err != nil {
			return err
		}
	}
	s.pos.offsetBits = 0
	s.events = nil

	header, err := Create(trace.PacketHeaderClass)
	if err != nil {
		return err
	}
	if err := s.autoPopulatePacketHeader(header, trace); err != nil {
		return err
	}
	s.packetHeader = header

	if s.Class.PacketContextClass != nil {
		ctx, err := Create(s.Class.PacketContextClass)
		if err != nil {
			return err
		}
		s.packetContext = ctx
	} else {
		s.packetContext = nil
	}

	s.state = streamOpen
	return nil
}

// autoPopulatePacketHeader sets magic/uuid/stream_id on header, for
// whichever of those members exist and are not already set (spec §4.7
// "Packet open"). A member present under a shape auto-population
// doesn't support (e.g. "magic" declared as something other than an
// integer) is skipped rather than treated as an error, since the spec
// only requires best-effort population; the skip is logged so a
// misdeclared packet header class doesn't fail silently.
func (s *Stream) autoPopulatePacketHeader(header *Field, trace *Trace) error {
	if idx, ok := header.Class.FieldIndexByName("magic"); ok {
		mf, err := header.StructFieldAt(idx)
		if err != nil {
			return err
		}
		if !mf.PayloadSet() {
			if mf.Class.Kind != KindInteger {
				if s.log != nil {
					s.log.Warnf("stream.NewPacket: packet header's magic member has kind %v, not Integer: skipping auto-population", mf.Class.Kind)
				}
			} else if err := mf.SetUInt(PacketHeaderMagic); err != nil {
				return err
			}
		}
	}
	if idx, ok := header.Class.FieldIndexByName("uuid"); ok {
		uf, err := header.StructFieldAt(idx)
		if err != nil {
			return err
		}
		if !uf.PayloadSet() {
			if uf.Class.Kind != KindArray {
				if s.log != nil {
					s.log.Warnf("stream.NewPacket: packet header's uuid member has kind %v, not Array: skipping auto-population", uf.Class.Kind)
				}
			} else {
				for i := 0; i < 16; i++ {
					b, err := uf.ArrayElementAt(i)
					if err != nil {
						return err
					}
					if err := b.SetUInt(uint64(trace.UUID[i])); err != nil {
						return err
					}
				}
			}
		}
	}
	if idx, ok := header.Class.FieldIndexByName("stream_id"); ok {
		sf, err := header.StructFieldAt(idx)
		if err != nil {
			return err
		}
		if !sf.PayloadSet() {
			if sf.Class.Kind != KindInteger {
				if s.log != nil {
					s.log.Warnf("stream.NewPacket: packet header's stream_id member has kind %v, not Integer: skipping auto-population", sf.Class.Kind)
				}
			} else {
				scID, _ := s.Class.ID()
				if err := sf.SetUInt(scID); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// AppendEvent attaches e to the stream's current (open) packet (spec
// §4.7 "Event append").
func (s *Stream) AppendEvent(e *Event) error {
	if s.state != streamOpen {
		return fmt.Errorf("stream.AppendEvent: packet not open: %w", ErrInvalidArgument)
	}
	sc, ok := e.Class.StreamClass()
	if !ok || sc != s.Class {
		return fmt.Errorf("stream.AppendEvent: event class belongs to a different stream class: %w", ErrInvalidArgument)
	}
	if e.attached {
		return fmt.Errorf("stream.AppendEvent: event already attached: %w", ErrInvalidArgument)
	}

	if e.Header != nil {
		if idx, ok := e.Header.Class.FieldIndexByName("id"); ok {
			idField, err := e.Header.StructFieldAt(idx)
			if err != nil {
				return err
			}
			if !idField.PayloadSet() && idField.Class.Kind == KindInteger {
				if err := idField.SetUInt(uint64(e.Class.ID())); err != nil {
					return err
				}
			}
		}
		if clock, ok := s.Class.Clock(); ok {
			if idx, ok := e.Header.Class.FieldIndexByName("timestamp"); ok {
				tsField, err := e.Header.StructFieldAt(idx)
				if err != nil {
					return err
				}
				if !tsField.PayloadSet() && tsField.Class.Kind == KindInteger && tsField.Class.MappedClock == clock.Class {
					if err := tsField.SetUInt(clock.GetTime()); err != nil {
						return err
					}
				}
			}
		}
	}

	if err := e.Validate(); err != nil {
		return err
	}
	e.Freeze()
	e.attached = true
	s.events = append(s.events, e)
	return nil
}

// Flush serializes the current packet to disk and transitions
// Open -> Flushed (spec §4.7 "Flush"). On any error the packet is
// marked corrupted so the next NewPacket remaps at the same file
// offset.
func (s *Stream) Flush() error {
	if s.state != streamOpen {
		return fmt.Errorf("stream.Flush: packet not open: %w", ErrInvalidArgument)
	}

	if err := s.flushLocked(); err != nil {
		s.pos.packetSizeBits = 0
		s.state = streamFlushed
		if s.log != nil {
			s.log.Errorf("stream.Flush: packet at offset %d marked corrupted: %v", s.pos.packetStartBytes, err)
		}
		return err
	}
	return nil
}

func (s *Stream) flushLocked() error {
	w := s.writer()

	if err := w.EncodeField(s.packetHeader); err != nil {
		return err
	}

	contextStartBits := w.Pos()
	if s.packetContext != nil {
		if err := w.EncodeField(s.packetContext); err != nil {
			return err
		}
	}

	clock, hasClock := s.Class.Clock()
	var runningMax uint64
	if s.packetContext != nil && hasClock {
		walkClockFields(s.packetContext, clock.Class, func(raw uint64, bits uint32) {
			runningMax = advanceWrapAware(runningMax, raw, bits)
		})
	}

	for _, e := range s.events {
		if e.Header != nil {
			if err := w.EncodeField(e.Header); err != nil {
				return err
			}
		}
		if e.StreamContext != nil {
			if err := w.EncodeField(e.StreamContext); err != nil {
				return err
			}
		}
		if e.Context != nil {
			if err := w.EncodeField(e.Context); err != nil {
				return err
			}
		}
		if err := w.EncodeField(e.Payload); err != nil {
			return err
		}
		if hasClock {
			for _, f := range []*Field{e.Header, e.StreamContext, e.Context, e.Payload} {
				walkClockFields(f, clock.Class, func(raw uint64, bits uint32) {
					runningMax = advanceWrapAware(runningMax, raw, bits)
				})
			}
		}
	}

	contentBits := w.Pos()

	hasPacketSizeField := false
	hasContentSizeField := false
	if s.packetContext != nil {
		_, hasPacketSizeField = s.packetContext.Class.FieldIndexByName("packet_size")
		_, hasContentSizeField = s.packetContext.Class.FieldIndexByName("content_size")
	}

	var finalPacketSizeBits uint64
	if hasPacketSizeField {
		finalPacketSizeBits = s.pos.packetSizeBits
	} else {
		if contentBits%8 != 0 {
			return fmt.Errorf("stream.Flush: content size %d bits not byte-aligned: %w", contentBits, ErrMisalignedPacket)
		}
		if hasContentSizeField {
			finalPacketSizeBits = roundUp8(contentBits)
		} else {
			finalPacketSizeBits = s.pos.packetSizeBits
		}
	}

	if s.packetContext != nil {
		if err := s.populatePacketContext(contentBits, finalPacketSizeBits, runningMax); err != nil {
			return err
		}
		w.Seek(contextStartBits)
		if err := w.EncodeField(s.packetContext); err != nil {
			return err
		}
		s.packetContext.Freeze()
	}
	s.packetHeader.Freeze()

	buf := s.regionBytes()
	for i := contentBits / 8; i < finalPacketSizeBits/8; i++ {
		buf[i] = 0
	}

	s.streamSizeBytes += finalPacketSizeBits / 8
	s.flushedPacketCount++

	if s.pos.region != nil {
		if err := s.pos.region.Unmap(); err != nil {
			return fmt.Errorf("stream.Flush: munmap: %w", ErrIO)
		}
		s.pos.region = nil
	}
	s.pos.packetSizeBits = 0
	s.pos.offsetBits = 0
	s.state = streamFlushed
	return nil
}

func roundUp8(bits uint64) uint64 {
	if bits%8 == 0 {
		return bits
	}
	return bits + (8 - bits%8)
}

// populatePacketContext auto-populates timestamp_begin, timestamp_end,
// content_size, packet_size, events_discarded and packet_seq_num,
// whichever of those members exist; content_size and packet_size are
// always overwritten with the computed sizes (spec §4.7 "Flush"
// auto-population rules).
func (s *Stream) populatePacketContext(contentBits, packetSizeBits, runningMax uint64) error {
	ctx := s.packetContext

	if idx, ok := ctx.Class.FieldIndexByName("content_size"); ok {
		f, err := ctx.StructFieldAt(idx)
		if err != nil {
			return err
		}
		if err := f.SetUInt(contentBits); err != nil {
			return err
		}
	}
	if idx, ok := ctx.Class.FieldIndexByName("packet_size"); ok {
		f, err := ctx.StructFieldAt(idx)
		if err != nil {
			return err
		}
		if err := f.SetUInt(packetSizeBits); err != nil {
			return err
		}
	}
	if idx, ok := ctx.Class.FieldIndexByName("timestamp_begin"); ok {
		f, err := ctx.StructFieldAt(idx)
		if err != nil {
			return err
		}
		if !f.PayloadSet() {
			begin := uint64(0)
			if s.lastTsEndNS != negInfinityNS {
				begin = uint64(s.lastTsEndNS)
			}
			if err := f.SetUInt(begin); err != nil {
				return err
			}
		}
	}
	if idx, ok := ctx.Class.FieldIndexByName("timestamp_end"); ok {
		f, err := ctx.StructFieldAt(idx)
		if err != nil {
			return err
		}
		if !f.PayloadSet() {
			if err := f.SetUInt(runningMax); err != nil {
				return err
			}
		}
		v, err := f.UInt()
		if err != nil {
			return err
		}
		s.lastTsEndNS = int64(v)
	}
	if idx, ok := ctx.Class.FieldIndexByName("events_discarded"); ok {
		f, err := ctx.StructFieldAt(idx)
		if err != nil {
			return err
		}
		if f.PayloadSet() {
			v, err := f.UInt()
			if err != nil {
				return err
			}
			if v < s.discardedEventsCount {
				return fmt.Errorf("stream.Flush: events_discarded %d below counter %d: %w", v, s.discardedEventsCount, ErrInvalidArgument)
			}
			s.discardedEventsCount = v
		} else {
			if err := f.SetUInt(s.discardedEventsCount); err != nil {
				return err
			}
		}
	}
	if idx, ok := ctx.Class.FieldIndexByName("packet_seq_num"); ok {
		f, err := ctx.StructFieldAt(idx)
		if err != nil {
			return err
		}
		if !f.PayloadSet() {
			if err := f.SetUInt(s.flushedPacketCount); err != nil {
				return err
			}
		}
	}
	return nil
}

// StreamSizeBytes returns the number of bytes flushed to the stream's
// file so far.
func (s *Stream) StreamSizeBytes() uint64 { return s.streamSizeBytes }

// PacketContext returns the current open packet's context field, or nil
// if the stream class declares no packet context class. Callers use it
// to set packet-context members by hand (e.g. a user-supplied
// events_discarded override, spec §4.7 "Flush" auto-population rules)
// before calling Flush.
func (s *Stream) PacketContext() *Field { return s.packetContext }

// DiscardedEventsCount returns the stream's current discarded-events
// counter.
func (s *Stream) DiscardedEventsCount() uint64 { return s.discardedEventsCount }

// DiscardEvents raises the stream's discarded-events counter by n,
// generalizing bt_ctf_stream_append_discarded_events: callers report
// events lost upstream of this writer (e.g. a full ring buffer) without
// touching the packet-context field directly. The next Flush mirrors
// the raised counter into events_discarded, if the stream's packet
// context declares that member.
func (s *Stream) DiscardEvents(n uint64) error {
	if n == 0 {
		return nil
	}
	s.discardedEventsCount += n
	return nil
}

// Close unmaps any remaining region, truncates the file to the exact
// number of bytes flushed, and closes the fd (spec §4.7 "Destruction").
func (s *Stream) Close() error {
	if s.pos.region != nil {
		if err := s.pos.region.Unmap(); err != nil {
			return fmt.Errorf("stream.Close: munmap: %w", ErrIO)
		}
		s.pos.region = nil
	}
	if err := s.pos.file.Truncate(int64(s.streamSizeBytes)); err != nil {
		return fmt.Errorf("stream.Close: ftruncate: %w", ErrIO)
	}
	if err := s.pos.file.Close(); err != nil {
		return fmt.Errorf("stream.Close: %w", ErrIO)
	}
	return nil
}
