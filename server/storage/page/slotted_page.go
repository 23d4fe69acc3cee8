// Package page implements the fixed-size slotted page (spec.md §4.1): a
// header, a slot directory growing forward from the header, and a tuple heap
// growing backward from the end of the page. Grounded on spec.md §3/§4.1 and
// _examples/original_source/tests/test_slotted_page.py for exact operation
// semantics; the header/slot-directory/heap layout follows the page-header
// convention used throughout the teacher's storebytes/pages package,
// simplified to the three header fields the spec names (flags, reserved,
// LSN) plus the two bookkeeping fields (slot count, heap start) a byte-exact
// serialization needs.
package page

import (
	"encoding/binary"

	"github.com/imoocdb/imoocdb/server/dberrors"
)

const (
	// DefaultSize is the engine's default page size (spec.md §3, "e.g. 4096 bytes").
	DefaultSize = 4096

	headerSize    = 1 + 1 + 8 + 2 + 2 // flags, reserved, lsn, slot count, heap start
	slotEntrySize = 4                 // offset uint16 + length uint16
)

// Header carries the three fields spec.md §3 names explicitly.
type Header struct {
	Flags    uint8
	Reserved uint8
	LSN      uint64
}

// Serialize encodes the header's three spec-named fields (10 bytes); used on
// its own by tests that check the header round-trips independently of the
// slot directory and heap.
func (h Header) Serialize() []byte {
	buf := make([]byte, 10)
	buf[0] = h.Flags
	buf[1] = h.Reserved
	binary.BigEndian.PutUint64(buf[2:10], h.LSN)
	return buf
}

// DeserializeHeader is Serialize's inverse.
func DeserializeHeader(buf []byte) Header {
	return Header{
		Flags:    buf[0],
		Reserved: buf[1],
		LSN:      binary.BigEndian.Uint64(buf[2:10]),
	}
}

type slotEntry struct {
	Offset uint16
	Length uint16 // 0 == tombstone
}

// Page is a fixed-size slotted page. Zero value is not usable; build one
// with New or Deserialize.
type Page struct {
	size      int
	header    Header
	slots     []slotEntry
	heap      []byte // heap[0] is the byte at absolute offset heapStart
	heapStart int
}

// New allocates an empty page of the given fixed size.
func New(size int) *Page {
	return &Page{size: size, heapStart: size}
}

func (p *Page) slotDirEnd() int { return headerSize + len(p.slots)*slotEntrySize }

// Insert allocates a new slot and appends payload to the heap, growing it
// backward from the current heap start. Returns the new slot id.
func (p *Page) Insert(payload []byte) (uint16, error) {
	needed := len(payload) + slotEntrySize
	if p.heapStart-p.slotDirEnd() < needed {
		return 0, dberrors.PageError("page out of space: need %d bytes, have %d", needed, p.heapStart-p.slotDirEnd())
	}
	newHeapStart := p.heapStart - len(payload)
	p.heap = append(append([]byte{}, payload...), p.heap...)
	p.heapStart = newHeapStart

	slotID := uint16(len(p.slots))
	p.slots = append(p.slots, slotEntry{Offset: uint16(newHeapStart), Length: uint16(len(payload))})
	return slotID, nil
}

// Select returns the payload at slotID, or empty bytes if the slot has been
// deleted (length 0) or never existed.
func (p *Page) Select(slotID uint16) []byte {
	if int(slotID) >= len(p.slots) {
		return []byte{}
	}
	s := p.slots[slotID]
	if s.Length == 0 {
		return []byte{}
	}
	pos := int(s.Offset) - p.heapStart
	return append([]byte{}, p.heap[pos:pos+int(s.Length)]...)
}

// Update writes payload for slotID. If it fits within the slot's current
// reserved length, it is rewritten in place and the same slot id is
// returned. Otherwise the old slot is tombstoned and a fresh slot is
// allocated, whose id is returned.
func (p *Page) Update(slotID uint16, payload []byte) (uint16, error) {
	if int(slotID) >= len(p.slots) {
		return 0, dberrors.PageError("update of unknown slot %d", slotID)
	}
	s := p.slots[slotID]
	if len(payload) <= int(s.Length) {
		pos := int(s.Offset) - p.heapStart
		copy(p.heap[pos:pos+len(payload)], payload)
		p.slots[slotID].Length = uint16(len(payload))
		return slotID, nil
	}

	p.slots[slotID].Length = 0 // tombstone; heap bytes remain until compaction
	return p.Insert(payload)
}

// PutAt force-writes payload at slotID, padding any gap up to slotID with
// tombstones. Used by crash recovery to replay a record against its
// originally recorded slot rather than letting Insert assign a fresh one.
func (p *Page) PutAt(slotID uint16, payload []byte) error {
	for len(p.slots) <= int(slotID) {
		p.slots = append(p.slots, slotEntry{})
	}
	needed := len(payload)
	newHeapStart := p.heapStart - needed
	if newHeapStart < p.slotDirEnd() {
		return dberrors.PageError("page out of space replaying slot %d: need %d bytes, have %d", slotID, needed, p.heapStart-p.slotDirEnd())
	}
	p.heap = append(append([]byte{}, payload...), p.heap...)
	p.heapStart = newHeapStart
	p.slots[slotID] = slotEntry{Offset: uint16(newHeapStart), Length: uint16(len(payload))}
	return nil
}

// Delete tombstones slotID; payload bytes in the heap are left untouched.
func (p *Page) Delete(slotID uint16) {
	if int(slotID) >= len(p.slots) {
		return
	}
	p.slots[slotID].Length = 0
}

// SetHeader sets the page's flags byte.
func (p *Page) SetHeader(flag uint8) { p.header.Flags = flag }
func (p *Page) Flags() uint8         { return p.header.Flags }

// LSN returns the page's log sequence number.
func (p *Page) LSN() uint64 { return p.header.LSN }

// SetLSN sets the page's log sequence number (monotone per spec.md §3 --
// callers are responsible for never moving it backward).
func (p *Page) SetLSN(lsn uint64) { p.header.LSN = lsn }

// SlotCount reports how many slot ids have ever been assigned on this page,
// including tombstoned ones.
func (p *Page) SlotCount() int { return len(p.slots) }

// Serialize renders the page to a byte-exact, fixed-size buffer: header,
// slot directory, zero-filled free space, then the heap.
func (p *Page) Serialize() []byte {
	buf := make([]byte, p.size)
	buf[0] = p.header.Flags
	buf[1] = p.header.Reserved
	binary.BigEndian.PutUint64(buf[2:10], p.header.LSN)
	binary.BigEndian.PutUint16(buf[10:12], uint16(len(p.slots)))
	binary.BigEndian.PutUint16(buf[12:14], uint16(p.heapStart))

	off := headerSize
	for _, s := range p.slots {
		binary.BigEndian.PutUint16(buf[off:off+2], s.Offset)
		binary.BigEndian.PutUint16(buf[off+2:off+4], s.Length)
		off += slotEntrySize
	}

	copy(buf[p.heapStart:p.size], p.heap)
	return buf
}

// Deserialize is Serialize's inverse.
func Deserialize(buf []byte) *Page {
	p := &Page{size: len(buf)}
	p.header = Header{
		Flags:    buf[0],
		Reserved: buf[1],
		LSN:      binary.BigEndian.Uint64(buf[2:10]),
	}
	slotCount := int(binary.BigEndian.Uint16(buf[10:12]))
	p.heapStart = int(binary.BigEndian.Uint16(buf[12:14]))

	off := headerSize
	p.slots = make([]slotEntry, 0, slotCount)
	for i := 0; i < slotCount; i++ {
		p.slots = append(p.slots, slotEntry{
			Offset: binary.BigEndian.Uint16(buf[off : off+2]),
			Length: binary.BigEndian.Uint16(buf[off+2 : off+4]),
		})
		off += slotEntrySize
	}

	p.heap = append([]byte{}, buf[p.heapStart:p.size]...)
	return p
}
