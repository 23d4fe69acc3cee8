// Package pg implements the PostgreSQL v3 wire-protocol subset spec.md §6
// names: SSLRequest, StartupMessage, cleartext password auth, simple Query,
// Terminate, and the RowDescription/DataRow/CommandComplete/ErrorResponse/
// NoticeResponse replies. Grounded byte-for-byte on original_source's
// imoocdb/network/pg_protocol.py.
package pg

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
)

// Reader reads the big-endian integers and length-prefixed fields every
// frontend message is built from, matching pg_protocol.py's IOBuffer read
// side.
type Reader struct {
	r *bufio.Reader
}

// NewReader wraps r for frame reading.
func NewReader(r io.Reader) *Reader { return &Reader{r: bufio.NewReader(r)} }

// ReadByte reads the single-byte message type tag.
func (r *Reader) ReadByte() (byte, error) { return r.r.ReadByte() }

// ReadBytes reads exactly n bytes, matching IOBuffer.read_bytes' "cannot
// read from buffer" error on a short read.
func (r *Reader) ReadBytes(n int) ([]byte, error) {
	if n < 0 {
		return nil, fmt.Errorf("pg: negative read length %d", n)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r.r, buf); err != nil {
		return nil, fmt.Errorf("pg: cannot read from buffer: %w", err)
	}
	return buf, nil
}

// ReadInt32 reads a 4-byte signed big-endian integer.
func (r *Reader) ReadInt32() (int32, error) {
	b, err := r.ReadBytes(4)
	if err != nil {
		return 0, err
	}
	return int32(binary.BigEndian.Uint32(b)), nil
}

// ReadInt16 reads a 2-byte unsigned big-endian integer.
func (r *Reader) ReadInt16() (uint16, error) {
	b, err := r.ReadBytes(2)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b), nil
}

// ReadParameters reads n bytes and splits them on NUL bytes, matching
// IOBuffer.read_parameters -- the StartupMessage's flat key/value/key/value/
// ... parameter list, NUL-terminated with one trailing empty element.
func (r *Reader) ReadParameters(n int) ([]string, error) {
	b, err := r.ReadBytes(n)
	if err != nil {
		return nil, err
	}
	var parts []string
	start := 0
	for i, c := range b {
		if c == 0 {
			parts = append(parts, string(b[start:i]))
			start = i + 1
		}
	}
	return parts, nil
}

// Writer buffers a reply message's body the way pg_protocol.py's IOBuffer
// does before the caller prefixes it with a type byte and length.
type Writer struct {
	w io.Writer
}

// NewWriter wraps w for frame writing.
func NewWriter(w io.Writer) *Writer { return &Writer{w: w} }

func (w *Writer) WriteBytes(b []byte) error {
	_, err := w.w.Write(b)
	return err
}

func (w *Writer) WriteInt32(v int32) error {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], uint32(v))
	return w.WriteBytes(b[:])
}

func (w *Writer) WriteInt16(v int16) error {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], uint16(v))
	return w.WriteBytes(b[:])
}

// WriteString writes v followed by a NUL terminator, matching
// IOBuffer.write_string.
func (w *Writer) WriteString(v string) error {
	if err := w.WriteBytes([]byte(v)); err != nil {
		return err
	}
	return w.WriteBytes([]byte{0})
}

// bodyBuffer accumulates a message body in memory so its length can be
// computed before the type byte and length prefix are written, matching
// pg_protocol.py building an inner IOBuffer() before prefixing the outer one.
type bodyBuffer struct {
	buf []byte
}

func (b *bodyBuffer) WriteBytes(p []byte) error { b.buf = append(b.buf, p...); return nil }
func (b *bodyBuffer) WriteInt32(v int32) error {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], uint32(v))
	return b.WriteBytes(tmp[:])
}
func (b *bodyBuffer) WriteInt16(v int16) error {
	var tmp [2]byte
	binary.BigEndian.PutUint16(tmp[:], uint16(v))
	return b.WriteBytes(tmp[:])
}
func (b *bodyBuffer) WriteString(v string) error {
	b.buf = append(b.buf, v...)
	b.buf = append(b.buf, 0)
	return nil
}
