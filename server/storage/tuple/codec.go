// Package tuple is the access layer that combines the pager, the buffer
// cache and the write-ahead log into the table_tuple_*/index_tuple_*/
// covered_index_tuple_* operations spec.md §4.4 names, grounded on
// _examples/original_source/DB/imoocdb/tests/test_storage.py.
package tuple

import (
	"encoding/binary"

	"github.com/imoocdb/imoocdb/server/common"
	"github.com/imoocdb/imoocdb/server/dberrors"
)

// EncodeRow renders a row as the opaque byte payload a slotted page stores:
// a value count, then per value a kind byte and its data (nothing further
// for NULL, 8 bytes big-endian for Int, a length prefix plus bytes for
// Text).
func EncodeRow(row common.Row) []byte {
	buf := make([]byte, 0, 16*len(row))
	var countBuf [2]byte
	binary.BigEndian.PutUint16(countBuf[:], uint16(len(row)))
	buf = append(buf, countBuf[:]...)

	for _, v := range row {
		buf = append(buf, byte(v.Kind))
		switch v.Kind {
		case common.KindInt:
			var b [8]byte
			binary.BigEndian.PutUint64(b[:], uint64(v.Int))
			buf = append(buf, b[:]...)
		case common.KindText:
			var lenBuf [4]byte
			binary.BigEndian.PutUint32(lenBuf[:], uint32(len(v.Text)))
			buf = append(buf, lenBuf[:]...)
			buf = append(buf, v.Text...)
		}
	}
	return buf
}

// DecodeRow is EncodeRow's inverse.
func DecodeRow(buf []byte) (common.Row, error) {
	if len(buf) < 2 {
		return nil, dberrors.PageError("tuple payload too short to hold a value count")
	}
	count := int(binary.BigEndian.Uint16(buf[0:2]))
	pos := 2

	row := make(common.Row, 0, count)
	for i := 0; i < count; i++ {
		if pos >= len(buf) {
			return nil, dberrors.PageError("truncated tuple payload decoding value %d of %d", i, count)
		}
		kind := common.Kind(buf[pos])
		pos++
		switch kind {
		case common.KindNull:
			row = append(row, common.Null())
		case common.KindInt:
			if pos+8 > len(buf) {
				return nil, dberrors.PageError("truncated tuple payload decoding int value %d", i)
			}
			row = append(row, common.Int(int64(binary.BigEndian.Uint64(buf[pos:pos+8]))))
			pos += 8
		case common.KindText:
			if pos+4 > len(buf) {
				return nil, dberrors.PageError("truncated tuple payload decoding text length %d", i)
			}
			n := int(binary.BigEndian.Uint32(buf[pos : pos+4]))
			pos += 4
			if pos+n > len(buf) {
				return nil, dberrors.PageError("truncated tuple payload decoding text value %d", i)
			}
			row = append(row, common.Text(string(buf[pos:pos+n])))
			pos += n
		default:
			return nil, dberrors.PageError("unknown value kind %d decoding tuple payload", kind)
		}
	}
	return row, nil
}

// encodeIndexEntry packs a B+Tree (key, value) entry for the redo/undo log,
// length-prefixing the key so decodeIndexEntry can split them back apart.
func encodeIndexEntry(key, value common.Row) []byte {
	k := EncodeRow(key)
	v := EncodeRow(value)
	buf := make([]byte, 4+len(k)+len(v))
	binary.BigEndian.PutUint32(buf[0:4], uint32(len(k)))
	copy(buf[4:4+len(k)], k)
	copy(buf[4+len(k):], v)
	return buf
}

// decodeIndexEntry is encodeIndexEntry's inverse.
func decodeIndexEntry(buf []byte) (key, value common.Row, err error) {
	if len(buf) < 4 {
		return nil, nil, dberrors.PageError("truncated index entry payload")
	}
	klen := int(binary.BigEndian.Uint32(buf[0:4]))
	if 4+klen > len(buf) {
		return nil, nil, dberrors.PageError("truncated index entry payload")
	}
	key, err = DecodeRow(buf[4 : 4+klen])
	if err != nil {
		return nil, nil, err
	}
	value, err = DecodeRow(buf[4+klen:])
	if err != nil {
		return nil, nil, err
	}
	return key, value, nil
}

// encodeIndexUpdateEntry packs both the retracted and the inserted entry of
// an index update, so undo can precisely reverse it rather than guessing.
func encodeIndexUpdateEntry(oldKey, oldValue, newKey, newValue common.Row) []byte {
	o := encodeIndexEntry(oldKey, oldValue)
	n := encodeIndexEntry(newKey, newValue)
	buf := make([]byte, 4+len(o)+len(n))
	binary.BigEndian.PutUint32(buf[0:4], uint32(len(o)))
	copy(buf[4:4+len(o)], o)
	copy(buf[4+len(o):], n)
	return buf
}

// decodeIndexUpdateEntry is encodeIndexUpdateEntry's inverse.
func decodeIndexUpdateEntry(buf []byte) (oldKey, oldValue, newKey, newValue common.Row, err error) {
	if len(buf) < 4 {
		err = dberrors.PageError("truncated index update payload")
		return
	}
	olen := int(binary.BigEndian.Uint32(buf[0:4]))
	if 4+olen > len(buf) {
		err = dberrors.PageError("truncated index update payload")
		return
	}
	oldKey, oldValue, err = decodeIndexEntry(buf[4 : 4+olen])
	if err != nil {
		return
	}
	newKey, newValue, err = decodeIndexEntry(buf[4+olen:])
	return
}
