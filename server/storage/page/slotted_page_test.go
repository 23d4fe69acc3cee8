package page

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeaderRoundTrip(t *testing.T) {
	h := Header{Flags: 0xff, Reserved: 1, LSN: 123}
	buf := h.Serialize()
	h2 := DeserializeHeader(buf)
	assert.Equal(t, h, h2)
}

func TestSlottedPage(t *testing.T) {
	p := New(DefaultSize)

	sid, err := p.Insert([]byte("hello"))
	require.NoError(t, err)
	p.SetHeader(1)
	assert.Equal(t, uint16(0), sid)
	assert.Equal(t, []byte("hello"), p.Select(sid))

	sid2, err := p.Insert([]byte("world"))
	require.NoError(t, err)
	p.SetHeader(2)
	assert.Equal(t, []byte("world"), p.Select(sid2))

	p.Delete(sid2)
	p.SetHeader(3)
	assert.Equal(t, []byte{}, p.Select(sid2))

	newSid, err := p.Update(0, []byte("a"))
	require.NoError(t, err)
	p.SetHeader(4)
	assert.Equal(t, uint16(0), newSid)
	assert.Equal(t, []byte("a"), p.Select(newSid))

	sid3, err := p.Insert([]byte("b"))
	require.NoError(t, err)
	p.SetHeader(2)
	assert.Equal(t, []byte("b"), p.Select(sid3))

	newSid3, err := p.Update(sid3, []byte("xxxxxxxxxxxxxxx"))
	require.NoError(t, err)
	p.SetHeader(2)
	assert.Greater(t, newSid3, sid3)
	assert.Equal(t, []byte{}, p.Select(sid3))
	assert.Equal(t, []byte("xxxxxxxxxxxxxxx"), p.Select(newSid3))

	type record struct {
		sid     uint16
		payload []byte
	}
	var records []record
	for s := uint16(0); int(s) < p.SlotCount(); s++ {
		records = append(records, record{s, p.Select(s)})
	}

	buf := p.Serialize()
	p2 := Deserialize(buf)

	var records2 []record
	for s := uint16(0); int(s) < p2.SlotCount(); s++ {
		records2 = append(records2, record{s, p2.Select(s)})
	}

	assert.Equal(t, records, records2)
	assert.Equal(t, buf, p2.Serialize())
}

func TestInsertFailsWhenPageIsFull(t *testing.T) {
	p := New(32)
	_, err := p.Insert(make([]byte, 64))
	assert.Error(t, err)
}
