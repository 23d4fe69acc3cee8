package pg

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStartupMessageRoundtrip(t *testing.T) {
	var body bytes.Buffer
	body.WriteString("user\x00postgres\x00database\x00imoocdb\x00\x00")

	var buf bytes.Buffer
	w := NewWriter(&buf)
	require.NoError(t, w.WriteInt32(int32(8+body.Len())))
	require.NoError(t, w.WriteInt32(3<<16 | 0))
	require.NoError(t, w.WriteBytes(body.Bytes()))

	major, minor, parameters, err := ReadStartupMessage(NewReader(&buf))
	require.NoError(t, err)
	require.Equal(t, int32(3), major)
	require.Equal(t, int32(0), minor)
	require.Equal(t, map[string]string{"user": "postgres", "database": "imoocdb"}, ParametersToMap(parameters))
}

func TestReadSSLRequest(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	require.NoError(t, w.WriteInt32(8))
	require.NoError(t, w.WriteInt32(80877103))

	code, err := ReadSSLRequest(NewReader(&buf))
	require.NoError(t, err)
	require.Equal(t, int32(80877103), code)
}

func TestErrorResponseEncodesSeverityCodeMessage(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteErrorResponse(NewWriter(&buf), "ERROR", "08P01", "boom"))

	out := buf.Bytes()
	require.Equal(t, byte('E'), out[0])
	require.Contains(t, string(out), "ERROR")
	require.Contains(t, string(out), "08P01")
	require.Contains(t, string(out), "boom")
}

func TestDataRowEncodesNullAsLiteralBytes(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteDataRow(NewWriter(&buf), []string{"", "7"}, []bool{true, false}))

	out := buf.Bytes()
	require.Equal(t, byte('D'), out[0])
	require.Contains(t, string(out), "null")
	require.Contains(t, string(out), "7")
}

func TestRowDescriptionFieldCount(t *testing.T) {
	var buf bytes.Buffer
	fields := []Field{Int8Field("id"), TextField("name")}
	require.NoError(t, WriteRowDescription(NewWriter(&buf), fields))

	r := NewReader(&buf)
	typeByte, err := r.ReadByte()
	require.NoError(t, err)
	require.Equal(t, byte('T'), typeByte)
	_, err = r.ReadInt32() // length
	require.NoError(t, err)
	count, err := r.ReadInt16()
	require.NoError(t, err)
	require.Equal(t, uint16(2), count)
}

func TestParametersToMapIgnoresTrailingEmptyElement(t *testing.T) {
	m := ParametersToMap([]string{"user", "postgres", ""})
	require.Equal(t, map[string]string{"user": "postgres"}, m)
}
