package pg

import (
	"net"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/imoocdb/imoocdb/server/conf"
	"github.com/imoocdb/imoocdb/server/engine"
)

func newTestHandler(t *testing.T) *Handler {
	t.Helper()
	fs := afero.NewMemMapFs()
	cfg := conf.NewCfg()
	cfg.WorkingDirectory = "/data"
	db, err := engine.Open(fs, cfg)
	require.NoError(t, err)
	return NewHandler(db, DefaultPlanner{})
}

// readMessage reads one backend message's type byte and body, independent of
// its specific shape.
func readMessage(t *testing.T, r *Reader) (byte, []byte) {
	t.Helper()
	typ, err := r.ReadByte()
	require.NoError(t, err)
	length, err := r.ReadInt32()
	require.NoError(t, err)
	body, err := r.ReadBytes(int(length) - 4)
	require.NoError(t, err)
	return typ, body
}

func TestHandlerHandshakeAuthenticateAndShowVariables(t *testing.T) {
	handler := newTestHandler(t)

	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	go handler.Serve(serverConn)

	clientConn.SetDeadline(time.Now().Add(5 * time.Second))
	r := NewReader(clientConn)
	w := NewWriter(clientConn)

	// SSLRequest -> 'N'.
	require.NoError(t, w.WriteInt32(8))
	require.NoError(t, w.WriteInt32(80877103))
	sslReply := make([]byte, 1)
	_, err := clientConn.Read(sslReply)
	require.NoError(t, err)
	require.Equal(t, byte('N'), sslReply[0])

	// StartupMessage.
	var body []byte
	appendString := func(s string) {
		body = append(body, s...)
		body = append(body, 0)
	}
	appendString("user")
	appendString("postgres")
	appendString("database")
	appendString("imoocdb")
	body = append(body, 0)
	require.NoError(t, w.WriteInt32(int32(8+len(body))))
	require.NoError(t, w.WriteInt32(3<<16))
	require.NoError(t, w.WriteBytes(body))

	// AuthenticationCleartextPassword.
	typ, respBody := readMessage(t, r)
	require.Equal(t, byte('R'), typ)
	require.Equal(t, []byte{0, 0, 0, 3}, respBody)

	// PasswordMessage.
	password := append([]byte("abcd"), 0)
	require.NoError(t, w.WriteBytes([]byte{'p'}))
	require.NoError(t, w.WriteInt32(int32(4+len(password))))
	require.NoError(t, w.WriteBytes(password))

	// AuthenticationOk.
	typ, respBody = readMessage(t, r)
	require.Equal(t, byte('R'), typ)
	require.Equal(t, []byte{0, 0, 0, 0}, respBody)

	// ReadyForQuery.
	typ, respBody = readMessage(t, r)
	require.Equal(t, byte('Z'), typ)
	require.Equal(t, []byte{'I'}, respBody)

	// Query: SHOW VARIABLES.
	sql := append([]byte("SHOW VARIABLES;"), 0)
	require.NoError(t, w.WriteBytes([]byte{'Q'}))
	require.NoError(t, w.WriteInt32(int32(4+len(sql))))
	require.NoError(t, w.WriteBytes(sql))

	typ, _ = readMessage(t, r) // RowDescription
	require.Equal(t, byte('T'), typ)

	for {
		typ, respBody = readMessage(t, r)
		if typ == 'C' {
			require.Contains(t, string(respBody), "SELECT")
			break
		}
		require.Equal(t, byte('D'), typ)
	}

	// ReadyForQuery again.
	typ, _ = readMessage(t, r)
	require.Equal(t, byte('Z'), typ)

	// Terminate.
	require.NoError(t, w.WriteBytes([]byte{'X'}))
	require.NoError(t, w.WriteInt32(4))
}

func TestHandlerRejectsWrongPassword(t *testing.T) {
	handler := newTestHandler(t)

	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	go handler.Serve(serverConn)

	clientConn.SetDeadline(time.Now().Add(5 * time.Second))
	r := NewReader(clientConn)
	w := NewWriter(clientConn)

	require.NoError(t, w.WriteInt32(8))
	require.NoError(t, w.WriteInt32(80877103))
	sslReply := make([]byte, 1)
	_, err := clientConn.Read(sslReply)
	require.NoError(t, err)

	body := append([]byte("user"), 0)
	body = append(body, "postgres"...)
	body = append(body, 0, 0)
	require.NoError(t, w.WriteInt32(int32(8+len(body))))
	require.NoError(t, w.WriteInt32(3<<16))
	require.NoError(t, w.WriteBytes(body))

	_, _ = readMessage(t, r) // AuthenticationCleartextPassword

	password := append([]byte("wrong"), 0)
	require.NoError(t, w.WriteBytes([]byte{'p'}))
	require.NoError(t, w.WriteInt32(int32(4+len(password))))
	require.NoError(t, w.WriteBytes(password))

	typ, _ := readMessage(t, r)
	require.Equal(t, byte('E'), typ)
}
