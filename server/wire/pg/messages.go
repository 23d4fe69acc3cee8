package pg

import "fmt"

// FeMessageType is a frontend message's leading type byte, matching
// pg_protocol.py's FeMessageType enum (the subset this edition's simple
// query protocol needs).
type FeMessageType byte

const (
	PasswordMessage FeMessageType = 'p'
	Query           FeMessageType = 'Q'
	Termination     FeMessageType = 'X'
)

// Field describes one RowDescription column: its name, PostgreSQL type OID
// and byte width (-1 means variable-length), matching pg_protocol.py's
// Field/Int8Field/TextField.
type Field struct {
	Name    string
	OID     int32
	TypeLen int16
}

// Int8Field describes an INT column (OID 20, 8 bytes), this engine's only
// numeric type (spec.md §3's Value union).
func Int8Field(name string) Field { return Field{Name: name, OID: 20, TypeLen: 8} }

// TextField describes a TEXT column (OID 25, variable length).
func TextField(name string) Field { return Field{Name: name, OID: 25, TypeLen: -1} }

// ReadStartupMessage reads the length-prefixed protocol-version + parameter
// list a connection sends (after any SSLRequest has been handled), matching
// pg_protocol.py's StartupMessage.read.
func ReadStartupMessage(r *Reader) (major, minor int32, parameters []string, err error) {
	length, err := r.ReadInt32()
	if err != nil {
		return 0, 0, nil, err
	}
	version, err := r.ReadInt32()
	if err != nil {
		return 0, 0, nil, err
	}
	major = version >> 16
	minor = version & 0xffff
	parameters, err = r.ReadParameters(int(length) - 8)
	return major, minor, parameters, err
}

// ReadSSLRequest reads the initial SSLRequest packet libpq always sends
// first, returning its sslcode (unused -- this edition never negotiates
// TLS, matching pg_protocol.py's handler, which replies with a bare 'N').
func ReadSSLRequest(r *Reader) (sslcode int32, err error) {
	if _, err = r.ReadInt32(); err != nil { // message length, unused
		return 0, err
	}
	return r.ReadInt32()
}

// WriteSSLRefusal writes the single 'N' byte telling the client TLS is not
// supported, matching pg_protocol.py's `NoticeResponse(w).write_none()`
// (named for its actual wire meaning here rather than reusing the
// NoticeResponse type, which it isn't).
func WriteSSLRefusal(w *Writer) error { return w.WriteBytes([]byte{'N'}) }

// ReadClearPassword reads a PasswordMessage body, matching
// pg_protocol.py's ClearPassword.read.
func ReadClearPassword(r *Reader) ([]byte, error) {
	length, err := r.ReadInt32()
	if err != nil {
		return nil, err
	}
	return r.ReadBytes(int(length) - 4)
}

// ReadQuery reads a simple-Query message body, matching QueryMessage.read.
func ReadQuery(r *Reader) (string, error) {
	length, err := r.ReadInt32()
	if err != nil {
		return "", err
	}
	body, err := r.ReadBytes(int(length) - 4)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// WriteAuthenticationCleartextPassword requests a cleartext password
// (AuthenticationCleartextPassword, type 'R', code 3).
func WriteAuthenticationCleartextPassword(w *Writer) error {
	if err := w.WriteBytes([]byte{'R'}); err != nil {
		return err
	}
	if err := w.WriteInt32(8); err != nil {
		return err
	}
	return w.WriteInt32(3)
}

// WriteAuthenticationOk writes AuthenticationOk (type 'R', code 0).
func WriteAuthenticationOk(w *Writer) error {
	if err := w.WriteBytes([]byte{'R'}); err != nil {
		return err
	}
	if err := w.WriteInt32(8); err != nil {
		return err
	}
	return w.WriteInt32(0)
}

// WriteReadyForQuery writes ReadyForQuery (type 'Z'), with status 'I' idle,
// 'E' in a failed transaction the client must now ignore until the next
// ReadyForQuery. This edition has no multi-statement client transactions
// (spec.md's Non-goal), so every statement returns to idle either way;
// failed is carried through only to mirror the original's status mapping.
func WriteReadyForQuery(w *Writer, failed bool) error {
	status := byte('I')
	if failed {
		status = 'E'
	}
	if err := w.WriteBytes([]byte{'Z'}); err != nil {
		return err
	}
	if err := w.WriteInt32(5); err != nil {
		return err
	}
	return w.WriteBytes([]byte{status})
}

func writeFields(buf *bodyBuffer, severity, code, message string) {
	buf.WriteBytes([]byte{'S'})
	buf.WriteString(severity)
	buf.WriteBytes([]byte{'C'})
	buf.WriteString(code)
	buf.WriteBytes([]byte{'M'})
	buf.WriteString(message)
}

// WriteErrorResponse writes an ErrorResponse (type 'E'), matching
// pg_protocol.py's ErrorResponse.write.
func WriteErrorResponse(w *Writer, severity, code, message string) error {
	buf := &bodyBuffer{}
	writeFields(buf, severity, code, message)

	if err := w.WriteBytes([]byte{'E'}); err != nil {
		return err
	}
	if err := w.WriteInt32(int32(4 + len(buf.buf) + 1)); err != nil {
		return err
	}
	return w.WriteString(string(buf.buf))
}

// WriteNoticeResponse writes a NoticeResponse (type 'N') carrying a
// severity/code/message triple, matching pg_protocol.py's NoticeResponse.write.
func WriteNoticeResponse(w *Writer, severity, code, message string) error {
	buf := &bodyBuffer{}
	writeFields(buf, severity, code, message)

	if err := w.WriteBytes([]byte{'N'}); err != nil {
		return err
	}
	if err := w.WriteInt32(int32(4 + len(buf.buf) + 1)); err != nil {
		return err
	}
	return w.WriteString(string(buf.buf))
}

// WriteCommandComplete writes a CommandComplete (type 'C') tag, matching
// pg_protocol.py's CommandComplete.write. tag must already be NUL-terminated.
func WriteCommandComplete(w *Writer, tag string) error {
	if err := w.WriteBytes([]byte{'C'}); err != nil {
		return err
	}
	if err := w.WriteInt32(int32(4 + len(tag))); err != nil {
		return err
	}
	return w.WriteBytes([]byte(tag))
}

// WriteRowDescription writes a RowDescription (type 'T') describing fields,
// matching pg_protocol.py's RowDescription.write. Every column's table OID
// and attribute number are left at 0 -- this engine's catalog has no OIDs
// of its own, same as the original.
func WriteRowDescription(w *Writer, fields []Field) error {
	buf := &bodyBuffer{}
	for _, f := range fields {
		buf.WriteString(f.Name)
		buf.WriteInt32(0)
		buf.WriteInt16(0)
		buf.WriteInt32(f.OID)
		buf.WriteInt16(f.TypeLen)
		buf.WriteInt32(-1)
		buf.WriteInt16(0)
	}

	if err := w.WriteBytes([]byte{'T'}); err != nil {
		return err
	}
	if err := w.WriteInt32(int32(6 + len(buf.buf))); err != nil {
		return err
	}
	if err := w.WriteInt16(int16(len(fields))); err != nil {
		return err
	}
	return w.WriteBytes(buf.buf)
}

// WriteDataRow writes one DataRow (type 'D'), matching pg_protocol.py's
// DataRow.write. A nil value encodes as the four literal bytes "null",
// exactly as the original's `_encode(None)` does -- not a SQL NULL length
// marker (-1), a quirk this edition keeps rather than silently fixing.
func WriteDataRow(w *Writer, values []string, nullMask []bool) error {
	buf := &bodyBuffer{}
	for i, v := range values {
		encoded := []byte(v)
		if nullMask[i] {
			encoded = []byte("null")
		}
		buf.WriteInt32(int32(len(encoded)))
		buf.WriteBytes(encoded)
	}

	if err := w.WriteBytes([]byte{'D'}); err != nil {
		return err
	}
	if err := w.WriteInt32(int32(4 + 2 + len(buf.buf))); err != nil {
		return err
	}
	if err := w.WriteInt16(int16(len(values))); err != nil {
		return err
	}
	return w.WriteBytes(buf.buf)
}

// ParametersToMap turns a StartupMessage's flat key/value/key/value/...
// list into a map, discarding a trailing empty element if present.
func ParametersToMap(parameters []string) map[string]string {
	out := make(map[string]string, len(parameters)/2)
	for i := 0; i+1 < len(parameters); i += 2 {
		out[parameters[i]] = parameters[i+1]
	}
	return out
}

func (t FeMessageType) String() string { return fmt.Sprintf("%q", byte(t)) }
