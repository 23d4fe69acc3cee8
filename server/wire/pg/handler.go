package pg

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/sirupsen/logrus"

	"github.com/imoocdb/imoocdb/server/engine"
	"github.com/imoocdb/imoocdb/server/engine/operator"
	"github.com/imoocdb/imoocdb/server/engine/session"
	"github.com/imoocdb/imoocdb/server/metrics"
)

// Planner turns a simple-Query statement's SQL text into a physical plan.
// The SQL lexer/parser and logical planner are, as in spec.md §1's Non-goal
// list, external collaborators this edition only defines the seam for;
// DefaultPlanner below is the one concrete implementation this edition
// ships, handling the small set of administrative statements that need no
// real parser at all.
type Planner interface {
	Plan(ctx context.Context, env *operator.Env, db *engine.Database, sql string) (operator.Operator, error)
}

// Handler serves one accepted connection's full PostgreSQL v3 handshake and
// simple-query loop, matching pg_protocol.py's PGHandler.handle.
type Handler struct {
	db      *engine.Database
	planner Planner
	log     *logrus.Logger
}

// NewHandler builds a Handler backed by db, delegating statement planning to
// planner.
func NewHandler(db *engine.Database, planner Planner) *Handler {
	return &Handler{db: db, planner: planner, log: logrus.StandardLogger()}
}

// Serve runs the handshake and query loop for one connection until the
// client disconnects or sends Terminate. It never returns an error for a
// client-initiated disconnect, matching the original catching
// ConnectionAbortedError/ConnectionResetError silently.
func (h *Handler) Serve(conn net.Conn) {
	defer conn.Close()
	metrics.SessionOpened()
	defer metrics.SessionClosed()

	r := NewReader(conn)
	w := NewWriter(conn)

	startupParameters, err := h.handshake(r, w)
	if err != nil {
		if !errors.Is(err, errClientDisconnected) {
			h.log.WithError(err).Warn("pg: handshake failed")
		}
		return
	}

	sess := session.New(conn.RemoteAddr().String())
	ctx := session.WithSession(context.Background(), sess)

	if err := h.authenticate(r, w, sess, startupParameters); err != nil {
		if !errors.Is(err, errClientDisconnected) {
			h.log.WithError(err).Warn("pg: authentication failed")
		}
		return
	}

	h.loop(ctx, r, w, sess)
}

var errClientDisconnected = errors.New("pg: client disconnected")

// handshake answers the initial SSLRequest and reads the StartupMessage,
// matching pg_protocol.py's sslcode/StartupMessage/set_session_info steps.
// It returns the StartupMessage's parameters rather than storing them on h,
// since one Handler is shared across every concurrently served connection.
func (h *Handler) handshake(r *Reader, w *Writer) (map[string]string, error) {
	if _, err := ReadSSLRequest(r); err != nil {
		return nil, err
	}
	if err := WriteSSLRefusal(w); err != nil {
		return nil, err
	}

	major, minor, parameters, err := ReadStartupMessage(r)
	if err != nil {
		return nil, err
	}
	if major != 3 || minor != 0 {
		return nil, fmt.Errorf("pg: unsupported protocol version %d.%d", major, minor)
	}
	return ParametersToMap(parameters), nil
}

// authenticate requests and validates the cleartext password, matching
// pg_protocol.py's AuthenticationCleartextPassword/ClearPassword/
// AuthenticationOk sequence.
func (h *Handler) authenticate(r *Reader, w *Writer, sess *session.Session, startupParameters map[string]string) error {
	for k, v := range startupParameters {
		sess.SetParameter(k, v)
	}

	if err := WriteAuthenticationCleartextPassword(w); err != nil {
		return err
	}
	msgType, err := r.ReadByte()
	if err != nil {
		return err
	}
	if FeMessageType(msgType) != PasswordMessage {
		_ = WriteErrorResponse(w, "FATAL", "12345", "invalid authorization")
		return fmt.Errorf("pg: expected password message, got %q", msgType)
	}

	password, err := ReadClearPassword(r)
	if err != nil {
		return err
	}
	if string(password) != h.db.Config().ClearTextPassword {
		_ = WriteErrorResponse(w, "FATAL", "28000", "invalid user/password")
		return errors.New("pg: invalid user/password")
	}
	return WriteAuthenticationOk(w)
}

// loop is the authenticated connection's simple-query loop: ReadyForQuery,
// read one frontend message, dispatch, repeat -- matching pg_protocol.py's
// `while True` handler body.
func (h *Handler) loop(ctx context.Context, r *Reader, w *Writer, sess *session.Session) {
	for {
		if err := WriteReadyForQuery(w, false); err != nil {
			return
		}
		msgType, err := r.ReadByte()
		if err != nil {
			return
		}
		switch FeMessageType(msgType) {
		case Query:
			sql, err := ReadQuery(r)
			if err != nil {
				return
			}
			h.handleQuery(ctx, w, sess, sql)
		case Termination:
			return
		default:
			_ = WriteErrorResponse(w, "FATAL", "08P01", fmt.Sprintf("unsupported message type %q", msgType))
			return
		}
	}
}

func (h *Handler) handleQuery(ctx context.Context, w *Writer, sess *session.Session, sql string) {
	env := h.db.Env()
	plan, err := h.planner.Plan(ctx, env, h.db, sql)
	if err != nil {
		_ = WriteNoticeResponse(w, "NOTICE", "00002", err.Error())
		return
	}

	var noticeSeverity, noticeMessage string
	result := h.db.ExecQuery(ctx, plan, func(level, message string) {
		noticeSeverity, noticeMessage = level, message
	})
	if noticeMessage != "" {
		if noticeSeverity == "NOTICE" {
			_ = WriteNoticeResponse(w, "NOTICE", "00002", noticeMessage)
		} else {
			_ = WriteErrorResponse(w, "ERROR", "00001", noticeMessage)
		}
		return
	}

	if result.Columns != nil {
		writeSelectResult(w, result)
		return
	}
	_ = WriteCommandComplete(w, fmt.Sprintf("SELECT %d\x00", result.RowsAffected))
}

func writeSelectResult(w *Writer, result *engine.Result) {
	fields := make([]Field, len(result.Columns))
	for i, c := range result.Columns {
		fields[i] = TextField(c.Column)
	}
	if err := WriteRowDescription(w, fields); err != nil {
		return
	}
	for _, row := range result.Rows {
		values := make([]string, len(row))
		nulls := make([]bool, len(row))
		for i, v := range row {
			values[i] = v.String()
			nulls[i] = v.IsNull()
		}
		if err := WriteDataRow(w, values, nulls); err != nil {
			return
		}
	}
	_ = WriteCommandComplete(w, "SELECT\x00")
}
