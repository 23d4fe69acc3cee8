package txn

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/imoocdb/imoocdb/server/metrics"
)

// State is a transaction's lifecycle stage (spec.md §3, "Transaction").
type State uint8

const (
	Active State = iota
	Committing
	Committed
	Aborted
)

// Transaction is the manager's bookkeeping record for one in-flight xid.
type Transaction struct {
	Xid   uint64
	State State
}

// RedoApplier replays a single committed redo record against live storage.
// Implemented by the tuple access layer; idempotence (skip if a page's LSN
// already covers this record) is the applier's responsibility.
type RedoApplier interface {
	ApplyRedo(rec RedoRecord) error
}

// UndoApplier applies a single compensating undo record against live
// storage. Implemented by the tuple access layer.
type UndoApplier interface {
	ApplyUndo(rec UndoRecord) error
}

// Manager assigns xids, coordinates begin/commit/abort, and drives
// checkpoint and crash recovery (spec.md §4.7).
type Manager struct {
	mu      sync.Mutex
	nextXid uint64
	active  map[uint64]*Transaction

	redo        *RedoLogManager
	undo        *UndoLogManager
	undoApplier UndoApplier
	redoApplier RedoApplier

	log *logrus.Logger
}

func NewManager(redo *RedoLogManager, undo *UndoLogManager, undoApplier UndoApplier, redoApplier RedoApplier, log *logrus.Logger) *Manager {
	return &Manager{
		nextXid:     1,
		active:      make(map[uint64]*Transaction),
		redo:        redo,
		undo:        undo,
		undoApplier: undoApplier,
		redoApplier: redoApplier,
		log:         log,
	}
}

// StartTransaction allocates the next xid, writes a BEGIN redo record and
// opens the xid's undo file.
func (m *Manager) StartTransaction() (uint64, error) {
	m.mu.Lock()
	xid := m.nextXid
	m.nextXid++
	m.active[xid] = &Transaction{Xid: xid, State: Active}
	m.mu.Unlock()

	if err := m.undo.StartTransaction(xid); err != nil {
		return 0, err
	}
	if _, err := m.redo.Write(xid, RedoBegin, "", nil, nil); err != nil {
		return 0, err
	}
	metrics.IncTransactionCount()
	metrics.SetCurrentXid(xid)
	return xid, nil
}

// CommitTransaction writes a COMMIT redo record, flushes it to stable
// storage, and discards xid's undo log.
func (m *Manager) CommitTransaction(xid uint64) error {
	if _, err := m.redo.Write(xid, RedoCommit, "", nil, nil); err != nil {
		return err
	}
	if err := m.redo.Flush(); err != nil {
		return err
	}
	if err := m.undo.CommitTransaction(xid); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.active[xid]; ok {
		t.State = Committed
		delete(m.active, xid)
	}
	return nil
}

// AbortTransaction replays xid's undo records in reverse to revert its
// effects, then writes an ABORT redo record.
func (m *Manager) AbortTransaction(xid uint64) error {
	records, err := m.undo.AbortTransaction(xid)
	if err != nil {
		return err
	}
	for _, rec := range records {
		if err := m.undoApplier.ApplyUndo(rec); err != nil {
			return err
		}
	}
	if _, err := m.redo.Write(xid, RedoAbort, "", nil, nil); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.active[xid]; ok {
		t.State = Aborted
		delete(m.active, xid)
	}
	return nil
}

// Checkpoint flushes a CHECKPOINT redo record and truncates the redo log;
// undo files for completed transactions are already discarded eagerly at
// commit/abort time, so there is nothing further to remove here (see
// DESIGN.md).
func (m *Manager) Checkpoint() (uint64, error) {
	return m.redo.Checkpoint()
}

type ctxKey struct{}

// WithXid binds xid to ctx, replacing the thread-local session state the
// original design relied on (DESIGN NOTES §9).
func WithXid(ctx context.Context, xid uint64) context.Context {
	return context.WithValue(ctx, ctxKey{}, xid)
}

// SessionXid returns the xid bound to ctx, if any.
func SessionXid(ctx context.Context) (uint64, bool) {
	xid, ok := ctx.Value(ctxKey{}).(uint64)
	return xid, ok
}

// Recovery scans the redo log: committed transactions' actions since the
// last checkpoint are redone, and transactions that began but never reached
// COMMIT or ABORT have their undo logs replayed to restore consistency.
func (m *Manager) Recovery() error {
	records, err := m.redo.Replay()
	if err != nil {
		return err
	}

	committed := make(map[uint64]bool)
	ended := make(map[uint64]bool)
	begun := make(map[uint64]bool)
	for _, rec := range records {
		switch rec.Action {
		case RedoBegin:
			begun[rec.Xid] = true
		case RedoCommit:
			committed[rec.Xid] = true
			ended[rec.Xid] = true
		case RedoAbort:
			ended[rec.Xid] = true
		}
	}

	for _, rec := range records {
		if !committed[rec.Xid] {
			continue
		}
		switch rec.Action {
		case RedoTableInsert, RedoTableUpdate, RedoTableDelete, RedoIndexInsert, RedoIndexUpdate, RedoIndexDelete:
			if err := m.redoApplier.ApplyRedo(rec); err != nil {
				return err
			}
		}
	}

	for xid := range begun {
		if ended[xid] {
			continue
		}
		undoRecords, err := m.undo.AbortTransaction(xid)
		if err != nil {
			return err
		}
		for _, rec := range undoRecords {
			if err := m.undoApplier.ApplyUndo(rec); err != nil {
				return err
			}
		}
		if m.log != nil {
			m.log.Warnf("recovery: rolled back in-flight transaction xid=%d", xid)
		}
	}

	if m.nextXid <= maxXid(records) {
		m.nextXid = maxXid(records) + 1
	}
	return nil
}

func maxXid(records []RedoRecord) uint64 {
	var max uint64
	for _, r := range records {
		if r.Xid > max {
			max = r.Xid
		}
	}
	return max
}
