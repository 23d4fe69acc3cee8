package txn

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeApplier struct {
	undone []UndoRecord
	redone []RedoRecord
}

func (f *fakeApplier) ApplyUndo(rec UndoRecord) error {
	f.undone = append(f.undone, rec)
	return nil
}

func (f *fakeApplier) ApplyRedo(rec RedoRecord) error {
	f.redone = append(f.redone, rec)
	return nil
}

func newTestManager(t *testing.T) (*Manager, *fakeApplier) {
	t.Helper()
	fs := afero.NewMemMapFs()
	redo, err := NewRedoLogManager(fs, "redo.log")
	require.NoError(t, err)
	undo, err := NewUndoLogManager(fs, "undolog")
	require.NoError(t, err)
	applier := &fakeApplier{}
	return NewManager(redo, undo, applier, applier, nil), applier
}

func TestTransactionLifecycleCommit(t *testing.T) {
	m, _ := newTestManager(t)

	xid, err := m.StartTransaction()
	require.NoError(t, err)
	require.NoError(t, m.undo.Write(xid, UndoRecord{Xid: xid, Operation: UndoTableDelete}))
	require.NoError(t, m.CommitTransaction(xid))

	records, err := m.undo.ParseRecords(xid)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestTransactionLifecycleAbortAppliesUndo(t *testing.T) {
	m, applier := newTestManager(t)

	xid, err := m.StartTransaction()
	require.NoError(t, err)
	require.NoError(t, m.undo.Write(xid, UndoRecord{Xid: xid, Operation: UndoTableDelete, Target: "t1"}))
	require.NoError(t, m.AbortTransaction(xid))

	assert.Len(t, applier.undone, 1)
	assert.Equal(t, "t1", applier.undone[0].Target)
}

func TestRecoveryRedoesCommittedAndUndoesInFlight(t *testing.T) {
	m, applier := newTestManager(t)

	committedXid, err := m.StartTransaction()
	require.NoError(t, err)
	_, err = m.redo.Write(committedXid, RedoTableInsert, "t1", nil, []byte("row"))
	require.NoError(t, err)
	require.NoError(t, m.CommitTransaction(committedXid))

	inFlightXid, err := m.StartTransaction()
	require.NoError(t, err)
	require.NoError(t, m.undo.Write(inFlightXid, UndoRecord{Xid: inFlightXid, Operation: UndoTableDelete, Target: "t2"}))
	_, err = m.redo.Write(inFlightXid, RedoTableInsert, "t2", nil, []byte("crashed"))
	require.NoError(t, err)
	// simulate a crash: no commit/abort for inFlightXid

	require.NoError(t, m.Recovery())

	require.Len(t, applier.redone, 1)
	assert.Equal(t, "t1", applier.redone[0].Target)

	require.Len(t, applier.undone, 1)
	assert.Equal(t, "t2", applier.undone[0].Target)
}
