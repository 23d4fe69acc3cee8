package txn

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imoocdb/imoocdb/server/common"
)

func TestUndoLogPerTransactionIsolationAndReversal(t *testing.T) {
	fs := afero.NewMemMapFs()
	undo, err := NewUndoLogManager(fs, "undolog")
	require.NoError(t, err)

	require.NoError(t, undo.StartTransaction(0))
	require.NoError(t, undo.Write(0, UndoRecord{Xid: 0, Operation: UndoTableDelete, Target: "t1", Location: common.Location{PageID: 0, SlotID: 1}, Payload: []byte("hello")}))
	require.NoError(t, undo.StartTransaction(1))
	require.NoError(t, undo.Write(1, UndoRecord{Xid: 1, Operation: UndoIndexInsert, Target: "t1", Location: common.Location{PageID: 0, SlotID: 1}, Payload: []byte("hello")}))

	require.NoError(t, undo.CommitTransaction(0))

	abortRecords, err := undo.AbortTransaction(1)
	require.NoError(t, err)
	require.Len(t, abortRecords, 1)
	assert.Equal(t, UndoIndexInsert, abortRecords[0].Operation)

	records0, err := undo.ParseRecords(0)
	require.NoError(t, err)
	assert.Empty(t, records0, "commit discards the undo file")

	records1, err := undo.ParseRecords(1)
	require.NoError(t, err)
	assert.Empty(t, records1, "abort discards the undo file")
}

func TestUndoAbortReversesWriteOrder(t *testing.T) {
	fs := afero.NewMemMapFs()
	undo, err := NewUndoLogManager(fs, "undolog")
	require.NoError(t, err)

	require.NoError(t, undo.StartTransaction(5))
	for i := 0; i < 3; i++ {
		require.NoError(t, undo.Write(5, UndoRecord{Xid: 5, Operation: UndoTableDelete, Target: "t1", Payload: []byte{byte(i)}}))
	}

	records, err := undo.AbortTransaction(5)
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, []byte{2}, records[0].Payload)
	assert.Equal(t, []byte{1}, records[1].Payload)
	assert.Equal(t, []byte{0}, records[2].Payload)
}
