package txn

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imoocdb/imoocdb/server/common"
)

func TestRedoLogWriteFlushReplayPreservesOrder(t *testing.T) {
	fs := afero.NewMemMapFs()
	redo, err := NewRedoLogManager(fs, "redo.log")
	require.NoError(t, err)

	loc := common.Location{PageID: 0, SlotID: 1}
	_, err = redo.Write(0, RedoBegin, "", nil, nil)
	require.NoError(t, err)
	_, err = redo.Write(1, RedoBegin, "", nil, nil)
	require.NoError(t, err)
	_, err = redo.Write(0, RedoTableInsert, "t1", &loc, []byte("hello"))
	require.NoError(t, err)
	_, err = redo.Write(1, RedoTableUpdate, "t1", &loc, []byte("foo"))
	require.NoError(t, err)
	loc2 := common.Location{PageID: 0, SlotID: 2}
	_, err = redo.Write(0, RedoTableInsert, "t1", &loc2, []byte("hello"))
	require.NoError(t, err)
	_, err = redo.Write(0, RedoCommit, "", nil, nil)
	require.NoError(t, err)
	_, err = redo.Write(1, RedoCommit, "", nil, nil)
	require.NoError(t, err)

	require.NoError(t, redo.Flush())

	records, err := redo.Replay()
	require.NoError(t, err)
	require.Len(t, records, 7)

	wantXids := []uint64{0, 1, 0, 1, 0, 0, 1}
	wantActions := []RedoAction{RedoBegin, RedoBegin, RedoTableInsert, RedoTableUpdate, RedoTableInsert, RedoCommit, RedoCommit}
	for i, rec := range records {
		assert.Equal(t, wantXids[i], rec.Xid, "record %d xid", i)
		assert.Equal(t, wantActions[i], rec.Action, "record %d action", i)
	}
}

func TestRedoCheckpointTruncatesLog(t *testing.T) {
	fs := afero.NewMemMapFs()
	redo, err := NewRedoLogManager(fs, "redo.log")
	require.NoError(t, err)

	_, err = redo.Write(0, RedoBegin, "", nil, nil)
	require.NoError(t, err)
	_, err = redo.Write(0, RedoCommit, "", nil, nil)
	require.NoError(t, err)

	_, err = redo.Checkpoint()
	require.NoError(t, err)

	records, err := redo.Replay()
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, RedoCheckpoint, records[0].Action)
}
