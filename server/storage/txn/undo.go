package txn

import (
	"fmt"
	"io"
	"path/filepath"
	"sync"

	"github.com/spf13/afero"

	"github.com/hashicorp/go-msgpack/v2/codec"
	"github.com/imoocdb/imoocdb/server/common"
	"github.com/imoocdb/imoocdb/server/dberrors"
)

// UndoOperation names the compensating action an UndoRecord performs when
// applied -- already inverted, per spec.md §3: an insert's undo is a
// delete, an update's undo is an update back to the prior payload, a
// delete's undo is an insert of the prior payload at the prior location.
type UndoOperation uint8

const (
	UndoTableInsert UndoOperation = iota
	UndoTableUpdate
	UndoTableDelete
	UndoIndexInsert
	UndoIndexUpdate
	UndoIndexDelete
)

// UndoRecord is one compensating action in a transaction's undo file.
type UndoRecord struct {
	Xid       uint64          `codec:"xid"`
	Operation UndoOperation   `codec:"operation"`
	Target    string          `codec:"target"`
	Location  common.Location `codec:"location"`
	Payload   []byte          `codec:"payload"`
}

// UndoLogManager keeps one file per live transaction under dir, written
// before the corresponding forward action becomes visible.
type UndoLogManager struct {
	mu    sync.Mutex
	fs    afero.Fs
	dir   string
	files map[uint64]afero.File
}

func NewUndoLogManager(fs afero.Fs, dir string) (*UndoLogManager, error) {
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return nil, dberrors.Rollbackf("creating undo log directory %s: %v", dir, err)
	}
	return &UndoLogManager{fs: fs, dir: dir, files: make(map[uint64]afero.File)}, nil
}

func (u *UndoLogManager) pathFor(xid uint64) string {
	return filepath.Join(u.dir, fmt.Sprintf("xid_%d.log", xid))
}

// StartTransaction creates an empty undo file for xid.
func (u *UndoLogManager) StartTransaction(xid uint64) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	f, err := u.fs.OpenFile(u.pathFor(xid), osOpenAppendFlags(), 0o644)
	if err != nil {
		return dberrors.Rollbackf("starting undo log for xid %d: %v", xid, err)
	}
	u.files[xid] = f
	return nil
}

// Write appends a compensating record to xid's undo file.
func (u *UndoLogManager) Write(xid uint64, rec UndoRecord) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	f, ok := u.files[xid]
	if !ok {
		return dberrors.Rollbackf("writing undo record for xid %d with no open undo file", xid)
	}
	enc := codec.NewEncoder(f, &codec.MsgpackHandle{})
	if err := enc.Encode(&rec); err != nil {
		return dberrors.Rollbackf("writing undo record for xid %d: %v", xid, err)
	}
	return nil
}

// ParseRecords reads every record currently in xid's undo file, in the order
// they were written.
func (u *UndoLogManager) ParseRecords(xid uint64) ([]UndoRecord, error) {
	u.mu.Lock()
	path := u.pathFor(xid)
	u.mu.Unlock()

	exists, err := afero.Exists(u.fs, path)
	if err != nil {
		return nil, dberrors.Rollbackf("checking undo log for xid %d: %v", xid, err)
	}
	if !exists {
		return nil, nil
	}

	f, err := u.fs.Open(path)
	if err != nil {
		return nil, dberrors.Rollbackf("opening undo log for xid %d: %v", xid, err)
	}
	defer f.Close()

	var records []UndoRecord
	dec := codec.NewDecoder(f, &codec.MsgpackHandle{})
	for {
		var rec UndoRecord
		if err := dec.Decode(&rec); err != nil {
			if err == io.EOF {
				break
			}
			return nil, dberrors.Rollbackf("decoding undo log for xid %d: %v", xid, err)
		}
		records = append(records, rec)
	}
	return records, nil
}

// CommitTransaction discards xid's undo log; it is no longer needed once the
// transaction's effects are durable.
func (u *UndoLogManager) CommitTransaction(xid uint64) error {
	return u.discard(xid)
}

// AbortTransaction returns xid's compensating records in reverse (most
// recent first, the order they must be applied in to unwind the
// transaction) and discards the undo file.
func (u *UndoLogManager) AbortTransaction(xid uint64) ([]UndoRecord, error) {
	records, err := u.ParseRecords(xid)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(records)-1; i < j; i, j = i+1, j-1 {
		records[i], records[j] = records[j], records[i]
	}
	if err := u.discard(xid); err != nil {
		return nil, err
	}
	return records, nil
}

func (u *UndoLogManager) discard(xid uint64) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	if f, ok := u.files[xid]; ok {
		f.Close()
		delete(u.files, xid)
	}
	path := u.pathFor(xid)
	exists, err := afero.Exists(u.fs, path)
	if err != nil {
		return dberrors.Rollbackf("checking undo log for xid %d: %v", xid, err)
	}
	if !exists {
		return nil
	}
	if err := u.fs.Remove(path); err != nil {
		return dberrors.Rollbackf("removing undo log for xid %d: %v", xid, err)
	}
	return nil
}
