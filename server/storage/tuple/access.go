package tuple

import (
	"github.com/imoocdb/imoocdb/server/common"
	"github.com/imoocdb/imoocdb/server/dberrors"
	"github.com/imoocdb/imoocdb/server/storage/txn"
)

// TableTupleGetAll decodes every live row in table, in storage order.
func TableTupleGetAll(table *Table) ([]common.Row, error) {
	cur := table.Cursor()
	var rows []common.Row
	for {
		payload, _, ok, err := cur.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			return rows, nil
		}
		row, err := DecodeRow(payload)
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
}

// TableTupleGetAllLocations is TableTupleGetAll, but returns each row's
// Location instead of its decoded value -- the basis a fresh index scan
// builds itself from.
func TableTupleGetAllLocations(table *Table) ([]common.Location, error) {
	cur := table.Cursor()
	var locs []common.Location
	for {
		_, loc, ok, err := cur.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			return locs, nil
		}
		locs = append(locs, loc)
	}
}

// TableTupleGetOne decodes the live row at loc.
func TableTupleGetOne(table *Table, loc common.Location) (common.Row, error) {
	payload, err := table.Get(loc)
	if err != nil {
		return nil, err
	}
	if len(payload) == 0 {
		return nil, dberrors.Rollbackf("no live tuple at %s", loc)
	}
	return DecodeRow(payload)
}

// TableTupleInsertOne appends row to table, logging a redo record (so the
// insert survives a crash) and an undo record (so an abort can retract it)
// before returning the row's new Location.
func TableTupleInsertOne(xid uint64, redo *txn.RedoLogManager, undo *txn.UndoLogManager, table *Table, tableName string, row common.Row) (common.Location, error) {
	payload := EncodeRow(row)
	loc, err := table.Insert(payload)
	if err != nil {
		return common.Location{}, err
	}

	lsn, err := redo.Write(xid, txn.RedoTableInsert, tableName, &loc, payload)
	if err != nil {
		return common.Location{}, err
	}
	if err := table.SetPageLSN(loc.PageID, lsn); err != nil {
		return common.Location{}, err
	}
	if err := undo.Write(xid, txn.UndoRecord{Xid: xid, Operation: txn.UndoTableDelete, Target: tableName, Location: loc}); err != nil {
		return common.Location{}, err
	}
	return loc, nil
}

// TableTupleUpdateOne overwrites the row at loc with newRow, logging the
// prior payload to the undo log before the change and a redo record after
// it. The returned Location differs from loc when newRow no longer fits in
// loc's slot.
func TableTupleUpdateOne(xid uint64, redo *txn.RedoLogManager, undo *txn.UndoLogManager, table *Table, tableName string, loc common.Location, newRow common.Row) (common.Location, error) {
	oldPayload, err := table.Get(loc)
	if err != nil {
		return common.Location{}, err
	}
	if err := undo.Write(xid, txn.UndoRecord{Xid: xid, Operation: txn.UndoTableUpdate, Target: tableName, Location: loc, Payload: oldPayload}); err != nil {
		return common.Location{}, err
	}

	newPayload := EncodeRow(newRow)
	newLoc, err := table.Update(loc, newPayload)
	if err != nil {
		return common.Location{}, err
	}

	lsn, err := redo.Write(xid, txn.RedoTableUpdate, tableName, &newLoc, newPayload)
	if err != nil {
		return common.Location{}, err
	}
	if err := table.SetPageLSN(newLoc.PageID, lsn); err != nil {
		return common.Location{}, err
	}
	return newLoc, nil
}

// TableTupleDeleteMultiple tombstones every location in locs, logging an
// undo record (carrying the prior payload, to resurrect the row on abort)
// before each delete and a redo record after it. Locations already
// tombstoned are skipped.
func TableTupleDeleteMultiple(xid uint64, redo *txn.RedoLogManager, undo *txn.UndoLogManager, table *Table, tableName string, locs []common.Location) error {
	for _, loc := range locs {
		payload, err := table.Get(loc)
		if err != nil {
			return err
		}
		if len(payload) == 0 {
			continue
		}
		if err := undo.Write(xid, txn.UndoRecord{Xid: xid, Operation: txn.UndoTableInsert, Target: tableName, Location: loc, Payload: payload}); err != nil {
			return err
		}
		if err := table.Delete(loc); err != nil {
			return err
		}
		lsn, err := redo.Write(xid, txn.RedoTableDelete, tableName, &loc, nil)
		if err != nil {
			return err
		}
		if err := table.SetPageLSN(loc.PageID, lsn); err != nil {
			return err
		}
	}
	return nil
}

// IndexTupleCreate builds a fresh index by scanning every live row of table
// (spec.md §4.3, index creation).
func IndexTupleCreate(table *Table, name, tableName string, keyColumns []int, covered bool) (*Index, error) {
	idx := NewIndex(name, tableName, keyColumns, covered)
	cur := table.Cursor()
	for {
		payload, loc, ok, err := cur.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			return idx, nil
		}
		row, err := DecodeRow(payload)
		if err != nil {
			return nil, err
		}
		if err := idx.Tree.Insert(idx.KeyOf(row), idx.valueFor(row, loc)); err != nil {
			return nil, err
		}
	}
}

// IndexTupleInsertOne adds row's entry to idx, logging redo/undo records.
func IndexTupleInsertOne(xid uint64, redo *txn.RedoLogManager, undo *txn.UndoLogManager, idx *Index, row common.Row, loc common.Location) error {
	key := idx.KeyOf(row)
	value := idx.valueFor(row, loc)
	if err := idx.Tree.Insert(key, value); err != nil {
		return err
	}

	payload := encodeIndexEntry(key, value)
	if _, err := redo.Write(xid, txn.RedoIndexInsert, idx.Name, nil, payload); err != nil {
		return err
	}
	return undo.Write(xid, txn.UndoRecord{Xid: xid, Operation: txn.UndoIndexDelete, Target: idx.Name, Payload: payload})
}

// IndexTupleUpdateOne retracts oldRow's entry (keyed at oldLoc) and inserts
// newRow's entry (keyed at newLoc), logging a redo record that carries the
// new entry and an undo record that carries both sides, so abort can reverse
// the swap precisely. oldLoc and
// newLoc differ whenever the table update relocated the row to a new slot.
func IndexTupleUpdateOne(xid uint64, redo *txn.RedoLogManager, undo *txn.UndoLogManager, idx *Index, oldRow, newRow common.Row, oldLoc, newLoc common.Location) error {
	oldKey := idx.KeyOf(oldRow)
	oldValue := idx.valueFor(oldRow, oldLoc)
	if err := idx.Tree.DeleteValue(oldKey, oldValue); err != nil {
		return err
	}

	newKey := idx.KeyOf(newRow)
	newValue := idx.valueFor(newRow, newLoc)
	if err := idx.Tree.Insert(newKey, newValue); err != nil {
		return err
	}

	if _, err := redo.Write(xid, txn.RedoIndexUpdate, idx.Name, nil, encodeIndexEntry(newKey, newValue)); err != nil {
		return err
	}
	undoPayload := encodeIndexUpdateEntry(oldKey, oldValue, newKey, newValue)
	return undo.Write(xid, txn.UndoRecord{Xid: xid, Operation: txn.UndoIndexUpdate, Target: idx.Name, Payload: undoPayload})
}

// IndexTupleDeleteOne retracts row's entry from idx, logging redo/undo
// records.
func IndexTupleDeleteOne(xid uint64, redo *txn.RedoLogManager, undo *txn.UndoLogManager, idx *Index, row common.Row, loc common.Location) error {
	key := idx.KeyOf(row)
	value := idx.valueFor(row, loc)
	if err := idx.Tree.DeleteValue(key, value); err != nil {
		return err
	}

	payload := encodeIndexEntry(key, value)
	if _, err := redo.Write(xid, txn.RedoIndexDelete, idx.Name, nil, payload); err != nil {
		return err
	}
	return undo.Write(xid, txn.UndoRecord{Xid: xid, Operation: txn.UndoIndexInsert, Target: idx.Name, Payload: payload})
}

// IndexTupleGetEqualValueLocations returns the Locations of every row whose
// index key equals key. Only valid for a non-covered index.
func IndexTupleGetEqualValueLocations(idx *Index, key common.Row) ([]common.Location, error) {
	if idx.Covered {
		return nil, dberrors.Rollbackf("index %s is covered; use CoveredIndexTupleGetEqualValue", idx.Name)
	}
	values, err := idx.Tree.Find(key)
	if err != nil {
		return nil, err
	}
	return locationsFromRows(values)
}

// IndexTupleGetRangeLocations is IndexTupleGetEqualValueLocations over the
// half-open key interval [start, end). Only valid for a non-covered index.
func IndexTupleGetRangeLocations(idx *Index, start, end common.Row) ([]common.Location, error) {
	if idx.Covered {
		return nil, dberrors.Rollbackf("index %s is covered; use CoveredIndexTupleGetRange", idx.Name)
	}
	values, err := idx.Tree.FindRange(start, end)
	if err != nil {
		return nil, err
	}
	return locationsFromRows(values)
}

// CoveredIndexTupleGetEqualValue returns the (repeated) key itself for every
// match, without touching the underlying table. Only valid for a covered
// index.
func CoveredIndexTupleGetEqualValue(idx *Index, key common.Row) ([]common.Row, error) {
	if !idx.Covered {
		return nil, dberrors.Rollbackf("index %s is not covered", idx.Name)
	}
	return idx.Tree.Find(key)
}

// CoveredIndexTupleGetRange is CoveredIndexTupleGetEqualValue over the
// half-open key interval [start, end). Only valid for a covered index.
func CoveredIndexTupleGetRange(idx *Index, start, end common.Row) ([]common.Row, error) {
	if !idx.Covered {
		return nil, dberrors.Rollbackf("index %s is not covered", idx.Name)
	}
	return idx.Tree.FindRange(start, end)
}

func locationsFromRows(values []common.Row) ([]common.Location, error) {
	locs := make([]common.Location, 0, len(values))
	for _, v := range values {
		loc, err := common.LocationFromRow(v)
		if err != nil {
			return nil, err
		}
		locs = append(locs, loc)
	}
	return locs, nil
}

// TableLookup resolves a table name to its open Table, for the Applier.
type TableLookup interface {
	Table(name string) (*Table, error)
}

// IndexLookup resolves an index name to its Index, for the Applier.
type IndexLookup interface {
	Index(name string) (*Index, error)
}

// Applier implements txn.RedoApplier and txn.UndoApplier by dispatching a
// record's Target name through Tables/Indexes and replaying it against the
// resolved Table or Index. Wired into the transaction manager once a
// database's catalog has named tables and indexes to resolve against.
type Applier struct {
	Tables  TableLookup
	Indexes IndexLookup
}

func (a *Applier) ApplyRedo(rec txn.RedoRecord) error {
	switch rec.Action {
	case txn.RedoTableInsert, txn.RedoTableUpdate:
		if rec.Location == nil {
			return dberrors.Rollbackf("redo record for table %s missing location", rec.Target)
		}
		table, err := a.Tables.Table(rec.Target)
		if err != nil {
			return err
		}
		return table.PutAt(*rec.Location, rec.Payload, rec.LSN)
	case txn.RedoTableDelete:
		if rec.Location == nil {
			return dberrors.Rollbackf("redo record for table %s missing location", rec.Target)
		}
		table, err := a.Tables.Table(rec.Target)
		if err != nil {
			return err
		}
		return table.DeleteAt(*rec.Location, rec.LSN)
	case txn.RedoIndexInsert, txn.RedoIndexUpdate:
		idx, err := a.Indexes.Index(rec.Target)
		if err != nil {
			return err
		}
		key, value, err := decodeIndexEntry(rec.Payload)
		if err != nil {
			return err
		}
		return idx.Tree.Insert(key, value)
	case txn.RedoIndexDelete:
		idx, err := a.Indexes.Index(rec.Target)
		if err != nil {
			return err
		}
		key, value, err := decodeIndexEntry(rec.Payload)
		if err != nil {
			return err
		}
		return idx.Tree.DeleteValue(key, value)
	}
	return nil
}

func (a *Applier) ApplyUndo(rec txn.UndoRecord) error {
	switch rec.Operation {
	case txn.UndoTableInsert, txn.UndoTableUpdate:
		table, err := a.Tables.Table(rec.Target)
		if err != nil {
			return err
		}
		return table.PutAt(rec.Location, rec.Payload, 0)
	case txn.UndoTableDelete:
		table, err := a.Tables.Table(rec.Target)
		if err != nil {
			return err
		}
		return table.DeleteAt(rec.Location, 0)
	case txn.UndoIndexInsert:
		idx, err := a.Indexes.Index(rec.Target)
		if err != nil {
			return err
		}
		key, value, err := decodeIndexEntry(rec.Payload)
		if err != nil {
			return err
		}
		return idx.Tree.Insert(key, value)
	case txn.UndoIndexDelete:
		idx, err := a.Indexes.Index(rec.Target)
		if err != nil {
			return err
		}
		key, value, err := decodeIndexEntry(rec.Payload)
		if err != nil {
			return err
		}
		return idx.Tree.DeleteValue(key, value)
	case txn.UndoIndexUpdate:
		idx, err := a.Indexes.Index(rec.Target)
		if err != nil {
			return err
		}
		oldKey, oldValue, newKey, newValue, err := decodeIndexUpdateEntry(rec.Payload)
		if err != nil {
			return err
		}
		if err := idx.Tree.DeleteValue(newKey, newValue); err != nil {
			return err
		}
		return idx.Tree.Insert(oldKey, oldValue)
	}
	return nil
}
