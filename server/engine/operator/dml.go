package operator

import (
	"context"

	"github.com/imoocdb/imoocdb/server/catalog"
	"github.com/imoocdb/imoocdb/server/common"
	"github.com/imoocdb/imoocdb/server/dberrors"
	"github.com/imoocdb/imoocdb/server/storage/lock"
	"github.com/imoocdb/imoocdb/server/storage/tuple"
)

// indexTarget is one index PhysicalInsert/Update/Delete must keep in sync
// with the table it operates on.
type indexTarget struct {
	form catalog.IndexForm
	idx  *tuple.Index
}

func resolveIndexTargets(env *Env, tableName string) ([]indexTarget, error) {
	var out []indexTarget
	for _, form := range env.Catalog.IndexesOnTable(tableName) {
		idx, err := env.Indexes.Index(form.IndexName)
		if err != nil {
			return nil, err
		}
		out = append(out, indexTarget{form: form, idx: idx})
	}
	return out, nil
}

func acquireTableAndIndexes(ctx context.Context, env *Env, tableName string, indexes []indexTarget, mode lock.Mode) error {
	xid := sessionXid(ctx)
	if err := env.Locks.Acquire(lock.Target{Kind: lock.Table, Name: tableName}, xid, mode, lockTimeout); err != nil {
		return err
	}
	for _, it := range indexes {
		if err := env.Locks.Acquire(lock.Target{Kind: lock.Index, Name: it.form.IndexName}, xid, mode, lockTimeout); err != nil {
			return err
		}
	}
	return nil
}

func releaseTableAndIndexes(ctx context.Context, env *Env, tableName string, indexes []indexTarget) {
	xid := sessionXid(ctx)
	env.Locks.Release(lock.Target{Kind: lock.Table, Name: tableName}, xid)
	for _, it := range indexes {
		env.Locks.Release(lock.Target{Kind: lock.Index, Name: it.form.IndexName}, xid)
	}
}

// padRow expands row (whose values fill table columns at positions
// columnIDs, in order) to a full-width row, NULL-filling every column the
// statement didn't mention -- spec.md's partial-column `INSERT INTO t (id)
// VALUES (1)` form.
func padRow(row common.Row, columnIDs []int, total int) common.Row {
	full := nullRow(total)
	for i, id := range columnIDs {
		full[id] = row[i]
	}
	return full
}

func resolveColumnIDs(form catalog.TableForm, columns []string) ([]int, error) {
	ids := make([]int, len(columns))
	for i, c := range columns {
		id := form.ColumnIndex(c)
		if id < 0 {
			return nil, dberrors.ExecutorCheckError("unknown column %q on table %q", c, form.TableName)
		}
		ids[i] = id
	}
	return ids, nil
}

// InsertPlan is the already-planned input PhysicalInsert executes -- the
// resolved shape an external SQL planner would hand down (spec.md §1 treats
// SQL parsing/planning as an out-of-scope collaborator).
type InsertPlan struct {
	TableName string
	Columns   []string
	Rows      []common.Row
}

// PhysicalInsert appends InsertPlan.Rows to a table, keeping every index on
// it in sync, under an X lock on the table and each of its indexes.
// Grounded on physical_operator.py's PhysicalInsert.
type PhysicalInsert struct {
	base
	env  *Env
	plan InsertPlan

	table          *tuple.Table
	indexes        []indexTarget
	columnIDs      []int
	tableColumnNum int
	pos            int
}

// NewPhysicalInsert builds an insert of plan against env.
func NewPhysicalInsert(env *Env, plan InsertPlan) *PhysicalInsert {
	return &PhysicalInsert{env: env, plan: plan}
}

func (op *PhysicalInsert) Open(ctx context.Context) error {
	form, ok := op.env.Catalog.TableByName(op.plan.TableName)
	if !ok {
		return dberrors.ExecutorCheckError("unknown table %q", op.plan.TableName)
	}
	columnIDs, err := resolveColumnIDs(form, op.plan.Columns)
	if err != nil {
		return err
	}
	op.columnIDs = columnIDs
	op.tableColumnNum = len(form.Columns)

	indexes, err := resolveIndexTargets(op.env, op.plan.TableName)
	if err != nil {
		return err
	}
	op.indexes = indexes

	table, err := op.env.Tables.Table(op.plan.TableName)
	if err != nil {
		return err
	}
	op.table = table

	return acquireTableAndIndexes(ctx, op.env, op.plan.TableName, op.indexes, lock.Exclusive)
}

func (op *PhysicalInsert) Close(ctx context.Context) error {
	releaseTableAndIndexes(ctx, op.env, op.plan.TableName, op.indexes)
	return nil
}

func (op *PhysicalInsert) Next(ctx context.Context) (common.Row, bool, error) {
	if op.pos >= len(op.plan.Rows) {
		return nil, false, nil
	}
	row := padRow(op.plan.Rows[op.pos], op.columnIDs, op.tableColumnNum)
	op.pos++

	xid := sessionXid(ctx)
	loc, err := tuple.TableTupleInsertOne(xid, op.env.Redo, op.env.Undo, op.table, op.plan.TableName, row)
	if err != nil {
		return nil, false, dberrors.Rollback(err)
	}
	for _, it := range op.indexes {
		if err := tuple.IndexTupleInsertOne(xid, op.env.Redo, op.env.Undo, it.idx, row, loc); err != nil {
			return nil, false, dberrors.Rollback(err)
		}
	}
	return common.Row{}, true, nil
}

// UpdatePlan is PhysicalUpdate's planned input: every located row gets the
// same Columns set to the same Values (spec.md's supported single
// assignment-list UPDATE form; per-row expression evaluation belongs to the
// external planner).
type UpdatePlan struct {
	TableName string
	Columns   []string
	Values    common.Row
}

// PhysicalUpdate rewrites every row its child LocationScan names, keeping
// every index on the table in sync. Grounded on physical_operator.py's
// PhysicalUpdate.
type PhysicalUpdate struct {
	base
	env   *Env
	plan  UpdatePlan
	child *LocationScan

	table          *tuple.Table
	indexes        []indexTarget
	columnIDs      []int
	tableColumnNum int
}

// NewPhysicalUpdate builds an update of plan, driven by child (a
// *LocationScan over the rows to update).
func NewPhysicalUpdate(env *Env, plan UpdatePlan, child *LocationScan) *PhysicalUpdate {
	return &PhysicalUpdate{env: env, plan: plan, child: child}
}

func (op *PhysicalUpdate) Open(ctx context.Context) error {
	form, ok := op.env.Catalog.TableByName(op.plan.TableName)
	if !ok {
		return dberrors.ExecutorCheckError("unknown table %q", op.plan.TableName)
	}
	columnIDs, err := resolveColumnIDs(form, op.plan.Columns)
	if err != nil {
		return err
	}
	if len(columnIDs) != len(op.plan.Values) {
		return dberrors.ExecutorCheckError("update column/value count mismatch for table %q", op.plan.TableName)
	}
	op.columnIDs = columnIDs
	op.tableColumnNum = len(form.Columns)

	indexes, err := resolveIndexTargets(op.env, op.plan.TableName)
	if err != nil {
		return err
	}
	op.indexes = indexes

	if err := op.child.Open(ctx); err != nil {
		return err
	}
	if err := acquireTableAndIndexes(ctx, op.env, op.plan.TableName, op.indexes, lock.Exclusive); err != nil {
		return err
	}

	table, err := op.env.Tables.Table(op.plan.TableName)
	if err != nil {
		return err
	}
	op.table = table
	return nil
}

func (op *PhysicalUpdate) Close(ctx context.Context) error {
	if err := op.child.Close(ctx); err != nil {
		return err
	}
	releaseTableAndIndexes(ctx, op.env, op.plan.TableName, op.indexes)
	return nil
}

func (op *PhysicalUpdate) applyAssignment(row common.Row) common.Row {
	newRow := row.Clone()
	for i, id := range op.columnIDs {
		newRow[id] = op.plan.Values[i]
	}
	return newRow
}

func (op *PhysicalUpdate) Next(ctx context.Context) (common.Row, bool, error) {
	locRow, ok, err := op.child.Next(ctx)
	if err != nil || !ok {
		return nil, false, err
	}
	loc, err := common.LocationFromRow(locRow)
	if err != nil {
		return nil, false, dberrors.Rollback(err)
	}

	xid := sessionXid(ctx)
	oldRow, err := tuple.TableTupleGetOne(op.table, loc)
	if err != nil {
		return nil, false, dberrors.Rollbackf("cannot update table %q: %v", op.plan.TableName, err)
	}
	newRow := op.applyAssignment(oldRow)

	newLoc, err := tuple.TableTupleUpdateOne(xid, op.env.Redo, op.env.Undo, op.table, op.plan.TableName, loc, newRow)
	if err != nil {
		return nil, false, dberrors.Rollback(err)
	}
	for _, it := range op.indexes {
		if err := tuple.IndexTupleUpdateOne(xid, op.env.Redo, op.env.Undo, it.idx, oldRow, newRow, loc, newLoc); err != nil {
			return nil, false, dberrors.Rollback(err)
		}
	}
	return common.Row{}, true, nil
}

// DeletePlan is PhysicalDelete's planned input: delete every row its child
// LocationScan names from TableName.
type DeletePlan struct {
	TableName string
}

// PhysicalDelete tombstones every row its child LocationScan names,
// retracting the matching entry from every index on the table. Grounded on
// physical_operator.py's PhysicalDelete.
type PhysicalDelete struct {
	base
	env   *Env
	plan  DeletePlan
	child *LocationScan

	table   *tuple.Table
	indexes []indexTarget
	done    bool
	count   int
}

// NewPhysicalDelete builds a delete of plan, driven by child (a
// *LocationScan over the rows to delete).
func NewPhysicalDelete(env *Env, plan DeletePlan, child *LocationScan) *PhysicalDelete {
	return &PhysicalDelete{env: env, plan: plan, child: child}
}

func (op *PhysicalDelete) Open(ctx context.Context) error {
	if _, ok := op.env.Catalog.TableByName(op.plan.TableName); !ok {
		return dberrors.ExecutorCheckError("unknown table %q", op.plan.TableName)
	}
	indexes, err := resolveIndexTargets(op.env, op.plan.TableName)
	if err != nil {
		return err
	}
	op.indexes = indexes

	if err := op.child.Open(ctx); err != nil {
		return err
	}
	if err := acquireTableAndIndexes(ctx, op.env, op.plan.TableName, op.indexes, lock.Exclusive); err != nil {
		return err
	}

	table, err := op.env.Tables.Table(op.plan.TableName)
	if err != nil {
		return err
	}
	op.table = table
	return nil
}

func (op *PhysicalDelete) Close(ctx context.Context) error {
	if err := op.child.Close(ctx); err != nil {
		return err
	}
	releaseTableAndIndexes(ctx, op.env, op.plan.TableName, op.indexes)
	return nil
}

// Next deletes every located row on its first call and reports one "row
// processed" marker per deletion thereafter, matching PhysicalInsert/
// Update's per-row Next contract. All deletes are collected from the child
// LocationScan before any of them execute, so a table mutation never
// invalidates the scan driving it (see DESIGN.md).
func (op *PhysicalDelete) Next(ctx context.Context) (common.Row, bool, error) {
	if !op.done {
		var locs []common.Location
		var rows []common.Row
		for {
			locRow, ok, err := op.child.Next(ctx)
			if err != nil {
				return nil, false, err
			}
			if !ok {
				break
			}
			loc, err := common.LocationFromRow(locRow)
			if err != nil {
				return nil, false, dberrors.Rollback(err)
			}
			row, err := tuple.TableTupleGetOne(op.table, loc)
			if err != nil {
				return nil, false, dberrors.Rollbackf("cannot delete from table %q: %v", op.plan.TableName, err)
			}
			locs = append(locs, loc)
			rows = append(rows, row)
		}

		xid := sessionXid(ctx)
		if err := tuple.TableTupleDeleteMultiple(xid, op.env.Redo, op.env.Undo, op.table, op.plan.TableName, locs); err != nil {
			return nil, false, dberrors.Rollback(err)
		}
		for _, it := range op.indexes {
			for j, row := range rows {
				if err := tuple.IndexTupleDeleteOne(xid, op.env.Redo, op.env.Undo, it.idx, row, locs[j]); err != nil {
					return nil, false, dberrors.Rollback(err)
				}
			}
		}
		op.count = len(locs)
		op.done = true
	}
	if op.count <= 0 {
		return nil, false, nil
	}
	op.count--
	return common.Row{}, true, nil
}
