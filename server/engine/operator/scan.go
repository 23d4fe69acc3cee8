package operator

import (
	"context"

	"github.com/imoocdb/imoocdb/server/catalog"
	"github.com/imoocdb/imoocdb/server/common"
	"github.com/imoocdb/imoocdb/server/dberrors"
	"github.com/imoocdb/imoocdb/server/storage/lock"
	"github.com/imoocdb/imoocdb/server/storage/tuple"
)

// TableScan walks every live row of a table, optionally filtering by a
// single Condition, S-locking the table for the scan's lifetime. Grounded
// on physical_operator.py's TableScan.
type TableScan struct {
	base
	env       *Env
	tableName string
	condition *Condition

	table  *tuple.Table
	cursor *tuple.Cursor
}

// NewTableScan builds a scan of tableName, applying condition if non-nil.
func NewTableScan(env *Env, tableName string, condition *Condition) *TableScan {
	return &TableScan{env: env, tableName: tableName, condition: condition}
}

func (s *TableScan) Open(ctx context.Context) error {
	form, ok := s.env.Catalog.TableByName(s.tableName)
	if !ok {
		return dberrors.ExecutorCheckError("unknown table %q", s.tableName)
	}
	s.columns = columnsOf(s.tableName, form)

	table, err := s.env.Tables.Table(s.tableName)
	if err != nil {
		return err
	}
	s.table = table

	if err := s.env.Locks.Acquire(lock.Target{Kind: lock.Table, Name: s.tableName}, sessionXid(ctx), lock.Shared, lockTimeout); err != nil {
		return err
	}
	s.cursor = table.Cursor()
	return nil
}

func (s *TableScan) Close(ctx context.Context) error {
	s.env.Locks.Release(lock.Target{Kind: lock.Table, Name: s.tableName}, sessionXid(ctx))
	return nil
}

func (s *TableScan) Next(ctx context.Context) (common.Row, bool, error) {
	for {
		payload, _, ok, err := s.cursor.Next()
		if err != nil || !ok {
			return nil, false, err
		}
		row, err := tuple.DecodeRow(payload)
		if err != nil {
			return nil, false, err
		}
		matched, err := s.matches(row)
		if err != nil {
			return nil, false, err
		}
		if matched {
			return row, true, nil
		}
	}
}

// NextLocation is Next, yielding a matching row's Location instead of its
// value -- what LocationScan drives for DML targets.
func (s *TableScan) NextLocation(ctx context.Context) (common.Location, bool, error) {
	for {
		payload, loc, ok, err := s.cursor.Next()
		if err != nil || !ok {
			return common.Location{}, false, err
		}
		row, err := tuple.DecodeRow(payload)
		if err != nil {
			return common.Location{}, false, err
		}
		matched, err := s.matches(row)
		if err != nil {
			return common.Location{}, false, err
		}
		if matched {
			return loc, true, nil
		}
	}
}

func (s *TableScan) matches(row common.Row) (bool, error) {
	if s.condition == nil {
		return true, nil
	}
	return isConditionTrue(s.condition, rowToValues(s.columns, row))
}

func columnsOf(tableName string, form catalog.TableForm) []common.TableColumn {
	columns := make([]common.TableColumn, len(form.Columns))
	for i, c := range form.Columns {
		columns[i] = common.TableColumn{Table: tableName, Column: c}
	}
	return columns
}

// parseScanCondition extracts the single column reference and constant an
// index scan's equality/range predicate compares, plus whether the column
// appears on the left ("t1.a > 100") or the right ("100 < t1.a") -- the
// latter flips which end of the range the constant bounds.
func parseScanCondition(cond *Condition) (col common.TableColumn, constant common.Value, columnIsLeft bool, err error) {
	switch {
	case cond.Left.Column != nil && cond.Right.Column == nil:
		return *cond.Left.Column, cond.Right.Constant, true, nil
	case cond.Right.Column != nil && cond.Left.Column == nil:
		return *cond.Right.Column, cond.Left.Constant, false, nil
	default:
		return common.TableColumn{}, common.Value{}, false, dberrors.ExecutorCheckError("index scan condition must compare exactly one column to a constant")
	}
}

// rangeBounds turns a parsed </> condition into the half-open [start, end)
// interval IndexTupleGetRangeLocations/CoveredIndexTupleGetRange expect,
// treating a nil bound as the corresponding infinity.
func rangeBounds(sign string, columnIsLeft bool, constant common.Value) (start, end common.Row) {
	switch {
	case sign == ">" && columnIsLeft, sign == "<" && !columnIsLeft:
		return common.Row{constant}, nil
	default: // sign == "<" && columnIsLeft, or sign == ">" && !columnIsLeft
		return nil, common.Row{constant}
	}
}

// indexScanBase resolves an index's catalog form, its condition's column/
// constant split and its S-lock -- the setup TableScan-facing IndexScan and
// the key-only CoveredIndexScan share.
type indexScanBase struct {
	env       *Env
	indexName string
	condition *Condition

	tableName    string
	idx          *tuple.Index
	conditionCol common.TableColumn
	constant     common.Value
	columnIsLeft bool

	pos int
}

func (s *indexScanBase) resolve(ctx context.Context) (catalog.IndexForm, error) {
	form, ok := s.env.Catalog.IndexByName(s.indexName)
	if !ok {
		return catalog.IndexForm{}, dberrors.ExecutorCheckError("unknown index %q", s.indexName)
	}
	s.tableName = form.TableName

	if s.condition == nil {
		return catalog.IndexForm{}, dberrors.ExecutorCheckError("index scan requires a condition")
	}
	col, constant, columnIsLeft, err := parseScanCondition(s.condition)
	if err != nil {
		return catalog.IndexForm{}, err
	}
	s.conditionCol = col
	s.constant = constant
	s.columnIsLeft = columnIsLeft

	idx, err := s.env.Indexes.Index(s.indexName)
	if err != nil {
		return catalog.IndexForm{}, err
	}
	s.idx = idx

	if err := s.env.Locks.Acquire(lock.Target{Kind: lock.Index, Name: s.indexName}, sessionXid(ctx), lock.Shared, lockTimeout); err != nil {
		return catalog.IndexForm{}, err
	}
	return form, nil
}

func (s *indexScanBase) close(ctx context.Context) error {
	s.env.Locks.Release(lock.Target{Kind: lock.Index, Name: s.indexName}, sessionXid(ctx))
	return nil
}

// IndexScan resolves a single equality/range Condition against a
// non-covered index, yielding the matching rows' full table values.
// Grounded on physical_operator.py's IndexScan.
type IndexScan struct {
	base
	indexScanBase

	table      *tuple.Table
	locs       []common.Location
	locsLoaded bool
}

// NewIndexScan builds a scan of indexName filtered by condition, a single
// column-to-constant comparison.
func NewIndexScan(env *Env, indexName string, condition *Condition) *IndexScan {
	s := &IndexScan{}
	s.env = env
	s.indexName = indexName
	s.condition = condition
	return s
}

func (s *IndexScan) Open(ctx context.Context) error {
	form, err := s.resolve(ctx)
	if err != nil {
		return err
	}
	tableForm, ok := s.env.Catalog.TableByName(form.TableName)
	if !ok {
		return dberrors.ExecutorCheckError("unknown table %q", form.TableName)
	}
	s.columns = columnsOf(s.tableName, tableForm)

	table, err := s.env.Tables.Table(s.tableName)
	if err != nil {
		return err
	}
	s.table = table
	return nil
}

func (s *IndexScan) Close(ctx context.Context) error { return s.close(ctx) }

func (s *IndexScan) ensureLocations() error {
	if s.locsLoaded {
		return nil
	}
	var locs []common.Location
	var err error
	switch s.condition.Sign {
	case "=":
		locs, err = tuple.IndexTupleGetEqualValueLocations(s.idx, common.Row{s.constant})
	case ">", "<":
		start, end := rangeBounds(s.condition.Sign, s.columnIsLeft, s.constant)
		locs, err = tuple.IndexTupleGetRangeLocations(s.idx, start, end)
	default:
		return dberrors.ExecutorCheckError("unsupported condition sign %q for index scan", s.condition.Sign)
	}
	if err != nil {
		return err
	}
	s.locs = locs
	s.locsLoaded = true
	return nil
}

func (s *IndexScan) NextLocation(ctx context.Context) (common.Location, bool, error) {
	if err := s.ensureLocations(); err != nil {
		return common.Location{}, false, err
	}
	if s.pos >= len(s.locs) {
		return common.Location{}, false, nil
	}
	loc := s.locs[s.pos]
	s.pos++
	return loc, true, nil
}

func (s *IndexScan) Next(ctx context.Context) (common.Row, bool, error) {
	loc, ok, err := s.NextLocation(ctx)
	if err != nil || !ok {
		return nil, false, err
	}
	row, err := tuple.TableTupleGetOne(s.table, loc)
	if err != nil {
		return nil, false, err
	}
	return row, true, nil
}

// CoveredIndexScan is IndexScan for a covering index: the index itself
// stores the full indexed key, so matches are yielded without touching the
// table. Grounded on physical_operator.py's CoveredIndexScan.
type CoveredIndexScan struct {
	base
	indexScanBase

	rows       []common.Row
	rowsLoaded bool
}

// NewCoveredIndexScan builds a covered scan of indexName filtered by
// condition.
func NewCoveredIndexScan(env *Env, indexName string, condition *Condition) *CoveredIndexScan {
	s := &CoveredIndexScan{}
	s.env = env
	s.indexName = indexName
	s.condition = condition
	return s
}

func (s *CoveredIndexScan) Open(ctx context.Context) error {
	form, err := s.resolve(ctx)
	if err != nil {
		return err
	}
	s.columns = columnsOf(s.tableName, catalog.TableForm{TableName: s.tableName, Columns: form.Columns})
	return nil
}

func (s *CoveredIndexScan) Close(ctx context.Context) error { return s.close(ctx) }

func (s *CoveredIndexScan) ensureRows() error {
	if s.rowsLoaded {
		return nil
	}
	var rows []common.Row
	var err error
	switch s.condition.Sign {
	case "=":
		rows, err = tuple.CoveredIndexTupleGetEqualValue(s.idx, common.Row{s.constant})
	case ">", "<":
		start, end := rangeBounds(s.condition.Sign, s.columnIsLeft, s.constant)
		rows, err = tuple.CoveredIndexTupleGetRange(s.idx, start, end)
	default:
		return dberrors.ExecutorCheckError("unsupported condition sign %q for covered index scan", s.condition.Sign)
	}
	if err != nil {
		return err
	}
	s.rows = rows
	s.rowsLoaded = true
	return nil
}

func (s *CoveredIndexScan) Next(ctx context.Context) (common.Row, bool, error) {
	if err := s.ensureRows(); err != nil {
		return nil, false, err
	}
	if s.pos >= len(s.rows) {
		return nil, false, nil
	}
	row := s.rows[s.pos]
	s.pos++
	return row, true, nil
}

// LocationScan wraps a TableScan/IndexScan, pre-materializing every
// matching Location at Open so a driven PhysicalUpdate/PhysicalDelete never
// has its cursor invalidated by its own in-flight mutations. Each row
// yielded by Next is the Location packed via common.Location.Row, decoded
// back out with common.LocationFromRow. Grounded on physical_operator.py's
// LocationScan (there, `next()` materializes `next_location()`'s results
// into a list up front for the same reason).
type LocationScan struct {
	base
	scan LocationIterator
	locs []common.Location
	pos  int
}

// NewLocationScan wraps scan, which must be a *TableScan or *IndexScan.
func NewLocationScan(scan LocationIterator) *LocationScan {
	return &LocationScan{scan: scan}
}

func (s *LocationScan) Open(ctx context.Context) error {
	if err := s.scan.Open(ctx); err != nil {
		return err
	}
	var locs []common.Location
	for {
		loc, ok, err := s.scan.NextLocation(ctx)
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		locs = append(locs, loc)
	}
	s.locs = locs
	return nil
}

func (s *LocationScan) Close(ctx context.Context) error { return s.scan.Close(ctx) }

func (s *LocationScan) Next(ctx context.Context) (common.Row, bool, error) {
	if s.pos >= len(s.locs) {
		return nil, false, nil
	}
	loc := s.locs[s.pos]
	s.pos++
	return loc.Row(), true, nil
}
