package operator

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"

	"github.com/spf13/afero"

	"github.com/imoocdb/imoocdb/server/catalog"
	"github.com/imoocdb/imoocdb/server/common"
	"github.com/imoocdb/imoocdb/server/dberrors"
	"github.com/imoocdb/imoocdb/server/storage/tuple"
)

// materialize is the common shape of every operator that must pull its
// entire child before it can produce its first row (Sort, HashAgg).
// Grounded on physical_operator.py's Materialize base class.
type materialize struct {
	base
	name  string
	child Operator
	rows  []common.Row
}

func (m *materialize) openChild(ctx context.Context) error {
	if m.child == nil {
		return dberrors.ExecutorCheckError("%s operator requires one child operator", m.name)
	}
	if err := m.child.Open(ctx); err != nil {
		return err
	}
	m.columns = m.child.Columns()
	return nil
}

func (m *materialize) closeChild(ctx context.Context) error {
	return m.child.Close(ctx)
}

func (m *materialize) pullAll(ctx context.Context) error {
	rows, err := drainAll(ctx, m.child)
	if err != nil {
		return err
	}
	m.rows = rows
	return nil
}

// Sort orders its child's rows by a single column, ascending or descending.
// InternalSort keeps every row in memory; ExternalSort spills sorted chunks
// to temp files and k-way merges them back, for result sets too large to
// hold at once. Grounded on physical_operator.py's Sort.
type Sort struct {
	materialize
	sortColumn common.TableColumn
	ascending  bool
	method     SortMethod

	fs      afero.Fs
	tempDir string
	session string

	sortColIdx int
	sorted     bool
	pos        int
}

// SortMethod selects Sort's execution strategy.
type SortMethod string

const (
	InternalSort SortMethod = "internal"
	ExternalSort SortMethod = "external"
)

// externalSortChunkSize caps how many rows land in one spilled run before a
// fresh one starts; an input of at most 64 rows is spilled as a single run.
const externalSortChunkSize = 64

// NewSort builds an internal sort of child by sortColumn.
func NewSort(child Operator, sortColumn common.TableColumn, ascending bool) *Sort {
	s := &Sort{sortColumn: sortColumn, ascending: ascending, method: InternalSort}
	s.name = "Sort"
	s.child = child
	return s
}

// NewExternalSort builds a spill-to-disk sort of child by sortColumn. fs and
// tempDir name where run files are written; session namespaces them so
// concurrent queries don't collide.
func NewExternalSort(child Operator, sortColumn common.TableColumn, ascending bool, fs afero.Fs, tempDir, session string) *Sort {
	s := NewSort(child, sortColumn, ascending)
	s.method = ExternalSort
	s.fs = fs
	s.tempDir = tempDir
	s.session = session
	return s
}

func (s *Sort) Open(ctx context.Context) error {
	if err := s.openChild(ctx); err != nil {
		return err
	}
	idx := indexOfColumn(s.columns, s.sortColumn)
	if idx < 0 {
		return dberrors.ExecutorCheckError("sort column %s not found among child columns", s.sortColumn)
	}
	s.sortColIdx = idx
	return nil
}

func (s *Sort) Close(ctx context.Context) error { return s.closeChild(ctx) }

func (s *Sort) Next(ctx context.Context) (common.Row, bool, error) {
	if !s.sorted {
		if err := s.pullAll(ctx); err != nil {
			return nil, false, err
		}
		var err error
		switch s.method {
		case InternalSort:
			err = s.internalSort()
		case ExternalSort:
			err = s.externalSort()
		default:
			err = dberrors.ExecutorCheckError("unsupported sort method %q", s.method)
		}
		if err != nil {
			return nil, false, err
		}
		s.sorted = true
	}
	if s.pos >= len(s.rows) {
		return nil, false, nil
	}
	row := s.rows[s.pos]
	s.pos++
	return row, true, nil
}

func (s *Sort) less(a, b common.Value) (bool, error) {
	c, err := a.Compare(b)
	if err != nil {
		return false, err
	}
	if s.ascending {
		return c < 0, nil
	}
	return c > 0, nil
}

func (s *Sort) internalSort() error {
	var sortErr error
	sort.SliceStable(s.rows, func(i, j int) bool {
		if sortErr != nil {
			return false
		}
		less, err := s.less(s.rows[i][s.sortColIdx], s.rows[j][s.sortColIdx])
		if err != nil {
			sortErr = err
			return false
		}
		return less
	})
	return sortErr
}

func (s *Sort) externalSort() error {
	if s.fs == nil {
		return dberrors.ExecutorCheckError("external sort requires a filesystem")
	}
	if err := s.fs.MkdirAll(s.tempDir, 0o755); err != nil {
		return dberrors.Rollbackf("creating external sort directory %s: %v", s.tempDir, err)
	}

	var runFiles []string
	for i := 0; i < len(s.rows); i += externalSortChunkSize {
		end := i + externalSortChunkSize
		if end > len(s.rows) {
			end = len(s.rows)
		}
		chunk := append([]common.Row{}, s.rows[i:end]...)
		var sortErr error
		sort.SliceStable(chunk, func(a, b int) bool {
			less, err := s.less(chunk[a][s.sortColIdx], chunk[b][s.sortColIdx])
			if err != nil {
				sortErr = err
			}
			return less
		})
		if sortErr != nil {
			return sortErr
		}

		path := filepath.Join(s.tempDir, fmt.Sprintf("sort_%s_%d", s.session, i/externalSortChunkSize))
		if err := writeRowRun(s.fs, path, chunk); err != nil {
			return err
		}
		runFiles = append(runFiles, path)
	}

	merged, err := mergeRowRuns(s.fs, runFiles, s.sortColIdx, s.ascending)
	if err != nil {
		return err
	}
	for _, f := range runFiles {
		_ = s.fs.Remove(f)
	}
	s.rows = merged
	return nil
}

// writeRowRun persists rows as a length-prefixed sequence of
// tuple.EncodeRow payloads -- the same on-disk row encoding the table
// pager uses, so a sort run needs no separate codec.
func writeRowRun(fs afero.Fs, path string, rows []common.Row) error {
	f, err := fs.Create(path)
	if err != nil {
		return dberrors.Rollbackf("creating sort run %s: %v", path, err)
	}
	defer f.Close()

	for _, row := range rows {
		payload := tuple.EncodeRow(row)
		var lenBuf [4]byte
		putUint32(lenBuf[:], uint32(len(payload)))
		if _, err := f.Write(lenBuf[:]); err != nil {
			return dberrors.Rollbackf("writing sort run %s: %v", path, err)
		}
		if _, err := f.Write(payload); err != nil {
			return dberrors.Rollbackf("writing sort run %s: %v", path, err)
		}
	}
	return nil
}

func readRowRun(fs afero.Fs, path string) ([]common.Row, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, dberrors.Rollbackf("reading sort run %s: %v", path, err)
	}
	var rows []common.Row
	pos := 0
	for pos < len(data) {
		if pos+4 > len(data) {
			return nil, dberrors.Rollbackf("truncated sort run %s", path)
		}
		n := int(uint32(data[pos])<<24 | uint32(data[pos+1])<<16 | uint32(data[pos+2])<<8 | uint32(data[pos+3]))
		pos += 4
		if pos+n > len(data) {
			return nil, dberrors.Rollbackf("truncated sort run %s", path)
		}
		row, err := tuple.DecodeRow(data[pos : pos+n])
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
		pos += n
	}
	return rows, nil
}

func putUint32(b []byte, v uint32) {
	b[0] = byte(v >> 24)
	b[1] = byte(v >> 16)
	b[2] = byte(v >> 8)
	b[3] = byte(v)
}

// mergeRowRuns k-way merges already-sorted runs, each fully loaded in
// memory (a run is bounded by externalSortChunkSize, so this stays modest).
func mergeRowRuns(fs afero.Fs, paths []string, colIdx int, ascending bool) ([]common.Row, error) {
	type run struct {
		rows []common.Row
		pos  int
	}
	runs := make([]*run, 0, len(paths))
	for _, p := range paths {
		rows, err := readRowRun(fs, p)
		if err != nil {
			return nil, err
		}
		runs = append(runs, &run{rows: rows})
	}

	var merged []common.Row
	for {
		best := -1
		for i, r := range runs {
			if r.pos >= len(r.rows) {
				continue
			}
			if best == -1 {
				best = i
				continue
			}
			c, err := r.rows[r.pos][colIdx].Compare(runs[best].rows[runs[best].pos][colIdx])
			if err != nil {
				return nil, err
			}
			if (ascending && c < 0) || (!ascending && c > 0) {
				best = i
			}
		}
		if best == -1 {
			return merged, nil
		}
		merged = append(merged, runs[best].rows[runs[best].pos])
		runs[best].pos++
	}
}

// HashAgg groups its child's rows by one column and reduces another column
// per group through a registered aggregate function, yielding one
// (group key, aggregate result) row per distinct group, in first-seen
// order. Grounded on physical_operator.py's HashAgg.
type HashAgg struct {
	materialize
	functions     *catalog.FunctionCatalog
	groupByColumn common.TableColumn
	aggColumn     common.TableColumn
	aggFuncName   string

	groupIdx, aggIdx int
	results          []common.Row
	done             bool
	pos              int
}

// NewHashAgg builds a HashAgg over child, grouping by groupByColumn and
// reducing aggColumn through the function named aggFuncName.
func NewHashAgg(child Operator, functions *catalog.FunctionCatalog, groupByColumn, aggColumn common.TableColumn, aggFuncName string) *HashAgg {
	h := &HashAgg{functions: functions, groupByColumn: groupByColumn, aggColumn: aggColumn, aggFuncName: aggFuncName}
	h.name = "HashAgg"
	h.child = child
	return h
}

func (h *HashAgg) Open(ctx context.Context) error {
	if err := h.openChild(ctx); err != nil {
		return err
	}
	h.groupIdx = indexOfColumn(h.columns, h.groupByColumn)
	h.aggIdx = indexOfColumn(h.columns, h.aggColumn)
	if h.groupIdx < 0 || h.aggIdx < 0 {
		return dberrors.ExecutorCheckError("hash-agg group/aggregate column not found among child columns")
	}
	h.columns = []common.TableColumn{h.groupByColumn, h.aggColumn}
	return nil
}

func (h *HashAgg) Close(ctx context.Context) error { return h.closeChild(ctx) }

func (h *HashAgg) Next(ctx context.Context) (common.Row, bool, error) {
	if !h.done {
		if err := h.compute(ctx); err != nil {
			return nil, false, err
		}
		h.done = true
	}
	if h.pos >= len(h.results) {
		return nil, false, nil
	}
	row := h.results[h.pos]
	h.pos++
	return row, true, nil
}

func (h *HashAgg) compute(ctx context.Context) error {
	if err := h.pullAll(ctx); err != nil {
		return err
	}
	form, err := h.functions.Lookup(h.aggFuncName)
	if err != nil {
		return err
	}
	if !form.IsAgg {
		return dberrors.ExecutorCheckError("function %q is not an aggregate", h.aggFuncName)
	}

	groups := map[common.Value][]common.Value{}
	var order []common.Value
	for _, row := range h.rows {
		key := row[h.groupIdx]
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], row[h.aggIdx])
	}

	h.results = make([]common.Row, 0, len(order))
	for _, key := range order {
		result, err := form.Callback(groups[key])
		if err != nil {
			return err
		}
		h.results = append(h.results, common.Row{key, result})
	}
	return nil
}
