package operator

import (
	"context"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/imoocdb/imoocdb/server/catalog"
	"github.com/imoocdb/imoocdb/server/common"
	"github.com/imoocdb/imoocdb/server/dberrors"
	"github.com/imoocdb/imoocdb/server/storage/lock"
	"github.com/imoocdb/imoocdb/server/storage/tuple"
	"github.com/imoocdb/imoocdb/server/storage/txn"
)

// memTables/memIndexes are the in-memory Table/Index registries every
// operator test's Env is built from, standing in for the table and index
// maps engine.Database keeps.
type memTables struct {
	fs     afero.Fs
	tables map[string]*tuple.Table
}

func newMemTables(fs afero.Fs) *memTables {
	return &memTables{fs: fs, tables: map[string]*tuple.Table{}}
}

func (m *memTables) Table(name string) (*tuple.Table, error) {
	t, ok := m.tables[name]
	if !ok {
		return nil, dberrors.ExecutorCheckError("unknown table %q", name)
	}
	return t, nil
}

func (m *memTables) CreateTable(name string) (*tuple.Table, error) {
	t, err := tuple.OpenTable(m.fs, name+".tbl", 4096, 4)
	if err != nil {
		return nil, err
	}
	m.tables[name] = t
	return t, nil
}

type memIndexes struct {
	indexes map[string]*tuple.Index
}

func newMemIndexes() *memIndexes { return &memIndexes{indexes: map[string]*tuple.Index{}} }

func (m *memIndexes) Index(name string) (*tuple.Index, error) {
	idx, ok := m.indexes[name]
	if !ok {
		return nil, dberrors.ExecutorCheckError("unknown index %q", name)
	}
	return idx, nil
}

func (m *memIndexes) RegisterIndex(name string, idx *tuple.Index) { m.indexes[name] = idx }

// harness bundles everything a test needs to build and run a physical plan:
// a fresh in-memory Env plus the transaction manager behind it.
type harness struct {
	env     *Env
	fs      afero.Fs
	tables  *memTables
	indexes *memIndexes
	manager *txn.Manager
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	fs := afero.NewMemMapFs()
	cat, err := catalog.Open(fs, "catalog")
	require.NoError(t, err)

	tables := newMemTables(fs)
	indexes := newMemIndexes()

	redo, err := txn.NewRedoLogManager(fs, "redo.log")
	require.NoError(t, err)
	undo, err := txn.NewUndoLogManager(fs, "undo")
	require.NoError(t, err)

	env := &Env{Catalog: cat, Tables: tables, Indexes: indexes, Locks: lock.New(), Redo: redo, Undo: undo}
	applier := &tuple.Applier{Tables: tables, Indexes: indexes}
	manager := txn.NewManager(redo, undo, applier, applier, nil)

	return &harness{env: env, fs: fs, tables: tables, indexes: indexes, manager: manager}
}

// withFixtureTable registers t1(id int, name text) in the catalog, opens its
// table file and inserts the four rows physical_operator.py's tests share.
func (h *harness) withFixtureTable(t *testing.T) {
	t.Helper()
	require.NoError(t, h.env.Catalog.Tables.Insert(catalog.TableForm{
		TableName: "t1", Columns: []string{"id", "name"}, Types: []string{"int", "text"},
	}))
	table, err := h.tables.CreateTable("t1")
	require.NoError(t, err)
	for _, row := range []common.Row{
		{common.Int(1), common.Text("xiaoming")},
		{common.Int(2), common.Text("xiaohong")},
		{common.Int(3), common.Text("xiaoli")},
		{common.Int(4), common.Text("xiaoguo")},
	} {
		_, err := table.Insert(tuple.EncodeRow(row))
		require.NoError(t, err)
	}
}

// withFixtureIndex builds idx over t1.id, covered or not.
func (h *harness) withFixtureIndex(t *testing.T, covered bool) {
	t.Helper()
	require.NoError(t, h.env.Catalog.Indexes.Insert(catalog.IndexForm{
		IndexName: "idx", TableName: "t1", Columns: []string{"id"}, Covered: covered,
	}))
	table, err := h.tables.Table("t1")
	require.NoError(t, err)
	idx, err := tuple.IndexTupleCreate(table, "idx", "t1", []int{0}, covered)
	require.NoError(t, err)
	h.indexes.RegisterIndex("idx", idx)
}

func (h *harness) beginTx(t *testing.T) context.Context {
	t.Helper()
	xid, err := h.manager.StartTransaction()
	require.NoError(t, err)
	return txn.WithXid(context.Background(), xid)
}

func idCol() common.TableColumn   { return common.TableColumn{Table: "t1", Column: "id"} }
func nameCol() common.TableColumn { return common.TableColumn{Table: "t1", Column: "name"} }

func drain(t *testing.T, ctx context.Context, op Operator) []common.Row {
	t.Helper()
	require.NoError(t, op.Open(ctx))
	rows, err := drainAll(ctx, op)
	require.NoError(t, err)
	require.NoError(t, op.Close(ctx))
	return rows
}

func requireRows(t *testing.T, got []common.Row, want []common.Row) {
	t.Helper()
	require.Len(t, got, len(want))
	for i := range want {
		require.Truef(t, got[i].Equal(want[i]), "row %d: got %v want %v", i, got[i], want[i])
	}
}
