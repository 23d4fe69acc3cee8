package operator

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/imoocdb/imoocdb/server/common"
	"github.com/imoocdb/imoocdb/server/dberrors"
	"github.com/imoocdb/imoocdb/server/storage/tuple"
)

func TestPhysicalDDLCreateTable(t *testing.T) {
	h := newHarness(t)
	ctx := h.beginTx(t)

	ddl := NewPhysicalDDL(h.env, DDLPlan{
		Kind: CreateTable, TableName: "t3", Columns: []string{"id", "name"}, Types: []string{"int", "text"},
	}, h.tables, h.indexes)
	require.NoError(t, ddl.Open(ctx))
	rows, err := drainAll(ctx, ddl)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.NoError(t, ddl.Close(ctx))

	form, ok := h.env.Catalog.TableByName("t3")
	require.True(t, ok)
	require.Equal(t, []string{"id", "name"}, form.Columns)

	_, err = h.tables.Table("t3")
	require.NoError(t, err)
}

func TestPhysicalDDLCreateTableDuplicate(t *testing.T) {
	h := newHarness(t)
	h.withFixtureTable(t)
	ctx := h.beginTx(t)

	ddl := NewPhysicalDDL(h.env, DDLPlan{
		Kind: CreateTable, TableName: "t1", Columns: []string{"id"}, Types: []string{"int"},
	}, h.tables, h.indexes)
	require.NoError(t, ddl.Open(ctx))
	_, err := drainAll(ctx, ddl)
	require.Error(t, err)
	require.True(t, dberrors.IsNotice(err))
}

func TestPhysicalDDLCreateIndex(t *testing.T) {
	h := newHarness(t)
	h.withFixtureTable(t)
	ctx := h.beginTx(t)

	ddl := NewPhysicalDDL(h.env, DDLPlan{
		Kind: CreateIndex, IndexName: "idx", OnTable: "t1", KeyColumns: []string{"id"}, Covered: false,
	}, h.tables, h.indexes)
	require.NoError(t, ddl.Open(ctx))
	_, err := drainAll(ctx, ddl)
	require.NoError(t, err)
	require.NoError(t, ddl.Close(ctx))

	idx, err := h.indexes.Index("idx")
	require.NoError(t, err)
	locs, err := tuple.IndexTupleGetEqualValueLocations(idx, common.Row{common.Int(2)})
	require.NoError(t, err)
	require.Len(t, locs, 1)
}
