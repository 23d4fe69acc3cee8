package operator

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/imoocdb/imoocdb/server/common"
)

func TestSortInternalAscendingByName(t *testing.T) {
	h := newHarness(t)
	h.withFixtureTable(t)
	ctx := h.beginTx(t)

	scan := NewTableScan(h.env, "t1", nil)
	sorted := NewSort(scan, nameCol(), true)
	rows := drain(t, ctx, sorted)
	requireRows(t, rows, []common.Row{
		{common.Int(4), common.Text("xiaoguo")},
		{common.Int(2), common.Text("xiaohong")},
		{common.Int(3), common.Text("xiaoli")},
		{common.Int(1), common.Text("xiaoming")},
	})
}

func TestSortInternalDescendingByID(t *testing.T) {
	h := newHarness(t)
	h.withFixtureTable(t)
	ctx := h.beginTx(t)

	scan := NewTableScan(h.env, "t1", nil)
	sorted := NewSort(scan, idCol(), false)
	rows := drain(t, ctx, sorted)
	requireRows(t, rows, []common.Row{
		{common.Int(4), common.Text("xiaoguo")},
		{common.Int(3), common.Text("xiaoli")},
		{common.Int(2), common.Text("xiaohong")},
		{common.Int(1), common.Text("xiaoming")},
	})
}

func TestSortExternalMatchesInternal(t *testing.T) {
	h := newHarness(t)
	h.withFixtureTable(t)
	ctx := h.beginTx(t)

	fs := afero.NewMemMapFs()
	scan := NewTableScan(h.env, "t1", nil)
	sorted := NewExternalSort(scan, nameCol(), true, fs, "/tmp/sort", "session1")
	rows := drain(t, ctx, sorted)
	requireRows(t, rows, []common.Row{
		{common.Int(4), common.Text("xiaoguo")},
		{common.Int(2), common.Text("xiaohong")},
		{common.Int(3), common.Text("xiaoli")},
		{common.Int(1), common.Text("xiaoming")},
	})

	// Run files are cleaned up once the merge completes.
	entries, err := afero.ReadDir(fs, "/tmp/sort")
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestHashAggCountByID(t *testing.T) {
	h := newHarness(t)
	h.withFixtureTable(t)
	ctx := h.beginTx(t)

	scan := NewTableScan(h.env, "t1", nil)
	agg := NewHashAgg(scan, h.env.Catalog.Functions, idCol(), idCol(), "count")
	rows := drain(t, ctx, agg)
	require.Len(t, rows, 4)
	for _, r := range rows {
		require.True(t, r[1].Equal(common.Int(1)))
	}
}

func TestHashAggUnknownFunction(t *testing.T) {
	h := newHarness(t)
	h.withFixtureTable(t)
	ctx := h.beginTx(t)

	scan := NewTableScan(h.env, "t1", nil)
	agg := NewHashAgg(scan, h.env.Catalog.Functions, idCol(), idCol(), "bogus")
	require.NoError(t, agg.Open(ctx))
	_, _, err := agg.Next(ctx)
	require.Error(t, err)
}
