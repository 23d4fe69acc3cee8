package operator

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/imoocdb/imoocdb/server/common"
)

func TestTableScanNoCondition(t *testing.T) {
	h := newHarness(t)
	h.withFixtureTable(t)
	ctx := h.beginTx(t)

	scan := NewTableScan(h.env, "t1", nil)
	rows := drain(t, ctx, scan)
	requireRows(t, rows, []common.Row{
		{common.Int(1), common.Text("xiaoming")},
		{common.Int(2), common.Text("xiaohong")},
		{common.Int(3), common.Text("xiaoli")},
		{common.Int(4), common.Text("xiaoguo")},
	})
}

func TestTableScanCondition(t *testing.T) {
	h := newHarness(t)
	h.withFixtureTable(t)
	ctx := h.beginTx(t)

	cond := &Condition{Left: Col(idCol()), Sign: ">", Right: Const(common.Int(2))}
	scan := NewTableScan(h.env, "t1", cond)
	rows := drain(t, ctx, scan)
	requireRows(t, rows, []common.Row{
		{common.Int(3), common.Text("xiaoli")},
		{common.Int(4), common.Text("xiaoguo")},
	})
}

func TestIndexScanEqual(t *testing.T) {
	h := newHarness(t)
	h.withFixtureTable(t)
	h.withFixtureIndex(t, false)
	ctx := h.beginTx(t)

	cond := &Condition{Left: Col(idCol()), Sign: "=", Right: Const(common.Int(3))}
	scan := NewIndexScan(h.env, "idx", cond)
	rows := drain(t, ctx, scan)
	requireRows(t, rows, []common.Row{{common.Int(3), common.Text("xiaoli")}})
}

func TestIndexScanRange(t *testing.T) {
	h := newHarness(t)
	h.withFixtureTable(t)
	h.withFixtureIndex(t, false)
	ctx := h.beginTx(t)

	// Range scans read the B+Tree's half-open [start, end) interval directly
	// (DESIGN.md: inclusive-start), so "id > 2" surfaces id 2 as well as 3, 4 --
	// unlike TableScan's row-by-row Condition evaluation, which is strict.
	cond := &Condition{Left: Col(idCol()), Sign: ">", Right: Const(common.Int(2))}
	scan := NewIndexScan(h.env, "idx", cond)
	require.NoError(t, scan.Open(ctx))
	rows, err := drainAll(ctx, scan)
	require.NoError(t, err)
	require.NoError(t, scan.Close(ctx))
	require.Len(t, rows, 3)
}

func TestIndexScanRangeReversedOperands(t *testing.T) {
	h := newHarness(t)
	h.withFixtureTable(t)
	h.withFixtureIndex(t, false)
	ctx := h.beginTx(t)

	// "2 < id" names the same rows as "id > 2", from the other side.
	cond := &Condition{Left: Const(common.Int(2)), Sign: "<", Right: Col(idCol())}
	scan := NewIndexScan(h.env, "idx", cond)
	rows := drain(t, ctx, scan)
	require.Len(t, rows, 3)
}

func TestCoveredIndexScanEqual(t *testing.T) {
	h := newHarness(t)
	h.withFixtureTable(t)
	h.withFixtureIndex(t, true)
	ctx := h.beginTx(t)

	cond := &Condition{Left: Col(idCol()), Sign: "=", Right: Const(common.Int(4))}
	scan := NewCoveredIndexScan(h.env, "idx", cond)
	rows := drain(t, ctx, scan)
	requireRows(t, rows, []common.Row{{common.Int(4)}})
}

func TestLocationScanMaterializesUpFront(t *testing.T) {
	h := newHarness(t)
	h.withFixtureTable(t)
	ctx := h.beginTx(t)

	cond := &Condition{Left: Col(idCol()), Sign: ">", Right: Const(common.Int(1))}
	inner := NewTableScan(h.env, "t1", cond)
	scan := NewLocationScan(inner)
	rows := drain(t, ctx, scan)
	require.Len(t, rows, 3)
	for _, r := range rows {
		loc, err := common.LocationFromRow(r)
		require.NoError(t, err)
		require.GreaterOrEqual(t, int(loc.PageID), 0)
	}
}
