package operator

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/imoocdb/imoocdb/server/common"
)

func TestPhysicalQueryProjectsSubset(t *testing.T) {
	h := newHarness(t)
	h.withFixtureTable(t)
	ctx := h.beginTx(t)

	scan := NewTableScan(h.env, "t1", nil)
	query := NewPhysicalQuery(scan, []common.TableColumn{nameCol()})
	rows := drain(t, ctx, query)
	requireRows(t, rows, []common.Row{
		{common.Text("xiaoming")},
		{common.Text("xiaohong")},
		{common.Text("xiaoli")},
		{common.Text("xiaoguo")},
	})
	require.GreaterOrEqual(t, query.Duration().Nanoseconds(), int64(0))
}

func TestPhysicalQueryPassesThroughWithoutProjection(t *testing.T) {
	h := newHarness(t)
	h.withFixtureTable(t)
	ctx := h.beginTx(t)

	scan := NewTableScan(h.env, "t1", nil)
	query := NewPhysicalQuery(scan, nil)
	rows := drain(t, ctx, query)
	require.Len(t, rows, 4)
	require.Len(t, rows[0], 2)
}

func TestPhysicalQueryUnknownProjectedColumn(t *testing.T) {
	h := newHarness(t)
	h.withFixtureTable(t)
	ctx := h.beginTx(t)

	scan := NewTableScan(h.env, "t1", nil)
	bogus := common.TableColumn{Table: "t1", Column: "bogus"}
	query := NewPhysicalQuery(scan, []common.TableColumn{bogus})
	require.Error(t, query.Open(ctx))
}

func TestCommandOperatorShowTables(t *testing.T) {
	h := newHarness(t)
	h.withFixtureTable(t)
	ctx := h.beginTx(t)

	cmd := NewCommandOperator(h.env, ShowTables, h.manager, nil)
	rows := drain(t, ctx, cmd)
	require.Len(t, rows, 1)
	require.Contains(t, rows[0][0].Text, "t1")
}

func TestCommandOperatorShowVariables(t *testing.T) {
	h := newHarness(t)
	ctx := h.beginTx(t)

	cmd := NewCommandOperator(h.env, ShowVariables, h.manager, map[string]string{"search_path": "public"})
	rows := drain(t, ctx, cmd)
	requireRows(t, rows, []common.Row{{common.Text("search_path"), common.Text("public")}})
}

func TestCommandOperatorCheckpoint(t *testing.T) {
	h := newHarness(t)
	ctx := h.beginTx(t)

	cmd := NewCommandOperator(h.env, Checkpoint, h.manager, nil)
	rows := drain(t, ctx, cmd)
	require.Len(t, rows, 1)
	require.Equal(t, common.KindInt, rows[0][0].Kind)
}
