package operator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/imoocdb/imoocdb/server/catalog"
	"github.com/imoocdb/imoocdb/server/common"
	"github.com/imoocdb/imoocdb/server/storage/tuple"
)

func deptCol() common.TableColumn  { return common.TableColumn{Table: "t2", Column: "id"} }
func deptName() common.TableColumn { return common.TableColumn{Table: "t2", Column: "dept"} }

// withDeptTable registers t2(id int, dept text) with rows for ids 2, 3 and
// 5, so joins against t1's ids 1-4 exercise unmatched rows on both sides.
func (h *harness) withDeptTable(t *testing.T) {
	t.Helper()
	require.NoError(t, h.env.Catalog.Tables.Insert(catalog.TableForm{
		TableName: "t2", Columns: []string{"id", "dept"}, Types: []string{"int", "text"},
	}))
	table, err := h.tables.CreateTable("t2")
	require.NoError(t, err)
	for _, row := range []common.Row{
		{common.Int(2), common.Text("eng")},
		{common.Int(3), common.Text("sales")},
		{common.Int(5), common.Text("ops")},
	} {
		_, err := table.Insert(tuple.EncodeRow(row))
		require.NoError(t, err)
	}
}

func joinChildren(h *harness) (Operator, Operator) {
	return NewTableScan(h.env, "t1", nil), NewTableScan(h.env, "t2", nil)
}

func joinCondition() *Condition {
	return &Condition{Left: Col(idCol()), Sign: "=", Right: Col(deptCol())}
}

func newJoinHarness(t *testing.T) (*harness, context.Context) {
	h := newHarness(t)
	h.withFixtureTable(t)
	h.withDeptTable(t)
	return h, h.beginTx(t)
}

func TestNestedLoopJoinCross(t *testing.T) {
	h, ctx := newJoinHarness(t)
	left, right := joinChildren(h)
	join := NewNestedLoopJoin(CrossJoin, left, right, nil)
	rows := drain(t, ctx, join)
	require.Len(t, rows, 4*3)
}

func TestNestedLoopJoinInner(t *testing.T) {
	h, ctx := newJoinHarness(t)
	left, right := joinChildren(h)
	join := NewNestedLoopJoin(InnerJoin, left, right, joinCondition())
	rows := drain(t, ctx, join)
	require.Len(t, rows, 2) // ids 2 and 3 only
	for _, r := range rows {
		require.True(t, r[0].Equal(r[2]))
	}
}

func TestNestedLoopJoinLeft(t *testing.T) {
	h, ctx := newJoinHarness(t)
	left, right := joinChildren(h)
	join := NewNestedLoopJoin(LeftJoin, left, right, joinCondition())
	rows := drain(t, ctx, join)
	require.Len(t, rows, 4) // every t1 row, 2 matched + 2 padded
	var nulls int
	for _, r := range rows {
		if r[2].IsNull() {
			nulls++
		}
	}
	require.Equal(t, 2, nulls)
}

func TestNestedLoopJoinRight(t *testing.T) {
	h, ctx := newJoinHarness(t)
	left, right := joinChildren(h)
	join := NewNestedLoopJoin(RightJoin, left, right, joinCondition())
	rows := drain(t, ctx, join)
	require.Len(t, rows, 3) // every t2 row, 2 matched + 1 padded (id 5)
	var nulls int
	for _, r := range rows {
		if r[0].IsNull() {
			nulls++
		}
	}
	require.Equal(t, 1, nulls)
}

func TestNestedLoopJoinFull(t *testing.T) {
	h, ctx := newJoinHarness(t)
	left, right := joinChildren(h)
	join := NewNestedLoopJoin(FullJoin, left, right, joinCondition())
	rows := drain(t, ctx, join)
	// 2 matched + 2 left-only (ids 1,4) + 1 right-only (id 5) = 5
	require.Len(t, rows, 5)
}

func TestNestedLoopJoinInnerRequiresCondition(t *testing.T) {
	h, ctx := newJoinHarness(t)
	left, right := joinChildren(h)
	join := NewNestedLoopJoin(InnerJoin, left, right, nil)
	require.Error(t, join.Open(ctx))
}
