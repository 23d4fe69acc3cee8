// Package operator implements the pull-based physical plan executor
// (spec.md §4.5): scan/join/sort/aggregate/DML/DDL/command nodes wired
// together as a tree of Open/Next/Close state machines, grounded on
// original_source's imoocdb/executor/operator/physical_operator.py.
package operator

import (
	"context"
	"time"

	"github.com/imoocdb/imoocdb/server/catalog"
	"github.com/imoocdb/imoocdb/server/common"
	"github.com/imoocdb/imoocdb/server/dberrors"
	"github.com/imoocdb/imoocdb/server/storage/lock"
	"github.com/imoocdb/imoocdb/server/storage/tuple"
	"github.com/imoocdb/imoocdb/server/storage/txn"
)

// lockTimeout bounds how long a physical operator waits to acquire a
// table/index lock before giving up (spec.md §4.6).
const lockTimeout = 5 * time.Second

// Operator is one node of a physical plan. Go has no generators, so the
// Python base class's next() becomes an explicit pull: Next returns one row
// at a time and ok=false once the operator is exhausted.
type Operator interface {
	Open(ctx context.Context) error
	Next(ctx context.Context) (common.Row, bool, error)
	Close(ctx context.Context) error
	Columns() []common.TableColumn
}

// LocationIterator is implemented by scans that can yield a matching row's
// Location instead of its decoded value -- the half of TableScan/IndexScan
// that PhysicalUpdate/PhysicalDelete drive through a LocationScan.
type LocationIterator interface {
	Operator
	NextLocation(ctx context.Context) (common.Location, bool, error)
}

// base carries the bookkeeping every concrete operator embeds.
type base struct {
	columns []common.TableColumn
}

func (b *base) Columns() []common.TableColumn { return b.columns }

// Env bundles the live handles a physical plan executes against: the
// catalog, open table/index handles, the lock manager and the redo/undo log
// managers. Grounded on original_source's module-level catalog_table/
// catalog_index/lock_manager singletons, turned into an explicit struct a
// *engine.Database builds and passes down instead (DESIGN NOTES §9 -- no
// process-wide singletons).
type Env struct {
	Catalog *catalog.Catalog
	Tables  tuple.TableLookup
	Indexes tuple.IndexLookup
	Locks   *lock.Manager
	Redo    *txn.RedoLogManager
	Undo    *txn.UndoLogManager
}

// ConditionOperand is either a column reference or a constant value --
// exactly one of the two fields is set.
type ConditionOperand struct {
	Column   *common.TableColumn
	Constant common.Value
}

// Col builds a column-reference operand.
func Col(c common.TableColumn) ConditionOperand { return ConditionOperand{Column: &c} }

// Const builds a constant-value operand.
func Const(v common.Value) ConditionOperand { return ConditionOperand{Constant: v} }

func (o ConditionOperand) resolve(values map[common.TableColumn]common.Value) common.Value {
	if o.Column != nil {
		return values[*o.Column]
	}
	return o.Constant
}

// Condition is the single binary comparison predicate every filtering and
// joining operator in this edition evaluates (spec.md §4.5's condition
// shape: `t1.a = 1`, `t1.a > t2.b`, ...).
type Condition struct {
	Left  ConditionOperand
	Sign  string // "=", "!=", ">", "<"
	Right ConditionOperand
}

// isConditionTrue evaluates cond against a row already cast to a
// column->value map, grounded on physical_operator.py's
// `is_condition_true`.
func isConditionTrue(cond *Condition, values map[common.TableColumn]common.Value) (bool, error) {
	left := cond.Left.resolve(values)
	right := cond.Right.resolve(values)
	switch cond.Sign {
	case "=":
		return left.Equal(right), nil
	case "!=":
		return !left.Equal(right), nil
	case ">":
		c, err := left.Compare(right)
		if err != nil {
			return false, err
		}
		return c > 0, nil
	case "<":
		c, err := left.Compare(right)
		if err != nil {
			return false, err
		}
		return c < 0, nil
	default:
		return false, dberrors.ExecutorCheckError("unsupported condition sign %q", cond.Sign)
	}
}

// rowToValues casts row to a column->value map, grounded on
// physical_operator.py's `cast_tuple_pair_to_values`.
func rowToValues(columns []common.TableColumn, row common.Row) map[common.TableColumn]common.Value {
	values := make(map[common.TableColumn]common.Value, len(columns))
	for i, c := range columns {
		values[c] = row[i]
	}
	return values
}

func indexOfColumn(columns []common.TableColumn, target common.TableColumn) int {
	for i, c := range columns {
		if c == target {
			return i
		}
	}
	return -1
}

func sessionXid(ctx context.Context) uint64 {
	xid, _ := txn.SessionXid(ctx)
	return xid
}

func drainAll(ctx context.Context, op Operator) ([]common.Row, error) {
	var rows []common.Row
	for {
		row, ok, err := op.Next(ctx)
		if err != nil {
			return nil, err
		}
		if !ok {
			return rows, nil
		}
		rows = append(rows, row)
	}
}
