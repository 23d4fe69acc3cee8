package operator

import (
	"context"
	"sort"
	"time"

	"github.com/imoocdb/imoocdb/server/common"
	"github.com/imoocdb/imoocdb/server/dberrors"
	"github.com/imoocdb/imoocdb/server/storage/txn"
)

// PhysicalQuery is the root of a SELECT plan: it projects its child down to
// the requested output columns and times the query's open/close span for
// the caller to log or expose as a metric. Grounded on
// physical_operator.py's PhysicalQuery.
type PhysicalQuery struct {
	base
	child      Operator
	projection []common.TableColumn // empty means "every column of child"

	columnIDs []int
	openedAt  time.Time
	closedAt  time.Time
}

// NewPhysicalQuery builds the root of a SELECT plan over child, projecting
// down to projection (or every child column, if projection is empty).
func NewPhysicalQuery(child Operator, projection []common.TableColumn) *PhysicalQuery {
	return &PhysicalQuery{child: child, projection: projection}
}

func (q *PhysicalQuery) Open(ctx context.Context) error {
	q.openedAt = time.Now()
	if err := q.child.Open(ctx); err != nil {
		return err
	}
	childColumns := q.child.Columns()
	if len(q.projection) == 0 {
		q.columns = childColumns
		q.columnIDs = nil
		for i := range childColumns {
			q.columnIDs = append(q.columnIDs, i)
		}
		return nil
	}
	q.columns = q.projection
	q.columnIDs = make([]int, len(q.projection))
	for i, c := range q.projection {
		id := indexOfColumn(childColumns, c)
		if id < 0 {
			return dberrors.ExecutorCheckError("projected column %s not found in query result", c)
		}
		q.columnIDs[i] = id
	}
	return nil
}

func (q *PhysicalQuery) Close(ctx context.Context) error {
	err := q.child.Close(ctx)
	q.closedAt = time.Now()
	return err
}

func (q *PhysicalQuery) Next(ctx context.Context) (common.Row, bool, error) {
	row, ok, err := q.child.Next(ctx)
	if err != nil || !ok {
		return nil, false, err
	}
	projected := make(common.Row, len(q.columnIDs))
	for i, id := range q.columnIDs {
		projected[i] = row[id]
	}
	return projected, true, nil
}

// Duration reports how long the query stayed open, valid only after Close.
func (q *PhysicalQuery) Duration() time.Duration { return q.closedAt.Sub(q.openedAt) }

// CommandKind selects what a CommandOperator executes.
type CommandKind string

const (
	Checkpoint    CommandKind = "CHECKPOINT"
	ShowVariables CommandKind = "SHOW VARIABLES"
	ShowTables    CommandKind = "SHOW TABLES"
	ShowIndexes   CommandKind = "SHOW INDEXES"
)

// CommandOperator executes the administrative statements that bypass the
// transaction envelope entirely (spec.md §4.8, "CHECKPOINT"/"SHOW"):
// CHECKPOINT truncates the redo log, and the SHOW variants list session
// variables or catalog contents. Grounded on physical_operator.py's
// CommandOperator.
type CommandOperator struct {
	base
	env       *Env
	kind      CommandKind
	txManager *txn.Manager
	variables map[string]string

	done bool
	rows []common.Row
}

// NewCommandOperator builds a command of kind. txManager is required for
// Checkpoint; variables is required for ShowVariables.
func NewCommandOperator(env *Env, kind CommandKind, txManager *txn.Manager, variables map[string]string) *CommandOperator {
	return &CommandOperator{env: env, kind: kind, txManager: txManager, variables: variables}
}

func (c *CommandOperator) Open(context.Context) error {
	switch c.kind {
	case Checkpoint:
		c.columns = []common.TableColumn{{Table: "checkpoint", Column: "lsn"}}
	case ShowVariables:
		c.columns = []common.TableColumn{{Table: "variables", Column: "name"}, {Table: "variables", Column: "value"}}
	case ShowTables, ShowIndexes:
		c.columns = []common.TableColumn{{Table: "catalog", Column: "definition"}}
	default:
		return dberrors.ExecutorCheckError("unsupported command kind %q", c.kind)
	}
	return nil
}

func (c *CommandOperator) Close(context.Context) error { return nil }

func (c *CommandOperator) Next(ctx context.Context) (common.Row, bool, error) {
	if !c.done {
		if err := c.run(); err != nil {
			return nil, false, err
		}
		c.done = true
	}
	if len(c.rows) == 0 {
		return nil, false, nil
	}
	row := c.rows[0]
	c.rows = c.rows[1:]
	return row, true, nil
}

func (c *CommandOperator) run() error {
	switch c.kind {
	case Checkpoint:
		lsn, err := c.txManager.Checkpoint()
		if err != nil {
			return err
		}
		c.rows = []common.Row{{common.Int(int64(lsn))}}
	case ShowVariables:
		names := make([]string, 0, len(c.variables))
		for name := range c.variables {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			c.rows = append(c.rows, common.Row{common.Text(name), common.Text(c.variables[name])})
		}
	case ShowTables:
		for _, form := range c.env.Catalog.Tables.All() {
			c.rows = append(c.rows, common.Row{common.Text(form.String())})
		}
	case ShowIndexes:
		for _, form := range c.env.Catalog.Indexes.All() {
			c.rows = append(c.rows, common.Row{common.Text(form.String())})
		}
	}
	return nil
}
