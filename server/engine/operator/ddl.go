package operator

import (
	"context"
	"fmt"

	"github.com/imoocdb/imoocdb/server/catalog"
	"github.com/imoocdb/imoocdb/server/common"
	"github.com/imoocdb/imoocdb/server/dberrors"
	"github.com/imoocdb/imoocdb/server/storage/tuple"
)

// DDLKind selects which statement PhysicalDDL executes.
type DDLKind string

const (
	CreateTable DDLKind = "CREATE TABLE"
	CreateIndex DDLKind = "CREATE INDEX"
)

// DDLPlan is PhysicalDDL's planned input.
type DDLPlan struct {
	Kind DDLKind

	// CreateTable fields.
	TableName string
	Columns   []string
	Types     []string

	// CreateIndex fields.
	IndexName  string
	OnTable    string
	KeyColumns []string
	Covered    bool
}

// TableCreator opens (creating if absent) the table file a CreateTable
// statement names -- implemented by *engine.Database.
type TableCreator interface {
	CreateTable(name string) (*tuple.Table, error)
}

// IndexRegistrar records a freshly built index under its name so later
// scans can resolve it -- implemented by *engine.Database.
type IndexRegistrar interface {
	RegisterIndex(name string, idx *tuple.Index)
}

// PhysicalDDL executes a single CREATE TABLE/CREATE INDEX statement: it
// updates the catalog and, for CREATE INDEX, builds the B+Tree from the
// table's current contents, rolling the catalog insert back if the build
// fails. Grounded on physical_operator.py's PhysicalDDL.
type PhysicalDDL struct {
	base
	env     *Env
	plan    DDLPlan
	tables  TableCreator
	indexes IndexRegistrar
	done    bool
}

// NewPhysicalDDL builds a DDL executor for plan.
func NewPhysicalDDL(env *Env, plan DDLPlan, tables TableCreator, indexes IndexRegistrar) *PhysicalDDL {
	return &PhysicalDDL{env: env, plan: plan, tables: tables, indexes: indexes}
}

func (op *PhysicalDDL) Open(context.Context) error  { return nil }
func (op *PhysicalDDL) Close(context.Context) error { return nil }

func (op *PhysicalDDL) Next(ctx context.Context) (common.Row, bool, error) {
	if op.done {
		return nil, false, nil
	}
	op.done = true

	switch op.plan.Kind {
	case CreateTable:
		if err := op.createTable(); err != nil {
			return nil, false, err
		}
	case CreateIndex:
		if err := op.createIndex(); err != nil {
			return nil, false, err
		}
	default:
		return nil, false, dberrors.ExecutorCheckError("unsupported DDL kind %q", op.plan.Kind)
	}
	return common.Row{}, true, nil
}

func (op *PhysicalDDL) createTable() error {
	if _, ok := op.env.Catalog.TableByName(op.plan.TableName); ok {
		return dberrors.Notice("table %q already exists", op.plan.TableName)
	}
	form := catalog.TableForm{TableName: op.plan.TableName, Columns: op.plan.Columns, Types: op.plan.Types}
	if err := op.env.Catalog.Tables.Insert(form); err != nil {
		return dberrors.Rollback(err)
	}
	if _, err := op.tables.CreateTable(op.plan.TableName); err != nil {
		_ = op.env.Catalog.DropTable(op.plan.TableName)
		return dberrors.Rollback(err)
	}
	return nil
}

func (op *PhysicalDDL) createIndex() error {
	if _, ok := op.env.Catalog.IndexByName(op.plan.IndexName); ok {
		return dberrors.Notice("index %q already exists", op.plan.IndexName)
	}
	tableForm, ok := op.env.Catalog.TableByName(op.plan.OnTable)
	if !ok {
		return dberrors.ExecutorCheckError("unknown table %q", op.plan.OnTable)
	}
	keyColumnIDs, err := resolveColumnIDs(tableForm, op.plan.KeyColumns)
	if err != nil {
		return err
	}

	form := catalog.IndexForm{IndexName: op.plan.IndexName, TableName: op.plan.OnTable, Columns: op.plan.KeyColumns, Covered: op.plan.Covered}
	if err := op.env.Catalog.Indexes.Insert(form); err != nil {
		return dberrors.Rollback(err)
	}

	table, err := op.env.Tables.Table(op.plan.OnTable)
	if err != nil {
		_ = op.env.Catalog.DropIndex(op.plan.IndexName)
		return dberrors.Rollback(err)
	}
	idx, err := tuple.IndexTupleCreate(table, op.plan.IndexName, op.plan.OnTable, keyColumnIDs, op.plan.Covered)
	if err != nil {
		_ = op.env.Catalog.DropIndex(op.plan.IndexName)
		return dberrors.Rollback(fmt.Errorf("building index %q: %w", op.plan.IndexName, err))
	}
	op.indexes.RegisterIndex(op.plan.IndexName, idx)
	return nil
}
