package pg

import (
	"context"
	"strings"

	"github.com/imoocdb/imoocdb/server/dberrors"
	"github.com/imoocdb/imoocdb/server/engine"
	"github.com/imoocdb/imoocdb/server/engine/operator"
)

// DefaultPlanner recognizes the small set of administrative statements
// spec.md §4.8 names (CHECKPOINT, SHOW VARIABLES/TABLES/INDEXES) without a
// real SQL lexer/parser, which spec.md §1 explicitly leaves out of scope.
// Anything else is reported as a notice naming the missing front end, rather
// than a panic or a misleading parse error.
type DefaultPlanner struct{}

// Plan recognizes sql (trimmed, case-insensitively, of its trailing ';') and
// returns the matching CommandOperator. Every other statement is rejected
// with a notice, since no logical planner is wired in this edition.
func (DefaultPlanner) Plan(ctx context.Context, env *operator.Env, db *engine.Database, sql string) (operator.Operator, error) {
	stmt := strings.ToUpper(strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(sql), ";")))
	switch stmt {
	case "CHECKPOINT":
		return operator.NewCommandOperator(env, operator.Checkpoint, db.Txn, nil), nil
	case "SHOW VARIABLES":
		return operator.NewCommandOperator(env, operator.ShowVariables, db.Txn, db.ShowVariablesSnapshot()), nil
	case "SHOW TABLES":
		return operator.NewCommandOperator(env, operator.ShowTables, db.Txn, nil), nil
	case "SHOW INDEXES":
		return operator.NewCommandOperator(env, operator.ShowIndexes, db.Txn, nil), nil
	default:
		return nil, dberrors.Notice("no SQL front end is wired in; only CHECKPOINT/SHOW VARIABLES/SHOW TABLES/SHOW INDEXES are recognized, got %q", sql)
	}
}
