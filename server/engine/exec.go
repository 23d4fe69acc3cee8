package engine

import (
	"context"
	"strconv"

	"github.com/sirupsen/logrus"

	"github.com/imoocdb/imoocdb/server/common"
	"github.com/imoocdb/imoocdb/server/dberrors"
	"github.com/imoocdb/imoocdb/server/engine/operator"
	"github.com/imoocdb/imoocdb/server/metrics"
	"github.com/imoocdb/imoocdb/server/storage/txn"
)

// Result is a statement's outcome: either a set of named columns and their
// rows (a SELECT or a SHOW/CHECKPOINT command), or, when the plan reports no
// columns of its own, the number of rows it touched -- grounded on exe.py's
// Result and main.py's IMoocDBHandler.query branching on
// `result.target_columns is None`.
type Result struct {
	Columns      []common.TableColumn
	Rows         []common.Row
	RowsAffected int
}

// ExecPlan opens plan, pulls every row into a Result, and closes it --
// grounded on exe.py's exec_plan. A plan that never calls base.Columns
// (PhysicalInsert/Update/Delete/DDL) reports RowsAffected instead of a
// column set, matching the original's `target_columns is None` branch.
func ExecPlan(ctx context.Context, plan operator.Operator) (res *Result, err error) {
	if err := plan.Open(ctx); err != nil {
		return nil, err
	}
	defer func() {
		if cerr := plan.Close(ctx); err == nil {
			err = cerr
		}
	}()

	res = &Result{}
	for {
		row, ok, nerr := plan.Next(ctx)
		if nerr != nil {
			return nil, nerr
		}
		if !ok {
			break
		}
		res.Rows = append(res.Rows, row)
	}

	if columns := plan.Columns(); len(columns) > 0 {
		res.Columns = columns
	} else {
		res.RowsAffected = len(res.Rows)
		res.Rows = nil
	}
	return res, nil
}

// NoticeFunc reports a NOTICE or ERROR level message back to the client
// issuing the statement, matching main.py's exec_imoocdb_query
// `notice_client` callback.
type NoticeFunc func(level, message string)

// LogNotice is the default NoticeFunc, used by non-interactive callers --
// grounded on main.py's notice_client_terminal, which logged instead of
// notifying a connected client.
func LogNotice(level, message string) {
	logrus.WithField("level", level).Error(message)
}

// ExecQuery is the top-level statement driver: it wraps plan in its own
// transaction (unless kind is a CommandOperator, which bypasses the
// transaction envelope entirely), aborting and notifying the caller on
// failure. Grounded on main.py's exec_imoocdb_query; every statement is its
// own transaction, since this edition has no multi-statement client
// transactions (spec.md's Non-goals).
func (db *Database) ExecQuery(ctx context.Context, plan operator.Operator, notice NoticeFunc) *Result {
	if notice == nil {
		notice = LogNotice
	}

	if _, isCommand := plan.(*operator.CommandOperator); isCommand {
		res, err := ExecPlan(ctx, plan)
		if err != nil {
			db.reportExecError(err, notice)
			return &Result{}
		}
		return res
	}

	xid, err := db.Txn.StartTransaction()
	if err != nil {
		notice("ERROR", err.Error())
		return &Result{}
	}
	ctx = txn.WithXid(ctx, xid)

	res, err := ExecPlan(ctx, plan)
	if err != nil {
		// A NoticeError means the statement failed but nothing it did needs
		// undoing; RollbackError and any other failure replay the undo log,
		// matching exec_imoocdb_query's RollbackError/bare-Exception branches
		// both calling abort_transaction while its NoticeError branch does not.
		if !dberrors.IsNotice(err) {
			if abortErr := db.Txn.AbortTransaction(xid); abortErr != nil {
				notice("ERROR", abortErr.Error())
			}
		}
		db.reportExecError(err, notice)
		return &Result{}
	}

	if err := db.Txn.CommitTransaction(xid); err != nil {
		notice("ERROR", err.Error())
		return &Result{}
	}
	return res
}

func (db *Database) reportExecError(err error, notice NoticeFunc) {
	if dberrors.IsNotice(err) {
		notice("NOTICE", err.Error())
		return
	}
	notice("ERROR", err.Error())
}

// ShowVariablesSnapshot builds the name/value map CommandOperator's
// ShowVariables kind renders, combining static engine configuration with the
// live counters in server/metrics -- the Go analog of the original engine
// having nothing structured to show beyond whatever a SHOW statement hard-
// coded, now backed by real gauges.
func (db *Database) ShowVariablesSnapshot() map[string]string {
	return map[string]string{
		"working_directory":  db.cfg.WorkingDirectory,
		"page_size":          strconv.Itoa(db.cfg.PageSize),
		"lru_capacity":       strconv.Itoa(db.cfg.LRUCapacity),
		"transaction_count":  strconv.FormatInt(metrics.TransactionCountValue(), 10),
		"current_xid":        strconv.FormatUint(metrics.CurrentXidValue(), 10),
		"activity_count":     strconv.FormatInt(metrics.ActiveSessionsValue(), 10),
		"buffer_cache_hits":  strconv.FormatInt(metrics.BufferCacheHitsValue(), 10),
		"buffer_cache_misses": strconv.FormatInt(metrics.BufferCacheMissesValue(), 10),
	}
}
