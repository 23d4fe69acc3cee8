// Package dberrors defines the two error families the executor and storage
// layers raise (spec §7), grounded on imoocdb/errors.py. NoticeError surfaces
// to the client as a NOTICE and does not roll back the transaction;
// RollbackError aborts the current transaction via the undo log.
package dberrors

import (
	stderrors "errors"

	jujuerrors "github.com/juju/errors"
	pkgerrors "github.com/pkg/errors"
)

// NoticeError is a request-level error: the statement failed but the
// transaction need not roll back.
type NoticeError struct {
	cause error
}

func (e *NoticeError) Error() string { return e.cause.Error() }
func (e *NoticeError) Unwrap() error { return e.cause }

func Notice(format string, args ...interface{}) error {
	return &NoticeError{cause: jujuerrors.Errorf(format, args...)}
}

// SQLLogicalPlanError reports a malformed or unsupported logical plan.
func SQLLogicalPlanError(format string, args ...interface{}) error {
	return Notice(format, args...)
}

// ExecutorCheckError reports an operator precondition violation (bad column
// reference, unknown aggregate function, wrong child shape, ...).
func ExecutorCheckError(format string, args ...interface{}) error {
	return Notice(format, args...)
}

// RollbackError aborts the in-flight transaction; the caller must invoke the
// transaction manager's Abort and replay the undo log.
type RollbackError struct {
	cause error
}

func (e *RollbackError) Error() string { return e.cause.Error() }
func (e *RollbackError) Unwrap() error { return e.cause }

func Rollback(err error) error {
	return &RollbackError{cause: pkgerrors.WithStack(err)}
}

func Rollbackf(format string, args ...interface{}) error {
	return &RollbackError{cause: pkgerrors.Errorf(format, args...)}
}

// PageError reports slotted-page corruption or capacity violations.
func PageError(format string, args ...interface{}) error { return Rollbackf(format, args...) }

// LRUError reports a buffer-cache eviction failure (all entries pinned).
func LRUError(format string, args ...interface{}) error { return Rollbackf(format, args...) }

// BPlusTreeError reports B+Tree structural corruption.
func BPlusTreeError(format string, args ...interface{}) error { return Rollbackf(format, args...) }

// LockConflictError reports a lock acquisition that timed out.
func LockConflictError(format string, args ...interface{}) error { return Rollbackf(format, args...) }

// IsNotice reports whether err (or a wrapped cause) is a NoticeError.
func IsNotice(err error) bool {
	var n *NoticeError
	return stderrors.As(err, &n)
}

// IsRollback reports whether err (or a wrapped cause) is a RollbackError.
func IsRollback(err error) bool {
	var r *RollbackError
	return stderrors.As(err, &r)
}
