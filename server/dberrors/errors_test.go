package dberrors

import "testing"

func TestErrorFamilyClassification(t *testing.T) {
	n := ExecutorCheckError("bad column %s", "t1.x")
	if !IsNotice(n) {
		t.Fatalf("expected ExecutorCheckError to classify as Notice")
	}
	if IsRollback(n) {
		t.Fatalf("did not expect ExecutorCheckError to classify as Rollback")
	}

	r := LockConflictError("timed out waiting for %s", "t1")
	if !IsRollback(r) {
		t.Fatalf("expected LockConflictError to classify as Rollback")
	}
	if IsNotice(r) {
		t.Fatalf("did not expect LockConflictError to classify as Notice")
	}
}
