package lock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSharedLocksAreCompatible(t *testing.T) {
	m := New()
	target := Target{Kind: Table, Name: "t1"}
	require.NoError(t, m.Acquire(target, 1, Shared, time.Second))
	require.NoError(t, m.Acquire(target, 2, Shared, time.Second))
}

func TestExclusiveConflictsWithShared(t *testing.T) {
	m := New()
	target := Target{Kind: Table, Name: "t1"}
	require.NoError(t, m.Acquire(target, 1, Shared, time.Second))
	err := m.Acquire(target, 2, Exclusive, 50*time.Millisecond)
	assert.Error(t, err)
}

func TestUpgradeAllowedWhenSoleHolder(t *testing.T) {
	m := New()
	target := Target{Kind: Table, Name: "t1"}
	require.NoError(t, m.Acquire(target, 1, Shared, time.Second))
	require.NoError(t, m.Acquire(target, 1, Exclusive, time.Second))
}

func TestReleaseUnblocksWaiter(t *testing.T) {
	m := New()
	target := Target{Kind: Table, Name: "t1"}
	require.NoError(t, m.Acquire(target, 1, Exclusive, time.Second))

	done := make(chan error, 1)
	go func() { done <- m.Acquire(target, 2, Exclusive, time.Second) }()

	time.Sleep(20 * time.Millisecond)
	m.Release(target, 1)

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("waiter never unblocked")
	}
}

func TestReleaseAllReleasesEveryLock(t *testing.T) {
	m := New()
	a := Target{Kind: Table, Name: "t1"}
	b := Target{Kind: Index, Name: "idx"}
	require.NoError(t, m.Acquire(a, 1, Exclusive, time.Second))
	require.NoError(t, m.Acquire(b, 1, Exclusive, time.Second))

	m.ReleaseAll(1)

	require.NoError(t, m.Acquire(a, 2, Exclusive, time.Second))
	require.NoError(t, m.Acquire(b, 2, Exclusive, time.Second))
}

func TestReleaseOfUnheldLockIsNoop(t *testing.T) {
	m := New()
	target := Target{Kind: Table, Name: "t1"}
	m.Release(target, 99)
}
