package lockmgr

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhukovaskychina/storagecore/server/innodb/txn"
)

func newManager(t *testing.T) *Manager {
	t.Helper()
	m := New(10 * time.Millisecond)
	t.Cleanup(m.Close)
	return m
}

func TestLockTable_SharedLocksCoexist(t *testing.T) {
	m := newManager(t)
	t1 := txn.New(1, txn.RepeatableRead)
	t2 := txn.New(2, txn.RepeatableRead)

	require.NoError(t, m.LockTable(t1, 100, txn.Shared))
	require.NoError(t, m.LockTable(t2, 100, txn.Shared))
	assert.True(t, t1.HasTableLock(100, txn.Shared))
	assert.True(t, t2.HasTableLock(100, txn.Shared))
}

func TestLockTable_ExclusiveBlocksShared(t *testing.T) {
	m := newManager(t)
	t1 := txn.New(1, txn.RepeatableRead)
	t2 := txn.New(2, txn.RepeatableRead)

	require.NoError(t, m.LockTable(t1, 100, txn.Exclusive))

	done := make(chan error, 1)
	go func() { done <- m.LockTable(t2, 100, txn.Shared) }()

	select {
	case <-done:
		t.Fatal("t2 should not acquire S while t1 holds X")
	case <-time.After(50 * time.Millisecond):
	}

	require.NoError(t, m.UnlockTable(t1, 100))
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("t2 never granted after t1 released")
	}
}

func TestLockTable_UpgradeSharedToExclusive(t *testing.T) {
	m := newManager(t)
	t1 := txn.New(1, txn.RepeatableRead)

	require.NoError(t, m.LockTable(t1, 100, txn.Shared))
	require.NoError(t, m.LockTable(t1, 100, txn.Exclusive))
	assert.True(t, t1.HasTableLock(100, txn.Exclusive))
	assert.False(t, t1.HasTableLock(100, txn.Shared))
}

func TestLockTable_IncompatibleUpgradeRejected(t *testing.T) {
	m := newManager(t)
	t1 := txn.New(1, txn.RepeatableRead)

	require.NoError(t, m.LockTable(t1, 100, txn.Exclusive))
	err := m.LockTable(t1, 100, txn.Shared)
	var abortErr *AbortError
	require.True(t, errors.As(err, &abortErr))
	assert.Equal(t, IncompatibleUpgrade, abortErr.Reason)
}

func TestLockTable_ReadUncommittedRejectsSharedRequest(t *testing.T) {
	m := newManager(t)
	t1 := txn.New(1, txn.ReadUncommitted)

	err := m.LockTable(t1, 100, txn.Shared)
	var abortErr *AbortError
	require.True(t, errors.As(err, &abortErr))
	assert.Equal(t, SharedLockOnReadUncommitted, abortErr.Reason)
}

func TestLockTable_ShrinkingRejectsNewLockUnderRepeatableRead(t *testing.T) {
	m := newManager(t)
	t1 := txn.New(1, txn.RepeatableRead)
	require.NoError(t, m.LockTable(t1, 100, txn.Shared))
	require.NoError(t, m.UnlockTable(t1, 100))
	require.Equal(t, txn.Shrinking, t1.State())

	err := m.LockTable(t1, 200, txn.Shared)
	var abortErr *AbortError
	require.True(t, errors.As(err, &abortErr))
	assert.Equal(t, LockOnShrinking, abortErr.Reason)
}

func TestLockRow_RequiresTableLockFirst(t *testing.T) {
	m := newManager(t)
	t1 := txn.New(1, txn.RepeatableRead)

	err := m.LockRow(t1, 100, 1, txn.Shared)
	var abortErr *AbortError
	require.True(t, errors.As(err, &abortErr))
	assert.Equal(t, TableLockNotPresent, abortErr.Reason)

	require.NoError(t, m.LockTable(t1, 100, txn.IntentionShared))
	require.NoError(t, m.LockRow(t1, 100, 1, txn.Shared))
	assert.True(t, t1.HasRowLock(100, 1, txn.Shared))
}

func TestUnlockTable_BlockedByOutstandingRowLocks(t *testing.T) {
	m := newManager(t)
	t1 := txn.New(1, txn.RepeatableRead)
	require.NoError(t, m.LockTable(t1, 100, txn.IntentionExclusive))
	require.NoError(t, m.LockRow(t1, 100, 1, txn.Exclusive))

	err := m.UnlockTable(t1, 100)
	var abortErr *AbortError
	require.True(t, errors.As(err, &abortErr))
	assert.Equal(t, TableUnlockedBeforeUnlockingRows, abortErr.Reason)
}

func TestDeadlockDetector_AbortsYoungestInCycle(t *testing.T) {
	m := newManager(t)
	t1 := txn.New(1, txn.RepeatableRead)
	t2 := txn.New(2, txn.RepeatableRead)

	require.NoError(t, m.LockTable(t1, 100, txn.Exclusive))
	require.NoError(t, m.LockTable(t2, 200, txn.Exclusive))

	errCh1 := make(chan error, 1)
	errCh2 := make(chan error, 1)
	go func() { errCh1 <- m.LockTable(t1, 200, txn.Exclusive) }()
	time.Sleep(5 * time.Millisecond)
	go func() { errCh2 <- m.LockTable(t2, 100, txn.Exclusive) }()

	// The detector releases the victim's locks right after marking it
	// aborted, so the survivor's grant can be delivered before the
	// victim's abort: collect both results before checking them.
	results := make(map[uint64]error, 2)
	for len(results) < 2 {
		select {
		case err := <-errCh2:
			results[2] = err
		case err := <-errCh1:
			results[1] = err
		case <-time.After(2 * time.Second):
			t.Fatal("deadlock detector never aborted either transaction")
		}
	}
	var abortErr *AbortError
	require.True(t, errors.As(results[2], &abortErr), "txn 2 must come back aborted, got %v", results[2])
	assert.Equal(t, uint64(2), abortErr.TxnID, "youngest (highest) txn id in the cycle must be the victim")
	require.NoError(t, results[1], "aborting the victim must release its locks so the survivor is unblocked")

	require.NoError(t, m.UnlockTable(t1, 100))
	require.NoError(t, m.UnlockTable(t1, 200))
}
