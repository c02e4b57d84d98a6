package lockmgr

import "fmt"

// AbortReason is why the lock manager refused a request and forced the
// requesting transaction to abort, mirroring the eight reasons a real
// two-phase-locking implementation distinguishes, plus Deadlock for a
// waiter chosen as deadlock victim (most callers only care that the
// transaction must roll back, but distinguishing reasons lets tests
// assert on the exact rule that fired).
type AbortReason int

const (
	LockOnShrinking AbortReason = iota
	UpgradeConflict
	IncompatibleUpgrade
	SharedLockOnReadUncommitted
	TableLockNotPresent
	TableUnlockedBeforeUnlockingRows
	AttemptedUnlockButNoLockHeld
	AttemptedIntentionLockOnRow
	Deadlock
)

func (r AbortReason) String() string {
	switch r {
	case LockOnShrinking:
		return "LOCK_ON_SHRINKING"
	case UpgradeConflict:
		return "UPGRADE_CONFLICT"
	case IncompatibleUpgrade:
		return "INCOMPATIBLE_UPGRADE"
	case SharedLockOnReadUncommitted:
		return "SHARED_LOCK_ON_READ_UNCOMMITTED"
	case TableLockNotPresent:
		return "TABLE_LOCK_NOT_PRESENT"
	case TableUnlockedBeforeUnlockingRows:
		return "TABLE_UNLOCKED_BEFORE_UNLOCKING_ROWS"
	case AttemptedUnlockButNoLockHeld:
		return "ATTEMPTED_UNLOCK_BUT_NO_LOCK_HELD"
	case AttemptedIntentionLockOnRow:
		return "ATTEMPTED_INTENTION_LOCK_ON_ROW"
	case Deadlock:
		return "DEADLOCK"
	default:
		return "UNKNOWN"
	}
}

// AbortError is returned by every lock/unlock call that forces the
// caller's transaction to abort. Callers should errors.As into this to
// inspect Reason rather than matching on Error()'s string, the typed
// counterpart to the teacher's fmt.Errorf-based aborts in
// server/innodb/manager/lock_manager.go.
type AbortError struct {
	TxnID  uint64
	Reason AbortReason
}

func (e *AbortError) Error() string {
	return fmt.Sprintf("lockmgr: transaction %d aborted: %s", e.TxnID, e.Reason)
}

func abort(txnID uint64, reason AbortReason) error {
	return &AbortError{TxnID: txnID, Reason: reason}
}
