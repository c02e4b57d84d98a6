// Package lockmgr implements hierarchical multi-granularity locking:
// table-level IS/IX/S/SIX/X locks and row-level S/X locks, isolation-
// level-aware acquisition rules, FIFO grant ordering with upgrade
// priority, and a background wait-for-graph deadlock detector.
package lockmgr

import (
	"sync"
	"time"

	"github.com/zhukovaskychina/storagecore/logger"
	"github.com/zhukovaskychina/storagecore/server/innodb/txn"
)

type rowKey struct {
	oid txn.OID
	rid txn.RID
}

// Manager is the lock table: one queue per table oid, one queue per
// (table, row) pair, and a background goroutine that periodically
// looks for cycles in the wait-for graph those queues imply. Grounded
// on original_source/concurrency/lock_manager.cpp for the acquisition
// algorithm and on the teacher's LockManager
// (server/innodb/manager/lock_manager.go) for the Go idiom: a
// mutex-guarded map of queues plus a ticker-driven detector goroutine.
type Manager struct {
	mu         sync.Mutex
	tableLocks map[txn.OID]*queue
	rowLocks   map[rowKey]*queue

	txns      map[uint64]*txn.Transaction
	waitingOn map[uint64]*queue

	detectionInterval time.Duration
	stopCh            chan struct{}
	stopped           bool
}

// New creates a lock manager whose deadlock detector runs every
// detectionInterval. Call Close to stop the detector goroutine.
func New(detectionInterval time.Duration) *Manager {
	if detectionInterval <= 0 {
		detectionInterval = 50 * time.Millisecond
	}
	m := &Manager{
		tableLocks:        make(map[txn.OID]*queue),
		rowLocks:          make(map[rowKey]*queue),
		txns:              make(map[uint64]*txn.Transaction),
		waitingOn:         make(map[uint64]*queue),
		detectionInterval: detectionInterval,
		stopCh:            make(chan struct{}),
	}
	go m.runCycleDetection()
	return m
}

// Close stops the background deadlock detector. Safe to call once.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped {
		return
	}
	m.stopped = true
	close(m.stopCh)
}

func (m *Manager) register(t *txn.Transaction) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.txns[t.ID] = t
}

func (m *Manager) tableQueue(oid txn.OID) *queue {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.tableLocks[oid]
	if !ok {
		q = newQueue()
		m.tableLocks[oid] = q
	}
	return q
}

func (m *Manager) rowQueue(oid txn.OID, rid txn.RID) *queue {
	key := rowKey{oid, rid}
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.rowLocks[key]
	if !ok {
		q = newQueue()
		m.rowLocks[key] = q
	}
	return q
}

// checkIsolationPreconditions enforces which modes a transaction's
// isolation level allows it to request, and at what 2PL phase.
func checkIsolationPreconditions(t *txn.Transaction, mode txn.LockMode) error {
	state := t.State()
	switch t.Isolation {
	case txn.ReadUncommitted:
		if mode == txn.Shared || mode == txn.IntentionShared || mode == txn.SharedIntentionExclusive {
			return abort(t.ID, SharedLockOnReadUncommitted)
		}
		if state == txn.Shrinking {
			return abort(t.ID, LockOnShrinking)
		}
	case txn.ReadCommitted:
		if state == txn.Shrinking && mode != txn.Shared && mode != txn.IntentionShared {
			return abort(t.ID, LockOnShrinking)
		}
	case txn.RepeatableRead:
		if state == txn.Shrinking {
			return abort(t.ID, LockOnShrinking)
		}
	}
	return nil
}

// entersShrinkingOnRelease reports whether releasing mode is a "real"
// release that ends a GROWING transaction's growing phase, per
// original_source/concurrency/lock_manager.cpp's UnlockTable/UnlockRow:
// REPEATABLE_READ treats both S and X as phase-ending; READ_COMMITTED
// and READ_UNCOMMITTED only treat X that way, since under those levels
// a released S lock was never meant to participate in two-phase
// locking (READ_COMMITTED drops S locks as soon as a statement is
// done, READ_UNCOMMITTED never takes them at all).
func entersShrinkingOnRelease(t *txn.Transaction, mode txn.LockMode) bool {
	if t.State() != txn.Growing {
		return false
	}
	if t.Isolation == txn.RepeatableRead {
		return mode == txn.Shared || mode == txn.Exclusive
	}
	return mode == txn.Exclusive
}

// LockTable acquires mode on table oid for t, blocking until granted,
// denied (isolation/upgrade-rule violation), or chosen as a deadlock
// victim.
func (m *Manager) LockTable(t *txn.Transaction, oid txn.OID, mode txn.LockMode) error {
	m.register(t)

	if t.State() == txn.Aborted || t.State() == txn.Committed {
		return abort(t.ID, TableLockNotPresent)
	}
	if err := checkIsolationPreconditions(t, mode); err != nil {
		return err
	}

	q := m.tableQueue(oid)
	q.mu.Lock()

	if existing := q.find(t.ID); existing != nil && existing.granted {
		if existing.mode == mode {
			q.mu.Unlock()
			return nil
		}
		if !upgradeAllowed(existing.mode, mode) {
			q.mu.Unlock()
			return abort(t.ID, IncompatibleUpgrade)
		}
		if q.upgrading != 0 && q.upgrading != t.ID {
			q.mu.Unlock()
			return abort(t.ID, UpgradeConflict)
		}
		q.upgrading = t.ID
		q.removeByTxn(t.ID)
		t.RevokeTableLock(oid, existing.mode)
		req := &request{txnID: t.ID, mode: mode}
		q.insertUpgrade(req)
		return m.waitForGrant(t, q, req, func() { q.upgrading = 0; t.GrantTableLock(oid, mode) })
	}

	req := &request{txnID: t.ID, mode: mode}
	q.requests = append(q.requests, req)
	return m.waitForGrant(t, q, req, func() {
		t.GrantTableLock(oid, mode)
	})
}

// waitForGrant blocks on q's condition variable until req can be
// granted or the transaction is picked as a deadlock victim. Caller
// must hold q.mu; onGrant runs with q.mu held immediately before
// returning success (to record the lock against t and clear any
// upgrade marker). q.mu is always released before returning.
func (m *Manager) waitForGrant(t *txn.Transaction, q *queue, req *request, onGrant func()) error {
	defer q.mu.Unlock()

	for {
		if t.State() == txn.Aborted {
			q.removeByTxn(t.ID)
			if q.upgrading == t.ID {
				q.upgrading = 0
			}
			m.clearWaiting(t.ID)
			q.cv.Broadcast()
			return abort(t.ID, Deadlock)
		}
		if q.frontUngranted(req) && compatibleWithAll(q.grantedModes(t.ID), req.mode) {
			req.granted = true
			m.clearWaiting(t.ID)
			onGrant()
			q.cv.Broadcast()
			logger.Debugf("lockmgr: txn %d granted %s", t.ID, req.mode)
			return nil
		}
		m.setWaiting(t.ID, q)
		q.cv.Wait()
	}
}

func (m *Manager) setWaiting(txnID uint64, q *queue) {
	m.mu.Lock()
	m.waitingOn[txnID] = q
	m.mu.Unlock()
}

func (m *Manager) clearWaiting(txnID uint64) {
	m.mu.Lock()
	delete(m.waitingOn, txnID)
	m.mu.Unlock()
}

// UnlockTable releases t's lock on oid. Whether this moves a GROWING
// transaction to SHRINKING depends on both mode and isolation level;
// see entersShrinkingOnRelease. Releasing an intention lock never does,
// regardless of level — intention locks never participate in the
// growing/shrinking boundary.
func (m *Manager) UnlockTable(t *txn.Transaction, oid txn.OID) error {
	for tableOID, rids := range t.RowLockTables() {
		if tableOID == oid && len(rids) > 0 {
			return abort(t.ID, TableUnlockedBeforeUnlockingRows)
		}
	}

	q := m.tableQueue(oid)
	q.mu.Lock()
	req := q.find(t.ID)
	if req == nil || !req.granted {
		q.mu.Unlock()
		return abort(t.ID, AttemptedUnlockButNoLockHeld)
	}
	q.removeByTxn(t.ID)
	mode := req.mode
	q.cv.Broadcast()
	q.mu.Unlock()

	t.RevokeTableLock(oid, mode)
	if entersShrinkingOnRelease(t, mode) {
		t.SetState(txn.Shrinking)
	}
	return nil
}

// LockRow acquires mode (Shared or Exclusive only) on row rid of table
// oid. The transaction must already hold a table-level lock compatible
// with the requested row mode: any table lock at all for S, and
// IX/SIX/X for X.
func (m *Manager) LockRow(t *txn.Transaction, oid txn.OID, rid txn.RID, mode txn.LockMode) error {
	if mode != txn.Shared && mode != txn.Exclusive {
		return abort(t.ID, AttemptedIntentionLockOnRow)
	}
	m.register(t)

	if err := checkIsolationPreconditions(t, mode); err != nil {
		return err
	}
	if mode == txn.Shared && len(t.TableLockModes(oid)) == 0 {
		return abort(t.ID, TableLockNotPresent)
	}
	if mode == txn.Exclusive {
		ok := t.HasTableLock(oid, txn.Exclusive) || t.HasTableLock(oid, txn.IntentionExclusive) || t.HasTableLock(oid, txn.SharedIntentionExclusive)
		if !ok {
			return abort(t.ID, TableLockNotPresent)
		}
	}

	q := m.rowQueue(oid, rid)
	q.mu.Lock()

	if existing := q.find(t.ID); existing != nil && existing.granted {
		if existing.mode == mode {
			q.mu.Unlock()
			return nil
		}
		if !upgradeAllowed(existing.mode, mode) {
			q.mu.Unlock()
			return abort(t.ID, IncompatibleUpgrade)
		}
		if q.upgrading != 0 && q.upgrading != t.ID {
			q.mu.Unlock()
			return abort(t.ID, UpgradeConflict)
		}
		q.upgrading = t.ID
		q.removeByTxn(t.ID)
		t.RevokeRowLock(oid, rid, existing.mode)
		req := &request{txnID: t.ID, mode: mode}
		q.insertUpgrade(req)
		return m.waitForGrant(t, q, req, func() { q.upgrading = 0; t.GrantRowLock(oid, rid, mode) })
	}

	req := &request{txnID: t.ID, mode: mode}
	q.requests = append(q.requests, req)
	return m.waitForGrant(t, q, req, func() { t.GrantRowLock(oid, rid, mode) })
}

// UnlockRow releases t's lock on row rid of table oid.
func (m *Manager) UnlockRow(t *txn.Transaction, oid txn.OID, rid txn.RID) error {
	q := m.rowQueue(oid, rid)
	q.mu.Lock()
	req := q.find(t.ID)
	if req == nil || !req.granted {
		q.mu.Unlock()
		return abort(t.ID, AttemptedUnlockButNoLockHeld)
	}
	q.removeByTxn(t.ID)
	mode := req.mode
	q.cv.Broadcast()
	q.mu.Unlock()

	t.RevokeRowLock(oid, rid, mode)
	if entersShrinkingOnRelease(t, mode) {
		t.SetState(txn.Shrinking)
	}
	return nil
}

// ReleaseAll drops every lock t holds, table and row, used on
// commit/abort cleanup. Errors from individual unlocks are ignored: a
// transaction finishing up releases whatever it actually holds.
func (m *Manager) ReleaseAll(t *txn.Transaction) {
	for oid, rids := range t.RowLockTables() {
		for _, rid := range rids {
			_ = m.UnlockRow(t, oid, rid)
		}
	}
	for _, oid := range t.TableLockOIDs() {
		_ = m.UnlockTable(t, oid)
	}
}
