package lockmgr

import (
	"sync"

	"github.com/zhukovaskychina/storagecore/server/innodb/txn"
)

// request is one transaction's ask for a lock on a single resource
// (table or row), FIFO-ordered within its queue except that an upgrade
// request is spliced in ahead of not-yet-granted requests.
type request struct {
	txnID   uint64
	mode    txn.LockMode
	granted bool
}

// queue serializes every lock/unlock against one resource (a table oid
// or a single row). Grounded on the teacher's LockInfo
// (server/innodb/manager/lock_manager.go), generalized from a single
// WaitChan per request to a shared condition variable the way BusTub's
// LockRequestQueue does, since a Go cond lets any waiter re-check the
// full queue on every wakeup instead of needing a fan-out of channels.
type queue struct {
	mu        sync.Mutex
	cv        *sync.Cond
	requests  []*request
	upgrading uint64 // txn id currently mid-upgrade on this queue, 0 if none
}

func newQueue() *queue {
	q := &queue{}
	q.cv = sync.NewCond(&q.mu)
	return q
}

// grantedModes returns the modes currently granted on this queue,
// excluding a request belonging to excludeTxn (used while checking
// whether a transaction's own upgrade request is compatible with
// everyone else's grants).
func (q *queue) grantedModes(excludeTxn uint64) []txn.LockMode {
	var modes []txn.LockMode
	for _, r := range q.requests {
		if r.granted && r.txnID != excludeTxn {
			modes = append(modes, r.mode)
		}
	}
	return modes
}

// frontUngranted reports whether req is the earliest ungranted request
// in the queue, i.e. no other waiter has priority over it. Upgrade
// requests are spliced in immediately after the last granted request,
// so they are always "earliest" relative to fresh waiters behind them.
func (q *queue) frontUngranted(req *request) bool {
	for _, r := range q.requests {
		if r == req {
			return true
		}
		if !r.granted {
			return false
		}
	}
	return false
}

func (q *queue) find(txnID uint64) *request {
	for _, r := range q.requests {
		if r.txnID == txnID {
			return r
		}
	}
	return nil
}

func (q *queue) removeByTxn(txnID uint64) {
	for i, r := range q.requests {
		if r.txnID == txnID {
			q.requests = append(q.requests[:i], q.requests[i+1:]...)
			return
		}
	}
}

// insertUpgrade splices an ungranted upgrade request in right after
// the last currently-granted request, ahead of any fresh waiter —
// BusTub grants upgrade priority over FIFO for exactly this reason.
func (q *queue) insertUpgrade(req *request) {
	insertAt := len(q.requests)
	for i, r := range q.requests {
		if !r.granted {
			insertAt = i
			break
		}
	}
	q.requests = append(q.requests, nil)
	copy(q.requests[insertAt+1:], q.requests[insertAt:])
	q.requests[insertAt] = req
}
