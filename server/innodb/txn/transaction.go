// Package txn defines the transaction handle the lock manager consults
// to decide what a caller may do: its isolation level, its
// growing/shrinking state, and the locks it currently holds.
package txn

import (
	"sync"
)

// IsolationLevel controls which lock modes the lock manager's
// LockTable/LockRow accept, and in which 2PL state, per its
// precondition table.
type IsolationLevel int

const (
	ReadUncommitted IsolationLevel = iota
	ReadCommitted
	RepeatableRead
)

func (l IsolationLevel) String() string {
	switch l {
	case ReadUncommitted:
		return "READ_UNCOMMITTED"
	case ReadCommitted:
		return "READ_COMMITTED"
	case RepeatableRead:
		return "REPEATABLE_READ"
	default:
		return "UNKNOWN"
	}
}

// State is a transaction's position in its two-phase-locking lifecycle.
type State int

const (
	Growing State = iota
	Shrinking
	Committed
	Aborted
)

func (s State) String() string {
	switch s {
	case Growing:
		return "GROWING"
	case Shrinking:
		return "SHRINKING"
	case Committed:
		return "COMMITTED"
	case Aborted:
		return "ABORTED"
	default:
		return "UNKNOWN"
	}
}

// LockMode is the granularity/mode of a held or requested lock.
type LockMode int

const (
	IntentionShared LockMode = iota
	IntentionExclusive
	Shared
	SharedIntentionExclusive
	Exclusive
)

func (m LockMode) String() string {
	switch m {
	case IntentionShared:
		return "IS"
	case IntentionExclusive:
		return "IX"
	case Shared:
		return "S"
	case SharedIntentionExclusive:
		return "SIX"
	case Exclusive:
		return "X"
	default:
		return "UNKNOWN"
	}
}

// OID identifies a lockable table/index (the coarse granularity).
type OID uint32

// RID identifies a lockable row/record within a table (the fine
// granularity).
type RID uint64

// Transaction is the handle the lock manager works with: what a
// transaction is allowed to do right now (State, IsolationLevel) and
// what it already holds (the seven lock-set fields: shared/exclusive/IS/
// IX/SIX at table granularity, plus per-table shared and exclusive row
// sets). Every set is guarded by mu so a transaction's own goroutine
// and the lock manager's background deadlock detector can both inspect
// it safely.
type Transaction struct {
	mu sync.Mutex

	ID        uint64
	Isolation IsolationLevel
	state     State

	sharedTableLocks    map[OID]bool
	exclusiveTableLocks map[OID]bool
	isTableLocks        map[OID]bool
	ixTableLocks        map[OID]bool
	sixTableLocks       map[OID]bool

	sharedRowLocks    map[OID]map[RID]bool
	exclusiveRowLocks map[OID]map[RID]bool
}

// New creates a transaction in the GROWING state.
func New(id uint64, isolation IsolationLevel) *Transaction {
	return &Transaction{
		ID:                  id,
		Isolation:           isolation,
		state:                Growing,
		sharedTableLocks:    make(map[OID]bool),
		exclusiveTableLocks: make(map[OID]bool),
		isTableLocks:        make(map[OID]bool),
		ixTableLocks:        make(map[OID]bool),
		sixTableLocks:       make(map[OID]bool),
		sharedRowLocks:      make(map[OID]map[RID]bool),
		exclusiveRowLocks:   make(map[OID]map[RID]bool),
	}
}

func (t *Transaction) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *Transaction) SetState(s State) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state = s
}

func (t *Transaction) tableSet(mode LockMode) map[OID]bool {
	switch mode {
	case Shared:
		return t.sharedTableLocks
	case Exclusive:
		return t.exclusiveTableLocks
	case IntentionShared:
		return t.isTableLocks
	case IntentionExclusive:
		return t.ixTableLocks
	case SharedIntentionExclusive:
		return t.sixTableLocks
	default:
		return nil
	}
}

// HasTableLock reports whether the transaction currently holds mode on
// table oid.
func (t *Transaction) HasTableLock(oid OID, mode LockMode) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	set := t.tableSet(mode)
	return set != nil && set[oid]
}

// TableLockModes reports every mode currently held on oid, used by the
// lock manager's LockRow to check that some table lock is held before a
// shared row lock is requested.
func (t *Transaction) TableLockModes(oid OID) []LockMode {
	t.mu.Lock()
	defer t.mu.Unlock()
	var modes []LockMode
	for _, m := range []LockMode{IntentionShared, IntentionExclusive, Shared, SharedIntentionExclusive, Exclusive} {
		if set := t.tableSet(m); set != nil && set[oid] {
			modes = append(modes, m)
		}
	}
	return modes
}

func (t *Transaction) GrantTableLock(oid OID, mode LockMode) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if set := t.tableSet(mode); set != nil {
		set[oid] = true
	}
}

func (t *Transaction) RevokeTableLock(oid OID, mode LockMode) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if set := t.tableSet(mode); set != nil {
		delete(set, oid)
	}
}

func (t *Transaction) rowSet(mode LockMode) map[OID]map[RID]bool {
	switch mode {
	case Shared:
		return t.sharedRowLocks
	case Exclusive:
		return t.exclusiveRowLocks
	default:
		return nil
	}
}

func (t *Transaction) HasRowLock(oid OID, rid RID, mode LockMode) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	set := t.rowSet(mode)
	return set != nil && set[oid] != nil && set[oid][rid]
}

func (t *Transaction) GrantRowLock(oid OID, rid RID, mode LockMode) {
	t.mu.Lock()
	defer t.mu.Unlock()
	set := t.rowSet(mode)
	if set == nil {
		return
	}
	if set[oid] == nil {
		set[oid] = make(map[RID]bool)
	}
	set[oid][rid] = true
}

func (t *Transaction) RevokeRowLock(oid OID, rid RID, mode LockMode) {
	t.mu.Lock()
	defer t.mu.Unlock()
	set := t.rowSet(mode)
	if set == nil || set[oid] == nil {
		return
	}
	delete(set[oid], rid)
}

// RowLockTables reports every table oid this transaction holds at
// least one row lock under, used when releasing all of a transaction's
// locks on commit/abort.
func (t *Transaction) RowLockTables() map[OID][]RID {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[OID][]RID)
	for oid, rids := range t.sharedRowLocks {
		for rid := range rids {
			out[oid] = append(out[oid], rid)
		}
	}
	for oid, rids := range t.exclusiveRowLocks {
		for rid := range rids {
			out[oid] = append(out[oid], rid)
		}
	}
	return out
}

// TableLockOIDs reports every table oid this transaction holds any lock
// on, across all five table lock modes.
func (t *Transaction) TableLockOIDs() []OID {
	t.mu.Lock()
	defer t.mu.Unlock()
	seen := make(map[OID]bool)
	for _, set := range []map[OID]bool{t.sharedTableLocks, t.exclusiveTableLocks, t.isTableLocks, t.ixTableLocks, t.sixTableLocks} {
		for oid := range set {
			seen[oid] = true
		}
	}
	out := make([]OID, 0, len(seen))
	for oid := range seen {
		out = append(out, oid)
	}
	return out
}
