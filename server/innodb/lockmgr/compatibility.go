package lockmgr

import "github.com/zhukovaskychina/storagecore/server/innodb/txn"

// compatible reports whether held and requested may both be granted on
// the same resource at the same time, per the standard five-mode
// multi-granularity compatibility matrix (IS/IX/S/SIX/X).
func compatible(held, requested txn.LockMode) bool {
	row := compatMatrix[held]
	return row[requested]
}

var compatMatrix = map[txn.LockMode][5]bool{
	// order: IS, IX, S, SIX, X
	txn.IntentionShared:          {true, true, true, true, false},
	txn.IntentionExclusive:       {true, true, false, false, false},
	txn.Shared:                   {true, false, true, false, false},
	txn.SharedIntentionExclusive: {true, false, false, false, false},
	txn.Exclusive:                {false, false, false, false, false},
}

func init() {
	// compatMatrix is indexed into with a LockMode as both key and
	// array index; guard against the iota order ever changing under us.
	order := []txn.LockMode{txn.IntentionShared, txn.IntentionExclusive, txn.Shared, txn.SharedIntentionExclusive, txn.Exclusive}
	for i, m := range order {
		if int(m) != i {
			panic("lockmgr: txn.LockMode iota order no longer matches compatMatrix column order")
		}
	}
}

// compatibleWithAll reports whether requested may be granted alongside
// every mode already held/granted in modes.
func compatibleWithAll(modes []txn.LockMode, requested txn.LockMode) bool {
	for _, m := range modes {
		if !compatible(m, requested) {
			return false
		}
	}
	return true
}

// upgradeAllowed reports whether a transaction holding curr may
// directly upgrade to next, per the upgrade lattice
// IS -> {S, X, IX, SIX}, S -> {SIX, X}, IX -> {SIX, X}, SIX -> {X}.
// Any other pair (including curr == next, handled separately by the
// caller as a no-op) is not a valid upgrade.
func upgradeAllowed(curr, next txn.LockMode) bool {
	allowed, ok := upgradeLattice[curr]
	if !ok {
		return false
	}
	for _, m := range allowed {
		if m == next {
			return true
		}
	}
	return false
}

var upgradeLattice = map[txn.LockMode][]txn.LockMode{
	txn.IntentionShared:          {txn.Shared, txn.Exclusive, txn.IntentionExclusive, txn.SharedIntentionExclusive},
	txn.Shared:                   {txn.Exclusive, txn.SharedIntentionExclusive},
	txn.IntentionExclusive:       {txn.Exclusive, txn.SharedIntentionExclusive},
	txn.SharedIntentionExclusive: {txn.Exclusive},
}
