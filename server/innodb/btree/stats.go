package btree

// IndexStatistics tracks runtime counters for one tree, grounded on the
// teacher's plan.IndexStats (server/innodb/plan/statistics.go): this
// core keeps the Cardinality field that stats shares with the teacher
// and adds the split/merge/redistribution counters a B+ tree actually
// needs to report on itself, trimming the optimizer-facing fields
// (ClusterFactor, prefix length) a single-node storage engine has no
// planner to consume.
type IndexStatistics struct {
	Cardinality     int64
	Splits          int64
	Merges          int64
	Redistributions int64
}
