package bufferpool

import "sync/atomic"

// Stats counts buffer pool traffic, grounded on the teacher's
// BufferPoolStats (server/innodb/buffer_pool/stats.go), which tracks
// the same hit/miss/IO shape with atomic counters.
type Stats struct {
	hits              int64
	misses            int64
	newPages          int64
	evictionFailures  int64
}

func (s *Stats) recordHit()             { atomic.AddInt64(&s.hits, 1) }
func (s *Stats) recordMiss()            { atomic.AddInt64(&s.misses, 1) }
func (s *Stats) recordNewPage()         { atomic.AddInt64(&s.newPages, 1) }
func (s *Stats) recordEvictionFailure() { atomic.AddInt64(&s.evictionFailures, 1) }

func (s *Stats) snapshot() Stats {
	return Stats{
		hits:             atomic.LoadInt64(&s.hits),
		misses:           atomic.LoadInt64(&s.misses),
		newPages:         atomic.LoadInt64(&s.newPages),
		evictionFailures: atomic.LoadInt64(&s.evictionFailures),
	}
}

func (s Stats) Hits() int64             { return s.hits }
func (s Stats) Misses() int64           { return s.misses }
func (s Stats) NewPages() int64         { return s.newPages }
func (s Stats) EvictionFailures() int64 { return s.evictionFailures }
