// Package replacer implements frame-eviction policy for the buffer
// pool. The only implementation is an LRU-K replacer: frames seen fewer
// than K times sit in a FIFO "cold" queue behind any frame that has
// crossed K accesses and moved to an LRU-ordered "warm" queue, so a
// single scan can't evict a frame that's genuinely hot.
package replacer

import (
	"container/list"
	"fmt"
	"sync"
)

// FrameID is a buffer pool frame index, not a page id.
type FrameID int32

// LRUK tracks access history for up to numFrames frames and picks
// eviction victims by preferring the earliest-first-accessed frame among
// those that have been accessed fewer than K times (the "cold" queue,
// FIFO ordered by first access) over frames with K or more accesses
// (the "warm" queue, LRU ordered). This mirrors the backward k-distance
// idea: a frame accessed only once looks infinitely far in the past
// compared to one with a real k-th-most-recent-access distance, so cold
// frames are always evicted before warm ones.
type LRUK struct {
	mu sync.Mutex

	k         int
	numFrames int
	curSize   int // count of frames currently marked evictable

	counts    map[FrameID]int
	evictable map[FrameID]bool

	cold     *list.List
	warm     *list.List
	coldElem map[FrameID]*list.Element
	warmElem map[FrameID]*list.Element
}

// New creates a replacer that can track at most numFrames distinct
// frames, promoting a frame from cold to warm once it has been
// recorded k times.
func New(numFrames, k int) *LRUK {
	if k < 1 {
		k = 1
	}
	return &LRUK{
		k:         k,
		numFrames: numFrames,
		counts:    make(map[FrameID]int),
		evictable: make(map[FrameID]bool),
		cold:      list.New(),
		warm:      list.New(),
		coldElem:  make(map[FrameID]*list.Element),
		warmElem:  make(map[FrameID]*list.Element),
	}
}

// RecordAccess registers an access to frameID, the first step of
// fetching or creating a page in that frame. The buffer pool calls this
// on every Fetch/New, evictable or not.
func (r *LRUK) RecordAccess(frameID FrameID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	count, tracked := r.counts[frameID]
	if !tracked {
		if len(r.counts) >= r.numFrames {
			panic(fmt.Sprintf("replacer: cannot track frame %d, already tracking %d frames at capacity %d", frameID, len(r.counts), r.numFrames))
		}
		r.counts[frameID] = 1
		if 1 >= r.k {
			r.warmElem[frameID] = r.warm.PushBack(frameID)
		} else {
			r.coldElem[frameID] = r.cold.PushBack(frameID)
		}
		return
	}

	newCount := count + 1
	r.counts[frameID] = newCount
	switch {
	case count >= r.k:
		// already warm: move to the back as the most-recently-used.
		r.warm.MoveToBack(r.warmElem[frameID])
	case newCount >= r.k:
		// crosses the K threshold on this access: migrate cold -> warm.
		elem := r.coldElem[frameID]
		r.cold.Remove(elem)
		delete(r.coldElem, frameID)
		r.warmElem[frameID] = r.warm.PushBack(frameID)
	default:
		// stays cold; cold order is fixed at first-access order.
	}
}

// SetEvictable marks frameID as eligible (or not) for Evict to pick.
// The buffer pool calls this with false while a page is pinned and true
// the moment its pin count drops to zero.
func (r *LRUK) SetEvictable(frameID FrameID, evictable bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.counts[frameID]; !ok {
		panic(fmt.Sprintf("replacer: SetEvictable on untracked frame %d", frameID))
	}
	was := r.evictable[frameID]
	if was == evictable {
		return
	}
	r.evictable[frameID] = evictable
	if evictable {
		r.curSize++
	} else {
		r.curSize--
	}
}

// Evict picks the best eviction victim: the frontmost evictable frame in
// the cold queue, or if none, the frontmost evictable frame in the warm
// queue. It reports false if no frame is currently evictable.
func (r *LRUK) Evict() (FrameID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.curSize == 0 {
		return 0, false
	}
	if fid, ok := r.evictFrom(r.cold, r.coldElem); ok {
		return fid, true
	}
	return r.evictFrom(r.warm, r.warmElem)
}

func (r *LRUK) evictFrom(l *list.List, elems map[FrameID]*list.Element) (FrameID, bool) {
	for e := l.Front(); e != nil; e = e.Next() {
		fid := e.Value.(FrameID)
		if !r.evictable[fid] {
			continue
		}
		l.Remove(e)
		delete(elems, fid)
		delete(r.counts, fid)
		delete(r.evictable, fid)
		r.curSize--
		return fid, true
	}
	return 0, false
}

// Remove stops tracking frameID entirely, used when the buffer pool
// hands a frame back to the free list via DeletePage. It panics if the
// frame is still marked non-evictable (i.e. still pinned), the same
// invariant BusTub enforces with BUSTUB_ASSERT.
func (r *LRUK) Remove(frameID FrameID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	count, tracked := r.counts[frameID]
	if !tracked {
		return
	}
	if !r.evictable[frameID] {
		panic(fmt.Sprintf("replacer: Remove called on non-evictable (still pinned) frame %d", frameID))
	}
	if count >= r.k {
		elem := r.warmElem[frameID]
		r.warm.Remove(elem)
		delete(r.warmElem, frameID)
	} else {
		elem := r.coldElem[frameID]
		r.cold.Remove(elem)
		delete(r.coldElem, frameID)
	}
	delete(r.counts, frameID)
	delete(r.evictable, frameID)
	r.curSize--
}

// Size reports how many frames are currently evictable.
func (r *LRUK) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.curSize
}
