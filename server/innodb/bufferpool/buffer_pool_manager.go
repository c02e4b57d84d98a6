// Package bufferpool implements the buffer pool manager: the only
// component above it that is allowed to pin/unpin/fetch/new/flush/
// delete a page, and the only component that knows both about frames
// (in-memory slots) and pages (on-disk identities).
package bufferpool

import (
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/zhukovaskychina/storagecore/logger"
	"github.com/zhukovaskychina/storagecore/server/innodb/disk"
	"github.com/zhukovaskychina/storagecore/server/innodb/hashtable"
	"github.com/zhukovaskychina/storagecore/server/innodb/page"
	"github.com/zhukovaskychina/storagecore/server/innodb/replacer"
)

// Manager owns a fixed set of frames, a disk manager to back them, and
// an LRU-K replacer to pick eviction victims. Grounded on
// BufferPoolManagerInstance (original_source/buffer/buffer_pool_manager_instance.cpp):
// same victim order (free list, then replacer eviction with dirty
// writeback before reuse), same five-method contract.
type Manager struct {
	mu sync.Mutex

	disk     disk.Manager
	replacer *replacer.LRUK
	frames   []*page.Page
	freeList []replacer.FrameID
	pageTbl  *hashtable.Table[page.ID, replacer.FrameID]

	stats Stats
}

// New creates a buffer pool of numFrames frames over disk, using K as
// the LRU-K replacer's history length.
func New(numFrames, k int, diskMgr disk.Manager) *Manager {
	frames := make([]*page.Page, numFrames)
	free := make([]replacer.FrameID, numFrames)
	for i := 0; i < numFrames; i++ {
		frames[i] = page.New(page.InvalidID, diskMgr.PageSize())
		free[i] = replacer.FrameID(i)
	}
	return &Manager{
		disk:     diskMgr,
		replacer: replacer.New(numFrames, k),
		frames:   frames,
		freeList: free,
		pageTbl:  hashtable.New[page.ID, replacer.FrameID](8, hashPageID),
	}
}

func hashPageID(id page.ID) uint64 { return hashtable.HashInt32(int32(id)) }

// victim finds a free or evictable frame, writing back and evicting a
// dirty page if necessary. Caller must hold m.mu.
func (m *Manager) victim() (replacer.FrameID, bool) {
	if n := len(m.freeList); n > 0 {
		fid := m.freeList[n-1]
		m.freeList = m.freeList[:n-1]
		return fid, true
	}
	fid, ok := m.replacer.Evict()
	if !ok {
		m.stats.recordEvictionFailure()
		logger.Warnf("bufferpool: no evictable frame, pool exhausted (%d frames)", len(m.frames))
		return 0, false
	}
	victimPage := m.frames[fid]
	if victimPage.IsDirty {
		if err := m.disk.WritePage(victimPage.ID, victimPage.Data); err != nil {
			logger.Errorf("bufferpool: writeback failed for page %d: %v", victimPage.ID, err)
		}
	}
	m.pageTbl.Remove(victimPage.ID)
	return fid, true
}

// NewPage allocates a brand new page, pins it, and returns it.
func (m *Manager) NewPage() (*page.Page, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	fid, ok := m.victim()
	if !ok {
		return nil, false
	}
	id := m.disk.AllocatePage()
	p := m.frames[fid]
	p.Reset(id)
	p.PinCount = 1

	m.pageTbl.Insert(id, fid)
	m.replacer.RecordAccess(fid)
	m.replacer.SetEvictable(fid, false)
	m.stats.recordNewPage()
	logger.Debugf("bufferpool: new page %d in frame %d", id, fid)
	return p, true
}

// FetchPage pins and returns the page with the given id, reading it
// from disk if it isn't already resident.
func (m *Manager) FetchPage(id page.ID) (*page.Page, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if fid, ok := m.pageTbl.Find(id); ok {
		p := m.frames[fid]
		p.PinCount++
		m.replacer.RecordAccess(fid)
		m.replacer.SetEvictable(fid, false)
		m.stats.recordHit()
		return p, true
	}
	m.stats.recordMiss()

	fid, ok := m.victim()
	if !ok {
		return nil, false
	}
	p := m.frames[fid]
	p.Reset(id)
	if err := m.disk.ReadPage(id, p.Data); err != nil {
		logger.Errorf("bufferpool: read failed for page %d: %v", id, err)
		m.freeList = append(m.freeList, fid)
		return nil, false
	}
	p.PinCount = 1

	m.pageTbl.Insert(id, fid)
	m.replacer.RecordAccess(fid)
	m.replacer.SetEvictable(fid, false)
	logger.Debugf("bufferpool: fetched page %d into frame %d", id, fid)
	return p, true
}

// UnpinPage decrements id's pin count, marking it evictable once the
// count reaches zero. isDirty is OR'd into the page's dirty flag, never
// cleared here, since another pinner may have written to it too.
func (m *Manager) UnpinPage(id page.ID, isDirty bool) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	fid, ok := m.pageTbl.Find(id)
	if !ok {
		return false
	}
	p := m.frames[fid]
	if p.PinCount <= 0 {
		return false
	}
	if isDirty {
		p.IsDirty = true
	}
	p.PinCount--
	if p.PinCount == 0 {
		m.replacer.SetEvictable(fid, true)
	}
	return true
}

// FlushPage writes id's current contents to disk unconditionally,
// whether or not it is dirty.
func (m *Manager) FlushPage(id page.ID) bool {
	m.mu.Lock()
	fid, ok := m.pageTbl.Find(id)
	if !ok {
		m.mu.Unlock()
		return false
	}
	p := m.frames[fid]
	m.mu.Unlock()

	p.Latch.RLatch()
	data := append([]byte(nil), p.Data...)
	p.Latch.RUnlatch()

	if err := m.disk.WritePage(id, data); err != nil {
		logger.Errorf("bufferpool: flush failed for page %d: %v", id, err)
		return false
	}
	m.mu.Lock()
	p.IsDirty = false
	m.mu.Unlock()
	return true
}

// FlushAllPages flushes every resident page, fanning out across a
// bounded worker pool with errgroup rather than holding the pool's
// global mutex for the whole disk-bound operation.
func (m *Manager) FlushAllPages() error {
	m.mu.Lock()
	ids := make([]page.ID, 0, len(m.frames))
	for _, p := range m.frames {
		if p.ID != page.InvalidID {
			ids = append(ids, p.ID)
		}
	}
	m.mu.Unlock()

	var g errgroup.Group
	g.SetLimit(8)
	for _, id := range ids {
		id := id
		g.Go(func() error {
			m.FlushPage(id)
			return nil
		})
	}
	return g.Wait()
}

// DeletePage removes id from the pool entirely, failing if it is
// currently pinned. Deallocates the backing page id on disk too.
func (m *Manager) DeletePage(id page.ID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	fid, ok := m.pageTbl.Find(id)
	if !ok {
		return true
	}
	p := m.frames[fid]
	if p.PinCount > 0 {
		return false
	}
	m.replacer.Remove(fid)
	m.pageTbl.Remove(id)
	m.freeList = append(m.freeList, fid)
	p.Reset(page.InvalidID)
	if err := m.disk.DeallocatePage(id); err != nil {
		logger.Warnf("bufferpool: deallocate failed for page %d: %v", id, err)
	}
	return true
}

// Stats returns a snapshot of the pool's hit/miss/eviction counters.
func (m *Manager) Stats() Stats {
	return m.stats.snapshot()
}
