package disk

import (
	"sync"
	"sync/atomic"

	"github.com/zhukovaskychina/storagecore/server/innodb/page"
)

// MemManager is an in-memory Manager double for unit tests that must
// not touch the filesystem. It implements the same contract as
// FileManager without durability.
type MemManager struct {
	mu       sync.RWMutex
	pages    map[page.ID][]byte
	pageSize int
	nextPage int32 // atomic
}

func NewMemManager(pageSize int) *MemManager {
	return &MemManager{pages: make(map[page.ID][]byte), pageSize: pageSize}
}

func (m *MemManager) ReadPage(id page.ID, dst []byte) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if buf, ok := m.pages[id]; ok {
		copy(dst[:m.pageSize], buf)
		return nil
	}
	for i := range dst[:m.pageSize] {
		dst[i] = 0
	}
	return nil
}

func (m *MemManager) WritePage(id page.ID, src []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	buf := make([]byte, m.pageSize)
	copy(buf, src[:m.pageSize])
	m.pages[id] = buf
	return nil
}

func (m *MemManager) AllocatePage() page.ID {
	return page.ID(atomic.AddInt32(&m.nextPage, 1) - 1)
}

func (m *MemManager) DeallocatePage(id page.ID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.pages, id)
	return nil
}

func (m *MemManager) PageSize() int { return m.pageSize }

func (m *MemManager) Close() error { return nil }
