package disk

import (
	"os"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"

	"github.com/zhukovaskychina/storagecore/server/innodb/page"
)

// FileManager is a Manager backed by a single OS file, one fixed-size
// slot per page id. Grounded on the teacher's BlockFile
// (server/innodb/storage/store/blocks/block_file.go), generalized from
// a hardcoded 16KB InnoDB page to the configured PageSize and from a
// per-space file to a monotonic page-id allocator independent of any
// tablespace concept.
type FileManager struct {
	mu       sync.RWMutex
	file     *os.File
	path     string
	pageSize int
	nextPage int32 // atomic
}

// OpenFileManager opens (creating if necessary) path as the backing
// store for pages of size pageSize. If the file already holds pages,
// nextPageID should be set to one past the highest id ever allocated
// (persisted separately by the caller; this core keeps that bookkeeping
// out of scope and always starts a fresh file at page 0).
func OpenFileManager(path string, pageSize int) (*FileManager, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, errors.Wrapf(err, "disk: open %s", path)
	}
	return &FileManager{file: f, path: path, pageSize: pageSize}, nil
}

func (m *FileManager) offset(id page.ID) int64 {
	return int64(id) * int64(m.pageSize)
}

// ReadPage reads the page at id into dst, which must be at least
// PageSize() long. Reading a page past the current end of file returns
// a zeroed buffer rather than an error, the same as a freshly allocated
// page that has never been written.
func (m *FileManager) ReadPage(id page.ID, dst []byte) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n, err := m.file.ReadAt(dst[:m.pageSize], m.offset(id))
	if err != nil && n == 0 {
		// Short/zero read past EOF: treat as a never-written page.
		for i := range dst[:m.pageSize] {
			dst[i] = 0
		}
		return nil
	}
	for i := n; i < m.pageSize; i++ {
		dst[i] = 0
	}
	return nil
}

// WritePage durably writes src (at least PageSize() bytes) to id's slot.
func (m *FileManager) WritePage(id page.ID, src []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := m.file.WriteAt(src[:m.pageSize], m.offset(id)); err != nil {
		return errors.Wrapf(err, "disk: write page %d", id)
	}
	return m.file.Sync()
}

// AllocatePage hands out the next page id, monotonically increasing and
// never reused even after DeallocatePage, matching
// BufferPoolManagerInstance::AllocatePage's next_page_id_++.
func (m *FileManager) AllocatePage() page.ID {
	return page.ID(atomic.AddInt32(&m.nextPage, 1) - 1)
}

// DeallocatePage is a no-op placeholder for reclaiming free space: this
// core never shrinks a file or reuses a freed page id, matching
// BusTub's own DeallocatePage ("does nothing for now").
func (m *FileManager) DeallocatePage(id page.ID) error {
	return nil
}

func (m *FileManager) PageSize() int { return m.pageSize }

func (m *FileManager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.file.Close()
}
