// Package disk provides the storage engine's only collaborator that
// actually touches durable media: reading and writing fixed-size pages
// by id, and handing out fresh page ids. The buffer pool is the sole
// caller; nothing above it ever sees a file handle.
package disk

import "github.com/zhukovaskychina/storagecore/server/innodb/page"

// Manager reads and writes whole pages by id and allocates new page
// ids. Implementations need not be safe for concurrent AllocatePage and
// ReadPage/WritePage calls to interleave arbitrarily fast, but must be
// goroutine-safe, since the buffer pool may call into a Manager from
// multiple frames' eviction paths concurrently.
type Manager interface {
	ReadPage(id page.ID, dst []byte) error
	WritePage(id page.ID, src []byte) error
	AllocatePage() page.ID
	DeallocatePage(id page.ID) error
	PageSize() int
	Close() error
}
