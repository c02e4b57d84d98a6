// Package btree implements a disk-backed B+ tree index with latch
// crabbing: reader descents release a parent's latch the instant a
// child is latched, writer descents hold ancestors until a child is
// proven safe, and every structural change (split, coalesce,
// redistribute) propagates upward only as far as actually needed.
package btree

import (
	"sync"

	"github.com/pkg/errors"

	"github.com/zhukovaskychina/storagecore/logger"
	"github.com/zhukovaskychina/storagecore/server/innodb/bufferpool"
	"github.com/zhukovaskychina/storagecore/server/innodb/page"
)

// ErrOutOfPages is returned when the buffer pool cannot produce a new
// page (every frame pinned, pool exhausted) mid-operation.
var ErrOutOfPages = errors.New("btree: buffer pool out of pages")

// BPlusTree is one named index over int64 keys mapping to int64 record
// ids. Grounded on original_source/storage/index/b_plus_tree.cpp; the
// root page id is itself latched independently of any node page,
// mirroring BusTub's root_page_id_latch_, since readers and writers
// must agree on which page is currently the root before they can even
// begin descending.
type BPlusTree struct {
	bpm *bufferpool.Manager

	name        string
	leafMax     int
	internalMax int

	rootLatch sync.RWMutex
	rootID    page.ID

	stats   IndexStatistics
	statsMu sync.Mutex
}

// frame is one page held during a crabbed descent: its id, its pinned
// and latched page, and the node decoded from it.
type frame struct {
	id page.ID
	p  *page.Page
	n  *node
}

// NewBPlusTree opens (or creates, if no header record exists yet) the
// named index over bpm. leafMax/internalMax bound how many entries a
// leaf/internal page may hold before it must split.
func NewBPlusTree(name string, bpm *bufferpool.Manager, leafMax, internalMax int) (*BPlusTree, error) {
	t := &BPlusTree{bpm: bpm, name: name, leafMax: leafMax, internalMax: internalMax, rootID: page.InvalidID}

	hp, ok := bpm.FetchPage(page.HeaderPageID)
	if !ok {
		return nil, errors.New("btree: cannot fetch header page")
	}
	header := page.NewHeaderPage(hp)
	if rootID, err := header.GetRootID(name); err == nil {
		t.rootID = rootID
	}
	bpm.UnpinPage(page.HeaderPageID, false)
	return t, nil
}

// decode reads a node out of a page's bytes and restores its configured
// maxSize. The on-page encoding (decodeNode) does not carry maxSize —
// every leaf in this tree shares t.leafMax and every internal node
// shares t.internalMax, so the tree itself is the source of truth for
// it rather than the page, the same way BusTub's LeafPage/InternalPage
// get max_size_ injected by the tree at Init time rather than reading
// it back off disk. Every fetch-then-decode in this package must go
// through this instead of calling decodeNode directly, or isFull/
// minSize silently operate against a zeroed maxSize.
func (t *BPlusTree) decode(data []byte) *node {
	n := decodeNode(data)
	if n.isLeaf() {
		n.maxSize = t.leafMax
	} else {
		n.maxSize = t.internalMax
	}
	return n
}

func (t *BPlusTree) persistRootID() {
	hp, ok := t.bpm.FetchPage(page.HeaderPageID)
	if !ok {
		logger.Errorf("btree: cannot fetch header page to persist root id for %q", t.name)
		return
	}
	header := page.NewHeaderPage(hp)
	if !header.UpdateRecord(t.name, t.rootID) {
		header.InsertRecord(t.name, t.rootID)
	}
	t.bpm.UnpinPage(page.HeaderPageID, true)
}

// IsEmpty reports whether the tree currently has no root.
func (t *BPlusTree) IsEmpty() bool {
	t.rootLatch.RLock()
	defer t.rootLatch.RUnlock()
	return t.rootID == page.InvalidID
}

// GetValue looks up key, descending with read-crabbing: a parent's
// latch is released the instant its child is latched, so readers never
// hold more than two page latches (and the root-id latch) at once.
func (t *BPlusTree) GetValue(key int64) (int64, bool) {
	t.rootLatch.RLock()
	if t.rootID == page.InvalidID {
		t.rootLatch.RUnlock()
		return 0, false
	}
	curID := t.rootID
	curPage, ok := t.bpm.FetchPage(curID)
	if !ok {
		t.rootLatch.RUnlock()
		return 0, false
	}
	curPage.Latch.RLatch()
	t.rootLatch.RUnlock()

	for {
		n := t.decode(curPage.Data)
		if n.isLeaf() {
			v, found := n.leafGet(key)
			curPage.Latch.RUnlatch()
			t.bpm.UnpinPage(curID, false)
			return v, found
		}
		idx := n.findChildIndex(key)
		childID := page.ID(n.values[idx])
		childPage, ok := t.bpm.FetchPage(childID)
		if !ok {
			curPage.Latch.RUnlatch()
			t.bpm.UnpinPage(curID, false)
			return 0, false
		}
		childPage.Latch.RLatch()
		curPage.Latch.RUnlatch()
		t.bpm.UnpinPage(curID, false)
		curPage, curID = childPage, childID
	}
}

func isSafeInsert(n *node) bool { return !n.isFull() }

// isSafeDelete reports whether n can lose one entry without falling
// below its minimum occupancy. The root has no minimum, but a root with
// a single entry is not safe: losing it empties a leaf root or collapses
// an internal root onto its only child, and either change rewrites the
// root page id, which needs the root-id latch held.
func isSafeDelete(n *node, isRoot bool) bool {
	if isRoot {
		return n.size > 1
	}
	return n.size > n.minSize()
}

// Insert adds (key, value), reporting false if key already exists.
// Write-path crabbing: each fetched child is checked for safety before
// descending further; as soon as a safe node is found, every ancestor
// above it (and the root-id latch, if still held) is released, since
// nothing above a safe node can possibly need to change.
func (t *BPlusTree) Insert(key, value int64) (bool, error) {
	t.rootLatch.Lock()
	rootHeld := true
	unlockRoot := func() {
		if rootHeld {
			t.rootLatch.Unlock()
			rootHeld = false
		}
	}
	defer unlockRoot()

	if t.rootID == page.InvalidID {
		p, ok := t.bpm.NewPage()
		if !ok {
			return false, ErrOutOfPages
		}
		n := newLeaf(t.leafMax)
		n.leafInsert(key, value)
		n.encodeInto(p.Data)
		t.bpm.UnpinPage(p.ID, true)
		t.rootID = p.ID
		t.persistRootID()
		t.recordInsert()
		return true, nil
	}

	rootPage, ok := t.bpm.FetchPage(t.rootID)
	if !ok {
		return false, ErrOutOfPages
	}
	rootPage.Latch.WLatch()
	rootN := t.decode(rootPage.Data)
	stack := []frame{{t.rootID, rootPage, rootN}}
	if isSafeInsert(rootN) {
		unlockRoot()
	}

	cur := rootN
	for !cur.isLeaf() {
		idx := cur.findChildIndex(key)
		childID := page.ID(cur.values[idx])
		childPage, ok := t.bpm.FetchPage(childID)
		if !ok {
			releaseStack(t.bpm, stack)
			return false, ErrOutOfPages
		}
		childPage.Latch.WLatch()
		childN := t.decode(childPage.Data)
		if isSafeInsert(childN) {
			releaseStack(t.bpm, stack)
			stack = stack[:0]
			unlockRoot()
		}
		stack = append(stack, frame{childID, childPage, childN})
		cur = childN
	}

	leafFr := stack[len(stack)-1]
	if !leafFr.n.leafInsert(key, value) {
		releaseStack(t.bpm, stack)
		return false, nil
	}
	if leafFr.n.size <= leafFr.n.maxSize {
		releaseStack(t.bpm, stack)
		t.recordInsert()
		return true, nil
	}

	t.propagateInsertSplit(stack)
	t.recordInsert()
	t.recordSplit()
	return true, nil
}

func (t *BPlusTree) finalize(f frame) {
	f.n.encodeInto(f.p.Data)
	f.p.Latch.WUnlatch()
	t.bpm.UnpinPage(f.id, true)
}

func releaseStack(bpm *bufferpool.Manager, stack []frame) {
	for _, f := range stack {
		f.n.encodeInto(f.p.Data)
		f.p.Latch.WUnlatch()
		bpm.UnpinPage(f.id, true)
	}
}

// propagateInsertSplit splits the overflowing leaf at the top of stack
// and walks upward installing the promoted separator key into each
// ancestor, splitting that ancestor too if it overflows, stopping the
// instant an ancestor has room. If the split reaches past the root, a
// new root is installed over the old root and its new sibling.
func (t *BPlusTree) propagateInsertSplit(stack []frame) {
	i := len(stack) - 1
	cur := stack[i]
	newSiblingID, splitKey := t.splitNode(cur)
	t.finalize(cur)
	i--

	rootSplit := true
	for i >= 0 {
		parent := stack[i]
		childIdx := parent.n.indexOfChild(cur.id)
		parent.n.internalInsertAfter(childIdx, splitKey, int64(newSiblingID))
		if parent.n.size <= parent.n.maxSize {
			t.finalize(parent)
			i--
			rootSplit = false
			break
		}
		newSiblingID, splitKey = t.splitNode(parent)
		t.finalize(parent)
		cur = parent
		i--
	}

	for j := i; j >= 0; j-- {
		t.finalize(stack[j])
	}

	if rootSplit {
		t.installNewRoot(cur.id, newSiblingID, splitKey)
	}
}

// splitNode moves the upper half of f's entries into a freshly
// allocated sibling page, mutating f.n to keep only the lower half,
// and returns the new sibling's id and the key that must be promoted
// to the parent (the new leaf's first key, or the internal node's
// removed middle key).
func (t *BPlusTree) splitNode(f frame) (page.ID, int64) {
	n := f.n
	newPage, ok := t.bpm.NewPage()
	if !ok {
		panic("btree: out of pages mid-split")
	}

	var splitKey int64
	if n.isLeaf() {
		mid := n.minSize()
		sib := newLeaf(n.maxSize)
		sib.keys = append([]int64(nil), n.keys[mid:]...)
		sib.values = append([]int64(nil), n.values[mid:]...)
		sib.size = len(sib.keys)
		sib.nextPageID = n.nextPageID

		n.keys = n.keys[:mid]
		n.values = n.values[:mid]
		n.size = mid
		n.nextPageID = newPage.ID

		sib.encodeInto(newPage.Data)
		splitKey = sib.keys[0]
	} else {
		mid := n.size / 2
		splitKey = n.keys[mid]
		sib := newInternal(n.maxSize)
		sib.keys = append([]int64(nil), n.keys[mid+1:]...)
		sib.values = append([]int64(nil), n.values[mid+1:]...)
		sib.size = len(sib.keys)

		n.keys = n.keys[:mid]
		n.values = n.values[:mid+1]
		n.size = mid

		sib.encodeInto(newPage.Data)
	}
	t.bpm.UnpinPage(newPage.ID, true)
	return newPage.ID, splitKey
}

func (t *BPlusTree) installNewRoot(leftID, rightID page.ID, key int64) {
	newPage, ok := t.bpm.NewPage()
	if !ok {
		panic("btree: out of pages installing new root")
	}
	n := newInternal(t.internalMax)
	n.keys = []int64{key}
	n.values = []int64{int64(leftID), int64(rightID)}
	n.size = 1
	n.encodeInto(newPage.Data)
	t.bpm.UnpinPage(newPage.ID, true)

	t.rootID = newPage.ID
	t.persistRootID()
}

func (t *BPlusTree) recordInsert() {
	t.statsMu.Lock()
	t.stats.Cardinality++
	t.statsMu.Unlock()
}

func (t *BPlusTree) recordSplit() {
	t.statsMu.Lock()
	t.stats.Splits++
	t.statsMu.Unlock()
}

func (t *BPlusTree) recordDelete() {
	t.statsMu.Lock()
	t.stats.Cardinality--
	t.statsMu.Unlock()
}

func (t *BPlusTree) recordMerge() {
	t.statsMu.Lock()
	t.stats.Merges++
	t.statsMu.Unlock()
}

func (t *BPlusTree) recordRedistribution() {
	t.statsMu.Lock()
	t.stats.Redistributions++
	t.statsMu.Unlock()
}

// Stats returns a snapshot of the tree's index statistics.
func (t *BPlusTree) Stats() IndexStatistics {
	t.statsMu.Lock()
	defer t.statsMu.Unlock()
	return t.stats
}
