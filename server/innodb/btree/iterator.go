package btree

import "github.com/zhukovaskychina/storagecore/server/innodb/page"

// Iterator walks a tree's leaf chain in key order, grounded on
// original_source/storage/index/index_iterator.cpp: a forward cursor
// holding a read latch on exactly one leaf page at a time, crossing
// to the next leaf via its sibling pointer once exhausted.
type Iterator struct {
	t        *BPlusTree
	leafID   page.ID
	leafPage *page.Page
	leaf     *node
	slot     int
	done     bool
}

// Begin opens an iterator positioned at the tree's first key.
func (t *BPlusTree) Begin() *Iterator {
	t.rootLatch.RLock()
	if t.rootID == page.InvalidID {
		t.rootLatch.RUnlock()
		return &Iterator{t: t, done: true}
	}
	curID := t.rootID
	curPage, ok := t.bpm.FetchPage(curID)
	if !ok {
		t.rootLatch.RUnlock()
		return &Iterator{t: t, done: true}
	}
	curPage.Latch.RLatch()
	t.rootLatch.RUnlock()

	n := t.decode(curPage.Data)
	for !n.isLeaf() {
		childID := page.ID(n.values[0])
		childPage, ok := t.bpm.FetchPage(childID)
		if !ok {
			curPage.Latch.RUnlatch()
			t.bpm.UnpinPage(curID, false)
			return &Iterator{t: t, done: true}
		}
		childPage.Latch.RLatch()
		curPage.Latch.RUnlatch()
		t.bpm.UnpinPage(curID, false)
		curPage, curID = childPage, childID
		n = t.decode(curPage.Data)
	}
	return &Iterator{t: t, leafID: curID, leafPage: curPage, leaf: n, slot: 0, done: n.size == 0}
}

// Seek opens an iterator positioned at the first key >= key.
func (t *BPlusTree) Seek(key int64) *Iterator {
	t.rootLatch.RLock()
	if t.rootID == page.InvalidID {
		t.rootLatch.RUnlock()
		return &Iterator{t: t, done: true}
	}
	curID := t.rootID
	curPage, ok := t.bpm.FetchPage(curID)
	if !ok {
		t.rootLatch.RUnlock()
		return &Iterator{t: t, done: true}
	}
	curPage.Latch.RLatch()
	t.rootLatch.RUnlock()

	n := t.decode(curPage.Data)
	for !n.isLeaf() {
		idx := n.findChildIndex(key)
		childID := page.ID(n.values[idx])
		childPage, ok := t.bpm.FetchPage(childID)
		if !ok {
			curPage.Latch.RUnlatch()
			t.bpm.UnpinPage(curID, false)
			return &Iterator{t: t, done: true}
		}
		childPage.Latch.RLatch()
		curPage.Latch.RUnlatch()
		t.bpm.UnpinPage(curID, false)
		curPage, curID = childPage, childID
		n = t.decode(curPage.Data)
	}
	slot, _ := n.findKeyIndex(key)
	it := &Iterator{t: t, leafID: curID, leafPage: curPage, leaf: n, slot: slot}
	if slot >= n.size {
		// every key in this leaf is < key: the first key >= key, if any,
		// is the first key of the next leaf in the chain.
		it.slot = n.size - 1
		it.Next()
	}
	return it
}

// Valid reports whether the cursor is on a key.
func (it *Iterator) Valid() bool { return !it.done }

// Key returns the key at the cursor. Valid must report true.
func (it *Iterator) Key() int64 { return it.leaf.keys[it.slot] }

// Value returns the value at the cursor. Valid must report true.
func (it *Iterator) Value() int64 { return it.leaf.values[it.slot] }

// Next advances the cursor to the next key, crossing into the
// following leaf via the sibling pointer when the current leaf is
// exhausted. Returns false once the iterator runs off the end.
func (it *Iterator) Next() bool {
	if it.done {
		return false
	}
	it.slot++
	if it.slot < it.leaf.size {
		return true
	}

	nextID := it.leaf.nextPageID
	it.leafPage.Latch.RUnlatch()
	it.t.bpm.UnpinPage(it.leafID, false)
	if nextID == page.InvalidID {
		it.done = true
		return false
	}
	nextPage, ok := it.t.bpm.FetchPage(nextID)
	if !ok {
		it.done = true
		return false
	}
	nextPage.Latch.RLatch()
	it.leafID = nextID
	it.leafPage = nextPage
	it.leaf = it.t.decode(nextPage.Data)
	it.slot = 0
	if it.leaf.size == 0 {
		it.done = true
		return false
	}
	return true
}

// Close releases the leaf page the iterator is currently holding, if
// any. Callers that run an iterator to exhaustion via Next need not
// call it, since Next releases the final leaf itself, but any early
// abandonment must call Close to avoid leaking a pinned, latched page.
func (it *Iterator) Close() {
	if it.done || it.leafPage == nil {
		return
	}
	it.leafPage.Latch.RUnlatch()
	it.t.bpm.UnpinPage(it.leafID, false)
	it.done = true
}
