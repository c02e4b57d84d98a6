package btree

import "github.com/zhukovaskychina/storagecore/server/innodb/page"

// Remove deletes key, reporting false if it was not present. Write-path
// crabbing mirrors Insert: ancestors are released the instant a safe
// child is found, where "safe" for a delete means the child can lose
// one entry without falling below its minimum occupancy. If it
// cannot, the held ancestors are needed to install a redistributed or
// merged sibling, so they stay latched until the merge finishes
// propagating upward.
func (t *BPlusTree) Remove(key int64) bool {
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
		return false
	}

	rootPage, ok := t.bpm.FetchPage(t.rootID)
	if !ok {
		return false
	}
	rootPage.Latch.WLatch()
	rootN := t.decode(rootPage.Data)
	stack := []frame{{t.rootID, rootPage, rootN}}
	if isSafeDelete(rootN, true) {
		unlockRoot()
	}

	cur := rootN
	for !cur.isLeaf() {
		idx := cur.findChildIndex(key)
		childID := page.ID(cur.values[idx])
		childPage, ok := t.bpm.FetchPage(childID)
		if !ok {
			releaseStack(t.bpm, stack)
			return false
		}
		childPage.Latch.WLatch()
		childN := t.decode(childPage.Data)
		if isSafeDelete(childN, false) {
			releaseStack(t.bpm, stack)
			stack = stack[:0]
			unlockRoot()
		}
		stack = append(stack, frame{childID, childPage, childN})
		cur = childN
	}

	leafFr := stack[len(stack)-1]
	if !leafFr.n.leafRemove(key) {
		releaseStack(t.bpm, stack)
		return false
	}
	t.recordDelete()

	isRoot := len(stack) == 1
	if isRoot && leafFr.n.size == 0 {
		leafFr.p.Latch.WUnlatch()
		t.bpm.UnpinPage(leafFr.id, true)
		t.bpm.DeletePage(leafFr.id)
		t.rootID = page.InvalidID
		t.persistRootID()
		return true
	}
	if isRoot || leafFr.n.size >= leafFr.n.minSize() {
		releaseStack(t.bpm, stack)
		return true
	}

	t.propagateDeleteFixup(stack)
	return true
}

// propagateDeleteFixup repairs the underflowing node at the top of
// stack by redistributing from a sibling if one has a spare entry, or
// merging into a sibling otherwise, walking upward only as far as a
// merge forces it to (a redistribution never changes the parent's
// occupancy, so it always stops the fixup immediately).
func (t *BPlusTree) propagateDeleteFixup(stack []frame) {
	i := len(stack) - 1
	for i > 0 {
		child := stack[i]
		parent := stack[i-1]
		childIdx := parent.n.indexOfChild(child.id)

		var merged bool
		leftSib, leftIdx := t.fetchSibling(parent, childIdx, -1)
		if leftSib != nil {
			merged = t.tryRedistributeOrMerge(parent, leftIdx, leftSib, childIdx, child)
			t.finalize(*leftSib)
			if !merged {
				t.finalize(child)
			}
		} else {
			rightSib, rightIdx := t.fetchSibling(parent, childIdx, +1)
			if rightSib == nil {
				panic("btree: delete fixup found no sibling to redistribute or merge with")
			}
			merged = t.tryRedistributeOrMerge(parent, childIdx, &child, rightIdx, *rightSib)
			t.finalize(child)
			if !merged {
				t.finalize(*rightSib)
			}
		}

		i--
		if !merged {
			break
		}
		isParentRoot := i == 0
		if isParentRoot || parent.n.size >= parent.n.minSize() {
			break
		}
	}

	if i == 0 {
		t.shrinkRootIfNeeded(stack[0])
		i--
	}

	for j := i; j >= 0; j-- {
		t.finalize(stack[j])
	}
}

// fetchSibling fetches and latches the sibling at childIdx+dir under
// parent, returning nil if childIdx+dir is out of range.
func (t *BPlusTree) fetchSibling(parent frame, childIdx, dir int) (*frame, int) {
	sibIdx := childIdx + dir
	if sibIdx < 0 || sibIdx >= len(parent.n.values) {
		return nil, -1
	}
	sibID := page.ID(parent.n.values[sibIdx])
	sibPage, ok := t.bpm.FetchPage(sibID)
	if !ok {
		return nil, -1
	}
	sibPage.Latch.WLatch()
	return &frame{sibID, sibPage, t.decode(sibPage.Data)}, sibIdx
}

// tryRedistributeOrMerge handles the pair (leftIdx, left) / (rightIdx,
// right) that are adjacent children of parent: if left has a spare
// entry it redistributes one into right (or vice versa, depending on
// which side is the underflowing one), otherwise it merges right into
// left and frees right's page. Returns whether a merge happened — the
// caller must not touch right's frame again if so, since its page no
// longer exists.
func (t *BPlusTree) tryRedistributeOrMerge(parent frame, leftIdx int, left *frame, rightIdx int, right frame) bool {
	var oldSeparator int64
	if leftIdx < len(parent.n.keys) {
		oldSeparator = parent.n.keys[leftIdx]
	}
	if left.n.size > left.n.minSize() {
		newSeparator := redistributeFromLeft(left.n, right.n, oldSeparator)
		setParentSeparator(parent.n, leftIdx, left.n, right.n, newSeparator)
		t.recordRedistribution()
		return false
	}
	if right.n.size > right.n.minSize() {
		newSeparator := redistributeFromRight(left.n, right.n, oldSeparator)
		setParentSeparator(parent.n, leftIdx, left.n, right.n, newSeparator)
		t.recordRedistribution()
		return false
	}
	mergeInto(left.n, right.n, oldSeparator)
	parent.n.removeChildAt(rightIdx)
	t.recordMerge()
	right.p.Latch.WUnlatch()
	t.bpm.UnpinPage(right.id, true)
	t.bpm.DeletePage(right.id)
	return true
}

// redistributeFromLeft moves left's last entry to the front of right
// and returns the new parent separator key between them. For a leaf
// pair that is simply right's new first key. For an internal pair, the
// old parent separator descends to become right's new first internal
// key (it now separates the borrowed child from right's former first
// child), and left's former last key — which used to separate the
// borrowed child from the rest of left — ascends to take its place.
func redistributeFromLeft(left, right *node, oldSeparator int64) int64 {
	if left.isLeaf() {
		k, v := left.keys[left.size-1], left.values[left.size-1]
		left.keys, left.values = left.keys[:left.size-1], left.values[:left.size-1]
		left.size--
		right.keys = append([]int64{k}, right.keys...)
		right.values = append([]int64{v}, right.values...)
		right.size++
		return right.keys[0]
	}
	newSeparator := left.keys[left.size-1]
	borrowedChild := left.values[left.size]
	left.keys = left.keys[:left.size-1]
	left.values = left.values[:left.size]
	left.size--

	right.keys = append([]int64{oldSeparator}, right.keys...)
	right.values = append([]int64{borrowedChild}, right.values...)
	right.size++
	return newSeparator
}

// redistributeFromRight moves right's first entry to the end of left
// and returns the new parent separator, mirroring redistributeFromLeft.
func redistributeFromRight(left, right *node, oldSeparator int64) int64 {
	if left.isLeaf() {
		k, v := right.keys[0], right.values[0]
		right.keys, right.values = right.keys[1:], right.values[1:]
		right.size--
		left.keys = append(left.keys, k)
		left.values = append(left.values, v)
		left.size++
		return right.keys[0]
	}
	newSeparator := right.keys[0]
	borrowedChild := right.values[0]
	right.keys = right.keys[1:]
	right.values = right.values[1:]
	right.size--

	left.keys = append(left.keys, oldSeparator)
	left.values = append(left.values, borrowedChild)
	left.size++
	return newSeparator
}

// setParentSeparator installs the new routing key between left and
// right at parent's leftIdx slot.
func setParentSeparator(parent *node, leftIdx int, left, right *node, newSeparator int64) {
	if leftIdx < len(parent.keys) {
		parent.keys[leftIdx] = newSeparator
	}
}

// mergeInto appends right's entries onto left. For a leaf pair this
// just concatenates and relinks left's sibling pointer past right; for
// an internal pair, separator is the parent's routing key between
// left and right, which must be reinserted as the key joining left's
// last child to right's first child.
func mergeInto(left, right *node, separator int64) {
	if left.isLeaf() {
		left.keys = append(left.keys, right.keys...)
		left.values = append(left.values, right.values...)
		left.size += right.size
		left.nextPageID = right.nextPageID
		return
	}
	left.keys = append(left.keys, separator)
	left.keys = append(left.keys, right.keys...)
	left.values = append(left.values, right.values...)
	left.size = len(left.keys)
}

// shrinkRootIfNeeded collapses a root that has been merged down to a
// single child (internal root) or emptied out entirely (leaf root).
func (t *BPlusTree) shrinkRootIfNeeded(root frame) {
	if root.n.isLeaf() {
		t.finalize(root)
		return
	}
	if root.n.size == 0 {
		newRootID := page.ID(root.n.values[0])
		t.bpm.UnpinPage(root.id, true)
		root.p.Latch.WUnlatch()
		t.bpm.DeletePage(root.id)
		t.rootID = newRootID
		t.persistRootID()
		return
	}
	t.finalize(root)
}
