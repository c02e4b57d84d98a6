package btree

import (
	"encoding/binary"

	"github.com/zhukovaskychina/storagecore/server/innodb/page"
)

// NodeType tags a tree page as a leaf or an internal node, the
// generalization SPEC_FULL.md's REDESIGN guidance calls for in place of
// BusTub's separate LeafPage/InternalPage C++ template instantiations.
type NodeType uint8

const (
	LeafNode     NodeType = 1
	InternalNode NodeType = 2
)

const nodeHeaderLen = 1 + 2 + 4 // type, size, nextPageID (leaf only)

// node is a decoded B+ tree page: an internal node with Size keys and
// Size+1 children, or a leaf with Size keys and Size values plus a
// sibling pointer. Keys and values are fixed at int64 — an index key
// and a record id — rather than generic types, since a genuinely
// generic on-page layout would need the kind of template/memcpy
// machinery BusTub gets from C++ and Go does not; callers that need a
// different key type encode it as an int64 themselves before calling
// Insert/GetValue.
type node struct {
	typ        NodeType
	size       int
	maxSize    int
	nextPageID page.ID // leaf only; InvalidID if this is the rightmost leaf
	keys       []int64
	// values holds record ids for a leaf (len == size) or child page ids
	// for an internal node (len == size+1, values[0] is the leftmost
	// child with no associated key).
	values []int64
}

func newLeaf(maxSize int) *node {
	return &node{typ: LeafNode, maxSize: maxSize, nextPageID: page.InvalidID}
}

func newInternal(maxSize int) *node {
	return &node{typ: InternalNode, maxSize: maxSize}
}

func (n *node) isLeaf() bool { return n.typ == LeafNode }

// minSize is the fewest entries a non-root node may fall to before a
// delete must coalesce or redistribute: ceil(maxSize/2) for a leaf, and
// ceil(maxSize/2)-1 for an internal node's key count (its child count
// ceil(maxSize/2)).
func (n *node) minSize() int {
	if n.isLeaf() {
		return (n.maxSize + 1) / 2
	}
	return (n.maxSize+1)/2 - 1
}

func (n *node) isFull() bool {
	if n.isLeaf() {
		return n.size >= n.maxSize
	}
	return n.size >= n.maxSize // size counts keys; size+1 children allowed up to maxSize+1
}

// decodeNode reads a node out of a page's raw bytes. It does not (and
// cannot) restore maxSize, which is not part of the on-page encoding —
// callers within the btree package must go through
// (*BPlusTree).decode, which fills it back in from the tree's
// configured leafMax/internalMax, never this function directly.
func decodeNode(data []byte) *node {
	n := &node{}
	n.typ = NodeType(data[0])
	n.size = int(binary.BigEndian.Uint16(data[1:]))
	n.nextPageID = page.ID(int32(binary.BigEndian.Uint32(data[3:])))

	off := nodeHeaderLen
	n.keys = make([]int64, n.size)
	for i := 0; i < n.size; i++ {
		n.keys[i] = int64(binary.BigEndian.Uint64(data[off:]))
		off += 8
	}
	valCount := n.size
	if n.typ == InternalNode {
		valCount = n.size + 1
	}
	n.values = make([]int64, valCount)
	for i := 0; i < valCount; i++ {
		n.values[i] = int64(binary.BigEndian.Uint64(data[off:]))
		off += 8
	}
	return n
}

// encodeInto writes n's contents into data, which must be at least as
// large as the tree's configured page size.
func (n *node) encodeInto(data []byte) {
	data[0] = byte(n.typ)
	binary.BigEndian.PutUint16(data[1:], uint16(n.size))
	binary.BigEndian.PutUint32(data[3:], uint32(int32(n.nextPageID)))

	off := nodeHeaderLen
	for _, k := range n.keys {
		binary.BigEndian.PutUint64(data[off:], uint64(k))
		off += 8
	}
	for _, v := range n.values {
		binary.BigEndian.PutUint64(data[off:], uint64(v))
		off += 8
	}
}

// findChildIndex returns the index of the child to descend into for
// key, for an internal node: the last index i such that keys[i-1] <= key
// (keys[i-1] corresponds to values[i], since values[0] has no key).
func (n *node) findChildIndex(key int64) int {
	idx := 0
	for idx < n.size && n.keys[idx] <= key {
		idx++
	}
	return idx
}

// findKeyIndex binary-searches a leaf's keys for key, returning its
// index and true on an exact match, or the insertion point and false.
func (n *node) findKeyIndex(key int64) (int, bool) {
	lo, hi := 0, n.size
	for lo < hi {
		mid := (lo + hi) / 2
		if n.keys[mid] < key {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	if lo < n.size && n.keys[lo] == key {
		return lo, true
	}
	return lo, false
}

// leafInsert inserts (key, value) in sorted position, returning false
// if key is already present (no duplicate keys).
func (n *node) leafInsert(key, value int64) bool {
	idx, found := n.findKeyIndex(key)
	if found {
		return false
	}
	n.keys = append(n.keys, 0)
	copy(n.keys[idx+1:], n.keys[idx:])
	n.keys[idx] = key

	n.values = append(n.values, 0)
	copy(n.values[idx+1:], n.values[idx:])
	n.values[idx] = value

	n.size++
	return true
}

func (n *node) leafGet(key int64) (int64, bool) {
	idx, found := n.findKeyIndex(key)
	if !found {
		return 0, false
	}
	return n.values[idx], true
}

func (n *node) leafRemove(key int64) bool {
	idx, found := n.findKeyIndex(key)
	if !found {
		return false
	}
	n.keys = append(n.keys[:idx], n.keys[idx+1:]...)
	n.values = append(n.values[:idx], n.values[idx+1:]...)
	n.size--
	return true
}

// internalInsertAfter inserts (key, childID) as the child immediately
// after the child currently at index childIdx — the shape a split
// needs: the new right sibling's first key and page id are inserted
// right after the left sibling's existing slot.
func (n *node) internalInsertAfter(childIdx int, key, childID int64) {
	n.keys = append(n.keys, 0)
	copy(n.keys[childIdx+1:], n.keys[childIdx:])
	n.keys[childIdx] = key

	n.values = append(n.values, 0)
	copy(n.values[childIdx+2:], n.values[childIdx+1:])
	n.values[childIdx+1] = childID

	n.size++
}

// indexOfChild returns the index of childID among n's children
// (internal node only), or -1 if not found.
func (n *node) indexOfChild(childID page.ID) int {
	for i, v := range n.values {
		if page.ID(v) == childID {
			return i
		}
	}
	return -1
}

// removeChildAt removes the child at index idx along with the key that
// routes to it (keys[idx-1] if idx > 0, else keys[0]).
func (n *node) removeChildAt(idx int) {
	keyIdx := idx - 1
	if keyIdx < 0 {
		keyIdx = 0
	}
	if len(n.keys) > keyIdx {
		n.keys = append(n.keys[:keyIdx], n.keys[keyIdx+1:]...)
	}
	n.values = append(n.values[:idx], n.values[idx+1:]...)
	n.size--
}
