package btree

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhukovaskychina/storagecore/server/innodb/page"
)

func TestNode_LeafInsertGetRemove(t *testing.T) {
	n := newLeaf(4)
	require.True(t, n.leafInsert(3, 30))
	require.True(t, n.leafInsert(1, 10))
	require.True(t, n.leafInsert(2, 20))
	assert.False(t, n.leafInsert(2, 99), "duplicate key rejected")

	v, ok := n.leafGet(2)
	require.True(t, ok)
	assert.Equal(t, int64(20), v)
	assert.Equal(t, []int64{1, 2, 3}, n.keys)

	require.True(t, n.leafRemove(2))
	_, ok = n.leafGet(2)
	assert.False(t, ok)
	assert.Equal(t, []int64{1, 3}, n.keys)
}

func TestNode_EncodeDecodeRoundtrip(t *testing.T) {
	n := newLeaf(8)
	n.leafInsert(5, 50)
	n.leafInsert(1, 10)
	n.nextPageID = page.ID(42)

	buf := make([]byte, page.DefaultSize)
	n.encodeInto(buf)

	got := decodeNode(buf)
	assert.Equal(t, n.typ, got.typ)
	assert.Equal(t, n.size, got.size)
	assert.Equal(t, n.nextPageID, got.nextPageID)
	assert.Equal(t, n.keys, got.keys)
	assert.Equal(t, n.values, got.values)
}

func TestNode_FindChildIndex(t *testing.T) {
	n := newInternal(4)
	n.keys = []int64{10, 20, 30}
	n.values = []int64{1, 2, 3, 4}
	n.size = 3

	assert.Equal(t, 0, n.findChildIndex(5))
	assert.Equal(t, 1, n.findChildIndex(10))
	assert.Equal(t, 1, n.findChildIndex(15))
	assert.Equal(t, 3, n.findChildIndex(30))
	assert.Equal(t, 3, n.findChildIndex(100))
}

func TestNode_InternalInsertAfterAndIndexOfChild(t *testing.T) {
	n := newInternal(4)
	n.keys = []int64{10}
	n.values = []int64{100, 200}
	n.size = 1

	assert.Equal(t, 1, n.indexOfChild(page.ID(200)))
	n.internalInsertAfter(1, 20, 300)

	assert.Equal(t, []int64{10, 20}, n.keys)
	assert.Equal(t, []int64{100, 200, 300}, n.values)
}

func TestNode_RemoveChildAt(t *testing.T) {
	n := newInternal(4)
	n.keys = []int64{10, 20}
	n.values = []int64{100, 200, 300}
	n.size = 2

	n.removeChildAt(1)
	assert.Equal(t, []int64{20}, n.keys, "removing the child absorbed by a left merge drops the key that routed to it")
	assert.Equal(t, []int64{100, 300}, n.values)
}

func TestNode_MinSize(t *testing.T) {
	leaf := newLeaf(5)
	assert.Equal(t, 3, leaf.minSize())

	internal := newInternal(5)
	assert.Equal(t, 2, internal.minSize())
}
