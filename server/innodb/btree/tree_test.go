package btree

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhukovaskychina/storagecore/server/innodb/bufferpool"
	"github.com/zhukovaskychina/storagecore/server/innodb/disk"
	"github.com/zhukovaskychina/storagecore/server/innodb/page"
)

func newTestTree(t *testing.T, leafMax, internalMax int) *BPlusTree {
	t.Helper()
	bpm := bufferpool.New(64, 2, disk.NewMemManager(page.DefaultSize))
	// reserve the header page used for root-id persistence
	hp, ok := bpm.NewPage()
	require.True(t, ok)
	require.Equal(t, page.HeaderPageID, hp.ID)
	bpm.UnpinPage(hp.ID, true)

	tr, err := NewBPlusTree(t.Name(), bpm, leafMax, internalMax)
	require.NoError(t, err)
	return tr
}

func TestBPlusTree_InsertAndGetValue(t *testing.T) {
	tr := newTestTree(t, 4, 4)
	for i := int64(0); i < 20; i++ {
		ok, err := tr.Insert(i, i*100)
		require.NoError(t, err)
		require.True(t, ok)
	}
	for i := int64(0); i < 20; i++ {
		v, found := tr.GetValue(i)
		require.True(t, found)
		assert.Equal(t, i*100, v)
	}
	_, found := tr.GetValue(999)
	assert.False(t, found)
}

func TestBPlusTree_DuplicateInsertRejected(t *testing.T) {
	tr := newTestTree(t, 4, 4)
	ok, err := tr.Insert(1, 10)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = tr.Insert(1, 20)
	require.NoError(t, err)
	assert.False(t, ok)

	v, _ := tr.GetValue(1)
	assert.Equal(t, int64(10), v)
}

func TestBPlusTree_SplitsPropagateToNewRoot(t *testing.T) {
	tr := newTestTree(t, 3, 3)
	for i := int64(0); i < 50; i++ {
		ok, err := tr.Insert(i, i)
		require.NoError(t, err)
		require.True(t, ok)
	}
	assert.True(t, tr.Stats().Splits > 0, "inserting 50 keys into a fanout-3 tree must split")
	for i := int64(0); i < 50; i++ {
		v, found := tr.GetValue(i)
		require.True(t, found, "key %d missing after splits", i)
		assert.Equal(t, i, v)
	}
}

func TestBPlusTree_DeleteRemovesKey(t *testing.T) {
	tr := newTestTree(t, 4, 4)
	for i := int64(0); i < 10; i++ {
		_, err := tr.Insert(i, i)
		require.NoError(t, err)
	}
	assert.True(t, tr.Remove(5))
	_, found := tr.GetValue(5)
	assert.False(t, found)

	assert.False(t, tr.Remove(5), "removing an absent key again reports false")
	for _, i := range []int64{0, 1, 2, 3, 4, 6, 7, 8, 9} {
		_, found := tr.GetValue(i)
		assert.True(t, found, "key %d should still be present", i)
	}
}

func TestBPlusTree_DeleteTriggersCoalesce(t *testing.T) {
	tr := newTestTree(t, 3, 3)
	for i := int64(0); i < 30; i++ {
		_, err := tr.Insert(i, i)
		require.NoError(t, err)
	}
	for i := int64(0); i < 25; i++ {
		assert.True(t, tr.Remove(i), "remove %d", i)
	}
	stats := tr.Stats()
	assert.True(t, stats.Merges > 0 || stats.Redistributions > 0,
		"removing 25 of 30 keys from leaf/internal max size 3 should force at least one merge or redistribution, got %+v", stats)
	for i := int64(25); i < 30; i++ {
		v, found := tr.GetValue(i)
		require.True(t, found, "key %d should survive the deletes", i)
		assert.Equal(t, i, v)
	}
	for i := int64(0); i < 25; i++ {
		_, found := tr.GetValue(i)
		assert.False(t, found)
	}
}

func TestBPlusTree_IteratorWalksInOrder(t *testing.T) {
	tr := newTestTree(t, 4, 4)
	want := []int64{5, 1, 9, 3, 7, 2, 8, 0, 6, 4}
	for _, k := range want {
		_, err := tr.Insert(k, k*10)
		require.NoError(t, err)
	}

	it := tr.Begin()
	var got []int64
	for it.Valid() {
		got = append(got, it.Key())
		assert.Equal(t, it.Key()*10, it.Value())
		it.Next()
	}
	assert.Equal(t, []int64{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, got)
}

func TestBPlusTree_SeekPositionsAtFirstKeyGreaterOrEqual(t *testing.T) {
	tr := newTestTree(t, 4, 4)
	for _, k := range []int64{0, 2, 4, 6, 8} {
		_, err := tr.Insert(k, k)
		require.NoError(t, err)
	}
	it := tr.Seek(3)
	require.True(t, it.Valid())
	assert.Equal(t, int64(4), it.Key())
	it.Close()

	empty := tr.Seek(100)
	assert.False(t, empty.Valid())
}

func TestBPlusTree_IsEmpty(t *testing.T) {
	tr := newTestTree(t, 4, 4)
	assert.True(t, tr.IsEmpty())
	_, err := tr.Insert(1, 1)
	require.NoError(t, err)
	assert.False(t, tr.IsEmpty())
}
