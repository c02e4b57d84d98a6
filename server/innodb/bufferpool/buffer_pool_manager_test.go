package bufferpool

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhukovaskychina/storagecore/server/innodb/disk"
	"github.com/zhukovaskychina/storagecore/server/innodb/page"
)

func newTestPool(t *testing.T, numFrames, k int) *Manager {
	t.Helper()
	return New(numFrames, k, disk.NewMemManager(page.DefaultSize))
}

func TestBufferPool_NewAndFetchRoundtrip(t *testing.T) {
	bp := newTestPool(t, 3, 2)

	p, ok := bp.NewPage()
	require.True(t, ok)
	copy(p.Data, []byte("hello"))
	id := p.ID
	require.True(t, bp.UnpinPage(id, true))
	require.True(t, bp.FlushPage(id))

	fetched, ok := bp.FetchPage(id)
	require.True(t, ok)
	assert.Equal(t, byte('h'), fetched.Data[0])
	bp.UnpinPage(id, false)
}

func TestBufferPool_ExhaustionWithAllPinned(t *testing.T) {
	bp := newTestPool(t, 2, 2)

	p1, ok := bp.NewPage()
	require.True(t, ok)
	p2, ok := bp.NewPage()
	require.True(t, ok)
	_ = p1
	_ = p2

	_, ok = bp.NewPage()
	assert.False(t, ok, "both frames pinned: no victim available")
}

func TestBufferPool_EvictsUnpinnedFrame(t *testing.T) {
	bp := newTestPool(t, 1, 2)

	p1, ok := bp.NewPage()
	require.True(t, ok)
	id1 := p1.ID
	require.True(t, bp.UnpinPage(id1, false))

	p2, ok := bp.NewPage()
	require.True(t, ok)
	assert.NotEqual(t, id1, p2.ID)

	_, stillThere := bp.pageTbl.Find(id1)
	assert.False(t, stillThere, "single-frame pool evicted the unpinned page to make room")
}

func TestBufferPool_DeleteFailsWhilePinned(t *testing.T) {
	bp := newTestPool(t, 2, 2)
	p, ok := bp.NewPage()
	require.True(t, ok)

	assert.False(t, bp.DeletePage(p.ID), "still pinned, delete must fail")
	bp.UnpinPage(p.ID, false)
	assert.True(t, bp.DeletePage(p.ID))
}

func TestBufferPool_FlushAllPages(t *testing.T) {
	bp := newTestPool(t, 4, 2)
	var ids []page.ID
	for i := 0; i < 3; i++ {
		p, ok := bp.NewPage()
		require.True(t, ok)
		p.Data[0] = byte('a' + i)
		ids = append(ids, p.ID)
		bp.UnpinPage(p.ID, true)
	}
	require.NoError(t, bp.FlushAllPages())

	for i, id := range ids {
		p, ok := bp.FetchPage(id)
		require.True(t, ok)
		assert.Equal(t, byte('a'+i), p.Data[0])
		bp.UnpinPage(id, false)
	}
}
