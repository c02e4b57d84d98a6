package replacer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLRUK_ColdBeforeWarm(t *testing.T) {
	r := New(4, 2)

	for _, fid := range []FrameID{1, 2, 3} {
		r.RecordAccess(fid)
		r.SetEvictable(fid, true)
	}
	r.RecordAccess(1)
	r.RecordAccess(2)
	// 1 and 2 have now crossed K=2 and moved to warm, in access order
	// [1, 2]; 3 is still cold with a single access.
	require.Equal(t, 3, r.Size())

	fid, ok := r.Evict()
	require.True(t, ok)
	assert.Equal(t, FrameID(3), fid, "cold frame with a single access evicts before any warm frame")

	fid, ok = r.Evict()
	require.True(t, ok)
	assert.Equal(t, FrameID(1), fid, "warm queue is LRU ordered: 1 accessed before 2's most recent access")

	fid, ok = r.Evict()
	require.True(t, ok)
	assert.Equal(t, FrameID(2), fid)

	_, ok = r.Evict()
	assert.False(t, ok)
}

func TestLRUK_SetEvictableToggle(t *testing.T) {
	r := New(2, 2)
	r.RecordAccess(1)
	r.SetEvictable(1, true)
	require.Equal(t, 1, r.Size())

	r.SetEvictable(1, false)
	require.Equal(t, 0, r.Size())

	_, ok := r.Evict()
	assert.False(t, ok, "pinned frame marked non-evictable must never be chosen")
}

func TestLRUK_Remove(t *testing.T) {
	r := New(2, 2)
	r.RecordAccess(1)
	r.RecordAccess(2)
	r.SetEvictable(2, true)

	assert.Panics(t, func() { r.Remove(1) }, "Remove on a never-evictable (still pinned) frame is a usage error")

	r.Remove(2) // marked evictable, fine to drop
	require.Equal(t, 0, r.Size())
}

func TestLRUK_CapacityPanic(t *testing.T) {
	r := New(1, 2)
	r.RecordAccess(1)
	assert.Panics(t, func() { r.RecordAccess(2) })
}
