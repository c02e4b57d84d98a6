package hashtable

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// identityHash mirrors libstdc++'s std::hash<int> (the identity
// function for small ints), the hash BusTub's own extendible hash table
// tests rely on for deterministic directory shapes.
func identityHash(key int) uint64 { return uint64(key) }

func TestTable_FindAfterInsert(t *testing.T) {
	tbl := New[int, string](2, identityHash)

	tbl.Insert(0, "a")
	tbl.Insert(1, "b")
	tbl.Insert(2, "c")

	v, ok := tbl.Find(0)
	require.True(t, ok)
	assert.Equal(t, "a", v)

	v, ok = tbl.Find(1)
	require.True(t, ok)
	assert.Equal(t, "b", v)

	v, ok = tbl.Find(2)
	require.True(t, ok)
	assert.Equal(t, "c", v)

	_, ok = tbl.Find(3)
	assert.False(t, ok)

	// keys 0 and 2 share the low bit that survives a single directory
	// doubling (both even), so inserting 0,1,2 with bucket size 2 grows
	// the directory exactly once: global depth 1, two distinct buckets.
	assert.Equal(t, 1, tbl.GlobalDepth())
	assert.Equal(t, 2, tbl.NumBuckets())
	assert.Equal(t, 3, tbl.Len())
}

func TestTable_UpdateInPlace(t *testing.T) {
	tbl := New[int, string](2, identityHash)
	tbl.Insert(5, "x")
	tbl.Insert(5, "y")

	v, ok := tbl.Find(5)
	require.True(t, ok)
	assert.Equal(t, "y", v, "inserting an existing key updates rather than duplicating")
	assert.Equal(t, 1, tbl.Len())
}

func TestTable_RemoveMissing(t *testing.T) {
	tbl := New[int, string](2, identityHash)
	tbl.Insert(1, "a")
	assert.False(t, tbl.Remove(99))
	assert.True(t, tbl.Remove(1))
	_, ok := tbl.Find(1)
	assert.False(t, ok)
}

func TestTable_DirectoryDoublingBeyondOneLevel(t *testing.T) {
	tbl := New[int, int](1, identityHash)
	for i := 0; i < 16; i++ {
		tbl.Insert(i, i*i)
	}
	for i := 0; i < 16; i++ {
		v, ok := tbl.Find(i)
		require.True(t, ok)
		assert.Equal(t, i*i, v)
	}
	assert.Equal(t, 16, tbl.Len())
	assert.GreaterOrEqual(t, tbl.GlobalDepth(), 4, "bucket size 1 with 16 distinct keys forces depth >= 4")
}

func TestTable_DefaultHashDistributes(t *testing.T) {
	tbl := New[string, int](4, nil)
	for i, k := range []string{"alpha", "beta", "gamma", "delta", "epsilon"} {
		tbl.Insert(k, i)
	}
	for i, k := range []string{"alpha", "beta", "gamma", "delta", "epsilon"} {
		v, ok := tbl.Find(k)
		require.True(t, ok)
		assert.Equal(t, i, v)
	}
}
