// Package hashtable implements a generic extendible hash table: a
// directory of buckets that doubles when a bucket overflows at maximum
// local depth, and individual buckets that split without touching the
// rest of the table otherwise. The buffer pool manager uses an
// instantiation of this over page ids to implement its page table.
package hashtable

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/zhukovaskychina/storagecore/util"
)

// HashFunc computes a 64-bit hash for a key. Table uses only the low
// bits of the result, selected by the current global depth.
type HashFunc[K comparable] func(key K) uint64

// DefaultHash hashes a key's fmt.Sprint representation via util.HashCode
// (xxhash-backed). It is adequate for the key types this core actually
// uses (page ids, small integers, short strings); callers with a
// cheaper or collision-resistant hash for their key type should inject
// their own HashFunc instead.
func DefaultHash[K comparable](key K) uint64 {
	return util.HashCode([]byte(fmt.Sprint(key)))
}

type entry[K comparable, V any] struct {
	key   K
	value V
}

type bucket[K comparable, V any] struct {
	depth int
	cap   int
	items []entry[K, V]
}

func newBucket[K comparable, V any](depth, cap int) *bucket[K, V] {
	return &bucket[K, V]{depth: depth, cap: cap}
}

func (b *bucket[K, V]) find(key K) (V, bool) {
	for _, it := range b.items {
		if it.key == key {
			return it.value, true
		}
	}
	var zero V
	return zero, false
}

func (b *bucket[K, V]) isFull() bool {
	return len(b.items) >= b.cap
}

// upsert updates key's value if present, or appends if there's room. It
// reports false only when key is new and the bucket has no room,
// signalling the caller to split.
func (b *bucket[K, V]) upsert(key K, value V) bool {
	for i := range b.items {
		if b.items[i].key == key {
			b.items[i].value = value
			return true
		}
	}
	if b.isFull() {
		return false
	}
	b.items = append(b.items, entry[K, V]{key, value})
	return true
}

func (b *bucket[K, V]) remove(key K) bool {
	for i, it := range b.items {
		if it.key == key {
			b.items = append(b.items[:i], b.items[i+1:]...)
			return true
		}
	}
	return false
}

// Table is an extendible hash table mapping keys of type K to values of
// type V. It is safe for concurrent use: Find takes the table's read
// lock, Insert/Remove take the write lock for the duration of a
// possibly-recursive split.
type Table[K comparable, V any] struct {
	mu sync.RWMutex

	globalDepth int
	bucketSize  int
	numBuckets  int
	dir         []*bucket[K, V]
	hash        HashFunc[K]
}

// New creates an extendible hash table whose buckets hold at most
// bucketSize entries each. A nil hash uses DefaultHash.
func New[K comparable, V any](bucketSize int, hash HashFunc[K]) *Table[K, V] {
	if bucketSize < 1 {
		bucketSize = 1
	}
	if hash == nil {
		hash = DefaultHash[K]
	}
	return &Table[K, V]{
		bucketSize: bucketSize,
		numBuckets: 1,
		dir:        []*bucket[K, V]{newBucket[K, V](0, bucketSize)},
		hash:       hash,
	}
}

func (t *Table[K, V]) indexOf(key K) int {
	mask := uint64(1<<t.globalDepth) - 1
	return int(t.hash(key) & mask)
}

// Find looks up key's value.
func (t *Table[K, V]) Find(key K) (V, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.dir[t.indexOf(key)].find(key)
}

// Remove deletes key if present, reporting whether it was found.
func (t *Table[K, V]) Remove(key K) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dir[t.indexOf(key)].remove(key)
}

// Insert adds or updates key -> value, splitting and doubling the
// directory as many times as needed to make room.
func (t *Table[K, V]) Insert(key K, value V) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.insertLocked(key, value)
}

func (t *Table[K, V]) insertLocked(key K, value V) {
	idx := t.indexOf(key)
	b := t.dir[idx]
	if b.upsert(key, value) {
		return
	}

	if b.depth == t.globalDepth {
		t.doubleDirectory()
	}
	b.depth++
	bucketDepth := b.depth
	overflow := 1 << (bucketDepth - 1)
	mask := (1 << bucketDepth) - 1
	rawIndex := (idx ^ overflow) & mask

	newB := newBucket[K, V](bucketDepth, t.bucketSize)
	t.dir[rawIndex] = newB
	t.numBuckets++

	highBits := 1 << (t.globalDepth - bucketDepth)
	for i := 1; i < highBits; i++ {
		prefix := i << bucketDepth
		t.dir[rawIndex|prefix] = newB
	}

	old := b.items
	b.items = b.items[:0]
	for _, it := range old {
		rehash := t.indexOf(it.key)
		if (rehash & overflow) != (idx & overflow) {
			newB.items = append(newB.items, it)
		} else {
			b.items = append(b.items, it)
		}
	}

	t.insertLocked(key, value)
}

func (t *Table[K, V]) doubleDirectory() {
	numDirs := 1 << t.globalDepth
	t.dir = append(t.dir, make([]*bucket[K, V], numDirs)...)
	mask := numDirs - 1
	for i := numDirs; i < numDirs*2; i++ {
		t.dir[i] = t.dir[i&mask]
	}
	t.globalDepth++
}

// GlobalDepth reports the number of directory-index bits currently in
// use.
func (t *Table[K, V]) GlobalDepth() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.globalDepth
}

// NumBuckets reports the number of distinct buckets (directory slots
// aliasing the same bucket only count once).
func (t *Table[K, V]) NumBuckets() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.numBuckets
}

// Len reports the total number of entries across every bucket.
func (t *Table[K, V]) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	seen := make(map[*bucket[K, V]]bool)
	n := 0
	for _, b := range t.dir {
		if seen[b] {
			continue
		}
		seen[b] = true
		n += len(b.items)
	}
	return n
}

// HashInt32 hashes a 32-bit integer key via a direct binary encoding
// instead of DefaultHash's fmt.Sprint path, avoiding an allocation on
// every lookup. The buffer pool's page-id-keyed table (page.ID is an
// int32) uses this as its HashFunc.
func HashInt32(v int32) uint64 {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], uint32(v))
	return util.HashCode(buf[:])
}
