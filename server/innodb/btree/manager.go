package btree

import (
	"sync"

	"github.com/pkg/errors"

	"github.com/zhukovaskychina/storagecore/server/innodb/bufferpool"
)

// ErrTreeExists is returned by Manager.CreateTree when name is already
// registered.
var ErrTreeExists = errors.New("btree: tree already exists")

// ErrTreeNotFound is returned by Manager.GetTree/DropTree when name
// has no registered tree.
var ErrTreeNotFound = errors.New("btree: tree not found")

// Manager is the registry of named trees sharing one buffer pool,
// trimmed down from the teacher's manager.BTreeManager
// (server/innodb/manager/btree_interface.go): this core has no
// per-table catalog, index metadata, or record-level byte-slice keys
// to manage, only named int64-keyed trees, so CreateTree/GetTree/
// DropTree/Sync (plus Names) is all that survives from that interface's
// shape.
type Manager struct {
	mu    sync.RWMutex
	bpm   *bufferpool.Manager
	trees map[string]*BPlusTree

	leafMax     int
	internalMax int
}

// NewManager creates a registry backed by bpm. Every tree it creates
// uses the same leaf/internal fanout.
func NewManager(bpm *bufferpool.Manager, leafMax, internalMax int) *Manager {
	return &Manager{bpm: bpm, trees: make(map[string]*BPlusTree), leafMax: leafMax, internalMax: internalMax}
}

// CreateTree registers and returns a new empty tree under name.
func (m *Manager) CreateTree(name string) (*BPlusTree, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.trees[name]; ok {
		return nil, ErrTreeExists
	}
	t, err := NewBPlusTree(name, m.bpm, m.leafMax, m.internalMax)
	if err != nil {
		return nil, err
	}
	m.trees[name] = t
	return t, nil
}

// GetTree returns the tree registered under name, opening it from the
// header page directory on first access if it was created in a prior
// session but not yet loaded into this registry.
func (m *Manager) GetTree(name string) (*BPlusTree, error) {
	m.mu.RLock()
	t, ok := m.trees[name]
	m.mu.RUnlock()
	if ok {
		return t, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.trees[name]; ok {
		return t, nil
	}
	t, err := NewBPlusTree(name, m.bpm, m.leafMax, m.internalMax)
	if err != nil {
		return nil, err
	}
	if t.IsEmpty() {
		return nil, ErrTreeNotFound
	}
	m.trees[name] = t
	return t, nil
}

// DropTree unregisters name. It does not reclaim the tree's pages —
// callers that need the space back should walk the tree releasing
// pages before dropping it.
func (m *Manager) DropTree(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.trees[name]; !ok {
		return ErrTreeNotFound
	}
	delete(m.trees, name)
	return nil
}

// Sync flushes every page the shared buffer pool holds dirty, making
// every registered tree's on-disk state current.
func (m *Manager) Sync() error {
	return m.bpm.FlushAllPages()
}

// Names returns the currently registered tree names.
func (m *Manager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.trees))
	for n := range m.trees {
		names = append(names, n)
	}
	return names
}
