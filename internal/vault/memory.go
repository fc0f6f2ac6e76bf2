package vault

import (
	"bytes"
	"fmt"
	"io"
	"sort"
	"sync"

	"repute-go/internal/snapshot"
)

// MemoryVault is an in-memory implementation of snapshot.Vault, useful for
// testing. It is safe for concurrent use.
type MemoryVault struct {
	name      string
	snapshots map[string]map[string][]byte // nodeID -> name -> data
	mu        sync.RWMutex
}

// NewMemoryVault creates a new in-memory vault with the given name.
func NewMemoryVault(name string) *MemoryVault {
	return &MemoryVault{
		name:      name,
		snapshots: make(map[string]map[string][]byte),
	}
}

// Put stores a snapshot for nodeID.
func (m *MemoryVault) Put(nodeID, name string, r io.Reader, size int64) error {
	if err := snapshot.ValidateName(name); err != nil {
		return err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("failed to read snapshot: %w", err)
	}
	if int64(len(data)) != size {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", size, len(data))
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	node, ok := m.snapshots[nodeID]
	if !ok {
		node = make(map[string][]byte)
		m.snapshots[nodeID] = node
	}
	node[name] = data
	return nil
}

// Get writes the named snapshot to w.
func (m *MemoryVault) Get(nodeID, name string, w io.Writer) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.snapshots[nodeID][name]
	if !ok {
		return fmt.Errorf("%w: %s/%s", snapshot.ErrNotInVault, nodeID, name)
	}
	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	return nil
}

// List returns the snapshots stored for nodeID.
func (m *MemoryVault) List(nodeID string) ([]snapshot.VaultEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var entries []snapshot.VaultEntry
	for name, data := range m.snapshots[nodeID] {
		entries = append(entries, snapshot.VaultEntry{Name: name, Size: int64(len(data))})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}

// ValidateSetup always succeeds for in-memory vault.
func (m *MemoryVault) ValidateSetup() error {
	return nil
}

// Compile-time check that MemoryVault implements snapshot.Vault
var _ snapshot.Vault = (*MemoryVault)(nil)
