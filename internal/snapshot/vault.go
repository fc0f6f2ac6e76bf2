package snapshot

import (
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrNotInVault is returned by Vault.Get for an unknown snapshot.
var ErrNotInVault = errors.New("snapshot not found in vault")

// Vault stores snapshot files away from the node. Snapshots are grouped by
// the node that wrote them and identified by name within that group.
type Vault interface {
	// Put stores size bytes read from r, replacing any snapshot with the same name.
	Put(nodeID, name string, r io.Reader, size int64) error

	// Get writes the named snapshot to w.
	Get(nodeID, name string, w io.Writer) error

	// List returns every snapshot stored for nodeID, sorted by name.
	List(nodeID string) ([]VaultEntry, error)

	// ValidateSetup verifies that the vault is accessible and properly configured.
	ValidateSetup() error
}

// VaultEntry describes one stored snapshot.
type VaultEntry struct {
	Name string
	Size int64
}

// ValidateName rejects names that cannot be used as a single path or
// object-key segment.
func ValidateName(name string) error {
	switch {
	case name == "":
		return fmt.Errorf("snapshot name is empty")
	case strings.HasPrefix(name, "."):
		return fmt.Errorf("snapshot name %q starts with a dot", name)
	case strings.ContainsAny(name, `/\`):
		return fmt.Errorf("snapshot name %q contains a path separator", name)
	}
	return nil
}
