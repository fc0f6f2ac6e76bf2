package vault

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"repute-go/internal/snapshot"
)

// FileSystemVault is a filesystem-based implementation of snapshot.Vault.
// It stores snapshots in a directory per node:
//
//	<root>/
//	  snapshots/
//	    <nodeID>/
//	      <name>
type FileSystemVault struct {
	name         string
	root         string
	snapshotsDir string
}

// NewFileSystemVault creates a new filesystem vault rooted at the given path.
func NewFileSystemVault(name, root string) (*FileSystemVault, error) {
	snapshotsDir := filepath.Join(root, "snapshots")
	if err := os.MkdirAll(snapshotsDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create snapshots directory: %w", err)
	}

	return &FileSystemVault{
		name:         name,
		root:         root,
		snapshotsDir: snapshotsDir,
	}, nil
}

func (v *FileSystemVault) nodeDir(nodeID string) (string, error) {
	if err := snapshot.ValidateName(nodeID); err != nil {
		return "", fmt.Errorf("invalid node ID: %w", err)
	}
	return filepath.Join(v.snapshotsDir, nodeID), nil
}

// Put stores a snapshot for nodeID, replacing any previous one atomically.
func (v *FileSystemVault) Put(nodeID, name string, r io.Reader, size int64) error {
	if err := snapshot.ValidateName(name); err != nil {
		return err
	}
	dir, err := v.nodeDir(nodeID)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create node directory: %w", err)
	}
	return v.writeFile(filepath.Join(dir, name), r, size)
}

// Get writes the named snapshot to w.
func (v *FileSystemVault) Get(nodeID, name string, w io.Writer) error {
	if err := snapshot.ValidateName(name); err != nil {
		return err
	}
	dir, err := v.nodeDir(nodeID)
	if err != nil {
		return err
	}

	f, err := os.Open(filepath.Join(dir, name))
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s/%s", snapshot.ErrNotInVault, nodeID, name)
		}
		return fmt.Errorf("failed to open snapshot: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("failed to read snapshot: %w", err)
	}
	return nil
}

// List returns the snapshots stored for nodeID. Temp files left by an
// interrupted Put are skipped.
func (v *FileSystemVault) List(nodeID string) ([]snapshot.VaultEntry, error) {
	dir, err := v.nodeDir(nodeID)
	if err != nil {
		return nil, err
	}

	dirEntries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("listing snapshots: %w", err)
	}

	var entries []snapshot.VaultEntry
	for _, e := range dirEntries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", e.Name(), err)
		}
		entries = append(entries, snapshot.VaultEntry{Name: e.Name(), Size: info.Size()})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}

// ValidateSetup verifies that the vault directories are accessible.
func (v *FileSystemVault) ValidateSetup() error {
	for _, dir := range []string{v.root, v.snapshotsDir} {
		info, err := os.Stat(dir)
		if err != nil {
			return fmt.Errorf("vault directory not accessible: %w", err)
		}
		if !info.IsDir() {
			return fmt.Errorf("vault path is not a directory: %s", dir)
		}
	}
	return nil
}

// writeFile writes data from r to the specified path using atomic write (temp file + rename).
func (v *FileSystemVault) writeFile(destPath string, r io.Reader, expectedSize int64) error {
	tmpFile, err := os.CreateTemp(filepath.Dir(destPath), ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	written, err := io.Copy(tmpFile, r)
	if err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to write data: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if written != expectedSize {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", expectedSize, written)
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	success = true
	return nil
}

// Compile-time check that FileSystemVault implements snapshot.Vault
var _ snapshot.Vault = (*FileSystemVault)(nil)
