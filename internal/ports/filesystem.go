// Package ports defines the contracts between the update orchestrator and
// everything it drives: the filesystem, VCS binaries, the baseline manifest,
// expectation metadata, test runs and the run journal.
package ports

import (
	"os"
)

// FileSystem is the subset of filesystem operations used to replace the local
// test directory with the mirror's working tree.
type FileSystem interface {
	// ReadDir reads the named directory and returns directory entries.
	ReadDir(name string) ([]os.DirEntry, error)

	// Stat returns file info for the named file.
	Stat(name string) (os.FileInfo, error)

	// Lstat is Stat without following a final symlink.
	Lstat(name string) (os.FileInfo, error)

	// MkdirAll creates a directory along with any necessary parents.
	MkdirAll(path string, perm os.FileMode) error

	// WriteFile writes data to the named file, creating it if necessary.
	WriteFile(name string, data []byte, perm os.FileMode) error

	// Remove removes the named file or empty directory.
	Remove(name string) error

	// RemoveAll removes path and any children it contains.
	RemoveAll(path string) error

	// CopyFile copies src to dst, preserving mode and modification time.
	// Symlinks are recreated rather than followed.
	CopyFile(src, dst string) error
}
