package mocks

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mcdonaldj/wptsync/internal/ports"
)

// MockFileSystem implements ports.FileSystem over in-memory maps.
type MockFileSystem struct {
	// Files maps paths to file contents
	Files map[string][]byte
	// Dirs marks paths that exist as directories
	Dirs map[string]bool
	// Links maps symlink paths to their targets
	Links map[string]string
	// Errors maps paths to errors (for simulating failures)
	Errors map[string]error
	// CopyCalls records CopyFile calls in order
	CopyCalls []CopyCall
}

// CopyCall records parameters of a CopyFile call.
type CopyCall struct {
	Src string
	Dst string
}

// NewMockFileSystem creates a new mock filesystem.
func NewMockFileSystem() *MockFileSystem {
	return &MockFileSystem{
		Files:  make(map[string][]byte),
		Dirs:   make(map[string]bool),
		Links:  make(map[string]string),
		Errors: make(map[string]error),
	}
}

// ReadDir lists the direct children of name, directories first by name.
func (m *MockFileSystem) ReadDir(name string) ([]os.DirEntry, error) {
	if err, ok := m.Errors[name]; ok {
		return nil, err
	}
	if !m.Dirs[name] {
		return nil, os.ErrNotExist
	}
	seen := make(map[string]bool)
	var entries []os.DirEntry
	add := func(p string, isDir bool) {
		rel, ok := child(name, p)
		if !ok || seen[rel] {
			return
		}
		seen[rel] = true
		entries = append(entries, &dirEntry{name: rel, isDir: isDir})
	}
	for p := range m.Dirs {
		add(p, true)
	}
	for p := range m.Files {
		add(p, false)
	}
	return entries, nil
}

// child returns the first path element of p below dir.
func child(dir, p string) (string, bool) {
	prefix := strings.TrimSuffix(dir, "/") + "/"
	if !strings.HasPrefix(p, prefix) {
		return "", false
	}
	rest := strings.TrimPrefix(p, prefix)
	if rest == "" || strings.Contains(rest, "/") {
		return "", false
	}
	return rest, true
}

// Stat returns file info for the named file or directory.
func (m *MockFileSystem) Stat(name string) (os.FileInfo, error) {
	if err, ok := m.Errors[name]; ok {
		return nil, err
	}
	if m.Dirs[name] {
		return &fileInfo{name: filepath.Base(name), isDir: true, mode: fs.ModeDir | 0755}, nil
	}
	if content, ok := m.Files[name]; ok {
		return &fileInfo{name: filepath.Base(name), size: int64(len(content)), mode: 0644}, nil
	}
	return nil, os.ErrNotExist
}

// Lstat reports entries in Links as symlinks and otherwise behaves like Stat.
func (m *MockFileSystem) Lstat(name string) (os.FileInfo, error) {
	if err, ok := m.Errors[name]; ok {
		return nil, err
	}
	if _, ok := m.Links[name]; ok {
		return &fileInfo{name: filepath.Base(name), mode: fs.ModeSymlink | 0777}, nil
	}
	return m.Stat(name)
}

// MkdirAll marks path and all its parents as directories.
func (m *MockFileSystem) MkdirAll(path string, perm os.FileMode) error {
	if err, ok := m.Errors[path]; ok {
		return err
	}
	for p := filepath.Clean(path); ; p = filepath.Dir(p) {
		m.Dirs[p] = true
		if p == filepath.Dir(p) {
			break
		}
	}
	return nil
}

// WriteFile writes data to the named file, creating it if necessary.
func (m *MockFileSystem) WriteFile(name string, data []byte, perm os.FileMode) error {
	if err, ok := m.Errors[name]; ok {
		return err
	}
	m.Files[name] = data
	return nil
}

// ReadFile returns the contents of the named file.
func (m *MockFileSystem) ReadFile(name string) ([]byte, error) {
	if err, ok := m.Errors[name]; ok {
		return nil, err
	}
	if content, ok := m.Files[name]; ok {
		return content, nil
	}
	return nil, os.ErrNotExist
}

// Remove removes the named file or directory entry.
func (m *MockFileSystem) Remove(name string) error {
	if err, ok := m.Errors[name]; ok {
		return err
	}
	delete(m.Files, name)
	delete(m.Dirs, name)
	return nil
}

// RemoveAll removes path and any children it contains.
func (m *MockFileSystem) RemoveAll(path string) error {
	if err, ok := m.Errors[path]; ok {
		return err
	}
	prefix := strings.TrimSuffix(path, "/") + "/"
	for p := range m.Files {
		if p == path || strings.HasPrefix(p, prefix) {
			delete(m.Files, p)
		}
	}
	for p := range m.Dirs {
		if p == path || strings.HasPrefix(p, prefix) {
			delete(m.Dirs, p)
		}
	}
	return nil
}

// CopyFile copies the in-memory content of src to dst.
func (m *MockFileSystem) CopyFile(src, dst string) error {
	m.CopyCalls = append(m.CopyCalls, CopyCall{Src: src, Dst: dst})
	if err, ok := m.Errors[src]; ok {
		return err
	}
	if err, ok := m.Errors[dst]; ok {
		return err
	}
	content, ok := m.Files[src]
	if !ok {
		return os.ErrNotExist
	}
	m.Files[dst] = append([]byte(nil), content...)
	return nil
}

type fileInfo struct {
	name    string
	size    int64
	mode    os.FileMode
	modTime time.Time
	isDir   bool
}

func (fi *fileInfo) Name() string       { return fi.name }
func (fi *fileInfo) Size() int64        { return fi.size }
func (fi *fileInfo) Mode() os.FileMode  { return fi.mode }
func (fi *fileInfo) ModTime() time.Time { return fi.modTime }
func (fi *fileInfo) IsDir() bool        { return fi.isDir }
func (fi *fileInfo) Sys() interface{}   { return nil }

type dirEntry struct {
	name  string
	isDir bool
}

func (d *dirEntry) Name() string { return d.name }
func (d *dirEntry) IsDir() bool  { return d.isDir }
func (d *dirEntry) Type() fs.FileMode {
	if d.isDir {
		return fs.ModeDir
	}
	return 0
}
func (d *dirEntry) Info() (fs.FileInfo, error) {
	return &fileInfo{name: d.name, isDir: d.isDir}, nil
}

// Compile-time check that MockFileSystem implements ports.FileSystem.
var _ ports.FileSystem = (*MockFileSystem)(nil)
