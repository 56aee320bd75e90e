// Package manifest maintains the test manifest: a snapshot of every file in
// the synchronized upstream checkout, tagged with the checkout's revision.
package manifest

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/chainguard-dev/clog"
	"github.com/go-git/go-git/v5"
	"gopkg.in/yaml.v3"
	"lukechampine.com/blake3"
)

// FileName is the manifest file kept in the metadata directory.
const FileName = "MANIFEST.yaml"

type Item struct {
	Hash string `yaml:"hash"`
	Size int64  `yaml:"size"`
}

// Snapshot is a read-only description of the known test files.
type Snapshot struct {
	Revision    string          `yaml:"revision,omitempty"`
	GeneratedAt time.Time       `yaml:"generated_at,omitempty"`
	Items       map[string]Item `yaml:"items"`
}

func ManifestPath(metadataPath string) string {
	return filepath.Join(metadataPath, FileName)
}

// Load reads the manifest stored in metadataPath. A missing manifest yields
// an empty snapshot with no revision.
func Load(metadataPath string) (*Snapshot, error) {
	data, err := os.ReadFile(ManifestPath(metadataPath))
	if err != nil {
		if os.IsNotExist(err) {
			return &Snapshot{Items: map[string]Item{}}, nil
		}
		return nil, err
	}

	var s Snapshot
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", FileName, err)
	}
	if s.Items == nil {
		s.Items = map[string]Item{}
	}
	return &s, nil
}

func (s *Snapshot) Save(metadataPath string) error {
	path := ManifestPath(metadataPath)

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data, err := yaml.Marshal(s)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// Paths returns the item paths in sorted order.
func (s *Snapshot) Paths() []string {
	paths := make([]string, 0, len(s.Items))
	for p := range s.Items {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Changes lists the differences between two snapshots.
type Changes struct {
	Added    []string
	Removed  []string
	Modified []string
}

// Empty reports whether no file differs.
func (c Changes) Empty() bool {
	return len(c.Added) == 0 && len(c.Removed) == 0 && len(c.Modified) == 0
}

// Diff compares s (old) against next.
func (s *Snapshot) Diff(next *Snapshot) Changes {
	var c Changes
	for _, p := range next.Paths() {
		old, ok := s.Items[p]
		switch {
		case !ok:
			c.Added = append(c.Added, p)
		case old.Hash != next.Items[p].Hash:
			c.Modified = append(c.Modified, p)
		}
	}
	for _, p := range s.Paths() {
		if _, ok := next.Items[p]; !ok {
			c.Removed = append(c.Removed, p)
		}
	}
	return c
}

// Build walks root and hashes every file outside .git metadata.
func Build(root, revision string) (*Snapshot, error) {
	s := &Snapshot{
		Revision:    revision,
		GeneratedAt: time.Now().UTC(),
		Items:       map[string]Item{},
	}

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Name() == ".git" {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		hash, err := HashFile(path)
		if err != nil {
			return err
		}
		s.Items[filepath.ToSlash(rel)] = Item{Hash: hash, Size: info.Size()}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", root, err)
	}
	return s, nil
}

// HashFile returns the hex blake3 digest of a file. Symlinks are hashed by target.
func HashFile(path string) (string, error) {
	info, err := os.Lstat(path)
	if err != nil {
		return "", err
	}
	if info.Mode()&os.ModeSymlink != 0 {
		target, err := os.Readlink(path)
		if err != nil {
			return "", err
		}
		sum := blake3.Sum256([]byte(target))
		return hex.EncodeToString(sum[:]), nil
	}

	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := blake3.New(32, nil)
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// CheckoutRevision returns the HEAD commit of the git checkout at path, or
// "" when path is not a repository.
func CheckoutRevision(path string) (string, error) {
	repo, err := git.PlainOpen(path)
	if err != nil {
		if errors.Is(err, git.ErrRepositoryNotExists) {
			return "", nil
		}
		return "", fmt.Errorf("opening %s: %w", path, err)
	}
	head, err := repo.Head()
	if err != nil {
		return "", fmt.Errorf("resolving HEAD in %s: %w", path, err)
	}
	return head.Hash().String(), nil
}

// Store is the file-backed manifest collaborator used by the update flows.
type Store struct{}

// NewStore creates a new Store.
func NewStore() *Store {
	return &Store{}
}

// Load returns the snapshot saved by the previous update.
func (st *Store) Load(ctx context.Context, syncPath, metadataPath string) (*Snapshot, error) {
	s, err := Load(metadataPath)
	if err != nil {
		return nil, fmt.Errorf("loading manifest: %w", err)
	}
	clog.FromContext(ctx).Debugf("Loaded manifest at revision %q with %d items", s.Revision, len(s.Items))
	return s, nil
}

// Update rebuilds the snapshot from the sync checkout and saves it.
func (st *Store) Update(ctx context.Context, syncPath, metadataPath string) (*Snapshot, error) {
	rev, err := CheckoutRevision(syncPath)
	if err != nil {
		return nil, err
	}
	if rev == "" {
		clog.FromContext(ctx).Warnf("%s is not a git checkout, manifest has no revision", syncPath)
	}

	s, err := Build(syncPath, rev)
	if err != nil {
		return nil, err
	}
	if err := s.Save(metadataPath); err != nil {
		return nil, fmt.Errorf("saving manifest: %w", err)
	}
	clog.FromContext(ctx).Infof("Updated manifest to revision %s (%d items)", rev, len(s.Items))
	return s, nil
}
