// Package localtree stages synchronized changes in the downstream working
// copy. Each supported version-control backend implements Tree, so callers
// package a change the same way whether the tree is a Mercurial repository,
// a Git repository, or not under version control at all.
package localtree

import (
	"context"
	"errors"
	"path/filepath"
	"strings"

	"github.com/chainguard-dev/clog"

	"github.com/mcdonaldj/wptsync/internal/adapters/execvcs"
	"github.com/mcdonaldj/wptsync/internal/ports"
)

// Kind identifies the backend of a local tree.
type Kind int

const (
	KindNone Kind = iota
	KindMercurial
	KindGit
)

func (k Kind) String() string {
	switch k {
	case KindMercurial:
		return "mercurial"
	case KindGit:
		return "git"
	default:
		return "none"
	}
}

var (
	// ErrPatchExists is returned by CreatePatch when a patch with the same
	// name is already present. Callers may treat it as success.
	ErrPatchExists = errors.New("patch already exists")

	// ErrNoPatchMessage is returned by the Git tree when UpdatePatch is
	// called before CreatePatch.
	ErrNoPatchMessage = errors.New("no patch message set, CreatePatch must run first")
)

// Tree is the capability set every backend provides.
type Tree interface {
	// Kind reports the backend.
	Kind() Kind

	// Root returns the absolute root of the working copy.
	Root() string

	// IsClean reports whether the working copy has no pending changes.
	IsClean(ctx context.Context) (bool, error)

	// AddNew stages new and removed files, limited to prefix when it is
	// not empty. prefix is relative to Root.
	AddNew(ctx context.Context, prefix string) error

	// CreatePatch opens a new patch that subsequent UpdatePatch calls fill.
	CreatePatch(ctx context.Context, name, message string) error

	// UpdatePatch records pending changes into the open patch, limited to
	// include when it is not empty.
	UpdatePatch(ctx context.Context, include ...string) error

	// CommitPatch finalizes the open patch.
	CommitPatch(ctx context.Context) error
}

// Detect selects the backend for dir. Mercurial is probed first, then Git;
// a tree that is neither, or any tree when enabled is false, gets the
// no-op backend. A nil runner skips its probe.
func Detect(ctx context.Context, dir string, enabled bool, hg, git ports.VCSRunner) Tree {
	log := clog.FromContext(ctx)

	if !enabled {
		log.Debugf("Patch creation disabled, using no-VCS tree at %s", dir)
		return NewNoVCS(dir)
	}
	if hg != nil {
		if root, ok := IsMercurial(ctx, hg, dir); ok {
			log.Infof("Local tree is a Mercurial repository at %s", root)
			return NewMercurial(root, hg)
		}
	}
	if git != nil {
		if root, ok := IsGit(ctx, git, dir); ok {
			log.Infof("Local tree is a Git repository at %s", root)
			return NewGit(root, git)
		}
	}
	log.Infof("No version control found for %s", dir)
	return NewNoVCS(dir)
}

// IsMercurial reports whether dir is inside a Mercurial repository and
// returns the repository root.
func IsMercurial(ctx context.Context, hg ports.VCSRunner, dir string) (string, bool) {
	return probeRoot(ctx, hg, dir, "root")
}

// IsGit reports whether dir is inside a Git work tree and returns its root.
func IsGit(ctx context.Context, git ports.VCSRunner, dir string) (string, bool) {
	return probeRoot(ctx, git, dir, "rev-parse", "--show-toplevel")
}

func probeRoot(ctx context.Context, r ports.VCSRunner, dir string, args ...string) (string, bool) {
	out, err := r.Run(ctx, dir, args...)
	if err != nil {
		return "", false
	}
	root := strings.TrimSpace(out)
	if root == "" {
		return "", false
	}
	return root, true
}

// relPath makes p relative to root. Relative paths and paths outside root
// are returned unchanged.
func relPath(root, p string) string {
	if !filepath.IsAbs(p) {
		return p
	}
	rel, err := filepath.Rel(root, p)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return p
	}
	return rel
}

func alreadyExists(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(execvcs.Output(err)+err.Error(), "already exists")
}
