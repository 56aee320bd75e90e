package localtree

import (
	"context"
	"fmt"
	"strings"

	"github.com/mcdonaldj/wptsync/internal/ports"
)

// Git represents a patch as a branch. The message given to CreatePatch is
// used for every commit UpdatePatch makes.
type Git struct {
	root    string
	git     ports.VCSRunner
	message string
}

// NewGit returns a tree for the work tree at root.
func NewGit(root string, git ports.VCSRunner) *Git {
	return &Git{root: root, git: git}
}

func (t *Git) Kind() Kind { return KindGit }
func (t *Git) Root() string { return t.root }

func (t *Git) run(ctx context.Context, args ...string) (string, error) {
	return t.git.Run(ctx, t.root, args...)
}

// IsClean reports whether git status --porcelain prints nothing.
func (t *Git) IsClean(ctx context.Context) (bool, error) {
	out, err := t.run(ctx, "status", "--porcelain")
	if err != nil {
		return false, fmt.Errorf("checking status of %s: %w", t.root, err)
	}
	return strings.TrimSpace(out) == "", nil
}

func (t *Git) AddNew(ctx context.Context, prefix string) error {
	args := []string{"add", "--all"}
	if prefix != "" {
		args = []string{"add", "--no-ignore-removal", "--", relPath(t.root, prefix)}
	}
	if _, err := t.run(ctx, args...); err != nil {
		return fmt.Errorf("adding files: %w", err)
	}
	return nil
}

// CreatePatch creates and switches to a branch called name. If the branch
// already exists it is checked out and ErrPatchExists is returned, so that
// UpdatePatch still commits onto it.
func (t *Git) CreatePatch(ctx context.Context, name, message string) error {
	t.message = message
	_, err := t.run(ctx, "checkout", "-b", name)
	if err == nil {
		return nil
	}
	if !alreadyExists(err) {
		return fmt.Errorf("creating branch %s: %w", name, err)
	}
	if _, err := t.run(ctx, "checkout", name); err != nil {
		return fmt.Errorf("switching to branch %s: %w", name, err)
	}
	return fmt.Errorf("%w: %s", ErrPatchExists, name)
}

// UpdatePatch commits staged changes, or only the include paths when given.
func (t *Git) UpdatePatch(ctx context.Context, include ...string) error {
	if t.message == "" {
		return ErrNoPatchMessage
	}
	args := []string{"commit", "-m", t.message}
	if len(include) > 0 {
		args = append(args, "--")
		for _, p := range include {
			args = append(args, relPath(t.root, p))
		}
	}
	if _, err := t.run(ctx, args...); err != nil {
		return fmt.Errorf("committing patch: %w", err)
	}
	return nil
}

// CommitPatch does nothing. The branch is the finished patch.
func (t *Git) CommitPatch(ctx context.Context) error { return nil }

var _ Tree = (*Git)(nil)
