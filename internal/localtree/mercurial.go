package localtree

import (
	"context"
	"fmt"
	"strings"

	"github.com/chainguard-dev/clog"

	"github.com/mcdonaldj/wptsync/internal/ports"
)

// Mercurial keeps patches in an mq patch queue.
type Mercurial struct {
	root string
	hg   ports.VCSRunner
}

// NewMercurial returns a tree for the repository at root.
func NewMercurial(root string, hg ports.VCSRunner) *Mercurial {
	return &Mercurial{root: root, hg: hg}
}

func (t *Mercurial) Kind() Kind { return KindMercurial }
func (t *Mercurial) Root() string { return t.root }

func (t *Mercurial) run(ctx context.Context, args ...string) (string, error) {
	return t.hg.Run(ctx, t.root, args...)
}

// IsClean reports whether hg status prints nothing.
func (t *Mercurial) IsClean(ctx context.Context) (bool, error) {
	out, err := t.run(ctx, "status")
	if err != nil {
		return false, fmt.Errorf("checking status of %s: %w", t.root, err)
	}
	return strings.TrimSpace(out) == "", nil
}

func (t *Mercurial) AddNew(ctx context.Context, prefix string) error {
	args := []string{"add"}
	if prefix != "" {
		args = append(args, "-I", relPath(t.root, prefix))
	}
	if _, err := t.run(ctx, args...); err != nil {
		return fmt.Errorf("adding files: %w", err)
	}
	return nil
}

// CreatePatch initializes the patch queue when needed and pushes a new
// patch. The new patch starts empty; UpdatePatch fills it.
func (t *Mercurial) CreatePatch(ctx context.Context, name, message string) error {
	if _, err := t.run(ctx, "qinit"); err != nil {
		if !alreadyExists(err) {
			return fmt.Errorf("initializing patch queue: %w", err)
		}
		clog.FromContext(ctx).Debugf("Patch queue already initialized in %s", t.root)
	}
	if _, err := t.run(ctx, "qnew", name, "-X", t.root, "-m", message); err != nil {
		if alreadyExists(err) {
			return fmt.Errorf("%w: %s", ErrPatchExists, name)
		}
		return fmt.Errorf("creating patch %s: %w", name, err)
	}
	return nil
}

func (t *Mercurial) UpdatePatch(ctx context.Context, include ...string) error {
	args := []string{"qrefresh"}
	for _, p := range include {
		args = append(args, "-I", relPath(t.root, p))
	}
	if _, err := t.run(ctx, args...); err != nil {
		return fmt.Errorf("refreshing patch: %w", err)
	}
	return nil
}

// CommitPatch moves every applied patch into permanent history.
func (t *Mercurial) CommitPatch(ctx context.Context) error {
	if _, err := t.run(ctx, "qfinish", "-a"); err != nil {
		return fmt.Errorf("finishing patches: %w", err)
	}
	return nil
}

var _ Tree = (*Mercurial)(nil)
