package mirror

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/chainguard-dev/clog"
	"github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/mcdonaldj/wptsync/internal/ports"
)

//go:embed overlay
var overlayFS embed.FS

// Overlay files are placed into every copied tree. They are not part of the
// upstream repository.
var overlays = []struct {
	source string
	dest   string
}{
	{source: "overlay/testharness_runner.html", dest: "testharness_runner.html"},
	{source: "overlay/testharnessreport.js", dest: "resources/testharnessreport.js"},
}

// OverlayPaths returns the slash-separated destinations of the overlay files.
func OverlayPaths() []string {
	paths := make([]string, 0, len(overlays))
	for _, o := range overlays {
		paths = append(paths, o.dest)
	}
	return paths
}

// ErrBranchCheckedOut is returned when deleting the branch HEAD points at.
var ErrBranchCheckedOut = errors.New("branch is checked out")

// RepositoryError reports a clone that is not in a state Update can work from.
type RepositoryError struct {
	Path   string
	Reason string
}

func (e *RepositoryError) Error() string {
	return fmt.Sprintf("repository in %s %s", e.Path, e.Reason)
}

const anonymousRemote = "wptsync-upstream"

// Mirror manages the local clone at path of the repository at remoteURL.
type Mirror struct {
	remoteURL string
	path      string
	target    string
	branch    string
	fs        ports.FileSystem

	// previous is the commit checked out before the isolation branch was
	// created by Update.
	previous plumbing.Hash
}

// New creates a Mirror. isolationBranch must be unique to the current run.
func New(remoteURL, path, target, isolationBranch string, fs ports.FileSystem) (*Mirror, error) {
	switch {
	case remoteURL == "":
		return nil, errors.New("remote url cannot be empty")
	case path == "":
		return nil, errors.New("clone path cannot be empty")
	case target == "":
		return nil, errors.New("target revision cannot be empty")
	case isolationBranch == "":
		return nil, errors.New("isolation branch cannot be empty")
	case fs == nil:
		return nil, errors.New("filesystem cannot be nil")
	}
	return &Mirror{
		remoteURL: remoteURL,
		path:      path,
		target:    target,
		branch:    isolationBranch,
		fs:        fs,
	}, nil
}

// Path returns the clone directory.
func (m *Mirror) Path() string { return m.path }

// IsolationBranch returns the branch name Update checks out.
func (m *Mirror) IsolationBranch() string { return m.branch }

func (m *Mirror) branchRef() plumbing.ReferenceName {
	return plumbing.NewBranchReferenceName(m.branch)
}

// Update clones the remote when path is not yet a repository, otherwise
// fetches the target into the isolation branch. Either way the isolation
// branch is checked out at the target and submodules are updated
// recursively. An existing clone must be clean.
func (m *Mirror) Update(ctx context.Context) error {
	log := clog.FromContext(ctx)

	if err := m.fs.MkdirAll(m.path, 0755); err != nil {
		return fmt.Errorf("creating %s: %w", m.path, err)
	}

	repo, err := git.PlainOpen(m.path)
	var hash plumbing.Hash
	switch {
	case errors.Is(err, git.ErrRepositoryNotExists):
		log.Infof("Cloning %s into %s", m.remoteURL, m.path)
		repo, err = git.PlainCloneContext(ctx, m.path, false, &git.CloneOptions{URL: m.remoteURL})
		if err != nil {
			return fmt.Errorf("cloning %s: %w", m.remoteURL, err)
		}
		if head, err := repo.Head(); err == nil {
			m.previous = head.Hash()
		}
		hash, err = m.resolveTarget(repo)
		if err != nil {
			return err
		}
	case err != nil:
		return fmt.Errorf("opening %s: %w", m.path, err)
	default:
		if err := m.requireClean(repo); err != nil {
			return err
		}
		if head, err := repo.Head(); err == nil {
			m.previous = head.Hash()
		}
		hash, err = m.fetch(ctx, repo)
		if err != nil {
			return err
		}
	}

	if err := m.checkoutIsolation(repo, hash); err != nil {
		return err
	}
	log.Infof("Checked out %s at %s", m.branch, hash)

	return m.updateSubmodules(ctx, repo)
}

func (m *Mirror) requireClean(repo *git.Repository) error {
	wt, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("getting worktree: %w", err)
	}
	status, err := wt.Status()
	if err != nil {
		return fmt.Errorf("getting status: %w", err)
	}
	if !status.IsClean() {
		return &RepositoryError{Path: m.path, Reason: "not clean"}
	}
	return nil
}

// resolveTarget finds the target in a fresh clone. Branch names resolve
// against the remote-tracking refs first.
func (m *Mirror) resolveTarget(repo *git.Repository) (plumbing.Hash, error) {
	candidates := []string{m.target}
	if !strings.HasPrefix(m.target, "refs/") && !plumbing.IsHash(m.target) {
		name := strings.TrimPrefix(m.target, "origin/")
		candidates = []string{"refs/remotes/origin/" + name, "refs/tags/" + name, m.target}
	}
	for _, rev := range candidates {
		h, err := repo.ResolveRevision(plumbing.Revision(rev))
		if err == nil {
			return *h, nil
		}
	}
	return plumbing.ZeroHash, fmt.Errorf("unknown revision %q in %s", m.target, m.remoteURL)
}

// fetchSource maps the target onto a ref advertised by the remote. Short
// names match a branch first, then a tag.
func (m *Mirror) fetchSource(refs []*plumbing.Reference) (plumbing.ReferenceName, error) {
	if strings.HasPrefix(m.target, "refs/") {
		return plumbing.ReferenceName(m.target), nil
	}
	name := strings.TrimPrefix(m.target, "origin/")
	advertised := make(map[plumbing.ReferenceName]bool, len(refs))
	for _, r := range refs {
		advertised[r.Name()] = true
	}
	for _, candidate := range []plumbing.ReferenceName{
		plumbing.NewBranchReferenceName(name),
		plumbing.NewTagReferenceName(name),
	} {
		if advertised[candidate] {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("unknown revision %q in %s", m.target, m.remoteURL)
}

// fetch fetches the target straight into the isolation branch. Commit
// hashes are fetched by pulling every head and resolving locally.
func (m *Mirror) fetch(ctx context.Context, repo *git.Repository) (plumbing.Hash, error) {
	log := clog.FromContext(ctx)

	remote := git.NewRemote(repo.Storer, &gitconfig.RemoteConfig{
		Name: anonymousRemote,
		URLs: []string{m.remoteURL},
	})

	refSpec := gitconfig.RefSpec("+refs/heads/*:refs/remotes/origin/*")
	if !plumbing.IsHash(m.target) {
		refs, err := remote.ListContext(ctx, &git.ListOptions{PeelingOption: git.IgnorePeeled})
		if err != nil {
			return plumbing.ZeroHash, fmt.Errorf("listing refs of %s: %w", m.remoteURL, err)
		}
		src, err := m.fetchSource(refs)
		if err != nil {
			return plumbing.ZeroHash, err
		}
		refSpec = gitconfig.RefSpec(fmt.Sprintf("+%s:%s", src, m.branchRef()))
	}

	log.Infof("Fetching %s from %s", refSpec, m.remoteURL)
	err := remote.FetchContext(ctx, &git.FetchOptions{
		RemoteName: anonymousRemote,
		RefSpecs:   []gitconfig.RefSpec{refSpec},
		Tags:       git.NoTags,
	})
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return plumbing.ZeroHash, fmt.Errorf("fetching %s: %w", m.target, err)
	}

	if plumbing.IsHash(m.target) {
		h := plumbing.NewHash(m.target)
		if _, err := repo.CommitObject(h); err != nil {
			return plumbing.ZeroHash, fmt.Errorf("commit %s not found after fetch: %w", m.target, err)
		}
		return h, nil
	}

	ref, err := repo.Reference(m.branchRef(), true)
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("reading %s after fetch: %w", m.branchRef(), err)
	}
	return peel(repo, ref.Hash())
}

// peel resolves an annotated tag to the commit it points at.
func peel(repo *git.Repository, h plumbing.Hash) (plumbing.Hash, error) {
	tag, err := repo.TagObject(h)
	if errors.Is(err, plumbing.ErrObjectNotFound) {
		return h, nil
	}
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("reading tag %s: %w", h, err)
	}
	commit, err := tag.Commit()
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("peeling tag %s: %w", tag.Name, err)
	}
	return commit.Hash, nil
}

func (m *Mirror) checkoutIsolation(repo *git.Repository, hash plumbing.Hash) error {
	if err := repo.Storer.SetReference(plumbing.NewHashReference(m.branchRef(), hash)); err != nil {
		return fmt.Errorf("setting branch %s: %w", m.branch, err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("getting worktree: %w", err)
	}
	if err := wt.Checkout(&git.CheckoutOptions{Branch: m.branchRef(), Force: true}); err != nil {
		return fmt.Errorf("checking out %s: %w", m.branch, err)
	}
	return nil
}

func (m *Mirror) updateSubmodules(ctx context.Context, repo *git.Repository) error {
	wt, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("getting worktree: %w", err)
	}
	subs, err := wt.Submodules()
	if err != nil {
		return fmt.Errorf("listing submodules: %w", err)
	}
	if len(subs) == 0 {
		return nil
	}
	clog.FromContext(ctx).Infof("Updating %d submodules", len(subs))
	if err := subs.UpdateContext(ctx, &git.SubmoduleUpdateOptions{
		Init:              true,
		RecurseSubmodules: git.DefaultSubmoduleRecursionDepth,
	}); err != nil {
		return fmt.Errorf("updating submodules: %w", err)
	}
	return nil
}

// Revision returns the commit checked out in the clone. The boolean is false
// when path is not a repository.
func (m *Mirror) Revision(ctx context.Context) (string, bool) {
	repo, err := git.PlainOpen(m.path)
	if err != nil {
		return "", false
	}
	head, err := repo.Head()
	if err != nil {
		clog.FromContext(ctx).Warnf("Resolving HEAD in %s: %v", m.path, err)
		return "", false
	}
	return head.Hash().String(), true
}

// TreePaths lists every file tracked at HEAD in the clone and, recursively,
// in its submodules. Paths are slash-separated and relative to the clone
// root; submodule files carry the submodule's path as prefix.
func (m *Mirror) TreePaths(ctx context.Context) ([]string, error) {
	repo, err := git.PlainOpen(m.path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", m.path, err)
	}
	paths, err := treePaths(repo, "")
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)
	clog.FromContext(ctx).Debugf("Tree at %s has %d files", m.path, len(paths))
	return paths, nil
}

func treePaths(repo *git.Repository, prefix string) ([]string, error) {
	head, err := repo.Head()
	if err != nil {
		return nil, fmt.Errorf("resolving HEAD: %w", err)
	}
	commit, err := repo.CommitObject(head.Hash())
	if err != nil {
		return nil, fmt.Errorf("reading commit %s: %w", head.Hash(), err)
	}
	tree, err := commit.Tree()
	if err != nil {
		return nil, fmt.Errorf("reading tree of %s: %w", head.Hash(), err)
	}

	var paths []string
	if err := tree.Files().ForEach(func(f *object.File) error {
		paths = append(paths, path.Join(prefix, f.Name))
		return nil
	}); err != nil {
		return nil, fmt.Errorf("listing files: %w", err)
	}

	wt, err := repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("getting worktree: %w", err)
	}
	subs, err := wt.Submodules()
	if err != nil {
		return nil, fmt.Errorf("listing submodules: %w", err)
	}
	for _, sub := range subs {
		subPath := path.Join(prefix, sub.Config().Path)
		subRepo, err := sub.Repository()
		if err != nil {
			return nil, fmt.Errorf("opening submodule %s: %w", subPath, err)
		}
		nested, err := treePaths(subRepo, subPath)
		if err != nil {
			return nil, fmt.Errorf("submodule %s: %w", subPath, err)
		}
		paths = append(paths, nested...)
	}
	return paths, nil
}

// CopyWorkTree makes dest hold exactly the tracked tree plus the overlay
// files. dest must already be a directory; everything in it is removed
// first.
func (m *Mirror) CopyWorkTree(ctx context.Context, dest string) error {
	log := clog.FromContext(ctx)

	info, err := m.fs.Stat(dest)
	if err != nil {
		return fmt.Errorf("destination %s: %w", dest, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("destination %s is not a directory", dest)
	}

	paths, err := m.TreePaths(ctx)
	if err != nil {
		return err
	}

	entries, err := m.fs.ReadDir(dest)
	if err != nil {
		return fmt.Errorf("reading %s: %w", dest, err)
	}
	for _, e := range entries {
		p := filepath.Join(dest, e.Name())
		if e.IsDir() {
			err = m.fs.RemoveAll(p)
		} else {
			err = m.fs.Remove(p)
		}
		if err != nil {
			return fmt.Errorf("removing %s: %w", p, err)
		}
	}
	log.Infof("Cleared %d entries from %s", len(entries), dest)

	copied := 0
	for _, tp := range paths {
		src := filepath.Join(m.path, filepath.FromSlash(tp))
		dst := filepath.Join(dest, filepath.FromSlash(tp))

		// Submodule roots show up as directories; symlinks to directories
		// are copied as links.
		if si, err := m.fs.Lstat(src); err == nil && si.IsDir() {
			continue
		}
		if err := m.fs.MkdirAll(filepath.Dir(dst), 0755); err != nil {
			return fmt.Errorf("creating %s: %w", filepath.Dir(dst), err)
		}
		if err := m.fs.CopyFile(src, dst); err != nil {
			return fmt.Errorf("copying %s: %w", tp, err)
		}
		copied++
	}

	for _, o := range overlays {
		data, err := overlayFS.ReadFile(o.source)
		if err != nil {
			return fmt.Errorf("reading overlay %s: %w", o.source, err)
		}
		dst := filepath.Join(dest, filepath.FromSlash(o.dest))
		if err := m.fs.MkdirAll(filepath.Dir(dst), 0755); err != nil {
			return fmt.Errorf("creating %s: %w", filepath.Dir(dst), err)
		}
		if err := m.fs.WriteFile(dst, data, 0644); err != nil {
			return fmt.Errorf("writing overlay %s: %w", o.dest, err)
		}
	}

	log.Infof("Copied %d files and %d overlays into %s", copied, len(overlays), dest)
	return nil
}

// Clean checks out the commit that was current before Update created the
// isolation branch, detached, and deletes the isolation branch.
func (m *Mirror) Clean(ctx context.Context) error {
	repo, err := git.PlainOpen(m.path)
	if err != nil {
		return fmt.Errorf("opening %s: %w", m.path, err)
	}

	target := m.previous
	if target.IsZero() {
		head, err := repo.Head()
		if err != nil {
			return fmt.Errorf("resolving HEAD: %w", err)
		}
		target = head.Hash()
	}

	wt, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("getting worktree: %w", err)
	}
	if err := wt.Checkout(&git.CheckoutOptions{Hash: target, Force: true}); err != nil {
		return fmt.Errorf("checking out %s: %w", target, err)
	}
	if err := repo.Storer.RemoveReference(m.branchRef()); err != nil {
		return fmt.Errorf("deleting branch %s: %w", m.branch, err)
	}
	clog.FromContext(ctx).Infof("Restored %s to %s and deleted %s", m.path, target, m.branch)
	return nil
}

// DeleteBranch removes a branch left by an earlier run. The branch HEAD
// points at is refused with ErrBranchCheckedOut.
func (m *Mirror) DeleteBranch(ctx context.Context, name string) error {
	repo, err := git.PlainOpen(m.path)
	if err != nil {
		return fmt.Errorf("opening %s: %w", m.path, err)
	}
	ref := plumbing.NewBranchReferenceName(name)
	if head, err := repo.Head(); err == nil && head.Name() == ref {
		return fmt.Errorf("%s: %w", name, ErrBranchCheckedOut)
	}
	if _, err := repo.Reference(ref, false); err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			clog.FromContext(ctx).Debugf("Branch %s already gone", name)
			return nil
		}
		return fmt.Errorf("reading %s: %w", name, err)
	}
	if err := repo.Storer.RemoveReference(ref); err != nil {
		return fmt.Errorf("deleting branch %s: %w", name, err)
	}
	return nil
}

// Compile-time check that Mirror implements ports.Mirror.
var _ ports.Mirror = (*Mirror)(nil)
