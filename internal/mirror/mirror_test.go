package mirror

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/google/go-cmp/cmp"

	"github.com/mcdonaldj/wptsync/internal/adapters/osfs"
)

// upstream is a local repository standing in for the remote.
type upstream struct {
	t    *testing.T
	dir  string
	repo *git.Repository
}

func newUpstream(t *testing.T, files map[string]string) *upstream {
	t.Helper()
	dir := t.TempDir()
	repo, err := git.PlainInit(dir, false)
	if err != nil {
		t.Fatalf("init upstream: %v", err)
	}
	u := &upstream{t: t, dir: dir, repo: repo}
	u.commit("initial", files)
	return u
}

func (u *upstream) commit(msg string, files map[string]string) plumbing.Hash {
	u.t.Helper()
	wt, err := u.repo.Worktree()
	if err != nil {
		u.t.Fatal(err)
	}
	for p, content := range files {
		full := filepath.Join(u.dir, filepath.FromSlash(p))
		if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
			u.t.Fatal(err)
		}
		if err := os.WriteFile(full, []byte(content), 0644); err != nil {
			u.t.Fatal(err)
		}
		if _, err := wt.Add(p); err != nil {
			u.t.Fatal(err)
		}
	}
	h, err := wt.Commit(msg, &git.CommitOptions{
		Author: &object.Signature{Name: "Upstream", Email: "upstream@example.com", When: time.Now()},
	})
	if err != nil {
		u.t.Fatalf("commit: %v", err)
	}
	return h
}

func newMirror(t *testing.T, remote, path, branch string) *Mirror {
	t.Helper()
	return newMirrorAt(t, remote, path, "master", branch)
}

func newMirrorAt(t *testing.T, remote, path, target, branch string) *Mirror {
	t.Helper()
	m, err := New(remote, path, target, branch, osfs.New())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return m
}

func headBranch(t *testing.T, path string) string {
	t.Helper()
	repo, err := git.PlainOpen(path)
	if err != nil {
		t.Fatal(err)
	}
	head, err := repo.Head()
	if err != nil {
		t.Fatal(err)
	}
	return head.Name().Short()
}

func listFiles(t *testing.T, root string) []string {
	t.Helper()
	var files []string
	err := filepath.Walk(root, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, _ := filepath.Rel(root, p)
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	sort.Strings(files)
	return files
}

func TestNewValidation(t *testing.T) {
	fs := osfs.New()
	tests := []struct {
		name                          string
		remote, path, target, branch string
	}{
		{"empty remote", "", "/p", "master", "b"},
		{"empty path", "r", "", "master", "b"},
		{"empty target", "r", "/p", "", "b"},
		{"empty branch", "r", "/p", "master", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.remote, tt.path, tt.target, tt.branch, fs); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestUpdateClonesEmptyPath(t *testing.T) {
	ctx := context.Background()
	up := newUpstream(t, map[string]string{"a.html": "a"})
	head, _ := up.repo.Head()

	path := filepath.Join(t.TempDir(), "sync")
	m := newMirror(t, up.dir, path, "iso-1")

	if _, ok := m.Revision(ctx); ok {
		t.Error("Revision should be undefined before the first update")
	}

	if err := m.Update(ctx); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	rev, ok := m.Revision(ctx)
	if !ok {
		t.Fatal("Revision undefined after update")
	}
	if rev != head.Hash().String() {
		t.Errorf("Revision = %s, expected %s", rev, head.Hash())
	}
	if got := headBranch(t, path); got != "iso-1" {
		t.Errorf("checked out branch = %q, expected %q", got, "iso-1")
	}
}

func TestUpdateFetchesIntoNewBranch(t *testing.T) {
	ctx := context.Background()
	up := newUpstream(t, map[string]string{"a.html": "a"})
	path := filepath.Join(t.TempDir(), "sync")

	if err := newMirror(t, up.dir, path, "iso-1").Update(ctx); err != nil {
		t.Fatalf("first Update failed: %v", err)
	}

	second := up.commit("second", map[string]string{"b.html": "b"})

	m := newMirror(t, up.dir, path, "iso-2")
	if err := m.Update(ctx); err != nil {
		t.Fatalf("second Update failed: %v", err)
	}

	rev, _ := m.Revision(ctx)
	if rev != second.String() {
		t.Errorf("Revision = %s, expected %s", rev, second)
	}
	if got := headBranch(t, path); got != "iso-2" {
		t.Errorf("checked out branch = %q, expected %q", got, "iso-2")
	}
	if _, err := os.Stat(filepath.Join(path, "b.html")); err != nil {
		t.Errorf("b.html not checked out: %v", err)
	}

	repo, _ := git.PlainOpen(path)
	if _, err := repo.Reference(plumbing.NewBranchReferenceName("iso-1"), false); err != nil {
		t.Errorf("earlier isolation branch should be untouched: %v", err)
	}
}

func TestUpdateRefusesDirtyClone(t *testing.T) {
	ctx := context.Background()
	up := newUpstream(t, map[string]string{"a.html": "a"})
	path := filepath.Join(t.TempDir(), "sync")

	if err := newMirror(t, up.dir, path, "iso-1").Update(ctx); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if err := os.WriteFile(filepath.Join(path, "a.html"), []byte("local edit"), 0644); err != nil {
		t.Fatal(err)
	}

	err := newMirror(t, up.dir, path, "iso-2").Update(ctx)
	var repoErr *RepositoryError
	if !errors.As(err, &repoErr) {
		t.Fatalf("expected *RepositoryError, got %v", err)
	}
	if repoErr.Path != path {
		t.Errorf("Path = %q, expected %q", repoErr.Path, path)
	}
	if got := headBranch(t, path); got != "iso-1" {
		t.Errorf("branch changed on failure: %q", got)
	}
}

func TestCopyWorkTreeWipesThenPopulates(t *testing.T) {
	ctx := context.Background()
	up := newUpstream(t, map[string]string{
		"a.html":              "a",
		"dom/nested/b.html":   "b",
		"resources/helper.js": "h",
	})
	path := filepath.Join(t.TempDir(), "sync")
	m := newMirror(t, up.dir, path, "iso-1")
	if err := m.Update(ctx); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	dest := t.TempDir()
	stale := map[string]string{
		"stale.txt":           "x",
		"olddir/deep/old.txt": "y",
		"a.html":              "outdated",
	}
	for p, c := range stale {
		full := filepath.Join(dest, p)
		if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(full, []byte(c), 0644); err != nil {
			t.Fatal(err)
		}
	}

	if err := m.CopyWorkTree(ctx, dest); err != nil {
		t.Fatalf("CopyWorkTree failed: %v", err)
	}

	tree, err := m.TreePaths(ctx)
	if err != nil {
		t.Fatal(err)
	}
	want := append(append([]string{}, tree...), OverlayPaths()...)
	sort.Strings(want)

	if diff := cmp.Diff(want, listFiles(t, dest)); diff != "" {
		t.Errorf("dest files mismatch (-want +got):\n%s", diff)
	}

	data, _ := os.ReadFile(filepath.Join(dest, "a.html"))
	if string(data) != "a" {
		t.Errorf("a.html = %q, expected upstream content", data)
	}
	if _, err := os.Stat(filepath.Join(dest, "olddir")); !os.IsNotExist(err) {
		t.Error("stale directory survived the copy")
	}
}

func TestCopyWorkTreeRequiresDirectory(t *testing.T) {
	ctx := context.Background()
	up := newUpstream(t, map[string]string{"a.html": "a"})
	m := newMirror(t, up.dir, filepath.Join(t.TempDir(), "sync"), "iso-1")
	if err := m.Update(ctx); err != nil {
		t.Fatal(err)
	}

	file := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(file, nil, 0644); err != nil {
		t.Fatal(err)
	}
	if err := m.CopyWorkTree(ctx, file); err == nil {
		t.Error("expected error for non-directory destination")
	}
	if err := m.CopyWorkTree(ctx, filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Error("expected error for missing destination")
	}
}

func TestTreePaths(t *testing.T) {
	ctx := context.Background()
	up := newUpstream(t, map[string]string{"z.html": "z", "a/b.html": "b"})
	m := newMirror(t, up.dir, filepath.Join(t.TempDir(), "sync"), "iso-1")
	if err := m.Update(ctx); err != nil {
		t.Fatal(err)
	}

	got, err := m.TreePaths(ctx)
	if err != nil {
		t.Fatalf("TreePaths failed: %v", err)
	}
	if diff := cmp.Diff([]string{"a/b.html", "z.html"}, got); diff != "" {
		t.Errorf("TreePaths mismatch (-want +got):\n%s", diff)
	}
}

func TestCleanRestoresPreviousCheckout(t *testing.T) {
	ctx := context.Background()
	up := newUpstream(t, map[string]string{"a.html": "a"})
	path := filepath.Join(t.TempDir(), "sync")
	first := newMirror(t, up.dir, path, "iso-1")
	if err := first.Update(ctx); err != nil {
		t.Fatal(err)
	}
	before, _ := first.Revision(ctx)

	up.commit("second", map[string]string{"b.html": "b"})
	m := newMirror(t, up.dir, path, "iso-2")
	if err := m.Update(ctx); err != nil {
		t.Fatal(err)
	}

	if err := m.Clean(ctx); err != nil {
		t.Fatalf("Clean failed: %v", err)
	}

	rev, _ := m.Revision(ctx)
	if rev != before {
		t.Errorf("Revision after Clean = %s, expected %s", rev, before)
	}
	repo, _ := git.PlainOpen(path)
	if _, err := repo.Reference(plumbing.NewBranchReferenceName("iso-2"), false); err == nil {
		t.Error("isolation branch should be deleted")
	}
}

func TestDeleteBranch(t *testing.T) {
	ctx := context.Background()
	up := newUpstream(t, map[string]string{"a.html": "a"})
	path := filepath.Join(t.TempDir(), "sync")
	if err := newMirror(t, up.dir, path, "iso-1").Update(ctx); err != nil {
		t.Fatal(err)
	}
	m := newMirror(t, up.dir, path, "iso-2")
	if err := m.Update(ctx); err != nil {
		t.Fatal(err)
	}

	if err := m.DeleteBranch(ctx, "iso-2"); !errors.Is(err, ErrBranchCheckedOut) {
		t.Errorf("expected ErrBranchCheckedOut, got %v", err)
	}
	if err := m.DeleteBranch(ctx, "iso-1"); err != nil {
		t.Errorf("DeleteBranch failed: %v", err)
	}
	if err := m.DeleteBranch(ctx, "iso-1"); err != nil {
		t.Errorf("deleting a missing branch should be a no-op: %v", err)
	}
}

func TestFetchSource(t *testing.T) {
	refs := []*plumbing.Reference{
		plumbing.NewHashReference("refs/heads/master", plumbing.ZeroHash),
		plumbing.NewHashReference("refs/heads/both", plumbing.ZeroHash),
		plumbing.NewHashReference("refs/tags/both", plumbing.ZeroHash),
		plumbing.NewHashReference("refs/tags/v1", plumbing.ZeroHash),
	}
	tests := []struct {
		target  string
		want    plumbing.ReferenceName
		wantErr bool
	}{
		{target: "master", want: "refs/heads/master"},
		{target: "origin/master", want: "refs/heads/master"},
		{target: "v1", want: "refs/tags/v1"},
		{target: "both", want: "refs/heads/both"},
		{target: "refs/tags/v1", want: "refs/tags/v1"},
		{target: "missing", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			m := &Mirror{target: tt.target, remoteURL: "upstream"}
			got, err := m.fetchSource(refs)
			if tt.wantErr {
				if err == nil {
					t.Errorf("fetchSource() = %q, expected error", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("fetchSource() failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("fetchSource() = %q, expected %q", got, tt.want)
			}
		})
	}
}

func TestUpdateTagTargetOnExistingClone(t *testing.T) {
	tests := []struct {
		name      string
		annotated bool
	}{
		{"lightweight", false},
		{"annotated", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			up := newUpstream(t, map[string]string{"a.html": "a"})
			path := filepath.Join(t.TempDir(), "sync")

			if err := newMirrorAt(t, up.dir, path, "master", "iso-1").Update(ctx); err != nil {
				t.Fatalf("first Update failed: %v", err)
			}

			tagged := up.commit("tagged", map[string]string{"b.html": "b"})
			var opts *git.CreateTagOptions
			if tt.annotated {
				opts = &git.CreateTagOptions{
					Tagger:  &object.Signature{Name: "Upstream", Email: "upstream@example.com", When: time.Now()},
					Message: "release v1",
				}
			}
			if _, err := up.repo.CreateTag("v1", tagged, opts); err != nil {
				t.Fatalf("CreateTag: %v", err)
			}
			up.commit("after tag", map[string]string{"c.html": "c"})

			m := newMirrorAt(t, up.dir, path, "v1", "iso-2")
			if err := m.Update(ctx); err != nil {
				t.Fatalf("Update to tag failed: %v", err)
			}

			rev, _ := m.Revision(ctx)
			if rev != tagged.String() {
				t.Errorf("Revision = %s, expected tagged commit %s", rev, tagged)
			}
			if got := headBranch(t, path); got != "iso-2" {
				t.Errorf("checked out branch = %q, expected %q", got, "iso-2")
			}
			if _, err := os.Stat(filepath.Join(path, "c.html")); !os.IsNotExist(err) {
				t.Error("commit after the tag should not be checked out")
			}
		})
	}
}

func TestUpdateUnknownTargetOnExistingClone(t *testing.T) {
	ctx := context.Background()
	up := newUpstream(t, map[string]string{"a.html": "a"})
	path := filepath.Join(t.TempDir(), "sync")
	if err := newMirror(t, up.dir, path, "iso-1").Update(ctx); err != nil {
		t.Fatal(err)
	}

	if err := newMirrorAt(t, up.dir, path, "nope", "iso-2").Update(ctx); err == nil {
		t.Error("expected error for unknown target")
	}
	if got := headBranch(t, path); got != "iso-1" {
		t.Errorf("branch changed on failure: %q", got)
	}
}

func TestCopyWorkTreeKeepsDirectorySymlinks(t *testing.T) {
	ctx := context.Background()
	up := newUpstream(t, map[string]string{"real/f.html": "f"})
	if err := os.Symlink("real", filepath.Join(up.dir, "link")); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}
	wt, _ := up.repo.Worktree()
	if _, err := wt.Add("link"); err != nil {
		t.Fatal(err)
	}
	if _, err := wt.Commit("add link", &git.CommitOptions{
		Author: &object.Signature{Name: "Upstream", Email: "upstream@example.com", When: time.Now()},
	}); err != nil {
		t.Fatal(err)
	}

	m := newMirror(t, up.dir, filepath.Join(t.TempDir(), "sync"), "iso-1")
	if err := m.Update(ctx); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	dest := t.TempDir()
	if err := m.CopyWorkTree(ctx, dest); err != nil {
		t.Fatalf("CopyWorkTree failed: %v", err)
	}

	tree, err := m.TreePaths(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"link", "real/f.html"}, tree); diff != "" {
		t.Errorf("TreePaths mismatch (-want +got):\n%s", diff)
	}
	want := append(append([]string{}, tree...), OverlayPaths()...)
	sort.Strings(want)
	if diff := cmp.Diff(want, listFiles(t, dest)); diff != "" {
		t.Errorf("dest files mismatch (-want +got):\n%s", diff)
	}
	target, err := os.Readlink(filepath.Join(dest, "link"))
	if err != nil {
		t.Fatalf("link not copied as a symlink: %v", err)
	}
	if target != "real" {
		t.Errorf("link target = %q, expected %q", target, "real")
	}
}

// gitCLI runs the git binary in dir. Submodule fixtures need it because
// go-git cannot add submodules.
func gitCLI(t *testing.T, dir string, args ...string) {
	t.Helper()
	cmd := exec.Command("git", append([]string{"-c", "protocol.file.allow=always"}, args...)...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(),
		"HOME="+t.TempDir(),
		"GIT_CONFIG_NOSYSTEM=1",
		"GIT_AUTHOR_NAME=Upstream", "GIT_AUTHOR_EMAIL=upstream@example.com",
		"GIT_COMMITTER_NAME=Upstream", "GIT_COMMITTER_EMAIL=upstream@example.com",
	)
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("git %v: %v\n%s", args, err, out)
	}
}

func newCLIRepo(t *testing.T, file, content string) string {
	t.Helper()
	dir := t.TempDir()
	gitCLI(t, dir, "init", "-q", "-b", "master")
	if err := os.WriteFile(filepath.Join(dir, file), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	gitCLI(t, dir, "add", file)
	gitCLI(t, dir, "commit", "-q", "-m", "add "+file)
	return dir
}

func TestNestedSubmodules(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
	ctx := context.Background()

	deep := newCLIRepo(t, "i.txt", "inner")
	mod := newCLIRepo(t, "s.txt", "sub")
	gitCLI(t, mod, "submodule", "add", "-q", deep, "deep")
	gitCLI(t, mod, "commit", "-q", "-m", "add deep")
	top := newCLIRepo(t, "t.txt", "top")
	gitCLI(t, top, "submodule", "add", "-q", mod, "mod")
	gitCLI(t, top, "commit", "-q", "-m", "add mod")

	m := newMirror(t, top, filepath.Join(t.TempDir(), "sync"), "iso-1")
	if err := m.Update(ctx); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	tree, err := m.TreePaths(ctx)
	if err != nil {
		t.Fatalf("TreePaths failed: %v", err)
	}
	wantTree := []string{".gitmodules", "mod/.gitmodules", "mod/deep/i.txt", "mod/s.txt", "t.txt"}
	if diff := cmp.Diff(wantTree, tree); diff != "" {
		t.Errorf("TreePaths mismatch (-want +got):\n%s", diff)
	}

	dest := t.TempDir()
	if err := m.CopyWorkTree(ctx, dest); err != nil {
		t.Fatalf("CopyWorkTree failed: %v", err)
	}
	want := append(append([]string{}, wantTree...), OverlayPaths()...)
	sort.Strings(want)
	if diff := cmp.Diff(want, listFiles(t, dest)); diff != "" {
		t.Errorf("dest files mismatch (-want +got):\n%s", diff)
	}
	data, err := os.ReadFile(filepath.Join(dest, "mod", "deep", "i.txt"))
	if err != nil || string(data) != "inner" {
		t.Errorf("mod/deep/i.txt = %q, %v, expected nested submodule content", data, err)
	}
}
