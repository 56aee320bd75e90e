package osfs

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestCopyFilePreservesContentAndTime(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.txt")
	if err := os.WriteFile(src, []byte("content"), 0640); err != nil {
		t.Fatal(err)
	}
	mtime := time.Now().Add(-48 * time.Hour).Truncate(time.Second)
	if err := os.Chtimes(src, mtime, mtime); err != nil {
		t.Fatal(err)
	}

	dst := filepath.Join(dir, "nested", "deeper", "dst.txt")
	if err := New().CopyFile(src, dst); err != nil {
		t.Fatalf("CopyFile failed: %v", err)
	}

	data, err := os.ReadFile(dst)
	if err != nil {
		t.Fatalf("reading copy: %v", err)
	}
	if string(data) != "content" {
		t.Errorf("content = %q, expected %q", data, "content")
	}
	info, err := os.Stat(dst)
	if err != nil {
		t.Fatal(err)
	}
	if !info.ModTime().Equal(mtime) {
		t.Errorf("ModTime = %v, expected %v", info.ModTime(), mtime)
	}
}

func TestCopyFileSymlink(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "target.txt"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	link := filepath.Join(dir, "link")
	if err := os.Symlink("target.txt", link); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}

	dst := filepath.Join(dir, "out", "link")
	if err := New().CopyFile(link, dst); err != nil {
		t.Fatalf("CopyFile failed: %v", err)
	}
	target, err := os.Readlink(dst)
	if err != nil {
		t.Fatalf("expected a symlink at %s: %v", dst, err)
	}
	if target != "target.txt" {
		t.Errorf("link target = %q, expected %q", target, "target.txt")
	}
}

func TestRemoveAndReadDir(t *testing.T) {
	dir := t.TempDir()
	fs := New()
	if err := fs.MkdirAll(filepath.Join(dir, "a", "b"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "f"), nil, 0644); err != nil {
		t.Fatal(err)
	}

	entries, err := fs.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}

	if err := fs.RemoveAll(filepath.Join(dir, "a")); err != nil {
		t.Fatal(err)
	}
	if err := fs.Remove(filepath.Join(dir, "f")); err != nil {
		t.Fatal(err)
	}
	entries, _ = fs.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("expected empty dir, got %d entries", len(entries))
	}
}

func TestLstatDoesNotFollowLinks(t *testing.T) {
	dir := t.TempDir()
	if err := os.Mkdir(filepath.Join(dir, "real"), 0755); err != nil {
		t.Fatal(err)
	}
	link := filepath.Join(dir, "link")
	if err := os.Symlink("real", link); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}

	fs := New()
	info, err := fs.Lstat(link)
	if err != nil {
		t.Fatalf("Lstat failed: %v", err)
	}
	if info.IsDir() || info.Mode()&os.ModeSymlink == 0 {
		t.Errorf("Lstat mode = %v, expected a symlink", info.Mode())
	}
	info, err = fs.Stat(link)
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}
	if !info.IsDir() {
		t.Errorf("Stat mode = %v, expected the target directory", info.Mode())
	}
}
