package ports

import "context"

// Mirror is a local clone of the upstream test repository.
// Production code uses mirror.Mirror; tests use MockMirror.
type Mirror interface {
	// Update brings the clone to the target revision on the isolation branch.
	Update(ctx context.Context) error

	// Revision returns the commit hash currently checked out.
	// The boolean is false when the clone path is not a repository.
	Revision(ctx context.Context) (string, bool)

	// CopyWorkTree replaces the contents of dest with the tracked tree.
	CopyWorkTree(ctx context.Context, dest string) error

	// Clean restores the pre-update checkout and deletes the isolation branch.
	Clean(ctx context.Context) error

	// IsolationBranch returns the branch name used by Update.
	IsolationBranch() string
}
