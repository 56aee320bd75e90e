package expected

import (
	"context"
	"fmt"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// ChangedFiles returns the paths that differ between the base revision and
// HEAD of the repository at repoPath, on either side of a rename.
func ChangedFiles(ctx context.Context, repoPath, base string) (map[string]bool, error) {
	repo, err := git.PlainOpen(repoPath)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", repoPath, err)
	}

	baseTree, err := revisionTree(repo, plumbing.Revision(base))
	if err != nil {
		return nil, err
	}
	headTree, err := revisionTree(repo, plumbing.Revision(plumbing.HEAD))
	if err != nil {
		return nil, err
	}

	changes, err := baseTree.DiffContext(ctx, headTree)
	if err != nil {
		return nil, fmt.Errorf("diffing %s..HEAD: %w", base, err)
	}

	changed := make(map[string]bool, len(changes))
	for _, c := range changes {
		if c.From.Name != "" {
			changed[c.From.Name] = true
		}
		if c.To.Name != "" {
			changed[c.To.Name] = true
		}
	}
	return changed, nil
}

func revisionTree(repo *git.Repository, rev plumbing.Revision) (*object.Tree, error) {
	hash, err := repo.ResolveRevision(rev)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", rev, err)
	}
	commit, err := repo.CommitObject(*hash)
	if err != nil {
		return nil, fmt.Errorf("reading commit %s: %w", hash, err)
	}
	tree, err := commit.Tree()
	if err != nil {
		return nil, fmt.Errorf("reading tree of %s: %w", hash, err)
	}
	return tree, nil
}
