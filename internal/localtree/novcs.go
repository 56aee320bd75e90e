package localtree

import "context"

// NoVCS is a tree that is not under version control. It is always clean
// and every mutation is a no-op.
type NoVCS struct {
	root string
}

// NewNoVCS returns a no-op tree rooted at root.
func NewNoVCS(root string) *NoVCS {
	return &NoVCS{root: root}
}

func (t *NoVCS) Kind() Kind { return KindNone }
func (t *NoVCS) Root() string { return t.root }

func (t *NoVCS) IsClean(ctx context.Context) (bool, error) { return true, nil }
func (t *NoVCS) AddNew(ctx context.Context, prefix string) error { return nil }
func (t *NoVCS) CreatePatch(ctx context.Context, name, message string) error { return nil }
func (t *NoVCS) UpdatePatch(ctx context.Context, include ...string) error { return nil }
func (t *NoVCS) CommitPatch(ctx context.Context) error { return nil }

var _ Tree = (*NoVCS)(nil)
