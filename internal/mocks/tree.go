package mocks

import (
	"context"
	"fmt"
	"strings"

	"github.com/mcdonaldj/wptsync/internal/localtree"
)

// MockTree implements localtree.Tree for testing.
type MockTree struct {
	TreeKind localtree.Kind
	RootPath string
	// Clean is returned by IsClean. CleanResults, when non-empty, is
	// consumed first, one value per call.
	Clean        bool
	CleanResults []bool
	// Calls records every method call as "Method args"
	Calls []string
	// Patches records the names passed to CreatePatch
	Patches []string
	// Errors maps method names to errors
	Errors   map[string]error
	Recorder *Recorder
}

// NewMockTree creates a clean mock tree at root.
func NewMockTree(kind localtree.Kind, root string) *MockTree {
	return &MockTree{
		TreeKind: kind,
		RootPath: root,
		Clean:    true,
		Errors:   make(map[string]error),
	}
}

func (m *MockTree) call(method string, args ...string) error {
	line := strings.TrimSpace(method + " " + strings.Join(args, " "))
	m.Calls = append(m.Calls, line)
	m.Recorder.record("tree." + line)
	if err, ok := m.Errors[method]; ok {
		return err
	}
	return nil
}

func (m *MockTree) Kind() localtree.Kind { return m.TreeKind }
func (m *MockTree) Root() string         { return m.RootPath }

func (m *MockTree) IsClean(ctx context.Context) (bool, error) {
	if err := m.call("IsClean"); err != nil {
		return false, err
	}
	if len(m.CleanResults) > 0 {
		clean := m.CleanResults[0]
		m.CleanResults = m.CleanResults[1:]
		return clean, nil
	}
	return m.Clean, nil
}

func (m *MockTree) AddNew(ctx context.Context, prefix string) error {
	return m.call("AddNew", prefix)
}

func (m *MockTree) CreatePatch(ctx context.Context, name, message string) error {
	m.Patches = append(m.Patches, name)
	return m.call("CreatePatch", name, fmt.Sprintf("%q", message))
}

func (m *MockTree) UpdatePatch(ctx context.Context, include ...string) error {
	return m.call("UpdatePatch", include...)
}

func (m *MockTree) CommitPatch(ctx context.Context) error {
	return m.call("CommitPatch")
}

// Compile-time check that MockTree implements localtree.Tree.
var _ localtree.Tree = (*MockTree)(nil)
