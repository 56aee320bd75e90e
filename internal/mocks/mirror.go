package mocks

import (
	"context"

	"github.com/mcdonaldj/wptsync/internal/ports"
)

// MockMirror implements ports.Mirror for testing.
type MockMirror struct {
	// Rev is returned by Revision once Update has succeeded, or from the
	// start when Cloned is true
	Rev    string
	Cloned bool
	Branch string
	// UpdateCalls counts calls to Update
	UpdateCalls int
	// CopyCalls records destinations passed to CopyWorkTree
	CopyCalls []string
	// CleanCalls counts calls to Clean
	CleanCalls int
	// Errors maps method names to errors
	Errors   map[string]error
	Recorder *Recorder
}

// NewMockMirror creates a mock mirror that resolves to rev.
func NewMockMirror(rev, branch string) *MockMirror {
	return &MockMirror{
		Rev:    rev,
		Branch: branch,
		Errors: make(map[string]error),
	}
}

func (m *MockMirror) Update(ctx context.Context) error {
	m.UpdateCalls++
	m.Recorder.record("mirror.Update")
	if err, ok := m.Errors["Update"]; ok {
		return err
	}
	m.Cloned = true
	return nil
}

func (m *MockMirror) Revision(ctx context.Context) (string, bool) {
	if !m.Cloned {
		return "", false
	}
	return m.Rev, true
}

func (m *MockMirror) CopyWorkTree(ctx context.Context, dest string) error {
	m.CopyCalls = append(m.CopyCalls, dest)
	m.Recorder.record("mirror.CopyWorkTree " + dest)
	if err, ok := m.Errors["CopyWorkTree"]; ok {
		return err
	}
	return nil
}

func (m *MockMirror) Clean(ctx context.Context) error {
	m.CleanCalls++
	m.Recorder.record("mirror.Clean")
	if err, ok := m.Errors["Clean"]; ok {
		return err
	}
	return nil
}

func (m *MockMirror) IsolationBranch() string { return m.Branch }

// Compile-time check that MockMirror implements ports.Mirror.
var _ ports.Mirror = (*MockMirror)(nil)
