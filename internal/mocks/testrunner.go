package mocks

import (
	"context"

	"github.com/mcdonaldj/wptsync/internal/ports"
)

// MockTestRunner implements ports.TestRunner for testing.
type MockTestRunner struct {
	Logs         []string
	RunCalls     []string
	CleanupCalls int
	Errors       map[string]error
	Recorder     *Recorder
}

// NewMockTestRunner creates a runner that returns logs.
func NewMockTestRunner(logs ...string) *MockTestRunner {
	return &MockTestRunner{Logs: logs, Errors: make(map[string]error)}
}

func (m *MockTestRunner) Run(ctx context.Context, root string) ([]string, error) {
	m.RunCalls = append(m.RunCalls, root)
	m.Recorder.record("runner.Run")
	if err, ok := m.Errors["Run"]; ok {
		return nil, err
	}
	return m.Logs, nil
}

func (m *MockTestRunner) Cleanup() error {
	m.CleanupCalls++
	if err, ok := m.Errors["Cleanup"]; ok {
		return err
	}
	return nil
}

// MockIssueTracker implements ports.IssueTracker for testing.
type MockIssueTracker struct {
	ID  int
	Has bool
}

func (m *MockIssueTracker) IssueID() (int, bool) { return m.ID, m.Has }

var (
	_ ports.TestRunner   = (*MockTestRunner)(nil)
	_ ports.IssueTracker = (*MockIssueTracker)(nil)
)
