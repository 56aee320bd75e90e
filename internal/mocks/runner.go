package mocks

import (
	"context"
	"strings"

	"github.com/mcdonaldj/wptsync/internal/ports"
)

// MockRunner implements ports.VCSRunner for testing.
//
// Outputs and Errors are keyed by the space-joined arguments. When no exact
// key matches, the subcommand alone (the first argument) is tried.
type MockRunner struct {
	Tool string
	// Calls records every invocation
	Calls []RunCall
	// Outputs maps arguments to canned stdout
	Outputs map[string]string
	// Errors maps arguments to errors
	Errors map[string]error
	// Recorder, when set, receives "<tool> <args>" for every call
	Recorder *Recorder
}

// RunCall records parameters of a Run call.
type RunCall struct {
	Dir  string
	Args []string
}

// Line returns the arguments joined with spaces.
func (c RunCall) Line() string {
	return strings.Join(c.Args, " ")
}

// NewMockRunner creates a mock runner for tool.
func NewMockRunner(tool string) *MockRunner {
	return &MockRunner{
		Tool:    tool,
		Outputs: make(map[string]string),
		Errors:  make(map[string]error),
	}
}

// Name returns the tool name.
func (m *MockRunner) Name() string { return m.Tool }

// Run records the call and returns the canned result.
func (m *MockRunner) Run(ctx context.Context, dir string, args ...string) (string, error) {
	call := RunCall{Dir: dir, Args: args}
	m.Calls = append(m.Calls, call)
	m.Recorder.record(m.Tool + " " + call.Line())

	key := call.Line()
	var sub string
	if len(args) > 0 {
		sub = args[0]
	}
	if err, ok := m.Errors[key]; ok {
		return m.Outputs[key], err
	}
	if err, ok := m.Errors[sub]; ok {
		return m.Outputs[sub], err
	}
	if out, ok := m.Outputs[key]; ok {
		return out, nil
	}
	return m.Outputs[sub], nil
}

// Lines returns the argument lines of every call in order.
func (m *MockRunner) Lines() []string {
	lines := make([]string, len(m.Calls))
	for i, c := range m.Calls {
		lines[i] = c.Line()
	}
	return lines
}

// Compile-time check that MockRunner implements ports.VCSRunner.
var _ ports.VCSRunner = (*MockRunner)(nil)
