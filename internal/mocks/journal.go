package mocks

import (
	"context"

	"github.com/mcdonaldj/wptsync/internal/journal"
	"github.com/mcdonaldj/wptsync/internal/ports"
)

// MockJournal implements ports.StepJournal in memory.
type MockJournal struct {
	Runs     map[string]*journal.Run
	Errors   map[string]error
	Recorder *Recorder
}

// NewMockJournal creates an empty journal.
func NewMockJournal() *MockJournal {
	return &MockJournal{
		Runs:   make(map[string]*journal.Run),
		Errors: make(map[string]error),
	}
}

func (m *MockJournal) Begin(ctx context.Context, run journal.Run) error {
	if err, ok := m.Errors["Begin"]; ok {
		return err
	}
	run.State = journal.StateRunning
	m.Runs[run.ID] = &run
	return nil
}

func (m *MockJournal) Step(ctx context.Context, runID, step string, err error) error {
	m.Recorder.record("journal.Step " + step)
	if e, ok := m.Errors["Step"]; ok {
		return e
	}
	run, ok := m.Runs[runID]
	if !ok {
		return journal.ErrRunNotFound
	}
	rec := journal.StepRecord{Name: step, Status: journal.StepDone}
	if err != nil {
		rec.Status = journal.StepFailed
		rec.Error = err.Error()
	}
	run.Steps = append(run.Steps, rec)
	return nil
}

func (m *MockJournal) Finish(ctx context.Context, runID string, state journal.State) error {
	if err, ok := m.Errors["Finish"]; ok {
		return err
	}
	run, ok := m.Runs[runID]
	if !ok {
		return journal.ErrRunNotFound
	}
	run.State = state
	return nil
}

// StepNames returns the recorded step names of a run.
func (m *MockJournal) StepNames(runID string) []string {
	run, ok := m.Runs[runID]
	if !ok {
		return nil
	}
	names := make([]string, len(run.Steps))
	for i, s := range run.Steps {
		names[i] = s.Name
	}
	return names
}

// Compile-time check that MockJournal implements ports.StepJournal.
var _ ports.StepJournal = (*MockJournal)(nil)
