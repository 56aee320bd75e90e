package mocks

import (
	"context"

	"github.com/mcdonaldj/wptsync/internal/ports"
)

// MockReconciler implements ports.ExpectationReconciler for testing.
type MockReconciler struct {
	// NeedsReview is returned by UpdateExpected
	NeedsReview []string
	// Requests records every request
	Requests []ports.ExpectedRequest
	// OnUpdate, when set, runs before returning, e.g. to dirty a tree
	OnUpdate func(req ports.ExpectedRequest)
	Err      error
	Recorder *Recorder
}

// NewMockReconciler creates a reconciler that reports needsReview.
func NewMockReconciler(needsReview ...string) *MockReconciler {
	return &MockReconciler{NeedsReview: needsReview}
}

func (m *MockReconciler) UpdateExpected(ctx context.Context, req ports.ExpectedRequest) ([]string, error) {
	m.Requests = append(m.Requests, req)
	m.Recorder.record("expected.UpdateExpected")
	if m.OnUpdate != nil {
		m.OnUpdate(req)
	}
	if m.Err != nil {
		return nil, m.Err
	}
	return m.NeedsReview, nil
}

// Compile-time check that MockReconciler implements ports.ExpectationReconciler.
var _ ports.ExpectationReconciler = (*MockReconciler)(nil)
