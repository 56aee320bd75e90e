package mocks

import (
	"context"

	"github.com/mcdonaldj/wptsync/internal/manifest"
	"github.com/mcdonaldj/wptsync/internal/ports"
)

// MockManifestStore implements ports.ManifestStore for testing.
type MockManifestStore struct {
	// Loaded is returned by Load
	Loaded *manifest.Snapshot
	// Updated is returned by Update
	Updated *manifest.Snapshot
	// LoadCalls and UpdateCalls record the sync path of each call
	LoadCalls   []string
	UpdateCalls []string
	// Errors maps method names to errors
	Errors   map[string]error
	Recorder *Recorder
}

// NewMockManifestStore creates a store whose snapshots carry the given revisions.
func NewMockManifestStore(loadedRev, updatedRev string) *MockManifestStore {
	return &MockManifestStore{
		Loaded:  &manifest.Snapshot{Revision: loadedRev, Items: map[string]manifest.Item{}},
		Updated: &manifest.Snapshot{Revision: updatedRev, Items: map[string]manifest.Item{}},
		Errors:  make(map[string]error),
	}
}

func (m *MockManifestStore) Load(ctx context.Context, syncPath, metadataPath string) (*manifest.Snapshot, error) {
	m.LoadCalls = append(m.LoadCalls, syncPath)
	m.Recorder.record("manifest.Load")
	if err, ok := m.Errors["Load"]; ok {
		return nil, err
	}
	return m.Loaded, nil
}

func (m *MockManifestStore) Update(ctx context.Context, syncPath, metadataPath string) (*manifest.Snapshot, error) {
	m.UpdateCalls = append(m.UpdateCalls, syncPath)
	m.Recorder.record("manifest.Update")
	if err, ok := m.Errors["Update"]; ok {
		return nil, err
	}
	return m.Updated, nil
}

// Compile-time check that MockManifestStore implements ports.ManifestStore.
var _ ports.ManifestStore = (*MockManifestStore)(nil)
