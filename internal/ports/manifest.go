package ports

import (
	"context"

	"github.com/mcdonaldj/wptsync/internal/manifest"
)

// ManifestStore produces manifest snapshots of the synchronized tests.
type ManifestStore interface {
	// Load returns the snapshot stored by the previous update.
	Load(ctx context.Context, syncPath, metadataPath string) (*manifest.Snapshot, error)

	// Update regenerates, stores and returns the snapshot for the current sync checkout.
	Update(ctx context.Context, syncPath, metadataPath string) (*manifest.Snapshot, error)
}
