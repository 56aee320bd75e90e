package update

import (
	"context"
	"fmt"

	"github.com/chainguard-dev/clog"

	"github.com/mcdonaldj/wptsync/internal/config"
	"github.com/mcdonaldj/wptsync/internal/manifest"
)

// SyncResult is the outcome of the sync flow.
type SyncResult struct {
	// Revision is the upstream commit the tests were synchronized to.
	Revision string
	// Initial is the manifest before the copy. Its revision is the
	// baseline for metadata reconciliation.
	Initial *manifest.Snapshot
	Updated *manifest.Snapshot
	Changes manifest.Changes
	Patch   string
}

// PatchName returns the name of the test patch for rev.
func PatchName(rev string) string {
	return "web-platform-tests_update_" + rev
}

// MetadataPatchName returns the name of the metadata patch for rev.
func MetadataPatchName(rev string) string {
	return PatchName(rev) + "_metadata"
}

// SyncTests updates the mirror, replaces the test directory with the
// upstream tree and records the result as a patch in the local tree.
func (u *Updater) SyncTests(ctx context.Context, paths config.Paths) (*SyncResult, error) {
	log := clog.FromContext(ctx)
	res := &SyncResult{}

	if err := u.steps.do(ctx, StepMirrorUpdate, func() error {
		u.mirrorUpdated = true
		return u.Mirror.Update(ctx)
	}); err != nil {
		return nil, fmt.Errorf("updating mirror: %w", err)
	}
	rev, ok := u.Mirror.Revision(ctx)
	if !ok {
		return nil, fmt.Errorf("mirror at %s has no revision after update", paths.Sync)
	}
	res.Revision = rev
	log.Infof("Mirror is at %s on %s", rev, u.Mirror.IsolationBranch())

	if err := u.steps.do(ctx, StepLoadManifest, func() (err error) {
		res.Initial, err = u.Manifests.Load(ctx, paths.Sync, paths.Metadata)
		return err
	}); err != nil {
		return nil, fmt.Errorf("loading manifest: %w", err)
	}

	if err := u.steps.do(ctx, StepCopyWorkTree, func() error {
		return u.Mirror.CopyWorkTree(ctx, paths.Test)
	}); err != nil {
		return nil, fmt.Errorf("copying tests: %w", err)
	}

	if err := u.steps.do(ctx, StepUpdateManifest, func() (err error) {
		res.Updated, err = u.Manifests.Update(ctx, paths.Sync, paths.Metadata)
		return err
	}); err != nil {
		return nil, fmt.Errorf("updating manifest: %w", err)
	}
	res.Changes = res.Initial.Diff(res.Updated)
	log.Infof("Tests changed: %d added, %d removed, %d modified",
		len(res.Changes.Added), len(res.Changes.Removed), len(res.Changes.Modified))

	res.Patch = PatchName(rev)
	message := fmt.Sprintf("%sUpdate web-platform-tests to revision %s", u.messagePrefix(), rev)
	if err := u.steps.do(ctx, StepCreatePatch, func() error {
		return u.Tree.CreatePatch(ctx, res.Patch, message)
	}); err != nil {
		return nil, fmt.Errorf("creating patch: %w", err)
	}

	if err := u.steps.do(ctx, StepStageTests, func() error {
		if err := u.Tree.AddNew(ctx, paths.Test); err != nil {
			return err
		}
		return u.Tree.UpdatePatch(ctx, paths.Test, paths.Metadata)
	}); err != nil {
		return nil, fmt.Errorf("staging tests: %w", err)
	}

	return res, nil
}
