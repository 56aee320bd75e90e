package update

import (
	"context"
	"errors"
	"fmt"

	"github.com/chainguard-dev/clog"

	"github.com/mcdonaldj/wptsync/internal/config"
	"github.com/mcdonaldj/wptsync/internal/localtree"
	"github.com/mcdonaldj/wptsync/internal/ports"
)

// MetadataOptions control the metadata flow.
type MetadataOptions struct {
	// Baseline is the upstream revision the previous sync left behind.
	Baseline       ports.Baseline
	IgnoreExisting bool
	// Target names the patch when the mirror has no revision yet.
	Target string
}

// MetadataResult is the outcome of the metadata flow.
type MetadataResult struct {
	Logs []string
	// NeedsReview lists metadata files that changed although their test
	// did not change upstream. They are reported, never resolved.
	NeedsReview []string
	// Staged is true when metadata changes were added to the patch.
	Staged bool
	Patch  string
}

// UpdateMetadata reconciles expected-result metadata with the logs of a test
// run and records any change as a second patch.
func (u *Updater) UpdateMetadata(ctx context.Context, paths config.Paths, opts MetadataOptions) (res *MetadataResult, err error) {
	log := clog.FromContext(ctx)
	res = &MetadataResult{}

	defer func() {
		if cerr := u.Runner.Cleanup(); cerr != nil {
			log.Warnf("Cleaning up test runner: %v", cerr)
		}
	}()

	if err := u.steps.do(ctx, StepRunTests, func() (err error) {
		res.Logs, err = u.Runner.Run(ctx, paths.Test)
		return err
	}); err != nil {
		return nil, fmt.Errorf("getting run logs: %w", err)
	}

	rev, ok := u.Mirror.Revision(ctx)
	if !ok {
		rev = opts.Target
	}
	res.Patch = MetadataPatchName(rev)
	message := fmt.Sprintf("%sUpdate web-platform-tests expected data to revision %s", u.messagePrefix(), rev)
	if err := u.steps.do(ctx, StepMetadataPatch, func() error {
		err := u.Tree.CreatePatch(ctx, res.Patch, message)
		if errors.Is(err, localtree.ErrPatchExists) {
			log.Infof("Patch %s already exists, updating it", res.Patch)
			return nil
		}
		return err
	}); err != nil {
		return nil, fmt.Errorf("creating metadata patch: %w", err)
	}

	if !opts.Baseline.Known {
		log.Warn("Reconciling metadata without a baseline revision")
	}
	if err := u.steps.do(ctx, StepUpdateExpected, func() (err error) {
		res.NeedsReview, err = u.Reconciler.UpdateExpected(ctx, ports.ExpectedRequest{
			SyncPath:       paths.Sync,
			MetadataPath:   paths.Metadata,
			LogFiles:       res.Logs,
			RevOld:         opts.Baseline,
			IgnoreExisting: opts.IgnoreExisting,
		})
		return err
	}); err != nil {
		return nil, fmt.Errorf("updating expected results: %w", err)
	}
	if len(res.NeedsReview) > 0 {
		log.Warnf("%d metadata files changed without an upstream test change", len(res.NeedsReview))
	}

	clean, err := u.Tree.IsClean(ctx)
	if err != nil {
		return nil, err
	}
	if clean {
		return res, nil
	}
	if err := u.steps.do(ctx, StepStageMetadata, func() error {
		if err := u.Tree.AddNew(ctx, paths.Metadata); err != nil {
			return err
		}
		return u.Tree.UpdatePatch(ctx, paths.Metadata)
	}); err != nil {
		return nil, fmt.Errorf("staging metadata: %w", err)
	}
	res.Staged = true
	return res, nil
}
