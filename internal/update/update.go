// Package update runs an update of the downstream test tree: it
// synchronizes the tests from the upstream mirror into the local tree as a
// patch, and then reconciles expected-result metadata against a test run.
package update

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chainguard-dev/clog"
	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"

	"github.com/mcdonaldj/wptsync/internal/config"
	"github.com/mcdonaldj/wptsync/internal/journal"
	"github.com/mcdonaldj/wptsync/internal/localtree"
	"github.com/mcdonaldj/wptsync/internal/ports"
)

// ErrTreeNotClean is returned when the local tree has pending changes and
// the clean check was not disabled.
var ErrTreeNotClean = errors.New("local tree is not clean")

// BranchPrefix starts the name of every isolation branch.
const BranchPrefix = "wptsync/"

// NewRunID returns a fresh run id.
func NewRunID() string {
	return uuid.NewString()
}

// IsolationBranch returns the isolation branch name for a run.
func IsolationBranch(runID string) string {
	return BranchPrefix + runID
}

// Deps are the collaborators of one run.
type Deps struct {
	RunID      string
	Mirror     ports.Mirror
	Tree       localtree.Tree
	Manifests  ports.ManifestStore
	Reconciler ports.ExpectationReconciler
	Runner     ports.TestRunner
	// Issues may be nil when updates are not filed under an issue.
	Issues ports.IssueTracker
	// Journal may be nil to skip step recording.
	Journal ports.StepJournal
	FS      ports.FileSystem
}

// Updater sequences the update flows over its collaborators.
type Updater struct {
	Deps
	steps *stepLog
	// mirrorUpdated is set once Mirror.Update has been attempted.
	mirrorUpdated bool
}

// New creates an Updater. A missing RunID is generated.
func New(deps Deps) *Updater {
	if deps.RunID == "" {
		deps.RunID = NewRunID()
	}
	return &Updater{
		Deps:  deps,
		steps: &stepLog{journal: deps.Journal, runID: deps.RunID},
	}
}

// Result reports what a run did.
type Result struct {
	RunID    string
	Branch   string
	Sync     *SyncResult
	Metadata *MetadataResult
}

// Run performs one update as selected by opts: the clean-tree check, the
// sync flow, the metadata flow and finally committing the patches.
//
// A failure is logged and returned as is. Nothing is rolled back unless
// opts.CleanupOnFailure is set, in which case the mirror is restored to its
// pre-update checkout.
func (u *Updater) Run(ctx context.Context, cfg *config.Config, opts config.Options) (*Result, error) {
	log := clog.FromContext(ctx).With("run", u.RunID)
	ctx = clog.WithLogger(ctx, log)

	res := &Result{RunID: u.RunID, Branch: u.Mirror.IsolationBranch()}
	paths := cfg.Paths()

	if err := u.steps.begin(ctx, journal.Run{
		ID:              u.RunID,
		IsolationBranch: res.Branch,
		MirrorPath:      paths.Sync,
		StartedAt:       time.Now(),
	}); err != nil {
		return res, err
	}

	err := u.run(ctx, cfg, opts, paths, res)
	if err == nil {
		u.steps.finish(ctx, journal.StateSucceeded)
		log.Info("Update complete")
		return res, nil
	}

	log.Errorf("Update failed: %v", err)
	state := journal.StateFailed
	if opts.CleanupOnFailure && u.mirrorUpdated {
		if cerr := u.cleanup(ctx); cerr != nil {
			err = multierror.Append(err, cerr)
		} else {
			state = journal.StateCleaned
		}
	}
	u.steps.finish(ctx, state)
	return res, err
}

func (u *Updater) run(ctx context.Context, cfg *config.Config, opts config.Options, paths config.Paths, res *Result) error {
	log := clog.FromContext(ctx)

	if err := u.steps.do(ctx, StepEnsurePaths, func() error {
		return paths.Ensure(u.FS)
	}); err != nil {
		return err
	}

	log.Infof("Updating into a %s tree at %s", u.Tree.Kind(), u.Tree.Root())
	if err := u.steps.do(ctx, StepCheckClean, func() error {
		return u.checkClean(ctx, opts.NoCheckClean)
	}); err != nil {
		return err
	}

	var baseline ports.Baseline
	if opts.Sync {
		sync, err := u.SyncTests(ctx, paths)
		if err != nil {
			return err
		}
		res.Sync = sync
		baseline = ports.BaselineAt(sync.Initial.Revision)
	}

	if len(opts.RunLogs) > 0 {
		if !opts.Sync {
			log.Warn("Metadata update without a test sync in this run, no baseline revision is known")
		}
		meta, err := u.UpdateMetadata(ctx, paths, MetadataOptions{
			Baseline:       baseline,
			IgnoreExisting: opts.IgnoreExisting,
			Target:         opts.Target(cfg),
		})
		if err != nil {
			return err
		}
		res.Metadata = meta
	}

	if opts.CommitPatches {
		if err := u.steps.do(ctx, StepCommitPatch, func() error {
			return u.Tree.CommitPatch(ctx)
		}); err != nil {
			return err
		}
	}
	return nil
}

func (u *Updater) checkClean(ctx context.Context, override bool) error {
	clean, err := u.Tree.IsClean(ctx)
	if err != nil {
		return err
	}
	if clean {
		return nil
	}
	if override {
		clog.FromContext(ctx).Warn("Working tree is not clean, continuing")
		return nil
	}
	return fmt.Errorf("%w: %s", ErrTreeNotClean, u.Tree.Root())
}

func (u *Updater) cleanup(ctx context.Context) error {
	clog.FromContext(ctx).Infof("Cleaning up isolation branch %s", u.Mirror.IsolationBranch())
	return u.steps.do(ctx, StepCleanup, func() error {
		return u.Mirror.Clean(ctx)
	})
}

// messagePrefix returns "Bug <id> - " when an issue is configured.
func (u *Updater) messagePrefix() string {
	if u.Issues == nil {
		return ""
	}
	if id, ok := u.Issues.IssueID(); ok {
		return fmt.Sprintf("Bug %d - ", id)
	}
	return ""
}
