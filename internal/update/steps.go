package update

import (
	"context"

	"github.com/chainguard-dev/clog"

	"github.com/mcdonaldj/wptsync/internal/journal"
	"github.com/mcdonaldj/wptsync/internal/ports"
)

// Step names recorded in the journal.
const (
	StepEnsurePaths    = "ensure-paths"
	StepCheckClean     = "check-clean"
	StepMirrorUpdate   = "mirror-update"
	StepLoadManifest   = "load-manifest"
	StepCopyWorkTree   = "copy-work-tree"
	StepUpdateManifest = "update-manifest"
	StepCreatePatch    = "create-patch"
	StepStageTests     = "stage-tests"
	StepRunTests       = "run-tests"
	StepMetadataPatch  = "create-metadata-patch"
	StepUpdateExpected = "update-expected"
	StepStageMetadata  = "stage-metadata"
	StepCommitPatch    = "commit-patch"
	StepCleanup        = "cleanup"
)

// stepLog records steps when a journal is configured. Failing to record a
// step is logged but does not fail the run; only Begin is fatal, since a
// run the journal never saw could leave an untracked branch behind.
type stepLog struct {
	journal ports.StepJournal
	runID   string
}

func (s *stepLog) begin(ctx context.Context, run journal.Run) error {
	if s.journal == nil {
		return nil
	}
	return s.journal.Begin(ctx, run)
}

// do runs fn and records its outcome under name.
func (s *stepLog) do(ctx context.Context, name string, fn func() error) error {
	clog.FromContext(ctx).Debugf("Step %s", name)
	err := fn()
	if s.journal != nil {
		if jerr := s.journal.Step(ctx, s.runID, name, err); jerr != nil {
			clog.FromContext(ctx).Warnf("Recording step %s: %v", name, jerr)
		}
	}
	return err
}

func (s *stepLog) finish(ctx context.Context, state journal.State) {
	if s.journal == nil {
		return
	}
	if err := s.journal.Finish(ctx, s.runID, state); err != nil {
		clog.FromContext(ctx).Warnf("Recording run state %s: %v", state, err)
	}
}
