package ports

import (
	"context"

	"github.com/mcdonaldj/wptsync/internal/journal"
)

// StepJournal records the progress of update runs so that a crashed run can
// be inspected and its isolation branch cleaned up.
type StepJournal interface {
	// Begin records the start of a run.
	Begin(ctx context.Context, run journal.Run) error

	// Step records the outcome of one step. A nil err marks it done.
	Step(ctx context.Context, runID, step string, err error) error

	// Finish records the final state of a run.
	Finish(ctx context.Context, runID string, state journal.State) error
}
