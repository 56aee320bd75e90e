// Package runner supplies test results to metadata reconciliation. The
// updater does not execute tests itself: LogFiles hands over the logs of a
// run made elsewhere.
package runner

import (
	"context"
	"errors"
	"fmt"

	"github.com/chainguard-dev/clog"

	"github.com/mcdonaldj/wptsync/internal/ports"
)

// ErrNoLogs is returned when no run log was configured.
var ErrNoLogs = errors.New("no run logs configured")

// LogFiles implements ports.TestRunner by returning existing log files.
type LogFiles struct {
	logs []string
	fs   ports.FileSystem
}

// NewLogFiles creates a runner that returns logs.
func NewLogFiles(fs ports.FileSystem, logs ...string) *LogFiles {
	return &LogFiles{logs: logs, fs: fs}
}

// Run checks that every log exists and returns them.
func (r *LogFiles) Run(ctx context.Context, root string) ([]string, error) {
	if len(r.logs) == 0 {
		return nil, ErrNoLogs
	}
	for _, p := range r.logs {
		info, err := r.fs.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("run log %s: %w", p, err)
		}
		if info.IsDir() {
			return nil, fmt.Errorf("run log %s is a directory", p)
		}
	}
	clog.FromContext(ctx).Infof("Using %d existing run logs for %s", len(r.logs), root)
	return r.logs, nil
}

// Cleanup does nothing. The logs belong to the caller.
func (r *LogFiles) Cleanup() error { return nil }

// Issue is a fixed issue id. The zero value has no issue.
type Issue int

// IssueID returns the id, or false when it is zero.
func (i Issue) IssueID() (int, bool) {
	return int(i), i > 0
}

var (
	_ ports.TestRunner   = (*LogFiles)(nil)
	_ ports.IssueTracker = Issue(0)
)
