package ports

import "context"

// TestRunner produces structured log files for metadata reconciliation.
type TestRunner interface {
	// Run returns the log files of a test run against the tree at root.
	Run(ctx context.Context, root string) ([]string, error)

	// Cleanup releases anything the run acquired.
	Cleanup() error
}

// IssueTracker supplies the issue an update is filed under.
type IssueTracker interface {
	// IssueID returns the issue number, or false when there is none.
	IssueID() (int, bool)
}
