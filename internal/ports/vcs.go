package ports

import "context"

// VCSRunner runs subcommands of one version-control tool.
// Production code uses the execvcs adapter; tests use MockRunner.
type VCSRunner interface {
	// Name returns the executable name, e.g. "git" or "hg".
	Name() string

	// Run runs the subcommand in dir (the process working directory when
	// dir is empty) and returns its captured stdout.
	// A non-zero exit is returned as an error carrying stderr.
	Run(ctx context.Context, dir string, args ...string) (string, error)
}
