// Package execvcs provides a version-control runner adapter using exec.CommandContext.
package execvcs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/mcdonaldj/wptsync/internal/ports"
)

// ExecError is returned when a VCS command exits non-zero.
type ExecError struct {
	Tool   string
	Args   []string
	Dir    string
	Err    error
	Stdout string
	Stderr string
}

func (e *ExecError) Error() string {
	b := new(strings.Builder)
	fmt.Fprintf(b, "%s %s", e.Tool, strings.Join(e.Args, " "))
	if e.Dir != "" {
		fmt.Fprintf(b, " (in %s)", e.Dir)
	}
	b.WriteString(": ")
	b.WriteString(e.Err.Error())
	if s := strings.TrimSpace(e.Stderr); s != "" {
		b.WriteString(": ")
		b.WriteString(s)
	}
	return b.String()
}

func (e *ExecError) Unwrap() error { return e.Err }

// Output returns the combined captured output of a failed command, or ""
// when err is not an ExecError.
func Output(err error) string {
	var execErr *ExecError
	if errors.As(err, &execErr) {
		return execErr.Stdout + execErr.Stderr
	}
	return ""
}

// ExecRunner implements ports.VCSRunner for a single executable.
type ExecRunner struct {
	tool string
	path string
	env  []string
}

// Option is a functional option for configuring ExecRunner.
type Option func(*ExecRunner)

// WithPath sets a custom path to the executable.
func WithPath(path string) Option {
	return func(r *ExecRunner) {
		r.path = path
	}
}

// WithEnv appends environment variables to every command.
func WithEnv(env ...string) Option {
	return func(r *ExecRunner) {
		r.env = append(r.env, env...)
	}
}

// New creates a runner for tool, which is resolved on PATH at run time
// unless WithPath is given.
func New(tool string, opts ...Option) *ExecRunner {
	r := &ExecRunner{
		tool: tool,
		path: tool,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Git returns a runner for git.
func Git(opts ...Option) *ExecRunner { return New("git", opts...) }

// Mercurial returns a runner for hg. HGPLAIN keeps output stable across user configs.
func Mercurial(opts ...Option) *ExecRunner {
	return New("hg", append([]Option{WithEnv("HGPLAIN=1")}, opts...)...)
}

// Name returns the executable name.
func (r *ExecRunner) Name() string {
	return r.tool
}

// Run runs a subcommand. Omit the tool name from args.
func (r *ExecRunner) Run(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, r.path, args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), r.env...)

	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	if err := cmd.Run(); err != nil {
		return stdout.String(), &ExecError{
			Tool:   r.tool,
			Args:   args,
			Dir:    dir,
			Err:    err,
			Stdout: stdout.String(),
			Stderr: stderr.String(),
		}
	}
	return stdout.String(), nil
}

// Compile-time check that ExecRunner implements ports.VCSRunner.
var _ ports.VCSRunner = (*ExecRunner)(nil)
