package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/mcdonaldj/wptsync/internal/adapters/execvcs"
	"github.com/mcdonaldj/wptsync/internal/adapters/osfs"
	"github.com/mcdonaldj/wptsync/internal/config"
	"github.com/mcdonaldj/wptsync/internal/expected"
	"github.com/mcdonaldj/wptsync/internal/journal"
	"github.com/mcdonaldj/wptsync/internal/localtree"
	"github.com/mcdonaldj/wptsync/internal/manifest"
	"github.com/mcdonaldj/wptsync/internal/mirror"
	"github.com/mcdonaldj/wptsync/internal/ports"
	"github.com/mcdonaldj/wptsync/internal/runner"
	"github.com/mcdonaldj/wptsync/internal/update"
)

// defaultConfigService wraps the config package functions.
type defaultConfigService struct{}

func (d *defaultConfigService) Env(ctx context.Context) (config.Env, error) {
	return config.LoadEnv(ctx)
}

func (d *defaultConfigService) Load(path, dataRoot string) (*config.Config, error) {
	return config.Load(path, dataRoot)
}

// defaultUpdateService wires the production collaborators for one run.
type defaultUpdateService struct{}

func (d *defaultUpdateService) Update(ctx context.Context, cfg *config.Config, opts config.Options) (*update.Result, error) {
	fs := osfs.New()
	runID := update.NewRunID()

	m, err := mirror.New(cfg.Upstream.RemoteURL, cfg.Upstream.SyncPath, opts.Target(cfg), update.IsolationBranch(runID), fs)
	if err != nil {
		return nil, err
	}

	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("getting working directory: %w", err)
	}
	tree := localtree.Detect(ctx, cwd, opts.Patch, execvcs.Mercurial(), execvcs.Git())

	j, err := journal.Open(cfg.Journal.Path)
	if err != nil {
		return nil, err
	}
	defer j.Close()

	u := update.New(update.Deps{
		RunID:      runID,
		Mirror:     m,
		Tree:       tree,
		Manifests:  manifest.NewStore(),
		Reconciler: expected.NewReconciler(),
		Runner:     runner.NewLogFiles(fs, opts.RunLogs...),
		Issues:     runner.Issue(opts.Bug),
		Journal:    j,
		FS:         fs,
	})
	return u.Run(ctx, cfg, opts)
}

// defaultJournalService opens the bbolt journal.
type defaultJournalService struct{}

func (d *defaultJournalService) Open(path string) (JournalStore, error) {
	j, err := journal.Open(path)
	if err != nil {
		return nil, err
	}
	return j, nil
}

// defaultBranchService deletes branches with go-git.
type defaultBranchService struct{}

func (d *defaultBranchService) DeleteBranch(ctx context.Context, cfg *config.Config, run journal.Run) error {
	m, err := mirror.New(cfg.Upstream.RemoteURL, run.MirrorPath, cfg.Upstream.Branch, run.IsolationBranch, osfs.New())
	if err != nil {
		return err
	}
	return m.DeleteBranch(ctx, run.IsolationBranch)
}

var (
	_ ports.StepJournal = (*journal.Journal)(nil)
	_ JournalStore      = (*journal.Journal)(nil)
)
