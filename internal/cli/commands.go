package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/chainguard-dev/clog"
	"github.com/hashicorp/go-multierror"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/mcdonaldj/wptsync/internal/config"
	"github.com/mcdonaldj/wptsync/internal/journal"
	"github.com/mcdonaldj/wptsync/internal/mirror"
	"github.com/mcdonaldj/wptsync/internal/update"
)

func (c *CLI) updateCommand() *cobra.Command {
	var opts config.Options
	cmd := &cobra.Command{
		Use:   "update",
		Short: "Sync tests from upstream and update expected results",
		Long: `Fetches the upstream revision into the sync clone, replaces the local test
directory with it and records the change as a patch. With --run-log, expected
result metadata is then updated from the given test run logs.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runUpdate(cmd, opts)
		},
	}
	addUpdateFlags(cmd.Flags(), &opts)
	return cmd
}

func addUpdateFlags(f *pflag.FlagSet, opts *config.Options) {
	f.StringVar(&opts.Rev, "rev", "", "upstream revision to sync (default the configured branch)")
	f.BoolVar(&opts.Patch, "patch", true, "record changes as a patch in the local tree")
	f.BoolVar(&opts.NoCheckClean, "no-check-clean", false, "run even if the local tree has pending changes")
	f.BoolVar(&opts.Sync, "sync", true, "sync tests from upstream")
	f.StringSliceVar(&opts.RunLogs, "run-log", nil, "structured test log to update expected results from (repeatable)")
	f.BoolVar(&opts.IgnoreExisting, "ignore-existing", false, "discard existing expected result metadata")
	f.IntVar(&opts.Bug, "bug", 0, "issue number to put in patch messages")
	f.BoolVar(&opts.CleanupOnFailure, "cleanup-on-failure", false, "restore the sync clone if the update fails")
	f.BoolVar(&opts.CommitPatches, "commit-patches", false, "finalize the patches after a successful update")
}

func (c *CLI) runUpdate(cmd *cobra.Command, opts config.Options) error {
	ctx := cmd.Context()
	cfg, base, err := c.loadConfig(ctx)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	opts.ConfigPath, opts.DataRoot, opts.Verbose = base.ConfigPath, base.DataRoot, base.Verbose

	if !opts.Sync && len(opts.RunLogs) == 0 {
		fmt.Fprintln(c.Out, "Nothing to do: --sync=false and no --run-log given.")
		return nil
	}

	fmt.Fprintf(c.Out, "%s Updating %s (%s) into %s\n",
		c.cyan("=>"), cfg.Upstream.RemoteURL, opts.Target(cfg), cfg.Local.TestPath)

	res, err := c.updateSvc().Update(ctx, cfg, opts)
	if res != nil {
		c.printResult(res)
	}
	if errors.Is(err, update.ErrTreeNotClean) {
		fmt.Fprintln(c.Err, c.red("Working tree is not clean. Commit your changes or pass --no-check-clean."))
	}
	return err
}

func (c *CLI) printResult(res *update.Result) {
	if s := res.Sync; s != nil {
		fmt.Fprintf(c.Out, "  %s synced to %s %s\n", c.green("*"), c.yellow(s.Revision), c.gray("("+s.Patch+")"))
		fmt.Fprintf(c.Out, "    %d added, %d removed, %d modified\n",
			len(s.Changes.Added), len(s.Changes.Removed), len(s.Changes.Modified))
	}
	if m := res.Metadata; m != nil {
		if m.Staged {
			fmt.Fprintf(c.Out, "  %s expected results updated %s\n", c.green("*"), c.gray("("+m.Patch+")"))
		} else {
			fmt.Fprintf(c.Out, "  %s expected results unchanged\n", c.gray("-"))
		}
		if len(m.NeedsReview) > 0 {
			c.printNeedsReview(m.NeedsReview)
		}
	}
	fmt.Fprintf(c.Out, "%s %s\n", c.gray("Run"), c.gray(res.RunID))
}

// printNeedsReview lists metadata that changed without an upstream change.
func (c *CLI) printNeedsReview(files []string) {
	fmt.Fprintln(c.Err, c.yellow("The following files got updated metadata, but did not change in the test update:"))
	t := table.NewWriter()
	t.SetOutputMirror(c.Err)
	t.AppendHeader(table.Row{"#", "METADATA FILE"})
	for i, f := range files {
		t.AppendRow(table.Row{i + 1, f})
	}
	t.Render()
}

func (c *CLI) journalCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "journal",
		Short: "List recorded update runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := c.loadConfig(cmd.Context())
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			store, err := c.journalSvc().Open(cfg.Journal.Path)
			if err != nil {
				return err
			}
			defer store.Close()

			runs, err := store.List()
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				fmt.Fprintln(c.Out, "No runs recorded.")
				return nil
			}
			c.printRuns(runs)
			return nil
		},
	}
}

func (c *CLI) printRuns(runs []journal.Run) {
	t := table.NewWriter()
	t.SetOutputMirror(c.Out)
	t.AppendHeader(table.Row{"RUN", "BRANCH", "STATE", "STARTED", "LAST STEP"})
	for _, r := range runs {
		last := ""
		if s, ok := r.LastStep(); ok {
			last = s.Name + " " + s.Status
		}
		t.AppendRow(table.Row{r.ID, r.IsolationBranch, c.stateColor(r.State), r.StartedAt.Format(time.DateTime), last})
	}
	t.Render()
}

func (c *CLI) stateColor(s journal.State) string {
	switch s {
	case journal.StateSucceeded:
		return c.green(string(s))
	case journal.StateFailed, journal.StateRunning:
		return c.red(string(s))
	default:
		return c.gray(string(s))
	}
}

func (c *CLI) recoverCommand() *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "recover",
		Short: "Delete isolation branches left by earlier runs",
		Long: `Deletes the isolation branch of every journaled run that was not cleaned up.
The branch currently checked out in the sync clone is kept.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runRecover(cmd, dryRun)
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "only list the branches that would be deleted")
	return cmd
}

func (c *CLI) runRecover(cmd *cobra.Command, dryRun bool) error {
	ctx := cmd.Context()
	log := clog.FromContext(ctx)

	cfg, _, err := c.loadConfig(ctx)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	store, err := c.journalSvc().Open(cfg.Journal.Path)
	if err != nil {
		return err
	}
	defer store.Close()

	orphans, err := store.Orphans()
	if err != nil {
		return err
	}
	if len(orphans) == 0 {
		fmt.Fprintln(c.Out, "No isolation branches to clean up.")
		return nil
	}

	var result *multierror.Error
	removed, kept := 0, 0
	for _, run := range orphans {
		if dryRun {
			fmt.Fprintf(c.Out, "  %s %s %s\n", c.gray("-"), run.IsolationBranch, c.gray("("+run.MirrorPath+")"))
			continue
		}
		err := c.branchSvc().DeleteBranch(ctx, cfg, run)
		switch {
		case errors.Is(err, mirror.ErrBranchCheckedOut):
			log.Debugf("Keeping checked out branch %s", run.IsolationBranch)
			fmt.Fprintf(c.Out, "  %s %s %s\n", c.gray("-"), run.IsolationBranch, c.gray("(checked out)"))
			kept++
		case err != nil:
			fmt.Fprintf(c.Out, "  %s %s: %v\n", c.red("x"), run.IsolationBranch, err)
			result = multierror.Append(result, fmt.Errorf("run %s: %w", run.ID, err))
		default:
			if err := store.MarkCleaned(run.ID); err != nil {
				result = multierror.Append(result, fmt.Errorf("run %s: %w", run.ID, err))
				continue
			}
			fmt.Fprintf(c.Out, "  %s %s\n", c.green("*"), run.IsolationBranch)
			removed++
		}
	}

	if !dryRun {
		fmt.Fprintf(c.Out, "Done: %s removed, %s kept\n",
			c.green(fmt.Sprintf("%d", removed)),
			c.gray(fmt.Sprintf("%d", kept)))
	}
	return result.ErrorOrNil()
}
