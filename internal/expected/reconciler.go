// Package expected updates expected-result metadata from structured test
// logs. Each test file with unexpected results gets an INI metadata file
// under the metadata root recording what was observed.
package expected

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/chainguard-dev/clog"

	"github.com/mcdonaldj/wptsync/internal/ports"
)

// defaultStatus holds the results that need no metadata entry.
var defaultStatus = map[string]bool{
	"OK":   true,
	"PASS": true,
}

// Reconciler implements ports.ExpectationReconciler.
type Reconciler struct{}

// NewReconciler creates a reconciler.
func NewReconciler() *Reconciler {
	return &Reconciler{}
}

// UpdateExpected rewrites the metadata of every logged test and returns the
// changed metadata files, relative to the metadata root, whose test file did
// not change upstream since the baseline. Without a baseline every changed
// file is returned.
func (r *Reconciler) UpdateExpected(ctx context.Context, req ports.ExpectedRequest) ([]string, error) {
	log := clog.FromContext(ctx)

	results, err := ReadLogs(req.LogFiles)
	if err != nil {
		return nil, err
	}
	log.Infof("Read results for %d tests from %d logs", len(results), len(req.LogFiles))

	byFile := make(map[string][]*Result)
	for _, test := range results.Tests() {
		file, _ := SplitTestID(test)
		byFile[file] = append(byFile[file], results[test])
	}

	var changed []string
	for file, tests := range byFile {
		ok, err := updateFile(req.MetadataPath, file, tests, req.IgnoreExisting)
		if err != nil {
			return nil, err
		}
		if ok {
			changed = append(changed, file)
		}
	}
	sort.Strings(changed)
	log.Infof("Updated %d metadata files", len(changed))

	upstream, err := upstreamChanges(ctx, req)
	if err != nil {
		return nil, err
	}

	var review []string
	for _, file := range changed {
		if upstream == nil || !upstream[file] {
			review = append(review, file+Ext)
		}
	}
	return review, nil
}

// upstreamChanges returns nil when no baseline is known.
func upstreamChanges(ctx context.Context, req ports.ExpectedRequest) (map[string]bool, error) {
	if !req.RevOld.Known {
		clog.FromContext(ctx).Warn("No baseline revision, every metadata change needs review")
		return nil, nil
	}
	changes, err := ChangedFiles(ctx, req.SyncPath, req.RevOld.Revision)
	if err != nil {
		return nil, fmt.Errorf("finding upstream changes since %s: %w", req.RevOld.Revision, err)
	}
	return changes, nil
}

// updateFile applies results to one metadata file and reports whether its
// content changed. A file left with no entries is removed.
func updateFile(root, testFile string, results []*Result, ignoreExisting bool) (bool, error) {
	p := MetadataFile(root, testFile)

	before, err := os.ReadFile(p)
	existed := err == nil
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return false, fmt.Errorf("reading %s: %w", p, err)
	}

	f := newFile()
	if !ignoreExisting {
		if f, err = LoadFile(p); err != nil {
			return false, err
		}
	}
	for _, res := range results {
		_, name := SplitTestID(res.Test)
		apply(f.test(name), res)
	}

	if f.Empty() {
		if !existed {
			return false, nil
		}
		if err := os.Remove(p); err != nil {
			return false, fmt.Errorf("removing %s: %w", p, err)
		}
		return true, nil
	}

	after, err := f.Encode()
	if err != nil {
		return false, fmt.Errorf("encoding %s: %w", p, err)
	}
	if existed && bytes.Equal(before, after) {
		return false, nil
	}
	if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
		return false, fmt.Errorf("creating metadata dir: %w", err)
	}
	if err := os.WriteFile(p, after, 0644); err != nil {
		return false, fmt.Errorf("writing %s: %w", p, err)
	}
	return true, nil
}

func apply(e *Expectations, res *Result) {
	if res.Status != "" {
		e.Status = nonDefault(res.Status)
	}
	for sub, status := range res.Subtests {
		if s := nonDefault(status); s != "" {
			e.Subtests[sub] = s
		} else {
			delete(e.Subtests, sub)
		}
	}
}

func nonDefault(status string) string {
	if defaultStatus[status] {
		return ""
	}
	return status
}

// Compile-time check that Reconciler implements ports.ExpectationReconciler.
var _ ports.ExpectationReconciler = (*Reconciler)(nil)
