// Package journal records update runs in a bbolt database: the isolation
// branch each run created and the outcome of every step. A run that never
// reached a clean state leaves an orphaned branch that recover can find.
package journal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/chainguard-dev/clog"
	"go.etcd.io/bbolt"
)

var bucketRuns = []byte("runs")

// ErrRunNotFound is returned for an unknown run id.
var ErrRunNotFound = errors.New("run not found")

// State is the lifecycle state of a run.
type State string

const (
	StateRunning   State = "running"
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
	// StateCleaned marks a run whose isolation branch has been removed.
	StateCleaned State = "cleaned"
)

const (
	StepDone   = "done"
	StepFailed = "failed"
)

type StepRecord struct {
	Name   string    `json:"name"`
	Status string    `json:"status"`
	Error  string    `json:"error,omitempty"`
	At     time.Time `json:"at"`
}

// Run is one invocation of the updater.
type Run struct {
	ID              string       `json:"id"`
	IsolationBranch string       `json:"isolation_branch"`
	MirrorPath      string       `json:"mirror_path"`
	StartedAt       time.Time    `json:"started_at"`
	FinishedAt      time.Time    `json:"finished_at,omitempty"`
	State           State        `json:"state"`
	Steps           []StepRecord `json:"steps,omitempty"`
}

// LastStep returns the most recently recorded step, if any.
func (r Run) LastStep() (StepRecord, bool) {
	if len(r.Steps) == 0 {
		return StepRecord{}, false
	}
	return r.Steps[len(r.Steps)-1], true
}

// Journal is a bbolt-backed run journal.
type Journal struct {
	db *bbolt.DB
}

// Open opens or creates the journal at path. bbolt holds an exclusive file
// lock, so a second invocation against the same journal fails after a short
// wait instead of running concurrently.
func Open(path string) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("creating journal dir: %w", err)
	}
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening journal %s: %w", path, err)
	}
	if err := db.Update(func(tx *bbolt.Tx) error {
		_, e := tx.CreateBucketIfNotExists(bucketRuns)
		return e
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Journal{db: db}, nil
}

func (j *Journal) Close() error { return j.db.Close() }

// Begin records the start of a run.
func (j *Journal) Begin(ctx context.Context, run Run) error {
	if run.ID == "" {
		return errors.New("run id cannot be empty")
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}
	if run.State == "" {
		run.State = StateRunning
	}
	clog.FromContext(ctx).Debugf("Journal: begin run %s (branch %s)", run.ID, run.IsolationBranch)
	return j.db.Update(func(tx *bbolt.Tx) error {
		return putRun(tx, run)
	})
}

// Step appends a step record. A nil err marks the step done.
func (j *Journal) Step(ctx context.Context, runID, step string, err error) error {
	rec := StepRecord{Name: step, Status: StepDone, At: time.Now().UTC()}
	if err != nil {
		rec.Status = StepFailed
		rec.Error = err.Error()
	}
	clog.FromContext(ctx).Debugf("Journal: run %s step %s %s", runID, step, rec.Status)
	return j.modify(runID, func(r *Run) {
		r.Steps = append(r.Steps, rec)
	})
}

// Finish records the final state of a run.
func (j *Journal) Finish(ctx context.Context, runID string, state State) error {
	clog.FromContext(ctx).Debugf("Journal: run %s finished %s", runID, state)
	return j.modify(runID, func(r *Run) {
		r.State = state
		r.FinishedAt = time.Now().UTC()
	})
}

// MarkCleaned records that the run's isolation branch was removed.
func (j *Journal) MarkCleaned(runID string) error {
	return j.modify(runID, func(r *Run) {
		r.State = StateCleaned
	})
}

// Get returns a single run.
func (j *Journal) Get(runID string) (Run, error) {
	var run Run
	err := j.db.View(func(tx *bbolt.Tx) error {
		var err error
		run, err = getRun(tx, runID)
		return err
	})
	return run, err
}

// List returns every run, oldest first.
func (j *Journal) List() ([]Run, error) {
	var runs []Run
	err := j.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketRuns).ForEach(func(_, v []byte) error {
			var r Run
			if err := json.Unmarshal(v, &r); err != nil {
				return err
			}
			runs = append(runs, r)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(runs, func(a, b int) bool {
		return runs[a].StartedAt.Before(runs[b].StartedAt)
	})
	return runs, nil
}

// Orphans returns runs whose isolation branch has not been cleaned up.
func (j *Journal) Orphans() ([]Run, error) {
	runs, err := j.List()
	if err != nil {
		return nil, err
	}
	var orphans []Run
	for _, r := range runs {
		if r.State != StateCleaned && r.IsolationBranch != "" {
			orphans = append(orphans, r)
		}
	}
	return orphans, nil
}

func (j *Journal) modify(runID string, fn func(*Run)) error {
	return j.db.Update(func(tx *bbolt.Tx) error {
		run, err := getRun(tx, runID)
		if err != nil {
			return err
		}
		fn(&run)
		return putRun(tx, run)
	})
}

func getRun(tx *bbolt.Tx, runID string) (Run, error) {
	var run Run
	v := tx.Bucket(bucketRuns).Get([]byte(runID))
	if v == nil {
		return run, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if err := json.Unmarshal(v, &run); err != nil {
		return run, fmt.Errorf("decoding run %s: %w", runID, err)
	}
	return run, nil
}

func putRun(tx *bbolt.Tx, run Run) error {
	data, err := json.Marshal(run)
	if err != nil {
		return err
	}
	return tx.Bucket(bucketRuns).Put([]byte(run.ID), data)
}
