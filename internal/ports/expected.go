package ports

import "context"

// Baseline is the upstream revision that metadata changes are judged against.
// The zero value means no baseline is known.
type Baseline struct {
	Revision string
	Known    bool
}

// BaselineAt returns a known baseline at rev. An empty rev yields no baseline.
func BaselineAt(rev string) Baseline {
	return Baseline{Revision: rev, Known: rev != ""}
}

// ExpectedRequest holds the inputs to an expected-result metadata update.
type ExpectedRequest struct {
	SyncPath       string
	MetadataPath   string
	LogFiles       []string
	RevOld         Baseline
	IgnoreExisting bool
}

// ExpectationReconciler rewrites expected-result metadata from test logs.
type ExpectationReconciler interface {
	// UpdateExpected applies the logged results to the metadata directory and
	// returns the metadata files that changed without a matching upstream
	// test change. Those need a human to review them.
	UpdateExpected(ctx context.Context, req ExpectedRequest) ([]string, error)
}
