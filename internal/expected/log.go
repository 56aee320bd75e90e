package expected

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// maxLogLine bounds a single structured log entry.
const maxLogLine = 8 << 20

// entry is one line of a structured test log. Only the fields the
// reconciler needs are decoded.
type entry struct {
	Action   string `json:"action"`
	Test     string `json:"test"`
	Subtest  string `json:"subtest"`
	Status   string `json:"status"`
	Expected string `json:"expected"`
}

// Result is the observed outcome of one test.
type Result struct {
	Test     string
	Status   string
	Subtests map[string]string
}

// Results maps test ids to their observed outcome.
type Results map[string]*Result

func (r Results) get(test string) *Result {
	res, ok := r[test]
	if !ok {
		res = &Result{Test: test, Subtests: make(map[string]string)}
		r[test] = res
	}
	return res
}

// Tests returns the test ids in sorted order.
func (r Results) Tests() []string {
	tests := make([]string, 0, len(r))
	for t := range r {
		tests = append(tests, t)
	}
	sort.Strings(tests)
	return tests
}

// ReadLogs merges the results of every log. A later log overrides an
// earlier one for the same test.
func ReadLogs(paths []string) (Results, error) {
	results := make(Results)
	for _, p := range paths {
		if err := readLog(p, results); err != nil {
			return nil, err
		}
	}
	return results, nil
}

func readLog(path string, results Results) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening log: %w", err)
	}
	defer f.Close()

	r, closeFn, err := decompress(path, f)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	defer closeFn()

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLogLine)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		var e entry
		if err := json.Unmarshal([]byte(text), &e); err != nil {
			return fmt.Errorf("%s:%d: %w", path, line, err)
		}
		switch e.Action {
		case "test_end":
			results.get(e.Test).Status = e.Status
		case "test_status":
			results.get(e.Test).Subtests[e.Subtest] = e.Status
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("scanning %s: %w", path, err)
	}
	return nil
}

// decompress wraps r according to the file extension.
func decompress(path string, r io.Reader) (io.Reader, func(), error) {
	switch filepath.Ext(path) {
	case ".gz":
		zr, err := gzip.NewReader(r)
		if err != nil {
			return nil, nil, err
		}
		return zr, func() { zr.Close() }, nil
	case ".zst", ".zstd":
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, nil, err
		}
		return zr, zr.Close, nil
	default:
		return r, func() {}, nil
	}
}
