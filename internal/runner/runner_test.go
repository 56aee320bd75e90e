package runner

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/mcdonaldj/wptsync/internal/mocks"
)

func TestLogFilesRun(t *testing.T) {
	fs := mocks.NewMockFileSystem()
	fs.WriteFile("/logs/a.log", []byte("{}"), 0644)
	fs.WriteFile("/logs/b.log.gz", []byte("x"), 0644)

	r := NewLogFiles(fs, "/logs/a.log", "/logs/b.log.gz")
	got, err := r.Run(context.Background(), "/tests")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	want := []string{"/logs/a.log", "/logs/b.log.gz"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Run = %v, expected %v", got, want)
	}
	if err := r.Cleanup(); err != nil {
		t.Errorf("Cleanup = %v", err)
	}
}

func TestLogFilesRunErrors(t *testing.T) {
	fs := mocks.NewMockFileSystem()
	fs.MkdirAll("/logs", 0755)

	tests := []struct {
		name string
		logs []string
	}{
		{"no logs", nil},
		{"missing", []string{"/logs/missing.log"}},
		{"directory", []string{"/logs"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewLogFiles(fs, tt.logs...).Run(context.Background(), "/tests"); err == nil {
				t.Error("expected error")
			}
		})
	}

	if _, err := NewLogFiles(fs).Run(context.Background(), "/tests"); !errors.Is(err, ErrNoLogs) {
		t.Errorf("expected ErrNoLogs, got %v", err)
	}
}

func TestIssue(t *testing.T) {
	if _, ok := Issue(0).IssueID(); ok {
		t.Error("zero issue should report none")
	}
	if id, ok := Issue(1234).IssueID(); !ok || id != 1234 {
		t.Errorf("IssueID = %d, %v, expected 1234, true", id, ok)
	}
}
