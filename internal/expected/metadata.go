package expected

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/ini.v1"
)

const (
	// Ext is appended to the test file path to name its metadata file.
	Ext = ".ini"

	keyExpected = "expected"

	// subtestSep joins a test name and a subtest name into a section name.
	subtestSep = " / "
)

// Expectations holds the non-default expected results of one test.
type Expectations struct {
	Status   string
	Subtests map[string]string
}

func (e *Expectations) empty() bool {
	return e.Status == "" && len(e.Subtests) == 0
}

// File is the metadata for every test defined by one test file, keyed by
// test name (the file's base name plus any query variant).
type File struct {
	Tests map[string]*Expectations
}

func newFile() *File {
	return &File{Tests: make(map[string]*Expectations)}
}

func (f *File) test(name string) *Expectations {
	e, ok := f.Tests[name]
	if !ok {
		e = &Expectations{Subtests: make(map[string]string)}
		f.Tests[name] = e
	}
	return e
}

// Empty reports whether the file records nothing.
func (f *File) Empty() bool {
	for _, e := range f.Tests {
		if !e.empty() {
			return false
		}
	}
	return true
}

// SplitTestID splits a test id such as "/dom/a.html?b" into the
// slash-separated path of its test file and the test name "a.html?b".
func SplitTestID(id string) (file, name string) {
	id = strings.TrimPrefix(id, "/")
	file = id
	if i := strings.IndexAny(id, "?#"); i >= 0 {
		file = id[:i]
	}
	return file, path.Base(file) + id[len(file):]
}

// MetadataFile returns the metadata file path for a test file under root.
func MetadataFile(root, testFile string) string {
	return filepath.Join(root, filepath.FromSlash(testFile)+Ext)
}

// LoadFile reads a metadata file. A missing file yields an empty File.
func LoadFile(p string) (*File, error) {
	f := newFile()
	if _, err := os.Stat(p); errors.Is(err, os.ErrNotExist) {
		return f, nil
	}
	cfg, err := ini.Load(p)
	if err != nil {
		return nil, fmt.Errorf("loading metadata %s: %w", p, err)
	}
	for _, sec := range cfg.Sections() {
		if sec.Name() == ini.DefaultSection {
			continue
		}
		status := sec.Key(keyExpected).String()
		if status == "" {
			continue
		}
		testName, subtest, isSubtest := strings.Cut(sec.Name(), subtestSep)
		e := f.test(testName)
		if isSubtest {
			e.Subtests[subtest] = status
		} else {
			e.Status = status
		}
	}
	return f, nil
}

// Encode renders the file in a stable order.
func (f *File) Encode() ([]byte, error) {
	cfg := ini.Empty()
	names := make([]string, 0, len(f.Tests))
	for n := range f.Tests {
		names = append(names, n)
	}
	sort.Strings(names)

	for _, name := range names {
		e := f.Tests[name]
		if e.empty() {
			continue
		}
		if e.Status != "" {
			if _, err := cfg.Section(name).NewKey(keyExpected, e.Status); err != nil {
				return nil, err
			}
		}
		subtests := make([]string, 0, len(e.Subtests))
		for s := range e.Subtests {
			subtests = append(subtests, s)
		}
		sort.Strings(subtests)
		for _, s := range subtests {
			if _, err := cfg.Section(name+subtestSep+s).NewKey(keyExpected, e.Subtests[s]); err != nil {
				return nil, err
			}
		}
	}

	var buf bytes.Buffer
	if _, err := cfg.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
