// Package config loads the updater's INI configuration and holds the
// options of a single invocation.
package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sethvargo/go-envconfig"
	"gopkg.in/ini.v1"

	"github.com/mcdonaldj/wptsync/internal/ports"
)

// DefaultBranch is the upstream branch synchronized when neither the
// invocation nor the config names one.
const DefaultBranch = "master"

// Upstream is the [web-platform-tests] section.
type Upstream struct {
	RemoteURL string `ini:"remote_url"`
	Branch    string `ini:"branch"`
	SyncPath  string `ini:"sync_path"`
}

// Local is the [local] section.
type Local struct {
	TestPath     string `ini:"test_path"`
	MetadataPath string `ini:"metadata_path"`
}

// JournalSection is the optional [journal] section.
type JournalSection struct {
	Path string `ini:"path"`
}

type Config struct {
	Upstream Upstream
	Local    Local
	Journal  JournalSection
	// Base is the directory relative paths were resolved against.
	Base string
}

// Env holds defaults taken from the environment.
type Env struct {
	ConfigPath string `env:"WPTSYNC_CONFIG,default=wptsync.ini"`
	DataRoot   string `env:"WPTSYNC_DATA_ROOT"`
}

// LoadEnv reads Env from the process environment.
func LoadEnv(ctx context.Context) (Env, error) {
	var env Env
	if err := envconfig.Process(ctx, &env); err != nil {
		return Env{}, fmt.Errorf("processing environment: %w", err)
	}
	return env, nil
}

// Load reads the config file at path. Relative paths in the file are
// resolved against dataRoot, or against the file's directory when
// dataRoot is empty.
func Load(path, dataRoot string) (*Config, error) {
	path = ExpandPath(path)
	file, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("loading config %s: %w", path, err)
	}

	cfg := &Config{}
	sections := []struct {
		name   string
		target any
	}{
		{"web-platform-tests", &cfg.Upstream},
		{"local", &cfg.Local},
		{"journal", &cfg.Journal},
	}
	for _, s := range sections {
		sec, err := file.GetSection(s.name)
		if err != nil {
			continue
		}
		if err := sec.MapTo(s.target); err != nil {
			return nil, fmt.Errorf("parsing [%s]: %w", s.name, err)
		}
	}

	base := ExpandPath(dataRoot)
	if base == "" {
		base = filepath.Dir(path)
	}
	if base, err = filepath.Abs(base); err != nil {
		return nil, fmt.Errorf("resolving base path: %w", err)
	}
	cfg.Base = base
	cfg.resolve()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) resolve() {
	for _, p := range []*string{
		&c.Upstream.SyncPath,
		&c.Local.TestPath,
		&c.Local.MetadataPath,
		&c.Journal.Path,
	} {
		if *p != "" {
			*p = ResolvePath(c.Base, *p)
		}
	}
	if c.Upstream.Branch == "" {
		c.Upstream.Branch = DefaultBranch
	}
	if c.Journal.Path == "" {
		c.Journal.Path = filepath.Join(c.Base, "wptsync.db")
	}
}

// Validate reports every missing required value.
func (c *Config) Validate() error {
	var errs []error
	required := []struct {
		key, value string
	}{
		{"web-platform-tests.remote_url", c.Upstream.RemoteURL},
		{"web-platform-tests.sync_path", c.Upstream.SyncPath},
		{"local.test_path", c.Local.TestPath},
		{"local.metadata_path", c.Local.MetadataPath},
	}
	for _, r := range required {
		if r.value == "" {
			errs = append(errs, fmt.Errorf("%s is required", r.key))
		}
	}
	return errors.Join(errs...)
}

// Paths is the set of directories a run works in.
type Paths struct {
	Sync     string
	Test     string
	Metadata string
}

// Paths returns the configured directories.
func (c *Config) Paths() Paths {
	return Paths{
		Sync:     c.Upstream.SyncPath,
		Test:     c.Local.TestPath,
		Metadata: c.Local.MetadataPath,
	}
}

// Ensure creates any of the directories that do not exist yet.
func (p Paths) Ensure(fs ports.FileSystem) error {
	for _, dir := range []string{p.Sync, p.Test, p.Metadata} {
		if err := fs.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
	}
	return nil
}

// Options are the settings of one invocation.
type Options struct {
	ConfigPath string
	DataRoot   string
	// Rev overrides the configured upstream branch.
	Rev string
	// Patch enables patch creation in the local tree.
	Patch        bool
	NoCheckClean bool
	// Sync runs the test synchronization flow.
	Sync bool
	// RunLogs, when set, runs the metadata flow with these logs.
	RunLogs        []string
	IgnoreExisting bool
	// Bug is the issue the update is filed under, 0 for none.
	Bug              int
	CleanupOnFailure bool
	CommitPatches    bool
	Verbose          bool
}

// Target returns the upstream revision to synchronize.
func (o Options) Target(cfg *Config) string {
	if o.Rev != "" {
		return o.Rev
	}
	if cfg != nil && cfg.Upstream.Branch != "" {
		return cfg.Upstream.Branch
	}
	return DefaultBranch
}

// ResolvePath expands ~ and makes a relative path absolute under base.
func ResolvePath(base, path string) string {
	path = ExpandPath(path)
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Join(base, path)
}

// ExpandPath expands ~ to home directory
func ExpandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home, err := os.UserHomeDir()
		if err != nil {
			return path // Return unexpanded if home unavailable
		}
		return filepath.Join(home, path[1:])
	}
	return path
}
