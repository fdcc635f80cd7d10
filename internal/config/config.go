// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

/*
Package config loads the publisher configuration.

The working directory comes from the NEWSMAP_DIR environment variable, or
defaults to "NewsMap" in the home directory. Settings are read from an
optional Starlark file, publish.star in the working directory (or the file
named by NEWSMAP_CONFIG), that assigns some of these globals:

	remote = "origin"           # remote to push to
	branch = "main"             # branch to push to
	generator = ["python", "main.py"]
	venv = "venv"               # virtual environment directory
	label = "Daily NewsMap Update"
	date_layout = "2006-01-02"  # Go time layout for the date in commit messages
	pause = "10s"               # "0s" disables the pause
	policy = "continue"         # or "stop-on-generate-failure"
	vcs = "git"                 # or "go-git"
	track = False               # record files written by the generator
	minify = False              # minify generated HTML pages
	feed_url = ""               # public site URL; enables feed.xml
	feed_title = ""
	notify_url = ""             # webhook that receives the run report
	strict = False              # exit with non-zero status if any step failed
	author_name = ""            # commit author for the go-git backend
	author_email = ""

Any other global is an error, unless its name starts with an underscore. The
file can call getenv(name, default="") to read environment variables.
*/
package config

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.astrophena.name/base/logger"
	"go.astrophena.name/newsmap/internal/digest"
	"go.astrophena.name/newsmap/internal/publish"
	"go.astrophena.name/newsmap/internal/vcs"

	"go.starlark.net/starlark"
	"go.starlark.net/syntax"
)

// Environment variables consulted by Load.
const (
	EnvDir    = "NEWSMAP_DIR"
	EnvConfig = "NEWSMAP_CONFIG"
)

// Defaults.
const (
	DefaultDirName = "NewsMap"
	DefaultFile    = "publish.star"
)

// VCS backends.
const (
	BackendGit   = "git"
	BackendGoGit = "go-git"
)

// Config is the loaded configuration.
type Config struct {
	Dir  string // working directory
	File string // config file that was read; empty if there was none

	Remote     string
	Branch     string
	Generator  []string
	Venv       string
	Label      string
	DateLayout string
	Pause      time.Duration // zero means the default, negative means none
	Policy     publish.Policy
	VCS        string
	Track      bool
	Minify     bool
	FeedURL    string
	FeedTitle  string
	NotifyURL  string
	Strict     bool

	AuthorName  string
	AuthorEmail string
}

// Load resolves the working directory and reads the config file, if any.
// getenv is used instead of os.Getenv.
func Load(ctx context.Context, getenv func(string) string) (*Config, error) {
	dir := getenv(EnvDir)
	if dir == "" {
		home := getenv("HOME")
		if home == "" {
			home = getenv("USERPROFILE")
		}
		if home == "" {
			return nil, fmt.Errorf("%s is not set and there is no home directory", EnvDir)
		}
		dir = filepath.Join(home, DefaultDirName)
	}

	c := &Config{Dir: dir, VCS: BackendGit}

	file, explicit := getenv(EnvConfig), true
	if file == "" {
		file, explicit = filepath.Join(dir, DefaultFile), false
	}
	src, err := os.ReadFile(file)
	switch {
	case errors.Is(err, os.ErrNotExist) && !explicit:
		return c, nil
	case err != nil:
		return nil, err
	}

	if err := c.parse(ctx, file, src, getenv); err != nil {
		return nil, err
	}
	c.File = file
	logger.Info(ctx, "loaded config", slog.String("file", file))
	return c, nil
}

// Parse evaluates src as a config file on top of the defaults. It is Load
// without the environment.
func Parse(ctx context.Context, filename string, src []byte) (*Config, error) {
	c := &Config{VCS: BackendGit}
	if err := c.parse(ctx, filename, src, func(string) string { return "" }); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) parse(ctx context.Context, filename string, src []byte, getenv func(string) string) error {
	thread := &starlark.Thread{
		Name: filename,
		Print: func(_ *starlark.Thread, msg string) {
			logger.Info(ctx, msg, slog.String("file", filename))
		},
	}
	predeclared := starlark.StringDict{
		"getenv": starlark.NewBuiltin("getenv", func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			var name, def string
			if err := starlark.UnpackArgs(b.Name(), args, kwargs, "name", &name, "default?", &def); err != nil {
				return nil, err
			}
			if v := getenv(name); v != "" {
				return starlark.String(v), nil
			}
			return starlark.String(def), nil
		}),
	}

	globals, err := starlark.ExecFileOptions(
		&syntax.FileOptions{
			TopLevelControl: true,
			GlobalReassign:  true,
		},
		thread,
		filename,
		src,
		predeclared,
	)
	if err != nil {
		var evalErr *starlark.EvalError
		if errors.As(err, &evalErr) {
			return fmt.Errorf("%s: %s", filename, evalErr.Backtrace())
		}
		return fmt.Errorf("%s: %w", filename, err)
	}

	names := globals.Keys()
	sort.Strings(names)
	for _, name := range names {
		if strings.HasPrefix(name, "_") {
			continue
		}
		set, ok := setters[name]
		if !ok {
			return fmt.Errorf("%s: unknown setting %q", filename, name)
		}
		if err := set(c, globals[name]); err != nil {
			return fmt.Errorf("%s: %s: %w", filename, name, err)
		}
	}
	return c.validate()
}

var setters = map[string]func(c *Config, v starlark.Value) error{
	"remote":       stringSetter(func(c *Config) *string { return &c.Remote }),
	"branch":       stringSetter(func(c *Config) *string { return &c.Branch }),
	"venv":         stringSetter(func(c *Config) *string { return &c.Venv }),
	"label":        stringSetter(func(c *Config) *string { return &c.Label }),
	"date_layout":  stringSetter(func(c *Config) *string { return &c.DateLayout }),
	"vcs":          stringSetter(func(c *Config) *string { return &c.VCS }),
	"feed_url":     stringSetter(func(c *Config) *string { return &c.FeedURL }),
	"feed_title":   stringSetter(func(c *Config) *string { return &c.FeedTitle }),
	"notify_url":   stringSetter(func(c *Config) *string { return &c.NotifyURL }),
	"author_name":  stringSetter(func(c *Config) *string { return &c.AuthorName }),
	"author_email": stringSetter(func(c *Config) *string { return &c.AuthorEmail }),
	"track":        boolSetter(func(c *Config) *bool { return &c.Track }),
	"minify":       boolSetter(func(c *Config) *bool { return &c.Minify }),
	"strict":       boolSetter(func(c *Config) *bool { return &c.Strict }),
	"generator": func(c *Config, v starlark.Value) error {
		args, err := toStrings(v)
		if err != nil {
			return err
		}
		if len(args) == 0 || args[0] == "" {
			return errors.New("must name a program")
		}
		c.Generator = args
		return nil
	},
	"pause": func(c *Config, v starlark.Value) error {
		s, ok := starlark.AsString(v)
		if !ok {
			return fmt.Errorf("want duration string, got %s", v.Type())
		}
		d, err := time.ParseDuration(s)
		if err != nil {
			return err
		}
		switch {
		case d < 0:
			return fmt.Errorf("negative duration %s", s)
		case d == 0:
			c.Pause = -1
		default:
			c.Pause = d
		}
		return nil
	},
	"policy": func(c *Config, v starlark.Value) error {
		s, ok := starlark.AsString(v)
		if !ok {
			return fmt.Errorf("want string, got %s", v.Type())
		}
		p, err := publish.ParsePolicy(s)
		if err != nil {
			return err
		}
		c.Policy = p
		return nil
	},
}

func stringSetter(field func(*Config) *string) func(*Config, starlark.Value) error {
	return func(c *Config, v starlark.Value) error {
		s, ok := starlark.AsString(v)
		if !ok {
			return fmt.Errorf("want string, got %s", v.Type())
		}
		*field(c) = s
		return nil
	}
}

func boolSetter(field func(*Config) *bool) func(*Config, starlark.Value) error {
	return func(c *Config, v starlark.Value) error {
		b, ok := v.(starlark.Bool)
		if !ok {
			return fmt.Errorf("want bool, got %s", v.Type())
		}
		*field(c) = bool(b)
		return nil
	}
}

func toStrings(v starlark.Value) ([]string, error) {
	it, ok := v.(starlark.Iterable)
	if !ok {
		return nil, fmt.Errorf("want list of strings, got %s", v.Type())
	}
	iter := it.Iterate()
	defer iter.Done()
	var (
		out []string
		x   starlark.Value
	)
	for iter.Next(&x) {
		s, ok := starlark.AsString(x)
		if !ok {
			return nil, fmt.Errorf("want list of strings, got %s element", x.Type())
		}
		out = append(out, s)
	}
	return out, nil
}

func (c *Config) validate() error {
	switch c.VCS {
	case BackendGit, BackendGoGit:
	default:
		return fmt.Errorf("unknown vcs %q, want %q or %q", c.VCS, BackendGit, BackendGoGit)
	}
	if c.FeedURL != "" {
		if err := checkURL(c.FeedURL); err != nil {
			return fmt.Errorf("feed_url: %w", err)
		}
	}
	if c.NotifyURL != "" {
		if err := checkURL(c.NotifyURL); err != nil {
			return fmt.Errorf("notify_url: %w", err)
		}
	}
	return nil
}

func checkURL(s string) error {
	u, err := url.Parse(s)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%q is not an http(s) URL", s)
	}
	if u.Host == "" {
		return fmt.Errorf("%q has no host", s)
	}
	return nil
}

// Publish returns the publish.Config that c describes. Program output goes to
// stdout.
func (c *Config) Publish(stdout io.Writer) *publish.Config {
	pc := &publish.Config{
		Dir:        c.Dir,
		Venv:       c.Venv,
		Generator:  c.Generator,
		Remote:     c.Remote,
		Branch:     c.Branch,
		Label:      c.Label,
		DateLayout: c.DateLayout,
		Pause:      c.Pause,
		Policy:     c.Policy,
		Track:      c.Track,
		Minify:     c.Minify,
		NotifyURL:  c.NotifyURL,
		Stdout:     stdout,
	}
	if c.FeedURL != "" {
		pc.Feed = &digest.FeedConfig{
			Title:   c.FeedTitle,
			SiteURL: c.FeedURL,
			Author:  c.AuthorName,
		}
	}
	if c.VCS == BackendGoGit {
		pc.VCS = &vcs.GoGit{
			Dir:         c.Dir,
			AuthorName:  c.AuthorName,
			AuthorEmail: c.AuthorEmail,
			Progress:    stdout,
		}
	}
	return pc
}
