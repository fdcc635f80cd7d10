// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

/*
Package publish regenerates the NewsMap site and publishes it.

A run is a fixed, linear sequence:

 1. Resolve the working directory. If it doesn't exist, the run stops here.
 2. Activate the site's Python virtual environment.
 3. Run the generator.
 4. Optionally build feed.xml and minify the generated pages.
 5. Stage every change in the working directory.
 6. Commit with a message like "Daily NewsMap Update: 2024-03-15".
 7. Push to the configured remote branch.
 8. Optionally send the run report to a webhook.
 9. Pause, so whoever watches the console can read the output.

Failures of individual steps are recorded in the [Report] and logged. Under
the default [ContinueAlways] policy the run goes on regardless: a failed
generator still leads to a commit and a push of whatever it left behind, an
empty commit still leads to a push, and a rejected push still leads to the
pause.
*/
package publish

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.astrophena.name/base/logger"
	"go.astrophena.name/newsmap/internal/digest"
	"go.astrophena.name/newsmap/internal/notify"
	"go.astrophena.name/newsmap/internal/proc"
	"go.astrophena.name/newsmap/internal/track"
	"go.astrophena.name/newsmap/internal/vcs"
	"go.astrophena.name/newsmap/internal/venv"
)

// Policy decides what happens after the generator fails.
type Policy int

const (
	// ContinueAlways publishes whatever the generator left behind, even if
	// it failed.
	ContinueAlways Policy = iota
	// StopOnGenerateFailure skips publishing when the generator fails. The
	// report is still sent and the pause still happens.
	StopOnGenerateFailure
)

var policyNames = map[Policy]string{
	ContinueAlways:        "continue",
	StopOnGenerateFailure: "stop-on-generate-failure",
}

func (p Policy) String() string {
	if s, ok := policyNames[p]; ok {
		return s
	}
	return fmt.Sprintf("Policy(%d)", int(p))
}

// ParsePolicy parses a policy name as returned by Policy.String.
func ParsePolicy(s string) (Policy, error) {
	for p, name := range policyNames {
		if name == s {
			return p, nil
		}
	}
	return 0, fmt.Errorf("unknown policy %q", s)
}

// Defaults.
const (
	DefaultVenv   = "venv"
	DefaultRemote = "origin"
	DefaultBranch = "main"
	DefaultPause  = 10 * time.Second
	DefaultPage   = "index.html"
)

// DefaultGenerator is the command that generates the site.
var DefaultGenerator = []string{"python", "main.py"}

// Config represents a publishing configuration.
type Config struct {
	// Dir is the site working directory. Required.
	Dir string
	// Venv is the virtual environment directory, relative to Dir or
	// absolute. If empty, "venv" is used.
	Venv string
	// Generator is the generator command line. If empty,
	// DefaultGenerator is used.
	Generator []string
	// Remote and Branch are where the commit is pushed. They default to
	// "origin" and "main".
	Remote string
	Branch string
	// Label and DateLayout make up the commit message; see vcs.Message.
	Label      string
	DateLayout string
	// Pause is how long to wait before returning. Zero means DefaultPause,
	// negative means no pause.
	Pause time.Duration
	// Policy decides what happens after the generator fails.
	Policy Policy
	// Track determines if files written by the generator are recorded in
	// the report.
	Track bool
	// Minify determines if generated HTML pages are minified before being
	// staged.
	Minify bool
	// Feed, if not nil, makes the run build feed.xml from Page.
	Feed *digest.FeedConfig
	// Page is the generated page the feed is built from. If empty,
	// "index.html" is used.
	Page string
	// NotifyURL, if set, receives the report as JSON after the push.
	NotifyURL string
	// HTTPClient is used for notifications. May be nil.
	HTTPClient *http.Client

	// Stdout receives the output of external programs as they run. If nil,
	// os.Stdout is used.
	Stdout io.Writer
	// Runner runs external programs. If nil, a proc.Exec writing to Stdout
	// is used.
	Runner proc.Runner
	// VCS publishes changes. If nil, the git client is used through Runner.
	VCS vcs.VCS
	// Environ returns the base environment of child processes. If nil,
	// os.Environ is used.
	Environ func() []string
	// Now returns the current time. If nil, time.Now is used.
	Now func() time.Time
	// Sleep waits for d or until ctx is done. If nil, a timer is used.
	Sleep func(ctx context.Context, d time.Duration) error
}

func (c *Config) setDefaults() {
	if c.Venv == "" {
		c.Venv = DefaultVenv
	}
	if len(c.Generator) == 0 {
		c.Generator = DefaultGenerator
	}
	if c.Remote == "" {
		c.Remote = DefaultRemote
	}
	if c.Branch == "" {
		c.Branch = DefaultBranch
	}
	if c.Pause == 0 {
		c.Pause = DefaultPause
	}
	if c.Page == "" {
		c.Page = DefaultPage
	}
	if c.Stdout == nil {
		c.Stdout = os.Stdout
	}
	if c.Runner == nil {
		c.Runner = &proc.Exec{Console: c.Stdout}
	}
	if c.Environ == nil {
		c.Environ = os.Environ
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	if c.Sleep == nil {
		c.Sleep = sleep
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// ErrNoDir is returned by Run when the working directory is unusable.
var ErrNoDir = errors.New("working directory unavailable")

// resolveDir makes dir absolute and checks that it is an existing directory.
func resolveDir(dir string) (string, error) {
	if dir == "" {
		return "", fmt.Errorf("%w: not set", ErrNoDir)
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNoDir, err)
	}
	fi, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrNoDir, err)
	}
	if !fi.IsDir() {
		return "", fmt.Errorf("%w: %s is not a directory", ErrNoDir, abs)
	}
	return abs, nil
}

type run struct {
	c   *Config
	dir string
	r   *Report
}

// Run performs one publishing run.
//
// The returned error is non-nil only when the run couldn't happen at all (the
// working directory is missing) or was interrupted through ctx. Step failures
// are reported in the Report.
func Run(ctx context.Context, c *Config) (*Report, error) {
	c.setDefaults()

	dir, err := resolveDir(c.Dir)
	if err != nil {
		logger.Error(ctx, "cannot start publishing", slog.Any("err", err))
		return nil, err
	}

	r := &run{
		c:   c,
		dir: dir,
		r: &Report{
			Dir:   dir,
			Start: c.Now(),
		},
	}
	r.r.Message = vcs.Message(c.Label, c.DateLayout, r.r.Start)
	defer func() { r.r.End = c.Now() }()

	if err := r.sequence(ctx); err != nil {
		return r.r, err
	}
	return r.r, nil
}

func (r *run) sequence(ctx context.Context) error {
	c := r.c
	logger.Info(ctx, "publishing", slog.String("dir", r.dir), slog.String("message", r.r.Message))

	v := c.VCS
	if v == nil {
		v = &vcs.Git{Runner: c.Runner, Dir: r.dir, Env: c.Environ()}
	}

	env, prog := r.activate(ctx)
	if err := ctx.Err(); err != nil {
		return err
	}
	generated := r.generate(ctx, env, prog)
	if err := ctx.Err(); err != nil {
		return err
	}

	publish := generated || c.Policy == ContinueAlways
	if !publish {
		logger.Error(ctx, "generator failed, not publishing", slog.String("policy", c.Policy.String()))
	}

	if c.Feed != nil {
		r.step(ctx, StepFeed, !publish, func(context.Context) (*proc.Result, error) {
			page, err := digest.ReadPage(filepath.Join(r.dir, c.Page))
			if err != nil {
				return nil, err
			}
			logger.Info(ctx, "writing feed", slog.Int("stories", len(page.Stories)))
			return nil, digest.WriteFeed(r.dir, *c.Feed, page, r.r.Start)
		})
	}
	if c.Minify {
		r.step(ctx, StepMinify, !publish, func(context.Context) (*proc.Result, error) {
			files, err := digest.MinifyPages(r.dir)
			if len(files) > 0 {
				logger.Info(ctx, "minified pages", slog.String("files", strings.Join(files, ", ")))
			}
			return nil, err
		})
	}

	steps := []struct {
		s  Step
		fn func(context.Context) ([]byte, error)
	}{
		{StepStage, v.Stage},
		{StepCommit, func(ctx context.Context) ([]byte, error) { return v.Commit(ctx, r.r.Message) }},
		{StepPush, func(ctx context.Context) ([]byte, error) { return v.Push(ctx, c.Remote, c.Branch) }},
	}
	for _, st := range steps {
		if err := ctx.Err(); err != nil {
			return err
		}
		r.step(ctx, st.s, !publish, func(ctx context.Context) (*proc.Result, error) {
			out, err := st.fn(ctx)
			return &proc.Result{Output: out}, err
		})
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if c.NotifyURL != "" {
		r.step(ctx, StepNotify, false, func(ctx context.Context) (*proc.Result, error) {
			// The report is sent before the pause, so it doesn't include it.
			snapshot := *r.r
			snapshot.End = c.Now()
			return nil, notify.Send(ctx, c.HTTPClient, c.NotifyURL, &snapshot)
		})
	}

	return r.pause(ctx)
}

// activate locates the virtual environment. When there is none, the
// generator runs with the ambient environment.
func (r *run) activate(ctx context.Context) (env []string, prog string) {
	c := r.c
	env, prog = c.Environ(), c.Generator[0]
	r.step(ctx, StepActivate, false, func(context.Context) (*proc.Result, error) {
		e, err := venv.Find(r.dir, c.Venv)
		if err != nil {
			return nil, err
		}
		env, prog = e.Environ(env), e.LookPath(prog)
		logger.Info(ctx, "activated virtual environment", slog.String("path", e.Root))
		return nil, nil
	})
	return env, prog
}

// generate runs the generator and reports whether it succeeded.
func (r *run) generate(ctx context.Context, env []string, prog string) bool {
	c := r.c
	cmd := proc.Cmd{
		Name: prog,
		Args: c.Generator[1:],
		Dir:  r.dir,
		Env:  env,
	}

	var tr *track.Tracker
	if c.Track {
		var err error
		tr, err = track.Start(r.dir, filepath.Base(c.Venv), "__pycache__")
		if err != nil {
			logger.Error(ctx, "cannot track generated files", slog.Any("err", err))
		}
	}

	res := r.step(ctx, StepGenerate, false, func(ctx context.Context) (*proc.Result, error) {
		logger.Info(ctx, "running generator", slog.String("cmd", cmd.String()))
		return c.Runner.Run(ctx, cmd)
	})

	if tr != nil {
		files, err := tr.Stop()
		if err != nil {
			logger.Error(ctx, "tracking generated files", slog.Any("err", err))
		}
		r.r.Generated = files
		logger.Info(ctx, "generator wrote files", slog.Int("count", len(files)))
	}
	return res.OK()
}

// step runs fn as step s and records the outcome. If skip is true, fn is not
// called and the step is recorded as skipped.
func (r *run) step(ctx context.Context, s Step, skip bool, fn func(context.Context) (*proc.Result, error)) StepResult {
	res := StepResult{Step: s, Start: r.c.Now(), Skipped: skip}
	if skip {
		logger.Info(ctx, "skipping step", slog.String("step", string(s)))
		r.r.Steps = append(r.r.Steps, res)
		return res
	}

	out, err := fn(ctx)
	res.Duration = r.c.Now().Sub(res.Start)
	res.Err = err
	if out != nil {
		res.ExitCode = out.ExitCode
		res.Output = out.Output
	}
	var exitErr *proc.ExitError
	if res.ExitCode == 0 && errors.As(err, &exitErr) {
		res.ExitCode = exitErr.Result.ExitCode
	}
	r.r.Steps = append(r.r.Steps, res)

	switch {
	case err == nil:
		logger.Info(ctx, "step done", slog.String("step", string(s)), slog.Duration("took", res.Duration))
	case errors.Is(err, vcs.ErrNothingToCommit):
		logger.Info(ctx, "nothing to commit, continuing", slog.String("step", string(s)))
	case errors.Is(err, venv.ErrNotFound):
		logger.Error(ctx, "no virtual environment, using ambient PATH", slog.Any("err", err))
	default:
		logger.Error(ctx, "step failed, continuing",
			slog.String("step", string(s)),
			slog.Int("exit_code", res.ExitCode),
			slog.Any("err", err),
		)
	}
	return res
}

func (r *run) pause(ctx context.Context) error {
	d := r.c.Pause
	if d < 0 {
		return nil
	}
	logger.Info(ctx, "pausing before exit", slog.Duration("pause", d))
	start := r.c.Now()
	err := r.c.Sleep(ctx, d)
	r.r.Steps = append(r.r.Steps, StepResult{
		Step:     StepPause,
		Start:    start,
		Duration: r.c.Now().Sub(start),
		Err:      err,
	})
	return err
}
