// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package proc runs external programs and reports how they finished.
package proc

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"time"
)

// Cmd describes an external program invocation.
type Cmd struct {
	Name string   // program name or path
	Args []string // arguments, without the program name
	Dir  string   // working directory; empty means the current one
	Env  []string // environment; nil means the current process environment
}

// String returns the command line as it would be typed in a shell.
func (c Cmd) String() string {
	return strings.Join(append([]string{c.Name}, c.Args...), " ")
}

// Result is what a finished program left behind.
type Result struct {
	ExitCode int
	Output   []byte // combined stdout and stderr
	Duration time.Duration
}

// ExitError is returned when a program ran to completion with a non-zero
// exit code.
type ExitError struct {
	Cmd    Cmd
	Result *Result
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("%q exited with code %d", e.Cmd.String(), e.Result.ExitCode)
}

// Runner runs external programs.
//
// Run returns a non-nil Result whenever the program was started. If it exited
// with a non-zero code, the error is an *ExitError. If it could not be started
// at all, the Result is nil.
type Runner interface {
	Run(ctx context.Context, cmd Cmd) (*Result, error)
}

// Exec is a Runner backed by os/exec.
type Exec struct {
	// Console receives program output as it is produced, in addition to it
	// being captured. If nil, output is only captured.
	Console io.Writer
}

// Run implements [Runner].
func (e *Exec) Run(ctx context.Context, c Cmd) (*Result, error) {
	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	cmd.Dir = c.Dir
	cmd.Env = c.Env

	var buf bytes.Buffer
	var w io.Writer = &buf
	if e.Console != nil {
		w = io.MultiWriter(&buf, e.Console)
	}
	cmd.Stdout = w
	cmd.Stderr = w

	start := time.Now()
	err := cmd.Run()
	res := &Result{
		Output:   buf.Bytes(),
		Duration: time.Since(start),
	}
	if err == nil {
		return res, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode() >= 0 {
		res.ExitCode = exitErr.ExitCode()
		return res, &ExitError{Cmd: c, Result: res}
	}
	// Killed by a signal, the context or never started.
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, fmt.Errorf("%s: %w", c, ctxErr)
	}
	return nil, fmt.Errorf("%s: %w", c, err)
}
