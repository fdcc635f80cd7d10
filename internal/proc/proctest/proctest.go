// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package proctest provides a fake proc.Runner for tests.
package proctest

import (
	"context"
	"sync"

	"go.astrophena.name/newsmap/internal/proc"
)

// Runner is a proc.Runner that records commands instead of running them.
type Runner struct {
	// Handle, if set, decides the outcome of each command. Otherwise every
	// command succeeds with empty output.
	Handle func(c proc.Cmd) (*proc.Result, error)

	mu    sync.Mutex
	calls []proc.Cmd
}

var _ proc.Runner = (*Runner)(nil)

// Run implements proc.Runner.
func (r *Runner) Run(ctx context.Context, c proc.Cmd) (*proc.Result, error) {
	r.mu.Lock()
	r.calls = append(r.calls, c)
	r.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if r.Handle != nil {
		return r.Handle(c)
	}
	return &proc.Result{}, nil
}

// Calls returns commands seen so far, in order.
func (r *Runner) Calls() []proc.Cmd {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]proc.Cmd(nil), r.calls...)
}

// Exit returns the outcome of c exiting with code and printing out.
func Exit(c proc.Cmd, code int, out string) (*proc.Result, error) {
	res := &proc.Result{ExitCode: code, Output: []byte(out)}
	if code == 0 {
		return res, nil
	}
	return res, &proc.ExitError{Cmd: c, Result: res}
}
