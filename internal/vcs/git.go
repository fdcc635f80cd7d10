// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package vcs

import (
	"context"
	"fmt"
	"strings"

	"go.astrophena.name/newsmap/internal/proc"
)

// Git is a VCS that shells out to the git client.
type Git struct {
	Runner proc.Runner
	Dir    string   // working directory
	Env    []string // environment for git; nil means the current one
	Binary string   // git executable; "git" if empty
}

var _ VCS = (*Git)(nil)

func (g *Git) run(ctx context.Context, args ...string) ([]byte, error) {
	bin := g.Binary
	if bin == "" {
		bin = "git"
	}
	res, err := g.Runner.Run(ctx, proc.Cmd{
		Name: bin,
		Args: args,
		Dir:  g.Dir,
		Env:  g.Env,
	})
	if res == nil {
		return nil, err
	}
	return res.Output, err
}

// Stage implements [VCS].
func (g *Git) Stage(ctx context.Context) ([]byte, error) {
	return g.run(ctx, "add", ".")
}

// Commit implements [VCS].
func (g *Git) Commit(ctx context.Context, msg string) ([]byte, error) {
	out, err := g.run(ctx, "commit", "-m", msg)
	if err != nil && out != nil && isNothingToCommit(out) {
		return out, fmt.Errorf("%w: %w", ErrNothingToCommit, err)
	}
	return out, err
}

// Push implements [VCS].
func (g *Git) Push(ctx context.Context, remote, branch string) ([]byte, error) {
	out, err := g.run(ctx, "push", remote, branch)
	if err != nil && out != nil && isRejected(out) {
		return out, fmt.Errorf("%w: %w", ErrPushRejected, err)
	}
	return out, err
}

// Strings git prints for an empty commit attempt, depending on whether
// untracked or unstaged files exist.
var nothingToCommit = []string{
	"nothing to commit",
	"nothing added to commit",
	"no changes added to commit",
}

func isNothingToCommit(out []byte) bool {
	s := string(out)
	for _, m := range nothingToCommit {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}

var rejected = []string{
	"[rejected]",
	"[remote rejected]",
	"non-fast-forward",
	"failed to push some refs",
}

func isRejected(out []byte) bool {
	s := string(out)
	for _, m := range rejected {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}
