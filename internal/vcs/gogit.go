// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package vcs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// GoGit is a VCS implemented in-process with go-git, for hosts that don't
// have a git client installed.
//
// Credentials for the push come from the same places go-git looks at by
// default (SSH agent for SSH remotes).
type GoGit struct {
	Dir string // working directory, or any directory below it

	// AuthorName and AuthorEmail override the commit author. If empty, the
	// author is taken from the repository and global Git configuration.
	AuthorName  string
	AuthorEmail string

	// Progress receives push progress. May be nil.
	Progress io.Writer

	now func() time.Time // used in tests
}

var _ VCS = (*GoGit)(nil)

func (g *GoGit) open() (*git.Repository, *git.Worktree, error) {
	repo, err := git.PlainOpenWithOptions(g.Dir, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil, nil, fmt.Errorf("opening repository at %s: %w", g.Dir, err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		return nil, nil, err
	}
	return repo, wt, nil
}

// Stage implements [VCS].
func (g *GoGit) Stage(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	_, wt, err := g.open()
	if err != nil {
		return nil, err
	}
	if err := wt.AddWithOptions(&git.AddOptions{All: true}); err != nil {
		return nil, err
	}
	st, err := wt.Status()
	if err != nil {
		return nil, err
	}
	return []byte(st.String()), nil
}

// Commit implements [VCS].
func (g *GoGit) Commit(ctx context.Context, msg string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	repo, wt, err := g.open()
	if err != nil {
		return nil, err
	}

	opts := &git.CommitOptions{}
	if g.AuthorName != "" || g.AuthorEmail != "" {
		now := time.Now
		if g.now != nil {
			now = g.now
		}
		opts.Author = &object.Signature{
			Name:  g.AuthorName,
			Email: g.AuthorEmail,
			When:  now(),
		}
	}

	hash, err := wt.Commit(msg, opts)
	if errors.Is(err, git.ErrEmptyCommit) {
		return []byte("nothing to commit, working tree clean\n"), fmt.Errorf("%w: %w", ErrNothingToCommit, err)
	} else if err != nil {
		return nil, err
	}

	branch := "HEAD"
	if head, err := repo.Head(); err == nil && head.Name().IsBranch() {
		branch = head.Name().Short()
	}
	return fmt.Appendf(nil, "[%s %s] %s\n", branch, hash.String()[:7], msg), nil
}

// Push implements [VCS].
func (g *GoGit) Push(ctx context.Context, remote, branch string) ([]byte, error) {
	repo, _, err := g.open()
	if err != nil {
		return nil, err
	}
	head, err := repo.Head()
	if err != nil {
		return nil, fmt.Errorf("resolving HEAD: %w", err)
	}

	var buf bytes.Buffer
	var progress io.Writer = &buf
	if g.Progress != nil {
		progress = io.MultiWriter(&buf, g.Progress)
	}

	refspec := config.RefSpec(head.Name().String() + ":" + plumbing.NewBranchReferenceName(branch).String())
	err = repo.PushContext(ctx, &git.PushOptions{
		RemoteName: remote,
		RefSpecs:   []config.RefSpec{refspec},
		Progress:   progress,
	})
	switch {
	case errors.Is(err, git.NoErrAlreadyUpToDate):
		buf.WriteString("Everything up-to-date\n")
		return buf.Bytes(), nil
	case isNonFastForward(err):
		return buf.Bytes(), fmt.Errorf("%w: %w", ErrPushRejected, err)
	case err != nil:
		return buf.Bytes(), err
	}
	fmt.Fprintf(&buf, "%s -> %s\n", head.Name().Short(), branch)
	return buf.Bytes(), nil
}

// go-git reports a refused push as a plain formatted error, not as
// ErrNonFastForwardUpdate.
func isNonFastForward(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, git.ErrNonFastForwardUpdate) || strings.Contains(err.Error(), "non-fast-forward")
}
