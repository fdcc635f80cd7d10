// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package vcs publishes a working directory to a remote Git repository.
package vcs

import (
	"context"
	"errors"
	"time"
)

// Possible errors, used by callers to classify failures.
var (
	ErrNothingToCommit = errors.New("nothing to commit")
	ErrPushRejected    = errors.New("push rejected by remote")
)

// VCS stages, commits and pushes changes of a single working directory.
//
// Every method returns whatever output the operation produced, also when it
// failed.
type VCS interface {
	// Stage marks every added, modified and deleted file for the next commit.
	Stage(ctx context.Context) ([]byte, error)
	// Commit records staged changes with the message. If nothing is staged,
	// the error wraps ErrNothingToCommit.
	Commit(ctx context.Context, msg string) ([]byte, error)
	// Push sends the current branch to branch on remote. If the remote
	// refuses the update, the error wraps ErrPushRejected.
	Push(ctx context.Context, remote, branch string) ([]byte, error)
}

// DefaultLabel is the fixed part of commit messages.
const DefaultLabel = "Daily NewsMap Update"

// DefaultDateLayout renders the date part of commit messages.
const DefaultDateLayout = "2006-01-02"

// Message returns a commit message made of label and t formatted with layout.
func Message(label, layout string, t time.Time) string {
	if label == "" {
		label = DefaultLabel
	}
	if layout == "" {
		layout = DefaultDateLayout
	}
	return label + ": " + t.Format(layout)
}
