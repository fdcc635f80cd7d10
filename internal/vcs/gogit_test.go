// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package vcs

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.astrophena.name/base/testutil"
	"go.astrophena.name/base/unwrap"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
)

// newRepo creates a repository in a temporary directory with origin pointing
// to remote.
func newRepo(t *testing.T, remote string) (*git.Repository, string) {
	t.Helper()
	dir := t.TempDir()
	repo, err := git.PlainInit(dir, false)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := repo.CreateRemote(&config.RemoteConfig{
		Name: "origin",
		URLs: []string{remote},
	}); err != nil {
		t.Fatal(err)
	}
	return repo, dir
}

func newRemote(t *testing.T) (*git.Repository, string) {
	t.Helper()
	dir := t.TempDir()
	return unwrap.Value(git.PlainInit(dir, true)), dir
}

func newGoGit(dir string) *GoGit {
	return &GoGit{
		Dir:         dir,
		AuthorName:  "NewsMap Bot",
		AuthorEmail: "bot@example.com",
		now:         func() time.Time { return time.Date(2024, time.March, 15, 9, 0, 0, 0, time.UTC) },
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestGoGitPublish(t *testing.T) {
	ctx := context.Background()
	remote, remoteDir := newRemote(t)
	repo, dir := newRepo(t, remoteDir)
	g := newGoGit(dir)

	writeFile(t, filepath.Join(dir, "index.html"), "<h1>NewsMap</h1>\n")
	writeFile(t, filepath.Join(dir, "images", "index.png"), "png")

	if _, err := g.Stage(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := g.Commit(ctx, "Daily NewsMap Update: 2024-03-15"); err != nil {
		t.Fatal(err)
	}
	if _, err := g.Push(ctx, "origin", "main"); err != nil {
		t.Fatal(err)
	}

	head, err := repo.Head()
	if err != nil {
		t.Fatal(err)
	}
	commit, err := repo.CommitObject(head.Hash())
	if err != nil {
		t.Fatal(err)
	}
	testutil.AssertEqual(t, commit.Message, "Daily NewsMap Update: 2024-03-15")
	testutil.AssertEqual(t, commit.Author.Name, "NewsMap Bot")

	ref, err := remote.Reference(plumbing.NewBranchReferenceName("main"), true)
	if err != nil {
		t.Fatalf("remote branch main: %v", err)
	}
	testutil.AssertEqual(t, ref.Hash(), head.Hash())
}

func TestGoGitNothingToCommit(t *testing.T) {
	ctx := context.Background()
	_, remoteDir := newRemote(t)
	_, dir := newRepo(t, remoteDir)
	g := newGoGit(dir)

	writeFile(t, filepath.Join(dir, "index.html"), "hello")
	for _, step := range []func() error{
		func() error { _, err := g.Stage(ctx); return err },
		func() error { _, err := g.Commit(ctx, "first"); return err },
		func() error { _, err := g.Push(ctx, "origin", "main"); return err },
	} {
		if err := step(); err != nil {
			t.Fatal(err)
		}
	}

	// Second run without changes.
	if _, err := g.Stage(ctx); err != nil {
		t.Fatal(err)
	}
	out, err := g.Commit(ctx, "second")
	if !errors.Is(err, ErrNothingToCommit) {
		t.Fatalf("want ErrNothingToCommit, got %v", err)
	}
	if len(out) == 0 {
		t.Fatal("want some output for an empty commit")
	}
	// Pushing an unchanged branch is not an error.
	if _, err := g.Push(ctx, "origin", "main"); err != nil {
		t.Fatalf("push without changes: %v", err)
	}
}

func TestGoGitStagesDeletions(t *testing.T) {
	ctx := context.Background()
	_, remoteDir := newRemote(t)
	repo, dir := newRepo(t, remoteDir)
	g := newGoGit(dir)

	writeFile(t, filepath.Join(dir, "old.html"), "old")
	writeFile(t, filepath.Join(dir, "index.html"), "index")
	if _, err := g.Stage(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := g.Commit(ctx, "first"); err != nil {
		t.Fatal(err)
	}

	if err := os.Remove(filepath.Join(dir, "old.html")); err != nil {
		t.Fatal(err)
	}
	if _, err := g.Stage(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := g.Commit(ctx, "second"); err != nil {
		t.Fatal(err)
	}

	head, err := repo.Head()
	if err != nil {
		t.Fatal(err)
	}
	commit, err := repo.CommitObject(head.Hash())
	if err != nil {
		t.Fatal(err)
	}
	tree, err := commit.Tree()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := tree.File("old.html"); err == nil {
		t.Fatal("old.html should have been removed from the tree")
	}
	if _, err := tree.File("index.html"); err != nil {
		t.Fatalf("index.html: %v", err)
	}
}

func TestGoGitPushRejected(t *testing.T) {
	ctx := context.Background()
	_, remoteDir := newRemote(t)

	// Someone else published first.
	_, otherDir := newRepo(t, remoteDir)
	other := newGoGit(otherDir)
	writeFile(t, filepath.Join(otherDir, "index.html"), "theirs")
	if _, err := other.Stage(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := other.Commit(ctx, "theirs"); err != nil {
		t.Fatal(err)
	}
	if _, err := other.Push(ctx, "origin", "main"); err != nil {
		t.Fatal(err)
	}

	_, dir := newRepo(t, remoteDir)
	g := newGoGit(dir)
	writeFile(t, filepath.Join(dir, "index.html"), "ours")
	if _, err := g.Stage(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := g.Commit(ctx, "ours"); err != nil {
		t.Fatal(err)
	}
	_, err := g.Push(ctx, "origin", "main")
	if !errors.Is(err, ErrPushRejected) {
		t.Fatalf("want ErrPushRejected, got %v", err)
	}
}

func TestGoGitNotARepository(t *testing.T) {
	g := newGoGit(t.TempDir())
	if _, err := g.Stage(context.Background()); err == nil {
		t.Fatal("want error outside of a repository")
	}
}
