// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package venv

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"testing"

	"go.astrophena.name/base/testutil"
)

func mkenv(t *testing.T, dir, name string) string {
	t.Helper()
	bin := filepath.Join(dir, name, binDir(runtime.GOOS))
	if err := os.MkdirAll(bin, 0o755); err != nil {
		t.Fatal(err)
	}
	return bin
}

func TestFind(t *testing.T) {
	dir := t.TempDir()
	bin := mkenv(t, dir, "venv")

	env, err := Find(dir, "venv")
	if err != nil {
		t.Fatal(err)
	}
	testutil.AssertEqual(t, env.Root, filepath.Join(dir, "venv"))
	testutil.AssertEqual(t, env.Bin, bin)
}

func TestFindMissing(t *testing.T) {
	_, err := Find(t.TempDir(), "venv")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestFindWindowsLayout(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "venv", "Scripts"), 0o755); err != nil {
		t.Fatal(err)
	}
	env, err := find(dir, "venv", "windows")
	if err != nil {
		t.Fatal(err)
	}
	testutil.AssertEqual(t, env.Bin, filepath.Join(dir, "venv", "Scripts"))

	if _, err := find(dir, "venv", "linux"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound for POSIX layout, got %v", err)
	}
}

func TestEnviron(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses POSIX path list separator")
	}
	env := &Env{Root: "/site/venv", Bin: "/site/venv/bin"}

	cases := map[string]struct {
		base []string
		want []string
	}{
		"prepends PATH": {
			base: []string{"HOME=/home/user", "PATH=/usr/bin:/bin"},
			want: []string{"HOME=/home/user", "PATH=/site/venv/bin:/usr/bin:/bin", "VIRTUAL_ENV=/site/venv"},
		},
		"no PATH": {
			base: []string{"HOME=/home/user"},
			want: []string{"HOME=/home/user", "PATH=/site/venv/bin", "VIRTUAL_ENV=/site/venv"},
		},
		"drops PYTHONHOME and stale VIRTUAL_ENV": {
			base: []string{"PYTHONHOME=/opt/python", "VIRTUAL_ENV=/old", "PATH=/bin"},
			want: []string{"PATH=/site/venv/bin:/bin", "VIRTUAL_ENV=/site/venv"},
		},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			got := env.Environ(tc.base)
			if !slices.Equal(got, tc.want) {
				t.Fatalf("Environ(%q):\n got  %q\n want %q", tc.base, got, tc.want)
			}
		})
	}
}

func TestLookPath(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("executable names differ on Windows")
	}
	dir := t.TempDir()
	bin := mkenv(t, dir, "venv")
	if err := os.WriteFile(filepath.Join(bin, "python"), []byte("#!/bin/sh\n"), 0o755); err != nil {
		t.Fatal(err)
	}
	env, err := Find(dir, "venv")
	if err != nil {
		t.Fatal(err)
	}

	testutil.AssertEqual(t, env.LookPath("python"), filepath.Join(bin, "python"))
	testutil.AssertEqual(t, env.LookPath("git"), "git")
	testutil.AssertEqual(t, env.LookPath("./main.py"), "./main.py")
}
