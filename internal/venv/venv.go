// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package venv activates a Python virtual environment for child processes.
//
// Activation here means the same thing the environment's own activate script
// does: its executables directory goes first in PATH, VIRTUAL_ENV points at
// the environment and PYTHONHOME is unset.
package venv

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// ErrNotFound is returned by Find when there is no environment.
var ErrNotFound = errors.New("virtual environment not found")

// Env is a located virtual environment.
type Env struct {
	Root string // environment directory
	Bin  string // executables directory inside Root
}

// binDir returns the name of the executables directory for goos.
func binDir(goos string) string {
	if goos == "windows" {
		return "Scripts"
	}
	return "bin"
}

// Find locates the environment named name inside dir.
func Find(dir, name string) (*Env, error) {
	return find(dir, name, runtime.GOOS)
}

func find(dir, name, goos string) (*Env, error) {
	root := name
	if !filepath.IsAbs(root) {
		root = filepath.Join(dir, name)
	}
	bin := filepath.Join(root, binDir(goos))
	fi, err := os.Stat(bin)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", root, ErrNotFound)
	} else if err != nil {
		return nil, err
	}
	if !fi.IsDir() {
		return nil, fmt.Errorf("%s is not a directory: %w", bin, ErrNotFound)
	}
	return &Env{Root: root, Bin: bin}, nil
}

// Environ returns base with the environment activated.
func (e *Env) Environ(base []string) []string {
	env := make([]string, 0, len(base)+2)
	var path string
	for _, kv := range base {
		k, v, _ := strings.Cut(kv, "=")
		switch {
		case isPathKey(k):
			path = v
		case envKeyEqual(k, "VIRTUAL_ENV"), envKeyEqual(k, "PYTHONHOME"):
		default:
			env = append(env, kv)
		}
	}
	if path != "" {
		path = e.Bin + string(os.PathListSeparator) + path
	} else {
		path = e.Bin
	}
	return append(env, "PATH="+path, "VIRTUAL_ENV="+e.Root)
}

// LookPath resolves name against the environment's executables first and
// falls back to the current PATH.
//
// Child processes do not see the activated PATH when their program is being
// resolved, so it has to be done here.
func (e *Env) LookPath(name string) string {
	if strings.ContainsRune(name, '/') || strings.ContainsRune(name, filepath.Separator) {
		return name
	}
	candidates := []string{name}
	if runtime.GOOS == "windows" && filepath.Ext(name) == "" {
		candidates = []string{name + ".exe", name + ".bat", name + ".cmd"}
	}
	for _, c := range candidates {
		p := filepath.Join(e.Bin, c)
		if fi, err := os.Stat(p); err == nil && !fi.IsDir() {
			return p
		}
	}
	return name
}

func isPathKey(k string) bool { return envKeyEqual(k, "PATH") }

// Windows environment variable names are case-insensitive.
func envKeyEqual(a, b string) bool {
	if runtime.GOOS == "windows" {
		return strings.EqualFold(a, b)
	}
	return a == b
}
