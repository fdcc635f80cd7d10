// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package track records which files change in a directory tree while a
// program runs.
package track

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Tracker watches a directory tree and collects changed files.
type Tracker struct {
	dir    string
	skip   []string
	w      *fsnotify.Watcher
	done   chan struct{}
	closed sync.Once

	mu      sync.Mutex
	changed map[string]bool
	errs    []error
}

// Settle is how long Stop waits for in-flight events before closing the
// watcher.
var Settle = 100 * time.Millisecond

// Start begins watching dir recursively. Directories whose base name is in
// skip (and .git) are not watched.
func Start(dir string, skip ...string) (*Tracker, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	t := &Tracker{
		dir:     dir,
		skip:    append([]string{".git"}, skip...),
		w:       w,
		done:    make(chan struct{}),
		changed: make(map[string]bool),
	}
	if err := t.watchRecursive(dir); err != nil {
		w.Close()
		return nil, err
	}
	go t.loop()
	return t, nil
}

func (t *Tracker) skipped(path string) bool {
	return path != t.dir && slices.Contains(t.skip, filepath.Base(path))
}

func (t *Tracker) watchRecursive(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if t.skipped(path) {
			return filepath.SkipDir
		}
		return t.w.Add(path)
	})
}

func (t *Tracker) loop() {
	defer close(t.done)
	for {
		select {
		case event, ok := <-t.w.Events:
			if !ok {
				return
			}
			t.handle(event)
		case err, ok := <-t.w.Errors:
			if !ok {
				return
			}
			t.mu.Lock()
			t.errs = append(t.errs, err)
			t.mu.Unlock()
		}
	}
}

func (t *Tracker) handle(event fsnotify.Event) {
	rel, err := filepath.Rel(t.dir, event.Name)
	if err != nil || strings.HasPrefix(rel, "..") {
		return
	}
	for _, part := range strings.Split(filepath.ToSlash(rel), "/") {
		if slices.Contains(t.skip, part) {
			return
		}
	}
	if !relevant(event.Name, event.Op) {
		return
	}

	// New directories have to be watched too; files created in them before
	// the watch is added are picked up by the walk.
	if event.Op&fsnotify.Create != 0 {
		if isDir(event.Name) {
			t.addCreatedDir(event.Name)
			return
		}
	}

	t.mu.Lock()
	t.changed[filepath.ToSlash(rel)] = true
	t.mu.Unlock()
}

func (t *Tracker) addCreatedDir(dir string) {
	filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if t.skipped(path) {
				return filepath.SkipDir
			}
			t.w.Add(path)
			return nil
		}
		if rel, err := filepath.Rel(t.dir, path); err == nil {
			t.mu.Lock()
			t.changed[filepath.ToSlash(rel)] = true
			t.mu.Unlock()
		}
		return nil
	})
}

// Changed returns the files changed so far, sorted and relative to the
// watched directory with forward slashes.
func (t *Tracker) Changed() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	files := make([]string, 0, len(t.changed))
	for f := range t.changed {
		files = append(files, f)
	}
	slices.Sort(files)
	return files
}

// Stop waits for pending events, stops watching and returns the changed
// files along with any errors the watcher reported.
func (t *Tracker) Stop() ([]string, error) {
	t.closed.Do(func() {
		time.Sleep(Settle)
		t.w.Close()
		<-t.done
	})
	t.mu.Lock()
	err := errors.Join(t.errs...)
	t.mu.Unlock()
	return t.Changed(), err
}

// relevant reports whether an event is a change worth recording.
func relevant(path string, op fsnotify.Op) bool {
	base := filepath.Base(path)

	switch {
	case base == ".DS_Store":
		return false
	// Vim probes directories with this file.
	case base == "4913":
		return false
	case strings.HasSuffix(base, "~"), strings.HasSuffix(base, ".swp"):
		return false
	// Python bytecode caches are not content.
	case strings.HasSuffix(base, ".pyc"), base == "__pycache__":
		return false
	}

	// Renames are followed by a create of the new name; chmod doesn't
	// change content.
	return op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove) != 0
}

func isDir(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && fi.IsDir()
}
