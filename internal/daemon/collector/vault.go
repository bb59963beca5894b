package collector

import (
	"context"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"

	"github.com/grovetools/superstate/internal/daemon/store"
	"github.com/grovetools/superstate/internal/vault"
	"github.com/grovetools/superstate/pkg/models"
)

// VaultWatcher turns file-system events below a vault root into
// mutations. Events are collected for a quiet period and then resolved as
// one batch, so a rename's remove/create pair arrives as one rename.
type VaultWatcher struct {
	fs       *vault.FS
	debounce time.Duration
	logger   *logrus.Entry
}

// NewVaultWatcher creates a watcher for fs.
func NewVaultWatcher(fs *vault.FS, debounce time.Duration, logger *logrus.Entry) *VaultWatcher {
	if debounce <= 0 {
		debounce = 100 * time.Millisecond
	}
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &VaultWatcher{fs: fs, debounce: debounce, logger: logger.WithField("collector", "vault")}
}

func (w *VaultWatcher) Name() string { return "vault" }

// Run watches the vault until ctx is cancelled.
func (w *VaultWatcher) Run(ctx context.Context, st *store.Store, out chan<- Mutation) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := w.addDirs(watcher, w.fs.Root()); err != nil {
		return err
	}

	pending := make(map[string]fsnotify.Op)
	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			vp, ok := w.fs.VaultPath(event.Name)
			if !ok || vp == "/" {
				continue
			}
			info, statErr := os.Stat(event.Name)
			isDir := statErr == nil && info.IsDir()
			if statErr != nil {
				if known := st.Path(vp); known != nil {
					isDir = known.Type == models.PathTypeFolder
				}
			}
			if !w.fs.Included(vp, isDir) {
				continue
			}
			if isDir && event.Op&fsnotify.Create != 0 {
				if err := w.addDirs(watcher, event.Name); err != nil {
					w.logger.WithError(err).WithField("dir", vp).Warn("Failed to watch new directory")
				}
			}
			pending[vp] |= event.Op
			timer.Reset(w.debounce)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.WithError(err).Warn("Watcher error")

		case <-timer.C:
			batch := pending
			pending = make(map[string]fsnotify.Op)
			w.fs.Invalidate()
			for _, m := range w.resolve(batch, st) {
				select {
				case out <- m:
				case <-ctx.Done():
					return nil
				}
			}
		}
	}
}

// addDirs recursively adds directories to the watcher, skipping excluded
// and hidden ones.
func (w *VaultWatcher) addDirs(watcher *fsnotify.Watcher, root string) error {
	return filepath.Walk(root, func(p string, info os.FileInfo, err error) error {
		if err != nil || !info.IsDir() {
			return nil
		}
		if p != w.fs.Root() {
			vp, ok := w.fs.VaultPath(p)
			if !ok || !w.fs.Included(vp, true) {
				return filepath.SkipDir
			}
		}
		return watcher.Add(p)
	})
}

func (w *VaultWatcher) resolve(batch map[string]fsnotify.Op, st *store.Store) []Mutation {
	return Resolve(batch, st, func(vp string) (bool, bool) {
		full := filepath.Join(w.fs.Root(), filepath.FromSlash(strings.TrimPrefix(vp, "/")))
		info, err := os.Stat(full)
		if err != nil {
			return false, false
		}
		return info.IsDir(), true
	}, w.children)
}

func (w *VaultWatcher) children(folder string) []string {
	all, err := w.fs.AllPaths("")
	if err != nil {
		w.logger.WithError(err).WithField("dir", folder).Warn("Failed to list new directory")
		return nil
	}
	prefix := folder + "/"
	var out []string
	for _, p := range all {
		if strings.HasPrefix(p, prefix) {
			out = append(out, p)
		}
	}
	return out
}

// Resolve turns one batch of raw events into mutations. stat reports
// whether a vault path is a directory and whether it exists; children
// lists what a newly appeared directory already holds. Paths that vanished
// are paired with paths that appeared under the same name into renames.
func Resolve(batch map[string]fsnotify.Op, st *store.Store, stat func(string) (dir, ok bool), children func(string) []string) []Mutation {
	paths := make([]string, 0, len(batch))
	for p := range batch {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	var gone, appeared, changed []string
	dirs := make(map[string]bool)
	for _, p := range paths {
		dir, exists := stat(p)
		known := st.Path(p) != nil
		switch {
		case !exists && known:
			gone = append(gone, p)
		case exists && !known:
			appeared = append(appeared, p)
			dirs[p] = dir
		case exists && batch[p]&(fsnotify.Write|fsnotify.Create) != 0:
			changed = append(changed, p)
		}
	}
	gone = topmost(gone)
	appeared = topmost(appeared)

	var out []Mutation
	used := make(map[string]bool)
	for _, g := range gone {
		match := ""
		for _, a := range appeared {
			if !used[a] && path.Base(a) == path.Base(g) {
				match = a
				break
			}
		}
		if match == "" && len(gone) == 1 && len(appeared) == 1 && !used[appeared[0]] {
			match = appeared[0]
		}
		if match == "" {
			out = append(out, Mutation{Kind: MutationDeleted, Path: g})
			continue
		}
		used[match] = true
		out = append(out, Mutation{Kind: MutationRenamed, OldPath: g, Path: match})
	}
	for _, a := range appeared {
		if used[a] {
			continue
		}
		out = append(out, Mutation{Kind: MutationCreated, Path: a})
		if dirs[a] && children != nil {
			for _, c := range children(a) {
				if st.Path(c) == nil {
					out = append(out, Mutation{Kind: MutationCreated, Path: c})
				}
			}
		}
	}
	for _, c := range changed {
		out = append(out, Mutation{Kind: MutationChanged, Path: c})
	}
	return out
}

// topmost drops paths that lie below another path of the sorted list.
func topmost(sorted []string) []string {
	var out []string
	for _, p := range sorted {
		if n := len(out); n > 0 && strings.HasPrefix(p, out[n-1]+"/") {
			continue
		}
		out = append(out, p)
	}
	return out
}
