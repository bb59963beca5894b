package collector

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"

	"github.com/grovetools/superstate/internal/daemon/store"
	"github.com/grovetools/superstate/pkg/models"
	"github.com/grovetools/superstate/util/pathutil"
)

// DeclaredLoader reloads the configured spaces, keyed by space path.
type DeclaredLoader func() (map[string]*models.SpaceDefinition, error)

// ConfigWatcher watches the configuration directories and reports changes
// to the declared spaces as MutationDeclared mutations.
// fsnotify does not follow symlinks, so the directories of linked config
// files are watched as well.
type ConfigWatcher struct {
	dirs     []string
	load     DeclaredLoader
	debounce time.Duration
	logger   *logrus.Entry
	known    map[string]*models.SpaceDefinition
}

// NewConfigWatcher creates a watcher over dirs. initial is the declared set
// the engine was started with.
func NewConfigWatcher(dirs []string, initial map[string]*models.SpaceDefinition, load DeclaredLoader, debounce time.Duration, logger *logrus.Entry) *ConfigWatcher {
	if debounce <= 0 {
		debounce = 100 * time.Millisecond
	}
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	known := make(map[string]*models.SpaceDefinition, len(initial))
	for p, def := range initial {
		known[p] = def.Clone()
	}
	return &ConfigWatcher{
		dirs:     dirs,
		load:     load,
		debounce: debounce,
		logger:   logger.WithField("collector", "config"),
		known:    known,
	}
}

func (w *ConfigWatcher) Name() string { return "config" }

// Run watches the configuration files until ctx is cancelled.
func (w *ConfigWatcher) Run(ctx context.Context, _ *store.Store, out chan<- Mutation) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	targetToLink := w.watch(watcher)

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
			name := event.Name
			if link, ok := targetToLink[name]; ok {
				name = link
			}
			if !IsConfigFile(name) {
				continue
			}
			w.logger.Debugf("fsnotify event: %s op=%v", name, event.Op)
			timer.Reset(w.debounce)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.WithError(err).Warn("Watcher error")

		case <-timer.C:
			for _, m := range w.reload() {
				select {
				case out <- m:
				case <-ctx.Done():
					return nil
				}
			}
		}
	}
}

// watch adds every existing directory plus the target directories of
// symlinked config files. It returns a map from target file to link path.
func (w *ConfigWatcher) watch(watcher *fsnotify.Watcher) map[string]string {
	watched := make(map[string]bool)
	targetToLink := make(map[string]string)
	add := func(dir string) {
		if dir == "" {
			return
		}
		key, err := pathutil.NormalizeForLookup(dir)
		if err != nil || watched[key] {
			return
		}
		if err := watcher.Add(dir); err != nil {
			w.logger.WithError(err).Debugf("Not watching %s", dir)
			return
		}
		watched[key] = true
	}

	for _, dir := range w.dirs {
		add(dir)
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, entry := range entries {
			if !IsConfigFile(entry.Name()) || entry.Type()&os.ModeSymlink == 0 {
				continue
			}
			link := filepath.Join(dir, entry.Name())
			target, err := filepath.EvalSymlinks(link)
			if err != nil {
				w.logger.WithError(err).Warnf("Failed to resolve symlink %s", entry.Name())
				continue
			}
			targetToLink[target] = link
			add(filepath.Dir(target))
		}
	}
	return targetToLink
}

// reload loads the declared set and diffs it against the last one seen.
// A config that fails to load keeps the previous set.
func (w *ConfigWatcher) reload() []Mutation {
	next, err := w.load()
	if err != nil {
		w.logger.WithError(err).Warn("Failed to reload configuration, keeping declared spaces")
		return nil
	}
	muts := DiffDeclared(w.known, next)
	if len(muts) > 0 {
		w.logger.WithField("changes", len(muts)).Info("Declared spaces changed")
	}
	w.known = make(map[string]*models.SpaceDefinition, len(next))
	for p, def := range next {
		w.known[p] = def.Clone()
	}
	return muts
}

// DiffDeclared returns the mutations that turn the declared set prev into
// next, ordered by space path.
func DiffDeclared(prev, next map[string]*models.SpaceDefinition) []Mutation {
	seen := make(map[string]struct{}, len(prev)+len(next))
	for p := range prev {
		seen[p] = struct{}{}
	}
	for p := range next {
		seen[p] = struct{}{}
	}
	keys := make([]string, 0, len(seen))
	for p := range seen {
		keys = append(keys, p)
	}
	sort.Strings(keys)

	var out []Mutation
	for _, p := range keys {
		before, had := prev[p]
		after, has := next[p]
		switch {
		case had && !has:
			out = append(out, Mutation{Kind: MutationDeclared, Path: p})
		case has && (!had || !reflect.DeepEqual(before.Clone(), after.Clone())):
			out = append(out, Mutation{Kind: MutationDeclared, Path: p, Definition: after.Clone()})
		}
	}
	return out
}

// IsConfigFile reports whether name is a superstate configuration file.
func IsConfigFile(name string) bool {
	base := strings.TrimPrefix(filepath.Base(name), ".")
	if !strings.HasPrefix(base, "superstate.") {
		return false
	}
	switch filepath.Ext(base) {
	case ".yml", ".yaml", ".toml":
		return true
	}
	return false
}
