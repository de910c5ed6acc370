// Package watch reruns a build whenever the config file or a source changes.
package watch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/qiniu/x/log"

	"github.com/goplus/cbt/pkgs/buildsys"
)

// DefaultDebounce is how long the watcher waits for events to settle.
const DefaultDebounce = 300 * time.Millisecond

// Watcher drives repeated builds.
type Watcher struct {
	// ConfigPath is the absolute config file. Its directory is watched too,
	// but only events on the file itself count.
	ConfigPath string
	Debounce   time.Duration

	// Dirs returns the source directories to watch. It is called after
	// every build since the config may have changed them.
	Dirs func() ([]string, error)
	// Build runs the pipeline once.
	Build func(ctx context.Context) error
	// OnError receives build and watch errors; watching always continues.
	OnError func(err error)

	sources map[string]bool
	ready   func() // called once watches are in place after a build
}

// Run builds once, then rebuilds on every settled change until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer fsw.Close()

	debounce := w.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	w.rebuild(ctx, fsw)

	var (
		timer *time.Timer
		fire  <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if !w.relevant(event) {
				continue
			}
			log.Debugf("watch: %s %s", event.Op, event.Name)
			if timer == nil {
				timer = time.NewTimer(debounce)
			} else {
				timer.Reset(debounce)
			}
			fire = timer.C
		case <-fire:
			fire = nil
			w.rebuild(ctx, fsw)
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.report(fmt.Errorf("watch: %w", err))
		}
	}
}

func (w *Watcher) rebuild(ctx context.Context, fsw *fsnotify.Watcher) {
	if err := w.Build(ctx); err != nil {
		w.report(err)
	}
	if ctx.Err() != nil {
		return
	}
	if err := w.rewatch(fsw); err != nil {
		w.report(err)
	}
	if w.ready != nil {
		w.ready()
	}
}

// rewatch makes the watch list equal to the config dir plus Dirs().
func (w *Watcher) rewatch(fsw *fsnotify.Watcher) error {
	want := map[string]bool{filepath.Dir(w.ConfigPath): true}
	dirs, err := w.Dirs()
	w.sources = make(map[string]bool, len(dirs))
	for _, d := range dirs {
		want[d] = true
		w.sources[d] = true
	}
	for _, d := range fsw.WatchList() {
		if !want[d] {
			fsw.Remove(d)
		}
	}
	for d := range want {
		if err := fsw.Add(d); err != nil {
			log.Warnf("watch %s: %v", d, err)
		}
	}
	return err
}

// relevant filters out events that cannot change the build, including the
// writes the build itself makes to its build dir.
func (w *Watcher) relevant(event fsnotify.Event) bool {
	if event.Op == fsnotify.Chmod {
		return false
	}
	if event.Name == w.ConfigPath {
		return true
	}
	if _, ok := buildsys.LanguageOf(event.Name); ok {
		return true
	}
	if w.sources[event.Name] {
		// A watched dir went away.
		return event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename)
	}
	if event.Has(fsnotify.Create) && w.sources[filepath.Dir(event.Name)] {
		fi, err := os.Stat(event.Name)
		return err == nil && fi.IsDir()
	}
	return false
}

func (w *Watcher) report(err error) {
	if w.OnError != nil {
		w.OnError(err)
		return
	}
	log.Error(err)
}
