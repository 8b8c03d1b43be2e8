package settings

import (
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// fileWatcher follows one file through editor-style replace-on-save (remove
// then recreate), debouncing bursts of events into a single reload.
type fileWatcher struct {
	watcher  *fsnotify.Watcher
	path     string
	debounce time.Duration
	onChange func()
	logger   *slog.Logger
	done     chan struct{}
}

func newFileWatcher(path string, onChange func(), logger *slog.Logger) (*fileWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	// Watch the directory: watching the file itself breaks when editors
	// replace it on save.
	if err := w.Add(filepath.Dir(path)); err != nil {
		_ = w.Close()
		return nil, err
	}
	fw := &fileWatcher{
		watcher:  w,
		path:     filepath.Clean(path),
		debounce: 300 * time.Millisecond,
		onChange: onChange,
		logger:   logger,
		done:     make(chan struct{}),
	}
	go fw.run()
	return fw, nil
}

func (fw *fileWatcher) run() {
	var timer *time.Timer
	var fire <-chan time.Time
	for {
		select {
		case <-fw.done:
			return
		case ev, ok := <-fw.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != fw.path {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(fw.debounce)
			} else {
				timer.Reset(fw.debounce)
			}
			fire = timer.C
		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			fw.logger.Warn("settings watcher error", "error", err)
		case <-fire:
			fire = nil
			fw.onChange()
		}
	}
}

func (fw *fileWatcher) close() error {
	close(fw.done)
	return fw.watcher.Close()
}
