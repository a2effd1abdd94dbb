package config

import (
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"chameleon/internal/logging"
)

// Watcher reloads the config file on change and hands the validated result to
// a callback. Gate tunables are the intended hot-reload target; structural
// settings (data dir, snapshot backend) still need a restart.
type Watcher struct {
	path     string
	watcher  *fsnotify.Watcher
	onChange func(*Config)
	debounce time.Duration
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewWatcher watches path. onChange runs on the watcher goroutine with each
// successfully reloaded config; invalid edits are logged and skipped.
func NewWatcher(path string, onChange func(*Config)) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	// Watch the directory: editors replace files on save, which drops a watch
	// on the file itself.
	if err := fw.Add(filepath.Dir(path)); err != nil {
		fw.Close()
		return nil, err
	}

	w := &Watcher{
		path:     path,
		watcher:  fw,
		onChange: onChange,
		debounce: 500 * time.Millisecond,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
	go w.loop()
	return w, nil
}

func (w *Watcher) loop() {
	defer close(w.doneCh)
	// Trailing debounce: editors save as a burst of writes (often through a
	// temp file), so the reload waits until the burst has been quiet for the
	// debounce window and then reads the completed file once.
	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	pending := false
	for {
		select {
		case <-w.stopCh:
			timer.Stop()
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				timer.Stop()
				return
			}
			if filepath.Clean(ev.Name) != filepath.Clean(w.path) {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			if pending && !timer.Stop() {
				<-timer.C
			}
			timer.Reset(w.debounce)
			pending = true
		case <-timer.C:
			pending = false
			cfg, err := Load(w.path)
			if err != nil {
				logging.Engine("config reload skipped: %v", err)
				continue
			}
			logging.Engine("config reloaded from %s", w.path)
			w.onChange(cfg)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				timer.Stop()
				return
			}
			logging.Engine("config watcher error: %v", err)
		}
	}
}

// Close stops the watcher and waits for its goroutine to exit.
func (w *Watcher) Close() error {
	close(w.stopCh)
	err := w.watcher.Close()
	<-w.doneCh
	return err
}
