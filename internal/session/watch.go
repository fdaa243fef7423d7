package session

import (
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/hashicorp/go-hclog"
)

// Watcher observes root/qcut-export for directories left behind by a
// process that crashed mid-export, logging them as soon as they appear
// rather than waiting for the next periodic SweepStale run. It never
// deletes anything itself — SweepStale remains the only writer — it just
// shortens the detection latency for operators watching logs.
type Watcher struct {
	fsw *fsnotify.Watcher
	log hclog.Logger
}

// NewWatcher starts watching root/qcut-export for new session directories.
// If the directory doesn't exist yet, the watcher is still returned; Close
// is always safe to call.
func NewWatcher(root string, log hclog.Logger) (*Watcher, error) {
	if log == nil {
		log = hclog.NewNullLogger()
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{fsw: fsw, log: log.Named("session.watch")}
	_ = fsw.Add(filepath.Join(root, "qcut-export")) // best-effort: may not exist until the first session is created

	go w.loop()
	return w, nil
}

func (w *Watcher) loop() {
	for {
		select {
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if event.Op&fsnotify.Create != 0 {
				w.log.Debug("session directory event", "path", event.Name, "op", event.Op.String())
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.log.Warn("session watcher error", "error", err)
		}
	}
}

func (w *Watcher) Close() error { return w.fsw.Close() }
