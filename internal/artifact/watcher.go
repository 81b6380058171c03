package artifact

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Watcher observes the chunks root for external edits and exposes a
// coalesced wake signal. Consumers that poll on an interval use it to react
// immediately when an agent or operator touches an artifact file.
type Watcher struct {
	fw   *fsnotify.Watcher
	wake chan struct{}
	done chan struct{}

	closeOnce sync.Once
}

// NewWatcher starts watching the chunks root and every chunk directory
// under it. New chunk directories are picked up as they appear.
func NewWatcher(root string) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(root); err != nil {
		fw.Close()
		return nil, err
	}
	entries, err := os.ReadDir(root)
	if err != nil {
		fw.Close()
		return nil, err
	}
	for _, e := range entries {
		if e.IsDir() {
			// Best effort, a vanished dir is not fatal.
			fw.Add(filepath.Join(root, e.Name()))
		}
	}

	w := &Watcher{
		fw:   fw,
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	go w.loop()
	return w, nil
}

func (w *Watcher) loop() {
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.fw.Events:
			if !ok {
				return
			}
			if event.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					w.fw.Add(event.Name)
				}
			}
			// Coalesce: a pending wake covers any number of edits.
			select {
			case w.wake <- struct{}{}:
			default:
			}
		case <-w.fw.Errors:
			// Keep watching through transient errors.
		}
	}
}

// Wake returns the channel that receives a signal after artifact edits.
func (w *Watcher) Wake() <-chan struct{} { return w.wake }

// Close stops the watcher.
func (w *Watcher) Close() {
	w.closeOnce.Do(func() {
		close(w.done)
		w.fw.Close()
	})
}
