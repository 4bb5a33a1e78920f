package storage

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/fsnotify/fsnotify"
)

// Watch logs sound files appearing on or disappearing from the volume until
// ctx is cancelled. onChange, if non-nil, receives the volume file name and
// whether it is now present. Only ".mp3" files are reported.
func (v *Volume) Watch(ctx context.Context, onChange func(name string, present bool)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "storage: create watcher")
	}
	if err := watcher.Add(v.root); err != nil {
		watcher.Close()
		return errors.Wrapf(err, "storage: watch %s", v.root)
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !strings.EqualFold(filepath.Ext(event.Name), ".mp3") {
					continue
				}
				name := "/" + filepath.Base(event.Name)
				var present bool
				switch {
				case event.Has(fsnotify.Create), event.Has(fsnotify.Write):
					present = true
				case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
					present = false
				default:
					continue
				}
				slog.Info("storage: sound file changed", "volume", v.name, "file", name, "present", present)
				if onChange != nil {
					onChange(name, present)
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				slog.Warn("storage: watcher error", "volume", v.name, "err", err)
			}
		}
	}()
	return nil
}
