// Copyright (c) 2025 duahaudo
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"log"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Reload debounce. Editors and atomic writers fire several events per save.
const watchDebounce = 200 * time.Millisecond

// Watcher reloads the settings file when it changes on disk and hands the
// parsed result to a callback. Parse failures keep the previous settings.
type Watcher struct {
	path     string
	onChange func(*Config)

	fw   *fsnotify.Watcher
	done chan struct{}
	once sync.Once
}

// Watch starts watching path. The callback runs on the watcher goroutine;
// keep it short.
func Watch(path string, onChange func(*Config)) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	// Watch the directory, not the file: atomic saves replace the inode.
	if err := fw.Add(filepath.Dir(path)); err != nil {
		_ = fw.Close()
		return nil, err
	}

	w := &Watcher{
		path:     path,
		onChange: onChange,
		fw:       fw,
		done:     make(chan struct{}),
	}
	go w.run()
	return w, nil
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	w.once.Do(func() { close(w.done) })
	return w.fw.Close()
}

func (w *Watcher) run() {
	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case <-w.done:
			return

		case ev, ok := <-w.fw.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != filepath.Clean(w.path) {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(watchDebounce)
				timerC = timer.C
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(watchDebounce)
			}

		case err, ok := <-w.fw.Errors:
			if !ok {
				return
			}
			log.Printf("CONFIG_WATCH_FAIL | err=%v", err)

		case <-timerC:
			timer = nil
			timerC = nil

			cfg, err := LoadFromPath(w.path)
			if err != nil {
				log.Printf("CONFIG_RELOAD_FAIL | path=%s err=%v", w.path, err)
				continue
			}
			log.Printf("CONFIG_RELOAD | path=%s", w.path)
			w.onChange(cfg)
		}
	}
}
