// PCBoven Core
// Copyright (c) 2026 The PCBoven Project Contributors.
// SPDX-License-Identifier: GPL-3.0-or-later
//
// This file is part of PCBoven Core.
//
// PCBoven Core is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// PCBoven Core is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with PCBoven Core.  If not, see <http://www.gnu.org/licenses/>.

package service

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/pcboven/pcboven-core/pkg/config"
	"github.com/rs/zerolog/log"
)

const reloadDebounce = 250 * time.Millisecond

// configWatcher reloads the config file when it changes on disk. The
// parent directory is watched so editors that save by rename are seen.
type configWatcher struct {
	cfg      *config.Instance
	watcher  *fsnotify.Watcher
	onReload func()
	stopChan chan struct{}
	path     string
	wg       sync.WaitGroup
	stopOnce sync.Once
}

func watchConfig(cfg *config.Instance, onReload func()) (*configWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	path := filepath.Clean(cfg.Path())
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("failed to watch config directory: %w", err)
	}

	w := &configWatcher{
		cfg:      cfg,
		watcher:  watcher,
		onReload: onReload,
		stopChan: make(chan struct{}),
		path:     path,
	}
	w.wg.Add(1)
	go w.run()

	log.Debug().Str("path", path).Msg("watching config file")
	return w, nil
}

func (w *configWatcher) run() {
	defer w.wg.Done()

	debounce := time.NewTimer(0)
	if !debounce.Stop() {
		<-debounce.C
	}

	for {
		select {
		case <-w.stopChan:
			debounce.Stop()
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			debounce.Reset(reloadDebounce)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Warn().Err(err).Msg("fsnotify error")
		case <-debounce.C:
			w.reload()
		}
	}
}

func (w *configWatcher) reload() {
	if err := w.cfg.Load(); err != nil {
		log.Error().Err(err).Msg("failed to reload config, keeping previous values")
		return
	}
	log.Info().Msg("config reloaded")
	if w.onReload != nil {
		w.onReload()
	}
}

func (w *configWatcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopChan)
		_ = w.watcher.Close()
		w.wg.Wait()
	})
}
