// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/segflow/trackd/internal/log"
)

// ConfigHolder holds the resolved configuration with atomic hot-reload from
// the backing file, notifying registered listeners on every successful swap.
type ConfigHolder struct {
	path     string
	dir      string
	file     string
	current  atomic.Pointer[AppConfig]
	watcher  *fsnotify.Watcher
	logger   zerolog.Logger
	reloadMu sync.Mutex

	listenersMu sync.RWMutex
	listeners   []chan<- AppConfig
}

// NewConfigHolder loads path once and returns a holder seeded with the
// result. path may be empty, in which case the holder never reloads and
// StartWatcher is a no-op.
func NewConfigHolder(path string) (*ConfigHolder, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	h := &ConfigHolder{
		path:   path,
		logger: log.WithComponent("config"),
	}
	h.current.Store(&cfg)
	return h, nil
}

// Get returns the current resolved configuration.
func (h *ConfigHolder) Get() AppConfig {
	return *h.current.Load()
}

// Reload re-reads the backing file and swaps the held configuration.
func (h *ConfigHolder) Reload() error {
	h.reloadMu.Lock()
	defer h.reloadMu.Unlock()

	cfg, err := Load(h.path)
	if err != nil {
		h.logger.Error().Err(err).Msg("config reload failed, keeping previous configuration")
		return fmt.Errorf("reload config: %w", err)
	}
	h.current.Store(&cfg)
	h.logger.Info().Msg("configuration reloaded")
	h.notify(cfg)
	return nil
}

// RegisterListener registers a channel to receive the new config on every
// successful reload. Sends are non-blocking; a full channel is skipped.
func (h *ConfigHolder) RegisterListener(ch chan<- AppConfig) {
	h.listenersMu.Lock()
	defer h.listenersMu.Unlock()
	h.listeners = append(h.listeners, ch)
}

func (h *ConfigHolder) notify(cfg AppConfig) {
	h.listenersMu.RLock()
	defer h.listenersMu.RUnlock()
	for _, ch := range h.listeners {
		select {
		case ch <- cfg:
		default:
			h.logger.Warn().Msg("skipped notifying config listener (channel full)")
		}
	}
}

// StartWatcher watches the backing file for changes and reloads on write,
// create, or rename events (covering both in-place edits and atomic
// replace-via-rename). No-op when the holder was constructed with an empty
// path.
func (h *ConfigHolder) StartWatcher(ctx context.Context) error {
	if h.path == "" {
		h.logger.Info().Msg("config file watcher disabled (no config file path)")
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	h.watcher = watcher
	h.dir = filepath.Dir(h.path)
	h.file = filepath.Base(h.path)

	if err := watcher.Add(h.dir); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("watch config dir: %w", err)
	}

	h.logger.Info().Str(log.FieldPath, h.path).Msg("watching config file for changes")
	go h.watchLoop(ctx)
	return nil
}

func (h *ConfigHolder) watchLoop(ctx context.Context) {
	const debounce = 500 * time.Millisecond
	var timer *time.Timer

	for {
		select {
		case <-ctx.Done():
			_ = h.watcher.Close()
			return
		case event, ok := <-h.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != h.file {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(debounce, func() {
				if err := h.Reload(); err != nil {
					h.logger.Error().Err(err).Msg("automatic config reload failed")
				}
			})
		case err, ok := <-h.watcher.Errors:
			if !ok {
				return
			}
			h.logger.Error().Err(err).Msg("config watcher error")
		}
	}
}

// Stop closes the watcher, if running.
func (h *ConfigHolder) Stop() {
	if h.watcher != nil {
		_ = h.watcher.Close()
	}
}
