package config

import (
	"os"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Manager watches a config file and reloads it on change. Both fsnotify
// and mtime polling are used; polling covers bind-mounted files where
// inotify events are unreliable.
type Manager struct {
	path   string
	logger *zap.Logger

	mu        sync.RWMutex
	config    *Config
	callbacks []func(*Config)

	watcher     *fsnotify.Watcher
	ticker      *time.Ticker
	lastModTime time.Time
	stop        chan struct{}
	stopOnce    sync.Once
}

// NewManager loads the config and starts watching for changes.
func NewManager(path string, logger *zap.Logger) (*Manager, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	LoadFromEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	m := &Manager{
		path:   path,
		logger: logger,
		config: cfg,
		stop:   make(chan struct{}),
	}

	m.startWatching()
	return m, nil
}

// Get returns the current configuration.
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

// OnReload registers a callback invoked after each successful reload.
func (m *Manager) OnReload(fn func(*Config)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callbacks = append(m.callbacks, fn)
}

// Close stops watching.
func (m *Manager) Close() {
	m.stopOnce.Do(func() {
		close(m.stop)
		if m.watcher != nil {
			_ = m.watcher.Close()
		}
		if m.ticker != nil {
			m.ticker.Stop()
		}
	})
}

func (m *Manager) startWatching() {
	watcher, err := fsnotify.NewWatcher()
	if err == nil {
		if err := watcher.Add(m.path); err == nil {
			m.watcher = watcher
			go m.watchLoop()
		} else {
			m.logger.Warn("config watch unavailable", zap.Error(err))
			_ = watcher.Close()
		}
	} else {
		m.logger.Warn("fsnotify unavailable", zap.Error(err))
	}

	m.ticker = time.NewTicker(3 * time.Second)
	go m.pollLoop()
}

func (m *Manager) watchLoop() {
	for {
		select {
		case <-m.stop:
			return
		case ev, ok := <-m.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				m.reload()
			}
		case err, ok := <-m.watcher.Errors:
			if !ok {
				return
			}
			m.logger.Warn("config watch error", zap.Error(err))
		}
	}
}

func (m *Manager) pollLoop() {
	for {
		select {
		case <-m.stop:
			return
		case <-m.ticker.C:
			if m.modifiedSinceLast() {
				m.reload()
			}
		}
	}
}

func (m *Manager) modifiedSinceLast() bool {
	info, err := os.Stat(m.path)
	if err != nil {
		return false
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if info.ModTime().After(m.lastModTime) {
		m.lastModTime = info.ModTime()
		return true
	}
	return false
}

func (m *Manager) reload() {
	cfg, err := Load(m.path)
	if err != nil {
		m.logger.Warn("config reload failed", zap.Error(err))
		return
	}
	LoadFromEnv(cfg)
	if err := cfg.Validate(); err != nil {
		m.logger.Warn("rejected invalid config on reload", zap.Error(err))
		return
	}

	m.mu.Lock()
	m.config = cfg
	callbacks := make([]func(*Config), len(m.callbacks))
	copy(callbacks, m.callbacks)
	m.mu.Unlock()

	m.logger.Info("configuration reloaded", zap.String("path", m.path))
	for _, fn := range callbacks {
		fn(cfg)
	}
}
