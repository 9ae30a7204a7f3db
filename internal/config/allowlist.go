package config

import (
	"os"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// AllowList is a hot-reloadable set of allowed WebSocket Origin header
// values, backed by a newline-delimited file (§10.3, §11's
// --allow-list-file) and kept current via fsnotify the way the teacher's
// pack watches config files, so an operator can add a staging host
// without restarting the bridge. It implements internal/listener's
// OriginAllower.
type AllowList struct {
	mu      sync.RWMutex
	origins map[string]bool
	watcher *fsnotify.Watcher
	logger  *logrus.Logger
}

// NewAllowList reads path and starts watching it for changes.
func NewAllowList(path string, logger *logrus.Logger) (*AllowList, error) {
	al := &AllowList{logger: logger}
	if err := al.reload(path); err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(path); err != nil {
		watcher.Close()
		return nil, err
	}
	al.watcher = watcher
	go al.watchLoop(path)
	return al, nil
}

func (al *AllowList) reload(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	origins := make(map[string]bool)
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		origins[line] = true
	}
	al.mu.Lock()
	al.origins = origins
	al.mu.Unlock()
	return nil
}

func (al *AllowList) watchLoop(path string) {
	for {
		select {
		case event, ok := <-al.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if err := al.reload(path); err != nil && al.logger != nil {
				al.logger.WithError(err).Warn("config: failed to reload allow-list file")
			}
		case err, ok := <-al.watcher.Errors:
			if !ok {
				return
			}
			if al.logger != nil {
				al.logger.WithError(err).Warn("config: allow-list watcher error")
			}
		}
	}
}

// Allowed reports whether origin currently appears in the watched file.
func (al *AllowList) Allowed(origin string) bool {
	al.mu.RLock()
	defer al.mu.RUnlock()
	return al.origins[origin]
}

// Close stops watching the file.
func (al *AllowList) Close() error {
	if al.watcher == nil {
		return nil
	}
	return al.watcher.Close()
}
