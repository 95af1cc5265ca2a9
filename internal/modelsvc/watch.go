package modelsvc

import (
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
)

// watchLoop invalidates cached enrollment entries as soon as their backing
// file changes, ahead of the next request's mtime check. This is a latency
// optimization layered on top of the authoritative mtime comparison in
// handleGetEncodings (spec §4.1, §7); if the watcher dies or was never
// started, requests still get correct results, just a cache generation
// later than they could have.
func (s *Service) watchLoop() {
	for {
		select {
		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			s.handleWatchEvent(event)
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			s.log.WithError(err).Warn("enrollment directory watcher error")
		}
	}
}

func (s *Service) handleWatchEvent(event fsnotify.Event) {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
		!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return
	}

	username := usernameFromPath(event.Name)
	if username == "" {
		return
	}

	s.mu.Lock()
	delete(s.cache, username)
	s.mu.Unlock()
	s.log.WithField("username", username).Debug("enrollment cache invalidated by watcher")
}

func usernameFromPath(path string) string {
	base := filepath.Base(path)
	if !strings.HasSuffix(base, ".json") {
		return ""
	}
	return strings.TrimSuffix(base, ".json")
}
