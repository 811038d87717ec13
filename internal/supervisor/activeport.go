package supervisor

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/lance13c/cdplink/internal/logging"
)

// ActivePortFile is written into the profile directory once the debugging
// server is listening.
const ActivePortFile = "DevToolsActivePort"

// WaitActivePort watches profileDir and closes the returned channel when the
// browser creates or rewrites ActivePortFile. A file left over from an earlier
// run does not count. The watch ends with ctx.
func WaitActivePort(ctx context.Context, profileDir string) (<-chan struct{}, error) {
	absProfile, err := filepath.Abs(profileDir)
	if err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := watcher.Add(absProfile); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", absProfile, err)
	}

	ready := make(chan struct{})
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
				if filepath.Base(event.Name) != ActivePortFile {
					continue
				}
				if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
					continue
				}
				logging.Debug("Detected %s in %s", ActivePortFile, absProfile)
				close(ready)
				return
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logging.Warn("Profile watcher error: %v", err)
			}
		}
	}()
	return ready, nil
}

// WaitActivePort watches the profile directory of a launched browser.
func (s *Supervisor) WaitActivePort(ctx context.Context, profileDir string) (<-chan struct{}, error) {
	return WaitActivePort(ctx, profileDir)
}
