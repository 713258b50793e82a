package server

import (
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// BinaryWatcher watches the selected environment's tool executable and
// reports when it disappears out from under the supervisor, so the stale
// selection is surfaced instead of silently kept.
type BinaryWatcher struct {
	watcher *fsnotify.Watcher
	path    string
	logger  *zap.SugaredLogger
	done    chan struct{}
}

// WatchBinary starts watching toolPath. onGone is invoked once when the
// binary is removed or renamed.
func WatchBinary(toolPath string, onGone func(path string), logger *zap.SugaredLogger) (*BinaryWatcher, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	// Watch the containing directory; editors and installers replace
	// binaries rather than modifying them in place.
	if err := watcher.Add(filepath.Dir(toolPath)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", filepath.Dir(toolPath), err)
	}

	bw := &BinaryWatcher{
		watcher: watcher,
		path:    toolPath,
		logger:  logger,
		done:    make(chan struct{}),
	}
	go bw.loop(onGone)
	return bw, nil
}

func (bw *BinaryWatcher) loop(onGone func(path string)) {
	for {
		select {
		case <-bw.done:
			return
		case event, ok := <-bw.watcher.Events:
			if !ok {
				return
			}
			if event.Name != bw.path {
				continue
			}
			if event.Op.Has(fsnotify.Remove) || event.Op.Has(fsnotify.Rename) {
				bw.logger.Warnw("tool executable disappeared", "path", bw.path)
				onGone(bw.path)
				return
			}
		case err, ok := <-bw.watcher.Errors:
			if !ok {
				return
			}
			bw.logger.Debugw("watcher error", "error", err)
		}
	}
}

// Close stops the watcher
func (bw *BinaryWatcher) Close() error {
	select {
	case <-bw.done:
	default:
		close(bw.done)
	}
	return bw.watcher.Close()
}
