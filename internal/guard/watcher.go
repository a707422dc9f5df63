package guard

import (
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// WatchState watches the orchestrator-context state file for external
// changes — written by a separate `adw guard user-prompt-submit` process via
// an atomic rename — and invokes onChange with the freshly read State each
// time the file is replaced. The returned watcher must be closed by the
// caller; a watch error is logged and treated as "state unchanged" rather
// than propagated, matching the guard's fail-open contract.
func WatchState(repoRoot string, onChange func(State)) (*fsnotify.Watcher, error) {
	dir := filepath.Dir(filepath.Join(repoRoot, StateFileName))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(dir); err != nil {
		w.Close()
		return nil, err
	}

	target := filepath.Join(repoRoot, StateFileName)
	go func() {
		for {
			select {
			case event, ok := <-w.Events:
				if !ok {
					return
				}
				if event.Name != target {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
					onChange(ReadState(repoRoot))
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				log.Printf("orchestrator-context state watcher error: %v", err)
			}
		}
	}()

	return w, nil
}
