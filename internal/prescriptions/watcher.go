package prescriptions

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/sandeepkv93/medremind/internal/logging"
)

const defaultDebounce = 250 * time.Millisecond

// Watcher calls onChange after the prescriptions file is written, created,
// or renamed into place. Bursts of events within the debounce window
// collapse into one call.
type Watcher struct {
	path     string
	debounce time.Duration
	log      logging.Logger
	onChange func()
}

func NewWatcher(path string, debounce time.Duration, log logging.Logger, onChange func()) *Watcher {
	if debounce <= 0 {
		debounce = defaultDebounce
	}
	if log == nil {
		log = logging.NewNop()
	}
	return &Watcher{path: filepath.Clean(path), debounce: debounce, log: log, onChange: onChange}
}

// Run watches until ctx is cancelled. The parent directory is watched so
// atomic replace-by-rename is seen.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("prescriptions: new watcher: %w", err)
	}
	defer fw.Close()

	dir := filepath.Dir(w.path)
	if err := fw.Add(dir); err != nil {
		return fmt.Errorf("prescriptions: watch %s: %w", dir, err)
	}

	var timer *time.Timer
	var fire <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !w.relevant(ev) {
				continue
			}
			w.log.Debug("prescriptions file changed", logging.String("op", ev.Op.String()))
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(w.debounce)
			}
			fire = timer.C
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("prescriptions watcher error", logging.Err(err))
		case <-fire:
			fire = nil
			w.onChange()
		}
	}
}

func (w *Watcher) relevant(ev fsnotify.Event) bool {
	if filepath.Clean(ev.Name) != w.path {
		return false
	}
	return ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename)
}
