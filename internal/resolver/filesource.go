package resolver

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/hpungsan/casefile/internal/errors"
)

const debounceInterval = 50 * time.Millisecond

// FileSource is an ItemSource backed by a JSON file holding the open item.
// A missing or empty file means no item is open.
type FileSource struct {
	path string
	log  zerolog.Logger

	mu      sync.Mutex
	fw      *fsnotify.Watcher
	done    chan struct{}
	stopped bool
}

// NewFileSource creates a FileSource for path.
func NewFileSource(path string, log zerolog.Logger) *FileSource {
	return &FileSource{
		path: path,
		log:  log.With().Str("component", "item-file").Logger(),
		done: make(chan struct{}),
	}
}

// Current implements ItemSource.
func (s *FileSource) Current(_ context.Context) (CurrentItemContext, bool, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return CurrentItemContext{}, false, nil
	}
	if err != nil {
		return CurrentItemContext{}, false, errors.NewInternal(err)
	}
	if len(data) == 0 {
		return CurrentItemContext{}, false, nil
	}
	var item CurrentItemContext
	if err := json.Unmarshal(data, &item); err != nil {
		return CurrentItemContext{}, false, errors.NewInvalidRequest("item file is not valid JSON: " + err.Error())
	}
	return item, !item.Empty(), nil
}

// Watch signals on the returned channel whenever the item file is written,
// created, removed or renamed. Bursts within debounceInterval collapse into
// one signal. The channel closes when ctx is done or Stop is called.
func (s *FileSource) Watch(ctx context.Context) (<-chan struct{}, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	abs, err := filepath.Abs(s.path)
	if err != nil {
		fw.Close()
		return nil, errors.NewInternal(err)
	}
	// Watch the directory: editors replace files by rename.
	if err := fw.Add(filepath.Dir(abs)); err != nil {
		fw.Close()
		return nil, errors.NewInternal(err)
	}

	s.mu.Lock()
	s.fw = fw
	s.mu.Unlock()

	out := make(chan struct{}, 1)
	go func() {
		defer close(out)
		var last time.Time
		for {
			select {
			case event, ok := <-fw.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != abs {
					continue
				}
				if !(event.Has(fsnotify.Write) || event.Has(fsnotify.Create) ||
					event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename)) {
					continue
				}
				now := time.Now()
				if now.Sub(last) < debounceInterval {
					continue
				}
				last = now
				select {
				case out <- struct{}{}:
				default:
				}
			case err, ok := <-fw.Errors:
				if !ok {
					return
				}
				s.log.Debug().Err(err).Msg("watch error")
			case <-ctx.Done():
				s.Stop()
				return
			case <-s.done:
				return
			}
		}
	}()
	return out, nil
}

// Stop ends watching. Safe to call multiple times.
func (s *FileSource) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return nil
	}
	s.stopped = true
	close(s.done)
	if s.fw != nil {
		return s.fw.Close()
	}
	return nil
}
