package watch

import (
	"io/fs"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/assetstream/streamer/internal/asset"
	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watcher reports changed asset files under a set of directories.
// Repeated events for one file within the debounce window collapse to one.
type Watcher struct {
	watcher  *fsnotify.Watcher
	events   chan string
	debounce time.Duration
	log      *zap.Logger
	closeCh  chan struct{}
	done     chan struct{}
	once     sync.Once
}

// New watches every directory below each root.
func New(debounce time.Duration, log *zap.Logger, roots ...string) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	for _, root := range roots {
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return fw.Add(path)
			}
			return nil
		})
		if err != nil {
			_ = fw.Close()
			return nil, err
		}
	}

	w := &Watcher{
		watcher:  fw,
		events:   make(chan string, 64),
		debounce: debounce,
		log:      log,
		closeCh:  make(chan struct{}),
		done:     make(chan struct{}),
	}
	go w.run()
	return w, nil
}

// Drain returns the changed paths reported since the last call, normalized
// like asset paths. It never blocks.
func (w *Watcher) Drain() []string {
	var out []string
	seen := make(map[string]struct{})
	for {
		select {
		case p, ok := <-w.events:
			if !ok {
				return out
			}
			if _, dup := seen[p]; dup {
				continue
			}
			seen[p] = struct{}{}
			out = append(out, p)
		default:
			return out
		}
	}
}

func (w *Watcher) Close() error {
	var err error
	w.once.Do(func() {
		close(w.closeCh)
		err = w.watcher.Close()
		<-w.done
	})
	return err
}

func (w *Watcher) run() {
	defer close(w.done)
	last := make(map[string]time.Time)
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if !IsAssetFile(event.Name) {
				continue
			}
			now := time.Now()
			if t, ok := last[event.Name]; ok && now.Sub(t) < w.debounce {
				continue
			}
			last[event.Name] = now
			select {
			case w.events <- asset.NormalizePath(event.Name):
			default:
				w.log.Warn("watch event dropped", zap.String("path", event.Name))
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Warn("watch error", zap.Error(err))
		case <-w.closeCh:
			return
		}
	}
}

// IsAssetFile reports whether a change to path can affect a streamed asset.
func IsAssetFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".gltf", ".glb", ".bin", ".lua":
		return true
	}
	return false
}
