package signal

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"

	"github.com/okian/scoutsync/pkg/logger"
)

const markerSuffix = ".signal"

// FileSignal mirrors bus events into marker files under a directory and
// republishes marker changes made by other processes onto the local bus.
//
// A marker file holds the writer's origin id on its first line followed by
// the event value. Events written by this instance are not echoed back.
type FileSignal struct {
	dir    string
	origin string
	bus    *Bus

	watcher *fsnotify.Watcher
	done    chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

// NewFileSignal creates a FileSignal writing under dir and republishing onto bus.
func NewFileSignal(dir string, bus *Bus) *FileSignal {
	return &FileSignal{
		dir:    dir,
		origin: uuid.NewString(),
		bus:    bus,
		done:   make(chan struct{}),
	}
}

// Origin identifies this instance inside marker files.
func (f *FileSignal) Origin() string { return f.origin }

// Start creates the directory and begins watching it.
func (f *FileSignal) Start(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.running {
		return fmt.Errorf("file signal already running")
	}
	if err := os.MkdirAll(f.dir, 0o755); err != nil {
		return fmt.Errorf("create signal dir: %w", err)
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	if err := w.Add(f.dir); err != nil {
		_ = w.Close()
		return fmt.Errorf("failed to watch signal directory %s: %w", f.dir, err)
	}
	f.watcher = w
	f.running = true
	f.wg.Add(1)
	go f.processEvents(ctx)
	return nil
}

// Publish delivers ev on the local bus and writes its marker file so other
// processes see it.
func (f *FileSignal) Publish(ev Event) {
	f.bus.Publish(ev)

	var buf bytes.Buffer
	buf.WriteString(f.origin)
	buf.WriteByte('\n')
	buf.Write(ev.Value)

	path := filepath.Join(f.dir, ev.Collection+markerSuffix)
	tmp := path + ".tmp-" + f.origin
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		logger.Get().Named("signal").Warn(context.Background(), "write marker failed",
			logger.String("collection", ev.Collection), logger.Error(err))
		return
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		logger.Get().Named("signal").Warn(context.Background(), "rename marker failed",
			logger.String("collection", ev.Collection), logger.Error(err))
	}
}

// Stop stops watching and waits for the event goroutine to exit.
func (f *FileSignal) Stop() error {
	f.mu.Lock()
	if !f.running {
		f.mu.Unlock()
		return nil
	}
	f.running = false
	f.mu.Unlock()

	close(f.done)
	err := f.watcher.Close()
	f.wg.Wait()
	if err != nil {
		return fmt.Errorf("failed to close watcher: %w", err)
	}
	return nil
}

func (f *FileSignal) processEvents(ctx context.Context) {
	defer f.wg.Done()
	log := logger.Get().Named("signal")

	for {
		select {
		case <-ctx.Done():
			return
		case <-f.done:
			return
		case ev, ok := <-f.watcher.Events:
			if !ok {
				return
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			f.handle(ctx, ev.Name)
		case err, ok := <-f.watcher.Errors:
			if !ok {
				return
			}
			log.Warn(ctx, "signal watcher error", logger.Error(err))
		}
	}
}

func (f *FileSignal) handle(ctx context.Context, path string) {
	name := filepath.Base(path)
	if !strings.HasSuffix(name, markerSuffix) {
		return
	}
	data, err := os.ReadFile(path)
	if err != nil {
		// Replaced between the event and the read; the next event covers it.
		return
	}
	origin, value, _ := bytes.Cut(data, []byte{'\n'})
	if string(origin) == f.origin {
		return
	}
	collection := strings.TrimSuffix(name, markerSuffix)
	logger.Get().Named("signal").Debug(ctx, "remote signal",
		logger.String("collection", collection), logger.String("origin", string(origin)))
	f.bus.Publish(Event{Collection: collection, Value: value})
}
