// Package watch owns the lifecycle table of running stream watchers.
package watch

import (
	"context"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/sourcegraph/conc"

	"github.com/execwatch/execwatch/errs"
	"github.com/execwatch/execwatch/internal/notify"
	"github.com/execwatch/execwatch/internal/talos"
)

type entry struct {
	watcher *talos.StreamWatcher
	cancel  context.CancelFunc
	done    chan struct{}
}

func (e *entry) alive() bool {
	select {
	case <-e.done:
		return false
	default:
		return true
	}
}

// Registry is a named table of independently running watchers. It holds no
// business logic; it pairs each name with a stop signal and a run handle.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*entry
	logger  *log.Logger
}

// NewRegistry builds an empty registry.
func NewRegistry(logger *log.Logger) *Registry {
	if logger == nil {
		logger = log.Default()
	}
	return &Registry{
		entries: make(map[string]*entry),
		logger:  logger,
	}
}

// Start launches a watcher under the given name. Starting a name that is
// already running is a no-op.
func (r *Registry) Start(ctx context.Context, cfg talos.WatcherConfig, sink notify.Sink) error {
	name := cfg.Name
	if name == "" {
		return errs.New("talos", errs.CodeInvalid, errs.WithMessage("watcher name required"))
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.entries[name]; ok && existing.alive() {
		return nil
	}

	watcher, err := talos.NewStreamWatcher(cfg, sink)
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	e := &entry{watcher: watcher, cancel: cancel, done: make(chan struct{})}
	r.entries[name] = e

	go func() {
		defer close(e.done)
		if err := watcher.Run(runCtx); err != nil && runCtx.Err() == nil {
			r.logger.Printf("registry: watcher %q exited: %v", name, err)
		}
	}()
	r.logger.Printf("registry: started watcher %q", name)
	return nil
}

// Stop signals one watcher and waits up to timeout for it to exit. The entry
// is removed either way.
func (r *Registry) Stop(name string, timeout time.Duration) {
	r.mu.Lock()
	e, ok := r.entries[name]
	if ok {
		delete(r.entries, name)
	}
	r.mu.Unlock()
	if !ok {
		return
	}

	e.cancel()
	select {
	case <-e.done:
	case <-time.After(timeout):
		r.logger.Printf("registry: watcher %q did not stop within %s", name, timeout)
	}
}

// StopAll stops every registered watcher concurrently.
func (r *Registry) StopAll(timeout time.Duration) {
	r.mu.Lock()
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	r.mu.Unlock()

	var wg conc.WaitGroup
	for _, name := range names {
		wg.Go(func() { r.Stop(name, timeout) })
	}
	wg.Wait()
}

// Status reports, per registered watcher, whether its run goroutine is
// still alive.
func (r *Registry) Status() map[string]bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	status := make(map[string]bool, len(r.entries))
	for name, e := range r.entries {
		status[name] = e.alive()
	}
	return status
}

// Names returns the registered watcher names, sorted.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
