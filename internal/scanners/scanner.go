// Package scanners implements the pluggable sources recoverd can look for
// deleted files in: the Trash, APFS local snapshots, Time Machine backups,
// the Spotlight index, and raw-disk carving. Each source implements the
// Scanner contract and is registered once at startup.
package scanners

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"

	"recoverd/internal/core"
)

// ProgressFunc receives human-readable progress messages during a scan.
type ProgressFunc func(msg string)

// ErrUnreadable is returned by ReadFileBytes when a file's content cannot be
// read: no access path, vanished, or permission denied. Callers treat it as
// "unavailable", never as fatal.
var ErrUnreadable = errors.New("file content is not readable")

// Scanner is the capability contract every source implements.
//
// Scan returns a channel of recovered files that is closed when the source is
// exhausted or ctx is cancelled. Each Scan call is independent; a single call
// may hold transient resources (mount points, subprocesses) which the
// producing goroutine releases on every exit path. CheckAvailability never
// fails hard: internal errors degrade to available=false with a detail.
type Scanner interface {
	ID() string
	Name() string
	Description() string
	RequiresAdmin() bool
	CheckAvailability(ctx context.Context) core.SourceAvailability
	Scan(ctx context.Context, cfg core.ScanConfig, progress ProgressFunc) <-chan core.RecoveredFile
	ReadFileBytes(ctx context.Context, f core.RecoveredFile) ([]byte, error)
}

// Cleaner is implemented by scanners that can hold external resources past a
// cancelled Scan call. Cleanup is idempotent and best-effort: it must release
// everything still tracked (unmount, kill subprocess) and never panic.
type Cleaner interface {
	Cleanup(ctx context.Context)
}

// Registry maps source identifiers to scanner instances. It is populated once
// at startup and read-only afterwards.
type Registry struct {
	mu       sync.RWMutex
	scanners map[string]Scanner
	order    []string
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{scanners: make(map[string]Scanner)}
}

// Register adds a scanner, replacing any previous one with the same id.
func (r *Registry) Register(s Scanner) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.scanners[s.ID()]; !exists {
		r.order = append(r.order, s.ID())
	}
	r.scanners[s.ID()] = s
}

// Get looks up a scanner by source id.
func (r *Registry) Get(sourceID string) (Scanner, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.scanners[sourceID]
	return s, ok
}

// All returns every registered scanner in registration order.
func (r *Registry) All() []Scanner {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Scanner, 0, len(r.scanners))
	for _, id := range r.order {
		out = append(out, r.scanners[id])
	}
	return out
}

// IDs returns the registered source ids, sorted.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.scanners))
	for id := range r.scanners {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// readLocalFile is the shared ReadFileBytes implementation for sources whose
// access path is an ordinary local file.
func readLocalFile(f core.RecoveredFile) ([]byte, error) {
	if f.AccessPath == "" {
		return nil, ErrUnreadable
	}
	info, err := os.Stat(f.AccessPath)
	if err != nil || !info.Mode().IsRegular() {
		return nil, ErrUnreadable
	}
	data, err := os.ReadFile(f.AccessPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadable, err)
	}
	return data, nil
}

// emit delivers a file to the scan channel unless ctx is cancelled first.
// Returns false when the scan should stop.
func emit(ctx context.Context, out chan<- core.RecoveredFile, f core.RecoveredFile) bool {
	select {
	case out <- f:
		return true
	case <-ctx.Done():
		return false
	}
}
