package intent

import (
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
)

// Loader holds the process-wide catalog and supports atomic reloads.
//
// Operations that need the catalog call Snapshot once at their start and use
// that snapshot for their whole duration; a concurrent Reload is only visible
// to operations that start afterwards.
type Loader struct {
	current atomic.Pointer[Catalog]

	mu    sync.Mutex
	path  string
	usage map[string]*Usage
}

// Usage counts how often an intent was matched and executed since the loader
// was created. Counters survive reloads but are not persisted.
type Usage struct {
	Matched  int64
	Executed int64
}

// NewLoader wraps an already-parsed catalog.
func NewLoader(c *Catalog) *Loader {
	l := &Loader{usage: make(map[string]*Usage)}
	l.current.Store(c)
	return l
}

// LoadFile parses the catalog file at path and returns a Loader that can
// Reload from the same path.
func LoadFile(path string) (*Loader, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog load: %w", err)
	}
	c, err := Parse(data)
	if err != nil {
		return nil, err
	}
	l := NewLoader(c)
	l.path = path
	return l, nil
}

// Snapshot returns the current catalog. The returned catalog never changes;
// callers keep using it even if a reload happens mid-operation.
func (l *Loader) Snapshot() *Catalog {
	return l.current.Load()
}

// Reload re-reads the catalog file and swaps the snapshot atomically. On any
// error the previous snapshot stays in place.
func (l *Loader) Reload() error {
	l.mu.Lock()
	path := l.path
	l.mu.Unlock()
	if path == "" {
		return fmt.Errorf("catalog reload: loader was not created from a file")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("catalog reload: %w", err)
	}
	c, err := Parse(data)
	if err != nil {
		return fmt.Errorf("catalog reload: %w", err)
	}

	l.current.Store(c)
	slog.Info("intent catalog reloaded", "path", path, "intents", c.Len())
	return nil
}

// Swap replaces the snapshot with an in-memory catalog (used by hosts that
// assemble catalogs programmatically).
func (l *Loader) Swap(c *Catalog) {
	l.current.Store(c)
}

// RecordMatch increments the matched counter for key.
func (l *Loader) RecordMatch(key string) {
	l.bump(key, func(u *Usage) { u.Matched++ })
}

// RecordExecution increments the executed counter for key.
func (l *Loader) RecordExecution(key string) {
	l.bump(key, func(u *Usage) { u.Executed++ })
}

// UsageFor returns a copy of the usage counters for key.
func (l *Loader) UsageFor(key string) Usage {
	l.mu.Lock()
	defer l.mu.Unlock()
	if u, ok := l.usage[key]; ok {
		return *u
	}
	return Usage{}
}

func (l *Loader) bump(key string, f func(*Usage)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	u, ok := l.usage[key]
	if !ok {
		u = &Usage{}
		l.usage[key] = u
	}
	f(u)
}
