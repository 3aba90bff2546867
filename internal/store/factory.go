package store

import (
	"sync"
)

// Factory hands out one shared Store per project base dir. It is the
// explicit replacement for a lazily-cached module-level store: callers
// construct a Factory once and pass it down the call chain.
type Factory struct {
	mu     sync.Mutex
	stores map[string]*Store
}

// NewFactory creates an empty factory.
func NewFactory() *Factory {
	return &Factory{stores: make(map[string]*Store)}
}

// ForProject returns the store for a base dir, opening it on first use.
// The returned handle is shared; callers must not close it directly.
func (f *Factory) ForProject(baseDir string) (*Store, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.stores[baseDir]; ok {
		return s, nil
	}
	s, err := Open(baseDir)
	if err != nil {
		return nil, err
	}
	f.stores[baseDir] = s
	return s, nil
}

// Close closes every store the factory opened. The first error is
// returned; all stores are closed regardless.
func (f *Factory) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	var first error
	for dir, s := range f.stores {
		if err := s.Close(); err != nil && first == nil {
			first = err
		}
		delete(f.stores, dir)
	}
	return first
}
