package ontology

import (
	"path/filepath"
	"sync"
)

// Cache memoizes loaded ontologies by source path. The empty path and
// DefaultPath share one slot; any other path gets its own independent
// instance. Failed loads are not cached.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*Ontology
	load    func(string) (*Ontology, error)
}

// NewCache returns an empty Cache that loads with Load.
func NewCache() *Cache {
	return &Cache{entries: make(map[string]*Ontology), load: Load}
}

// Get returns the ontology for path, loading it on first use.
func (c *Cache) Get(path string) (*Ontology, error) {
	if path == "" {
		path = DefaultPath
	}
	key := cacheKey(path)

	c.mu.Lock()
	defer c.mu.Unlock()

	if o, ok := c.entries[key]; ok {
		return o, nil
	}
	o, err := c.load(path)
	if err != nil {
		return nil, err
	}
	c.entries[key] = o
	return o, nil
}

func cacheKey(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return filepath.Clean(path)
}
