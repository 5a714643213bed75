package tsid

import (
	"sort"
	"sync"
)

// Catalog indexes every known identifier by unique string and store key.
// It is loaded once per run and only grows when outputs are created.
type Catalog struct {
	mu     sync.RWMutex
	layout *Layout
	byName map[string]Identifier
	byKey  map[int64]Identifier
}

// NewCatalog creates an empty catalog for the layout.
func NewCatalog(layout *Layout) *Catalog {
	return &Catalog{
		layout: layout,
		byName: make(map[string]Identifier),
		byKey:  make(map[int64]Identifier),
	}
}

// Layout returns the catalog layout.
func (c *Catalog) Layout() *Layout { return c.layout }

// Add indexes id, replacing any entry with the same unique string.
func (c *Catalog) Add(id Identifier) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.byName[id.LookupKey()] = id
	if id.Key != 0 {
		c.byKey[id.Key] = id
	}
}

// Lookup finds an identifier by unique string (case-insensitive).
func (c *Catalog) Lookup(id Identifier) (Identifier, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	found, ok := c.byName[id.LookupKey()]
	return found, ok
}

// ByKey finds an identifier by store key.
func (c *Catalog) ByKey(key int64) (Identifier, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	found, ok := c.byKey[key]
	return found, ok
}

// Len returns the number of indexed identifiers.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.byName)
}

// All returns every identifier ordered by Compare.
func (c *Catalog) All() []Identifier {
	c.mu.RLock()
	out := make([]Identifier, 0, len(c.byName))
	for _, id := range c.byName {
		out = append(out, id)
	}
	c.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return Compare(out[i], out[j]) < 0 })
	return out
}
