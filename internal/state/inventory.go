package state

import "sync"

// Inventory tracks the last known quantity per SKU from inventory snapshots.
type Inventory struct {
	mu   sync.Mutex
	last map[string]int
}

// NewInventory creates an empty inventory store.
func NewInventory() *Inventory {
	return &Inventory{last: make(map[string]int)}
}

// Observe records qty for sku and reports whether a prior, different value
// was stored. The new value always overwrites the old one, mismatch or not.
func (i *Inventory) Observe(sku string, qty int) (prior int, mismatch bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	prior, seen := i.last[sku]
	i.last[sku] = qty
	return prior, seen && prior != qty
}

// Tracked returns the number of SKUs with a stored quantity.
func (i *Inventory) Tracked() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return len(i.last)
}
