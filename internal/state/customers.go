// Package state holds the mutable per-customer, per-SKU, and per-session
// state the detection rules read and write. All stores auto-vivify: any
// operation on a never-seen key succeeds and absent keys yield empty results.
package state

import (
	"sort"
	"sync"
)

// customerState tracks one customer across streams. RFID and scan sets
// deliberately outlive session expiry; only a consumed correlation match or
// the scanner-avoidance sweep clears them.
type customerState struct {
	rfidSeen   map[string]struct{}
	posScanned map[string]struct{}
	scanOrder  []string // append-log of scans; tail is the last-scanned SKU
	weightG    float64  // accumulated scanned weight
}

// Customers is the per-customer entity state store.
type Customers struct {
	mu   sync.RWMutex
	byID map[string]*customerState
}

// NewCustomers creates an empty store.
func NewCustomers() *Customers {
	return &Customers{byID: make(map[string]*customerState)}
}

func (c *Customers) state(id string) *customerState {
	s, ok := c.byID[id]
	if !ok {
		s = &customerState{
			rfidSeen:   make(map[string]struct{}),
			posScanned: make(map[string]struct{}),
		}
		c.byID[id] = s
	}
	return s
}

// RecordRFID marks sku as seen on the customer's RFID stream.
func (c *Customers) RecordRFID(customer, sku string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state(customer).rfidSeen[sku] = struct{}{}
}

// RecordScan marks sku as scanned at POS and accumulates its weight.
// The scan order log keeps every scan, including repeats, so the last-scanned
// SKU is always well defined.
func (c *Customers) RecordScan(customer, sku string, weightG float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.state(customer)
	s.posScanned[sku] = struct{}{}
	s.scanOrder = append(s.scanOrder, sku)
	s.weightG += weightG
}

// SeenRFID reports whether sku is currently in the customer's RFID-seen set.
func (c *Customers) SeenRFID(customer, sku string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.byID[customer]
	if !ok {
		return false
	}
	_, seen := s.rfidSeen[sku]
	return seen
}

// ConsumeMatch removes sku from the customer's RFID-seen set after a
// matching POS scan was observed.
func (c *Customers) ConsumeMatch(customer, sku string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok := c.byID[customer]; ok {
		delete(s.rfidSeen, sku)
	}
}

// LastScanned returns the customer's most recently scanned SKU.
func (c *Customers) LastScanned(customer string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.byID[customer]
	if !ok || len(s.scanOrder) == 0 {
		return "", false
	}
	return s.scanOrder[len(s.scanOrder)-1], true
}

// Unscanned returns the set difference rfidSeen − posScanned for the
// customer, sorted for deterministic emission order.
func (c *Customers) Unscanned(customer string) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.byID[customer]
	if !ok {
		return nil
	}
	var out []string
	for sku := range s.rfidSeen {
		if _, scanned := s.posScanned[sku]; !scanned {
			out = append(out, sku)
		}
	}
	sort.Strings(out)
	return out
}

// ClearRFID empties the customer's whole RFID-seen set. The sweep calls this
// after reporting a customer's unscanned SKUs: a partial match clears state
// for all of them, not just the reported ones.
func (c *Customers) ClearRFID(customer string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok := c.byID[customer]; ok {
		s.rfidSeen = make(map[string]struct{})
	}
}

// ExpectedWeight returns the customer's accumulated scanned weight in grams.
func (c *Customers) ExpectedWeight(customer string) float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if s, ok := c.byID[customer]; ok {
		return s.weightG
	}
	return 0
}

// WithRFID returns the ids of all customers whose RFID-seen set is
// non-empty, sorted. The scanner-avoidance sweep iterates this.
func (c *Customers) WithRFID() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []string
	for id, s := range c.byID {
		if len(s.rfidSeen) > 0 {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

// Tracked returns the number of customers with any recorded state.
func (c *Customers) Tracked() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.byID)
}
