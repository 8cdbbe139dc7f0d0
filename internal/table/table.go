// Package table implements the routing table: a keyed container mapping
// destination router identifiers to route records, per spec §4.4.
package table

import (
	"fmt"
	"sort"
	"strings"
)

// RouterID identifies a router globally within the topology. Valid range
// is [1, 64000].
type RouterID uint16

// Port is a UDP port on the loopback host. Valid range is [1024, 64000].
type Port uint16

// Metric is a route cost in [1, 16]; 16 denotes infinity (unreachable).
type Metric uint8

// Infinity is the metric value that denotes an unreachable destination.
const Infinity Metric = 16

// Route is a single entry in the routing table (spec §3, "Route record").
type Route struct {
	Port          Port
	Weight        Metric
	NextHop       Port
	UpdateFlag    uint8 // 0 = active, 1 = poisoned
	LastRefreshed float64
}

// Poisoned reports whether r is in its garbage-collection window.
func (r Route) Poisoned() bool {
	return r.UpdateFlag == 1
}

func (r Route) String() string {
	return fmt.Sprintf("[%d, %d, %d, %d, %.2f]", r.Port, r.Weight, r.NextHop, r.UpdateFlag, r.LastRefreshed)
}

// Table is the mapping from RouterID to Route. The zero value is not
// usable; construct with New. Table is owned exclusively by one daemon
// instance and must only be mutated by the update processor and timer
// engine (spec §3 invariant 3: it never contains the owning router's own id).
type Table struct {
	routes map[RouterID]Route
}

// New returns an empty Table.
func New() *Table {
	return &Table{routes: make(map[RouterID]Route)}
}

// Get returns the route for id and whether it is present.
func (t *Table) Get(id RouterID) (Route, bool) {
	r, ok := t.routes[id]
	return r, ok
}

// Set inserts or replaces the route for id.
func (t *Table) Set(id RouterID, r Route) {
	t.routes[id] = r
}

// Delete removes id from the table, a no-op if absent.
func (t *Table) Delete(id RouterID) {
	delete(t.routes, id)
}

// Len returns the number of entries.
func (t *Table) Len() int {
	return len(t.routes)
}

// Ids returns the table's keys in ascending order, giving deterministic
// iteration for testability (spec §4.4).
func (t *Table) Ids() []RouterID {
	ids := make([]RouterID, 0, len(t.routes))
	for id := range t.routes {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Each calls f for every entry in ascending RouterID order.
func (t *Table) Each(f func(id RouterID, r Route)) {
	for _, id := range t.Ids() {
		f(id, t.routes[id])
	}
}

// Clone returns a deep copy, used by the advertiser to build a per-neighbor
// view without mutating the live table (spec §4.7 step 1).
func (t *Table) Clone() *Table {
	c := New()
	for id, r := range t.routes {
		c.routes[id] = r
	}
	return c
}

// Render produces a stable, human-readable dump of the table, sorted by
// destination id. This is the external "human-readable table printer"
// collaborator spec.md places out of the core engine's scope; the engine
// only calls it to build the operator log line.
func (t *Table) Render() string {
	var b strings.Builder
	ids := t.Ids()
	for i, id := range ids {
		r := t.routes[id]
		fmt.Fprintf(&b, "%d: %s", id, r)
		if i < len(ids)-1 {
			b.WriteString(", ")
		}
	}
	return b.String()
}
