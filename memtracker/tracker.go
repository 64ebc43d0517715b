// Package memtracker implements a hierarchical byte-accounting tree.
//
// Each Tracker owns an optional byte limit and an optional parent. Consuming
// bytes against a node walks up through every ancestor, reserving against
// each one's limit; if any node in the chain (including the node itself)
// would exceed its limit, the whole reservation rolls back atomically. This
// lets a per-tablet budget (the transaction tracker's memory limit) compose
// with a process-wide budget without either side needing to know about the
// other's bookkeeping.
package memtracker

import "sync"

// NoLimit disables enforcement on a Tracker: TryConsume always succeeds for
// that node, though ancestor limits are still honored.
const NoLimit = int64(-1)

// Tracker is one node of the accounting tree. The zero value is not usable;
// construct with NewRootTracker or NewChild.
type Tracker struct {
	name   string
	limit  int64
	parent *Tracker

	mu          sync.Mutex
	consumption int64
}

// NewRootTracker creates a tracker with no parent.
func NewRootTracker(name string, limit int64) *Tracker {
	return &Tracker{name: name, limit: limit}
}

// NewChild creates a tracker whose consumption also counts against t.
func (t *Tracker) NewChild(name string, limit int64) *Tracker {
	return &Tracker{name: name, limit: limit, parent: t}
}

// Name returns the tracker's label, used only for diagnostics.
func (t *Tracker) Name() string {
	return t.name
}

// Limit returns the node's own limit, or NoLimit if unset.
func (t *Tracker) Limit() int64 {
	return t.limit
}

// Consumption returns the node's current accounted consumption.
func (t *Tracker) Consumption() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.consumption
}

func (t *Tracker) chain() []*Tracker {
	var chain []*Tracker
	for n := t; n != nil; n = n.parent {
		chain = append(chain, n)
	}
	return chain
}

// TryConsume attempts to reserve bytes against this node and every ancestor.
// It succeeds only if every node in the chain has room; otherwise nothing is
// reserved anywhere, including nodes that individually had room.
func (t *Tracker) TryConsume(bytes int64) bool {
	chain := t.chain()
	reserved := make([]*Tracker, 0, len(chain))
	for _, n := range chain {
		n.mu.Lock()
		if n.limit != NoLimit && n.consumption+bytes > n.limit {
			n.mu.Unlock()
			for _, r := range reserved {
				r.mu.Lock()
				r.consumption -= bytes
				r.mu.Unlock()
			}
			return false
		}
		n.consumption += bytes
		n.mu.Unlock()
		reserved = append(reserved, n)
	}
	return true
}

// CanConsumeNoAncestors reports whether this node alone (ignoring every
// ancestor's limit) has room for bytes. Used to distinguish an admission
// rejection caused by this tracker's own limit from one caused purely by an
// ancestor.
func (t *Tracker) CanConsumeNoAncestors(bytes int64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.limit == NoLimit || t.consumption+bytes <= t.limit
}

// Release gives bytes back to this node and every ancestor.
func (t *Tracker) Release(bytes int64) {
	for _, n := range t.chain() {
		n.mu.Lock()
		n.consumption -= bytes
		n.mu.Unlock()
	}
}
