package consensus

import (
	"context"
	"sync"

	"github.com/cubefs/tabletserver/tablet"
)

// handle is the minimal in-memory tablet object a Bootstrap call produces.
// The core never inspects it beyond ID() (spec.md §1 Non-goals: row-level
// mutation execution belongs to the real replica implementation).
type handle struct{ id string }

func (h *handle) ID() string { return h.id }

// Bootstrapper implements tablet.Bootstrapper: given metadata it opens (or
// creates) the tablet's consensus log and replays it, reporting the
// highest replayed operation identifiers.
type Bootstrapper struct {
	mu   sync.Mutex
	logs map[string]*Log
}

// NewBootstrapper constructs an empty Bootstrapper. Every tablet's log is
// created lazily on first Bootstrap call and kept for the lifetime of the
// process, mirroring one log-per-tablet ownership.
func NewBootstrapper() *Bootstrapper {
	return &Bootstrapper{logs: make(map[string]*Log)}
}

func (b *Bootstrapper) logFor(tabletID string) *Log {
	b.mu.Lock()
	defer b.mu.Unlock()
	l, ok := b.logs[tabletID]
	if !ok {
		l = NewLog(tabletID)
		b.logs[tabletID] = l
	}
	return l
}

// Bootstrap satisfies tablet.Bootstrapper.
func (b *Bootstrapper) Bootstrap(ctx context.Context, meta tablet.Metadata) (tablet.Tablet, tablet.ConsensusLog, tablet.BootstrapInfo, error) {
	l := b.logFor(meta.TabletID)

	if _, err := l.ReplayAll(); err != nil {
		return nil, nil, tablet.BootstrapInfo{}, err
	}

	index, term, err := l.highestReplayed()
	if err != nil {
		return nil, nil, tablet.BootstrapInfo{}, err
	}

	info := tablet.BootstrapInfo{HighestReplayedOpIndex: index, HighestReplayedTerm: term}
	return &handle{id: meta.TabletID}, l, info, nil
}
