package tablet

import (
	"context"
	"sync"

	"github.com/cubefs/tabletserver/txn"
)

// Tablet is the opaque in-memory tablet object a Bootstrapper produces. The
// core never looks inside it; the real replica implementation lives outside
// this package (spec.md §1 Non-goals: "row-level mutation execution").
type Tablet interface {
	ID() string
}

// ConsensusLog is the per-tablet replicated log a Bootstrapper opens and
// this package hands to PeerHost.InitPeer and keeps on the Peer once it is
// running. Its wire format and replay
// algorithm are out of scope (spec.md §1 Non-goals); only the narrow
// contract needed to start and shut down a peer is exposed here.
type ConsensusLog interface {
	Close(ctx context.Context) error
}

// BootstrapInfo carries the highest replayed operation identifiers a
// Bootstrapper observed, handed to PeerHost.StartPeer (spec.md §6, "Tablet
// bootstrap").
type BootstrapInfo struct {
	HighestReplayedOpIndex uint64
	HighestReplayedTerm    uint64
}

// ApplyExecutor is one of the two process-wide worker pools spec.md §5
// "Scheduling model" names (leader-apply, replica-apply). A peer's real
// consensus implementation submits committed-operation apply work to
// whichever of the two matches its current role; the core itself never
// looks inside the submitted work (spec.md §1 Non-goals: "row-level
// mutation execution").
type ApplyExecutor interface {
	// Submit arranges for fn to run on a worker goroutine. It returns
	// false if fn was not accepted, in which case the caller is responsible
	// for running fn some other way. The executors Manager hands out run fn
	// on a dedicated goroutine when their pool is saturated and always
	// return true.
	Submit(fn func()) bool
}

// PeerHost is the collaborator that knows how to initialize and run a
// bootstrapped tablet as a live peer (spec.md §6, "Peer"). It is supplied
// once at Manager construction and shared by every Peer the manager owns.
type PeerHost interface {
	// InitPeer wires clock, messenger, log, metric-context and the two
	// apply executors into a freshly bootstrapped tablet. It must not
	// block on I/O.
	InitPeer(ctx context.Context, t Tablet, log ConsensusLog, leaderApply, replicaApply ApplyExecutor) error
	// StartPeer brings the initialized peer up to date and running, using
	// info to resume consensus from the point bootstrap replayed to.
	StartPeer(ctx context.Context, t Tablet, info BootstrapInfo) error
	// RegisterMaintenanceOps registers the tablet's background maintenance
	// operations once it is running.
	RegisterMaintenanceOps(t Tablet)
}

// Peer is the Tablet Record of spec.md §3: the manager's authoritative,
// reference-counted handle on one tablet's runtime state. Peer carries a
// non-owning back-reference (markDirty) to the manager rather than a
// pointer to the Manager itself, per spec.md §9 "Cyclic ownership".
type Peer struct {
	id string

	mu            sync.RWMutex
	state         PeerState
	err           error
	role          Role
	schemaVersion uint32
	hasSchema     bool
	tablet        Tablet
	consensusLog  ConsensusLog

	txnTracker *txn.Tracker
	markDirty  func(id string)
}

// newPeer constructs a Peer in state initializing. markDirty is called
// (without any lock of this Peer or the owning manager held) on every
// lifecycle transition an external observer should learn about.
func newPeer(id string, markDirty func(id string)) *Peer {
	return &Peer{
		id:         id,
		state:      PeerInitializing,
		txnTracker: txn.NewTracker(),
		markDirty:  markDirty,
	}
}

// ID returns the tablet identifier this peer represents.
func (p *Peer) ID() string { return p.id }

// State returns the peer's current lifecycle state.
func (p *Peer) State() PeerState {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

// Error returns the last error recorded, non-nil only in state failed.
func (p *Peer) Error() error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.err
}

// Role returns the peer's current position in the tablet's quorum.
func (p *Peer) Role() Role {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.role
}

// SchemaVersion returns the tablet's schema version and whether the tablet
// object has been materialized (spec.md §4.1: "schema version (only if the
// tablet object is materialized)").
func (p *Peer) SchemaVersion() (uint32, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.schemaVersion, p.hasSchema
}

// TransactionTracker returns this tablet's admission controller.
func (p *Peer) TransactionTracker() *txn.Tracker {
	return p.txnTracker
}

// setRunning transitions initializing -> running, records schemaVersion now
// that the tablet object is materialized (spec.md §4.1: "schema version
// (only if the tablet object is materialized)"), and marks the tablet
// dirty. Called by the bootstrap job on success.
func (p *Peer) setRunning(t Tablet, consensusLog ConsensusLog, schemaVersion uint32) {
	p.mu.Lock()
	p.state = PeerRunning
	p.tablet = t
	p.consensusLog = consensusLog
	p.schemaVersion = schemaVersion
	p.hasSchema = true
	p.mu.Unlock()
	p.notifyDirty()
}

// SetFailed records err and transitions the peer to failed from any state,
// then marks it dirty (spec.md §3: "* -> failed").
func (p *Peer) SetFailed(err error) {
	p.mu.Lock()
	p.state = PeerFailed
	p.err = err
	p.mu.Unlock()
	p.notifyDirty()
}

// Shutdown transitions the peer towards shutdown and returns the state it
// held immediately beforehand. It is idempotent: calling it again once the
// peer is quiescing or shutdown is a no-op that returns the current state
// without shutting down twice (spec.md §4.1, P6).
//
// Shutdown must be called with no manager lock held (spec.md §9 "Lock
// inversion"): it may block on the consensus log closing.
func (p *Peer) Shutdown(ctx context.Context) PeerState {
	p.mu.Lock()
	prior := p.state
	if prior == PeerQuiescing || prior == PeerShutdown {
		p.mu.Unlock()
		return prior
	}
	p.state = PeerQuiescing
	consensusLog := p.consensusLog
	p.mu.Unlock()

	if consensusLog != nil {
		_ = consensusLog.Close(ctx)
	}

	p.mu.Lock()
	p.state = PeerShutdown
	p.mu.Unlock()
	p.notifyDirty()

	return prior
}

func (p *Peer) notifyDirty() {
	if p.markDirty != nil {
		p.markDirty(p.id)
	}
}
