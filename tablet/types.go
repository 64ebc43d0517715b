package tablet

import "fmt"

// PeerState is the lifecycle state of a single Tablet Peer (spec.md §3).
type PeerState int32

const (
	PeerInitializing PeerState = iota
	PeerRunning
	PeerQuiescing
	PeerShutdown
	PeerFailed
)

func (s PeerState) String() string {
	switch s {
	case PeerInitializing:
		return "initializing"
	case PeerRunning:
		return "running"
	case PeerQuiescing:
		return "quiescing"
	case PeerShutdown:
		return "shutdown"
	case PeerFailed:
		return "failed"
	default:
		return fmt.Sprintf("peer-state(%d)", int32(s))
	}
}

// ManagerState is the lifecycle state of the Tablet Manager itself.
type ManagerState int32

const (
	ManagerInitializing ManagerState = iota
	ManagerRunning
	ManagerQuiescing
	ManagerShutdown
)

func (s ManagerState) String() string {
	switch s {
	case ManagerInitializing:
		return "initializing"
	case ManagerRunning:
		return "running"
	case ManagerQuiescing:
		return "quiescing"
	case ManagerShutdown:
		return "shutdown"
	default:
		return fmt.Sprintf("manager-state(%d)", int32(s))
	}
}

// Role is a peer's position within its tablet's replication quorum.
type Role int32

const (
	RoleUnknown Role = iota
	RoleLeader
	RoleFollower
	RoleLearner
)

func (r Role) String() string {
	switch r {
	case RoleLeader:
		return "leader"
	case RoleFollower:
		return "follower"
	case RoleLearner:
		return "learner"
	default:
		return "unknown"
	}
}

// QuorumPeer names one member of a tablet's replication quorum.
type QuorumPeer struct {
	ID   string
	Role Role
}

// Quorum is the replication configuration passed to CreateNewTablet. SeqNo
// is always reset to -1 by the manager (spec.md §4.1): callers cannot
// dictate the quorum's version.
type Quorum struct {
	Peers []QuorumPeer
	Local bool
	SeqNo int64
}

// localSeqNo is the sentinel Quorum.SeqNo value CreateNewTablet installs,
// ignoring whatever the caller supplied.
const localSeqNo = -1

// isValidLocal reports whether q is a well-formed single-peer local quorum
// naming selfID as its sole leader (spec.md §4.1).
func (q Quorum) isValidLocal(selfID string) bool {
	if !q.Local {
		return true
	}
	return len(q.Peers) == 1 && q.Peers[0].ID == selfID && q.Peers[0].Role == RoleLeader
}
