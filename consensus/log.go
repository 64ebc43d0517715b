// Package consensus provides the ConsensusLog and Bootstrapper
// implementations tablet.Manager consumes as external collaborators
// (spec.md §6, "Tablet bootstrap"). It is a thin, real wiring of
// go.etcd.io/etcd/raft/v3's log storage — not a replica of Kudu's on-disk
// WAL format or its replay algorithm, which spec.md §1 places out of
// scope.
//
// Grounded on common/raft/raft.go's own wrapping of etcd raft (a
// raft.Storage implementation backing a raft.Config), simplified here to
// the single collaborator surface the tablet package needs: append,
// replay range, and a graceful close.
package consensus

import (
	"context"
	"sync"

	gogoproto "github.com/gogo/protobuf/proto"
	"go.etcd.io/etcd/raft/v3"
	"go.etcd.io/etcd/raft/v3/raftpb"
)

// Log is one tablet's consensus log, backed by an in-memory raft storage.
// It satisfies tablet.ConsensusLog.
type Log struct {
	tabletID string

	mu       sync.Mutex
	storage  *raft.MemoryStorage
	closed   bool
	lastTail []byte
}

// NewLog constructs an empty log for tabletID.
func NewLog(tabletID string) *Log {
	return &Log{
		tabletID: tabletID,
		storage:  raft.NewMemoryStorage(),
	}
}

// Append records entries in the in-memory storage, in the order raft.MemoryStorage expects
// (monotonically increasing index, no gaps against what is already stored).
// On success it refreshes the checkpoint LastCheckpoint returns, so a
// caller never observes a stale tail after a successful Append.
func (l *Log) Append(entries []raftpb.Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.storage.Append(entries); err != nil {
		return err
	}
	tail, err := l.encodeTailLocked()
	if err != nil {
		return err
	}
	l.lastTail = tail
	return nil
}

// LastCheckpoint returns the encoded tail Append most recently produced, or
// nil for a log with nothing appended yet.
func (l *Log) LastCheckpoint() []byte {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastTail
}

// ReplayAll returns every entry currently stored, from the first available
// index through the last.
func (l *Log) ReplayAll() ([]raftpb.Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	first, err := l.storage.FirstIndex()
	if err != nil {
		return nil, err
	}
	last, err := l.storage.LastIndex()
	if err != nil {
		return nil, err
	}
	if last < first {
		return nil, nil
	}
	return l.storage.Entries(first, last+1, 0)
}

// highestReplayed returns the index and term of the last entry in the log,
// or (0, 0, nil) for an empty log.
func (l *Log) highestReplayed() (index, term uint64, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	last, err := l.storage.LastIndex()
	if err != nil {
		return 0, 0, err
	}
	if last == 0 {
		return 0, 0, nil
	}
	t, err := l.storage.Term(last)
	if err != nil {
		return 0, 0, err
	}
	return last, t, nil
}

// EncodeTail marshals the most recently appended entry using its generated
// gogo/protobuf codec, the same `.Marshal()` convention
// shard/catalog/raft.go uses for RaftProposeRequest. Append calls this on
// every successful append to keep LastCheckpoint's cache current; it is
// exported so a caller can also recompute it on demand.
func (l *Log) EncodeTail() ([]byte, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.encodeTailLocked()
}

func (l *Log) encodeTailLocked() ([]byte, error) {
	last, err := l.storage.LastIndex()
	if err != nil {
		return nil, err
	}
	if last == 0 {
		return nil, nil
	}
	entries, err := l.storage.Entries(last, last+1, 0)
	if err != nil {
		return nil, err
	}
	return gogoproto.Marshal(&entries[0])
}

// Close satisfies tablet.ConsensusLog. The in-memory storage needs no
// explicit teardown; a durable implementation would flush and close its
// underlying file or column family here.
func (l *Log) Close(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	return nil
}
