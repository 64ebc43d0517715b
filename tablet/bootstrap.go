package tablet

import (
	"context"
	"time"

	"github.com/cubefs/cubefs/blobstore/common/trace"
	"github.com/cubefs/cubefs/blobstore/util/log"
)

// openTablet is the asynchronous bootstrap job of spec.md §4.1
// "OpenTablet": bootstrap the tablet from durable state, initialize and
// start the peer, then register maintenance ops and mark the tablet dirty.
// Any failing step sets the peer to failed and returns; it never panics the
// bootstrap pool worker.
func (m *Manager) openTablet(ctx context.Context, peer *Peer, meta Metadata) {
	span := trace.SpanFromContext(ctx)
	start := time.Now()

	t, consensusLog, info, err := m.bootstrapper.Bootstrap(ctx, meta)
	if err != nil {
		peer.SetFailed(err)
		span.Errorf("tablet %s bootstrap failed: %s", meta.TabletID, err)
		return
	}

	if err := m.peerHost.InitPeer(ctx, t, consensusLog, m.leaderApplyExecutor(), m.replicaApplyExecutor()); err != nil {
		peer.SetFailed(err)
		span.Errorf("tablet %s init failed: %s", meta.TabletID, err)
		return
	}

	if err := m.peerHost.StartPeer(ctx, t, info); err != nil {
		peer.SetFailed(err)
		span.Errorf("tablet %s start failed: %s", meta.TabletID, err)
		return
	}

	peer.setRunning(t, consensusLog, meta.SchemaVersion)
	m.peerHost.RegisterMaintenanceOps(t)

	if elapsed := time.Since(start); elapsed > time.Duration(m.cfg.TabletStartWarnThresholdMs)*time.Millisecond {
		log.Warnf("tablet %s took %s to start, exceeding the %dms warn threshold; trace: %s",
			meta.TabletID, elapsed, m.cfg.TabletStartWarnThresholdMs, span.TraceID())
	}
}

// submitOpenTablet enqueues peer's bootstrap job on the bootstrap pool. It
// tracks the job with bootstrapWG so WaitForAllBootstrapsToFinish and
// Shutdown can drain outstanding jobs without the pool exposing a wait
// primitive of its own. TryRun's contract (master/catalog/task.go) is
// non-blocking: if the pool's workers and queue are both saturated it
// reports failure rather than blocking the caller, which here holds no
// manager lock but must still make progress; on that path the job runs on
// its own goroutine instead of being dropped.
func (m *Manager) submitOpenTablet(ctx context.Context, peer *Peer, meta Metadata) {
	m.bootstrapWG.Add(1)
	if !m.bootstrapPool.TryRun(func() {
		defer m.bootstrapWG.Done()
		m.openTablet(ctx, peer, meta)
	}) {
		m.bootstrapWG.Done()
		m.bootstrapWG.Add(1)
		go func() {
			defer m.bootstrapWG.Done()
			m.openTablet(ctx, peer, meta)
		}()
	}
}
