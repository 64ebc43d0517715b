// Package txn implements the per-tablet transaction admission controller
// described in spec.md §4.2: it admits in-flight mutation transactions
// against a memory budget, counts them by type, and supports draining.
//
// The algorithm and log messages are grounded in
// original_source/src/kudu/tablet/transactions/transaction_tracker.cc.
package txn

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cubefs/cubefs/blobstore/util/log"
	"golang.org/x/time/rate"

	"github.com/cubefs/tabletserver/apierrors"
	"github.com/cubefs/tabletserver/memtracker"
)

// Type distinguishes the kinds of mutation transaction the tracker counts
// individually, mirroring Transaction::WRITE_TXN / ALTER_SCHEMA_TXN.
type Type int

const (
	Write Type = iota
	AlterSchema
)

// Driver is the transaction-driver handle spec.md §4.2 describes: it
// exposes just enough of the in-flight request for admission, counting and
// diagnostic dumps. The tablet peer that owns the real driver type
// implements this interface; tests use fakes.
type Driver interface {
	RequestSizeBytes() int64
	TxType() Type
	TabletID() string
	String() string
}

// maxTxnsToDump bounds how many pending transactions WaitForAllToFinish will
// describe in a single log line.
const maxTxnsToDump = 50

const (
	initialWaitTime = 250 * time.Microsecond
	maxWaitTime     = time.Second
	maxComplaintExp = 8 // 1 << 8 seconds == 256s ceiling on the log cadence.
)

type pendingEntry struct {
	memoryFootprint int64
}

// Tracker is one tablet's transaction admission controller. The zero value
// is not usable; construct with NewTracker. StartInstrumentation and
// StartMemoryTracking bind their
// respective collaborators late, as spec.md §4.2 requires.
type Tracker struct {
	mu      sync.Mutex
	pending map[Driver]pendingEntry

	metrics     atomic.Pointer[Metrics]
	memTracker  atomic.Pointer[memtracker.Tracker]
	warnLimiter *rate.Limiter
}

// NewTracker constructs an unconfigured tracker: no metrics, no memory
// budget, admission always succeeds until StartMemoryTracking is called.
func NewTracker() *Tracker {
	return &Tracker{
		pending:     make(map[Driver]pendingEntry),
		warnLimiter: rate.NewLimiter(rate.Every(time.Second), 1),
	}
}

// StartInstrumentation attaches (or replaces) the metric set.
func (t *Tracker) StartInstrumentation(m *Metrics) {
	t.metrics.Store(m)
}

// StartMemoryTracking creates a child node under parent with the configured
// limit and attaches it. A limitBytes of memtracker.NoLimit disables memory
// tracking entirely: admissions always succeed on that axis.
func (t *Tracker) StartMemoryTracking(parent *memtracker.Tracker, limitBytes int64) {
	if limitBytes == memtracker.NoLimit {
		return
	}
	t.memTracker.Store(parent.NewChild("txn_tracker", limitBytes))
}

// Add admits driver's request, or returns apierrors.ErrServiceUnavailable if
// doing so would exceed the memory budget.
func (t *Tracker) Add(driver Driver) error {
	footprint := driver.RequestSizeBytes()

	if mt := t.memTracker.Load(); mt != nil && !mt.TryConsume(footprint) {
		metrics := t.metrics.Load()
		if metrics != nil {
			metrics.pressureRejections.Inc()
			if !mt.CanConsumeNoAncestors(footprint) {
				metrics.limitRejections.Inc()
			}
		}

		if t.warnLimiter.Allow() {
			log.Warnf("transaction on tablet %s rejected due to memory pressure: the memory "+
				"usage of this transaction (%d) plus the current consumption (%d) exceeds the "+
				"transaction memory limit (%d) or the limit of an ancestral memory tracker.",
				driver.TabletID(), footprint, mt.Consumption(), mt.Limit())
		}
		return apierrors.ErrServiceUnavailable
	}

	t.incrementCounters(driver.TxType())

	t.mu.Lock()
	defer t.mu.Unlock()
	if _, dup := t.pending[driver]; dup {
		log.Fatalf("transaction driver already tracked: %s", driver.String())
	}
	t.pending[driver] = pendingEntry{memoryFootprint: footprint}
	return nil
}

// Release removes driver from the pending set, releases its reserved memory
// and decrements the in-flight counters. Release never fails; looking up an
// untracked driver is a fatal invariant violation.
func (t *Tracker) Release(driver Driver) {
	t.decrementCounters(driver.TxType())

	t.mu.Lock()
	entry, ok := t.pending[driver]
	if !ok {
		t.mu.Unlock()
		log.Fatalf("could not remove pending transaction from map: %s", driver.String())
		return
	}
	delete(t.pending, driver)
	t.mu.Unlock()

	if mt := t.memTracker.Load(); mt != nil {
		mt.Release(entry.memoryFootprint)
	}
}

func (t *Tracker) incrementCounters(txType Type) {
	m := t.metrics.Load()
	if m == nil {
		return
	}
	m.allInflight.Inc()
	switch txType {
	case Write:
		m.writeInflight.Inc()
	case AlterSchema:
		m.alterInflight.Inc()
	}
}

func (t *Tracker) decrementCounters(txType Type) {
	m := t.metrics.Load()
	if m == nil {
		return
	}
	m.allInflight.Dec()
	switch txType {
	case Write:
		m.writeInflight.Dec()
	case AlterSchema:
		m.alterInflight.Dec()
	}
}

// GetPendingTransactions returns a snapshot of the currently in-flight
// drivers.
func (t *Tracker) GetPendingTransactions() []Driver {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Driver, 0, len(t.pending))
	for d := range t.pending {
		out = append(out, d)
	}
	return out
}

// PendingCount reports the number of currently in-flight transactions.
func (t *Tracker) PendingCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}

// WaitForAllToFinish polls with exponential backoff until every admitted
// transaction has been released or timeout elapses.
func (t *Tracker) WaitForAllToFinish(ctx context.Context, timeout time.Duration) error {
	waitTime := initialWaitTime
	numComplaints := 0
	start := time.Now()
	nextLogTime := start.Add(time.Second)

	for {
		txns := t.GetPendingTransactions()
		if len(txns) == 0 {
			return nil
		}

		now := time.Now()
		elapsed := now.Sub(start)
		if elapsed > timeout {
			return apierrors.ErrTimedOut
		}
		if now.After(nextLogTime) {
			log.Warnf("transaction tracker waiting for %d outstanding transactions to complete "+
				"now for %s", len(txns), elapsed)
			limit := len(txns)
			if limit > maxTxnsToDump {
				limit = maxTxnsToDump
			}
			log.Infof("dumping up to %d currently running transactions:", maxTxnsToDump)
			for _, txn := range txns[:limit] {
				log.Info(txn.String())
			}

			numComplaints++
			backoffExp := numComplaints
			if backoffExp > maxComplaintExp {
				backoffExp = maxComplaintExp
			}
			nextLogTime = now.Add(time.Duration(1<<uint(backoffExp)) * time.Second)
		}

		waitTime = waitTime * 5 / 4
		if waitTime > maxWaitTime {
			waitTime = maxWaitTime
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(waitTime):
		}
	}
}
