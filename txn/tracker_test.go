package txn

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/cubefs/tabletserver/apierrors"
	"github.com/cubefs/tabletserver/memtracker"
)

type fakeDriver struct {
	id       int
	size     int64
	txType   Type
	tabletID string
}

func (f *fakeDriver) RequestSizeBytes() int64 { return f.size }
func (f *fakeDriver) TxType() Type            { return f.txType }
func (f *fakeDriver) TabletID() string        { return f.tabletID }
func (f *fakeDriver) String() string          { return fmt.Sprintf("driver-%d", f.id) }

func newTestTracker(t *testing.T, limitBytes int64) *Tracker {
	t.Helper()
	tr := NewTracker()
	tr.StartInstrumentation(NewMetrics(prometheus.NewRegistry(), "t1"))
	if limitBytes != memtracker.NoLimit {
		root := memtracker.NewRootTracker("root", memtracker.NoLimit)
		tr.StartMemoryTracking(root, limitBytes)
	}
	return tr
}

func TestAddReleaseRoundTrip(t *testing.T) {
	tr := newTestTracker(t, 1<<20)
	d := &fakeDriver{id: 1, size: 100, txType: Write, tabletID: "t1"}

	require.NoError(t, tr.Add(d))
	require.Equal(t, 1, tr.PendingCount())

	tr.Release(d)
	require.Equal(t, 0, tr.PendingCount())
}

func TestMemoryAdmissionScenario(t *testing.T) {
	// Scenario 4: 1 MiB limit, three 400 KiB admissions, third rejected.
	tr := newTestTracker(t, 1<<20)

	d1 := &fakeDriver{id: 1, size: 400 << 10, txType: Write, tabletID: "t1"}
	d2 := &fakeDriver{id: 2, size: 400 << 10, txType: Write, tabletID: "t1"}
	d3 := &fakeDriver{id: 3, size: 400 << 10, txType: Write, tabletID: "t1"}

	require.NoError(t, tr.Add(d1))
	require.NoError(t, tr.Add(d2))

	err := tr.Add(d3)
	require.ErrorIs(t, err, apierrors.ErrServiceUnavailable)
	require.EqualValues(t, 1, testutil.ToFloat64(tr.metrics.Load().pressureRejections))
	require.EqualValues(t, 1, testutil.ToFloat64(tr.metrics.Load().limitRejections))

	tr.Release(d1)
	require.NoError(t, tr.Add(d3))
}

func TestRejectionCountersLimitNeverExceedsPressure(t *testing.T) {
	// P7: an ancestor-only rejection increments pressure but not limit.
	root := memtracker.NewRootTracker("root", 100)
	tr := NewTracker()
	tr.StartInstrumentation(NewMetrics(prometheus.NewRegistry(), "t1"))
	tr.StartMemoryTracking(root, 1000)

	// Exhaust the ancestor directly so the child's own limit is not binding.
	require.True(t, root.TryConsume(100))

	d := &fakeDriver{id: 1, size: 10, txType: Write, tabletID: "t1"}
	err := tr.Add(d)
	require.ErrorIs(t, err, apierrors.ErrServiceUnavailable)
	require.EqualValues(t, 1, testutil.ToFloat64(tr.metrics.Load().pressureRejections))
	require.EqualValues(t, 0, testutil.ToFloat64(tr.metrics.Load().limitRejections))
}

func TestNoMemoryTrackingAlwaysAdmits(t *testing.T) {
	tr := NewTracker()
	tr.StartInstrumentation(NewMetrics(prometheus.NewRegistry(), "t1"))
	// StartMemoryTracking never called: memtracker.NoLimit semantics.
	d := &fakeDriver{id: 1, size: 1 << 40, txType: Write, tabletID: "t1"}
	require.NoError(t, tr.Add(d))
}

func TestWaitForAllToFinishTimesOut(t *testing.T) {
	// Scenario 5.
	tr := newTestTracker(t, memtracker.NoLimit)
	d := &fakeDriver{id: 1, size: 10, txType: Write, tabletID: "t1"}
	require.NoError(t, tr.Add(d))

	err := tr.WaitForAllToFinish(context.Background(), 100*time.Millisecond)
	require.ErrorIs(t, err, apierrors.ErrTimedOut)
}

func TestWaitForAllToFinishSucceedsAfterRelease(t *testing.T) {
	tr := newTestTracker(t, memtracker.NoLimit)
	d := &fakeDriver{id: 1, size: 10, txType: Write, tabletID: "t1"}
	require.NoError(t, tr.Add(d))

	go func() {
		time.Sleep(20 * time.Millisecond)
		tr.Release(d)
	}()

	require.NoError(t, tr.WaitForAllToFinish(context.Background(), time.Second))
}

