package memtracker

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTryConsumeWithinLimit(t *testing.T) {
	root := NewRootTracker("root", 1<<20)
	require.True(t, root.TryConsume(1<<10))
	require.EqualValues(t, 1<<10, root.Consumption())
	root.Release(1 << 10)
	require.EqualValues(t, 0, root.Consumption())
}

func TestTryConsumeRollsBackOnAncestorRejection(t *testing.T) {
	root := NewRootTracker("root", 100)
	child := root.NewChild("child", 1000)

	require.True(t, child.TryConsume(90))
	require.False(t, child.TryConsume(20))

	// P1: rejected reservation leaves consumption unchanged everywhere.
	require.EqualValues(t, 90, root.Consumption())
	require.EqualValues(t, 90, child.Consumption())
}

func TestTryConsumeRollsBackOnOwnRejection(t *testing.T) {
	root := NewRootTracker("root", 1000)
	child := root.NewChild("child", 100)

	require.True(t, child.TryConsume(90))
	require.False(t, child.TryConsume(20))

	require.EqualValues(t, 90, root.Consumption())
	require.EqualValues(t, 90, child.Consumption())
}

func TestCanConsumeNoAncestorsIgnoresParent(t *testing.T) {
	root := NewRootTracker("root", 10)
	child := root.NewChild("child", 1000)

	// Parent has no room, but the child's own limit does.
	require.False(t, child.TryConsume(500))
	require.True(t, child.CanConsumeNoAncestors(500))
}

func TestNoLimitAlwaysAdmits(t *testing.T) {
	root := NewRootTracker("root", NoLimit)
	require.True(t, root.TryConsume(1<<40))
	require.True(t, root.CanConsumeNoAncestors(1<<40))
}

func TestConcurrentConsumeReleaseMatchesPrePairState(t *testing.T) {
	root := NewRootTracker("root", 1<<30)
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if root.TryConsume(4096) {
				root.Release(4096)
			}
		}()
	}
	wg.Wait()
	require.EqualValues(t, 0, root.Consumption())
}
