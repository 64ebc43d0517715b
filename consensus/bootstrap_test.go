package consensus

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.etcd.io/etcd/raft/v3/raftpb"

	"github.com/cubefs/tabletserver/tablet"
)

func TestBootstrapEmptyLog(t *testing.T) {
	b := NewBootstrapper()
	tab, log, info, err := b.Bootstrap(context.Background(), tablet.Metadata{TabletID: "t1"})
	require.NoError(t, err)
	require.Equal(t, "t1", tab.ID())
	require.NotNil(t, log)
	require.Zero(t, info.HighestReplayedOpIndex)
	require.Zero(t, info.HighestReplayedTerm)
}

func TestBootstrapReplaysAppendedEntries(t *testing.T) {
	b := NewBootstrapper()
	l := b.logFor("t2")
	require.NoError(t, l.Append([]raftpb.Entry{
		{Index: 1, Term: 1},
		{Index: 2, Term: 1},
		{Index: 3, Term: 2},
	}))

	_, _, info, err := b.Bootstrap(context.Background(), tablet.Metadata{TabletID: "t2"})
	require.NoError(t, err)
	require.EqualValues(t, 3, info.HighestReplayedOpIndex)
	require.EqualValues(t, 2, info.HighestReplayedTerm)
}

func TestLogCloseIsIdempotent(t *testing.T) {
	l := NewLog("t3")
	require.NoError(t, l.Close(context.Background()))
	require.NoError(t, l.Close(context.Background()))
}
