package consensus

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.etcd.io/etcd/raft/v3/raftpb"
)

func TestLogLastCheckpointEmpty(t *testing.T) {
	l := NewLog("t1")
	require.Nil(t, l.LastCheckpoint())
}

func TestAppendRefreshesLastCheckpoint(t *testing.T) {
	l := NewLog("t1")
	require.NoError(t, l.Append([]raftpb.Entry{{Index: 1, Term: 1}}))

	first := l.LastCheckpoint()
	require.NotEmpty(t, first)

	want, err := l.EncodeTail()
	require.NoError(t, err)
	require.Equal(t, want, first)

	require.NoError(t, l.Append([]raftpb.Entry{{Index: 2, Term: 1}}))
	second := l.LastCheckpoint()
	require.NotEmpty(t, second)
	require.NotEqual(t, first, second)
}
