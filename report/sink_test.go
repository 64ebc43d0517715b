package report

import (
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/cubefs/tabletserver/tablet"
)

// pushReportHandler implements the PushReport method by hand, the way a
// generated stub's server-side handler would, without requiring generated
// code (the wire schema is a Non-goal — see sink.go's package doc).
func pushReportHandler(_ interface{}, ctx context.Context, dec func(interface{}) error, _ grpc.UnaryServerInterceptor) (interface{}, error) {
	req := &structpb.Struct{}
	if err := dec(req); err != nil {
		return nil, err
	}
	seq := req.Fields["sequence_number"].GetNumberValue()
	return structpb.NewStruct(map[string]interface{}{
		"acked_sequence_number": seq,
	})
}

var testServiceDesc = grpc.ServiceDesc{
	ServiceName: "tablet_server.ReportSink",
	HandlerType: (*interface{})(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "PushReport",
			Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
				return pushReportHandler(srv, ctx, dec, interceptor)
			},
		},
	},
}

func dialTestSink(t *testing.T) (*GRPCSink, func()) {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	server := grpc.NewServer()
	server.RegisterService(&testServiceDesc, struct{}{})
	go server.Serve(lis)

	conn, err := grpc.Dial("bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.Dial() }),
		grpc.WithInsecure(), //nolint:staticcheck
		grpc.WithBlock(),
	)
	require.NoError(t, err)

	return NewGRPCSink(conn), func() {
		conn.Close()
		server.Stop()
	}
}

func TestPushReportRoundTrip(t *testing.T) {
	sink, cleanup := dialTestSink(t)
	defer cleanup()

	report := tablet.TabletReport{
		SequenceNumber: 7,
		IsIncremental:  true,
		UpdatedTablets: []tablet.ReportedTablet{
			{ID: "t1", State: tablet.PeerRunning, Role: tablet.RoleLeader},
		},
	}

	ack, err := sink.PushReport(context.Background(), report)
	require.NoError(t, err)
	require.EqualValues(t, 7, ack)
}
