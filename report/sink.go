// Package report implements the gRPC-based ReportSink transport
// collaborator: it pushes the TabletReport spec.md §6 defines to an
// external control plane and returns the acknowledged sequence number. The
// core itself defines no wire format for this message (spec.md §6's
// closing line); this package's own choice is a structpb.Struct payload
// carried over a plain google.golang.org/grpc connection, instrumented the
// way metrics/metric.go instruments every other RPC path in the teacher.
package report

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/cubefs/tabletserver/metrics"
	"github.com/cubefs/tabletserver/tablet"
)

// PushReportMethod is the RPC this package invokes; there is no generated
// service stub because the wire schema is a Non-goal (spec.md §1) — the
// method is called by its full name via grpc.ClientConn.Invoke, the same
// mechanism generated stubs use internally.
const PushReportMethod = "/tablet_server.ReportSink/PushReport"

// Sink pushes tablet reports to a control plane and returns the sequence
// number it acknowledged.
type Sink interface {
	PushReport(ctx context.Context, report tablet.TabletReport) (ackSeq uint32, err error)
}

// GRPCSink is the real Sink implementation, instrumented with the
// grpc-ecosystem/go-grpc-prometheus client metrics metrics/metric.go
// registers (metrics.GRPCMetrics).
type GRPCSink struct {
	conn *grpc.ClientConn
}

// DialGRPCSink dials target with client-side prometheus instrumentation
// enabled.
func DialGRPCSink(target string) (*GRPCSink, error) {
	conn, err := grpc.Dial(target,
		grpc.WithChainUnaryInterceptor(metrics.GRPCMetrics.UnaryClientInterceptor()),
		grpc.WithInsecure(), //nolint:staticcheck // no TLS material is modeled by this collaborator boundary.
	)
	if err != nil {
		return nil, fmt.Errorf("report: dial %s: %w", target, err)
	}
	return &GRPCSink{conn: conn}, nil
}

// NewGRPCSink wraps an already-established connection, for callers that
// manage their own dial options.
func NewGRPCSink(conn *grpc.ClientConn) *GRPCSink {
	return &GRPCSink{conn: conn}
}

// Close tears down the underlying connection.
func (s *GRPCSink) Close() error { return s.conn.Close() }

// PushReport encodes report as a structpb.Struct, invokes PushReportMethod,
// and decodes the ack sequence number from the reply.
func (s *GRPCSink) PushReport(ctx context.Context, r tablet.TabletReport) (uint32, error) {
	req, err := reportToStruct(r)
	if err != nil {
		return 0, fmt.Errorf("report: encode: %w", err)
	}

	reply := &structpb.Struct{}
	if err := s.conn.Invoke(ctx, PushReportMethod, req, reply); err != nil {
		return 0, fmt.Errorf("report: push: %w", err)
	}

	ackField, ok := reply.Fields["acked_sequence_number"]
	if !ok {
		return 0, fmt.Errorf("report: reply missing acked_sequence_number")
	}
	return uint32(ackField.GetNumberValue()), nil
}

func reportToStruct(r tablet.TabletReport) (*structpb.Struct, error) {
	updated := make([]interface{}, 0, len(r.UpdatedTablets))
	for _, u := range r.UpdatedTablets {
		entry := map[string]interface{}{
			"id":    u.ID,
			"state": u.State.String(),
			"role":  u.Role.String(),
		}
		if u.Error != nil {
			entry["error"] = u.Error.Error()
		}
		if u.HasSchemaVersion {
			entry["schema_version"] = float64(u.SchemaVersion)
		}
		updated = append(updated, entry)
	}

	removed := make([]interface{}, 0, len(r.RemovedTabletIDs))
	for _, id := range r.RemovedTabletIDs {
		removed = append(removed, id)
	}

	return structpb.NewStruct(map[string]interface{}{
		"sequence_number":    float64(r.SequenceNumber),
		"is_incremental":     r.IsIncremental,
		"updated_tablets":    updated,
		"removed_tablet_ids": removed,
	})
}
