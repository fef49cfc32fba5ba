package rpc

import (
	"context"
	"net"
	"path/filepath"
	"testing"

	"github.com/danielpatrickdp/adaptive-state/policy-guard/internal/audit"
	"github.com/danielpatrickdp/adaptive-state/policy-guard/internal/guard"
	"github.com/danielpatrickdp/adaptive-state/policy-guard/internal/service"
	"github.com/danielpatrickdp/adaptive-state/policy-guard/internal/snapshot"
	"github.com/google/go-cmp/cmp"
	"go.uber.org/goleak"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"
)

// #region helpers
func startServer(t *testing.T, svc *service.Service) *Client {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := NewGRPCServer(svc, nil)
	go srv.Serve(lis)

	c, err := Dial("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() {
		c.Close()
		srv.Stop()
	})
	return c
}

func mustParse(t *testing.T, doc string) snapshot.AgentStateSnapshot {
	t.Helper()
	snap, err := snapshot.Parse([]byte(doc))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return snap
}

const failingDoc = `{"agent_name":"astryx","goal":"comfort","perception":{"tone":"sad"},"state_snapshot":{"mood":-0.9,"traits":{"empathy":0.2,"directness":0.95}}}`

// #endregion helpers

func TestEvaluateRoundTrip(t *testing.T) {
	ignore := goleak.IgnoreCurrent()
	t.Cleanup(func() { goleak.VerifyNone(t, ignore) })
	c := startServer(t, service.New(nil, nil, nil))
	snap := mustParse(t, failingDoc)

	got, err := c.Evaluate(context.Background(), snap)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if diff := cmp.Diff(guard.Evaluate(snap.State()), got); diff != "" {
		t.Fatalf("verdict mismatch (-want +got):\n%s", diff)
	}
}

func TestEvaluatePassingHasEmptyCollections(t *testing.T) {
	c := startServer(t, service.New(nil, nil, nil))

	got, err := c.Evaluate(context.Background(),
		mustParse(t, `{"state_snapshot":{"mood":0.1,"traits":{"empathy":0.7}}}`))
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if !got.OK || got.Warnings == nil || got.SuggestedTraitAdjustments == nil {
		t.Fatalf("expected ok verdict with empty collections, got %+v", got)
	}
}

func TestEvaluateSchemaMismatch(t *testing.T) {
	c := startServer(t, service.New(nil, nil, nil))
	req, err := structpb.NewStruct(map[string]any{"goal": "comfort"})
	if err != nil {
		t.Fatalf("build request: %v", err)
	}

	err = c.conn.Invoke(context.Background(), methodEvaluate, req, &structpb.Struct{})
	if status.Code(err) != codes.FailedPrecondition {
		t.Fatalf("expected FailedPrecondition, got %v", err)
	}
}

func TestIngestWithoutAudit(t *testing.T) {
	c := startServer(t, service.New(nil, nil, nil))

	_, _, err := c.Ingest(context.Background(), mustParse(t, failingDoc))
	if status.Code(err) != codes.Unavailable {
		t.Fatalf("expected Unavailable, got %v", err)
	}
	if _, err := c.Summary(context.Background()); status.Code(err) != codes.Unavailable {
		t.Fatalf("expected Unavailable from summary, got %v", err)
	}
}

func TestIngestAndSummary(t *testing.T) {
	store, err := audit.Open(filepath.Join(t.TempDir(), "audit.db"))
	if err != nil {
		t.Fatalf("open audit: %v", err)
	}
	defer store.Close()
	c := startServer(t, service.New(nil, store, nil))
	ctx := context.Background()

	v, id, err := c.Ingest(ctx, mustParse(t, failingDoc))
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if id == "" || v.OK || len(v.Warnings) != 3 {
		t.Fatalf("unexpected ingest reply: id=%q verdict=%+v", id, v)
	}

	sum, err := c.Summary(ctx)
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	want := audit.Summary{
		Count:      1,
		Rejected:   1,
		AvgMood:    -0.9,
		GoalCounts: map[string]int{"comfort": 1},
		ConstraintCounts: map[string]int{
			guard.NameEmpathyFloor:      1,
			guard.NameDirectnessCeiling: 1,
			guard.NameMoodFloor:         1,
		},
	}
	if diff := cmp.Diff(want, sum); diff != "" {
		t.Fatalf("summary mismatch (-want +got):\n%s", diff)
	}
}

func TestRequestIDHeader(t *testing.T) {
	c := startServer(t, service.New(nil, nil, nil))
	req, err := snapshotToStruct(mustParse(t, failingDoc))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	var echoed metadata.MD
	ctx := metadata.AppendToOutgoingContext(context.Background(), "x-request-id", "req-42")
	if err := c.conn.Invoke(ctx, methodEvaluate, req, &structpb.Struct{}, grpc.Header(&echoed)); err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if got := echoed.Get("x-request-id"); len(got) != 1 || got[0] != "req-42" {
		t.Fatalf("expected caller request id echoed, got %v", got)
	}

	var generated metadata.MD
	if err := c.conn.Invoke(context.Background(), methodEvaluate, req, &structpb.Struct{}, grpc.Header(&generated)); err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if got := generated.Get("x-request-id"); len(got) != 1 || got[0] == "" {
		t.Fatalf("expected generated request id, got %v", got)
	}
}
