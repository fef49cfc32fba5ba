package rpc

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/danielpatrickdp/adaptive-state/policy-guard/internal/audit"
	"github.com/danielpatrickdp/adaptive-state/policy-guard/internal/guard"
	"github.com/danielpatrickdp/adaptive-state/policy-guard/internal/snapshot"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

type ingestReply struct {
	ID      string        `json:"id"`
	Verdict guard.Verdict `json:"verdict"`
}

// #region client-struct
// Client calls a remote PolicyGuard service.
type Client struct {
	conn *grpc.ClientConn
}

// #endregion client-struct

// #region constructor
// Dial creates a client for addr. Without options the connection is insecure.
func Dial(addr string, opts ...grpc.DialOption) (*Client, error) {
	if len(opts) == 0 {
		opts = []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}
	}
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("grpc dial %s: %w", addr, err)
	}
	return &Client{conn: conn}, nil
}

// Close shuts down the gRPC connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// #endregion constructor

// #region calls
// Evaluate asks the remote guard for a verdict.
func (c *Client) Evaluate(ctx context.Context, snap snapshot.AgentStateSnapshot) (guard.Verdict, error) {
	req, err := snapshotToStruct(snap)
	if err != nil {
		return guard.Verdict{}, err
	}
	resp := &structpb.Struct{}
	if err := c.conn.Invoke(ctx, methodEvaluate, req, resp); err != nil {
		return guard.Verdict{}, fmt.Errorf("evaluate rpc: %w", err)
	}
	var v guard.Verdict
	if err := fromStruct(resp, &v); err != nil {
		return guard.Verdict{}, err
	}
	return v, nil
}

// Ingest asks the remote guard to evaluate and record a snapshot.
func (c *Client) Ingest(ctx context.Context, snap snapshot.AgentStateSnapshot) (guard.Verdict, string, error) {
	req, err := snapshotToStruct(snap)
	if err != nil {
		return guard.Verdict{}, "", err
	}
	resp := &structpb.Struct{}
	if err := c.conn.Invoke(ctx, methodIngest, req, resp); err != nil {
		return guard.Verdict{}, "", fmt.Errorf("ingest rpc: %w", err)
	}
	var r ingestReply
	if err := fromStruct(resp, &r); err != nil {
		return guard.Verdict{}, "", err
	}
	return r.Verdict, r.ID, nil
}

// Summary fetches the remote audit summary.
func (c *Client) Summary(ctx context.Context) (audit.Summary, error) {
	resp := &structpb.Struct{}
	if err := c.conn.Invoke(ctx, methodSummary, &emptypb.Empty{}, resp); err != nil {
		return audit.Summary{}, fmt.Errorf("summary rpc: %w", err)
	}
	var sum audit.Summary
	if err := fromStruct(resp, &sum); err != nil {
		return audit.Summary{}, err
	}
	return sum, nil
}

// #endregion calls

// #region helpers
func snapshotToStruct(snap snapshot.AgentStateSnapshot) (*structpb.Struct, error) {
	doc, err := snap.Document()
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	st := &structpb.Struct{}
	if err := protojson.Unmarshal(doc, st); err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return st, nil
}

func fromStruct(st *structpb.Struct, out any) error {
	data, err := protojson.Marshal(st)
	if err != nil {
		return fmt.Errorf("decode reply: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode reply: %w", err)
	}
	return nil
}

// #endregion helpers
