package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/danielpatrickdp/adaptive-state/policy-guard/internal/logging"
	"github.com/danielpatrickdp/adaptive-state/policy-guard/internal/service"
	"github.com/danielpatrickdp/adaptive-state/policy-guard/internal/snapshot"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// #region server
// Server implements PolicyGuardServer on top of a service.
type Server struct {
	svc *service.Service
}

// NewServer wraps svc.
func NewServer(svc *service.Service) *Server {
	return &Server{svc: svc}
}

// NewGRPCServer builds a grpc.Server with request logging and the
// PolicyGuard service registered.
func NewGRPCServer(svc *service.Service, logger *zap.Logger, opts ...grpc.ServerOption) *grpc.Server {
	opts = append(opts, grpc.ChainUnaryInterceptor(loggingInterceptor(logging.OrNop(logger))))
	s := grpc.NewServer(opts...)
	Register(s, NewServer(svc))
	return s
}

// Evaluate returns the verdict document for a snapshot document.
func (s *Server) Evaluate(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	snap, err := snapshotFromStruct(in)
	if err != nil {
		return nil, err
	}
	return toStruct(s.svc.Evaluate(ctx, snap))
}

// Ingest evaluates and records a snapshot document.
func (s *Server) Ingest(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	snap, err := snapshotFromStruct(in)
	if err != nil {
		return nil, err
	}
	v, id, err := s.svc.Ingest(ctx, snap)
	if err != nil {
		return nil, statusFor(err)
	}
	return toStruct(ingestReply{ID: id, Verdict: v})
}

// Summary returns aggregate audit statistics.
func (s *Server) Summary(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	sum, err := s.svc.Summary(ctx)
	if err != nil {
		return nil, statusFor(err)
	}
	return toStruct(sum)
}

// #endregion server

// #region helpers
func snapshotFromStruct(in *structpb.Struct) (snapshot.AgentStateSnapshot, error) {
	data, err := protojson.Marshal(in)
	if err != nil {
		return snapshot.AgentStateSnapshot{}, status.Errorf(codes.InvalidArgument, "encode request: %v", err)
	}
	snap, err := snapshot.Parse(data)
	if err != nil {
		return snapshot.AgentStateSnapshot{}, statusFor(err)
	}
	return snap, nil
}

// toStruct converts any JSON-encodable value to a Struct via its JSON form.
func toStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode reply: %v", err)
	}
	out := &structpb.Struct{}
	if err := protojson.Unmarshal(data, out); err != nil {
		return nil, status.Errorf(codes.Internal, "encode reply: %v", err)
	}
	return out, nil
}

func statusFor(err error) error {
	switch {
	case errors.Is(err, snapshot.ErrInputMalformed):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, snapshot.ErrSchemaMismatch):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, service.ErrAuditDisabled):
		return status.Error(codes.Unavailable, err.Error())
	}
	return status.Error(codes.Internal, fmt.Sprintf("policy guard: %v", err))
}

// requestIDKey is the metadata key carrying the caller's request ID.
const requestIDKey = "x-request-id"

func loggingInterceptor(logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		requestID := incomingRequestID(ctx)
		if err := grpc.SetHeader(ctx, metadata.Pairs(requestIDKey, requestID)); err != nil {
			logger.Debug("set request id header", zap.Error(err))
		}
		resp, err := handler(ctx, req)
		logger.Info("rpc",
			zap.String("method", info.FullMethod),
			zap.String("request_id", requestID),
			zap.String("code", status.Code(err).String()),
			zap.Duration("elapsed", time.Since(start)))
		return resp, err
	}
}

func incomingRequestID(ctx context.Context) string {
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		for _, v := range md.Get(requestIDKey) {
			if v = strings.TrimSpace(v); v != "" {
				return v
			}
		}
	}
	return uuid.New().String()
}

// #endregion helpers
