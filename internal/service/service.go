// Package service runs guard evaluations for the CLI and the network
// surfaces, logging each verdict and optionally recording it.
package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/danielpatrickdp/adaptive-state/policy-guard/internal/audit"
	"github.com/danielpatrickdp/adaptive-state/policy-guard/internal/guard"
	"github.com/danielpatrickdp/adaptive-state/policy-guard/internal/logging"
	"github.com/danielpatrickdp/adaptive-state/policy-guard/internal/snapshot"
	"go.uber.org/zap"
)

// ErrAuditDisabled is returned by audit-backed operations when no audit log is configured.
var ErrAuditDisabled = errors.New("audit log disabled")

// #region audit-log
// AuditLog is the subset of the audit store the service uses.
type AuditLog interface {
	Record(ctx context.Context, e audit.Entry) (string, error)
	Get(ctx context.Context, id string) (audit.Entry, error)
	Summary(ctx context.Context) (audit.Summary, error)
}

// #endregion audit-log

// #region service
// Service evaluates snapshots with a guard.
type Service struct {
	guard  *guard.Guard
	audit  AuditLog
	logger *zap.Logger
}

// New creates a service. A nil guard uses the default constraint table; a
// nil audit log disables Ingest, Get and Summary.
func New(g *guard.Guard, log AuditLog, logger *zap.Logger) *Service {
	if g == nil {
		g = guard.New()
	}
	return &Service{guard: g, audit: log, logger: logging.OrNop(logger)}
}

// AuditEnabled reports whether verdicts can be recorded.
func (s *Service) AuditEnabled() bool {
	return s.audit != nil
}

// Evaluate computes the verdict for snap without recording it.
func (s *Service) Evaluate(ctx context.Context, snap snapshot.AgentStateSnapshot) guard.Verdict {
	_, v := s.evaluate(snap)
	return v
}

// Ingest evaluates snap and records the verdict. The verdict is returned even
// when recording fails.
func (s *Service) Ingest(ctx context.Context, snap snapshot.AgentStateSnapshot) (guard.Verdict, string, error) {
	findings, v := s.evaluate(snap)
	if s.audit == nil {
		return v, "", ErrAuditDisabled
	}

	doc, err := snap.Document()
	if err != nil {
		return v, "", fmt.Errorf("encode snapshot: %w", err)
	}
	id, err := s.audit.Record(ctx, audit.Entry{
		AgentName:    string(snap.AgentName),
		Goal:         string(snap.Goal),
		Mood:         snap.StateSnapshot.Mood,
		Verdict:      v,
		Fired:        audit.FiredFrom(findings),
		SnapshotJSON: string(doc),
	})
	if err != nil {
		s.logger.Error("audit record failed", zap.Error(err))
		return v, "", fmt.Errorf("record verdict: %w", err)
	}
	s.logger.Debug("verdict recorded", zap.String("audit_id", id))
	return v, id, nil
}

// Get returns a recorded verdict.
func (s *Service) Get(ctx context.Context, id string) (audit.Entry, error) {
	if s.audit == nil {
		return audit.Entry{}, ErrAuditDisabled
	}
	return s.audit.Get(ctx, id)
}

// Summary aggregates recorded verdicts.
func (s *Service) Summary(ctx context.Context) (audit.Summary, error) {
	if s.audit == nil {
		return audit.Summary{}, ErrAuditDisabled
	}
	return s.audit.Summary(ctx)
}

func (s *Service) evaluate(snap snapshot.AgentStateSnapshot) ([]guard.Finding, guard.Verdict) {
	findings := s.guard.Findings(snap.State())
	for _, f := range findings {
		s.logger.Debug("constraint fired",
			zap.String("constraint", f.Constraint),
			zap.Float64("observed", f.Observed))
	}
	v := guard.NewVerdict(findings)
	s.logger.Info("snapshot evaluated",
		zap.String("agent", string(snap.AgentName)),
		zap.Bool("ok", v.OK),
		zap.Int("warnings", len(v.Warnings)))
	return findings, v
}

// #endregion service
