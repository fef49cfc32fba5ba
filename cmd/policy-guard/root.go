package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/danielpatrickdp/adaptive-state/policy-guard/internal/audit"
	"github.com/danielpatrickdp/adaptive-state/policy-guard/internal/config"
	"github.com/danielpatrickdp/adaptive-state/policy-guard/internal/guard"
	"github.com/danielpatrickdp/adaptive-state/policy-guard/internal/logging"
	"github.com/danielpatrickdp/adaptive-state/policy-guard/internal/rpc"
	"github.com/danielpatrickdp/adaptive-state/policy-guard/internal/service"
	"github.com/danielpatrickdp/adaptive-state/policy-guard/internal/snapshot"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const rpcTimeout = 30 * time.Second

// #region options
type options struct {
	configPath string
	logLevel   string
	auditDB    string
	devLog     bool
	remote     string
	strict     bool
}

// settings resolves flags > env > config file > defaults.
func (o *options) settings() (config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return config.Config{}, err
	}
	if o.logLevel != "" {
		cfg.LogLevel = o.logLevel
	}
	if o.auditDB != "" {
		cfg.AuditDB = o.auditDB
	}
	cfg.Strict = cfg.Strict || o.strict
	return cfg, nil
}

func (o *options) logger(cfg config.Config) (*zap.Logger, error) {
	return logging.NewLogger(cfg.LogLevel, o.devLog)
}

// #endregion options

// #region root
func newRootCmd() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:   "policy-guard <snapshot.json>",
		Short: "Check an agent state snapshot against the policy guard",
		Long: `policy-guard reads an agent state snapshot document, evaluates its mood
and traits against the constraint table, and prints the verdict as JSON.`,
		Args:          exactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEvaluate(cmd, opts, args[0])
		},
	}
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error { return usageError{err} })

	pf := cmd.PersistentFlags()
	pf.StringVar(&opts.configPath, "config", "", "path to a YAML config file")
	pf.StringVar(&opts.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	pf.StringVar(&opts.auditDB, "audit-db", "", "SQLite audit database; enables verdict recording")
	pf.BoolVar(&opts.devLog, "dev-log", false, "human-readable console logs")

	f := cmd.Flags()
	f.StringVar(&opts.remote, "remote", "", "evaluate on a remote guard at this gRPC address")
	f.BoolVar(&opts.strict, "strict", false, "exit with status 3 when the snapshot fails")

	cmd.AddCommand(newServeCmd(opts), newSummaryCmd(opts), newReplayCmd(opts))
	return cmd
}

func exactArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := cobra.ExactArgs(n)(cmd, args); err != nil {
			return usageError{err}
		}
		return nil
	}
}

// #endregion root

// #region evaluate
func runEvaluate(cmd *cobra.Command, opts *options, path string) error {
	cfg, err := opts.settings()
	if err != nil {
		return err
	}
	// the remote guard records into its own audit log, never the local one
	if opts.remote != "" && cfg.AuditDB != "" {
		return usageError{fmt.Errorf("--remote cannot be combined with audit database %s", cfg.AuditDB)}
	}
	logger, err := opts.logger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	snap, err := snapshot.Load(path)
	if err != nil {
		return err
	}

	var v *guard.Verdict
	if opts.remote != "" {
		v, err = evaluateRemote(cmd.Context(), opts.remote, snap)
	} else {
		v, err = evaluateLocal(cmd.Context(), cfg, logger, snap)
	}
	// a verdict that could not be recorded is still printed
	if v != nil {
		if werr := writeJSON(cmd.OutOrStdout(), v); werr != nil {
			return werr
		}
	}
	if err != nil {
		return err
	}
	return strictResult(cfg, *v)
}

// evaluateLocal returns a non-nil verdict whenever one was computed, even if
// recording it failed.
func evaluateLocal(ctx context.Context, cfg config.Config, logger *zap.Logger, snap snapshot.AgentStateSnapshot) (*guard.Verdict, error) {
	svc, closeSvc, err := openService(cfg, logger)
	if err != nil {
		return nil, err
	}
	defer closeSvc()

	if !svc.AuditEnabled() {
		v := svc.Evaluate(ctx, snap)
		return &v, nil
	}
	v, id, err := svc.Ingest(ctx, snap)
	if err != nil {
		return &v, err
	}
	logger.Debug("verdict recorded", zap.String("audit_id", id))
	return &v, nil
}

func evaluateRemote(ctx context.Context, addr string, snap snapshot.AgentStateSnapshot) (*guard.Verdict, error) {
	client, err := rpc.Dial(addr)
	if err != nil {
		return nil, err
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(ctx, rpcTimeout)
	defer cancel()
	v, err := client.Evaluate(ctx, snap)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func strictResult(cfg config.Config, v guard.Verdict) error {
	if cfg.Strict && !v.OK {
		return fmt.Errorf("%w: %d warning(s)", errVerdictFailed, len(v.Warnings))
	}
	return nil
}

// #endregion evaluate

// #region helpers
// openService builds the evaluation service, opening the audit store when
// one is configured. The returned func releases it.
func openService(cfg config.Config, logger *zap.Logger) (*service.Service, func(), error) {
	if cfg.AuditDB == "" {
		return service.New(nil, nil, logger), func() {}, nil
	}
	store, err := audit.Open(cfg.AuditDB)
	if err != nil {
		return nil, nil, fmt.Errorf("open audit db %s: %w", cfg.AuditDB, err)
	}
	closeFn := func() {
		if err := store.Close(); err != nil {
			logger.Warn("close audit db", zap.Error(err))
		}
	}
	return service.New(nil, store, logger), closeFn, nil
}

func writeJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	data = append(data, '\n')
	_, err = w.Write(data)
	return err
}

// #endregion helpers
