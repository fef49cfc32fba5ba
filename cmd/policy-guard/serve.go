package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/danielpatrickdp/adaptive-state/policy-guard/internal/httpapi"
	"github.com/danielpatrickdp/adaptive-state/policy-guard/internal/rpc"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

// #region serve
func newServeCmd(opts *options) *cobra.Command {
	var httpAddr, grpcAddr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the guard over HTTP and gRPC",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.settings()
			if err != nil {
				return err
			}
			if httpAddr != "" {
				cfg.HTTPAddr = httpAddr
			}
			if grpcAddr != "" {
				cfg.GRPCAddr = grpcAddr
			}
			logger, err := opts.logger(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			svc, closeSvc, err := openService(cfg, logger)
			if err != nil {
				return err
			}
			defer closeSvc()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			httpSrv := &http.Server{
				Addr:              cfg.HTTPAddr,
				Handler:           httpapi.NewRouter(svc, logger),
				ReadHeaderTimeout: 10 * time.Second,
			}
			grpcSrv := rpc.NewGRPCServer(svc, logger)
			lis, err := net.Listen("tcp", cfg.GRPCAddr)
			if err != nil {
				return fmt.Errorf("listen grpc %s: %w", cfg.GRPCAddr, err)
			}

			logger.Info("policy guard serving",
				zap.String("http_addr", cfg.HTTPAddr),
				zap.String("grpc_addr", lis.Addr().String()),
				zap.Bool("audit", svc.AuditEnabled()))

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				if err := httpSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
					return fmt.Errorf("http server: %w", err)
				}
				return nil
			})
			g.Go(func() error {
				if err := grpcSrv.Serve(lis); err != nil {
					return fmt.Errorf("grpc server: %w", err)
				}
				return nil
			})
			g.Go(func() error {
				<-gctx.Done()
				logger.Info("shutting down")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
				defer cancel()
				grpcSrv.GracefulStop()
				return httpSrv.Shutdown(shutdownCtx)
			})
			return g.Wait()
		},
	}
	cmd.Flags().StringVar(&httpAddr, "http-addr", "", "HTTP listen address (overrides config)")
	cmd.Flags().StringVar(&grpcAddr, "grpc-addr", "", "gRPC listen address (overrides config)")
	return cmd
}

// #endregion serve
