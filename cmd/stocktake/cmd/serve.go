package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"

	"github.com/joseph-ayodele/stocktake/internal/server"
	"github.com/joseph-ayodele/stocktake/internal/session"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API, the gRPC health endpoint and the OCR worker loop",
	Long: `Start the stock-take HTTP API.

The OCR worker runs every worker.interval in process; set it to 0 to rely on
POST /api/ocr/process from an external scheduler instead.

Examples:
  stocktake serve
  stocktake serve --http-addr :8000 --worker-interval 10s`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("http-addr", "", "HTTP listen address (overrides server.http_addr)")
	serveCmd.Flags().Duration("worker-interval", 0, "OCR batch interval (overrides worker.interval)")
}

func runServe(cmd *cobra.Command, _ []string) error {
	if cfg.Auth.JWTSecret == "" {
		return errors.New("auth.jwt_secret is required to serve (set STOCKTAKE_AUTH_JWT_SECRET)")
	}
	httpAddr := cfg.Server.HTTPAddr
	if cmd.Flags().Changed("http-addr") {
		httpAddr, _ = cmd.Flags().GetString("http-addr")
	}
	interval := cfg.Worker.Interval
	if cmd.Flags().Changed("worker-interval") {
		interval, _ = cmd.Flags().GetDuration("worker-interval")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	if err := server.PingDB(ctx, a.db, logger, 5*time.Second); err != nil {
		return fmt.Errorf("database health: %w", err)
	}

	w, err := a.worker(ctx)
	if err != nil {
		return err
	}
	manager := a.manager()
	registry := session.NewRegistry(manager, logger, func(id uuid.UUID) {
		logger.Info("count session expired", "session_id", id)
	}, session.WithTimeout(cfg.Session.Timeout()))
	if _, err := registry.Restore(ctx, manager); err != nil {
		logger.Warn("failed to restore session controllers", "err", err)
	}

	detector := a.detector()
	srv := server.New(server.Config{
		WorkerSecret: cfg.Worker.Secret,
		JWTSecret:    cfg.Auth.JWTSecret,
		Issuer:       cfg.Auth.Issuer,
	}, server.Deps{
		Jobs:        a.jobs,
		Rolls:       a.rolls,
		Sessions:    manager,
		Controllers: registry,
		Detector:    detector,
		Worker:      w,
		Capture:     a.capture(detector),
		Export:      a.exporter(),
		DB:          a.db,
	}, logger)

	httpServer := &http.Server{
		Addr:              httpAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	grpcServer := grpc.NewServer()
	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)

	errCh := make(chan error, 2)
	if cfg.Server.GRPCAddr != "" {
		lis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
		if err != nil {
			return fmt.Errorf("listen %s: %w", cfg.Server.GRPCAddr, err)
		}
		logger.Info("grpc health listening", "addr", cfg.Server.GRPCAddr)
		go func() {
			if err := grpcServer.Serve(lis); err != nil {
				errCh <- fmt.Errorf("grpc serve: %w", err)
			}
		}()
	}

	go func() {
		logger.Info("stocktake listening", "addr", httpAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http serve: %w", err)
		}
	}()

	workerCtx, stopWorker := context.WithCancel(ctx)
	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		w.Run(workerCtx, interval, cfg.Worker.BatchSize)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case serveErr = <-errCh:
		logger.Error("server failed", "err", serveErr)
	}

	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_NOT_SERVING)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown", "err", err)
	}
	grpcServer.GracefulStop()
	stopWorker()
	<-workerDone
	registry.Shutdown()
	return serveErr
}
