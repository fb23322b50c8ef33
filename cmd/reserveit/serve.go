package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"reserveit/backend/internal/scheduler"
	"reserveit/backend/internal/store/sqldb"
	grpcTransport "reserveit/backend/internal/transport/grpc"
)

func newServeCmd(load appLoader) *cobra.Command {
	var migrateUp bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the gRPC API and the reminder scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := load()
			if err != nil {
				return err
			}
			return a.serve(cmd.Context(), migrateUp)
		},
	}
	cmd.Flags().BoolVar(&migrateUp, "migrate", true, "apply database migrations on startup")
	return cmd
}

func (a *app) serve(parent context.Context, migrateUp bool) error {
	log := a.log
	log.Info("starting", slog.String("grpc_addr", a.cfg.GRPCAddr), slog.String("log_level", a.cfg.LogLevel))

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := a.openDB()
	if err != nil {
		return err
	}
	defer a.closeDB(db)

	if migrateUp {
		applied, err := sqldb.Migrate(ctx, db)
		if err != nil {
			log.Error("migrations failed", slog.Any("err", err))
			return err
		}
		log.Info("migrations applied", slog.Any("versions", applied))
	}

	svc, err := a.service(ctx, db)
	if err != nil {
		return err
	}

	grpcServer := grpc.NewServer(
		grpc.UnaryInterceptor(defaultRequestTimeoutInterceptor(a.cfg.GRPCRequestTimeout)),
	)
	grpcTransport.RegisterReservationsServer(grpcServer, grpcTransport.NewReservationsServer(svc, log))
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus(grpcTransport.ReservationsServiceName, healthpb.HealthCheckResponse_SERVING)

	lis, err := net.Listen("tcp", a.cfg.GRPCAddr)
	if err != nil {
		log.Error("grpc listen failed", slog.Any("err", err), slog.String("grpc_addr", a.cfg.GRPCAddr))
		return err
	}

	sched := &scheduler.Scheduler{
		Sweeper:  svc,
		Interval: a.cfg.ReminderInterval,
		Log:      log,
	}
	schedDone := make(chan struct{})
	go func() {
		defer close(schedDone)
		_ = sched.Run(ctx)
	}()

	errCh := make(chan error, 1)
	go func() {
		errCh <- grpcServer.Serve(lis)
	}()

	log.Info("grpc server started", slog.String("grpc_addr", a.cfg.GRPCAddr), slog.Duration("reminder_interval", a.cfg.ReminderInterval))

	var serveErr error
	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
		healthServer.Shutdown()
		shutdown(log, grpcServer, a.cfg.ShutdownTimeout)
	case err := <-errCh:
		if err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			log.Error("grpc server stopped with error", slog.Any("err", err))
			serveErr = err
		}
		stop()
	}
	<-schedDone
	return serveErr
}

func defaultRequestTimeoutInterceptor(timeout time.Duration) grpc.UnaryServerInterceptor {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if _, ok := ctx.Deadline(); ok {
			return handler(ctx, req)
		}
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		return handler(ctx, req)
	}
}

func shutdown(log *slog.Logger, s *grpc.Server, timeout time.Duration) {
	log.Info("shutting down grpc server", slog.Duration("timeout", timeout))

	done := make(chan struct{})
	go func() {
		s.GracefulStop()
		close(done)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-done:
		log.Info("grpc server stopped")
	case <-timer.C:
		log.Warn("grpc graceful shutdown timed out; forcing stop")
		s.Stop()
	}
}
