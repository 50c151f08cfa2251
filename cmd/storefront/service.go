package main

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"storefront/pkg/infrastructure/auth"
	"storefront/pkg/infrastructure/scheduler"
	"storefront/pkg/infrastructure/transport"
)

const shutdownTimeout = 30 * time.Second

func serviceCommand() *cli.Command {
	return &cli.Command{
		Name:  "service",
		Usage: "serve the REST API, the gRPC health endpoint and the reconciliation sweep",
		Action: func(c *cli.Context) error {
			cfg, err := parseEnv()
			if err != nil {
				return err
			}
			return runService(c.Context, cfg)
		},
	}
}

func runService(ctx context.Context, cfg *config) error {
	app, err := newApplication(ctx, cfg)
	if err != nil {
		return err
	}
	defer app.close()

	sweep, err := scheduler.New(app.orders, cfg.ReconcileSchedule, cfg.ReconcileTimeout)
	if err != nil {
		return err
	}

	router := transport.Router(transport.Services{
		Products:      app.products,
		Orders:        app.orders,
		Carts:         app.carts,
		Notifications: app.notifications,
	}, auth.NewVerifier(cfg.JWTSecret), cfg.IOTimeout)
	restServer := &http.Server{
		Addr:              cfg.ServeRESTAddress,
		Handler:           router,
		ReadHeaderTimeout: cfg.IOTimeout,
	}

	healthServer := health.NewServer()
	grpcServer := grpc.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)

	grpcListener, err := net.Listen("tcp", cfg.ServeGRPCAddress)
	if err != nil {
		return errors.Wrapf(err, "failed to listen on %s", cfg.ServeGRPCAddress)
	}

	killSignalChan := getKillSignalChan()
	defer signal.Stop(killSignalChan)
	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		log.WithField("address", cfg.ServeRESTAddress).Info("starting REST server")
		if err := restServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return errors.Wrap(err, "REST server failed")
		}
		return nil
	})
	group.Go(func() error {
		log.WithField("address", cfg.ServeGRPCAddress).Info("starting gRPC health server")
		healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
		return errors.Wrap(grpcServer.Serve(grpcListener), "gRPC server failed")
	})

	sweep.Start()
	log.WithField("schedule", cfg.ReconcileSchedule).Info("reconciliation sweep scheduled")

	group.Go(func() error {
		waitForKillSignalChan(groupCtx, killSignalChan)

		healthServer.Shutdown()
		sweep.Stop()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err := restServer.Shutdown(shutdownCtx)
		grpcServer.GracefulStop()
		return errors.Wrap(err, "failed to shut down REST server")
	})

	return group.Wait()
}

func getKillSignalChan() chan os.Signal {
	osKillSignalChan := make(chan os.Signal, 1)
	signal.Notify(osKillSignalChan, os.Interrupt, syscall.SIGTERM)
	return osKillSignalChan
}

// waitForKillSignalChan returns on SIGINT/SIGTERM or once ctx is done.
func waitForKillSignalChan(ctx context.Context, killSignalChan <-chan os.Signal) {
	select {
	case <-ctx.Done():
	case killSignal := <-killSignalChan:
		switch killSignal {
		case os.Interrupt:
			log.Info("got SIGINT...")
		case syscall.SIGTERM:
			log.Info("got SIGTERM...")
		}
	}
}
