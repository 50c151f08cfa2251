package main

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"storefront/pkg/infrastructure/auth"
	"storefront/pkg/infrastructure/scheduler"
)

func migrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "apply database migrations (mysql) or create indexes (mongo)",
		Action: func(c *cli.Context) error {
			cfg, err := parseEnv()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(c.Context, time.Minute)
			defer cancel()
			return migrateStorage(ctx, cfg)
		},
	}
}

func reconcileCommand() *cli.Command {
	return &cli.Command{
		Name:  "reconcile",
		Usage: "retry stock reconciliation of delivered orders once and exit",
		Action: func(c *cli.Context) error {
			cfg, err := parseEnv()
			if err != nil {
				return err
			}
			app, err := newApplication(c.Context, cfg)
			if err != nil {
				return err
			}
			defer app.close()

			completed, err := reconcileOnce(c.Context, app.orders, cfg.ReconcileTimeout)
			if err != nil {
				return err
			}
			log.WithField("orders", completed).Info("reconciliation finished")
			return nil
		},
	}
}

func reconcileOnce(ctx context.Context, reconciler scheduler.Reconciler, timeout time.Duration) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return reconciler.ReconcilePending(ctx)
}

func tokenCommand() *cli.Command {
	return &cli.Command{
		Name:  "token",
		Usage: "issue an access token for local testing",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "user", Required: true, Usage: "user id put into the userId claim"},
			&cli.StringFlag{Name: "role", Usage: "role claim, e.g. admin"},
			&cli.DurationFlag{Name: "ttl", Value: 24 * time.Hour},
		},
		Action: func(c *cli.Context) error {
			cfg, err := parseEnv()
			if err != nil {
				return err
			}
			token, err := auth.NewVerifier(cfg.JWTSecret).Issue(c.String("user"), c.String("role"), c.Duration("ttl"))
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(c.App.Writer, token)
			return err
		},
	}
}
