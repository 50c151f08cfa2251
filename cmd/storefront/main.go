package main

import (
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

func main() {
	log.SetFormatter(&log.JSONFormatter{})

	app := &cli.App{
		Name:  "storefront",
		Usage: "multi-tenant shop backend: catalog, orders and stock reconciliation",
		Commands: []*cli.Command{
			serviceCommand(),
			migrateCommand(),
			reconcileCommand(),
			tokenCommand(),
		},
		DefaultCommand: "service",
	}

	if err := app.Run(os.Args); err != nil {
		log.WithError(err).Fatal("storefront failed")
	}
}
