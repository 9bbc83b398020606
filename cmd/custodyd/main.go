package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/arkade-os/custodyd/internal/config"
	httpservice "github.com/arkade-os/custodyd/internal/interface/http"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

// Version will be set during build time
var Version string

func main() {
	app := cli.NewApp()
	app.Version = Version
	app.Name = "custodyd"
	app.Usage = "custody ledger, checkout and fraction auctions for tokenized items"
	app.Flags = config.Flags
	app.Action = mainAction
	app.Commands = append(
		app.Commands,
		offerCommand,
		tokenCommand,
		vaultCommand,
		custodianCommand,
		auctionCommand,
		adminCommand,
		balanceCommand,
	)

	if err := app.Run(os.Args); err != nil {
		fmt.Println(fmt.Errorf("error: %v", err))
		os.Exit(1)
	}
}

func mainAction(ctx *cli.Context) error {
	cfg, err := config.LoadConfig(ctx)
	if err != nil {
		return fmt.Errorf("invalid config: %s", err)
	}

	log.SetLevel(log.Level(cfg.LogLevel))

	svc, err := httpservice.NewService(httpservice.Config{Port: cfg.Port}, cfg)
	if err != nil {
		return err
	}

	log.Infof("custodyd config: %s", cfg)

	log.Info("starting service...")
	if err := svc.Start(); err != nil {
		return err
	}
	log.Infof("custodyd listens on: %d", cfg.Port)

	log.RegisterExitHandler(svc.Stop)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(
		sigChan, syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT, syscall.SIGHUP, os.Interrupt,
	)
	<-sigChan

	log.Info("shutting down service...")
	log.Exit(0)

	return nil
}
