package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"thingdrop/pkg/app"
	"thingdrop/pkg/config"
	"thingdrop/pkg/logger"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

func main() {
	if err := run(); err != nil {
		logger.L.Error("❌ server exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load Config
	cfgFile := pflag.String("config", "", "config file (default is ./.drop/config.yaml)")
	pflag.String("addr", "", "listen address (default :3000)")
	pflag.Parse()

	if err := viper.BindPFlag("server.addr", pflag.Lookup("addr")); err != nil {
		return err
	}
	if err := config.Load(*cfgFile); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	logger.Init(viper.GetString("log.level"), viper.GetString("log.format"))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Init Core Application
	application, err := app.NewApp(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize app: %w", err)
	}
	defer application.Close()

	// 3. Serve until signal
	srv, err := application.NewServer()
	if err != nil {
		return err
	}
	return srv.Run(ctx)
}
