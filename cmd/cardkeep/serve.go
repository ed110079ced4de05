package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"cardkeep/internal/platform/config"
	"cardkeep/internal/platform/httpserver"
	"cardkeep/internal/platform/logger"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP gateway",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		log := logger.New(cfg.Log.Level)

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx, cfg, log)
		if err != nil {
			return err
		}
		defer a.Close()

		log.Info("starting cardkeep", "addr", cfg.Server.Addr, "storage", cfg.Storage.Backend)
		srv := httpserver.New(cfg.Server.Addr, a.Router(), cfg.Server.ReadHeaderTimeout)
		return httpserver.Run(ctx, srv, cfg.Server.ShutdownTimeout, log)
	},
}
