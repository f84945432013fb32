package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"wabridge/internal/config"
	"wabridge/internal/constants"
	"wabridge/internal/logger"
	"wabridge/pkg/logging"
)

var (
	configFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   constants.ServiceName,
		Short: "WhatsApp bridge service",
		Long:  "Bridge service tracks the chat session state and forwards eligible messages downstream",
		RunE:  serveCmd().RunE,
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Path to config file (required)")

	rootCmd.AddCommand(serveCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the bridge service",
		RunE: func(cmd *cobra.Command, args []string) error {
			earlyLog := logging.NewEarlyLog()

			if err := godotenv.Load(); err != nil {
				earlyLog.Info("No .env file found, using environment variables")
			}

			if configFile == "" {
				configFile = os.Getenv("CONFIG_FILE")
				if configFile == "" {
					earlyLog.Error("Config file is required. Use --config flag or CONFIG_FILE environment variable")
					return fmt.Errorf("config file is required")
				}
			}

			cfg, err := config.Load(configFile)
			if err != nil {
				earlyLog.Error("Failed to load config: %v", err)
				return err
			}

			log, err := logger.New(cfg.Logging)
			if err != nil {
				earlyLog.Error("Failed to init logger: %v", err)
				return err
			}
			defer log.Sync()

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			log.InfowCtx(ctx, "Starting bridge service")

			app := NewApp(cfg, log)
			if err := app.Initialize(ctx); err != nil {
				log.ErrorwCtx(ctx, "Failed to initialize application", "error", err)
				return err
			}

			log.InfowCtx(ctx, "Service running")
			runErr := app.Run(ctx)

			if err := app.Shutdown(context.Background()); err != nil {
				log.ErrorwCtx(ctx, "Shutdown failed", "error", err)
			}

			if runErr != nil && runErr != context.Canceled {
				log.ErrorwCtx(ctx, "Service stopped with error", "error", runErr)
				return runErr
			}
			log.InfowCtx(ctx, "Service shutdown complete")
			return nil
		},
	}
}
