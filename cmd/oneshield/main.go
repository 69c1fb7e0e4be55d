package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/oneone404/One-Shield-sub000/internal/config"
	"github.com/oneone404/One-Shield-sub000/internal/logging"
	"github.com/oneone404/One-Shield-sub000/internal/server"
	"github.com/oneone404/One-Shield-sub000/internal/store"
)

// Version information (set at build time with -ldflags)
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

var rootCmd = &cobra.Command{
	Use:     "oneshield",
	Short:   "One-Shield fleet control plane",
	Long:    `Multi-tenant control plane for One-Shield endpoint agents: enrollment, heartbeats, policy distribution, incident intake, and reporting.`,
	Version: Version,
	Run: func(cmd *cobra.Command, args []string) {
		runServer()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("One-Shield %s\n", Version)
		if BuildTime != "unknown" {
			fmt.Printf("Built: %s\n", BuildTime)
		}
		if GitCommit != "unknown" {
			fmt.Printf("Commit: %s\n", GitCommit)
		}
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServer() {
	// Baseline logger for early startup messages.
	logging.Init(logging.Config{
		Format:    "auto",
		Level:     "info",
		Component: "oneshield",
	})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Re-initialize with configuration-driven settings.
	logging.Init(logging.Config{
		Format:    cfg.LogFormat,
		Level:     cfg.LogLevel,
		Component: "oneshield",
	})

	if cfg.JWTSecretGenerated {
		log.Warn().Msg("JWT_SECRET not set; sessions will not survive a restart")
	}

	st, err := store.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Str("database", cfg.DatabaseURL).Msg("Failed to open database")
	}
	defer st.Close()

	log.Info().Str("version", Version).Str("environment", cfg.Environment).Msg("Starting One-Shield control plane")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// SIGHUP re-reads LOG_LEVEL so verbosity can change without a restart.
	reload := make(chan os.Signal, 1)
	signal.Notify(reload, syscall.SIGHUP)
	go func() {
		for range reload {
			level := os.Getenv("LOG_LEVEL")
			logging.SetLevel(level)
			log.Info().Str("level", level).Msg("Received SIGHUP, log level reloaded")
		}
	}()

	if err := server.New(cfg, st, Version).Run(ctx); err != nil {
		log.Fatal().Err(err).Msg("Server failed")
	}
	log.Info().Msg("Server stopped")
}
