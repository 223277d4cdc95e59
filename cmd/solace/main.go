// Package main provides the CLI entry point for Solace, a supportive
// Telegram companion for traders backed by the GigaChat API.
//
// Start the bot:
//
//	solace serve --config solace.yaml
//
// Configuration can reference environment variables:
//
//   - TG_BOT_TOKEN: Telegram bot token
//   - GIGACHAT_CLIENT_ID / GIGACHAT_CLIENT_SECRET: GigaChat credentials
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/solacebot/solace/internal/config"
	"github.com/solacebot/solace/internal/gateway"
)

// version is set at build time via -ldflags.
var version = "dev"

// shutdownGrace bounds how long shutdown waits for in-flight work.
const shutdownGrace = 15 * time.Second

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "solace",
		Short: "Supportive Telegram companion for traders",
		Long: "Solace connects a Telegram bot to the GigaChat completion API,\n" +
			"keeps per-user conversation history, and gently re-engages users\n" +
			"who go silent.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newServeCmd())
	root.AddCommand(newVersionCmd())
	return root
}

func newServeCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the bot until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(configPath)
		},
	}

	defaultConfig := os.Getenv("SOLACE_CONFIG")
	if defaultConfig == "" {
		defaultConfig = "solace.yaml"
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfig, "path to configuration file")

	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("solace %s\n", version)
		},
	}
}

func runServe(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := newLogger(cfg.Logging)
	slog.SetDefault(logger)

	srv, err := gateway.New(cfg, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := srv.Start(ctx); err != nil {
		return err
	}
	logger.Info("solace running", "version", version)

	<-ctx.Done()
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	return srv.Stop(shutdownCtx)
}

func newLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.New(handler)
}
