package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/avolkov/chatline/internal/app"
	"github.com/avolkov/chatline/internal/config"
	"github.com/avolkov/chatline/internal/log"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "chatsrv [host port timeout-seconds]",
		Short: "chatline chat server",
		Long:  "Runs the chatline server. Positional arguments override the config file; without them the built-in defaults apply.",
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) != 0 && len(args) != 3 {
				return fmt.Errorf("usage: %s", cmd.Use)
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configPath, args)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "path to config file")
	return cmd
}

func run(configPath string, args []string) error {
	bootstrapLog := log.New("info")
	cfg, path, err := config.Load(bootstrapLog, configPath)
	if err != nil {
		return fmt.Errorf("load config from %s: %w", path, err)
	}

	if len(args) == 3 {
		port, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid port %q", args[1])
		}
		timeout, err := strconv.Atoi(args[2])
		if err != nil || timeout <= 0 {
			return fmt.Errorf("invalid timeout %q", args[2])
		}
		cfg.Host = args[0]
		cfg.Port = port
		cfg.PollTimeout = time.Duration(timeout) * time.Second
	}

	logger := log.New(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(cfg, logger)
	if err != nil {
		return err
	}

	logger.Info().Str("addr", cfg.Addr()).Msg("starting chatline server")
	if err := application.Run(ctx); err != nil {
		logger.Error().Err(err).Msg("server exited with error")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}
