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

	"github.com/avolkov/chatline/internal/client"
	"github.com/avolkov/chatline/internal/config"
	"github.com/avolkov/chatline/internal/log"
)

// idleTimeout is how long the client waits for server traffic before its
// liveness check; expiry means "server is idle", not an error.
const idleTimeout = 60 * time.Second

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "chatcli [host port]",
		Short: "chatline terminal client",
		Long:  "Connects to a chatline server and multiplexes the prompt against server pushes. Type \"help\" at the prompt for the command list.",
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) != 0 && len(args) != 2 {
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
	cfg, path, err := config.Load(nil, configPath)
	if err != nil {
		return fmt.Errorf("load config from %s: %w", path, err)
	}
	if len(args) == 2 {
		port, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid port %q", args[1])
		}
		cfg.Host = args[0]
		cfg.Port = port
	}

	logger := log.New(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cl := client.New(cfg.Addr(), idleTimeout, logger)
	logger.Info().Str("addr", cfg.Addr()).Str("conn_id", cl.ID()).Msg("connecting")
	if err := cl.Run(ctx); err != nil {
		logger.Error().Err(err).Msg("client exited with error")
		return err
	}
	fmt.Println("client stopping.")
	return nil
}
