package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/joho/godotenv/autoload"
	"github.com/spf13/cobra"

	"composewatch/internal/app"
	"composewatch/internal/config"
	"composewatch/internal/docker"
	"composewatch/internal/logging"
)

const (
	exitOK         = 0
	exitConnection = 1
	exitUsage      = 2
)

var errUsage = errors.New("usage")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:])
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string) int {
	var flags *config.Flags
	root := &cobra.Command{
		Use:           "composewatch",
		Short:         "Watch the containers of a Docker Compose project and alert on failures",
		SilenceErrors: true,
		SilenceUsage:  true,
		Args: func(cmd *cobra.Command, args []string) error {
			if err := cobra.NoArgs(cmd, args); err != nil {
				return fmt.Errorf("%w: %w", errUsage, err)
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), flags)
		},
	}
	flags = config.BindFlags(root.Flags())
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return fmt.Errorf("%w: %w", errUsage, err)
	})
	root.SetArgs(args)

	err := root.ExecuteContext(ctx)
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, errUsage), errors.Is(err, config.ErrInvalid):
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return exitUsage
	default:
		// Already logged by serve.
		return exitConnection
	}
}

func serve(ctx context.Context, flags *config.Flags) error {
	cfg, err := config.Load(flags)
	if err != nil {
		if !errors.Is(err, config.ErrInvalid) {
			err = fmt.Errorf("%w: %w", config.ErrInvalid, err)
		}
		return err
	}
	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat, os.Stderr)
	if err != nil {
		return fmt.Errorf("%w: %w", config.ErrInvalid, err)
	}
	logger.Info("starting composewatch", "project", cfg.ComposeName, "docker", cfg.DockerSocket, "journal", cfg.Journal)

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		if ctx.Err() != nil {
			logger.Info("interrupted during startup")
			return nil
		}
		if errors.Is(err, docker.ErrConnection) {
			logger.Error("cannot connect to docker", "err", err)
		} else {
			logger.Error("init failed", "err", err)
		}
		return err
	}
	if err := a.Run(ctx); err != nil {
		logger.Error("shutdown with error", "err", err)
		return err
	}
	logger.Info("composewatch stopped")
	return nil
}
