package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ceotind/sharp-form-backend/internal/config"
	"github.com/ceotind/sharp-form-backend/internal/logging"
	"github.com/ceotind/sharp-form-backend/internal/router"
)

const shutdownTimeout = 15 * time.Second

func main() {
	if err := rootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "sharpform",
		Short:         "Form builder backend",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context())
		},
	}
	root.AddCommand(serveCmd(), sweepCmd())
	return root
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context())
		},
	}
}

func sweepCmd() *cobra.Command {
	var (
		owner string
		all   bool
	)
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Delete uploads older than the retention period and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if (owner == "") == !all {
				return errors.New("exactly one of --owner or --all is required")
			}
			cfg, log, closeLog, err := setup()
			if err != nil {
				return err
			}
			defer closeLog()

			ctx := log.WithContext(context.Background())
			a, err := build(ctx, cfg, log)
			if err != nil {
				log.Error().Err(err).Msg("startup failed")
				return err
			}
			defer a.Close()

			var n int
			if all {
				n, err = a.files.SweepAll(ctx)
			} else {
				n, err = a.files.Sweep(ctx, owner)
			}
			if err != nil {
				log.Error().Err(err).Msg("sweep failed")
				return err
			}
			log.Info().Int("deleted", n).Msg("sweep finished")
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %d file(s)\n", n)
			return nil
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "sweep a single owner's uploads")
	cmd.Flags().BoolVar(&all, "all", false, "sweep every owner's uploads")
	return cmd
}

func setup() (*config.Config, zerolog.Logger, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, zerolog.Nop(), nil, err
	}
	log, closeLog := logging.Setup(logging.Options{Level: cfg.LogLevel, GelfAddr: cfg.GelfAddr})
	return cfg, log, closeLog, nil
}

func serve(ctx context.Context) error {
	cfg, log, closeLog, err := setup()
	if err != nil {
		return err
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := build(log.WithContext(ctx), cfg, log)
	if err != nil {
		log.Error().Err(err).Msg("startup failed")
		return err
	}
	defer a.Close()

	srv := &http.Server{
		Addr: cfg.HTTPAddr,
		Handler: router.New(router.Deps{
			Logger:       log,
			Verifier:     a.tokens,
			Limiter:      a.limiter,
			UploadWindow: cfg.UploadRateWindow,
			CORSOrigins:  cfg.CORSOrigins,
			Health:       a.health,
			Auth:         a.auth,
			Forms:        a.forms,
			Responses:    a.responses,
			Files:        a.files,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).
			Str("store", cfg.StoreBackend).
			Str("blobs", cfg.BlobBackend).
			Bool("google", a.auth.GoogleEnabled()).
			Msg("sharpform server starting")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("server failed")
			return err
		}
	case <-ctx.Done():
		log.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("graceful shutdown failed")
			return err
		}
	}
	return nil
}
