package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/browser"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"govgen/internal/web"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	var noBrowser bool
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the browser UI on localhost",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := opts.cfg
			if addr != "" {
				cfg.Server.ListenAddr = addr
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			a, err := openApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			log.Info().
				Str("provider", a.creds.Provider()).
				Str("storage", cfg.Storage.Driver).
				Bool("sealed_keys", cfg.Crypto.Enabled()).
				Msg("starting govgen")

			srv := web.New(web.Config{
				Addr:           cfg.Server.ListenAddr,
				RequestTimeout: cfg.Server.RequestTimeout,
				Session:        a.session,
				Models:         a.models(),
				Metrics:        a.metrics,
				Logger:         log.Logger,
			})

			errCh := make(chan error, 1)
			go func() {
				if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- fmt.Errorf("http server: %w", err)
				}
			}()

			url := "http://" + cfg.Server.ListenAddr
			fmt.Fprintf(cmd.OutOrStdout(), "govgen is running at %s\n", url)
			if cfg.Server.OpenBrowser && !noBrowser {
				if err := browser.OpenURL(url); err != nil {
					log.Warn().Err(err).Msg("failed to open browser")
				}
			}

			var runErr error
			select {
			case <-ctx.Done():
				log.Info().Msg("shutdown signal received")
			case runErr = <-errCh:
				log.Error().Err(runErr).Msg("runtime error")
			}

			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer shutdownCancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				log.Error().Err(err).Msg("failed to stop http server")
			}
			log.Info().Msg("stopped")
			return runErr
		},
	}

	cmd.Flags().BoolVar(&noBrowser, "no-browser", false, "do not open a browser window")
	cmd.Flags().StringVar(&addr, "addr", "", "listen address, overrides server.listen_addr")
	return cmd
}
