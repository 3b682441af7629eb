package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	omnilocation "github.com/omnilocation/omnilocation"
	"github.com/omnilocation/omnilocation/internal/config"
	"github.com/omnilocation/omnilocation/internal/gpx"
	"github.com/omnilocation/omnilocation/internal/trackdir"
	"github.com/omnilocation/omnilocation/internal/web"
)

func newServeCmd() *cobra.Command {
	var (
		listenAddr   string
		scanInterval time.Duration
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server with periodic device rescans",
		RunE: func(cmd *cobra.Command, args []string) error {
			if listenAddr == "" {
				listenAddr = config.String(config.EnvListenAddr, ":5005")
			}
			if scanInterval <= 0 {
				scanInterval = config.Duration(config.EnvScanInterval, 30*time.Second)
			}
			return runServe(listenAddr, scanInterval)
		},
	}
	cmd.Flags().StringVar(&listenAddr, "listen", "", "listen address, overrides "+config.EnvListenAddr)
	cmd.Flags().DurationVar(&scanInterval, "scan-interval", 0, "device rescan interval, overrides "+config.EnvScanInterval)
	return cmd
}

func runServe(listenAddr string, scanInterval time.Duration) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, sim, store, err := buildCore()
	if err != nil {
		return err
	}
	defer store.Close()

	tracks, err := trackdir.New(config.String(config.EnvTrackDir, "uploads"))
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:           listenAddr,
		Handler:        web.NewServer(pool, sim, tracks, gpx.Parser{}).Handler(),
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   30 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	if _, err := pool.Scan(ctx); err != nil {
		log.Warn().Err(err).Msg("initial device scan failed")
	}

	group := omnilocation.NewSafeGroup(ctx)
	group.Go(func() error {
		log.Info().Str("addr", listenAddr).Msg("starting omnilocation server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	group.GoSafe("device rescan", func(ctx context.Context) error {
		ticker := time.NewTicker(scanInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				if _, err := pool.Scan(ctx); err != nil {
					log.Warn().Err(err).Msg("periodic device scan failed")
				}
			}
		}
	})
	group.Go(func() error {
		<-group.Context().Done()
		log.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := sim.Stop(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("stop simulation on shutdown failed")
		}
		return srv.Shutdown(shutdownCtx)
	})
	return group.WaitOrInterrupt(15 * time.Second)
}
