package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	omnilocation "github.com/omnilocation/omnilocation"
	"github.com/omnilocation/omnilocation/internal/gpx"
)

func newPlayCmd() *cobra.Command {
	var (
		udids    []string
		loop     bool
		speed    float64
		duration time.Duration
	)
	cmd := &cobra.Command{
		Use:   "play <track.gpx>",
		Short: "Replay a GPX track to the selected devices until interrupted",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(udids) == 0 {
				return errors.New("at least one --udid is required")
			}
			return runPlay(args[0], udids, loop, speed, duration)
		},
	}
	cmd.Flags().StringSliceVar(&udids, "udid", nil, "device udid to include (repeatable)")
	cmd.Flags().BoolVar(&loop, "loop", false, "restart the track from the beginning on completion")
	cmd.Flags().Float64Var(&speed, "speed", 1.0, "playback speed multiplier")
	cmd.Flags().DurationVar(&duration, "duration", 0, "stretch the whole track over this wall-clock duration")
	return cmd
}

func runPlay(path string, udids []string, loop bool, speed float64, duration time.Duration) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	track, err := gpx.Parser{}.ParseFile(path)
	if err != nil {
		return err
	}

	pool, sim, store, err := buildCore()
	if err != nil {
		return err
	}
	defer store.Close()

	if _, err := pool.Scan(ctx); err != nil {
		return err
	}

	opts := omnilocation.PlayOptions{
		Loop:            loop,
		SpeedMultiplier: speed,
		TargetDuration:  duration,
	}
	if duration > 0 && track.TotalDuration > 0 {
		opts.SpeedMultiplier = track.TotalDuration / duration.Seconds()
		log.Info().Float64("speed", opts.SpeedMultiplier).Msg("speed recomputed from requested duration")
	}
	if err := sim.Start(ctx, track.Points, udids, opts); err != nil {
		return err
	}

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			// Interrupted: restore the real location before exiting.
			resetCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			return sim.Reset(resetCtx)
		case <-ticker.C:
			if !sim.Status().Running {
				log.Info().Msg("playback finished")
				resetCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
				defer cancel()
				return sim.Reset(resetCtx)
			}
		}
	}
}
