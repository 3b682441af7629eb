package main

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/omnilocation/omnilocation/internal/env"
)

var rootCmd = &cobra.Command{
	Use:   "omnilocation",
	Short: "Replay GPS tracks to a pool of connected mobile devices",
	Long: `omnilocation discovers iOS and Android devices, replays a recorded GPX
track to all selected devices in lock-step with jitter and timing control,
and serves an HTTP API for scanning, renaming, track management and
playback control.`,
}

func init() {
	output := zerolog.ConsoleWriter{Out: os.Stderr}
	log.Logger = zerolog.New(output).With().Timestamp().Logger()
	rootCmd.AddCommand(
		newServeCmd(),
		newDevicesCmd(),
		newPlayCmd(),
	)
	_ = env.Ensure()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal().Err(err).Msg("omnilocation command failed")
	}
}
