package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

func newDevicesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "Scan for connected devices and list them",
		RunE: func(cmd *cobra.Command, args []string) error {
			pool, _, store, err := buildCore()
			if err != nil {
				return err
			}
			defer store.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			devices, err := pool.Scan(ctx)
			if err != nil {
				return err
			}
			if len(devices) == 0 {
				fmt.Println("no devices found")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "UDID\tNAME\tCONNECTION\tCONNECTED")
			for _, d := range devices {
				fmt.Fprintf(w, "%s\t%s\t%s\t%v\n", d.UDID(), d.DisplayName(), d.Kind(), d.Connected())
			}
			return w.Flush()
		},
	}
}
