package main

import (
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/xiaobodu/SharpRUDP/internal/discovery"
)

func discoverCmd() *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Scan the local network for sharprudp servers",
		RunE: func(cmd *cobra.Command, args []string) error {
			found, err := discovery.Scan(timeout)
			if err != nil {
				return err
			}
			if len(found) == 0 {
				pterm.Warning.Printfln("no servers found within %s", timeout)
				return nil
			}
			for _, a := range found {
				pterm.Success.Printfln("found %s", a.String())
			}
			return nil
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 3*time.Second, "how long to scan")
	return cmd
}
