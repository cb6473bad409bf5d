package main

import (
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	rudp "github.com/xiaobodu/SharpRUDP"
)

func sendCmd() *cobra.Command {
	var addr, text string

	cmd := &cobra.Command{
		Use:   "send",
		Short: "One-shot: connect, send a single DAT packet, disconnect",
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, err := rudp.Connect(addr, rudp.DefaultConfig(), rudp.Events{})
			if err != nil {
				return err
			}
			defer conn.Disconnect()

			// Give the handshake a moment to complete before sending.
			time.Sleep(200 * time.Millisecond)

			if err := conn.SendText(text); err != nil {
				return err
			}
			// Let the send loop transmit the queued packet before the
			// deferred Disconnect stops it.
			time.Sleep(200 * time.Millisecond)
			pterm.Success.Printfln("sent %d bytes to %s", len(text), addr)
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:9999", "server address")
	cmd.Flags().StringVar(&text, "text", "", "text payload to send")
	return cmd
}
