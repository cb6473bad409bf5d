package main

import (
	"bufio"
	"os"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	rudp "github.com/xiaobodu/SharpRUDP"
)

func connectCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "connect",
		Short: "Connect to a server and send each stdin line as a DAT packet",
		RunE: func(cmd *cobra.Command, args []string) error {
			events := rudp.Events{
				OnConnected: func(peer rudp.Peer) {
					pterm.Success.Printfln("connected to %s", peer.String())
				},
				OnPacketReceived: func(p *rudp.Packet) {
					pterm.DefaultBasicText.Printfln("%s: %s", p.Type.String(), string(p.Data))
				},
			}

			conn, err := rudp.Connect(addr, rudp.DefaultConfig(), events)
			if err != nil {
				return err
			}
			defer conn.Disconnect()

			scanner := bufio.NewScanner(os.Stdin)
			for scanner.Scan() {
				if err := conn.SendText(scanner.Text()); err != nil {
					pterm.Error.Printfln("send failed: %s", err)
				}
			}
			return scanner.Err()
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:9999", "server address")
	return cmd
}
