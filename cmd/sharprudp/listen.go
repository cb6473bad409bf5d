package main

import (
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	rudp "github.com/xiaobodu/SharpRUDP"
	"github.com/xiaobodu/SharpRUDP/internal/diag"
	"github.com/xiaobodu/SharpRUDP/internal/discovery"
)

func listenCmd() *cobra.Command {
	var addr, configPath string
	var advertise bool

	cmd := &cobra.Command{
		Use:   "listen",
		Short: "Run a server and print connect/disconnect/packet events",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := rudp.LoadConfig(configPath)
			if err != nil {
				return err
			}

			events := rudp.Events{
				OnClientConnect: func(peer rudp.Peer) {
					pterm.Success.Printfln("client connected: %s", peer.String())
				},
				OnClientDisconnect: func(peer rudp.Peer) {
					pterm.Warning.Printfln("client disconnected: %s", peer.String())
				},
				OnPacketReceived: func(p *rudp.Packet) {
					pterm.DefaultBasicText.Printfln("[%s] %s: %s", p.Src.String(), p.Type.String(), string(p.Data))
				},
			}

			conn, err := rudp.Listen(addr, cfg, events)
			if err != nil {
				return err
			}
			defer conn.Disconnect()

			var server *diag.Server
			if cfg.DiagAddr != "" {
				server = diag.New(cfg.DiagAddr, conn)
				server.Start()
				defer server.Stop()
				pterm.Info.Printfln("diagnostics server on %s", cfg.DiagAddr)
			}

			if advertise {
				_, portStr, splitErr := net.SplitHostPort(addr)
				if splitErr == nil {
					if port, convErr := strconv.Atoi(portStr); convErr == nil {
						stop := make(chan struct{})
						defer close(stop)
						go discovery.Advertise(port, time.Second, stop)
					}
				}
			}

			pterm.Info.Printfln("listening on %s", addr)
			waitForSignal()
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", ":9999", "address to bind")
	cmd.Flags().StringVar(&configPath, "config", "", "path to a TOML config file")
	cmd.Flags().BoolVar(&advertise, "advertise", false, "broadcast this server's presence via LAN discovery")
	return cmd
}

func waitForSignal() {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	<-sigs
}
