package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/martinsuchenak/netpulse/cmd/auth"
	"github.com/martinsuchenak/netpulse/cmd/device"
	"github.com/martinsuchenak/netpulse/cmd/mockserver"
	"github.com/martinsuchenak/netpulse/internal/client"
	"github.com/paularlott/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	commands := auth.Commands()
	commands = append(commands,
		&cli.Command{
			Name:        "device",
			Usage:       "Manage devices",
			Description: "List, inspect, change and watch devices in the registry",
			Commands:    device.Commands(),
		},
		mockserver.Command(),
	)

	root := &cli.Command{
		Name:        "netpulse",
		Usage:       "NetPulse device registry client",
		Description: "Log in to a NetPulse API, manage devices and follow their status live",
		Commands:    commands,
	}

	if err := root.Execute(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		if client.IsAuthError(err) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}
