package device

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/martinsuchenak/netpulse/internal/app"
	"github.com/martinsuchenak/netpulse/internal/config"
	"github.com/martinsuchenak/netpulse/internal/transport"
	"github.com/paularlott/cli"
)

const clearScreen = "\033[H\033[2J"

func WatchCommand() *cli.Command {
	return &cli.Command{
		Name:        "watch",
		Usage:       "Live device dashboard",
		Description: "Show the device list and keep it current from the push channel until interrupted",
		Flags: append(config.GetFlags(),
			&cli.StringFlag{Name: "search", Usage: "Only show devices whose name or IP contains this text"},
		),
		Run: func(ctx context.Context, cmd *cli.Command) error {
			a, err := app.Load()
			if err != nil {
				return err
			}
			defer a.Close()

			search := cmd.GetString("search")
			return a.Watch(ctx, app.WatchOptions{Search: search, RefreshOnReconnect: true}, func(v app.View) {
				fmt.Print(clearScreen)
				writeView(os.Stdout, v, search, time.Now())
			})
		},
	}
}

func indicator(s transport.State) string {
	switch s {
	case transport.StateOpen:
		return "● live"
	case transport.StateConnecting:
		return "◌ connecting"
	default:
		return "○ disconnected"
	}
}

func writeView(w io.Writer, v app.View, search string, now time.Time) {
	fmt.Fprintf(w, "NetPulse devices  %s  %s\n", indicator(v.State), now.Format("15:04:05"))
	if search != "" {
		fmt.Fprintf(w, "Filter: %q (%d of %d)\n", search, len(v.Devices), v.Total)
	} else {
		fmt.Fprintf(w, "%d devices\n", v.Total)
	}
	if v.DecodeFailures > 0 {
		fmt.Fprintf(w, "Dropped updates: %d\n", v.DecodeFailures)
	}
	fmt.Fprintln(w)
	writeDevices(w, v.Devices)
}
