package device

import (
	"context"
	"os"

	"github.com/martinsuchenak/netpulse/internal/app"
	"github.com/martinsuchenak/netpulse/internal/config"
	"github.com/martinsuchenak/netpulse/internal/log"
	"github.com/paularlott/cli"
)

func ListCommand() *cli.Command {
	return &cli.Command{
		Name:        "list",
		Usage:       "List all devices",
		Description: "List all devices in the registry",
		Flags: append(config.GetFlags(),
			&cli.StringFlag{Name: "search", Usage: "Only show devices whose name or IP contains this text"},
		),
		Run: func(ctx context.Context, cmd *cli.Command) error {
			return listDevices(ctx, cmd.GetString("search"))
		},
	}
}

func SearchCommand() *cli.Command {
	return &cli.Command{
		Name:        "search",
		Usage:       "Search devices",
		Description: "Search devices by name or IP address, ignoring case",
		Arguments: []cli.Argument{
			&cli.StringArg{Name: "query", Required: true},
		},
		Flags: config.GetFlags(),
		Run: func(ctx context.Context, cmd *cli.Command) error {
			return listDevices(ctx, cmd.GetStringArg("query"))
		},
	}
}

func listDevices(ctx context.Context, term string) error {
	a, err := app.Load()
	if err != nil {
		return err
	}
	defer a.Close()

	reg := a.Registry()
	if err := reg.Refresh(ctx); err != nil {
		return a.CheckAuth(err)
	}

	devices := reg.Search(term)
	log.Debug("Listed devices", "count", len(devices), "total", reg.Len(), "search", term)
	writeDevices(os.Stdout, devices)
	return nil
}
