package device

import (
	"context"
	"fmt"

	"github.com/martinsuchenak/netpulse/internal/app"
	"github.com/martinsuchenak/netpulse/internal/config"
	"github.com/martinsuchenak/netpulse/internal/model"
	"github.com/paularlott/cli"
)

func AddCommand() *cli.Command {
	return &cli.Command{
		Name:        "add",
		Usage:       "Add a new device",
		Description: "Register a new device with the API",
		Flags: append(config.GetFlags(),
			&cli.StringFlag{Name: "name", Usage: "Device name", Required: true},
			&cli.StringFlag{Name: "ip", Usage: "IPv4 or IPv6 address", Required: true},
			&cli.StringFlag{Name: "type", Usage: "Device type (" + deviceTypeNames() + ")", DefaultValue: string(model.DefaultDeviceType)},
			&cli.StringFlag{Name: "location", Usage: "Device location"},
		),
		Run: func(ctx context.Context, cmd *cli.Command) error {
			a, err := app.Load()
			if err != nil {
				return err
			}
			defer a.Close()

			d, err := a.Issuer.Create(ctx, model.DeviceCreate{
				Name:       cmd.GetString("name"),
				IPAddress:  cmd.GetString("ip"),
				DeviceType: model.DeviceType(cmd.GetString("type")),
				Location:   cmd.GetString("location"),
			})
			if err != nil {
				return a.CheckAuth(err)
			}

			fmt.Printf("Device created: %s (ID: %s)\n", d.Name, d.ID)
			return nil
		},
	}
}
