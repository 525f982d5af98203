package device

import (
	"context"
	"fmt"
	"os"

	"github.com/martinsuchenak/netpulse/internal/app"
	"github.com/martinsuchenak/netpulse/internal/config"
	"github.com/martinsuchenak/netpulse/internal/model"
	"github.com/paularlott/cli"
)

func UpdateCommand() *cli.Command {
	return &cli.Command{
		Name:        "update",
		Usage:       "Update a device",
		Description: "Change selected fields of an existing device",
		Arguments: []cli.Argument{
			&cli.StringArg{Name: "id", Required: true},
		},
		Flags: append(config.GetFlags(),
			&cli.StringFlag{Name: "name", Usage: "Device name"},
			&cli.StringFlag{Name: "ip", Usage: "IPv4 or IPv6 address"},
			&cli.StringFlag{Name: "type", Usage: "Device type (" + deviceTypeNames() + ")"},
			&cli.StringFlag{Name: "location", Usage: "Device location"},
			&cli.StringFlag{Name: "status", Usage: "Device status (online, offline, unknown)"},
		),
		Run: func(ctx context.Context, cmd *cli.Command) error {
			id := cmd.GetStringArg("id")
			upd := buildUpdate(
				cmd.GetString("name"),
				cmd.GetString("ip"),
				cmd.GetString("type"),
				cmd.GetString("location"),
				cmd.GetString("status"),
			)

			a, err := app.Load()
			if err != nil {
				return err
			}
			defer a.Close()

			d, err := a.Issuer.Update(ctx, id, upd)
			if err != nil {
				return a.CheckAuth(err)
			}

			fmt.Println("Device updated")
			writeDevice(os.Stdout, d)
			return nil
		},
	}
}

// buildUpdate turns non-empty flag values into a partial update.
func buildUpdate(name, ip, deviceType, location, status string) model.DeviceUpdate {
	var upd model.DeviceUpdate
	if name != "" {
		upd.Name = &name
	}
	if ip != "" {
		upd.IPAddress = &ip
	}
	if deviceType != "" {
		t := model.DeviceType(deviceType)
		upd.DeviceType = &t
	}
	if location != "" {
		upd.Location = &location
	}
	if status != "" {
		s := model.DeviceStatus(status)
		upd.Status = &s
	}
	return upd
}
