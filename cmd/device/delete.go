package device

import (
	"context"
	"fmt"

	"github.com/martinsuchenak/netpulse/internal/app"
	"github.com/martinsuchenak/netpulse/internal/config"
	"github.com/paularlott/cli"
)

func DeleteCommand() *cli.Command {
	return &cli.Command{
		Name:        "delete",
		Usage:       "Delete a device",
		Description: "Delete a device from the registry",
		Arguments: []cli.Argument{
			&cli.StringArg{Name: "id", Required: true},
		},
		Flags: config.GetFlags(),
		Run: func(ctx context.Context, cmd *cli.Command) error {
			id := cmd.GetStringArg("id")

			a, err := app.Load()
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.Issuer.Delete(ctx, id); err != nil {
				return a.CheckAuth(err)
			}

			fmt.Println("Device deleted")
			return nil
		},
	}
}
