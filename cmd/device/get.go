package device

import (
	"context"
	"fmt"
	"os"

	"github.com/martinsuchenak/netpulse/internal/app"
	"github.com/martinsuchenak/netpulse/internal/config"
	"github.com/paularlott/cli"
)

func GetCommand() *cli.Command {
	return &cli.Command{
		Name:        "get",
		Usage:       "Get a device",
		Description: "Get a device by ID",
		Arguments: []cli.Argument{
			&cli.StringArg{Name: "id", Required: true},
		},
		Flags: config.GetFlags(),
		Run: func(ctx context.Context, cmd *cli.Command) error {
			a, err := app.Load()
			if err != nil {
				return err
			}
			defer a.Close()

			d, err := a.Issuer.Get(ctx, cmd.GetStringArg("id"))
			if err != nil {
				return a.CheckAuth(err)
			}
			writeDevice(os.Stdout, d)
			return nil
		},
	}
}

func StatusCommand() *cli.Command {
	return &cli.Command{
		Name:        "status",
		Usage:       "Show a device's reported status",
		Description: "Fetch the status report the API keeps for a device",
		Arguments: []cli.Argument{
			&cli.StringArg{Name: "id", Required: true},
		},
		Flags: config.GetFlags(),
		Run: func(ctx context.Context, cmd *cli.Command) error {
			a, err := app.Load()
			if err != nil {
				return err
			}
			defer a.Close()

			st, err := a.Issuer.Status(ctx, cmd.GetStringArg("id"))
			if err != nil {
				return a.CheckAuth(err)
			}
			fmt.Printf("Device:       %s\n", st.DeviceID)
			fmt.Printf("IP Address:   %s\n", st.IPAddress)
			fmt.Printf("Status:       %s\n", st.Status)
			fmt.Printf("Last Seen:    %s\n", lastSeen(st.LastSeen))
			return nil
		},
	}
}
