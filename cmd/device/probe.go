package device

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/martinsuchenak/netpulse/internal/app"
	"github.com/martinsuchenak/netpulse/internal/config"
	"github.com/martinsuchenak/netpulse/internal/model"
	"github.com/martinsuchenak/netpulse/internal/probe"
	"github.com/paularlott/cli"
)

func ProbeCommand() *cli.Command {
	return &cli.Command{
		Name:        "probe",
		Usage:       "Check devices from this machine",
		Description: "Ping the listed devices (or one device by ID) and fall back to a TCP port check. Results are local and not sent to the API.",
		Arguments: []cli.Argument{
			&cli.StringArg{Name: "id"},
		},
		Flags: append(config.GetFlags(),
			&cli.StringFlag{Name: "search", Usage: "Only probe devices whose name or IP contains this text"},
			&cli.IntFlag{Name: "concurrency", Usage: "Probes in flight at once", DefaultValue: probe.DefaultConcurrency},
			&cli.StringFlag{Name: "probe-timeout", Usage: "Per-check timeout", DefaultValue: probe.DefaultTimeout.String()},
		),
		Run: func(ctx context.Context, cmd *cli.Command) error {
			timeout, err := time.ParseDuration(cmd.GetString("probe-timeout"))
			if err != nil {
				return fmt.Errorf("invalid probe-timeout: %w", err)
			}

			a, err := app.Load()
			if err != nil {
				return err
			}
			defer a.Close()

			var devices []model.Device
			if id := cmd.GetStringArg("id"); id != "" {
				d, err := a.Issuer.Get(ctx, id)
				if err != nil {
					return a.CheckAuth(err)
				}
				devices = []model.Device{*d}
			} else {
				reg := a.Registry()
				if err := reg.Refresh(ctx); err != nil {
					return a.CheckAuth(err)
				}
				devices = reg.Search(cmd.GetString("search"))
			}
			if len(devices) == 0 {
				fmt.Println("No devices found")
				return nil
			}

			results := a.Prober(probe.WithTimeout(timeout)).ProbeAll(ctx, devices, cmd.GetInt("concurrency"))
			writeProbeResults(os.Stdout, results)
			return nil
		},
	}
}

func writeProbeResults(w io.Writer, results []probe.Result) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tIP ADDRESS\tREACHABLE\tMETHOD\tRTT\tMAC\tSERVICES")
	for _, r := range results {
		reach := "no"
		if r.Reachable {
			reach = "yes"
		}
		if r.Err != nil {
			reach = "error: " + r.Err.Error()
		}
		rtt := "-"
		if r.RTT > 0 {
			rtt = r.RTT.Round(time.Microsecond).String()
		}
		mac := r.MAC
		if mac == "" {
			mac = "-"
		}
		services := strings.Join(r.Services(), ",")
		if services == "" {
			services = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n", r.Name, r.IP, reach, r.Method, rtt, mac, services)
	}
	tw.Flush()
}
