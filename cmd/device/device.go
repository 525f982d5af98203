package device

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/martinsuchenak/netpulse/internal/model"
	"github.com/paularlott/cli"
)

func Commands() []*cli.Command {
	return []*cli.Command{
		ListCommand(),
		SearchCommand(),
		GetCommand(),
		StatusCommand(),
		AddCommand(),
		UpdateCommand(),
		DeleteCommand(),
		WatchCommand(),
		ProbeCommand(),
	}
}

func deviceTypeNames() string {
	names := make([]string, len(model.DeviceTypes))
	for i, t := range model.DeviceTypes {
		names[i] = string(t)
	}
	return strings.Join(names, ", ")
}

func lastSeen(t *time.Time) string {
	if t == nil {
		return "never"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

func writeDevices(w io.Writer, devices []model.Device) {
	if len(devices) == 0 {
		fmt.Fprintln(w, "No devices found")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tIP ADDRESS\tTYPE\tSTATUS\tLAST SEEN")
	for _, d := range devices {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			d.ID, d.Name, d.IPAddress, d.DeviceType, d.Status, lastSeen(d.LastSeen))
	}
	tw.Flush()
}

func writeDevice(w io.Writer, d *model.Device) {
	fmt.Fprintf(w, "ID:           %s\n", d.ID)
	fmt.Fprintf(w, "Name:         %s\n", d.Name)
	fmt.Fprintf(w, "IP Address:   %s\n", d.IPAddress)
	if d.MACAddress != "" {
		fmt.Fprintf(w, "MAC Address:  %s\n", d.MACAddress)
	}
	fmt.Fprintf(w, "Type:         %s\n", d.DeviceType)
	fmt.Fprintf(w, "Status:       %s\n", d.Status)
	fmt.Fprintf(w, "Last Seen:    %s\n", lastSeen(d.LastSeen))
	if d.Location != "" {
		fmt.Fprintf(w, "Location:     %s\n", d.Location)
	}
	if !d.CreatedAt.IsZero() {
		fmt.Fprintf(w, "Created:      %s\n", d.CreatedAt.Format(time.RFC3339))
	}
	if !d.UpdatedAt.IsZero() {
		fmt.Fprintf(w, "Updated:      %s\n", d.UpdatedAt.Format(time.RFC3339))
	}
}
