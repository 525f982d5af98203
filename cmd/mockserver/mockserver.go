package mockserver

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/martinsuchenak/netpulse/internal/log"
	"github.com/martinsuchenak/netpulse/internal/mockapi"
	"github.com/martinsuchenak/netpulse/internal/model"
	"github.com/paularlott/cli"
)

var demoDevices = []model.DeviceCreate{
	{Name: "core-router", IPAddress: "10.0.0.1", DeviceType: model.DeviceTypeRouter, Location: "DC1 rack 1"},
	{Name: "edge-fw", IPAddress: "10.0.0.2", DeviceType: model.DeviceTypeFirewall, Location: "DC1 rack 1"},
	{Name: "dist-switch-a", IPAddress: "10.0.1.10", DeviceType: model.DeviceTypeSwitch, Location: "DC1 rack 2"},
	{Name: "app-server-01", IPAddress: "10.0.2.21", DeviceType: model.DeviceTypeServer, Location: "DC1 rack 4"},
	{Name: "lobby-ap", IPAddress: "192.168.10.5", DeviceType: model.DeviceTypeAccessPoint, Location: "HQ lobby"},
	{Name: "ups-monitor", IPAddress: "fd00::42", DeviceType: model.DeviceTypeOther, Location: "DC1 power"},
}

func Command() *cli.Command {
	return &cli.Command{
		Name:        "mock-server",
		Usage:       "Run an in-memory NetPulse API",
		Description: "Serve the REST API and push channel from memory, with demo data, for local development",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "addr", Usage: "Listen address", EnvVars: []string{"NETPULSE_MOCK_ADDR"}, DefaultValue: ":8000"},
			&cli.StringFlag{Name: "user", Usage: "Login email", EnvVars: []string{"NETPULSE_MOCK_USER"}, DefaultValue: "admin@netpulse.local"},
			&cli.StringFlag{Name: "password", Usage: "Login password", EnvVars: []string{"NETPULSE_MOCK_PASSWORD"}, DefaultValue: "admin"},
			&cli.StringFlag{Name: "secret", Usage: "Token signing secret (random when empty)", EnvVars: []string{"NETPULSE_MOCK_SECRET"}},
			&cli.StringFlag{Name: "token-ttl", Usage: "Access token lifetime", DefaultValue: mockapi.DefaultTokenTTL.String()},
			&cli.StringFlag{Name: "simulate", Usage: "Flip a random device status this often, 0 to disable", DefaultValue: "5s"},
			&cli.StringFlag{Name: "heartbeat", Usage: "Push heartbeat interval, 0 to disable", DefaultValue: "30s"},
			&cli.StringFlag{Name: "keepalive", Usage: "Bare ping frame interval, 0 to disable", DefaultValue: "10s"},
			&cli.IntFlag{Name: "seed", Usage: "Number of demo devices to create", DefaultValue: len(demoDevices)},
			&cli.StringFlag{Name: "log-level", Usage: "Log level", EnvVars: []string{"NETPULSE_LOG_LEVEL"}, DefaultValue: "info"},
			&cli.StringFlag{Name: "log-format", Usage: "Log format (console, json)", EnvVars: []string{"NETPULSE_LOG_FORMAT"}, DefaultValue: "console"},
		},
		Run: func(ctx context.Context, cmd *cli.Command) error {
			log.Configure(cmd.GetString("log-level"), cmd.GetString("log-format"))

			ttl, err := time.ParseDuration(cmd.GetString("token-ttl"))
			if err != nil {
				return fmt.Errorf("invalid token-ttl: %w", err)
			}
			simulate, err := time.ParseDuration(cmd.GetString("simulate"))
			if err != nil {
				return fmt.Errorf("invalid simulate: %w", err)
			}
			heartbeat, err := time.ParseDuration(cmd.GetString("heartbeat"))
			if err != nil {
				return fmt.Errorf("invalid heartbeat: %w", err)
			}
			keepalive, err := time.ParseDuration(cmd.GetString("keepalive"))
			if err != nil {
				return fmt.Errorf("invalid keepalive: %w", err)
			}

			opts := []mockapi.Option{
				mockapi.WithTokenTTL(ttl),
				mockapi.WithHeartbeat(heartbeat),
				mockapi.WithKeepalive(keepalive),
			}
			if secret := cmd.GetString("secret"); secret != "" {
				opts = append(opts, mockapi.WithSecret([]byte(secret)))
			}
			mock := mockapi.New(opts...)
			mock.AddUser(cmd.GetString("user"), cmd.GetString("password"), "NetPulse Admin")
			seedDevices(mock, cmd.GetInt("seed"))

			addr := cmd.GetString("addr")
			server := &http.Server{
				Addr:              addr,
				Handler:           mock,
				ReadHeaderTimeout: 10 * time.Second,
			}

			ctx, cancel := context.WithCancel(ctx)
			defer cancel()
			if simulate > 0 {
				go mock.Simulate(ctx, simulate)
			}

			go func() {
				<-ctx.Done()
				log.Info("Shutting down server...")
				mock.Close()
				shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
				defer done()
				server.Shutdown(shutdownCtx)
			}()

			log.Info("Starting NetPulse mock server", "addr", addr, "devices", len(mock.Devices()))
			log.Info("API available", "url", "http://localhost"+addr+mockapi.DefaultAPIPrefix)
			log.Info("Push channel available", "url", "ws://localhost"+addr+mockapi.DefaultWSPath)
			log.Info("Login with", "user", cmd.GetString("user"))

			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error("Server error", "error", err)
				return err
			}

			log.Info("Server stopped")
			return nil
		},
	}
}

func seedDevices(mock *mockapi.Server, n int) {
	for i := 0; i < n; i++ {
		in := demoDevices[i%len(demoDevices)]
		if i >= len(demoDevices) {
			in.Name = fmt.Sprintf("%s-%d", in.Name, i/len(demoDevices)+1)
		}
		mock.AddDeviceQuietly(in)
	}
}
