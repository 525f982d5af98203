package auth

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/martinsuchenak/netpulse/internal/app"
	"github.com/martinsuchenak/netpulse/internal/config"
	"github.com/martinsuchenak/netpulse/internal/log"
	"github.com/martinsuchenak/netpulse/internal/session"
	"github.com/paularlott/cli"
)

func Commands() []*cli.Command {
	return []*cli.Command{
		LoginCommand(),
		LogoutCommand(),
		WhoamiCommand(),
	}
}

func LoginCommand() *cli.Command {
	return &cli.Command{
		Name:        "login",
		Usage:       "Log in and store the session token",
		Description: "Exchange an email and password for an access token and keep it in the local data directory",
		Flags: append(config.GetFlags(),
			&cli.StringFlag{Name: "username", Usage: "Account email", EnvVars: []string{"NETPULSE_USERNAME"}},
			&cli.StringFlag{Name: "password", Usage: "Account password (prompted when empty)", EnvVars: []string{"NETPULSE_PASSWORD"}},
		),
		Run: func(ctx context.Context, cmd *cli.Command) error {
			a, err := app.Load()
			if err != nil {
				return err
			}
			defer a.Close()

			in := bufio.NewReader(os.Stdin)
			username := cmd.GetString("username")
			if username == "" {
				if username, err = prompt(in, "Email: "); err != nil {
					return err
				}
			}
			password := cmd.GetString("password")
			if password == "" {
				if password, err = prompt(in, "Password: "); err != nil {
					return err
				}
			}

			user, err := a.Session.Login(ctx, username, password)
			if err != nil {
				log.Debug("Login failed", "username", username, "error", err)
				return err
			}

			fmt.Printf("Logged in as %s\n", displayName(user.FullName, user.Email))
			return nil
		},
	}
}

func LogoutCommand() *cli.Command {
	return &cli.Command{
		Name:        "logout",
		Usage:       "Forget the stored session",
		Description: "Remove the stored access token",
		Flags:       config.GetFlags(),
		Run: func(ctx context.Context, cmd *cli.Command) error {
			a, err := app.Load()
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.Session.Logout(); err != nil {
				return err
			}
			fmt.Println("Logged out")
			return nil
		},
	}
}

func WhoamiCommand() *cli.Command {
	return &cli.Command{
		Name:        "whoami",
		Usage:       "Show the logged in user",
		Description: "Restore the stored session and print the account it belongs to",
		Flags:       config.GetFlags(),
		Run: func(ctx context.Context, cmd *cli.Command) error {
			a, err := app.Load()
			if err != nil {
				return err
			}
			defer a.Close()

			user, err := a.Session.CurrentUser(ctx)
			if err != nil {
				return a.CheckAuth(err)
			}

			fmt.Printf("ID:      %s\n", user.ID)
			fmt.Printf("Email:   %s\n", user.Email)
			fmt.Printf("Name:    %s\n", user.FullName)
			fmt.Printf("Active:  %t\n", user.IsActive)
			if tok, ok := a.Session.Token(); ok {
				if exp, err := expiry(tok); err == nil {
					fmt.Printf("Expires: %s\n", exp)
				}
			}
			return nil
		},
	}
}

func prompt(in *bufio.Reader, label string) (string, error) {
	fmt.Fprint(os.Stderr, label)
	line, err := in.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("reading input: %w", err)
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return "", fmt.Errorf("%s is required", strings.TrimSuffix(label, ": "))
	}
	return line, nil
}

func displayName(name, email string) string {
	if name == "" {
		return email
	}
	return fmt.Sprintf("%s <%s>", name, email)
}

func expiry(token string) (string, error) {
	exp, err := session.Expiry(token)
	if err != nil {
		return "", err
	}
	left := time.Until(exp).Round(time.Second)
	if left <= 0 {
		return exp.Local().Format(time.RFC3339) + " (expired)", nil
	}
	return exp.Local().Format(time.RFC3339) + " (in " + left.String() + ")", nil
}
