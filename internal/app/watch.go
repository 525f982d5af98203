package app

import (
	"context"
	"fmt"

	"github.com/martinsuchenak/netpulse/internal/client"
	"github.com/martinsuchenak/netpulse/internal/log"
	"github.com/martinsuchenak/netpulse/internal/model"
	"github.com/martinsuchenak/netpulse/internal/transport"
)

// View is what a live dashboard renders.
type View struct {
	Devices        []model.Device
	Total          int
	State          transport.State
	DecodeFailures uint64
}

type WatchOptions struct {
	// Search filters the rendered devices; empty shows all.
	Search string
	// RefreshOnReconnect reloads the full list whenever the push channel
	// reopens, to pick up changes missed while it was down.
	RefreshOnReconnect bool
}

// Watch loads the device list, subscribes to pushes and calls render with a
// fresh View after every change until ctx ends.
//
// An authentication failure, on the first load or a later refresh, clears the
// session and is returned so the caller can ask for a new login.
func (a *App) Watch(ctx context.Context, opts WatchOptions, render func(View)) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	reg := a.Registry()
	if err := reg.Refresh(ctx); err != nil {
		return a.CheckAuth(err)
	}

	changes := make(chan struct{}, 1)
	notify := func() {
		select {
		case changes <- struct{}{}:
		default:
		}
	}
	reg.SetOnChange(notify)

	refreshErr := make(chan error, 1)
	opened := 0
	tr := a.Transport(reg.HandlePush)
	tr.SetOnStateChange(func(s transport.State) {
		notify()
		if s != transport.StateOpen {
			return
		}
		opened++
		if opened > 1 && opts.RefreshOnReconnect {
			go func() {
				if err := reg.Refresh(ctx); err != nil {
					log.Warn("Refresh after reconnect failed", "error", err)
					if client.IsAuthError(err) {
						select {
						case refreshErr <- err:
						default:
						}
					}
				}
			}()
		}
	})
	tr.Start(ctx)
	defer tr.Close()

	view := func() View {
		return View{
			Devices:        reg.Search(opts.Search),
			Total:          reg.Len(),
			State:          tr.State(),
			DecodeFailures: tr.DecodeFailures() + reg.DecodeFailures(),
		}
	}

	render(view())
	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-refreshErr:
			return a.CheckAuth(err)
		case <-changes:
			render(view())
		}
	}
}

// CheckAuth clears the session when err is an authentication failure and
// returns err with a hint to log in again. Other errors pass through.
func (a *App) CheckAuth(err error) error {
	if client.IsAuthError(err) {
		if lerr := a.Session.Logout(); lerr != nil {
			log.Error("Failed to clear session", "error", lerr)
		}
		return fmt.Errorf("session expired, run `netpulse login`: %w", err)
	}
	return err
}
