// Package app builds the client object graph from a Config.
package app

import (
	"fmt"
	"net/http"

	"github.com/martinsuchenak/netpulse/internal/client"
	"github.com/martinsuchenak/netpulse/internal/command"
	"github.com/martinsuchenak/netpulse/internal/config"
	"github.com/martinsuchenak/netpulse/internal/log"
	"github.com/martinsuchenak/netpulse/internal/probe"
	"github.com/martinsuchenak/netpulse/internal/registry"
	"github.com/martinsuchenak/netpulse/internal/session"
	"github.com/martinsuchenak/netpulse/internal/storage"
	"github.com/martinsuchenak/netpulse/internal/transport"
)

type App struct {
	Config  *config.Config
	Store   storage.TokenStore
	Session *session.Session
	Issuer  *command.Issuer
}

// Load resolves the configuration from the parsed flags, applies its logging
// settings and opens the App.
func Load() (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	log.Configure(cfg.Log.Level, cfg.Log.Format)
	log.Debug("Configuration loaded", "api_url", cfg.APIURL, "ws_url", cfg.WSURL, "data_dir", cfg.DataDir)
	return Open(cfg)
}

// Open opens the SQLite token store under cfg.DataDir and wires the rest.
func Open(cfg *config.Config) (*App, error) {
	store, err := storage.OpenSQLite(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("opening token store: %w", err)
	}
	log.Debug("Token store opened", "path", store.Path())
	return New(cfg, store), nil
}

// New wires an App around an already open store.
func New(cfg *config.Config, store storage.TokenStore, opts ...client.Option) *App {
	opts = append([]client.Option{
		client.WithTimeout(cfg.RequestTimeout),
		client.WithLogger(log.Component("client")),
	}, opts...)
	api := client.New(cfg.APIURL, opts...)
	sess := session.New(store, api, session.WithLogger(log.Component("session")))

	return &App{
		Config:  cfg,
		Store:   store,
		Session: sess,
		Issuer:  command.New(sess.Client(), command.WithLogger(log.Component("command"))),
	}
}

func (a *App) Close() error {
	return a.Store.Close()
}

// Registry returns a new, empty registry whose requests carry the session.
func (a *App) Registry() *registry.Registry {
	return registry.New(a.Session.Client(), registry.WithLogger(log.Component("registry")))
}

// Transport returns an unstarted push transport feeding handler. Each dial
// carries the session's current token, if it is still valid.
func (a *App) Transport(handler transport.Handler, opts ...transport.Option) *transport.Transport {
	cfg := transport.Config{
		URL:        a.Config.WSURL,
		HeaderFunc: a.pushHeader,
		Backoff: transport.Backoff{
			Initial: a.Config.Reconnect.InitialDelay,
			Max:     a.Config.Reconnect.MaxDelay,
		},
		DecodeAlertThreshold: a.Config.DecodeAlertThreshold,
	}
	opts = append([]transport.Option{transport.WithLogger(log.Component("transport"))}, opts...)
	return transport.New(cfg, handler, opts...)
}

func (a *App) pushHeader() http.Header {
	header := http.Header{}
	if tok, err := a.Session.BearerToken(); err == nil {
		header.Set("Authorization", "Bearer "+tok)
	}
	return header
}

func (a *App) Prober(opts ...probe.Option) *probe.Prober {
	opts = append([]probe.Option{probe.WithLogger(log.Component("probe"))}, opts...)
	return probe.New(opts...)
}
