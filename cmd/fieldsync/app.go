package main

import (
	"fmt"
	"log"
	"time"

	"github.com/smartsubstation/fieldsync/internal/api"
	"github.com/smartsubstation/fieldsync/internal/config"
	"github.com/smartsubstation/fieldsync/internal/gateway"
	"github.com/smartsubstation/fieldsync/internal/netmon"
	"github.com/smartsubstation/fieldsync/internal/store"
)

// app bundles the pieces most commands need: the local store, the request
// gateway, and the typed API client.
type app struct {
	cfg     *config.Config
	store   *store.Store
	session *gateway.FileSession
	gateway *gateway.Gateway
	api     *api.Client
	monitor *netmon.Monitor
}

// openApp opens the store and wires the gateway for a command invocation.
// online reports connectivity for the gateway's offline-capture decision;
// pass nil to assume online (one-shot commands that want hard failures).
func openApp(cfg *config.Config, online func() bool, logger *log.Logger) (*app, error) {
	st, err := store.Open(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := st.InitSchema(); err != nil {
		st.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	if online == nil {
		online = func() bool { return true }
	}

	session := gateway.NewFileSession(cfg.TokenFile)
	gw, err := gateway.New(gateway.Config{
		BaseURL:    cfg.ServerBaseURL,
		HTTPClient: gateway.NewHTTPClient(gateway.WithClientTimeout(cfg.HTTPTimeout)),
		Session:    session,
		Queue:      st,
		Online:     online,
		Logger:     logger,
	})
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("failed to create gateway: %w", err)
	}

	return &app{
		cfg:     cfg,
		store:   st,
		session: session,
		gateway: gw,
		api:     api.NewClient(gw),
	}, nil
}

// Close releases the app's resources.
func (a *app) Close() error {
	return a.store.Close()
}

// probeSource builds the connectivity probe from config.
func probeSource(cfg *config.Config) *netmon.ProbeSource {
	return &netmon.ProbeSource{
		URL:      cfg.ProbeURL,
		Interval: cfg.ProbeInterval,
	}
}

// fmtMillis renders a millisecond timestamp for terminal output.
func fmtMillis(ms int64) string {
	if ms == 0 {
		return "-"
	}
	return time.UnixMilli(ms).Format("2006-01-02 15:04:05")
}
