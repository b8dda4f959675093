package cli

import (
	"context"
	"io"

	"github.com/silvabell741-del/Hist-ria-Acess-vel-Mark-I/internal/config"
	"github.com/silvabell741-del/Hist-ria-Acess-vel-Mark-I/internal/logging"
	"github.com/silvabell741-del/Hist-ria-Acess-vel-Mark-I/internal/store"
	"github.com/silvabell741-del/Hist-ria-Acess-vel-Mark-I/internal/sync/executor"
	"github.com/silvabell741-del/Hist-ria-Acess-vel-Mark-I/internal/sync/queue"
)

// loadConfig reads the configuration and points the global logger at logOut.
func loadConfig(opts *RootOptions, logOut io.Writer) (*config.AppConfig, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, err
	}

	level := logging.ParseLevel(cfg.LogLevel)
	if opts.Verbose {
		level = logging.LevelDebug
	}
	logging.Configure(logOut, level)
	return cfg, nil
}

// app is an engine over the SQLite store in the configured data directory.
type app struct {
	engine     *queue.Engine
	closeStore func() error
}

func openApp(ctx context.Context, cfg *config.AppConfig, engineOpts ...queue.Option) (*app, error) {
	st, closeStore, err := store.OpenSQLite(cfg.DataDir)
	if err != nil {
		return nil, err
	}

	registry := executor.NewBackendRegistry(executor.HTTPConfig{
		BaseURL: cfg.Backend.BaseURL,
		Timeout: cfg.Backend.Timeout,
		Headers: cfg.Backend.Headers,
	})

	opts := append([]queue.Option{queue.WithMaxRetries(cfg.Sync.MaxRetries)}, engineOpts...)
	engine, err := queue.New(ctx, st, registry, opts...)
	if err != nil {
		closeStore()
		return nil, err
	}

	return &app{engine: engine, closeStore: closeStore}, nil
}

// Close waits for background drains, then closes the store.
func (a *app) Close() error {
	a.engine.Close()
	return a.closeStore()
}
