package cli

import (
	"context"
	stderrors "errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/silvabell741-del/Hist-ria-Acess-vel-Mark-I/internal/api"
	"github.com/silvabell741-del/Hist-ria-Acess-vel-Mark-I/internal/config"
	"github.com/silvabell741-del/Hist-ria-Acess-vel-Mark-I/internal/errors"
	"github.com/silvabell741-del/Hist-ria-Acess-vel-Mark-I/internal/logging"
	"github.com/silvabell741-del/Hist-ria-Acess-vel-Mark-I/internal/metrics"
	"github.com/silvabell741-del/Hist-ria-Acess-vel-Mark-I/internal/sync/connectivity"
	"github.com/silvabell741-del/Hist-ria-Acess-vel-Mark-I/internal/sync/queue"
	"github.com/silvabell741-del/Hist-ria-Acess-vel-Mark-I/internal/sync/scheduler"
)

// NewServeCommand creates the serve command.
func NewServeCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the sync daemon with its HTTP and WebSocket API",
		Long: `Run the sync daemon.

Serves the REST API, the /ws progress stream and /metrics, drains the queue
whenever the backend becomes reachable and periodically while online.
Stops gracefully on SIGINT or SIGTERM.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
			cfg, err := loadConfig(opts, cmd.ErrOrStderr())
			if err != nil {
				return out.Fail(err)
			}
			if err := serve(cmd.Context(), cfg, nil); err != nil {
				return out.Fail(err)
			}
			return nil
		},
	}
}

// serve runs until ctx is cancelled or a signal arrives. ready, if set,
// receives the bound listen address.
func serve(ctx context.Context, cfg *config.AppConfig, ready func(addr string)) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	hub := api.NewHub(cfg.HTTP.AllowedOrigins)
	collector := metrics.New()

	a, err := openApp(ctx, cfg, queue.WithObserver(hub), queue.WithObserver(collector))
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logging.Error("Failed to close store", err)
		}
	}()
	collector.TrackQueues(a.engine)

	monitor := connectivity.NewMonitor(cfg.Connectivity.StartOnline)
	sched := scheduler.NewScheduler(a.engine, monitor, &scheduler.SchedulerConfig{
		AutoDrainInterval: cfg.Sync.AutoDrainInterval,
		DrainOnStart:      cfg.Sync.DrainOnStart,
	})

	listener, err := net.Listen("tcp", cfg.HTTP.Addr)
	if err != nil {
		return errors.Wrap(errors.ErrConfig, "failed to listen on "+cfg.HTTP.Addr, err)
	}
	srv := &http.Server{
		Handler:           api.NewRouter(api.NewSyncHandler(a.engine, sched), hub, collector.Handler()),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})

	if cfg.Connectivity.HealthURL != "" {
		probe := connectivity.NewHTTPProbe(cfg.Connectivity.HealthURL, cfg.Connectivity.ProbeTimeout)
		g.Go(func() error {
			monitor.Run(gctx, probe, cfg.Connectivity.ProbeInterval)
			return nil
		})
	}

	if err := sched.Start(gctx); err != nil {
		listener.Close()
		return err
	}

	g.Go(func() error {
		logging.Info("HTTP server listening", map[string]interface{}{"addr": listener.Addr().String()})
		if err := srv.Serve(listener); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(errors.ErrInternal, "http server failed", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logging.Info("Shutting down", nil)

		sched.Stop()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if ready != nil {
		ready(listener.Addr().String())
	}

	return g.Wait()
}
