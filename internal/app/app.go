package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"composewatch/internal/alerts"
	"composewatch/internal/config"
	"composewatch/internal/db"
	"composewatch/internal/docker"
	"composewatch/internal/monitor"
	"composewatch/internal/notifier"
	"composewatch/internal/retention"
	"composewatch/internal/state"
	"composewatch/internal/web"
)

const retentionInterval = 6 * time.Hour

type App struct {
	cfg config.Config
	log *slog.Logger

	db     *db.Repository
	docker *docker.Client

	monitor   *monitor.Monitor
	retention *retention.Service

	httpSrv *http.Server
}

// New connects to the engine and wires the monitor. Engine failures wrap
// docker.ErrConnection.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	policy, err := state.ParseResetPolicy(cfg.ResetPolicy)
	if err != nil {
		return nil, err
	}

	endpoint, err := docker.ExpandEndpoint(cfg.DockerSocket)
	if err != nil {
		logger.Warn("could not expand docker endpoint, using it as given", "endpoint", cfg.DockerSocket, "err", err)
	}
	dc, err := docker.Connect(ctx, endpoint, cfg.EngineTimeout)
	if err != nil {
		return nil, err
	}
	logger.Info("connected to docker", "endpoint", endpoint)

	app, err := newApp(cfg, policy, dc, logger)
	if err != nil {
		_ = dc.Close()
		return nil, err
	}
	return app, nil
}

func newApp(cfg config.Config, policy state.ResetPolicy, dc *docker.Client, logger *slog.Logger) (*App, error) {
	app := &App{cfg: cfg, log: logger, docker: dc}

	// Interface values stay nil when the journal is disabled.
	var journal alerts.Journal
	var reader web.AlertReader
	if cfg.Journal != "" {
		sqldb, err := db.Open(cfg.Journal)
		if err != nil {
			return nil, err
		}
		if err := db.Migrate(sqldb); err != nil {
			_ = sqldb.Close()
			return nil, err
		}
		app.db = db.NewRepository(sqldb)
		app.retention = retention.NewService(app.db, cfg.RetentionDays, logger.With("module", "retention"))
		journal, reader = app.db, app.db
	}

	webhook := notifier.NewWebhook(cfg.AlertURL, cfg.Timeout)
	dispatcher := alerts.NewDispatcher(webhook, journal, logger.With("module", "alerts"), cfg.ComposeName, cfg.Wait)
	store := state.NewStore(policy)
	app.monitor = monitor.New(dc, store, dispatcher, monitor.Options{
		Project:         cfg.ComposeName,
		RetryThreshold:  cfg.Retries,
		Wait:            cfg.Wait,
		ContinueOnEmpty: cfg.NoContainersContinue,
	}, logger.With("module", "monitor"))

	if cfg.StatusAddr != "" {
		ready := func() bool { return app.monitor.Phase() == monitor.Running }
		w := web.NewServer(store, ready, reader, logger.With("module", "web"))
		app.httpSrv = &http.Server{Addr: cfg.StatusAddr, Handler: w.Routes(), ReadHeaderTimeout: 5 * time.Second}
	}
	return app, nil
}

// Run blocks until the monitor stops, then releases every resource.
func (a *App) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var g errgroup.Group
	if a.httpSrv != nil {
		g.Go(func() error {
			a.log.Info("status server listening", "addr", a.cfg.StatusAddr)
			if err := a.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.log.Error("status server failed", "err", err)
			}
			return nil
		})
	}
	if a.retention != nil {
		g.Go(func() error {
			a.retention.Loop(runCtx, retentionInterval)
			return nil
		})
	}

	err := a.monitor.Run(runCtx)

	cancel()
	if a.httpSrv != nil {
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		_ = a.httpSrv.Shutdown(shutdownCtx)
		done()
	}
	_ = g.Wait()

	var errs []error
	errs = append(errs, err)
	if a.db != nil {
		errs = append(errs, a.db.DB().Close())
	}
	errs = append(errs, a.docker.Close())
	return errors.Join(errs...)
}
