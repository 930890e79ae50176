package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/okian/scoutsync/internal/adapters/mq/queue"
	"github.com/okian/scoutsync/internal/adapters/remote"
	"github.com/okian/scoutsync/internal/adapters/repository"
	"github.com/okian/scoutsync/internal/adapters/schedule"
	"github.com/okian/scoutsync/internal/adapters/signal"
	"github.com/okian/scoutsync/internal/app"
	"github.com/okian/scoutsync/internal/config"
	"github.com/okian/scoutsync/internal/domain/normalize"
	"github.com/okian/scoutsync/internal/domain/pending"
	"github.com/okian/scoutsync/internal/domain/push"
	"github.com/okian/scoutsync/internal/domain/reconcile"
	"github.com/okian/scoutsync/pkg/logger"
)

// engine is one wired device-side sync stack.
type engine struct {
	cfg     *config.Config
	store   *repository.SQLiteStore
	bus     *signal.Bus
	files   *signal.FileSignal
	local   *repository.Local
	pending *pending.Queue
	client  remote.Client
	orch    *app.Orchestrator
	service *app.Service
}

// openEngine opens the local database under cfg.DataDir and wires the
// pipeline. When signal watching is enabled, pending and roster changes are
// mirrored to and from other processes sharing the data dir.
func openEngine(ctx context.Context, cfg *config.Config) (*engine, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	store, err := repository.OpenSQLite(ctx, cfg.DBPath())
	if err != nil {
		return nil, err
	}

	e := &engine{cfg: cfg, store: store, bus: signal.NewBus()}
	var publisher signal.Publisher = e.bus
	if cfg.WatchSignals {
		e.files = signal.NewFileSignal(cfg.SignalDir(), e.bus)
		if err := e.files.Start(ctx); err != nil {
			_ = store.Close()
			return nil, err
		}
		publisher = e.files
	}

	e.local = repository.NewLocal(store, repository.WithPublisher(publisher))
	e.pending = pending.New(e.local)

	if cfg.RemoteURL != "" {
		e.client = remote.NewHTTPClient(cfg.RemoteURL,
			remote.WithAPIKey(cfg.RemoteAPIKey),
			remote.WithTimeout(cfg.RemoteTimeout()))
	}

	pushOpts := []push.Option{
		push.WithBatchSize(cfg.BatchSize),
		push.WithMaxRetries(cfg.MaxRetries),
		push.WithBaseBackoff(cfg.BaseBackoff()),
	}
	if cfg.MaxBackoffMS > 0 {
		pushOpts = append(pushOpts, push.WithMaxBackoff(cfg.MaxBackoff()))
	}

	e.orch = app.NewOrchestrator(app.Deps{
		Pusher:     push.New(e.local, e.pending, e.client, pushOpts...),
		Puller:     reconcile.NewPuller(e.local, e.client),
		Normalizer: normalize.New(e.local, e.pending, normalize.Migrations(cfg.LegacyCountFields)),
		Caches:     e.local,
		Pending:    e.pending,
		Client:     e.client,
	},
		app.WithInterval(cfg.SyncInterval()),
		app.WithProbeInterval(cfg.ProbeInterval()),
		app.WithQueue(queue.NewInMemoryQueue(queue.WithCapacity(cfg.TriggerQueueSize))),
		app.WithSignals(e.bus),
	)

	svcOpts := []app.ServiceOption{
		app.WithSyncer(e.orch),
		app.WithDefaultEventKey(cfg.EventKey),
	}
	if cfg.ScheduleURL != "" {
		svcOpts = append(svcOpts, app.WithScheduleProvider(
			schedule.NewHTTPProvider(cfg.ScheduleURL, schedule.WithAPIKey(cfg.ScheduleAPIKey))))
	}
	e.service = app.NewService(e.local, e.pending, svcOpts...)
	return e, nil
}

// Close stops the orchestrator and releases the database.
func (e *engine) Close(ctx context.Context) error {
	var errs []error
	if err := e.orch.Stop(ctx); err != nil {
		errs = append(errs, err)
	}
	if e.files != nil {
		if err := e.files.Stop(); err != nil {
			errs = append(errs, err)
		}
	}
	e.bus.Close()
	if err := e.store.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		logger.Get().Warn(ctx, "engine close", logger.Error(err))
		return err
	}
	return nil
}
