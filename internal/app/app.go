// Package app wires the store, bus, action registry and engine together
// from a loaded configuration.
package app

import (
	"context"
	"fmt"

	"github.com/abd3rr/workflow-api/internal/actions"
	"github.com/abd3rr/workflow-api/internal/bus"
	"github.com/abd3rr/workflow-api/internal/config"
	"github.com/abd3rr/workflow-api/internal/db"
	"github.com/abd3rr/workflow-api/internal/engine"
	"github.com/abd3rr/workflow-api/internal/metrics"
	"github.com/abd3rr/workflow-api/internal/notify"
	"github.com/sirupsen/logrus"
)

type App struct {
	Config  *config.Config
	Log     logrus.FieldLogger
	DB      *db.DB
	Bus     bus.Publisher
	Metrics *metrics.Metrics
	Engine  *engine.Engine
	Catalog *actions.Catalog
}

// Option customises Open.
type Option func(*options)

type options struct {
	extra     []actions.Action
	publisher bus.Publisher
}

// WithActions registers actions alongside the built-ins.
func WithActions(a ...actions.Action) Option {
	return func(o *options) { o.extra = append(o.extra, a...) }
}

// WithPublisher replaces the bus chosen from the configuration.
func WithPublisher(p bus.Publisher) Option {
	return func(o *options) { o.publisher = p }
}

// Open opens and migrates the database, connects the bus, reconciles the
// method catalog with the registered actions and builds the engine.
func Open(ctx context.Context, cfg *config.Config, log logrus.FieldLogger, opts ...Option) (*App, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	store, err := db.Open(cfg.Database.Path)
	if err != nil {
		return nil, err
	}
	if err := store.Init(ctx); err != nil {
		store.Close()
		return nil, err
	}
	if cfg.Snapshot.Auto {
		store.EnableAutoSnapshot(cfg.Snapshot.Path, log)
	}

	pub := o.publisher
	if pub == nil {
		if pub, err = connect(cfg, log); err != nil {
			store.Close()
			return nil, err
		}
	}

	a := &App{Config: cfg, Log: log, DB: store, Bus: pub, Metrics: metrics.New(nil)}
	if err := a.build(ctx, o.extra); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func connect(cfg *config.Config, log logrus.FieldLogger) (bus.Publisher, error) {
	if cfg.NATS.URL == "" {
		return bus.NewLogPublisher(log), nil
	}
	pub, err := bus.ConnectNATS(cfg.NATS.URL, log)
	if err != nil {
		return nil, err
	}
	log.WithField("url", cfg.NATS.URL).Info("connected to NATS")
	return pub, nil
}

func (a *App) build(ctx context.Context, extra []actions.Action) error {
	prefix := a.Config.NATS.Prefix

	all := append(actions.Builtins(a.Bus, prefix, a.Log), extra...)
	reg, err := actions.NewRegistry(all...)
	if err != nil {
		return fmt.Errorf("failed to build action registry: %w", err)
	}
	for _, name := range a.Config.Actions.Disabled {
		if _, ok := reg.Lookup(name); !ok {
			a.Log.WithField("action", name).Warn("disabled action is not registered")
		}
	}
	reg = reg.Without(a.Config.Actions.Disabled...)

	err = a.DB.WithTx(ctx, func(q *db.Queries) error {
		a.Catalog, err = actions.Bootstrap(ctx, reg, q)
		return err
	})
	if err != nil {
		return err
	}
	if len(a.Catalog.Added) > 0 || len(a.Catalog.Removed) > 0 {
		a.Log.WithFields(logrus.Fields{
			"added":   a.Catalog.Added,
			"removed": a.Catalog.Removed,
		}).Info("method catalog reconciled")
	}

	dispatcher := actions.NewDispatcher(reg, a.Catalog, a.Log, a.Metrics)
	notifier := notify.New(a.Bus, prefix, a.Log, a.Metrics)
	a.Engine = engine.New(a.DB, dispatcher, notifier, a.Log, engine.WithMetrics(a.Metrics))
	return nil
}

// Close drains the bus and closes the database.
func (a *App) Close() error {
	var firstErr error
	if a.Bus != nil {
		if err := a.Bus.Close(); err != nil {
			firstErr = err
		}
	}
	if err := a.DB.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
