// Package daemon wires the indexing engine together from a loaded
// configuration: vault adapter, parse workers, persistence and metrics.
package daemon

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"

	"github.com/grovetools/superstate/config"
	"github.com/grovetools/superstate/internal/daemon/collector"
	"github.com/grovetools/superstate/internal/daemon/engine"
	"github.com/grovetools/superstate/internal/daemon/store"
	"github.com/grovetools/superstate/internal/dispatcher"
	"github.com/grovetools/superstate/internal/indexer"
	"github.com/grovetools/superstate/internal/linker"
	"github.com/grovetools/superstate/internal/opqueue"
	"github.com/grovetools/superstate/internal/persist"
	"github.com/grovetools/superstate/internal/vault"
	"github.com/grovetools/superstate/pkg/models"
	"github.com/grovetools/superstate/pkg/profiling"
)

// formulaCacheSize bounds the compiled formula cache.
const formulaCacheSize = 256

// Runtime is one fully wired engine.
type Runtime struct {
	Config     *config.Config
	Vault      *vault.FS
	Store      *store.Store
	Dispatcher *dispatcher.Dispatcher
	Engine     *engine.Engine
	Registry   *prometheus.Registry

	logger *logrus.Entry
}

// Open builds the engine for cfg and hydrates the caches from persistence.
// The caller owns the Runtime and must Close it.
func Open(cfg *config.Config, logger *logrus.Entry) (*Runtime, error) {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}

	fs, err := vault.NewFS(vault.FSConfig{
		Root:    cfg.Vault.Root,
		Include: cfg.Vault.Include,
		Exclude: cfg.Vault.Exclude,
	}, logger.WithField("component", "vault"))
	if err != nil {
		return nil, err
	}

	pcfg := persist.DefaultConfig(cfg.Persistence.Path)
	if cfg.Persistence.InMemory {
		pcfg = persist.InMemoryConfig()
	}
	pcfg.Logger = logger.WithField("component", "persist")
	facade, err := persist.Open(pcfg)
	if err != nil {
		return nil, err
	}

	st := store.New(logger.WithField("component", "store"))
	hydrate := profiling.Start("hydrate")
	err = st.Hydrate(facade)
	hydrate.Stop()
	if err != nil {
		_ = facade.Close()
		return nil, err
	}

	eval, err := linker.NewExprEvaluator(formulaCacheSize)
	if err != nil {
		_ = st.Teardown()
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	d := dispatcher.New(cfg.Index.Workers, engine.Snapshots(st, cfg.SyncProperties()),
		logger.WithField("component", "dispatcher"), dispatcher.NewMetrics(reg))
	d.SetSlowThreshold(cfg.SlowJob())
	indexer.New(fs, eval, logger.WithField("component", "indexer"), cfg.Index.Workers).Register(d)

	eng := engine.New(engine.Options{
		Store:        st,
		Dispatcher:   d,
		Adapter:      fs,
		Logger:       logger.WithField("component", "engine"),
		QueueMetrics: opqueue.NewMetrics(reg),
		Spaces:       cfg.DeclaredSpaces(),
	})

	return &Runtime{
		Config:     cfg,
		Vault:      fs,
		Store:      st,
		Dispatcher: d,
		Engine:     eng,
		Registry:   reg,
		logger:     logger,
	}, nil
}

// Initialize reindexes the vault.
func (r *Runtime) Initialize(ctx context.Context) error {
	start := time.Now()
	span := profiling.Start("reindex")
	err := r.Engine.Initialize(ctx)
	span.Stop()
	if err != nil {
		return err
	}
	stats := r.Engine.Stats()
	r.logger.WithFields(logrus.Fields{
		"paths":    stats.Paths,
		"spaces":   stats.Spaces,
		"contexts": stats.Contexts,
		"duration": time.Since(start).Round(time.Millisecond),
	}).Info("Index ready")
	return nil
}

// Watch registers the vault watcher and, when enabled, the config watcher.
// configDirs are the directories holding the configuration files; reload
// returns the freshly loaded configuration.
func (r *Runtime) Watch(configDirs []string, reload func() (*config.Config, error)) {
	r.Engine.Register(collector.NewVaultWatcher(r.Vault, r.Config.Debounce(), r.logger))
	if !r.Config.WatchConfig() || reload == nil {
		return
	}
	load := func() (map[string]*models.SpaceDefinition, error) {
		cfg, err := reload()
		if err != nil {
			return nil, err
		}
		return cfg.DeclaredSpaces(), nil
	}
	r.Engine.Register(collector.NewConfigWatcher(configDirs, r.Engine.Declared(), load, r.Config.Debounce(), r.logger))
}

// Close drains the table queues, stops the workers and closes persistence.
func (r *Runtime) Close(ctx context.Context) error {
	defer profiling.Start("close").Stop()
	var first error
	if err := r.Engine.Close(ctx); err != nil {
		first = err
	}
	if err := r.Dispatcher.Close(ctx); err != nil && first == nil {
		first = err
	}
	if err := r.Store.Teardown(); err != nil && first == nil {
		first = err
	}
	return first
}
