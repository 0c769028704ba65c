package server

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/HendryAvila/shellstory/internal/cache"
	"github.com/HendryAvila/shellstory/internal/config"
	"github.com/HendryAvila/shellstory/internal/llm"
	"github.com/HendryAvila/shellstory/internal/pipeline"
	"github.com/HendryAvila/shellstory/internal/workspace"
)

// Deps holds the concrete collaborators shared by the MCP server and the
// CLI commands.
type Deps struct {
	Config    *config.Config
	Logger    *zap.Logger
	Cache     *cache.Cache
	Workspace *workspace.Workspace
	Generator llm.Generator
	Pipeline  *pipeline.Pipeline

	closers []func() error
}

// Open builds every collaborator from cfg. Close must be called on
// shutdown; it is safe to call on a partially built Deps.
func Open(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Deps, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &Deps{Config: cfg, Logger: logger}

	store, err := d.openStore()
	if err != nil {
		return nil, err
	}
	d.Cache = cache.New(store, cache.WithLogger(logger.Named("cache")))
	d.Workspace = workspace.New(cfg.WorkspaceDir)

	gen, err := llm.New(ctx, cfg.Generator())
	if err != nil {
		_ = d.Close()
		return nil, fmt.Errorf("creating generator: %w", err)
	}
	d.Generator = gen

	d.Pipeline = pipeline.New(d.Workspace, d.Workspace, d.Cache, gen, pipeline.Options{
		MaxConcurrency:    cfg.Analysis.MaxConcurrency,
		Association:       cfg.AssociateOptions(),
		QuestionThreshold: cfg.Scope.QuestionThreshold,
		Composer:          cfg.Composer(),
		Logger:            logger.Named("pipeline"),
	})

	logger.Info("components ready",
		zap.String("cache_backend", cfg.Cache.Backend),
		zap.String("cache_dir", cfg.Cache.Dir),
		zap.String("workspace", cfg.WorkspaceDir),
		zap.String("llm_provider", cfg.LLM.Provider))
	return d, nil
}

func (d *Deps) openStore() (cache.Store, error) {
	switch d.Config.Cache.Backend {
	case config.BackendSQLite:
		s, err := cache.NewSQLiteStore(d.Config.Cache.Dir)
		if err != nil {
			return nil, fmt.Errorf("opening sqlite cache: %w", err)
		}
		d.closers = append(d.closers, s.Close)
		return s, nil
	case config.BackendFile, "":
		return cache.NewFileStore(d.Config.Cache.Dir), nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", d.Config.Cache.Backend)
	}
}

// Close releases held resources.
func (d *Deps) Close() error {
	var errs []error
	for i := len(d.closers) - 1; i >= 0; i-- {
		errs = append(errs, d.closers[i]())
	}
	d.closers = nil
	return errors.Join(errs...)
}
