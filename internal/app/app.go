// Package app assembles the study index from configuration.
package app

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/cognicore/studyindex/internal/backends"
	"github.com/cognicore/studyindex/internal/metrics"
	"github.com/cognicore/studyindex/pkg/studyindex/catalog"
	"github.com/cognicore/studyindex/pkg/studyindex/config"
	"github.com/cognicore/studyindex/pkg/studyindex/extract"
	"github.com/cognicore/studyindex/pkg/studyindex/ingest"
	"github.com/cognicore/studyindex/pkg/studyindex/reconcile"
	"github.com/cognicore/studyindex/pkg/studyindex/records"
	"github.com/cognicore/studyindex/pkg/studyindex/search"
	"github.com/cognicore/studyindex/pkg/studyindex/tablestore"
)

// App holds the opened index and catalog.
type App struct {
	Config  *config.Config
	Logger  *zap.Logger
	Index   *tablestore.Store
	Catalog *catalog.Catalog
	Metrics *metrics.Recorder

	components *config.Components
	closers    []func() error
}

// New opens the configured backends. Close releases them.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{Config: cfg, Logger: logger, Metrics: metrics.New()}

	components, err := cfg.Components()
	if err != nil {
		return nil, err
	}
	a.components = components

	indexBackend, err := backends.Open(ctx, cfg.Index)
	if err != nil {
		return nil, fmt.Errorf("open index: %w", err)
	}
	a.closers = append(a.closers, indexBackend.Close)

	a.Index, err = tablestore.Open(ctx, indexBackend, records.Schemas(), tablestore.Options{Logger: logger})
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("open index: %w", err)
	}

	catalogBackend, err := backends.Open(ctx, cfg.Catalog)
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	a.closers = append(a.closers, catalogBackend.Close)

	a.Catalog, err = catalog.Open(ctx, catalogBackend, logger)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

// Close releases every opened backend.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}

// Extractor reads documents with the configured components and catalog.
func (a *App) Extractor() *extract.Extractor {
	return extract.New(extract.Options{
		Catalog:   a.Catalog,
		Filenames: a.components.Filenames,
		Sections:  a.components.Sections,
		Persons:   a.components.Persons,
		Logger:    a.Logger,
	})
}

// Pipeline builds an ingestion pipeline whose outcomes feed Metrics.
func (a *App) Pipeline() *ingest.Pipeline {
	return ingest.New(ingest.Config{
		Store:      a.Index,
		Extractor:  a.Extractor(),
		Reconciler: reconcile.New(a.Index, a.Catalog, a.Logger),
		Extensions: a.Config.Ingest.Extensions,
		Observer:   a.Metrics,
		Logger:     a.Logger,
	})
}

// Searcher queries the index.
func (a *App) Searcher() *search.Searcher {
	return search.New(a.Index)
}
