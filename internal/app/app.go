// Package app wires configuration into the collaborators shared by the
// binaries.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/joseph-ayodele/cfdi-bills/constants"
	"github.com/joseph-ayodele/cfdi-bills/internal/catalog"
	"github.com/joseph-ayodele/cfdi-bills/internal/common"
	"github.com/joseph-ayodele/cfdi-bills/internal/export"
	"github.com/joseph-ayodele/cfdi-bills/internal/pipeline"
	"github.com/joseph-ayodele/cfdi-bills/internal/quickbooks"
	"github.com/joseph-ayodele/cfdi-bills/internal/repository"
)

// Options tune what Build wires.
type Options struct {
	// CatalogFile overrides Catalog.File.
	CatalogFile string
	// SkipDatabase leaves run history off.
	SkipDatabase bool
}

// App holds the wired collaborators. QuickBooks, DB and Runs are nil when
// their settings are missing or skipped.
type App struct {
	Config     *common.Config
	Logger     *slog.Logger
	QuickBooks *quickbooks.Client
	Catalog    catalog.Source
	Directory  catalog.Directory
	DB         *repository.DB
	Runs       repository.RunRepository
	Processor  *pipeline.Processor
	Export     *export.Service
}

// Build wires the application. A static catalog file takes precedence over
// the live QuickBooks catalog; QuickBooks is still used for submission and
// directories when its credentials are present.
func Build(ctx context.Context, cfg *common.Config, logger *slog.Logger, opts Options) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{Config: cfg, Logger: logger}

	if err := cfg.ValidateQuickBooks(); err == nil {
		a.QuickBooks = quickbooks.NewClient(quickbooks.ConfigFrom(cfg.QuickBooks), logger)
		a.Directory = catalog.NewCachedDirectory(a.QuickBooks, cfg.Catalog.TTL, logger)
	} else {
		logger.Warn("quickbooks not configured; submission and live catalog disabled", "reason", err)
	}

	catalogFile := opts.CatalogFile
	if catalogFile == "" {
		catalogFile = cfg.Catalog.File
	}
	switch {
	case catalogFile != "":
		src, err := catalog.LoadStaticSource(catalogFile)
		if err != nil {
			return nil, err
		}
		a.Catalog = src
		logger.Info("using static catalog", "file", catalogFile)
	case a.QuickBooks != nil:
		a.Catalog = catalog.NewCachedSource(a.QuickBooks, cfg.Catalog.TTL, logger)
	}

	var recorder pipeline.RunRecorder
	if !opts.SkipDatabase && strings.TrimSpace(cfg.Database.DSN) != "" {
		db, err := repository.Open(ctx, cfg.Database, logger)
		if err != nil {
			return nil, err
		}
		a.DB = db
		a.Runs = repository.NewRunRepository(db, logger)
		recorder = a.Runs
		a.Export = export.NewService(a.Runs, logger)
	}

	mode, ok := constants.ParseMode(cfg.Reconcile.Mode)
	if !ok && cfg.Reconcile.Mode != "" {
		a.Close()
		return nil, common.NewAppError("CONFIG_ERROR", fmt.Sprintf("RECONCILE_MODE %q is not item or account", cfg.Reconcile.Mode), common.ErrInvalidInput)
	}

	var submitter pipeline.Submitter
	if a.QuickBooks != nil {
		submitter = a.QuickBooks
	}
	a.Processor = pipeline.NewProcessor(logger, a.Catalog, submitter, recorder, pipeline.Options{
		DefaultMode:      mode,
		DefaultVendorID:  cfg.Reconcile.DefaultVendorID,
		DefaultAccountID: cfg.Reconcile.DefaultAccountID,
		BlockOnDropped:   cfg.Reconcile.BlockOnDropped,
	})
	return a, nil
}

// Close releases the database, if one was opened.
func (a *App) Close() {
	if a.DB != nil {
		repository.Close(a.DB, a.Logger)
		a.DB = nil
	}
}
