package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/joseph-ayodele/cfdi-bills/internal/catalog"
	"github.com/joseph-ayodele/cfdi-bills/internal/common"
)

// CatalogStage fetches the item catalog and builds the run's index.
type CatalogStage struct {
	Source catalog.Source
	Logger *slog.Logger
}

func NewCatalogStage(src catalog.Source, logger *slog.Logger) *CatalogStage {
	if logger == nil {
		logger = slog.Default()
	}
	return &CatalogStage{Source: src, Logger: logger}
}

// IndexResult is the index for one run. When Degraded is set the catalog
// could not be fetched: the index is empty and Lookup is nil, so every line
// falls back.
type IndexResult struct {
	Index    *catalog.Index
	Lookup   catalog.Source
	Degraded bool
	Warning  error
}

// Run never fails because of the catalog itself; only cancellation of ctx
// is returned as an error.
func (s *CatalogStage) Run(ctx context.Context) (IndexResult, error) {
	if s.Source == nil {
		w := fmt.Errorf("%w: no catalog source configured", common.ErrCatalogUnavailable)
		s.Logger.Warn("pipeline.catalog.unavailable", "run_id", common.RunIDFromContext(ctx), "reason", "no source")
		return IndexResult{Index: catalog.BuildIndex(nil), Degraded: true, Warning: w}, nil
	}

	start := time.Now()
	items, err := s.Source.FetchAllItems(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return IndexResult{}, ctx.Err()
		}
		s.Logger.Warn("pipeline.catalog.unavailable", "run_id", common.RunIDFromContext(ctx), "error", err)
		return IndexResult{
			Index:    catalog.BuildIndex(nil),
			Degraded: true,
			Warning:  fmt.Errorf("%w: %v", common.ErrCatalogUnavailable, err),
		}, nil
	}

	idx := catalog.BuildIndex(items)
	if c := idx.Collisions(); len(c) > 0 {
		s.Logger.Warn("pipeline.catalog.ambiguous_keys", "run_id", common.RunIDFromContext(ctx), "keys", len(c), "first", c[0].Key)
	}
	s.Logger.Info("pipeline.catalog.indexed",
		"run_id", common.RunIDFromContext(ctx),
		"items", len(items),
		"keys", idx.Len(),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return IndexResult{Index: idx, Lookup: s.Source}, nil
}
