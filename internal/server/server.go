// Package server exposes bill previews, submissions and lookups over HTTP.
package server

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/joseph-ayodele/cfdi-bills/internal/catalog"
	"github.com/joseph-ayodele/cfdi-bills/internal/common"
	"github.com/joseph-ayodele/cfdi-bills/internal/entity"
	"github.com/joseph-ayodele/cfdi-bills/internal/pipeline"
)

const defaultMaxUploadBytes = 5 << 20

// Processor runs one uploaded document.
type Processor interface {
	Process(ctx context.Context, req pipeline.Request) (*pipeline.Outcome, error)
}

// RunLister reads recorded runs.
type RunLister interface {
	ListRuns(ctx context.Context, limit int) ([]*entity.RunRecord, error)
}

// Exporter renders runs as an XLSX workbook.
type Exporter interface {
	ExportRunsXLSX(ctx context.Context, runs []*entity.RunRecord) ([]byte, error)
}

// Deps are the collaborators behind the routes. Directory, Runs and Export
// may be nil; their routes then answer 503.
type Deps struct {
	Processor Processor
	Directory catalog.Directory
	Runs      RunLister
	Export    Exporter
	Health    func(ctx context.Context) error
}

type Server struct {
	deps    Deps
	cfg     common.ServerConfig
	logger  *slog.Logger
	limiter *ipLimiter
}

func New(deps Deps, cfg common.ServerConfig, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = defaultMaxUploadBytes
	}
	return &Server{
		deps:    deps,
		cfg:     cfg,
		logger:  logger,
		limiter: newIPLimiter(cfg.RatePerSec, cfg.RateBurst),
	}
}

// Handler returns the routed API with middleware applied. /healthz skips
// authentication.
func (s *Server) Handler() http.Handler {
	api := http.NewServeMux()
	api.HandleFunc("POST /api/bills/preview", s.handlePreview)
	api.HandleFunc("POST /api/bills", s.handleSubmit)
	api.HandleFunc("GET /api/vendors", s.handleVendors)
	api.HandleFunc("GET /api/accounts", s.handleAccounts)
	api.HandleFunc("GET /api/runs", s.handleRuns)
	api.HandleFunc("GET /api/runs/export", s.handleRunsExport)

	root := http.NewServeMux()
	root.HandleFunc("GET /healthz", s.handleHealth)
	root.Handle("/api/", s.authMiddleware(s.rateLimitMiddleware(api)))

	return s.requestIDMiddleware(root)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.deps.Health != nil {
		if err := s.deps.Health(r.Context()); err != nil {
			s.logger.Warn("server.health.failed", "error", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
