package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"

	"github.com/joseph-ayodele/cfdi-bills/internal/app"
	"github.com/joseph-ayodele/cfdi-bills/internal/async"
	"github.com/joseph-ayodele/cfdi-bills/internal/common"
	"github.com/joseph-ayodele/cfdi-bills/internal/ingest"
	"github.com/joseph-ayodele/cfdi-bills/internal/pipeline"
	"github.com/joseph-ayodele/cfdi-bills/internal/repository"
	"github.com/joseph-ayodele/cfdi-bills/internal/server"
)

func main() {
	envFile := flag.String("env-file", "", "load environment from this .env file")
	configFile := flag.String("config", "", "YAML config overlay (defaults to $CONFIG_FILE)")
	flag.Parse()

	cfg, err := common.LoadConfig(*envFile, *configFile)
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	logger := common.NewLogger(os.Stdout, cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	if err := cfg.ValidateServer(); err != nil {
		logger.Error("invalid server configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("billd stopped with error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *common.Config, logger *slog.Logger) error {
	a, err := app.Build(ctx, cfg, logger, app.Options{})
	if err != nil {
		return err
	}
	defer a.Close()

	healthCheck := func(ctx context.Context) error {
		if a.DB == nil {
			return nil
		}
		return repository.HealthCheck(ctx, a.DB, 2*time.Second)
	}
	if err := healthCheck(ctx); err != nil {
		return err
	}

	// gRPC health
	grpcLis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
	if err != nil {
		logger.Error("failed to listen on address", "addr", cfg.Server.GRPCAddr, "error", err)
		return err
	}
	grpcServer := grpc.NewServer()
	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)

	// HTTP API
	deps := server.Deps{Processor: a.Processor, Directory: a.Directory, Health: healthCheck}
	if a.Runs != nil {
		deps.Runs = a.Runs
		deps.Export = a.Export
	}
	httpServer := &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           server.New(deps, cfg.Server, logger).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Inbox watcher feeding the worker queue
	queue := async.NewQueue(inboxHandler(a.Processor, logger), logger,
		async.WithWorkers(cfg.Ingest.Workers),
		async.WithQueueSize(cfg.Ingest.QueueSize),
		async.WithProcessTimeout(cfg.Ingest.Timeout),
	)
	if cfg.Ingest.InboxDir != "" {
		events, watchErrs, err := ingest.StartWatcher(ctx, ingest.WatchConfig{
			Roots:       []string{cfg.Ingest.InboxDir},
			InitialScan: true,
			SkipHidden:  true,
			Debounce:    cfg.Ingest.Debounce,
		}, logger)
		if err != nil {
			_ = queue.Shutdown(context.Background())
			return err
		}
		go feedQueue(ctx, events, watchErrs, queue, logger)
		logger.Info("watching inbox", "dir", cfg.Ingest.InboxDir)
	} else {
		logger.Warn("INBOX_DIR not set; inbox watching disabled")
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Info("grpc health listening", "addr", cfg.Server.GRPCAddr)
		if err := grpcServer.Serve(grpcLis); err != nil {
			errCh <- err
		}
	}()
	go func() {
		logger.Info("http api listening", "addr", cfg.Server.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case serveErr = <-errCh:
		logger.Error("server failed", "error", serveErr)
	}

	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_NOT_SERVING)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", "error", err)
	}
	if err := queue.Shutdown(shutdownCtx); err != nil {
		logger.Warn("queue shutdown", "error", err)
	}
	grpcServer.GracefulStop()
	logger.Info("stopped")
	return serveErr
}

type documentProcessor interface {
	Process(ctx context.Context, req pipeline.Request) (*pipeline.Outcome, error)
}

// inboxHandler previews each new document. Content already processed by this
// process is skipped, so rewrites that do not change the file are free. A
// run that fails for a reason other than the document itself is forgotten,
// so the next event for that file tries again.
func inboxHandler(proc documentProcessor, logger *slog.Logger) async.Handler {
	var seen sync.Map
	return func(ctx context.Context, job async.Job) error {
		doc, err := ingest.HashFile(job.Path)
		if err != nil {
			return err
		}
		if _, dup := seen.LoadOrStore(doc.HashHex, struct{}{}); dup {
			logger.Debug("inbox.document.duplicate", "path", doc.Path, "hash", doc.HashHex)
			return nil
		}
		out, err := previewFile(ctx, proc, doc)
		if err != nil {
			if !documentRejected(err) {
				seen.Delete(doc.HashHex)
			}
			return err
		}
		logger.Info("inbox.document.previewed",
			"path", filepath.Base(doc.Path),
			"trace_id", job.TraceID,
			"run_id", out.RunID.String(),
			"lines", len(out.Draft.Lines),
			"unmatched", len(out.Draft.UnmatchedProducts),
		)
		return nil
	}
}

func previewFile(ctx context.Context, proc documentProcessor, doc ingest.Document) (*pipeline.Outcome, error) {
	data, err := os.ReadFile(doc.Path)
	if err != nil {
		return nil, err
	}
	return proc.Process(ctx, pipeline.Request{
		Document:    data,
		SourcePath:  doc.Path,
		ContentHash: doc.HashHex,
	})
}

// documentRejected reports failures that the same bytes would hit again.
func documentRejected(err error) bool {
	return errors.Is(err, common.ErrMalformedDocument) ||
		errors.Is(err, common.ErrEmptyBill) ||
		errors.Is(err, common.ErrIncompleteBill) ||
		errors.Is(err, common.ErrValidation)
}

// feedQueue forwards watcher events until the watcher closes.
func feedQueue(ctx context.Context, events <-chan string, errs <-chan error, q *async.Queue, logger *slog.Logger) {
	for {
		select {
		case p, ok := <-events:
			if !ok {
				return
			}
			if err := q.Enqueue(ctx, async.Job{Path: p, TraceID: uuid.NewString()}); err != nil {
				logger.Warn("inbox.enqueue.failed", "path", p, "error", err)
			}
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			logger.Warn("inbox.watch.error", "error", err)
		}
	}
}
