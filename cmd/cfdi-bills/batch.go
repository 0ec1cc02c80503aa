package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/cfdi-bills/constants"
	"github.com/joseph-ayodele/cfdi-bills/internal/app"
	"github.com/joseph-ayodele/cfdi-bills/internal/async"
	"github.com/joseph-ayodele/cfdi-bills/internal/common"
	"github.com/joseph-ayodele/cfdi-bills/internal/entity"
	"github.com/joseph-ayodele/cfdi-bills/internal/export"
	"github.com/joseph-ayodele/cfdi-bills/internal/ingest"
	"github.com/joseph-ayodele/cfdi-bills/internal/pipeline"
)

type batchFlags struct {
	dir        string
	out        string
	catalog    string
	workers    int
	submit     bool
	skipHidden bool
}

func newBatchCmd(root *rootFlags) *cobra.Command {
	f := &batchFlags{}
	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Process every CFDI XML file under a directory and write an XLSX report",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if f.dir == "" {
				return common.InvalidInputErrorf("--dir is required")
			}
			if f.out == "" {
				f.out = filepath.Join(filepath.Dir(filepath.Clean(f.dir)), "cfdi-bills.xlsx")
			}
			a, err := root.load(cmd.Context(), app.Options{CatalogFile: f.catalog})
			if err != nil {
				return err
			}
			defer a.Close()
			return runBatch(cmd, a, f)
		},
	}
	cmd.Flags().StringVar(&f.dir, "dir", "", "directory to scan for CFDI XML files (required)")
	cmd.Flags().StringVar(&f.out, "out", "", "XLSX report path (defaults to cfdi-bills.xlsx next to --dir)")
	cmd.Flags().StringVar(&f.catalog, "catalog", "", "offline YAML item catalog")
	cmd.Flags().IntVar(&f.workers, "workers", 0, "parallel documents (defaults to INGEST_WORKERS)")
	cmd.Flags().BoolVar(&f.submit, "submit", false, "post each bill to QuickBooks")
	cmd.Flags().BoolVar(&f.skipHidden, "skip-hidden", true, "ignore dot files and directories")
	return cmd
}

func runBatch(cmd *cobra.Command, a *app.App, f *batchFlags) error {
	ctx := cmd.Context()
	logger := a.Logger
	start := time.Now()

	docs, stats, err := ingest.Discover(ctx, f.dir, f.skipHidden)
	if err != nil {
		return err
	}
	logger.Info("batch.discover.ok",
		"dir", f.dir,
		"scanned", stats.Scanned,
		"matched", stats.Matched,
		"failed", stats.Failed,
		"deduplicated", stats.Deduplicated,
	)

	var todo []ingest.Document
	for _, d := range docs {
		switch {
		case d.Err != "":
			logger.Warn("batch.discover.skipped", "path", d.Path, "error", d.Err)
		case d.Deduplicated:
			logger.Info("batch.discover.duplicate", "path", d.Path, "hash", d.HashHex)
		default:
			todo = append(todo, d)
		}
	}

	bar := progressbar.NewOptions(len(todo),
		progressbar.OptionSetWriter(cmd.ErrOrStderr()),
		progressbar.OptionSetDescription("Processing invoices"),
		progressbar.OptionShowCount(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)

	var (
		mu      sync.Mutex
		records []*entity.RunRecord
		counts  = map[constants.RunStatus]int{}
	)
	byPath := make(map[string]ingest.Document, len(todo))
	for _, d := range todo {
		byPath[d.Path] = d
	}

	workers := f.workers
	if workers <= 0 {
		workers = a.Config.Ingest.Workers
	}
	queue := async.NewQueue(func(ctx context.Context, job async.Job) error {
		defer func() { _ = bar.Add(1) }()
		doc := byPath[job.Path]
		data, err := os.ReadFile(doc.Path)
		if err != nil {
			return err
		}
		out, err := a.Processor.Process(ctx, pipeline.Request{
			Document:    data,
			SourcePath:  doc.Path,
			ContentHash: doc.HashHex,
			Submit:      f.submit,
		})
		mu.Lock()
		defer mu.Unlock()
		if out != nil {
			counts[out.Status]++
			if out.Record != nil {
				records = append(records, out.Record)
			}
		}
		return err
	}, logger, async.WithWorkers(workers), async.WithQueueSize(len(todo)+1), async.WithProcessTimeout(a.Config.Ingest.Timeout))

	for _, d := range todo {
		if err := queue.Enqueue(ctx, async.Job{Path: d.Path, TraceID: d.HashHex[:12]}); err != nil {
			_ = queue.Shutdown(context.Background())
			return err
		}
	}
	if err := queue.Shutdown(context.Background()); err != nil {
		return err
	}
	_ = bar.Finish()

	sort.Slice(records, func(i, j int) bool { return records[i].SourcePath < records[j].SourcePath })
	xlsx, err := export.NewService(nil, logger).ExportRunsXLSX(ctx, records)
	if err != nil {
		return err
	}
	if err := os.WriteFile(f.out, xlsx, 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}

	logger.Info("batch.done",
		"documents", len(todo),
		"elapsed_ms", time.Since(start).Milliseconds(),
		"report", f.out,
	)

	w := cmd.OutOrStdout()
	fmt.Fprintln(w, "Batch processing complete!")
	fmt.Fprintf(w, "- Documents: %d (skipped %d duplicates, %d unreadable)\n", len(todo), stats.Deduplicated, stats.Failed)
	for _, s := range []constants.RunStatus{constants.RunStatusPreviewed, constants.RunStatusSubmitted, constants.RunStatusRejected, constants.RunStatusFailed} {
		if counts[s] > 0 {
			fmt.Fprintf(w, "- %s: %d\n", s, counts[s])
		}
	}
	fmt.Fprintf(w, "- Report: %s\n", f.out)
	return nil
}
