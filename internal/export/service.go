package export

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/cfdi-bills/internal/entity"
)

const (
	sheetBills     = "Bills"
	sheetLines     = "Lines"
	sheetUnmatched = "Unmatched"
)

// RunLister is the slice of the run repository the exporter needs.
type RunLister interface {
	ListRuns(ctx context.Context, limit int) ([]*entity.RunRecord, error)
}

// Service produces XLSX workbooks of recorded bill runs.
type Service struct {
	runs   RunLister
	logger *slog.Logger
}

func NewService(runs RunLister, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{runs: runs, logger: logger}
}

// ExportRecentXLSX exports the latest limit runs (repository default when
// limit <= 0).
func (s *Service) ExportRecentXLSX(ctx context.Context, limit int) ([]byte, error) {
	runs, err := s.runs.ListRuns(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	return s.ExportRunsXLSX(ctx, runs)
}

// ExportRunsXLSX writes one row per run to Bills, one row per bill line to
// Lines and one row per unmatched product or dropped line to Unmatched.
func (s *Service) ExportRunsXLSX(ctx context.Context, runs []*entity.RunRecord) ([]byte, error) {
	start := time.Now()

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", sheetBills); err != nil {
		return nil, err
	}
	for _, name := range []string{sheetLines, sheetUnmatched} {
		if _, err := f.NewSheet(name); err != nil {
			return nil, err
		}
	}

	writeRow(f, sheetBills, 1, "Run ID", "Started", "Source", "Invoice", "Vendor", "Mode", "Status", "Degraded", "Total", "Bill ID", "Error")
	writeRow(f, sheetLines, 1, "Run ID", "Invoice", "Line", "Detail", "Description", "Item ID", "Account ID", "Quantity", "Unit Price", "Amount")
	writeRow(f, sheetUnmatched, 1, "Run ID", "Invoice", "Description", "Dropped", "Amount", "Reason")

	billRow, lineRow, missRow := 2, 2, 2
	for _, r := range runs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		id := r.ID.String()

		var total any
		if r.Draft != nil {
			total = r.Draft.Total().InexactFloat64()
		}
		started := ""
		if !r.StartedAt.IsZero() {
			started = r.StartedAt.UTC().Format(time.RFC3339)
		}
		writeRow(f, sheetBills, billRow,
			id, started, r.SourcePath, r.InvoiceNumber, r.VendorID, string(r.Mode), string(r.Status),
			r.Degraded, total, r.BillID, truncate(r.ErrorMessage, 140))
		billRow++

		if r.Draft == nil {
			continue
		}
		for i, l := range r.Draft.Lines {
			var qty, price any
			if l.IsItemBased() {
				qty = l.Quantity.InexactFloat64()
				price = l.UnitPrice.InexactFloat64()
			}
			writeRow(f, sheetLines, lineRow,
				id, r.InvoiceNumber, i+1, string(l.Kind), l.Description, l.ItemID, l.AccountID,
				qty, price, l.Amount.InexactFloat64())
			lineRow++
		}

		dropped := make(map[string]entity.DroppedLine, len(r.Draft.Dropped))
		for _, d := range r.Draft.Dropped {
			dropped[d.Description] = d
		}
		for _, desc := range r.Draft.UnmatchedProducts {
			d, isDropped := dropped[desc]
			var amount any
			if isDropped {
				amount = d.Amount.InexactFloat64()
			}
			writeRow(f, sheetUnmatched, missRow, id, r.InvoiceNumber, desc, isDropped, amount, d.Reason)
			missRow++
		}
	}

	_ = f.SetColWidth(sheetBills, "A", "A", 38)
	_ = f.SetColWidth(sheetBills, "B", "C", 24)
	_ = f.SetColWidth(sheetBills, "K", "K", 48)
	_ = f.SetColWidth(sheetLines, "E", "E", 48)
	_ = f.SetColWidth(sheetUnmatched, "C", "C", 48)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}

	s.logger.Info("export.xlsx.ok",
		"runs", len(runs),
		"lines", lineRow-2,
		"unmatched", missRow-2,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

func writeRow(f *excelize.File, sheet string, row int, values ...any) {
	for i, v := range values {
		if v == nil {
			continue
		}
		cell, _ := excelize.CoordinatesToCellName(i+1, row)
		_ = f.SetCellValue(sheet, cell, v)
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if n <= 0 || len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
