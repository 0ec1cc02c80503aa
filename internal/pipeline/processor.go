// Package pipeline runs a CFDI document through extraction, reconciliation,
// bill assembly and (optionally) submission.
package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/cfdi-bills/constants"
	"github.com/joseph-ayodele/cfdi-bills/internal/bill"
	"github.com/joseph-ayodele/cfdi-bills/internal/catalog"
	"github.com/joseph-ayodele/cfdi-bills/internal/cfdi"
	"github.com/joseph-ayodele/cfdi-bills/internal/common"
	"github.com/joseph-ayodele/cfdi-bills/internal/entity"
	"github.com/joseph-ayodele/cfdi-bills/internal/quickbooks"
	"github.com/joseph-ayodele/cfdi-bills/internal/reconcile"
)

// Submitter posts an assembled bill to the accounting system.
type Submitter interface {
	SubmitBill(ctx context.Context, draft *entity.BillDraft) (*quickbooks.SubmitResult, error)
}

// RunRecorder persists run outcomes.
type RunRecorder interface {
	SaveRun(ctx context.Context, run *entity.RunRecord) error
}

// Options are process-wide defaults applied when a Request leaves them empty.
type Options struct {
	DefaultMode      constants.MatchMode
	DefaultVendorID  string
	DefaultAccountID string
	// BlockOnDropped refuses submission when any line was dropped for lack
	// of a default account.
	BlockOnDropped bool
}

// Request describes one document to process.
type Request struct {
	Document    []byte
	SourcePath  string
	ContentHash string // computed from Document when empty
	VendorID    string
	AccountID   string
	Mode        constants.MatchMode
	TxnDate     time.Time // today (UTC) when zero
	Submit      bool
}

// Outcome is everything a caller needs to show or audit a run.
type Outcome struct {
	RunID         uuid.UUID                `json:"run_id"`
	Status        constants.RunStatus      `json:"status"`
	InvoiceNumber string                   `json:"invoice_number"`
	Warnings      []string                 `json:"warnings,omitempty"`
	Degraded      bool                     `json:"degraded"`
	Collisions    []catalog.Collision      `json:"collisions,omitempty"`
	Result        *reconcile.Result        `json:"result,omitempty"`
	Draft         *entity.BillDraft        `json:"draft,omitempty"`
	Payload       *bill.Payload            `json:"payload,omitempty"`
	Submission    *quickbooks.SubmitResult `json:"submission,omitempty"`
	Error         string                   `json:"error,omitempty"`

	// Record is the audit row for this run, saved when a RunRecorder is set.
	Record *entity.RunRecord `json:"-"`
}

// Processor coordinates the stages for one document at a time. It holds no
// per-run state and is safe for concurrent use.
type Processor struct {
	Logger     *slog.Logger
	Extractor  *cfdi.Extractor
	Catalog    *CatalogStage
	Reconciler *reconcile.Reconciler
	Submitter  Submitter
	Runs       RunRecorder
	Opts       Options

	now func() time.Time
}

// NewProcessor wires the stages. submitter and runs may be nil; without a
// submitter Submit requests fail, without runs nothing is persisted.
func NewProcessor(logger *slog.Logger, src catalog.Source, submitter Submitter, runs RunRecorder, opts Options) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.DefaultMode == "" {
		opts.DefaultMode = constants.ModeItemBased
	}
	return &Processor{
		Logger:     logger,
		Extractor:  cfdi.NewExtractor(logger),
		Catalog:    NewCatalogStage(src, logger),
		Reconciler: reconcile.NewReconciler(logger),
		Submitter:  submitter,
		Runs:       runs,
		Opts:       opts,
		now:        time.Now,
	}
}

// Process runs one document end to end. The returned Outcome is never nil;
// on error its Status is FAILED or REJECTED and Error holds the message.
// An empty bill yields ErrEmptyBill and is never submitted.
func (p *Processor) Process(ctx context.Context, req Request) (*Outcome, error) {
	runID := uuid.New()
	ctx = common.WithRunID(ctx, runID.String())
	start := p.now().UTC()

	req = p.applyDefaults(req)
	out := &Outcome{RunID: runID}
	rec := &entity.RunRecord{
		ID:          runID,
		SourcePath:  req.SourcePath,
		ContentHash: req.ContentHash,
		VendorID:    req.VendorID,
		Mode:        req.Mode,
		StartedAt:   start,
	}

	err := p.run(ctx, req, out)
	p.finish(ctx, rec, out, err)

	p.Logger.Info("pipeline.run.done",
		"run_id", runID.String(),
		"source", req.SourcePath,
		"status", string(out.Status),
		"invoice", out.InvoiceNumber,
		"degraded", out.Degraded,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return out, err
}

func (p *Processor) applyDefaults(req Request) Request {
	if req.Mode == "" {
		req.Mode = p.Opts.DefaultMode
	}
	if strings.TrimSpace(req.VendorID) == "" {
		req.VendorID = p.Opts.DefaultVendorID
	}
	if strings.TrimSpace(req.AccountID) == "" {
		req.AccountID = p.Opts.DefaultAccountID
	}
	if req.TxnDate.IsZero() {
		req.TxnDate = p.now().UTC()
	}
	if req.ContentHash == "" && len(req.Document) > 0 {
		sum := sha256.Sum256(req.Document)
		req.ContentHash = hex.EncodeToString(sum[:])
	}
	return req
}

func (p *Processor) run(ctx context.Context, req Request, out *Outcome) error {
	inv, err := p.Extractor.Extract(req.Document)
	if err != nil {
		return err
	}
	out.InvoiceNumber = inv.InvoiceNumber
	for _, w := range inv.Warnings {
		out.Warnings = append(out.Warnings, w.Error())
	}

	var ix IndexResult
	if req.Mode == constants.ModeItemBased {
		ix, err = p.Catalog.Run(ctx)
		if err != nil {
			return err
		}
		out.Degraded = ix.Degraded
		out.Collisions = ix.Index.Collisions()
		if ix.Warning != nil {
			out.Warnings = append(out.Warnings, ix.Warning.Error())
		}
	}

	res, err := p.Reconciler.Reconcile(ctx, inv.Lines, ix.Index, reconcile.Options{
		Mode:      req.Mode,
		AccountID: req.AccountID,
		Lookup:    ix.Lookup,
	})
	if err != nil {
		return err
	}
	out.Result = res

	draft, err := bill.Assemble(res.Lines, req.VendorID, req.TxnDate, inv.InvoiceNumber)
	if err != nil {
		return err
	}
	draft.UnmatchedProducts = append(draft.UnmatchedProducts, res.Unmatched...)
	draft.Dropped = res.Dropped
	out.Draft = draft

	payload, err := bill.ToPayload(draft)
	if err != nil {
		return err
	}
	if _, err := payload.JSON(); err != nil {
		return err
	}
	out.Payload = payload

	if !req.Submit {
		out.Status = constants.RunStatusPreviewed
		return nil
	}
	return p.submit(ctx, draft, out)
}

func (p *Processor) submit(ctx context.Context, draft *entity.BillDraft, out *Outcome) error {
	if p.Submitter == nil {
		return common.InvalidInputErrorf("bill submission is not configured")
	}
	if p.Opts.BlockOnDropped && len(draft.Dropped) > 0 {
		return fmt.Errorf("%w: %d line(s) dropped without a default account", common.ErrIncompleteBill, len(draft.Dropped))
	}

	sr, err := p.Submitter.SubmitBill(ctx, draft)
	if err != nil {
		return err
	}
	out.Submission = sr
	if sr.Success {
		out.Status = constants.RunStatusSubmitted
	} else {
		out.Status = constants.RunStatusRejected
		out.Error = sr.Error
	}
	return nil
}

// finish settles the status for failed runs and records the run. Saving is
// detached from ctx so a cancelled run is still audited.
func (p *Processor) finish(ctx context.Context, rec *entity.RunRecord, out *Outcome, err error) {
	if err != nil {
		out.Error = err.Error()
		if errors.Is(err, common.ErrEmptyBill) || errors.Is(err, common.ErrIncompleteBill) {
			out.Status = constants.RunStatusRejected
		} else {
			out.Status = constants.RunStatusFailed
		}
		p.Logger.Warn("pipeline.run.failed", "run_id", rec.ID.String(), "status", string(out.Status), "error", err)
	}

	rec.InvoiceNumber = out.InvoiceNumber
	rec.Status = out.Status
	rec.Degraded = out.Degraded
	rec.Draft = out.Draft
	rec.ErrorMessage = out.Error
	if out.Submission != nil {
		rec.BillID = out.Submission.BillID
	}
	rec.FinishedAt = p.now().UTC()
	out.Record = rec

	if p.Runs == nil {
		return
	}
	if err := p.Runs.SaveRun(context.WithoutCancel(ctx), rec); err != nil {
		p.Logger.Error("pipeline.run.record_failed", "run_id", rec.ID.String(), "error", err)
	}
}
