// Package reconcile maps invoice lines onto QuickBooks items or an expense account.
package reconcile

import (
	"context"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/joseph-ayodele/cfdi-bills/constants"
	"github.com/joseph-ayodele/cfdi-bills/internal/catalog"
	"github.com/joseph-ayodele/cfdi-bills/internal/common"
	"github.com/joseph-ayodele/cfdi-bills/internal/entity"
	"github.com/joseph-ayodele/cfdi-bills/internal/sku"
)

const reasonNoDefaultAccount = "no matching item and no default account"

// Options control one reconciliation call.
type Options struct {
	Mode constants.MatchMode
	// AccountID is the target account in AccountBased mode and the fallback
	// account for unmatched lines in ItemBased mode.
	AccountID string
	// Lookup is consulted when no index key matches. Nil disables live lookups.
	Lookup catalog.Source
	// Memo deduplicates live lookups. Nil means a fresh memo per call.
	Memo *catalog.LookupMemo
}

// Match records how an emitted item line was resolved.
type Match struct {
	LineIndex int                     `json:"line_index"`
	Key       string                  `json:"key"`
	ItemID    string                  `json:"item_id"`
	Strategy  constants.MatchStrategy `json:"strategy"`
}

// Result is the outcome of reconciling one document's lines.
type Result struct {
	Lines     []entity.ReconciledLine `json:"lines"`
	Unmatched []string                `json:"unmatched"`
	Dropped   []entity.DroppedLine    `json:"dropped"`
	Skipped   []entity.SkippedLine    `json:"skipped"`
	Matches   []Match                 `json:"matches"`
}

// Balanced reports whether every input line is accounted for exactly once.
func (r *Result) Balanced(inputCount int) bool {
	return len(r.Lines)+len(r.Dropped)+len(r.Skipped) == inputCount
}

// Reconciler is stateless apart from its logger; Reconcile may be called
// concurrently for different documents.
type Reconciler struct {
	logger *slog.Logger
}

func NewReconciler(logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{logger: logger}
}

// Reconcile resolves lines against idx. Lines with a non-positive amount are
// skipped. A line that matches nothing becomes an AccountBased fallback line
// when opts.AccountID is set and is dropped otherwise; both cases are listed
// in Unmatched. The context is checked after every line and cancellation
// discards the partial result.
func (r *Reconciler) Reconcile(ctx context.Context, lines []entity.RawLineItem, idx *catalog.Index, opts Options) (*Result, error) {
	if opts.Mode == "" {
		opts.Mode = constants.ModeItemBased
	}
	if opts.Mode == constants.ModeAccountBased && strings.TrimSpace(opts.AccountID) == "" {
		return nil, common.InvalidInputErrorf("account id is required in %s mode", opts.Mode)
	}
	if opts.Mode != constants.ModeAccountBased && opts.Mode != constants.ModeItemBased {
		return nil, common.InvalidInputErrorf("unknown reconcile mode %q", opts.Mode)
	}
	memo := opts.Memo
	if memo == nil {
		memo = catalog.NewLookupMemo()
	}

	res := &Result{
		Lines:     make([]entity.ReconciledLine, 0, len(lines)),
		Unmatched: []string{},
		Dropped:   []entity.DroppedLine{},
		Skipped:   []entity.SkippedLine{},
		Matches:   []Match{},
	}
	seen := make(map[string]struct{})

	for i, line := range lines {
		r.reconcileLine(ctx, i, line, idx, opts, memo, res, seen)

		if err := ctx.Err(); err != nil {
			r.logger.Warn("reconcile.cancelled", "processed", i+1, "total", len(lines), "error", err)
			return nil, err
		}
	}

	r.logger.Info("reconcile.done",
		"mode", string(opts.Mode),
		"input", len(lines),
		"lines", len(res.Lines),
		"unmatched", len(res.Unmatched),
		"dropped", len(res.Dropped),
		"skipped", len(res.Skipped),
		"live_lookups", memo.Calls(),
	)
	return res, nil
}

func (r *Reconciler) reconcileLine(
	ctx context.Context,
	i int,
	line entity.RawLineItem,
	idx *catalog.Index,
	opts Options,
	memo *catalog.LookupMemo,
	res *Result,
	seen map[string]struct{},
) {
	// amounts that round to zero cents would reach the bill as 0
	if !line.Amount.Round(constants.AmountPlaces).IsPositive() {
		r.logger.Info("reconcile.line.skipped", "line", i+1, "description", line.Description, "amount", line.Amount.String())
		res.Skipped = append(res.Skipped, entity.SkippedLine{Description: line.Description, Amount: line.Amount})
		return
	}

	if opts.Mode == constants.ModeAccountBased {
		res.Lines = append(res.Lines, accountLine(line, line.Description, opts.AccountID))
		return
	}

	norm := sku.Normalize(line.Description, line.ProductIdentifier)
	key, itemID, strategy, ok := matchIndex(idx, line, norm)
	if !ok {
		key, itemID, strategy, ok = r.matchLive(ctx, i, opts.Lookup, memo, line, norm)
	}

	if ok {
		qty := line.Quantity
		if !qty.IsPositive() {
			qty = decimal.NewFromInt(1)
		}
		res.Lines = append(res.Lines, entity.ReconciledLine{
			Kind:        constants.ItemBasedExpense,
			Amount:      line.Amount,
			Description: line.Description,
			ItemID:      itemID,
			Quantity:    qty,
			UnitPrice:   line.Amount.Div(qty),
		})
		res.Matches = append(res.Matches, Match{LineIndex: i, Key: key, ItemID: itemID, Strategy: strategy})
		r.logger.Debug("reconcile.line.matched", "line", i+1, "key", key, "item_id", itemID, "strategy", string(strategy))
		return
	}

	if _, dup := seen[line.Description]; !dup {
		seen[line.Description] = struct{}{}
		res.Unmatched = append(res.Unmatched, line.Description)
	}

	if strings.TrimSpace(opts.AccountID) == "" {
		r.logger.Warn("reconcile.line.dropped", "line", i+1, "description", line.Description, "amount", line.Amount.String())
		res.Dropped = append(res.Dropped, entity.DroppedLine{
			Description: line.Description,
			Amount:      line.Amount,
			Reason:      reasonNoDefaultAccount,
		})
		return
	}

	r.logger.Info("reconcile.line.fallback", "line", i+1, "description", line.Description, "account_id", opts.AccountID)
	res.Lines = append(res.Lines, accountLine(line, line.Description+" "+constants.NotFoundAnnotation, opts.AccountID))
}

// matchIndex tries the index keys in priority order.
func matchIndex(idx *catalog.Index, line entity.RawLineItem, norm entity.NormalizedSku) (string, string, constants.MatchStrategy, bool) {
	parent, child := sku.SplitDash(norm.FullSku)
	product := line.Description

	candidates := []struct {
		key      string
		strategy constants.MatchStrategy
	}{
		{norm.QBMatchKey, constants.StrategyComposite},
		{product, constants.StrategyProduct},
		{norm.FullSku, constants.StrategyFullSku},
		{parent, constants.StrategyParent},
		{child, constants.StrategyChild},
		{sku.StripNonAlnum(product), constants.StrategyAlnum},
	}
	for _, c := range candidates {
		if id, ok := idx.Lookup(c.key); ok {
			return strings.ToLower(strings.TrimSpace(c.key)), id, c.strategy, true
		}
	}
	return "", "", "", false
}

// matchLive queries the live catalog once per distinct term. Lookup failures
// degrade to a miss.
func (r *Reconciler) matchLive(
	ctx context.Context,
	i int,
	src catalog.Source,
	memo *catalog.LookupMemo,
	line entity.RawLineItem,
	norm entity.NormalizedSku,
) (string, string, constants.MatchStrategy, bool) {
	if src == nil {
		return "", "", "", false
	}
	term := norm.FullSku
	if term == "" {
		term = line.Description
	}
	m, err := memo.Resolve(ctx, src, term)
	if err != nil {
		r.logger.Warn("reconcile.live_lookup.failed", "line", i+1, "term", term, "error", err)
		return "", "", "", false
	}
	if !m.Found {
		return "", "", "", false
	}
	return strings.ToLower(term), m.ItemID, m.Strategy, true
}

func accountLine(line entity.RawLineItem, description, accountID string) entity.ReconciledLine {
	return entity.ReconciledLine{
		Kind:        constants.AccountBasedExpense,
		Amount:      line.Amount,
		Description: description,
		AccountID:   accountID,
	}
}
