package entity

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/joseph-ayodele/cfdi-bills/constants"
)

// ReconciledLine is one output line of an assembled bill. Exactly one of the
// item fields (ItemID, Quantity, UnitPrice) or AccountID is populated,
// depending on Kind.
type ReconciledLine struct {
	Kind        constants.DetailKind `json:"detail_kind"`
	Amount      decimal.Decimal      `json:"amount"`
	Description string               `json:"description"`

	ItemID    string          `json:"item_id,omitempty"`
	Quantity  decimal.Decimal `json:"quantity,omitzero"`
	UnitPrice decimal.Decimal `json:"unit_price,omitzero"`

	AccountID string `json:"account_id,omitempty"`
}

// IsItemBased reports whether the line references an inventory item.
func (l ReconciledLine) IsItemBased() bool {
	return l.Kind == constants.ItemBasedExpense
}

// DroppedLine is a positive-amount line that produced no bill line because
// nothing matched and no default account was available.
type DroppedLine struct {
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
	Reason      string          `json:"reason"`
}

// SkippedLine is a line excluded before matching because its amount is not positive.
type SkippedLine struct {
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
}

// BillDraft is the assembled bill handed to the submission collaborator.
type BillDraft struct {
	VendorID          string           `json:"vendor_id"`
	TransactionDate   time.Time        `json:"transaction_date"`
	InvoiceNumber     string           `json:"invoice_number,omitempty"`
	Lines             []ReconciledLine `json:"lines"`
	UnmatchedProducts []string         `json:"unmatched_products"`
	Dropped           []DroppedLine    `json:"dropped,omitempty"`
}

// Total sums the line amounts.
func (b *BillDraft) Total() decimal.Decimal {
	total := decimal.Zero
	for _, l := range b.Lines {
		total = total.Add(l.Amount)
	}
	return total
}
