// Package bill assembles reconciled lines into a QuickBooks bill.
package bill

import (
	"fmt"
	"strings"
	"time"

	"github.com/joseph-ayodele/cfdi-bills/internal/common"
	"github.com/joseph-ayodele/cfdi-bills/internal/entity"
)

// Assemble wraps reconciled lines with header metadata. Zero lines yields
// ErrEmptyBill; such a bill must never be submitted.
func Assemble(lines []entity.ReconciledLine, vendorID string, date time.Time, invoiceNumber string) (*entity.BillDraft, error) {
	if len(lines) == 0 {
		return nil, fmt.Errorf("%w: no valid line items", common.ErrEmptyBill)
	}
	v := common.NewValidator().Field("vendor_id", vendorID, common.Required)
	if err := common.ValidateAndReturnError(v); err != nil {
		return nil, err
	}

	return &entity.BillDraft{
		VendorID:          strings.TrimSpace(vendorID),
		TransactionDate:   dateOnly(date),
		InvoiceNumber:     strings.TrimSpace(invoiceNumber),
		Lines:             append([]entity.ReconciledLine(nil), lines...),
		UnmatchedProducts: []string{},
	}, nil
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
