package entity

import (
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/cfdi-bills/constants"
)

// RunRecord is the persisted outcome of processing one document.
type RunRecord struct {
	ID            uuid.UUID           `json:"id"`
	SourcePath    string              `json:"source_path"`
	ContentHash   string              `json:"content_hash"`
	InvoiceNumber string              `json:"invoice_number"`
	VendorID      string              `json:"vendor_id"`
	Mode          constants.MatchMode `json:"mode"`
	Status        constants.RunStatus `json:"status"`
	Degraded      bool                `json:"degraded"`
	Draft         *BillDraft          `json:"draft,omitempty"`
	BillID        string              `json:"bill_id,omitempty"`
	ErrorMessage  string              `json:"error_message,omitempty"`
	StartedAt     time.Time           `json:"started_at"`
	FinishedAt    time.Time           `json:"finished_at"`
}
