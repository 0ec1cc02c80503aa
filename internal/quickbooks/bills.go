package quickbooks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/cfdi-bills/internal/bill"
	"github.com/joseph-ayodele/cfdi-bills/internal/common"
	"github.com/joseph-ayodele/cfdi-bills/internal/entity"
)

// SubmitResult is the outcome of posting a bill. Unmatched echoes the
// draft's unmatched products so callers can report them alongside.
type SubmitResult struct {
	Success   bool            `json:"success"`
	BillID    string          `json:"bill_id,omitempty"`
	Error     string          `json:"error,omitempty"`
	Raw       json.RawMessage `json:"raw,omitempty"`
	Unmatched []string        `json:"unmatched"`
}

// SubmitBill validates and posts the draft. A QuickBooks rejection (4xx) is
// reported as Success=false with a nil error; transport failures and
// exhausted retries return an error.
func (c *Client) SubmitBill(ctx context.Context, draft *entity.BillDraft) (*SubmitResult, error) {
	if draft == nil || len(draft.Lines) == 0 {
		return nil, fmt.Errorf("%w: no valid line items found in bill data", common.ErrEmptyBill)
	}
	payload, err := bill.ToPayload(draft)
	if err != nil {
		return nil, err
	}
	body, err := payload.JSON()
	if err != nil {
		return nil, err
	}

	// QuickBooks de-duplicates creates on requestid, so retries of this
	// POST reuse one id and cannot book the bill twice.
	params := url.Values{}
	params.Set("minorversion", c.cfg.MinorVersion)
	params.Set("requestid", uuid.NewString())
	raw, err := c.send(ctx, http.MethodPost, c.companyURL("bill")+"?"+params.Encode(), body)

	res := &SubmitResult{Unmatched: append([]string{}, draft.UnmatchedProducts...)}
	var se *StatusError
	if errors.As(err, &se) && !se.Retryable() {
		res.Error = se.Error()
		res.Raw = json.RawMessage(se.Body)
		if !json.Valid(res.Raw) {
			res.Raw = nil
		}
		c.logger.Warn("quickbooks.bill.rejected", "status", se.StatusCode, "error", res.Error, "doc_number", draft.InvoiceNumber)
		return res, nil
	}
	if err != nil {
		return nil, err
	}

	var created struct {
		Bill struct {
			ID string `json:"Id"`
		} `json:"Bill"`
	}
	if err := json.Unmarshal(raw, &created); err != nil {
		return nil, fmt.Errorf("decode bill response: %w", err)
	}
	res.Success = true
	res.BillID = created.Bill.ID
	res.Raw = raw
	c.logger.Info("quickbooks.bill.created", "bill_id", res.BillID, "doc_number", draft.InvoiceNumber, "lines", len(draft.Lines))
	return res, nil
}
