package bill

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/joseph-ayodele/cfdi-bills/constants"
	"github.com/joseph-ayodele/cfdi-bills/internal/entity"
)

// QuickBooks rejects DocNumber values longer than this.
const maxDocNumberLen = 21

// Ref is a QuickBooks reference object.
type Ref struct {
	Value string `json:"value"`
}

type ItemDetail struct {
	ItemRef   Ref     `json:"ItemRef"`
	Qty       float64 `json:"Qty"`
	UnitPrice float64 `json:"UnitPrice"`
}

type AccountDetail struct {
	AccountRef Ref `json:"AccountRef"`
}

type PayloadLine struct {
	DetailType    constants.DetailKind `json:"DetailType"`
	Amount        float64              `json:"Amount"`
	Description   string               `json:"Description,omitempty"`
	ItemDetail    *ItemDetail          `json:"ItemBasedExpenseLineDetail,omitempty"`
	AccountDetail *AccountDetail       `json:"AccountBasedExpenseLineDetail,omitempty"`
}

// Payload is the body POSTed to the QuickBooks bill endpoint.
type Payload struct {
	VendorRef Ref           `json:"VendorRef"`
	TxnDate   string        `json:"TxnDate"`
	DocNumber string        `json:"DocNumber,omitempty"`
	Line      []PayloadLine `json:"Line"`
}

// ToPayload shapes a draft for submission.
func ToPayload(d *entity.BillDraft) (*Payload, error) {
	if d == nil {
		return nil, fmt.Errorf("nil bill draft")
	}
	p := &Payload{
		VendorRef: Ref{Value: d.VendorID},
		TxnDate:   d.TransactionDate.Format(time.DateOnly),
		DocNumber: d.InvoiceNumber,
		Line:      make([]PayloadLine, 0, len(d.Lines)),
	}
	for i, l := range d.Lines {
		pl := PayloadLine{
			DetailType:  l.Kind,
			Amount:      l.Amount.Round(constants.AmountPlaces).InexactFloat64(),
			Description: l.Description,
		}
		switch l.Kind {
		case constants.ItemBasedExpense:
			pl.ItemDetail = &ItemDetail{
				ItemRef:   Ref{Value: l.ItemID},
				Qty:       l.Quantity.InexactFloat64(),
				UnitPrice: l.UnitPrice.Round(unitPricePlaces).InexactFloat64(),
			}
		case constants.AccountBasedExpense:
			pl.AccountDetail = &AccountDetail{AccountRef: Ref{Value: l.AccountID}}
		default:
			return nil, fmt.Errorf("line %d: unknown detail kind %q", i+1, l.Kind)
		}
		p.Line = append(p.Line, pl)
	}
	return p, nil
}

// QuickBooks keeps up to seven decimal places on unit prices.
const unitPricePlaces = 7

// JSON encodes the payload and validates it against BuildBillJSONSchema.
func (p *Payload) JSON() ([]byte, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal bill payload: %w", err)
	}
	if err := ValidatePayload(b); err != nil {
		return nil, err
	}
	return b, nil
}
