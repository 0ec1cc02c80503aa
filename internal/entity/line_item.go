package entity

import "github.com/shopspring/decimal"

// RawLineItem is one invoice concept as parsed from a CFDI document.
type RawLineItem struct {
	Description       string          `json:"description"`
	ProductIdentifier string          `json:"product_identifier,omitempty"`
	Quantity          decimal.Decimal `json:"quantity"`
	UnitPrice         decimal.Decimal `json:"unit_price"`
	Amount            decimal.Decimal `json:"amount"`
}

// NormalizedSku is the SKU decomposition derived from a line description.
type NormalizedSku struct {
	FullSku    string `json:"full_sku"`
	ParentSku  string `json:"parent_sku"`
	QBMatchKey string `json:"qb_match_key"`
}
