package constants

import (
	"strings"
)

// DetailKind selects which payload shape a bill line carries.
type DetailKind string

const (
	ItemBasedExpense    DetailKind = "ItemBasedExpenseLineDetail"
	AccountBasedExpense DetailKind = "AccountBasedExpenseLineDetail"
)

// MatchMode is the reconciliation mode chosen by the caller.
type MatchMode string

const (
	ModeItemBased    MatchMode = "ItemBased"
	ModeAccountBased MatchMode = "AccountBased"
)

// MatchStrategy records which lookup produced an item match.
type MatchStrategy string

const (
	StrategyComposite   MatchStrategy = "composite"
	StrategyProduct     MatchStrategy = "product"
	StrategyFullSku     MatchStrategy = "full_sku"
	StrategyParent      MatchStrategy = "parent"
	StrategyChild       MatchStrategy = "child"
	StrategyAlnum       MatchStrategy = "alnum"
	StrategyLiveExact   MatchStrategy = "live_exact"
	StrategyLiveLike    MatchStrategy = "live_like"
	StrategyAccountMode MatchStrategy = "account_mode"
	StrategyFallback    MatchStrategy = "fallback"
)

// NotFoundAnnotation is appended to the description of fallback lines.
const NotFoundAnnotation = "(item not found)"

// DefaultAccountType is the QuickBooks account type offered for bill lines.
const DefaultAccountType = "Expense"

// AmountPlaces is the precision QuickBooks keeps for line amounts.
const AmountPlaces = 2

// ParseMode maps loose user input onto a MatchMode.
func ParseMode(input string) (MatchMode, bool) {
	normalized := strings.ToLower(strings.TrimSpace(input))

	// synonyms map
	synonyms := map[string]MatchMode{
		"item":          ModeItemBased,
		"items":         ModeItemBased,
		"itembased":     ModeItemBased,
		"item-based":    ModeItemBased,
		"inventory":     ModeItemBased,
		"account":       ModeAccountBased,
		"accounts":      ModeAccountBased,
		"accountbased":  ModeAccountBased,
		"account-based": ModeAccountBased,
		"expense":       ModeAccountBased,
	}
	if normalized == "" {
		return ModeItemBased, false
	}
	if m, ok := synonyms[normalized]; ok {
		return m, true
	}
	return ModeItemBased, false
}
