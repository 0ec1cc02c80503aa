package catalog

import (
	"context"
	"strings"

	"github.com/joseph-ayodele/cfdi-bills/constants"
	"github.com/joseph-ayodele/cfdi-bills/internal/entity"
)

// Source fetches catalog items from the accounting system.
// FetchItemByName returns nil, nil when no item has that name.
type Source interface {
	FetchAllItems(ctx context.Context) ([]entity.CatalogEntry, error)
	FetchItemByName(ctx context.Context, name string) (*entity.CatalogEntry, error)
	FetchItemsLike(ctx context.Context, pattern string) ([]entity.CatalogEntry, error)
}

// Directory lists vendors and accounts for caller-facing selection.
type Directory interface {
	ListVendors(ctx context.Context) ([]entity.NamedRef, error)
	ListAccounts(ctx context.Context, accountType string) ([]entity.NamedRef, error)
}

// LiveMatch is the result of a live catalog lookup.
type LiveMatch struct {
	ItemID   string
	Name     string
	Strategy constants.MatchStrategy
	Found    bool
}

// ResolveLive queries src by exact name and then by substring. Among
// substring hits, a name containing ":term" or "-term" is preferred over the
// first hit. A miss is a LiveMatch with Found false and a nil error.
func ResolveLive(ctx context.Context, src Source, term string) (LiveMatch, error) {
	term = strings.TrimSpace(term)
	if src == nil || term == "" {
		return LiveMatch{}, nil
	}

	exact, err := src.FetchItemByName(ctx, term)
	if err != nil {
		return LiveMatch{}, err
	}
	if exact != nil && exact.ItemID != "" {
		return LiveMatch{ItemID: exact.ItemID, Name: exact.DisplayName, Strategy: constants.StrategyLiveExact, Found: true}, nil
	}

	like, err := src.FetchItemsLike(ctx, term)
	if err != nil {
		return LiveMatch{}, err
	}
	if best, ok := preferDelimited(like, term); ok {
		return LiveMatch{ItemID: best.ItemID, Name: best.DisplayName, Strategy: constants.StrategyLiveLike, Found: true}, nil
	}
	return LiveMatch{}, nil
}

func preferDelimited(items []entity.CatalogEntry, term string) (entity.CatalogEntry, bool) {
	lt := strings.ToLower(term)
	var first *entity.CatalogEntry
	for i := range items {
		if items[i].ItemID == "" {
			continue
		}
		name := strings.ToLower(items[i].DisplayName)
		if strings.Contains(name, ":"+lt) || strings.Contains(name, "-"+lt) {
			return items[i], true
		}
		if first == nil {
			first = &items[i]
		}
	}
	if first == nil {
		return entity.CatalogEntry{}, false
	}
	return *first, true
}
