// Package catalog indexes and fetches the QuickBooks item catalog.
package catalog

import (
	"strings"

	"github.com/joseph-ayodele/cfdi-bills/internal/entity"
	"github.com/joseph-ayodele/cfdi-bills/internal/sku"
)

// Index maps lower-cased lookup keys to item ids. It is built once per run
// and read-only afterwards.
type Index struct {
	keys    map[string]string
	claims  map[string][]string
	order   []string // keys in the order they became ambiguous
	entries []entity.CatalogEntry
}

// Collision is a key registered by more than one distinct item. The last
// registered item owns the key.
type Collision struct {
	Key     string
	ItemIDs []string
}

// BuildIndex registers every plausible key for each catalog entry:
// the full name, its alphanumeric-only form, and for "parent:child" names
// the parent, the child, each dash segment of the child and the child's
// alphanumeric-only form. Later entries overwrite earlier ones on collision.
func BuildIndex(catalog []entity.CatalogEntry) *Index {
	ix := &Index{
		keys:    make(map[string]string, len(catalog)*4),
		claims:  make(map[string][]string),
		entries: make([]entity.CatalogEntry, 0, len(catalog)),
	}
	for _, e := range catalog {
		if strings.TrimSpace(e.ItemID) == "" {
			continue
		}
		name := strings.ToLower(strings.TrimSpace(e.DisplayName))
		if name == "" {
			continue
		}
		ix.entries = append(ix.entries, e)

		ix.register(name, e.ItemID)
		if alnum := sku.StripNonAlnum(name); alnum != name {
			ix.register(alnum, e.ItemID)
		}

		parent, child, ok := strings.Cut(name, ":")
		if !ok {
			continue
		}
		ix.register(parent, e.ItemID)
		ix.register(child, e.ItemID)
		if strings.Contains(child, "-") {
			for _, seg := range strings.Split(child, "-") {
				ix.register(seg, e.ItemID)
			}
			ix.register(sku.StripNonAlnum(child), e.ItemID)
		}
	}
	return ix
}

func (ix *Index) register(key, itemID string) {
	key = strings.TrimSpace(key)
	if key == "" {
		return
	}
	prev, exists := ix.keys[key]
	ix.keys[key] = itemID
	if !exists || prev == itemID {
		return
	}
	ids := ix.claims[key]
	if len(ids) == 0 {
		ids = append(ids, prev)
		ix.order = append(ix.order, key)
	}
	for _, id := range ids {
		if id == itemID {
			return
		}
	}
	ix.claims[key] = append(ids, itemID)
}

// Lookup finds the item registered for key, ignoring case and surrounding space.
func (ix *Index) Lookup(key string) (string, bool) {
	if ix == nil {
		return "", false
	}
	key = strings.ToLower(strings.TrimSpace(key))
	if key == "" {
		return "", false
	}
	id, ok := ix.keys[key]
	return id, ok
}

// Len returns the number of registered keys.
func (ix *Index) Len() int {
	if ix == nil {
		return 0
	}
	return len(ix.keys)
}

// Entries returns the catalog entries that were indexed.
func (ix *Index) Entries() []entity.CatalogEntry {
	if ix == nil {
		return nil
	}
	return ix.entries
}

// Collisions lists ambiguous keys in registration order.
func (ix *Index) Collisions() []Collision {
	if ix == nil || len(ix.order) == 0 {
		return nil
	}
	out := make([]Collision, 0, len(ix.order))
	for _, k := range ix.order {
		out = append(out, Collision{Key: k, ItemIDs: append([]string(nil), ix.claims[k]...)})
	}
	return out
}
