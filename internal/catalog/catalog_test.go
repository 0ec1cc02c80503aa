package catalog

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/joseph-ayodele/cfdi-bills/constants"
	"github.com/joseph-ayodele/cfdi-bills/internal/entity"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// countingSource records calls and can be told to fail.
type countingSource struct {
	mu       sync.Mutex
	items    []entity.CatalogEntry
	allCalls int
	byName   int
	like     int
	err      error
}

func (s *countingSource) FetchAllItems(_ context.Context) ([]entity.CatalogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.allCalls++
	if s.err != nil {
		return nil, s.err
	}
	return s.items, nil
}

func (s *countingSource) FetchItemByName(ctx context.Context, name string) (*entity.CatalogEntry, error) {
	s.mu.Lock()
	s.byName++
	err := s.err
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return NewStaticSource(s.items).FetchItemByName(ctx, name)
}

func (s *countingSource) FetchItemsLike(ctx context.Context, pattern string) ([]entity.CatalogEntry, error) {
	s.mu.Lock()
	s.like++
	err := s.err
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return NewStaticSource(s.items).FetchItemsLike(ctx, pattern)
}

func TestBuildIndexParentChildKeys(t *testing.T) {
	ix := BuildIndex([]entity.CatalogEntry{{ItemID: "7", DisplayName: "24fauxbois:24fauxbois-sharbor"}})

	for _, key := range []string{
		"24fauxbois:24fauxbois-sharbor",
		"24fauxbois",
		"24fauxbois-sharbor",
		"sharbor",
		"24fauxbois24fauxboissharbor",
		"24fauxboissharbor",
		"24FauxBois-SHARBOR",
	} {
		id, ok := ix.Lookup(key)
		if !ok || id != "7" {
			t.Errorf("Lookup(%q) = (%q, %v), want (7, true)", key, id, ok)
		}
	}
	if len(ix.Collisions()) != 0 {
		t.Errorf("single entry must not collide with itself: %v", ix.Collisions())
	}
	if ix.Len() != 6 {
		t.Errorf("Len() = %d, want 6", ix.Len())
	}
}

func TestBuildIndexPlainName(t *testing.T) {
	ix := BuildIndex([]entity.CatalogEntry{{ItemID: "1", DisplayName: "Office Chair"}})
	if id, ok := ix.Lookup("office chair"); !ok || id != "1" {
		t.Errorf("full name lookup = (%q, %v)", id, ok)
	}
	if id, ok := ix.Lookup("officechair"); !ok || id != "1" {
		t.Errorf("alnum lookup = (%q, %v)", id, ok)
	}
	if _, ok := ix.Lookup("office"); ok {
		t.Error("plain names must not register partial keys")
	}
}

func TestBuildIndexCollisionsLastWins(t *testing.T) {
	ix := BuildIndex([]entity.CatalogEntry{
		{ItemID: "1", DisplayName: "WOOD:WOOD-1"},
		{ItemID: "2", DisplayName: "WOOD:WOOD-2"},
	})
	if id, _ := ix.Lookup("wood"); id != "2" {
		t.Errorf("wood -> %q, want 2 (last writer)", id)
	}
	if id, _ := ix.Lookup("wood-1"); id != "1" {
		t.Errorf("wood-1 -> %q, want 1", id)
	}

	want := []Collision{{Key: "wood", ItemIDs: []string{"1", "2"}}}
	if diff := cmp.Diff(want, ix.Collisions()); diff != "" {
		t.Errorf("Collisions mismatch (-want +got):\n%s", diff)
	}
}

func TestBuildIndexCollisionsInRegistrationOrder(t *testing.T) {
	ix := BuildIndex([]entity.CatalogEntry{
		{ItemID: "1", DisplayName: "ZED:A-1"},
		{ItemID: "2", DisplayName: "ZED:A-2"},
		{ItemID: "3", DisplayName: "ZED:A-3"},
	})
	want := []Collision{
		{Key: "zed", ItemIDs: []string{"1", "2", "3"}},
		{Key: "a", ItemIDs: []string{"1", "2", "3"}},
	}
	if diff := cmp.Diff(want, ix.Collisions()); diff != "" {
		t.Errorf("Collisions mismatch (-want +got):\n%s", diff)
	}
}

func TestBuildIndexSkipsBlankEntries(t *testing.T) {
	ix := BuildIndex([]entity.CatalogEntry{
		{ItemID: "", DisplayName: "no id"},
		{ItemID: "3", DisplayName: "   "},
		{ItemID: "4", DisplayName: "x:-"},
	})
	if len(ix.Entries()) != 1 {
		t.Errorf("Entries = %v", ix.Entries())
	}
	if _, ok := ix.Lookup(""); ok {
		t.Error("empty key must never match")
	}
	if id, ok := ix.Lookup("x"); !ok || id != "4" {
		t.Errorf("parent lookup = (%q, %v)", id, ok)
	}
}

func TestNilIndexLookup(t *testing.T) {
	var ix *Index
	if _, ok := ix.Lookup("anything"); ok {
		t.Error("nil index must miss")
	}
	if ix.Len() != 0 || ix.Collisions() != nil {
		t.Error("nil index must be empty")
	}
}

func TestResolveLive(t *testing.T) {
	src := NewStaticSource([]entity.CatalogEntry{
		{ItemID: "10", DisplayName: "BIGSKU99 bundle"},
		{ItemID: "11", DisplayName: "PARENT:SKU99"},
		{ItemID: "12", DisplayName: "Exact Name"},
	})
	ctx := context.Background()

	got, err := ResolveLive(ctx, src, "exact name")
	if err != nil || got.ItemID != "12" || got.Strategy != constants.StrategyLiveExact {
		t.Errorf("exact: got %+v, %v", got, err)
	}

	got, err = ResolveLive(ctx, src, "SKU99")
	if err != nil || got.ItemID != "11" || got.Strategy != constants.StrategyLiveLike {
		t.Errorf("delimited preference: got %+v, %v", got, err)
	}

	got, err = ResolveLive(ctx, src, "bundle")
	if err != nil || got.ItemID != "10" {
		t.Errorf("first substring hit: got %+v, %v", got, err)
	}

	got, err = ResolveLive(ctx, src, "nothing-here")
	if err != nil || got.Found {
		t.Errorf("miss: got %+v, %v", got, err)
	}
}

func TestLookupMemoDeduplicates(t *testing.T) {
	src := &countingSource{items: []entity.CatalogEntry{{ItemID: "5", DisplayName: "A:A-5"}}}
	memo := NewLookupMemo()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		got, err := memo.Resolve(ctx, src, "A-5")
		if err != nil || !got.Found || got.ItemID != "5" {
			t.Fatalf("round %d: %+v, %v", i, got, err)
		}
		if _, err := memo.Resolve(ctx, src, "missing"); err != nil {
			t.Fatal(err)
		}
	}
	if src.byName != 2 || src.like != 2 {
		t.Errorf("source calls byName=%d like=%d, want 2 each", src.byName, src.like)
	}
	if memo.Calls() != 2 {
		t.Errorf("Calls() = %d, want 2", memo.Calls())
	}
}

func TestLookupMemoDoesNotRememberErrors(t *testing.T) {
	src := &countingSource{err: errors.New("boom")}
	memo := NewLookupMemo()
	for i := 0; i < 2; i++ {
		if _, err := memo.Resolve(context.Background(), src, "X"); err == nil {
			t.Fatal("expected error")
		}
	}
	if src.byName != 2 {
		t.Errorf("byName = %d, want 2", src.byName)
	}
}

func TestCachedSource(t *testing.T) {
	src := &countingSource{items: []entity.CatalogEntry{{ItemID: "1", DisplayName: "A"}}}
	cs := NewCachedSource(src, time.Hour, testLogger())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		items, err := cs.FetchAllItems(ctx)
		if err != nil || len(items) != 1 {
			t.Fatalf("fetch %d: %v %v", i, items, err)
		}
	}
	if src.allCalls != 1 {
		t.Errorf("allCalls = %d, want 1", src.allCalls)
	}

	cs.Invalidate()
	if _, err := cs.FetchAllItems(ctx); err != nil {
		t.Fatal(err)
	}
	if src.allCalls != 2 {
		t.Errorf("after invalidate allCalls = %d, want 2", src.allCalls)
	}
}

func TestCachedSourceDisabledAndErrors(t *testing.T) {
	src := &countingSource{items: []entity.CatalogEntry{{ItemID: "1", DisplayName: "A"}}}
	cs := NewCachedSource(src, 0, testLogger())
	_, _ = cs.FetchAllItems(context.Background())
	_, _ = cs.FetchAllItems(context.Background())
	if src.allCalls != 2 {
		t.Errorf("ttl 0 must not cache: allCalls = %d", src.allCalls)
	}

	failing := &countingSource{err: errors.New("down")}
	cf := NewCachedSource(failing, time.Hour, testLogger())
	if _, err := cf.FetchAllItems(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if _, err := cf.FetchAllItems(context.Background()); err == nil {
		t.Fatal("errors must not be cached as empty catalogs")
	}
	if failing.allCalls != 2 {
		t.Errorf("allCalls = %d, want 2", failing.allCalls)
	}
}

type fakeDirectory struct {
	vendors, accounts int
}

func (d *fakeDirectory) ListVendors(context.Context) ([]entity.NamedRef, error) {
	d.vendors++
	return []entity.NamedRef{{ID: "56", Name: "Maderas SA"}}, nil
}

func (d *fakeDirectory) ListAccounts(_ context.Context, accountType string) ([]entity.NamedRef, error) {
	d.accounts++
	return []entity.NamedRef{{ID: "7", Name: accountType + " account"}}, nil
}

func TestCachedDirectory(t *testing.T) {
	fd := &fakeDirectory{}
	cd := NewCachedDirectory(fd, time.Minute, testLogger())
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := cd.ListVendors(ctx); err != nil {
			t.Fatal(err)
		}
		if _, err := cd.ListAccounts(ctx, "Expense"); err != nil {
			t.Fatal(err)
		}
	}
	refs, _ := cd.ListAccounts(ctx, "Cost of Goods Sold")
	if refs[0].Name != "Cost of Goods Sold account" {
		t.Errorf("account type not part of cache key: %v", refs)
	}
	if fd.vendors != 1 || fd.accounts != 2 {
		t.Errorf("vendors=%d accounts=%d, want 1 and 2", fd.vendors, fd.accounts)
	}
}

func TestLoadStaticSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	content := "items:\n  - id: \"42\"\n    name: \"WOOD:WOOD-1\"\n  - id: \"43\"\n    name: Lamp\n    type: Inventory\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	src, err := LoadStaticSource(path)
	if err != nil {
		t.Fatalf("LoadStaticSource: %v", err)
	}
	items, _ := src.FetchAllItems(context.Background())
	want := []entity.CatalogEntry{
		{ItemID: "42", DisplayName: "WOOD:WOOD-1"},
		{ItemID: "43", DisplayName: "Lamp", Type: "Inventory"},
	}
	if diff := cmp.Diff(want, items); diff != "" {
		t.Errorf("items mismatch (-want +got):\n%s", diff)
	}

	if _, err := LoadStaticSource(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}
