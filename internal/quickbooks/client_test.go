package quickbooks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/joseph-ayodele/cfdi-bills/constants"
	"github.com/joseph-ayodele/cfdi-bills/internal/common"
	"github.com/joseph-ayodele/cfdi-bills/internal/entity"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestClient(t *testing.T, h http.HandlerFunc, retries int) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(Config{
		BaseURL:      srv.URL,
		RealmID:      "123",
		MaxRetries:   retries,
		RetryBackoff: time.Millisecond,
		HTTPClient:   srv.Client(),
	}, testLogger())
}

// queryLog records query strings seen by a test server.
type queryLog struct {
	mu      sync.Mutex
	queries []string
}

func (l *queryLog) add(q string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.queries = append(l.queries, q)
}

func (l *queryLog) all() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.queries...)
}

func (l *queryLog) last() string {
	all := l.all()
	if len(all) == 0 {
		return ""
	}
	return all[len(all)-1]
}

func writeItems(w http.ResponseWriter, items []qbItem) {
	var resp QueryResponse
	resp.QueryResponse.Item = items
	_ = json.NewEncoder(w).Encode(resp)
}

func TestFetchAllItemsPaginates(t *testing.T) {
	var log queryLog
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v3/company/123/query" {
			t.Errorf("path = %s", r.URL.Path)
		}
		q := r.URL.Query().Get("query")
		log.add(q)
		if strings.Contains(q, "STARTPOSITION 1 ") {
			items := make([]qbItem, pageSize)
			for i := range items {
				items[i] = qbItem{ID: fmt.Sprint(i + 1), Name: fmt.Sprintf("item-%d", i+1)}
			}
			writeItems(w, items)
			return
		}
		writeItems(w, []qbItem{{ID: "1001", Name: "WOOD-1", FullyQualifiedName: "WOOD:WOOD-1", Type: "Inventory"}})
	}, 0)

	items, err := c.FetchAllItems(context.Background())
	if err != nil {
		t.Fatalf("FetchAllItems: %v", err)
	}
	if len(items) != pageSize+1 {
		t.Fatalf("got %d items", len(items))
	}
	last := items[len(items)-1]
	if last.DisplayName != "WOOD:WOOD-1" || last.ItemID != "1001" || last.Type != "Inventory" {
		t.Errorf("last item = %+v, want fully qualified name", last)
	}
	queries := log.all()
	if len(queries) != 2 || !strings.Contains(queries[1], "STARTPOSITION 1001 MAXRESULTS 1000") {
		t.Errorf("queries = %q", queries)
	}
	if !strings.Contains(queries[0], "WHERE Active = true") {
		t.Errorf("query must filter active items: %q", queries[0])
	}
}

func TestFetchItemByName(t *testing.T) {
	var log queryLog
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query().Get("query")
		log.add(q)
		if strings.Contains(q, "MISSING") {
			writeItems(w, nil)
			return
		}
		writeItems(w, []qbItem{{ID: "9", Name: "WOOD-1", FullyQualifiedName: "WOOD:WOOD-1"}})
	}, 0)
	ctx := context.Background()

	got, err := c.FetchItemByName(ctx, "WOOD:WOOD-1")
	if err != nil || got == nil || got.ItemID != "9" {
		t.Fatalf("got %+v, %v", got, err)
	}
	if !strings.Contains(log.last(), "FullyQualifiedName = 'WOOD:WOOD-1'") {
		t.Errorf("query = %q", log.last())
	}

	if _, err := c.FetchItemByName(ctx, "O'Brien \"chair\""); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(log.last(), "Name = 'OBrien chair'") {
		t.Errorf("quotes not stripped: %q", log.last())
	}

	got, err = c.FetchItemByName(ctx, "MISSING")
	if err != nil || got != nil {
		t.Errorf("miss: got %+v, %v", got, err)
	}
}

func TestFetchItemsLike(t *testing.T) {
	var log queryLog
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		log.add(r.URL.Query().Get("query"))
		writeItems(w, []qbItem{{ID: "1", Name: "A-ZZ"}, {ID: "2", Name: "B-ZZ"}})
	}, 0)
	items, err := c.FetchItemsLike(context.Background(), "ZZ")
	if err != nil || len(items) != 2 {
		t.Fatalf("got %v, %v", items, err)
	}
	if !strings.Contains(log.last(), "Name LIKE '%ZZ%'") {
		t.Errorf("query = %q", log.last())
	}
}

func TestDirectories(t *testing.T) {
	var log queryLog
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		log.add(r.URL.Query().Get("query"))
		var resp QueryResponse
		resp.QueryResponse.Vendor = []qbVendor{{ID: "56", DisplayName: "Maderas SA"}}
		resp.QueryResponse.Account = []qbAccount{{ID: "7", Name: "Office Expenses"}}
		_ = json.NewEncoder(w).Encode(resp)
	}, 0)
	ctx := context.Background()

	vendors, err := c.ListVendors(ctx)
	if err != nil || len(vendors) != 1 || vendors[0] != (entity.NamedRef{ID: "56", Name: "Maderas SA"}) {
		t.Errorf("vendors = %v, %v", vendors, err)
	}
	if !strings.Contains(log.last(), "FROM Vendor WHERE Active = true") {
		t.Errorf("vendor query = %q", log.last())
	}

	accounts, err := c.ListAccounts(ctx, "")
	if err != nil || len(accounts) != 1 || accounts[0].ID != "7" {
		t.Errorf("accounts = %v, %v", accounts, err)
	}
	if !strings.Contains(log.last(), "AccountType = 'Expense'") {
		t.Errorf("account query = %q", log.last())
	}
}

func TestRetriesTransientFailures(t *testing.T) {
	var hits int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		writeItems(w, []qbItem{{ID: "1", Name: "A"}})
	}, 2)

	items, err := c.FetchAllItems(context.Background())
	if err != nil || len(items) != 1 {
		t.Fatalf("got %v, %v", items, err)
	}
	if atomic.LoadInt32(&hits) != 3 {
		t.Errorf("hits = %d, want 3", hits)
	}
}

func TestRetriesAreBounded(t *testing.T) {
	var hits int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusTooManyRequests)
	}, 1)

	_, err := c.FetchAllItems(context.Background())
	var se *StatusError
	if !errors.As(err, &se) || se.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("err = %v, want wrapped 429 StatusError", err)
	}
	if atomic.LoadInt32(&hits) != 2 {
		t.Errorf("hits = %d, want 2", hits)
	}
}

func TestNoRetryOnClientError(t *testing.T) {
	var hits int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"Fault":{"Error":[{"Message":"Invalid query","Detail":"bad token"}],"type":"ValidationFault"}}`))
	}, 3)

	_, err := c.ListVendors(context.Background())
	if err == nil || !strings.Contains(err.Error(), "Invalid query: bad token") {
		t.Fatalf("err = %v", err)
	}
	if atomic.LoadInt32(&hits) != 1 {
		t.Errorf("hits = %d, want 1", hits)
	}
}

func TestRetryHonoursContext(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}, 5)
	c.cfg.RetryBackoff = time.Hour

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	start := time.Now()
	_, err := c.FetchAllItems(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Error("retry wait ignored cancellation")
	}
}

func draft() *entity.BillDraft {
	return &entity.BillDraft{
		VendorID:        "56",
		TransactionDate: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
		InvoiceNumber:   "A-1001",
		Lines: []entity.ReconciledLine{{
			Kind:        constants.ItemBasedExpense,
			Amount:      decimal.NewFromInt(150),
			Description: "Chair SKU: WOOD-1",
			ItemID:      "99",
			Quantity:    decimal.NewFromInt(1),
			UnitPrice:   decimal.NewFromInt(150),
		}},
		UnmatchedProducts: []string{"Mystery"},
	}
}

func TestSubmitBill(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v3/company/123/bill" {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		if body["DocNumber"] != "A-1001" || body["TxnDate"] != "2024-05-01" {
			t.Errorf("body = %v", body)
		}
		_, _ = w.Write([]byte(`{"Bill":{"Id":"145","SyncToken":"0"},"time":"2024-05-01T10:00:00Z"}`))
	}, 0)

	res, err := c.SubmitBill(context.Background(), draft())
	if err != nil {
		t.Fatalf("SubmitBill: %v", err)
	}
	if !res.Success || res.BillID != "145" {
		t.Errorf("result = %+v", res)
	}
	if len(res.Unmatched) != 1 || res.Unmatched[0] != "Mystery" {
		t.Errorf("unmatched not echoed: %v", res.Unmatched)
	}
}

func TestSubmitBillRejected(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"Fault":{"Error":[{"Message":"Object Not Found","Detail":"Vendor 56 is inactive","code":"610"}],"type":"ValidationFault"}}`))
	}, 2)

	res, err := c.SubmitBill(context.Background(), draft())
	if err != nil {
		t.Fatalf("rejection must not be an error: %v", err)
	}
	if res.Success || !strings.Contains(res.Error, "Vendor 56 is inactive") {
		t.Errorf("result = %+v", res)
	}
}

func TestSubmitBillEmpty(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("empty bill must not reach the API")
	}, 0)
	d := draft()
	d.Lines = nil
	if _, err := c.SubmitBill(context.Background(), d); !errors.Is(err, common.ErrEmptyBill) {
		t.Errorf("err = %v, want ErrEmptyBill", err)
	}
}

func TestSubmitBillRetryReusesRequestID(t *testing.T) {
	var (
		hits int32
		log  queryLog
	)
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		log.add(r.URL.Query().Get("requestid"))
		if atomic.AddInt32(&hits, 1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(`{"Bill":{"Id":"145","SyncToken":"0"}}`))
	}, 2)

	res, err := c.SubmitBill(context.Background(), draft())
	if err != nil || !res.Success {
		t.Fatalf("SubmitBill = %+v, %v", res, err)
	}
	ids := log.all()
	if len(ids) != 2 {
		t.Fatalf("requests = %d, want 2", len(ids))
	}
	if ids[0] == "" || ids[0] != ids[1] {
		t.Errorf("requestid across retries = %q, want one non-empty id", ids)
	}

	// a second submission is a different bill and gets its own id
	if _, err := c.SubmitBill(context.Background(), draft()); err != nil {
		t.Fatalf("second SubmitBill: %v", err)
	}
	if next := log.last(); next == ids[0] {
		t.Errorf("second submission reused requestid %q", next)
	}
}
