package quickbooks

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/joseph-ayodele/cfdi-bills/constants"
	"github.com/joseph-ayodele/cfdi-bills/internal/entity"
)

const pageSize = 1000

type qbItem struct {
	ID                 string `json:"Id"`
	Name               string `json:"Name"`
	FullyQualifiedName string `json:"FullyQualifiedName"`
	Type               string `json:"Type"`
}

type qbVendor struct {
	ID          string `json:"Id"`
	DisplayName string `json:"DisplayName"`
}

type qbAccount struct {
	ID   string `json:"Id"`
	Name string `json:"Name"`
}

// QueryResponse is the envelope of the query endpoint.
type QueryResponse struct {
	QueryResponse struct {
		Item          []qbItem    `json:"Item"`
		Vendor        []qbVendor  `json:"Vendor"`
		Account       []qbAccount `json:"Account"`
		StartPosition int         `json:"startPosition"`
		MaxResults    int         `json:"maxResults"`
	} `json:"QueryResponse"`
}

var quoteStripper = strings.NewReplacer("'", "", `"`, "", `\`, "")

// sanitize removes characters that would break out of a quoted query literal.
func sanitize(s string) string {
	return quoteStripper.Replace(strings.TrimSpace(s))
}

func (c *Client) companyURL(resource string) string {
	return c.cfg.BaseURL + "/v3/company/" + url.PathEscape(c.cfg.RealmID) + "/" + resource
}

// Query runs a QuickBooks SQL-like query.
func (c *Client) Query(ctx context.Context, q string) (*QueryResponse, error) {
	params := url.Values{}
	params.Set("query", q)
	params.Set("minorversion", c.cfg.MinorVersion)

	raw, err := c.send(ctx, http.MethodGet, c.companyURL("query")+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	var out QueryResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		c.logger.Error("quickbooks.query.decode_error", "error", err, "raw_bytes", len(raw))
		return nil, fmt.Errorf("decode query response: %w", err)
	}
	return &out, nil
}

func toCatalogEntry(it qbItem) entity.CatalogEntry {
	name := it.FullyQualifiedName
	if name == "" {
		name = it.Name
	}
	return entity.CatalogEntry{ItemID: it.ID, DisplayName: name, Type: it.Type}
}

const itemColumns = "Id, Name, FullyQualifiedName, Type"

// FetchAllItems pages through every active item.
func (c *Client) FetchAllItems(ctx context.Context) ([]entity.CatalogEntry, error) {
	var out []entity.CatalogEntry
	for start := 1; ; start += pageSize {
		q := fmt.Sprintf("SELECT %s FROM Item WHERE Active = true STARTPOSITION %d MAXRESULTS %d", itemColumns, start, pageSize)
		resp, err := c.Query(ctx, q)
		if err != nil {
			return nil, err
		}
		for _, it := range resp.QueryResponse.Item {
			out = append(out, toCatalogEntry(it))
		}
		if len(resp.QueryResponse.Item) < pageSize {
			break
		}
	}
	c.logger.Info("quickbooks.items.fetched", "items", len(out))
	return out, nil
}

// FetchItemByName returns the active item with exactly this name, or nil.
// Names containing ':' are matched against the fully qualified name.
func (c *Client) FetchItemByName(ctx context.Context, name string) (*entity.CatalogEntry, error) {
	name = sanitize(name)
	if name == "" {
		return nil, nil
	}
	field := "Name"
	if strings.Contains(name, ":") {
		field = "FullyQualifiedName"
	}
	q := fmt.Sprintf("SELECT %s FROM Item WHERE %s = '%s' AND Active = true", itemColumns, field, name)
	resp, err := c.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	if len(resp.QueryResponse.Item) == 0 {
		return nil, nil
	}
	e := toCatalogEntry(resp.QueryResponse.Item[0])
	return &e, nil
}

// FetchItemsLike returns active items whose name contains pattern.
func (c *Client) FetchItemsLike(ctx context.Context, pattern string) ([]entity.CatalogEntry, error) {
	pattern = sanitize(pattern)
	if pattern == "" {
		return nil, nil
	}
	q := fmt.Sprintf("SELECT %s FROM Item WHERE Name LIKE '%%%s%%' AND Active = true MAXRESULTS %d", itemColumns, pattern, pageSize)
	resp, err := c.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	out := make([]entity.CatalogEntry, 0, len(resp.QueryResponse.Item))
	for _, it := range resp.QueryResponse.Item {
		out = append(out, toCatalogEntry(it))
	}
	return out, nil
}

// ListVendors returns active vendors as (name, id) pairs.
func (c *Client) ListVendors(ctx context.Context) ([]entity.NamedRef, error) {
	resp, err := c.Query(ctx, fmt.Sprintf("SELECT Id, DisplayName FROM Vendor WHERE Active = true MAXRESULTS %d", pageSize))
	if err != nil {
		return nil, err
	}
	out := make([]entity.NamedRef, 0, len(resp.QueryResponse.Vendor))
	for _, v := range resp.QueryResponse.Vendor {
		out = append(out, entity.NamedRef{ID: v.ID, Name: v.DisplayName})
	}
	return out, nil
}

// ListAccounts returns active accounts of accountType (Expense when empty).
func (c *Client) ListAccounts(ctx context.Context, accountType string) ([]entity.NamedRef, error) {
	accountType = sanitize(accountType)
	if accountType == "" {
		accountType = constants.DefaultAccountType
	}
	q := fmt.Sprintf("SELECT Id, Name FROM Account WHERE AccountType = '%s' AND Active = true MAXRESULTS %d", accountType, pageSize)
	resp, err := c.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	out := make([]entity.NamedRef, 0, len(resp.QueryResponse.Account))
	for _, a := range resp.QueryResponse.Account {
		out = append(out, entity.NamedRef{ID: a.ID, Name: a.Name})
	}
	return out, nil
}
