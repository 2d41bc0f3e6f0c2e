package remote

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/fieldcount/countsync/internal/schema"
)

// Companies fetches the company list.
func (c *Client) Companies(ctx context.Context) ([]schema.Company, error) {
	var out []schema.Company
	if err := c.getJSON(ctx, "/api/companies", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Branches fetches the branches of a company.
func (c *Client) Branches(ctx context.Context, companyID int64) ([]schema.Branch, error) {
	var out []schema.Branch
	if err := c.getJSON(ctx, fmt.Sprintf("/api/companies/%d/branches", companyID), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ProductPage is one page of a company's product catalog.
type ProductPage struct {
	Items   []schema.Product `json:"items"`
	Page    int              `json:"page"`
	HasNext bool             `json:"has_next"`
}

// ProductsPage fetches a single page, starting at 1.
func (c *Client) ProductsPage(ctx context.Context, companyID int64, page int) (*ProductPage, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("size", strconv.Itoa(c.pageSize))

	var out ProductPage
	if err := c.getJSON(ctx, fmt.Sprintf("/api/companies/%d/products", companyID), q, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// maxProductPages stops a server that never reports the last page.
const maxProductPages = 10000

// Products fetches every page of a company's catalog. A failure on any page
// fails the whole call so the caller never replaces with a partial set.
func (c *Client) Products(ctx context.Context, companyID int64) ([]schema.Product, error) {
	var all []schema.Product
	for page := 1; page <= maxProductPages; page++ {
		p, err := c.ProductsPage(ctx, companyID, page)
		if err != nil {
			return nil, fmt.Errorf("products page %d: %w", page, err)
		}
		all = append(all, p.Items...)
		if !p.HasNext || len(p.Items) == 0 {
			return all, nil
		}
	}
	return nil, fmt.Errorf("products for company %d exceed %d pages", companyID, maxProductPages)
}

// Lots fetches the lots of a company.
func (c *Client) Lots(ctx context.Context, companyID int64) ([]schema.Lot, error) {
	var out []schema.Lot
	if err := c.getJSON(ctx, fmt.Sprintf("/api/companies/%d/lots", companyID), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func sessionsPath(kind schema.SessionKind) (string, error) {
	switch kind {
	case schema.SessionInventory:
		return "/api/inventory-sessions", nil
	case schema.SessionAsset:
		return "/api/asset-sessions", nil
	}
	return "", fmt.Errorf("unknown session kind %q", kind)
}

// Sessions fetches the session list of a kind.
func (c *Client) Sessions(ctx context.Context, kind schema.SessionKind) ([]schema.Session, error) {
	path, err := sessionsPath(kind)
	if err != nil {
		return nil, err
	}
	var out []schema.Session
	if err := c.getJSON(ctx, path, nil, &out); err != nil {
		return nil, err
	}
	for i := range out {
		out[i].Kind = kind
	}
	return out, nil
}

// CreateSession creates a session on the server and returns it as stored
// there.
func (c *Client) CreateSession(ctx context.Context, s *schema.Session) (*schema.Session, error) {
	path, err := sessionsPath(s.Kind)
	if err != nil {
		return nil, err
	}
	req := struct {
		CompanyID int64  `json:"company_id"`
		BranchID  int64  `json:"branch_id"`
		Name      string `json:"name"`
	}{s.CompanyID, s.BranchID, s.Name}

	var out schema.Session
	if err := c.postJSON(ctx, path, req, &out); err != nil {
		return nil, err
	}
	out.Kind = s.Kind
	return &out, nil
}
