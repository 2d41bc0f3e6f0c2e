package schema

import (
	"fmt"
	"strings"
	"time"
)

// Company is a tenant of the central server. Companies own branches,
// products, lots and sessions.
type Company struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Code string `json:"code,omitempty"`
}

// Validate checks if the Company has valid field values.
func (c *Company) Validate() error {
	if c.ID <= 0 {
		return fmt.Errorf("company id must be positive (got %d)", c.ID)
	}
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("company %d: name is required", c.ID)
	}
	return nil
}

// Branch is a physical location of a company.
type Branch struct {
	ID        int64  `json:"id"`
	CompanyID int64  `json:"company_id"`
	Name      string `json:"name"`
	Code      string `json:"code,omitempty"`
}

// Validate checks if the Branch has valid field values.
func (b *Branch) Validate() error {
	if b.ID <= 0 {
		return fmt.Errorf("branch id must be positive (got %d)", b.ID)
	}
	if b.CompanyID <= 0 {
		return fmt.Errorf("branch %d: company_id is required", b.ID)
	}
	if strings.TrimSpace(b.Name) == "" {
		return fmt.Errorf("branch %d: name is required", b.ID)
	}
	return nil
}

// Product is a catalog entry looked up by barcode during capture.
//
// Products are unique per (company, barcode) by convention only. When the
// server sends duplicates, lookups return the lowest id.
type Product struct {
	ID          int64  `json:"id"`
	CompanyID   int64  `json:"company_id"`
	BranchID    *int64 `json:"branch_id,omitempty"`
	Barcode     string `json:"barcode"`
	Description string `json:"description"`
	Category    string `json:"category,omitempty"`
	Brand       string `json:"brand,omitempty"`
	Model       string `json:"model,omitempty"`
	Color       string `json:"color,omitempty"`
	Serial      string `json:"serial,omitempty"`
}

// Validate checks if the Product has valid field values.
func (p *Product) Validate() error {
	if p.ID <= 0 {
		return fmt.Errorf("product id must be positive (got %d)", p.ID)
	}
	if p.CompanyID <= 0 {
		return fmt.Errorf("product %d: company_id is required", p.ID)
	}
	if strings.TrimSpace(p.Barcode) == "" {
		return fmt.Errorf("product %d: barcode is required", p.ID)
	}
	return nil
}

// Lot is a production batch of a product, selectable during capture.
type Lot struct {
	ID        int64      `json:"id"`
	CompanyID int64      `json:"company_id"`
	ProductID *int64     `json:"product_id,omitempty"`
	Barcode   string     `json:"barcode,omitempty"`
	Code      string     `json:"code"`
	Expiry    *time.Time `json:"expiry,omitempty"`
	OnHand    *float64   `json:"on_hand,omitempty"`
}

// Validate checks if the Lot has valid field values.
func (l *Lot) Validate() error {
	if l.ID <= 0 {
		return fmt.Errorf("lot id must be positive (got %d)", l.ID)
	}
	if l.CompanyID <= 0 {
		return fmt.Errorf("lot %d: company_id is required", l.ID)
	}
	if strings.TrimSpace(l.Code) == "" {
		return fmt.Errorf("lot %d: code is required", l.ID)
	}
	return nil
}
