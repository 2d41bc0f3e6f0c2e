package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/fieldcount/countsync/internal/schema"
)

// replaceScope deletes every row matched by del and inserts rows in the same
// transaction. The first row that fails validation or insertion rolls the
// whole replace back, so readers see either the old scope or the new one.
func replaceScope[T any](ctx context.Context, db *DB, what string, del string, delArgs []any, ins string, rows []T, prepare func(*T) ([]any, error)) error {
	return db.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, del, delArgs...); err != nil {
			return fmt.Errorf("failed to clear %s: %w", what, err)
		}

		stmt, err := tx.PrepareContext(ctx, ins)
		if err != nil {
			return fmt.Errorf("failed to prepare %s insert: %w", what, err)
		}
		defer stmt.Close()

		for i := range rows {
			args, err := prepare(&rows[i])
			if err != nil {
				return fmt.Errorf("invalid %s row %d: %w", what, i, err)
			}
			if _, err := stmt.ExecContext(ctx, args...); err != nil {
				return fmt.Errorf("failed to insert %s row %d: %w", what, i, err)
			}
		}
		return nil
	})
}

// scoped fills a missing company id and rejects rows from another company.
func scoped(what string, companyID int64, rowCompany *int64) error {
	if *rowCompany == 0 {
		*rowCompany = companyID
	}
	if *rowCompany != companyID {
		return fmt.Errorf("%s belongs to company %d, not %d", what, *rowCompany, companyID)
	}
	return nil
}

// ReplaceCompanies mirrors the full company list.
func (db *DB) ReplaceCompanies(ctx context.Context, companies []schema.Company) error {
	return replaceScope(ctx, db, "companies",
		`DELETE FROM companies`, nil,
		`INSERT INTO companies (id, name, code) VALUES (?, ?, ?)`,
		companies,
		func(c *schema.Company) ([]any, error) {
			if err := c.Validate(); err != nil {
				return nil, err
			}
			return []any{c.ID, c.Name, stringToNull(c.Code)}, nil
		})
}

// ReplaceBranches mirrors the branches of one company.
func (db *DB) ReplaceBranches(ctx context.Context, companyID int64, branches []schema.Branch) error {
	return replaceScope(ctx, db, "branches",
		`DELETE FROM branches WHERE company_id = ?`, []any{companyID},
		`INSERT INTO branches (id, company_id, name, code) VALUES (?, ?, ?, ?)`,
		branches,
		func(b *schema.Branch) ([]any, error) {
			if err := scoped("branch", companyID, &b.CompanyID); err != nil {
				return nil, err
			}
			if err := b.Validate(); err != nil {
				return nil, err
			}
			return []any{b.ID, b.CompanyID, b.Name, stringToNull(b.Code)}, nil
		})
}

// ReplaceProducts mirrors the product catalog of one company.
func (db *DB) ReplaceProducts(ctx context.Context, companyID int64, products []schema.Product) error {
	return replaceScope(ctx, db, "products",
		`DELETE FROM products WHERE company_id = ?`, []any{companyID},
		`INSERT INTO products (
			id, company_id, branch_id, barcode, description,
			category, brand, model, color, serial
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		products,
		func(p *schema.Product) ([]any, error) {
			if err := scoped("product", companyID, &p.CompanyID); err != nil {
				return nil, err
			}
			if err := p.Validate(); err != nil {
				return nil, err
			}
			return []any{
				p.ID, p.CompanyID, int64ToNull(p.BranchID), p.Barcode, p.Description,
				stringToNull(p.Category), stringToNull(p.Brand), stringToNull(p.Model),
				stringToNull(p.Color), stringToNull(p.Serial),
			}, nil
		})
}

// ReplaceLots mirrors the lots of one company.
func (db *DB) ReplaceLots(ctx context.Context, companyID int64, lots []schema.Lot) error {
	return replaceScope(ctx, db, "lots",
		`DELETE FROM lots WHERE company_id = ?`, []any{companyID},
		`INSERT INTO lots (id, company_id, product_id, barcode, code, expiry, on_hand)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		lots,
		func(l *schema.Lot) ([]any, error) {
			if err := scoped("lot", companyID, &l.CompanyID); err != nil {
				return nil, err
			}
			if err := l.Validate(); err != nil {
				return nil, err
			}
			return []any{
				l.ID, l.CompanyID, int64ToNull(l.ProductID), stringToNull(l.Barcode),
				l.Code, timeToNullString(l.Expiry), float64ToNull(l.OnHand),
			}, nil
		})
}

// ListCompanies returns every mirrored company ordered by name.
func (db *DB) ListCompanies(ctx context.Context) ([]schema.Company, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT id, name, code FROM companies ORDER BY name, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query companies: %w", err)
	}
	defer rows.Close()

	var out []schema.Company
	for rows.Next() {
		var c schema.Company
		var code sql.NullString
		if err := rows.Scan(&c.ID, &c.Name, &code); err != nil {
			return nil, fmt.Errorf("failed to scan company: %w", err)
		}
		c.Code = code.String
		out = append(out, c)
	}
	return out, rows.Err()
}

// ListBranches returns the branches of a company ordered by name.
func (db *DB) ListBranches(ctx context.Context, companyID int64) ([]schema.Branch, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, company_id, name, code FROM branches WHERE company_id = ? ORDER BY name, id`, companyID)
	if err != nil {
		return nil, fmt.Errorf("failed to query branches: %w", err)
	}
	defer rows.Close()

	var out []schema.Branch
	for rows.Next() {
		var b schema.Branch
		var code sql.NullString
		if err := rows.Scan(&b.ID, &b.CompanyID, &b.Name, &code); err != nil {
			return nil, fmt.Errorf("failed to scan branch: %w", err)
		}
		b.Code = code.String
		out = append(out, b)
	}
	return out, rows.Err()
}

const productColumns = `id, company_id, branch_id, barcode, description, category, brand, model, color, serial`

func scanProduct(row interface{ Scan(...any) error }) (*schema.Product, error) {
	var p schema.Product
	var branchID sql.NullInt64
	var category, brand, model, color, serial sql.NullString
	err := row.Scan(&p.ID, &p.CompanyID, &branchID, &p.Barcode, &p.Description,
		&category, &brand, &model, &color, &serial)
	if err != nil {
		return nil, err
	}
	p.BranchID = nullToInt64(branchID)
	p.Category = category.String
	p.Brand = brand.String
	p.Model = model.String
	p.Color = color.String
	p.Serial = serial.String
	return &p, nil
}

// FindProduct looks up a barcode in one company's catalog. Duplicate barcodes
// resolve to the lowest product id. Returns ErrNotFound when absent.
func (db *DB) FindProduct(ctx context.Context, companyID int64, barcode string) (*schema.Product, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+productColumns+` FROM products
		WHERE company_id = ? AND barcode = ?
		ORDER BY id LIMIT 1`, companyID, barcode)
	p, err := scanProduct(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find product %s: %w", barcode, err)
	}
	return p, nil
}

// FindProductAnyCompany looks up a barcode across every mirrored catalog.
// Letter case is ignored; an exact match wins over a case-folded one.
func (db *DB) FindProductAnyCompany(ctx context.Context, barcode string) (*schema.Product, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+productColumns+` FROM products
		WHERE barcode = ? COLLATE NOCASE
		ORDER BY barcode = ? DESC, id LIMIT 1`, barcode, barcode)
	p, err := scanProduct(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find product %s: %w", barcode, err)
	}
	return p, nil
}

// ListProducts returns one company's catalog ordered by id.
func (db *DB) ListProducts(ctx context.Context, companyID int64) ([]schema.Product, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+productColumns+` FROM products WHERE company_id = ? ORDER BY id`, companyID)
	if err != nil {
		return nil, fmt.Errorf("failed to query products: %w", err)
	}
	defer rows.Close()

	var out []schema.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

// CountProducts returns the number of mirrored products for a company.
func (db *DB) CountProducts(ctx context.Context, companyID int64) (int, error) {
	return db.count(ctx, `SELECT COUNT(*) FROM products WHERE company_id = ?`, companyID)
}

// ListLotsByBarcode returns the lots selectable for a scanned barcode, either
// carrying the barcode directly or attached to a product with that barcode.
func (db *DB) ListLotsByBarcode(ctx context.Context, companyID int64, barcode string) ([]schema.Lot, error) {
	rows, err := db.conn.QueryContext(ctx, `
	SELECT l.id, l.company_id, l.product_id, l.barcode, l.code, l.expiry, l.on_hand
	FROM lots l
	WHERE l.company_id = ?
	  AND (l.barcode = ? OR l.product_id IN (
		SELECT p.id FROM products p WHERE p.company_id = ? AND p.barcode = ?))
	ORDER BY l.expiry IS NULL, l.expiry, l.id`,
		companyID, barcode, companyID, barcode)
	if err != nil {
		return nil, fmt.Errorf("failed to query lots: %w", err)
	}
	defer rows.Close()

	var out []schema.Lot
	for rows.Next() {
		var l schema.Lot
		var productID sql.NullInt64
		var lotBarcode, expiry sql.NullString
		var onHand sql.NullFloat64
		if err := rows.Scan(&l.ID, &l.CompanyID, &productID, &lotBarcode, &l.Code, &expiry, &onHand); err != nil {
			return nil, fmt.Errorf("failed to scan lot: %w", err)
		}
		l.ProductID = nullToInt64(productID)
		l.Barcode = lotBarcode.String
		l.Expiry = nullStringToTime(expiry)
		l.OnHand = nullToFloat64(onHand)
		out = append(out, l)
	}
	return out, rows.Err()
}
