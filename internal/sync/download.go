package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fieldcount/countsync/internal/schema"
)

// CatalogResult reports one catalog fetch-and-replace.
type CatalogResult struct {
	Catalog   string
	CompanyID int64
	Count     int
	Skipped   int
	Err       error
}

func (r CatalogResult) String() string {
	scope := "all"
	if r.CompanyID != 0 {
		scope = fmt.Sprintf("company %d", r.CompanyID)
	}
	if r.Err != nil {
		return fmt.Sprintf("%s (%s): %v", r.Catalog, scope, r.Err)
	}
	if r.Skipped > 0 {
		return fmt.Sprintf("%s (%s): %d, %d invalid skipped", r.Catalog, scope, r.Count, r.Skipped)
	}
	return fmt.Sprintf("%s (%s): %d", r.Catalog, scope, r.Count)
}

// DownloadResult reports a download cascade.
type DownloadResult struct {
	Catalogs   []CatalogResult
	LastSyncAt time.Time
}

// Failed returns the catalogs that did not refresh.
func (r *DownloadResult) Failed() []CatalogResult {
	var out []CatalogResult
	for _, c := range r.Catalogs {
		if c.Err != nil {
			out = append(out, c)
		}
	}
	return out
}

// Err joins the catalog failures, or nil.
func (r *DownloadResult) Err() error {
	if r == nil {
		return nil
	}
	var errs []error
	for _, c := range r.Failed() {
		errs = append(errs, fmt.Errorf("%s", c.String()))
	}
	return errors.Join(errs...)
}

// catalog fetches one collection and replaces its local mirror. A fetch
// failure leaves the previous mirror in place. Rows rejected by check are
// logged and left out so one bad server row cannot block the whole scope.
func catalog[T any](ctx context.Context, e *Engine, res *DownloadResult, name string, companyID int64,
	fetch func(context.Context) ([]T, error), check func(*T) error, replace func(context.Context, []T) error) ([]T, error) {

	cr := CatalogResult{Catalog: name, CompanyID: companyID}
	rows, err := fetch(ctx)
	if err != nil {
		cr.Err = fmt.Errorf("fetch: %w", err)
	} else {
		kept := make([]T, 0, len(rows))
		for i := range rows {
			if err := check(&rows[i]); err != nil {
				cr.Skipped++
				e.logger.Warn().Err(err).Str("catalog", name).Int64("company", companyID).Int("row", i).
					Msg("skipping invalid catalog row")
				continue
			}
			kept = append(kept, rows[i])
		}
		rows = kept
		if err := replace(ctx, rows); err != nil {
			cr.Err = fmt.Errorf("store: %w", err)
		} else {
			cr.Count = len(rows)
		}
	}
	res.Catalogs = append(res.Catalogs, cr)
	e.metrics.RecordCatalog(name, cr.Err)

	if cr.Err != nil {
		e.logger.Warn().Err(cr.Err).Str("catalog", name).Int64("company", companyID).Msg("catalog not refreshed")
		return nil, cr.Err
	}
	e.logger.Debug().Str("catalog", name).Int64("company", companyID).Int("rows", cr.Count).
		Int("skipped", cr.Skipped).Msg("catalog refreshed")
	return rows, nil
}

// ownedBy fills a missing company id and rejects a row the server filed
// under another company.
func ownedBy(companyID int64, rowCompany *int64) error {
	if *rowCompany == 0 {
		*rowCompany = companyID
	}
	if *rowCompany != companyID {
		return fmt.Errorf("belongs to company %d, not %d", *rowCompany, companyID)
	}
	return nil
}

func checkCompany(c *schema.Company) error { return c.Validate() }

func checkBranch(companyID int64) func(*schema.Branch) error {
	return func(b *schema.Branch) error {
		if err := ownedBy(companyID, &b.CompanyID); err != nil {
			return fmt.Errorf("branch %d %w", b.ID, err)
		}
		return b.Validate()
	}
}

func checkProduct(companyID int64) func(*schema.Product) error {
	return func(p *schema.Product) error {
		if err := ownedBy(companyID, &p.CompanyID); err != nil {
			return fmt.Errorf("product %d %w", p.ID, err)
		}
		return p.Validate()
	}
}

func checkLot(companyID int64) func(*schema.Lot) error {
	return func(l *schema.Lot) error {
		if err := ownedBy(companyID, &l.CompanyID); err != nil {
			return fmt.Errorf("lot %d %w", l.ID, err)
		}
		return l.Validate()
	}
}

func checkSession(kind schema.SessionKind) func(*schema.Session) error {
	return func(s *schema.Session) error {
		if s.Kind != "" && s.Kind != kind {
			return fmt.Errorf("session %d is %s, not %s", s.ID, s.Kind, kind)
		}
		s.Kind = kind
		s.SetDefaults()
		return s.Validate()
	}
}

// Download mirrors every catalog from the server.
//
// The error is only set when the company list cannot be fetched or stored;
// in that case nothing else is attempted and the last-sync timestamp is not
// written. Every other failure is isolated to its catalog and reported in the
// result.
func (e *Engine) Download(ctx context.Context) (*DownloadResult, error) {
	res := &DownloadResult{}

	companies, err := catalog(ctx, e, res, "companies", 0, e.api.Companies, checkCompany, e.db.ReplaceCompanies)
	if err != nil {
		return res, fmt.Errorf("failed to download companies: %w", err)
	}

	for _, c := range companies {
		id := c.ID
		_, _ = catalog(ctx, e, res, "branches", id,
			func(ctx context.Context) ([]schema.Branch, error) { return e.api.Branches(ctx, id) },
			checkBranch(id),
			func(ctx context.Context, rows []schema.Branch) error { return e.db.ReplaceBranches(ctx, id, rows) })
		_, _ = catalog(ctx, e, res, "products", id,
			func(ctx context.Context) ([]schema.Product, error) { return e.api.Products(ctx, id) },
			checkProduct(id),
			func(ctx context.Context, rows []schema.Product) error { return e.db.ReplaceProducts(ctx, id, rows) })
		_, _ = catalog(ctx, e, res, "lots", id,
			func(ctx context.Context) ([]schema.Lot, error) { return e.api.Lots(ctx, id) },
			checkLot(id),
			func(ctx context.Context, rows []schema.Lot) error { return e.db.ReplaceLots(ctx, id, rows) })
	}

	for _, kind := range schema.SessionKinds {
		kind := kind
		_, _ = catalog(ctx, e, res, string(kind)+"_sessions", 0,
			func(ctx context.Context) ([]schema.Session, error) { return e.api.Sessions(ctx, kind) },
			checkSession(kind),
			func(ctx context.Context, rows []schema.Session) error { return e.db.ReplaceSessions(ctx, kind, rows) })
	}

	now := e.now().UTC()
	if err := e.db.SetLastSyncAt(ctx, now); err != nil {
		return res, fmt.Errorf("failed to record last sync: %w", err)
	}
	res.LastSyncAt = now

	e.logger.Info().
		Int("companies", len(companies)).
		Int("failed_catalogs", len(res.Failed())).
		Msg("download complete")
	return res, nil
}
