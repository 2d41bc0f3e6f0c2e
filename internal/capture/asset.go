package capture

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/fieldcount/countsync/internal/schema"
)

// AssetInput is what the operator enters for an asset observation. Blank
// descriptive fields are filled from the catalog entry when there is one.
type AssetInput struct {
	Code        string
	Description string
	Category    string
	Brand       string
	Model       string
	Color       string
	Serial      string
	Status      string
	Notes       string
	Latitude    *float64
	Longitude   *float64
	Photos      []string
	UserID      string
}

func fill(dst *string, src string) {
	if strings.TrimSpace(*dst) == "" {
		*dst = src
	}
}

// CaptureAsset records one observed asset in an asset session, applying the
// same catalog gate as Scan.
func (v *Validator) CaptureAsset(ctx context.Context, session *schema.Session, in AssetInput, opts Options) (*schema.AssetRecord, error) {
	code := strings.TrimSpace(in.Code)
	if code == "" {
		return nil, ErrBlankCode
	}
	if err := checkSession(session, schema.SessionAsset); err != nil {
		return nil, err
	}

	product, err := v.lookup(ctx, session, code, opts)
	if errors.Is(err, ErrNotInCatalog) {
		return nil, &RejectionError{Code: code, Draft: &Draft{Session: session, Code: code, Options: opts}}
	}
	if err != nil {
		return nil, err
	}

	rec := &schema.AssetRecord{
		Meta:        schema.Meta{SessionID: session.ID, UserID: in.UserID},
		Barcode:     code,
		Description: in.Description,
		Category:    in.Category,
		Brand:       in.Brand,
		Model:       in.Model,
		Color:       in.Color,
		Serial:      in.Serial,
		Status:      in.Status,
		Notes:       in.Notes,
		Latitude:    in.Latitude,
		Longitude:   in.Longitude,
		Photos:      in.Photos,
	}
	if product != nil {
		fill(&rec.Description, product.Description)
		fill(&rec.Category, product.Category)
		fill(&rec.Brand, product.Brand)
		fill(&rec.Model, product.Model)
		fill(&rec.Color, product.Color)
		fill(&rec.Serial, product.Serial)
	}

	rec.Prepare(v.now())
	if err := v.store.InsertAssetRecord(ctx, rec); err != nil {
		return nil, fmt.Errorf("failed to save asset: %w", err)
	}
	return rec, nil
}

// RecordNotFound notes a code that could not be located during an asset count.
func (v *Validator) RecordNotFound(ctx context.Context, session *schema.Session, code, description, notes, userID string) (*schema.NotFoundRecord, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, ErrBlankCode
	}
	if err := checkSession(session, schema.SessionAsset); err != nil {
		return nil, err
	}

	rec := &schema.NotFoundRecord{
		Meta:        schema.Meta{SessionID: session.ID, UserID: userID},
		Barcode:     code,
		Description: description,
		Notes:       notes,
	}
	if description == "" {
		if p, err := v.store.FindProduct(ctx, session.CompanyID, code); err == nil {
			rec.Description = p.Description
		}
	}

	rec.Prepare(v.now())
	if err := v.store.InsertNotFound(ctx, rec); err != nil {
		return nil, fmt.Errorf("failed to save not-found record: %w", err)
	}
	return rec, nil
}

// RecordTransfer moves an asset to another branch. A zero from branch means the
// session's own branch.
func (v *Validator) RecordTransfer(ctx context.Context, session *schema.Session, code string, fromBranch, toBranch int64, notes, userID string) (*schema.TransferRecord, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, ErrBlankCode
	}
	if err := checkSession(session, schema.SessionAsset); err != nil {
		return nil, err
	}
	if fromBranch == 0 {
		fromBranch = session.BranchID
	}

	rec := &schema.TransferRecord{
		Meta:         schema.Meta{SessionID: session.ID, UserID: userID},
		Barcode:      code,
		FromBranchID: fromBranch,
		ToBranchID:   toBranch,
		Notes:        notes,
	}
	rec.Prepare(v.now())
	if err := rec.Validate(); err != nil {
		return nil, err
	}
	if err := v.store.InsertTransfer(ctx, rec); err != nil {
		return nil, fmt.Errorf("failed to save transfer: %w", err)
	}
	return rec, nil
}
