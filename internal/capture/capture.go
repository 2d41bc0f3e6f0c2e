// Package capture turns scanned codes into capture records.
//
// A scan is resolved against the local product catalog of the session's
// company, shaped by the capture options of the device and persisted as an
// unsynced record. Nothing here touches the network.
//
// Rejections come in two forms. A blank code returns ErrBlankCode, which
// callers drop silently. A code missing from the catalog while catalog
// validation is required returns a *RejectionError that carries the draft, so
// the operator can flip ForceAccept and resubmit without retyping anything.
package capture

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/fieldcount/countsync/internal/schema"
	"github.com/fieldcount/countsync/internal/store"
)

var (
	// ErrBlankCode is returned for an empty scan. It is never shown to the
	// operator.
	ErrBlankCode = errors.New("blank code")

	// ErrNotInCatalog is wrapped by RejectionError.
	ErrNotInCatalog = errors.New("not in catalog")

	// ErrSessionKind is returned when a capture targets a session of the
	// wrong kind.
	ErrSessionKind = errors.New("wrong session kind")

	// ErrSessionClosed is returned when a capture targets an inactive session.
	ErrSessionClosed = errors.New("session is not active")
)

// RejectionError reports a code that failed the catalog gate. Draft keeps
// everything resolved so far.
type RejectionError struct {
	Code  string
	Draft *Draft
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("code %s is not in the catalog", e.Code)
}

func (e *RejectionError) Unwrap() error {
	return ErrNotInCatalog
}

// Options are the per-device capture switches.
type Options struct {
	UseLot         bool `mapstructure:"use_lot" toml:"use_lot" yaml:"use_lot"`
	UseExpiry      bool `mapstructure:"use_expiry" toml:"use_expiry" yaml:"use_expiry"`
	UseMultiplier  bool `mapstructure:"use_multiplier" toml:"use_multiplier" yaml:"use_multiplier"`
	UseSerial      bool `mapstructure:"use_serial" toml:"use_serial" yaml:"use_serial"`
	OneShot        bool `mapstructure:"one_shot" toml:"one_shot" yaml:"one_shot"`
	RequireCatalog bool `mapstructure:"require_catalog" toml:"require_catalog" yaml:"require_catalog"`
	ForceAccept    bool `mapstructure:"force_accept" toml:"force_accept" yaml:"force_accept"`
}

// Store is the subset of the local store used during capture.
type Store interface {
	FindProduct(ctx context.Context, companyID int64, barcode string) (*schema.Product, error)
	ListLotsByBarcode(ctx context.Context, companyID int64, barcode string) ([]schema.Lot, error)
	InsertInventoryRecord(ctx context.Context, rec *schema.InventoryRecord) error
	InsertAssetRecord(ctx context.Context, rec *schema.AssetRecord) error
	InsertNotFound(ctx context.Context, rec *schema.NotFoundRecord) error
	InsertTransfer(ctx context.Context, rec *schema.TransferRecord) error
}

// Draft is a resolved scan waiting for the operator's quantity and options.
type Draft struct {
	Session *schema.Session
	Code    string
	Options Options

	// Product is nil for codes accepted outside the catalog.
	Product *schema.Product

	// Lots holds the selectable lots when UseLot is set.
	Lots []schema.Lot

	// Record is set once the draft has been saved.
	Record *schema.InventoryRecord
}

// Description returns the catalog description, if any.
func (d *Draft) Description() string {
	if d.Product == nil {
		return ""
	}
	return d.Product.Description
}

// Input is what the operator types for an inventory capture.
type Input struct {
	// Quantity defaults to 1 when nil.
	Quantity    *float64
	Multiplier  float64
	Lot         string
	Expiry      *time.Time
	Serial      string
	Description string
	UserID      string
}

// Validator resolves scans and persists the resulting records.
type Validator struct {
	store  Store
	logger zerolog.Logger
	now    func() time.Time
}

// New creates a Validator over the store.
func New(s Store, logger *zerolog.Logger) *Validator {
	l := zerolog.New(os.Stderr).With().Timestamp().Str("component", "capture").Logger()
	if logger != nil {
		l = logger.With().Str("component", "capture").Logger()
	}
	return &Validator{store: s, logger: l, now: time.Now}
}

func checkSession(session *schema.Session, kind schema.SessionKind) error {
	if session == nil {
		return fmt.Errorf("no session selected")
	}
	if session.Kind != kind {
		return fmt.Errorf("%w: session %d is %s, capture needs %s", ErrSessionKind, session.ID, session.Kind, kind)
	}
	if !session.IsActive() {
		return fmt.Errorf("%w: session %d is %s", ErrSessionClosed, session.ID, session.Status)
	}
	return nil
}

// lookup resolves code in the session company's catalog and applies the
// catalog gate. A nil product with a nil error means the code was accepted
// without a catalog entry.
func (v *Validator) lookup(ctx context.Context, session *schema.Session, code string, opts Options) (*schema.Product, error) {
	product, err := v.store.FindProduct(ctx, session.CompanyID, code)
	if err == nil {
		return product, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("failed to look up %s: %w", code, err)
	}
	if opts.RequireCatalog && !opts.ForceAccept {
		return nil, ErrNotInCatalog
	}
	v.logger.Debug().Str("code", code).Int64("session", session.ID).Msg("accepting code outside catalog")
	return nil, nil
}

// Scan resolves a scanned code for an inventory session. With OneShot set the
// record is saved immediately with quantity 1 and returned in Draft.Record.
func (v *Validator) Scan(ctx context.Context, session *schema.Session, code string, opts Options) (*Draft, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, ErrBlankCode
	}
	if err := checkSession(session, schema.SessionInventory); err != nil {
		return nil, err
	}

	draft := &Draft{Session: session, Code: code, Options: opts}

	product, err := v.lookup(ctx, session, code, opts)
	if errors.Is(err, ErrNotInCatalog) {
		return nil, &RejectionError{Code: code, Draft: draft}
	}
	if err != nil {
		return nil, err
	}
	draft.Product = product

	if opts.UseLot {
		lots, err := v.store.ListLotsByBarcode(ctx, session.CompanyID, code)
		if err != nil {
			return nil, fmt.Errorf("failed to load lots for %s: %w", code, err)
		}
		draft.Lots = lots
	}

	if opts.OneShot {
		if _, err := v.Save(ctx, draft, Input{}); err != nil {
			return nil, err
		}
	}
	return draft, nil
}

// Resubmit retries a rejected draft with the catalog gate overridden.
func (v *Validator) Resubmit(ctx context.Context, rejected *RejectionError) (*Draft, error) {
	opts := rejected.Draft.Options
	opts.ForceAccept = true
	return v.Scan(ctx, rejected.Draft.Session, rejected.Code, opts)
}

// EffectiveQuantity applies the multiplier rule: the typed quantity (1 when
// absent) times the multiplier, only when multipliers are enabled and the
// multiplier is positive.
func EffectiveQuantity(qty *float64, multiplier float64, opts Options) float64 {
	if opts.OneShot {
		return 1
	}
	q := 1.0
	if qty != nil {
		q = *qty
	}
	if opts.UseMultiplier && multiplier > 0 {
		return q * multiplier
	}
	return q
}

// Save persists a draft as an unsynced inventory record.
func (v *Validator) Save(ctx context.Context, draft *Draft, in Input) (*schema.InventoryRecord, error) {
	if draft.Record != nil {
		return draft.Record, nil
	}
	opts := draft.Options

	rec := &schema.InventoryRecord{
		Meta: schema.Meta{
			SessionID: draft.Session.ID,
			UserID:    in.UserID,
		},
		Barcode:     draft.Code,
		Description: draft.Description(),
		Quantity:    EffectiveQuantity(in.Quantity, in.Multiplier, opts),
	}
	if rec.Description == "" {
		rec.Description = in.Description
	}
	if opts.UseMultiplier && in.Multiplier > 0 && !opts.OneShot {
		rec.Multiplier = in.Multiplier
	}
	if opts.UseLot && in.Lot != "" {
		rec.Lot = in.Lot
		if lot := draft.findLot(in.Lot); lot != nil && opts.UseExpiry && in.Expiry == nil {
			rec.Expiry = lot.Expiry
		}
	}
	if opts.UseExpiry && in.Expiry != nil {
		rec.Expiry = in.Expiry
	}
	if opts.UseSerial {
		rec.Serial = strings.TrimSpace(in.Serial)
	}

	rec.Prepare(v.now())
	if err := v.store.InsertInventoryRecord(ctx, rec); err != nil {
		return nil, fmt.Errorf("failed to save capture: %w", err)
	}
	draft.Record = rec

	v.logger.Debug().
		Int64("session", rec.SessionID).
		Str("code", rec.Barcode).
		Float64("qty", rec.Quantity).
		Msg("capture saved")
	return rec, nil
}

func (d *Draft) findLot(code string) *schema.Lot {
	for i := range d.Lots {
		if d.Lots[i].Code == code {
			return &d.Lots[i]
		}
	}
	return nil
}
