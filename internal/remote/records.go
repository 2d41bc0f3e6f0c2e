package remote

import (
	"context"
	"fmt"
	"time"

	"github.com/fieldcount/countsync/internal/schema"
)

// wireMeta is the record bookkeeping the server sees. ServerID is present
// only for records edited after their first upload.
type wireMeta struct {
	ClientID   string    `json:"client_id"`
	ServerID   *int64    `json:"server_id,omitempty"`
	CapturedAt time.Time `json:"captured_at"`
	UserID     string    `json:"user_id,omitempty"`
}

func toWireMeta(m schema.Meta) wireMeta {
	return wireMeta{ClientID: m.ClientID, ServerID: m.ServerID, CapturedAt: m.CapturedAt.UTC(), UserID: m.UserID}
}

type wireInventory struct {
	wireMeta
	Barcode     string     `json:"barcode"`
	Description string     `json:"description,omitempty"`
	Quantity    float64    `json:"quantity"`
	Lot         string     `json:"lot,omitempty"`
	Expiry      *time.Time `json:"expiry,omitempty"`
	Multiplier  float64    `json:"multiplier,omitempty"`
	Serial      string     `json:"serial,omitempty"`
}

type wireAsset struct {
	wireMeta
	Barcode     string   `json:"barcode"`
	Description string   `json:"description,omitempty"`
	Category    string   `json:"category,omitempty"`
	Brand       string   `json:"brand,omitempty"`
	Model       string   `json:"model,omitempty"`
	Color       string   `json:"color,omitempty"`
	Serial      string   `json:"serial,omitempty"`
	Status      string   `json:"status,omitempty"`
	Notes       string   `json:"notes,omitempty"`
	Latitude    *float64 `json:"latitude,omitempty"`
	Longitude   *float64 `json:"longitude,omitempty"`
}

type wireNotFound struct {
	wireMeta
	Barcode     string `json:"barcode"`
	Description string `json:"description,omitempty"`
	Notes       string `json:"notes,omitempty"`
}

type wireTransfer struct {
	wireMeta
	Barcode      string `json:"barcode"`
	FromBranchID int64  `json:"from_branch_id"`
	ToBranchID   int64  `json:"to_branch_id"`
	Notes        string `json:"notes,omitempty"`
}

// BatchRequest is the body of every batch upload.
type BatchRequest[T any] struct {
	SessionID int64 `json:"session_id"`
	Records   []T   `json:"records"`
}

// BatchResponse acknowledges a batch, one result per accepted record.
type BatchResponse struct {
	Results []schema.Ack `json:"results"`
}

func postBatch[R, W any](ctx context.Context, c *Client, path string, sessionID int64, records []R, wire func(R) W) ([]schema.Ack, error) {
	req := BatchRequest[W]{SessionID: sessionID, Records: make([]W, len(records))}
	for i, r := range records {
		req.Records[i] = wire(r)
	}
	var resp BatchResponse
	if err := c.postJSON(ctx, path, req, &resp); err != nil {
		return nil, err
	}
	return resp.Results, nil
}

// UploadInventory posts one session's pending inventory records.
func (c *Client) UploadInventory(ctx context.Context, sessionID int64, records []schema.InventoryRecord) ([]schema.Ack, error) {
	return postBatch(ctx, c, fmt.Sprintf("/api/inventory-sessions/%d/records/batch", sessionID), sessionID, records,
		func(r schema.InventoryRecord) wireInventory {
			return wireInventory{
				wireMeta: toWireMeta(r.Meta), Barcode: r.Barcode, Description: r.Description,
				Quantity: r.Quantity, Lot: r.Lot, Expiry: r.Expiry, Multiplier: r.Multiplier, Serial: r.Serial,
			}
		})
}

// UploadAssets posts one session's pending asset records.
func (c *Client) UploadAssets(ctx context.Context, sessionID int64, records []schema.AssetRecord) ([]schema.Ack, error) {
	return postBatch(ctx, c, fmt.Sprintf("/api/asset-sessions/%d/records/batch", sessionID), sessionID, records,
		func(r schema.AssetRecord) wireAsset {
			return wireAsset{
				wireMeta: toWireMeta(r.Meta), Barcode: r.Barcode, Description: r.Description,
				Category: r.Category, Brand: r.Brand, Model: r.Model, Color: r.Color, Serial: r.Serial,
				Status: r.Status, Notes: r.Notes, Latitude: r.Latitude, Longitude: r.Longitude,
			}
		})
}

// UploadNotFound posts one session's pending not-found records.
func (c *Client) UploadNotFound(ctx context.Context, sessionID int64, records []schema.NotFoundRecord) ([]schema.Ack, error) {
	return postBatch(ctx, c, fmt.Sprintf("/api/asset-sessions/%d/not-found/batch", sessionID), sessionID, records,
		func(r schema.NotFoundRecord) wireNotFound {
			return wireNotFound{wireMeta: toWireMeta(r.Meta), Barcode: r.Barcode, Description: r.Description, Notes: r.Notes}
		})
}

// UploadTransfers posts one session's pending transfer records.
func (c *Client) UploadTransfers(ctx context.Context, sessionID int64, records []schema.TransferRecord) ([]schema.Ack, error) {
	return postBatch(ctx, c, fmt.Sprintf("/api/asset-sessions/%d/transfers/batch", sessionID), sessionID, records,
		func(r schema.TransferRecord) wireTransfer {
			return wireTransfer{
				wireMeta: toWireMeta(r.Meta), Barcode: r.Barcode,
				FromBranchID: r.FromBranchID, ToBranchID: r.ToBranchID, Notes: r.Notes,
			}
		})
}
