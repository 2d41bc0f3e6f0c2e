// Package schema defines the entities mirrored and captured by countsync.
//
// # Overview
//
// Two families of data live on the device:
//
//   - Catalogs (Company, Branch, Product, Lot, Session) are mirrored read-only
//     from the server. They carry no local edit state and are replaced wholesale
//     on every download.
//   - Capture records (InventoryRecord, AssetRecord, NotFoundRecord,
//     TransferRecord) are created on the device. Each one starts with
//     Synced = false and flips to true exactly once, after the server has
//     acknowledged the batch that carried it.
//
// RFID tag reads (TagRead) are recorded per session and deduplicated by EPC.
//
// # Record kinds
//
// RecordKind is a closed set. Code that has to behave differently per kind
// switches on it rather than on concrete types:
//
//	switch kind {
//	case schema.KindInventory:
//	    // ...
//	case schema.KindAsset, schema.KindNotFound, schema.KindTransfer:
//	    // asset-session records
//	}
//
// # Client IDs
//
// Every capture record carries a ClientID (a UUID generated on insert). It is
// sent on the wire so the server can recognise a batch it already applied when
// the acknowledgement was lost in transit.
//
// # Validation
//
// Every type has a Validate method. The store calls it before writing, so an
// invalid row never reaches disk and an invalid catalog row aborts the whole
// replace.
package schema
