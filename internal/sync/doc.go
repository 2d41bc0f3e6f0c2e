// Package sync reconciles the local store with the count server.
//
// A cycle always uploads before it downloads:
//
//  1. Upload. For each record kind the pending records are grouped by
//     session and each group is posted as one batch. A group that fails is
//     left untouched and retried on the next cycle; it never stops the other
//     groups. An acknowledged group is marked synced in one store
//     transaction.
//
//  2. Download. Companies are fetched and mirrored, then for every company
//     its branches, products (every page, then one replace) and lots, then
//     both session lists. Each catalog is fetched and replaced on its own and
//     reported in the result; one failing catalog does not abort the others.
//     Only a failure to fetch or store the company list aborts the cascade.
//
//  3. The last-sync timestamp is written when the cascade completes.
//
// Uploading first means a session replaced by the download never strands
// local records that were still waiting to reach it.
//
// # Exactly-once effect
//
// Every record carries a client id generated at capture time. The server
// deduplicates on it, so a batch that was applied but whose response was
// lost can be sent again safely. Locally a record is marked synced only at
// the revision that was uploaded; an edit made while the batch was in flight
// keeps the record pending.
//
// The Engine holds no global state. A daemon.Controller drives it in the
// background; the CLI drives it directly for one-shot syncs.
package sync
