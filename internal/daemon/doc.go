// Package daemon drives the sync engine in the background.
//
// The Controller runs a sync:
//  1. On a fixed interval (gocron duration job, first run at startup)
//  2. When the connectivity probe sees the server come back
//  3. When something calls Trigger directly (CLI, dashboard)
//
// Concurrent triggers are coalesced: while a sync is running, further
// callers wait for it and share its result instead of starting another.
//
// # Retries
//
// Each sync runs up to MaxAttempts times. An attempt fails when the cycle
// returns a top-level error or an upload group fails. A catalog that could
// not be refreshed keeps its previous mirror; it is reported in
// Status.CatalogError and retried by the next trigger. Between
// attempts the controller waits InitialBackoff, doubling up to MaxBackoff.
// When the last attempt fails the status moves to StateFailed and the error
// wraps ErrRetriesExhausted. Nothing is dropped: pending records stay in the
// store and go out on the next trigger.
//
// # Usage
//
//	ctrl := daemon.New(engine, client, &daemon.Config{
//	    Interval: 5 * time.Minute,
//	    Notifier: dashboardHandler,
//	})
//	go ctrl.Run(ctx)
//
//	// later, e.g. from a button
//	res, err := ctrl.Trigger(ctx, "manual")
package daemon
