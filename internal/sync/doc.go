// Package sync reconciles the offline inspection store with the server.
//
// Overview
//
// A sync pass sends every inspection in the candidate set (PENDING_SYNC or
// SYNC_ERROR) to the batch endpoint in a single request and records the
// per-inspection outcome back in the local store:
//
//	offline store ──candidates──► Syncer ──upload media──► /uploads
//	      ▲                          │
//	      └──SYNCED / SYNC_ERROR─────┴──one batch──► /sync/inspections
//
// Passes
//
// A pass samples connectivity once. When offline it returns ErrOffline and
// touches nothing. Otherwise every candidate is marked SYNCING, its media is
// uploaded just in time when it only has a local preview, and the remaining
// payloads go out in one request. Results are matched by externalId:
//
//   - CREATED / UPDATED: SYNCED, syncedAt = now, serverId adopted if unset
//   - ERROR: SYNC_ERROR with the server message
//   - missing from the response: SYNC_ERROR, retried next pass
//
// A media upload failure only fails its own inspection. A transport failure
// moves every in-flight inspection to SYNC_ERROR. An authorization failure
// moves them back to PENDING_SYNC and is returned to the caller.
//
// After a completed round-trip lastSyncAt is recorded and SYNCED inspections
// older than the retention window are purged.
//
// Passes never overlap: a SyncAll while another is running returns
// ErrSyncInProgress.
//
// Usage
//
//	store, err := db.OpenAndInit(ctx, ".vistoria/offline.db")
//	if err != nil {
//	    return err
//	}
//	defer store.Close()
//
//	client, err := remote.New(remote.Config{BaseURL: url, Token: token})
//	if err != nil {
//	    return err
//	}
//
//	syncer := sync.New(store, client, sync.Options{
//	    Connectivity: connectivity.NewHTTPProbe(healthURL, 0),
//	})
//	res, err := syncer.SyncAll(ctx)
package sync
