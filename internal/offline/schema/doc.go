// Package schema defines the records kept in the offline inspection store.
//
// # Overview
//
// An Inspection is the unit of work recorded by a field worker against a
// Checklist. It owns a set of InspectionItem answers, zero or more Evidence
// photos and at most one Signature. All of them live in the local SQLite
// store until they are reconciled with the server.
//
// # Identity
//
// Every inspection is keyed by a client-generated ExternalID (a UUID). The
// ExternalID never changes and is the idempotency key used by the sync
// protocol. The ServerID is assigned by the server on the first successful
// sync and is never overwritten afterwards.
//
// # Lifecycle
//
//	DRAFT ──finalize──► FINALIZED
//	   │
//	   └──finalize (any NAO_CONFORME)──► NEEDS_ADJUSTMENT ──resolve all──► RESOLVED
//
// Independently of Status, SyncState tracks reconciliation:
//
//	PENDING_SYNC ──► SYNCING ──► SYNCED
//	      ▲              │
//	      └── SYNC_ERROR ◄┘
//
// Any local mutation moves SyncState back to PENDING_SYNC.
//
// # Media
//
// Evidence and Signature records carry either a local preview (a file in the
// media spool directory) or a durable remote reference (PublicID + URL).
// Only durable references are ever sent to the server.
package schema
