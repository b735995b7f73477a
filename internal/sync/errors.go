package sync

import (
	"errors"

	"github.com/sanorte/vistorias/internal/offline/db"
	"github.com/sanorte/vistorias/internal/remote"
)

// Errors returned by SyncAll.
//
// Per-inspection failures are recorded in the store and never returned;
// only the conditions below escape a pass:
//
//	if errors.Is(err, sync.ErrOffline) {
//	    // try again when connectivity returns
//	}
var (
	// ErrOffline is returned when a pass starts without connectivity.
	// No record is modified.
	ErrOffline = errors.New("offline: sync requires connectivity")

	// ErrTransport is returned when the batch request got no usable
	// response. Every in-flight inspection is left in SYNC_ERROR.
	ErrTransport = errors.New("sync transport failure")

	// ErrUpload marks a media upload failure. During a pass it only fails
	// the owning inspection and is recorded as its sync error message.
	ErrUpload = errors.New("media upload failed")

	// ErrSyncInProgress is returned when another pass is still running.
	ErrSyncInProgress = errors.New("sync already in progress")
)

// IsRetryable returns true if a later pass is likely to succeed without
// user intervention.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, ErrOffline) {
		return true
	}

	if errors.Is(err, ErrTransport) {
		return true
	}

	if errors.Is(err, ErrSyncInProgress) {
		return true
	}

	return false
}

// IsUserActionRequired returns true if the user must act (sign in again)
// before syncing can succeed.
func IsUserActionRequired(err error) bool {
	return errors.Is(err, remote.ErrUnauthorized)
}

// IsFatal returns true if the error indicates an inconsistent local store.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, db.ErrNotFound)
}
