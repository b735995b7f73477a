package schema

// Status is the business lifecycle state of an inspection.
type Status string

const (
	// StatusDraft is an inspection still being filled in.
	StatusDraft Status = "DRAFT"
	// StatusFinalized is a finalized inspection with no non-conformities.
	StatusFinalized Status = "FINALIZED"
	// StatusNeedsAdjustment is a finalized inspection with at least one
	// NAO_CONFORME answer awaiting remediation.
	StatusNeedsAdjustment Status = "NEEDS_ADJUSTMENT"
	// StatusResolved is an inspection whose non-conformities were all remediated.
	StatusResolved Status = "RESOLVED"
)

// String returns the string representation of the status.
func (s Status) String() string {
	return string(s)
}

// IsValid returns true if the status is a recognized value.
func (s Status) IsValid() bool {
	switch s {
	case StatusDraft, StatusFinalized, StatusNeedsAdjustment, StatusResolved:
		return true
	}
	return false
}

// SyncState tracks reconciliation of a local inspection with the server.
type SyncState string

const (
	// SyncStatePending means the record has local changes not yet sent.
	SyncStatePending SyncState = "PENDING_SYNC"
	// SyncStateSyncing means the record is part of an in-flight sync pass.
	SyncStateSyncing SyncState = "SYNCING"
	// SyncStateSynced means the server acknowledged the latest local version.
	SyncStateSynced SyncState = "SYNCED"
	// SyncStateError means the last attempt failed; it is retried on the next pass.
	SyncStateError SyncState = "SYNC_ERROR"
)

// String returns the string representation of the sync state.
func (s SyncState) String() string {
	return string(s)
}

// IsValid returns true if the sync state is a recognized value.
func (s SyncState) IsValid() bool {
	switch s {
	case SyncStatePending, SyncStateSyncing, SyncStateSynced, SyncStateError:
		return true
	}
	return false
}

// NeedsSync reports whether records in this state belong to the candidate set.
func (s SyncState) NeedsSync() bool {
	return s == SyncStatePending || s == SyncStateError
}

// Answer is the response recorded for one checklist item.
type Answer string

const (
	// AnswerUnset means the item has not been answered yet.
	AnswerUnset Answer = ""
	// AnswerConforme means the item complies.
	AnswerConforme Answer = "CONFORME"
	// AnswerNaoConforme means the item does not comply.
	AnswerNaoConforme Answer = "NAO_CONFORME"
	// AnswerNaoAplicavel means the item does not apply and is not scored.
	AnswerNaoAplicavel Answer = "NAO_APLICAVEL"
)

// String returns the string representation of the answer.
func (a Answer) String() string {
	return string(a)
}

// IsValid returns true if the answer is unset or a recognized value.
func (a Answer) IsValid() bool {
	switch a {
	case AnswerUnset, AnswerConforme, AnswerNaoConforme, AnswerNaoAplicavel:
		return true
	}
	return false
}

// IsSet reports whether an answer was given.
func (a Answer) IsSet() bool {
	return a != AnswerUnset
}

// MediaFolder is the logical folder tag used by the media upload endpoint.
type MediaFolder string

const (
	// FolderEvidences holds inspection photos.
	FolderEvidences MediaFolder = "quality/evidences"
	// FolderSignatures holds signature images.
	FolderSignatures MediaFolder = "quality/signatures"
)
