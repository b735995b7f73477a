package schema

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// MediaRef is a durable, server-hosted pointer to an uploaded image.
type MediaRef struct {
	PublicID     string `json:"publicId"`
	URL          string `json:"url"`
	ResourceType string `json:"resourceType,omitempty"`
	Bytes        int64  `json:"bytes"`
	Format       string `json:"format,omitempty"`
	Width        int    `json:"width,omitempty"`
	Height       int    `json:"height,omitempty"`
}

// IsDurable reports whether the reference can be sent to the server.
func (m MediaRef) IsDurable() bool {
	return m.PublicID != "" && m.URL != ""
}

// Evidence is a photo attached to an inspection, optionally to one item.
type Evidence struct {
	ID                   string `json:"id" validate:"required"`
	InspectionExternalID string `json:"inspectionExternalId" validate:"required"`
	InspectionItemID     string `json:"inspectionItemId,omitempty"`
	FileName             string `json:"fileName" validate:"required"`
	MimeType             string `json:"mimeType" validate:"required"`

	// LocalPath points at the spooled preview while no durable reference exists.
	LocalPath string `json:"localPath,omitempty"`

	PublicID string `json:"publicId,omitempty"`
	URL      string `json:"url,omitempty"`
	Bytes    int64  `json:"bytes,omitempty"`
	Format   string `json:"format,omitempty"`
	Width    int    `json:"width,omitempty"`
	Height   int    `json:"height,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
}

// NewEvidence returns an evidence record with a fresh ID.
func NewEvidence(externalID, itemID, fileName, mimeType string) *Evidence {
	return &Evidence{
		ID:                   uuid.NewString(),
		InspectionExternalID: externalID,
		InspectionItemID:     itemID,
		FileName:             fileName,
		MimeType:             mimeType,
		CreatedAt:            time.Now().UTC(),
	}
}

// Validate checks if the Evidence has valid field values.
func (e *Evidence) Validate() error {
	if err := validate.Struct(e); err != nil {
		return fmt.Errorf("evidence %s: %w", e.ID, err)
	}
	if e.LocalPath == "" && !e.Media().IsDurable() {
		return fmt.Errorf("evidence %s: needs a local preview or a remote reference", e.ID)
	}
	return nil
}

// Media returns the remote reference held by the evidence.
func (e *Evidence) Media() MediaRef {
	return MediaRef{
		PublicID: e.PublicID,
		URL:      e.URL,
		Bytes:    e.Bytes,
		Format:   e.Format,
		Width:    e.Width,
		Height:   e.Height,
	}
}

// ApplyMedia replaces the local preview with a durable reference.
func (e *Evidence) ApplyMedia(m MediaRef) {
	e.PublicID = m.PublicID
	e.URL = m.URL
	e.Bytes = m.Bytes
	e.Format = m.Format
	e.Width = m.Width
	e.Height = m.Height
	e.LocalPath = ""
}

// Signature is the sign-off of the team leader; at most one per inspection.
type Signature struct {
	ID                   string    `json:"id" validate:"required"`
	InspectionExternalID string    `json:"inspectionExternalId" validate:"required"`
	SignerName           string    `json:"signerName"`
	SignerRoleLabel      string    `json:"signerRoleLabel,omitempty"`
	LocalPath            string    `json:"localPath,omitempty"`
	PublicID             string    `json:"publicId,omitempty"`
	URL                  string    `json:"url,omitempty"`
	SignedAt             time.Time `json:"signedAt"`
}

// NewSignature returns a signature record with a fresh ID.
func NewSignature(externalID, signerName string) *Signature {
	return &Signature{
		ID:                   uuid.NewString(),
		InspectionExternalID: externalID,
		SignerName:           signerName,
		SignedAt:             time.Now().UTC(),
	}
}

// Validate checks if the Signature has valid field values.
func (s *Signature) Validate() error {
	if err := validate.Struct(s); err != nil {
		return fmt.Errorf("signature %s: %w", s.ID, err)
	}
	if s.LocalPath == "" && !s.Media().IsDurable() {
		return fmt.Errorf("signature %s: needs a local preview or a remote reference", s.ID)
	}
	return nil
}

// Media returns the remote reference held by the signature.
func (s *Signature) Media() MediaRef {
	return MediaRef{PublicID: s.PublicID, URL: s.URL}
}

// ApplyMedia replaces the local preview with a durable reference.
func (s *Signature) ApplyMedia(m MediaRef) {
	s.PublicID = m.PublicID
	s.URL = m.URL
	s.LocalPath = ""
}

// Metadata keys written by the sync orchestrator.
const (
	MetaLastSyncAt     = "lastSyncAt"
	MetaLastPurgeCount = "lastPurgeCount"
)

// SyncMetadata is a process-wide key/value record.
type SyncMetadata struct {
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updatedAt"`
}
