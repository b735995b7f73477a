package remote

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/sanorte/vistorias/internal/offline/schema"
)

// Kind tells the server whether it has seen an inspection before.
type Kind string

const (
	// KindLocallyCreated is an inspection the server has never acknowledged.
	KindLocallyCreated Kind = "LOCALLY_CREATED"
	// KindServerKnown is an inspection that already has a server id.
	KindServerKnown Kind = "SERVER_KNOWN"
)

// ItemPayload is one answer sent to the server.
type ItemPayload struct {
	ChecklistItemID string `json:"checklistItemId"`
	Answer          string `json:"answer,omitempty"`
	Notes           string `json:"notes,omitempty"`
}

// EvidencePayload is an evidence with its durable media reference.
type EvidencePayload struct {
	InspectionItemID string `json:"inspectionItemId,omitempty"`
	ChecklistItemID  string `json:"checklistItemId,omitempty"`
	PublicID         string `json:"cloudinaryPublicId"`
	URL              string `json:"url"`
	FilePath         string `json:"filePath"`
	FileName         string `json:"fileName"`
	MimeType         string `json:"mimeType"`
	Size             int64  `json:"size"`
	Bytes            int64  `json:"bytes,omitempty"`
	Format           string `json:"format,omitempty"`
	Width            int    `json:"width,omitempty"`
	Height           int    `json:"height,omitempty"`
}

// SignaturePayload is the sign-off with its durable media reference.
type SignaturePayload struct {
	SignerName string `json:"signerName"`
	PublicID   string `json:"cloudinaryPublicId"`
	URL        string `json:"url"`
}

// InspectionPayload is one entry of a batch sync request. It is either
// locally created (no server id) or server known (server id present); the
// kind and the server id can only be set together by the constructors.
type InspectionPayload struct {
	kind     Kind
	serverID string

	ExternalID          string
	Module              string
	ChecklistID         string
	TeamID              string
	CollaboratorIDs     []string
	ServiceDescription  string
	LocationDescription string
	CreatedOffline      bool
	SyncedAt            *time.Time
	Items               []ItemPayload
	Evidences           []EvidencePayload
	Signature           *SignaturePayload
	Finalize            bool
}

// Kind returns the payload variant.
func (p *InspectionPayload) Kind() Kind {
	return p.kind
}

// ServerID returns the server id of a SERVER_KNOWN payload and "" otherwise.
func (p *InspectionPayload) ServerID() string {
	return p.serverID
}

// wireInspection is the JSON shape of InspectionPayload.
type wireInspection struct {
	Kind                Kind              `json:"kind"`
	ExternalID          string            `json:"externalId"`
	ServerID            string            `json:"serverId,omitempty"`
	Module              string            `json:"module,omitempty"`
	ChecklistID         string            `json:"checklistId"`
	TeamID              string            `json:"teamId"`
	CollaboratorIDs     []string          `json:"collaboratorIds,omitempty"`
	ServiceDescription  string            `json:"serviceDescription"`
	LocationDescription string            `json:"locationDescription,omitempty"`
	CreatedOffline      bool              `json:"createdOffline"`
	SyncedAt            string            `json:"syncedAt,omitempty"`
	Items               []ItemPayload     `json:"items"`
	Evidences           []EvidencePayload `json:"evidences"`
	Signature           *SignaturePayload `json:"signature,omitempty"`
	Finalize            bool              `json:"finalize"`
}

// MarshalJSON implements json.Marshaler.
func (p *InspectionPayload) MarshalJSON() ([]byte, error) {
	w := wireInspection{
		Kind:                p.kind,
		ExternalID:          p.ExternalID,
		ServerID:            p.serverID,
		Module:              p.Module,
		ChecklistID:         p.ChecklistID,
		TeamID:              p.TeamID,
		CollaboratorIDs:     p.CollaboratorIDs,
		ServiceDescription:  p.ServiceDescription,
		LocationDescription: p.LocationDescription,
		CreatedOffline:      p.CreatedOffline,
		Items:               p.Items,
		Evidences:           p.Evidences,
		Signature:           p.Signature,
		Finalize:            p.Finalize,
	}
	if p.SyncedAt != nil {
		w.SyncedAt = p.SyncedAt.UTC().Format(time.RFC3339)
	}
	if w.Items == nil {
		w.Items = []ItemPayload{}
	}
	if w.Evidences == nil {
		w.Evidences = []EvidencePayload{}
	}
	return json.Marshal(w)
}

// NewLocallyCreated returns a payload for an inspection the server has not
// acknowledged yet.
func NewLocallyCreated(externalID string) *InspectionPayload {
	return &InspectionPayload{kind: KindLocallyCreated, ExternalID: externalID}
}

// NewServerKnown returns a payload for an inspection with a server id.
func NewServerKnown(externalID, serverID string) *InspectionPayload {
	return &InspectionPayload{kind: KindServerKnown, ExternalID: externalID, serverID: serverID}
}

// BuildPayload assembles the payload of one inspection. Every evidence and
// the signature must already carry a durable media reference.
func BuildPayload(rec *schema.Inspection, items []*schema.InspectionItem, evidences []*schema.Evidence, sig *schema.Signature) (*InspectionPayload, error) {
	var p *InspectionPayload
	if rec.ServerID != "" {
		p = NewServerKnown(rec.ExternalID, rec.ServerID)
	} else {
		p = NewLocallyCreated(rec.ExternalID)
	}

	p.Module = rec.Module
	p.ChecklistID = rec.ChecklistID
	p.TeamID = rec.TeamID
	p.CollaboratorIDs = rec.CollaboratorIDs
	p.ServiceDescription = rec.ServiceDescription
	p.LocationDescription = rec.LocationDescription
	p.CreatedOffline = rec.CreatedOffline
	p.SyncedAt = rec.SyncedAt
	p.Finalize = rec.IsFinal()

	checklistItemOf := make(map[string]string, len(items))
	for _, it := range items {
		checklistItemOf[it.ID] = it.ChecklistItemID
		p.Items = append(p.Items, ItemPayload{
			ChecklistItemID: it.ChecklistItemID,
			Answer:          string(it.Answer),
			Notes:           it.Notes,
		})
	}

	for _, ev := range evidences {
		ref := ev.Media()
		if !ref.IsDurable() {
			return nil, fmt.Errorf("evidence %s has no durable media reference", ev.ID)
		}
		p.Evidences = append(p.Evidences, EvidencePayload{
			InspectionItemID: ev.InspectionItemID,
			ChecklistItemID:  checklistItemOf[ev.InspectionItemID],
			PublicID:         ref.PublicID,
			URL:              ref.URL,
			FilePath:         ref.URL,
			FileName:         ev.FileName,
			MimeType:         ev.MimeType,
			Size:             ref.Bytes,
			Bytes:            ref.Bytes,
			Format:           ref.Format,
			Width:            ref.Width,
			Height:           ref.Height,
		})
	}

	if sig != nil {
		ref := sig.Media()
		if !ref.IsDurable() {
			return nil, fmt.Errorf("signature %s has no durable media reference", sig.ID)
		}
		p.Signature = &SignaturePayload{
			SignerName: sig.SignerName,
			PublicID:   ref.PublicID,
			URL:        ref.URL,
		}
	}

	return p, nil
}

// ResultStatus is the per-inspection outcome reported by the server.
type ResultStatus string

const (
	ResultCreated ResultStatus = "CREATED"
	ResultUpdated ResultStatus = "UPDATED"
	ResultError   ResultStatus = "ERROR"
)

// SyncResult is the server outcome for one submitted inspection.
type SyncResult struct {
	ExternalID string       `json:"externalId"`
	ServerID   string       `json:"serverId,omitempty"`
	Status     ResultStatus `json:"status"`
	Message    string       `json:"message,omitempty"`
}

type syncRequest struct {
	Inspections []*InspectionPayload `json:"inspections"`
}

type syncResponse struct {
	Results []SyncResult `json:"results"`
}
