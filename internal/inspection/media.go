package inspection

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/sanorte/vistorias/internal/offline/db"
	"github.com/sanorte/vistorias/internal/offline/schema"
)

// Photo is an image captured on the device.
type Photo struct {
	// ChecklistItemID links the photo to an answered item; empty for a
	// general photo of the inspection.
	ChecklistItemID string
	FileName        string
	MimeType        string
	Data            io.Reader
}

// AttachEvidence spools a photo, records it and, when online, uploads it
// right away. An upload failure keeps the local preview; the sync pass
// uploads it later.
func (s *Service) AttachEvidence(ctx context.Context, externalID string, p Photo) (*schema.Evidence, error) {
	if _, err := s.store.GetInspectionContext(ctx, externalID); err != nil {
		return nil, err
	}

	itemID := ""
	if p.ChecklistItemID != "" {
		items, err := s.store.GetInspectionItemsContext(ctx, externalID)
		if err != nil {
			return nil, err
		}
		for _, it := range items {
			if it.ChecklistItemID == p.ChecklistItemID {
				itemID = it.ID
				break
			}
		}
		if itemID == "" {
			return nil, fmt.Errorf("%w: %s has no answer for %s", ErrUnknownItem, externalID, p.ChecklistItemID)
		}
	}

	mimeType := p.MimeType
	if mimeType == "" {
		mimeType = "image/jpeg"
	}
	ev := schema.NewEvidence(externalID, itemID, p.FileName, mimeType)
	path, err := s.spool(externalID, ev.ID+filepath.Ext(p.FileName), p.Data)
	if err != nil {
		return nil, err
	}
	ev.LocalPath = path
	if err := s.store.SaveEvidenceContext(ctx, ev); err != nil {
		os.Remove(path)
		return nil, err
	}
	if _, err := s.touch(ctx, externalID, db.InspectionPatch{}); err != nil {
		return nil, err
	}

	if ref, ok := s.tryUpload(ctx, schema.FolderEvidences, ev.FileName, ev.MimeType, path); ok {
		ev.ApplyMedia(ref)
		if err := s.store.SaveEvidenceContext(ctx, ev); err != nil {
			return nil, fmt.Errorf("failed to persist media reference of evidence %s: %w", ev.ID, err)
		}
		os.Remove(path)
	}
	return ev, nil
}

// RemoveEvidence deletes an evidence and its preview. Hosted media is
// deleted on a best-effort basis.
func (s *Service) RemoveEvidence(ctx context.Context, evidenceID string) error {
	ev, err := s.store.GetEvidenceContext(ctx, evidenceID)
	if err != nil {
		return err
	}
	if err := s.store.DeleteEvidenceContext(ctx, evidenceID); err != nil {
		return err
	}
	if ev.LocalPath != "" {
		os.Remove(ev.LocalPath)
	}
	if ev.Media().IsDurable() && s.media != nil && s.online.Online(ctx) {
		if err := s.media.DeleteMedia(ctx, ev.PublicID); err != nil {
			s.logger.Printf("Warning: failed to delete hosted media %s: %v", ev.PublicID, err)
		}
	}
	_, err = s.touch(ctx, ev.InspectionExternalID, db.InspectionPatch{})
	return err
}

// SaveSignature records the sign-off image, replacing any earlier one.
func (s *Service) SaveSignature(ctx context.Context, externalID, signerName, roleLabel string, png io.Reader) (*schema.Signature, error) {
	if strings.TrimSpace(signerName) == "" {
		return nil, fmt.Errorf("signer name is required")
	}
	if _, err := s.store.GetInspectionContext(ctx, externalID); err != nil {
		return nil, err
	}
	prev, err := s.store.GetSignatureContext(ctx, externalID)
	if err != nil {
		return nil, err
	}

	sig := schema.NewSignature(externalID, signerName)
	sig.SignerRoleLabel = roleLabel
	path, err := s.spool(externalID, "signature-"+sig.ID+".png", png)
	if err != nil {
		return nil, err
	}
	sig.LocalPath = path
	if err := s.store.SaveSignatureContext(ctx, sig); err != nil {
		os.Remove(path)
		return nil, err
	}
	if prev != nil && prev.LocalPath != "" {
		os.Remove(prev.LocalPath)
	}
	if _, err := s.touch(ctx, externalID, db.InspectionPatch{}); err != nil {
		return nil, err
	}

	if ref, ok := s.tryUpload(ctx, schema.FolderSignatures, "signature.png", "image/png", path); ok {
		sig.ApplyMedia(ref)
		if err := s.store.SaveSignatureContext(ctx, sig); err != nil {
			return nil, fmt.Errorf("failed to persist media reference of signature %s: %w", sig.ID, err)
		}
		os.Remove(path)
	}
	return sig, nil
}

// tryUpload uploads a spooled preview when a media client is configured and
// the device is online. Failures are logged and reported as !ok.
func (s *Service) tryUpload(ctx context.Context, folder schema.MediaFolder, fileName, mimeType, path string) (schema.MediaRef, bool) {
	if s.media == nil || !s.online.Online(ctx) {
		return schema.MediaRef{}, false
	}
	f, err := os.Open(path)
	if err != nil {
		s.logger.Printf("Warning: failed to open preview %s: %v", path, err)
		return schema.MediaRef{}, false
	}
	defer f.Close()

	ref, err := s.media.UploadMedia(ctx, folder, fileName, mimeType, f)
	if err != nil {
		s.logger.Printf("Upload deferred to next sync (%s): %v", fileName, err)
		return schema.MediaRef{}, false
	}
	return ref, true
}

func (s *Service) spoolDir(externalID string) string {
	return filepath.Join(s.mediaDir, externalID)
}

// spool copies r to a preview file under the inspection's media directory.
func (s *Service) spool(externalID, name string, r io.Reader) (string, error) {
	if r == nil {
		return "", fmt.Errorf("no image data")
	}
	dir := s.spoolDir(externalID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create media directory: %w", err)
	}
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create preview: %w", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(path)
		return "", fmt.Errorf("failed to write preview: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("failed to write preview: %w", err)
	}
	return path, nil
}
