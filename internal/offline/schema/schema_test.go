package schema

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestInspection_Validate(t *testing.T) {
	now := time.Now().UTC()
	score := 67
	badScore := 120

	tests := []struct {
		name       string
		inspection Inspection
		wantErr    bool
	}{
		{
			name:       "new draft",
			inspection: *NewInspection("checklist-1", "team-1"),
		},
		{
			name: "finalized with score",
			inspection: Inspection{
				ExternalID:   "ext-1",
				ChecklistID:  "checklist-1",
				TeamID:       "team-1",
				Status:       StatusNeedsAdjustment,
				SyncState:    SyncStateSynced,
				ScorePercent: &score,
				CreatedAt:    now,
				UpdatedAt:    now,
			},
		},
		{
			name: "missing external id",
			inspection: Inspection{
				ChecklistID: "checklist-1",
				TeamID:      "team-1",
				Status:      StatusDraft,
				SyncState:   SyncStatePending,
				CreatedAt:   now,
				UpdatedAt:   now,
			},
			wantErr: true,
		},
		{
			name: "unknown status",
			inspection: Inspection{
				ExternalID:  "ext-1",
				ChecklistID: "checklist-1",
				TeamID:      "team-1",
				Status:      "ARCHIVED",
				SyncState:   SyncStatePending,
				CreatedAt:   now,
				UpdatedAt:   now,
			},
			wantErr: true,
		},
		{
			name: "unknown sync state",
			inspection: Inspection{
				ExternalID:  "ext-1",
				ChecklistID: "checklist-1",
				TeamID:      "team-1",
				Status:      StatusDraft,
				SyncState:   "QUEUED",
				CreatedAt:   now,
				UpdatedAt:   now,
			},
			wantErr: true,
		},
		{
			name: "score out of range",
			inspection: Inspection{
				ExternalID:   "ext-1",
				ChecklistID:  "checklist-1",
				TeamID:       "team-1",
				Status:       StatusFinalized,
				SyncState:    SyncStatePending,
				ScorePercent: &badScore,
				CreatedAt:    now,
				UpdatedAt:    now,
			},
			wantErr: true,
		},
		{
			name: "zero created_at",
			inspection: Inspection{
				ExternalID:  "ext-1",
				ChecklistID: "checklist-1",
				TeamID:      "team-1",
				Status:      StatusDraft,
				SyncState:   SyncStatePending,
				UpdatedAt:   now,
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.inspection.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestNewInspection_Defaults(t *testing.T) {
	a := NewInspection("c", "t")
	b := NewInspection("c", "t")

	if a.ExternalID == "" || a.ExternalID == b.ExternalID {
		t.Errorf("ExternalID not unique: %q vs %q", a.ExternalID, b.ExternalID)
	}
	if a.Status != StatusDraft {
		t.Errorf("Status = %q, want DRAFT", a.Status)
	}
	if a.SyncState != SyncStatePending {
		t.Errorf("SyncState = %q, want PENDING_SYNC", a.SyncState)
	}
	if !a.CreatedOffline {
		t.Error("CreatedOffline = false, want true")
	}
	if a.IsFinal() {
		t.Error("IsFinal() = true for a draft")
	}
}

func TestInspection_EffectiveSyncTime(t *testing.T) {
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	updated := created.Add(time.Hour)
	synced := created.Add(2 * time.Hour)

	i := Inspection{CreatedAt: created}
	if got := i.EffectiveSyncTime(); !got.Equal(created) {
		t.Errorf("only created: got %v, want %v", got, created)
	}
	i.UpdatedAt = updated
	if got := i.EffectiveSyncTime(); !got.Equal(updated) {
		t.Errorf("with updated: got %v, want %v", got, updated)
	}
	i.SyncedAt = &synced
	if got := i.EffectiveSyncTime(); !got.Equal(synced) {
		t.Errorf("with synced: got %v, want %v", got, synced)
	}
}

func TestInspectionItem_Resolution(t *testing.T) {
	item := NewInspectionItem("ext-1", "item-1", AnswerNaoConforme)
	if err := item.Validate(); err != nil {
		t.Fatalf("Validate() on fresh item failed: %v", err)
	}
	if item.IsResolved() {
		t.Fatal("fresh item reported as resolved")
	}

	item.ResolutionNotes = "fixed"
	if err := item.Validate(); err == nil {
		t.Error("Validate() accepted partial resolution")
	}

	if err := item.Resolve("", "fixed", "/tmp/p.jpg", time.Now()); err == nil {
		t.Error("Resolve() accepted empty user")
	}
	if err := item.Resolve("user-1", "fixed", "/tmp/p.jpg", time.Now()); err != nil {
		t.Fatalf("Resolve() failed: %v", err)
	}
	if !item.IsResolved() {
		t.Error("IsResolved() = false after Resolve")
	}
	if err := item.Validate(); err != nil {
		t.Errorf("Validate() after Resolve failed: %v", err)
	}
}

func TestInspectionItem_InvalidAnswer(t *testing.T) {
	item := NewInspectionItem("ext-1", "item-1", "MAYBE")
	if err := item.Validate(); err == nil {
		t.Error("Validate() accepted unknown answer")
	}
	if Answer("MAYBE").IsValid() {
		t.Error("IsValid() = true for unknown answer")
	}
	if !AnswerUnset.IsValid() || AnswerUnset.IsSet() {
		t.Error("unset answer must be valid and not set")
	}
}

func TestSyncState_NeedsSync(t *testing.T) {
	tests := []struct {
		state SyncState
		want  bool
	}{
		{SyncStatePending, true},
		{SyncStateError, true},
		{SyncStateSyncing, false},
		{SyncStateSynced, false},
	}
	for _, tt := range tests {
		if got := tt.state.NeedsSync(); got != tt.want {
			t.Errorf("%s.NeedsSync() = %v, want %v", tt.state, got, tt.want)
		}
	}
}

func TestEvidence_ApplyMedia(t *testing.T) {
	ev := NewEvidence("ext-1", "item-1", "photo.jpg", "image/jpeg")
	if err := ev.Validate(); err == nil {
		t.Error("Validate() accepted evidence without preview or reference")
	}

	ev.LocalPath = "/spool/photo.jpg"
	if err := ev.Validate(); err != nil {
		t.Fatalf("Validate() with preview failed: %v", err)
	}
	if ev.Media().IsDurable() {
		t.Error("preview-only evidence reported durable")
	}

	ev.ApplyMedia(MediaRef{PublicID: "quality/evidences/abc", URL: "https://cdn/abc.jpg", Bytes: 1024, Width: 640, Height: 480})
	if !ev.Media().IsDurable() {
		t.Error("evidence not durable after ApplyMedia")
	}
	if ev.LocalPath != "" {
		t.Errorf("LocalPath = %q, want cleared", ev.LocalPath)
	}
	if ev.Bytes != 1024 || ev.Width != 640 {
		t.Errorf("metadata not copied: %+v", ev)
	}
}

func TestSignature_ApplyMedia(t *testing.T) {
	sig := NewSignature("ext-1", "Maria")
	sig.LocalPath = "/spool/sig.png"
	if err := sig.Validate(); err != nil {
		t.Fatalf("Validate() failed: %v", err)
	}
	sig.ApplyMedia(MediaRef{PublicID: "quality/signatures/s1", URL: "https://cdn/s1.png"})
	if !sig.Media().IsDurable() || sig.LocalPath != "" {
		t.Errorf("signature not durable after ApplyMedia: %+v", sig)
	}
}

func testChecklist() *Checklist {
	return &Checklist{
		ID:     "checklist-1",
		Name:   "Segurança",
		Active: true,
		Sections: []ChecklistSection{
			{
				ID: "s2", Name: "Second", Order: 2, Active: true,
				Items: []ChecklistItem{
					{ID: "item-3", Title: "Extintor", Order: 1, Active: true},
				},
			},
			{
				ID: "s1", Name: "First", Order: 1, Active: true,
				Items: []ChecklistItem{
					{ID: "item-2", Title: "Sinalização", Order: 2, Active: true},
					{ID: "item-1", Title: "EPI", Order: 1, Active: true, RequiresPhotoOnNonConformity: true},
					{ID: "item-x", Title: "Retired", Order: 3, Active: false},
				},
			},
		},
	}
}

func TestChecklist_ActiveItems(t *testing.T) {
	c := testChecklist()
	items := c.ActiveItems()

	want := []string{"item-1", "item-2", "item-3"}
	if len(items) != len(want) {
		t.Fatalf("ActiveItems() returned %d items, want %d", len(items), len(want))
	}
	for i, id := range want {
		if items[i].ID != id {
			t.Errorf("items[%d] = %s, want %s", i, items[i].ID, id)
		}
	}

	if _, ok := c.ItemByID("item-x"); !ok {
		t.Error("ItemByID() did not find inactive item")
	}
	if _, ok := c.ItemByID("nope"); ok {
		t.Error("ItemByID() found unknown item")
	}
}

func TestChecklist_ValidateDuplicateItem(t *testing.T) {
	c := testChecklist()
	c.Sections[0].Items = append(c.Sections[0].Items, ChecklistItem{ID: "item-1", Title: "Dup", Active: true})
	if err := c.Validate(); err == nil {
		t.Error("Validate() accepted duplicate item ids")
	}
}

func TestReadChecklistFile(t *testing.T) {
	dir := t.TempDir()

	yamlPath := filepath.Join(dir, "checklists.yaml")
	yamlData := `checklists:
  - id: checklist-1
    name: Segurança
    active: true
    sections:
      - id: s1
        name: EPI
        order: 1
        active: true
        items:
          - id: item-1
            title: Uso de EPI adequado
            order: 1
            requiresPhotoOnNonConformity: true
            active: true
`
	if err := os.WriteFile(yamlPath, []byte(yamlData), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	lists, err := ReadChecklistFile(yamlPath)
	if err != nil {
		t.Fatalf("ReadChecklistFile(yaml) failed: %v", err)
	}
	if len(lists) != 1 || lists[0].ID != "checklist-1" {
		t.Fatalf("unexpected checklists: %+v", lists)
	}
	if !lists[0].Sections[0].Items[0].RequiresPhotoOnNonConformity {
		t.Error("requiresPhotoOnNonConformity not parsed")
	}

	jsonPath := filepath.Join(dir, "single.json")
	jsonData := `{"id":"checklist-2","name":"Canteiro","active":true,"sections":[{"id":"s1","name":"Geral","order":1,"active":true,"items":[{"id":"i1","title":"Limpeza","order":1,"active":true}]}]}`
	if err := os.WriteFile(jsonPath, []byte(jsonData), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	lists, err = ReadChecklistFile(jsonPath)
	if err != nil {
		t.Fatalf("ReadChecklistFile(json) failed: %v", err)
	}
	if len(lists) != 1 || lists[0].ID != "checklist-2" {
		t.Fatalf("unexpected checklists: %+v", lists)
	}

	emptyPath := filepath.Join(dir, "empty.yaml")
	if err := os.WriteFile(emptyPath, []byte("foo: bar\n"), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	if _, err := ReadChecklistFile(emptyPath); err == nil {
		t.Error("ReadChecklistFile() accepted file without checklists")
	}
}
