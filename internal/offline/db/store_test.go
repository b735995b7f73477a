package db

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/sanorte/vistorias/internal/offline/schema"
)

// testDBPath returns a temporary path for test databases
func testDBPath(t *testing.T) string {
	return filepath.Join(t.TempDir(), "offline.db")
}

// setupTestDB opens a store with an initialized schema.
func setupTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(testDBPath(t))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.InitSchema(); err != nil {
		t.Fatalf("InitSchema() failed: %v", err)
	}
	return db
}

// newInspection builds a valid inspection with the given sync state.
func newInspection(state schema.SyncState) *schema.Inspection {
	rec := schema.NewInspection("checklist-1", "team-1")
	rec.SyncState = state
	rec.CreatedByUserID = "user-1"
	return rec
}

func mustCreate(t *testing.T, db *DB, rec *schema.Inspection) {
	t.Helper()
	if err := db.CreateInspection(rec); err != nil {
		t.Fatalf("CreateInspection() failed: %v", err)
	}
}

func TestOpen_Success(t *testing.T) {
	path := testDBPath(t)
	db, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer db.Close()

	if db.Path() != path {
		t.Errorf("Path() = %q, want %q", db.Path(), path)
	}
}

func TestInitSchema_Tables(t *testing.T) {
	db := setupTestDB(t)

	tables := []string{"inspections", "inspection_items", "evidences", "signatures", "sync_metadata", "checklists"}
	for _, table := range tables {
		var count int
		err := db.conn.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&count)
		if err != nil {
			t.Fatalf("Failed to query table %s: %v", table, err)
		}
		if count != 1 {
			t.Errorf("Table %s does not exist", table)
		}
	}

	if err := db.InitSchema(); err != nil {
		t.Errorf("Second InitSchema() failed: %v", err)
	}
}

func TestClose_Twice(t *testing.T) {
	db, err := Open(testDBPath(t))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Errorf("second Close() failed: %v", err)
	}
}

func TestCreateInspection_RoundTrip(t *testing.T) {
	db := setupTestDB(t)

	rec := newInspection(schema.SyncStatePending)
	rec.CollaboratorIDs = []string{"c1", "c2"}
	rec.ServiceDescription = "Troca de ramal"
	score := 80
	rec.ScorePercent = &score
	mustCreate(t, db, rec)

	got, err := db.GetInspection(rec.ExternalID)
	if err != nil {
		t.Fatalf("GetInspection() failed: %v", err)
	}
	if got.ChecklistID != "checklist-1" || got.TeamID != "team-1" {
		t.Errorf("header mismatch: %+v", got)
	}
	if len(got.CollaboratorIDs) != 2 || got.CollaboratorIDs[1] != "c2" {
		t.Errorf("CollaboratorIDs = %v", got.CollaboratorIDs)
	}
	if got.ScorePercent == nil || *got.ScorePercent != 80 {
		t.Errorf("ScorePercent = %v, want 80", got.ScorePercent)
	}
	if !got.CreatedOffline {
		t.Error("CreatedOffline lost")
	}
	if !got.CreatedAt.Equal(rec.CreatedAt) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, rec.CreatedAt)
	}
	if got.FinalizedAt != nil || got.SyncedAt != nil {
		t.Errorf("unexpected optional timestamps: %+v", got)
	}
}

func TestCreateInspection_ServerIDWriteOnce(t *testing.T) {
	db := setupTestDB(t)

	rec := newInspection(schema.SyncStateSynced)
	rec.ServerID = "srv-1"
	mustCreate(t, db, rec)

	rec.ServerID = "srv-2"
	mustCreate(t, db, rec)

	got, err := db.GetInspection(rec.ExternalID)
	if err != nil {
		t.Fatalf("GetInspection() failed: %v", err)
	}
	if got.ServerID != "srv-1" {
		t.Errorf("ServerID = %q, want srv-1", got.ServerID)
	}
}

func TestCreateInspection_Invalid(t *testing.T) {
	db := setupTestDB(t)
	rec := newInspection(schema.SyncStatePending)
	rec.TeamID = ""
	if err := db.CreateInspection(rec); err == nil {
		t.Error("CreateInspection() accepted inspection without team")
	}
}

func TestGetInspection_NotFound(t *testing.T) {
	db := setupTestDB(t)
	_, err := db.GetInspection("missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("GetInspection() error = %v, want ErrNotFound", err)
	}
}

func TestUpdateInspection(t *testing.T) {
	db := setupTestDB(t)

	rec := newInspection(schema.SyncStateError)
	rec.SyncErrorMessage = "boom"
	rec.UpdatedAt = time.Now().Add(-time.Hour).UTC()
	mustCreate(t, db, rec)

	syncing := schema.SyncStateSyncing
	got, err := db.UpdateInspection(rec.ExternalID, InspectionPatch{
		SyncState:      &syncing,
		ClearSyncError: true,
	})
	if err != nil {
		t.Fatalf("UpdateInspection() failed: %v", err)
	}
	if got.SyncState != schema.SyncStateSyncing {
		t.Errorf("SyncState = %q, want SYNCING", got.SyncState)
	}
	if got.SyncErrorMessage != "" {
		t.Errorf("SyncErrorMessage = %q, want empty", got.SyncErrorMessage)
	}
	if !got.UpdatedAt.After(rec.UpdatedAt) {
		t.Errorf("UpdatedAt not advanced: %v <= %v", got.UpdatedAt, rec.UpdatedAt)
	}
	if got.TeamID != "team-1" {
		t.Errorf("untouched field changed: TeamID = %q", got.TeamID)
	}

	stored, err := db.GetInspection(rec.ExternalID)
	if err != nil {
		t.Fatalf("GetInspection() failed: %v", err)
	}
	if stored.SyncState != schema.SyncStateSyncing || stored.SyncErrorMessage != "" {
		t.Errorf("patch not persisted: %+v", stored)
	}
}

func TestUpdateInspection_ServerIDWriteOnce(t *testing.T) {
	db := setupTestDB(t)
	rec := newInspection(schema.SyncStatePending)
	mustCreate(t, db, rec)

	first, second := "srv-1", "srv-2"
	if _, err := db.UpdateInspection(rec.ExternalID, InspectionPatch{ServerID: &first}); err != nil {
		t.Fatalf("UpdateInspection() failed: %v", err)
	}
	got, err := db.UpdateInspection(rec.ExternalID, InspectionPatch{ServerID: &second})
	if err != nil {
		t.Fatalf("UpdateInspection() failed: %v", err)
	}
	if got.ServerID != "srv-1" {
		t.Errorf("ServerID = %q, want srv-1", got.ServerID)
	}
}

func TestUpdateInspection_IfSyncState(t *testing.T) {
	syncing := schema.SyncStateSyncing
	synced := schema.SyncStateSynced
	serverID := "srv-1"
	now := time.Now()

	tests := []struct {
		name         string
		stored       schema.SyncState
		wantState    schema.SyncState
		wantSyncedAt bool
	}{
		{"state matches", schema.SyncStateSyncing, schema.SyncStateSynced, true},
		{"state changed", schema.SyncStatePending, schema.SyncStatePending, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := setupTestDB(t)
			rec := newInspection(tt.stored)
			rec.UpdatedAt = now.Add(-time.Hour).UTC()
			mustCreate(t, db, rec)

			got, err := db.UpdateInspection(rec.ExternalID, InspectionPatch{
				IfSyncState: &syncing,
				SyncState:   &synced,
				SyncedAt:    &now,
				ServerID:    &serverID,
			})
			if err != nil {
				t.Fatalf("UpdateInspection() failed: %v", err)
			}
			if got.SyncState != tt.wantState {
				t.Errorf("SyncState = %q, want %q", got.SyncState, tt.wantState)
			}
			if got.ServerID != serverID {
				t.Errorf("ServerID = %q, want %q", got.ServerID, serverID)
			}

			stored, _ := db.GetInspection(rec.ExternalID)
			if stored.SyncState != tt.wantState {
				t.Errorf("stored SyncState = %q, want %q", stored.SyncState, tt.wantState)
			}
			if (stored.SyncedAt != nil) != tt.wantSyncedAt {
				t.Errorf("SyncedAt = %v, want set=%v", stored.SyncedAt, tt.wantSyncedAt)
			}
			if !tt.wantSyncedAt && !stored.UpdatedAt.Equal(rec.UpdatedAt) {
				t.Errorf("UpdatedAt moved to %v on a skipped patch", stored.UpdatedAt)
			}
		})
	}
}

func TestUpdateInspection_NotFound(t *testing.T) {
	db := setupTestDB(t)
	state := schema.SyncStateSynced
	_, err := db.UpdateInspection("missing", InspectionPatch{SyncState: &state})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("UpdateInspection() error = %v, want ErrNotFound", err)
	}
}

func TestUpdateInspection_RejectsInvalid(t *testing.T) {
	db := setupTestDB(t)
	rec := newInspection(schema.SyncStatePending)
	mustCreate(t, db, rec)

	bad := schema.Status("ARCHIVED")
	if _, err := db.UpdateInspection(rec.ExternalID, InspectionPatch{Status: &bad}); err == nil {
		t.Fatal("UpdateInspection() accepted unknown status")
	}
	got, _ := db.GetInspection(rec.ExternalID)
	if got.Status != schema.StatusDraft {
		t.Errorf("Status = %q after rejected patch, want DRAFT", got.Status)
	}
}

func TestListInspections_Filter(t *testing.T) {
	db := setupTestDB(t)

	base := time.Now().Add(-time.Hour).UTC()
	for i, state := range []schema.SyncState{schema.SyncStatePending, schema.SyncStateSynced, schema.SyncStateSynced} {
		rec := newInspection(state)
		rec.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		rec.UpdatedAt = rec.CreatedAt
		if i == 2 {
			rec.TeamID = "team-2"
		}
		mustCreate(t, db, rec)
	}

	tests := []struct {
		name   string
		filter ListInspectionsFilter
		want   int
	}{
		{"all", ListInspectionsFilter{}, 3},
		{"synced", ListInspectionsFilter{SyncState: schema.SyncStateSynced}, 2},
		{"team", ListInspectionsFilter{TeamID: "team-2"}, 1},
		{"user", ListInspectionsFilter{CreatedByUserID: "user-1"}, 3},
		{"limit", ListInspectionsFilter{Limit: 2}, 2},
		{"offset", ListInspectionsFilter{Offset: 2}, 1},
		{"since", ListInspectionsFilter{UpdatedSince: base.Add(90 * time.Second)}, 1},
		{"draft", ListInspectionsFilter{Status: schema.StatusDraft}, 3},
		{"finalized", ListInspectionsFilter{Status: schema.StatusFinalized}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := db.ListInspections(tt.filter)
			if err != nil {
				t.Fatalf("ListInspections() failed: %v", err)
			}
			if len(got) != tt.want {
				t.Errorf("ListInspections() returned %d, want %d", len(got), tt.want)
			}
		})
	}

	all, _ := db.ListInspections(ListInspectionsFilter{})
	if len(all) == 3 && all[0].TeamID != "team-2" {
		t.Errorf("newest first expected, got %s first", all[0].TeamID)
	}
}

func TestGetInspectionsToSync_CandidateSet(t *testing.T) {
	db := setupTestDB(t)

	states := []schema.SyncState{
		schema.SyncStatePending,
		schema.SyncStateSyncing,
		schema.SyncStateSynced,
		schema.SyncStateError,
	}
	for _, s := range states {
		mustCreate(t, db, newInspection(s))
	}

	got, err := db.GetInspectionsToSync()
	if err != nil {
		t.Fatalf("GetInspectionsToSync() failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("candidate set size = %d, want 2", len(got))
	}
	for _, rec := range got {
		if !rec.SyncState.NeedsSync() {
			t.Errorf("candidate in state %s", rec.SyncState)
		}
	}

	n, err := db.CountPendingSync()
	if err != nil {
		t.Fatalf("CountPendingSync() failed: %v", err)
	}
	if n != 2 {
		t.Errorf("CountPendingSync() = %d, want 2", n)
	}

	counts, err := db.GetCounts()
	if err != nil {
		t.Fatalf("GetCounts() failed: %v", err)
	}
	for _, s := range states {
		if counts[s] != 1 {
			t.Errorf("counts[%s] = %d, want 1", s, counts[s])
		}
	}
}

func TestReplaceInspectionItems(t *testing.T) {
	db := setupTestDB(t)
	rec := newInspection(schema.SyncStatePending)
	mustCreate(t, db, rec)

	first := []*schema.InspectionItem{
		schema.NewInspectionItem(rec.ExternalID, "item-1", schema.AnswerConforme),
		schema.NewInspectionItem(rec.ExternalID, "item-2", schema.AnswerNaoConforme),
	}
	if err := db.ReplaceInspectionItems(rec.ExternalID, first); err != nil {
		t.Fatalf("ReplaceInspectionItems() failed: %v", err)
	}

	second := []*schema.InspectionItem{
		schema.NewInspectionItem(rec.ExternalID, "item-3", schema.AnswerNaoAplicavel),
	}
	if err := db.ReplaceInspectionItems(rec.ExternalID, second); err != nil {
		t.Fatalf("ReplaceInspectionItems() failed: %v", err)
	}

	got, err := db.GetInspectionItems(rec.ExternalID)
	if err != nil {
		t.Fatalf("GetInspectionItems() failed: %v", err)
	}
	if len(got) != 1 || got[0].ChecklistItemID != "item-3" {
		t.Fatalf("items = %+v, want only item-3", got)
	}
	if got[0].Answer != schema.AnswerNaoAplicavel {
		t.Errorf("Answer = %q", got[0].Answer)
	}
}

func TestReplaceInspectionItems_Atomic(t *testing.T) {
	db := setupTestDB(t)
	rec := newInspection(schema.SyncStatePending)
	mustCreate(t, db, rec)

	original := []*schema.InspectionItem{
		schema.NewInspectionItem(rec.ExternalID, "item-1", schema.AnswerConforme),
	}
	if err := db.ReplaceInspectionItems(rec.ExternalID, original); err != nil {
		t.Fatalf("ReplaceInspectionItems() failed: %v", err)
	}

	// Same primary key twice aborts the insert half way.
	dup := schema.NewInspectionItem(rec.ExternalID, "item-2", schema.AnswerConforme)
	clone := *dup
	clone.ChecklistItemID = "item-3"
	if err := db.ReplaceInspectionItems(rec.ExternalID, []*schema.InspectionItem{dup, &clone}); err == nil {
		t.Fatal("ReplaceInspectionItems() accepted duplicate ids")
	}

	got, err := db.GetInspectionItems(rec.ExternalID)
	if err != nil {
		t.Fatalf("GetInspectionItems() failed: %v", err)
	}
	if len(got) != 1 || got[0].ChecklistItemID != "item-1" {
		t.Errorf("items after failed replace = %+v, want original set", got)
	}
}

func TestReplaceInspectionItems_ResolutionRoundTrip(t *testing.T) {
	db := setupTestDB(t)
	rec := newInspection(schema.SyncStatePending)
	mustCreate(t, db, rec)

	item := schema.NewInspectionItem(rec.ExternalID, "item-1", schema.AnswerNaoConforme)
	if err := item.Resolve("user-2", "trocado", "/spool/fix.jpg", time.Now()); err != nil {
		t.Fatalf("Resolve() failed: %v", err)
	}
	if err := db.ReplaceInspectionItems(rec.ExternalID, []*schema.InspectionItem{item}); err != nil {
		t.Fatalf("ReplaceInspectionItems() failed: %v", err)
	}
	got, _ := db.GetInspectionItems(rec.ExternalID)
	if len(got) != 1 || !got[0].IsResolved() {
		t.Errorf("resolution not persisted: %+v", got)
	}
}

func TestEvidences(t *testing.T) {
	db := setupTestDB(t)
	rec := newInspection(schema.SyncStatePending)
	mustCreate(t, db, rec)

	ev := schema.NewEvidence(rec.ExternalID, "it-1", "a.jpg", "image/jpeg")
	ev.LocalPath = "/spool/a.jpg"
	if err := db.SaveEvidence(ev); err != nil {
		t.Fatalf("SaveEvidence() failed: %v", err)
	}

	ev.ApplyMedia(schema.MediaRef{PublicID: "quality/evidences/a", URL: "https://cdn/a.jpg", Bytes: 10})
	if err := db.SaveEvidence(ev); err != nil {
		t.Fatalf("SaveEvidence() update failed: %v", err)
	}

	list, err := db.GetEvidences(rec.ExternalID)
	if err != nil {
		t.Fatalf("GetEvidences() failed: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("GetEvidences() returned %d, want 1", len(list))
	}
	if !list[0].Media().IsDurable() || list[0].LocalPath != "" {
		t.Errorf("durable reference not persisted: %+v", list[0])
	}

	if err := db.DeleteEvidence(ev.ID); err != nil {
		t.Fatalf("DeleteEvidence() failed: %v", err)
	}
	if _, err := db.GetEvidence(ev.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetEvidence() after delete error = %v, want ErrNotFound", err)
	}
}

func TestEvidence_RequiresInspection(t *testing.T) {
	db := setupTestDB(t)
	ev := schema.NewEvidence("ghost", "", "a.jpg", "image/jpeg")
	ev.LocalPath = "/spool/a.jpg"
	if err := db.SaveEvidence(ev); err == nil {
		t.Error("SaveEvidence() accepted evidence for unknown inspection")
	}
}

func TestSignature_AtMostOne(t *testing.T) {
	db := setupTestDB(t)
	rec := newInspection(schema.SyncStatePending)
	mustCreate(t, db, rec)

	if sig, err := db.GetSignature(rec.ExternalID); err != nil || sig != nil {
		t.Fatalf("GetSignature() on empty = %v, %v; want nil, nil", sig, err)
	}

	first := schema.NewSignature(rec.ExternalID, "Ana")
	first.LocalPath = "/spool/s1.png"
	if err := db.SaveSignature(first); err != nil {
		t.Fatalf("SaveSignature() failed: %v", err)
	}
	second := schema.NewSignature(rec.ExternalID, "Bruno")
	second.LocalPath = "/spool/s2.png"
	if err := db.SaveSignature(second); err != nil {
		t.Fatalf("SaveSignature() replacement failed: %v", err)
	}

	got, err := db.GetSignature(rec.ExternalID)
	if err != nil {
		t.Fatalf("GetSignature() failed: %v", err)
	}
	if got == nil || got.ID != second.ID || got.SignerName != "Bruno" {
		t.Errorf("GetSignature() = %+v, want second signature", got)
	}

	var count int
	db.conn.QueryRow(`SELECT COUNT(*) FROM signatures WHERE inspection_external_id = ?`, rec.ExternalID).Scan(&count)
	if count != 1 {
		t.Errorf("signature rows = %d, want 1", count)
	}
}

// populate creates an inspection with two items, one evidence and a signature.
func populate(t *testing.T, db *DB, rec *schema.Inspection) {
	t.Helper()
	mustCreate(t, db, rec)
	items := []*schema.InspectionItem{
		schema.NewInspectionItem(rec.ExternalID, "item-1", schema.AnswerConforme),
		schema.NewInspectionItem(rec.ExternalID, "item-2", schema.AnswerNaoConforme),
	}
	if err := db.ReplaceInspectionItems(rec.ExternalID, items); err != nil {
		t.Fatalf("ReplaceInspectionItems() failed: %v", err)
	}
	ev := schema.NewEvidence(rec.ExternalID, items[1].ID, "p.jpg", "image/jpeg")
	ev.LocalPath = "/spool/p.jpg"
	if err := db.SaveEvidence(ev); err != nil {
		t.Fatalf("SaveEvidence() failed: %v", err)
	}
	sig := schema.NewSignature(rec.ExternalID, "Ana")
	sig.LocalPath = "/spool/s.png"
	if err := db.SaveSignature(sig); err != nil {
		t.Fatalf("SaveSignature() failed: %v", err)
	}
}

// ownedRows counts items, evidences and signatures owned by externalID.
func ownedRows(t *testing.T, db *DB, externalID string) int {
	t.Helper()
	total := 0
	for _, table := range []string{"inspection_items", "evidences", "signatures"} {
		var n int
		if err := db.conn.QueryRow(`SELECT COUNT(*) FROM `+table+` WHERE inspection_external_id = ?`, externalID).Scan(&n); err != nil {
			t.Fatalf("count %s failed: %v", table, err)
		}
		total += n
	}
	return total
}

func TestDeleteInspectionData_Cascade(t *testing.T) {
	db := setupTestDB(t)
	rec := newInspection(schema.SyncStatePending)
	populate(t, db, rec)

	if n := ownedRows(t, db, rec.ExternalID); n != 4 {
		t.Fatalf("owned rows before delete = %d, want 4", n)
	}

	if err := db.DeleteInspectionData(rec.ExternalID); err != nil {
		t.Fatalf("DeleteInspectionData() failed: %v", err)
	}
	if n := ownedRows(t, db, rec.ExternalID); n != 0 {
		t.Errorf("owned rows after delete = %d, want 0", n)
	}
	if _, err := db.GetInspection(rec.ExternalID); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetInspection() after delete error = %v, want ErrNotFound", err)
	}

	if err := db.DeleteInspectionData(rec.ExternalID); err != nil {
		t.Errorf("second DeleteInspectionData() failed: %v", err)
	}
}

func TestPurgeSyncedOlderThanDays(t *testing.T) {
	db := setupTestDB(t)

	old := time.Now().Add(-10 * 24 * time.Hour).UTC()
	recent := time.Now().Add(-1 * 24 * time.Hour).UTC()

	oldSynced := newInspection(schema.SyncStateSynced)
	oldSynced.CreatedAt, oldSynced.UpdatedAt = old, old
	oldSynced.SyncedAt = &old
	populate(t, db, oldSynced)

	// No synced_at: age falls back to updated_at.
	oldNoSyncedAt := newInspection(schema.SyncStateSynced)
	oldNoSyncedAt.CreatedAt, oldNoSyncedAt.UpdatedAt = old, old
	mustCreate(t, db, oldNoSyncedAt)

	recentSynced := newInspection(schema.SyncStateSynced)
	recentSynced.CreatedAt, recentSynced.UpdatedAt = old, recent
	recentSynced.SyncedAt = &recent
	mustCreate(t, db, recentSynced)

	oldPending := newInspection(schema.SyncStatePending)
	oldPending.CreatedAt, oldPending.UpdatedAt = old, old
	mustCreate(t, db, oldPending)

	oldError := newInspection(schema.SyncStateError)
	oldError.CreatedAt, oldError.UpdatedAt = old, old
	mustCreate(t, db, oldError)

	n, err := db.PurgeSyncedOlderThanDays(7)
	if err != nil {
		t.Fatalf("PurgeSyncedOlderThanDays() failed: %v", err)
	}
	if n != 2 {
		t.Errorf("purged = %d, want 2", n)
	}

	for _, rec := range []*schema.Inspection{oldSynced, oldNoSyncedAt} {
		if _, err := db.GetInspection(rec.ExternalID); !errors.Is(err, ErrNotFound) {
			t.Errorf("%s should be purged, err = %v", rec.ExternalID, err)
		}
	}
	if n := ownedRows(t, db, oldSynced.ExternalID); n != 0 {
		t.Errorf("orphan rows after purge = %d", n)
	}
	for _, rec := range []*schema.Inspection{recentSynced, oldPending, oldError} {
		if _, err := db.GetInspection(rec.ExternalID); err != nil {
			t.Errorf("%s (%s) should survive purge: %v", rec.ExternalID, rec.SyncState, err)
		}
	}

	if _, err := db.PurgeSyncedOlderThanDays(-1); err == nil {
		t.Error("PurgeSyncedOlderThanDays(-1) accepted negative days")
	}
}

func TestResetStaleSyncing(t *testing.T) {
	db := setupTestDB(t)

	stale := newInspection(schema.SyncStateSyncing)
	stale.UpdatedAt = time.Now().Add(-10 * time.Minute).UTC()
	mustCreate(t, db, stale)

	fresh := newInspection(schema.SyncStateSyncing)
	mustCreate(t, db, fresh)

	synced := newInspection(schema.SyncStateSynced)
	synced.UpdatedAt = stale.UpdatedAt
	mustCreate(t, db, synced)

	n, err := db.ResetStaleSyncing(2 * time.Minute)
	if err != nil {
		t.Fatalf("ResetStaleSyncing() failed: %v", err)
	}
	if n != 1 {
		t.Errorf("reset = %d, want 1", n)
	}

	got, _ := db.GetInspection(stale.ExternalID)
	if got.SyncState != schema.SyncStatePending {
		t.Errorf("stale SyncState = %q, want PENDING_SYNC", got.SyncState)
	}
	got, _ = db.GetInspection(fresh.ExternalID)
	if got.SyncState != schema.SyncStateSyncing {
		t.Errorf("fresh SyncState = %q, want SYNCING", got.SyncState)
	}
	got, _ = db.GetInspection(synced.ExternalID)
	if got.SyncState != schema.SyncStateSynced {
		t.Errorf("synced SyncState = %q, want SYNCED", got.SyncState)
	}
}

func TestSyncMetadata(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	last, err := db.LastSyncAt(ctx)
	if err != nil || !last.IsZero() {
		t.Fatalf("LastSyncAt() on empty = %v, %v", last, err)
	}

	when := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	if err := db.MarkLastSyncAt(ctx, when); err != nil {
		t.Fatalf("MarkLastSyncAt() failed: %v", err)
	}
	last, err = db.LastSyncAt(ctx)
	if err != nil {
		t.Fatalf("LastSyncAt() failed: %v", err)
	}
	if !last.Equal(when) {
		t.Errorf("LastSyncAt() = %v, want %v", last, when)
	}

	if err := db.MarkSyncMetadata(schema.MetaLastPurgeCount, "3"); err != nil {
		t.Fatalf("MarkSyncMetadata() failed: %v", err)
	}
	m, err := db.GetSyncMetadata(schema.MetaLastPurgeCount)
	if err != nil || m == nil || m.Value != "3" {
		t.Errorf("GetSyncMetadata() = %+v, %v", m, err)
	}
	if m, err := db.GetSyncMetadata("unknown"); err != nil || m != nil {
		t.Errorf("GetSyncMetadata(unknown) = %+v, %v; want nil, nil", m, err)
	}
}

func TestCacheChecklists(t *testing.T) {
	db := setupTestDB(t)

	first := []*schema.Checklist{
		{ID: "c1", Name: "B", Active: true, Sections: []schema.ChecklistSection{{ID: "s", Items: []schema.ChecklistItem{{ID: "i1", Title: "EPI", Active: true}}}}},
		{ID: "c2", Name: "A", Active: true},
	}
	if err := db.CacheChecklists(first); err != nil {
		t.Fatalf("CacheChecklists() failed: %v", err)
	}

	list, err := db.ListChecklists()
	if err != nil {
		t.Fatalf("ListChecklists() failed: %v", err)
	}
	if len(list) != 2 || list[0].ID != "c2" {
		t.Fatalf("ListChecklists() = %+v", list)
	}

	c, err := db.GetChecklist("c1")
	if err != nil {
		t.Fatalf("GetChecklist() failed: %v", err)
	}
	if len(c.ActiveItems()) != 1 {
		t.Errorf("definition not preserved: %+v", c)
	}

	if err := db.CacheChecklists(first[1:]); err != nil {
		t.Fatalf("CacheChecklists() replace failed: %v", err)
	}
	if _, err := db.GetChecklist("c1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetChecklist(c1) after replace error = %v, want ErrNotFound", err)
	}
}
