package storage

import (
	"testing"
	"time"

	"github.com/dialcraft/callcoord/internal/types"
)

func TestMemoryStoreSessions(t *testing.T) {
	store := NewMemoryStore()

	session := types.CallSession{
		CallID:    "c1",
		LeadID:    1,
		LeadName:  "Noa Peretz",
		Campaign:  types.CampaignRegistrationRecovery,
		Status:    types.StatusDialing,
		StartedAt: time.Now(),
	}
	if err := store.SaveSession(session); err != nil {
		t.Fatalf("SaveSession: %v", err)
	}

	got, err := store.GetSession("c1")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if got == nil || got.LeadName != "Noa Peretz" {
		t.Fatalf("unexpected session: %+v", got)
	}

	missing, err := store.GetSession("nope")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if missing != nil {
		t.Error("expected nil for unknown session")
	}

	// Overwrite with a terminal status
	session.Status = types.StatusCompleted
	if err := store.SaveSession(session); err != nil {
		t.Fatalf("SaveSession: %v", err)
	}
	got, _ = store.GetSession("c1")
	if got.Status != types.StatusCompleted {
		t.Errorf("expected completed, got %s", got.Status)
	}
}

func TestMemoryStoreListActiveSessions(t *testing.T) {
	store := NewMemoryStore()

	statuses := map[string]types.SessionStatus{
		"c1": types.StatusDialing,
		"c2": types.StatusActive,
		"c3": types.StatusResultCaptured,
		"c4": types.StatusCompleted,
		"c5": types.StatusFailed,
	}
	for id, status := range statuses {
		store.SaveSession(types.CallSession{CallID: id, Status: status})
	}

	active, err := store.ListActiveSessions()
	if err != nil {
		t.Fatalf("ListActiveSessions: %v", err)
	}
	if len(active) != 3 {
		t.Errorf("expected 3 active sessions, got %d", len(active))
	}
	for _, session := range active {
		if session.Status.Terminal() {
			t.Errorf("terminal session %s listed as active", session.CallID)
		}
	}
}

func TestMemoryStoreResults(t *testing.T) {
	store := NewMemoryStore()

	for i, id := range []string{"c1", "c2", "c3"} {
		err := store.SaveResult(types.CallResult{
			CallID:      id,
			Campaign:    types.CampaignDormantReactivation,
			Disposition: types.DispositionReactivated,
			CXScore:     5 + i,
			CreatedAt:   time.Now(),
		})
		if err != nil {
			t.Fatalf("SaveResult: %v", err)
		}
	}

	results, err := store.ListResults()
	if err != nil {
		t.Fatalf("ListResults: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	if results[0].CallID != "c1" || results[2].CallID != "c3" {
		t.Error("expected results in insertion order")
	}

	got, err := store.GetResult("c2")
	if err != nil {
		t.Fatalf("GetResult: %v", err)
	}
	if got == nil || got.CXScore != 6 {
		t.Fatalf("unexpected result: %+v", got)
	}

	// Saving twice for the same call must not duplicate
	store.SaveResult(types.CallResult{CallID: "c2", CXScore: 9})
	results, _ = store.ListResults()
	if len(results) != 3 {
		t.Errorf("expected 3 results after overwrite, got %d", len(results))
	}
}

func TestMemoryStoreCounts(t *testing.T) {
	store := NewMemoryStore()
	store.SaveSession(types.CallSession{CallID: "c1", Status: types.StatusCompleted, Campaign: types.CampaignRegistrationRecovery})
	store.SaveSession(types.CallSession{CallID: "c2", Status: types.StatusCompleted, Campaign: types.CampaignDormantReactivation})
	store.SaveSession(types.CallSession{CallID: "c3", Status: types.StatusFailed, Campaign: types.CampaignDormantReactivation})

	total, _ := store.CountSessions("")
	if total != 3 {
		t.Errorf("expected 3 total, got %d", total)
	}
	completed, _ := store.CountSessions(types.StatusCompleted)
	if completed != 2 {
		t.Errorf("expected 2 completed, got %d", completed)
	}
	dormant, _ := store.CountSessionsByCampaign(types.CampaignDormantReactivation)
	if dormant != 2 {
		t.Errorf("expected 2 dormant sessions, got %d", dormant)
	}
}
