package ingest

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/dialcraft/callcoord/internal/registry"
	"github.com/dialcraft/callcoord/internal/storage"
	"github.com/dialcraft/callcoord/internal/types"
	"github.com/rs/zerolog"
)

// captureHub records broadcast payloads for assertions
type captureHub struct {
	mu       sync.Mutex
	messages [][]byte
}

func (h *captureHub) Broadcast(message []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.messages = append(h.messages, message)
}

func (h *captureHub) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.messages)
}

type fixture struct {
	receiver *Receiver
	store    *storage.MemoryStore
	registry *registry.Registry
	results  *registry.ResultRing
	hub      *captureHub
}

func newFixture() *fixture {
	store := storage.NewMemoryStore()
	reg := registry.New()
	ring := registry.NewResultRing(10)
	hub := &captureHub{}
	logger := zerolog.New(&bytes.Buffer{})
	return &fixture{
		receiver: NewReceiver(store, reg, ring, hub, logger),
		store:    store,
		registry: reg,
		results:  ring,
		hub:      hub,
	}
}

func (f *fixture) post(t *testing.T, event types.CallEvent) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(event)
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/webhook/engine", bytes.NewReader(data))
	rec := httptest.NewRecorder()
	f.receiver.HandleEvent(rec, req)
	return rec
}

func startedEvent(callID string) types.CallEvent {
	return types.CallEvent{
		Type:      types.EventCallStarted,
		CallID:    callID,
		LeadID:    7,
		LeadName:  "Rina Azulay",
		Campaign:  types.CampaignRegistrationRecovery,
		Timestamp: time.Now(),
	}
}

func TestCallStartedCreatesRegistryEntry(t *testing.T) {
	f := newFixture()

	rec := f.post(t, startedEvent("c1"))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	if f.registry.Count() != 1 {
		t.Fatalf("expected 1 registry entry, got %d", f.registry.Count())
	}
	session, _ := f.store.GetSession("c1")
	if session == nil || session.Status != types.StatusActive {
		t.Fatalf("expected active persisted session, got %+v", session)
	}
	if f.hub.count() != 1 {
		t.Errorf("expected 1 broadcast, got %d", f.hub.count())
	}
}

func TestDuplicateCallStartedIsIdempotent(t *testing.T) {
	f := newFixture()

	f.post(t, startedEvent("c1"))
	f.post(t, startedEvent("c1"))

	if f.registry.Count() != 1 {
		t.Errorf("duplicate call_started created a second entry: %d", f.registry.Count())
	}
	// The duplicate must not be republished
	if f.hub.count() != 1 {
		t.Errorf("expected 1 broadcast after duplicate, got %d", f.hub.count())
	}
}

func TestCallResultValidatedAndStored(t *testing.T) {
	f := newFixture()
	f.post(t, startedEvent("c1"))

	rec := f.post(t, types.CallEvent{
		Type:        types.EventCallResult,
		CallID:      "c1",
		Disposition: types.DispositionCompletedRegistration,
		CXScore:     9,
		Summary:     "completed sign-up during the call",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	result, _ := f.store.GetResult("c1")
	if result == nil || result.CXScore != 9 {
		t.Fatalf("expected stored result, got %+v", result)
	}
	session, _ := f.store.GetSession("c1")
	if session.Status != types.StatusResultCaptured {
		t.Errorf("expected result_captured, got %s", session.Status)
	}
	if f.results.Len() != 1 {
		t.Errorf("expected 1 ring result, got %d", f.results.Len())
	}
}

func TestCallResultRejectsWrongCampaignDisposition(t *testing.T) {
	f := newFixture()
	f.post(t, startedEvent("c1")) // registration-recovery

	rec := f.post(t, types.CallEvent{
		Type:        types.EventCallResult,
		CallID:      "c1",
		Disposition: types.DispositionReactivated, // dormant-only outcome
		CXScore:     6,
	})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rec.Code)
	}

	// No mutation
	if result, _ := f.store.GetResult("c1"); result != nil {
		t.Error("rejected result must not be stored")
	}
	session, _ := f.store.GetSession("c1")
	if session.Status != types.StatusActive {
		t.Errorf("session status must be unchanged, got %s", session.Status)
	}
	if f.results.Len() != 0 {
		t.Error("rejected result must not reach the ring")
	}
}

func TestCallResultRejectsOutOfRangeScore(t *testing.T) {
	f := newFixture()
	f.post(t, startedEvent("c1"))

	for _, score := range []int{0, 11} {
		rec := f.post(t, types.CallEvent{
			Type:        types.EventCallResult,
			CallID:      "c1",
			Disposition: types.DispositionNeedsHelp,
			CXScore:     score,
		})
		if rec.Code != http.StatusBadRequest {
			t.Errorf("score %d: expected 400, got %d", score, rec.Code)
		}
	}
	if result, _ := f.store.GetResult("c1"); result != nil {
		t.Error("out-of-range score must never be stored")
	}
}

func TestCallEndedRemovesRegistryEntry(t *testing.T) {
	f := newFixture()
	f.post(t, startedEvent("c1"))

	rec := f.post(t, types.CallEvent{Type: types.EventCallEnded, CallID: "c1", DurationSeconds: 42})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	if f.registry.Count() != 0 {
		t.Errorf("expected empty registry, got %d entries", f.registry.Count())
	}
	session, _ := f.store.GetSession("c1")
	if session.Status != types.StatusCompleted {
		t.Errorf("expected completed, got %s", session.Status)
	}
	if session.DurationSeconds != 42 {
		t.Errorf("expected duration 42, got %d", session.DurationSeconds)
	}
	if session.EndedAt == nil {
		t.Error("expected EndedAt to be set")
	}
}

func TestDuplicateTerminalIsNoOp(t *testing.T) {
	f := newFixture()
	f.post(t, startedEvent("c1"))
	f.post(t, types.CallEvent{Type: types.EventCallEnded, CallID: "c1"})

	broadcasts := f.hub.count()
	rec := f.post(t, types.CallEvent{Type: types.EventCallEnded, CallID: "c1"})
	if rec.Code != http.StatusOK {
		t.Fatalf("duplicate terminal must be accepted, got %d", rec.Code)
	}
	if f.hub.count() != broadcasts {
		t.Error("duplicate terminal must not be rebroadcast")
	}
	if f.registry.Count() != 0 {
		t.Error("registry must stay empty under duplicate terminal delivery")
	}
}

func TestCallErrorMarksSessionFailed(t *testing.T) {
	f := newFixture()
	f.post(t, startedEvent("c1"))

	f.post(t, types.CallEvent{Type: types.EventCallError, CallID: "c1", Error: "carrier dropped during setup"})

	session, _ := f.store.GetSession("c1")
	if session.Status != types.StatusFailed {
		t.Fatalf("expected failed, got %s", session.Status)
	}
	if session.EndReason != "carrier dropped during setup" {
		t.Errorf("expected end reason carried over, got %q", session.EndReason)
	}
	if f.registry.Count() != 0 {
		t.Error("failed call must leave no registry entry")
	}
}

func TestUnknownCallIsAcceptedNoOp(t *testing.T) {
	f := newFixture()

	for _, event := range []types.CallEvent{
		{Type: types.EventCallResult, CallID: "ghost", Disposition: types.DispositionNeedsHelp, CXScore: 5},
		{Type: types.EventCallEnded, CallID: "ghost"},
		{Type: types.EventCallError, CallID: "ghost", Error: "boom"},
	} {
		rec := f.post(t, event)
		if rec.Code != http.StatusOK {
			t.Errorf("%s for unknown call: expected 200, got %d", event.Type, rec.Code)
		}
	}

	if f.hub.count() != 0 {
		t.Error("no-op events must not be broadcast")
	}
	if f.registry.Count() != 0 {
		t.Error("no-op events must not touch the registry")
	}
}

func TestMalformedPayloadRejected(t *testing.T) {
	f := newFixture()

	req := httptest.NewRequest(http.MethodPost, "/webhook/engine", bytes.NewReader([]byte("{not json")))
	rec := httptest.NewRecorder()
	f.receiver.HandleEvent(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for malformed body, got %d", rec.Code)
	}

	rec = f.post(t, types.CallEvent{Type: "call_teleported", CallID: "c1"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for unknown type, got %d", rec.Code)
	}
}

func TestStartedAfterTerminalDoesNotResurrect(t *testing.T) {
	f := newFixture()
	f.post(t, startedEvent("c1"))
	f.post(t, types.CallEvent{Type: types.EventCallEnded, CallID: "c1"})

	// Out-of-order replay of the start
	rec := f.post(t, startedEvent("c1"))
	if rec.Code != http.StatusOK {
		t.Fatalf("replayed start must be accepted, got %d", rec.Code)
	}

	if f.registry.Count() != 0 {
		t.Error("replayed call_started resurrected a terminated call")
	}
	session, _ := f.store.GetSession("c1")
	if session.Status != types.StatusCompleted {
		t.Errorf("terminal session must stay read-only, got %s", session.Status)
	}
}

func TestResultAfterTerminalIsNoOp(t *testing.T) {
	f := newFixture()
	f.post(t, startedEvent("c1"))
	f.post(t, types.CallEvent{Type: types.EventCallEnded, CallID: "c1"})

	rec := f.post(t, types.CallEvent{
		Type:        types.EventCallResult,
		CallID:      "c1",
		Disposition: types.DispositionNeedsHelp,
		CXScore:     5,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("late result must be accepted, got %d", rec.Code)
	}
	if result, _ := f.store.GetResult("c1"); result != nil {
		t.Error("late result must not be stored after terminal event")
	}
}

func TestFullLifecycleOrdering(t *testing.T) {
	f := newFixture()

	f.post(t, startedEvent("c1"))
	f.post(t, types.CallEvent{
		Type:        types.EventCallResult,
		CallID:      "c1",
		Disposition: types.DispositionScheduledCompletion,
		CXScore:     7,
		Summary:     "will finish tonight",
	})
	f.post(t, types.CallEvent{Type: types.EventCallEnded, CallID: "c1"})

	if f.hub.count() != 3 {
		t.Fatalf("expected 3 broadcasts, got %d", f.hub.count())
	}

	// Verify relay order matches the runtime's transition order
	var kinds []types.EventType
	for _, msg := range f.hub.messages {
		var e types.CallEvent
		if err := json.Unmarshal(msg, &e); err != nil {
			t.Fatalf("broadcast not a valid event: %v", err)
		}
		kinds = append(kinds, e.Type)
	}
	want := []types.EventType{types.EventCallStarted, types.EventCallResult, types.EventCallEnded}
	for i := range want {
		if kinds[i] != want[i] {
			t.Fatalf("broadcast order %v, want %v", kinds, want)
		}
	}

	if f.registry.Count() != 0 || f.results.Len() != 1 {
		t.Error("final state: registry must be empty with one retained result")
	}
}

func TestStaleCallBookkeepingIsSwept(t *testing.T) {
	f := newFixture()
	f.receiver.maxTracked = 2
	f.receiver.staleAfter = 0 // everything untouched is immediately stale

	// Two calls start and never send a terminal event
	f.post(t, startedEvent("lost-1"))
	f.post(t, startedEvent("lost-2"))

	// A third call pushes the bookkeeping over its cap
	f.post(t, startedEvent("c3"))

	f.receiver.seenMu.Lock()
	tracked := len(f.receiver.locks)
	_, lostKept := f.receiver.seen["lost-1"]
	f.receiver.seenMu.Unlock()

	if lostKept {
		t.Error("stale call bookkeeping must be swept")
	}
	if tracked > 2 {
		t.Errorf("bookkeeping exceeded cap: %d entries", tracked)
	}
}
