package webhook

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/dialcraft/callcoord/internal/types"
	"github.com/rs/zerolog"
)

type webhookRecorder struct {
	mu       sync.Mutex
	events   []types.CallEvent
	failures int // respond 500 this many times before succeeding
}

func (r *webhookRecorder) handler(w http.ResponseWriter, req *http.Request) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failures > 0 {
		r.failures--
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	var event types.CallEvent
	if err := json.NewDecoder(req.Body).Decode(&event); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	r.events = append(r.events, event)
	w.WriteHeader(http.StatusOK)
}

func (r *webhookRecorder) received() []types.CallEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]types.CallEvent, len(r.events))
	copy(out, r.events)
	return out
}

func newSender(url string) *Sender {
	s := NewSender(url, zerolog.New(&bytes.Buffer{}))
	s.SetRetryPolicy(3, time.Millisecond)
	return s
}

func TestSenderDeliversInOrder(t *testing.T) {
	recorder := &webhookRecorder{}
	server := httptest.NewServer(http.HandlerFunc(recorder.handler))
	defer server.Close()

	sender := newSender(server.URL)
	sender.Send(types.CallEvent{Type: types.EventCallStarted, CallID: "c1", LeadName: "x", Campaign: types.CampaignRegistrationRecovery})
	sender.Send(types.CallEvent{Type: types.EventCallResult, CallID: "c1", Disposition: types.DispositionNeedsHelp, CXScore: 5})
	sender.Send(types.CallEvent{Type: types.EventCallEnded, CallID: "c1"})
	sender.Flush()

	events := recorder.received()
	if len(events) != 3 {
		t.Fatalf("expected 3 deliveries, got %d", len(events))
	}
	want := []types.EventType{types.EventCallStarted, types.EventCallResult, types.EventCallEnded}
	for i, event := range events {
		if event.Type != want[i] {
			t.Fatalf("delivery order %v at index %d, want %v", event.Type, i, want[i])
		}
	}
}

func TestSenderRetriesTransientFailure(t *testing.T) {
	recorder := &webhookRecorder{failures: 2}
	server := httptest.NewServer(http.HandlerFunc(recorder.handler))
	defer server.Close()

	sender := newSender(server.URL)
	sender.Send(types.CallEvent{Type: types.EventCallEnded, CallID: "c1"})
	sender.Flush()

	events := recorder.received()
	if len(events) != 1 {
		t.Fatalf("expected delivery after retries, got %d events", len(events))
	}
}

func TestSenderGivesUpAfterMaxAttempts(t *testing.T) {
	recorder := &webhookRecorder{failures: 10}
	server := httptest.NewServer(http.HandlerFunc(recorder.handler))
	defer server.Close()

	sender := newSender(server.URL)
	sender.Send(types.CallEvent{Type: types.EventCallEnded, CallID: "c1"})
	sender.Flush()

	if events := recorder.received(); len(events) != 0 {
		t.Fatalf("expected no deliveries, got %d", len(events))
	}
	// Three attempts were consumed
	recorder.mu.Lock()
	remaining := recorder.failures
	recorder.mu.Unlock()
	if remaining != 7 {
		t.Errorf("expected 3 attempts, %d failures left unconsumed", remaining)
	}
}

func TestSenderDoesNotRetryRejection(t *testing.T) {
	var attempts int
	var mu sync.Mutex
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		mu.Lock()
		attempts++
		mu.Unlock()
		http.Error(w, "bad disposition", http.StatusUnprocessableEntity)
	}))
	defer server.Close()

	sender := newSender(server.URL)
	sender.Send(types.CallEvent{Type: types.EventCallEnded, CallID: "c1"})
	sender.Flush()

	mu.Lock()
	defer mu.Unlock()
	if attempts != 1 {
		t.Errorf("4xx must not be retried, got %d attempts", attempts)
	}
}

func TestSenderIsolatesCalls(t *testing.T) {
	recorder := &webhookRecorder{}
	server := httptest.NewServer(http.HandlerFunc(recorder.handler))
	defer server.Close()

	sender := newSender(server.URL)
	for _, callID := range []string{"a", "b", "c"} {
		sender.Send(types.CallEvent{Type: types.EventCallStarted, CallID: callID, LeadName: "x", Campaign: types.CampaignDormantReactivation})
		sender.Send(types.CallEvent{Type: types.EventCallEnded, CallID: callID})
	}
	sender.Flush()

	events := recorder.received()
	if len(events) != 6 {
		t.Fatalf("expected 6 deliveries, got %d", len(events))
	}
	// Per-call order holds even though calls interleave
	last := map[string]types.EventType{}
	for _, event := range events {
		if last[event.CallID] == types.EventCallEnded {
			t.Fatalf("event after terminal for call %s", event.CallID)
		}
		if event.Type == types.EventCallEnded && last[event.CallID] != types.EventCallStarted {
			t.Fatalf("terminal before start for call %s", event.CallID)
		}
		last[event.CallID] = event.Type
	}
}
