package ingest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dialcraft/callcoord/internal/metrics"
	"github.com/dialcraft/callcoord/internal/registry"
	"github.com/dialcraft/callcoord/internal/storage"
	"github.com/dialcraft/callcoord/internal/types"
	"github.com/rs/zerolog"
)

// Broadcaster pushes an event to all connected dashboard clients
type Broadcaster interface {
	Broadcast(message []byte)
}

const (
	// defaultMaxTrackedCalls caps the per-call dedup bookkeeping before
	// stale entries are swept
	defaultMaxTrackedCalls = 1024
	// defaultStaleCallAfter is how long an untouched call's bookkeeping
	// survives once the cap is hit; no call lives anywhere near this long
	defaultStaleCallAfter = time.Hour
)

// Receiver handles lifecycle webhooks pushed by the call engine.
//
// Handling is idempotent per (call_id, event_type) and serialized per
// call_id, so at-least-once delivery with retries from the sender never
// produces duplicate registry entries or double-stored results. Events
// for different calls are processed fully concurrently.
type Receiver struct {
	store    storage.Store
	registry *registry.Registry
	results  *registry.ResultRing
	hub      Broadcaster
	logger   zerolog.Logger

	// seen tracks processed (call_id, event_type) pairs for live calls;
	// entries are dropped once the call is terminal, after which the
	// persisted session status is the durable duplicate guard. Calls
	// whose terminal event never arrives are swept once they go stale,
	// so a lossy engine cannot grow these maps without bound.
	seen       map[string]map[types.EventType]bool
	locks      map[string]*sync.Mutex
	touched    map[string]time.Time
	maxTracked int
	staleAfter time.Duration
	seenMu     sync.Mutex

	eventsReceived int64
	lastReceived   time.Time
	mu             sync.RWMutex
}

// NewReceiver creates a new webhook receiver
func NewReceiver(store storage.Store, reg *registry.Registry, results *registry.ResultRing, hub Broadcaster, logger zerolog.Logger) *Receiver {
	return &Receiver{
		store:      store,
		registry:   reg,
		results:    results,
		hub:        hub,
		logger:     logger,
		seen:       make(map[string]map[types.EventType]bool),
		locks:      make(map[string]*sync.Mutex),
		touched:    make(map[string]time.Time),
		maxTracked: defaultMaxTrackedCalls,
		staleAfter: defaultStaleCallAfter,
	}
}

// HandleEvent receives one webhook envelope per request
func (r *Receiver) HandleEvent(w http.ResponseWriter, req *http.Request) {
	m := metrics.Get()

	if req.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var event types.CallEvent
	if err := json.NewDecoder(req.Body).Decode(&event); err != nil {
		r.logger.Error().Err(err).Msg("failed to decode event")
		m.RecordEventError()
		http.Error(w, "invalid event", http.StatusBadRequest)
		return
	}

	m.RecordEventReceived()

	if err := event.Validate(); err != nil {
		r.logger.Warn().Err(err).Str("call_id", event.CallID).Str("type", string(event.Type)).Msg("rejecting malformed event")
		m.RecordEventError()
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	// Serialize handling per call; events for other calls proceed in parallel
	lock := r.callLock(event.CallID)
	lock.Lock()
	status, err := r.process(event)
	lock.Unlock()

	if err != nil {
		r.logger.Error().Err(err).Str("call_id", event.CallID).Str("type", string(event.Type)).Msg("event rejected")
		m.RecordEventError()
		http.Error(w, err.Error(), status)
		return
	}

	atomic.AddInt64(&r.eventsReceived, 1)
	r.mu.Lock()
	r.lastReceived = time.Now()
	r.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "ok", "event": string(event.Type)})
}

// process applies one event to the store and registry. It returns an HTTP
// status alongside any rejection error; a nil error always means no
// response body beyond the ok envelope.
func (r *Receiver) process(event types.CallEvent) (int, error) {
	m := metrics.Get()

	if r.isDuplicate(event.CallID, event.Type) {
		r.logger.Debug().Str("call_id", event.CallID).Str("type", string(event.Type)).Msg("duplicate event, skipping")
		m.RecordEventDuplicate()
		return http.StatusOK, nil
	}

	session, err := r.store.GetSession(event.CallID)
	if err != nil {
		return http.StatusInternalServerError, fmt.Errorf("session lookup failed: %w", err)
	}

	switch event.Type {
	case types.EventCallStarted:
		if session != nil && session.Status.Terminal() {
			// A replayed start after the call already ended must not
			// resurrect the session
			m.RecordEventDuplicate()
			return http.StatusOK, nil
		}
		if err := r.handleStarted(event, session); err != nil {
			return http.StatusInternalServerError, err
		}

	case types.EventCallResult:
		if session == nil {
			// Unknown call: the sender is fire-and-forget, accept as no-op
			r.logger.Warn().Str("call_id", event.CallID).Msg("result for unknown call, ignoring")
			return http.StatusOK, nil
		}
		if session.Status.Terminal() || session.Status == types.StatusResultCaptured {
			m.RecordEventDuplicate()
			return http.StatusOK, nil
		}
		if !event.Disposition.ValidFor(session.Campaign) {
			return http.StatusUnprocessableEntity,
				fmt.Errorf("disposition %q not valid for campaign %q", event.Disposition, session.Campaign)
		}
		if err := r.handleResult(event, session); err != nil {
			return http.StatusInternalServerError, err
		}

	case types.EventCallEnded, types.EventCallError:
		if session == nil {
			r.logger.Warn().Str("call_id", event.CallID).Str("type", string(event.Type)).Msg("terminal event for unknown call, ignoring")
			return http.StatusOK, nil
		}
		if session.Status.Terminal() {
			m.RecordEventDuplicate()
			return http.StatusOK, nil
		}
		if err := r.handleTerminal(event, session); err != nil {
			return http.StatusInternalServerError, err
		}
	}

	m.RecordEventProcessed()
	r.publish(event)
	return http.StatusOK, nil
}

func (r *Receiver) handleStarted(event types.CallEvent, session *types.CallSession) error {
	startedAt := event.Timestamp
	if startedAt.IsZero() {
		startedAt = time.Now()
	}

	if session == nil {
		// The engine can race ahead of the trigger API's own persist;
		// create the session from the event
		session = &types.CallSession{
			CallID:   event.CallID,
			LeadID:   event.LeadID,
			LeadName: event.LeadName,
			Campaign: event.Campaign,
		}
	}

	session.Status = types.StatusActive
	session.StartedAt = startedAt
	if err := r.store.SaveSession(*session); err != nil {
		return fmt.Errorf("failed to persist session: %w", err)
	}

	r.registry.Put(types.RegistryEntry{
		CallID:    session.CallID,
		LeadName:  session.LeadName,
		Campaign:  session.Campaign,
		StartedAt: startedAt,
	})
	r.markSeen(event.CallID, event.Type)
	metrics.Get().RecordCallStarted()

	r.logger.Info().
		Str("call_id", session.CallID).
		Str("lead_name", session.LeadName).
		Str("campaign", string(session.Campaign)).
		Msg("call started")
	return nil
}

func (r *Receiver) handleResult(event types.CallEvent, session *types.CallSession) error {
	result := event.Result(session.Campaign)
	if err := r.store.SaveResult(result); err != nil {
		return fmt.Errorf("failed to persist result: %w", err)
	}

	session.Status = types.StatusResultCaptured
	if err := r.store.SaveSession(*session); err != nil {
		return fmt.Errorf("failed to persist session: %w", err)
	}

	r.results.Add(result)
	r.markSeen(event.CallID, event.Type)
	metrics.Get().RecordResult(result.Disposition, result.CXScore)

	r.logger.Info().
		Str("call_id", session.CallID).
		Str("disposition", string(result.Disposition)).
		Int("cx_score", result.CXScore).
		Msg("call result captured")
	return nil
}

func (r *Receiver) handleTerminal(event types.CallEvent, session *types.CallSession) error {
	now := time.Now()
	session.EndedAt = &now

	if event.Type == types.EventCallError {
		session.Status = types.StatusFailed
		session.EndReason = event.Error
	} else {
		session.Status = types.StatusCompleted
		session.EndReason = "completed"
	}

	if event.DurationSeconds > 0 {
		session.DurationSeconds = event.DurationSeconds
	} else if !session.StartedAt.IsZero() {
		session.DurationSeconds = int(now.Sub(session.StartedAt).Seconds())
	}

	if err := r.store.SaveSession(*session); err != nil {
		return fmt.Errorf("failed to persist session: %w", err)
	}

	r.registry.Remove(session.CallID)
	r.forget(session.CallID)
	metrics.Get().RecordCallEnded(session.Status == types.StatusFailed)

	r.logger.Info().
		Str("call_id", session.CallID).
		Str("status", string(session.Status)).
		Int("duration_seconds", session.DurationSeconds).
		Msg("call ended")
	return nil
}

// publish relays the event verbatim to the broadcast channel. Fan-out is
// decoupled from the ingest write path and never blocks it.
func (r *Receiver) publish(event types.CallEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		r.logger.Error().Err(err).Msg("failed to marshal event for broadcast")
		return
	}
	r.hub.Broadcast(data)
	metrics.Get().RecordBroadcast()
}

func (r *Receiver) callLock(callID string) *sync.Mutex {
	r.seenMu.Lock()
	defer r.seenMu.Unlock()
	lock, ok := r.locks[callID]
	if !ok {
		if len(r.locks) >= r.maxTracked {
			r.sweepStale()
		}
		lock = &sync.Mutex{}
		r.locks[callID] = lock
	}
	r.touched[callID] = time.Now()
	return lock
}

// sweepStale drops bookkeeping for calls that stopped sending events
// without ever going terminal. Caller holds seenMu.
func (r *Receiver) sweepStale() {
	cutoff := time.Now().Add(-r.staleAfter)
	for callID, last := range r.touched {
		if last.Before(cutoff) {
			delete(r.seen, callID)
			delete(r.locks, callID)
			delete(r.touched, callID)
			r.logger.Warn().Str("call_id", callID).Msg("dropping stale call bookkeeping")
		}
	}
}

func (r *Receiver) isDuplicate(callID string, eventType types.EventType) bool {
	r.seenMu.Lock()
	defer r.seenMu.Unlock()
	return r.seen[callID][eventType]
}

func (r *Receiver) markSeen(callID string, eventType types.EventType) {
	r.seenMu.Lock()
	defer r.seenMu.Unlock()
	if r.seen[callID] == nil {
		r.seen[callID] = make(map[types.EventType]bool)
	}
	r.seen[callID][eventType] = true
}

// forget drops per-call bookkeeping once a call is terminal
func (r *Receiver) forget(callID string) {
	r.seenMu.Lock()
	defer r.seenMu.Unlock()
	delete(r.seen, callID)
	delete(r.locks, callID)
	delete(r.touched, callID)
}

// GetStats returns receiver statistics
func (r *Receiver) GetStats(w http.ResponseWriter, req *http.Request) {
	r.mu.RLock()
	lastReceived := r.lastReceived
	r.mu.RUnlock()

	stats := map[string]interface{}{
		"events_received": atomic.LoadInt64(&r.eventsReceived),
		"last_received":   lastReceived,
		"active_calls":    r.registry.Count(),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(stats)
}
