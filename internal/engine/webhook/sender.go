package webhook

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/dialcraft/callcoord/internal/types"
	"github.com/rs/zerolog"
)

const queueSize = 16

// Sender delivers lifecycle events to the backend webhook with bounded
// retries. Events for one call are sent strictly in the order they were
// enqueued; the backend dedups on (call_id, event_type), so a retried
// delivery is safe.
type Sender struct {
	webhookURL  string
	httpClient  *http.Client
	maxAttempts int
	baseDelay   time.Duration
	logger      zerolog.Logger

	mu     sync.Mutex
	queues map[string]chan types.CallEvent
	wg     sync.WaitGroup
}

// NewSender creates a webhook sender posting to the given URL
func NewSender(webhookURL string, logger zerolog.Logger) *Sender {
	return &Sender{
		webhookURL: webhookURL,
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
		maxAttempts: 3,
		baseDelay:   200 * time.Millisecond,
		logger:      logger.With().Str("component", "webhook_sender").Logger(),
		queues:      make(map[string]chan types.CallEvent),
	}
}

// SetRetryPolicy overrides the default attempt count and backoff base
func (s *Sender) SetRetryPolicy(maxAttempts int, baseDelay time.Duration) {
	s.maxAttempts = maxAttempts
	s.baseDelay = baseDelay
}

// Send enqueues an event for delivery. It never blocks a session's state
// transition: a full queue drops the event with a log line.
func (s *Sender) Send(event types.CallEvent) {
	s.mu.Lock()
	queue, ok := s.queues[event.CallID]
	if !ok {
		queue = make(chan types.CallEvent, queueSize)
		s.queues[event.CallID] = queue
		s.wg.Add(1)
		go s.drain(event.CallID, queue)
	}
	s.mu.Unlock()

	select {
	case queue <- event:
	default:
		s.logger.Error().
			Str("call_id", event.CallID).
			Str("type", string(event.Type)).
			Msg("delivery queue full, event dropped")
	}
}

// drain delivers one call's events serially. The worker exits after the
// call's terminal event has been handled.
func (s *Sender) drain(callID string, queue chan types.CallEvent) {
	defer s.wg.Done()

	for event := range queue {
		if err := s.deliver(event); err != nil {
			s.logger.Error().Err(err).
				Str("call_id", event.CallID).
				Str("type", string(event.Type)).
				Int("attempts", s.maxAttempts).
				Msg("event delivery failed, giving up")
		}
		if event.Type.Terminal() {
			s.mu.Lock()
			delete(s.queues, callID)
			s.mu.Unlock()
			return
		}
	}
}

// deliver posts one event, retrying with exponential backoff
func (s *Sender) deliver(event types.CallEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < s.maxAttempts; attempt++ {
		if attempt > 0 {
			time.Sleep(s.baseDelay * time.Duration(1<<(attempt-1)))
		}

		resp, err := s.httpClient.Post(s.webhookURL, "application/json", bytes.NewReader(data))
		if err != nil {
			lastErr = err
			continue
		}
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return nil
		}
		// 4xx means the backend rejected the payload; retrying cannot help
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return fmt.Errorf("backend rejected event: status %d, body: %s", resp.StatusCode, string(body))
		}
		lastErr = fmt.Errorf("backend returned status %d", resp.StatusCode)
	}
	return lastErr
}

// Flush waits for all in-flight deliveries to finish. Queues for calls
// that never reached a terminal event are closed so their workers exit.
func (s *Sender) Flush() {
	s.mu.Lock()
	for id, queue := range s.queues {
		close(queue)
		delete(s.queues, id)
	}
	s.mu.Unlock()
	s.wg.Wait()
}
