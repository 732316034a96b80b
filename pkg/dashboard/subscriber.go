package dashboard

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/dialcraft/callcoord/internal/types"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	initialReconnectDelay = 1 * time.Second
	maxReconnectDelay     = 30 * time.Second
)

// Subscriber maintains the WebSocket subscription to the backend and
// feeds the reconciler. On every successful (re)connect it pulls a fresh
// snapshot before consuming live frames, so missed events during an
// outage are recovered.
type Subscriber struct {
	backendURL string
	reconciler *Reconciler
	httpClient *http.Client
	logger     zerolog.Logger
	onChange   func()

	mu         sync.Mutex
	conn       *websocket.Conn
	connected  bool
	closed     bool
	reconnects int64
}

// NewSubscriber creates a subscriber for the given backend base URL
func NewSubscriber(backendURL string, reconciler *Reconciler, logger zerolog.Logger) *Subscriber {
	return &Subscriber{
		backendURL: backendURL,
		reconciler: reconciler,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger.With().Str("component", "dashboard_subscriber").Logger(),
	}
}

// OnChange registers a callback invoked after every state change
func (s *Subscriber) OnChange(fn func()) {
	s.onChange = fn
}

// Reconciler returns the state being maintained
func (s *Subscriber) Reconciler() *Reconciler {
	return s.reconciler
}

// Run connects and keeps the subscription alive until the context ends.
// Reconnects use exponential backoff with jitter.
func (s *Subscriber) Run(ctx context.Context) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	reconnectDelay := initialReconnectDelay

	for {
		s.mu.Lock()
		closed := s.closed
		s.mu.Unlock()
		if closed {
			return
		}

		select {
		case <-ctx.Done():
			s.Close()
			return
		default:
		}

		if err := s.connect(); err != nil {
			delay := jitter(rng, reconnectDelay)
			s.logger.Debug().Err(err).Dur("retry_in", delay).Msg("connection failed, retrying")
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
			reconnectDelay *= 2
			if reconnectDelay > maxReconnectDelay {
				reconnectDelay = maxReconnectDelay
			}
			s.mu.Lock()
			s.reconnects++
			s.mu.Unlock()
			continue
		}

		// Reset backoff on successful connection
		reconnectDelay = initialReconnectDelay

		// Recover anything missed while disconnected
		if err := s.pullSnapshot(ctx); err != nil {
			s.logger.Warn().Err(err).Msg("snapshot pull failed, relying on live frames")
		}

		s.readLoop(ctx)

		s.mu.Lock()
		s.connected = false
		if s.conn != nil {
			s.conn.Close()
			s.conn = nil
		}
		s.mu.Unlock()
	}
}

// connect establishes the WebSocket connection
func (s *Subscriber) connect() error {
	wsURL := s.backendURL + "/ws"
	// Convert http:// to ws:// or https:// to wss://
	if len(wsURL) > 4 && wsURL[:4] == "http" {
		wsURL = "ws" + wsURL[4:]
	}

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.conn = conn
	s.connected = true
	s.mu.Unlock()
	s.logger.Debug().Msg("websocket connected")
	return nil
}

// pullSnapshot fetches the backend's current state and replaces the
// local view
func (s *Subscriber) pullSnapshot(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.backendURL+"/api/snapshot", nil)
	if err != nil {
		return err
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("snapshot endpoint returned %d", resp.StatusCode)
	}

	var snapshot types.Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snapshot); err != nil {
		return err
	}
	s.reconciler.ApplySnapshot(snapshot)
	s.notify()
	return nil
}

// readLoop consumes frames until the connection drops or ctx ends
func (s *Subscriber) readLoop(ctx context.Context) {
	// Snapshot the connection: Close can nil out s.conn concurrently
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return
	}

	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		for {
			_, message, err := conn.ReadMessage()
			if err != nil {
				return
			}
			s.handleFrame(message)
		}
	}()

	select {
	case <-ctx.Done():
		conn.Close()
		<-readDone
	case <-readDone:
	}
}

// handleFrame folds one frame into the reconciler. The backend may
// coalesce queued messages into a single frame separated by newlines.
func (s *Subscriber) handleFrame(frame []byte) {
	for _, message := range bytes.Split(frame, []byte{'\n'}) {
		if len(message) == 0 {
			continue
		}
		s.handleMessage(message)
	}
}

// handleMessage applies one message: a snapshot (first message after
// connect) or a live call event.
func (s *Subscriber) handleMessage(message []byte) {
	var header struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(message, &header); err != nil {
		s.logger.Debug().Err(err).Msg("dropping unreadable frame")
		return
	}

	if header.Type == "snapshot" {
		var snapshot types.Snapshot
		if err := json.Unmarshal(message, &snapshot); err != nil {
			s.logger.Debug().Err(err).Msg("dropping malformed snapshot frame")
			return
		}
		s.reconciler.ApplySnapshot(snapshot)
		s.notify()
		return
	}

	var event types.CallEvent
	if err := json.Unmarshal(message, &event); err != nil {
		s.logger.Debug().Err(err).Msg("dropping malformed event frame")
		return
	}
	if event.CallID == "" {
		return
	}
	s.reconciler.Apply(event)
	s.notify()
}

func (s *Subscriber) notify() {
	if s.onChange != nil {
		s.onChange()
	}
}

// Close permanently stops the subscriber
func (s *Subscriber) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
	s.connected = false
}

// IsConnected reports whether the socket is currently up
func (s *Subscriber) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// Reconnects returns how many reconnect attempts have happened
func (s *Subscriber) Reconnects() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reconnects
}

// jitter spreads a delay by +/-25% so reconnecting clients do not
// stampede the backend
func jitter(rng *rand.Rand, d time.Duration) time.Duration {
	spread := float64(d) * (rng.Float64()*0.5 - 0.25)
	return d + time.Duration(spread)
}
