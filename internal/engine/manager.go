package engine

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/dialcraft/callcoord/internal/types"
	"github.com/rs/zerolog"
)

// PlatformFactory produces the telephony leg and AI connector for a call.
// The simulation package provides the default implementation.
type PlatformFactory interface {
	NewLeg(dial types.DialContext) Leg
	NewConnector(dial types.DialContext) Connector
}

// Manager owns all running sessions. Sessions are independent; the
// manager only tracks them for counts and shutdown.
type Manager struct {
	factory PlatformFactory
	sink    EventSink
	cfg     SessionConfig
	logger  zerolog.Logger

	sessions map[string]*Session
	mu       sync.RWMutex

	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	started   int64
	completed int64
}

// NewManager creates a session manager
func NewManager(factory PlatformFactory, sink EventSink, cfg SessionConfig, logger zerolog.Logger) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		factory:  factory,
		sink:     sink,
		cfg:      cfg,
		logger:   logger.With().Str("component", "session_manager").Logger(),
		sessions: make(map[string]*Session),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// StartCall launches a session for the dial context. It returns once the
// session is running; lifecycle progress flows through the event sink.
func (m *Manager) StartCall(dial types.DialContext) error {
	if err := dial.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	if _, exists := m.sessions[dial.CallID]; exists {
		m.mu.Unlock()
		return fmt.Errorf("call %s already in progress", dial.CallID)
	}
	session := NewSession(dial, m.factory.NewLeg(dial), m.factory.NewConnector(dial), m.sink, m.cfg, m.logger)
	m.sessions[dial.CallID] = session
	m.mu.Unlock()

	atomic.AddInt64(&m.started, 1)
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		session.Run(m.ctx)

		m.mu.Lock()
		delete(m.sessions, dial.CallID)
		m.mu.Unlock()
		atomic.AddInt64(&m.completed, 1)
	}()

	m.logger.Info().
		Str("call_id", dial.CallID).
		Str("campaign", string(dial.Campaign)).
		Msg("session started")
	return nil
}

// ActiveCount returns the number of running sessions
func (m *Manager) ActiveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Stats returns lifetime counters for the control API
func (m *Manager) Stats() map[string]interface{} {
	return map[string]interface{}{
		"active_sessions":    m.ActiveCount(),
		"sessions_started":   atomic.LoadInt64(&m.started),
		"sessions_completed": atomic.LoadInt64(&m.completed),
	}
}

// Shutdown cancels all sessions and waits for them to terminate
func (m *Manager) Shutdown() {
	m.cancel()
	m.wg.Wait()
}
