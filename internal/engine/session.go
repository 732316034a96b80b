package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dialcraft/callcoord/internal/types"
	"github.com/rs/zerolog"
)

// HangupCause explains why a telephony leg ended
type HangupCause string

const (
	CauseRemoteHangup HangupCause = "remote_hangup"
	CauseCarrierDrop  HangupCause = "carrier_drop"
	CauseLocalHangup  HangupCause = "local_hangup"
)

// ErrNoAnswer is returned by Leg.Answer when the remote side never picks up
var ErrNoAnswer = errors.New("no answer")

// ErrBusy is returned by Leg.Answer when the line is busy
var ErrBusy = errors.New("busy")

// Leg is the telephony side of a call. The platform behind it is opaque;
// the session only answers, hangs up and watches for the end of the call.
type Leg interface {
	Answer(ctx context.Context) error
	Hangup() error
	// Done delivers exactly one cause when the leg ends for any reason,
	// including a local Hangup.
	Done() <-chan HangupCause
}

// Outcome is the raw payload the AI connector reports when the
// conversation reaches a conclusion. Validated at the capture boundary.
type Outcome struct {
	Disposition string `json:"disposition"`
	CXScore     int    `json:"cx_score"`
	Summary     string `json:"summary"`
}

// CaptureFunc receives the conversation outcome. It acknowledges
// synchronously: a non-nil error means the payload was rejected and the
// conversation should continue.
type CaptureFunc func(Outcome) error

// Conversation is one live AI dialog bridged onto a call
type Conversation interface {
	// Start runs the dialog and blocks until it finishes. The conversation
	// invokes capture at most once, when an outcome is reached.
	Start(capture CaptureFunc) error
	Close() error
}

// Connector establishes AI conversations for calls
type Connector interface {
	Connect(ctx context.Context, dial types.DialContext) (Conversation, error)
}

// EventSink receives lifecycle events for delivery to the backend.
// Send must not block the caller beyond enqueueing.
type EventSink interface {
	Send(event types.CallEvent)
}

// SessionConfig bounds the timing of one session
type SessionConfig struct {
	// ConnectTimeout caps how long the AI connector may take after the
	// leg answers
	ConnectTimeout time.Duration
	// GraceDelay is how long the closing remark may play after the
	// outcome is captured before the leg is hung up
	GraceDelay time.Duration
}

// DefaultSessionConfig returns the standard timing bounds
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		ConnectTimeout: 15 * time.Second,
		GraceDelay:     4 * time.Second,
	}
}

// Session drives one call from dial to termination. Sessions share no
// state; a failure in one never affects another.
type Session struct {
	dial      types.DialContext
	leg       Leg
	connector Connector
	sink      EventSink
	cfg       SessionConfig
	logger    zerolog.Logger

	fsm        *FSM
	answeredAt time.Time

	mu       sync.Mutex
	outcome  *Outcome
	captured bool
}

// NewSession creates a session in the Alerting state
func NewSession(dial types.DialContext, leg Leg, connector Connector, sink EventSink, cfg SessionConfig, logger zerolog.Logger) *Session {
	return &Session{
		dial:      dial,
		leg:       leg,
		connector: connector,
		sink:      sink,
		cfg:       cfg,
		logger:    logger.With().Str("call_id", dial.CallID).Logger(),
		fsm:       NewFSM(),
	}
}

// State returns the session's current lifecycle state
func (s *Session) State() State {
	return s.fsm.State()
}

// Run executes the session to completion. It blocks until the session
// reaches Terminated.
func (s *Session) Run(ctx context.Context) {
	if err := s.dial.Validate(); err != nil {
		s.failSetup(fmt.Sprintf("invalid dial context: %v", err))
		return
	}

	// Alerting: wait for the remote side to pick up
	if err := s.leg.Answer(ctx); err != nil {
		s.logger.Info().Err(err).Msg("call not answered")
		s.endCarrier(err.Error())
		return
	}
	s.answeredAt = time.Now()

	if err := s.fsm.Transition(StateConnectingAI); err != nil {
		s.logger.Error().Err(err).Msg("state machine violation")
		return
	}
	s.sink.Send(types.CallEvent{
		Type:      types.EventCallStarted,
		CallID:    s.dial.CallID,
		LeadID:    s.dial.LeadID,
		LeadName:  s.dial.LeadName,
		Campaign:  s.dial.Campaign,
		Timestamp: s.answeredAt.UTC(),
	})

	conv, err := s.connectAI(ctx)
	if err != nil {
		s.leg.Hangup()
		s.drainLeg()
		s.failSetup(err.Error())
		return
	}

	if err := s.fsm.Transition(StateBridged); err != nil {
		s.logger.Error().Err(err).Msg("state machine violation")
		conv.Close()
		return
	}
	s.logger.Info().Str("campaign", string(s.dial.Campaign)).Msg("call bridged")

	convDone := make(chan error, 1)
	go func() { convDone <- conv.Start(s.capture) }()

	s.bridgedLoop(ctx, conv, convDone)
}

// connectAI establishes the AI conversation within the connect timeout,
// aborting early if the carrier drops the leg mid-setup.
func (s *Session) connectAI(ctx context.Context) (Conversation, error) {
	connectCtx, cancel := context.WithTimeout(ctx, s.cfg.ConnectTimeout)
	defer cancel()

	type connectResult struct {
		conv Conversation
		err  error
	}
	done := make(chan connectResult, 1)
	go func() {
		conv, err := s.connector.Connect(connectCtx, s.dial)
		done <- connectResult{conv, err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			if connectCtx.Err() != nil {
				return nil, fmt.Errorf("ai connect timed out after %s", s.cfg.ConnectTimeout)
			}
			return nil, fmt.Errorf("ai connect failed: %v", res.err)
		}
		return res.conv, nil
	case cause := <-s.leg.Done():
		// Carrier loss before the bridge is established
		return nil, fmt.Errorf("leg lost during ai setup: %s", cause)
	}
}

// bridgedLoop waits for the conversation or the leg to finish and drives
// the session to its terminal state.
func (s *Session) bridgedLoop(ctx context.Context, conv Conversation, convDone <-chan error) {
	for {
		select {
		case cause := <-s.leg.Done():
			conv.Close()
			if s.hasOutcome() {
				// Remote hung up during the closing remark; the result
				// already went out
				s.endClean(string(cause))
			} else if cause == CauseCarrierDrop {
				s.endCarrier("carrier drop mid-call")
			} else {
				s.endCarrier("remote hangup before outcome")
			}
			return

		case err := <-convDone:
			if s.hasOutcome() {
				conv.Close()
				s.graceThenHangup(ctx)
				s.endClean("completed")
				return
			}
			conv.Close()
			s.leg.Hangup()
			s.drainLeg()
			if err != nil {
				s.failSetup(fmt.Sprintf("ai conversation failed: %v", err))
			} else {
				s.failSetup("ai conversation ended without outcome")
			}
			return

		case <-ctx.Done():
			conv.Close()
			s.leg.Hangup()
			s.drainLeg()
			s.endCarrier("engine shutdown")
			return
		}
	}
}

// capture is handed to the AI conversation as the outcome callback. It
// validates the payload at the boundary and rejects without leaving
// Bridged; a valid payload is accepted exactly once.
func (s *Session) capture(outcome Outcome) error {
	if err := s.validateOutcome(outcome); err != nil {
		s.logger.Warn().Err(err).Msg("outcome rejected")
		return err
	}

	s.mu.Lock()
	if s.captured {
		s.mu.Unlock()
		return errors.New("outcome already captured")
	}
	ok, err := s.fsm.TransitionIf(StateBridged, StateResultCap)
	if err != nil || !ok {
		s.mu.Unlock()
		return fmt.Errorf("call no longer bridged")
	}
	s.captured = true
	s.outcome = &outcome

	// Enqueue the result before releasing the lock: anything that observes
	// captured and emits the terminal event is then guaranteed to queue it
	// after call_result. Send only enqueues, so holding the lock is cheap.
	s.sink.Send(types.CallEvent{
		Type:        types.EventCallResult,
		CallID:      s.dial.CallID,
		Disposition: types.Disposition(outcome.Disposition),
		CXScore:     outcome.CXScore,
		Summary:     outcome.Summary,
	})
	s.mu.Unlock()

	s.logger.Info().
		Str("disposition", outcome.Disposition).
		Int("cx_score", outcome.CXScore).
		Msg("outcome captured")
	return nil
}

func (s *Session) validateOutcome(outcome Outcome) error {
	disposition := types.Disposition(outcome.Disposition)
	if outcome.Disposition == "" {
		return errors.New("missing disposition")
	}
	if !disposition.ValidFor(s.dial.Campaign) {
		return fmt.Errorf("disposition %q not valid for campaign %s", outcome.Disposition, s.dial.Campaign)
	}
	if !types.ValidCXScore(outcome.CXScore) {
		return fmt.Errorf("cx_score %d out of range [%d,%d]", outcome.CXScore, types.MinCXScore, types.MaxCXScore)
	}
	return nil
}

func (s *Session) hasOutcome() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.captured
}

// graceThenHangup lets the closing remark finish before tearing the leg
// down. A remote hangup during the grace window cuts it short.
func (s *Session) graceThenHangup(ctx context.Context) {
	timer := time.NewTimer(s.cfg.GraceDelay)
	defer timer.Stop()

	select {
	case <-timer.C:
		s.leg.Hangup()
		s.drainLeg()
	case <-s.leg.Done():
	case <-ctx.Done():
		s.leg.Hangup()
		s.drainLeg()
	}
}

// drainLeg consumes the leg's terminal cause after a local hangup so the
// channel never leaks a sender.
func (s *Session) drainLeg() {
	select {
	case <-s.leg.Done():
	case <-time.After(time.Second):
	}
}

// endClean terminates the session with call_ended
func (s *Session) endClean(reason string) {
	s.terminate()
	s.sink.Send(types.CallEvent{
		Type:            types.EventCallEnded,
		CallID:          s.dial.CallID,
		DurationSeconds: s.duration(),
	})
	s.logger.Info().Str("reason", reason).Int("duration_s", s.duration()).Msg("call ended")
}

// endCarrier terminates the session after a carrier-side failure. No
// result was produced; the backend learns only that the call ended.
func (s *Session) endCarrier(reason string) {
	s.terminate()
	s.sink.Send(types.CallEvent{
		Type:            types.EventCallEnded,
		CallID:          s.dial.CallID,
		DurationSeconds: s.duration(),
	})
	s.logger.Info().Str("reason", reason).Msg("call ended by carrier")
}

// failSetup terminates the session with call_error
func (s *Session) failSetup(reason string) {
	s.terminate()
	s.sink.Send(types.CallEvent{
		Type:   types.EventCallError,
		CallID: s.dial.CallID,
		Error:  reason,
	})
	s.logger.Warn().Str("reason", reason).Msg("call failed")
}

func (s *Session) terminate() {
	if err := s.fsm.Transition(StateTerminating); err == nil {
		s.fsm.Transition(StateTerminated)
	}
}

func (s *Session) duration() int {
	if s.answeredAt.IsZero() {
		return 0
	}
	return int(time.Since(s.answeredAt).Seconds())
}
