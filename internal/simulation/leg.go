package simulation

import (
	"context"
	"sync"
	"time"

	"github.com/dialcraft/callcoord/internal/engine"
	"github.com/dialcraft/callcoord/internal/types"
)

// simLeg is a simulated telephony leg. Ring time, no-answer, busy and
// mid-call carrier drops are all probabilistic per the platform profile.
type simLeg struct {
	platform *Platform
	dial     types.DialContext

	done     chan engine.HangupCause
	doneOnce sync.Once

	mu       sync.Mutex
	answered bool
	dropStop chan struct{}
}

func newSimLeg(platform *Platform, dial types.DialContext) *simLeg {
	return &simLeg{
		platform: platform,
		dial:     dial,
		done:     make(chan engine.HangupCause, 1),
		dropStop: make(chan struct{}),
	}
}

// Answer simulates ringing. It returns ErrNoAnswer or ErrBusy per the
// profile, otherwise the call is connected and a background carrier-drop
// timer may end it later.
func (l *simLeg) Answer(ctx context.Context) error {
	profile := l.platform.profile
	ring := l.platform.duration(profile.MinRingTime, profile.MaxRingTime)

	select {
	case <-time.After(ring):
	case <-ctx.Done():
		l.finish(engine.CauseCarrierDrop)
		return ctx.Err()
	}

	roll := l.platform.roll()
	if roll < profile.BusyProb {
		l.finish(engine.CauseCarrierDrop)
		return engine.ErrBusy
	}
	if roll < profile.BusyProb+profile.NoAnswerProb {
		l.finish(engine.CauseCarrierDrop)
		return engine.ErrNoAnswer
	}

	l.mu.Lock()
	l.answered = true
	l.mu.Unlock()

	if l.platform.roll() < profile.MidCallDropProb {
		// Schedule a carrier drop somewhere inside the talk window
		delay := l.platform.duration(profile.MinTalkTime/2, profile.MaxTalkTime)
		go func() {
			select {
			case <-time.After(delay):
				l.finish(engine.CauseCarrierDrop)
			case <-l.dropStop:
			}
		}()
	}
	return nil
}

// Hangup ends the leg locally
func (l *simLeg) Hangup() error {
	l.finish(engine.CauseLocalHangup)
	return nil
}

// RemoteHangup ends the leg as if the lead hung up. Used by the
// simulated conversation after the closing remark.
func (l *simLeg) RemoteHangup() {
	l.finish(engine.CauseRemoteHangup)
}

func (l *simLeg) Done() <-chan engine.HangupCause {
	return l.done
}

func (l *simLeg) finish(cause engine.HangupCause) {
	l.doneOnce.Do(func() {
		close(l.dropStop)
		l.done <- cause
	})
}
