package simulation

import (
	"math/rand"
	"sync"
	"time"

	"github.com/dialcraft/callcoord/internal/engine"
	"github.com/dialcraft/callcoord/internal/types"
	"github.com/rs/zerolog"
)

// Profile tunes the simulated platforms. Probabilities are per call.
type Profile struct {
	NoAnswerProb    float64       // remote never picks up
	BusyProb        float64       // line busy
	MidCallDropProb float64       // carrier drops the call while bridged
	ConnectFailProb float64       // AI connector fails to establish
	MinRingTime     time.Duration // time spent ringing before answer/no-answer
	MaxRingTime     time.Duration
	MinTalkTime     time.Duration // conversation length before an outcome
	MaxTalkTime     time.Duration
	ConnectDelay    time.Duration // AI connector setup time
}

// DefaultProfile returns the standard simulation tuning
func DefaultProfile() Profile {
	return Profile{
		NoAnswerProb:    0.15,
		BusyProb:        0.05,
		MidCallDropProb: 0.05,
		ConnectFailProb: 0.02,
		MinRingTime:     500 * time.Millisecond,
		MaxRingTime:     3 * time.Second,
		MinTalkTime:     2 * time.Second,
		MaxTalkTime:     10 * time.Second,
		ConnectDelay:    300 * time.Millisecond,
	}
}

// Platform produces simulated telephony legs and AI connectors so the
// engine runs end to end without external services.
type Platform struct {
	profile Profile
	rng     *rand.Rand
	mu      sync.Mutex
	logger  zerolog.Logger
}

// NewPlatform creates a simulated platform
func NewPlatform(profile Profile, logger zerolog.Logger) *Platform {
	return &Platform{
		profile: profile,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
		logger:  logger.With().Str("component", "sim_platform").Logger(),
	}
}

// NewLeg returns a simulated telephony leg for the call
func (p *Platform) NewLeg(dial types.DialContext) engine.Leg {
	return newSimLeg(p, dial)
}

// NewConnector returns a simulated AI connector for the call
func (p *Platform) NewConnector(dial types.DialContext) engine.Connector {
	return newSimConnector(p)
}

// roll and duration keep all randomness behind one lock; legs and
// conversations for concurrent calls share the rng.
func (p *Platform) roll() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rng.Float64()
}

func (p *Platform) duration(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return min + time.Duration(p.rng.Int63n(int64(max-min)))
}

func (p *Platform) intn(n int) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rng.Intn(n)
}
