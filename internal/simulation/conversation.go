package simulation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dialcraft/callcoord/internal/engine"
	"github.com/dialcraft/callcoord/internal/types"
)

// simConnector is a simulated AI conversation platform
type simConnector struct {
	platform *Platform
}

func newSimConnector(platform *Platform) *simConnector {
	return &simConnector{platform: platform}
}

func (c *simConnector) Connect(ctx context.Context, dial types.DialContext) (engine.Conversation, error) {
	select {
	case <-time.After(c.platform.profile.ConnectDelay):
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	if c.platform.roll() < c.platform.profile.ConnectFailProb {
		return nil, errors.New("conversation service unavailable")
	}

	return &simConversation{
		platform: c.platform,
		dial:     dial,
		closed:   make(chan struct{}),
	}, nil
}

// simConversation runs a fake AI dialog: it talks for a random window,
// then reports a randomized per-campaign outcome through the capture
// callback.
type simConversation struct {
	platform *Platform
	dial     types.DialContext

	closeOnce sync.Once
	closed    chan struct{}
}

func (c *simConversation) Start(capture engine.CaptureFunc) error {
	talk := c.platform.duration(c.platform.profile.MinTalkTime, c.platform.profile.MaxTalkTime)

	select {
	case <-time.After(talk):
	case <-c.closed:
		return nil
	}

	outcome := c.platform.randomOutcome(c.dial)
	if err := capture(outcome); err != nil {
		return fmt.Errorf("outcome not accepted: %w", err)
	}
	return nil
}

func (c *simConversation) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

// dispositionWeights skews outcomes toward the common cases observed in
// real campaigns; unlisted dispositions get weight 1.
var dispositionWeights = map[types.Disposition]int{
	types.DispositionCompletedRegistration: 3,
	types.DispositionScheduledCompletion:   3,
	types.DispositionNeedsHelp:             2,
	types.DispositionReactivated:           3,
	types.DispositionRemindedValue:         3,
	types.DispositionNoTravelPlans:         2,
}

// cxScoreRange maps a disposition to a plausible satisfaction band
var cxScoreRange = map[types.Disposition][2]int{
	types.DispositionCompletedRegistration: {7, 10},
	types.DispositionScheduledCompletion:   {6, 9},
	types.DispositionNeedsHelp:             {5, 8},
	types.DispositionNotInterested:         {2, 6},
	types.DispositionWrongNumber:           {1, 4},
	types.DispositionReactivated:           {7, 10},
	types.DispositionRemindedValue:         {6, 9},
	types.DispositionNoTravelPlans:         {4, 8},
	types.DispositionFoundAlternative:      {2, 6},
}

var summaryTemplates = map[types.Disposition]string{
	types.DispositionCompletedRegistration: "%s completed the registration during the call",
	types.DispositionScheduledCompletion:   "%s will finish registration later today",
	types.DispositionNeedsHelp:             "%s needs assistance with the remaining steps",
	types.DispositionNotInterested:         "%s asked not to be contacted about this again",
	types.DispositionWrongNumber:           "reached someone other than %s",
	types.DispositionReactivated:           "%s booked a new trip on the call",
	types.DispositionRemindedValue:         "%s was reminded of unused benefits and will browse offers",
	types.DispositionNoTravelPlans:         "%s has no travel planned this season",
	types.DispositionFoundAlternative:      "%s has switched to a different provider",
}

// randomOutcome picks a weighted disposition valid for the campaign, a
// score inside its band and a short summary.
func (p *Platform) randomOutcome(dial types.DialContext) engine.Outcome {
	dispositions := types.DispositionsFor(dial.Campaign)

	total := 0
	for _, d := range dispositions {
		total += weightOf(d)
	}
	pick := p.intn(total)
	var chosen types.Disposition
	for _, d := range dispositions {
		pick -= weightOf(d)
		if pick < 0 {
			chosen = d
			break
		}
	}

	band, ok := cxScoreRange[chosen]
	if !ok {
		band = [2]int{types.MinCXScore, types.MaxCXScore}
	}
	score := band[0] + p.intn(band[1]-band[0]+1)

	summary := fmt.Sprintf("call with %s concluded", dial.LeadName)
	if template, ok := summaryTemplates[chosen]; ok {
		summary = fmt.Sprintf(template, dial.LeadName)
	}

	return engine.Outcome{
		Disposition: string(chosen),
		CXScore:     score,
		Summary:     summary,
	}
}

func weightOf(d types.Disposition) int {
	if w, ok := dispositionWeights[d]; ok {
		return w
	}
	return 1
}
