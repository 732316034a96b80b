package types

import "fmt"

// CampaignType selects the conversational objective for an outbound call
// and determines which disposition enum applies.
type CampaignType string

const (
	CampaignRegistrationRecovery CampaignType = "registration-recovery"
	CampaignDormantReactivation  CampaignType = "dormant-reactivation"
)

// AllCampaigns returns all defined campaign types
var AllCampaigns = []CampaignType{
	CampaignRegistrationRecovery,
	CampaignDormantReactivation,
}

// ParseCampaignType validates a raw campaign string
func ParseCampaignType(s string) (CampaignType, error) {
	switch CampaignType(s) {
	case CampaignRegistrationRecovery, CampaignDormantReactivation:
		return CampaignType(s), nil
	default:
		return "", fmt.Errorf("unknown campaign type: %q", s)
	}
}

// Disposition is a closed-set categorical call outcome, campaign-specific
type Disposition string

const (
	// Registration recovery outcomes
	DispositionCompletedRegistration Disposition = "COMPLETED_REGISTRATION"
	DispositionScheduledCompletion   Disposition = "SCHEDULED_COMPLETION"
	DispositionNeedsHelp             Disposition = "NEEDS_HELP"
	DispositionNotInterested         Disposition = "NOT_INTERESTED"
	DispositionWrongNumber           Disposition = "WRONG_NUMBER"

	// Dormant reactivation outcomes
	DispositionReactivated      Disposition = "REACTIVATED"
	DispositionRemindedValue    Disposition = "REMINDED_VALUE"
	DispositionNoTravelPlans    Disposition = "NO_TRAVEL_PLANS"
	DispositionFoundAlternative Disposition = "FOUND_ALTERNATIVE"
)

// campaignDispositions maps each campaign to its allowed outcomes
var campaignDispositions = map[CampaignType][]Disposition{
	CampaignRegistrationRecovery: {
		DispositionCompletedRegistration,
		DispositionScheduledCompletion,
		DispositionNeedsHelp,
		DispositionNotInterested,
		DispositionWrongNumber,
	},
	CampaignDormantReactivation: {
		DispositionReactivated,
		DispositionRemindedValue,
		DispositionNoTravelPlans,
		DispositionFoundAlternative,
		DispositionNotInterested,
	},
}

// DispositionsFor returns the allowed dispositions for a campaign
func DispositionsFor(campaign CampaignType) []Disposition {
	return campaignDispositions[campaign]
}

// ValidFor reports whether the disposition belongs to the campaign's enum
func (d Disposition) ValidFor(campaign CampaignType) bool {
	for _, allowed := range campaignDispositions[campaign] {
		if d == allowed {
			return true
		}
	}
	return false
}

// CX score bounds
const (
	MinCXScore = 1
	MaxCXScore = 10
)

// ValidCXScore reports whether score is within the allowed range
func ValidCXScore(score int) bool {
	return score >= MinCXScore && score <= MaxCXScore
}
