package types

import "testing"

func TestParseCampaignType(t *testing.T) {
	tests := []struct {
		input   string
		want    CampaignType
		wantErr bool
	}{
		{"registration-recovery", CampaignRegistrationRecovery, false},
		{"dormant-reactivation", CampaignDormantReactivation, false},
		{"cold-outreach", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		got, err := ParseCampaignType(tt.input)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseCampaignType(%q) expected error, got %q", tt.input, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseCampaignType(%q) unexpected error: %v", tt.input, err)
		}
		if got != tt.want {
			t.Errorf("ParseCampaignType(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestDispositionValidFor(t *testing.T) {
	tests := []struct {
		name        string
		disposition Disposition
		campaign    CampaignType
		want        bool
	}{
		{"registration outcome on registration campaign", DispositionCompletedRegistration, CampaignRegistrationRecovery, true},
		{"dormant outcome on dormant campaign", DispositionReactivated, CampaignDormantReactivation, true},
		{"registration outcome on dormant campaign", DispositionCompletedRegistration, CampaignDormantReactivation, false},
		{"dormant outcome on registration campaign", DispositionNoTravelPlans, CampaignRegistrationRecovery, false},
		{"shared outcome valid for both", DispositionNotInterested, CampaignRegistrationRecovery, true},
		{"shared outcome valid for both dormant", DispositionNotInterested, CampaignDormantReactivation, true},
		{"unknown disposition", Disposition("CALL_BACK_LATER"), CampaignRegistrationRecovery, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.disposition.ValidFor(tt.campaign); got != tt.want {
				t.Errorf("ValidFor(%q, %q) = %v, want %v", tt.disposition, tt.campaign, got, tt.want)
			}
		})
	}
}

func TestDispositionsForHasFivePerCampaign(t *testing.T) {
	for _, campaign := range AllCampaigns {
		if got := len(DispositionsFor(campaign)); got != 5 {
			t.Errorf("DispositionsFor(%q) returned %d outcomes, want 5", campaign, got)
		}
	}
}

func TestValidCXScore(t *testing.T) {
	for _, score := range []int{1, 5, 10} {
		if !ValidCXScore(score) {
			t.Errorf("expected score %d to be valid", score)
		}
	}
	for _, score := range []int{0, -1, 11, 100} {
		if ValidCXScore(score) {
			t.Errorf("expected score %d to be invalid", score)
		}
	}
}
