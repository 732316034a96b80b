package api

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/dialcraft/callcoord/internal/types"
)

// LeadSource resolves leads for the trigger endpoint. Lead management is
// owned by another system; we only need lookup by ID.
type LeadSource interface {
	GetLead(id int) (*types.Lead, error)
	ListLeads() ([]types.Lead, error)
}

// StaticLeadSource serves leads loaded once at startup, either from a
// JSON file or from the built-in sample set.
type StaticLeadSource struct {
	byID  map[int]types.Lead
	order []int
}

// NewStaticLeadSource loads leads from the given JSON file. An empty
// path selects the built-in sample leads.
func NewStaticLeadSource(path string) (*StaticLeadSource, error) {
	leads := sampleLeads()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read leads file: %w", err)
		}
		leads = nil
		if err := json.Unmarshal(data, &leads); err != nil {
			return nil, fmt.Errorf("parse leads file: %w", err)
		}
	}

	source := &StaticLeadSource{byID: make(map[int]types.Lead, len(leads))}
	for _, lead := range leads {
		if _, err := types.ParseCampaignType(string(lead.Campaign)); err != nil {
			return nil, fmt.Errorf("lead %d: %w", lead.ID, err)
		}
		if _, exists := source.byID[lead.ID]; exists {
			return nil, fmt.Errorf("duplicate lead id %d", lead.ID)
		}
		source.byID[lead.ID] = lead
		source.order = append(source.order, lead.ID)
	}
	return source, nil
}

func (s *StaticLeadSource) GetLead(id int) (*types.Lead, error) {
	lead, ok := s.byID[id]
	if !ok {
		return nil, nil
	}
	return &lead, nil
}

func (s *StaticLeadSource) ListLeads() ([]types.Lead, error) {
	leads := make([]types.Lead, 0, len(s.order))
	for _, id := range s.order {
		leads = append(leads, s.byID[id])
	}
	return leads, nil
}

func sampleLeads() []types.Lead {
	return []types.Lead{
		{ID: 1, Name: "Maya Chen", Phone: "+14155550101", Campaign: types.CampaignRegistrationRecovery, DropStage: "payment_details"},
		{ID: 2, Name: "Daniel Avram", Phone: "+14155550102", Campaign: types.CampaignRegistrationRecovery, DropStage: "identity_verification"},
		{ID: 3, Name: "Sofia Martinez", Phone: "+14155550103", Campaign: types.CampaignRegistrationRecovery, DropStage: "plan_selection"},
		{ID: 4, Name: "Omar Haddad", Phone: "+14155550104", Campaign: types.CampaignDormantReactivation, LastActive: "2025-11-03"},
		{ID: 5, Name: "Lena Fischer", Phone: "+14155550105", Campaign: types.CampaignDormantReactivation, LastActive: "2025-09-18"},
		{ID: 6, Name: "Noah Williams", Phone: "+14155550106", Campaign: types.CampaignDormantReactivation, LastActive: "2026-01-27"},
	}
}
