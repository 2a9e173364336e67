package factory

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/warp/hostel-billing/billing"
)

// TenancyJSON is the JSON representation of a tenancy. StartDate is empty
// for applicants who have not moved in.
type TenancyJSON struct {
	ID         string `json:"id,omitempty"`
	TenantID   string `json:"tenant_id" validate:"required"`
	BuildingID string `json:"building_id" validate:"required"`
	RoomID     string `json:"room_id,omitempty"`
	StartDate  string `json:"start_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
}

// ParseTenancy parses a JSON string into a Tenancy.
func (f *ChargeFactory) ParseTenancy(jsonStr string) (billing.Tenancy, error) {
	var tj TenancyJSON
	if err := json.Unmarshal([]byte(jsonStr), &tj); err != nil {
		return billing.Tenancy{}, fmt.Errorf("failed to parse tenancy JSON: %w", err)
	}
	return f.TenancyFromJSON(tj)
}

// TenancyFromJSON validates tj and converts it, generating an ID if missing.
func (f *ChargeFactory) TenancyFromJSON(tj TenancyJSON) (billing.Tenancy, error) {
	if err := f.validate.Struct(tj); err != nil {
		return billing.Tenancy{}, fmt.Errorf("invalid tenancy: %w", err)
	}

	t := billing.Tenancy{
		ID:         billing.TenancyID(tj.ID),
		TenantID:   billing.TenantID(tj.TenantID),
		BuildingID: billing.BuildingID(tj.BuildingID),
		RoomID:     tj.RoomID,
	}
	if t.ID == "" {
		t.ID = billing.TenancyID(uuid.NewString())
	}
	if tj.StartDate != "" {
		start, err := billing.ParseDate(tj.StartDate)
		if err != nil {
			return billing.Tenancy{}, fmt.Errorf("invalid start_date: %w", err)
		}
		t.StartDate = &start
	}
	return t, nil
}

// TenancyToJSON converts a Tenancy to TenancyJSON.
func (f *ChargeFactory) TenancyToJSON(t billing.Tenancy) TenancyJSON {
	tj := TenancyJSON{
		ID:         string(t.ID),
		TenantID:   string(t.TenantID),
		BuildingID: string(t.BuildingID),
		RoomID:     t.RoomID,
	}
	if anchor := t.Anchor(); anchor != nil {
		tj.StartDate = anchor.String()
	}
	return tj
}
