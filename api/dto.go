/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the billing model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients (charges, tenancies and
    payments reuse the factory JSON types)

TYPES:
  Status:
    PeriodDTO, ClassificationDTO, ChargeStatusDTO

  Dashboard:
    StatementDTO, ArrearsEntryDTO, ArrearsDTO

  Admin:
    SweepDTO

MONEY:
  Amounts are decimal strings with two places ("450.00").

SEE ALSO:
  - handlers.go: Uses these types
  - factory/charge.go: ChargeJSON, PaymentJSON, TenancyJSON
*/
package api

import (
	"time"

	"github.com/warp/hostel-billing/billing"
	"github.com/warp/hostel-billing/hostel"
)

// =============================================================================
// STATUS TYPES
// =============================================================================

// PeriodDTO represents one billing period.
type PeriodDTO struct {
	Key     string `json:"key"`
	Label   string `json:"label"`
	Cadence string `json:"cadence"`
	Year    int    `json:"year"`
	Month   int    `json:"month,omitempty"`
	Start   string `json:"start"`
	End     string `json:"end"`
}

// ClassificationDTO names a payment that could not be placed and why.
type ClassificationDTO struct {
	PaymentID string `json:"payment_id"`
	Rule      string `json:"rule"`
}

// ChargeStatusDTO is one charge's reconciliation result.
type ChargeStatusDTO struct {
	ChargeID        string              `json:"charge_id"`
	ChargeName      string              `json:"charge_name,omitempty"`
	TenancyID       string              `json:"tenancy_id,omitempty"`
	Action          string              `json:"action"`
	Applicable      bool                `json:"applicable"`
	ChosenFrequency string              `json:"chosen_frequency,omitempty"`
	PaidPeriods     []PeriodDTO         `json:"paid_periods"`
	UnpaidPeriods   []PeriodDTO         `json:"unpaid_periods"`
	PendingPeriods  []PeriodDTO         `json:"pending_periods"`
	Unclassified    []ClassificationDTO `json:"unclassified"`
	IsUpToDate      bool                `json:"is_up_to_date"`
	InArrears       bool                `json:"in_arrears"`
	AmountDue       string              `json:"amount_due"`
	Error           string              `json:"error,omitempty"`
}

// =============================================================================
// DASHBOARD TYPES
// =============================================================================

// StatementDTO is a tenant's dashboard as of a date.
type StatementDTO struct {
	TenantID string            `json:"tenant_id"`
	AsOf     string            `json:"as_of"`
	UpToDate bool              `json:"up_to_date"`
	TotalDue string            `json:"total_due"`
	Charges  []ChargeStatusDTO `json:"charges"`
}

// ArrearsEntryDTO is one tenancy with outstanding periods.
type ArrearsEntryDTO struct {
	TenantID      string   `json:"tenant_id"`
	TenancyID     string   `json:"tenancy_id"`
	UnpaidPeriods int      `json:"unpaid_periods"`
	AmountDue     string   `json:"amount_due"`
	InArrears     bool     `json:"in_arrears"`
	Charges       []string `json:"charges"`
}

// ArrearsDTO lists a building's outstanding tenancies.
type ArrearsDTO struct {
	BuildingID       string            `json:"building_id"`
	AsOf             string            `json:"as_of"`
	TenantsInArrears int               `json:"tenants_in_arrears"`
	Entries          []ArrearsEntryDTO `json:"entries"`
}

// SweepDTO reports a manual arrears sweep.
type SweepDTO struct {
	RanAt            string         `json:"ran_at"`
	Buildings        int            `json:"buildings"`
	TenantsInArrears map[string]int `json:"tenants_in_arrears"`
}

// ScenarioDTO describes a demo scenario and the view that shows it best.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	TenantID    string `json:"tenant_id"`
	AsOf        string `json:"as_of"`
}

type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func toPeriodDTOs(periods []billing.Period) []PeriodDTO {
	dtos := make([]PeriodDTO, len(periods))
	for i, p := range periods {
		dtos[i] = PeriodDTO{
			Key:     p.Key.String(),
			Label:   p.Label,
			Cadence: string(p.Cadence()),
			Year:    p.Year(),
			Month:   int(p.Month()),
			Start:   p.Start().String(),
			End:     p.End().String(),
		}
	}
	return dtos
}

func toStatusDTO(charge billing.ChargeDefinition, status billing.ChargePaymentStatus) ChargeStatusDTO {
	unclassified := make([]ClassificationDTO, len(status.Unclassified))
	for i, c := range status.Unclassified {
		unclassified[i] = ClassificationDTO{PaymentID: string(c.PaymentID), Rule: string(c.Rule)}
	}
	return ChargeStatusDTO{
		ChargeID:        string(charge.ID),
		ChargeName:      charge.Name,
		Action:          string(status.Action()),
		Applicable:      status.Applicable,
		ChosenFrequency: string(status.ChosenFrequency),
		PaidPeriods:     toPeriodDTOs(status.PaidPeriods),
		UnpaidPeriods:   toPeriodDTOs(status.UnpaidPeriods),
		PendingPeriods:  toPeriodDTOs(status.PendingPeriods),
		Unclassified:    unclassified,
		IsUpToDate:      status.IsUpToDate,
		InArrears:       status.InArrears(),
		AmountDue:       status.AmountDue.String(),
	}
}

func toLineDTO(line hostel.ChargeLine) ChargeStatusDTO {
	if line.Err != nil {
		return ChargeStatusDTO{
			ChargeID:       string(line.Charge.ID),
			ChargeName:     line.Charge.Name,
			TenancyID:      string(line.Tenancy.ID),
			Action:         string(line.Action()),
			PaidPeriods:    []PeriodDTO{},
			UnpaidPeriods:  []PeriodDTO{},
			PendingPeriods: []PeriodDTO{},
			Unclassified:   []ClassificationDTO{},
			AmountDue:      billing.NewAmountFromInt(0).String(),
			Error:          line.Err.Error(),
		}
	}
	dto := toStatusDTO(line.Charge, line.Status)
	dto.TenancyID = string(line.Tenancy.ID)
	return dto
}

func toStatementDTO(stmt hostel.Statement) StatementDTO {
	charges := make([]ChargeStatusDTO, len(stmt.Lines))
	for i, l := range stmt.Lines {
		charges[i] = toLineDTO(l)
	}
	return StatementDTO{
		TenantID: string(stmt.TenantID),
		AsOf:     stmt.AsOf.String(),
		UpToDate: stmt.UpToDate(),
		TotalDue: stmt.TotalDue().String(),
		Charges:  charges,
	}
}

func toArrearsDTO(buildingID billing.BuildingID, asOf billing.TimePoint, entries []hostel.ArrearsEntry) ArrearsDTO {
	dtos := make([]ArrearsEntryDTO, len(entries))
	for i, e := range entries {
		charges := make([]string, len(e.Charges))
		for j, c := range e.Charges {
			charges[j] = string(c)
		}
		dtos[i] = ArrearsEntryDTO{
			TenantID:      string(e.TenantID),
			TenancyID:     string(e.TenancyID),
			UnpaidPeriods: e.UnpaidPeriods,
			AmountDue:     e.AmountDue.String(),
			InArrears:     e.InArrears,
			Charges:       charges,
		}
	}
	return ArrearsDTO{
		BuildingID:       string(buildingID),
		AsOf:             asOf.String(),
		TenantsInArrears: hostel.CountInArrears(entries),
		Entries:          dtos,
	}
}

func toSweepDTO(result SweepResult) SweepDTO {
	counts := make(map[string]int, len(result.InArrears))
	for b, n := range result.InArrears {
		counts[string(b)] = n
	}
	return SweepDTO{
		RanAt:            result.RanAt.UTC().Format(time.RFC3339),
		Buildings:        len(result.InArrears),
		TenantsInArrears: counts,
	}
}
