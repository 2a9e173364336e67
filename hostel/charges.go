/*
charges.go - Pre-built charge configurations for hostels

PURPOSE:
  Ready-to-use recurring charges for the common hostel setups. Buildings
  usually bill rent monthly and maintenance once a year; older buildings
  were set up with yearly rent and later switched to monthly.

AVAILABLE CHARGES:
  MonthlyRent:        Room rent billed every calendar month
  YearlyRent:         Room rent billed once per calendar year
  AnnualMaintenance:  Building maintenance fee, once per calendar year
  MonthlyUtilities:   Flat utilities charge billed monthly

JSON HELPERS:
  The *JSON variants return the document accepted by factory.ParseCharge
  and POST /api/buildings/{id}/charges, handy for tests and seeding.

SEE ALSO:
  - factory/charge.go: JSON-based charge creation
  - billing/types.go: ChargeDefinition
*/
package hostel

import (
	"fmt"

	"github.com/warp/hostel-billing/billing"
)

// =============================================================================
// COMMON HOSTEL CHARGES
// =============================================================================

// MonthlyRent returns a rent charge billed per calendar month.
func MonthlyRent(id billing.ChargeID, building billing.BuildingID, amount string) billing.ChargeDefinition {
	return newCharge(id, building, "Room rent", amount, billing.CadenceMonthly)
}

// YearlyRent returns a rent charge billed per calendar year.
func YearlyRent(id billing.ChargeID, building billing.BuildingID, amount string) billing.ChargeDefinition {
	return newCharge(id, building, "Room rent (yearly)", amount, billing.CadenceYearly)
}

// AnnualMaintenance returns the yearly maintenance fee.
func AnnualMaintenance(id billing.ChargeID, building billing.BuildingID, amount string) billing.ChargeDefinition {
	return newCharge(id, building, "Annual maintenance", amount, billing.CadenceYearly)
}

// MonthlyUtilities returns a flat monthly utilities charge.
func MonthlyUtilities(id billing.ChargeID, building billing.BuildingID, amount string) billing.ChargeDefinition {
	return newCharge(id, building, "Utilities", amount, billing.CadenceMonthly)
}

// newCharge panics on a malformed amount literal; presets are built from
// constants, not user input.
func newCharge(id billing.ChargeID, building billing.BuildingID, name, amount string, cadence billing.Cadence) billing.ChargeDefinition {
	return billing.ChargeDefinition{
		ID:         id,
		BuildingID: building,
		Name:       name,
		Amount:     billing.MustParseAmount(amount),
		Cadence:    cadence,
	}
}

// =============================================================================
// JSON PRESETS
// =============================================================================

// ChargeJSON renders a charge document for factory.ParseCharge.
func ChargeJSON(id, building, name, amount string, cadence billing.Cadence) string {
	return fmt.Sprintf(`{
  "id": %q,
  "building_id": %q,
  "name": %q,
  "amount": %q,
  "cadence": %q
}`, id, building, name, amount, string(cadence))
}

func MonthlyRentJSON(id, building, amount string) string {
	return ChargeJSON(id, building, "Room rent", amount, billing.CadenceMonthly)
}

func AnnualMaintenanceJSON(id, building, amount string) string {
	return ChargeJSON(id, building, "Annual maintenance", amount, billing.CadenceYearly)
}
