/*
Package factory provides JSON to Go conversion for charges and payments.

PURPOSE:
  Converts JSON documents from the admin UI and the payment gateway into
  billing.ChargeDefinition and billing.PaymentRecord values. Struct-level
  validation runs first (go-playground/validator), then the engine's own
  ChargeDefinition.Validate so the same rules apply everywhere.

JSON SCHEMA (charge):
  {
    "id": "rent-a",
    "building_id": "bldg-1",
    "name": "Room rent",
    "amount": "450.00",
    "cadence": "monthly"
  }

JSON SCHEMA (payment):
  {
    "tenant_id": "alice",
    "charge_id": "rent-a",
    "amount": "450.00",
    "outcome": "success",
    "period_year": 2024,
    "period_month": 3,          // null for annual records
    "period_month_end": null,   // set on legacy range records
    "period_label": "March 2024",
    "idempotency_key": "gw-evt-123"
  }

AMOUNTS:
  Amounts travel as strings so decimals survive JSON round trips.

USAGE:
  factory := NewChargeFactory()
  charge, err := factory.ParseCharge(hostel.MonthlyRentJSON("rent-a", "bldg-1", "450.00"))

SEE ALSO:
  - hostel/charges.go: Preset charge documents
  - api/handlers.go: Uses the factory for request bodies
*/
package factory

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/warp/hostel-billing/billing"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// ChargeJSON is the JSON representation of a charge.
type ChargeJSON struct {
	ID         string `json:"id" validate:"required"`
	BuildingID string `json:"building_id" validate:"required"`
	Name       string `json:"name" validate:"required"`
	Amount     string `json:"amount" validate:"required,numeric"`
	Cadence    string `json:"cadence" validate:"required,oneof=monthly yearly"`
}

// =============================================================================
// CHARGE FACTORY
// =============================================================================

// ChargeFactory converts JSON documents to billing types.
type ChargeFactory struct {
	validate *validator.Validate
}

// NewChargeFactory creates a factory whose validation errors use JSON field names.
func NewChargeFactory() *ChargeFactory {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &ChargeFactory{validate: v}
}

// ParseCharge parses a JSON string into a ChargeDefinition.
func (f *ChargeFactory) ParseCharge(jsonStr string) (billing.ChargeDefinition, error) {
	var cj ChargeJSON
	if err := json.Unmarshal([]byte(jsonStr), &cj); err != nil {
		return billing.ChargeDefinition{}, fmt.Errorf("failed to parse charge JSON: %w", err)
	}
	return f.ChargeFromJSON(cj)
}

// ChargeFromJSON validates cj and converts it. Every failure unwraps to
// billing.ErrInvalidChargeDefinition.
func (f *ChargeFactory) ChargeFromJSON(cj ChargeJSON) (billing.ChargeDefinition, error) {
	if err := f.validate.Struct(cj); err != nil {
		return billing.ChargeDefinition{}, chargeValidationError(billing.ChargeID(cj.ID), err)
	}

	amount, err := billing.ParseAmount(cj.Amount)
	if err != nil {
		return billing.ChargeDefinition{}, &billing.InvalidChargeError{ChargeID: billing.ChargeID(cj.ID), Field: "amount", Reason: err.Error()}
	}

	charge := billing.ChargeDefinition{
		ID:         billing.ChargeID(cj.ID),
		BuildingID: billing.BuildingID(cj.BuildingID),
		Name:       cj.Name,
		Amount:     amount,
		Cadence:    billing.Cadence(cj.Cadence),
	}
	if err := charge.Validate(); err != nil {
		return billing.ChargeDefinition{}, err
	}
	return charge, nil
}

// ChargeToJSON converts a ChargeDefinition to ChargeJSON.
func (f *ChargeFactory) ChargeToJSON(c billing.ChargeDefinition) ChargeJSON {
	return ChargeJSON{
		ID:         string(c.ID),
		BuildingID: string(c.BuildingID),
		Name:       c.Name,
		Amount:     c.Amount.String(),
		Cadence:    string(c.Cadence),
	}
}

// chargeValidationError reports the first failing field.
func chargeValidationError(id billing.ChargeID, err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return &billing.InvalidChargeError{ChargeID: id, Field: fe.Field(), Reason: "failed " + fe.Tag()}
	}
	return fmt.Errorf("%w: %v", billing.ErrInvalidChargeDefinition, err)
}
