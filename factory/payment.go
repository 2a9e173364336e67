package factory

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/warp/hostel-billing/billing"
)

// PaymentJSON is the JSON representation of a payment attempt.
//
// Period fields are accepted as-is, including legacy shapes; the classifier
// decides later whether a record can be placed.
type PaymentJSON struct {
	ID             string `json:"id,omitempty"`
	TenantID       string `json:"tenant_id" validate:"required"`
	ChargeID       string `json:"charge_id" validate:"required"`
	Amount         string `json:"amount" validate:"required,numeric"`
	Outcome        string `json:"outcome" validate:"required,oneof=success pending failed"`
	CreatedAt      string `json:"created_at,omitempty" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
	PeriodYear     *int   `json:"period_year"`
	PeriodMonth    *int   `json:"period_month"`
	PeriodMonthEnd *int   `json:"period_month_end"`
	PeriodLabel    string `json:"period_label,omitempty"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

// ParsePayment parses a JSON string into a PaymentRecord.
func (f *ChargeFactory) ParsePayment(jsonStr string) (billing.PaymentRecord, error) {
	var pj PaymentJSON
	if err := json.Unmarshal([]byte(jsonStr), &pj); err != nil {
		return billing.PaymentRecord{}, fmt.Errorf("%w: %v", billing.ErrInvalidPayment, err)
	}
	return f.PaymentFromJSON(pj)
}

// PaymentFromJSON validates pj and converts it. Failures unwrap to
// billing.ErrInvalidPayment.
func (f *ChargeFactory) PaymentFromJSON(pj PaymentJSON) (billing.PaymentRecord, error) {
	if err := f.validate.Struct(pj); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return billing.PaymentRecord{}, fmt.Errorf("%w: %s failed %s", billing.ErrInvalidPayment, verrs[0].Field(), verrs[0].Tag())
		}
		return billing.PaymentRecord{}, fmt.Errorf("%w: %v", billing.ErrInvalidPayment, err)
	}

	amount, err := billing.ParseAmount(pj.Amount)
	if err != nil {
		return billing.PaymentRecord{}, fmt.Errorf("%w: amount: %v", billing.ErrInvalidPayment, err)
	}

	var createdAt time.Time
	if pj.CreatedAt != "" {
		createdAt, err = time.Parse(time.RFC3339, pj.CreatedAt)
		if err != nil {
			return billing.PaymentRecord{}, fmt.Errorf("%w: created_at: %v", billing.ErrInvalidPayment, err)
		}
	}

	return billing.PaymentRecord{
		ID:             billing.PaymentID(pj.ID),
		TenantID:       billing.TenantID(pj.TenantID),
		ChargeID:       billing.ChargeID(pj.ChargeID),
		Amount:         amount,
		Outcome:        billing.Outcome(pj.Outcome),
		CreatedAt:      createdAt.UTC(),
		PeriodYear:     pj.PeriodYear,
		PeriodMonth:    pj.PeriodMonth,
		PeriodMonthEnd: pj.PeriodMonthEnd,
		PeriodLabel:    pj.PeriodLabel,
		IdempotencyKey: pj.IdempotencyKey,
	}, nil
}

// PaymentToJSON converts a PaymentRecord to PaymentJSON.
func (f *ChargeFactory) PaymentToJSON(p billing.PaymentRecord) PaymentJSON {
	pj := PaymentJSON{
		ID:             string(p.ID),
		TenantID:       string(p.TenantID),
		ChargeID:       string(p.ChargeID),
		Amount:         p.Amount.String(),
		Outcome:        string(p.Outcome),
		PeriodYear:     p.PeriodYear,
		PeriodMonth:    p.PeriodMonth,
		PeriodMonthEnd: p.PeriodMonthEnd,
		PeriodLabel:    p.PeriodLabel,
		IdempotencyKey: p.IdempotencyKey,
	}
	if !p.CreatedAt.IsZero() {
		pj.CreatedAt = p.CreatedAt.UTC().Format(time.RFC3339)
	}
	return pj
}
