/*
reconcile.go - Merges generated periods with classified payments

PURPOSE:
  Reconcile is the single evaluation entry point. For one charge it
  resolves the cadence to bill under, generates the period calendar from
  the tenancy anchor through "now", classifies the tenant's payments and
  partitions the calendar into paid and unpaid periods.

FLOW:
  1. Validate the charge (config errors are returned, never repaired)
  2. Missing anchor -> NotApplicable(charge), nil error
  3. Classify successful payments for this charge
  4. CadencePolicy picks the cadence to generate with
  5. GeneratePeriods(anchor, cadence, now)
  6. Partition into PaidPeriods / UnpaidPeriods (ascending)
  7. IsUpToDate = last period is paid

STATELESS:
  Nothing is cached or retained. The dashboard re-invokes Reconcile on
  every ledger refresh; identical inputs give identical output.

SEE ALSO:
  - period.go: GeneratePeriods
  - classify.go: Classify
  - batch.go: ReconcileAll (one goroutine per charge)
*/
package billing

import (
	"fmt"
	"sort"
	"time"
)

// =============================================================================
// STATUS - Output of one reconciliation
// =============================================================================

// Action is what the dashboard offers the tenant for a charge.
type Action string

const (
	ActionPayNow        Action = "pay_now"
	ActionPaid          Action = "paid"
	ActionNotApplicable Action = "not_applicable"
	ActionNotStarted    Action = "not_started"
)

// ChargePaymentStatus is built fresh on every call.
//
// An empty UnpaidPeriods does NOT mean nothing is owed on its own: check
// Applicable and IsUpToDate as well.
type ChargePaymentStatus struct {
	ChargeID        ChargeID
	Applicable      bool
	ChosenFrequency Cadence
	PaidPeriods     []Period
	UnpaidPeriods   []Period

	// PendingPeriods are unpaid periods with at least one pending attempt.
	PendingPeriods []Period

	// Unclassified lists successful payments that could not be placed, sorted
	// by payment ID. Callers log them for operators.
	Unclassified []Classification

	IsUpToDate bool
	AmountDue  Amount
}

// NotApplicable is the result for a charge whose tenancy has no start date.
func NotApplicable(charge ChargeDefinition) ChargePaymentStatus {
	return ChargePaymentStatus{
		ChargeID:        charge.ID,
		Applicable:      false,
		ChosenFrequency: charge.Cadence,
		PaidPeriods:     []Period{},
		UnpaidPeriods:   []Period{},
		PendingPeriods:  []Period{},
		Unclassified:    []Classification{},
		AmountDue:       NewAmountFromInt(0),
	}
}

// Arrears is the number of unpaid periods.
func (s ChargePaymentStatus) Arrears() int { return len(s.UnpaidPeriods) }

// InArrears is true when more than the current cycle is outstanding.
func (s ChargePaymentStatus) InArrears() bool { return s.Arrears() > 1 }

func (s ChargePaymentStatus) Action() Action {
	switch {
	case !s.Applicable:
		return ActionNotApplicable
	case len(s.PaidPeriods)+len(s.UnpaidPeriods) == 0:
		// Move-in date is after the evaluation date.
		return ActionNotStarted
	case s.IsUpToDate:
		return ActionPaid
	default:
		return ActionPayNow
	}
}

// IsPaid reports whether the given period key is in PaidPeriods.
func (s ChargePaymentStatus) IsPaid(key PeriodKey) bool {
	for _, p := range s.PaidPeriods {
		if p.Key == key {
			return true
		}
	}
	return false
}

// =============================================================================
// CADENCE POLICY - Which cadence to generate periods with
// =============================================================================

// CadenceEvidence is one successful, classified payment for the charge.
type CadenceEvidence struct {
	Cadence   Cadence
	CreatedAt time.Time
}

// CadencePolicy decides the cadence used for period generation when payment
// history may disagree with the charge's configured cadence (for example a
// landlord switched a charge from yearly to monthly).
type CadencePolicy interface {
	Name() string
	Choose(configured Cadence, history []CadenceEvidence) Cadence
}

// Policy names accepted by PolicyByName.
const (
	PolicyConfigured = "configured"
	PolicyMajority   = "majority"
	PolicyLatest     = "latest"
)

// ConfiguredCadence always uses the charge's current cadence.
type ConfiguredCadence struct{}

func (ConfiguredCadence) Name() string { return PolicyConfigured }

func (ConfiguredCadence) Choose(configured Cadence, _ []CadenceEvidence) Cadence {
	return configured
}

// minSwitchEvidence is the fewest other-cadence payments that can override the
// configured cadence. One stray yearly record must not mark a monthly charge
// paid for a whole year.
const minSwitchEvidence = 2

// MajorityHistoryCadence switches to the other cadence only when strictly
// more than half of the classified successful payments use it, and at least
// minSwitchEvidence of them do. Ties and empty histories keep the configured
// cadence.
type MajorityHistoryCadence struct{}

func (MajorityHistoryCadence) Name() string { return PolicyMajority }

func (MajorityHistoryCadence) Choose(configured Cadence, history []CadenceEvidence) Cadence {
	other := 0
	for _, e := range history {
		if e.Cadence != configured {
			other++
		}
	}
	if other >= minSwitchEvidence && other*2 > len(history) {
		return configured.Other()
	}
	return configured
}

// LatestPaymentCadence follows the most recently created successful payment.
// If the newest payments disagree with each other, the configured cadence wins.
type LatestPaymentCadence struct{}

func (LatestPaymentCadence) Name() string { return PolicyLatest }

func (LatestPaymentCadence) Choose(configured Cadence, history []CadenceEvidence) Cadence {
	if len(history) == 0 {
		return configured
	}
	latest := history[0]
	agreed := true
	for _, e := range history[1:] {
		switch {
		case e.CreatedAt.After(latest.CreatedAt):
			latest = e
			agreed = true
		case e.CreatedAt.Equal(latest.CreatedAt) && e.Cadence != latest.Cadence:
			agreed = false
		}
	}
	if !agreed {
		return configured
	}
	return latest.Cadence
}

// PolicyByName resolves a configured policy name.
func PolicyByName(name string) (CadencePolicy, error) {
	switch name {
	case "", PolicyMajority:
		return MajorityHistoryCadence{}, nil
	case PolicyConfigured:
		return ConfiguredCadence{}, nil
	case PolicyLatest:
		return LatestPaymentCadence{}, nil
	default:
		return nil, fmt.Errorf("unknown cadence policy %q", name)
	}
}

// =============================================================================
// ENGINE
// =============================================================================

// Engine holds the cadence policy. It has no other state and is safe for
// concurrent use.
type Engine struct {
	Policy CadencePolicy
}

func NewEngine(policy CadencePolicy) *Engine {
	if policy == nil {
		policy = MajorityHistoryCadence{}
	}
	return &Engine{Policy: policy}
}

// DefaultEngine uses MajorityHistoryCadence.
var DefaultEngine = NewEngine(MajorityHistoryCadence{})

// Reconcile evaluates one charge with DefaultEngine.
func Reconcile(charge ChargeDefinition, anchor *TimePoint, payments []PaymentRecord, now TimePoint) (ChargePaymentStatus, error) {
	return DefaultEngine.Reconcile(charge, anchor, payments, now)
}

// Reconcile evaluates one charge. payments may contain records for other
// charges; only those whose ChargeID matches are considered.
func (e *Engine) Reconcile(charge ChargeDefinition, anchor *TimePoint, payments []PaymentRecord, now TimePoint) (ChargePaymentStatus, error) {
	if err := charge.Validate(); err != nil {
		return ChargePaymentStatus{}, err
	}
	if anchor == nil || anchor.IsZero() {
		return NotApplicable(charge), nil
	}

	satisfied := make(map[PeriodKey]bool)
	pending := make(map[PeriodKey]bool)
	var evidence []CadenceEvidence
	unclassified := []Classification{}

	for _, p := range payments {
		if p.ChargeID != charge.ID {
			continue
		}
		switch p.Outcome {
		case OutcomeSuccess:
			c := Classify(p)
			if !c.Classified() {
				unclassified = append(unclassified, c)
				continue
			}
			satisfied[c.Key] = true
			evidence = append(evidence, CadenceEvidence{Cadence: c.Key.Cadence, CreatedAt: p.CreatedAt})
		case OutcomePending:
			if c := classifyShape(p); c.Classified() {
				pending[c.Key] = true
			}
		}
	}
	sort.SliceStable(unclassified, func(i, j int) bool {
		return unclassified[i].PaymentID < unclassified[j].PaymentID
	})

	chosen := e.policy().Choose(charge.Cadence, evidence)
	if !chosen.Valid() {
		chosen = charge.Cadence
	}

	status := ChargePaymentStatus{
		ChargeID:        charge.ID,
		Applicable:      true,
		ChosenFrequency: chosen,
		PaidPeriods:     []Period{},
		UnpaidPeriods:   []Period{},
		PendingPeriods:  []Period{},
		Unclassified:    unclassified,
	}

	periods := GeneratePeriods(*anchor, chosen, now)
	for _, period := range periods {
		if satisfied[period.Key] {
			status.PaidPeriods = append(status.PaidPeriods, period)
			continue
		}
		status.UnpaidPeriods = append(status.UnpaidPeriods, period)
		if pending[period.Key] {
			status.PendingPeriods = append(status.PendingPeriods, period)
		}
	}

	if n := len(periods); n > 0 {
		status.IsUpToDate = satisfied[periods[n-1].Key]
	}
	status.AmountDue = charge.Amount.Times(len(status.UnpaidPeriods))
	return status, nil
}

func (e *Engine) policy() CadencePolicy {
	if e == nil || e.Policy == nil {
		return MajorityHistoryCadence{}
	}
	return e.Policy
}
